package service

import (
	"context"
	"crypto/sha256"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/soukly/soukly-backend/internal/domain"
)

// tokenPrefix marks machine tokens issued to the payment and fulfillment
// webhook callers.
const tokenPrefix = "souk_"

// APITokenService validates machine tokens. Token issuance and revocation
// live in the marketplace's admin backend; this service only authenticates
// inbound webhook calls against the stored hashes.
type APITokenService struct {
	repo  domain.APITokenRepository
	clock domain.Clock
}

// NewAPITokenService creates a new APITokenService
func NewAPITokenService(repo domain.APITokenRepository, clock domain.Clock) *APITokenService {
	return &APITokenService{repo: repo, clock: clock}
}

// ValidateToken validates a machine token and returns its record
func (s *APITokenService) ValidateToken(ctx context.Context, token string) (*domain.APIToken, error) {
	if !strings.HasPrefix(token, tokenPrefix) {
		return nil, domain.ErrAPITokenNotFound
	}

	apiToken, err := s.repo.GetByHash(ctx, hashToken(token))
	if err != nil {
		return nil, err
	}

	// Update last used asynchronously; authentication does not wait on it
	usedAt := s.clock.Now()
	go func() {
		if touchErr := s.repo.TouchLastUsed(context.Background(), apiToken.ID, usedAt); touchErr != nil {
			log.Error().Err(touchErr).Str("token_id", apiToken.ID.String()).Msg("Failed to update last_used_at")
		}
	}()

	return apiToken, nil
}

// hashToken creates a SHA-256 hash of the token
func hashToken(token string) string {
	hash := sha256.Sum256([]byte(token))
	return fmt.Sprintf("%x", hash)
}
