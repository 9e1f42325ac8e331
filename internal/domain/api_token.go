package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// APIToken authenticates machine callers (payment and fulfillment webhooks).
// Only a SHA-256 hash of the token is stored.
type APIToken struct {
	ID         uuid.UUID  `json:"id"`
	Name       string     `json:"name"`
	TokenHash  string     `json:"-"`
	LastUsedAt *time.Time `json:"lastUsedAt,omitempty"`
	ExpiresAt  *time.Time `json:"expiresAt,omitempty"`
	RevokedAt  *time.Time `json:"-"`
	CreatedAt  time.Time  `json:"createdAt"`
}

// APITokenRepository persists machine tokens.
type APITokenRepository interface {
	GetByHash(ctx context.Context, tokenHash string) (*APIToken, error)
	TouchLastUsed(ctx context.Context, id uuid.UUID, usedAt time.Time) error
}
