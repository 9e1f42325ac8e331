package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/soukly/soukly-backend/internal/domain"
)

// APITokenRepository implements domain.APITokenRepository using PostgreSQL
type APITokenRepository struct {
	pool *pgxpool.Pool
}

// NewAPITokenRepository creates a new APITokenRepository
func NewAPITokenRepository(pool *pgxpool.Pool) *APITokenRepository {
	return &APITokenRepository{pool: pool}
}

// GetByHash retrieves an unrevoked, unexpired API token by its hash
func (r *APITokenRepository) GetByHash(ctx context.Context, tokenHash string) (*domain.APIToken, error) {
	var (
		id                    pgtype.UUID
		lastUsedAt, expiresAt pgtype.Timestamptz
		revokedAt, createdAt  pgtype.Timestamptz
	)
	token := &domain.APIToken{}
	err := r.pool.QueryRow(ctx, `
		SELECT id, name, token_hash, last_used_at, expires_at, revoked_at, created_at
		FROM api_tokens
		WHERE token_hash = $1
		  AND revoked_at IS NULL
		  AND (expires_at IS NULL OR expires_at > now())`, tokenHash).
		Scan(&id, &token.Name, &token.TokenHash, &lastUsedAt, &expiresAt, &revokedAt, &createdAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, domain.ErrAPITokenNotFound
		}
		return nil, err
	}
	token.ID = uuid.UUID(id.Bytes)
	token.CreatedAt = createdAt.Time
	if lastUsedAt.Valid {
		token.LastUsedAt = &lastUsedAt.Time
	}
	if expiresAt.Valid {
		token.ExpiresAt = &expiresAt.Time
	}
	if revokedAt.Valid {
		token.RevokedAt = &revokedAt.Time
	}
	return token, nil
}

// TouchLastUsed updates the last_used_at timestamp for a token
func (r *APITokenRepository) TouchLastUsed(ctx context.Context, id uuid.UUID, usedAt time.Time) error {
	_, err := r.pool.Exec(ctx, `UPDATE api_tokens SET last_used_at = $2 WHERE id = $1`, pgUUID(id), pgTimestamptz(usedAt))
	return err
}
