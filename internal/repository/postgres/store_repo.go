package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/soukly/soukly-backend/internal/domain"
)

// StoreRepository implements domain.StoreRepository using PostgreSQL
type StoreRepository struct {
	pool *pgxpool.Pool
}

// NewStoreRepository creates a new StoreRepository
func NewStoreRepository(pool *pgxpool.Pool) *StoreRepository {
	return &StoreRepository{pool: pool}
}

// GetByID retrieves a store by its ID
func (r *StoreRepository) GetByID(ctx context.Context, id int32) (*domain.Store, error) {
	var sellerTier string
	store := &domain.Store{}
	err := r.pool.QueryRow(ctx, `
		SELECT id, name, payment_destination, currency, seller_tier, is_active
		FROM stores
		WHERE id = $1`, id).
		Scan(&store.ID, &store.Name, &store.PaymentDestination, &store.Currency, &sellerTier, &store.IsActive)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, domain.ErrStoreNotFound
		}
		return nil, err
	}
	store.SellerTier = domain.SellerTier(sellerTier)
	return store, nil
}
