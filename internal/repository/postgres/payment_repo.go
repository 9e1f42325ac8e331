package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/soukly/soukly-backend/internal/domain"
)

// PaymentRepository implements domain.PaymentRepository using PostgreSQL.
// Payment rows are written by the capture gateway; this repository only reads
// them together with their seller sub-orders.
type PaymentRepository struct {
	pool *pgxpool.Pool
}

// NewPaymentRepository creates a new PaymentRepository
func NewPaymentRepository(pool *pgxpool.Pool) *PaymentRepository {
	return &PaymentRepository{pool: pool}
}

// GetByID retrieves a payment transaction and its sub-orders
func (r *PaymentRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.PaymentTransaction, error) {
	var (
		paymentID       pgtype.UUID
		amount          pgtype.Numeric
		transactionDate pgtype.Timestamptz
		allocatedAt     pgtype.Timestamptz
	)
	payment := &domain.PaymentTransaction{}
	err := r.pool.QueryRow(ctx, `
		SELECT id, currency, amount, transaction_date, allocated_at
		FROM payment_transactions
		WHERE id = $1`, pgUUID(id)).
		Scan(&paymentID, &payment.Currency, &amount, &transactionDate, &allocatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, domain.ErrPaymentNotFound
		}
		return nil, err
	}
	payment.ID = uuid.UUID(paymentID.Bytes)
	payment.Amount = pgNumericToDecimal(amount)
	payment.TransactionDate = transactionDate.Time
	if allocatedAt.Valid {
		payment.AllocatedAt = &allocatedAt.Time
	}

	rows, err := r.pool.Query(ctx, `
		SELECT id, payment_id, store_id, category_id, seller_tier, amount
		FROM seller_sub_orders
		WHERE payment_id = $1
		ORDER BY id`, pgUUID(id))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	payment.SubOrders = []*domain.SellerSubOrder{}
	for rows.Next() {
		var (
			subID, subPaymentID pgtype.UUID
			categoryID          pgtype.Int4
			sellerTier          string
			subAmount           pgtype.Numeric
		)
		sub := &domain.SellerSubOrder{}
		if err := rows.Scan(&subID, &subPaymentID, &sub.StoreID, &categoryID, &sellerTier, &subAmount); err != nil {
			return nil, err
		}
		sub.ID = uuid.UUID(subID.Bytes)
		sub.PaymentID = uuid.UUID(subPaymentID.Bytes)
		sub.SellerTier = domain.SellerTier(sellerTier)
		sub.Amount = pgNumericToDecimal(subAmount)
		if categoryID.Valid {
			sub.CategoryID = &categoryID.Int32
		}
		payment.SubOrders = append(payment.SubOrders, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return payment, nil
}
