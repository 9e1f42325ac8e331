package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/soukly/soukly-backend/internal/domain"
)

// EscrowRepository implements domain.EscrowRepository using PostgreSQL
type EscrowRepository struct {
	pool *pgxpool.Pool
}

// NewEscrowRepository creates a new EscrowRepository
func NewEscrowRepository(pool *pgxpool.Pool) *EscrowRepository {
	return &EscrowRepository{pool: pool}
}

const escrowColumns = `id, payment_transaction_id, sub_order_id, store_id,
	gross_amount, commission_amount, net_amount, refunded_amount, status,
	eligible_at, payout_id, released_at, refund_notes, version, created_at, updated_at`

// liveClaimExists matches escrow rows claimed by a payout that is still
// pending, processing, or failed with retries remaining. A claim by an
// exhausted payout no longer counts as live, so its rows re-enter the ripe
// set automatically and the next sweep folds them into a fresh payout.
const liveClaimExists = `EXISTS (
		SELECT 1 FROM payout_escrow_transactions l
		JOIN payouts p ON p.id = l.payout_id
		WHERE l.escrow_transaction_id = e.id
		  AND (p.status IN ('pending', 'processing')
		       OR (p.status = 'failed' AND p.retry_count < $2))
	)`

// AllocatePayment stamps the payment as allocated and inserts the escrow
// rows in one database transaction. The stamp doubles as the idempotency
// guard: a payment already carrying allocated_at yields ErrAlreadyAllocated
// and no escrow rows.
func (r *EscrowRepository) AllocatePayment(ctx context.Context, paymentID uuid.UUID, allocatedAt time.Time, transactions []*domain.EscrowTransaction) ([]*domain.EscrowTransaction, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE payment_transactions
		SET allocated_at = $2
		WHERE id = $1 AND allocated_at IS NULL`,
		pgUUID(paymentID), pgTimestamptz(allocatedAt))
	if err != nil {
		return nil, err
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM payment_transactions WHERE id = $1)`, pgUUID(paymentID)).Scan(&exists); err != nil {
			return nil, err
		}
		if !exists {
			return nil, domain.ErrPaymentNotFound
		}
		return nil, domain.ErrAlreadyAllocated
	}

	created := make([]*domain.EscrowTransaction, 0, len(transactions))
	for _, escrow := range transactions {
		gross, err := decimalToPgNumeric(escrow.GrossAmount)
		if err != nil {
			return nil, fmt.Errorf("invalid gross amount: %w", err)
		}
		commission, err := decimalToPgNumeric(escrow.CommissionAmount)
		if err != nil {
			return nil, fmt.Errorf("invalid commission amount: %w", err)
		}
		net, err := decimalToPgNumeric(escrow.NetAmount)
		if err != nil {
			return nil, fmt.Errorf("invalid net amount: %w", err)
		}

		row := tx.QueryRow(ctx, `
			INSERT INTO escrow_transactions (
				payment_transaction_id, sub_order_id, store_id,
				gross_amount, commission_amount, net_amount, status
			) VALUES ($1, $2, $3, $4, $5, $6, 'held')
			RETURNING `+escrowColumns,
			pgUUID(escrow.PaymentTransactionID), pgUUID(escrow.SubOrderID),
			escrow.StoreID, gross, commission, net)

		inserted, err := scanEscrowRow(row)
		if err != nil {
			return nil, err
		}
		created = append(created, inserted)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return created, nil
}

// GetByID retrieves an escrow transaction by its ID
func (r *EscrowRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.EscrowTransaction, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+escrowColumns+` FROM escrow_transactions WHERE id = $1`, pgUUID(id))
	escrow, err := scanEscrowRow(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, domain.ErrEscrowTransactionNotFound
		}
		return nil, err
	}
	return escrow, nil
}

// GetBySubOrder retrieves the escrow transaction for a seller sub-order
func (r *EscrowRepository) GetBySubOrder(ctx context.Context, subOrderID uuid.UUID) (*domain.EscrowTransaction, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+escrowColumns+` FROM escrow_transactions WHERE sub_order_id = $1`, pgUUID(subOrderID))
	escrow, err := scanEscrowRow(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, domain.ErrEscrowTransactionNotFound
		}
		return nil, err
	}
	return escrow, nil
}

// List retrieves escrow transactions with optional filters and pagination
func (r *EscrowRepository) List(ctx context.Context, filters *domain.EscrowFilters) (*domain.PaginatedEscrowTransactions, error) {
	page := int32(1)
	pageSize := int32(domain.DefaultPageSize)
	if filters != nil {
		if filters.Page > 0 {
			page = filters.Page
		}
		if filters.PageSize > 0 {
			pageSize = filters.PageSize
			if pageSize > domain.MaxPageSize {
				pageSize = domain.MaxPageSize
			}
		}
	}
	offset := (page - 1) * pageSize

	where := "TRUE"
	args := []any{}
	if filters != nil {
		if filters.StoreID != nil {
			args = append(args, *filters.StoreID)
			where += fmt.Sprintf(" AND store_id = $%d", len(args))
		}
		if filters.Status != nil {
			args = append(args, string(*filters.Status))
			where += fmt.Sprintf(" AND status = $%d", len(args))
		}
	}

	var totalItems int64
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM escrow_transactions WHERE `+where, args...).Scan(&totalItems); err != nil {
		return nil, err
	}

	args = append(args, pageSize, offset)
	query := fmt.Sprintf(`
		SELECT %s FROM escrow_transactions
		WHERE %s
		ORDER BY created_at DESC, id
		LIMIT $%d OFFSET $%d`, escrowColumns, where, len(args)-1, len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result, err := collectEscrowRows(rows)
	if err != nil {
		return nil, err
	}

	totalPages := int32(totalItems / int64(pageSize))
	if totalItems%int64(pageSize) > 0 {
		totalPages++
	}

	return &domain.PaginatedEscrowTransactions{
		Data:       result,
		Page:       page,
		PageSize:   pageSize,
		TotalItems: totalItems,
		TotalPages: totalPages,
	}, nil
}

// ListByPayout retrieves the escrow transactions linked to a payout
func (r *EscrowRepository) ListByPayout(ctx context.Context, payoutID uuid.UUID) ([]*domain.EscrowTransaction, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+escrowColumns+`
		FROM escrow_transactions
		WHERE id IN (
			SELECT escrow_transaction_id FROM payout_escrow_transactions WHERE payout_id = $1
		)
		ORDER BY created_at, id`, pgUUID(payoutID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectEscrowRows(rows)
}

// ListRipe returns transactions whose grace period has elapsed and that are
// not claimed by a live payout
func (r *EscrowRepository) ListRipe(ctx context.Context, asOf time.Time, maxRetries int32) ([]*domain.EscrowTransaction, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+escrowColumns+`
		FROM escrow_transactions e
		WHERE e.status IN ('eligible_for_payout', 'partially_returned')
		  AND e.eligible_at IS NOT NULL AND e.eligible_at <= $1
		  AND NOT `+liveClaimExists+`
		ORDER BY e.store_id, e.created_at, e.id`,
		pgTimestamptz(asOf), maxRetries)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectEscrowRows(rows)
}

// ListRipeByStore is ListRipe narrowed to one store
func (r *EscrowRepository) ListRipeByStore(ctx context.Context, storeID int32, asOf time.Time, maxRetries int32) ([]*domain.EscrowTransaction, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+escrowColumns+`
		FROM escrow_transactions e
		WHERE e.store_id = $3
		  AND e.status IN ('eligible_for_payout', 'partially_returned')
		  AND e.eligible_at IS NOT NULL AND e.eligible_at <= $1
		  AND NOT `+liveClaimExists+`
		ORDER BY e.created_at, e.id`,
		pgTimestamptz(asOf), maxRetries, storeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectEscrowRows(rows)
}

// MarkEligible stamps the grace deadline on an unstamped transaction. A held
// row moves to eligible_for_payout; a partially returned row keeps its status
// and becomes payable for the remainder through the stamp alone.
func (r *EscrowRepository) MarkEligible(ctx context.Context, id uuid.UUID, eligibleAt time.Time, version int32) (*domain.EscrowTransaction, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE escrow_transactions
		SET status = CASE WHEN status = 'held' THEN 'eligible_for_payout' ELSE status END,
		    eligible_at = $2, version = version + 1, updated_at = now()
		WHERE id = $1 AND version = $3
		  AND status IN ('held', 'partially_returned') AND eligible_at IS NULL
		RETURNING `+escrowColumns,
		pgUUID(id), pgTimestamptz(eligibleAt), version)

	escrow, err := scanEscrowRow(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, r.conflictOrNotFound(ctx, id)
		}
		return nil, err
	}
	return escrow, nil
}

// Refund applies a validated refund under the caller's observed version
func (r *EscrowRepository) Refund(ctx context.Context, id uuid.UUID, refund *domain.RefundInput, version int32) (*domain.EscrowTransaction, error) {
	refunded, err := decimalToPgNumeric(refund.RefundedAmount)
	if err != nil {
		return nil, fmt.Errorf("invalid refunded amount: %w", err)
	}
	net, err := decimalToPgNumeric(refund.NetAmount)
	if err != nil {
		return nil, fmt.Errorf("invalid net amount: %w", err)
	}

	var notes pgtype.Text
	if refund.Notes != nil {
		notes.String = *refund.Notes
		notes.Valid = true
	}

	row := r.pool.QueryRow(ctx, `
		UPDATE escrow_transactions
		SET status = $2, refunded_amount = $3, net_amount = $4,
		    refund_notes = COALESCE($5, refund_notes),
		    version = version + 1, updated_at = now()
		WHERE id = $1 AND version = $6
		RETURNING `+escrowColumns,
		pgUUID(id), string(refund.Status), refunded, net, notes, version)

	escrow, err := scanEscrowRow(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, r.conflictOrNotFound(ctx, id)
		}
		return nil, err
	}
	return escrow, nil
}

// GetStoreBalance aggregates escrow custody for one store
func (r *EscrowRepository) GetStoreBalance(ctx context.Context, storeID int32, asOf time.Time, maxRetries int32) (*domain.StoreBalance, error) {
	balance := &domain.StoreBalance{StoreID: storeID}

	var held, eligible, released, refunded pgtype.Numeric
	err := r.pool.QueryRow(ctx, `
		SELECT
			COALESCE(SUM(net_amount) FILTER (WHERE status = 'held'), 0),
			COALESCE(SUM(net_amount) FILTER (
				WHERE status IN ('eligible_for_payout', 'partially_returned')
				  AND eligible_at IS NOT NULL AND eligible_at <= $1
				  AND NOT `+liveClaimExists+`), 0),
			COUNT(*) FILTER (
				WHERE status IN ('eligible_for_payout', 'partially_returned')
				  AND eligible_at IS NOT NULL AND eligible_at <= $1
				  AND NOT `+liveClaimExists+`),
			COALESCE(SUM(net_amount) FILTER (WHERE status = 'released'), 0),
			COALESCE(SUM(refunded_amount), 0)
		FROM escrow_transactions e
		WHERE e.store_id = $3`,
		pgTimestamptz(asOf), maxRetries, storeID).
		Scan(&held, &eligible, &balance.EligibleCount, &released, &refunded)
	if err != nil {
		return nil, err
	}
	balance.HeldAmount = pgNumericToDecimal(held)
	balance.EligibleAmount = pgNumericToDecimal(eligible)
	balance.ReleasedToDate = pgNumericToDecimal(released)
	balance.RefundedToDate = pgNumericToDecimal(refunded)

	var pending pgtype.Numeric
	err = r.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(amount), 0)
		FROM payouts p
		WHERE p.store_id = $1
		  AND (p.status IN ('pending', 'processing')
		       OR (p.status = 'failed' AND p.retry_count < $2))`,
		storeID, maxRetries).Scan(&pending)
	if err != nil {
		return nil, err
	}
	balance.PendingPayout = pgNumericToDecimal(pending)

	return balance, nil
}

// conflictOrNotFound disambiguates an empty optimistic update: the row either
// never existed or has moved past the caller's version.
func (r *EscrowRepository) conflictOrNotFound(ctx context.Context, id uuid.UUID) error {
	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM escrow_transactions WHERE id = $1)`, pgUUID(id)).Scan(&exists); err != nil {
		return err
	}
	if exists {
		return domain.ErrVersionConflict
	}
	return domain.ErrEscrowTransactionNotFound
}

// Helper functions

func scanEscrowRow(row pgx.Row) (*domain.EscrowTransaction, error) {
	var (
		id, paymentID, subOrderID        pgtype.UUID
		gross, commission, net, refunded pgtype.Numeric
		status                           string
		eligibleAt, releasedAt           pgtype.Timestamptz
		payoutID                         pgtype.UUID
		refundNotes                      pgtype.Text
		createdAt, updatedAt             pgtype.Timestamptz
		storeID, version                 int32
	)
	err := row.Scan(&id, &paymentID, &subOrderID, &storeID,
		&gross, &commission, &net, &refunded, &status,
		&eligibleAt, &payoutID, &releasedAt, &refundNotes, &version, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	escrow := &domain.EscrowTransaction{
		ID:                   uuid.UUID(id.Bytes),
		PaymentTransactionID: uuid.UUID(paymentID.Bytes),
		SubOrderID:           uuid.UUID(subOrderID.Bytes),
		StoreID:              storeID,
		GrossAmount:          pgNumericToDecimal(gross),
		CommissionAmount:     pgNumericToDecimal(commission),
		NetAmount:            pgNumericToDecimal(net),
		RefundedAmount:       pgNumericToDecimal(refunded),
		Status:               domain.EscrowStatus(status),
		Version:              version,
		CreatedAt:            createdAt.Time,
		UpdatedAt:            updatedAt.Time,
	}
	if eligibleAt.Valid {
		escrow.EligibleAt = &eligibleAt.Time
	}
	if payoutID.Valid {
		pid := uuid.UUID(payoutID.Bytes)
		escrow.PayoutID = &pid
	}
	if releasedAt.Valid {
		escrow.ReleasedAt = &releasedAt.Time
	}
	if refundNotes.Valid {
		escrow.RefundNotes = &refundNotes.String
	}
	return escrow, nil
}

func collectEscrowRows(rows pgx.Rows) ([]*domain.EscrowTransaction, error) {
	result := []*domain.EscrowTransaction{}
	for rows.Next() {
		escrow, err := scanEscrowRow(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, escrow)
	}
	return result, rows.Err()
}

func pgUUID(id uuid.UUID) pgtype.UUID {
	return pgtype.UUID{Bytes: id, Valid: true}
}

func pgTimestamptz(t time.Time) pgtype.Timestamptz {
	return pgtype.Timestamptz{Time: t, Valid: true}
}

func decimalToPgNumeric(d decimal.Decimal) (pgtype.Numeric, error) {
	var num pgtype.Numeric
	if err := num.Scan(d.String()); err != nil {
		return pgtype.Numeric{}, err
	}
	return num, nil
}

func pgNumericToDecimal(n pgtype.Numeric) decimal.Decimal {
	if !n.Valid {
		return decimal.Zero
	}
	if n.Int == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(n.Int, n.Exp)
}
