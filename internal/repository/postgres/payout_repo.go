package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/soukly/soukly-backend/internal/domain"
)

// PayoutRepository implements domain.PayoutRepository using PostgreSQL
type PayoutRepository struct {
	pool *pgxpool.Pool
}

// NewPayoutRepository creates a new PayoutRepository
func NewPayoutRepository(pool *pgxpool.Pool) *PayoutRepository {
	return &PayoutRepository{pool: pool}
}

const payoutColumns = `id, store_id, scheduled_date, amount, currency, status,
	retry_count, next_retry_at, failure_reason, transfer_reference,
	processed_at, completed_at, version, created_at, updated_at`

// CreateWithLinks inserts the payout and its escrow link rows atomically
func (r *PayoutRepository) CreateWithLinks(ctx context.Context, payout *domain.Payout, escrowIDs []uuid.UUID) (*domain.Payout, error) {
	amount, err := decimalToPgNumeric(payout.Amount)
	if err != nil {
		return nil, fmt.Errorf("invalid amount: %w", err)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `
		INSERT INTO payouts (id, store_id, scheduled_date, amount, currency, status)
		VALUES ($1, $2, $3, $4, $5, 'pending')
		RETURNING `+payoutColumns,
		pgUUID(payout.ID), payout.StoreID, pgTimestamptz(payout.ScheduledDate), amount, payout.Currency)

	created, err := scanPayoutRow(row)
	if err != nil {
		return nil, err
	}

	for _, escrowID := range escrowIDs {
		if _, err := tx.Exec(ctx, `
			INSERT INTO payout_escrow_transactions (payout_id, escrow_transaction_id)
			VALUES ($1, $2)`,
			pgUUID(created.ID), pgUUID(escrowID)); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return created, nil
}

// GetByID retrieves a payout by its ID
func (r *PayoutRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Payout, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+payoutColumns+` FROM payouts WHERE id = $1`, pgUUID(id))
	payout, err := scanPayoutRow(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, domain.ErrPayoutNotFound
		}
		return nil, err
	}
	return payout, nil
}

// List retrieves payouts with optional filters and pagination
func (r *PayoutRepository) List(ctx context.Context, filters *domain.PayoutFilters) (*domain.PaginatedPayouts, error) {
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
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM payouts WHERE `+where, args...).Scan(&totalItems); err != nil {
		return nil, err
	}

	args = append(args, pageSize, offset)
	query := fmt.Sprintf(`
		SELECT %s FROM payouts
		WHERE %s
		ORDER BY scheduled_date DESC, id
		LIMIT $%d OFFSET $%d`, payoutColumns, where, len(args)-1, len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result, err := collectPayoutRows(rows)
	if err != nil {
		return nil, err
	}

	totalPages := int32(totalItems / int64(pageSize))
	if totalItems%int64(pageSize) > 0 {
		totalPages++
	}

	return &domain.PaginatedPayouts{
		Data:       result,
		Page:       page,
		PageSize:   pageSize,
		TotalItems: totalItems,
		TotalPages: totalPages,
	}, nil
}

// ListRetryable returns failed payouts due for another attempt. Parked
// payouts carry no next_retry_at and never match.
func (r *PayoutRepository) ListRetryable(ctx context.Context, asOf time.Time, maxRetries int32) ([]*domain.Payout, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+payoutColumns+`
		FROM payouts
		WHERE status = 'failed'
		  AND retry_count < $2
		  AND next_retry_at IS NOT NULL AND next_retry_at <= $1
		ORDER BY next_retry_at, id`,
		pgTimestamptz(asOf), maxRetries)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectPayoutRows(rows)
}

// ListStaleProcessing returns payouts stuck in processing since before cutoff
func (r *PayoutRepository) ListStaleProcessing(ctx context.Context, cutoff time.Time) ([]*domain.Payout, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+payoutColumns+`
		FROM payouts
		WHERE status = 'processing' AND processed_at < $1
		ORDER BY processed_at, id`,
		pgTimestamptz(cutoff))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectPayoutRows(rows)
}

// ListPending returns pending payouts ready for processing
func (r *PayoutRepository) ListPending(ctx context.Context) ([]*domain.Payout, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+payoutColumns+`
		FROM payouts
		WHERE status = 'pending'
		ORDER BY scheduled_date, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectPayoutRows(rows)
}

// MarkProcessing claims a payout for processing under the caller's observed
// version. The loser of a concurrent claim gets ErrVersionConflict.
func (r *PayoutRepository) MarkProcessing(ctx context.Context, id uuid.UUID, processedAt time.Time, version int32) (*domain.Payout, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE payouts
		SET status = 'processing', processed_at = $2, version = version + 1, updated_at = now()
		WHERE id = $1 AND version = $3 AND status IN ('pending', 'failed')
		RETURNING `+payoutColumns,
		pgUUID(id), pgTimestamptz(processedAt), version)

	payout, err := scanPayoutRow(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, r.conflictOrNotFound(ctx, id)
		}
		return nil, err
	}
	return payout, nil
}

// CompleteWithReleases finishes the payout and releases every linked escrow
// transaction in one database transaction. Any version mismatch rolls the
// whole unit back.
func (r *PayoutRepository) CompleteWithReleases(ctx context.Context, payout *domain.Payout, transferRef string, completedAt time.Time, escrowVersions map[uuid.UUID]int32) (*domain.Payout, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	for escrowID, version := range escrowVersions {
		tag, err := tx.Exec(ctx, `
			UPDATE escrow_transactions
			SET status = 'released', payout_id = $2, released_at = $3,
			    version = version + 1, updated_at = now()
			WHERE id = $1 AND version = $4`,
			pgUUID(escrowID), pgUUID(payout.ID), pgTimestamptz(completedAt), version)
		if err != nil {
			return nil, err
		}
		if tag.RowsAffected() == 0 {
			return nil, domain.ErrVersionConflict
		}
	}

	row := tx.QueryRow(ctx, `
		UPDATE payouts
		SET status = 'completed', transfer_reference = $2, completed_at = $3,
		    version = version + 1, updated_at = now()
		WHERE id = $1 AND version = $4 AND status = 'processing'
		RETURNING `+payoutColumns,
		pgUUID(payout.ID), transferRef, pgTimestamptz(completedAt), payout.Version)

	completed, err := scanPayoutRow(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, domain.ErrVersionConflict
		}
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return completed, nil
}

// MarkFailed records a failed attempt and the next retry slot
func (r *PayoutRepository) MarkFailed(ctx context.Context, id uuid.UUID, reason string, retryCount int32, nextRetryAt *time.Time, version int32) (*domain.Payout, error) {
	var retryAt pgtype.Timestamptz
	if nextRetryAt != nil {
		retryAt.Time = *nextRetryAt
		retryAt.Valid = true
	}

	row := r.pool.QueryRow(ctx, `
		UPDATE payouts
		SET status = 'failed', failure_reason = $2, retry_count = $3,
		    next_retry_at = $4, version = version + 1, updated_at = now()
		WHERE id = $1 AND version = $5
		RETURNING `+payoutColumns,
		pgUUID(id), reason, retryCount, retryAt, version)

	payout, err := scanPayoutRow(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, r.conflictOrNotFound(ctx, id)
		}
		return nil, err
	}
	return payout, nil
}

func (r *PayoutRepository) conflictOrNotFound(ctx context.Context, id uuid.UUID) error {
	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM payouts WHERE id = $1)`, pgUUID(id)).Scan(&exists); err != nil {
		return err
	}
	if exists {
		return domain.ErrVersionConflict
	}
	return domain.ErrPayoutNotFound
}

// Helper functions

func scanPayoutRow(row pgx.Row) (*domain.Payout, error) {
	var (
		id                               pgtype.UUID
		scheduledDate                    pgtype.Timestamptz
		amount                           pgtype.Numeric
		currency, status                 string
		nextRetryAt                      pgtype.Timestamptz
		failureReason, transferReference pgtype.Text
		processedAt, completedAt         pgtype.Timestamptz
		createdAt, updatedAt             pgtype.Timestamptz
		storeID, retryCount, version     int32
	)
	err := row.Scan(&id, &storeID, &scheduledDate, &amount, &currency, &status,
		&retryCount, &nextRetryAt, &failureReason, &transferReference,
		&processedAt, &completedAt, &version, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	payout := &domain.Payout{
		ID:            uuid.UUID(id.Bytes),
		StoreID:       storeID,
		ScheduledDate: scheduledDate.Time,
		Amount:        pgNumericToDecimal(amount),
		Currency:      currency,
		Status:        domain.PayoutStatus(status),
		RetryCount:    retryCount,
		Version:       version,
		CreatedAt:     createdAt.Time,
		UpdatedAt:     updatedAt.Time,
	}
	if nextRetryAt.Valid {
		payout.NextRetryAt = &nextRetryAt.Time
	}
	if failureReason.Valid {
		payout.FailureReason = &failureReason.String
	}
	if transferReference.Valid {
		payout.TransferReference = &transferReference.String
	}
	if processedAt.Valid {
		payout.ProcessedAt = &processedAt.Time
	}
	if completedAt.Valid {
		payout.CompletedAt = &completedAt.Time
	}
	return payout, nil
}

func collectPayoutRows(rows pgx.Rows) ([]*domain.Payout, error) {
	result := []*domain.Payout{}
	for rows.Next() {
		payout, err := scanPayoutRow(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, payout)
	}
	return result, rows.Err()
}
