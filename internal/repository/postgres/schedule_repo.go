package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/soukly/soukly-backend/internal/domain"
)

// ScheduleRepository implements domain.ScheduleRepository using PostgreSQL
type ScheduleRepository struct {
	pool *pgxpool.Pool
}

// NewScheduleRepository creates a new ScheduleRepository
func NewScheduleRepository(pool *pgxpool.Pool) *ScheduleRepository {
	return &ScheduleRepository{pool: pool}
}

const scheduleColumns = `id, store_id, frequency, day_of_week, day_of_month,
	minimum_threshold, last_run_at, created_at, updated_at`

// Upsert creates or wholesale-replaces a store's schedule. The last run
// stamp survives replacement so a new cadence does not re-run the old one.
func (r *ScheduleRepository) Upsert(ctx context.Context, schedule *domain.PayoutSchedule) (*domain.PayoutSchedule, error) {
	threshold, err := decimalToPgNumeric(schedule.MinimumThreshold)
	if err != nil {
		return nil, fmt.Errorf("invalid minimum threshold: %w", err)
	}

	var dayOfWeek, dayOfMonth pgtype.Int4
	if schedule.DayOfWeek != nil {
		dayOfWeek.Int32 = *schedule.DayOfWeek
		dayOfWeek.Valid = true
	}
	if schedule.DayOfMonth != nil {
		dayOfMonth.Int32 = *schedule.DayOfMonth
		dayOfMonth.Valid = true
	}

	row := r.pool.QueryRow(ctx, `
		INSERT INTO payout_schedules (store_id, frequency, day_of_week, day_of_month, minimum_threshold)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (store_id) DO UPDATE
		SET frequency = EXCLUDED.frequency,
		    day_of_week = EXCLUDED.day_of_week,
		    day_of_month = EXCLUDED.day_of_month,
		    minimum_threshold = EXCLUDED.minimum_threshold,
		    updated_at = now()
		RETURNING `+scheduleColumns,
		schedule.StoreID, string(schedule.Frequency), dayOfWeek, dayOfMonth, threshold)

	return scanScheduleRow(row)
}

// GetByStore retrieves a store's schedule
func (r *ScheduleRepository) GetByStore(ctx context.Context, storeID int32) (*domain.PayoutSchedule, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+scheduleColumns+` FROM payout_schedules WHERE store_id = $1`, storeID)
	schedule, err := scanScheduleRow(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, domain.ErrScheduleNotFound
		}
		return nil, err
	}
	return schedule, nil
}

// GetAll retrieves every schedule
func (r *ScheduleRepository) GetAll(ctx context.Context) ([]*domain.PayoutSchedule, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+scheduleColumns+` FROM payout_schedules ORDER BY store_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []*domain.PayoutSchedule{}
	for rows.Next() {
		schedule, err := scanScheduleRow(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, schedule)
	}
	return result, rows.Err()
}

// StoresWithSchedule returns the set of store ids carrying a schedule
func (r *ScheduleRepository) StoresWithSchedule(ctx context.Context) (map[int32]bool, error) {
	rows, err := r.pool.Query(ctx, `SELECT store_id FROM payout_schedules`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stores := make(map[int32]bool)
	for rows.Next() {
		var storeID int32
		if err := rows.Scan(&storeID); err != nil {
			return nil, err
		}
		stores[storeID] = true
	}
	return stores, rows.Err()
}

// UpdateLastRun stamps the schedule's last payout run
func (r *ScheduleRepository) UpdateLastRun(ctx context.Context, storeID int32, lastRunAt time.Time) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE payout_schedules
		SET last_run_at = $2, updated_at = now()
		WHERE store_id = $1`,
		storeID, pgTimestamptz(lastRunAt))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrScheduleNotFound
	}
	return nil
}

func scanScheduleRow(row pgx.Row) (*domain.PayoutSchedule, error) {
	var (
		frequency             string
		dayOfWeek, dayOfMonth pgtype.Int4
		threshold             pgtype.Numeric
		lastRunAt             pgtype.Timestamptz
		createdAt, updatedAt  pgtype.Timestamptz
	)
	schedule := &domain.PayoutSchedule{}
	err := row.Scan(&schedule.ID, &schedule.StoreID, &frequency, &dayOfWeek, &dayOfMonth,
		&threshold, &lastRunAt, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	schedule.Frequency = domain.Frequency(frequency)
	schedule.MinimumThreshold = pgNumericToDecimal(threshold)
	schedule.CreatedAt = createdAt.Time
	schedule.UpdatedAt = updatedAt.Time
	if dayOfWeek.Valid {
		schedule.DayOfWeek = &dayOfWeek.Int32
	}
	if dayOfMonth.Valid {
		schedule.DayOfMonth = &dayOfMonth.Int32
	}
	if lastRunAt.Valid {
		schedule.LastRunAt = &lastRunAt.Time
	}
	return schedule, nil
}
