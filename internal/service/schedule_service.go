package service

import (
	"context"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"github.com/soukly/soukly-backend/internal/domain"
)

// ScheduleService manages per-store payout schedules and generates the
// scheduled payouts that are due.
type ScheduleService struct {
	scheduleRepo  domain.ScheduleRepository
	escrowRepo    domain.EscrowRepository
	payoutService *PayoutService
	clock         domain.Clock
	retryPolicy   domain.RetryPolicy
}

// NewScheduleService creates a new ScheduleService
func NewScheduleService(
	scheduleRepo domain.ScheduleRepository,
	escrowRepo domain.EscrowRepository,
	payoutService *PayoutService,
	clock domain.Clock,
	retryPolicy domain.RetryPolicy,
) *ScheduleService {
	return &ScheduleService{
		scheduleRepo:  scheduleRepo,
		escrowRepo:    escrowRepo,
		payoutService: payoutService,
		clock:         clock,
		retryPolicy:   retryPolicy,
	}
}

// UpsertScheduleInput holds the input for creating or replacing a schedule
type UpsertScheduleInput struct {
	Frequency        domain.Frequency
	DayOfWeek        *int32
	DayOfMonth       *int32
	MinimumThreshold decimal.Decimal
}

// Upsert creates or wholesale-replaces a store's payout schedule
func (s *ScheduleService) Upsert(ctx context.Context, storeID int32, input UpsertScheduleInput) (*domain.PayoutSchedule, error) {
	schedule := &domain.PayoutSchedule{
		StoreID:          storeID,
		Frequency:        input.Frequency,
		DayOfWeek:        input.DayOfWeek,
		DayOfMonth:       input.DayOfMonth,
		MinimumThreshold: input.MinimumThreshold,
	}
	if err := schedule.Validate(); err != nil {
		return nil, err
	}
	return s.scheduleRepo.Upsert(ctx, schedule)
}

// GetByStore retrieves a store's schedule
func (s *ScheduleService) GetByStore(ctx context.Context, storeID int32) (*domain.PayoutSchedule, error) {
	return s.scheduleRepo.GetByStore(ctx, storeID)
}

// GenerateScheduledPayouts creates payouts for every schedule that is due
// and whose ripe balance meets the minimum threshold. LastRunAt advances
// only when a payout is actually created, so a below-threshold balance rolls
// into the next due day undiminished. Per-store failures are isolated.
// Returns the number of payouts created.
func (s *ScheduleService) GenerateScheduledPayouts(ctx context.Context) (int, error) {
	now := s.clock.Now()

	schedules, err := s.scheduleRepo.GetAll(ctx)
	if err != nil {
		return 0, err
	}

	created := 0
	for _, schedule := range schedules {
		if !schedule.IsDue(now) {
			continue
		}

		ripe, err := s.escrowRepo.ListRipeByStore(ctx, schedule.StoreID, now, s.retryPolicy.MaxRetries)
		if err != nil {
			log.Warn().
				Err(err).
				Int32("store_id", schedule.StoreID).
				Msg("Failed to load ripe balance for scheduled payout")
			continue
		}
		if len(ripe) == 0 {
			continue
		}

		total := decimal.Zero
		for _, tx := range ripe {
			total = total.Add(tx.NetAmount)
		}
		if total.LessThan(schedule.MinimumThreshold) {
			continue
		}

		if _, err := s.payoutService.CreateForStore(ctx, schedule.StoreID, ripe); err != nil {
			log.Warn().
				Err(err).
				Int32("store_id", schedule.StoreID).
				Msg("Failed to create scheduled payout")
			continue
		}

		if err := s.scheduleRepo.UpdateLastRun(ctx, schedule.StoreID, now); err != nil {
			log.Error().
				Err(err).
				Int32("store_id", schedule.StoreID).
				Msg("Failed to stamp schedule last run")
		}
		created++
	}
	return created, nil
}
