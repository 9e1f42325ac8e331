package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

type Frequency string

const (
	FrequencyDaily   Frequency = "daily"
	FrequencyWeekly  Frequency = "weekly"
	FrequencyMonthly Frequency = "monthly"
)

// PayoutSchedule configures when a store's eligible balance is disbursed.
// At most one schedule exists per store; upserts replace it wholesale.
// Day-of-month is capped at 28 to avoid month-length ambiguity.
type PayoutSchedule struct {
	ID               int32           `json:"id"`
	StoreID          int32           `json:"storeId"`
	Frequency        Frequency       `json:"frequency"`
	DayOfWeek        *int32          `json:"dayOfWeek,omitempty"`
	DayOfMonth       *int32          `json:"dayOfMonth,omitempty"`
	MinimumThreshold decimal.Decimal `json:"minimumThreshold"`
	LastRunAt        *time.Time      `json:"lastRunAt,omitempty"`
	CreatedAt        time.Time       `json:"createdAt"`
	UpdatedAt        time.Time       `json:"updatedAt"`
}

// Validate checks frequency-specific parameters.
func (s *PayoutSchedule) Validate() error {
	switch s.Frequency {
	case FrequencyDaily:
	case FrequencyWeekly:
		if s.DayOfWeek == nil || *s.DayOfWeek < 0 || *s.DayOfWeek > 6 {
			return ErrInvalidDayOfWeek
		}
	case FrequencyMonthly:
		if s.DayOfMonth == nil || *s.DayOfMonth < 1 || *s.DayOfMonth > 28 {
			return ErrInvalidDayOfMonth
		}
	default:
		return ErrInvalidFrequency
	}
	if s.MinimumThreshold.IsNegative() {
		return ErrInvalidThreshold
	}
	return nil
}

// IsDue reports whether a payout run is due as of the given instant. Pure:
// the result depends only on the schedule and asOf.
//
// Daily runs once per calendar day; weekly on the configured weekday unless
// the last run was within the same 7-day window; monthly on the configured
// day unless the last run was in the same calendar month.
func (s *PayoutSchedule) IsDue(asOf time.Time) bool {
	switch s.Frequency {
	case FrequencyDaily:
		if s.LastRunAt == nil {
			return true
		}
		return priorCalendarDay(*s.LastRunAt, asOf)
	case FrequencyWeekly:
		if s.DayOfWeek == nil || int32(asOf.Weekday()) != *s.DayOfWeek {
			return false
		}
		if s.LastRunAt == nil {
			return true
		}
		return asOf.Sub(*s.LastRunAt) > 6*24*time.Hour
	case FrequencyMonthly:
		if s.DayOfMonth == nil || int32(asOf.Day()) != *s.DayOfMonth {
			return false
		}
		if s.LastRunAt == nil {
			return true
		}
		last := *s.LastRunAt
		return last.Year() < asOf.Year() || (last.Year() == asOf.Year() && last.Month() < asOf.Month())
	}
	return false
}

func priorCalendarDay(last, asOf time.Time) bool {
	ly, lm, ld := last.Date()
	ay, am, ad := asOf.Date()
	if ly != ay {
		return ly < ay
	}
	if lm != am {
		return lm < am
	}
	return ld < ad
}

// ScheduleRepository persists payout schedules.
type ScheduleRepository interface {
	Upsert(ctx context.Context, schedule *PayoutSchedule) (*PayoutSchedule, error)
	GetByStore(ctx context.Context, storeID int32) (*PayoutSchedule, error)
	GetAll(ctx context.Context) ([]*PayoutSchedule, error)
	// StoresWithSchedule returns the set of store ids carrying an active
	// schedule; the eligibility sweep skips these.
	StoresWithSchedule(ctx context.Context) (map[int32]bool, error)
	UpdateLastRun(ctx context.Context, storeID int32, lastRunAt time.Time) error
}
