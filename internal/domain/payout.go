package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type PayoutStatus string

const (
	PayoutStatusPending    PayoutStatus = "pending"
	PayoutStatusProcessing PayoutStatus = "processing"
	PayoutStatusCompleted  PayoutStatus = "completed"
	PayoutStatusFailed     PayoutStatus = "failed"
)

// payoutTransitions is the single transition table for payouts.
// Failed → Processing is a retry; the reconcile sweep moves payouts stuck in
// Processing to Failed so the ordinary retry machinery owns crash recovery.
var payoutTransitions = map[PayoutStatus][]PayoutStatus{
	PayoutStatusPending:    {PayoutStatusProcessing},
	PayoutStatusProcessing: {PayoutStatusCompleted, PayoutStatusFailed},
	PayoutStatusFailed:     {PayoutStatusProcessing},
	PayoutStatusCompleted:  {},
}

// CanTransitionTo reports whether the status may move to target.
func (s PayoutStatus) CanTransitionTo(target PayoutStatus) bool {
	for _, allowed := range payoutTransitions[s] {
		if allowed == target {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transition is allowed.
func (s PayoutStatus) IsTerminal() bool {
	return len(payoutTransitions[s]) == 0
}

// Payout is one disbursement attempt of a store's eligible escrow balance.
// Amount always equals the sum of the linked escrow transactions' net
// proceeds; the link set is fixed at creation and never partially drawn.
type Payout struct {
	ID                uuid.UUID       `json:"id"`
	StoreID           int32           `json:"storeId"`
	ScheduledDate     time.Time       `json:"scheduledDate"`
	Amount            decimal.Decimal `json:"amount"`
	Currency          string          `json:"currency"`
	Status            PayoutStatus    `json:"status"`
	RetryCount        int32           `json:"retryCount"`
	NextRetryAt       *time.Time      `json:"nextRetryAt,omitempty"`
	FailureReason     *string         `json:"failureReason,omitempty"`
	TransferReference *string         `json:"transferReference,omitempty"`
	ProcessedAt       *time.Time      `json:"processedAt,omitempty"`
	CompletedAt       *time.Time      `json:"completedAt,omitempty"`
	Version           int32           `json:"version"`
	CreatedAt         time.Time       `json:"createdAt"`
	UpdatedAt         time.Time       `json:"updatedAt"`
}

// RetryPolicy bounds automatic re-processing of failed payouts. The first
// failure waits Base; each further failure multiplies the delay by Factor
// (Base * Factor^(retryCount-1)), capped at Max.
type RetryPolicy struct {
	Base       time.Duration
	Factor     int32
	Max        time.Duration
	MaxRetries int32
}

// DefaultRetryPolicy retries up to 5 times, starting an hour after the first
// failure and doubling up to a day between attempts.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Base:       time.Hour,
		Factor:     2,
		Max:        24 * time.Hour,
		MaxRetries: 5,
	}
}

// NextDelay returns the backoff delay for the given retry count (the number
// of failures already recorded).
func (p RetryPolicy) NextDelay(retryCount int32) time.Duration {
	delay := p.Base
	for i := int32(1); i < retryCount; i++ {
		delay *= time.Duration(p.Factor)
		if delay >= p.Max {
			return p.Max
		}
	}
	if delay > p.Max {
		return p.Max
	}
	return delay
}

// Exhausted reports whether the payout has no retries remaining.
func (p RetryPolicy) Exhausted(retryCount int32) bool {
	return retryCount >= p.MaxRetries
}

// PayoutFilters narrows payout listings.
type PayoutFilters struct {
	StoreID  *int32
	Status   *PayoutStatus
	Page     int32
	PageSize int32
}

// PaginatedPayouts is a page of payouts.
type PaginatedPayouts struct {
	Data       []*Payout `json:"data"`
	Page       int32     `json:"page"`
	PageSize   int32     `json:"pageSize"`
	TotalItems int64     `json:"totalItems"`
	TotalPages int32     `json:"totalPages"`
}

// PayoutRepository persists payouts and their escrow links. Creation and
// completion are single transactions: a payout is created together with its
// link set, and completed together with the release of every linked escrow
// transaction, or not at all.
type PayoutRepository interface {
	// CreateWithLinks inserts the payout and its escrow link rows atomically.
	CreateWithLinks(ctx context.Context, payout *Payout, escrowIDs []uuid.UUID) (*Payout, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Payout, error)
	List(ctx context.Context, filters *PayoutFilters) (*PaginatedPayouts, error)

	// ListRetryable returns failed payouts due for another attempt.
	ListRetryable(ctx context.Context, asOf time.Time, maxRetries int32) ([]*Payout, error)
	// ListStaleProcessing returns payouts stuck in processing since before cutoff.
	ListStaleProcessing(ctx context.Context, cutoff time.Time) ([]*Payout, error)
	// ListPending returns pending payouts ready for processing.
	ListPending(ctx context.Context) ([]*Payout, error)

	MarkProcessing(ctx context.Context, id uuid.UUID, processedAt time.Time, version int32) (*Payout, error)
	// CompleteWithReleases finishes the payout and releases all linked escrow
	// transactions in one transaction. escrowVersions carries the version
	// observed for each escrow row; any concurrent change rolls the whole
	// unit back with ErrVersionConflict.
	CompleteWithReleases(ctx context.Context, payout *Payout, transferRef string, completedAt time.Time, escrowVersions map[uuid.UUID]int32) (*Payout, error)
	MarkFailed(ctx context.Context, id uuid.UUID, reason string, retryCount int32, nextRetryAt *time.Time, version int32) (*Payout, error)
}
