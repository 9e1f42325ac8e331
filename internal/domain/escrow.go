package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type EscrowStatus string

const (
	EscrowStatusHeld              EscrowStatus = "held"
	EscrowStatusEligibleForPayout EscrowStatus = "eligible_for_payout"
	EscrowStatusReleased          EscrowStatus = "released"
	EscrowStatusReturnedToBuyer   EscrowStatus = "returned_to_buyer"
	EscrowStatusPartiallyReturned EscrowStatus = "partially_returned"
)

// escrowTransitions is the single transition table for escrow transactions.
// Releases and refunds of a partially returned transaction cover the
// unrefunded remainder.
var escrowTransitions = map[EscrowStatus][]EscrowStatus{
	EscrowStatusHeld:              {EscrowStatusEligibleForPayout, EscrowStatusReturnedToBuyer, EscrowStatusPartiallyReturned},
	EscrowStatusEligibleForPayout: {EscrowStatusReleased, EscrowStatusReturnedToBuyer, EscrowStatusPartiallyReturned},
	EscrowStatusPartiallyReturned: {EscrowStatusReleased, EscrowStatusReturnedToBuyer, EscrowStatusPartiallyReturned},
	EscrowStatusReleased:          {},
	EscrowStatusReturnedToBuyer:   {},
}

// CanTransitionTo reports whether the status may move to target.
func (s EscrowStatus) CanTransitionTo(target EscrowStatus) bool {
	for _, allowed := range escrowTransitions[s] {
		if allowed == target {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transition is allowed.
func (s EscrowStatus) IsTerminal() bool {
	return len(escrowTransitions[s]) == 0
}

// EscrowTransaction holds a buyer-paid amount in trust for one seller
// sub-order until it is released to the store or returned to the buyer.
// NetAmount always equals GrossAmount - CommissionAmount - RefundedAmount;
// the commission is fixed at allocation time and never recomputed.
type EscrowTransaction struct {
	ID                   uuid.UUID       `json:"id"`
	PaymentTransactionID uuid.UUID       `json:"paymentTransactionId"`
	SubOrderID           uuid.UUID       `json:"subOrderId"`
	StoreID              int32           `json:"storeId"`
	GrossAmount          decimal.Decimal `json:"grossAmount"`
	CommissionAmount     decimal.Decimal `json:"commissionAmount"`
	NetAmount            decimal.Decimal `json:"netAmount"`
	RefundedAmount       decimal.Decimal `json:"refundedAmount"`
	Status               EscrowStatus    `json:"status"`
	EligibleAt           *time.Time      `json:"eligibleAt,omitempty"`
	PayoutID             *uuid.UUID      `json:"payoutId,omitempty"`
	ReleasedAt           *time.Time      `json:"releasedAt,omitempty"`
	RefundNotes          *string         `json:"refundNotes,omitempty"`
	Version              int32           `json:"version"`
	CreatedAt            time.Time       `json:"createdAt"`
	UpdatedAt            time.Time       `json:"updatedAt"`
}

// Releasable reports whether the transaction may be released as of the given
// instant. A transaction is releasable once it is payout-eligible and its
// grace period has elapsed.
func (e *EscrowTransaction) Releasable(asOf time.Time) error {
	if e.Status == EscrowStatusReleased {
		return ErrAlreadyReleased
	}
	if !e.Status.CanTransitionTo(EscrowStatusReleased) {
		return ErrInvalidTransition
	}
	if e.EligibleAt == nil || e.EligibleAt.After(asOf) {
		return ErrNotYetEligible
	}
	return nil
}

// RefundInput captures changes applied to an escrow transaction by a buyer
// refund. Produced by ApplyRefund, persisted by the repository.
type RefundInput struct {
	Status         EscrowStatus
	RefundedAmount decimal.Decimal
	NetAmount      decimal.Decimal
	Notes          *string
}

// ApplyRefund validates a refund against the remaining net balance and
// returns the resulting state. It does not mutate the receiver.
func (e *EscrowTransaction) ApplyRefund(amount decimal.Decimal, notes *string) (*RefundInput, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, ErrInvalidAmount
	}
	if e.Status == EscrowStatusReleased {
		return nil, ErrAlreadyReleased
	}
	if !e.Status.CanTransitionTo(EscrowStatusReturnedToBuyer) {
		return nil, ErrInvalidTransition
	}
	if amount.GreaterThan(e.NetAmount) {
		return nil, ErrRefundExceedsBalance
	}

	target := EscrowStatusPartiallyReturned
	if amount.Equal(e.NetAmount) {
		target = EscrowStatusReturnedToBuyer
	}
	return &RefundInput{
		Status:         target,
		RefundedAmount: e.RefundedAmount.Add(amount),
		NetAmount:      e.NetAmount.Sub(amount),
		Notes:          notes,
	}, nil
}

// EscrowFilters narrows escrow transaction listings.
type EscrowFilters struct {
	StoreID  *int32
	Status   *EscrowStatus
	Page     int32
	PageSize int32
}

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// PaginatedEscrowTransactions is a page of escrow transactions.
type PaginatedEscrowTransactions struct {
	Data       []*EscrowTransaction `json:"data"`
	Page       int32                `json:"page"`
	PageSize   int32                `json:"pageSize"`
	TotalItems int64                `json:"totalItems"`
	TotalPages int32                `json:"totalPages"`
}

// StoreBalance summarizes escrow custody for a store.
type StoreBalance struct {
	StoreID         int32           `json:"storeId"`
	HeldAmount      decimal.Decimal `json:"heldAmount"`
	EligibleAmount  decimal.Decimal `json:"eligibleAmount"`
	EligibleCount   int32           `json:"eligibleCount"`
	PendingPayout   decimal.Decimal `json:"pendingPayout"`
	ReleasedToDate  decimal.Decimal `json:"releasedToDate"`
	RefundedToDate  decimal.Decimal `json:"refundedToDate"`
}

// EscrowRepository persists escrow transactions. All state-mutating methods
// take the caller's observed version and fail with ErrVersionConflict when
// the row has moved on.
type EscrowRepository interface {
	// AllocatePayment stamps the payment as allocated and inserts the escrow
	// rows in one transaction. Returns ErrAlreadyAllocated when the payment
	// was allocated by a concurrent caller.
	AllocatePayment(ctx context.Context, paymentID uuid.UUID, allocatedAt time.Time, transactions []*EscrowTransaction) ([]*EscrowTransaction, error)
	GetByID(ctx context.Context, id uuid.UUID) (*EscrowTransaction, error)
	GetBySubOrder(ctx context.Context, subOrderID uuid.UUID) (*EscrowTransaction, error)
	List(ctx context.Context, filters *EscrowFilters) (*PaginatedEscrowTransactions, error)
	ListByPayout(ctx context.Context, payoutID uuid.UUID) ([]*EscrowTransaction, error)

	// ListRipe returns transactions whose grace period has elapsed and that
	// are not claimed by a live payout (pending, processing, or failed with
	// retries remaining).
	ListRipe(ctx context.Context, asOf time.Time, maxRetries int32) ([]*EscrowTransaction, error)
	ListRipeByStore(ctx context.Context, storeID int32, asOf time.Time, maxRetries int32) ([]*EscrowTransaction, error)

	MarkEligible(ctx context.Context, id uuid.UUID, eligibleAt time.Time, version int32) (*EscrowTransaction, error)
	Refund(ctx context.Context, id uuid.UUID, refund *RefundInput, version int32) (*EscrowTransaction, error)
	GetStoreBalance(ctx context.Context, storeID int32, asOf time.Time, maxRetries int32) (*StoreBalance, error)
}
