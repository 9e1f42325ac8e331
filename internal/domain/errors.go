package domain

import "errors"

// Domain errors
var (
	// Validation errors — rejected before any mutation.
	ErrInvalidInput          = errors.New("invalid input")
	ErrInvalidAmount         = errors.New("amount must be positive")
	ErrInvalidFrequency      = errors.New("invalid payout frequency")
	ErrInvalidDayOfWeek      = errors.New("day of week must be between 0 and 6")
	ErrInvalidDayOfMonth     = errors.New("day of month must be between 1 and 28")
	ErrInvalidThreshold      = errors.New("minimum threshold must not be negative")
	ErrRefundExceedsBalance  = errors.New("refund amount exceeds remaining escrow balance")
	ErrPaymentHasNoSubOrders = errors.New("payment has no seller sub-orders")
	ErrAlreadyAllocated      = errors.New("payment is already allocated to escrow")

	// Conflict errors — optimistic-concurrency or illegal state transition.
	ErrVersionConflict   = errors.New("entity was modified concurrently")
	ErrInvalidTransition = errors.New("state transition not allowed")
	ErrNotYetEligible    = errors.New("escrow transaction is not yet eligible for release")
	ErrAlreadyReleased   = errors.New("escrow transaction is already released")

	// Not found
	ErrEscrowTransactionNotFound = errors.New("escrow transaction not found")
	ErrPayoutNotFound            = errors.New("payout not found")
	ErrScheduleNotFound          = errors.New("payout schedule not found")
	ErrPaymentNotFound           = errors.New("payment transaction not found")
	ErrStoreNotFound             = errors.New("store not found")
	ErrSubOrderNotFound          = errors.New("seller sub-order not found")
	ErrAPITokenNotFound          = errors.New("api token not found")
	ErrCommissionRuleNotFound    = errors.New("no commission rule matches the transaction")
	ErrRemittanceNotAvailable    = errors.New("remittance document not available")

	// Integrity errors — fatal for the unit of work, never auto-corrected.
	ErrPayoutAmountMismatch = errors.New("linked escrow sum does not equal payout amount")

	// Processing
	ErrRetriesExhausted = errors.New("payout retry limit exhausted")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrInternalError    = errors.New("internal error")
)

// TransferError wraps a funds-transfer gateway failure so the reason can be
// recorded on the payout before the retry policy takes over.
type TransferError struct {
	Reason string
	Err    error
}

func (e *TransferError) Error() string {
	if e.Err != nil {
		return "funds transfer failed: " + e.Reason + ": " + e.Err.Error()
	}
	return "funds transfer failed: " + e.Reason
}

func (e *TransferError) Unwrap() error { return e.Err }
