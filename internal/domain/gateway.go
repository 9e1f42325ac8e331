package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// CommissionQuery identifies the rule context for a sub-order: the rate may
// vary by transaction date, store, category, and seller tier.
type CommissionQuery struct {
	TransactionDate time.Time
	StoreID         int32
	CategoryID      *int32
	SellerTier      SellerTier
}

// CommissionResolver supplies the marketplace commission rate for a
// transaction. External collaborator; returns ErrCommissionRuleNotFound when
// no rule applies.
type CommissionResolver interface {
	Resolve(ctx context.Context, query CommissionQuery) (decimal.Decimal, error)
}

// TransferRequest is one disbursement handed to the funds gateway.
type TransferRequest struct {
	StoreID     int32
	Destination string
	Amount      decimal.Decimal
	Currency    string
	// Reference is the payout id, passed through for gateway-side idempotency.
	Reference string
}

// TransferResult reports a successful transfer.
type TransferResult struct {
	Reference string
}

// FundsTransferGateway executes the external disbursement. Failures must be
// returned as *TransferError so the reason lands on the payout record.
type FundsTransferGateway interface {
	Transfer(ctx context.Context, req TransferRequest) (*TransferResult, error)
}
