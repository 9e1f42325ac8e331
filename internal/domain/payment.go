package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SellerTier feeds commission resolution; rates may differ per tier.
type SellerTier string

const (
	SellerTierStandard SellerTier = "standard"
	SellerTierPlus     SellerTier = "plus"
	SellerTierPremium  SellerTier = "premium"
)

// SellerSubOrder is the slice of a payment attributable to one store.
type SellerSubOrder struct {
	ID         uuid.UUID       `json:"id"`
	PaymentID  uuid.UUID       `json:"paymentId"`
	StoreID    int32           `json:"storeId"`
	CategoryID *int32          `json:"categoryId,omitempty"`
	SellerTier SellerTier      `json:"sellerTier"`
	Amount     decimal.Decimal `json:"amount"`
}

// PaymentTransaction is a completed, captured buyer payment. The capture
// gateway owns these rows; the escrow ledger only reads them and stamps
// AllocatedAt exactly once.
type PaymentTransaction struct {
	ID              uuid.UUID         `json:"id"`
	Currency        string            `json:"currency"`
	Amount          decimal.Decimal   `json:"amount"`
	TransactionDate time.Time         `json:"transactionDate"`
	AllocatedAt     *time.Time        `json:"allocatedAt,omitempty"`
	SubOrders       []*SellerSubOrder `json:"subOrders"`
}

// PaymentRepository reads completed payments and their sub-orders. The
// allocation stamp itself is written by EscrowRepository.AllocatePayment so
// the guard and the escrow rows share one transaction.
type PaymentRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*PaymentTransaction, error)
}
