package domain

import "context"

// Store is the seller-side party a payout is disbursed to. The marketplace's
// store management owns these rows; the payout engine reads the destination.
type Store struct {
	ID                 int32      `json:"id"`
	Name               string     `json:"name"`
	PaymentDestination string     `json:"paymentDestination"`
	Currency           string     `json:"currency"`
	SellerTier         SellerTier `json:"sellerTier"`
	IsActive           bool       `json:"isActive"`
}

// StoreRepository reads store payout destinations.
type StoreRepository interface {
	GetByID(ctx context.Context, id int32) (*Store, error)
}
