package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"github.com/soukly/soukly-backend/internal/domain"
	"github.com/soukly/soukly-backend/internal/websocket"
)

// currencyPrecision is the scale commission and net amounts are rounded to.
const currencyPrecision = 2

// EscrowService owns the escrow ledger: allocation of captured payments into
// per-seller escrow transactions and the lifecycle up to release or refund.
type EscrowService struct {
	paymentRepo    domain.PaymentRepository
	escrowRepo     domain.EscrowRepository
	scheduleRepo   domain.ScheduleRepository
	commission     domain.CommissionResolver
	payoutService  *PayoutService
	clock          domain.Clock
	retryPolicy    domain.RetryPolicy
	eventPublisher websocket.EventPublisher
}

// NewEscrowService creates a new EscrowService
func NewEscrowService(
	paymentRepo domain.PaymentRepository,
	escrowRepo domain.EscrowRepository,
	scheduleRepo domain.ScheduleRepository,
	commission domain.CommissionResolver,
	payoutService *PayoutService,
	clock domain.Clock,
	retryPolicy domain.RetryPolicy,
) *EscrowService {
	return &EscrowService{
		paymentRepo:   paymentRepo,
		escrowRepo:    escrowRepo,
		scheduleRepo:  scheduleRepo,
		commission:    commission,
		payoutService: payoutService,
		clock:         clock,
		retryPolicy:   retryPolicy,
	}
}

// SetEventPublisher sets the event publisher for real-time updates
func (s *EscrowService) SetEventPublisher(publisher websocket.EventPublisher) {
	s.eventPublisher = publisher
}

// publishEvent publishes a WebSocket event if a publisher is configured
func (s *EscrowService) publishEvent(storeID int32, event websocket.Event) {
	if s.eventPublisher != nil {
		s.eventPublisher.Publish(storeID, event)
	}
}

// CreateAllocations splits a captured payment into one held escrow
// transaction per seller sub-order, resolving the commission rate for each.
// A payment is allocated at most once; re-invocation fails with
// ErrAlreadyAllocated. The whole allocation is written atomically.
func (s *EscrowService) CreateAllocations(ctx context.Context, paymentID uuid.UUID) ([]*domain.EscrowTransaction, error) {
	payment, err := s.paymentRepo.GetByID(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if payment.AllocatedAt != nil {
		return nil, domain.ErrAlreadyAllocated
	}
	if len(payment.SubOrders) == 0 {
		return nil, domain.ErrPaymentHasNoSubOrders
	}

	now := s.clock.Now()
	transactions := make([]*domain.EscrowTransaction, 0, len(payment.SubOrders))
	for _, sub := range payment.SubOrders {
		if sub.Amount.LessThanOrEqual(decimal.Zero) {
			return nil, domain.ErrInvalidAmount
		}

		rate, err := s.commission.Resolve(ctx, domain.CommissionQuery{
			TransactionDate: payment.TransactionDate,
			StoreID:         sub.StoreID,
			CategoryID:      sub.CategoryID,
			SellerTier:      sub.SellerTier,
		})
		if err != nil {
			return nil, err
		}

		// Half-up rounding at currency precision; the seller carries the
		// rounding remainder.
		commissionAmount := sub.Amount.Mul(rate).Round(currencyPrecision)
		transactions = append(transactions, &domain.EscrowTransaction{
			ID:                   uuid.New(),
			PaymentTransactionID: payment.ID,
			SubOrderID:           sub.ID,
			StoreID:              sub.StoreID,
			GrossAmount:          sub.Amount,
			CommissionAmount:     commissionAmount,
			NetAmount:            sub.Amount.Sub(commissionAmount),
			RefundedAmount:       decimal.Zero,
			Status:               domain.EscrowStatusHeld,
		})
	}

	created, err := s.escrowRepo.AllocatePayment(ctx, payment.ID, now, transactions)
	if err != nil {
		return nil, err
	}

	for _, tx := range created {
		s.publishEvent(tx.StoreID, websocket.EscrowAllocated(tx))
	}
	return created, nil
}

// MarkEligible stamps the payout grace deadline once a sub-order's
// fulfillment reaches a delivered state. A partially returned transaction
// stays payable for its remainder, so it takes the stamp too if delivery
// lands after the refund. Fulfillment events are re-delivered, so anything
// already stamped or fully settled is a no-op, not an error.
func (s *EscrowService) MarkEligible(ctx context.Context, subOrderID uuid.UUID, daysUntilEligible int32) (*domain.EscrowTransaction, error) {
	if daysUntilEligible < 0 {
		return nil, domain.ErrInvalidInput
	}

	tx, err := s.escrowRepo.GetBySubOrder(ctx, subOrderID)
	if err != nil {
		return nil, err
	}
	if tx.EligibleAt != nil {
		return tx, nil
	}
	if tx.Status != domain.EscrowStatusHeld && tx.Status != domain.EscrowStatusPartiallyReturned {
		return tx, nil
	}

	eligibleAt := s.clock.Now().AddDate(0, 0, int(daysUntilEligible))
	updated, err := s.escrowRepo.MarkEligible(ctx, tx.ID, eligibleAt, tx.Version)
	if err != nil {
		return nil, err
	}

	s.publishEvent(updated.StoreID, websocket.EscrowEligible(updated))
	return updated, nil
}

// ReturnToBuyer refunds part or all of a transaction's remaining net
// proceeds back to the buyer. Released transactions cannot be refunded.
func (s *EscrowService) ReturnToBuyer(ctx context.Context, id uuid.UUID, amount decimal.Decimal, notes *string) (*domain.EscrowTransaction, error) {
	tx, err := s.escrowRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	refund, err := tx.ApplyRefund(amount, notes)
	if err != nil {
		return nil, err
	}

	updated, err := s.escrowRepo.Refund(ctx, id, refund, tx.Version)
	if err != nil {
		return nil, err
	}

	s.publishEvent(updated.StoreID, websocket.EscrowRefunded(updated))
	return updated, nil
}

// ProcessEligiblePayouts sweeps all ripe escrow transactions and creates
// pending payouts per store. Stores with an active schedule are skipped here;
// their payouts are generated on schedule. One store's failure does not
// abort the sweep for the others. Returns the number of transactions
// claimed into payouts.
func (s *EscrowService) ProcessEligiblePayouts(ctx context.Context) (int, error) {
	now := s.clock.Now()

	ripe, err := s.escrowRepo.ListRipe(ctx, now, s.retryPolicy.MaxRetries)
	if err != nil {
		return 0, err
	}
	if len(ripe) == 0 {
		return 0, nil
	}

	scheduled, err := s.scheduleRepo.StoresWithSchedule(ctx)
	if err != nil {
		return 0, err
	}

	byStore := make(map[int32][]*domain.EscrowTransaction)
	for _, tx := range ripe {
		if scheduled[tx.StoreID] {
			continue
		}
		byStore[tx.StoreID] = append(byStore[tx.StoreID], tx)
	}

	claimed := 0
	for storeID, transactions := range byStore {
		if _, err := s.payoutService.CreateForStore(ctx, storeID, transactions); err != nil {
			log.Warn().
				Err(err).
				Int32("store_id", storeID).
				Int("transactions", len(transactions)).
				Msg("Failed to create payout during eligibility sweep")
			continue
		}
		claimed += len(transactions)
	}
	return claimed, nil
}

// GetByID retrieves an escrow transaction
func (s *EscrowService) GetByID(ctx context.Context, id uuid.UUID) (*domain.EscrowTransaction, error) {
	return s.escrowRepo.GetByID(ctx, id)
}

// List retrieves escrow transactions with filters and pagination
func (s *EscrowService) List(ctx context.Context, filters *domain.EscrowFilters) (*domain.PaginatedEscrowTransactions, error) {
	if filters == nil {
		filters = &domain.EscrowFilters{}
	}
	if filters.Page <= 0 {
		filters.Page = 1
	}
	if filters.PageSize <= 0 {
		filters.PageSize = domain.DefaultPageSize
	}
	if filters.PageSize > domain.MaxPageSize {
		filters.PageSize = domain.MaxPageSize
	}
	return s.escrowRepo.List(ctx, filters)
}

// GetStoreBalance summarizes a store's escrow custody as of now
func (s *EscrowService) GetStoreBalance(ctx context.Context, storeID int32) (*domain.StoreBalance, error) {
	return s.escrowRepo.GetStoreBalance(ctx, storeID, s.clock.Now(), s.retryPolicy.MaxRetries)
}
