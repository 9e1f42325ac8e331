package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"github.com/soukly/soukly-backend/internal/domain"
	"github.com/soukly/soukly-backend/internal/repository/storage"
	"github.com/soukly/soukly-backend/internal/websocket"
)

// PayoutService drives disbursements: it turns ripe escrow balances into
// pending payouts, pushes them through the external transfer gateway, and
// owns the retry machinery for failures.
type PayoutService struct {
	payoutRepo     domain.PayoutRepository
	escrowRepo     domain.EscrowRepository
	storeRepo      domain.StoreRepository
	gateway        domain.FundsTransferGateway
	clock          domain.Clock
	retryPolicy    domain.RetryPolicy
	staleTimeout   time.Duration
	eventPublisher websocket.EventPublisher
	reportStore    storage.ReportStore
}

// NewPayoutService creates a new PayoutService
func NewPayoutService(
	payoutRepo domain.PayoutRepository,
	escrowRepo domain.EscrowRepository,
	storeRepo domain.StoreRepository,
	gateway domain.FundsTransferGateway,
	clock domain.Clock,
	retryPolicy domain.RetryPolicy,
	staleTimeout time.Duration,
) *PayoutService {
	if staleTimeout <= 0 {
		staleTimeout = 30 * time.Minute
	}
	return &PayoutService{
		payoutRepo:   payoutRepo,
		escrowRepo:   escrowRepo,
		storeRepo:    storeRepo,
		gateway:      gateway,
		clock:        clock,
		retryPolicy:  retryPolicy,
		staleTimeout: staleTimeout,
	}
}

// SetEventPublisher sets the event publisher for real-time updates
func (s *PayoutService) SetEventPublisher(publisher websocket.EventPublisher) {
	s.eventPublisher = publisher
}

// SetReportStore sets the remittance archive for completed payouts
func (s *PayoutService) SetReportStore(store storage.ReportStore) {
	s.reportStore = store
}

// publishEvent publishes a WebSocket event if a publisher is configured
func (s *PayoutService) publishEvent(storeID int32, event websocket.Event) {
	if s.eventPublisher != nil {
		s.eventPublisher.Publish(storeID, event)
	}
}

// CreateForStore creates one pending payout claiming the given escrow
// transactions. The payout amount is the sum of their net proceeds and the
// link set is fixed here; the transfer later draws exactly this set.
func (s *PayoutService) CreateForStore(ctx context.Context, storeID int32, transactions []*domain.EscrowTransaction) (*domain.Payout, error) {
	if len(transactions) == 0 {
		return nil, domain.ErrInvalidInput
	}

	store, err := s.storeRepo.GetByID(ctx, storeID)
	if err != nil {
		return nil, err
	}

	amount := decimal.Zero
	escrowIDs := make([]uuid.UUID, 0, len(transactions))
	for _, tx := range transactions {
		if tx.StoreID != storeID {
			return nil, domain.ErrInvalidInput
		}
		amount = amount.Add(tx.NetAmount)
		escrowIDs = append(escrowIDs, tx.ID)
	}

	now := s.clock.Now()
	payout := &domain.Payout{
		ID:            uuid.New(),
		StoreID:       storeID,
		ScheduledDate: now,
		Amount:        amount,
		Currency:      store.Currency,
		Status:        domain.PayoutStatusPending,
	}

	created, err := s.payoutRepo.CreateWithLinks(ctx, payout, escrowIDs)
	if err != nil {
		return nil, err
	}

	s.publishEvent(storeID, websocket.PayoutCreated(created))
	return created, nil
}

// Process pushes one payout through the transfer gateway. On success the
// payout completes and every linked escrow transaction is released in the
// same database transaction. On failure the payout moves to failed with an
// exponential-backoff retry slot; the escrow rows stay claimed and eligible.
//
// The version token taken when the payout is read guards against a
// concurrent processor: the loser of the race gets ErrVersionConflict and
// walks away without a second transfer.
func (s *PayoutService) Process(ctx context.Context, id uuid.UUID) (*domain.Payout, error) {
	payout, err := s.payoutRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if !payout.Status.CanTransitionTo(domain.PayoutStatusProcessing) {
		return nil, domain.ErrInvalidTransition
	}
	if payout.Status == domain.PayoutStatusFailed && s.retryPolicy.Exhausted(payout.RetryCount) {
		return nil, domain.ErrRetriesExhausted
	}

	now := s.clock.Now()
	payout, err = s.payoutRepo.MarkProcessing(ctx, id, now, payout.Version)
	if err != nil {
		return nil, err
	}

	linked, err := s.escrowRepo.ListByPayout(ctx, id)
	if err != nil {
		return nil, err
	}

	// The link set is fixed at creation; a sum mismatch means the ledger
	// moved underneath the payout and no transfer may happen.
	linkedSum := decimal.Zero
	for _, tx := range linked {
		linkedSum = linkedSum.Add(tx.NetAmount)
	}
	if !linkedSum.Equal(payout.Amount) {
		reason := fmt.Sprintf("linked escrow sum %s does not match payout amount %s", linkedSum.String(), payout.Amount.String())
		s.failPayout(ctx, payout, reason, nil)
		return nil, domain.ErrPayoutAmountMismatch
	}

	for _, tx := range linked {
		if err := tx.Releasable(now); err != nil {
			reason := fmt.Sprintf("escrow transaction %s not releasable: %s", tx.ID, err.Error())
			var retryAt *time.Time
			if !s.retryPolicy.Exhausted(payout.RetryCount + 1) {
				at := now.Add(s.retryPolicy.NextDelay(payout.RetryCount + 1))
				retryAt = &at
			}
			s.failPayout(ctx, payout, reason, retryAt)
			return nil, err
		}
	}

	store, err := s.storeRepo.GetByID(ctx, payout.StoreID)
	if err != nil {
		return nil, err
	}

	result, err := s.gateway.Transfer(ctx, domain.TransferRequest{
		StoreID:     payout.StoreID,
		Destination: store.PaymentDestination,
		Amount:      payout.Amount,
		Currency:    payout.Currency,
		Reference:   payout.ID.String(),
	})
	if err != nil {
		reason := err.Error()
		var transferErr *domain.TransferError
		if errors.As(err, &transferErr) {
			reason = transferErr.Reason
		}
		var retryAt *time.Time
		if !s.retryPolicy.Exhausted(payout.RetryCount + 1) {
			at := now.Add(s.retryPolicy.NextDelay(payout.RetryCount + 1))
			retryAt = &at
		}
		s.failPayout(ctx, payout, reason, retryAt)
		return nil, err
	}

	escrowVersions := make(map[uuid.UUID]int32, len(linked))
	for _, tx := range linked {
		escrowVersions[tx.ID] = tx.Version
	}

	completed, err := s.payoutRepo.CompleteWithReleases(ctx, payout, result.Reference, now, escrowVersions)
	if err != nil {
		return nil, err
	}

	s.publishEvent(completed.StoreID, websocket.PayoutCompleted(completed))
	for _, tx := range linked {
		s.publishEvent(tx.StoreID, websocket.EscrowReleased(tx))
	}
	s.archiveRemittance(ctx, completed, linked)
	return completed, nil
}

// failPayout records a failed attempt. A nil retryAt parks the payout for
// operator intervention (integrity failures and exhausted retries).
func (s *PayoutService) failPayout(ctx context.Context, payout *domain.Payout, reason string, retryAt *time.Time) {
	retryCount := payout.RetryCount + 1
	failed, err := s.payoutRepo.MarkFailed(ctx, payout.ID, reason, retryCount, retryAt, payout.Version)
	if err != nil {
		log.Error().
			Err(err).
			Str("payout_id", payout.ID.String()).
			Str("reason", reason).
			Msg("Failed to record payout failure")
		return
	}

	if retryAt == nil {
		s.publishEvent(failed.StoreID, websocket.PayoutExhausted(failed))
	} else {
		s.publishEvent(failed.StoreID, websocket.PayoutFailed(failed))
	}
}

// archiveRemittance writes the remittance document for a completed payout.
// Archive failures are logged, never propagated: the payout is already
// complete and the document can be rebuilt from the ledger.
func (s *PayoutService) archiveRemittance(ctx context.Context, payout *domain.Payout, released []*domain.EscrowTransaction) {
	if s.reportStore == nil || payout.CompletedAt == nil {
		return
	}

	doc := map[string]interface{}{
		"payout":       payout,
		"transactions": released,
	}
	data, err := json.Marshal(doc)
	if err != nil {
		log.Error().Err(err).Str("payout_id", payout.ID.String()).Msg("Failed to serialize remittance")
		return
	}

	objectPath := storage.RemittancePath(payout.StoreID, payout.ID, *payout.CompletedAt)
	if _, err := s.reportStore.Upload(ctx, objectPath, bytes.NewReader(data), "application/json", int64(len(data))); err != nil {
		log.Warn().
			Err(err).
			Str("payout_id", payout.ID.String()).
			Str("object_path", objectPath).
			Msg("Failed to archive remittance")
	}
}

// ProcessPending processes every pending payout, isolating failures.
// Returns the number completed and the number that failed.
func (s *PayoutService) ProcessPending(ctx context.Context) (int, int, error) {
	pending, err := s.payoutRepo.ListPending(ctx)
	if err != nil {
		return 0, 0, err
	}

	completed, failed := 0, 0
	for _, payout := range pending {
		if _, err := s.Process(ctx, payout.ID); err != nil {
			log.Warn().
				Err(err).
				Str("payout_id", payout.ID.String()).
				Int32("store_id", payout.StoreID).
				Msg("Pending payout failed to process")
			failed++
			continue
		}
		completed++
	}
	return completed, failed, nil
}

// RetryFailedPayouts re-processes failed payouts whose backoff delay has
// elapsed. Payouts with exhausted retries are excluded by the query and stay
// parked for operator intervention. Returns the number completed.
func (s *PayoutService) RetryFailedPayouts(ctx context.Context) (int, error) {
	due, err := s.payoutRepo.ListRetryable(ctx, s.clock.Now(), s.retryPolicy.MaxRetries)
	if err != nil {
		return 0, err
	}

	completed := 0
	for _, payout := range due {
		if _, err := s.Process(ctx, payout.ID); err != nil {
			log.Warn().
				Err(err).
				Str("payout_id", payout.ID.String()).
				Int32("retry_count", payout.RetryCount).
				Msg("Payout retry failed")
			continue
		}
		completed++
	}
	return completed, nil
}

// ReconcileStale fails payouts stuck in processing longer than the
// configured timeout, typically after a crash between the transfer call and
// the completing transaction. They re-enter the ordinary retry flow; the
// gateway deduplicates by payout reference if the original transfer did go
// through. Returns the number reconciled.
func (s *PayoutService) ReconcileStale(ctx context.Context) (int, error) {
	now := s.clock.Now()
	stale, err := s.payoutRepo.ListStaleProcessing(ctx, now.Add(-s.staleTimeout))
	if err != nil {
		return 0, err
	}

	reconciled := 0
	for _, payout := range stale {
		var retryAt *time.Time
		if !s.retryPolicy.Exhausted(payout.RetryCount + 1) {
			at := now.Add(s.retryPolicy.NextDelay(payout.RetryCount + 1))
			retryAt = &at
		}
		s.failPayout(ctx, payout, "processing timed out", retryAt)
		reconciled++
	}
	return reconciled, nil
}

// GetByID retrieves a payout
func (s *PayoutService) GetByID(ctx context.Context, id uuid.UUID) (*domain.Payout, error) {
	return s.payoutRepo.GetByID(ctx, id)
}

// List retrieves payouts with filters and pagination
func (s *PayoutService) List(ctx context.Context, filters *domain.PayoutFilters) (*domain.PaginatedPayouts, error) {
	if filters == nil {
		filters = &domain.PayoutFilters{}
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
	return s.payoutRepo.List(ctx, filters)
}

// ListEscrowTransactions retrieves the escrow transactions linked to a payout
func (s *PayoutService) ListEscrowTransactions(ctx context.Context, id uuid.UUID) ([]*domain.EscrowTransaction, error) {
	if _, err := s.payoutRepo.GetByID(ctx, id); err != nil {
		return nil, err
	}
	return s.escrowRepo.ListByPayout(ctx, id)
}

// remittanceURLTTL bounds how long an operator's remittance link stays valid.
const remittanceURLTTL = 15 * time.Minute

// RemittanceURL returns a short-lived presigned link to a completed payout's
// archived remittance document.
func (s *PayoutService) RemittanceURL(ctx context.Context, id uuid.UUID) (string, error) {
	payout, err := s.payoutRepo.GetByID(ctx, id)
	if err != nil {
		return "", err
	}
	if s.reportStore == nil || payout.CompletedAt == nil {
		return "", domain.ErrRemittanceNotAvailable
	}
	objectPath := storage.RemittancePath(payout.StoreID, payout.ID, *payout.CompletedAt)
	return s.reportStore.GeneratePresignedURL(ctx, objectPath, remittanceURLTTL)
}
