package testutil

import (
	"context"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/soukly/soukly-backend/internal/domain"
)

// FixedClock is a domain.Clock pinned to a settable instant.
type FixedClock struct {
	Current time.Time
}

// NewFixedClock creates a FixedClock at the given instant
func NewFixedClock(t time.Time) *FixedClock {
	return &FixedClock{Current: t}
}

// Now returns the pinned instant
func (c *FixedClock) Now() time.Time { return c.Current }

// Advance moves the clock forward (helper for tests)
func (c *FixedClock) Advance(d time.Duration) { c.Current = c.Current.Add(d) }

// MockEscrowRepository is a mock implementation of domain.EscrowRepository
type MockEscrowRepository struct {
	Transactions map[uuid.UUID]*domain.EscrowTransaction
	BySubOrder   map[uuid.UUID]*domain.EscrowTransaction
	ByPayout     map[uuid.UUID][]*domain.EscrowTransaction
	Allocated    map[uuid.UUID]bool

	AllocatePaymentFn func(paymentID uuid.UUID, allocatedAt time.Time, transactions []*domain.EscrowTransaction) ([]*domain.EscrowTransaction, error)
	ListRipeFn        func(asOf time.Time, maxRetries int32) ([]*domain.EscrowTransaction, error)
	ListRipeByStoreFn func(storeID int32, asOf time.Time, maxRetries int32) ([]*domain.EscrowTransaction, error)
	MarkEligibleFn    func(id uuid.UUID, eligibleAt time.Time, version int32) (*domain.EscrowTransaction, error)
	RefundFn          func(id uuid.UUID, refund *domain.RefundInput, version int32) (*domain.EscrowTransaction, error)
	GetStoreBalanceFn func(storeID int32, asOf time.Time, maxRetries int32) (*domain.StoreBalance, error)
}

// NewMockEscrowRepository creates a new MockEscrowRepository
func NewMockEscrowRepository() *MockEscrowRepository {
	return &MockEscrowRepository{
		Transactions: make(map[uuid.UUID]*domain.EscrowTransaction),
		BySubOrder:   make(map[uuid.UUID]*domain.EscrowTransaction),
		ByPayout:     make(map[uuid.UUID][]*domain.EscrowTransaction),
		Allocated:    make(map[uuid.UUID]bool),
	}
}

// AllocatePayment stamps the payment and inserts the escrow rows
func (m *MockEscrowRepository) AllocatePayment(_ context.Context, paymentID uuid.UUID, allocatedAt time.Time, transactions []*domain.EscrowTransaction) ([]*domain.EscrowTransaction, error) {
	if m.AllocatePaymentFn != nil {
		return m.AllocatePaymentFn(paymentID, allocatedAt, transactions)
	}
	if m.Allocated[paymentID] {
		return nil, domain.ErrAlreadyAllocated
	}
	m.Allocated[paymentID] = true
	for _, tx := range transactions {
		if tx.ID == uuid.Nil {
			tx.ID = uuid.New()
		}
		tx.CreatedAt = allocatedAt
		tx.UpdatedAt = allocatedAt
		tx.Version = 1
		m.Transactions[tx.ID] = tx
		m.BySubOrder[tx.SubOrderID] = tx
	}
	return transactions, nil
}

// GetByID retrieves an escrow transaction by ID
func (m *MockEscrowRepository) GetByID(_ context.Context, id uuid.UUID) (*domain.EscrowTransaction, error) {
	if tx, ok := m.Transactions[id]; ok {
		return tx, nil
	}
	return nil, domain.ErrEscrowTransactionNotFound
}

// GetBySubOrder retrieves an escrow transaction by sub-order ID
func (m *MockEscrowRepository) GetBySubOrder(_ context.Context, subOrderID uuid.UUID) (*domain.EscrowTransaction, error) {
	if tx, ok := m.BySubOrder[subOrderID]; ok {
		return tx, nil
	}
	return nil, domain.ErrEscrowTransactionNotFound
}

// List retrieves escrow transactions with optional filters and pagination
func (m *MockEscrowRepository) List(_ context.Context, filters *domain.EscrowFilters) (*domain.PaginatedEscrowTransactions, error) {
	var filtered []*domain.EscrowTransaction
	for _, tx := range m.Transactions {
		if filters != nil {
			if filters.StoreID != nil && tx.StoreID != *filters.StoreID {
				continue
			}
			if filters.Status != nil && tx.Status != *filters.Status {
				continue
			}
		}
		filtered = append(filtered, tx)
	}
	if filtered == nil {
		filtered = []*domain.EscrowTransaction{}
	}

	page := int32(1)
	pageSize := int32(domain.DefaultPageSize)
	if filters != nil {
		if filters.Page > 0 {
			page = filters.Page
		}
		if filters.PageSize > 0 {
			pageSize = filters.PageSize
		}
	}

	totalItems := int64(len(filtered))
	totalPages := int32(totalItems / int64(pageSize))
	if totalItems%int64(pageSize) > 0 {
		totalPages++
	}

	start := (page - 1) * pageSize
	end := start + pageSize
	if start >= int32(len(filtered)) {
		filtered = []*domain.EscrowTransaction{}
	} else {
		if end > int32(len(filtered)) {
			end = int32(len(filtered))
		}
		filtered = filtered[start:end]
	}

	return &domain.PaginatedEscrowTransactions{
		Data:       filtered,
		Page:       page,
		PageSize:   pageSize,
		TotalItems: totalItems,
		TotalPages: totalPages,
	}, nil
}

// ListByPayout retrieves the escrow transactions linked to a payout
func (m *MockEscrowRepository) ListByPayout(_ context.Context, payoutID uuid.UUID) ([]*domain.EscrowTransaction, error) {
	txs := m.ByPayout[payoutID]
	if txs == nil {
		return []*domain.EscrowTransaction{}, nil
	}
	return txs, nil
}

// ListRipe returns eligible transactions whose grace period has elapsed
func (m *MockEscrowRepository) ListRipe(_ context.Context, asOf time.Time, maxRetries int32) ([]*domain.EscrowTransaction, error) {
	if m.ListRipeFn != nil {
		return m.ListRipeFn(asOf, maxRetries)
	}
	var ripe []*domain.EscrowTransaction
	for _, tx := range m.Transactions {
		if m.isRipe(tx, asOf) {
			ripe = append(ripe, tx)
		}
	}
	if ripe == nil {
		ripe = []*domain.EscrowTransaction{}
	}
	return ripe, nil
}

// ListRipeByStore returns a single store's ripe transactions
func (m *MockEscrowRepository) ListRipeByStore(_ context.Context, storeID int32, asOf time.Time, maxRetries int32) ([]*domain.EscrowTransaction, error) {
	if m.ListRipeByStoreFn != nil {
		return m.ListRipeByStoreFn(storeID, asOf, maxRetries)
	}
	var ripe []*domain.EscrowTransaction
	for _, tx := range m.Transactions {
		if tx.StoreID == storeID && m.isRipe(tx, asOf) {
			ripe = append(ripe, tx)
		}
	}
	if ripe == nil {
		ripe = []*domain.EscrowTransaction{}
	}
	return ripe, nil
}

// isRipe mirrors the repository's ripeness query: eligible, past the grace
// period, and not linked to a payout. The real query also re-admits rows
// claimed by exhausted payouts; tests needing that override ListRipeFn.
func (m *MockEscrowRepository) isRipe(tx *domain.EscrowTransaction, asOf time.Time) bool {
	if tx.Status != domain.EscrowStatusEligibleForPayout && tx.Status != domain.EscrowStatusPartiallyReturned {
		return false
	}
	if tx.EligibleAt == nil || tx.EligibleAt.After(asOf) {
		return false
	}
	for _, linked := range m.ByPayout {
		for _, l := range linked {
			if l.ID == tx.ID {
				return false
			}
		}
	}
	return true
}

// MarkEligible stamps the grace deadline; held transactions also move to
// eligible_for_payout, partially returned ones keep their status
func (m *MockEscrowRepository) MarkEligible(_ context.Context, id uuid.UUID, eligibleAt time.Time, version int32) (*domain.EscrowTransaction, error) {
	if m.MarkEligibleFn != nil {
		return m.MarkEligibleFn(id, eligibleAt, version)
	}
	tx, ok := m.Transactions[id]
	if !ok {
		return nil, domain.ErrEscrowTransactionNotFound
	}
	if tx.Version != version {
		return nil, domain.ErrVersionConflict
	}
	if tx.Status == domain.EscrowStatusHeld {
		tx.Status = domain.EscrowStatusEligibleForPayout
	}
	tx.EligibleAt = &eligibleAt
	tx.Version++
	return tx, nil
}

// Refund applies a refund result to a transaction
func (m *MockEscrowRepository) Refund(_ context.Context, id uuid.UUID, refund *domain.RefundInput, version int32) (*domain.EscrowTransaction, error) {
	if m.RefundFn != nil {
		return m.RefundFn(id, refund, version)
	}
	tx, ok := m.Transactions[id]
	if !ok {
		return nil, domain.ErrEscrowTransactionNotFound
	}
	if tx.Version != version {
		return nil, domain.ErrVersionConflict
	}
	tx.Status = refund.Status
	tx.NetAmount = refund.NetAmount
	tx.RefundedAmount = refund.RefundedAmount
	tx.RefundNotes = refund.Notes
	tx.Version++
	return tx, nil
}

// GetStoreBalance summarizes escrow custody for a store
func (m *MockEscrowRepository) GetStoreBalance(_ context.Context, storeID int32, asOf time.Time, maxRetries int32) (*domain.StoreBalance, error) {
	if m.GetStoreBalanceFn != nil {
		return m.GetStoreBalanceFn(storeID, asOf, maxRetries)
	}
	balance := &domain.StoreBalance{
		StoreID:        storeID,
		HeldAmount:     decimal.Zero,
		EligibleAmount: decimal.Zero,
		PendingPayout:  decimal.Zero,
		ReleasedToDate: decimal.Zero,
		RefundedToDate: decimal.Zero,
	}
	for _, tx := range m.Transactions {
		if tx.StoreID != storeID {
			continue
		}
		balance.RefundedToDate = balance.RefundedToDate.Add(tx.RefundedAmount)
		switch tx.Status {
		case domain.EscrowStatusHeld:
			balance.HeldAmount = balance.HeldAmount.Add(tx.NetAmount)
		case domain.EscrowStatusReleased:
			balance.ReleasedToDate = balance.ReleasedToDate.Add(tx.NetAmount)
		default:
			if m.isRipe(tx, asOf) {
				balance.EligibleAmount = balance.EligibleAmount.Add(tx.NetAmount)
				balance.EligibleCount++
			}
		}
	}
	return balance, nil
}

// AddEscrowTransaction adds a transaction to the mock repository (helper for tests)
func (m *MockEscrowRepository) AddEscrowTransaction(tx *domain.EscrowTransaction) {
	if tx.Version == 0 {
		tx.Version = 1
	}
	m.Transactions[tx.ID] = tx
	m.BySubOrder[tx.SubOrderID] = tx
}

// MockPayoutRepository is a mock implementation of domain.PayoutRepository
type MockPayoutRepository struct {
	Payouts map[uuid.UUID]*domain.Payout
	Links   map[uuid.UUID][]uuid.UUID
	// Escrow, when set, lets CompleteWithReleases mirror the real
	// transactional release of linked escrow rows.
	Escrow *MockEscrowRepository

	CreateWithLinksFn      func(payout *domain.Payout, escrowIDs []uuid.UUID) (*domain.Payout, error)
	MarkProcessingFn       func(id uuid.UUID, processedAt time.Time, version int32) (*domain.Payout, error)
	CompleteWithReleasesFn func(payout *domain.Payout, transferRef string, completedAt time.Time, escrowVersions map[uuid.UUID]int32) (*domain.Payout, error)
	MarkFailedFn           func(id uuid.UUID, reason string, retryCount int32, nextRetryAt *time.Time, version int32) (*domain.Payout, error)
}

// NewMockPayoutRepository creates a new MockPayoutRepository
func NewMockPayoutRepository() *MockPayoutRepository {
	return &MockPayoutRepository{
		Payouts: make(map[uuid.UUID]*domain.Payout),
		Links:   make(map[uuid.UUID][]uuid.UUID),
	}
}

// CreateWithLinks inserts the payout and its escrow link rows
func (m *MockPayoutRepository) CreateWithLinks(_ context.Context, payout *domain.Payout, escrowIDs []uuid.UUID) (*domain.Payout, error) {
	if m.CreateWithLinksFn != nil {
		return m.CreateWithLinksFn(payout, escrowIDs)
	}
	if payout.ID == uuid.Nil {
		payout.ID = uuid.New()
	}
	payout.Version = 1
	m.Payouts[payout.ID] = payout
	m.Links[payout.ID] = escrowIDs
	if m.Escrow != nil {
		for _, id := range escrowIDs {
			if tx, ok := m.Escrow.Transactions[id]; ok {
				m.Escrow.ByPayout[payout.ID] = append(m.Escrow.ByPayout[payout.ID], tx)
			}
		}
	}
	return payout, nil
}

// GetByID retrieves a payout by ID
func (m *MockPayoutRepository) GetByID(_ context.Context, id uuid.UUID) (*domain.Payout, error) {
	if p, ok := m.Payouts[id]; ok {
		return p, nil
	}
	return nil, domain.ErrPayoutNotFound
}

// List retrieves payouts with optional filters and pagination
func (m *MockPayoutRepository) List(_ context.Context, filters *domain.PayoutFilters) (*domain.PaginatedPayouts, error) {
	var filtered []*domain.Payout
	for _, p := range m.Payouts {
		if filters != nil {
			if filters.StoreID != nil && p.StoreID != *filters.StoreID {
				continue
			}
			if filters.Status != nil && p.Status != *filters.Status {
				continue
			}
		}
		filtered = append(filtered, p)
	}
	if filtered == nil {
		filtered = []*domain.Payout{}
	}

	page := int32(1)
	pageSize := int32(domain.DefaultPageSize)
	if filters != nil {
		if filters.Page > 0 {
			page = filters.Page
		}
		if filters.PageSize > 0 {
			pageSize = filters.PageSize
		}
	}

	totalItems := int64(len(filtered))
	totalPages := int32(totalItems / int64(pageSize))
	if totalItems%int64(pageSize) > 0 {
		totalPages++
	}

	start := (page - 1) * pageSize
	end := start + pageSize
	if start >= int32(len(filtered)) {
		filtered = []*domain.Payout{}
	} else {
		if end > int32(len(filtered)) {
			end = int32(len(filtered))
		}
		filtered = filtered[start:end]
	}

	return &domain.PaginatedPayouts{
		Data:       filtered,
		Page:       page,
		PageSize:   pageSize,
		TotalItems: totalItems,
		TotalPages: totalPages,
	}, nil
}

// ListRetryable returns failed payouts due for another attempt
func (m *MockPayoutRepository) ListRetryable(_ context.Context, asOf time.Time, maxRetries int32) ([]*domain.Payout, error) {
	var due []*domain.Payout
	for _, p := range m.Payouts {
		if p.Status != domain.PayoutStatusFailed {
			continue
		}
		if p.RetryCount >= maxRetries {
			continue
		}
		if p.NextRetryAt == nil || p.NextRetryAt.After(asOf) {
			continue
		}
		due = append(due, p)
	}
	if due == nil {
		due = []*domain.Payout{}
	}
	return due, nil
}

// ListStaleProcessing returns payouts stuck in processing since before cutoff
func (m *MockPayoutRepository) ListStaleProcessing(_ context.Context, cutoff time.Time) ([]*domain.Payout, error) {
	var stale []*domain.Payout
	for _, p := range m.Payouts {
		if p.Status != domain.PayoutStatusProcessing {
			continue
		}
		if p.ProcessedAt == nil || !p.ProcessedAt.Before(cutoff) {
			continue
		}
		stale = append(stale, p)
	}
	if stale == nil {
		stale = []*domain.Payout{}
	}
	return stale, nil
}

// ListPending returns pending payouts ready for processing
func (m *MockPayoutRepository) ListPending(_ context.Context) ([]*domain.Payout, error) {
	var pending []*domain.Payout
	for _, p := range m.Payouts {
		if p.Status == domain.PayoutStatusPending {
			pending = append(pending, p)
		}
	}
	if pending == nil {
		pending = []*domain.Payout{}
	}
	return pending, nil
}

// MarkProcessing transitions a payout to processing
func (m *MockPayoutRepository) MarkProcessing(_ context.Context, id uuid.UUID, processedAt time.Time, version int32) (*domain.Payout, error) {
	if m.MarkProcessingFn != nil {
		return m.MarkProcessingFn(id, processedAt, version)
	}
	p, ok := m.Payouts[id]
	if !ok {
		return nil, domain.ErrPayoutNotFound
	}
	if p.Version != version {
		return nil, domain.ErrVersionConflict
	}
	p.Status = domain.PayoutStatusProcessing
	p.ProcessedAt = &processedAt
	p.Version++
	return p, nil
}

// CompleteWithReleases finishes the payout and releases its escrow links
func (m *MockPayoutRepository) CompleteWithReleases(_ context.Context, payout *domain.Payout, transferRef string, completedAt time.Time, escrowVersions map[uuid.UUID]int32) (*domain.Payout, error) {
	if m.CompleteWithReleasesFn != nil {
		return m.CompleteWithReleasesFn(payout, transferRef, completedAt, escrowVersions)
	}
	p, ok := m.Payouts[payout.ID]
	if !ok {
		return nil, domain.ErrPayoutNotFound
	}
	if p.Version != payout.Version {
		return nil, domain.ErrVersionConflict
	}
	if m.Escrow != nil {
		for id, version := range escrowVersions {
			tx, ok := m.Escrow.Transactions[id]
			if !ok {
				return nil, domain.ErrEscrowTransactionNotFound
			}
			if tx.Version != version {
				return nil, domain.ErrVersionConflict
			}
		}
		for id := range escrowVersions {
			tx := m.Escrow.Transactions[id]
			tx.Status = domain.EscrowStatusReleased
			tx.PayoutID = &p.ID
			tx.ReleasedAt = &completedAt
			tx.Version++
		}
	}
	p.Status = domain.PayoutStatusCompleted
	p.TransferReference = &transferRef
	p.CompletedAt = &completedAt
	p.Version++
	return p, nil
}

// MarkFailed records a failed attempt and the next retry slot
func (m *MockPayoutRepository) MarkFailed(_ context.Context, id uuid.UUID, reason string, retryCount int32, nextRetryAt *time.Time, version int32) (*domain.Payout, error) {
	if m.MarkFailedFn != nil {
		return m.MarkFailedFn(id, reason, retryCount, nextRetryAt, version)
	}
	p, ok := m.Payouts[id]
	if !ok {
		return nil, domain.ErrPayoutNotFound
	}
	if p.Version != version {
		return nil, domain.ErrVersionConflict
	}
	p.Status = domain.PayoutStatusFailed
	p.FailureReason = &reason
	p.RetryCount = retryCount
	p.NextRetryAt = nextRetryAt
	p.Version++
	return p, nil
}

// AddPayout adds a payout to the mock repository (helper for tests)
func (m *MockPayoutRepository) AddPayout(payout *domain.Payout, escrowIDs ...uuid.UUID) {
	if payout.Version == 0 {
		payout.Version = 1
	}
	m.Payouts[payout.ID] = payout
	m.Links[payout.ID] = escrowIDs
	if m.Escrow != nil {
		for _, id := range escrowIDs {
			if tx, ok := m.Escrow.Transactions[id]; ok {
				m.Escrow.ByPayout[payout.ID] = append(m.Escrow.ByPayout[payout.ID], tx)
			}
		}
	}
}

// MockScheduleRepository is a mock implementation of domain.ScheduleRepository
type MockScheduleRepository struct {
	Schedules map[int32]*domain.PayoutSchedule
	NextID    int32

	UpsertFn        func(schedule *domain.PayoutSchedule) (*domain.PayoutSchedule, error)
	UpdateLastRunFn func(storeID int32, lastRunAt time.Time) error
}

// NewMockScheduleRepository creates a new MockScheduleRepository
func NewMockScheduleRepository() *MockScheduleRepository {
	return &MockScheduleRepository{
		Schedules: make(map[int32]*domain.PayoutSchedule),
		NextID:    1,
	}
}

// Upsert creates or replaces a store's schedule
func (m *MockScheduleRepository) Upsert(_ context.Context, schedule *domain.PayoutSchedule) (*domain.PayoutSchedule, error) {
	if m.UpsertFn != nil {
		return m.UpsertFn(schedule)
	}
	if existing, ok := m.Schedules[schedule.StoreID]; ok {
		schedule.ID = existing.ID
		schedule.LastRunAt = existing.LastRunAt
	} else {
		schedule.ID = m.NextID
		m.NextID++
	}
	m.Schedules[schedule.StoreID] = schedule
	return schedule, nil
}

// GetByStore retrieves a store's schedule
func (m *MockScheduleRepository) GetByStore(_ context.Context, storeID int32) (*domain.PayoutSchedule, error) {
	if s, ok := m.Schedules[storeID]; ok {
		return s, nil
	}
	return nil, domain.ErrScheduleNotFound
}

// GetAll retrieves all schedules
func (m *MockScheduleRepository) GetAll(_ context.Context) ([]*domain.PayoutSchedule, error) {
	schedules := make([]*domain.PayoutSchedule, 0, len(m.Schedules))
	for _, s := range m.Schedules {
		schedules = append(schedules, s)
	}
	return schedules, nil
}

// StoresWithSchedule returns the set of store ids carrying a schedule
func (m *MockScheduleRepository) StoresWithSchedule(_ context.Context) (map[int32]bool, error) {
	stores := make(map[int32]bool, len(m.Schedules))
	for storeID := range m.Schedules {
		stores[storeID] = true
	}
	return stores, nil
}

// UpdateLastRun stamps the schedule's last run
func (m *MockScheduleRepository) UpdateLastRun(_ context.Context, storeID int32, lastRunAt time.Time) error {
	if m.UpdateLastRunFn != nil {
		return m.UpdateLastRunFn(storeID, lastRunAt)
	}
	s, ok := m.Schedules[storeID]
	if !ok {
		return domain.ErrScheduleNotFound
	}
	s.LastRunAt = &lastRunAt
	return nil
}

// AddSchedule adds a schedule to the mock repository (helper for tests)
func (m *MockScheduleRepository) AddSchedule(schedule *domain.PayoutSchedule) {
	if schedule.ID == 0 {
		schedule.ID = m.NextID
		m.NextID++
	}
	m.Schedules[schedule.StoreID] = schedule
}

// MockPaymentRepository is a mock implementation of domain.PaymentRepository
type MockPaymentRepository struct {
	Payments  map[uuid.UUID]*domain.PaymentTransaction
	GetByIDFn func(id uuid.UUID) (*domain.PaymentTransaction, error)
}

// NewMockPaymentRepository creates a new MockPaymentRepository
func NewMockPaymentRepository() *MockPaymentRepository {
	return &MockPaymentRepository{
		Payments: make(map[uuid.UUID]*domain.PaymentTransaction),
	}
}

// GetByID retrieves a payment with its sub-orders
func (m *MockPaymentRepository) GetByID(_ context.Context, id uuid.UUID) (*domain.PaymentTransaction, error) {
	if m.GetByIDFn != nil {
		return m.GetByIDFn(id)
	}
	if p, ok := m.Payments[id]; ok {
		return p, nil
	}
	return nil, domain.ErrPaymentNotFound
}

// AddPayment adds a payment to the mock repository (helper for tests)
func (m *MockPaymentRepository) AddPayment(payment *domain.PaymentTransaction) {
	m.Payments[payment.ID] = payment
}

// MockStoreRepository is a mock implementation of domain.StoreRepository
type MockStoreRepository struct {
	Stores    map[int32]*domain.Store
	GetByIDFn func(id int32) (*domain.Store, error)
}

// NewMockStoreRepository creates a new MockStoreRepository
func NewMockStoreRepository() *MockStoreRepository {
	return &MockStoreRepository{
		Stores: make(map[int32]*domain.Store),
	}
}

// GetByID retrieves a store by ID
func (m *MockStoreRepository) GetByID(_ context.Context, id int32) (*domain.Store, error) {
	if m.GetByIDFn != nil {
		return m.GetByIDFn(id)
	}
	if s, ok := m.Stores[id]; ok {
		return s, nil
	}
	return nil, domain.ErrStoreNotFound
}

// AddStore adds a store to the mock repository (helper for tests)
func (m *MockStoreRepository) AddStore(store *domain.Store) {
	m.Stores[store.ID] = store
}

// MockAPITokenRepository is a mock implementation of domain.APITokenRepository
type MockAPITokenRepository struct {
	Tokens          map[string]*domain.APIToken
	TouchedAt       map[uuid.UUID]time.Time
	GetByHashFn     func(tokenHash string) (*domain.APIToken, error)
	TouchLastUsedFn func(id uuid.UUID, usedAt time.Time) error
}

// NewMockAPITokenRepository creates a new MockAPITokenRepository
func NewMockAPITokenRepository() *MockAPITokenRepository {
	return &MockAPITokenRepository{
		Tokens:    make(map[string]*domain.APIToken),
		TouchedAt: make(map[uuid.UUID]time.Time),
	}
}

// GetByHash retrieves a token by its hash
func (m *MockAPITokenRepository) GetByHash(_ context.Context, tokenHash string) (*domain.APIToken, error) {
	if m.GetByHashFn != nil {
		return m.GetByHashFn(tokenHash)
	}
	if t, ok := m.Tokens[tokenHash]; ok {
		return t, nil
	}
	return nil, domain.ErrAPITokenNotFound
}

// TouchLastUsed stamps the token's last use
func (m *MockAPITokenRepository) TouchLastUsed(_ context.Context, id uuid.UUID, usedAt time.Time) error {
	if m.TouchLastUsedFn != nil {
		return m.TouchLastUsedFn(id, usedAt)
	}
	m.TouchedAt[id] = usedAt
	return nil
}

// AddToken adds a token to the mock repository (helper for tests)
func (m *MockAPITokenRepository) AddToken(token *domain.APIToken) {
	m.Tokens[token.TokenHash] = token
}

// MockCommissionResolver is a mock implementation of domain.CommissionResolver
type MockCommissionResolver struct {
	// Rate is returned for every query unless ResolveFn is set.
	Rate      decimal.Decimal
	Queries   []domain.CommissionQuery
	ResolveFn func(query domain.CommissionQuery) (decimal.Decimal, error)
}

// NewMockCommissionResolver creates a resolver returning a flat rate
func NewMockCommissionResolver(rate decimal.Decimal) *MockCommissionResolver {
	return &MockCommissionResolver{Rate: rate}
}

// Resolve returns the configured commission rate
func (m *MockCommissionResolver) Resolve(_ context.Context, query domain.CommissionQuery) (decimal.Decimal, error) {
	m.Queries = append(m.Queries, query)
	if m.ResolveFn != nil {
		return m.ResolveFn(query)
	}
	return m.Rate, nil
}

// MockReportStore is a mock implementation of storage.ReportStore
type MockReportStore struct {
	Objects  map[string][]byte
	UploadFn func(objectPath string, data []byte, contentType string) (string, error)
}

// NewMockReportStore creates a new MockReportStore
func NewMockReportStore() *MockReportStore {
	return &MockReportStore{
		Objects: make(map[string][]byte),
	}
}

// Upload stores the object in memory
func (m *MockReportStore) Upload(_ context.Context, objectPath string, data io.Reader, contentType string, size int64) (string, error) {
	buf, err := io.ReadAll(data)
	if err != nil {
		return "", err
	}
	if m.UploadFn != nil {
		return m.UploadFn(objectPath, buf, contentType)
	}
	m.Objects[objectPath] = buf
	return objectPath, nil
}

// GeneratePresignedURL returns a deterministic URL for the object
func (m *MockReportStore) GeneratePresignedURL(_ context.Context, objectPath string, expiry time.Duration) (string, error) {
	return "https://reports.test/" + objectPath, nil
}

// MockFundsTransferGateway is a mock implementation of domain.FundsTransferGateway
type MockFundsTransferGateway struct {
	Requests   []domain.TransferRequest
	TransferFn func(req domain.TransferRequest) (*domain.TransferResult, error)
}

// NewMockFundsTransferGateway creates a gateway that succeeds by default
func NewMockFundsTransferGateway() *MockFundsTransferGateway {
	return &MockFundsTransferGateway{}
}

// Transfer records the request and returns its reference
func (m *MockFundsTransferGateway) Transfer(_ context.Context, req domain.TransferRequest) (*domain.TransferResult, error) {
	m.Requests = append(m.Requests, req)
	if m.TransferFn != nil {
		return m.TransferFn(req)
	}
	return &domain.TransferResult{Reference: "transfer-" + req.Reference}, nil
}
