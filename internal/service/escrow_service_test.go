package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/soukly/soukly-backend/internal/domain"
	"github.com/soukly/soukly-backend/internal/testutil"
)

type escrowFixture struct {
	paymentRepo  *testutil.MockPaymentRepository
	escrowRepo   *testutil.MockEscrowRepository
	scheduleRepo *testutil.MockScheduleRepository
	payoutRepo   *testutil.MockPayoutRepository
	storeRepo    *testutil.MockStoreRepository
	gateway      *testutil.MockFundsTransferGateway
	resolver     *testutil.MockCommissionResolver
	clock        *testutil.FixedClock
	service      *EscrowService
	payouts      *PayoutService
}

func setupEscrowService(rate decimal.Decimal) *escrowFixture {
	f := &escrowFixture{
		paymentRepo:  testutil.NewMockPaymentRepository(),
		escrowRepo:   testutil.NewMockEscrowRepository(),
		scheduleRepo: testutil.NewMockScheduleRepository(),
		payoutRepo:   testutil.NewMockPayoutRepository(),
		storeRepo:    testutil.NewMockStoreRepository(),
		gateway:      testutil.NewMockFundsTransferGateway(),
		resolver:     testutil.NewMockCommissionResolver(rate),
		clock:        testutil.NewFixedClock(time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)),
	}
	f.payoutRepo.Escrow = f.escrowRepo

	policy := domain.DefaultRetryPolicy()
	f.payouts = NewPayoutService(f.payoutRepo, f.escrowRepo, f.storeRepo, f.gateway, f.clock, policy, 30*time.Minute)
	f.service = NewEscrowService(f.paymentRepo, f.escrowRepo, f.scheduleRepo, f.resolver, f.payouts, f.clock, policy)
	return f
}

func (f *escrowFixture) addPayment(subOrders ...*domain.SellerSubOrder) *domain.PaymentTransaction {
	total := decimal.Zero
	for _, sub := range subOrders {
		total = total.Add(sub.Amount)
	}
	payment := &domain.PaymentTransaction{
		ID:              uuid.New(),
		Currency:        "EUR",
		Amount:          total,
		TransactionDate: f.clock.Now().AddDate(0, 0, -1),
		SubOrders:       subOrders,
	}
	for _, sub := range subOrders {
		sub.PaymentID = payment.ID
	}
	f.paymentRepo.AddPayment(payment)
	return payment
}

func TestEscrowService_CreateAllocations(t *testing.T) {
	f := setupEscrowService(decimal.NewFromFloat(0.10))
	payment := f.addPayment(
		&domain.SellerSubOrder{ID: uuid.New(), StoreID: 1, SellerTier: domain.SellerTierStandard, Amount: decimal.NewFromFloat(100.00)},
		&domain.SellerSubOrder{ID: uuid.New(), StoreID: 2, SellerTier: domain.SellerTierPlus, Amount: decimal.NewFromFloat(40.00)},
	)

	created, err := f.service.CreateAllocations(context.Background(), payment.ID)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(created) != 2 {
		t.Fatalf("expected 2 escrow transactions, got %d", len(created))
	}

	first := created[0]
	if first.Status != domain.EscrowStatusHeld {
		t.Errorf("expected held status, got %s", first.Status)
	}
	if !first.CommissionAmount.Equal(decimal.NewFromFloat(10.00)) {
		t.Errorf("expected commission 10.00, got %s", first.CommissionAmount)
	}
	if !first.NetAmount.Equal(decimal.NewFromFloat(90.00)) {
		t.Errorf("expected net 90.00, got %s", first.NetAmount)
	}
	if first.PaymentTransactionID != payment.ID {
		t.Error("expected escrow transaction to reference the payment")
	}

	// Resolver saw one query per sub-order with the payment's date
	if len(f.resolver.Queries) != 2 {
		t.Fatalf("expected 2 commission queries, got %d", len(f.resolver.Queries))
	}
	if !f.resolver.Queries[0].TransactionDate.Equal(payment.TransactionDate) {
		t.Error("expected commission query to carry the transaction date")
	}
}

func TestEscrowService_CreateAllocations_RoundsHalfUp(t *testing.T) {
	f := setupEscrowService(decimal.NewFromFloat(0.125))
	payment := f.addPayment(
		&domain.SellerSubOrder{ID: uuid.New(), StoreID: 1, SellerTier: domain.SellerTierStandard, Amount: decimal.NewFromFloat(5.00)},
	)

	created, err := f.service.CreateAllocations(context.Background(), payment.ID)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	// 5.00 * 0.125 = 0.625, half-up to 0.63
	if !created[0].CommissionAmount.Equal(decimal.NewFromFloat(0.63)) {
		t.Errorf("expected commission 0.63, got %s", created[0].CommissionAmount)
	}
	if !created[0].NetAmount.Equal(decimal.NewFromFloat(4.37)) {
		t.Errorf("expected net 4.37, got %s", created[0].NetAmount)
	}
}

func TestEscrowService_CreateAllocations_AlreadyAllocated(t *testing.T) {
	f := setupEscrowService(decimal.NewFromFloat(0.10))
	payment := f.addPayment(
		&domain.SellerSubOrder{ID: uuid.New(), StoreID: 1, SellerTier: domain.SellerTierStandard, Amount: decimal.NewFromFloat(100.00)},
	)
	allocatedAt := f.clock.Now().Add(-time.Hour)
	payment.AllocatedAt = &allocatedAt

	_, err := f.service.CreateAllocations(context.Background(), payment.ID)
	if err != domain.ErrAlreadyAllocated {
		t.Errorf("expected ErrAlreadyAllocated, got %v", err)
	}
}

func TestEscrowService_CreateAllocations_NoSubOrders(t *testing.T) {
	f := setupEscrowService(decimal.NewFromFloat(0.10))
	payment := f.addPayment()

	_, err := f.service.CreateAllocations(context.Background(), payment.ID)
	if err != domain.ErrPaymentHasNoSubOrders {
		t.Errorf("expected ErrPaymentHasNoSubOrders, got %v", err)
	}
}

func TestEscrowService_CreateAllocations_PaymentNotFound(t *testing.T) {
	f := setupEscrowService(decimal.NewFromFloat(0.10))

	_, err := f.service.CreateAllocations(context.Background(), uuid.New())
	if err != domain.ErrPaymentNotFound {
		t.Errorf("expected ErrPaymentNotFound, got %v", err)
	}
}

func TestEscrowService_MarkEligible(t *testing.T) {
	f := setupEscrowService(decimal.NewFromFloat(0.10))
	subOrderID := uuid.New()
	f.escrowRepo.AddEscrowTransaction(&domain.EscrowTransaction{
		ID:         uuid.New(),
		SubOrderID: subOrderID,
		StoreID:    1,
		NetAmount:  decimal.NewFromFloat(90.00),
		Status:     domain.EscrowStatusHeld,
	})

	updated, err := f.service.MarkEligible(context.Background(), subOrderID, 7)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if updated.Status != domain.EscrowStatusEligibleForPayout {
		t.Errorf("expected eligible_for_payout, got %s", updated.Status)
	}
	want := f.clock.Now().AddDate(0, 0, 7)
	if updated.EligibleAt == nil || !updated.EligibleAt.Equal(want) {
		t.Errorf("expected eligible at %v, got %v", want, updated.EligibleAt)
	}
}

func TestEscrowService_MarkEligible_RedeliveredEventIsNoOp(t *testing.T) {
	f := setupEscrowService(decimal.NewFromFloat(0.10))
	subOrderID := uuid.New()
	eligibleAt := f.clock.Now().Add(-time.Hour)
	f.escrowRepo.AddEscrowTransaction(&domain.EscrowTransaction{
		ID:         uuid.New(),
		SubOrderID: subOrderID,
		StoreID:    1,
		Status:     domain.EscrowStatusEligibleForPayout,
		EligibleAt: &eligibleAt,
		Version:    3,
	})

	updated, err := f.service.MarkEligible(context.Background(), subOrderID, 14)
	if err != nil {
		t.Fatalf("expected no error on re-delivered event, got %v", err)
	}
	if !updated.EligibleAt.Equal(eligibleAt) {
		t.Error("expected eligible at to stay untouched")
	}
	if updated.Version != 3 {
		t.Error("expected version to stay untouched")
	}
}

func TestEscrowService_MarkEligible_AfterPartialRefund(t *testing.T) {
	f := setupEscrowService(decimal.NewFromFloat(0.10))
	f.storeRepo.AddStore(&domain.Store{ID: 1, Name: "Store", PaymentDestination: "acct-1", Currency: "EUR", IsActive: true})
	id := uuid.New()
	subOrderID := uuid.New()
	f.escrowRepo.AddEscrowTransaction(&domain.EscrowTransaction{
		ID:             id,
		SubOrderID:     subOrderID,
		StoreID:        1,
		GrossAmount:    decimal.NewFromFloat(100.00),
		NetAmount:      decimal.NewFromFloat(90.00),
		RefundedAmount: decimal.Zero,
		Status:         domain.EscrowStatusHeld,
	})

	// Buyer refunds part of the order before the delivery event lands
	if _, err := f.service.ReturnToBuyer(context.Background(), id, decimal.NewFromFloat(30.00), nil); err != nil {
		t.Fatalf("expected no refund error, got %v", err)
	}

	updated, err := f.service.MarkEligible(context.Background(), subOrderID, 0)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if updated.Status != domain.EscrowStatusPartiallyReturned {
		t.Errorf("expected partially_returned, got %s", updated.Status)
	}
	if updated.EligibleAt == nil || !updated.EligibleAt.Equal(f.clock.Now()) {
		t.Errorf("expected eligible at %v, got %v", f.clock.Now(), updated.EligibleAt)
	}

	// The unrefunded remainder flows into a payout once the grace period ends
	f.clock.Advance(time.Hour)
	claimed, err := f.service.ProcessEligiblePayouts(context.Background())
	if err != nil {
		t.Fatalf("expected no sweep error, got %v", err)
	}
	if claimed != 1 {
		t.Fatalf("expected 1 transaction claimed, got %d", claimed)
	}
	for _, payout := range f.payoutRepo.Payouts {
		if !payout.Amount.Equal(decimal.NewFromFloat(60.00)) {
			t.Errorf("expected payout amount 60.00, got %s", payout.Amount)
		}
	}
}

func TestEscrowService_MarkEligible_NegativeDays(t *testing.T) {
	f := setupEscrowService(decimal.NewFromFloat(0.10))

	_, err := f.service.MarkEligible(context.Background(), uuid.New(), -1)
	if err != domain.ErrInvalidInput {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}

func TestEscrowService_ReturnToBuyer_Partial(t *testing.T) {
	f := setupEscrowService(decimal.NewFromFloat(0.10))
	id := uuid.New()
	f.escrowRepo.AddEscrowTransaction(&domain.EscrowTransaction{
		ID:             id,
		SubOrderID:     uuid.New(),
		StoreID:        1,
		NetAmount:      decimal.NewFromFloat(90.00),
		RefundedAmount: decimal.Zero,
		Status:         domain.EscrowStatusHeld,
	})

	notes := "one item returned"
	updated, err := f.service.ReturnToBuyer(context.Background(), id, decimal.NewFromFloat(30.00), &notes)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if updated.Status != domain.EscrowStatusPartiallyReturned {
		t.Errorf("expected partially_returned, got %s", updated.Status)
	}
	if !updated.NetAmount.Equal(decimal.NewFromFloat(60.00)) {
		t.Errorf("expected net 60.00, got %s", updated.NetAmount)
	}
	if !updated.RefundedAmount.Equal(decimal.NewFromFloat(30.00)) {
		t.Errorf("expected refunded 30.00, got %s", updated.RefundedAmount)
	}
}

func TestEscrowService_ReturnToBuyer_OverRefund(t *testing.T) {
	f := setupEscrowService(decimal.NewFromFloat(0.10))
	id := uuid.New()
	f.escrowRepo.AddEscrowTransaction(&domain.EscrowTransaction{
		ID:         id,
		SubOrderID: uuid.New(),
		StoreID:    1,
		NetAmount:  decimal.NewFromFloat(90.00),
		Status:     domain.EscrowStatusHeld,
	})

	_, err := f.service.ReturnToBuyer(context.Background(), id, decimal.NewFromFloat(90.01), nil)
	if err != domain.ErrRefundExceedsBalance {
		t.Errorf("expected ErrRefundExceedsBalance, got %v", err)
	}
}

func TestEscrowService_ProcessEligiblePayouts_SkipsScheduledStores(t *testing.T) {
	f := setupEscrowService(decimal.NewFromFloat(0.10))
	f.storeRepo.AddStore(&domain.Store{ID: 1, Name: "Unscheduled", PaymentDestination: "acct-1", Currency: "EUR", IsActive: true})
	f.storeRepo.AddStore(&domain.Store{ID: 2, Name: "Scheduled", PaymentDestination: "acct-2", Currency: "EUR", IsActive: true})
	f.scheduleRepo.AddSchedule(&domain.PayoutSchedule{StoreID: 2, Frequency: domain.FrequencyDaily})

	eligibleAt := f.clock.Now().Add(-time.Hour)
	for storeID := int32(1); storeID <= 2; storeID++ {
		f.escrowRepo.AddEscrowTransaction(&domain.EscrowTransaction{
			ID:         uuid.New(),
			SubOrderID: uuid.New(),
			StoreID:    storeID,
			NetAmount:  decimal.NewFromFloat(45.00),
			Status:     domain.EscrowStatusEligibleForPayout,
			EligibleAt: &eligibleAt,
		})
	}

	claimed, err := f.service.ProcessEligiblePayouts(context.Background())
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if claimed != 1 {
		t.Errorf("expected 1 transaction claimed, got %d", claimed)
	}
	if len(f.payoutRepo.Payouts) != 1 {
		t.Fatalf("expected 1 payout, got %d", len(f.payoutRepo.Payouts))
	}
	for _, payout := range f.payoutRepo.Payouts {
		if payout.StoreID != 1 {
			t.Errorf("expected payout for store 1, got store %d", payout.StoreID)
		}
		if !payout.Amount.Equal(decimal.NewFromFloat(45.00)) {
			t.Errorf("expected payout amount 45.00, got %s", payout.Amount)
		}
	}
}

func TestEscrowService_ProcessEligiblePayouts_IsolatesStoreFailures(t *testing.T) {
	f := setupEscrowService(decimal.NewFromFloat(0.10))
	// Only store 1 exists; store 2's payout creation will fail
	f.storeRepo.AddStore(&domain.Store{ID: 1, Name: "Store", PaymentDestination: "acct-1", Currency: "EUR", IsActive: true})

	eligibleAt := f.clock.Now().Add(-time.Hour)
	for storeID := int32(1); storeID <= 2; storeID++ {
		f.escrowRepo.AddEscrowTransaction(&domain.EscrowTransaction{
			ID:         uuid.New(),
			SubOrderID: uuid.New(),
			StoreID:    storeID,
			NetAmount:  decimal.NewFromFloat(10.00),
			Status:     domain.EscrowStatusEligibleForPayout,
			EligibleAt: &eligibleAt,
		})
	}

	claimed, err := f.service.ProcessEligiblePayouts(context.Background())
	if err != nil {
		t.Fatalf("expected sweep to survive a store failure, got %v", err)
	}
	if claimed != 1 {
		t.Errorf("expected 1 transaction claimed, got %d", claimed)
	}
}

func TestEscrowService_ProcessEligiblePayouts_IsIdempotent(t *testing.T) {
	f := setupEscrowService(decimal.NewFromFloat(0.10))
	f.storeRepo.AddStore(&domain.Store{ID: 1, Name: "Store", PaymentDestination: "acct-1", Currency: "EUR", IsActive: true})

	eligibleAt := f.clock.Now().Add(-time.Hour)
	f.escrowRepo.AddEscrowTransaction(&domain.EscrowTransaction{
		ID:         uuid.New(),
		SubOrderID: uuid.New(),
		StoreID:    1,
		NetAmount:  decimal.NewFromFloat(45.00),
		Status:     domain.EscrowStatusEligibleForPayout,
		EligibleAt: &eligibleAt,
	})

	first, err := f.service.ProcessEligiblePayouts(context.Background())
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if first != 1 {
		t.Fatalf("expected 1 claimed on first sweep, got %d", first)
	}

	// The transaction is now claimed by a pending payout
	second, err := f.service.ProcessEligiblePayouts(context.Background())
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if second != 0 {
		t.Errorf("expected second sweep to claim nothing, got %d", second)
	}
	if len(f.payoutRepo.Payouts) != 1 {
		t.Errorf("expected a single payout after two sweeps, got %d", len(f.payoutRepo.Payouts))
	}
}
