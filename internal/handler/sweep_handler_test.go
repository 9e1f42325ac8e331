package handler

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/soukly/soukly-backend/internal/domain"
	"github.com/soukly/soukly-backend/internal/service"
	"github.com/soukly/soukly-backend/internal/testutil"
)

func setupSweepHandler() (*SweepHandler, *testutil.MockEscrowRepository, *testutil.FixedClock) {
	paymentRepo := testutil.NewMockPaymentRepository()
	escrowRepo := testutil.NewMockEscrowRepository()
	payoutRepo := testutil.NewMockPayoutRepository()
	payoutRepo.Escrow = escrowRepo
	scheduleRepo := testutil.NewMockScheduleRepository()
	storeRepo := testutil.NewMockStoreRepository()
	storeRepo.AddStore(&domain.Store{
		ID:                 1,
		Name:               "Atlas Ceramics",
		PaymentDestination: "acct-atlas",
		Currency:           "EUR",
		SellerTier:         domain.SellerTierStandard,
		IsActive:           true,
	})
	clock := testutil.NewFixedClock(time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC))
	policy := domain.DefaultRetryPolicy()

	payoutService := service.NewPayoutService(
		payoutRepo, escrowRepo, storeRepo,
		testutil.NewMockFundsTransferGateway(), clock, policy, 30*time.Minute,
	)
	escrowService := service.NewEscrowService(
		paymentRepo, escrowRepo, scheduleRepo,
		testutil.NewMockCommissionResolver(decimal.NewFromFloat(0.10)),
		payoutService, clock, policy,
	)
	scheduleService := service.NewScheduleService(scheduleRepo, escrowRepo, payoutService, clock, policy)

	worker := service.NewSweepWorker(
		escrowService, scheduleService, payoutService,
		zerolog.Nop(), service.DefaultSweepWorkerConfig(),
	)

	return NewSweepHandler(worker), escrowRepo, clock
}

func TestSweepHandler_Run(t *testing.T) {
	handler, escrowRepo, clock := setupSweepHandler()

	eligibleAt := clock.Now().Add(-time.Hour)
	escrowRepo.AddEscrowTransaction(&domain.EscrowTransaction{
		ID:                   uuid.New(),
		PaymentTransactionID: uuid.New(),
		SubOrderID:           uuid.New(),
		StoreID:              1,
		GrossAmount:          decimal.NewFromFloat(100.00),
		CommissionAmount:     decimal.NewFromFloat(10.00),
		NetAmount:            decimal.NewFromFloat(90.00),
		RefundedAmount:       decimal.Zero,
		Status:               domain.EscrowStatusEligibleForPayout,
		EligibleAt:           &eligibleAt,
		Version:              2,
	})

	req, rec := jsonRequest(http.MethodPost, "/api/v1/sweeps/run", nil)
	e := echo.New()
	c := e.NewContext(req, rec)

	if err := handler.Run(c); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}

	var response SweepSummaryResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &response); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if response.EscrowClaimed != 1 {
		t.Errorf("expected 1 escrow claimed, got %d", response.EscrowClaimed)
	}
	if response.PayoutsCompleted != 1 {
		t.Errorf("expected 1 payout completed, got %d", response.PayoutsCompleted)
	}
	if len(response.Errors) != 0 {
		t.Errorf("expected no errors, got %v", response.Errors)
	}
}

func TestSweepHandler_Run_EmptyLedger(t *testing.T) {
	handler, _, _ := setupSweepHandler()

	req, rec := jsonRequest(http.MethodPost, "/api/v1/sweeps/run", nil)
	e := echo.New()
	c := e.NewContext(req, rec)

	if err := handler.Run(c); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}

	var response SweepSummaryResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &response); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if response.EscrowClaimed != 0 || response.PayoutsCompleted != 0 {
		t.Errorf("expected an empty sweep, got %+v", response)
	}
}
