package handler

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
	"github.com/soukly/soukly-backend/internal/domain"
	"github.com/soukly/soukly-backend/internal/service"
	"github.com/soukly/soukly-backend/internal/testutil"
)

type payoutHandlerFixture struct {
	escrowRepo  *testutil.MockEscrowRepository
	payoutRepo  *testutil.MockPayoutRepository
	storeRepo   *testutil.MockStoreRepository
	gateway     *testutil.MockFundsTransferGateway
	reportStore *testutil.MockReportStore
	clock       *testutil.FixedClock
	handler     *PayoutHandler
}

func setupPayoutHandler() *payoutHandlerFixture {
	escrowRepo := testutil.NewMockEscrowRepository()
	payoutRepo := testutil.NewMockPayoutRepository()
	payoutRepo.Escrow = escrowRepo
	storeRepo := testutil.NewMockStoreRepository()
	storeRepo.AddStore(&domain.Store{
		ID:                 1,
		Name:               "Atlas Ceramics",
		PaymentDestination: "acct-atlas",
		Currency:           "EUR",
		SellerTier:         domain.SellerTierStandard,
		IsActive:           true,
	})
	gateway := testutil.NewMockFundsTransferGateway()
	reportStore := testutil.NewMockReportStore()
	clock := testutil.NewFixedClock(time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC))

	payoutService := service.NewPayoutService(
		payoutRepo, escrowRepo, storeRepo, gateway,
		clock, domain.DefaultRetryPolicy(), 30*time.Minute,
	)
	payoutService.SetReportStore(reportStore)

	return &payoutHandlerFixture{
		escrowRepo:  escrowRepo,
		payoutRepo:  payoutRepo,
		storeRepo:   storeRepo,
		gateway:     gateway,
		reportStore: reportStore,
		clock:       clock,
		handler:     NewPayoutHandler(payoutService),
	}
}

// addPendingPayout seeds a pending payout with one eligible escrow link
func (f *payoutHandlerFixture) addPendingPayout(amount float64) *domain.Payout {
	eligibleAt := f.clock.Now().Add(-time.Hour)
	escrow := &domain.EscrowTransaction{
		ID:                   uuid.New(),
		PaymentTransactionID: uuid.New(),
		SubOrderID:           uuid.New(),
		StoreID:              1,
		GrossAmount:          decimal.NewFromFloat(amount).Div(decimal.NewFromFloat(0.9)).Round(2),
		CommissionAmount:     decimal.NewFromFloat(amount).Div(decimal.NewFromFloat(9)).Round(2),
		NetAmount:            decimal.NewFromFloat(amount),
		RefundedAmount:       decimal.Zero,
		Status:               domain.EscrowStatusEligibleForPayout,
		EligibleAt:           &eligibleAt,
		Version:              2,
	}
	f.escrowRepo.AddEscrowTransaction(escrow)

	payout := &domain.Payout{
		ID:            uuid.New(),
		StoreID:       1,
		ScheduledDate: f.clock.Now(),
		Amount:        decimal.NewFromFloat(amount),
		Currency:      "EUR",
		Status:        domain.PayoutStatusPending,
		Version:       1,
	}
	f.payoutRepo.AddPayout(payout, escrow.ID)
	return payout
}

func TestPayoutHandler_List(t *testing.T) {
	f := setupPayoutHandler()
	f.addPendingPayout(90.00)

	req, rec := jsonRequest(http.MethodGet, "/api/v1/payouts?status=pending", nil)
	e := echo.New()
	c := e.NewContext(req, rec)

	if err := f.handler.List(c); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}

	var response PaginatedPayoutsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &response); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if response.TotalItems != 1 {
		t.Errorf("expected 1 payout, got %d", response.TotalItems)
	}
	if len(response.Data) != 1 || response.Data[0].Amount != "90.00" {
		t.Errorf("expected one payout of 90.00, got %+v", response.Data)
	}
}

func TestPayoutHandler_List_InvalidStatus(t *testing.T) {
	f := setupPayoutHandler()

	req, rec := jsonRequest(http.MethodGet, "/api/v1/payouts?status=held", nil)
	e := echo.New()
	c := e.NewContext(req, rec)

	if err := f.handler.List(c); err != nil {
		t.Fatalf("expected nil error (error in response), got %v", err)
	}
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected status %d, got %d", http.StatusBadRequest, rec.Code)
	}
}

func TestPayoutHandler_GetByID_IncludesTransactions(t *testing.T) {
	f := setupPayoutHandler()
	payout := f.addPendingPayout(90.00)

	req, rec := jsonRequest(http.MethodGet, "/api/v1/payouts/"+payout.ID.String(), nil)
	e := echo.New()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(payout.ID.String())

	if err := f.handler.GetByID(c); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}

	var response PayoutDetailResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &response); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if response.ID != payout.ID.String() {
		t.Errorf("expected payout ID %s, got %s", payout.ID, response.ID)
	}
	if len(response.Transactions) != 1 {
		t.Fatalf("expected 1 linked transaction, got %d", len(response.Transactions))
	}
	if response.Transactions[0].NetAmount != "90.00" {
		t.Errorf("expected linked net 90.00, got %s", response.Transactions[0].NetAmount)
	}
}

func TestPayoutHandler_GetByID_NotFound(t *testing.T) {
	f := setupPayoutHandler()

	id := uuid.New()
	req, rec := jsonRequest(http.MethodGet, "/api/v1/payouts/"+id.String(), nil)
	e := echo.New()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(id.String())

	if err := f.handler.GetByID(c); err != nil {
		t.Fatalf("expected nil error (error in response), got %v", err)
	}
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected status %d, got %d", http.StatusNotFound, rec.Code)
	}
}

func TestPayoutHandler_GetRemittance(t *testing.T) {
	f := setupPayoutHandler()
	payout := f.addPendingPayout(90.00)

	req, rec := jsonRequest(http.MethodPost, "/api/v1/payouts/"+payout.ID.String()+"/process", nil)
	e := echo.New()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(payout.ID.String())
	if err := f.handler.Process(c); err != nil {
		t.Fatalf("expected no error processing payout, got %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d processing payout, got %d", http.StatusOK, rec.Code)
	}

	req, rec = jsonRequest(http.MethodGet, "/api/v1/payouts/"+payout.ID.String()+"/remittance", nil)
	c = e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(payout.ID.String())

	if err := f.handler.GetRemittance(c); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}

	var response RemittanceResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &response); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if !strings.Contains(response.URL, "remittances/1/2025/06/"+payout.ID.String()) {
		t.Errorf("expected URL for the archived document, got %s", response.URL)
	}
}

func TestPayoutHandler_GetRemittance_PendingPayout(t *testing.T) {
	f := setupPayoutHandler()
	payout := f.addPendingPayout(90.00)

	req, rec := jsonRequest(http.MethodGet, "/api/v1/payouts/"+payout.ID.String()+"/remittance", nil)
	e := echo.New()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(payout.ID.String())

	if err := f.handler.GetRemittance(c); err != nil {
		t.Fatalf("expected nil error (error in response), got %v", err)
	}
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected status %d, got %d", http.StatusNotFound, rec.Code)
	}
}

func TestPayoutHandler_Process_Success(t *testing.T) {
	f := setupPayoutHandler()
	payout := f.addPendingPayout(90.00)

	req, rec := jsonRequest(http.MethodPost, "/api/v1/payouts/"+payout.ID.String()+"/process", nil)
	e := echo.New()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(payout.ID.String())

	if err := f.handler.Process(c); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}

	var response PayoutResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &response); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if response.Status != "completed" {
		t.Errorf("expected status completed, got %s", response.Status)
	}
	if response.TransferReference == nil {
		t.Error("expected transfer reference to be set")
	}
	if len(f.gateway.Requests) != 1 {
		t.Errorf("expected 1 gateway call, got %d", len(f.gateway.Requests))
	}
}

func TestPayoutHandler_Process_CompletedPayout(t *testing.T) {
	f := setupPayoutHandler()
	payout := f.addPendingPayout(90.00)
	payout.Status = domain.PayoutStatusCompleted

	req, rec := jsonRequest(http.MethodPost, "/api/v1/payouts/"+payout.ID.String()+"/process", nil)
	e := echo.New()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(payout.ID.String())

	if err := f.handler.Process(c); err != nil {
		t.Fatalf("expected nil error (error in response), got %v", err)
	}
	if rec.Code != http.StatusConflict {
		t.Errorf("expected status %d, got %d", http.StatusConflict, rec.Code)
	}
}

func TestPayoutHandler_Process_TransferFailure(t *testing.T) {
	f := setupPayoutHandler()
	payout := f.addPendingPayout(90.00)
	f.gateway.TransferFn = func(req domain.TransferRequest) (*domain.TransferResult, error) {
		return nil, &domain.TransferError{Reason: "insufficient platform balance"}
	}

	req, rec := jsonRequest(http.MethodPost, "/api/v1/payouts/"+payout.ID.String()+"/process", nil)
	e := echo.New()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(payout.ID.String())

	if err := f.handler.Process(c); err != nil {
		t.Fatalf("expected nil error (error in response), got %v", err)
	}
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("expected status %d, got %d", http.StatusUnprocessableEntity, rec.Code)
	}

	var problem ProblemDetails
	if err := json.Unmarshal(rec.Body.Bytes(), &problem); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if problem.Detail != "Transfer failed: insufficient platform balance" {
		t.Errorf("unexpected detail: %s", problem.Detail)
	}
}

func TestPayoutHandler_Process_InvalidID(t *testing.T) {
	f := setupPayoutHandler()

	req, rec := jsonRequest(http.MethodPost, "/api/v1/payouts/not-a-uuid/process", nil)
	e := echo.New()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues("not-a-uuid")

	if err := f.handler.Process(c); err != nil {
		t.Fatalf("expected nil error (error in response), got %v", err)
	}
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected status %d, got %d", http.StatusBadRequest, rec.Code)
	}
}
