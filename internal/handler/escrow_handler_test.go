package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
	"github.com/soukly/soukly-backend/internal/domain"
	"github.com/soukly/soukly-backend/internal/service"
	"github.com/soukly/soukly-backend/internal/testutil"
)

type escrowHandlerFixture struct {
	paymentRepo  *testutil.MockPaymentRepository
	escrowRepo   *testutil.MockEscrowRepository
	payoutRepo   *testutil.MockPayoutRepository
	scheduleRepo *testutil.MockScheduleRepository
	storeRepo    *testutil.MockStoreRepository
	clock        *testutil.FixedClock
	handler      *EscrowHandler
}

func setupEscrowHandler() *escrowHandlerFixture {
	paymentRepo := testutil.NewMockPaymentRepository()
	escrowRepo := testutil.NewMockEscrowRepository()
	payoutRepo := testutil.NewMockPayoutRepository()
	payoutRepo.Escrow = escrowRepo
	scheduleRepo := testutil.NewMockScheduleRepository()
	storeRepo := testutil.NewMockStoreRepository()
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

	return &escrowHandlerFixture{
		paymentRepo:  paymentRepo,
		escrowRepo:   escrowRepo,
		payoutRepo:   payoutRepo,
		scheduleRepo: scheduleRepo,
		storeRepo:    storeRepo,
		clock:        clock,
		handler:      NewEscrowHandler(escrowService),
	}
}

func jsonRequest(method, target string, body interface{}) (*http.Request, *httptest.ResponseRecorder) {
	var reader *bytes.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, target, reader)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	return req, httptest.NewRecorder()
}

func TestEscrowHandler_Allocate_Success(t *testing.T) {
	f := setupEscrowHandler()

	paymentID := uuid.New()
	f.paymentRepo.AddPayment(&domain.PaymentTransaction{
		ID:              paymentID,
		Currency:        "EUR",
		Amount:          decimal.NewFromFloat(150.00),
		TransactionDate: f.clock.Now(),
		SubOrders: []*domain.SellerSubOrder{
			{ID: uuid.New(), PaymentID: paymentID, StoreID: 1, SellerTier: domain.SellerTierStandard, Amount: decimal.NewFromFloat(100.00)},
			{ID: uuid.New(), PaymentID: paymentID, StoreID: 2, SellerTier: domain.SellerTierStandard, Amount: decimal.NewFromFloat(50.00)},
		},
	})

	req, rec := jsonRequest(http.MethodPost, "/api/v1/escrow/allocations", AllocationRequest{
		PaymentTransactionID: paymentID.String(),
	})
	e := echo.New()
	c := e.NewContext(req, rec)

	if err := f.handler.Allocate(c); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status %d, got %d", http.StatusCreated, rec.Code)
	}

	var response AllocationResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &response); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if len(response.Transactions) != 2 {
		t.Fatalf("expected 2 transactions, got %d", len(response.Transactions))
	}
	if response.Transactions[0].GrossAmount != "100.00" {
		t.Errorf("expected gross 100.00, got %s", response.Transactions[0].GrossAmount)
	}
	if response.Transactions[0].CommissionAmount != "10.00" {
		t.Errorf("expected commission 10.00, got %s", response.Transactions[0].CommissionAmount)
	}
	if response.Transactions[0].NetAmount != "90.00" {
		t.Errorf("expected net 90.00, got %s", response.Transactions[0].NetAmount)
	}
	if response.Transactions[0].Status != "held" {
		t.Errorf("expected status held, got %s", response.Transactions[0].Status)
	}
}

func TestEscrowHandler_Allocate_InvalidUUID(t *testing.T) {
	f := setupEscrowHandler()

	req, rec := jsonRequest(http.MethodPost, "/api/v1/escrow/allocations", AllocationRequest{
		PaymentTransactionID: "not-a-uuid",
	})
	e := echo.New()
	c := e.NewContext(req, rec)

	if err := f.handler.Allocate(c); err != nil {
		t.Fatalf("expected nil error (error in response), got %v", err)
	}
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected status %d, got %d", http.StatusBadRequest, rec.Code)
	}
}

func TestEscrowHandler_Allocate_PaymentNotFound(t *testing.T) {
	f := setupEscrowHandler()

	req, rec := jsonRequest(http.MethodPost, "/api/v1/escrow/allocations", AllocationRequest{
		PaymentTransactionID: uuid.New().String(),
	})
	e := echo.New()
	c := e.NewContext(req, rec)

	if err := f.handler.Allocate(c); err != nil {
		t.Fatalf("expected nil error (error in response), got %v", err)
	}
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected status %d, got %d", http.StatusNotFound, rec.Code)
	}
}

func TestEscrowHandler_Allocate_AlreadyAllocated(t *testing.T) {
	f := setupEscrowHandler()

	paymentID := uuid.New()
	allocatedAt := f.clock.Now().Add(-time.Hour)
	f.paymentRepo.AddPayment(&domain.PaymentTransaction{
		ID:              paymentID,
		Currency:        "EUR",
		Amount:          decimal.NewFromFloat(50.00),
		TransactionDate: allocatedAt,
		AllocatedAt:     &allocatedAt,
		SubOrders: []*domain.SellerSubOrder{
			{ID: uuid.New(), PaymentID: paymentID, StoreID: 1, SellerTier: domain.SellerTierStandard, Amount: decimal.NewFromFloat(50.00)},
		},
	})

	req, rec := jsonRequest(http.MethodPost, "/api/v1/escrow/allocations", AllocationRequest{
		PaymentTransactionID: paymentID.String(),
	})
	e := echo.New()
	c := e.NewContext(req, rec)

	if err := f.handler.Allocate(c); err != nil {
		t.Fatalf("expected nil error (error in response), got %v", err)
	}
	if rec.Code != http.StatusConflict {
		t.Errorf("expected status %d, got %d", http.StatusConflict, rec.Code)
	}
}

func TestEscrowHandler_MarkEligible_Success(t *testing.T) {
	f := setupEscrowHandler()

	subOrderID := uuid.New()
	f.escrowRepo.AddEscrowTransaction(&domain.EscrowTransaction{
		ID:                   uuid.New(),
		PaymentTransactionID: uuid.New(),
		SubOrderID:           subOrderID,
		StoreID:              1,
		GrossAmount:          decimal.NewFromFloat(100.00),
		CommissionAmount:     decimal.NewFromFloat(10.00),
		NetAmount:            decimal.NewFromFloat(90.00),
		RefundedAmount:       decimal.Zero,
		Status:               domain.EscrowStatusHeld,
		Version:              1,
	})

	req, rec := jsonRequest(http.MethodPost, "/api/v1/escrow/eligibility", EligibilityRequest{
		SubOrderID:        subOrderID.String(),
		DaysUntilEligible: 7,
	})
	e := echo.New()
	c := e.NewContext(req, rec)

	if err := f.handler.MarkEligible(c); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}

	var response EscrowTransactionResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &response); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if response.Status != "eligible_for_payout" {
		t.Errorf("expected status eligible_for_payout, got %s", response.Status)
	}
	if response.EligibleAt == nil {
		t.Fatal("expected eligibleAt to be set")
	}
	wantEligible := f.clock.Now().AddDate(0, 0, 7).Format(time.RFC3339)
	if *response.EligibleAt != wantEligible {
		t.Errorf("expected eligibleAt %s, got %s", wantEligible, *response.EligibleAt)
	}
}

func TestEscrowHandler_MarkEligible_UnknownSubOrder(t *testing.T) {
	f := setupEscrowHandler()

	req, rec := jsonRequest(http.MethodPost, "/api/v1/escrow/eligibility", EligibilityRequest{
		SubOrderID:        uuid.New().String(),
		DaysUntilEligible: 7,
	})
	e := echo.New()
	c := e.NewContext(req, rec)

	if err := f.handler.MarkEligible(c); err != nil {
		t.Fatalf("expected nil error (error in response), got %v", err)
	}
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected status %d, got %d", http.StatusNotFound, rec.Code)
	}
}

func TestEscrowHandler_MarkEligible_NegativeDays(t *testing.T) {
	f := setupEscrowHandler()

	req, rec := jsonRequest(http.MethodPost, "/api/v1/escrow/eligibility", EligibilityRequest{
		SubOrderID:        uuid.New().String(),
		DaysUntilEligible: -1,
	})
	e := echo.New()
	c := e.NewContext(req, rec)

	if err := f.handler.MarkEligible(c); err != nil {
		t.Fatalf("expected nil error (error in response), got %v", err)
	}
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected status %d, got %d", http.StatusBadRequest, rec.Code)
	}
}

func TestEscrowHandler_Refund_Partial(t *testing.T) {
	f := setupEscrowHandler()

	id := uuid.New()
	eligibleAt := f.clock.Now().Add(-time.Hour)
	f.escrowRepo.AddEscrowTransaction(&domain.EscrowTransaction{
		ID:                   id,
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

	notes := "damaged item"
	req, rec := jsonRequest(http.MethodPost, "/api/v1/escrow/"+id.String()+"/refund", RefundRequest{
		Amount: "30.00",
		Notes:  &notes,
	})
	e := echo.New()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(id.String())

	if err := f.handler.Refund(c); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}

	var response EscrowTransactionResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &response); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if response.Status != "partially_returned" {
		t.Errorf("expected status partially_returned, got %s", response.Status)
	}
	if response.RefundedAmount != "30.00" {
		t.Errorf("expected refunded 30.00, got %s", response.RefundedAmount)
	}
	if response.NetAmount != "60.00" {
		t.Errorf("expected net 60.00, got %s", response.NetAmount)
	}
}

func TestEscrowHandler_Refund_ExceedsBalance(t *testing.T) {
	f := setupEscrowHandler()

	id := uuid.New()
	f.escrowRepo.AddEscrowTransaction(&domain.EscrowTransaction{
		ID:                   id,
		PaymentTransactionID: uuid.New(),
		SubOrderID:           uuid.New(),
		StoreID:              1,
		GrossAmount:          decimal.NewFromFloat(100.00),
		CommissionAmount:     decimal.NewFromFloat(10.00),
		NetAmount:            decimal.NewFromFloat(90.00),
		RefundedAmount:       decimal.Zero,
		Status:               domain.EscrowStatusHeld,
		Version:              1,
	})

	req, rec := jsonRequest(http.MethodPost, "/api/v1/escrow/"+id.String()+"/refund", RefundRequest{
		Amount: "90.01",
	})
	e := echo.New()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(id.String())

	if err := f.handler.Refund(c); err != nil {
		t.Fatalf("expected nil error (error in response), got %v", err)
	}
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("expected status %d, got %d", http.StatusUnprocessableEntity, rec.Code)
	}
}

func TestEscrowHandler_Refund_InvalidAmount(t *testing.T) {
	f := setupEscrowHandler()

	id := uuid.New()
	req, rec := jsonRequest(http.MethodPost, "/api/v1/escrow/"+id.String()+"/refund", RefundRequest{
		Amount: "ninety",
	})
	e := echo.New()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(id.String())

	if err := f.handler.Refund(c); err != nil {
		t.Fatalf("expected nil error (error in response), got %v", err)
	}
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected status %d, got %d", http.StatusBadRequest, rec.Code)
	}
}

func TestEscrowHandler_List_FiltersByStore(t *testing.T) {
	f := setupEscrowHandler()

	for storeID := int32(1); storeID <= 2; storeID++ {
		f.escrowRepo.AddEscrowTransaction(&domain.EscrowTransaction{
			ID:                   uuid.New(),
			PaymentTransactionID: uuid.New(),
			SubOrderID:           uuid.New(),
			StoreID:              storeID,
			GrossAmount:          decimal.NewFromFloat(100.00),
			CommissionAmount:     decimal.NewFromFloat(10.00),
			NetAmount:            decimal.NewFromFloat(90.00),
			RefundedAmount:       decimal.Zero,
			Status:               domain.EscrowStatusHeld,
			Version:              1,
		})
	}

	req, rec := jsonRequest(http.MethodGet, "/api/v1/escrow?storeId=1", nil)
	e := echo.New()
	c := e.NewContext(req, rec)

	if err := f.handler.List(c); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}

	var response PaginatedEscrowResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &response); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if response.TotalItems != 1 {
		t.Errorf("expected 1 item, got %d", response.TotalItems)
	}
	if len(response.Data) != 1 || response.Data[0].StoreID != 1 {
		t.Errorf("expected one transaction for store 1, got %+v", response.Data)
	}
}

func TestEscrowHandler_List_InvalidStatus(t *testing.T) {
	f := setupEscrowHandler()

	req, rec := jsonRequest(http.MethodGet, "/api/v1/escrow?status=pending", nil)
	e := echo.New()
	c := e.NewContext(req, rec)

	if err := f.handler.List(c); err != nil {
		t.Fatalf("expected nil error (error in response), got %v", err)
	}
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected status %d, got %d", http.StatusBadRequest, rec.Code)
	}
}

func TestEscrowHandler_GetByID_NotFound(t *testing.T) {
	f := setupEscrowHandler()

	id := uuid.New()
	req, rec := jsonRequest(http.MethodGet, "/api/v1/escrow/"+id.String(), nil)
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

func TestEscrowHandler_GetStoreBalance(t *testing.T) {
	f := setupEscrowHandler()

	eligibleAt := f.clock.Now().Add(-time.Hour)
	f.escrowRepo.AddEscrowTransaction(&domain.EscrowTransaction{
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
		Version:              1,
	})
	f.escrowRepo.AddEscrowTransaction(&domain.EscrowTransaction{
		ID:                   uuid.New(),
		PaymentTransactionID: uuid.New(),
		SubOrderID:           uuid.New(),
		StoreID:              1,
		GrossAmount:          decimal.NewFromFloat(40.00),
		CommissionAmount:     decimal.NewFromFloat(4.00),
		NetAmount:            decimal.NewFromFloat(36.00),
		RefundedAmount:       decimal.Zero,
		Status:               domain.EscrowStatusHeld,
		Version:              1,
	})

	req, rec := jsonRequest(http.MethodGet, "/api/v1/stores/1/balance", nil)
	e := echo.New()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues("1")

	if err := f.handler.GetStoreBalance(c); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}

	var response StoreBalanceResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &response); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if response.HeldAmount != "36.00" {
		t.Errorf("expected held 36.00, got %s", response.HeldAmount)
	}
	if response.EligibleAmount != "90.00" {
		t.Errorf("expected eligible 90.00, got %s", response.EligibleAmount)
	}
	if response.EligibleCount != 1 {
		t.Errorf("expected eligible count 1, got %d", response.EligibleCount)
	}
}

func TestEscrowHandler_GetStoreBalance_InvalidID(t *testing.T) {
	f := setupEscrowHandler()

	req, rec := jsonRequest(http.MethodGet, "/api/v1/stores/abc/balance", nil)
	e := echo.New()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues("abc")

	if err := f.handler.GetStoreBalance(c); err != nil {
		t.Fatalf("expected nil error (error in response), got %v", err)
	}
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected status %d, got %d", http.StatusBadRequest, rec.Code)
	}
}
