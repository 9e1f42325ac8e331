package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"github.com/soukly/soukly-backend/internal/domain"
	"github.com/soukly/soukly-backend/internal/service"
)

// EscrowHandler handles escrow ledger HTTP requests
type EscrowHandler struct {
	escrowService *service.EscrowService
}

// NewEscrowHandler creates a new EscrowHandler
func NewEscrowHandler(escrowService *service.EscrowService) *EscrowHandler {
	return &EscrowHandler{
		escrowService: escrowService,
	}
}

// AllocationRequest represents the payment-captured webhook body
type AllocationRequest struct {
	PaymentTransactionID string `json:"paymentTransactionId"`
}

// EligibilityRequest represents the fulfillment-delivered webhook body
type EligibilityRequest struct {
	SubOrderID        string `json:"subOrderId"`
	DaysUntilEligible int32  `json:"daysUntilEligible"`
}

// RefundRequest represents a buyer refund request body
type RefundRequest struct {
	Amount string  `json:"amount"`
	Notes  *string `json:"notes,omitempty"`
}

// EscrowTransactionResponse represents an escrow transaction in API responses
type EscrowTransactionResponse struct {
	ID                   string  `json:"id"`
	PaymentTransactionID string  `json:"paymentTransactionId"`
	SubOrderID           string  `json:"subOrderId"`
	StoreID              int32   `json:"storeId"`
	GrossAmount          string  `json:"grossAmount"`
	CommissionAmount     string  `json:"commissionAmount"`
	NetAmount            string  `json:"netAmount"`
	RefundedAmount       string  `json:"refundedAmount"`
	Status               string  `json:"status"`
	EligibleAt           *string `json:"eligibleAt,omitempty"`
	PayoutID             *string `json:"payoutId,omitempty"`
	ReleasedAt           *string `json:"releasedAt,omitempty"`
	RefundNotes          *string `json:"refundNotes,omitempty"`
	CreatedAt            string  `json:"createdAt"`
	UpdatedAt            string  `json:"updatedAt"`
}

// AllocationResponse represents the result of allocating a payment
type AllocationResponse struct {
	PaymentTransactionID string                      `json:"paymentTransactionId"`
	Transactions         []EscrowTransactionResponse `json:"transactions"`
}

// PaginatedEscrowResponse represents paginated escrow transactions
type PaginatedEscrowResponse struct {
	Data       []EscrowTransactionResponse `json:"data"`
	Page       int32                       `json:"page"`
	PageSize   int32                       `json:"pageSize"`
	TotalItems int64                       `json:"totalItems"`
	TotalPages int32                       `json:"totalPages"`
}

// StoreBalanceResponse represents a store's escrow balance summary
type StoreBalanceResponse struct {
	StoreID        int32  `json:"storeId"`
	HeldAmount     string `json:"heldAmount"`
	EligibleAmount string `json:"eligibleAmount"`
	EligibleCount  int32  `json:"eligibleCount"`
	PendingPayout  string `json:"pendingPayout"`
	ReleasedToDate string `json:"releasedToDate"`
	RefundedToDate string `json:"refundedToDate"`
}

// Allocate godoc
// @Summary Allocate a captured payment into escrow
// @Description Splits a captured payment into one held escrow transaction per seller sub-order
// @Tags escrow
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body AllocationRequest true "Allocation request"
// @Success 201 {object} AllocationResponse
// @Failure 400 {object} ProblemDetails
// @Failure 401 {object} ProblemDetails
// @Failure 404 {object} ProblemDetails
// @Failure 409 {object} ProblemDetails
// @Router /escrow/allocations [post]
func (h *EscrowHandler) Allocate(c echo.Context) error {
	var req AllocationRequest
	if err := c.Bind(&req); err != nil {
		return NewValidationError(c, "Invalid request body", nil)
	}

	paymentID, err := uuid.Parse(req.PaymentTransactionID)
	if err != nil {
		return NewValidationError(c, "Validation failed", []ValidationError{
			{Field: "paymentTransactionId", Message: "Must be a valid UUID"},
		})
	}

	transactions, err := h.escrowService.CreateAllocations(c.Request().Context(), paymentID)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrPaymentNotFound):
			return NewNotFoundError(c, "Payment transaction not found")
		case errors.Is(err, domain.ErrAlreadyAllocated):
			return NewConflictError(c, "Payment is already allocated to escrow")
		case errors.Is(err, domain.ErrPaymentHasNoSubOrders):
			return NewUnprocessableError(c, "Payment has no seller sub-orders")
		case errors.Is(err, domain.ErrInvalidAmount):
			return NewUnprocessableError(c, "Sub-order amounts must be positive")
		case errors.Is(err, domain.ErrCommissionRuleNotFound):
			return NewUnprocessableError(c, "No commission rule matches one of the sub-orders")
		default:
			log.Error().Err(err).Str("payment_id", paymentID.String()).Msg("Failed to allocate payment")
			return NewInternalError(c, "Failed to allocate payment")
		}
	}

	response := AllocationResponse{
		PaymentTransactionID: paymentID.String(),
		Transactions:         make([]EscrowTransactionResponse, len(transactions)),
	}
	for i, tx := range transactions {
		response.Transactions[i] = toEscrowResponse(tx)
	}

	log.Info().
		Str("payment_id", paymentID.String()).
		Int("transactions", len(transactions)).
		Msg("Payment allocated to escrow")

	return c.JSON(http.StatusCreated, response)
}

// MarkEligible godoc
// @Summary Mark a sub-order's escrow eligible for payout
// @Description Stamps the payout grace deadline once a sub-order is delivered. Redelivered events are no-ops.
// @Tags escrow
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body EligibilityRequest true "Eligibility request"
// @Success 200 {object} EscrowTransactionResponse
// @Failure 400 {object} ProblemDetails
// @Failure 401 {object} ProblemDetails
// @Failure 404 {object} ProblemDetails
// @Failure 409 {object} ProblemDetails
// @Router /escrow/eligibility [post]
func (h *EscrowHandler) MarkEligible(c echo.Context) error {
	var req EligibilityRequest
	if err := c.Bind(&req); err != nil {
		return NewValidationError(c, "Invalid request body", nil)
	}

	subOrderID, err := uuid.Parse(req.SubOrderID)
	if err != nil {
		return NewValidationError(c, "Validation failed", []ValidationError{
			{Field: "subOrderId", Message: "Must be a valid UUID"},
		})
	}

	tx, err := h.escrowService.MarkEligible(c.Request().Context(), subOrderID, req.DaysUntilEligible)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidInput):
			return NewValidationError(c, "Validation failed", []ValidationError{
				{Field: "daysUntilEligible", Message: "Must not be negative"},
			})
		case errors.Is(err, domain.ErrEscrowTransactionNotFound):
			return NewNotFoundError(c, "No escrow transaction for this sub-order")
		case errors.Is(err, domain.ErrVersionConflict):
			return NewConflictError(c, "Escrow transaction was modified concurrently")
		default:
			log.Error().Err(err).Str("sub_order_id", subOrderID.String()).Msg("Failed to mark escrow eligible")
			return NewInternalError(c, "Failed to mark escrow eligible")
		}
	}

	return c.JSON(http.StatusOK, toEscrowResponse(tx))
}

// Refund godoc
// @Summary Refund escrow to the buyer
// @Description Returns part or all of a transaction's remaining net proceeds to the buyer
// @Tags escrow
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Escrow transaction ID"
// @Param request body RefundRequest true "Refund request"
// @Success 200 {object} EscrowTransactionResponse
// @Failure 400 {object} ProblemDetails
// @Failure 401 {object} ProblemDetails
// @Failure 404 {object} ProblemDetails
// @Failure 409 {object} ProblemDetails
// @Failure 422 {object} ProblemDetails
// @Router /escrow/{id}/refund [post]
func (h *EscrowHandler) Refund(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return NewValidationError(c, "Invalid escrow transaction ID", nil)
	}

	var req RefundRequest
	if err := c.Bind(&req); err != nil {
		return NewValidationError(c, "Invalid request body", nil)
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		return NewValidationError(c, "Validation failed", []ValidationError{
			{Field: "amount", Message: "Must be a valid decimal number"},
		})
	}

	tx, err := h.escrowService.ReturnToBuyer(c.Request().Context(), id, amount, req.Notes)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrEscrowTransactionNotFound):
			return NewNotFoundError(c, "Escrow transaction not found")
		case errors.Is(err, domain.ErrInvalidAmount):
			return NewValidationError(c, "Validation failed", []ValidationError{
				{Field: "amount", Message: "Amount must be positive"},
			})
		case errors.Is(err, domain.ErrAlreadyReleased):
			return NewConflictError(c, "Escrow transaction is already released")
		case errors.Is(err, domain.ErrInvalidTransition):
			return NewConflictError(c, "Escrow transaction cannot be refunded in its current state")
		case errors.Is(err, domain.ErrRefundExceedsBalance):
			return NewUnprocessableError(c, "Refund amount exceeds remaining escrow balance")
		case errors.Is(err, domain.ErrVersionConflict):
			return NewConflictError(c, "Escrow transaction was modified concurrently")
		default:
			log.Error().Err(err).Str("escrow_id", id.String()).Msg("Failed to refund escrow")
			return NewInternalError(c, "Failed to refund escrow")
		}
	}

	log.Info().
		Str("escrow_id", id.String()).
		Str("amount", amount.StringFixed(2)).
		Str("status", string(tx.Status)).
		Msg("Escrow refunded to buyer")

	return c.JSON(http.StatusOK, toEscrowResponse(tx))
}

// List godoc
// @Summary List escrow transactions
// @Description Get paginated escrow transactions with optional filters
// @Tags escrow
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param storeId query int false "Filter by store ID"
// @Param status query string false "Filter by status"
// @Param page query int false "Page number" default(1)
// @Param pageSize query int false "Items per page" default(20)
// @Success 200 {object} PaginatedEscrowResponse
// @Failure 400 {object} ProblemDetails
// @Failure 401 {object} ProblemDetails
// @Router /escrow [get]
func (h *EscrowHandler) List(c echo.Context) error {
	filters := &domain.EscrowFilters{
		Page:     1,
		PageSize: domain.DefaultPageSize,
	}

	if storeIDStr := c.QueryParam("storeId"); storeIDStr != "" {
		var storeID int32
		if _, err := parseIntParam(storeIDStr, &storeID); err != nil {
			return NewValidationError(c, "Invalid storeId", nil)
		}
		filters.StoreID = &storeID
	}

	if statusStr := c.QueryParam("status"); statusStr != "" {
		status := domain.EscrowStatus(statusStr)
		switch status {
		case domain.EscrowStatusHeld, domain.EscrowStatusEligibleForPayout,
			domain.EscrowStatusReleased, domain.EscrowStatusReturnedToBuyer,
			domain.EscrowStatusPartiallyReturned:
		default:
			return NewValidationError(c, "Invalid status", nil)
		}
		filters.Status = &status
	}

	if pageStr := c.QueryParam("page"); pageStr != "" {
		var page int32
		if _, err := parseIntParam(pageStr, &page); err != nil || page < 1 {
			return NewValidationError(c, "Invalid page (must be positive integer)", nil)
		}
		filters.Page = page
	}

	if pageSizeStr := c.QueryParam("pageSize"); pageSizeStr != "" {
		var pageSize int32
		if _, err := parseIntParam(pageSizeStr, &pageSize); err != nil || pageSize < 1 {
			return NewValidationError(c, "Invalid pageSize (must be positive integer)", nil)
		}
		if pageSize > domain.MaxPageSize {
			pageSize = domain.MaxPageSize
		}
		filters.PageSize = pageSize
	}

	result, err := h.escrowService.List(c.Request().Context(), filters)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list escrow transactions")
		return NewInternalError(c, "Failed to list escrow transactions")
	}

	response := PaginatedEscrowResponse{
		Data:       make([]EscrowTransactionResponse, len(result.Data)),
		Page:       result.Page,
		PageSize:   result.PageSize,
		TotalItems: result.TotalItems,
		TotalPages: result.TotalPages,
	}
	for i, tx := range result.Data {
		response.Data[i] = toEscrowResponse(tx)
	}

	return c.JSON(http.StatusOK, response)
}

// GetByID godoc
// @Summary Get an escrow transaction
// @Tags escrow
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Escrow transaction ID"
// @Success 200 {object} EscrowTransactionResponse
// @Failure 400 {object} ProblemDetails
// @Failure 401 {object} ProblemDetails
// @Failure 404 {object} ProblemDetails
// @Router /escrow/{id} [get]
func (h *EscrowHandler) GetByID(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return NewValidationError(c, "Invalid escrow transaction ID", nil)
	}

	tx, err := h.escrowService.GetByID(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrEscrowTransactionNotFound) {
			return NewNotFoundError(c, "Escrow transaction not found")
		}
		log.Error().Err(err).Str("escrow_id", id.String()).Msg("Failed to get escrow transaction")
		return NewInternalError(c, "Failed to get escrow transaction")
	}

	return c.JSON(http.StatusOK, toEscrowResponse(tx))
}

// GetStoreBalance godoc
// @Summary Get a store's escrow balance
// @Description Summarizes a store's held, eligible, pending, released, and refunded amounts
// @Tags stores
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Store ID"
// @Success 200 {object} StoreBalanceResponse
// @Failure 400 {object} ProblemDetails
// @Failure 401 {object} ProblemDetails
// @Router /stores/{id}/balance [get]
func (h *EscrowHandler) GetStoreBalance(c echo.Context) error {
	var storeID int32
	if _, err := parseIntParam(c.Param("id"), &storeID); err != nil || storeID <= 0 {
		return NewValidationError(c, "Invalid store ID", nil)
	}

	balance, err := h.escrowService.GetStoreBalance(c.Request().Context(), storeID)
	if err != nil {
		log.Error().Err(err).Int32("store_id", storeID).Msg("Failed to get store balance")
		return NewInternalError(c, "Failed to get store balance")
	}

	return c.JSON(http.StatusOK, StoreBalanceResponse{
		StoreID:        balance.StoreID,
		HeldAmount:     balance.HeldAmount.StringFixed(2),
		EligibleAmount: balance.EligibleAmount.StringFixed(2),
		EligibleCount:  balance.EligibleCount,
		PendingPayout:  balance.PendingPayout.StringFixed(2),
		ReleasedToDate: balance.ReleasedToDate.StringFixed(2),
		RefundedToDate: balance.RefundedToDate.StringFixed(2),
	})
}

// toEscrowResponse converts a domain escrow transaction to an API response
func toEscrowResponse(tx *domain.EscrowTransaction) EscrowTransactionResponse {
	resp := EscrowTransactionResponse{
		ID:                   tx.ID.String(),
		PaymentTransactionID: tx.PaymentTransactionID.String(),
		SubOrderID:           tx.SubOrderID.String(),
		StoreID:              tx.StoreID,
		GrossAmount:          tx.GrossAmount.StringFixed(2),
		CommissionAmount:     tx.CommissionAmount.StringFixed(2),
		NetAmount:            tx.NetAmount.StringFixed(2),
		RefundedAmount:       tx.RefundedAmount.StringFixed(2),
		Status:               string(tx.Status),
		RefundNotes:          tx.RefundNotes,
		CreatedAt:            tx.CreatedAt.Format(time.RFC3339),
		UpdatedAt:            tx.UpdatedAt.Format(time.RFC3339),
	}
	if tx.EligibleAt != nil {
		s := tx.EligibleAt.Format(time.RFC3339)
		resp.EligibleAt = &s
	}
	if tx.PayoutID != nil {
		s := tx.PayoutID.String()
		resp.PayoutID = &s
	}
	if tx.ReleasedAt != nil {
		s := tx.ReleasedAt.Format(time.RFC3339)
		resp.ReleasedAt = &s
	}
	return resp
}

// parseIntParam parses a string into an int32, reporting whether a value was present
func parseIntParam(s string, out *int32) (bool, error) {
	if s == "" {
		return false, nil
	}
	v, err := strconv.ParseInt(s, 10, 32)
	if err != nil {
		return false, errors.New("invalid integer")
	}
	*out = int32(v)
	return true, nil
}
