package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
	"github.com/soukly/soukly-backend/internal/domain"
	"github.com/soukly/soukly-backend/internal/service"
)

// PayoutHandler handles payout HTTP requests
type PayoutHandler struct {
	payoutService *service.PayoutService
}

// NewPayoutHandler creates a new PayoutHandler
func NewPayoutHandler(payoutService *service.PayoutService) *PayoutHandler {
	return &PayoutHandler{
		payoutService: payoutService,
	}
}

// PayoutResponse represents a payout in API responses
type PayoutResponse struct {
	ID                string  `json:"id"`
	StoreID           int32   `json:"storeId"`
	ScheduledDate     string  `json:"scheduledDate"`
	Amount            string  `json:"amount"`
	Currency          string  `json:"currency"`
	Status            string  `json:"status"`
	RetryCount        int32   `json:"retryCount"`
	NextRetryAt       *string `json:"nextRetryAt,omitempty"`
	FailureReason     *string `json:"failureReason,omitempty"`
	TransferReference *string `json:"transferReference,omitempty"`
	ProcessedAt       *string `json:"processedAt,omitempty"`
	CompletedAt       *string `json:"completedAt,omitempty"`
	CreatedAt         string  `json:"createdAt"`
	UpdatedAt         string  `json:"updatedAt"`
}

// PayoutDetailResponse represents a payout with its linked escrow transactions
type PayoutDetailResponse struct {
	PayoutResponse
	Transactions []EscrowTransactionResponse `json:"transactions"`
}

// PaginatedPayoutsResponse represents paginated payouts
type PaginatedPayoutsResponse struct {
	Data       []PayoutResponse `json:"data"`
	Page       int32            `json:"page"`
	PageSize   int32            `json:"pageSize"`
	TotalItems int64            `json:"totalItems"`
	TotalPages int32            `json:"totalPages"`
}

// List godoc
// @Summary List payouts
// @Description Get paginated payouts with optional filters
// @Tags payouts
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param storeId query int false "Filter by store ID"
// @Param status query string false "Filter by status"
// @Param page query int false "Page number" default(1)
// @Param pageSize query int false "Items per page" default(20)
// @Success 200 {object} PaginatedPayoutsResponse
// @Failure 400 {object} ProblemDetails
// @Failure 401 {object} ProblemDetails
// @Router /payouts [get]
func (h *PayoutHandler) List(c echo.Context) error {
	filters := &domain.PayoutFilters{
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
		status := domain.PayoutStatus(statusStr)
		switch status {
		case domain.PayoutStatusPending, domain.PayoutStatusProcessing,
			domain.PayoutStatusCompleted, domain.PayoutStatusFailed:
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

	result, err := h.payoutService.List(c.Request().Context(), filters)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list payouts")
		return NewInternalError(c, "Failed to list payouts")
	}

	response := PaginatedPayoutsResponse{
		Data:       make([]PayoutResponse, len(result.Data)),
		Page:       result.Page,
		PageSize:   result.PageSize,
		TotalItems: result.TotalItems,
		TotalPages: result.TotalPages,
	}
	for i, payout := range result.Data {
		response.Data[i] = toPayoutResponse(payout)
	}

	return c.JSON(http.StatusOK, response)
}

// GetByID godoc
// @Summary Get a payout
// @Description Get a payout together with its linked escrow transactions
// @Tags payouts
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Payout ID"
// @Success 200 {object} PayoutDetailResponse
// @Failure 400 {object} ProblemDetails
// @Failure 401 {object} ProblemDetails
// @Failure 404 {object} ProblemDetails
// @Router /payouts/{id} [get]
func (h *PayoutHandler) GetByID(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return NewValidationError(c, "Invalid payout ID", nil)
	}

	payout, err := h.payoutService.GetByID(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrPayoutNotFound) {
			return NewNotFoundError(c, "Payout not found")
		}
		log.Error().Err(err).Str("payout_id", id.String()).Msg("Failed to get payout")
		return NewInternalError(c, "Failed to get payout")
	}

	linked, err := h.payoutService.ListEscrowTransactions(c.Request().Context(), id)
	if err != nil {
		log.Error().Err(err).Str("payout_id", id.String()).Msg("Failed to load payout transactions")
		return NewInternalError(c, "Failed to get payout")
	}

	response := PayoutDetailResponse{
		PayoutResponse: toPayoutResponse(payout),
		Transactions:   make([]EscrowTransactionResponse, len(linked)),
	}
	for i, tx := range linked {
		response.Transactions[i] = toEscrowResponse(tx)
	}

	return c.JSON(http.StatusOK, response)
}

// Process godoc
// @Summary Process a payout
// @Description Pushes one payout through the funds transfer gateway immediately
// @Tags payouts
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Payout ID"
// @Success 200 {object} PayoutResponse
// @Failure 400 {object} ProblemDetails
// @Failure 401 {object} ProblemDetails
// @Failure 404 {object} ProblemDetails
// @Failure 409 {object} ProblemDetails
// @Failure 422 {object} ProblemDetails
// @Router /payouts/{id}/process [post]
func (h *PayoutHandler) Process(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return NewValidationError(c, "Invalid payout ID", nil)
	}

	payout, err := h.payoutService.Process(c.Request().Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrPayoutNotFound):
			return NewNotFoundError(c, "Payout not found")
		case errors.Is(err, domain.ErrInvalidTransition):
			return NewConflictError(c, "Payout cannot be processed in its current state")
		case errors.Is(err, domain.ErrRetriesExhausted):
			return NewConflictError(c, "Payout retry limit is exhausted")
		case errors.Is(err, domain.ErrVersionConflict):
			return NewConflictError(c, "Payout is being processed concurrently")
		case errors.Is(err, domain.ErrPayoutAmountMismatch):
			return NewUnprocessableError(c, "Linked escrow sum does not equal payout amount")
		case errors.Is(err, domain.ErrNotYetEligible), errors.Is(err, domain.ErrAlreadyReleased):
			return NewUnprocessableError(c, "A linked escrow transaction is not releasable")
		}

		var transferErr *domain.TransferError
		if errors.As(err, &transferErr) {
			return NewUnprocessableError(c, "Transfer failed: "+transferErr.Reason)
		}

		log.Error().Err(err).Str("payout_id", id.String()).Msg("Failed to process payout")
		return NewInternalError(c, "Failed to process payout")
	}

	log.Info().
		Str("payout_id", id.String()).
		Int32("store_id", payout.StoreID).
		Str("amount", payout.Amount.StringFixed(2)).
		Msg("Payout processed")

	return c.JSON(http.StatusOK, toPayoutResponse(payout))
}

// RemittanceResponse carries a short-lived link to an archived remittance
// document
type RemittanceResponse struct {
	URL string `json:"url"`
}

// GetRemittance godoc
// @Summary Get a payout's remittance document
// @Description Returns a short-lived presigned URL for the archived remittance document of a completed payout
// @Tags payouts
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Payout ID"
// @Success 200 {object} RemittanceResponse
// @Failure 400 {object} ProblemDetails
// @Failure 401 {object} ProblemDetails
// @Failure 404 {object} ProblemDetails
// @Router /payouts/{id}/remittance [get]
func (h *PayoutHandler) GetRemittance(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return NewValidationError(c, "Invalid payout ID", nil)
	}

	url, err := h.payoutService.RemittanceURL(c.Request().Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrPayoutNotFound):
			return NewNotFoundError(c, "Payout not found")
		case errors.Is(err, domain.ErrRemittanceNotAvailable):
			return NewNotFoundError(c, "No remittance document for this payout")
		}
		log.Error().Err(err).Str("payout_id", id.String()).Msg("Failed to presign remittance URL")
		return NewInternalError(c, "Failed to get remittance document")
	}

	return c.JSON(http.StatusOK, RemittanceResponse{URL: url})
}

// toPayoutResponse converts a domain payout to an API response
func toPayoutResponse(payout *domain.Payout) PayoutResponse {
	resp := PayoutResponse{
		ID:                payout.ID.String(),
		StoreID:           payout.StoreID,
		ScheduledDate:     payout.ScheduledDate.Format(time.RFC3339),
		Amount:            payout.Amount.StringFixed(2),
		Currency:          payout.Currency,
		Status:            string(payout.Status),
		RetryCount:        payout.RetryCount,
		FailureReason:     payout.FailureReason,
		TransferReference: payout.TransferReference,
		CreatedAt:         payout.CreatedAt.Format(time.RFC3339),
		UpdatedAt:         payout.UpdatedAt.Format(time.RFC3339),
	}
	if payout.NextRetryAt != nil {
		s := payout.NextRetryAt.Format(time.RFC3339)
		resp.NextRetryAt = &s
	}
	if payout.ProcessedAt != nil {
		s := payout.ProcessedAt.Format(time.RFC3339)
		resp.ProcessedAt = &s
	}
	if payout.CompletedAt != nil {
		s := payout.CompletedAt.Format(time.RFC3339)
		resp.CompletedAt = &s
	}
	return resp
}
