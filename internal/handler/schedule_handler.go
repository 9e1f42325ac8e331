package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"github.com/soukly/soukly-backend/internal/domain"
	"github.com/soukly/soukly-backend/internal/service"
)

// ScheduleHandler handles payout schedule HTTP requests
type ScheduleHandler struct {
	scheduleService *service.ScheduleService
}

// NewScheduleHandler creates a new ScheduleHandler
func NewScheduleHandler(scheduleService *service.ScheduleService) *ScheduleHandler {
	return &ScheduleHandler{
		scheduleService: scheduleService,
	}
}

// ScheduleRequest represents the schedule upsert request body
type ScheduleRequest struct {
	Frequency        string `json:"frequency"`
	DayOfWeek        *int32 `json:"dayOfWeek,omitempty"`
	DayOfMonth       *int32 `json:"dayOfMonth,omitempty"`
	MinimumThreshold string `json:"minimumThreshold"`
}

// ScheduleResponse represents a payout schedule in API responses
type ScheduleResponse struct {
	StoreID          int32   `json:"storeId"`
	Frequency        string  `json:"frequency"`
	DayOfWeek        *int32  `json:"dayOfWeek,omitempty"`
	DayOfMonth       *int32  `json:"dayOfMonth,omitempty"`
	MinimumThreshold string  `json:"minimumThreshold"`
	LastRunAt        *string `json:"lastRunAt,omitempty"`
	CreatedAt        string  `json:"createdAt"`
	UpdatedAt        string  `json:"updatedAt"`
}

// Upsert godoc
// @Summary Set a store's payout schedule
// @Description Creates or wholesale-replaces the store's payout schedule
// @Tags schedules
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Store ID"
// @Param request body ScheduleRequest true "Schedule request"
// @Success 200 {object} ScheduleResponse
// @Failure 400 {object} ProblemDetails
// @Failure 401 {object} ProblemDetails
// @Router /stores/{id}/schedule [put]
func (h *ScheduleHandler) Upsert(c echo.Context) error {
	var storeID int32
	if _, err := parseIntParam(c.Param("id"), &storeID); err != nil || storeID <= 0 {
		return NewValidationError(c, "Invalid store ID", nil)
	}

	var req ScheduleRequest
	if err := c.Bind(&req); err != nil {
		return NewValidationError(c, "Invalid request body", nil)
	}

	threshold := decimal.Zero
	if req.MinimumThreshold != "" {
		parsed, err := decimal.NewFromString(req.MinimumThreshold)
		if err != nil {
			return NewValidationError(c, "Validation failed", []ValidationError{
				{Field: "minimumThreshold", Message: "Must be a valid decimal number"},
			})
		}
		threshold = parsed
	}

	schedule, err := h.scheduleService.Upsert(c.Request().Context(), storeID, service.UpsertScheduleInput{
		Frequency:        domain.Frequency(req.Frequency),
		DayOfWeek:        req.DayOfWeek,
		DayOfMonth:       req.DayOfMonth,
		MinimumThreshold: threshold,
	})
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidFrequency):
			return NewValidationError(c, "Validation failed", []ValidationError{
				{Field: "frequency", Message: "Must be one of: daily, weekly, monthly"},
			})
		case errors.Is(err, domain.ErrInvalidDayOfWeek):
			return NewValidationError(c, "Validation failed", []ValidationError{
				{Field: "dayOfWeek", Message: "Must be between 0 (Sunday) and 6 (Saturday)"},
			})
		case errors.Is(err, domain.ErrInvalidDayOfMonth):
			return NewValidationError(c, "Validation failed", []ValidationError{
				{Field: "dayOfMonth", Message: "Must be between 1 and 28"},
			})
		case errors.Is(err, domain.ErrInvalidThreshold):
			return NewValidationError(c, "Validation failed", []ValidationError{
				{Field: "minimumThreshold", Message: "Must not be negative"},
			})
		default:
			log.Error().Err(err).Int32("store_id", storeID).Msg("Failed to upsert schedule")
			return NewInternalError(c, "Failed to save schedule")
		}
	}

	log.Info().
		Int32("store_id", storeID).
		Str("frequency", string(schedule.Frequency)).
		Msg("Payout schedule saved")

	return c.JSON(http.StatusOK, toScheduleResponse(schedule))
}

// GetByStore godoc
// @Summary Get a store's payout schedule
// @Tags schedules
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Store ID"
// @Success 200 {object} ScheduleResponse
// @Failure 400 {object} ProblemDetails
// @Failure 401 {object} ProblemDetails
// @Failure 404 {object} ProblemDetails
// @Router /stores/{id}/schedule [get]
func (h *ScheduleHandler) GetByStore(c echo.Context) error {
	var storeID int32
	if _, err := parseIntParam(c.Param("id"), &storeID); err != nil || storeID <= 0 {
		return NewValidationError(c, "Invalid store ID", nil)
	}

	schedule, err := h.scheduleService.GetByStore(c.Request().Context(), storeID)
	if err != nil {
		if errors.Is(err, domain.ErrScheduleNotFound) {
			return NewNotFoundError(c, "Store has no payout schedule")
		}
		log.Error().Err(err).Int32("store_id", storeID).Msg("Failed to get schedule")
		return NewInternalError(c, "Failed to get schedule")
	}

	return c.JSON(http.StatusOK, toScheduleResponse(schedule))
}

// toScheduleResponse converts a domain schedule to an API response
func toScheduleResponse(schedule *domain.PayoutSchedule) ScheduleResponse {
	resp := ScheduleResponse{
		StoreID:          schedule.StoreID,
		Frequency:        string(schedule.Frequency),
		DayOfWeek:        schedule.DayOfWeek,
		DayOfMonth:       schedule.DayOfMonth,
		MinimumThreshold: schedule.MinimumThreshold.StringFixed(2),
		CreatedAt:        schedule.CreatedAt.Format(time.RFC3339),
		UpdatedAt:        schedule.UpdatedAt.Format(time.RFC3339),
	}
	if schedule.LastRunAt != nil {
		s := schedule.LastRunAt.Format(time.RFC3339)
		resp.LastRunAt = &s
	}
	return resp
}
