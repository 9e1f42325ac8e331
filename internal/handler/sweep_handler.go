package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
	"github.com/soukly/soukly-backend/internal/service"
)

// SweepHandler exposes the batch orchestrator for on-demand runs
type SweepHandler struct {
	worker *service.SweepWorker
}

// NewSweepHandler creates a new SweepHandler
func NewSweepHandler(worker *service.SweepWorker) *SweepHandler {
	return &SweepHandler{
		worker: worker,
	}
}

// SweepSummaryResponse represents the result of one sweep run
type SweepSummaryResponse struct {
	RanAt            string   `json:"ranAt"`
	Reconciled       int      `json:"reconciled"`
	EscrowClaimed    int      `json:"escrowClaimed"`
	ScheduledCreated int      `json:"scheduledCreated"`
	PayoutsCompleted int      `json:"payoutsCompleted"`
	PayoutsFailed    int      `json:"payoutsFailed"`
	RetriesCompleted int      `json:"retriesCompleted"`
	Errors           []string `json:"errors,omitempty"`
	ElapsedMs        int64    `json:"elapsedMs"`
}

// Run godoc
// @Summary Run a payout sweep now
// @Description Executes the staged payout pipeline once, outside the periodic cadence
// @Tags sweeps
// @Accept json
// @Produce json
// @Security BearerAuth
// @Success 200 {object} SweepSummaryResponse
// @Failure 401 {object} ProblemDetails
// @Router /sweeps/run [post]
func (h *SweepHandler) Run(c echo.Context) error {
	summary := h.worker.RunOnce(c.Request().Context())

	log.Info().
		Int("escrow_claimed", summary.EscrowClaimed).
		Int("payouts_completed", summary.PayoutsCompleted).
		Int("errors", len(summary.Errors)).
		Msg("On-demand sweep completed")

	return c.JSON(http.StatusOK, SweepSummaryResponse{
		RanAt:            summary.RanAt.Format(time.RFC3339),
		Reconciled:       summary.Reconciled,
		EscrowClaimed:    summary.EscrowClaimed,
		ScheduledCreated: summary.ScheduledCreated,
		PayoutsCompleted: summary.PayoutsCompleted,
		PayoutsFailed:    summary.PayoutsFailed,
		RetriesCompleted: summary.RetriesCompleted,
		Errors:           summary.Errors,
		ElapsedMs:        summary.Elapsed.Milliseconds(),
	})
}
