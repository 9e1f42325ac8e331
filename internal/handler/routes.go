package handler

import (
	"github.com/labstack/echo/v4"
	"github.com/soukly/soukly-backend/internal/middleware"
)

// RegisterRoutes sets up all API routes. The webhook ingestion endpoints
// take machine tokens only; the operator API takes an operator JWT or a
// machine token. API token traffic is rate limited per token.
func RegisterRoutes(e *echo.Echo, dualAuth *middleware.DualAuthMiddleware, rateLimiter *middleware.RateLimiter, escrowHandler *EscrowHandler, payoutHandler *PayoutHandler, scheduleHandler *ScheduleHandler, sweepHandler *SweepHandler, wsHandler *WebSocketHandler) {
	// API version 1
	api := e.Group("/api/v1")
	api.Use(middleware.RateLimitMiddleware(rateLimiter))

	// Webhook ingestion routes (machine tokens only)
	escrowWebhooks := api.Group("/escrow")
	escrowWebhooks.Use(dualAuth.APITokenOnly())
	escrowWebhooks.POST("/allocations", escrowHandler.Allocate)
	escrowWebhooks.POST("/eligibility", escrowHandler.MarkEligible)

	// Escrow ledger routes (operator or machine token)
	escrow := api.Group("/escrow")
	escrow.Use(dualAuth.Authenticate())
	escrow.GET("", escrowHandler.List)
	escrow.GET("/:id", escrowHandler.GetByID)
	escrow.POST("/:id/refund", escrowHandler.Refund)

	// Store routes (operator or machine token)
	stores := api.Group("/stores")
	stores.Use(dualAuth.Authenticate())
	stores.GET("/:id/balance", escrowHandler.GetStoreBalance)
	stores.GET("/:id/schedule", scheduleHandler.GetByStore)
	stores.PUT("/:id/schedule", scheduleHandler.Upsert)

	// Payout routes (operator or machine token)
	payouts := api.Group("/payouts")
	payouts.Use(dualAuth.Authenticate())
	payouts.GET("", payoutHandler.List)
	payouts.GET("/:id", payoutHandler.GetByID)
	payouts.GET("/:id/remittance", payoutHandler.GetRemittance)
	payouts.POST("/:id/process", payoutHandler.Process)

	// Sweep routes (operator JWTs only)
	sweeps := api.Group("/sweeps")
	sweeps.Use(dualAuth.JWTOnly())
	sweeps.POST("/run", sweepHandler.Run)

	// WebSocket endpoint (token validated in the handler)
	e.GET("/ws", wsHandler.HandleWS)
}
