package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	echoSwagger "github.com/swaggo/echo-swagger"

	"github.com/soukly/soukly-backend/internal/config"
	"github.com/soukly/soukly-backend/internal/domain"
	"github.com/soukly/soukly-backend/internal/gateway"
	"github.com/soukly/soukly-backend/internal/handler"
	"github.com/soukly/soukly-backend/internal/middleware"
	"github.com/soukly/soukly-backend/internal/repository/postgres"
	"github.com/soukly/soukly-backend/internal/repository/storage"
	"github.com/soukly/soukly-backend/internal/service"
	"github.com/soukly/soukly-backend/internal/websocket"
)

func main() {
	// Initialize zerolog
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if os.Getenv("ENV") != "production" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Connect to database
	pool, err := pgxpool.New(context.Background(), cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer pool.Close()

	// Verify database connection
	if err := pool.Ping(context.Background()); err != nil {
		log.Fatal().Err(err).Msg("Failed to ping database")
	}
	log.Info().Msg("Connected to database")

	// Initialize repositories
	escrowRepo := postgres.NewEscrowRepository(pool)
	payoutRepo := postgres.NewPayoutRepository(pool)
	scheduleRepo := postgres.NewScheduleRepository(pool)
	paymentRepo := postgres.NewPaymentRepository(pool)
	storeRepo := postgres.NewStoreRepository(pool)
	apiTokenRepo := postgres.NewAPITokenRepository(pool)

	// Initialize external gateways
	commissionClient := gateway.NewCommissionClient(cfg.CommissionServiceURL)
	transferClient := gateway.NewTransferClient(cfg.TransferGatewayURL, cfg.TransferGatewayKey)

	clock := domain.SystemClock{}
	retryPolicy := domain.RetryPolicy{
		Base:       cfg.Payout.RetryBase,
		Factor:     cfg.Payout.RetryFactor,
		Max:        cfg.Payout.RetryMax,
		MaxRetries: cfg.Payout.MaxRetries,
	}

	// Initialize services
	payoutService := service.NewPayoutService(payoutRepo, escrowRepo, storeRepo, transferClient, clock, retryPolicy, cfg.Payout.ProcessingTimeout)
	escrowService := service.NewEscrowService(paymentRepo, escrowRepo, scheduleRepo, commissionClient, payoutService, clock, retryPolicy)
	scheduleService := service.NewScheduleService(scheduleRepo, escrowRepo, payoutService, clock, retryPolicy)
	apiTokenService := service.NewAPITokenService(apiTokenRepo, clock)

	// WebSocket hub for real-time ledger and payout events
	hub := websocket.NewHub()
	escrowService.SetEventPublisher(hub)
	payoutService.SetEventPublisher(hub)

	// Sweep worker drives scheduled payouts, retries, and reconciliation
	sweepWorker := service.NewSweepWorker(escrowService, scheduleService, payoutService, log.Logger, service.SweepWorkerConfig{
		Interval: cfg.Payout.SweepInterval,
	})
	sweepWorker.SetEventPublisher(hub)

	// Remittance and sweep report archive (optional)
	if cfg.S3.Bucket != "" {
		reportStore, err := storage.NewS3ReportStore(context.Background(), cfg.S3)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create report store")
		}
		payoutService.SetReportStore(reportStore)
		sweepWorker.SetReportStore(reportStore)
		log.Info().Str("bucket", cfg.S3.Bucket).Msg("Report archive enabled")
	}

	// Initialize auth middleware
	authMiddleware, err := middleware.NewAuthMiddleware(cfg.Auth0Domain, cfg.Auth0Audience)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create auth middleware")
	}
	apiTokenAuth := middleware.NewAPITokenAuthMiddleware(apiTokenService)
	dualAuth := middleware.NewDualAuthMiddleware(authMiddleware, apiTokenAuth)

	rateLimiter := middleware.NewRateLimiter()
	defer rateLimiter.Stop()

	// JWT validation for WebSocket connections
	wsValidator, err := websocket.NewAuth0JWTValidator(cfg.Auth0Domain, cfg.Auth0Audience)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create WebSocket JWT validator")
	}

	// Initialize handlers
	escrowHandler := handler.NewEscrowHandler(escrowService)
	payoutHandler := handler.NewPayoutHandler(payoutService)
	scheduleHandler := handler.NewScheduleHandler(scheduleService)
	sweepHandler := handler.NewSweepHandler(sweepWorker)
	wsHandler := handler.NewWebSocketHandler(hub, wsValidator, cfg.CORSOrigins)

	// Create Echo instance
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Request ID middleware
	e.Use(echomiddleware.RequestID())

	// CORS middleware
	e.Use(echomiddleware.CORSWithConfig(echomiddleware.CORSConfig{
		AllowOrigins:     cfg.CORSOrigins,
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowHeaders:     []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	// Security headers middleware (helmet-like)
	e.Use(echomiddleware.SecureWithConfig(echomiddleware.SecureConfig{
		XSSProtection:         "1; mode=block",
		ContentTypeNosniff:    "nosniff",
		XFrameOptions:         "DENY",
		HSTSMaxAge:            31536000,
		ContentSecurityPolicy: "default-src 'self'",
		ReferrerPolicy:        "strict-origin-when-cross-origin",
	}))

	// Request logging middleware with zerolog
	e.Use(zerologMiddleware())

	// Recovery middleware
	e.Use(echomiddleware.Recover())

	// Health check endpoint
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	// API documentation
	e.GET("/swagger/*", echoSwagger.WrapHandler)
	e.GET("/openapi.json", handler.ServeOpenAPI3Spec)

	// Register API routes
	handler.RegisterRoutes(e, dualAuth, rateLimiter, escrowHandler, payoutHandler, scheduleHandler, sweepHandler, wsHandler)

	// Start background sweep
	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()
	sweepWorker.Start(workerCtx)

	// Start server in goroutine
	go func() {
		log.Info().Str("port", cfg.Port).Msg("Starting server")
		if err := e.Start(":" + cfg.Port); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	sweepWorker.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited")
}

// zerologMiddleware returns a middleware that logs requests using zerolog
func zerologMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			err := next(c)
			if err != nil {
				c.Error(err)
			}

			req := c.Request()
			res := c.Response()

			log.Info().
				Str("method", req.Method).
				Str("path", req.URL.Path).
				Int("status", res.Status).
				Dur("latency", time.Since(start)).
				Str("request_id", res.Header().Get(echo.HeaderXRequestID)).
				Msg("request")

			return nil
		}
	}
}
