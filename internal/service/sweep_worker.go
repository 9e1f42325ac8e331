package service

import (
	"bytes"
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/soukly/soukly-backend/internal/repository/storage"
	"github.com/soukly/soukly-backend/internal/websocket"
)

// SweepSummary reports what one orchestrator run did, stage by stage.
type SweepSummary struct {
	RanAt            time.Time     `json:"ranAt"`
	Reconciled       int           `json:"reconciled"`
	EscrowClaimed    int           `json:"escrowClaimed"`
	ScheduledCreated int           `json:"scheduledCreated"`
	PayoutsCompleted int           `json:"payoutsCompleted"`
	PayoutsFailed    int           `json:"payoutsFailed"`
	RetriesCompleted int           `json:"retriesCompleted"`
	Errors           []string      `json:"errors,omitempty"`
	Elapsed          time.Duration `json:"elapsed"`
}

// SweepWorker is the batch orchestrator: a background worker that
// periodically runs the staged payout pipeline. Stages run in a fixed order
// and each stage is idempotent, so an interrupted run is simply absorbed by
// the next one.
type SweepWorker struct {
	escrowService   *EscrowService
	scheduleService *ScheduleService
	payoutService   *PayoutService
	reportStore     storage.ReportStore
	eventPublisher  websocket.EventPublisher
	logger          zerolog.Logger
	interval        time.Duration
	stopCh          chan struct{}
	doneCh          chan struct{}
	mu              sync.Mutex
	running         bool
}

// SweepWorkerConfig holds configuration for the sweep worker
type SweepWorkerConfig struct {
	Interval time.Duration // How often to run the payout sweep
}

// DefaultSweepWorkerConfig returns sensible defaults
func DefaultSweepWorkerConfig() SweepWorkerConfig {
	return SweepWorkerConfig{
		Interval: 15 * time.Minute,
	}
}

// NewSweepWorker creates a new sweep worker
func NewSweepWorker(
	escrowService *EscrowService,
	scheduleService *ScheduleService,
	payoutService *PayoutService,
	logger zerolog.Logger,
	config SweepWorkerConfig,
) *SweepWorker {
	if config.Interval <= 0 {
		config.Interval = 15 * time.Minute
	}

	return &SweepWorker{
		escrowService:   escrowService,
		scheduleService: scheduleService,
		payoutService:   payoutService,
		logger:          logger.With().Str("component", "sweep_worker").Logger(),
		interval:        config.Interval,
		stopCh:          make(chan struct{}),
		doneCh:          make(chan struct{}),
	}
}

// SetEventPublisher sets the event publisher for sweep summaries
func (w *SweepWorker) SetEventPublisher(publisher websocket.EventPublisher) {
	w.eventPublisher = publisher
}

// SetReportStore sets the archive for sweep summary documents
func (w *SweepWorker) SetReportStore(store storage.ReportStore) {
	w.reportStore = store
}

// Start begins the background payout sweep
func (w *SweepWorker) Start(ctx context.Context) {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return
	}
	w.running = true
	w.mu.Unlock()

	w.logger.Info().
		Dur("interval", w.interval).
		Msg("Starting sweep worker")

	go w.run(ctx)
}

// Stop gracefully stops the sweep worker
func (w *SweepWorker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.mu.Unlock()

	w.logger.Info().Msg("Stopping sweep worker")
	close(w.stopCh)
	<-w.doneCh
	w.logger.Info().Msg("Sweep worker stopped")
}

// run is the main loop for the sweep worker
func (w *SweepWorker) run(ctx context.Context) {
	defer close(w.doneCh)

	// Run immediately on startup
	w.RunOnce(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.mu.Lock()
			w.running = false
			w.mu.Unlock()
			return
		case <-w.stopCh:
			w.mu.Lock()
			w.running = false
			w.mu.Unlock()
			return
		case <-ticker.C:
			w.RunOnce(ctx)
		}
	}
}

// RunOnce executes the staged pipeline a single time: reconcile stuck
// payouts, claim ripe escrow into payouts, generate scheduled payouts,
// process everything pending, then retry earlier failures. A stage error is
// recorded and the remaining stages still run.
func (w *SweepWorker) RunOnce(ctx context.Context) *SweepSummary {
	startTime := time.Now()
	summary := &SweepSummary{RanAt: startTime.UTC()}

	w.logger.Debug().Msg("Starting payout sweep")

	reconciled, err := w.payoutService.ReconcileStale(ctx)
	if err != nil {
		w.logger.Error().Err(err).Msg("Reconcile stage failed")
		summary.Errors = append(summary.Errors, err.Error())
	}
	summary.Reconciled = reconciled

	claimed, err := w.escrowService.ProcessEligiblePayouts(ctx)
	if err != nil {
		w.logger.Error().Err(err).Msg("Eligibility stage failed")
		summary.Errors = append(summary.Errors, err.Error())
	}
	summary.EscrowClaimed = claimed

	scheduled, err := w.scheduleService.GenerateScheduledPayouts(ctx)
	if err != nil {
		w.logger.Error().Err(err).Msg("Schedule stage failed")
		summary.Errors = append(summary.Errors, err.Error())
	}
	summary.ScheduledCreated = scheduled

	completed, failed, err := w.payoutService.ProcessPending(ctx)
	if err != nil {
		w.logger.Error().Err(err).Msg("Processing stage failed")
		summary.Errors = append(summary.Errors, err.Error())
	}
	summary.PayoutsCompleted = completed
	summary.PayoutsFailed = failed

	retried, err := w.payoutService.RetryFailedPayouts(ctx)
	if err != nil {
		w.logger.Error().Err(err).Msg("Retry stage failed")
		summary.Errors = append(summary.Errors, err.Error())
	}
	summary.RetriesCompleted = retried

	summary.Elapsed = time.Since(startTime)

	w.logger.Info().
		Int("reconciled", summary.Reconciled).
		Int("escrow_claimed", summary.EscrowClaimed).
		Int("scheduled_created", summary.ScheduledCreated).
		Int("payouts_completed", summary.PayoutsCompleted).
		Int("payouts_failed", summary.PayoutsFailed).
		Int("retries_completed", summary.RetriesCompleted).
		Int("errors", len(summary.Errors)).
		Dur("elapsed", summary.Elapsed).
		Msg("Completed payout sweep")

	if w.eventPublisher != nil {
		w.eventPublisher.Publish(websocket.OperatorChannel, websocket.SweepCompleted(summary))
	}
	w.archiveSummary(ctx, summary)

	return summary
}

// archiveSummary writes the sweep summary to the report archive. Failures
// are logged only; the summary also went out over the event stream.
func (w *SweepWorker) archiveSummary(ctx context.Context, summary *SweepSummary) {
	if w.reportStore == nil {
		return
	}

	data, err := json.Marshal(summary)
	if err != nil {
		w.logger.Error().Err(err).Msg("Failed to serialize sweep summary")
		return
	}

	objectPath := storage.SweepReportPath(summary.RanAt)
	if _, err := w.reportStore.Upload(ctx, objectPath, bytes.NewReader(data), "application/json", int64(len(data))); err != nil {
		w.logger.Warn().
			Err(err).
			Str("object_path", objectPath).
			Msg("Failed to archive sweep summary")
	}
}

// IsRunning returns whether the worker is currently running
func (w *SweepWorker) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}
