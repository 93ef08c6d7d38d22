package worker

import (
	"context"
	"time"

	"github.com/halftone-io/halftone/internal/logger"
	"github.com/halftone-io/halftone/internal/metrics"
	"github.com/halftone-io/halftone/internal/model"
	"github.com/halftone-io/halftone/internal/quota"
	"github.com/halftone-io/halftone/internal/store"
)

const (
	stuckPendingMessage    = "task was never picked up for processing"
	stuckProcessingMessage = "task processing timed out"
)

// Sweeper is the janitor for the pipeline: it fails tasks that stalled in
// a non-terminal state and performs the daily quota reset.
type Sweeper struct {
	tasks  store.TaskStore
	ledger *quota.Ledger

	stuckPendingAfter    time.Duration
	stuckProcessingAfter time.Duration
}

func NewSweeper(tasks store.TaskStore, ledger *quota.Ledger, stuckPendingAfter, stuckProcessingAfter time.Duration) *Sweeper {
	return &Sweeper{
		tasks:                tasks,
		ledger:               ledger,
		stuckPendingAfter:    stuckPendingAfter,
		stuckProcessingAfter: stuckProcessingAfter,
	}
}

// SweepStuckTasks fails tasks stalled in PENDING (publish was lost or the
// workers are gone) and in PROCESSING (worker died mid-task). Returns the
// total number of tasks failed.
func (s *Sweeper) SweepStuckTasks(ctx context.Context) (int64, error) {
	log := logger.FromContext(ctx)

	pending, err := s.tasks.FailStuck(ctx, model.TaskStatusPending, s.stuckPendingAfter, stuckPendingMessage)
	if err != nil {
		return 0, err
	}
	if pending > 0 {
		metrics.StuckTasksSweptTotal.WithLabelValues(string(model.TaskStatusPending)).Add(float64(pending))
		log.Warn("failed stuck pending tasks", "count", pending, "older_than", s.stuckPendingAfter.String())
	}

	processing, err := s.tasks.FailStuck(ctx, model.TaskStatusProcessing, s.stuckProcessingAfter, stuckProcessingMessage)
	if err != nil {
		return pending, err
	}
	if processing > 0 {
		metrics.StuckTasksSweptTotal.WithLabelValues(string(model.TaskStatusProcessing)).Add(float64(processing))
		log.Warn("failed stuck processing tasks", "count", processing, "older_than", s.stuckProcessingAfter.String())
	}

	return pending + processing, nil
}

// ResetQuotas zeroes every user's daily counter. The lazy per-user reset
// makes this a backstop, not a correctness requirement.
func (s *Sweeper) ResetQuotas(ctx context.Context) (int64, error) {
	n, err := s.ledger.ResetAll(ctx)
	if err != nil {
		return 0, err
	}
	metrics.QuotaResetsTotal.Inc()
	logger.FromContext(ctx).Info("daily quota reset completed", "counters_reset", n)
	return n, nil
}

// Run drives both sweeps on tickers until the context is cancelled. The
// quota reset fires shortly after each UTC midnight.
func (s *Sweeper) Run(ctx context.Context, sweepInterval time.Duration) error {
	log := logger.FromContext(ctx)
	log.Info("sweeper started",
		"sweep_interval", sweepInterval.String(),
		"stuck_pending_after", s.stuckPendingAfter.String(),
		"stuck_processing_after", s.stuckProcessingAfter.String())

	sweepTicker := time.NewTicker(sweepInterval)
	defer sweepTicker.Stop()

	resetTimer := time.NewTimer(untilNextUTCMidnight(time.Now()))
	defer resetTimer.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("sweeper stopping")
			return ctx.Err()
		case <-sweepTicker.C:
			if _, err := s.SweepStuckTasks(ctx); err != nil {
				log.Error("stuck task sweep failed", "error", err)
			}
		case <-resetTimer.C:
			if _, err := s.ResetQuotas(ctx); err != nil {
				log.Error("quota reset failed", "error", err)
			}
			resetTimer.Reset(untilNextUTCMidnight(time.Now()))
		}
	}
}

func untilNextUTCMidnight(now time.Time) time.Duration {
	now = now.UTC()
	next := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).Add(24 * time.Hour)
	return next.Sub(now)
}
