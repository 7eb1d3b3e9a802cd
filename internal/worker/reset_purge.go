package worker

import (
	"context"
	"log/slog"
	"time"
)

// ResetPurgeStore defines the account operations needed by the purge worker.
type ResetPurgeStore interface {
	PurgeExpiredResets(ctx context.Context, threshold time.Time) (int64, error)
}

// ResetPurgeWorker periodically deletes expired password-reset requests.
type ResetPurgeWorker struct {
	store    ResetPurgeStore
	interval time.Duration
	now      func() time.Time
}

// NewResetPurgeWorker creates a worker with the given store and interval.
func NewResetPurgeWorker(store ResetPurgeStore, interval time.Duration) *ResetPurgeWorker {
	return &ResetPurgeWorker{
		store:    store,
		interval: interval,
		now:      time.Now,
	}
}

// Run starts the worker loop. Blocks until ctx is cancelled.
// The first purge happens one interval after start.
func (w *ResetPurgeWorker) Run(ctx context.Context) {
	slog.Info("worker started",
		"component", "worker",
		"worker", "reset-purge",
		"interval", w.interval.String(),
	)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("worker stopped",
				"component", "worker",
				"worker", "reset-purge",
				"reason", "context_cancelled",
			)
			return
		case <-ticker.C:
			w.runPurge(ctx)
		}
	}
}

// runPurge executes a single purge cycle.
func (w *ResetPurgeWorker) runPurge(ctx context.Context) {
	start := w.now()

	affected, err := w.store.PurgeExpiredResets(ctx, start)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		slog.Error("reset purge failed",
			"component", "worker",
			"action", "purge_failed",
			"error", err,
		)
		return
	}

	slog.Info("reset purge completed",
		"component", "worker",
		"action", "purge_complete",
		"affected", affected,
		"duration_ms", time.Since(start).Milliseconds(),
	)
}
