package jobs

import (
	"context"
	"time"

	"lytter/internal/ingest"
	"lytter/internal/logging"
	"lytter/internal/metrics"
)

// RunUpdateOnce performs one incremental sync with metrics around it.
func RunUpdateOnce(ctx context.Context, ctrl *ingest.Controller) (ingest.Report, error) {
	start := time.Now()
	metrics.SyncRuns.Inc()
	rep, err := ctrl.Run(ctx, ingest.Options{Mode: ingest.ModeIncremental})
	if err != nil {
		metrics.SyncErrors.Inc()
		return rep, err
	}
	metrics.ObserveSyncDuration(start)
	return rep, nil
}

// RunUpdateLoop runs RunUpdateOnce on a ticker until ctx is cancelled. A
// failed cycle is logged and the loop waits for the next tick; a scheduled
// run must not take the process down.
func RunUpdateLoop(ctx context.Context, ctrl *ingest.Controller, interval time.Duration) error {
	t := time.NewTicker(interval)
	defer t.Stop()
	// run immediately
	if _, err := RunUpdateOnce(ctx, ctrl); err != nil {
		logging.Error("update_once_error", map[string]any{"error": err.Error()})
	}
	for {
		select {
		case <-ctx.Done():
			logging.Info("update_loop_stop", nil)
			return ctx.Err()
		case <-t.C:
			if _, err := RunUpdateOnce(ctx, ctrl); err != nil {
				logging.Error("update_once_error", map[string]any{"error": err.Error()})
			}
		}
	}
}
