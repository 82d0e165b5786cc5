package watch

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"astrodriz/internal/ledger"
	"astrodriz/internal/logging"
)

// heartbeatMonitor keeps in-flight runs marked alive and reclaims runs
// whose heartbeats expired, so a crashed service never strands work in a
// processing status.
type heartbeatMonitor struct {
	store    *ledger.Store
	logger   *slog.Logger
	interval time.Duration
	timeout  time.Duration
}

func newHeartbeatMonitor(store *ledger.Store, logger *slog.Logger, interval, timeout time.Duration) *heartbeatMonitor {
	return &heartbeatMonitor{
		store:    store,
		logger:   logging.NewComponentLogger(logger, "watch-heartbeat"),
		interval: interval,
		timeout:  timeout,
	}
}

// reclaimStale resets runs whose last heartbeat is older than the timeout
// back to pending.
func (h *heartbeatMonitor) reclaimStale(ctx context.Context, logger *slog.Logger) {
	if h.timeout <= 0 {
		return
	}
	cutoff := time.Now().Add(-h.timeout)
	reclaimed, err := h.store.ReclaimStaleProcessing(ctx, cutoff)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			logger.Warn("stale run reclaim failed; stuck runs may remain",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check ledger database access"))
		}
		return
	}
	if reclaimed > 0 {
		logger.Info("reclaimed stale runs", logging.Int64("count", reclaimed))
	}
}

// startLoop updates one run's heartbeat until the context is cancelled.
func (h *heartbeatMonitor) startLoop(ctx context.Context, wg *sync.WaitGroup, runID int64) {
	defer wg.Done()
	if h.interval <= 0 {
		return
	}
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	logger := logging.WithContext(ctx, h.logger)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := h.store.UpdateHeartbeat(ctx, runID); err != nil {
				if errors.Is(err, context.Canceled) {
					logger.Debug("shutdown cancelled heartbeat update")
				} else {
					logger.Warn("heartbeat update failed", logging.Error(err))
				}
			}
		}
	}
}
