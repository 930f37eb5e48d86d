package runstate

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/ccxlabs/mcp-context-server/internal/domain"
	"github.com/ccxlabs/mcp-context-server/internal/store"
)

// Watchdog marks running runs whose heartbeat has gone stale as
// interrupted. An abandoned caller leaves its run in running; there is
// no implicit cancellation signal, so this sweep is what bounds how
// long a dead run looks alive.
type Watchdog struct {
	store        store.Store
	machine      *Machine
	stallTimeout time.Duration
	interval     time.Duration
}

// NewWatchdog creates a watchdog sweeping every interval, interrupting
// runs stalled longer than stallTimeout.
func NewWatchdog(st store.Store, machine *Machine, stallTimeout, interval time.Duration) *Watchdog {
	return &Watchdog{
		store:        st,
		machine:      machine,
		stallTimeout: stallTimeout,
		interval:     interval,
	}
}

// Start runs the sweep loop until the context is canceled.
func (w *Watchdog) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			interrupted, err := w.Sweep(ctx)
			if err != nil {
				slog.Error("Watchdog sweep failed", "error", err)
			} else if interrupted > 0 {
				slog.Info("Watchdog interrupted stalled runs", "count", interrupted)
			}
		}
	}
}

// Sweep scans all runs once and interrupts the stalled ones. Returns
// how many were interrupted.
func (w *Watchdog) Sweep(ctx context.Context) (int, error) {
	cutoff := time.Now().UTC().Add(-w.stallTimeout)

	var stalled []string
	err := w.store.Query(ctx, store.CollectionRuns, "", func(key string, value []byte) error {
		var run domain.Run
		if err := json.Unmarshal(value, &run); err != nil {
			return nil // skip unreadable records
		}
		if run.Status == domain.RunStatusRunning && run.Heartbeat.Before(cutoff) {
			stalled = append(stalled, run.RunID)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	interrupted := 0
	for _, runID := range stalled {
		if _, err := w.machine.MarkInterrupted(ctx, runID); err != nil {
			// A racing transition is fine, the run is no longer stalled.
			if !domain.IsStaleRunTransition(err) {
				slog.Warn("Failed to interrupt stalled run", "run_id", runID, "error", err)
			}
			continue
		}
		slog.Info("Run interrupted by watchdog", "run_id", runID)
		interrupted++
	}
	return interrupted, nil
}
