package executor

import (
	"context"
	"time"
)

// eventCleanupLoop enforces event retention in a background goroutine. It
// runs once at startup and then on every cleanup interval.
func (e *Executor) eventCleanupLoop(ctx context.Context) {
	defer close(e.eventCleanupDoneCh)

	if !e.cleanupEnabled {
		e.logger.Debug("event cleanup disabled")
		return
	}

	e.runEventCleanup(ctx)

	ticker := time.NewTicker(e.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-e.eventCleanupStopCh:
			return
		case <-ticker.C:
			e.runEventCleanup(ctx)
		}
	}
}

// runEventCleanup deletes expired events, vacuums when enough rows went
// away, and logs what remains. Errors are logged and the loop carries on.
func (e *Executor) runEventCleanup(ctx context.Context) {
	start := time.Now()

	result, err := e.cleaner.Cleanup(ctx)
	if err != nil {
		e.logger.Warn("event cleanup failed", "error", err,
			"deleted", result.Deleted, "points_purged", result.PointsPurged)
		return
	}

	vacuumed := false
	if e.maintenance != nil && e.vacuumAfter > 0 && result.Deleted >= e.vacuumAfter {
		if err := e.maintenance.VacuumDatabase(ctx); err != nil {
			e.logger.Warn("vacuum failed", "error", err)
		} else {
			vacuumed = true
		}
	}

	attrs := []any{
		"deleted", result.Deleted,
		"points_purged", result.PointsPurged,
		"vacuumed", vacuumed,
		"duration", time.Since(start),
	}
	if e.maintenance != nil {
		if counts, err := e.maintenance.GetEventCounts(ctx); err != nil {
			e.logger.Warn("failed to read event counts", "error", err)
		} else {
			attrs = append(attrs, "remaining_days", counts.Days, "remaining_points", counts.Points, "recent", counts.Recent)
		}
	}
	e.logger.Info("event retention pass complete", attrs...)
}
