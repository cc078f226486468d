package sqlite

import (
	"context"
	"fmt"
	"time"
)

// DeleteEventsBefore removes per-type and per-day entries older than cutoff.
// The recent list and point copies have their own retention and are untouched.
// Deletions are batched (batchSize rows per statement).
func (s *SQLiteStorage) DeleteEventsBefore(ctx context.Context, cutoff time.Time, batchSize int) (int, error) {
	if batchSize < 1 {
		return 0, fmt.Errorf("batch size must be at least 1")
	}

	totalDeleted := 0
	for _, table := range []string{"events_by_type", "events_by_day"} {
		deleted, err := s.deleteOldEventsBatch(ctx, table, cutoff, batchSize)
		totalDeleted += deleted
		if err != nil {
			return totalDeleted, fmt.Errorf("failed to delete old entries from %s: %w", table, err)
		}
	}
	return totalDeleted, nil
}

// deleteOldEventsBatch deletes rows older than cutoff from table in batches
func (s *SQLiteStorage) deleteOldEventsBatch(ctx context.Context, table string, cutoff time.Time, batchSize int) (int, error) {
	totalDeleted := 0
	query := fmt.Sprintf(`
		DELETE FROM %s
		WHERE seq IN (
			SELECT seq FROM %s
			WHERE ts_ms < ?
			ORDER BY ts_ms ASC
			LIMIT ?
		)
	`, table, table)

	for {
		// Check context cancellation
		select {
		case <-ctx.Done():
			return totalDeleted, ctx.Err()
		default:
		}

		result, err := s.db.ExecContext(ctx, query, toMillis(cutoff), batchSize)
		if err != nil {
			return totalDeleted, fmt.Errorf("failed to execute delete: %w", err)
		}

		rowsAffected, err := result.RowsAffected()
		if err != nil {
			return totalDeleted, fmt.Errorf("failed to get rows affected: %w", err)
		}

		totalDeleted += int(rowsAffected)

		// If we deleted fewer than batchSize, we're done
		if rowsAffected < int64(batchSize) {
			break
		}
	}

	return totalDeleted, nil
}

// PurgeExpiredPoints drops point-lookup copies whose expiry has passed at now
func (s *SQLiteStorage) PurgeExpiredPoints(ctx context.Context, now time.Time) (int, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM event_points WHERE expires_at_ms <= ?`, toMillis(now))
	if err != nil {
		return 0, fmt.Errorf("failed to purge expired event points: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return int(n), nil
}

// VacuumDatabase reclaims space after large cleanups
func (s *SQLiteStorage) VacuumDatabase(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "VACUUM"); err != nil {
		return fmt.Errorf("failed to vacuum database: %w", err)
	}
	return nil
}
