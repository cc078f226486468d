package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/steveyegge/tuneup/internal/events"
)

// WriteEvents persists a batch in one transaction. Each event lands in the
// per-type log, the per-day log, the point-lookup table (expiring at
// pointExpiresAt), and the recent list, which is then trimmed to recentLimit.
func (s *SQLiteStorage) WriteEvents(ctx context.Context, batch []*events.Event, pointExpiresAt time.Time, recentLimit int) (err error) {
	if len(batch) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	byType, err := tx.PrepareContext(ctx, `INSERT INTO events_by_type (id, type, ts_ms, payload) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare type insert: %w", err)
	}
	defer byType.Close()

	byDay, err := tx.PrepareContext(ctx, `INSERT INTO events_by_day (id, day, ts_ms, payload) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare day insert: %w", err)
	}
	defer byDay.Close()

	point, err := tx.PrepareContext(ctx, `INSERT OR REPLACE INTO event_points (id, payload, expires_at_ms) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare point insert: %w", err)
	}
	defer point.Close()

	recent, err := tx.PrepareContext(ctx, `INSERT INTO recent_events (id, payload) VALUES (?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare recent insert: %w", err)
	}
	defer recent.Close()

	expires := toMillis(pointExpiresAt)
	for _, event := range batch {
		payload, err := json.Marshal(event)
		if err != nil {
			return fmt.Errorf("failed to marshal event %s: %w", event.ID, err)
		}
		ts := toMillis(event.Timestamp)

		if _, err := byType.ExecContext(ctx, event.ID, string(event.Type), ts, string(payload)); err != nil {
			return fmt.Errorf("failed to store event (type=%s, id=%s): %w", event.Type, event.ID, err)
		}
		if _, err := byDay.ExecContext(ctx, event.ID, events.DayKey(event.Timestamp), ts, string(payload)); err != nil {
			return fmt.Errorf("failed to store event by day (id=%s): %w", event.ID, err)
		}
		if _, err := point.ExecContext(ctx, event.ID, string(payload), expires); err != nil {
			return fmt.Errorf("failed to store event point (id=%s): %w", event.ID, err)
		}
		if _, err := recent.ExecContext(ctx, event.ID, string(payload)); err != nil {
			return fmt.Errorf("failed to push recent event (id=%s): %w", event.ID, err)
		}
	}

	if recentLimit > 0 {
		_, err = tx.ExecContext(ctx, `
			DELETE FROM recent_events
			WHERE seq <= (
				SELECT seq FROM recent_events
				ORDER BY seq DESC
				LIMIT 1 OFFSET ?
			)
		`, recentLimit)
		if err != nil {
			return fmt.Errorf("failed to trim recent events: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit event batch: %w", err)
	}
	return nil
}

// RecentEvents returns up to limit events from the capped recent list, newest first
func (s *SQLiteStorage) RecentEvents(ctx context.Context, limit int) ([]*events.Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT payload FROM recent_events
		ORDER BY seq DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent events: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// EventsByType returns up to limit events of one type, newest first
func (s *SQLiteStorage) EventsByType(ctx context.Context, eventType events.EventType, limit int) ([]*events.Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT payload FROM events_by_type
		WHERE type = ?
		ORDER BY ts_ms DESC, seq DESC
		LIMIT ?
	`, string(eventType), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query events by type: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// EventsByDay returns every event in a UTC calendar-day bucket, oldest first
func (s *SQLiteStorage) EventsByDay(ctx context.Context, day string) ([]*events.Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT payload FROM events_by_day
		WHERE day = ?
		ORDER BY ts_ms ASC, seq ASC
	`, day)
	if err != nil {
		return nil, fmt.Errorf("failed to query events by day: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// GetEvent returns the point-lookup copy of an event unless it has expired at now
func (s *SQLiteStorage) GetEvent(ctx context.Context, id string, now time.Time) (*events.Event, error) {
	var payload string
	err := s.db.QueryRowContext(ctx, `
		SELECT payload FROM event_points
		WHERE id = ? AND expires_at_ms > ?
	`, id, toMillis(now)).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", events.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get event %s: %w", id, err)
	}
	return decodeEvent(payload)
}

// EventCounts holds row counts per structure for monitoring
type EventCounts struct {
	ByType map[string]int `json:"by_type"`
	Days   int            `json:"days"`
	Points int            `json:"points"`
	Recent int            `json:"recent"`
}

// GetEventCounts reports how many entries each event structure holds
func (s *SQLiteStorage) GetEventCounts(ctx context.Context) (*EventCounts, error) {
	counts := &EventCounts{ByType: make(map[string]int)}

	rows, err := s.db.QueryContext(ctx, `
		SELECT type, COUNT(*)
		FROM events_by_type
		GROUP BY type
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query events by type: %w", err)
	}
	for rows.Next() {
		var eventType string
		var count int
		if err := rows.Scan(&eventType, &count); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("failed to scan type count: %w", err)
		}
		counts.ByType[eventType] = count
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("error iterating type counts: %w", err)
	}
	_ = rows.Close()

	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM events_by_day").Scan(&counts.Days); err != nil {
		return nil, fmt.Errorf("failed to count day entries: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM event_points").Scan(&counts.Points); err != nil {
		return nil, fmt.Errorf("failed to count point entries: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM recent_events").Scan(&counts.Recent); err != nil {
		return nil, fmt.Errorf("failed to count recent entries: %w", err)
	}
	return counts, nil
}

// scanEvents decodes a result set of payload columns
func scanEvents(rows *sql.Rows) ([]*events.Event, error) {
	var result []*events.Event
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		event, err := decodeEvent(payload)
		if err != nil {
			return nil, err
		}
		result = append(result, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating events: %w", err)
	}
	return result, nil
}

func decodeEvent(payload string) (*events.Event, error) {
	var event events.Event
	if err := json.Unmarshal([]byte(payload), &event); err != nil {
		return nil, fmt.Errorf("failed to unmarshal event: %w", err)
	}
	return &event, nil
}
