package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/steveyegge/tuneup/internal/queue"
)

const jobColumns = `id, type, payload, priority, delay_ms, run_at_ms, progress, status,
		attempts, max_attempts, backoff_ms, last_error, created_at_ms, updated_at_ms, finished_at_ms`

// rowScanner is satisfied by *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...any) error
}

// InsertJob stores a new job
func (s *SQLiteStorage) InsertJob(ctx context.Context, job *queue.Job) error {
	payload := []byte("{}")
	if job.Payload != nil {
		var err error
		payload, err = json.Marshal(job.Payload)
		if err != nil {
			return fmt.Errorf("failed to marshal job payload: %w", err)
		}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO jobs (
			id, type, payload, priority, delay_ms, run_at_ms, progress, status,
			attempts, max_attempts, backoff_ms, last_error, created_at_ms, updated_at_ms
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		job.ID,
		string(job.Type),
		string(payload),
		job.Priority,
		job.Delay.Milliseconds(),
		toMillis(job.RunAt),
		queue.ClampProgress(job.Progress),
		string(job.Status),
		job.Attempts,
		job.MaxAttempts,
		job.Backoff.Milliseconds(),
		job.LastError,
		toMillis(job.CreatedAt),
		toMillis(job.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert job (type=%s, id=%s): %w", job.Type, job.ID, err)
	}
	return nil
}

// ClaimNextJob atomically activates the highest-priority due job (FIFO within a
// priority) and returns it, or nil when nothing is due.
func (s *SQLiteStorage) ClaimNextJob(ctx context.Context, now time.Time) (*queue.Job, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE jobs
		SET status = 'active', attempts = attempts + 1, updated_at_ms = ?
		WHERE id = (
			SELECT id FROM jobs
			WHERE status = 'waiting' AND run_at_ms <= ?
			ORDER BY priority ASC, seq ASC
			LIMIT 1
		)
		RETURNING `+jobColumns,
		toMillis(now), toMillis(now))

	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to claim job: %w", err)
	}
	return job, nil
}

// UpdateJobProgress records a 0-100 progress value
func (s *SQLiteStorage) UpdateJobProgress(ctx context.Context, id string, progress int, now time.Time) error {
	return s.execJob(ctx, id, `
		UPDATE jobs SET progress = ?, updated_at_ms = ? WHERE id = ?
	`, queue.ClampProgress(progress), toMillis(now), id)
}

// CompleteJob marks a job completed at 100%
func (s *SQLiteStorage) CompleteJob(ctx context.Context, id string, now time.Time) error {
	return s.execJob(ctx, id, `
		UPDATE jobs
		SET status = 'completed', progress = 100, updated_at_ms = ?, finished_at_ms = ?
		WHERE id = ?
	`, toMillis(now), toMillis(now), id)
}

// RetryJob returns a job to waiting, eligible again at runAt
func (s *SQLiteStorage) RetryJob(ctx context.Context, id string, runAt time.Time, lastErr string, now time.Time) error {
	return s.execJob(ctx, id, `
		UPDATE jobs
		SET status = 'waiting', run_at_ms = ?, last_error = ?, updated_at_ms = ?
		WHERE id = ?
	`, toMillis(runAt), lastErr, toMillis(now), id)
}

// FailJob marks a job permanently failed
func (s *SQLiteStorage) FailJob(ctx context.Context, id string, lastErr string, now time.Time) error {
	return s.execJob(ctx, id, `
		UPDATE jobs
		SET status = 'failed', last_error = ?, updated_at_ms = ?, finished_at_ms = ?
		WHERE id = ?
	`, lastErr, toMillis(now), toMillis(now), id)
}

func (s *SQLiteStorage) execJob(ctx context.Context, id, query string, args ...any) error {
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update job %s: %w", id, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", queue.ErrJobNotFound, id)
	}
	return nil
}

// GetJob returns a job by id
func (s *SQLiteStorage) GetJob(ctx context.Context, id string) (*queue.Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", queue.ErrJobNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job %s: %w", id, err)
	}
	return job, nil
}

// CountJobs returns counters by status
func (s *SQLiteStorage) CountJobs(ctx context.Context) (queue.Counts, error) {
	var c queue.Counts
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM jobs GROUP BY status`)
	if err != nil {
		return c, fmt.Errorf("failed to query job counts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return c, fmt.Errorf("failed to scan job count: %w", err)
		}
		switch queue.JobStatus(status) {
		case queue.StatusWaiting:
			c.Waiting = count
		case queue.StatusActive:
			c.Active = count
		case queue.StatusCompleted:
			c.Completed = count
		case queue.StatusFailed:
			c.Failed = count
		}
		c.Total += count
	}
	if err := rows.Err(); err != nil {
		return c, fmt.Errorf("error iterating job counts: %w", err)
	}
	return c, nil
}

// RequeueStalledJobs resets jobs a crashed process left active
func (s *SQLiteStorage) RequeueStalledJobs(ctx context.Context, now time.Time) (int, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE jobs SET status = 'waiting', updated_at_ms = ? WHERE status = 'active'
	`, toMillis(now))
	if err != nil {
		return 0, fmt.Errorf("failed to requeue stalled jobs: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return int(n), nil
}

func scanJob(row rowScanner) (*queue.Job, error) {
	var (
		job                         queue.Job
		jobType, payload, status    string
		delayMs, runAtMs, backoffMs int64
		createdMs, updatedMs        int64
		finishedMs                  sql.NullInt64
	)
	err := row.Scan(
		&job.ID, &jobType, &payload, &job.Priority, &delayMs, &runAtMs, &job.Progress, &status,
		&job.Attempts, &job.MaxAttempts, &backoffMs, &job.LastError, &createdMs, &updatedMs, &finishedMs,
	)
	if err != nil {
		return nil, err
	}

	job.Type = queue.JobType(jobType)
	job.Status = queue.JobStatus(status)
	job.Delay = time.Duration(delayMs) * time.Millisecond
	job.Backoff = time.Duration(backoffMs) * time.Millisecond
	job.RunAt = fromMillis(runAtMs)
	job.CreatedAt = fromMillis(createdMs)
	job.UpdatedAt = fromMillis(updatedMs)
	if finishedMs.Valid {
		t := fromMillis(finishedMs.Int64)
		job.FinishedAt = &t
	}
	if payload != "" && payload != "{}" {
		if err := json.Unmarshal([]byte(payload), &job.Payload); err != nil {
			return nil, fmt.Errorf("failed to unmarshal job payload: %w", err)
		}
	}
	return &job, nil
}

var _ queue.JobStore = (*SQLiteStorage)(nil)
