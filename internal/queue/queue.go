// Package queue is a durable, priority-ordered job queue drained by a single worker.
package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Config holds queue defaults applied to jobs that don't override them.
type Config struct {
	// DefaultAttempts is the total number of runs before a job is failed
	DefaultAttempts int
	// Backoff is the base of the exponential retry delay
	Backoff time.Duration
	Logger  *slog.Logger
	// Now overrides the clock (tests)
	Now func() time.Time
}

// Queue hands durable jobs to a worker one at a time.
//
// Jobs handed out by Next must be settled with Complete or Fail; Close waits
// for the settled count to catch up before returning.
type Queue struct {
	store  JobStore
	cfg    Config
	logger *slog.Logger
	now    func() time.Time

	mu       sync.Mutex
	closed   bool
	inflight sync.WaitGroup
	wake     chan struct{}
	done     chan struct{}
}

// New opens a queue over store. Jobs a previous process left active are put
// back to waiting so they run again.
func New(ctx context.Context, store JobStore, cfg Config) (*Queue, error) {
	if cfg.DefaultAttempts < 1 {
		cfg.DefaultAttempts = 3
	}
	if cfg.Backoff < 0 {
		cfg.Backoff = 0
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	q := &Queue{
		store:  store,
		cfg:    cfg,
		logger: logger,
		now:    now,
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}

	recovered, err := store.RequeueStalledJobs(ctx, now())
	if err != nil {
		return nil, fmt.Errorf("failed to recover stalled jobs: %w", err)
	}
	if recovered > 0 {
		logger.Warn("recovered stalled jobs", "count", recovered)
		q.signal()
	}
	return q, nil
}

// Enqueue persists a new waiting job and returns it immediately.
func (q *Queue) Enqueue(ctx context.Context, jobType JobType, payload map[string]any, opts Options) (*Job, error) {
	if !jobType.IsValid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownJobType, jobType)
	}

	q.mu.Lock()
	closed := q.closed
	q.mu.Unlock()
	if closed {
		return nil, ErrClosed
	}

	attempts := opts.Attempts
	if attempts < 1 {
		attempts = q.cfg.DefaultAttempts
	}
	backoff := opts.Backoff
	if backoff <= 0 {
		backoff = q.cfg.Backoff
	}
	delay := opts.Delay
	if delay < 0 {
		delay = 0
	}

	now := q.now()
	job := &Job{
		ID:          uuid.New().String(),
		Type:        jobType,
		Payload:     payload,
		Priority:    opts.Priority,
		Delay:       delay,
		RunAt:       now.Add(delay),
		Status:      StatusWaiting,
		MaxAttempts: attempts,
		Backoff:     backoff,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := q.store.InsertJob(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to enqueue %s job: %w", jobType, err)
	}

	q.logger.Debug("job enqueued", "job_id", job.ID, "type", jobType, "priority", opts.Priority, "delay", delay)
	q.signal()
	return job, nil
}

func (q *Queue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Wake fires after an enqueue so an idle worker can look for work early.
func (q *Queue) Wake() <-chan struct{} {
	return q.wake
}

// Done is closed once Close has been called.
func (q *Queue) Done() <-chan struct{} {
	return q.done
}

// Next claims the next due job. It returns nil, nil when nothing is due and
// ErrClosed once the queue is closed.
func (q *Queue) Next(ctx context.Context) (*Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil, ErrClosed
	}

	job, err := q.store.ClaimNextJob(ctx, q.now())
	if err != nil {
		return nil, fmt.Errorf("failed to claim job: %w", err)
	}
	if job != nil {
		q.inflight.Add(1)
	}
	return job, nil
}

// UpdateProgress persists a 0-100 progress value for an active job.
func (q *Queue) UpdateProgress(ctx context.Context, job *Job, progress int) error {
	progress = ClampProgress(progress)
	if err := q.store.UpdateJobProgress(ctx, job.ID, progress, q.now()); err != nil {
		return fmt.Errorf("failed to update progress for job %s: %w", job.ID, err)
	}
	job.Progress = progress
	return nil
}

// Complete marks a claimed job completed.
func (q *Queue) Complete(ctx context.Context, job *Job) error {
	defer q.inflight.Done()

	now := q.now()
	if err := q.store.CompleteJob(ctx, job.ID, now); err != nil {
		return fmt.Errorf("failed to complete job %s: %w", job.ID, err)
	}
	job.Status = StatusCompleted
	job.Progress = 100
	job.FinishedAt = &now
	return nil
}

// Fail settles a claimed job whose handler returned cause. The job is
// rescheduled with exponential backoff until its attempts are used up, then
// marked failed. The returned bool reports whether a retry was scheduled.
func (q *Queue) Fail(ctx context.Context, job *Job, cause error) (bool, error) {
	defer q.inflight.Done()

	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	now := q.now()
	job.LastError = msg

	if job.Attempts < job.MaxAttempts {
		runAt := now.Add(RetryDelay(job.Backoff, job.Attempts))
		if err := q.store.RetryJob(ctx, job.ID, runAt, msg, now); err != nil {
			return false, fmt.Errorf("failed to reschedule job %s: %w", job.ID, err)
		}
		job.Status = StatusWaiting
		job.RunAt = runAt
		q.logger.Warn("job failed, retry scheduled",
			"job_id", job.ID, "type", job.Type, "attempt", job.Attempts,
			"max_attempts", job.MaxAttempts, "run_at", runAt, "error", msg)
		if !runAt.After(now) {
			q.signal()
		}
		return true, nil
	}

	if err := q.store.FailJob(ctx, job.ID, msg, now); err != nil {
		return false, fmt.Errorf("failed to mark job %s failed: %w", job.ID, err)
	}
	job.Status = StatusFailed
	job.FinishedAt = &now
	q.logger.Error("job failed permanently",
		"job_id", job.ID, "type", job.Type, "attempts", job.Attempts, "error", msg)
	return false, nil
}

// Get returns a job by id.
func (q *Queue) Get(ctx context.Context, id string) (*Job, error) {
	return q.store.GetJob(ctx, id)
}

// Counts returns the waiting/active/completed/failed counters.
func (q *Queue) Counts(ctx context.Context) (Counts, error) {
	c, err := q.store.CountJobs(ctx)
	if err != nil {
		return Counts{}, fmt.Errorf("failed to count jobs: %w", err)
	}
	return c, nil
}

// Close stops handing out work and waits for the in-flight job to settle,
// or for ctx to end. Calling Close more than once is safe.
func (q *Queue) Close(ctx context.Context) error {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.done)
	}
	q.mu.Unlock()

	drained := make(chan struct{})
	go func() {
		q.inflight.Wait()
		close(drained)
	}()

	select {
	case <-drained:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("timed out waiting for in-flight job: %w", ctx.Err())
	}
}
