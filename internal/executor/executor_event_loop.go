package executor

import (
	"context"
	"errors"
	"time"

	"github.com/steveyegge/tuneup/internal/queue"
)

// eventLoop is the worker. It wakes on enqueue or on the poll tick and
// drains every due job, one at a time.
func (e *Executor) eventLoop(ctx context.Context) {
	defer close(e.doneCh)

	ticker := time.NewTicker(e.pollInterval)
	defer ticker.Stop()

	for {
		if !e.drain(ctx) {
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-e.stopCh:
			return
		case <-e.queue.Done():
			return
		case <-e.queue.Wake():
		case <-ticker.C:
		}
	}
}

// drain processes due jobs until none are left. It returns false once the
// worker should exit.
func (e *Executor) drain(ctx context.Context) bool {
	for {
		select {
		case <-ctx.Done():
			return false
		case <-e.stopCh:
			return false
		default:
		}

		processed, err := e.processNextJob(ctx)
		if errors.Is(err, queue.ErrClosed) {
			return false
		}
		if err != nil {
			e.logger.Error("error processing job", "error", err)
			return true
		}
		if !processed {
			return true
		}
	}
}

// processNextJob claims and runs one job. It reports whether a job was found.
func (e *Executor) processNextJob(ctx context.Context) (bool, error) {
	job, err := e.queue.Next(ctx)
	if err != nil {
		return false, err
	}
	if job == nil {
		return false, nil
	}

	// A claimed job runs to completion even when shutdown begins
	jobCtx := context.WithoutCancel(ctx)
	start := time.Now()
	e.logger.Info("processing job", "job_id", job.ID, "type", job.Type, "attempt", job.Attempts)

	runErr := e.Process(jobCtx, job)
	outcome := &JobOutcome{
		JobID:    job.ID,
		Type:     job.Type,
		Attempt:  job.Attempts,
		Duration: time.Since(start),
		Finished: time.Now(),
	}

	if runErr != nil {
		outcome.Error = runErr.Error()
		retried, err := e.queue.Fail(jobCtx, job, runErr)
		outcome.Retried = retried
		e.recordOutcome(outcome)
		if err != nil {
			return true, err
		}
		return true, nil
	}

	if err := e.queue.Complete(jobCtx, job); err != nil {
		e.recordOutcome(outcome)
		return true, err
	}
	e.recordOutcome(outcome)
	e.logger.Info("job completed", "job_id", job.ID, "type", job.Type, "duration", outcome.Duration)
	return true, nil
}
