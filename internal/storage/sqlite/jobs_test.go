package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/steveyegge/tuneup/internal/queue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newJob(id string, typ queue.JobType, priority int, runAt time.Time) *queue.Job {
	return &queue.Job{
		ID:          id,
		Type:        typ,
		Payload:     map[string]any{"suggestion_id": "imp-1"},
		Priority:    priority,
		RunAt:       runAt,
		Status:      queue.StatusWaiting,
		MaxAttempts: 3,
		Backoff:     5 * time.Second,
		CreatedAt:   baseTime,
		UpdatedAt:   baseTime,
	}
}

func TestClaimNextJobOrdering(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	require.NoError(t, store.InsertJob(ctx, newJob("low", queue.JobCodeScan, 10, baseTime)))
	require.NoError(t, store.InsertJob(ctx, newJob("high-1", queue.JobPatternAnalysis, 1, baseTime)))
	require.NoError(t, store.InsertJob(ctx, newJob("high-2", queue.JobImprovementCycle, 1, baseTime)))
	require.NoError(t, store.InsertJob(ctx, newJob("later", queue.JobCodeScan, 0, baseTime.Add(time.Minute))))

	var order []string
	for {
		job, err := store.ClaimNextJob(ctx, baseTime)
		require.NoError(t, err)
		if job == nil {
			break
		}
		assert.Equal(t, queue.StatusActive, job.Status)
		assert.Equal(t, 1, job.Attempts)
		order = append(order, job.ID)
	}
	assert.Equal(t, []string{"high-1", "high-2", "low"}, order)

	job, err := store.ClaimNextJob(ctx, baseTime.Add(time.Minute))
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, "later", job.ID)
}

func TestJobLifecycle(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	require.NoError(t, store.InsertJob(ctx, newJob("j1", queue.JobApplySuggestion, 0, baseTime)))

	job, err := store.ClaimNextJob(ctx, baseTime)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, "imp-1", job.PayloadString("suggestion_id"))
	assert.Equal(t, 5*time.Second, job.Backoff)

	require.NoError(t, store.UpdateJobProgress(ctx, "j1", 50, baseTime))
	got, err := store.GetJob(ctx, "j1")
	require.NoError(t, err)
	assert.Equal(t, 50, got.Progress)

	require.NoError(t, store.RetryJob(ctx, "j1", baseTime.Add(5*time.Second), "flaky", baseTime))
	got, err = store.GetJob(ctx, "j1")
	require.NoError(t, err)
	assert.Equal(t, queue.StatusWaiting, got.Status)
	assert.Equal(t, "flaky", got.LastError)
	assert.True(t, got.RunAt.Equal(baseTime.Add(5*time.Second)))

	job, err = store.ClaimNextJob(ctx, baseTime.Add(5*time.Second))
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, 2, job.Attempts)

	require.NoError(t, store.CompleteJob(ctx, "j1", baseTime.Add(6*time.Second)))
	got, err = store.GetJob(ctx, "j1")
	require.NoError(t, err)
	assert.Equal(t, queue.StatusCompleted, got.Status)
	assert.Equal(t, 100, got.Progress)
	require.NotNil(t, got.FinishedAt)
}

func TestCountJobsAndFail(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	require.NoError(t, store.InsertJob(ctx, newJob("a", queue.JobCodeScan, 0, baseTime)))
	require.NoError(t, store.InsertJob(ctx, newJob("b", queue.JobCodeScan, 0, baseTime)))
	require.NoError(t, store.InsertJob(ctx, newJob("c", queue.JobCodeScan, 0, baseTime)))

	_, err := store.ClaimNextJob(ctx, baseTime)
	require.NoError(t, err)
	require.NoError(t, store.FailJob(ctx, "a", "boom", baseTime))
	_, err = store.ClaimNextJob(ctx, baseTime)
	require.NoError(t, err)

	counts, err := store.CountJobs(ctx)
	require.NoError(t, err)
	assert.Equal(t, queue.Counts{Waiting: 1, Active: 1, Failed: 1, Total: 3}, counts)
}

func TestRequeueStalledJobs(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	require.NoError(t, store.InsertJob(ctx, newJob("a", queue.JobImprovementCycle, 0, baseTime)))
	_, err := store.ClaimNextJob(ctx, baseTime)
	require.NoError(t, err)

	n, err := store.RequeueStalledJobs(ctx, baseTime)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := store.GetJob(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, queue.StatusWaiting, got.Status)
}

func TestMissingJob(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	_, err := store.GetJob(ctx, "nope")
	assert.True(t, errors.Is(err, queue.ErrJobNotFound))
	assert.True(t, errors.Is(store.CompleteJob(ctx, "nope", baseTime), queue.ErrJobNotFound))
}

func TestQueueOverSQLite(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	q, err := queue.New(ctx, store, queue.Config{DefaultAttempts: 2, Backoff: 0})
	require.NoError(t, err)

	enqueued, err := q.Enqueue(ctx, queue.JobCodeScan, nil, queue.Options{})
	require.NoError(t, err)

	job, err := q.Next(ctx)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, enqueued.ID, job.ID)

	require.NoError(t, q.UpdateProgress(ctx, job, 40))
	require.NoError(t, q.Complete(ctx, job))

	counts, err := q.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, counts.Completed)
	require.NoError(t, q.Close(ctx))
}
