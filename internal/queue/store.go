package queue

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// JobStore is the durable side of the queue. Implementations must make
// ClaimNextJob atomic: a waiting job is handed out at most once.
type JobStore interface {
	InsertJob(ctx context.Context, job *Job) error
	// ClaimNextJob marks the next due waiting job active and increments its
	// attempts. Returns nil, nil when nothing is due.
	ClaimNextJob(ctx context.Context, now time.Time) (*Job, error)
	UpdateJobProgress(ctx context.Context, id string, progress int, now time.Time) error
	CompleteJob(ctx context.Context, id string, now time.Time) error
	// RetryJob puts an active job back to waiting until runAt
	RetryJob(ctx context.Context, id string, runAt time.Time, lastErr string, now time.Time) error
	FailJob(ctx context.Context, id string, lastErr string, now time.Time) error
	GetJob(ctx context.Context, id string) (*Job, error)
	CountJobs(ctx context.Context) (Counts, error)
	// RequeueStalledJobs resets jobs left active by a previous process
	RequeueStalledJobs(ctx context.Context, now time.Time) (int, error)
}

// MemoryStore is a JobStore kept entirely in process memory.
type MemoryStore struct {
	mu   sync.Mutex
	jobs map[string]*memJob
	seq  int64
}

type memJob struct {
	job *Job
	seq int64
}

// NewMemoryStore returns an empty in-memory job store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{jobs: make(map[string]*memJob)}
}

func cloneJob(j *Job) *Job {
	out := *j
	if j.Payload != nil {
		out.Payload = make(map[string]any, len(j.Payload))
		for k, v := range j.Payload {
			out.Payload[k] = v
		}
	}
	if j.FinishedAt != nil {
		t := *j.FinishedAt
		out.FinishedAt = &t
	}
	return &out
}

func (m *MemoryStore) InsertJob(ctx context.Context, job *Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.jobs[job.ID]; exists {
		return fmt.Errorf("job %s already exists", job.ID)
	}
	m.seq++
	m.jobs[job.ID] = &memJob{job: cloneJob(job), seq: m.seq}
	return nil
}

func (m *MemoryStore) ClaimNextJob(ctx context.Context, now time.Time) (*Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var due []*memJob
	for _, mj := range m.jobs {
		if mj.job.Status == StatusWaiting && !mj.job.RunAt.After(now) {
			due = append(due, mj)
		}
	}
	if len(due) == 0 {
		return nil, nil
	}
	sort.Slice(due, func(i, j int) bool {
		if due[i].job.Priority != due[j].job.Priority {
			return due[i].job.Priority < due[j].job.Priority
		}
		return due[i].seq < due[j].seq
	})

	next := due[0].job
	next.Status = StatusActive
	next.Attempts++
	next.UpdatedAt = now
	return cloneJob(next), nil
}

func (m *MemoryStore) get(id string) (*Job, error) {
	mj, ok := m.jobs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	return mj.job, nil
}

func (m *MemoryStore) UpdateJobProgress(ctx context.Context, id string, progress int, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, err := m.get(id)
	if err != nil {
		return err
	}
	job.Progress = ClampProgress(progress)
	job.UpdatedAt = now
	return nil
}

func (m *MemoryStore) CompleteJob(ctx context.Context, id string, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, err := m.get(id)
	if err != nil {
		return err
	}
	job.Status = StatusCompleted
	job.Progress = 100
	job.UpdatedAt = now
	job.FinishedAt = &now
	return nil
}

func (m *MemoryStore) RetryJob(ctx context.Context, id string, runAt time.Time, lastErr string, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, err := m.get(id)
	if err != nil {
		return err
	}
	job.Status = StatusWaiting
	job.RunAt = runAt
	job.LastError = lastErr
	job.UpdatedAt = now
	return nil
}

func (m *MemoryStore) FailJob(ctx context.Context, id string, lastErr string, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, err := m.get(id)
	if err != nil {
		return err
	}
	job.Status = StatusFailed
	job.LastError = lastErr
	job.UpdatedAt = now
	job.FinishedAt = &now
	return nil
}

func (m *MemoryStore) GetJob(ctx context.Context, id string) (*Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, err := m.get(id)
	if err != nil {
		return nil, err
	}
	return cloneJob(job), nil
}

func (m *MemoryStore) CountJobs(ctx context.Context) (Counts, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var c Counts
	for _, mj := range m.jobs {
		switch mj.job.Status {
		case StatusWaiting:
			c.Waiting++
		case StatusActive:
			c.Active++
		case StatusCompleted:
			c.Completed++
		case StatusFailed:
			c.Failed++
		}
		c.Total++
	}
	return c, nil
}

func (m *MemoryStore) RequeueStalledJobs(ctx context.Context, now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, mj := range m.jobs {
		if mj.job.Status == StatusActive {
			mj.job.Status = StatusWaiting
			mj.job.UpdatedAt = now
			n++
		}
	}
	return n, nil
}
