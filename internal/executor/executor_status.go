package executor

import (
	"context"
	"time"

	"github.com/steveyegge/tuneup/internal/queue"
	"github.com/steveyegge/tuneup/internal/status"
)

// JobOutcome records how the most recent job ended
type JobOutcome struct {
	JobID    string        `json:"job_id"`
	Type     queue.JobType `json:"type"`
	Attempt  int           `json:"attempt"`
	Error    string        `json:"error,omitempty"`
	Retried  bool          `json:"retried,omitempty"`
	Duration time.Duration `json:"duration"`
	Finished time.Time     `json:"finished"`
}

// Info is the executor's view for the status command
type Info struct {
	InstanceID string          `json:"instance_id"`
	Hostname   string          `json:"hostname"`
	PID        int             `json:"pid"`
	Version    string          `json:"version"`
	Running    bool            `json:"running"`
	StartedAt  time.Time       `json:"started_at"`
	LastJob    *JobOutcome     `json:"last_job,omitempty"`
	Queue      *queue.Counts   `json:"queue,omitempty"`
	Agent      status.Snapshot `json:"agent"`
	Timestamp  time.Time       `json:"timestamp"`
}

func (e *Executor) recordOutcome(o *JobOutcome) {
	e.mu.Lock()
	e.lastJob = o
	e.mu.Unlock()
}

// Info returns the current executor status. Queue counters are omitted when
// they cannot be read.
func (e *Executor) Info(ctx context.Context) Info {
	e.mu.RLock()
	info := Info{
		InstanceID: e.instanceID,
		Hostname:   e.hostname,
		PID:        e.pid,
		Version:    e.version,
		Running:    e.running,
		StartedAt:  e.startedAt,
	}
	if e.lastJob != nil {
		last := *e.lastJob
		info.LastJob = &last
	}
	e.mu.RUnlock()

	if counts, err := e.queue.Counts(ctx); err != nil {
		e.logger.Warn("failed to read queue counts", "error", err)
	} else {
		info.Queue = &counts
	}
	info.Agent = e.tracker.Snapshot()
	info.Timestamp = time.Now()
	return info
}
