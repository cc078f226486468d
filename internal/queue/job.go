package queue

import (
	"errors"
	"fmt"
	"time"
)

// JobType names a kind of background work the worker knows how to run.
type JobType string

const (
	// JobImprovementCycle runs event analysis, a codebase scan, and improvement generation
	JobImprovementCycle JobType = "improvement_cycle"
	// JobCodeScan runs the codebase scan only
	JobCodeScan JobType = "code_scan"
	// JobPatternAnalysis runs the pattern analyzer over recent events only
	JobPatternAnalysis JobType = "pattern_analysis"
	// JobApplySuggestion is a placeholder: it reports completion without touching code
	JobApplySuggestion JobType = "apply_suggestion"
)

// AllJobTypes lists every job type in a stable order.
var AllJobTypes = []JobType{JobImprovementCycle, JobCodeScan, JobPatternAnalysis, JobApplySuggestion}

// IsValid reports whether t is a known job type.
func (t JobType) IsValid() bool {
	switch t {
	case JobImprovementCycle, JobCodeScan, JobPatternAnalysis, JobApplySuggestion:
		return true
	}
	return false
}

// JobStatus is where a job is in its lifecycle.
type JobStatus string

const (
	// StatusWaiting jobs are eligible to run once RunAt has passed (delayed jobs wait too)
	StatusWaiting JobStatus = "waiting"
	// StatusActive jobs are held by the worker
	StatusActive JobStatus = "active"
	// StatusCompleted jobs finished successfully
	StatusCompleted JobStatus = "completed"
	// StatusFailed jobs exhausted their attempts
	StatusFailed JobStatus = "failed"
)

var (
	// ErrClosed is returned when the queue no longer accepts work
	ErrClosed = errors.New("job queue is closed")
	// ErrUnknownJobType is returned when enqueueing a type no handler exists for
	ErrUnknownJobType = errors.New("unknown job type")
	// ErrJobNotFound is returned when a job id does not exist
	ErrJobNotFound = errors.New("job not found")
)

// Job is a durable unit of background work.
type Job struct {
	ID      string         `json:"id"`
	Type    JobType        `json:"type"`
	Payload map[string]any `json:"payload,omitempty"`
	// Priority orders eligible jobs: lower values run first
	Priority int `json:"priority"`
	// Delay is how long after enqueue the job became eligible
	Delay time.Duration `json:"delay"`
	// RunAt is when the job is next eligible to run
	RunAt time.Time `json:"run_at"`
	// Progress is 0-100, written only by the worker
	Progress    int           `json:"progress"`
	Status      JobStatus     `json:"status"`
	Attempts    int           `json:"attempts"`
	MaxAttempts int           `json:"max_attempts"`
	Backoff     time.Duration `json:"backoff"`
	LastError   string        `json:"last_error,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
	FinishedAt  *time.Time    `json:"finished_at,omitempty"`
}

// PayloadString returns a payload field as a string when it holds one.
func (j *Job) PayloadString(key string) string {
	if j.Payload == nil {
		return ""
	}
	s, _ := j.Payload[key].(string)
	return s
}

// Options tune a single enqueue. Zero values fall back to the queue defaults.
type Options struct {
	Priority int
	Delay    time.Duration
	// Attempts is the total number of runs allowed before the job is failed
	Attempts int
	// Backoff is the base of the exponential retry delay
	Backoff time.Duration
}

// Counts are observational queue counters.
type Counts struct {
	Waiting   int `json:"waiting"`
	Active    int `json:"active"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Total     int `json:"total"`
}

// String renders the counters on one line.
func (c Counts) String() string {
	return fmt.Sprintf("waiting=%d active=%d completed=%d failed=%d total=%d",
		c.Waiting, c.Active, c.Completed, c.Failed, c.Total)
}

// ClampProgress bounds a progress value to 0-100.
func ClampProgress(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}

// RetryDelay returns the exponential backoff before the next attempt, given
// how many attempts have already run (attempts >= 1).
func RetryDelay(base time.Duration, attempts int) time.Duration {
	if base <= 0 || attempts < 1 {
		return 0
	}
	delay := base
	for i := 1; i < attempts; i++ {
		delay *= 2
		if delay > time.Hour {
			return time.Hour
		}
	}
	return delay
}
