package config

import (
	"fmt"
	"time"
)

// QueueConfig holds configuration for the job queue and its worker
type QueueConfig struct {
	// DefaultAttempts is how many times a job runs before it is marked failed
	// Default: 3, Range: 1-20
	DefaultAttempts int `yaml:"default_attempts"`

	// BackoffSeconds is the base of the exponential retry delay
	// Default: 5, Range: 0-3600
	BackoffSeconds int `yaml:"backoff_seconds"`

	// PollIntervalMillis is how often the worker looks for due jobs when idle
	// Default: 1000, Range: 10-60000
	PollIntervalMillis int `yaml:"poll_interval_millis"`

	// CycleIntervalMinutes schedules a periodic improvement cycle; 0 disables it
	// Default: 0, Range: 0-10080 (1 week)
	CycleIntervalMinutes int `yaml:"cycle_interval_minutes"`
}

// DefaultQueueConfig returns the default queue configuration
func DefaultQueueConfig() QueueConfig {
	return QueueConfig{
		DefaultAttempts:      3,
		BackoffSeconds:       5,
		PollIntervalMillis:   1000,
		CycleIntervalMinutes: 0,
	}
}

// Validate checks if the configuration has valid values
func (c QueueConfig) Validate() error {
	if c.DefaultAttempts < 1 || c.DefaultAttempts > 20 {
		return fmt.Errorf("default_attempts must be between 1 and 20 (got %d)", c.DefaultAttempts)
	}
	if c.BackoffSeconds < 0 || c.BackoffSeconds > 3600 {
		return fmt.Errorf("backoff_seconds must be between 0 and 3600 (got %d)", c.BackoffSeconds)
	}
	if c.PollIntervalMillis < 10 || c.PollIntervalMillis > 60000 {
		return fmt.Errorf("poll_interval_millis must be between 10 and 60000 (got %d)", c.PollIntervalMillis)
	}
	if c.CycleIntervalMinutes < 0 || c.CycleIntervalMinutes > 10080 {
		return fmt.Errorf("cycle_interval_minutes must be between 0 and 10080 (got %d)", c.CycleIntervalMinutes)
	}
	return nil
}

// Backoff returns the retry base delay as a time.Duration
func (c QueueConfig) Backoff() time.Duration {
	return time.Duration(c.BackoffSeconds) * time.Second
}

// PollInterval returns the idle poll period as a time.Duration
func (c QueueConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMillis) * time.Millisecond
}

// CycleInterval returns the periodic cycle period (zero when disabled)
func (c QueueConfig) CycleInterval() time.Duration {
	return time.Duration(c.CycleIntervalMinutes) * time.Minute
}

// String returns a human-readable representation of the config
func (c QueueConfig) String() string {
	return fmt.Sprintf(
		"QueueConfig{Attempts: %d, Backoff: %ds, PollInterval: %dms, CycleInterval: %dm}",
		c.DefaultAttempts, c.BackoffSeconds, c.PollIntervalMillis, c.CycleIntervalMinutes,
	)
}

func (c *QueueConfig) applyEnv() error {
	if err := parseEnvInt("TUNEUP_QUEUE_ATTEMPTS", &c.DefaultAttempts); err != nil {
		return err
	}
	if err := parseEnvInt("TUNEUP_QUEUE_BACKOFF_SECONDS", &c.BackoffSeconds); err != nil {
		return err
	}
	if err := parseEnvInt("TUNEUP_QUEUE_POLL_INTERVAL_MILLIS", &c.PollIntervalMillis); err != nil {
		return err
	}
	return parseEnvInt("TUNEUP_CYCLE_INTERVAL_MINUTES", &c.CycleIntervalMinutes)
}
