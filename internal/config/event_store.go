package config

import (
	"fmt"
	"time"
)

// EventStoreConfig holds configuration for event buffering, flushing, and retention
type EventStoreConfig struct {
	// FlushBatchSize is the buffer length that triggers an immediate flush
	// Default: 50, Range: 1-10000
	FlushBatchSize int `yaml:"flush_batch_size"`

	// FlushIntervalSeconds bounds how stale buffered events may become
	// Default: 5, Range: 1-3600
	FlushIntervalSeconds int `yaml:"flush_interval_seconds"`

	// RecentLimit caps the most-recent list; older entries are evicted on write
	// Default: 1000, Range: 10-100000
	RecentLimit int `yaml:"recent_limit"`

	// PointTTLDays is the expiry of the individually-addressable copy of each event
	// Default: 7, Range: 1-365
	PointTTLDays int `yaml:"point_ttl_days"`

	// RetentionDays is how long per-type and per-day entries are kept
	// Default: 30, Range: 1-365
	RetentionDays int `yaml:"retention_days"`

	// CleanupIntervalHours is how often to run retention cleanup (in hours)
	// Default: 24, Range: 1-168 (1 week)
	CleanupIntervalHours int `yaml:"cleanup_interval_hours"`

	// CleanupBatchSize is the number of rows to delete per statement
	// Default: 1000, Range: 100-10000
	CleanupBatchSize int `yaml:"cleanup_batch_size"`

	// CleanupEnabled controls whether automatic cleanup runs
	// Default: true
	CleanupEnabled bool `yaml:"cleanup_enabled"`
}

// DefaultEventStoreConfig returns the default event store configuration
func DefaultEventStoreConfig() EventStoreConfig {
	return EventStoreConfig{
		FlushBatchSize:       50,
		FlushIntervalSeconds: 5,
		RecentLimit:          1000,
		PointTTLDays:         7,
		RetentionDays:        30,
		CleanupIntervalHours: 24,
		CleanupBatchSize:     1000,
		CleanupEnabled:       true,
	}
}

// Validate checks if the configuration has valid values
func (c EventStoreConfig) Validate() error {
	if c.FlushBatchSize < 1 || c.FlushBatchSize > 10000 {
		return fmt.Errorf("flush_batch_size must be between 1 and 10000 (got %d)", c.FlushBatchSize)
	}
	if c.FlushIntervalSeconds < 1 || c.FlushIntervalSeconds > 3600 {
		return fmt.Errorf("flush_interval_seconds must be between 1 and 3600 (got %d)", c.FlushIntervalSeconds)
	}
	if c.RecentLimit < 10 || c.RecentLimit > 100000 {
		return fmt.Errorf("recent_limit must be between 10 and 100000 (got %d)", c.RecentLimit)
	}
	if c.PointTTLDays < 1 || c.PointTTLDays > 365 {
		return fmt.Errorf("point_ttl_days must be between 1 and 365 (got %d)", c.PointTTLDays)
	}
	if c.RetentionDays < 1 || c.RetentionDays > 365 {
		return fmt.Errorf("retention_days must be between 1 and 365 (got %d)", c.RetentionDays)
	}
	if c.CleanupIntervalHours < 1 {
		return fmt.Errorf("cleanup_interval_hours must be at least 1 (got %d)", c.CleanupIntervalHours)
	}
	if c.CleanupIntervalHours > 168 {
		return fmt.Errorf("cleanup_interval_hours too large (got %d, max 168)", c.CleanupIntervalHours)
	}
	if c.CleanupBatchSize < 100 {
		return fmt.Errorf("cleanup_batch_size must be at least 100 (got %d)", c.CleanupBatchSize)
	}
	if c.CleanupBatchSize > 10000 {
		return fmt.Errorf("cleanup_batch_size too large (got %d, max 10000)", c.CleanupBatchSize)
	}
	return nil
}

// FlushInterval returns the flush period as a time.Duration
func (c EventStoreConfig) FlushInterval() time.Duration {
	return time.Duration(c.FlushIntervalSeconds) * time.Second
}

// PointTTL returns the point-lookup expiry as a time.Duration
func (c EventStoreConfig) PointTTL() time.Duration {
	return time.Duration(c.PointTTLDays) * 24 * time.Hour
}

// Retention returns the per-type/per-day retention as a time.Duration
func (c EventStoreConfig) Retention() time.Duration {
	return time.Duration(c.RetentionDays) * 24 * time.Hour
}

// CleanupInterval returns the cleanup period as a time.Duration
func (c EventStoreConfig) CleanupInterval() time.Duration {
	return time.Duration(c.CleanupIntervalHours) * time.Hour
}

// String returns a human-readable representation of the config
func (c EventStoreConfig) String() string {
	return fmt.Sprintf(
		"EventStoreConfig{FlushBatch: %d, FlushInterval: %ds, RecentLimit: %d, "+
			"PointTTL: %dd, Retention: %dd, CleanupInterval: %dh, BatchSize: %d, Enabled: %t}",
		c.FlushBatchSize, c.FlushIntervalSeconds, c.RecentLimit, c.PointTTLDays,
		c.RetentionDays, c.CleanupIntervalHours, c.CleanupBatchSize, c.CleanupEnabled,
	)
}

// applyEnv overrides fields from environment variables
//
// Environment variables:
//   - TUNEUP_EVENT_FLUSH_BATCH_SIZE (default: 50)
//   - TUNEUP_EVENT_FLUSH_INTERVAL_SECONDS (default: 5)
//   - TUNEUP_EVENT_RECENT_LIMIT (default: 1000)
//   - TUNEUP_EVENT_POINT_TTL_DAYS (default: 7)
//   - TUNEUP_EVENT_RETENTION_DAYS (default: 30)
//   - TUNEUP_EVENT_CLEANUP_INTERVAL_HOURS (default: 24)
//   - TUNEUP_EVENT_CLEANUP_BATCH_SIZE (default: 1000)
//   - TUNEUP_EVENT_CLEANUP_ENABLED (default: true)
func (c *EventStoreConfig) applyEnv() error {
	if err := parseEnvInt("TUNEUP_EVENT_FLUSH_BATCH_SIZE", &c.FlushBatchSize); err != nil {
		return err
	}
	if err := parseEnvInt("TUNEUP_EVENT_FLUSH_INTERVAL_SECONDS", &c.FlushIntervalSeconds); err != nil {
		return err
	}
	if err := parseEnvInt("TUNEUP_EVENT_RECENT_LIMIT", &c.RecentLimit); err != nil {
		return err
	}
	if err := parseEnvInt("TUNEUP_EVENT_POINT_TTL_DAYS", &c.PointTTLDays); err != nil {
		return err
	}
	if err := parseEnvInt("TUNEUP_EVENT_RETENTION_DAYS", &c.RetentionDays); err != nil {
		return err
	}
	if err := parseEnvInt("TUNEUP_EVENT_CLEANUP_INTERVAL_HOURS", &c.CleanupIntervalHours); err != nil {
		return err
	}
	if err := parseEnvInt("TUNEUP_EVENT_CLEANUP_BATCH_SIZE", &c.CleanupBatchSize); err != nil {
		return err
	}
	return parseEnvBool("TUNEUP_EVENT_CLEANUP_ENABLED", &c.CleanupEnabled)
}
