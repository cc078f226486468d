package storage

import (
	"context"
	"time"

	"github.com/steveyegge/tuneup/internal/events"
	"github.com/steveyegge/tuneup/internal/queue"
	"github.com/steveyegge/tuneup/internal/storage/sqlite"
)

// Storage defines the interface for the agent's durable backend
type Storage interface {
	// Events - batched writes into the per-type, per-day, point, and recent structures
	WriteEvents(ctx context.Context, batch []*events.Event, pointExpiresAt time.Time, recentLimit int) error
	RecentEvents(ctx context.Context, limit int) ([]*events.Event, error)
	EventsByType(ctx context.Context, eventType events.EventType, limit int) ([]*events.Event, error)
	EventsByDay(ctx context.Context, day string) ([]*events.Event, error)
	GetEvent(ctx context.Context, id string, now time.Time) (*events.Event, error)

	// Event Cleanup - retention policy enforcement
	DeleteEventsBefore(ctx context.Context, cutoff time.Time, batchSize int) (int, error)
	PurgeExpiredPoints(ctx context.Context, now time.Time) (int, error)
	GetEventCounts(ctx context.Context) (*sqlite.EventCounts, error)
	VacuumDatabase(ctx context.Context) error

	// Jobs
	queue.JobStore

	// Lifecycle
	Close() error
}

// Config holds database configuration
type Config struct {
	// Path is the SQLite database file path
	// Default: ".tuneup/tuneup.db"
	// Special value ":memory:" creates an in-memory database (useful for tests)
	Path string
}

// DefaultPath is where the database lives when no path is configured
const DefaultPath = ".tuneup/tuneup.db"

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Path: DefaultPath,
	}
}

// NewStorage creates a new SQLite storage backend
func NewStorage(ctx context.Context, cfg *Config) (Storage, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	// Default to standard path if not specified
	if cfg.Path == "" {
		cfg.Path = DefaultPath
	}

	return sqlite.New(cfg.Path)
}
