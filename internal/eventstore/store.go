// Package eventstore buffers recorded events in memory and persists them to
// a durable backend in batches.
package eventstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/steveyegge/tuneup/internal/config"
	"github.com/steveyegge/tuneup/internal/events"
)

// ErrClosed is returned by Record after Close
var ErrClosed = errors.New("event store is closed")

// Backend is the durable side of the store
type Backend interface {
	// WriteEvents persists a batch atomically into every event structure
	WriteEvents(ctx context.Context, batch []*events.Event, pointExpiresAt time.Time, recentLimit int) error
	RecentEvents(ctx context.Context, limit int) ([]*events.Event, error)
	EventsByType(ctx context.Context, eventType events.EventType, limit int) ([]*events.Event, error)
	EventsByDay(ctx context.Context, day string) ([]*events.Event, error)
	GetEvent(ctx context.Context, id string, now time.Time) (*events.Event, error)
	DeleteEventsBefore(ctx context.Context, cutoff time.Time, batchSize int) (int, error)
	PurgeExpiredPoints(ctx context.Context, now time.Time) (int, error)
}

// Config controls batching and retention
type Config struct {
	// FlushBatchSize is the buffer length at which Record triggers a flush
	FlushBatchSize int
	// FlushInterval is the period of the background flush
	FlushInterval time.Duration
	// RecentLimit caps the most-recent list
	RecentLimit int
	// PointTTL is how long the individually addressable copy of an event lives
	PointTTL time.Duration
	// Retention is how long per-type and per-day entries are kept
	Retention time.Duration
	// CleanupBatchSize is rows deleted per statement during Cleanup
	CleanupBatchSize int

	Logger *slog.Logger
	// Now overrides the clock (tests)
	Now func() time.Time
}

// ConfigFrom converts the file/env configuration section
func ConfigFrom(c config.EventStoreConfig) Config {
	return Config{
		FlushBatchSize:   c.FlushBatchSize,
		FlushInterval:    c.FlushInterval(),
		RecentLimit:      c.RecentLimit,
		PointTTL:         c.PointTTL(),
		Retention:        c.Retention(),
		CleanupBatchSize: c.CleanupBatchSize,
	}
}

func (c *Config) setDefaults() {
	defaults := ConfigFrom(config.DefaultEventStoreConfig())
	if c.FlushBatchSize < 1 {
		c.FlushBatchSize = defaults.FlushBatchSize
	}
	if c.FlushInterval <= 0 {
		c.FlushInterval = defaults.FlushInterval
	}
	if c.RecentLimit < 1 {
		c.RecentLimit = defaults.RecentLimit
	}
	if c.PointTTL <= 0 {
		c.PointTTL = defaults.PointTTL
	}
	if c.Retention <= 0 {
		c.Retention = defaults.Retention
	}
	if c.CleanupBatchSize < 1 {
		c.CleanupBatchSize = defaults.CleanupBatchSize
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Now == nil {
		c.Now = time.Now
	}
}

// Store is the event store. Record never performs I/O; a single background
// goroutine flushes on a timer and whenever the buffer reaches the batch size.
// Delivery is at-least-once: a failed batch goes back to the front of the
// buffer and is retried on the next tick.
type Store struct {
	backend Backend
	cfg     Config
	logger  *slog.Logger
	now     func() time.Time

	mu       sync.Mutex
	buffer   []*events.Event
	closed   bool
	retrying bool

	// flushMu serializes flushes from the loop and from callers of Flush
	flushMu sync.Mutex

	flushCh   chan struct{}
	stopCh    chan struct{}
	doneCh    chan struct{}
	closeOnce sync.Once
	closeErr  error
}

// New creates a store over backend and starts its flush loop
func New(backend Backend, cfg Config) *Store {
	cfg.setDefaults()
	s := &Store{
		backend: backend,
		cfg:     cfg,
		logger:  cfg.Logger,
		now:     cfg.Now,
		flushCh: make(chan struct{}, 1),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
	go s.flushLoop()
	return s
}

// Record validates req, stamps it with an id and the server time, and
// buffers it. The returned event is a copy.
func (s *Store) Record(req events.Request) (*events.Event, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	event := events.NewEvent(req, s.now().UTC())

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	s.buffer = append(s.buffer, event)
	full := len(s.buffer) >= s.cfg.FlushBatchSize && !s.retrying
	s.mu.Unlock()

	if full {
		select {
		case s.flushCh <- struct{}{}:
		default:
			// A flush is already pending
		}
	}
	return event.Clone(), nil
}

// Pending returns how many events are buffered and not yet persisted
func (s *Store) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buffer)
}

func (s *Store) flushLoop() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			_ = s.Flush(context.Background())
		case <-s.flushCh:
			_ = s.Flush(context.Background())
		}
	}
}

// Flush swaps out the buffer and writes it. On failure the batch is put back
// in front of anything recorded meanwhile.
func (s *Store) Flush(ctx context.Context) error {
	s.flushMu.Lock()
	defer s.flushMu.Unlock()

	s.mu.Lock()
	batch := s.buffer
	s.buffer = nil
	s.mu.Unlock()

	if len(batch) == 0 {
		return nil
	}

	err := s.backend.WriteEvents(ctx, batch, s.now().Add(s.cfg.PointTTL), s.cfg.RecentLimit)
	if err != nil {
		s.mu.Lock()
		s.buffer = append(batch, s.buffer...)
		s.retrying = true
		pending := len(s.buffer)
		s.mu.Unlock()

		s.logger.Warn("event flush failed, batch requeued", "batch", len(batch), "pending", pending, "error", err)
		return fmt.Errorf("failed to flush %d events: %w", len(batch), err)
	}

	s.mu.Lock()
	s.retrying = false
	s.mu.Unlock()

	s.logger.Debug("events flushed", "count", len(batch))
	return nil
}

// RecentEvents returns up to limit persisted events, newest first
func (s *Store) RecentEvents(ctx context.Context, limit int) ([]*events.Event, error) {
	if limit <= 0 {
		return nil, nil
	}
	if limit > s.cfg.RecentLimit {
		limit = s.cfg.RecentLimit
	}
	return s.backend.RecentEvents(ctx, limit)
}

// EventsByType returns up to limit persisted events of one type, newest first
func (s *Store) EventsByType(ctx context.Context, eventType events.EventType, limit int) ([]*events.Event, error) {
	if !eventType.IsValid() {
		return nil, fmt.Errorf("%w: %q", events.ErrUnknownType, eventType)
	}
	if limit <= 0 {
		return nil, nil
	}
	return s.backend.EventsByType(ctx, eventType, limit)
}

// TodayEvents returns every persisted event of the current UTC day, oldest first
func (s *Store) TodayEvents(ctx context.Context) ([]*events.Event, error) {
	return s.backend.EventsByDay(ctx, events.DayKey(s.now()))
}

// GetEvent looks up a single event by id while its point copy is unexpired
func (s *Store) GetEvent(ctx context.Context, id string) (*events.Event, error) {
	return s.backend.GetEvent(ctx, id, s.now())
}

// CleanupResult reports what a retention pass removed
type CleanupResult struct {
	Deleted      int `json:"deleted"`
	PointsPurged int `json:"points_purged"`
}

// Cleanup deletes per-type and per-day entries older than the retention
// period and purges expired point copies. The recent list is capped on
// write and is not touched here.
func (s *Store) Cleanup(ctx context.Context) (CleanupResult, error) {
	var result CleanupResult
	now := s.now()

	deleted, err := s.backend.DeleteEventsBefore(ctx, now.Add(-s.cfg.Retention), s.cfg.CleanupBatchSize)
	result.Deleted = deleted
	if err != nil {
		return result, fmt.Errorf("failed to delete expired events: %w", err)
	}

	purged, err := s.backend.PurgeExpiredPoints(ctx, now)
	result.PointsPurged = purged
	if err != nil {
		return result, fmt.Errorf("failed to purge expired event points: %w", err)
	}

	s.logger.Info("event cleanup complete", "deleted", deleted, "points_purged", purged)
	return result, nil
}

// Close stops the flush loop and performs one final flush. Later Record
// calls fail with ErrClosed. Safe to call more than once.
//
// If the final flush fails, Close returns its error and the events still
// buffered are dropped: nothing flushes a closed store again. Callers should
// log the error.
func (s *Store) Close(ctx context.Context) error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()

		close(s.stopCh)
		<-s.doneCh

		s.closeErr = s.Flush(ctx)
	})
	return s.closeErr
}
