// Package executor runs the agent's single background worker. It drains the
// job queue one job at a time, keeps the shared status record current while
// it works, and enforces event retention on a separate timer.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/steveyegge/tuneup/internal/eventstore"
	"github.com/steveyegge/tuneup/internal/health"
	"github.com/steveyegge/tuneup/internal/improvement"
	"github.com/steveyegge/tuneup/internal/patterns"
	"github.com/steveyegge/tuneup/internal/queue"
	"github.com/steveyegge/tuneup/internal/status"
	"github.com/steveyegge/tuneup/internal/storage/sqlite"
)

// Engine is the work the dispatch table delegates to
type Engine interface {
	RunCycle(ctx context.Context) (*improvement.CycleResult, error)
	ScanCodebase(ctx context.Context) (*health.ScanResult, error)
	AnalyzePatterns(ctx context.Context) ([]*patterns.Pattern, error)
}

// Cleaner enforces event retention
type Cleaner interface {
	Cleanup(ctx context.Context) (eventstore.CleanupResult, error)
}

// Maintenance is optional database upkeep run after a cleanup that deleted rows
type Maintenance interface {
	VacuumDatabase(ctx context.Context) error
	GetEventCounts(ctx context.Context) (*sqlite.EventCounts, error)
}

// Executor is the single worker
type Executor struct {
	queue       *queue.Queue
	engine      Engine
	tracker     *status.Tracker
	broadcaster status.Broadcaster
	cleaner     Cleaner
	maintenance Maintenance
	logger      *slog.Logger

	instanceID   string
	hostname     string
	pid          int
	version      string
	startedAt    time.Time
	pollInterval time.Duration

	cleanupEnabled  bool
	cleanupInterval time.Duration
	vacuumAfter     int

	// Control channels for graceful shutdown
	stopCh             chan struct{}
	doneCh             chan struct{}
	eventCleanupStopCh chan struct{}
	eventCleanupDoneCh chan struct{}

	mu      sync.RWMutex
	running bool
	lastJob *JobOutcome
}

// Config holds executor configuration
type Config struct {
	Queue       *queue.Queue
	Engine      Engine
	Tracker     *status.Tracker
	Broadcaster status.Broadcaster // Optional (nil drops notifications)
	Cleaner     Cleaner            // Optional (nil disables the retention loop)
	Maintenance Maintenance        // Optional (nil skips vacuum)
	Logger      *slog.Logger
	Version     string

	PollInterval time.Duration // How often to look for due jobs when no wake-up arrives (default: 1s)

	CleanupEnabled  bool
	CleanupInterval time.Duration // Default: 24h

	// VacuumAfter is the deleted-row count at which a cleanup also vacuums
	// the database. 0 disables vacuuming.
	VacuumAfter int
}

// DefaultConfig returns the default executor configuration
func DefaultConfig() *Config {
	return &Config{
		Version:         "0.1.0",
		PollInterval:    time.Second,
		CleanupEnabled:  true,
		CleanupInterval: 24 * time.Hour,
		VacuumAfter:     10000,
	}
}

// New creates a new executor instance
func New(cfg *Config) (*Executor, error) {
	if cfg.Queue == nil {
		return nil, fmt.Errorf("queue is required")
	}
	if cfg.Engine == nil {
		return nil, fmt.Errorf("engine is required")
	}
	if cfg.Tracker == nil {
		return nil, fmt.Errorf("status tracker is required")
	}

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = time.Second
	}
	cleanupInterval := cfg.CleanupInterval
	if cleanupInterval <= 0 {
		cleanupInterval = 24 * time.Hour
	}

	instanceID := uuid.New().String()
	return &Executor{
		queue:              cfg.Queue,
		engine:             cfg.Engine,
		tracker:            cfg.Tracker,
		broadcaster:        cfg.Broadcaster,
		cleaner:            cfg.Cleaner,
		maintenance:        cfg.Maintenance,
		logger:             logger.With("executor", instanceID[:8]),
		instanceID:         instanceID,
		hostname:           hostname,
		pid:                os.Getpid(),
		version:            cfg.Version,
		pollInterval:       pollInterval,
		cleanupEnabled:     cfg.CleanupEnabled && cfg.Cleaner != nil,
		cleanupInterval:    cleanupInterval,
		vacuumAfter:        cfg.VacuumAfter,
		stopCh:             make(chan struct{}),
		doneCh:             make(chan struct{}),
		eventCleanupStopCh: make(chan struct{}),
		eventCleanupDoneCh: make(chan struct{}),
	}, nil
}

// Start begins the worker loop and, when configured, the retention loop
func (e *Executor) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return fmt.Errorf("executor is already running")
	}
	e.running = true
	e.startedAt = time.Now()
	e.mu.Unlock()

	snap := e.tracker.ClearTask()
	e.notify(status.KindStatusChanged, &snap, nil)

	go e.eventLoop(ctx)
	go e.eventCleanupLoop(ctx)

	e.logger.Info("executor started",
		"hostname", e.hostname, "pid", e.pid, "poll_interval", e.pollInterval,
		"cleanup_enabled", e.cleanupEnabled)
	return nil
}

// Stop signals both loops and waits for them, or for ctx to end. A job in
// progress is allowed to finish first.
func (e *Executor) Stop(ctx context.Context) error {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return fmt.Errorf("executor is not running")
	}
	e.mu.Unlock()

	close(e.stopCh)
	close(e.eventCleanupStopCh)

	// Wait for both loops concurrently so one slow loop doesn't cost two timeouts
	eventDone := false
	eventCleanupDone := false
	for !eventDone || !eventCleanupDone {
		select {
		case <-e.doneCh:
			eventDone = true
		case <-e.eventCleanupDoneCh:
			eventCleanupDone = true
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	snap := e.tracker.SetActivity(status.StatusOffline, nil)
	e.notify(status.KindStatusChanged, &snap, nil)

	e.mu.Lock()
	e.running = false
	e.mu.Unlock()

	e.logger.Info("executor stopped")
	return nil
}

// IsRunning returns whether the executor is currently running
func (e *Executor) IsRunning() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.running
}

func (e *Executor) notify(kind status.Kind, snap *status.Snapshot, data map[string]any) {
	status.Notify(e.broadcaster, status.Notification{
		Kind:     kind,
		Snapshot: snap,
		Data:     data,
	}, e.logger)
}
