package improvement

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/steveyegge/tuneup/internal/events"
	"github.com/steveyegge/tuneup/internal/health"
	"github.com/steveyegge/tuneup/internal/patterns"
)

// DefaultWindow is how many recent events a cycle analyzes
const DefaultWindow = 500

// EventSource is the read side of the event store
type EventSource interface {
	// Flush persists buffered events so reads see them
	Flush(ctx context.Context) error
	RecentEvents(ctx context.Context, limit int) ([]*events.Event, error)
}

// Scanner finds code issues
type Scanner interface {
	Scan(ctx context.Context) (*health.ScanResult, error)
}

// Config configures an Engine
type Config struct {
	// Window is the number of recent events analyzed (default 500)
	Window int
	// MaxIssues caps issue-derived improvements (default 20)
	MaxIssues int
	Logger    *slog.Logger
	Now       func() time.Time
}

// Engine runs improvement cycles
type Engine struct {
	events   EventSource
	analyzer *patterns.Analyzer
	scanner  Scanner

	window    int
	maxIssues int
	logger    *slog.Logger
	now       func() time.Time

	// scanMu keeps codebase scans from overlapping
	scanMu sync.Mutex
}

// NewEngine creates an engine
func NewEngine(source EventSource, analyzer *patterns.Analyzer, scanner Scanner, cfg Config) *Engine {
	if cfg.Window <= 0 {
		cfg.Window = DefaultWindow
	}
	if cfg.MaxIssues <= 0 {
		cfg.MaxIssues = DefaultMaxIssues
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Engine{
		events:    source,
		analyzer:  analyzer,
		scanner:   scanner,
		window:    cfg.Window,
		maxIssues: cfg.MaxIssues,
		logger:    cfg.Logger,
		now:       cfg.Now,
	}
}

// AnalyzePatterns runs the pattern analyzer over the most recent events.
func (e *Engine) AnalyzePatterns(ctx context.Context) ([]*patterns.Pattern, error) {
	if err := e.events.Flush(ctx); err != nil {
		// stale reads are acceptable; the batch is retried by the store
		e.logger.Warn("event flush before analysis failed", "error", err)
	}
	window, err := e.events.RecentEvents(ctx, e.window)
	if err != nil {
		return nil, fmt.Errorf("failed to read recent events: %w", err)
	}
	return e.analyzer.Analyze(ctx, window), nil
}

// ScanCodebase runs the codebase scanner. Concurrent calls are serialized.
func (e *Engine) ScanCodebase(ctx context.Context) (*health.ScanResult, error) {
	e.scanMu.Lock()
	defer e.scanMu.Unlock()

	result, err := e.scanner.Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("codebase scan failed: %w", err)
	}
	return result, nil
}

// RunCycle analyzes recent events, scans the codebase, and generates
// improvements from both.
func (e *Engine) RunCycle(ctx context.Context) (*CycleResult, error) {
	start := e.now()

	found, err := e.AnalyzePatterns(ctx)
	if err != nil {
		return nil, err
	}
	scan, err := e.ScanCodebase(ctx)
	if err != nil {
		return nil, err
	}

	suggestions := patterns.GenerateSuggestions(found)
	improvements := GenerateImprovements(scan.Issues, suggestions, e.maxIssues, e.now())

	e.logger.Info("improvement cycle complete",
		"patterns", len(found),
		"issues", len(scan.Issues),
		"improvements", len(improvements),
		"duration", e.now().Sub(start))

	return &CycleResult{
		PatternsFound:         len(found),
		ImprovementsGenerated: len(improvements),
		Suggestions:           improvements,
		Patterns:              found,
		ScanStats:             scan.Stats,
	}, nil
}
