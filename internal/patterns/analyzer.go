package patterns

import (
	"context"
	"log/slog"
	"sort"

	"github.com/steveyegge/tuneup/internal/ai"
	"github.com/steveyegge/tuneup/internal/events"
)

// Analyzer runs the detectors over a bounded event window
type Analyzer struct {
	generator ai.TextGenerator
	logger    *slog.Logger
}

// NewAnalyzer creates an analyzer. A nil generator disables workflow detection.
func NewAnalyzer(generator ai.TextGenerator, logger *slog.Logger) *Analyzer {
	if generator == nil {
		generator = ai.Noop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Analyzer{generator: generator, logger: logger}
}

// Analyze runs the error, usage, workflow, and performance detectors in that
// order and returns their combined output sorted by Score, highest first.
// Patterns with equal scores keep detector order.
func (a *Analyzer) Analyze(ctx context.Context, window []*events.Event) []*Pattern {
	var found []*Pattern
	found = append(found, detectErrorPatterns(window)...)
	found = append(found, detectUsagePatterns(window)...)
	found = append(found, a.detectWorkflowPatterns(ctx, window)...)
	found = append(found, detectPerformancePatterns(window)...)

	found = rank(found)
	a.logger.Debug("pattern analysis complete", "events", len(window), "patterns", len(found))
	return found
}

// rank sorts by Score descending; equal scores keep their input order
func rank(found []*Pattern) []*Pattern {
	sort.SliceStable(found, func(i, j int) bool {
		return found[i].Score() > found[j].Score()
	})
	return found
}
