package patterns

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/stat"

	"github.com/steveyegge/tuneup/internal/ai"
	"github.com/steveyegge/tuneup/internal/events"
)

const (
	minErrorGroup = 3

	minUsageCount  = 5
	maxUsageGroups = 5

	minWorkflowEvents  = 10
	minChainLength     = 3
	maxWorkflowChains  = 20
	maxWorkflowSummary = 200
	workflowConfidence = 0.7

	slowThresholdMs     = 1000.0
	verySlowThresholdMs = 2000.0
)

// group collects events under a key, remembering first-appearance order
type group struct {
	key     string
	members []*events.Event
}

func groupBy(window []*events.Event, keep func(*events.Event) bool, key func(*events.Event) string) []*group {
	index := make(map[string]*group)
	var ordered []*group
	for _, e := range window {
		if e == nil || !keep(e) {
			continue
		}
		k := key(e)
		g, ok := index[k]
		if !ok {
			g = &group{key: k}
			index[k] = g
			ordered = append(ordered, g)
		}
		g.members = append(g.members, e)
	}
	return ordered
}

func examples(members []*events.Event) []*events.Event {
	n := len(members)
	if n > MaxExamples {
		n = MaxExamples
	}
	out := make([]*events.Event, n)
	for i := 0; i < n; i++ {
		out[i] = members[i].Clone()
	}
	return out
}

func ratio(count int, denom float64) float64 {
	return math.Min(1, float64(count)/denom)
}

// detectErrorPatterns emits one pattern per error text seen at least three times
func detectErrorPatterns(window []*events.Event) []*Pattern {
	groups := groupBy(window,
		func(e *events.Event) bool { return e.Type == events.EventTypeError },
		func(e *events.Event) string { return e.Metadata.ErrorText() },
	)

	var out []*Pattern
	for _, g := range groups {
		count := len(g.members)
		if count < minErrorGroup {
			continue
		}
		impact := ImpactLow
		switch {
		case count > 10:
			impact = ImpactHigh
		case count > 5:
			impact = ImpactMedium
		}
		out = append(out, &Pattern{
			ID:          uuid.New().String(),
			Type:        PatternError,
			Confidence:  ratio(count, 10),
			Description: fmt.Sprintf("Recurring error %q occurred %d times", g.key, count),
			Frequency:   count,
			Examples:    examples(g.members),
			Suggestion:  fmt.Sprintf("Add error handling or a fix for %q", g.key),
			Impact:      impact,
		})
	}
	return out
}

// detectUsagePatterns reports the most used components
func detectUsagePatterns(window []*events.Event) []*Pattern {
	groups := groupBy(window,
		func(e *events.Event) bool {
			if e.Metadata.Component == "" {
				return false
			}
			return e.Type == events.EventTypeUserAction || e.Type == events.EventTypeUIInteraction
		},
		func(e *events.Event) string { return e.Metadata.Component },
	)

	sort.SliceStable(groups, func(i, j int) bool {
		return len(groups[i].members) > len(groups[j].members)
	})
	if len(groups) > maxUsageGroups {
		groups = groups[:maxUsageGroups]
	}

	var out []*Pattern
	for _, g := range groups {
		count := len(g.members)
		if count < minUsageCount {
			continue
		}
		impact := ImpactMedium
		if count > 30 {
			impact = ImpactHigh
		}
		out = append(out, &Pattern{
			ID:          uuid.New().String(),
			Type:        PatternUsage,
			Confidence:  ratio(count, 50),
			Description: fmt.Sprintf("Component %s is heavily used (%d interactions)", g.key, count),
			Frequency:   count,
			Examples:    examples(g.members),
			Suggestion:  fmt.Sprintf("Make %s faster to reach and optimize its rendering", g.key),
			Impact:      impact,
		})
	}
	return out
}

const workflowPrompt = `Analyze these user workflow sequences from an application and identify common patterns or inefficiencies.
Each line is one session, as an ordered chain of type:action steps.

%s

Describe the most significant repeated workflow and one concrete way to streamline it.`

// detectWorkflowPatterns asks the text generator to summarize per-session
// action chains. Any generator failure yields no patterns.
func (a *Analyzer) detectWorkflowPatterns(ctx context.Context, window []*events.Event) []*Pattern {
	if len(window) < minWorkflowEvents {
		return nil
	}

	sessions := groupBy(window,
		func(e *events.Event) bool { return e.SessionID != "" },
		func(e *events.Event) string { return e.SessionID },
	)

	var chains []string
	for _, s := range sessions {
		if len(s.members) < minChainLength {
			continue
		}
		ordered := make([]*events.Event, len(s.members))
		copy(ordered, s.members)
		sort.SliceStable(ordered, func(i, j int) bool {
			return ordered[i].Timestamp.Before(ordered[j].Timestamp)
		})
		links := make([]string, len(ordered))
		for i, e := range ordered {
			links[i] = e.Chain()
		}
		chains = append(chains, strings.Join(links, " -> "))
	}
	if len(chains) == 0 {
		return nil
	}
	if len(chains) > maxWorkflowChains {
		chains = chains[:maxWorkflowChains]
	}

	text, err := a.generator.Generate(ctx, fmt.Sprintf(workflowPrompt, strings.Join(chains, "\n")))
	if err != nil {
		if errors.Is(err, ai.ErrUnavailable) {
			a.logger.Debug("workflow detection skipped", "reason", err)
		} else {
			a.logger.Warn("workflow detection failed", "error", err, "chains", len(chains))
		}
		return nil
	}
	summary := strings.TrimSpace(ai.TruncateRunes(text, maxWorkflowSummary))
	if summary == "" {
		return nil
	}

	return []*Pattern{{
		ID:          uuid.New().String(),
		Type:        PatternWorkflow,
		Confidence:  workflowConfidence,
		Description: summary,
		Frequency:   len(chains),
		Suggestion:  summary,
		Impact:      ImpactMedium,
	}}
}

// detectPerformancePatterns emits one aggregate pattern for slow operations
func detectPerformancePatterns(window []*events.Event) []*Pattern {
	var slow []*events.Event
	var durations []float64
	for _, e := range window {
		if e == nil || e.Type != events.EventTypePerformance || !e.Metadata.HasDuration() {
			continue
		}
		if d := *e.Metadata.Duration; d > slowThresholdMs {
			slow = append(slow, e)
			durations = append(durations, d)
		}
	}
	if len(slow) == 0 {
		return nil
	}

	mean := stat.Mean(durations, nil)
	impact := ImpactMedium
	if mean > verySlowThresholdMs {
		impact = ImpactHigh
	}
	return []*Pattern{{
		ID:          uuid.New().String(),
		Type:        PatternOptimization,
		Confidence:  ratio(len(slow), 10),
		Description: fmt.Sprintf("%d slow operations detected, average %.0fms", len(slow), mean),
		Frequency:   len(slow),
		Examples:    examples(slow),
		Suggestion:  "Profile the slow operations and add caching or lazy loading",
		Impact:      impact,
	}}
}
