// Package patterns detects recurring behavior in a window of recorded events
// and turns the findings into ranked suggestions.
package patterns

import "github.com/steveyegge/tuneup/internal/events"

// PatternType categorizes what a detector found
type PatternType string

const (
	PatternWorkflow     PatternType = "workflow"
	PatternPainPoint    PatternType = "pain_point"
	PatternOptimization PatternType = "optimization"
	PatternError        PatternType = "error_pattern"
	PatternUsage        PatternType = "usage_pattern"
)

// Impact is the expected benefit of acting on a pattern
type Impact string

const (
	ImpactHigh   Impact = "high"
	ImpactMedium Impact = "medium"
	ImpactLow    Impact = "low"
)

// MaxExamples bounds the sample events attached to a pattern
const MaxExamples = 5

// Pattern is a scored cluster of events sharing a detector-specific trait.
// Patterns are recomputed on every analysis run and never persisted.
type Pattern struct {
	ID          string          `json:"id"`
	Type        PatternType     `json:"type"`
	Confidence  float64         `json:"confidence"`
	Description string          `json:"description"`
	Frequency   int             `json:"frequency"`
	Examples    []*events.Event `json:"examples,omitempty"`
	Suggestion  string          `json:"suggestion,omitempty"`
	Impact      Impact          `json:"impact,omitempty"`
}

// Score ranks patterns: confidence weighted by how often the pattern occurred
func (p *Pattern) Score() float64 {
	return p.Confidence * float64(p.Frequency)
}

// SuggestionCategory is the area of the application a suggestion targets
type SuggestionCategory string

const (
	CategoryUI          SuggestionCategory = "ui"
	CategoryCode        SuggestionCategory = "code"
	CategoryPerformance SuggestionCategory = "performance"
	CategorySecurity    SuggestionCategory = "security"
)

// Suggestion is an actionable recommendation derived from one pattern
type Suggestion struct {
	ID          string             `json:"id"`
	PatternID   string             `json:"pattern_id"`
	Category    SuggestionCategory `json:"category"`
	Title       string             `json:"title"`
	Description string             `json:"description"`
	Impact      Impact             `json:"impact"`
	Confidence  float64            `json:"confidence"`
}
