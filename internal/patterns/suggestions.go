package patterns

import (
	"fmt"

	"github.com/google/uuid"
)

// minSuggestionConfidence is exclusive
const minSuggestionConfidence = 0.3

// CategoryFor maps a pattern type to the area its suggestion targets
func CategoryFor(t PatternType) SuggestionCategory {
	switch t {
	case PatternWorkflow, PatternUsage:
		return CategoryUI
	case PatternOptimization:
		return CategoryPerformance
	default:
		return CategoryCode
	}
}

// GenerateSuggestions keeps confident patterns that carry suggestion text and
// converts each into a Suggestion, preserving input order.
func GenerateSuggestions(found []*Pattern) []*Suggestion {
	var out []*Suggestion
	for _, p := range found {
		if p == nil || p.Confidence <= minSuggestionConfidence || p.Suggestion == "" {
			continue
		}
		impact := p.Impact
		if impact == "" {
			impact = ImpactMedium
		}
		out = append(out, &Suggestion{
			ID:          uuid.New().String(),
			PatternID:   p.ID,
			Category:    CategoryFor(p.Type),
			Title:       fmt.Sprintf("Address %s pattern", p.Type),
			Description: p.Suggestion,
			Impact:      impact,
			Confidence:  p.Confidence,
		})
	}
	return out
}
