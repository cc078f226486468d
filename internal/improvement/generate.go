package improvement

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/steveyegge/tuneup/internal/health"
	"github.com/steveyegge/tuneup/internal/patterns"
)

// DefaultMaxIssues caps how many scan issues become improvements per cycle
const DefaultMaxIssues = 20

type issueTemplate struct {
	typ        Type
	title      string
	suggestion string
	impact     string
}

var issueTemplates = map[health.Category]issueTemplate{
	health.CategoryUnusedImport: {
		typ:        TypeCodeCleanup,
		title:      "Remove unused import",
		suggestion: "Delete the import or use the imported module",
		impact:     "Smaller bundles and clearer dependencies",
	},
	health.CategoryDeadCode: {
		typ:        TypeCodeCleanup,
		title:      "Remove dead code",
		suggestion: "Remove the debug statement or resolve the marker",
		impact:     "Cleaner, more maintainable code",
	},
	health.CategoryPerformance: {
		typ:        TypePerformance,
		title:      "Improve performance",
		suggestion: "Optimize the flagged code path",
		impact:     "Faster response times",
	},
	health.CategorySecurity: {
		typ:        TypeSecurity,
		title:      "Fix security issue",
		suggestion: "Address the flagged security concern",
		impact:     "Reduced security risk",
	},
}

var categoryTypes = map[patterns.SuggestionCategory]Type{
	patterns.CategoryUI:          TypeUIImprovement,
	patterns.CategoryCode:        TypeCodeCleanup,
	patterns.CategoryPerformance: TypePerformance,
	patterns.CategorySecurity:    TypeSecurity,
}

// GenerateImprovements converts the first maxIssues scan issues and every
// suggestion into pending improvements stamped with now. Issue-derived
// improvements come first.
func GenerateImprovements(issues []health.CodeIssue, suggestions []*patterns.Suggestion, maxIssues int, now time.Time) []*Improvement {
	if maxIssues < 0 {
		maxIssues = 0
	}
	if len(issues) > maxIssues {
		issues = issues[:maxIssues]
	}

	out := make([]*Improvement, 0, len(issues)+len(suggestions))
	for _, issue := range issues {
		tmpl, ok := issueTemplates[issue.Category]
		if !ok {
			tmpl = issueTemplates[health.CategoryDeadCode]
			tmpl.title = fmt.Sprintf("Review %s issue", issue.Category)
		}
		priority := PriorityMedium
		if issue.Category == health.CategorySecurity {
			priority = PriorityHigh
		}
		out = append(out, &Improvement{
			ID:              uuid.New().String(),
			Type:            tmpl.typ,
			Priority:        priority,
			Title:           tmpl.title,
			Description:     issue.Description,
			File:            issue.FilePath,
			Line:            issue.Line,
			Suggestion:      tmpl.suggestion,
			EstimatedImpact: tmpl.impact,
			Status:          StatusPending,
			CreatedAt:       now,
		})
	}

	for _, s := range suggestions {
		if s == nil {
			continue
		}
		typ, ok := categoryTypes[s.Category]
		if !ok {
			typ = TypeCodeCleanup
		}
		out = append(out, &Improvement{
			ID:              uuid.New().String(),
			Type:            typ,
			Priority:        priorityFor(s.Impact),
			Title:           s.Title,
			Description:     s.Description,
			Suggestion:      s.Description,
			EstimatedImpact: fmt.Sprintf("%s impact (confidence %.0f%%)", s.Impact, s.Confidence*100),
			Status:          StatusPending,
			CreatedAt:       now,
		})
	}
	return out
}

func priorityFor(impact patterns.Impact) Priority {
	switch impact {
	case patterns.ImpactHigh:
		return PriorityHigh
	case patterns.ImpactLow:
		return PriorityLow
	default:
		return PriorityMedium
	}
}
