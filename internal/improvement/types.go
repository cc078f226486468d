// Package improvement turns pattern analysis and codebase scan results into
// a prioritized list of improvements and orchestrates a full cycle.
package improvement

import (
	"time"

	"github.com/steveyegge/tuneup/internal/health"
	"github.com/steveyegge/tuneup/internal/patterns"
)

// Type is the kind of change an improvement proposes
type Type string

const (
	TypeCodeCleanup   Type = "code_cleanup"
	TypeUIImprovement Type = "ui_improvement"
	TypePerformance   Type = "performance"
	TypeSecurity      Type = "security"
	TypeRefactor      Type = "refactor"
)

// Priority orders improvements for review
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Status tracks an improvement through review. Improvements are created
// pending; other transitions happen at the ingestion boundary.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusApplied  Status = "applied"
	StatusRejected Status = "rejected"
)

// IsValid reports whether s is a known status
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusApplied, StatusRejected:
		return true
	}
	return false
}

// Improvement is one actionable suggestion
type Improvement struct {
	ID              string    `json:"id"`
	Type            Type      `json:"type"`
	Priority        Priority  `json:"priority"`
	Title           string    `json:"title"`
	Description     string    `json:"description"`
	File            string    `json:"file,omitempty"`
	Line            int       `json:"line,omitempty"`
	Suggestion      string    `json:"suggestion"`
	EstimatedImpact string    `json:"estimated_impact"`
	Status          Status    `json:"status"`
	CreatedAt       time.Time `json:"created_at"`
}

// CycleResult summarizes one improvement cycle
type CycleResult struct {
	PatternsFound         int                 `json:"patterns_found"`
	ImprovementsGenerated int                 `json:"improvements_generated"`
	Suggestions           []*Improvement      `json:"suggestions"`
	Patterns              []*patterns.Pattern `json:"-"`
	ScanStats             health.ScanStats    `json:"scan_stats"`
}
