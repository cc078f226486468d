// Package status holds the agent's shared activity record and fans out
// change notifications to observers.
package status

import (
	"time"

	"github.com/steveyegge/tuneup/internal/improvement"
)

// AgentStatus is the agent's coarse activity state
type AgentStatus string

const (
	StatusActive   AgentStatus = "active"
	StatusThinking AgentStatus = "thinking"
	StatusWorking  AgentStatus = "working"
	StatusIdle     AgentStatus = "idle"
	StatusOffline  AgentStatus = "offline"
)

// MaxSuggestions bounds the suggestion list kept in the snapshot
const MaxSuggestions = 20

// Task describes the job currently being processed
type Task struct {
	ID          string `json:"id"`
	Description string `json:"description"`
	Progress    int    `json:"progress"`
}

// SuggestionSummary is the display shape of an improvement
type SuggestionSummary struct {
	ID          string               `json:"id"`
	Type        improvement.Type     `json:"type"`
	Priority    improvement.Priority `json:"priority"`
	Title       string               `json:"title"`
	Description string               `json:"description"`
	File        string               `json:"file,omitempty"`
	Line        int                  `json:"line,omitempty"`
	Status      improvement.Status   `json:"status"`
	CreatedAt   time.Time            `json:"created_at"`
}

// SummaryFrom maps an improvement to its display shape
func SummaryFrom(imp *improvement.Improvement) SuggestionSummary {
	return SuggestionSummary{
		ID:          imp.ID,
		Type:        imp.Type,
		Priority:    imp.Priority,
		Title:       imp.Title,
		Description: imp.Description,
		File:        imp.File,
		Line:        imp.Line,
		Status:      imp.Status,
		CreatedAt:   imp.CreatedAt,
	}
}

// Snapshot is a point-in-time copy of the shared status
type Snapshot struct {
	Status            AgentStatus         `json:"status"`
	LastAction        string              `json:"last_action"`
	ImprovementsToday int                 `json:"improvements_today"`
	TasksCompleted    int                 `json:"tasks_completed"`
	Suggestions       []SuggestionSummary `json:"suggestions"`
	CurrentTask       *Task               `json:"current_task"`
	UpdatedAt         time.Time           `json:"updated_at"`
}

// Clone returns a deep copy
func (s Snapshot) Clone() Snapshot {
	out := s
	if s.Suggestions != nil {
		out.Suggestions = make([]SuggestionSummary, len(s.Suggestions))
		copy(out.Suggestions, s.Suggestions)
	}
	if s.CurrentTask != nil {
		task := *s.CurrentTask
		out.CurrentTask = &task
	}
	return out
}
