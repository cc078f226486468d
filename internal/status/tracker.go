package status

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/steveyegge/tuneup/internal/improvement"
)

// ErrSuggestionNotFound is returned when a status change names an unknown suggestion
var ErrSuggestionNotFound = errors.New("suggestion not found")

// Tracker guards the single shared status record. Writers are the worker
// and the ingestion boundary; any number of readers take snapshots.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
	now  func() time.Time
}

// NewTracker creates a tracker in the idle state
func NewTracker() *Tracker {
	return NewTrackerWithClock(time.Now)
}

// NewTrackerWithClock creates a tracker using now for UpdatedAt
func NewTrackerWithClock(now func() time.Time) *Tracker {
	return &Tracker{
		snap: Snapshot{Status: StatusIdle, Suggestions: []SuggestionSummary{}, UpdatedAt: now()},
		now:  now,
	}
}

// Snapshot returns a deep copy of the current status
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.snap.Clone()
}

// Update applies fn under the write lock and returns the resulting snapshot
func (t *Tracker) Update(fn func(s *Snapshot)) Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	fn(&t.snap)
	t.snap.UpdatedAt = t.now()
	return t.snap.Clone()
}

// SetActivity sets the status and current task together
func (t *Tracker) SetActivity(status AgentStatus, task *Task) Snapshot {
	return t.Update(func(s *Snapshot) {
		s.Status = status
		if task != nil {
			copied := *task
			s.CurrentTask = &copied
		} else {
			s.CurrentTask = nil
		}
	})
}

// SetProgress updates the current task's progress. It is a no-op when no
// task is set or id names a different task.
func (t *Tracker) SetProgress(id string, progress int) Snapshot {
	return t.Update(func(s *Snapshot) {
		if s.CurrentTask != nil && s.CurrentTask.ID == id {
			s.CurrentTask.Progress = progress
		}
	})
}

// ClearTask returns to the active state with no current task
func (t *Tracker) ClearTask() Snapshot {
	return t.SetActivity(StatusActive, nil)
}

// SetLastAction records the most recent thing the agent did or saw
func (t *Tracker) SetLastAction(action string) Snapshot {
	return t.Update(func(s *Snapshot) { s.LastAction = action })
}

// ReplaceSuggestions replaces the suggestion list wholesale with the newest
// MaxSuggestions improvements. Ties in CreatedAt keep input order.
func (t *Tracker) ReplaceSuggestions(items []*improvement.Improvement) Snapshot {
	ordered := make([]*improvement.Improvement, 0, len(items))
	for _, imp := range items {
		if imp != nil {
			ordered = append(ordered, imp)
		}
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].CreatedAt.After(ordered[j].CreatedAt)
	})
	if len(ordered) > MaxSuggestions {
		ordered = ordered[:MaxSuggestions]
	}

	summaries := make([]SuggestionSummary, len(ordered))
	for i, imp := range ordered {
		summaries[i] = SummaryFrom(imp)
	}
	return t.Update(func(s *Snapshot) { s.Suggestions = summaries })
}

// SetImprovementsToday overwrites the improvements counter
func (t *Tracker) SetImprovementsToday(n int) Snapshot {
	return t.Update(func(s *Snapshot) { s.ImprovementsToday = n })
}

// IncrementTasksCompleted counts one finished job
func (t *Tracker) IncrementTasksCompleted() Snapshot {
	return t.Update(func(s *Snapshot) { s.TasksCompleted++ })
}

// SetSuggestionStatus changes the review status of one suggestion
func (t *Tracker) SetSuggestionStatus(id string, st improvement.Status) (Snapshot, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for i := range t.snap.Suggestions {
		if t.snap.Suggestions[i].ID == id {
			t.snap.Suggestions[i].Status = st
			t.snap.UpdatedAt = t.now()
			return t.snap.Clone(), nil
		}
	}
	return t.snap.Clone(), ErrSuggestionNotFound
}
