package display

import (
	"bytes"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"

	"github.com/steveyegge/tuneup/internal/events"
	"github.com/steveyegge/tuneup/internal/executor"
	"github.com/steveyegge/tuneup/internal/improvement"
	"github.com/steveyegge/tuneup/internal/queue"
	"github.com/steveyegge/tuneup/internal/status"
)

func init() {
	color.NoColor = true
}

func TestEventLine(t *testing.T) {
	d := 1500.0
	var buf bytes.Buffer
	Event(&buf, &events.Event{
		ID:        "ev-1",
		Type:      events.EventTypePerformance,
		Timestamp: time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC),
		SessionID: "s1",
		Metadata: events.Metadata{
			Action:   "load",
			Duration: &d,
			Extra:    map[string]any{"zone": "b", "attempt": 2.0},
		},
	})
	out := buf.String()
	assert.Contains(t, out, "performance ev-1")
	assert.Contains(t, out, "session=s1 | action=load | duration=1500ms | attempt=2 | zone=b")
}

func TestEventsEmpty(t *testing.T) {
	var buf bytes.Buffer
	Events(&buf, nil)
	assert.Equal(t, "No events\n", buf.String())
}

func TestStatus(t *testing.T) {
	counts := queue.Counts{Waiting: 1, Completed: 4, Total: 5}
	info := &executor.Info{
		InstanceID: "abc",
		Hostname:   "box",
		PID:        42,
		Queue:      &counts,
		LastJob:    &executor.JobOutcome{JobID: "0123456789", Type: queue.JobCodeScan, Error: "boom"},
		Agent: status.Snapshot{
			Status:            status.StatusWorking,
			CurrentTask:       &status.Task{ID: "j1", Description: "Scanning codebase", Progress: 50},
			ImprovementsToday: 3,
			Suggestions: []status.SuggestionSummary{
				{ID: "imp-1", Priority: improvement.PriorityHigh, Status: improvement.StatusPending, Title: "Fix it", File: "a.go", Line: 7},
			},
		},
	}

	var buf bytes.Buffer
	Status(&buf, info)
	out := buf.String()
	assert.Contains(t, out, "working")
	assert.Contains(t, out, "Scanning codebase (50%)")
	assert.Contains(t, out, "3 improvements")
	assert.Contains(t, out, "code_scan 01234567")
	assert.Contains(t, out, "boom")
	assert.Contains(t, out, "waiting 1")
	assert.Contains(t, out, "high [pending] Fix it a.go:7")
}

func TestNotification(t *testing.T) {
	var buf bytes.Buffer
	snap := status.Snapshot{CurrentTask: &status.Task{Description: "Running improvement cycle", Progress: 75}}
	Notification(&buf, status.Notification{Kind: status.KindTaskProgress, Time: time.Now(), Snapshot: &snap})
	assert.Contains(t, buf.String(), "task_progress Running improvement cycle 75%")
}
