// Package display formats agent state for terminals. It is shared by the CLI
// and the interactive console.
package display

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/steveyegge/tuneup/internal/events"
	"github.com/steveyegge/tuneup/internal/executor"
	"github.com/steveyegge/tuneup/internal/improvement"
	"github.com/steveyegge/tuneup/internal/queue"
	"github.com/steveyegge/tuneup/internal/status"
)

var (
	cyan   = color.New(color.FgCyan, color.Bold).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	green  = color.New(color.FgGreen).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	gray   = color.New(color.FgHiBlack).SprintFunc()
	purple = color.New(color.FgMagenta).SprintFunc()
)

// Status prints the executor view and the shared status record
func Status(w io.Writer, info *executor.Info) {
	fmt.Fprintf(w, "\n%s\n\n", cyan("=== tuneup agent ==="))

	snap := info.Agent
	fmt.Fprintf(w, "%s %s\n", statusIcon(snap.Status), statusColor(snap.Status)(string(snap.Status)))
	if snap.CurrentTask != nil {
		fmt.Fprintf(w, "  Task:     %s (%d%%)\n", snap.CurrentTask.Description, snap.CurrentTask.Progress)
	}
	if snap.LastAction != "" {
		fmt.Fprintf(w, "  Last:     %s\n", snap.LastAction)
	}
	fmt.Fprintf(w, "  Today:    %d improvements, %d tasks completed\n", snap.ImprovementsToday, snap.TasksCompleted)
	if !snap.UpdatedAt.IsZero() {
		fmt.Fprintf(w, "  Updated:  %s (%v ago)\n", snap.UpdatedAt.Format("15:04:05"), time.Since(snap.UpdatedAt).Round(time.Second))
	}

	if info.InstanceID != "" {
		fmt.Fprintf(w, "\n%s\n", yellow("Worker:"))
		fmt.Fprintf(w, "  Instance: %s\n", info.InstanceID)
		fmt.Fprintf(w, "  Host:     %s (PID %d)\n", info.Hostname, info.PID)
		if !info.StartedAt.IsZero() {
			fmt.Fprintf(w, "  Started:  %s\n", info.StartedAt.Format("2006-01-02 15:04:05"))
		}
		if info.LastJob != nil {
			outcome := green("ok")
			if info.LastJob.Error != "" {
				outcome = red(info.LastJob.Error)
			}
			fmt.Fprintf(w, "  Last job: %s %s in %v: %s\n",
				info.LastJob.Type, info.LastJob.JobID[:min(8, len(info.LastJob.JobID))],
				info.LastJob.Duration.Round(time.Millisecond), outcome)
		}
	}
	if info.Queue != nil {
		fmt.Fprintf(w, "\n%s\n", yellow("Queue:"))
		Counts(w, *info.Queue)
	}

	fmt.Fprintf(w, "\n%s\n", yellow("Suggestions:"))
	Suggestions(w, snap.Suggestions)
	fmt.Fprintln(w)
}

// Suggestions prints the suggestion list
func Suggestions(w io.Writer, items []status.SuggestionSummary) {
	if len(items) == 0 {
		fmt.Fprintf(w, "  %s\n", gray("No suggestions yet"))
		return
	}
	for _, s := range items {
		where := ""
		if s.File != "" {
			where = gray(fmt.Sprintf(" %s:%d", s.File, s.Line))
		}
		fmt.Fprintf(w, "  %s [%s] %s%s\n", priorityColor(s.Priority)(string(s.Priority)), s.Status, s.Title, where)
		fmt.Fprintf(w, "    %s\n", gray(s.ID))
	}
}

// Counts prints queue counters
func Counts(w io.Writer, c queue.Counts) {
	fmt.Fprintf(w, "  waiting %s  active %s  completed %s  failed %s  total %d\n",
		yellow(c.Waiting), cyan(c.Active), green(c.Completed), red(c.Failed), c.Total)
}

// Job prints one job
func Job(w io.Writer, j *queue.Job) {
	fmt.Fprintf(w, "%s %s %s\n", green("✓"), purple(string(j.Type)), j.ID)
	fmt.Fprintf(w, "  status %s, priority %d, attempts %d/%d, runs at %s\n",
		j.Status, j.Priority, j.Attempts, j.MaxAttempts, j.RunAt.Local().Format("15:04:05"))
	if j.LastError != "" {
		fmt.Fprintf(w, "  last error: %s\n", red(j.LastError))
	}
}

// Events prints events one per two lines
func Events(w io.Writer, list []*events.Event) {
	if len(list) == 0 {
		fmt.Fprintf(w, "%s\n", gray("No events"))
		return
	}
	for _, e := range list {
		Event(w, e)
	}
}

// Event prints one event: a header line, then its metadata fields
func Event(w io.Writer, e *events.Event) {
	fmt.Fprintf(w, "[%s] %s %s\n", e.Timestamp.Local().Format("2006-01-02 15:04:05"), purple(string(e.Type)), gray(e.ID))
	if fields := metadataLine(e); fields != "" {
		fmt.Fprintf(w, "  %s\n", fields)
	}
}

func metadataLine(e *events.Event) string {
	var parts []string
	add := func(k, v string) {
		if v != "" {
			parts = append(parts, k+"="+v)
		}
	}
	add("user", e.UserID)
	add("session", e.SessionID)
	add("action", e.Metadata.Action)
	add("component", e.Metadata.Component)
	add("route", e.Metadata.Route)
	add("file", e.Metadata.File)
	add("error", e.Metadata.Error)
	if e.Metadata.Duration != nil {
		add("duration", fmt.Sprintf("%.0fms", *e.Metadata.Duration))
	}

	keys := make([]string, 0, len(e.Metadata.Extra))
	for k := range e.Metadata.Extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		add(k, fmt.Sprint(e.Metadata.Extra[k]))
	}
	return strings.Join(parts, " | ")
}

// Notification prints one broadcast notification
func Notification(w io.Writer, n status.Notification) {
	line := fmt.Sprintf("[%s] %s", n.Time.Local().Format("15:04:05"), cyan(string(n.Kind)))
	switch n.Kind {
	case status.KindTaskProgress:
		if n.Snapshot != nil && n.Snapshot.CurrentTask != nil {
			line += fmt.Sprintf(" %s %d%%", n.Snapshot.CurrentTask.Description, n.Snapshot.CurrentTask.Progress)
		}
	case status.KindCycleComplete:
		line += fmt.Sprintf(" patterns=%v improvements=%v", n.Data["patterns_found"], n.Data["improvements_generated"])
	case status.KindSuggestionsChanged:
		if n.Snapshot != nil {
			line += fmt.Sprintf(" %d suggestions", len(n.Snapshot.Suggestions))
		}
	default:
		if n.Snapshot != nil {
			line += " " + statusColor(n.Snapshot.Status)(string(n.Snapshot.Status))
			if n.Snapshot.LastAction != "" {
				line += gray(" " + n.Snapshot.LastAction)
			}
		}
	}
	fmt.Fprintln(w, line)
}

func statusIcon(s status.AgentStatus) string {
	switch s {
	case status.StatusWorking:
		return "⚙"
	case status.StatusThinking:
		return "🧠"
	case status.StatusActive:
		return "●"
	default:
		return "○"
	}
}

func statusColor(s status.AgentStatus) func(a ...interface{}) string {
	switch s {
	case status.StatusWorking, status.StatusThinking:
		return yellow
	case status.StatusActive:
		return green
	default:
		return gray
	}
}

func priorityColor(p improvement.Priority) func(a ...interface{}) string {
	switch p {
	case improvement.PriorityHigh:
		return red
	case improvement.PriorityMedium:
		return yellow
	default:
		return gray
	}
}
