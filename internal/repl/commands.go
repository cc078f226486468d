package repl

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/fatih/color"

	"github.com/steveyegge/tuneup/internal/control"
	"github.com/steveyegge/tuneup/internal/display"
	"github.com/steveyegge/tuneup/internal/events"
	"github.com/steveyegge/tuneup/internal/improvement"
	"github.com/steveyegge/tuneup/internal/queue"
)

// registerCommands registers all available commands
func (r *REPL) registerCommands() {
	r.commands["help"] = r.cmdHelp
	r.commands["?"] = r.cmdHelp
	r.commands["exit"] = r.cmdExit
	r.commands["quit"] = r.cmdExit
	r.commands["status"] = r.cmdStatus
	r.commands["record"] = r.cmdRecord
	r.commands["enqueue"] = r.cmdEnqueue
	r.commands["queue"] = r.cmdQueue
	r.commands["recent"] = r.cmdRecent
	r.commands["events"] = r.cmdEvents
	r.commands["today"] = r.cmdToday
	r.commands["get"] = r.cmdGet
	r.commands["approve"] = r.suggestionCommand(improvement.StatusApproved)
	r.commands["apply"] = r.suggestionCommand(improvement.StatusApplied)
	r.commands["reject"] = r.suggestionCommand(improvement.StatusRejected)
	r.commands["cleanup"] = r.cmdCleanup
}

func (r *REPL) cmdHelp(_ []string) error {
	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	fmt.Fprintf(r.out, "\n%s\n\n", cyan("Commands:"))
	lines := [][2]string{
		{"status", "Show agent status and suggestions"},
		{"record <type> k=v ...", "Record an event"},
		{"enqueue <job> [k=v ...]", "Queue a job (improvement_cycle, code_scan, pattern_analysis, apply_suggestion)"},
		{"queue", "Show queue counters"},
		{"recent [n]", "Show the most recent events"},
		{"events <type> [n]", "Show recent events of one type"},
		{"today", "Show events from the current UTC day"},
		{"get <id>", "Show one event"},
		{"approve|apply|reject <id>", "Change a suggestion's status"},
		{"cleanup", "Run event retention cleanup now"},
		{"exit", "Leave the console"},
	}
	for _, l := range lines {
		fmt.Fprintf(r.out, "  %-28s %s\n", l[0], l[1])
	}
	fmt.Fprintln(r.out)
	return nil
}

func (r *REPL) cmdExit(_ []string) error {
	fmt.Fprintln(r.out, "Goodbye!")
	return errExit
}

func (r *REPL) cmdStatus(_ []string) error {
	info, err := r.agent.Status()
	if err != nil {
		return err
	}
	display.Status(r.out, info)
	return nil
}

func (r *REPL) cmdRecord(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: record <type> key=value ...")
	}
	req, err := events.ParseFields(events.EventType(args[0]), args[1:])
	if err != nil {
		return err
	}
	ev, err := r.agent.Record(req)
	if err != nil {
		return err
	}
	green := color.New(color.FgGreen).SprintFunc()
	fmt.Fprintf(r.out, "%s recorded %s %s\n", green("✓"), ev.Type, ev.ID)
	return nil
}

func (r *REPL) cmdEnqueue(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: enqueue <job> [key=value ...]")
	}
	payload, err := parsePayload(args[1:])
	if err != nil {
		return err
	}
	job, err := r.agent.Enqueue(control.EnqueueArgs{Type: queue.JobType(args[0]), Payload: payload})
	if err != nil {
		return err
	}
	display.Job(r.out, job)
	return nil
}

func (r *REPL) cmdQueue(_ []string) error {
	counts, err := r.agent.QueueStatus()
	if err != nil {
		return err
	}
	display.Counts(r.out, counts)
	return nil
}

func (r *REPL) cmdRecent(args []string) error {
	limit, err := limitArg(args, 0)
	if err != nil {
		return err
	}
	list, err := r.agent.RecentEvents(limit)
	if err != nil {
		return err
	}
	display.Events(r.out, list)
	return nil
}

func (r *REPL) cmdEvents(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: events <type> [n]")
	}
	limit, err := limitArg(args, 1)
	if err != nil {
		return err
	}
	list, err := r.agent.EventsByType(events.EventType(args[0]), limit)
	if err != nil {
		return err
	}
	display.Events(r.out, list)
	return nil
}

func (r *REPL) cmdToday(_ []string) error {
	list, err := r.agent.TodayEvents()
	if err != nil {
		return err
	}
	display.Events(r.out, list)
	return nil
}

func (r *REPL) cmdGet(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: get <id>")
	}
	ev, err := r.agent.GetEvent(args[0])
	if err != nil {
		return err
	}
	display.Event(r.out, ev)
	return nil
}

func (r *REPL) suggestionCommand(st improvement.Status) CommandHandler {
	return func(args []string) error {
		if len(args) != 1 {
			return fmt.Errorf("usage: %s <suggestion-id>", verbFor(st))
		}
		snap, err := r.agent.SetSuggestionStatus(args[0], st)
		if err != nil {
			return err
		}
		display.Suggestions(r.out, snap.Suggestions)
		return nil
	}
}

func (r *REPL) cmdCleanup(_ []string) error {
	res, err := r.agent.Cleanup()
	if err != nil {
		return err
	}
	fmt.Fprintf(r.out, "Deleted %d events, purged %d expired points\n", res.Deleted, res.PointsPurged)
	return nil
}

func verbFor(st improvement.Status) string {
	switch st {
	case improvement.StatusApproved:
		return "approve"
	case improvement.StatusApplied:
		return "apply"
	default:
		return "reject"
	}
}

// limitArg reads an optional positive count at args[i]. Zero means the
// server default.
func limitArg(args []string, i int) (int, error) {
	if len(args) <= i {
		return 0, nil
	}
	n, err := strconv.Atoi(args[i])
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid count %q", args[i])
	}
	return n, nil
}

func parsePayload(pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	payload := make(map[string]any, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("expected key=value, got %q", p)
		}
		payload[k] = v
	}
	return payload, nil
}
