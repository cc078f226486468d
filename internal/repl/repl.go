// Package repl is the interactive console for a running agent.
package repl

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/chzyer/readline"
	"github.com/fatih/color"

	"github.com/steveyegge/tuneup/internal/control"
	"github.com/steveyegge/tuneup/internal/events"
	"github.com/steveyegge/tuneup/internal/eventstore"
	"github.com/steveyegge/tuneup/internal/executor"
	"github.com/steveyegge/tuneup/internal/improvement"
	"github.com/steveyegge/tuneup/internal/queue"
	"github.com/steveyegge/tuneup/internal/status"
)

// Agent is the control surface the console drives
type Agent interface {
	Record(req events.Request) (*events.Event, error)
	Status() (*executor.Info, error)
	Enqueue(args control.EnqueueArgs) (*queue.Job, error)
	QueueStatus() (queue.Counts, error)
	RecentEvents(limit int) ([]*events.Event, error)
	EventsByType(eventType events.EventType, limit int) ([]*events.Event, error)
	TodayEvents() ([]*events.Event, error)
	GetEvent(id string) (*events.Event, error)
	SetSuggestionStatus(id string, st improvement.Status) (*status.Snapshot, error)
	Cleanup() (eventstore.CleanupResult, error)
}

// errExit ends the loop
var errExit = errors.New("exit")

// REPL represents the interactive shell
type REPL struct {
	agent       Agent
	out         io.Writer
	historyFile string
	rl          *readline.Instance
	ctx         context.Context
	commands    map[string]CommandHandler
}

// CommandHandler handles a specific command
type CommandHandler func(args []string) error

// Config holds REPL configuration
type Config struct {
	Agent Agent
	// Out receives command output (default: stdout)
	Out io.Writer
	// HistoryFile persists input history when set
	HistoryFile string
}

// New creates a new REPL instance
func New(cfg *Config) (*REPL, error) {
	if cfg.Agent == nil {
		return nil, fmt.Errorf("agent is required")
	}
	out := cfg.Out
	if out == nil {
		out = os.Stdout
	}

	r := &REPL{
		agent:       cfg.Agent,
		out:         out,
		historyFile: cfg.HistoryFile,
		ctx:         context.Background(),
		commands:    make(map[string]CommandHandler),
	}
	r.registerCommands()
	return r, nil
}

// Run starts the REPL loop
func (r *REPL) Run(ctx context.Context) error {
	r.ctx = ctx

	cyan := color.New(color.FgCyan).SprintFunc()
	rl, err := readline.NewEx(&readline.Config{
		Prompt:            cyan("tuneup> "),
		HistoryFile:       r.historyFile,
		AutoComplete:      r.completer(),
		InterruptPrompt:   "^C",
		EOFPrompt:         "exit",
		HistorySearchFold: true,
	})
	if err != nil {
		return fmt.Errorf("failed to create readline: %w", err)
	}
	defer func() { _ = rl.Close() }()
	r.rl = rl

	r.printWelcome()

	for {
		if ctx.Err() != nil {
			return nil
		}
		line, err := rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) {
				// Ctrl+C - just show prompt again
				continue
			} else if errors.Is(err, io.EOF) {
				fmt.Fprintln(r.out, "\nGoodbye!")
				return nil
			}
			return err
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if err := r.processInput(line); err != nil {
			if errors.Is(err, errExit) {
				return nil
			}
			red := color.New(color.FgRed).SprintFunc()
			fmt.Fprintf(r.out, "%s %v\n", red("Error:"), err)
		}
	}
}

// processInput processes a single line of input
func (r *REPL) processInput(line string) error {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return nil
	}

	command := strings.ToLower(parts[0])
	if handler, ok := r.commands[command]; ok {
		return handler(parts[1:])
	}

	yellow := color.New(color.FgYellow).SprintFunc()
	fmt.Fprintf(r.out, "%s unknown command %q. Use 'help' for available commands.\n", yellow("Note:"), command)
	return nil
}

func (r *REPL) completer() *readline.PrefixCompleter {
	typeItems := make([]readline.PrefixCompleterInterface, 0, len(events.AllEventTypes))
	for _, t := range events.AllEventTypes {
		typeItems = append(typeItems, readline.PcItem(string(t)))
	}
	jobItems := make([]readline.PrefixCompleterInterface, 0, len(queue.AllJobTypes))
	for _, t := range queue.AllJobTypes {
		jobItems = append(jobItems, readline.PcItem(string(t)))
	}
	return readline.NewPrefixCompleter(
		readline.PcItem("help"),
		readline.PcItem("status"),
		readline.PcItem("queue"),
		readline.PcItem("record", typeItems...),
		readline.PcItem("events", typeItems...),
		readline.PcItem("enqueue", jobItems...),
		readline.PcItem("recent"),
		readline.PcItem("today"),
		readline.PcItem("get"),
		readline.PcItem("approve"),
		readline.PcItem("apply"),
		readline.PcItem("reject"),
		readline.PcItem("cleanup"),
		readline.PcItem("exit"),
	)
}

func (r *REPL) printWelcome() {
	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	fmt.Fprintf(r.out, "\n%s\n", cyan("tuneup console"))
	fmt.Fprintln(r.out, "Type 'help' for available commands, 'exit' to quit")
	fmt.Fprintln(r.out)
}
