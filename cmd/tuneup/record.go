package main

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/steveyegge/tuneup/internal/control"
	"github.com/steveyegge/tuneup/internal/display"
	"github.com/steveyegge/tuneup/internal/events"
	"github.com/steveyegge/tuneup/internal/queue"
)

var recordCmd = &cobra.Command{
	Use:   "record <type> [key=value ...]",
	Short: "Record a usage event",
	Long: `Record one event with the running agent.

Types: user_action, code_change, error, performance, ui_interaction.
The keys user, session, action, component, route, file, error, and
duration (milliseconds) fill the standard fields. Any other key is kept as
extra metadata.

Example:
  $ tuneup record error session=s1 component=Checkout error="card declined"`,
	Args:      cobra.MinimumNArgs(1),
	ValidArgs: eventTypeNames(),
	Run: func(cmd *cobra.Command, args []string) {
		req, err := events.ParseFields(events.EventType(args[0]), args[1:])
		if err != nil {
			fail(err)
		}
		ev, err := newClient().Record(req)
		if err != nil {
			fail(err)
		}
		green := color.New(color.FgGreen).SprintFunc()
		fmt.Printf("%s Recorded %s %s\n", green("✓"), ev.Type, ev.ID)
	},
}

var enqueueCmd = &cobra.Command{
	Use:   "enqueue <job-type> [key=value ...]",
	Short: "Queue a background job",
	Long: `Queue one job for the agent's worker.

Job types: improvement_cycle, code_scan, pattern_analysis, apply_suggestion.

Example:
  $ tuneup enqueue improvement_cycle
  $ tuneup enqueue apply_suggestion suggestion_id=imp-42 --priority 1`,
	Args: cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		priority, _ := cmd.Flags().GetInt("priority")
		delay, _ := cmd.Flags().GetDuration("delay")
		attempts, _ := cmd.Flags().GetInt("attempts")

		var payload map[string]any
		for _, pair := range args[1:] {
			k, v, ok := strings.Cut(pair, "=")
			if !ok || k == "" {
				fail(fmt.Errorf("expected key=value, got %q", pair))
			}
			if payload == nil {
				payload = make(map[string]any)
			}
			payload[k] = v
		}

		job, err := newClient().Enqueue(control.EnqueueArgs{
			Type:         queue.JobType(args[0]),
			Payload:      payload,
			Priority:     priority,
			DelaySeconds: int(delay.Seconds()),
			Attempts:     attempts,
		})
		if err != nil {
			fail(err)
		}
		display.Job(cmd.OutOrStdout(), job)
	},
}

func init() {
	enqueueCmd.Flags().Int("priority", 0, "Lower values run first")
	enqueueCmd.Flags().Duration("delay", 0, "Wait this long before the job becomes eligible")
	enqueueCmd.Flags().Int("attempts", 0, "Total runs allowed before the job fails (default from config)")
	rootCmd.AddCommand(recordCmd)
	rootCmd.AddCommand(enqueueCmd)
}

func eventTypeNames() []string {
	names := make([]string, 0, len(events.AllEventTypes))
	for _, t := range events.AllEventTypes {
		names = append(names, string(t))
	}
	return names
}
