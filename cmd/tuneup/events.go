package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/steveyegge/tuneup/internal/display"
	"github.com/steveyegge/tuneup/internal/events"
	"github.com/steveyegge/tuneup/internal/status"
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Query recorded events",
	Long: `Query the agent's event store.

Events recorded in the last few seconds may not appear until the agent's
next batch write.`,
}

var eventsRecentCmd = &cobra.Command{
	Use:   "recent",
	Short: "Show the most recent events, newest first",
	Run: func(cmd *cobra.Command, args []string) {
		limit, _ := cmd.Flags().GetInt("limit")
		list, err := newClient().RecentEvents(limit)
		if err != nil {
			fail(err)
		}
		display.Events(cmd.OutOrStdout(), list)
	},
}

var eventsTypeCmd = &cobra.Command{
	Use:       "type <event-type>",
	Short:     "Show recent events of one type",
	Args:      cobra.ExactArgs(1),
	ValidArgs: eventTypeNames(),
	Run: func(cmd *cobra.Command, args []string) {
		limit, _ := cmd.Flags().GetInt("limit")
		list, err := newClient().EventsByType(events.EventType(args[0]), limit)
		if err != nil {
			fail(err)
		}
		display.Events(cmd.OutOrStdout(), list)
	},
}

var eventsTodayCmd = &cobra.Command{
	Use:   "today",
	Short: "Show events recorded during the current UTC day",
	Run: func(cmd *cobra.Command, args []string) {
		list, err := newClient().TodayEvents()
		if err != nil {
			fail(err)
		}
		display.Events(cmd.OutOrStdout(), list)
	},
}

var eventsGetCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Show one event",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ev, err := newClient().GetEvent(args[0])
		if err != nil {
			fail(err)
		}
		display.Event(cmd.OutOrStdout(), ev)
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Stream live status notifications",
	Long: `Follow the agent's broadcast notifications (status changes, task
progress, suggestion updates, cycle completions) until interrupted.`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		cyan := color.New(color.FgCyan).SprintFunc()
		cmd.Printf("%s watching %s (Ctrl+C to stop)\n", cyan("→"), cfg.Control.SocketPath)

		out := cmd.OutOrStdout()
		err := newClient().Watch(ctx, func(n status.Notification) error {
			display.Notification(out, n)
			return nil
		})
		if err != nil && ctx.Err() == nil {
			fail(err)
		}
	},
}

func init() {
	eventsRecentCmd.Flags().IntP("limit", "n", 0, "Maximum events to show (default 50)")
	eventsTypeCmd.Flags().IntP("limit", "n", 0, "Maximum events to show (default 50)")
	eventsCmd.AddCommand(eventsRecentCmd, eventsTypeCmd, eventsTodayCmd, eventsGetCmd)
	rootCmd.AddCommand(eventsCmd)
	rootCmd.AddCommand(watchCmd)
}
