package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/steveyegge/tuneup/internal/display"
	"github.com/steveyegge/tuneup/internal/improvement"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show agent status and suggestions",
	Long:  `Display the agent's activity, current task, worker instance, queue counters, and the latest suggestions.`,
	Run: func(cmd *cobra.Command, args []string) {
		info, err := newClient().Status()
		if err != nil {
			fail(err)
		}
		display.Status(cmd.OutOrStdout(), info)
	},
}

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Show job queue counters",
	Run: func(cmd *cobra.Command, args []string) {
		counts, err := newClient().QueueStatus()
		if err != nil {
			fail(err)
		}
		display.Counts(cmd.OutOrStdout(), counts)
	},
}

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Run event retention cleanup now",
	Long: `Delete events older than the retention period and purge expired
point lookups. The agent also does this on its own schedule.`,
	Run: func(cmd *cobra.Command, args []string) {
		res, err := newClient().Cleanup()
		if err != nil {
			fail(err)
		}
		green := color.New(color.FgGreen).SprintFunc()
		fmt.Printf("%s Deleted %d events, purged %d expired points\n", green("✓"), res.Deleted, res.PointsPurged)
	},
}

var suggestionCmd = &cobra.Command{
	Use:   "suggestion",
	Short: "Manage improvement suggestions",
}

var suggestionSetStatusCmd = &cobra.Command{
	Use:   "set-status <id> <approved|applied|rejected>",
	Short: "Change a suggestion's status",
	Long: `Change the status of one suggestion in the agent's current list.

Example:
  $ tuneup suggestion set-status 3f1c... approved`,
	Args: cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		st := improvement.Status(args[1])
		if !st.IsValid() {
			fmt.Fprintf(os.Stderr, "Error: invalid status %q\n", args[1])
			os.Exit(1)
		}
		snap, err := newClient().SetSuggestionStatus(args[0], st)
		if err != nil {
			fail(err)
		}
		display.Suggestions(cmd.OutOrStdout(), snap.Suggestions)
	},
}

func init() {
	suggestionCmd.AddCommand(suggestionSetStatusCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(queueCmd)
	rootCmd.AddCommand(cleanupCmd)
	rootCmd.AddCommand(suggestionCmd)
}
