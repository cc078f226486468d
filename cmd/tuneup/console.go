package main

import (
	"context"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/steveyegge/tuneup/internal/repl"
)

var consoleCmd = &cobra.Command{
	Use:   "console",
	Short: "Start an interactive console",
	Long: `Start an interactive console connected to the running agent.

The console records events, queues jobs, queries the event store, and
approves or rejects suggestions without retyping the binary name.

Type 'help' in the console for available commands.`,
	Run: func(cmd *cobra.Command, args []string) {
		r, err := repl.New(&repl.Config{
			Agent:       newClient(),
			Out:         cmd.OutOrStdout(),
			HistoryFile: filepath.Join(filepath.Dir(cfg.Control.SocketPath), "console_history"),
		})
		if err != nil {
			fail(err)
		}
		if err := r.Run(context.Background()); err != nil {
			fail(err)
		}
	},
}

func init() {
	rootCmd.AddCommand(consoleCmd)
}
