package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/steveyegge/tuneup/internal/config"
	"github.com/steveyegge/tuneup/internal/control"
)

// version is stamped at build time
var version = "0.1.0"

var (
	configPath string
	socketPath string
	logLevel   string
	timeout    time.Duration

	// cfg is loaded once for every command
	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "tuneup",
	Short: "tuneup - usage-driven improvement agent",
	Long: `tuneup records application usage events, finds patterns in them,
scans the codebase for common problems, and turns both into prioritized
improvement suggestions.

Run 'tuneup serve' to start the agent. Every other command talks to a
running agent over its control socket.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if socketPath != "" {
			loaded.Control.SocketPath = socketPath
		}
		if logLevel != "" {
			loaded.Log.Level = logLevel
		}
		cfg = loaded
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", ".tuneup/config.yaml", "Path to the YAML configuration file")
	rootCmd.PersistentFlags().StringVar(&socketPath, "socket", "", "Control socket path (overrides config)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 10*time.Second, "Timeout for control requests")
}

// newClient connects commands to the running agent
func newClient() *control.Client {
	c := control.NewClient(cfg.Control.SocketPath)
	c.SetTimeout(timeout)
	return c
}

// fail prints err and exits
func fail(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
