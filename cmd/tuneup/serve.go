package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/steveyegge/tuneup/internal/ai"
	"github.com/steveyegge/tuneup/internal/control"
	"github.com/steveyegge/tuneup/internal/eventstore"
	"github.com/steveyegge/tuneup/internal/executor"
	"github.com/steveyegge/tuneup/internal/health"
	"github.com/steveyegge/tuneup/internal/improvement"
	"github.com/steveyegge/tuneup/internal/ingest"
	"github.com/steveyegge/tuneup/internal/logging"
	"github.com/steveyegge/tuneup/internal/patterns"
	"github.com/steveyegge/tuneup/internal/queue"
	"github.com/steveyegge/tuneup/internal/status"
	"github.com/steveyegge/tuneup/internal/storage"
	"github.com/steveyegge/tuneup/internal/storage/sqlite"
	"github.com/steveyegge/tuneup/internal/watcher"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the agent",
	Long: `Run the agent in the foreground until interrupted.

The agent opens the event database, starts the job worker and the control
socket, and optionally watches the source tree for changes and schedules
periodic improvement cycles.

Example:
  $ tuneup serve --watch --schedule 30m`,
	Run: func(cmd *cobra.Command, args []string) {
		watch, _ := cmd.Flags().GetBool("watch")
		schedule, _ := cmd.Flags().GetDuration("schedule")
		if schedule == 0 {
			schedule = cfg.Queue.CycleInterval()
		}

		if err := serve(watch, schedule); err != nil {
			fail(err)
		}
	},
}

func init() {
	serveCmd.Flags().Bool("watch", false, "Record code_change events for edits under the scan root")
	serveCmd.Flags().Duration("schedule", 0, "Enqueue an improvement cycle at this interval (default from config; 0 disables)")
	rootCmd.AddCommand(serveCmd)
}

func serve(watch bool, schedule time.Duration) error {
	logger := logging.New(cfg.Log.Level, cfg.Log.Format, os.Stderr)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	lockPath, err := storage.AcquireAgentLock(cfg.Storage.Path, version)
	if err != nil {
		return err
	}
	defer func() {
		if err := storage.ReleaseAgentLock(lockPath); err != nil {
			logger.Warn("failed to release agent lock", "error", err)
		}
	}()

	db, err := storage.NewStorage(ctx, &storage.Config{Path: cfg.Storage.Path})
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	defer func() { _ = db.Close() }()

	esCfg := eventstore.ConfigFrom(cfg.EventStore)
	esCfg.Logger = logger.With("component", "eventstore")
	store := eventstore.New(db, esCfg)

	jobs, err := queue.New(ctx, db, queue.Config{
		DefaultAttempts: cfg.Queue.DefaultAttempts,
		Backoff:         cfg.Queue.Backoff(),
		Logger:          logger.With("component", "queue"),
	})
	if err != nil {
		_ = store.Close(context.Background())
		return fmt.Errorf("failed to open job queue: %w", err)
	}

	tracker := status.NewTracker()
	hub := status.NewHub()
	defer hub.Close()

	generator := ai.NewGenerator(cfg.AI, logger.With("component", "ai"))
	analyzer := patterns.NewAnalyzer(generator, logger.With("component", "patterns"))
	scanner, err := health.NewScanner(cfg.Scanner, logger.With("component", "scanner"))
	if err != nil {
		_ = store.Close(context.Background())
		return fmt.Errorf("failed to create scanner: %w", err)
	}
	engine := improvement.NewEngine(store, analyzer, scanner, improvement.Config{
		Window:    cfg.Analyzer.Window,
		MaxIssues: cfg.Scanner.MaxIssues,
		Logger:    logger.With("component", "engine"),
	})
	ingestion := ingest.NewService(store, tracker, hub, logger.With("component", "ingest"))

	execCfg := executor.DefaultConfig()
	execCfg.Queue = jobs
	execCfg.Engine = engine
	execCfg.Tracker = tracker
	execCfg.Broadcaster = hub
	execCfg.Cleaner = store
	execCfg.Maintenance = db
	execCfg.Logger = logger.With("component", "executor")
	execCfg.Version = version
	execCfg.PollInterval = cfg.Queue.PollInterval()
	execCfg.CleanupEnabled = cfg.EventStore.CleanupEnabled
	execCfg.CleanupInterval = cfg.EventStore.CleanupInterval()
	exec, err := executor.New(execCfg)
	if err != nil {
		_ = store.Close(context.Background())
		return fmt.Errorf("failed to create executor: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Control.SocketPath), 0755); err != nil {
		_ = store.Close(context.Background())
		return fmt.Errorf("failed to create socket directory: %w", err)
	}
	server, err := control.NewServer(cfg.Control.SocketPath, &control.Agent{
		Ingest: ingestion,
		Events: store,
		Jobs:   jobs,
		Worker: exec,
	}, hub, logger.With("component", "control"))
	if err != nil {
		_ = store.Close(context.Background())
		return err
	}

	if err := exec.Start(ctx); err != nil {
		_ = store.Close(context.Background())
		return err
	}
	if err := server.Start(ctx); err != nil {
		shutdown(logger, jobs, exec, store, nil)
		return err
	}

	var w *watcher.Watcher
	if watch {
		w, err = watcher.New(cfg.Scanner.Root, ingestion,
			watcher.WithSkipDirs(cfg.Scanner.ExtraSkipDirs...),
			watcher.WithLogger(logger.With("component", "watcher")))
		if err == nil {
			err = w.Start(ctx)
		}
		if err != nil {
			_ = server.Stop()
			shutdown(logger, jobs, exec, store, nil)
			return fmt.Errorf("failed to watch %s: %w", cfg.Scanner.Root, err)
		}
	}

	green := color.New(color.FgGreen).SprintFunc()
	fmt.Printf("%s tuneup agent running (socket %s, database %s)\n", green("✓"), cfg.Control.SocketPath, cfg.Storage.Path)
	if cfg.Storage.Path == sqlite.MemoryPath {
		fmt.Println("  events are kept in memory and lost on exit")
	}
	fmt.Println("Press Ctrl+C to stop.")

	g, gctx := errgroup.WithContext(ctx)
	if schedule > 0 {
		g.Go(func() error {
			return scheduleCycles(gctx, jobs, schedule, logger)
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		return nil
	})
	err = g.Wait()

	fmt.Println("\nShutting down agent...")
	if w != nil {
		w.Stop()
	}
	if stopErr := server.Stop(); stopErr != nil {
		logger.Warn("control server stop failed", "error", stopErr)
	}
	shutdown(logger, jobs, exec, store, err)
	fmt.Println("Agent stopped.")
	return err
}

// shutdown stops accepting jobs, lets the worker finish the current one, and
// flushes buffered events. Storage is closed by the caller.
func shutdown(logger *slog.Logger, jobs *queue.Queue, exec *executor.Executor, store *eventstore.Store, cause error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if cause != nil {
		logger.Error("agent stopping after error", "error", cause)
	}
	if err := jobs.Close(ctx); err != nil {
		logger.Warn("job queue did not drain", "error", err)
	}
	if exec.IsRunning() {
		if err := exec.Stop(ctx); err != nil {
			logger.Warn("executor stop failed", "error", err)
		}
	}
	if err := store.Close(ctx); err != nil {
		logger.Warn("final event flush failed", "error", err)
	}
}

// scheduleCycles enqueues an improvement cycle every interval until ctx ends
func scheduleCycles(ctx context.Context, jobs *queue.Queue, interval time.Duration, logger *slog.Logger) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	logger.Info("improvement cycles scheduled", "interval", interval)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			job, err := jobs.Enqueue(ctx, queue.JobImprovementCycle, nil, queue.Options{})
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				logger.Warn("failed to schedule improvement cycle", "error", err)
				continue
			}
			logger.Debug("scheduled improvement cycle", "job_id", job.ID)
		}
	}
}
