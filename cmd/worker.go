package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/frahmantamala/razorpay-reconciliation/internal/syncer"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Start background workers",
	Long:  `Start background workers that run outside the HTTP server.`,
}

var syncWorkerCmd = &cobra.Command{
	Use:   "sync",
	Short: "Start the stale order sync sweeper",
	Long:  `Periodically re-fetch unpaid orders from Razorpay and apply whatever the provider reports.`,
	Run: func(cmd *cobra.Command, args []string) {
		startSyncWorker()
	},
}

var (
	maxWorkers   int
	jobQueueSize int
	runOnce      bool
)

func startSyncWorker() {
	config, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	config.Sync.MaxWorkers = getIntFlag(maxWorkers, config.Sync.MaxWorkers)
	config.Sync.QueueSize = getIntFlag(jobQueueSize, config.Sync.QueueSize)

	deps, err := initializeDependencies(config)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize dependencies: %v\n", err)
		os.Exit(1)
	}
	defer deps.Close()

	logger := deps.Logger
	sweeper := deps.Sweeper()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if runOnce {
		queued, err := sweeper.SweepOnce(ctx)
		if err != nil {
			logger.Error("sync sweep failed", "error", err)
		}
		waitForDrain(ctx, sweeper)
		sweeper.Shutdown()
		drainEvents(deps, logger)
		logger.Info("sync sweep finished", "queued", queued)
		return
	}

	logger.Info("starting sync worker",
		"interval", config.Sync.Interval,
		"stale_after", config.Sync.StaleAfter,
		"max_workers", config.Sync.MaxWorkers,
		"queue_size", config.Sync.QueueSize)

	if err := sweeper.Run(ctx); err != nil {
		logger.Error("sync worker stopped", "error", err)
	}
	drainEvents(deps, logger)
	logger.Info("sync worker shutdown complete")
}

// drainEvents lets platform notifications raised by the last syncs finish.
func drainEvents(deps *Dependencies, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := deps.EventBus.Drain(ctx); err != nil {
		logger.Warn("platform notifications still running at exit", "error", err)
	}
}

// waitForDrain blocks until every queued sync finished or ctx is cancelled.
func waitForDrain(ctx context.Context, sweeper *syncer.Sweeper) {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for sweeper.Pending() > 0 {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func getIntFlag(flagValue, configValue int) int {
	if flagValue > 0 {
		return flagValue
	}
	return configValue
}

func init() {
	syncWorkerCmd.Flags().IntVar(&maxWorkers, "max-workers", 0, "Maximum number of workers (overrides config)")
	syncWorkerCmd.Flags().IntVar(&jobQueueSize, "job-queue-size", 0, "Job queue buffer size (overrides config)")
	syncWorkerCmd.Flags().BoolVar(&runOnce, "once", false, "Run a single sweep and exit")

	workerCmd.AddCommand(syncWorkerCmd)

	rootCmd.AddCommand(workerCmd)
}
