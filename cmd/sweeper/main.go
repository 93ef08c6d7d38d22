package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/halftone-io/halftone/internal/config"
	"github.com/halftone-io/halftone/internal/logger"
	"github.com/halftone-io/halftone/internal/quota"
	"github.com/halftone-io/halftone/internal/store/postgres"
	"github.com/halftone-io/halftone/internal/worker"
)

var (
	cfg     *config.Config
	pool    *pgxpool.Pool
	sweeper *worker.Sweeper
)

var rootCmd = &cobra.Command{
	Use:   "sweeper",
	Short: "Background maintenance for processing tasks and quotas",
	Long: `sweeper fails tasks stuck in pending or processing and resets daily quotas.

Run it as a long-lived daemon:
  sweeper run

Or as one-shot jobs from a scheduler:
  sweeper sweep
  sweeper reset-quotas`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "help" {
			return nil
		}

		var err error
		cfg, err = config.Load()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		logger.Init(cfg.LogLevel)
		log := logger.Default()

		pool, err = pgxpool.New(cmd.Context(), cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		if err := pool.Ping(cmd.Context()); err != nil {
			return fmt.Errorf("failed to ping database: %w", err)
		}
		log.Info("database connected")

		stores := postgres.NewStores(pool)
		ledger := quota.NewLedger(stores.Quotas, stores.Subscriptions)
		sweeper = worker.NewSweeper(stores.Tasks, ledger, cfg.StuckPendingAfter, cfg.StuckProcessing)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if pool != nil {
			pool.Close()
		}
	},
	SilenceUsage:  true,
	SilenceErrors: true,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the sweeper as a daemon",
	RunE: func(cmd *cobra.Command, args []string) error {
		log := logger.Default()
		ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		log.Info("sweeper starting",
			"sweep_interval", cfg.SweepInterval.String(),
			"stuck_pending_after", cfg.StuckPendingAfter.String(),
			"stuck_processing_after", cfg.StuckProcessing.String(),
		)
		if err := sweeper.Run(logger.WithLogger(ctx, log), cfg.SweepInterval); err != nil && err != context.Canceled {
			return err
		}
		log.Info("sweeper stopped")
		return nil
	},
}

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Fail stuck tasks once and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		log := logger.Default()
		start := time.Now()

		ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Minute)
		defer cancel()

		swept, err := sweeper.SweepStuckTasks(logger.WithLogger(ctx, log))
		if err != nil {
			return fmt.Errorf("sweep failed: %w", err)
		}
		log.Info("sweep completed", "swept", swept, "duration_ms", time.Since(start).Milliseconds())
		return nil
	},
}

var resetQuotasCmd = &cobra.Command{
	Use:   "reset-quotas",
	Short: "Reset stale daily quota counters once and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		log := logger.Default()
		start := time.Now()

		ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Minute)
		defer cancel()

		reset, err := sweeper.ResetQuotas(logger.WithLogger(ctx, log))
		if err != nil {
			return fmt.Errorf("quota reset failed: %w", err)
		}
		log.Info("quota reset completed", "reset", reset, "duration_ms", time.Since(start).Milliseconds())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(sweepCmd)
	rootCmd.AddCommand(resetQuotasCmd)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		slog.Error("sweeper failed", "error", err)
		os.Exit(1)
	}
}
