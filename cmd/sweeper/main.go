// Package main is the cron-driven sweep binary: one shot per invocation,
// exit code reports outcome.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	_ "github.com/jackc/pgx/v5/stdlib"

	"comms-platform/internal/actions"
	"comms-platform/internal/batch"
	"comms-platform/internal/comms"
	"comms-platform/internal/config"
	"comms-platform/internal/decision"
	"comms-platform/internal/pipeline"
	"comms-platform/internal/projects"
	"comms-platform/pkg/logger"
	"comms-platform/pkg/utils"
)

var rootCmd = &cobra.Command{
	Use:   "sweeper",
	Short: "Runs the due-batch and reminder sweeps",
	Run: func(cmd *cobra.Command, args []string) {
		_ = cmd.Help()
	},
}

var batchesCmd = &cobra.Command{
	Use:   "batches",
	Short: "Process batches whose debounce window has closed",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDeps(cmd.Context(), func(ctx context.Context, d deps) error {
			n, err := d.batchSweeper.SweepOnce(ctx)
			if err != nil {
				return err
			}
			logger.From(ctx).Info("batch sweep finished", "processed", n)
			return nil
		})
	},
}

var remindersCmd = &cobra.Command{
	Use:   "reminders",
	Short: "Run scheduled project checks whose date has arrived",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDeps(cmd.Context(), func(ctx context.Context, d deps) error {
			n, err := d.reminderSweeper.SweepOnce(ctx)
			if err != nil {
				return err
			}
			logger.From(ctx).Info("reminder sweep finished", "checked", n)
			return nil
		})
	},
}

type deps struct {
	batchSweeper    *batch.Sweeper
	reminderSweeper *pipeline.ReminderSweeper
}

// withDeps builds the pipeline stack shared by both sweeps, runs fn, and
// tears everything down.
func withDeps(ctx context.Context, fn func(context.Context, deps) error) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config load: %w", err)
	}

	log := logger.New(cfg.App.Env)
	ctx = logger.With(ctx, log)

	db, err := utils.OpenPostgres(ctx, "pgx", cfg.PostgresDSN(), utils.PostgresPoolConfig{})
	if err != nil {
		return fmt.Errorf("postgres init: %w", err)
	}
	defer db.Close()

	rdb, err := utils.OpenRedis(ctx, utils.RedisConfig{Addr: cfg.RedisAddr()})
	if err != nil {
		return fmt.Errorf("redis init: %w", err)
	}
	defer rdb.Close()

	commStore := comms.NewStore(db)
	projectStore := projects.NewStore(db)
	batchStore := batch.NewStore(db)
	runStore := decision.NewRunStore(db)

	model := decision.ModelConfig{Provider: cfg.Engine.Provider, Model: cfg.Engine.Model}
	engine := decision.NewOpenAIEngine(cfg.Engine.APIKey, cfg.Engine.APIBase, model, cfg.Engine.CallTimeout)
	runner := decision.NewRunner(engine, runStore, model, rdb, cfg.Engine.MaxConcurrentPerCompany)

	actionSvc := actions.NewService(db, projectStore, nil, nil)
	updater := pipeline.NewUpdater(runner, projectStore, actionSvc)

	return fn(ctx, deps{
		batchSweeper:    batch.NewSweeper(batchStore, commStore, updater, cfg.Batch.SweepClaimLimit),
		reminderSweeper: pipeline.NewReminderSweeper(projectStore, updater, cfg.Batch.SweepClaimLimit),
	})
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rootCmd.AddCommand(batchesCmd)
	rootCmd.AddCommand(remindersCmd)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
