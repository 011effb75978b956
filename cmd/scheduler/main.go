package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/hotdog-curator/internal/api"
	"github.com/hotdog-curator/internal/app"
	"github.com/hotdog-curator/internal/config"
	"github.com/hotdog-curator/internal/tracker"
	"github.com/hotdog-curator/pkg/logger"
)

var (
	cfgFile string
	cfg     *config.Config
	log     *logger.Logger
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "hotdog-scheduler",
		Short: "Background scheduler for the hotdog curator",
		Long: `Runs the daily scan and review export on a schedule and serves the
admin API. This daemon should be run as a service for autonomous operation.`,
		RunE:         runScheduler,
		SilenceUsage: true,
	}

	rootCmd.Flags().StringVar(&cfgFile, "config", "", "config file path")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runScheduler(cmd *cobra.Command, args []string) error {
	var err error

	// Load config
	cfg, err = config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Initialize logger
	log = logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})

	log.Info().Msg("Starting hotdog curator scheduler")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	curator, err := app.New(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer curator.Close()

	// Admin API with health, queue views and metrics
	var server *api.Server
	if cfg.Server.Enabled {
		router := api.NewRouter(curator.Scanner, curator.Queue, curator.Metrics.Handler(), log)
		server = api.NewServer(cfg.Server.Addr, router, log)
		go func() {
			if err := server.Start(); err != nil {
				log.Error().Err(err).Msg("HTTP server failed")
			}
		}()
	}

	c := cron.New(cron.WithLogger(cronLogger{log}), cron.WithChain(cron.SkipIfStillRunning(cronLogger{log})))

	// Schedule daily scan
	_, err = c.AddFunc(cfg.Scheduler.DailyScanCron, func() { runDailyScan(ctx, curator) })
	if err != nil {
		return fmt.Errorf("failed to schedule daily scan: %w", err)
	}
	log.Info().Str("cron", cfg.Scheduler.DailyScanCron).Msg("Daily scan scheduled")

	// Schedule review export
	if cfg.Tracker.Enabled && cfg.Scheduler.ReviewCron != "" {
		_, err = c.AddFunc(cfg.Scheduler.ReviewCron, func() { runReviewSync(ctx, curator) })
		if err != nil {
			return fmt.Errorf("failed to schedule review sync: %w", err)
		}
		log.Info().Str("cron", cfg.Scheduler.ReviewCron).Msg("Review sync scheduled")
	}

	if cfg.Scheduler.RunOnStart {
		go runDailyScan(ctx, curator)
	}

	c.Start()
	log.Info().Msg("Scheduler started")

	<-ctx.Done()

	log.Info().Msg("Shutting down scheduler")
	<-c.Stop().Done()

	if server != nil {
		if err := server.Shutdown(context.Background()); err != nil {
			log.Error().Err(err).Msg("HTTP server shutdown failed")
		}
	}

	return nil
}

func runDailyScan(ctx context.Context, curator *app.App) {
	log.Info().Msg("Running scheduled daily scan")

	summary, err := curator.Scanner.RunDailyScan(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Scheduled daily scan failed")
		return
	}

	log.Info().
		Str("run_id", summary.RunID).
		Int("total_scans", summary.TotalScans).
		Int("approved", summary.TotalApproved).
		Int("api_calls_saved", summary.APICallsSaved).
		Msg("Scheduled daily scan completed")
}

func runReviewSync(ctx context.Context, curator *app.App) {
	sheet, err := curator.Tracker(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Review tracker unavailable")
		return
	}

	items, err := tracker.CollectFlagged(ctx, curator.Repo, 200)
	if err != nil {
		log.Error().Err(err).Msg("Failed to collect flagged entries")
		return
	}

	added, updated, err := sheet.SyncFlagged(ctx, items)
	if err != nil {
		log.Error().Err(err).Msg("Scheduled review sync failed")
		return
	}

	log.Info().Int("added", added).Int("updated", updated).Msg("Scheduled review sync completed")
}

// cronLogger adapts our logger for cron
type cronLogger struct {
	log *logger.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
