package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/wrenchhub/wrenchhub/internal/application/marketplace"
	"github.com/wrenchhub/wrenchhub/internal/application/notify"
	"github.com/wrenchhub/wrenchhub/internal/application/reaper"
	"github.com/wrenchhub/wrenchhub/internal/config"
	"github.com/wrenchhub/wrenchhub/internal/domain/notification"
	"github.com/wrenchhub/wrenchhub/internal/infrastructure/postgres"
)

var runsLimit int

var previewCmd = &cobra.Command{
	Use:   "preview",
	Short: "Show what a sweep would terminate",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withReaper(cmd.Context(), func(ctx context.Context, svc *reaper.Service) (any, error) {
			return svc.Preview(ctx)
		})
	},
}

var executeCmd = &cobra.Command{
	Use:   "execute",
	Short: "Run one sweep and record it",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withReaper(cmd.Context(), func(ctx context.Context, svc *reaper.Service) (any, error) {
			return svc.Execute(ctx, "cli")
		})
	},
}

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recent sweep runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withReaper(cmd.Context(), func(ctx context.Context, svc *reaper.Service) (any, error) {
			return svc.ListRuns(ctx, runsLimit)
		})
	},
}

func init() {
	runsCmd.Flags().IntVar(&runsLimit, "limit", 20, "maximum number of runs to list")
	rootCmd.AddCommand(previewCmd, executeCmd, runsCmd)
}

func logger() zerolog.Logger {
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
}

// withReaper builds a reaper over Postgres, runs fn and prints its result as JSON.
func withReaper(parent context.Context, fn func(context.Context, *reaper.Service) (any, error)) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if cfg.Storage != config.StoragePostgres {
		return fmt.Errorf("reaperctl requires STORAGE=%s", config.StoragePostgres)
	}
	log := logger()
	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		log = log.Level(level)
	}

	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL, int32(cfg.DatabaseMaxConns))
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	dispatcher := notify.NewService([]notification.Sink{notify.NewLogSink(log)}, cfg.NotifyMaxAttempts, log)
	defer dispatcher.Wait()

	result, err := fn(ctx, newReaper(pool, cfg, dispatcher, log))
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

func newReaper(pool *pgxpool.Pool, cfg *config.Config, dispatcher notification.Dispatcher, log zerolog.Logger) *reaper.Service {
	requests := postgres.NewRequestRepository(pool)
	sessions := postgres.NewSessionRepository(pool)
	rfqs := postgres.NewRFQRepository(pool)
	market := marketplace.NewService(rfqs, postgres.NewReferralRepository(pool), sessions, dispatcher, cfg.RfqMaxBidsLimit, log)
	return reaper.NewService(requests, sessions, rfqs, market, postgres.NewSweepRepository(pool), dispatcher,
		reaper.Thresholds{
			RequestTTL:    cfg.RequestTTL,
			WaitingTTL:    cfg.WaitingTTL,
			LiveTTL:       cfg.LiveTTL,
			ActivityGrace: cfg.ActivityGrace,
			ExpireRfqs:    cfg.ExpireRfqs,
			BatchSize:     cfg.ReaperBatchSize,
		}, log)
}
