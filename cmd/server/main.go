package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	httpapi "github.com/wrenchhub/wrenchhub/internal/api/http"
	"github.com/wrenchhub/wrenchhub/internal/application/ledger"
	"github.com/wrenchhub/wrenchhub/internal/application/lifecycle"
	"github.com/wrenchhub/wrenchhub/internal/application/marketplace"
	"github.com/wrenchhub/wrenchhub/internal/application/notify"
	"github.com/wrenchhub/wrenchhub/internal/application/reaper"
	"github.com/wrenchhub/wrenchhub/internal/config"
	"github.com/wrenchhub/wrenchhub/internal/domain/notification"
	"github.com/wrenchhub/wrenchhub/internal/infrastructure/amqpbus"
	"github.com/wrenchhub/wrenchhub/internal/infrastructure/redisbus"
	"github.com/wrenchhub/wrenchhub/internal/infrastructure/sse"
)

const reconcileBatch = 100

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("config error")
	}
	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		logger = logger.Level(level)
	}
	if err := cfg.ValidateServer(); err != nil {
		logger.Fatal().Err(err).Msg("config error")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	repos, closeRepos, err := openRepositories(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("storage error")
	}
	defer closeRepos()

	// notification sinks
	sseHub := sse.NewHub()
	sinks := []notification.Sink{notify.NewLogSink(logger), sseHub}
	if cfg.RedisAddr != "" {
		rdb, err := redisbus.Connect(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			logger.Fatal().Err(err).Msg("redis error")
		}
		defer rdb.Close()
		sinks = append(sinks, redisbus.NewSink(rdb, redisbus.DefaultPrefix))
	}
	if cfg.AMQPURL != "" {
		amqpSink, err := amqpbus.Dial(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			logger.Fatal().Err(err).Msg("amqp error")
		}
		defer amqpSink.Close()
		sinks = append(sinks, amqpSink)
	}
	dispatcher := notify.NewService(sinks, cfg.NotifyMaxAttempts, logger)

	// services
	ledgerSvc := ledger.NewService(repos.extensions, logger)
	lifecycleSvc := lifecycle.NewService(repos.requests, repos.sessions, ledgerSvc, dispatcher, logger).
		WithRequestTTL(cfg.RequestTTL)
	marketplaceSvc := marketplace.NewService(repos.rfqs, repos.referrals, repos.sessions, dispatcher, cfg.RfqMaxBidsLimit, logger)
	reaperSvc := reaper.NewService(repos.requests, repos.sessions, repos.rfqs, marketplaceSvc, repos.sweepRuns, dispatcher,
		reaper.Thresholds{
			RequestTTL:    cfg.RequestTTL,
			WaitingTTL:    cfg.WaitingTTL,
			LiveTTL:       cfg.LiveTTL,
			ActivityGrace: cfg.ActivityGrace,
			ExpireRfqs:    cfg.ExpireRfqs,
			BatchSize:     cfg.ReaperBatchSize,
		}, logger)

	// API server
	apiServer := httpapi.NewServer(lifecycleSvc, marketplaceSvc, reaperSvc, sseHub, httpapi.Security{
		JWTSecret:            cfg.JWTSecret,
		CronSecretHash:       cfg.CronSecretHash,
		PaymentWebhookSecret: cfg.PaymentWebhookSecret,
		AllowedOrigins:       cfg.CORSAllowedOrigins,
	}, logger)

	// No WriteTimeout: event streams stay open. Request handlers carry their own
	// timeout middleware.
	httpServer := &http.Server{
		Addr:        cfg.ServerAddr,
		Handler:     apiServer.Router(),
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	// background loops
	if cfg.ReaperInterval > 0 {
		go reaperSvc.Run(ctx, cfg.ReaperInterval)
	}
	if cfg.PreviewInterval > 0 {
		go reaperSvc.RunPreview(ctx, cfg.PreviewInterval)
	}
	if cfg.ReconcileInterval > 0 {
		go func() {
			ticker := time.NewTicker(cfg.ReconcileInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					if _, err := marketplaceSvc.ReconcileReferrals(ctx, reconcileBatch); err != nil {
						logger.Warn().Err(err).Msg("referral reconciliation failed")
					}
				}
			}
		}()
	}

	// start server
	go func() {
		logger.Info().Str("addr", cfg.ServerAddr).Str("storage", cfg.Storage).Msg("http server started")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	// graceful shutdown
	<-ctx.Done()
	logger.Info().Msg("shutting down")
	ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	sseHub.Stop()
	_ = httpServer.Shutdown(ctxShutdown)
	dispatcher.Wait()
}
