package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/wrenchhub/wrenchhub/internal/config"
	"github.com/wrenchhub/wrenchhub/internal/domain/extension"
	"github.com/wrenchhub/wrenchhub/internal/domain/rfq"
	"github.com/wrenchhub/wrenchhub/internal/domain/session"
	"github.com/wrenchhub/wrenchhub/internal/domain/sweep"
	"github.com/wrenchhub/wrenchhub/internal/infrastructure/memory"
	"github.com/wrenchhub/wrenchhub/internal/infrastructure/postgres"
	"github.com/wrenchhub/wrenchhub/internal/migrations"
)

type repositories struct {
	requests   session.RequestRepository
	sessions   session.Repository
	extensions extension.Repository
	rfqs       rfq.Repository
	referrals  rfq.ReferralRepository
	sweepRuns  sweep.Repository
}

// openRepositories selects the storage backend. The memory store is for local
// development; it loses everything on restart.
func openRepositories(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*repositories, func(), error) {
	if cfg.Storage == config.StorageMemory {
		logger.Warn().Msg("using in-memory storage")
		store := memory.NewStore()
		return &repositories{
			requests:   store.Requests(),
			sessions:   store.Sessions(),
			extensions: store.Extensions(),
			rfqs:       store.RFQs(),
			referrals:  store.Referrals(),
			sweepRuns:  store.SweepRuns(),
		}, func() {}, nil
	}

	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL, int32(cfg.DatabaseMaxConns))
	if err != nil {
		return nil, nil, fmt.Errorf("db error: %w", err)
	}
	if cfg.RunMigrations {
		if err := postgres.RunMigrations(ctx, pool, migrations.FS); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("migration error: %w", err)
		}
	}
	return &repositories{
		requests:   postgres.NewRequestRepository(pool),
		sessions:   postgres.NewSessionRepository(pool),
		extensions: postgres.NewExtensionRepository(pool),
		rfqs:       postgres.NewRFQRepository(pool),
		referrals:  postgres.NewReferralRepository(pool),
		sweepRuns:  postgres.NewSweepRepository(pool),
	}, pool.Close, nil
}
