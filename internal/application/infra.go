// Package application wires configuration into the concrete adapters and use
// cases shared by the gateway, the worker and forgectl.
package application

import (
	"context"
	"fmt"

	"mediaforge/internal/config"
	"mediaforge/internal/domain/model"
	"mediaforge/internal/domain/ports/repository"
	pg "mediaforge/internal/infra/db/postgres"
	red "mediaforge/internal/infra/redis"
	"mediaforge/internal/usecase"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/rs/zerolog"
)

// Infra holds the stores and the use cases every process needs.
type Infra struct {
	Cfg *config.Config
	Log *zerolog.Logger

	Pool  *pgxpool.Pool
	Redis *red.Client

	TM            repository.TransactionManager
	Users         repository.UserRepository
	Teams         repository.TeamRepository
	Illustrations repository.IllustrationRepository
	Brands        repository.BrandRepository
	Entries       repository.LedgerRepository
	Outbox        repository.OutboxRepository

	Queue   *red.StreamQueue
	Feed    *red.PubSubFeed
	Locker  *red.RedisLocker
	Limiter *red.RateLimiter

	Plans  model.PlanTable
	Styles usecase.StyleCatalog

	Ledger   usecase.LedgerUseCase
	Relay    usecase.OutboxUseCase
	Reaper   usecase.ReaperUseCase
	Accounts usecase.UserUseCase
}

// Open connects to Postgres and Redis and builds the shared use cases.
func Open(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (*Infra, error) {
	pool, err := pg.Connect(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("postgres: %w", err)
	}
	rc, err := red.NewClient(ctx, cfg.Redis)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("redis: %w", err)
	}

	in := &Infra{
		Cfg:           cfg,
		Log:           logger,
		Pool:          pool,
		Redis:         rc,
		TM:            pg.NewTxManager(pool),
		Users:         pg.NewPostgresUserRepo(pool),
		Teams:         pg.NewPostgresTeamRepo(pool),
		Illustrations: pg.NewPostgresIllustrationRepo(pool),
		Brands:        pg.NewBrandRepoCacheDecorator(pg.NewPostgresBrandRepo(pool), rc, cfg.Redis.TTL),
		Entries:       pg.NewPostgresLedgerRepo(pool),
		Outbox:        pg.NewPostgresOutboxRepo(pool),
		Queue:         red.NewStreamQueue(rc, cfg.Queue.MaxLen),
		Feed:          red.NewPubSubFeed(rc, logger),
		Locker:        red.NewLocker(rc),
		Limiter:       red.NewRateLimiter(rc),
		Plans:         model.NewPlanTable(cfg.Plans),
		Styles:        usecase.NewStyleCatalog(cfg.Styles),
	}

	in.Ledger = usecase.NewLedgerUseCase(in.Users, in.Teams, in.Entries, in.TM, in.Plans, logger)
	in.Relay = usecase.NewOutboxUseCase(in.Outbox, in.Queue, logger)
	in.Reaper = usecase.NewReaperUseCase(in.Illustrations, in.Brands, in.Outbox, in.Relay, in.Feed, usecase.ReaperConfig{
		GenerationStaleAfter: cfg.Watchdog.GenerationStaleAfter,
		TrainingStaleAfter:   cfg.Watchdog.TrainingStaleAfter,
		RequeueAfter:         cfg.Watchdog.RequeueAfter,
		BatchSize:            cfg.Watchdog.BatchSize,
	}, logger)
	in.Accounts = usecase.NewUserUseCase(in.Users, in.Teams, in.TM, in.Plans, logger)
	return in, nil
}

func (in *Infra) Close() {
	if in.Redis != nil {
		_ = in.Redis.Close()
	}
	if in.Pool != nil {
		in.Pool.Close()
	}
}
