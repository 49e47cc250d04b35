package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"mediaforge/internal/application"
	"mediaforge/internal/config"
	"mediaforge/internal/infra/api/apiv1"
	"mediaforge/internal/infra/auth"
	pg "mediaforge/internal/infra/db/postgres"
	"mediaforge/internal/infra/logging"
	"mediaforge/internal/infra/metrics"
	"mediaforge/internal/infra/scheduler"
	"mediaforge/internal/infra/sched"
	"mediaforge/internal/usecase"

	"github.com/rs/zerolog/log"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("config")
	}
	logger := logging.New(cfg.Log, cfg.Runtime.Dev).With().Str("service", "gateway").Logger()
	if cfg.Runtime.Dev {
		logger.Warn().Msg("[DEV MODE] enabled")
	}

	metrics.MustRegister()
	metrics.SetBuildInfo("gateway", version, commit)

	in, err := application.Open(ctx, cfg, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("infrastructure")
	}
	defer in.Close()
	go pg.ReportPoolStats(ctx, in.Pool, 0)

	verifier, err := auth.NewVerifier(cfg.Auth)
	if err != nil {
		logger.Fatal().Err(err).Msg("auth")
	}
	meter := application.NewPromptMeter(cfg.AI, &logger)

	dispatch := usecase.NewDispatchUseCase(
		in.Illustrations, in.Brands, in.Outbox,
		in.Ledger, in.Relay, in.Feed, meter, in.Styles, in.TM,
		usecase.DispatchConfig{PromptMaxTokens: cfg.AI.PromptMaxTokens},
		&logger,
	)

	relay := scheduler.NewScheduler(
		sched.NewOutboxRelayJob(in.Relay, cfg.Outbox.Grace, cfg.Outbox.BatchSize, &logger),
		scheduler.Options{Interval: cfg.Outbox.Interval, Locker: in.Locker, RunImmediately: true},
		&logger,
	)
	relay.Start(ctx)
	defer relay.Stop()

	srv := apiv1.NewServer(dispatch, in.Feed, verifier, in.Limiter, apiv1.Options{
		RequestTimeout: cfg.HTTP.RequestTimeout,
		RateLimit:      cfg.RateLimit.Requests,
		RateWindow:     cfg.RateLimit.Window,
		AllowedOrigins: cfg.CORS.AllowedOrigins,
	}, &logger)

	httpSrv := application.NewHTTPServer(cfg.HTTP.GatewayAddr, apiv1.Handler(srv), cfg.HTTP)
	if err := application.Serve(ctx, httpSrv, &logger); err != nil {
		logger.Error().Err(err).Msg("http server")
	}
	logger.Info().Msg("gateway stopped")
}
