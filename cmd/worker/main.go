package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"mediaforge/internal/application"
	"mediaforge/internal/config"
	"mediaforge/internal/domain/model"
	"mediaforge/internal/infra/api"
	pg "mediaforge/internal/infra/db/postgres"
	"mediaforge/internal/infra/logging"
	"mediaforge/internal/infra/metrics"
	"mediaforge/internal/infra/scheduler"
	"mediaforge/internal/infra/sched"
	"mediaforge/internal/infra/worker"

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
	logger := logging.New(cfg.Log, cfg.Runtime.Dev).With().Str("service", "worker").Logger()

	metrics.MustRegister()
	metrics.SetBuildInfo("worker", version, commit)

	in, err := application.Open(ctx, cfg, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("infrastructure")
	}
	defer in.Close()
	go pg.ReportPoolStats(ctx, in.Pool, 0)

	backends, err := application.BuildBackends(ctx, cfg.AI, cfg.Runtime.Dev, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("model backends")
	}
	blobs, err := application.NewBlobStore(ctx, cfg.Storage)
	if err != nil {
		logger.Fatal().Err(err).Msg("blob store")
	}

	processor := worker.NewJobProcessor(
		in.Illustrations, in.Brands, in.Ledger, backends, blobs, in.Feed, in.Styles,
		worker.ProcessorConfig{
			DefaultModel:      cfg.AI.DefaultModel,
			BrandModel:        cfg.AI.BrandModel,
			NegativePrompt:    cfg.AI.NegativePrompt,
			GenerationTimeout: cfg.AI.GenerationTimeout,
			TrainingTimeout:   cfg.AI.TrainingTimeout,
		},
		&logger,
	)

	// Tasks outlive the signal: pool.Stop drains accepted deliveries before
	// workCtx is cancelled.
	workCtx, cancelWork := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelWork()
	pool := worker.NewPool(cfg.Worker.Concurrency, &logger)
	pool.Start(workCtx)
	defer pool.Stop()

	consumer := worker.NewConsumer(in.Queue, pool, processor, worker.ConsumerConfig{
		Group:    cfg.Queue.Group,
		Consumer: cfg.Queue.Consumer,
		Count:    cfg.Queue.ReadCount,
		Block:    cfg.Queue.Block,
		Topics:   []string{model.TopicGeneration, model.TopicTraining},
	}, &logger)
	go func() {
		if err := consumer.Run(ctx); err != nil {
			logger.Error().Err(err).Msg("stream consumer stopped")
		}
	}()

	reaper := scheduler.NewScheduler(
		sched.NewReaperJob(in.Reaper, &logger),
		scheduler.Options{Interval: cfg.Watchdog.Interval, Locker: in.Locker},
		&logger,
	)
	reaper.Start(ctx)
	defer reaper.Stop()

	resets := scheduler.NewScheduler(
		sched.NewCreditResetJob(in.Ledger, cfg.Watchdog.BatchSize, &logger),
		scheduler.Options{Interval: cfg.Credits.ResetInterval, Locker: in.Locker, RunImmediately: true},
		&logger,
	)
	resets.Start(ctx)
	defer resets.Stop()

	mux := http.NewServeMux()
	api.NewPushServer(pool, processor, &logger).Register(mux)
	if cfg.Storage.Driver == "fs" {
		// Local blob store: serve generated images next to the push endpoints.
		mux.Handle("GET /blobs/", http.StripPrefix("/blobs/", http.FileServer(http.Dir(cfg.Storage.Root))))
	}
	handler := api.Chain(mux,
		api.TraceID(),
		api.Recover(&logger),
		api.RequestLog(&logger),
		api.Metrics("worker"),
	)

	httpSrv := application.NewHTTPServer(cfg.HTTP.WorkerAddr, handler, cfg.HTTP)
	httpSrv.WriteTimeout = cfg.HTTP.WriteTimeout
	if err := application.Serve(ctx, httpSrv, &logger); err != nil {
		logger.Error().Err(err).Msg("http server")
	}
	logger.Info().Msg("worker stopped")
}
