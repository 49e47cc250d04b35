package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"mediaforge/internal/domain"
	"mediaforge/internal/domain/model"
	"mediaforge/internal/domain/ports/adapter"
	"mediaforge/internal/domain/ports/repository"
	"mediaforge/internal/infra/metrics"

	"github.com/rs/zerolog"
)

var _ ReaperUseCase = (*reaperUC)(nil)

const (
	generationTimedOut = "generation timed out"
	trainingTimedOut   = "training timed out"
)

type ReaperConfig struct {
	GenerationStaleAfter time.Duration
	TrainingStaleAfter   time.Duration
	// RequeueAfter is how long a job may sit in queued before its message
	// is published again.
	RequeueAfter         time.Duration
	BatchSize            int
}

type ReapResult struct {
	Illustrations int
	Brands        int
	Requeued      int
}

// ReaperUseCase fails jobs whose worker went away mid-flight and republishes
// jobs that were never claimed. It uses the same CAS as the worker, so a job
// that completes in the meantime is left alone, and it never charges credits.
type ReaperUseCase interface {
	ReapStale(ctx context.Context) (ReapResult, error)
}

type reaperUC struct {
	illustrations repository.IllustrationRepository
	brands        repository.BrandRepository
	outboxRepo    repository.OutboxRepository
	outbox        OutboxUseCase
	feed          adapter.ChangeFeed
	cfg           ReaperConfig
	now           func() time.Time
	log           *zerolog.Logger
}

func NewReaperUseCase(
	illustrations repository.IllustrationRepository,
	brands repository.BrandRepository,
	outboxRepo repository.OutboxRepository,
	outbox OutboxUseCase,
	feed adapter.ChangeFeed,
	cfg ReaperConfig,
	logger *zerolog.Logger,
) *reaperUC {
	l := logger.With().Str("component", "Reaper").Logger()
	if cfg.GenerationStaleAfter <= 0 {
		cfg.GenerationStaleAfter = 15 * time.Minute
	}
	if cfg.TrainingStaleAfter <= 0 {
		cfg.TrainingStaleAfter = 2 * time.Hour
	}
	if cfg.RequeueAfter <= 0 {
		cfg.RequeueAfter = 5 * time.Minute
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	return &reaperUC{
		illustrations: illustrations,
		brands:        brands,
		outboxRepo:    outboxRepo,
		outbox:        outbox,
		feed:          feed,
		cfg:           cfg,
		now:           time.Now,
		log:           &l,
	}
}

func (u *reaperUC) WithClock(now func() time.Time) *reaperUC {
	u.now = now
	return u
}

func (u *reaperUC) ReapStale(ctx context.Context) (ReapResult, error) {
	var res ReapResult
	now := u.now()

	stale, err := u.illustrations.ListStale(ctx, nil, model.IllustrationProcessing, now.Add(-u.cfg.GenerationStaleAfter), u.cfg.BatchSize)
	if err != nil {
		return res, fmt.Errorf("list stale illustrations: %w", err)
	}
	msg := generationTimedOut
	for _, il := range stale {
		failed, err := u.illustrations.Transition(ctx, nil, il.ID, model.IllustrationProcessing, model.IllustrationFailed,
			model.IllustrationPatch{Error: &msg, FailedAt: &now})
		if err != nil {
			if !errors.Is(err, domain.ErrConflict) {
				u.log.Error().Err(err).Str("job_id", il.ID).Msg("reap illustration")
			}
			continue
		}
		AnnounceIllustration(ctx, u.feed, failed, u.log)
		res.Illustrations++
	}

	brands, err := u.brands.ListStale(ctx, nil, model.BrandTraining, now.Add(-u.cfg.TrainingStaleAfter), u.cfg.BatchSize)
	if err != nil {
		return res, fmt.Errorf("list stale brands: %w", err)
	}
	tmsg := trainingTimedOut
	for _, b := range brands {
		failed, err := u.brands.Transition(ctx, nil, b.ID, model.BrandTraining, model.BrandFailed,
			model.BrandPatch{Error: &tmsg, FailedAt: &now})
		if err != nil {
			if !errors.Is(err, domain.ErrConflict) {
				u.log.Error().Err(err).Str("brand_id", b.ID).Msg("reap brand")
			}
			continue
		}
		AnnounceBrand(ctx, u.feed, failed, u.log)
		res.Brands++
	}

	requeued, err := u.requeueUnclaimed(ctx, now)
	res.Requeued = requeued
	if err != nil {
		return res, err
	}

	metrics.AddJobsReaped(string(model.JobKindGeneration), res.Illustrations)
	metrics.AddJobsReaped(string(model.JobKindTraining), res.Brands)
	if res.Illustrations+res.Brands > 0 {
		u.log.Warn().Int("illustrations", res.Illustrations).Int("brands", res.Brands).Msg("stale jobs failed")
	}
	if res.Requeued > 0 {
		u.log.Warn().Int("requeued", res.Requeued).Msg("unclaimed jobs republished")
	}
	return res, nil
}

// requeueUnclaimed publishes a fresh message for every job still queued after
// RequeueAfter. A delivery can be acknowledged and then lost before a worker
// claims it; the outbox row is already dispatched by then, so nothing else
// would send it again. A second delivery of a claimed job loses the CAS in the
// worker and is dropped.
func (u *reaperUC) requeueUnclaimed(ctx context.Context, now time.Time) (int, error) {
	cutoff := now.Add(-u.cfg.RequeueAfter)
	var gen, train int

	ills, err := u.illustrations.ListStale(ctx, nil, model.IllustrationQueued, cutoff, u.cfg.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("list queued illustrations: %w", err)
	}
	for _, il := range ills {
		if err := u.republish(ctx, generationMessage(il, now), now); err != nil {
			u.log.Error().Err(err).Str("job_id", il.ID).Msg("requeue illustration")
			continue
		}
		gen++
	}

	metrics.AddJobsRequeued(string(model.JobKindGeneration), gen)

	brands, err := u.brands.ListStale(ctx, nil, model.BrandQueued, cutoff, u.cfg.BatchSize)
	if err != nil {
		return gen, fmt.Errorf("list queued brands: %w", err)
	}
	for _, b := range brands {
		if err := u.republish(ctx, trainingMessage(b, now), now); err != nil {
			u.log.Error().Err(err).Str("brand_id", b.ID).Msg("requeue brand")
			continue
		}
		train++
	}
	metrics.AddJobsRequeued(string(model.JobKindTraining), train)
	return gen + train, nil
}

// republish stores the message before sending it, so a failed publish is
// retried by the relay.
func (u *reaperUC) republish(ctx context.Context, msg model.JobMessage, now time.Time) error {
	ob, err := newOutboxMessage(msg, now)
	if err != nil {
		return err
	}
	if err := u.outboxRepo.Enqueue(ctx, nil, ob); err != nil {
		return fmt.Errorf("enqueue: %w", err)
	}
	if err := u.outbox.Publish(ctx, ob, "requeue"); err != nil {
		u.log.Warn().Err(err).Str("outbox_id", ob.ID).Msg("requeue publish failed, left for the relay")
	}
	return nil
}
