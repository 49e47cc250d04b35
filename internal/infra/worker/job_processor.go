// File: internal/infra/worker/job_processor.go
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"mediaforge/internal/domain"
	"mediaforge/internal/domain/model"
	"mediaforge/internal/domain/ports/adapter"
	"mediaforge/internal/domain/ports/repository"
	"mediaforge/internal/infra/logging"
	"mediaforge/internal/infra/metrics"
	"mediaforge/internal/usecase"

	"github.com/rs/zerolog"
)

type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeReady     Outcome = "ready"
	OutcomeFailed    Outcome = "failed"
	OutcomeSkipped   Outcome = "skipped"
	OutcomeDropped   Outcome = "dropped"
	OutcomeError     Outcome = "error"
)

const finalWriteTimeout = 15 * time.Second

type ProcessorConfig struct {
	DefaultModel      string
	BrandModel        string
	NegativePrompt    string
	GenerationTimeout time.Duration
	TrainingTimeout   time.Duration
}

type Backends struct {
	Default  adapter.ImageBackend
	Brand    adapter.ImageBackend
	Training adapter.TrainingBackend
}

// JobProcessor runs one queue delivery through the job state machine. The
// status CAS is the only duplicate-delivery defense: a message for a record
// that is not queued, or whose claim loses the race, is skipped untouched.
type JobProcessor struct {
	illustrations repository.IllustrationRepository
	brands        repository.BrandRepository
	ledger        usecase.LedgerUseCase
	backends      Backends
	blobs         adapter.BlobStore
	feed          adapter.ChangeFeed
	styles        usecase.StyleCatalog
	cfg           ProcessorConfig
	now           func() time.Time
	log           *zerolog.Logger
}

func NewJobProcessor(
	illustrations repository.IllustrationRepository,
	brands repository.BrandRepository,
	ledger usecase.LedgerUseCase,
	backends Backends,
	blobs adapter.BlobStore,
	feed adapter.ChangeFeed,
	styles usecase.StyleCatalog,
	cfg ProcessorConfig,
	logger *zerolog.Logger,
) *JobProcessor {
	l := logger.With().Str("component", "JobProcessor").Logger()
	if cfg.GenerationTimeout <= 0 {
		cfg.GenerationTimeout = 5 * time.Minute
	}
	if cfg.TrainingTimeout <= 0 {
		cfg.TrainingTimeout = 30 * time.Minute
	}
	return &JobProcessor{
		illustrations: illustrations,
		brands:        brands,
		ledger:        ledger,
		backends:      backends,
		blobs:         blobs,
		feed:          feed,
		styles:        styles,
		cfg:           cfg,
		now:           time.Now,
		log:           &l,
	}
}

// Handle dispatches a decoded queue message by job kind.
func (p *JobProcessor) Handle(ctx context.Context, msg model.JobMessage) Outcome {
	switch msg.Kind {
	case model.JobKindTraining:
		return p.ProcessTraining(ctx, msg.BrandID)
	case model.JobKindGeneration, "":
		return p.ProcessGeneration(ctx, msg.IllustrationID)
	default:
		p.log.Error().Str("kind", string(msg.Kind)).Msg("unknown job kind, dropping")
		return OutcomeDropped
	}
}

// Task adapts Handle for the worker pool.
func (p *JobProcessor) Task(msg model.JobMessage) Task {
	return func(ctx context.Context) error {
		if out := p.Handle(ctx, msg); out == OutcomeError {
			return fmt.Errorf("job %s: processing error", msg.JobID())
		}
		return nil
	}
}

// ---------------------------------------------------------------------------
// Generation
// ---------------------------------------------------------------------------

func (p *JobProcessor) ProcessGeneration(ctx context.Context, id string) (out Outcome) {
	const kind = string(model.JobKindGeneration)
	ctx = logging.WithJobID(ctx, id)
	log := logging.With(ctx, p.log)
	start := p.now()

	if id == "" {
		log.Error().Msg("message without illustration id, dropping")
		metrics.IncJobSkipped(kind, "malformed")
		return OutcomeDropped
	}

	il, err := p.illustrations.FindByID(ctx, nil, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			log.Error().Msg("illustration not found, dropping message")
			metrics.IncJobSkipped(kind, "missing")
			return OutcomeDropped
		}
		log.Error().Err(err).Msg("load illustration")
		return OutcomeError
	}
	if il.Status != model.IllustrationQueued {
		log.Info().Str("status", string(il.Status)).Msg("job already handled, skipping")
		metrics.IncJobSkipped(kind, "duplicate")
		return OutcomeSkipped
	}

	il, err = p.illustrations.Transition(ctx, nil, id, model.IllustrationQueued, model.IllustrationProcessing,
		model.IllustrationPatch{ProcessingStartedAt: &start})
	if err != nil {
		if errors.Is(err, domain.ErrConflict) {
			log.Info().Msg("lost claim race, skipping")
			metrics.IncJobSkipped(kind, "lost_race")
			return OutcomeSkipped
		}
		log.Error().Err(err).Msg("claim illustration")
		return OutcomeError
	}
	p.announceIllustration(ctx, il)

	defer func() {
		if rec := recover(); rec != nil {
			log.Error().Interface("panic", rec).Msg("panic while processing generation")
			p.failGeneration(ctx, il, fmt.Errorf("internal error while generating image"), start)
			out = OutcomeFailed
		}
	}()

	result, err := p.generate(ctx, il)
	if err != nil {
		log.Warn().Err(err).Msg("generation failed")
		p.failGeneration(ctx, il, err, start)
		return OutcomeFailed
	}
	return p.completeGeneration(ctx, il, result, start)
}

type generationResult struct {
	decision     usecase.RoutingDecision
	modelUsed    string
	finalPrompt  string
	imageURL     string
	thumbnailURL string
}

func (p *JobProcessor) generate(ctx context.Context, il *model.Illustration) (*generationResult, error) {
	var brand *model.Brand
	if il.Style.IsBrand() {
		b, err := p.brands.FindByID(ctx, nil, il.Style.ID)
		switch {
		case err == nil:
			brand = b
		case errors.Is(err, domain.ErrNotFound):
			p.log.Warn().Str("job_id", il.ID).Str("brand_id", il.Style.ID).Msg("brand missing, using default backend")
		default:
			return nil, fmt.Errorf("load brand: %w", err)
		}
	}

	decision := usecase.RouteGeneration(il.Style, brand, p.cfg.DefaultModel, p.cfg.BrandModel)
	backend := p.backends.Default
	if decision.Route == usecase.RouteBrand && p.backends.Brand != nil {
		backend = p.backends.Brand
	} else if decision.Route == usecase.RouteBrand {
		decision = usecase.RoutingDecision{Route: usecase.RouteDefault, Model: p.cfg.DefaultModel, Brand: brand}
	}
	if backend == nil {
		return nil, fmt.Errorf("%w: no backend configured for route %s", domain.ErrBackend, decision.Route)
	}

	prompt := usecase.BuildGenerationPrompt(il.Prompt, il.Style, decision, p.styles)
	req := adapter.ImageRequest{
		JobID:          il.ID,
		UserID:         il.UserID,
		Model:          decision.Model,
		Prompt:         prompt,
		NegativePrompt: p.cfg.NegativePrompt,
		Width:          il.Width,
		Height:         il.Height,
	}
	if decision.Route == usecase.RouteBrand {
		req.LoRAPath = decision.Brand.ModelArtifact
	}

	callCtx, cancel := context.WithTimeout(ctx, p.cfg.GenerationTimeout)
	defer cancel()
	callStart := time.Now()
	img, err := backend.Generate(callCtx, req)
	metrics.ObserveBackendCall(backend.Name(), decision.Model, time.Since(callStart).Milliseconds(), err == nil)
	if err != nil {
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%s timed out after %s", backend.Name(), p.cfg.GenerationTimeout)
		}
		return nil, fmt.Errorf("%s: %w", backend.Name(), err)
	}
	if img == nil || len(img.Data) == 0 {
		return nil, fmt.Errorf("%w: %s returned no image", domain.ErrBackend, backend.Name())
	}

	imageURL, thumbURL, err := p.persistImage(ctx, il, img)
	if err != nil {
		return nil, err
	}
	used := img.Model
	if used == "" {
		used = decision.Model
	}
	return &generationResult{
		decision:     decision,
		modelUsed:    used,
		finalPrompt:  prompt,
		imageURL:     imageURL,
		thumbnailURL: thumbURL,
	}, nil
}

func (p *JobProcessor) persistImage(ctx context.Context, il *model.Illustration, img *adapter.ImageResult) (string, string, error) {
	contentType := img.ContentType
	if contentType == "" {
		contentType = "image/png"
	}
	key := fmt.Sprintf("illustrations/%s/%s.png", il.UserID, il.ID)
	thumbKey := fmt.Sprintf("illustrations/%s/%s_thumb.png", il.UserID, il.ID)
	meta := map[string]string{
		"userId":         il.UserID,
		"illustrationId": il.ID,
		"styleId":        il.Style.ID,
		"generatedAt":    p.now().UTC().Format(time.RFC3339),
	}

	for _, k := range []string{key, thumbKey} {
		if err := p.blobs.Put(ctx, k, img.Data, contentType, meta); err != nil {
			return "", "", fmt.Errorf("store %s: %w", k, err)
		}
		if err := p.blobs.MakePublic(ctx, k); err != nil {
			return "", "", fmt.Errorf("publish %s: %w", k, err)
		}
	}
	return p.blobs.PublicURL(key), p.blobs.PublicURL(thumbKey), nil
}

func (p *JobProcessor) completeGeneration(ctx context.Context, il *model.Illustration, res *generationResult, start time.Time) Outcome {
	const kind = string(model.JobKindGeneration)
	log := logging.With(ctx, p.log)

	now := p.now()
	elapsed := int(now.Sub(start) / time.Second)
	done, err := p.illustrations.Transition(ctx, nil, il.ID, model.IllustrationProcessing, model.IllustrationCompleted, model.IllustrationPatch{
		ModelToUse:     &res.decision.Model,
		ModelUsed:      &res.modelUsed,
		ImageURL:       &res.imageURL,
		ThumbnailURL:   &res.thumbnailURL,
		GenerationTime: &elapsed,
		FinalPrompt:    &res.finalPrompt,
		CompletedAt:    &now,
	})
	if err != nil {
		if errors.Is(err, domain.ErrConflict) {
			// the watchdog already failed it; the asset stays orphaned and
			// nothing is charged
			log.Warn().Msg("illustration left processing before completion, not charging")
			metrics.IncJobSkipped(kind, "completed_after_reap")
			return OutcomeSkipped
		}
		log.Error().Err(err).Msg("mark illustration completed")
		p.failGeneration(ctx, il, fmt.Errorf("could not save the generated image"), start)
		return OutcomeFailed
	}
	p.announceIllustration(ctx, done)
	metrics.IncJob(kind, string(model.IllustrationCompleted))
	metrics.ObserveJobDuration(kind, string(model.IllustrationCompleted), now.Sub(start).Seconds())

	p.debit(ctx, done)

	log.Info().
		Str("model", res.modelUsed).
		Str("route", string(res.decision.Route)).
		Int("generation_time", elapsed).
		Msg("generation completed")
	return OutcomeCompleted
}

// debit runs strictly after the completed transition. A failure is an
// operational alert; the job stays completed.
func (p *JobProcessor) debit(ctx context.Context, il *model.Illustration) {
	log := logging.With(ctx, p.log)
	account := model.PersonalAccount(il.UserID)
	if il.TeamID != nil && *il.TeamID != "" {
		account = model.TeamAccount(*il.TeamID, il.UserID)
	}
	entry, err := p.ledger.Debit(ctx, usecase.DebitRequest{
		JobID:       il.ID,
		JobKind:     model.JobKindGeneration,
		Account:     account,
		Cost:        il.CreditsUsed,
		ActorUserID: il.UserID,
	})
	if err != nil {
		if errors.Is(err, domain.ErrAlreadyDebited) {
			log.Info().Msg("job already debited")
			return
		}
		metrics.IncLedgerInconsistency(debitFailureReason(err))
		log.Error().Err(err).
			Str("account", string(account.Kind)).
			Int("cost", il.CreditsUsed).
			Msg("debit failed after completion")
		return
	}
	metrics.AddCreditsDebited(string(account.Kind), entry.Amount)
}

func debitFailureReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrInsufficientCredits):
		return "insufficient_credits"
	case errors.Is(err, domain.ErrDailyLimitExceeded):
		return "daily_limit"
	case errors.Is(err, domain.ErrAccountNotFound):
		return "account_not_found"
	case errors.Is(err, domain.ErrNotTeamMember):
		return "not_team_member"
	default:
		return "store_error"
	}
}

func (p *JobProcessor) failGeneration(ctx context.Context, il *model.Illustration, cause error, start time.Time) {
	const kind = string(model.JobKindGeneration)
	// the failure write must happen even if the job context is already done
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalWriteTimeout)
	defer cancel()
	log := logging.With(ctx, p.log)

	now := p.now()
	msg := domain.PublicMessage(cause)
	failed, err := p.illustrations.Transition(wctx, nil, il.ID, model.IllustrationProcessing, model.IllustrationFailed,
		model.IllustrationPatch{Error: &msg, FailedAt: &now})
	if err != nil {
		if errors.Is(err, domain.ErrConflict) {
			log.Warn().Msg("illustration already left processing, failure not recorded")
			return
		}
		log.Error().Err(err).Msg("mark illustration failed")
		return
	}
	p.announceIllustration(wctx, failed)
	metrics.IncJob(kind, string(model.IllustrationFailed))
	metrics.ObserveJobDuration(kind, string(model.IllustrationFailed), now.Sub(start).Seconds())
}

// ---------------------------------------------------------------------------
// Training
// ---------------------------------------------------------------------------

func (p *JobProcessor) ProcessTraining(ctx context.Context, id string) (out Outcome) {
	const kind = string(model.JobKindTraining)
	ctx = logging.WithJobID(ctx, id)
	log := logging.With(ctx, p.log)
	start := p.now()

	if id == "" {
		log.Error().Msg("message without brand id, dropping")
		metrics.IncJobSkipped(kind, "malformed")
		return OutcomeDropped
	}

	b, err := p.brands.FindByID(ctx, nil, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			log.Error().Msg("brand not found, dropping message")
			metrics.IncJobSkipped(kind, "missing")
			return OutcomeDropped
		}
		log.Error().Err(err).Msg("load brand")
		return OutcomeError
	}
	if b.Status != model.BrandQueued {
		log.Info().Str("status", string(b.Status)).Msg("training already handled, skipping")
		metrics.IncJobSkipped(kind, "duplicate")
		return OutcomeSkipped
	}

	b, err = p.brands.Transition(ctx, nil, id, model.BrandQueued, model.BrandTraining,
		model.BrandPatch{TrainingStartedAt: &start})
	if err != nil {
		if errors.Is(err, domain.ErrConflict) {
			log.Info().Msg("lost claim race, skipping")
			metrics.IncJobSkipped(kind, "lost_race")
			return OutcomeSkipped
		}
		log.Error().Err(err).Msg("claim brand")
		return OutcomeError
	}
	p.announceBrand(ctx, b)

	defer func() {
		if rec := recover(); rec != nil {
			log.Error().Interface("panic", rec).Msg("panic while training brand")
			p.failTraining(ctx, b, fmt.Errorf("internal error while training brand"), start)
			out = OutcomeFailed
		}
	}()

	artifact, err := p.train(ctx, b)
	if err != nil {
		log.Warn().Err(err).Msg("training failed")
		p.failTraining(ctx, b, err, start)
		return OutcomeFailed
	}

	now := p.now()
	duration := int(now.Sub(start) / time.Second)
	ready, err := p.brands.Transition(ctx, nil, id, model.BrandTraining, model.BrandReady, model.BrandPatch{
		ModelArtifact:       &artifact,
		TrainingDuration:    &duration,
		TrainingCompletedAt: &now,
	})
	if err != nil {
		if errors.Is(err, domain.ErrConflict) {
			log.Warn().Msg("brand left training before completion")
			metrics.IncJobSkipped(kind, "completed_after_reap")
			return OutcomeSkipped
		}
		log.Error().Err(err).Msg("mark brand ready")
		p.failTraining(ctx, b, fmt.Errorf("could not save the trained model"), start)
		return OutcomeFailed
	}
	p.announceBrand(ctx, ready)
	metrics.IncJob(kind, string(model.BrandReady))
	metrics.ObserveJobDuration(kind, string(model.BrandReady), now.Sub(start).Seconds())
	log.Info().Str("artifact", artifact).Int("training_duration", duration).Msg("brand training completed")
	return OutcomeReady
}

func (p *JobProcessor) train(ctx context.Context, b *model.Brand) (string, error) {
	backend := p.backends.Training
	if backend == nil {
		return "", fmt.Errorf("%w: no training backend configured", domain.ErrBackend)
	}
	callCtx, cancel := context.WithTimeout(ctx, p.cfg.TrainingTimeout)
	defer cancel()

	callStart := time.Now()
	res, err := backend.Train(callCtx, adapter.TrainingRequest{
		BrandID:       b.ID,
		UserID:        b.UserID,
		BrandName:     b.Name,
		TrainingJobID: b.TrainingJobID,
		DataPath:      b.TrainingDataPath,
		Images:        b.TrainingImages,
	})
	metrics.ObserveBackendCall(backend.Name(), "lora-training", time.Since(callStart).Milliseconds(), err == nil)
	if err != nil {
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("%s timed out after %s", backend.Name(), p.cfg.TrainingTimeout)
		}
		return "", fmt.Errorf("%s: %w", backend.Name(), err)
	}
	if res == nil || res.ArtifactPath == "" {
		return "", fmt.Errorf("%w: %s returned no model artifact", domain.ErrBackend, backend.Name())
	}
	return res.ArtifactPath, nil
}

func (p *JobProcessor) failTraining(ctx context.Context, b *model.Brand, cause error, start time.Time) {
	const kind = string(model.JobKindTraining)
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalWriteTimeout)
	defer cancel()
	log := logging.With(ctx, p.log)

	now := p.now()
	msg := domain.PublicMessage(cause)
	failed, err := p.brands.Transition(wctx, nil, b.ID, model.BrandTraining, model.BrandFailed,
		model.BrandPatch{Error: &msg, FailedAt: &now})
	if err != nil {
		if errors.Is(err, domain.ErrConflict) {
			log.Warn().Msg("brand already left training, failure not recorded")
			return
		}
		log.Error().Err(err).Msg("mark brand failed")
		return
	}
	p.announceBrand(wctx, failed)
	metrics.IncJob(kind, string(model.BrandFailed))
	metrics.ObserveJobDuration(kind, string(model.BrandFailed), now.Sub(start).Seconds())
}

func (p *JobProcessor) announceIllustration(ctx context.Context, il *model.Illustration) {
	usecase.AnnounceIllustration(ctx, p.feed, il, p.log)
}

func (p *JobProcessor) announceBrand(ctx context.Context, b *model.Brand) {
	usecase.AnnounceBrand(ctx, p.feed, b, p.log)
}
