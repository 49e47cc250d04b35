// File: internal/usecase/dispatch_uc.go
package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"mediaforge/internal/domain"
	"mediaforge/internal/domain/model"
	"mediaforge/internal/domain/ports/adapter"
	"mediaforge/internal/domain/ports/repository"
	"mediaforge/internal/infra/metrics"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
)

// Compile-time check
var _ DispatchUseCase = (*dispatchUC)(nil)

const (
	EstimatedTrainingSeconds = 900
	defaultDimension         = 1024
)

type GenerateRequest struct {
	UserID    string
	Prompt    string
	StyleID   string
	StyleKind string
	BrandID   string
	StyleName string
	Width     int
	Height    int
}

type GenerateResult struct {
	IllustrationID string
	Status         model.IllustrationStatus
	CreditsUsed    int
	Remaining      int
}

type TrainRequest struct {
	UserID         string
	BrandName      string
	BrandColors    []model.BrandColor
	BrandStyle     string
	TrainingImages []string
}

type TrainResult struct {
	BrandID       string
	Status        model.BrandStatus
	EstimatedTime int
	TrainingJobID string
}

// DispatchUseCase is the gateway side of the job lifecycle. Every rejection
// happens before the transaction that creates the job record and its outbox
// row, so a failed call leaves no trace.
type DispatchUseCase interface {
	Generate(ctx context.Context, id *adapter.Identity, req GenerateRequest) (*GenerateResult, error)
	TrainBrand(ctx context.Context, id *adapter.Identity, req TrainRequest) (*TrainResult, error)
	GetIllustration(ctx context.Context, id *adapter.Identity, illustrationID string) (*model.Illustration, error)
	GetBrand(ctx context.Context, id *adapter.Identity, brandID string) (*model.Brand, error)
}

type DispatchConfig struct {
	PromptMaxTokens int
}

type dispatchUC struct {
	illustrations repository.IllustrationRepository
	brands        repository.BrandRepository
	outboxRepo    repository.OutboxRepository
	ledger        LedgerUseCase
	outbox        OutboxUseCase
	feed          adapter.ChangeFeed
	meter         adapter.PromptMeter
	styles        StyleCatalog
	tm            repository.TransactionManager
	cfg           DispatchConfig
	now           func() time.Time
	log           *zerolog.Logger
}

func NewDispatchUseCase(
	illustrations repository.IllustrationRepository,
	brands repository.BrandRepository,
	outboxRepo repository.OutboxRepository,
	ledger LedgerUseCase,
	outbox OutboxUseCase,
	feed adapter.ChangeFeed,
	meter adapter.PromptMeter,
	styles StyleCatalog,
	tm repository.TransactionManager,
	cfg DispatchConfig,
	logger *zerolog.Logger,
) *dispatchUC {
	l := logger.With().Str("component", "Dispatch").Logger()
	return &dispatchUC{
		illustrations: illustrations,
		brands:        brands,
		outboxRepo:    outboxRepo,
		ledger:        ledger,
		outbox:        outbox,
		feed:          feed,
		meter:         meter,
		styles:        styles,
		tm:            tm,
		cfg:           cfg,
		now:           time.Now,
		log:           &l,
	}
}

// WithClock replaces the time source; used by tests.
func (u *dispatchUC) WithClock(now func() time.Time) *dispatchUC {
	u.now = now
	return u
}

func (u *dispatchUC) Generate(ctx context.Context, id *adapter.Identity, req GenerateRequest) (*GenerateResult, error) {
	kind := string(model.JobKindGeneration)
	if err := authorize(id, req.UserID); err != nil {
		metrics.IncDispatch(kind, outcome(err))
		return nil, err
	}

	sel, err := u.validateGenerate(&req)
	if err != nil {
		metrics.IncDispatch(kind, outcome(err))
		return nil, err
	}

	account, user, err := u.ledger.ResolveAccount(ctx, req.UserID)
	if err != nil {
		metrics.IncDispatch(kind, outcome(err))
		return nil, err
	}

	styleName := strings.TrimSpace(req.StyleName)
	if sel.IsBrand() {
		brand, err := u.brands.FindByID(ctx, nil, sel.ID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				metrics.IncDispatch(kind, "not_found")
			}
			return nil, err
		}
		if !brand.AccessibleBy(user.ID, user.TeamID) {
			metrics.IncDispatch(kind, "not_found")
			return nil, domain.ErrNotFound
		}
		if styleName == "" {
			styleName = brand.Name
		}
	} else if styleName == "" {
		styleName = u.styles.DisplayName(sel.ID)
	}

	cost := u.ledger.CostForResolution(req.Width, req.Height)
	res, err := u.ledger.CheckAndReserve(account, cost)
	if err != nil {
		metrics.IncDispatch(kind, outcome(err))
		return nil, err
	}

	now := u.now()
	il := &model.Illustration{
		ID:          uuid.NewString(),
		UserID:      user.ID,
		Prompt:      strings.TrimSpace(req.Prompt),
		Style:       sel,
		StyleName:   styleName,
		Status:      model.IllustrationQueued,
		Width:       req.Width,
		Height:      req.Height,
		CreditsUsed: cost,
		CreatedAt:   now,
		Version:     1,
	}
	if account.Ref.Kind == model.AccountTeam {
		teamID := account.Ref.TeamID
		il.TeamID = &teamID
	}

	ob, err := newOutboxMessage(generationMessage(il, now), now)
	if err != nil {
		return nil, err
	}

	err = u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		if err := u.illustrations.Create(ctx, tx, il); err != nil {
			return fmt.Errorf("create illustration: %w", err)
		}
		return u.outboxRepo.Enqueue(ctx, tx, ob)
	})
	if err != nil {
		metrics.IncDispatch(kind, "store_error")
		return nil, err
	}

	u.publishAfterCommit(ctx, ob)
	AnnounceIllustration(ctx, u.feed, il, u.log)
	metrics.IncDispatch(kind, "accepted")

	u.log.Info().
		Str("job_id", il.ID).
		Str("user_id", il.UserID).
		Str("account", string(account.Ref.Kind)).
		Str("style_kind", string(sel.Kind)).
		Int("cost", cost).
		Msg("generation queued")

	return &GenerateResult{
		IllustrationID: il.ID,
		Status:         il.Status,
		CreditsUsed:    cost,
		Remaining:      res.Remaining,
	}, nil
}

func (u *dispatchUC) validateGenerate(req *GenerateRequest) (model.StyleSelector, error) {
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return model.StyleSelector{}, domain.Invalid("prompt", "prompt is required")
	}
	if u.meter != nil && u.cfg.PromptMaxTokens > 0 {
		n := u.meter.Count(prompt)
		if n > u.cfg.PromptMaxTokens {
			return model.StyleSelector{}, domain.Invalid("prompt", fmt.Sprintf("prompt is too long (%d tokens, max %d)", n, u.cfg.PromptMaxTokens))
		}
		metrics.ObservePromptTokens(n)
	}

	var sel model.StyleSelector
	switch {
	case strings.TrimSpace(req.BrandID) != "":
		sel = model.BrandStyle(req.BrandID)
	case model.StyleKind(strings.ToLower(req.StyleKind)) == model.StyleKindBrand:
		sel = model.BrandStyle(req.StyleID)
	default:
		sel = model.PresetStyle(req.StyleID)
	}
	if !sel.Valid() {
		return model.StyleSelector{}, domain.Invalid("styleId", "a style or brand id is required")
	}

	if req.Width == 0 {
		req.Width = defaultDimension
	}
	if req.Height == 0 {
		req.Height = defaultDimension
	}
	if !model.ValidDimension(req.Width) {
		return model.StyleSelector{}, domain.Invalid("width", "width must be one of 1024, 1536, 2048")
	}
	if !model.ValidDimension(req.Height) {
		return model.StyleSelector{}, domain.Invalid("height", "height must be one of 1024, 1536, 2048")
	}
	return sel, nil
}

func (u *dispatchUC) TrainBrand(ctx context.Context, id *adapter.Identity, req TrainRequest) (*TrainResult, error) {
	kind := string(model.JobKindTraining)
	if err := authorize(id, req.UserID); err != nil {
		metrics.IncDispatch(kind, outcome(err))
		return nil, err
	}
	if err := validateTrain(&req); err != nil {
		metrics.IncDispatch(kind, outcome(err))
		return nil, err
	}

	_, user, err := u.ledger.ResolveAccount(ctx, req.UserID)
	if err != nil {
		metrics.IncDispatch(kind, outcome(err))
		return nil, err
	}
	// the caller's own plan decides, even when credits come from a team
	if model.NormalizePlan(user.Plan) != model.PlanBusiness {
		metrics.IncDispatch(kind, outcome(domain.ErrTierRequired))
		return nil, domain.ErrTierRequired
	}

	now := u.now()
	brand := &model.Brand{
		ID:             "brand_" + strings.ToLower(ulid.Make().String()),
		UserID:         user.ID,
		Name:           req.BrandName,
		Colors:         req.BrandColors,
		Style:          req.BrandStyle,
		Status:         model.BrandPreparing,
		TrainingImages: req.TrainingImages,
		ImageCount:     len(req.TrainingImages),
		CreatedAt:      now,
		Version:        1,
	}
	if user.InTeam() {
		teamID := *user.TeamID
		brand.TeamID = &teamID
	}
	trainingJobID := fmt.Sprintf("lora-%s-%d", brand.ID, now.UnixMilli())
	dataPath := "training-data/" + brand.ID + "/"

	ob, err := newOutboxMessage(trainingMessage(brand, now), now)
	if err != nil {
		return nil, err
	}

	var queued *model.Brand
	err = u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		if err := u.brands.Create(ctx, tx, brand); err != nil {
			return fmt.Errorf("create brand: %w", err)
		}
		// dataset assembly is a reference to the uploaded images; the brand
		// is ready for the worker as soon as the path is recorded
		var err error
		queued, err = u.brands.Transition(ctx, tx, brand.ID, model.BrandPreparing, model.BrandQueued, model.BrandPatch{
			TrainingJobID:    &trainingJobID,
			TrainingDataPath: &dataPath,
		})
		if err != nil {
			return fmt.Errorf("queue brand: %w", err)
		}
		return u.outboxRepo.Enqueue(ctx, tx, ob)
	})
	if err != nil {
		metrics.IncDispatch(kind, "store_error")
		return nil, err
	}

	u.publishAfterCommit(ctx, ob)
	AnnounceBrand(ctx, u.feed, queued, u.log)
	metrics.IncDispatch(kind, "accepted")

	u.log.Info().
		Str("brand_id", brand.ID).
		Str("user_id", brand.UserID).
		Int("image_count", brand.ImageCount).
		Msg("brand training queued")

	return &TrainResult{
		BrandID:       brand.ID,
		Status:        model.BrandQueued,
		EstimatedTime: EstimatedTrainingSeconds,
		TrainingJobID: trainingJobID,
	}, nil
}

func validateTrain(req *TrainRequest) error {
	req.BrandName = strings.TrimSpace(req.BrandName)
	if req.BrandName == "" {
		return domain.Invalid("brandName", "brand name is required")
	}
	if len(req.TrainingImages) < model.MinTrainingImages {
		return domain.Invalid("trainingImages", fmt.Sprintf("at least %d training images are required", model.MinTrainingImages))
	}
	for i, img := range req.TrainingImages {
		parsed, err := url.Parse(strings.TrimSpace(img))
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			return domain.Invalid("trainingImages", fmt.Sprintf("image %d is not a valid url", i+1))
		}
	}
	for i, c := range req.BrandColors {
		if !validHex(c.Hex) {
			return domain.Invalid("brandColors", fmt.Sprintf("color %d is not a hex value", i+1))
		}
	}
	return nil
}

func validHex(s string) bool {
	if (len(s) != 7 && len(s) != 4) || s[0] != '#' {
		return false
	}
	for _, r := range s[1:] {
		switch {
		case r >= '0' && r <= '9', r >= 'a' && r <= 'f', r >= 'A' && r <= 'F':
		default:
			return false
		}
	}
	return true
}

func (u *dispatchUC) GetIllustration(ctx context.Context, id *adapter.Identity, illustrationID string) (*model.Illustration, error) {
	if id == nil {
		return nil, domain.ErrUnauthorized
	}
	il, err := u.illustrations.FindByID(ctx, nil, illustrationID)
	if err != nil {
		return nil, err
	}
	if !il.OwnedBy(id.UserID) {
		// do not reveal that the id exists
		return nil, domain.ErrNotFound
	}
	return il, nil
}

func (u *dispatchUC) GetBrand(ctx context.Context, id *adapter.Identity, brandID string) (*model.Brand, error) {
	if id == nil {
		return nil, domain.ErrUnauthorized
	}
	b, err := u.brands.FindByID(ctx, nil, brandID)
	if err != nil {
		return nil, err
	}
	if b.UserID != id.UserID {
		return nil, domain.ErrNotFound
	}
	return b, nil
}

func (u *dispatchUC) publishAfterCommit(ctx context.Context, ob *model.OutboxMessage) {
	if err := u.outbox.Publish(ctx, ob, "inline"); err != nil {
		u.log.Warn().Err(err).Str("job_id", ob.JobID).Msg("inline publish failed, relay will retry")
	}
}

func authorize(id *adapter.Identity, userID string) error {
	if id == nil || id.UserID == "" {
		return domain.ErrUnauthorized
	}
	if strings.TrimSpace(userID) == "" {
		return domain.Invalid("userId", "userId is required")
	}
	if id.UserID != userID {
		return domain.ErrForbidden
	}
	return nil
}

func generationMessage(il *model.Illustration, now time.Time) model.JobMessage {
	return model.JobMessage{
		Kind:           model.JobKindGeneration,
		IllustrationID: il.ID,
		UserID:         il.UserID,
		StyleID:        il.Style.ID,
		Width:          il.Width,
		Height:         il.Height,
		CreatedAt:      now.UTC().Format(time.RFC3339),
	}
}

func trainingMessage(b *model.Brand, now time.Time) model.JobMessage {
	return model.JobMessage{
		Kind:       model.JobKindTraining,
		BrandID:    b.ID,
		UserID:     b.UserID,
		ImageCount: b.ImageCount,
		CreatedAt:  now.UTC().Format(time.RFC3339),
	}
}

func newOutboxMessage(msg model.JobMessage, now time.Time) (*model.OutboxMessage, error) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("encode job message: %w", err)
	}
	return &model.OutboxMessage{
		ID:        ulid.Make().String(),
		Topic:     model.TopicFor(msg.Kind),
		JobID:     msg.JobID(),
		Payload:   payload,
		CreatedAt: now,
	}, nil
}

func outcome(err error) string {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return "invalid"
	case errors.Is(err, domain.ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, domain.ErrForbidden):
		return "forbidden"
	case errors.Is(err, domain.ErrTierRequired):
		return "tier_required"
	case errors.Is(err, domain.ErrInsufficientCredits):
		return "insufficient_credits"
	case errors.Is(err, domain.ErrDailyLimitExceeded):
		return "daily_limit"
	case errors.Is(err, domain.ErrAccountNotFound), errors.Is(err, domain.ErrNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrNotTeamMember):
		return "not_team_member"
	default:
		return "error"
	}
}
