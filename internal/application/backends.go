package application

import (
	"context"
	"fmt"
	"strings"

	"mediaforge/internal/config"
	"mediaforge/internal/domain/ports/adapter"
	"mediaforge/internal/infra/adapters/ai"
	"mediaforge/internal/infra/adapters/storage"
	"mediaforge/internal/infra/worker"

	"github.com/rs/zerolog"
)

// BuildBackends constructs every image provider with credentials, the brand
// backend and the training backend, all behind one concurrency limiter.
func BuildBackends(ctx context.Context, cfg config.AIConfig, dev bool, logger *zerolog.Logger) (worker.Backends, error) {
	providers := map[string]adapter.ImageBackend{
		"noop": ai.NewNoopImageBackend(0),
	}

	if cfg.GeminiKey != "" || cfg.VertexProject != "" {
		b, err := ai.NewImagenBackend(ctx, ai.ImagenConfig{
			APIKey:   cfg.GeminiKey,
			BaseURL:  cfg.GeminiURL,
			Project:  cfg.VertexProject,
			Location: cfg.VertexLocation,
			Model:    cfg.DefaultModel,
		})
		if err != nil {
			return worker.Backends{}, fmt.Errorf("imagen backend: %w", err)
		}
		providers["imagen"] = b
	}
	if cfg.OpenAIKey != "" {
		b, err := ai.NewOpenAIBackend(cfg.OpenAIKey, cfg.OpenAIBaseURL, cfg.OpenAIModel)
		if err != nil {
			return worker.Backends{}, fmt.Errorf("openai backend: %w", err)
		}
		providers["openai"] = b
	}
	if cfg.BedrockRegion != "" {
		b, err := ai.NewBedrockBackend(ctx, cfg.BedrockRegion, cfg.BedrockModel)
		if err != nil {
			return worker.Backends{}, fmt.Errorf("bedrock backend: %w", err)
		}
		providers["bedrock"] = b
	}

	def := strings.ToLower(cfg.DefaultProvider)
	if providers[def] == nil {
		if !dev {
			return worker.Backends{}, fmt.Errorf("default provider %q has no credentials configured", def)
		}
		logger.Warn().Str("provider", def).Msg("default provider not configured, using noop backend")
		def = "noop"
	}
	registry := ai.NewRegistry(def, providers, map[string]string{cfg.DefaultModel: def})

	var brand adapter.ImageBackend
	if cfg.BrandBackendURL != "" {
		b, err := ai.NewSDXLLoRABackend(cfg.BrandBackendURL, cfg.BrandModel)
		if err != nil {
			return worker.Backends{}, fmt.Errorf("brand backend: %w", err)
		}
		brand = b
	}

	var trainer adapter.TrainingBackend
	switch strings.ToLower(cfg.TrainingMode) {
	case "http":
		t, err := ai.NewHTTPTrainer(cfg.TrainingBackendURL, cfg.ModelsBucket)
		if err != nil {
			return worker.Backends{}, fmt.Errorf("training backend: %w", err)
		}
		trainer = t
	default:
		trainer = ai.NewMockTrainer(cfg.ModelsBucket, cfg.MockTrainingDelay)
	}

	limiter := ai.NewLimiter(cfg.ConcurrentLimit)
	out := worker.Backends{
		Default:  limiter.WrapImage(registry),
		Training: limiter.WrapTraining(trainer),
	}
	if brand != nil {
		out.Brand = limiter.WrapImage(brand)
	}

	logger.Info().
		Str("default_provider", def).
		Str("default_model", cfg.DefaultModel).
		Strs("providers", registry.Providers()).
		Bool("brand_backend", brand != nil).
		Str("training", trainer.Name()).
		Int("concurrent_limit", cfg.ConcurrentLimit).
		Msg("model backends ready")
	return out, nil
}

// NewPromptMeter loads the configured tokenizer, falling back to word counts.
func NewPromptMeter(cfg config.AIConfig, logger *zerolog.Logger) adapter.PromptMeter {
	m, err := ai.NewTokenMeter(cfg.TokenEncoding)
	if err != nil {
		logger.Warn().Err(err).Str("encoding", cfg.TokenEncoding).Msg("token encoding unavailable, counting words")
		return ai.WordMeter{}
	}
	return m
}

func NewBlobStore(ctx context.Context, cfg config.StorageConfig) (adapter.BlobStore, error) {
	switch strings.ToLower(cfg.Driver) {
	case "s3":
		s, err := storage.NewS3Store(ctx, storage.S3Config{
			Bucket:        cfg.Bucket,
			Region:        cfg.Region,
			Endpoint:      cfg.Endpoint,
			PublicBaseURL: cfg.PublicBaseURL,
		})
		if err != nil {
			return nil, err
		}
		return s, nil
	case "", "fs":
		s, err := storage.NewFileStore(cfg.Root, cfg.PublicBaseURL)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.Driver)
	}
}
