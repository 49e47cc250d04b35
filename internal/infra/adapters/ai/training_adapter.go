package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"mediaforge/internal/domain"
	"mediaforge/internal/domain/ports/adapter"
)

var (
	_ adapter.TrainingBackend = (*HTTPTrainer)(nil)
	_ adapter.TrainingBackend = (*MockTrainer)(nil)
)

// HTTPTrainer submits a LoRA training run to the trainer service and waits
// for it to answer with the artifact location.
type HTTPTrainer struct {
	base         string
	modelsBucket string
	client       *http.Client
}

func NewHTTPTrainer(base, modelsBucket string) (*HTTPTrainer, error) {
	if base == "" {
		return nil, errors.New("trainer: empty base url")
	}
	return &HTTPTrainer{
		base:         strings.TrimRight(base, "/"),
		modelsBucket: modelsBucket,
		client:       &http.Client{Timeout: 3 * time.Hour},
	}, nil
}

func (t *HTTPTrainer) Name() string { return "lora-trainer" }

type trainRequest struct {
	BrandID       string   `json:"brandId"`
	BrandName     string   `json:"brandName"`
	UserID        string   `json:"userId"`
	TrainingJobID string   `json:"trainingJobId"`
	InputPath     string   `json:"inputPath"`
	Images        []string `json:"images"`
	OutputBucket  string   `json:"outputBucket"`
	OutputPath    string   `json:"outputPath"`
	MaxTrainSteps int      `json:"maxTrainSteps"`
	LearningRate  float64  `json:"learningRate"`
}

type trainResponse struct {
	ArtifactPath string `json:"artifactPath"`
	Error        string `json:"error"`
}

func (t *HTTPTrainer) Train(ctx context.Context, req adapter.TrainingRequest) (*adapter.TrainingResult, error) {
	b, _ := json.Marshal(trainRequest{
		BrandID:       req.BrandID,
		BrandName:     req.BrandName,
		UserID:        req.UserID,
		TrainingJobID: req.TrainingJobID,
		InputPath:     req.DataPath,
		Images:        req.Images,
		OutputBucket:  t.modelsBucket,
		OutputPath:    fmt.Sprintf("models/%s/", req.BrandID),
		MaxTrainSteps: 500,
		LearningRate:  1e-4,
	})
	var payload trainResponse
	if err := postJSON(ctx, t.client, t.base+"/train", b, &payload); err != nil {
		return nil, fmt.Errorf("trainer: %w", err)
	}
	if payload.Error != "" {
		return nil, fmt.Errorf("%w: trainer: %s", domain.ErrBackend, payload.Error)
	}
	return &adapter.TrainingResult{ArtifactPath: payload.ArtifactPath}, nil
}

// MockTrainer stands in for the trainer in development: it waits, then
// reports a deterministic artifact path.
type MockTrainer struct {
	bucket string
	delay  time.Duration
}

func NewMockTrainer(bucket string, delay time.Duration) *MockTrainer {
	return &MockTrainer{bucket: orDefault(bucket, "mediaforge-lora-models"), delay: delay}
}

func (m *MockTrainer) Name() string { return "mock-trainer" }

func (m *MockTrainer) Train(ctx context.Context, req adapter.TrainingRequest) (*adapter.TrainingResult, error) {
	select {
	case <-time.After(m.delay):
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return &adapter.TrainingResult{
		ArtifactPath: fmt.Sprintf("gs://%s/mock/%s/model.safetensors", m.bucket, req.BrandID),
	}, nil
}
