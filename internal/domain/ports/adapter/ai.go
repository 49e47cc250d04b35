package adapter

import "context"

// ImageRequest is what a generation backend receives after routing and
// prompt construction.
type ImageRequest struct {
	JobID          string
	UserID         string
	Model          string
	Prompt         string
	NegativePrompt string
	Width          int
	Height         int
	// LoRAPath is set only for brand-trained generations.
	LoRAPath string
}

type ImageResult struct {
	Data        []byte
	ContentType string
	Model       string
}

// ImageBackend is the port for text-to-image models.
type ImageBackend interface {
	Name() string
	Generate(ctx context.Context, req ImageRequest) (*ImageResult, error)
}

type TrainingRequest struct {
	BrandID       string
	UserID        string
	BrandName     string
	TrainingJobID string
	DataPath      string
	Images        []string
}

type TrainingResult struct {
	ArtifactPath string
}

// TrainingBackend is the port for brand model training.
type TrainingBackend interface {
	Name() string
	Train(ctx context.Context, req TrainingRequest) (*TrainingResult, error)
}

// PromptMeter counts tokens in a prompt for request validation.
type PromptMeter interface {
	Count(text string) int
}
