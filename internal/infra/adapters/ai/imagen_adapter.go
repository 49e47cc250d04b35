package ai

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genai"

	"mediaforge/internal/domain"
	"mediaforge/internal/domain/ports/adapter"
)

var _ adapter.ImageBackend = (*ImagenBackend)(nil)

type ImagenConfig struct {
	APIKey   string
	BaseURL  string
	Project  string
	Location string
	Model    string
}

// ImagenBackend calls Imagen through the genai SDK, on Vertex AI when a
// project is configured and on the Gemini API otherwise.
type ImagenBackend struct {
	client       *genai.Client
	defaultModel string
	vertex       bool
}

func NewImagenBackend(ctx context.Context, cfg ImagenConfig) (*ImagenBackend, error) {
	cc := &genai.ClientConfig{
		HTTPOptions: genai.HTTPOptions{BaseURL: cfg.BaseURL},
	}
	switch {
	case cfg.Project != "":
		cc.Backend = genai.BackendVertexAI
		cc.Project = cfg.Project
		cc.Location = cfg.Location
	case cfg.APIKey != "":
		cc.Backend = genai.BackendGeminiAPI
		cc.APIKey = cfg.APIKey
	default:
		return nil, errors.New("imagen: either vertex project or api key is required")
	}
	c, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, err
	}
	return &ImagenBackend{client: c, defaultModel: orDefault(cfg.Model, "imagen-3.0-generate-002"), vertex: cc.Backend == genai.BackendVertexAI}, nil
}

func (g *ImagenBackend) Name() string { return "imagen" }

func (g *ImagenBackend) Generate(ctx context.Context, req adapter.ImageRequest) (*adapter.ImageResult, error) {
	model := orDefault(req.Model, g.defaultModel)
	cfg := &genai.GenerateImagesConfig{
		NumberOfImages:   1,
		AspectRatio:      aspectRatio(req.Width, req.Height),
		PersonGeneration: genai.PersonGenerationAllowAll,
		OutputMIMEType:   "image/png",
	}
	// The Gemini API rejects negative prompts.
	if g.vertex {
		cfg.NegativePrompt = req.NegativePrompt
	}
	resp, err := g.client.Models.GenerateImages(ctx, model, req.Prompt, cfg)
	if err != nil {
		return nil, err
	}
	if resp == nil || len(resp.GeneratedImages) == 0 {
		return nil, fmt.Errorf("%w: imagen returned no images", domain.ErrBackend)
	}
	first := resp.GeneratedImages[0]
	if first.Image == nil || len(first.Image.ImageBytes) == 0 {
		reason := first.RAIFilteredReason
		if reason == "" {
			reason = "empty image"
		}
		return nil, fmt.Errorf("%w: imagen: %s", domain.ErrBackend, reason)
	}
	return &adapter.ImageResult{
		Data:        first.Image.ImageBytes,
		ContentType: orDefault(first.Image.MIMEType, "image/png"),
		Model:       model,
	}, nil
}
