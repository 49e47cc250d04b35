package ai

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	"mediaforge/internal/domain"
	"mediaforge/internal/domain/ports/adapter"
)

var _ adapter.ImageBackend = (*BedrockBackend)(nil)

// invoker is the slice of the Bedrock runtime client the backend needs.
type invoker interface {
	InvokeModel(ctx context.Context, in *bedrockruntime.InvokeModelInput, opts ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

// BedrockBackend generates images with Amazon Titan Image Generator.
type BedrockBackend struct {
	client invoker
	model  string
}

func NewBedrockBackend(ctx context.Context, region, model string) (*BedrockBackend, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return &BedrockBackend{
		client: bedrockruntime.NewFromConfig(awsCfg),
		model:  orDefault(model, "amazon.titan-image-generator-v2:0"),
	}, nil
}

func (b *BedrockBackend) Name() string { return "bedrock" }

type titanRequest struct {
	TaskType          string          `json:"taskType"`
	TextToImageParams titanTextParams `json:"textToImageParams"`
	Config            titanGenConfig  `json:"imageGenerationConfig"`
}

type titanTextParams struct {
	Text         string `json:"text"`
	NegativeText string `json:"negativeText,omitempty"`
}

type titanGenConfig struct {
	NumberOfImages int     `json:"numberOfImages"`
	Width          int     `json:"width"`
	Height         int     `json:"height"`
	CfgScale       float64 `json:"cfgScale"`
}

type titanResponse struct {
	Images []string `json:"images"`
	Error  *string  `json:"error"`
}

func (b *BedrockBackend) Generate(ctx context.Context, req adapter.ImageRequest) (*adapter.ImageResult, error) {
	model := orDefault(req.Model, b.model)
	body, err := json.Marshal(titanRequest{
		TaskType:          "TEXT_IMAGE",
		TextToImageParams: titanTextParams{Text: req.Prompt, NegativeText: req.NegativePrompt},
		Config:            titanGenConfig{NumberOfImages: 1, Width: req.Width, Height: req.Height, CfgScale: 8.0},
	})
	if err != nil {
		return nil, err
	}
	out, err := b.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(model),
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
		Body:        body,
	})
	if err != nil {
		return nil, err
	}
	var resp titanResponse
	if err := json.Unmarshal(out.Body, &resp); err != nil {
		return nil, fmt.Errorf("%w: titan response: %v", domain.ErrBackend, err)
	}
	if resp.Error != nil && *resp.Error != "" {
		return nil, fmt.Errorf("%w: titan: %s", domain.ErrBackend, *resp.Error)
	}
	if len(resp.Images) == 0 {
		return nil, fmt.Errorf("%w: titan returned no images", domain.ErrBackend)
	}
	data, err := base64.StdEncoding.DecodeString(resp.Images[0])
	if err != nil {
		return nil, fmt.Errorf("%w: titan image payload: %v", domain.ErrBackend, err)
	}
	return &adapter.ImageResult{Data: data, ContentType: "image/png", Model: model}, nil
}
