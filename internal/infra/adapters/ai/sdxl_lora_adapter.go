package ai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"mediaforge/internal/domain"
	"mediaforge/internal/domain/ports/adapter"
)

// Compile-time assurance this adapter satisfies the port
var _ adapter.ImageBackend = (*SDXLLoRABackend)(nil)

// SDXLLoRABackend talks to the self-hosted SDXL service that applies a
// brand's LoRA weights. The service answers POST /generate with a base64 PNG.
type SDXLLoRABackend struct {
	base   string
	model  string
	client *http.Client
}

func NewSDXLLoRABackend(base, model string) (*SDXLLoRABackend, error) {
	if base == "" {
		return nil, errors.New("sdxl-lora: empty base url")
	}
	return &SDXLLoRABackend{
		base:  strings.TrimRight(base, "/"),
		model: orDefault(model, "sdxl-lora"),
		// the caller's context carries the real deadline
		client: &http.Client{Timeout: 10 * time.Minute},
	}, nil
}

func (s *SDXLLoRABackend) Name() string { return "sdxl-lora" }

type sdxlRequest struct {
	IllustrationID string `json:"illustrationId"`
	UserID         string `json:"userId"`
	Prompt         string `json:"prompt"`
	NegativePrompt string `json:"negativePrompt,omitempty"`
	LoRAPath       string `json:"loraPath"`
	Width          int    `json:"width"`
	Height         int    `json:"height"`
}

type sdxlResponse struct {
	Image       string `json:"image"`
	ContentType string `json:"contentType"`
	Error       string `json:"error"`
}

func (s *SDXLLoRABackend) Generate(ctx context.Context, req adapter.ImageRequest) (*adapter.ImageResult, error) {
	if req.LoRAPath == "" {
		return nil, fmt.Errorf("%w: sdxl-lora needs a model artifact", domain.ErrBackend)
	}
	b, _ := json.Marshal(sdxlRequest{
		IllustrationID: req.JobID,
		UserID:         req.UserID,
		Prompt:         req.Prompt,
		NegativePrompt: req.NegativePrompt,
		LoRAPath:       req.LoRAPath,
		Width:          req.Width,
		Height:         req.Height,
	})
	var payload sdxlResponse
	if err := postJSON(ctx, s.client, s.base+"/generate", b, &payload); err != nil {
		return nil, fmt.Errorf("sdxl-lora: %w", err)
	}
	if payload.Error != "" {
		return nil, fmt.Errorf("%w: sdxl-lora: %s", domain.ErrBackend, payload.Error)
	}
	data, err := base64.StdEncoding.DecodeString(payload.Image)
	if err != nil || len(data) == 0 {
		return nil, fmt.Errorf("%w: sdxl-lora returned no image", domain.ErrBackend)
	}
	return &adapter.ImageResult{
		Data:        data,
		ContentType: orDefault(payload.ContentType, "image/png"),
		Model:       orDefault(req.Model, s.model),
	}, nil
}

// postJSON sends body and decodes a JSON answer into out. Non-2xx replies
// become errors carrying the status and the service's message.
func postJSON(ctx context.Context, client *http.Client, url string, body []byte, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: http %d: %s", domain.ErrBackend, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
