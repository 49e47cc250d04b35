package ai

import (
	"bytes"
	"context"
	"hash/fnv"
	"image"
	"image/color"
	"image/png"
	"time"

	"mediaforge/internal/domain/ports/adapter"
)

var _ adapter.ImageBackend = (*NoopImageBackend)(nil)

// NoopImageBackend renders a flat PNG whose colour is derived from the prompt.
// It is meant for local runs without model credentials.
type NoopImageBackend struct {
	delay time.Duration
}

func NewNoopImageBackend(delay time.Duration) *NoopImageBackend {
	return &NoopImageBackend{delay: delay}
}

func (n *NoopImageBackend) Name() string { return "noop" }

func (n *NoopImageBackend) Generate(ctx context.Context, req adapter.ImageRequest) (*adapter.ImageResult, error) {
	select {
	case <-time.After(n.delay):
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	w, h := req.Width, req.Height
	if w <= 0 {
		w = 1024
	}
	if h <= 0 {
		h = 1024
	}
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	fill := promptColor(req.Prompt)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, fill)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return &adapter.ImageResult{Data: buf.Bytes(), ContentType: "image/png", Model: orDefault(req.Model, "noop")}, nil
}

func promptColor(prompt string) color.RGBA {
	h := fnv.New32a()
	_, _ = h.Write([]byte(prompt))
	s := h.Sum32()
	return color.RGBA{R: uint8(s >> 16), G: uint8(s >> 8), B: uint8(s), A: 0xff}
}
