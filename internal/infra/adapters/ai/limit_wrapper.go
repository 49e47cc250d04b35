package ai

import (
	"context"

	"mediaforge/internal/domain/ports/adapter"
	"mediaforge/internal/infra/metrics"
)

// Compile-time check
var (
	_ adapter.ImageBackend    = (*limitedImage)(nil)
	_ adapter.TrainingBackend = (*limitedTrainer)(nil)
)

// Limiter bounds concurrent backend calls across every backend wrapped by it.
type Limiter struct {
	sem chan struct{}
}

func NewLimiter(maxConcurrent int) *Limiter {
	if maxConcurrent <= 0 {
		return &Limiter{}
	}
	return &Limiter{sem: make(chan struct{}, maxConcurrent)}
}

func (l *Limiter) acquire(ctx context.Context) error {
	if l.sem == nil {
		return nil
	}
	select {
	case l.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *Limiter) release() {
	if l.sem != nil {
		<-l.sem
	}
}

func (l *Limiter) WrapImage(inner adapter.ImageBackend) adapter.ImageBackend {
	if inner == nil {
		return nil
	}
	return &limitedImage{inner: inner, lim: l}
}

func (l *Limiter) WrapTraining(inner adapter.TrainingBackend) adapter.TrainingBackend {
	if inner == nil {
		return nil
	}
	return &limitedTrainer{inner: inner, lim: l}
}

type limitedImage struct {
	inner adapter.ImageBackend
	lim   *Limiter
}

func (b *limitedImage) Name() string { return b.inner.Name() }

func (b *limitedImage) Generate(ctx context.Context, req adapter.ImageRequest) (*adapter.ImageResult, error) {
	if err := b.lim.acquire(ctx); err != nil {
		return nil, err
	}
	defer b.lim.release()
	metrics.BackendInFlight(b.inner.Name(), 1)
	defer metrics.BackendInFlight(b.inner.Name(), -1)
	return b.inner.Generate(ctx, req)
}

type limitedTrainer struct {
	inner adapter.TrainingBackend
	lim   *Limiter
}

func (t *limitedTrainer) Name() string { return t.inner.Name() }

func (t *limitedTrainer) Train(ctx context.Context, req adapter.TrainingRequest) (*adapter.TrainingResult, error) {
	if err := t.lim.acquire(ctx); err != nil {
		return nil, err
	}
	defer t.lim.release()
	metrics.BackendInFlight(t.inner.Name(), 1)
	defer metrics.BackendInFlight(t.inner.Name(), -1)
	return t.inner.Train(ctx, req)
}
