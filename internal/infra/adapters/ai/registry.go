package ai

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"mediaforge/internal/domain"
	"mediaforge/internal/domain/ports/adapter"
)

var _ adapter.ImageBackend = (*Registry)(nil)

// Registry routes default-backend generations to a provider by model name.
// Explicit model mappings win over name prefixes; anything unknown goes to the
// default provider.
type Registry struct {
	defaultProvider string
	byProvider      map[string]adapter.ImageBackend
	modelToProvider map[string]string
}

func NewRegistry(
	defaultProvider string,
	byProvider map[string]adapter.ImageBackend,
	modelToProvider map[string]string,
) *Registry {
	return &Registry{
		defaultProvider: strings.ToLower(defaultProvider),
		byProvider:      byProvider,
		modelToProvider: modelToProvider,
	}
}

func (r *Registry) Name() string { return r.defaultProvider }

func (r *Registry) resolveProvider(model string) string {
	if p := r.modelToProvider[model]; p != "" {
		return strings.ToLower(p)
	}
	l := strings.ToLower(model)
	switch {
	case strings.HasPrefix(l, "imagen"):
		return "imagen"
	case strings.HasPrefix(l, "gpt-image"), strings.HasPrefix(l, "dall-e"):
		return "openai"
	case strings.HasPrefix(l, "amazon.titan"):
		return "bedrock"
	default:
		return r.defaultProvider
	}
}

func (r *Registry) pick(model string) (adapter.ImageBackend, error) {
	if b := r.byProvider[r.resolveProvider(model)]; b != nil {
		return b, nil
	}
	if b := r.byProvider[r.defaultProvider]; b != nil {
		return b, nil
	}
	return nil, fmt.Errorf("%w: no provider for model %q", domain.ErrBackend, model)
}

func (r *Registry) Generate(ctx context.Context, req adapter.ImageRequest) (*adapter.ImageResult, error) {
	b, err := r.pick(req.Model)
	if err != nil {
		return nil, err
	}
	return b.Generate(ctx, req)
}

// Providers lists the configured provider names.
func (r *Registry) Providers() []string {
	out := make([]string, 0, len(r.byProvider))
	for name, b := range r.byProvider {
		if b != nil {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}
