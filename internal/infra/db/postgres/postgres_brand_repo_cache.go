package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"mediaforge/internal/domain/model"
	"mediaforge/internal/domain/ports/repository"
	"mediaforge/internal/infra/metrics"
	red "mediaforge/internal/infra/redis"
)

var _ repository.BrandRepository = (*brandRepoCacheDecorator)(nil)

// brandRepoCacheDecorator caches brands that reached a terminal status.
// Those never change again, so no write can leave a stale entry behind.
type brandRepoCacheDecorator struct {
	inner repository.BrandRepository
	cache red.RedisClient
	ttl   time.Duration
}

func NewBrandRepoCacheDecorator(inner repository.BrandRepository, cache red.RedisClient, ttl time.Duration) repository.BrandRepository {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &brandRepoCacheDecorator{
		inner: inner,
		cache: cache,
		ttl:   ttl,
	}
}

func brandKey(id string) string { return fmt.Sprintf("brand:id:%s", id) }

func (d *brandRepoCacheDecorator) Create(ctx context.Context, tx repository.Tx, b *model.Brand) error {
	return d.inner.Create(ctx, tx, b)
}

func (d *brandRepoCacheDecorator) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Brand, error) {
	// Reads inside a transaction must see the transaction's view.
	if tx != nil {
		metrics.IncCacheRequest("brand", "bypass")
		return d.inner.FindByID(ctx, tx, id)
	}

	key := brandKey(id)
	val, err := d.cache.Get(ctx, key)
	if err == nil {
		var b model.Brand
		if json.Unmarshal([]byte(val), &b) == nil {
			metrics.IncCacheRequest("brand", "hit")
			return &b, nil
		}
	}

	metrics.IncCacheRequest("brand", "miss")
	b, err := d.inner.FindByID(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	d.store(ctx, b)
	return b, nil
}

func (d *brandRepoCacheDecorator) Transition(ctx context.Context, tx repository.Tx, id string, from, to model.BrandStatus, patch model.BrandPatch) (*model.Brand, error) {
	b, err := d.inner.Transition(ctx, tx, id, from, to, patch)
	if err != nil {
		return nil, err
	}
	// Inside a transaction the row may still roll back.
	if tx == nil {
		d.store(ctx, b)
	}
	return b, nil
}

func (d *brandRepoCacheDecorator) ListStale(ctx context.Context, tx repository.Tx, status model.BrandStatus, olderThan time.Time, limit int) ([]*model.Brand, error) {
	return d.inner.ListStale(ctx, tx, status, olderThan, limit)
}

func (d *brandRepoCacheDecorator) store(ctx context.Context, b *model.Brand) {
	if b == nil || !b.Status.Terminal() {
		return
	}
	bytes, err := json.Marshal(b)
	if err != nil {
		return
	}
	_ = d.cache.Set(ctx, brandKey(b.ID), bytes, d.ttl)
}
