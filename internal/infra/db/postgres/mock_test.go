//go:build !integration

package postgres

import (
	"context"
	"time"

	"mediaforge/internal/domain/model"
	"mediaforge/internal/domain/ports/repository"
	red "mediaforge/internal/infra/redis"
)

// --- Mocks for Cache Decorator Tests ---

// mockInnerBrandRepo mocks the database repository that the Brand decorator wraps.
type mockInnerBrandRepo struct {
	CreateFunc     func(ctx context.Context, tx repository.Tx, b *model.Brand) error
	FindByIDFunc   func(ctx context.Context, tx repository.Tx, id string) (*model.Brand, error)
	TransitionFunc func(ctx context.Context, tx repository.Tx, id string, from, to model.BrandStatus, patch model.BrandPatch) (*model.Brand, error)
	ListStaleFunc  func(ctx context.Context, tx repository.Tx, status model.BrandStatus, olderThan time.Time, limit int) ([]*model.Brand, error)
}

func (m *mockInnerBrandRepo) Create(ctx context.Context, tx repository.Tx, b *model.Brand) error {
	return m.CreateFunc(ctx, tx, b)
}
func (m *mockInnerBrandRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Brand, error) {
	return m.FindByIDFunc(ctx, tx, id)
}
func (m *mockInnerBrandRepo) Transition(ctx context.Context, tx repository.Tx, id string, from, to model.BrandStatus, patch model.BrandPatch) (*model.Brand, error) {
	return m.TransitionFunc(ctx, tx, id, from, to, patch)
}
func (m *mockInnerBrandRepo) ListStale(ctx context.Context, tx repository.Tx, status model.BrandStatus, olderThan time.Time, limit int) ([]*model.Brand, error) {
	return m.ListStaleFunc(ctx, tx, status, olderThan, limit)
}

// mockRedisClient mocks the cache side of the Redis wrapper.
type mockRedisClient struct {
	GetFunc   func(ctx context.Context, key string) (string, error)
	SetFunc   func(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	DelFunc   func(ctx context.Context, keys ...string) error
	PingFunc  func(ctx context.Context) error
	CloseFunc func() error
}

var _ red.RedisClient = &mockRedisClient{}

func (m *mockRedisClient) Get(ctx context.Context, key string) (string, error) {
	return m.GetFunc(ctx, key)
}
func (m *mockRedisClient) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	return m.SetFunc(ctx, key, value, expiration)
}
func (m *mockRedisClient) Del(ctx context.Context, keys ...string) error {
	return m.DelFunc(ctx, keys...)
}
func (m *mockRedisClient) Ping(ctx context.Context) error { return m.PingFunc(ctx) }
func (m *mockRedisClient) Close() error { return m.CloseFunc() }
