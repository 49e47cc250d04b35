package repository

import (
	"context"
	"time"

	"mediaforge/internal/domain/model"
)

type BrandRepository interface {
	// Create stores a new brand in status preparing.
	Create(ctx context.Context, tx Tx, b *model.Brand) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.Brand, error)
	Transition(ctx context.Context, tx Tx, id string, from, to model.BrandStatus, patch model.BrandPatch) (*model.Brand, error)
	ListStale(ctx context.Context, tx Tx, status model.BrandStatus, olderThan time.Time, limit int) ([]*model.Brand, error)
}
