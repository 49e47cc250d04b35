package repository

import (
	"context"
	"time"

	"mediaforge/internal/domain/model"
)

type IllustrationRepository interface {
	// Create stores a new record in status queued whatever the caller set.
	Create(ctx context.Context, tx Tx, il *model.Illustration) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.Illustration, error)
	// Transition moves the record from -> to only if its current status is
	// from, applying patch in the same statement. It returns domain.ErrConflict
	// when the status no longer matches and domain.ErrInvalidTransition when
	// the move is not a forward step.
	Transition(ctx context.Context, tx Tx, id string, from, to model.IllustrationStatus, patch model.IllustrationPatch) (*model.Illustration, error)
	// ListStale returns records whose status is status and whose last status
	// change happened before olderThan.
	ListStale(ctx context.Context, tx Tx, status model.IllustrationStatus, olderThan time.Time, limit int) ([]*model.Illustration, error)
}
