package repository

import (
	"context"
	"time"

	"mediaforge/internal/domain/model"
)

type OutboxRepository interface {
	Enqueue(ctx context.Context, tx Tx, m *model.OutboxMessage) error
	MarkDispatched(ctx context.Context, tx Tx, id string, at time.Time) error
	MarkFailed(ctx context.Context, tx Tx, id string, lastErr string) error
	// ListPending returns undispatched messages created before olderThan,
	// oldest first.
	ListPending(ctx context.Context, tx Tx, olderThan time.Time, limit int) ([]*model.OutboxMessage, error)
	CountPending(ctx context.Context, tx Tx) (int, error)
}
