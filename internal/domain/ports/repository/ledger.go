package repository

import (
	"context"

	"mediaforge/internal/domain/model"
)

type LedgerRepository interface {
	// Append returns domain.ErrAlreadyDebited if an entry for the job exists.
	Append(ctx context.Context, tx Tx, e *model.LedgerEntry) error
	FindByJobID(ctx context.Context, tx Tx, jobID string) (*model.LedgerEntry, error)
}
