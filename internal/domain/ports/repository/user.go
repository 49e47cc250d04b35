package repository

import (
	"context"
	"time"

	"mediaforge/internal/domain/model"
)

// -----------------------------
// Users
// -----------------------------

type UserRepository interface {
	Save(ctx context.Context, tx Tx, u *model.User) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.User, error)
	// LockByID reads the user with a row lock; tx must be non-nil.
	LockByID(ctx context.Context, tx Tx, id string) (*model.User, error)
	UpdateUsage(ctx context.Context, tx Tx, id string, creditsUsed int, lastGenerationAt time.Time) error
	SetTeam(ctx context.Context, tx Tx, id string, teamID *string, role model.TeamRole) error
}
