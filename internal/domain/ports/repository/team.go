package repository

import (
	"context"
	"time"

	"mediaforge/internal/domain/model"
)

// -----------------------------
// Teams
// -----------------------------

type TeamRepository interface {
	// Create stores the team and its initial members.
	Create(ctx context.Context, tx Tx, t *model.Team) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.Team, error)
	// LockByID reads the team and its members with a row lock on the team.
	LockByID(ctx context.Context, tx Tx, id string) (*model.Team, error)
	AddMember(ctx context.Context, tx Tx, teamID string, m model.TeamMember) error
	// UpdateUsage persists credits, the daily window and last_used_at.
	UpdateUsage(ctx context.Context, tx Tx, t *model.Team) error
	UpdateMemberUsage(ctx context.Context, tx Tx, teamID, userID string, usage int) error
	// ResetCycle sets credits and the next reset date, and zeroes member usage.
	ResetCycle(ctx context.Context, tx Tx, teamID string, credits int, nextReset time.Time) error
	ListDueForReset(ctx context.Context, tx Tx, now time.Time, limit int) ([]string, error)
}
