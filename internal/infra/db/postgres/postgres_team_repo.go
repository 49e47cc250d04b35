package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"mediaforge/internal/domain"
	"mediaforge/internal/domain/model"
	"mediaforge/internal/domain/ports/repository"
)

var _ repository.TeamRepository = (*PostgresTeamRepo)(nil)

type PostgresTeamRepo struct {
	pool *pgxpool.Pool
}

func NewPostgresTeamRepo(pool *pgxpool.Pool) *PostgresTeamRepo {
	return &PostgresTeamRepo{pool: pool}
}

const teamColumns = `id, name, owner_id, plan, credits, credits_reset_date, billing_cycle_start,
  daily_generation_limit, daily_generations_used, daily_limit_reset_date, created_at, last_used_at`

func (r *PostgresTeamRepo) Create(ctx context.Context, tx repository.Tx, t *model.Team) error {
	const q = `
INSERT INTO teams (` + teamColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12);`
	_, err := execSQL(ctx, r.pool, tx, q,
		t.ID, t.Name, t.OwnerID, t.Plan, t.Credits, t.CreditsResetDate, t.BillingCycleStart,
		t.DailyGenerationLimit, t.DailyGenerationsUsed, t.DailyLimitResetDate, t.CreatedAt, t.LastUsedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrAlreadyExists
		}
		return fmt.Errorf("insert team: %w", err)
	}
	for _, m := range t.Members {
		if err := r.AddMember(ctx, tx, t.ID, m); err != nil {
			return err
		}
	}
	return nil
}

func (r *PostgresTeamRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Team, error) {
	row := pickRow(ctx, r.pool, tx, `SELECT `+teamColumns+` FROM teams WHERE id=$1;`, id)
	t, err := scanTeam(row)
	if err != nil {
		return nil, err
	}
	if t.Members, err = r.members(ctx, tx, id); err != nil {
		return nil, err
	}
	return t, nil
}

// LockByID locks the team row only; member rows are written under that lock.
func (r *PostgresTeamRepo) LockByID(ctx context.Context, tx repository.Tx, id string) (*model.Team, error) {
	ptx, err := requireTx(tx)
	if err != nil {
		return nil, err
	}
	t, err := scanTeam(ptx.QueryRow(ctx, `SELECT `+teamColumns+` FROM teams WHERE id=$1 FOR UPDATE;`, id))
	if err != nil {
		return nil, err
	}
	if t.Members, err = r.members(ctx, tx, id); err != nil {
		return nil, err
	}
	return t, nil
}

func (r *PostgresTeamRepo) members(ctx context.Context, tx repository.Tx, teamID string) ([]model.TeamMember, error) {
	rows, err := query(ctx, r.pool, tx, `
SELECT user_id, email, name, role, joined_at, usage_this_month
  FROM team_members WHERE team_id=$1 ORDER BY joined_at, user_id;`, teamID)
	if err != nil {
		return nil, fmt.Errorf("list team members: %w", err)
	}
	defer rows.Close()

	var out []model.TeamMember
	for rows.Next() {
		var (
			m    model.TeamMember
			role string
		)
		if err := rows.Scan(&m.UserID, &m.Email, &m.Name, &role, &m.JoinedAt, &m.UsageThisMonth); err != nil {
			return nil, err
		}
		m.Role = model.TeamRole(role)
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *PostgresTeamRepo) AddMember(ctx context.Context, tx repository.Tx, teamID string, m model.TeamMember) error {
	_, err := execSQL(ctx, r.pool, tx, `
INSERT INTO team_members (team_id, user_id, email, name, role, joined_at, usage_this_month)
VALUES ($1,$2,$3,$4,$5,$6,$7);`,
		teamID, m.UserID, m.Email, m.Name, string(m.Role), m.JoinedAt, m.UsageThisMonth)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrAlreadyExists
		}
		return fmt.Errorf("insert team member: %w", err)
	}
	return nil
}

func (r *PostgresTeamRepo) UpdateUsage(ctx context.Context, tx repository.Tx, t *model.Team) error {
	tag, err := execSQL(ctx, r.pool, tx, `
UPDATE teams
   SET credits=$2, daily_generations_used=$3, daily_limit_reset_date=$4, last_used_at=$5
 WHERE id=$1;`, t.ID, t.Credits, t.DailyGenerationsUsed, t.DailyLimitResetDate, t.LastUsedAt)
	if err != nil {
		return fmt.Errorf("update team usage: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *PostgresTeamRepo) UpdateMemberUsage(ctx context.Context, tx repository.Tx, teamID, userID string, usage int) error {
	tag, err := execSQL(ctx, r.pool, tx,
		`UPDATE team_members SET usage_this_month=$3 WHERE team_id=$1 AND user_id=$2;`, teamID, userID, usage)
	if err != nil {
		return fmt.Errorf("update member usage: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotTeamMember
	}
	return nil
}

func (r *PostgresTeamRepo) ResetCycle(ctx context.Context, tx repository.Tx, teamID string, credits int, nextReset time.Time) error {
	tag, err := execSQL(ctx, r.pool, tx, `
UPDATE teams
   SET credits=$2, billing_cycle_start=credits_reset_date, credits_reset_date=$3
 WHERE id=$1;`, teamID, credits, nextReset)
	if err != nil {
		return fmt.Errorf("reset team cycle: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	if _, err := execSQL(ctx, r.pool, tx, `UPDATE team_members SET usage_this_month=0 WHERE team_id=$1;`, teamID); err != nil {
		return fmt.Errorf("reset member usage: %w", err)
	}
	return nil
}

func (r *PostgresTeamRepo) ListDueForReset(ctx context.Context, tx repository.Tx, now time.Time, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := query(ctx, r.pool, tx,
		`SELECT id FROM teams WHERE credits_reset_date <= $1 ORDER BY credits_reset_date LIMIT $2;`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("list teams due: %w", err)
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func scanTeam(row pgx.Row) (*model.Team, error) {
	var t model.Team
	err := row.Scan(&t.ID, &t.Name, &t.OwnerID, &t.Plan, &t.Credits, &t.CreditsResetDate, &t.BillingCycleStart,
		&t.DailyGenerationLimit, &t.DailyGenerationsUsed, &t.DailyLimitResetDate, &t.CreatedAt, &t.LastUsedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return &t, nil
}
