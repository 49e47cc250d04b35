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

var _ repository.UserRepository = (*PostgresUserRepo)(nil)

type PostgresUserRepo struct {
	pool *pgxpool.Pool
}

func NewPostgresUserRepo(pool *pgxpool.Pool) *PostgresUserRepo {
	return &PostgresUserRepo{pool: pool}
}

const userColumns = `id, email, display_name, plan, credits_used, team_id, team_role, created_at, last_generation_at`

func (r *PostgresUserRepo) Save(ctx context.Context, tx repository.Tx, u *model.User) error {
	const q = `
INSERT INTO users (` + userColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
ON CONFLICT (id) DO UPDATE SET
  email=$2, display_name=$3, plan=$4, credits_used=$5, team_id=$6, team_role=$7, last_generation_at=$9;`
	_, err := execSQL(ctx, r.pool, tx, q,
		u.ID, u.Email, u.DisplayName, u.Plan, u.CreditsUsed, u.TeamID, string(u.TeamRole), u.CreatedAt, u.LastGenerationAt)
	if err != nil {
		return fmt.Errorf("save user: %w", err)
	}
	return nil
}

func (r *PostgresUserRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.User, error) {
	row := pickRow(ctx, r.pool, tx, `SELECT `+userColumns+` FROM users WHERE id=$1;`, id)
	return scanUser(row)
}

func (r *PostgresUserRepo) LockByID(ctx context.Context, tx repository.Tx, id string) (*model.User, error) {
	ptx, err := requireTx(tx)
	if err != nil {
		return nil, err
	}
	row := ptx.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id=$1 FOR UPDATE;`, id)
	return scanUser(row)
}

func (r *PostgresUserRepo) UpdateUsage(ctx context.Context, tx repository.Tx, id string, creditsUsed int, at time.Time) error {
	tag, err := execSQL(ctx, r.pool, tx,
		`UPDATE users SET credits_used=$2, last_generation_at=$3 WHERE id=$1;`, id, creditsUsed, at)
	if err != nil {
		return fmt.Errorf("update user usage: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *PostgresUserRepo) SetTeam(ctx context.Context, tx repository.Tx, id string, teamID *string, role model.TeamRole) error {
	tag, err := execSQL(ctx, r.pool, tx,
		`UPDATE users SET team_id=$2, team_role=$3 WHERE id=$1;`, id, teamID, string(role))
	if err != nil {
		return fmt.Errorf("set user team: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func scanUser(row pgx.Row) (*model.User, error) {
	var (
		u    model.User
		role string
	)
	if err := row.Scan(&u.ID, &u.Email, &u.DisplayName, &u.Plan, &u.CreditsUsed, &u.TeamID, &role, &u.CreatedAt, &u.LastGenerationAt); err != nil {
		return nil, notFound(err)
	}
	u.TeamRole = model.TeamRole(role)
	return &u, nil
}
