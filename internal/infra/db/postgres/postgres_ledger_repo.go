package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"

	"mediaforge/internal/domain"
	"mediaforge/internal/domain/model"
	"mediaforge/internal/domain/ports/repository"
)

var _ repository.LedgerRepository = (*PostgresLedgerRepo)(nil)

type PostgresLedgerRepo struct {
	pool *pgxpool.Pool
}

func NewPostgresLedgerRepo(pool *pgxpool.Pool) *PostgresLedgerRepo {
	return &PostgresLedgerRepo{pool: pool}
}

// Append relies on the unique job_id index; a duplicate aborts the
// surrounding transaction with ErrAlreadyDebited.
func (r *PostgresLedgerRepo) Append(ctx context.Context, tx repository.Tx, e *model.LedgerEntry) error {
	_, err := execSQL(ctx, r.pool, tx, `
INSERT INTO ledger_entries (id, job_id, job_kind, account_kind, user_id, team_id, amount, balance_after, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9);`,
		e.ID, e.JobID, string(e.JobKind), string(e.AccountKind), e.UserID, e.TeamID, e.Amount, e.BalanceAfter, e.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrAlreadyDebited
		}
		return fmt.Errorf("append ledger entry: %w", err)
	}
	return nil
}

func (r *PostgresLedgerRepo) FindByJobID(ctx context.Context, tx repository.Tx, jobID string) (*model.LedgerEntry, error) {
	row := pickRow(ctx, r.pool, tx, `
SELECT id, job_id, job_kind, account_kind, user_id, team_id, amount, balance_after, created_at
  FROM ledger_entries WHERE job_id=$1;`, jobID)
	var (
		e               model.LedgerEntry
		jobKind, acKind string
	)
	if err := row.Scan(&e.ID, &e.JobID, &jobKind, &acKind, &e.UserID, &e.TeamID, &e.Amount, &e.BalanceAfter, &e.CreatedAt); err != nil {
		return nil, notFound(err)
	}
	e.JobKind = model.JobKind(jobKind)
	e.AccountKind = model.AccountKind(acKind)
	return &e, nil
}
