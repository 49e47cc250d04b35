package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"

	"mediaforge/internal/domain"
	"mediaforge/internal/domain/model"
	"mediaforge/internal/domain/ports/repository"
)

var _ repository.OutboxRepository = (*PostgresOutboxRepo)(nil)

type PostgresOutboxRepo struct {
	pool *pgxpool.Pool
}

func NewPostgresOutboxRepo(pool *pgxpool.Pool) *PostgresOutboxRepo {
	return &PostgresOutboxRepo{pool: pool}
}

func (r *PostgresOutboxRepo) Enqueue(ctx context.Context, tx repository.Tx, m *model.OutboxMessage) error {
	_, err := execSQL(ctx, r.pool, tx, `
INSERT INTO outbox (id, topic, job_id, payload, created_at) VALUES ($1,$2,$3,$4,$5);`,
		m.ID, m.Topic, m.JobID, m.Payload, m.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrAlreadyExists
		}
		return fmt.Errorf("enqueue outbox: %w", err)
	}
	return nil
}

func (r *PostgresOutboxRepo) MarkDispatched(ctx context.Context, tx repository.Tx, id string, at time.Time) error {
	tag, err := execSQL(ctx, r.pool, tx,
		`UPDATE outbox SET dispatched_at=$2, attempts=attempts+1 WHERE id=$1 AND dispatched_at IS NULL;`, id, at)
	if err != nil {
		return fmt.Errorf("mark outbox dispatched: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *PostgresOutboxRepo) MarkFailed(ctx context.Context, tx repository.Tx, id string, lastErr string) error {
	_, err := execSQL(ctx, r.pool, tx,
		`UPDATE outbox SET attempts=attempts+1, last_error=$2 WHERE id=$1;`, id, lastErr)
	if err != nil {
		return fmt.Errorf("mark outbox failed: %w", err)
	}
	return nil
}

// ListPending takes no row locks. Two relays running at once may both publish
// a row; the worker drops the second delivery on its claim CAS.
func (r *PostgresOutboxRepo) ListPending(ctx context.Context, tx repository.Tx, olderThan time.Time, limit int) ([]*model.OutboxMessage, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := query(ctx, r.pool, tx, `
SELECT id, topic, job_id, payload, created_at, dispatched_at, attempts, last_error
  FROM outbox
 WHERE dispatched_at IS NULL AND created_at < $1
 ORDER BY created_at
 LIMIT $2;`, olderThan, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending outbox: %w", err)
	}
	defer rows.Close()
	var out []*model.OutboxMessage
	for rows.Next() {
		var m model.OutboxMessage
		if err := rows.Scan(&m.ID, &m.Topic, &m.JobID, &m.Payload, &m.CreatedAt, &m.DispatchedAt, &m.Attempts, &m.LastError); err != nil {
			return nil, err
		}
		out = append(out, &m)
	}
	return out, rows.Err()
}

func (r *PostgresOutboxRepo) CountPending(ctx context.Context, tx repository.Tx) (int, error) {
	var n int
	if err := pickRow(ctx, r.pool, tx, `SELECT COUNT(*) FROM outbox WHERE dispatched_at IS NULL;`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count pending outbox: %w", err)
	}
	return n, nil
}
