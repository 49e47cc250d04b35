package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"mediaforge/internal/domain"
	"mediaforge/internal/domain/model"
	"mediaforge/internal/domain/ports/repository"
)

var _ repository.IllustrationRepository = (*PostgresIllustrationRepo)(nil)

type PostgresIllustrationRepo struct {
	pool *pgxpool.Pool
}

func NewPostgresIllustrationRepo(pool *pgxpool.Pool) *PostgresIllustrationRepo {
	return &PostgresIllustrationRepo{pool: pool}
}

const illustrationColumns = `id, user_id, team_id, prompt, style_kind, style_id, style_name, status,
  width, height, credits_used, model_to_use, model_used, image_url, thumbnail_url,
  generation_time, final_prompt, error, created_at, processing_started_at, completed_at,
  failed_at, version`

// Create always stores the record as queued with version 1.
func (r *PostgresIllustrationRepo) Create(ctx context.Context, tx repository.Tx, il *model.Illustration) error {
	const q = `
INSERT INTO illustrations (
  id, user_id, team_id, prompt, style_kind, style_id, style_name, status,
  width, height, credits_used, created_at, status_changed_at, version
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$12,1);`
	il.Status = model.IllustrationQueued
	il.Version = 1
	_, err := execSQL(ctx, r.pool, tx, q,
		il.ID, il.UserID, il.TeamID, il.Prompt, string(il.Style.Kind), il.Style.ID, il.StyleName, string(il.Status),
		il.Width, il.Height, il.CreditsUsed, il.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrAlreadyExists
		}
		return fmt.Errorf("insert illustration: %w", err)
	}
	return nil
}

func (r *PostgresIllustrationRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Illustration, error) {
	row := pickRow(ctx, r.pool, tx, `SELECT `+illustrationColumns+` FROM illustrations WHERE id=$1;`, id)
	return scanIllustration(row)
}

// Transition is a single conditional UPDATE. Result fields are overwritten
// when set in the patch; timestamps keep their first value.
func (r *PostgresIllustrationRepo) Transition(ctx context.Context, tx repository.Tx, id string, from, to model.IllustrationStatus, p model.IllustrationPatch) (*model.Illustration, error) {
	if !from.CanTransition(to) {
		return nil, domain.ErrInvalidTransition
	}
	const q = `
UPDATE illustrations SET
  status                = $3,
  model_to_use          = COALESCE($4::text, model_to_use),
  model_used            = COALESCE($5::text, model_used),
  image_url             = COALESCE($6::text, image_url),
  thumbnail_url         = COALESCE($7::text, thumbnail_url),
  generation_time       = COALESCE($8::integer, generation_time),
  final_prompt          = COALESCE($9::text, final_prompt),
  error                 = COALESCE($10::text, error),
  processing_started_at = COALESCE(processing_started_at, $11::timestamptz),
  completed_at          = COALESCE(completed_at, $12::timestamptz),
  failed_at             = COALESCE(failed_at, $13::timestamptz),
  status_changed_at     = now(),
  version               = version + 1
WHERE id = $1 AND status = $2
RETURNING ` + illustrationColumns + `;`
	row := pickRow(ctx, r.pool, tx, q, id, string(from), string(to),
		p.ModelToUse, p.ModelUsed, p.ImageURL, p.ThumbnailURL, p.GenerationTime, p.FinalPrompt, p.Error,
		p.ProcessingStartedAt, p.CompletedAt, p.FailedAt)
	il, err := scanIllustration(row)
	if err == nil {
		return il, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("transition illustration %s: %w", id, err)
	}
	// no row: either the id is unknown or the status moved on
	if _, ferr := r.FindByID(ctx, tx, id); ferr != nil {
		return nil, ferr
	}
	return nil, domain.ErrConflict
}

func (r *PostgresIllustrationRepo) ListStale(ctx context.Context, tx repository.Tx, status model.IllustrationStatus, olderThan time.Time, limit int) ([]*model.Illustration, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := query(ctx, r.pool, tx, `
SELECT `+illustrationColumns+` FROM illustrations
 WHERE status=$1 AND status_changed_at < $2
 ORDER BY status_changed_at LIMIT $3;`, string(status), olderThan, limit)
	if err != nil {
		return nil, fmt.Errorf("list stale illustrations: %w", err)
	}
	defer rows.Close()
	var out []*model.Illustration
	for rows.Next() {
		il, err := scanIllustration(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, il)
	}
	return out, rows.Err()
}

func scanIllustration(row pgx.Row) (*model.Illustration, error) {
	var (
		il           model.Illustration
		kind, status string
	)
	err := row.Scan(&il.ID, &il.UserID, &il.TeamID, &il.Prompt, &kind, &il.Style.ID, &il.StyleName, &status,
		&il.Width, &il.Height, &il.CreditsUsed, &il.ModelToUse, &il.ModelUsed, &il.ImageURL, &il.ThumbnailURL,
		&il.GenerationTime, &il.FinalPrompt, &il.Error, &il.CreatedAt, &il.ProcessingStartedAt, &il.CompletedAt,
		&il.FailedAt, &il.Version)
	if err != nil {
		return nil, notFound(err)
	}
	il.Style.Kind = model.StyleKind(kind)
	il.Status = model.IllustrationStatus(status)
	return &il, nil
}
