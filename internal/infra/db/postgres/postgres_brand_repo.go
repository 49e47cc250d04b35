package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"mediaforge/internal/domain"
	"mediaforge/internal/domain/model"
	"mediaforge/internal/domain/ports/repository"
)

var _ repository.BrandRepository = (*PostgresBrandRepo)(nil)

type PostgresBrandRepo struct {
	pool *pgxpool.Pool
}

func NewPostgresBrandRepo(pool *pgxpool.Pool) *PostgresBrandRepo {
	return &PostgresBrandRepo{pool: pool}
}

const brandColumns = `id, user_id, team_id, name, colors, style, status, training_images, image_count,
  training_job_id, training_data_path, model_artifact, training_duration, error, created_at,
  training_started_at, training_completed_at, failed_at, version`

func (r *PostgresBrandRepo) Create(ctx context.Context, tx repository.Tx, b *model.Brand) error {
	colors, err := json.Marshal(nonNilColors(b.Colors))
	if err != nil {
		return fmt.Errorf("encode brand colors: %w", err)
	}
	images := b.TrainingImages
	if images == nil {
		images = []string{}
	}
	b.Status = model.BrandPreparing
	b.Version = 1
	_, err = execSQL(ctx, r.pool, tx, `
INSERT INTO brands (
  id, user_id, team_id, name, colors, style, status, training_images, image_count,
  created_at, status_changed_at, version
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$10,1);`,
		b.ID, b.UserID, b.TeamID, b.Name, colors, b.Style, string(b.Status), images, b.ImageCount, b.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrAlreadyExists
		}
		return fmt.Errorf("insert brand: %w", err)
	}
	return nil
}

func (r *PostgresBrandRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Brand, error) {
	return scanBrand(pickRow(ctx, r.pool, tx, `SELECT `+brandColumns+` FROM brands WHERE id=$1;`, id))
}

func (r *PostgresBrandRepo) Transition(ctx context.Context, tx repository.Tx, id string, from, to model.BrandStatus, p model.BrandPatch) (*model.Brand, error) {
	if !from.CanTransition(to) {
		return nil, domain.ErrInvalidTransition
	}
	const q = `
UPDATE brands SET
  status                = $3,
  training_job_id       = COALESCE($4::text, training_job_id),
  training_data_path    = COALESCE($5::text, training_data_path),
  model_artifact        = COALESCE($6::text, model_artifact),
  training_duration     = COALESCE($7::integer, training_duration),
  error                 = COALESCE($8::text, error),
  training_started_at   = COALESCE(training_started_at, $9::timestamptz),
  training_completed_at = COALESCE(training_completed_at, $10::timestamptz),
  failed_at             = COALESCE(failed_at, $11::timestamptz),
  status_changed_at     = now(),
  version               = version + 1
WHERE id = $1 AND status = $2
RETURNING ` + brandColumns + `;`
	b, err := scanBrand(pickRow(ctx, r.pool, tx, q, id, string(from), string(to),
		p.TrainingJobID, p.TrainingDataPath, p.ModelArtifact, p.TrainingDuration, p.Error,
		p.TrainingStartedAt, p.TrainingCompletedAt, p.FailedAt))
	if err == nil {
		return b, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("transition brand %s: %w", id, err)
	}
	if _, ferr := r.FindByID(ctx, tx, id); ferr != nil {
		return nil, ferr
	}
	return nil, domain.ErrConflict
}

func (r *PostgresBrandRepo) ListStale(ctx context.Context, tx repository.Tx, status model.BrandStatus, olderThan time.Time, limit int) ([]*model.Brand, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := query(ctx, r.pool, tx, `
SELECT `+brandColumns+` FROM brands
 WHERE status=$1 AND status_changed_at < $2
 ORDER BY status_changed_at LIMIT $3;`, string(status), olderThan, limit)
	if err != nil {
		return nil, fmt.Errorf("list stale brands: %w", err)
	}
	defer rows.Close()
	var out []*model.Brand
	for rows.Next() {
		b, err := scanBrand(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func nonNilColors(c []model.BrandColor) []model.BrandColor {
	if c == nil {
		return []model.BrandColor{}
	}
	return c
}

func scanBrand(row pgx.Row) (*model.Brand, error) {
	var (
		b      model.Brand
		colors []byte
		status string
	)
	err := row.Scan(&b.ID, &b.UserID, &b.TeamID, &b.Name, &colors, &b.Style, &status, &b.TrainingImages, &b.ImageCount,
		&b.TrainingJobID, &b.TrainingDataPath, &b.ModelArtifact, &b.TrainingDuration, &b.Error, &b.CreatedAt,
		&b.TrainingStartedAt, &b.TrainingCompletedAt, &b.FailedAt, &b.Version)
	if err != nil {
		return nil, notFound(err)
	}
	if len(colors) > 0 {
		if err := json.Unmarshal(colors, &b.Colors); err != nil {
			return nil, fmt.Errorf("decode brand colors: %w", err)
		}
	}
	b.Status = model.BrandStatus(status)
	return &b, nil
}
