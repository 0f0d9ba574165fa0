package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"anysnap/internal/models"
)

var ErrImageNotFound = errors.New("image not found")

type ImageRepository struct {
	pool *pgxpool.Pool
}

func NewImageRepository(pool *pgxpool.Pool) *ImageRepository {
	return &ImageRepository{pool: pool}
}

const imageColumns = `
	id, user_id, url, original_uri, is_recommended, is_master, is_public,
	is_analyzed, is_synced, is_banned, is_deleted, created_at, updated_at
`

func (r *ImageRepository) Create(ctx context.Context, image models.Image) error {
	const query = `
		INSERT INTO images (
			id, user_id, url, original_uri, is_recommended, is_master, is_public,
			is_analyzed, is_synced, is_banned, is_deleted, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW(), NOW()
		)
	`

	_, err := r.pool.Exec(ctx, query,
		image.ID,
		image.UserID,
		image.URL,
		image.OriginalURI,
		image.IsRecommended,
		image.IsMaster,
		image.IsPublic,
		image.IsAnalyzed,
		image.IsSynced,
		image.IsBanned,
		image.IsDeleted,
	)
	return err
}

func (r *ImageRepository) GetByID(ctx context.Context, id string) (models.Image, error) {
	const query = `SELECT ` + imageColumns + ` FROM images WHERE id = $1 AND NOT is_deleted`

	row := r.pool.QueryRow(ctx, query, id)
	image, err := scanImage(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Image{}, ErrImageNotFound
		}
		return models.Image{}, err
	}
	return image, nil
}

func (r *ImageRepository) SetUser(ctx context.Context, imageID, userID string) error {
	const query = `UPDATE images SET user_id = $2, updated_at = NOW() WHERE id = $1`
	_, err := r.pool.Exec(ctx, query, imageID, userID)
	return err
}

func (r *ImageRepository) MarkAnalyzed(ctx context.Context, imageID string) error {
	const query = `UPDATE images SET is_analyzed = TRUE, updated_at = NOW() WHERE id = $1`
	_, err := r.pool.Exec(ctx, query, imageID)
	return err
}

func (r *ImageRepository) MarkSynced(ctx context.Context, imageID string) error {
	const query = `UPDATE images SET is_synced = TRUE, updated_at = NOW() WHERE id = $1`
	_, err := r.pool.Exec(ctx, query, imageID)
	return err
}

func (r *ImageRepository) SoftDelete(ctx context.Context, imageID string) error {
	const query = `UPDATE images SET is_deleted = TRUE, updated_at = NOW() WHERE id = $1`
	_, err := r.pool.Exec(ctx, query, imageID)
	return err
}

func (r *ImageRepository) ListRecommended(ctx context.Context) ([]models.Image, error) {
	const query = `
		SELECT ` + imageColumns + `
		FROM images
		WHERE is_recommended AND NOT is_deleted
		ORDER BY created_at DESC
	`
	return r.list(ctx, query)
}

func (r *ImageRepository) ListPublic(ctx context.Context) ([]models.Image, error) {
	const query = `
		SELECT ` + imageColumns + `
		FROM images
		WHERE is_public AND NOT is_banned AND NOT is_deleted
		ORDER BY created_at DESC
	`
	return r.list(ctx, query)
}

func (r *ImageRepository) ListByUser(ctx context.Context, userID string) ([]models.Image, error) {
	const query = `
		SELECT ` + imageColumns + `
		FROM images
		WHERE user_id = $1 AND NOT is_deleted
		ORDER BY created_at DESC
	`
	return r.list(ctx, query, userID)
}

// ListStaleAnalyzed returns public analyzed images that have not been touched
// since the cutoff; the scheduler re-runs analysis for them.
func (r *ImageRepository) ListStaleAnalyzed(ctx context.Context, cutoff time.Time, limit int) ([]models.Image, error) {
	const query = `
		SELECT ` + imageColumns + `
		FROM images
		WHERE is_public AND is_analyzed AND NOT is_banned AND NOT is_deleted
		  AND updated_at < $1
		ORDER BY updated_at ASC
		LIMIT $2
	`
	return r.list(ctx, query, cutoff, limit)
}

func (r *ImageRepository) list(ctx context.Context, query string, args ...any) ([]models.Image, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var images []models.Image
	for rows.Next() {
		image, err := scanImage(rows)
		if err != nil {
			return nil, err
		}
		images = append(images, image)
	}
	return images, rows.Err()
}

func scanImage(row pgx.Row) (models.Image, error) {
	var image models.Image
	err := row.Scan(
		&image.ID,
		&image.UserID,
		&image.URL,
		&image.OriginalURI,
		&image.IsRecommended,
		&image.IsMaster,
		&image.IsPublic,
		&image.IsAnalyzed,
		&image.IsSynced,
		&image.IsBanned,
		&image.IsDeleted,
		&image.CreatedAt,
		&image.UpdatedAt,
	)
	return image, err
}
