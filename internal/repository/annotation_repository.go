package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/segmentio/ksuid"

	"anysnap/internal/models"
)

// AnnotationRepository stores machine and human annotations for images. All
// replace operations are scoped to (image, category, service[, feature]) and
// never touch human-supplied rows.
type AnnotationRepository struct {
	pool *pgxpool.Pool

	// structuredPayload mirrors the store's capability to hold raw provider
	// payloads; when false the payload column is left NULL.
	structuredPayload bool
}

func NewAnnotationRepository(pool *pgxpool.Pool, structuredPayload bool) *AnnotationRepository {
	return &AnnotationRepository{pool: pool, structuredPayload: structuredPayload}
}

// ReplaceTags atomically retires the current machine tags for (imageID,
// service) and inserts the new batch. An empty batch clears the key.
func (r *AnnotationRepository) ReplaceTags(ctx context.Context, imageID string, service models.Service, tags []models.Tag) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		const del = `
			DELETE FROM tags
			WHERE image_id = $1 AND category = $2 AND service = $3 AND is_valid
		`
		if _, err := tx.Exec(ctx, del, imageID, models.CategoryAI, service); err != nil {
			return fmt.Errorf("retire tags: %w", err)
		}

		const ins = `
			INSERT INTO tags (
				id, image_id, name, score, category, service, locale, is_valid,
				payload, created_at, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, TRUE, $8, NOW(), NOW())
		`
		for i := range tags {
			t := &tags[i]
			if t.ID == "" {
				t.ID = ksuid.New().String()
			}
			if _, err := tx.Exec(ctx, ins,
				t.ID, imageID, t.Name, t.Score, models.CategoryAI, service,
				t.Locale, r.payload(t.Payload),
			); err != nil {
				return fmt.Errorf("insert tag: %w", err)
			}
		}
		return nil
	})
}

// ReplaceResults atomically retires the current machine results for (imageID,
// service, feature) and inserts the new batch.
func (r *AnnotationRepository) ReplaceResults(ctx context.Context, imageID string, service models.Service, feature models.Feature, results []models.Result) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		const del = `
			DELETE FROM results
			WHERE image_id = $1 AND category = $2 AND service = $3 AND feature = $4 AND is_valid
		`
		if _, err := tx.Exec(ctx, del, imageID, models.CategoryAI, service, feature); err != nil {
			return fmt.Errorf("retire results: %w", err)
		}

		const ins = `
			INSERT INTO results (
				id, image_id, name, category, service, feature, locale, is_valid,
				payload, created_at, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, TRUE, $8, NOW(), NOW())
		`
		for i := range results {
			res := &results[i]
			if res.ID == "" {
				res.ID = ksuid.New().String()
			}
			if _, err := tx.Exec(ctx, ins,
				res.ID, imageID, res.Name, models.CategoryAI, service, feature,
				res.Locale, r.payload(res.Payload),
			); err != nil {
				return fmt.Errorf("insert result: %w", err)
			}
		}
		return nil
	})
}

// ListValidTags returns the currently valid tags for an image ordered by
// descending score.
func (r *AnnotationRepository) ListValidTags(ctx context.Context, imageID string) ([]models.Tag, error) {
	const query = `
		SELECT id, image_id, name, score, category, service, locale, is_valid,
		       payload, created_at, updated_at
		FROM tags
		WHERE image_id = $1 AND is_valid
		ORDER BY score DESC NULLS LAST, name ASC
	`
	rows, err := r.pool.Query(ctx, query, imageID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tags []models.Tag
	for rows.Next() {
		var t models.Tag
		if err := rows.Scan(
			&t.ID, &t.ImageID, &t.Name, &t.Score, &t.Category, &t.Service,
			&t.Locale, &t.IsValid, &t.Payload, &t.CreatedAt, &t.UpdatedAt,
		); err != nil {
			return nil, err
		}
		tags = append(tags, t)
	}
	return tags, rows.Err()
}

// ListValidResults returns the currently valid results for an image.
func (r *AnnotationRepository) ListValidResults(ctx context.Context, imageID string) ([]models.Result, error) {
	const query = `
		SELECT id, image_id, name, category, service, feature, locale, is_valid,
		       payload, created_at, updated_at
		FROM results
		WHERE image_id = $1 AND is_valid
		ORDER BY feature ASC, created_at ASC
	`
	rows, err := r.pool.Query(ctx, query, imageID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []models.Result
	for rows.Next() {
		var res models.Result
		if err := rows.Scan(
			&res.ID, &res.ImageID, &res.Name, &res.Category, &res.Service,
			&res.Feature, &res.Locale, &res.IsValid, &res.Payload,
			&res.CreatedAt, &res.UpdatedAt,
		); err != nil {
			return nil, err
		}
		results = append(results, res)
	}
	return results, rows.Err()
}

// TagNames returns the valid tag names for an image ordered by score.
func (r *AnnotationRepository) TagNames(ctx context.Context, imageID string) ([]string, error) {
	tags, err := r.ListValidTags(ctx, imageID)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(tags))
	for i := range tags {
		names = append(names, tags[i].Name)
	}
	return names, nil
}

func (r *AnnotationRepository) payload(raw []byte) []byte {
	if !r.structuredPayload || len(raw) == 0 {
		return nil
	}
	return raw
}
