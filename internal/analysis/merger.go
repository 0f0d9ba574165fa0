package analysis

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"anysnap/internal/models"
	"anysnap/internal/providers"
)

// AnnotationStore is the persistence contract the merger writes through.
// Each replace call is atomic for its (image, category=AI, service[,
// feature]) key.
type AnnotationStore interface {
	ReplaceTags(ctx context.Context, imageID string, service models.Service, tags []models.Tag) error
	ReplaceResults(ctx context.Context, imageID string, service models.Service, feature models.Feature, results []models.Result) error
}

// Merger applies idempotent replace-on-reanalyze semantics: for every
// feature kind an adapter owns, the previous machine batch is retired and
// the new one inserted, even when the new one is empty. Human annotations
// are outside its reach entirely.
type Merger struct {
	store AnnotationStore
	log   zerolog.Logger
}

func NewMerger(store AnnotationStore, log zerolog.Logger) *Merger {
	return &Merger{store: store, log: log}
}

func (m *Merger) Merge(ctx context.Context, imageID string, batch providers.Batch) error {
	for feature, records := range batch.Features {
		if feature == models.FeatureTag {
			if err := m.store.ReplaceTags(ctx, imageID, batch.Service, tagsFrom(imageID, batch.Service, records)); err != nil {
				return fmt.Errorf("replace tags %s: %w", batch.Service, err)
			}
			continue
		}
		if err := m.store.ReplaceResults(ctx, imageID, batch.Service, feature, resultsFrom(imageID, batch.Service, feature, records)); err != nil {
			return fmt.Errorf("replace results %s/%s: %w", batch.Service, feature, err)
		}
	}

	m.log.Debug().
		Str("image_id", imageID).
		Str("provider", string(batch.Service)).
		Int("records", batch.Len()).
		Msg("batch merged")
	return nil
}

func tagsFrom(imageID string, service models.Service, records []providers.Record) []models.Tag {
	tags := make([]models.Tag, 0, len(records))
	for _, rec := range records {
		tags = append(tags, models.Tag{
			ImageID:  imageID,
			Name:     rec.Name,
			Score:    rec.Score,
			Category: models.CategoryAI,
			Service:  service,
			Locale:   rec.Locale,
			IsValid:  true,
			Payload:  rec.Payload,
		})
	}
	return tags
}

func resultsFrom(imageID string, service models.Service, feature models.Feature, records []providers.Record) []models.Result {
	results := make([]models.Result, 0, len(records))
	for _, rec := range records {
		var name *string
		if rec.Name != "" {
			n := rec.Name
			name = &n
		}
		results = append(results, models.Result{
			ImageID:  imageID,
			Name:     name,
			Category: models.CategoryAI,
			Service:  service,
			Feature:  feature,
			Locale:   rec.Locale,
			IsValid:  true,
			Payload:  rec.Payload,
		})
	}
	return results
}
