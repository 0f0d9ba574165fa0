package analysis

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"anysnap/internal/models"
	"anysnap/internal/providers"
)

// memAnnotationStore mimics the replace-key semantics of the SQL store: a
// replace retires only machine rows of the given service (and feature) and
// leaves everything else alone.
type memAnnotationStore struct {
	tags    []models.Tag
	results []models.Result
}

func (s *memAnnotationStore) ReplaceTags(_ context.Context, imageID string, service models.Service, tags []models.Tag) error {
	kept := s.tags[:0]
	for _, tag := range s.tags {
		if tag.ImageID == imageID && tag.Category == models.CategoryAI && tag.Service == service {
			continue
		}
		kept = append(kept, tag)
	}
	s.tags = append(kept, tags...)
	return nil
}

func (s *memAnnotationStore) ReplaceResults(_ context.Context, imageID string, service models.Service, feature models.Feature, results []models.Result) error {
	kept := s.results[:0]
	for _, res := range s.results {
		if res.ImageID == imageID && res.Category == models.CategoryAI && res.Service == service && res.Feature == feature {
			continue
		}
		kept = append(kept, res)
	}
	s.results = append(kept, results...)
	return nil
}

func labelBatch(service models.Service, names ...string) providers.Batch {
	batch := providers.NewBatch(service, models.FeatureTag)
	for _, name := range names {
		batch.Add(providers.Record{Feature: models.FeatureTag, Name: name, Locale: "en"})
	}
	return batch
}

func TestMerger_Merge_ReplacesPriorMachineBatch(t *testing.T) {
	store := &memAnnotationStore{}
	merger := NewMerger(store, zerolog.Nop())

	require.NoError(t, merger.Merge(context.Background(), "img-1", labelBatch(models.ServiceVision, "cat", "animal")))
	require.Len(t, store.tags, 2)

	require.NoError(t, merger.Merge(context.Background(), "img-1", labelBatch(models.ServiceVision, "dog")))
	require.Len(t, store.tags, 1)
	assert.Equal(t, "dog", store.tags[0].Name)
	assert.Equal(t, models.CategoryAI, store.tags[0].Category)
	assert.True(t, store.tags[0].IsValid)
}

func TestMerger_Merge_Idempotent(t *testing.T) {
	store := &memAnnotationStore{}
	merger := NewMerger(store, zerolog.Nop())

	batch := labelBatch(models.ServiceVision, "cat", "animal")
	require.NoError(t, merger.Merge(context.Background(), "img-1", batch))
	require.NoError(t, merger.Merge(context.Background(), "img-1", batch))

	assert.Len(t, store.tags, 2)
}

func TestMerger_Merge_LeavesHumanAndSiblingRows(t *testing.T) {
	store := &memAnnotationStore{
		tags: []models.Tag{
			{ImageID: "img-1", Name: "curated", Category: models.CategoryHuman, Service: models.ServiceVision},
			{ImageID: "img-1", Name: "skyline", Category: models.CategoryAI, Service: models.ServiceCognitive},
			{ImageID: "img-2", Name: "other-image", Category: models.CategoryAI, Service: models.ServiceVision},
		},
	}
	merger := NewMerger(store, zerolog.Nop())

	require.NoError(t, merger.Merge(context.Background(), "img-1", labelBatch(models.ServiceVision, "dog")))

	names := make([]string, 0, len(store.tags))
	for _, tag := range store.tags {
		names = append(names, tag.Name)
	}
	assert.ElementsMatch(t, []string{"curated", "skyline", "other-image", "dog"}, names)
}

func TestMerger_Merge_EmptySubBatchClears(t *testing.T) {
	store := &memAnnotationStore{
		tags: []models.Tag{
			{ImageID: "img-1", Name: "stale", Category: models.CategoryAI, Service: models.ServiceVision},
		},
	}
	merger := NewMerger(store, zerolog.Nop())

	empty := providers.NewBatch(models.ServiceVision, models.FeatureTag)
	require.NoError(t, merger.Merge(context.Background(), "img-1", empty))

	assert.Empty(t, store.tags)
}

func TestMerger_Merge_RoutesByFeatureKind(t *testing.T) {
	store := &memAnnotationStore{}
	merger := NewMerger(store, zerolog.Nop())

	batch := providers.NewBatch(models.ServiceCognitive, models.FeatureTag, models.FeatureFace)
	batch.Add(providers.Record{Feature: models.FeatureTag, Name: "portrait", Locale: "en"})
	batch.Add(providers.Record{Feature: models.FeatureFace, Locale: "en", Payload: []byte(`{"age": 30}`)})

	require.NoError(t, merger.Merge(context.Background(), "img-1", batch))

	require.Len(t, store.tags, 1)
	assert.Equal(t, "portrait", store.tags[0].Name)

	require.Len(t, store.results, 1)
	assert.Equal(t, models.FeatureFace, store.results[0].Feature)
	assert.Nil(t, store.results[0].Name)
	assert.Equal(t, models.ServiceCognitive, store.results[0].Service)
}
