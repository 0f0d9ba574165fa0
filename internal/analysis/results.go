package analysis

import (
	"context"
	"encoding/json"
	"fmt"

	"anysnap/internal/models"
)

// AnnotationReader is the read side of annotation storage used to assemble
// the public document.
type AnnotationReader interface {
	ListValidTags(ctx context.Context, imageID string) ([]models.Tag, error)
	ListValidResults(ctx context.Context, imageID string) ([]models.Result, error)
}

// TagEntry is one tag in the grouped annotation document.
type TagEntry struct {
	Name  string   `json:"name"`
	Score *float64 `json:"score"`
}

// ResultEntry is one non-tag annotation in the grouped document.
type ResultEntry struct {
	Name     *string         `json:"name"`
	Category string          `json:"category"`
	Service  string          `json:"service"`
	Feature  string          `json:"feature"`
	Payload  json.RawMessage `json:"payload"`
}

// BuildDocument assembles the full current annotation set of an image:
// valid results grouped by feature kind, plus a "tag" list sorted by
// descending score with duplicate names collapsed to their best score.
// The same document feeds the annotations endpoint and the mirror hook.
func BuildDocument(ctx context.Context, reader AnnotationReader, imageID string) (map[string]any, error) {
	results, err := reader.ListValidResults(ctx, imageID)
	if err != nil {
		return nil, fmt.Errorf("list results: %w", err)
	}

	doc := make(map[string]any)
	for i := range results {
		res := &results[i]
		key := res.Feature.Display()
		entry := ResultEntry{
			Name:     res.Name,
			Category: string(res.Category),
			Service:  res.Service.Display(),
			Feature:  key,
			Payload:  json.RawMessage(res.Payload),
		}
		group, _ := doc[key].([]ResultEntry)
		doc[key] = append(group, entry)
	}

	tags, err := reader.ListValidTags(ctx, imageID)
	if err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}

	// Tags come back ordered by score desc, so keeping the first
	// occurrence of each name keeps its best score.
	seen := make(map[string]struct{}, len(tags))
	entries := make([]TagEntry, 0, len(tags))
	for i := range tags {
		tag := &tags[i]
		if _, dup := seen[tag.Name]; dup {
			continue
		}
		seen[tag.Name] = struct{}{}
		entries = append(entries, TagEntry{Name: tag.Name, Score: tag.Score})
	}
	doc["tag"] = entries

	return doc, nil
}
