package analysis

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"anysnap/internal/models"
	"anysnap/internal/providers"
)

// ImageStore is the slice of image persistence the pipeline needs.
type ImageStore interface {
	GetByID(ctx context.Context, id string) (models.Image, error)
	MarkAnalyzed(ctx context.Context, imageID string) error
}

// ByteFetcher hands out the raw image bytes, reusing a prior download when
// one is still cached.
type ByteFetcher interface {
	Fetch(ctx context.Context, imageID, url string) ([]byte, error)
}

// TaskQueue schedules a unit of work and returns an opaque task reference.
type TaskQueue interface {
	Enqueue(ctx context.Context, values map[string]any) (string, error)
}

// HookScheduler fires the completion hooks after a persisted merge. Hook
// failures never surface to the adapter run.
type HookScheduler interface {
	AfterMerge(ctx context.Context, img models.Image, jobID string)
}

// AdapterSet is the configured provider fleet: one synchronous adapter run
// inside the dispatch call, the rest scheduled on the queue.
type AdapterSet struct {
	Sync  providers.Adapter
	Async map[string]providers.Adapter
}

// Runner executes one provider adapter end to end: payload, provider call,
// merge, hooks. It is shared by the dispatcher (sync adapter) and the
// worker (async adapters).
type Runner struct {
	images  ImageStore
	merger  *Merger
	fetcher ByteFetcher
	hooks   HookScheduler
	log     zerolog.Logger
}

func NewRunner(images ImageStore, merger *Merger, fetcher ByteFetcher, hooks HookScheduler, log zerolog.Logger) *Runner {
	return &Runner{
		images:  images,
		merger:  merger,
		fetcher: fetcher,
		hooks:   hooks,
		log:     log,
	}
}

// RunAdapter calls one provider and, when persist is set, merges its batch
// and schedules the completion hooks. Provider errors come back to the
// caller with an empty batch; they carry no weight beyond this adapter.
func (r *Runner) RunAdapter(ctx context.Context, adapter providers.Adapter, img models.Image, jobID string, persist bool) (providers.Batch, error) {
	logger := r.log.With().
		Str("image_id", img.ID).
		Str("provider", string(adapter.Service())).
		Str("job_id", jobID).
		Logger()

	payload := providers.ImagePayload{ImageID: img.ID, URL: img.URL}
	if adapter.WantsBytes() {
		data, err := r.fetcher.Fetch(ctx, img.ID, img.URL)
		if err != nil {
			// The adapter may still manage with the URL alone.
			logger.Warn().Err(err).Msg("image bytes unavailable")
		}
		payload.Bytes = data
	}

	batch, err := adapter.Run(ctx, payload)
	if err != nil {
		switch {
		case errors.Is(err, providers.ErrMalformed):
			logger.Error().Err(err).Msg("provider response malformed")
		default:
			logger.Error().Err(err).Msg("provider unavailable")
		}
		return batch, err
	}

	logger.Info().Int("records", batch.Len()).Msg("provider response normalized")

	if !persist {
		return batch, nil
	}

	if err := r.merger.Merge(ctx, img.ID, batch); err != nil {
		logger.Error().Err(err).Msg("merge failed")
		return batch, err
	}

	if err := r.images.MarkAnalyzed(ctx, img.ID); err != nil {
		logger.Warn().Err(err).Msg("mark analyzed failed")
	}

	r.hooks.AfterMerge(ctx, img, jobID)
	return batch, nil
}

// QueueHookScheduler schedules the mirror-sync and notify hooks as
// independent queue tasks.
type QueueHookScheduler struct {
	queue TaskQueue
	log   zerolog.Logger
}

func NewQueueHookScheduler(queue TaskQueue, log zerolog.Logger) *QueueHookScheduler {
	return &QueueHookScheduler{queue: queue, log: log}
}

func (s *QueueHookScheduler) AfterMerge(ctx context.Context, img models.Image, jobID string) {
	if _, err := s.queue.Enqueue(ctx, map[string]any{
		"type":    TaskMirror,
		"imageId": img.ID,
	}); err != nil {
		s.log.Error().Err(err).Str("image_id", img.ID).Msg("enqueue mirror hook failed")
	}

	if _, err := s.queue.Enqueue(ctx, map[string]any{
		"type":    TaskNotify,
		"imageId": img.ID,
		"jobId":   jobID,
	}); err != nil {
		s.log.Error().Err(err).Str("image_id", img.ID).Msg("enqueue notify hook failed")
	}
}

// Task type values on the analysis stream.
const (
	TaskAnalyze = "analyze"
	TaskMirror  = "mirror"
	TaskNotify  = "notify"
)
