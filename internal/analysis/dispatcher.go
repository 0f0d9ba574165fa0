package analysis

import (
	"context"
	"strconv"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Dispatcher is the entry point of the pipeline. Dispatch schedules every
// async adapter on the queue, runs the one synchronous adapter in place and
// returns as soon as scheduling is done. The only error it can surface is
// an unknown image.
type Dispatcher struct {
	images   ImageStore
	queue    TaskQueue
	status   *StatusTracker
	fetcher  ByteFetcher
	runner   *Runner
	adapters AdapterSet
	log      zerolog.Logger
}

func NewDispatcher(images ImageStore, queue TaskQueue, status *StatusTracker, fetcher ByteFetcher, runner *Runner, adapters AdapterSet, log zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		images:   images,
		queue:    queue,
		status:   status,
		fetcher:  fetcher,
		runner:   runner,
		adapters: adapters,
		log:      log,
	}
}

func (d *Dispatcher) Dispatch(ctx context.Context, imageID string, persist bool) (JobHandle, error) {
	img, err := d.images.GetByID(ctx, imageID)
	if err != nil {
		return JobHandle{}, err
	}

	jobID := uuid.NewString()
	logger := d.log.With().Str("image_id", imageID).Str("job_id", jobID).Logger()

	// Warm the byte cache once so async adapters reuse this download.
	if _, err := d.fetcher.Fetch(ctx, img.ID, img.URL); err != nil {
		logger.Warn().Err(err).Msg("image prefetch failed")
	}

	handle := JobHandle{JobID: jobID}
	for name := range d.adapters.Async {
		taskID, err := d.queue.Enqueue(ctx, map[string]any{
			"type":     TaskAnalyze,
			"imageId":  img.ID,
			"provider": name,
			"persist":  strconv.FormatBool(persist),
			"jobId":    jobID,
		})
		if err != nil {
			logger.Error().Err(err).Str("provider", name).Msg("enqueue analyze task failed")
			continue
		}
		handle.TaskIDs = append(handle.TaskIDs, taskID)
	}

	if err := d.status.Put(ctx, imageID, handle); err != nil {
		logger.Warn().Err(err).Msg("status registration failed")
	}

	// The fingerprint adapter runs synchronously: it posts the raw bytes we
	// just fetched and its matches are wanted right away. Its failure stays
	// its own.
	if d.adapters.Sync != nil {
		if _, err := d.runner.RunAdapter(ctx, d.adapters.Sync, img, jobID, persist); err != nil {
			logger.Warn().Err(err).Msg("synchronous adapter failed")
		}
	}

	logger.Info().Int("scheduled", len(handle.TaskIDs)).Bool("persist", persist).Msg("analysis dispatched")
	return handle, nil
}
