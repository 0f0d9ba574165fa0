package jobs

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"anysnap/internal/analysis"
	"anysnap/internal/models"
)

const staleBatchLimit = 200

type StaleImageLister interface {
	ListStaleAnalyzed(ctx context.Context, cutoff time.Time, limit int) ([]models.Image, error)
}

// Scheduler re-dispatches analysis for public images whose annotations
// have gone stale. Providers improve over time; a weekly pass keeps old
// uploads in step with them.
type Scheduler struct {
	cron       *cron.Cron
	images     StaleImageLister
	dispatcher *analysis.Dispatcher
	interval   time.Duration
	log        zerolog.Logger
}

func NewScheduler(images StaleImageLister, dispatcher *analysis.Dispatcher, interval time.Duration, log zerolog.Logger) *Scheduler {
	c := cron.New(cron.WithSeconds())
	return &Scheduler{
		cron:       c,
		images:     images,
		dispatcher: dispatcher,
		interval:   interval,
		log:        log,
	}
}

func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc("0 0 */1 * * *", s.reanalyzeStale); err != nil { // hourly sweep
		return err
	}

	s.cron.Start()
	return nil
}

func (s *Scheduler) Stop() context.CancelFunc {
	_, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	go func() {
		s.cron.Stop()
		cancel()
	}()
	return cancel
}

func (s *Scheduler) reanalyzeStale() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	cutoff := time.Now().Add(-s.interval)
	images, err := s.images.ListStaleAnalyzed(ctx, cutoff, staleBatchLimit)
	if err != nil {
		s.log.Error().Err(err).Msg("list stale images failed")
		return
	}

	for _, img := range images {
		if _, err := s.dispatcher.Dispatch(ctx, img.ID, true); err != nil {
			s.log.Warn().Err(err).Str("image_id", img.ID).Msg("reanalyze dispatch failed")
		}
	}

	if len(images) > 0 {
		s.log.Info().Int("count", len(images)).Msg("stale images re-dispatched")
	}
}
