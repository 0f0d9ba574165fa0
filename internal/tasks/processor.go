package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"anysnap/internal/analysis"
	"anysnap/internal/hooks"
	"anysnap/internal/providers"
	"anysnap/internal/repository"
)

// Processor executes queue tasks on the worker side: async provider
// adapters and the two completion hooks. A task failure is logged and
// dropped; the design has no automatic retry.
type Processor struct {
	images   analysis.ImageStore
	runner   *analysis.Runner
	adapters map[string]providers.Adapter
	mirror   *hooks.MirrorHook
	notify   *hooks.NotifyHook
	logger   zerolog.Logger
}

type TaskPayload struct {
	Type     string `json:"type"`
	ImageID  string `json:"imageId"`
	Provider string `json:"provider"`
	Persist  string `json:"persist"`
	JobID    string `json:"jobId"`
}

func NewProcessor(images analysis.ImageStore, runner *analysis.Runner, adapters map[string]providers.Adapter, mirror *hooks.MirrorHook, notify *hooks.NotifyHook, logger zerolog.Logger) *Processor {
	return &Processor{
		images:   images,
		runner:   runner,
		adapters: adapters,
		mirror:   mirror,
		notify:   notify,
		logger:   logger,
	}
}

func (p *Processor) Handle(ctx context.Context, msg redis.XMessage) error {
	var payload TaskPayload
	if err := decodePayload(msg.Values, &payload); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}

	switch payload.Type {
	case analysis.TaskAnalyze:
		return p.handleAnalyze(ctx, payload)
	case analysis.TaskMirror:
		return p.handleMirror(ctx, payload)
	case analysis.TaskNotify:
		return p.handleNotify(ctx, payload)
	default:
		p.logger.Warn().Str("type", payload.Type).Msg("unknown task type")
		return nil
	}
}

func decodePayload(values map[string]interface{}, out *TaskPayload) error {
	raw, err := json.Marshal(values)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

func (p *Processor) handleAnalyze(ctx context.Context, payload TaskPayload) error {
	adapter, ok := p.adapters[payload.Provider]
	if !ok {
		p.logger.Warn().Str("provider", payload.Provider).Msg("unknown provider")
		return nil
	}

	img, err := p.images.GetByID(ctx, payload.ImageID)
	if err != nil {
		if errors.Is(err, repository.ErrImageNotFound) {
			p.logger.Warn().Str("image_id", payload.ImageID).Msg("image vanished before analysis")
			return nil
		}
		return fmt.Errorf("load image: %w", err)
	}

	persist := payload.Persist == "true"
	if _, err := p.runner.RunAdapter(ctx, adapter, img, payload.JobID, persist); err != nil {
		// Already logged by the runner; the failure stays with this
		// provider and the task is not retried.
		return nil
	}
	return nil
}

func (p *Processor) handleMirror(ctx context.Context, payload TaskPayload) error {
	if err := p.mirror.Sync(ctx, payload.ImageID); err != nil {
		p.logger.Error().Err(err).Str("image_id", payload.ImageID).Msg("mirror sync failed")
	}
	return nil
}

func (p *Processor) handleNotify(ctx context.Context, payload TaskPayload) error {
	img, err := p.images.GetByID(ctx, payload.ImageID)
	if err != nil {
		p.logger.Warn().Err(err).Str("image_id", payload.ImageID).Msg("image vanished before notify")
		return nil
	}
	if err := p.notify.Notify(ctx, img, payload.JobID); err != nil {
		p.logger.Error().Err(err).Str("image_id", payload.ImageID).Msg("notify failed")
	}
	return nil
}
