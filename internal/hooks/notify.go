package hooks

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"anysnap/internal/config"
	"anysnap/internal/models"
)

// UserStore resolves the owning user of an image.
type UserStore interface {
	GetByID(ctx context.Context, id string) (models.User, error)
}

// NotificationStore records outgoing notifications and their delivery.
type NotificationStore interface {
	Create(ctx context.Context, n models.Notification) (models.Notification, error)
	MarkSent(ctx context.Context, id string) error
}

// Deduper grants one send per key within a window; used by the per-job
// notify policy.
type Deduper interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

type RedisDeduper struct {
	client *redis.Client
}

func NewRedisDeduper(client *redis.Client) *RedisDeduper {
	return &RedisDeduper{client: client}
}

func (d *RedisDeduper) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return d.client.SetNX(ctx, key, "1", ttl).Result()
}

// dedupWindow bounds how long a job id blocks repeat notifications; jobs
// themselves expire from the status tracker on the same order of time.
const dedupWindow = 10 * time.Minute

// NotifyHook sends a push notification to the image's owner once an
// adapter's annotations are durable. Delivery failure is not an error of
// the analysis: the notification row simply stays unsent.
type NotifyHook struct {
	cfg    config.NotifyConfig
	users  UserStore
	notes  NotificationStore
	dedup  Deduper
	client *http.Client
	log    zerolog.Logger
}

func NewNotifyHook(cfg config.NotifyConfig, users UserStore, notes NotificationStore, dedup Deduper, log zerolog.Logger) *NotifyHook {
	return &NotifyHook{
		cfg:    cfg,
		users:  users,
		notes:  notes,
		dedup:  dedup,
		client: &http.Client{Timeout: cfg.Timeout},
		log:    log,
	}
}

type pushRequest struct {
	AppID            string            `json:"app_id"`
	Contents         map[string]string `json:"contents"`
	IncludePlayerIDs []string          `json:"include_player_ids"`
	Data             map[string]string `json:"data"`
}

func (h *NotifyHook) Notify(ctx context.Context, img models.Image, jobID string) error {
	if img.UserID == nil {
		return nil
	}

	logger := h.log.With().Str("image_id", img.ID).Str("job_id", jobID).Logger()

	if h.cfg.Policy == config.NotifyPerJob && jobID != "" && h.dedup != nil {
		acquired, err := h.dedup.Acquire(ctx, "notify-sent:"+jobID, dedupWindow)
		if err != nil {
			logger.Warn().Err(err).Msg("notify dedup unavailable, sending anyway")
		} else if !acquired {
			logger.Debug().Msg("notification already sent for this job")
			return nil
		}
	}

	user, err := h.users.GetByID(ctx, *img.UserID)
	if err != nil {
		return fmt.Errorf("resolve user: %w", err)
	}
	if user.NotificationPlayerID == nil || *user.NotificationPlayerID == "" {
		return nil
	}

	push := pushRequest{
		AppID:            h.cfg.AppID,
		Contents:         map[string]string{"en": "Your image analysis is ready"},
		IncludePlayerIDs: []string{*user.NotificationPlayerID},
		Data:             map[string]string{"id": img.ID},
	}
	body, err := json.Marshal(push)
	if err != nil {
		return fmt.Errorf("marshal push: %w", err)
	}

	note, err := h.notes.Create(ctx, models.Notification{
		ImageID: img.ID,
		UserID:  user.ID,
		Payload: body,
	})
	if err != nil {
		return fmt.Errorf("record notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build push request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("Authorization", "Basic "+h.cfg.AuthKey)

	resp, err := h.client.Do(req)
	if err != nil {
		logger.Warn().Err(err).Msg("push delivery failed")
		return nil
	}
	defer resp.Body.Close()

	var accepted struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&accepted); err != nil || accepted.ID == "" {
		logger.Warn().Int("status", resp.StatusCode).Msg("push not accepted")
		return nil
	}

	if err := h.notes.MarkSent(ctx, note.ID); err != nil {
		logger.Warn().Err(err).Msg("mark sent failed")
	}

	logger.Info().Str("notification_id", note.ID).Msg("push notification sent")
	return nil
}
