package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrJobNotFound means no job handle is registered for the image: either
// nothing was dispatched or the handle's TTL elapsed. The two cases are
// indistinguishable on purpose.
var ErrJobNotFound = errors.New("analysis job not found")

// JobHandle is the ephemeral reference to one dispatched analysis run. It
// lives only in the status cache, never in durable storage.
type JobHandle struct {
	JobID   string   `json:"jobId"`
	TaskIDs []string `json:"taskIds,omitempty"`
}

// KV is the bounded-lifetime key-value store backing the status tracker.
type KV interface {
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Get returns nil with no error when the key is absent or expired.
	Get(ctx context.Context, key string) ([]byte, error)
}

type RedisKV struct {
	client *redis.Client
}

func NewRedisKV(client *redis.Client) *RedisKV {
	return &RedisKV{client: client}
}

func (kv *RedisKV) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return kv.client.Set(ctx, key, value, ttl).Err()
}

func (kv *RedisKV) Get(ctx context.Context, key string) ([]byte, error) {
	value, err := kv.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	return value, err
}

// StatusTracker maps image ids to job handles for polling clients. Entries
// expire on their own; an expired entry reads as ErrJobNotFound.
type StatusTracker struct {
	kv  KV
	ttl time.Duration
}

func NewStatusTracker(kv KV, ttl time.Duration) *StatusTracker {
	return &StatusTracker{kv: kv, ttl: ttl}
}

func statusKey(imageID string) string {
	return "image-analyze:" + imageID
}

func (t *StatusTracker) Put(ctx context.Context, imageID string, handle JobHandle) error {
	value, err := json.Marshal(handle)
	if err != nil {
		return fmt.Errorf("marshal job handle: %w", err)
	}
	return t.kv.Set(ctx, statusKey(imageID), value, t.ttl)
}

func (t *StatusTracker) Get(ctx context.Context, imageID string) (JobHandle, error) {
	value, err := t.kv.Get(ctx, statusKey(imageID))
	if err != nil {
		return JobHandle{}, err
	}
	if value == nil {
		return JobHandle{}, ErrJobNotFound
	}

	var handle JobHandle
	if err := json.Unmarshal(value, &handle); err != nil {
		return JobHandle{}, fmt.Errorf("unmarshal job handle: %w", err)
	}
	return handle, nil
}
