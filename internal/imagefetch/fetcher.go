package imagefetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"anysnap/internal/media/sniffer"
)

// maxImageBytes caps how much of a source image is pulled into memory.
const maxImageBytes = 20 << 20

// ByteCache is the short-lived store for raw image bytes shared between
// adapters of one analysis run.
type ByteCache interface {
	Get(ctx context.Context, imageID string) ([]byte, error)
	Set(ctx context.Context, imageID string, data []byte, ttl time.Duration) error
}

// RedisByteCache keeps fetched bytes in redis so worker processes reuse the
// dispatcher's download.
type RedisByteCache struct {
	client *redis.Client
}

func NewRedisByteCache(client *redis.Client) *RedisByteCache {
	return &RedisByteCache{client: client}
}

func byteKey(imageID string) string {
	return "image-bytes:" + imageID
}

func (c *RedisByteCache) Get(ctx context.Context, imageID string) ([]byte, error) {
	data, err := c.client.Get(ctx, byteKey(imageID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	return data, err
}

func (c *RedisByteCache) Set(ctx context.Context, imageID string, data []byte, ttl time.Duration) error {
	return c.client.Set(ctx, byteKey(imageID), data, ttl).Err()
}

// Fetcher downloads image bytes once per image and hands cached copies to
// every adapter that wants pixel data. Cache misses fall back to a fresh
// download, so correctness never depends on the cache.
type Fetcher struct {
	cache  ByteCache
	client *http.Client
	ttl    time.Duration
	log    zerolog.Logger
}

func NewFetcher(cache ByteCache, timeout, ttl time.Duration, log zerolog.Logger) *Fetcher {
	return &Fetcher{
		cache:  cache,
		client: &http.Client{Timeout: timeout},
		ttl:    ttl,
		log:    log,
	}
}

func (f *Fetcher) Fetch(ctx context.Context, imageID, url string) ([]byte, error) {
	if f.cache != nil {
		cached, err := f.cache.Get(ctx, imageID)
		if err != nil {
			f.log.Warn().Err(err).Str("image_id", imageID).Msg("byte cache read failed")
		} else if len(cached) > 0 {
			return cached, nil
		}
	}

	data, err := f.download(ctx, url)
	if err != nil {
		return nil, err
	}

	if f.cache != nil {
		if err := f.cache.Set(ctx, imageID, data, f.ttl); err != nil {
			f.log.Warn().Err(err).Str("image_id", imageID).Msg("byte cache write failed")
		}
	}
	return data, nil
}

func (f *Fetcher) download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch image: status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes))
	if err != nil {
		return nil, fmt.Errorf("read image body: %w", err)
	}

	if _, err := sniffer.DetectHead(data); err != nil {
		return nil, fmt.Errorf("sniff image: %w", err)
	}
	return data, nil
}
