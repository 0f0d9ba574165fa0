package imagefetch

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memByteCache struct {
	data map[string][]byte
	err  error
	sets int
}

func (c *memByteCache) Get(_ context.Context, imageID string) ([]byte, error) {
	if c.err != nil {
		return nil, c.err
	}
	return c.data[imageID], nil
}

func (c *memByteCache) Set(_ context.Context, imageID string, data []byte, _ time.Duration) error {
	c.sets++
	if c.err != nil {
		return c.err
	}
	if c.data == nil {
		c.data = map[string][]byte{}
	}
	c.data[imageID] = data
	return nil
}

func jpegBytes() []byte {
	return append([]byte{0xff, 0xd8, 0xff, 0xe0}, []byte("fake-jpeg-body")...)
}

func TestFetcher_Fetch_CacheHitSkipsDownload(t *testing.T) {
	cache := &memByteCache{data: map[string][]byte{"img-1": jpegBytes()}}
	fetcher := NewFetcher(cache, 5*time.Second, time.Minute, zerolog.Nop())
	httpmock.ActivateNonDefault(fetcher.client)
	defer httpmock.DeactivateAndReset()

	data, err := fetcher.Fetch(context.Background(), "img-1", "https://cdn.example.com/img-1.jpg")

	require.NoError(t, err)
	assert.Equal(t, jpegBytes(), data)
	assert.Zero(t, httpmock.GetTotalCallCount())
}

func TestFetcher_Fetch_DownloadsAndCaches(t *testing.T) {
	cache := &memByteCache{}
	fetcher := NewFetcher(cache, 5*time.Second, time.Minute, zerolog.Nop())
	httpmock.ActivateNonDefault(fetcher.client)
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder(http.MethodGet,
		"https://cdn.example.com/img-1.jpg",
		httpmock.NewBytesResponder(http.StatusOK, jpegBytes()))

	data, err := fetcher.Fetch(context.Background(), "img-1", "https://cdn.example.com/img-1.jpg")

	require.NoError(t, err)
	assert.Equal(t, jpegBytes(), data)
	assert.Equal(t, jpegBytes(), cache.data["img-1"])
}

func TestFetcher_Fetch_RejectsNonImageBody(t *testing.T) {
	fetcher := NewFetcher(&memByteCache{}, 5*time.Second, time.Minute, zerolog.Nop())
	httpmock.ActivateNonDefault(fetcher.client)
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder(http.MethodGet,
		"https://cdn.example.com/img-1.jpg",
		httpmock.NewStringResponder(http.StatusOK, "<html>not an image</html>"))

	_, err := fetcher.Fetch(context.Background(), "img-1", "https://cdn.example.com/img-1.jpg")

	require.Error(t, err)
}

func TestFetcher_Fetch_NonOKStatus(t *testing.T) {
	fetcher := NewFetcher(&memByteCache{}, 5*time.Second, time.Minute, zerolog.Nop())
	httpmock.ActivateNonDefault(fetcher.client)
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder(http.MethodGet,
		"https://cdn.example.com/img-1.jpg",
		httpmock.NewStringResponder(http.StatusNotFound, ""))

	_, err := fetcher.Fetch(context.Background(), "img-1", "https://cdn.example.com/img-1.jpg")

	require.Error(t, err)
}

func TestFetcher_Fetch_CacheFailureIsNotFatal(t *testing.T) {
	cache := &memByteCache{err: errors.New("redis down")}
	fetcher := NewFetcher(cache, 5*time.Second, time.Minute, zerolog.Nop())
	httpmock.ActivateNonDefault(fetcher.client)
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder(http.MethodGet,
		"https://cdn.example.com/img-1.jpg",
		httpmock.NewBytesResponder(http.StatusOK, jpegBytes()))

	data, err := fetcher.Fetch(context.Background(), "img-1", "https://cdn.example.com/img-1.jpg")

	require.NoError(t, err)
	assert.Equal(t, jpegBytes(), data)
}
