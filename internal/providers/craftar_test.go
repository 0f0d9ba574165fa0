package providers

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"anysnap/internal/config"
	"anysnap/internal/models"
)

func craftarTestConfig() config.CraftarConfig {
	return config.CraftarConfig{
		Endpoint: "https://search.example.com/v1/search",
		APIKey:   "craftar-key",
		Timeout:  5 * time.Second,
		TokenTTL: time.Hour,
	}
}

func TestCraftarAdapter_Run_RequiresBytes(t *testing.T) {
	adapter := NewCraftarAdapter(craftarTestConfig())

	_, err := adapter.Run(context.Background(), ImagePayload{
		ImageID: "img-1",
		URL:     "https://cdn.example.com/img-1.jpg",
	})

	require.ErrorIs(t, err, ErrNoPayload)
}

func TestCraftarAdapter_Run_Success(t *testing.T) {
	adapter := NewCraftarAdapter(craftarTestConfig())
	adapter.SetTokenSource(StaticToken("fixed-token"))
	httpmock.ActivateNonDefault(adapter.client)
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder(http.MethodPost,
		"https://search.example.com/v1/search",
		httpmock.NewStringResponder(http.StatusOK, `{
			"results": [
				{"name": "Poster A", "score": 70},
				{"item": {"name": "Poster B"}}
			]
		}`))

	batch, err := adapter.Run(context.Background(), ImagePayload{
		ImageID: "img-1",
		Bytes:   []byte("jpeg-bytes"),
	})

	require.NoError(t, err)
	assert.Equal(t, models.ServiceCraftar, batch.Service)

	matches := batch.Features[models.FeatureRecognition]
	require.Len(t, matches, 2)
	assert.Equal(t, "Poster A", matches[0].Name)
	assert.Equal(t, "Poster B", matches[1].Name)
}

func TestCraftarAdapter_Run_EmptyResultsClearRecognition(t *testing.T) {
	adapter := NewCraftarAdapter(craftarTestConfig())
	adapter.SetTokenSource(StaticToken("fixed-token"))
	httpmock.ActivateNonDefault(adapter.client)
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder(http.MethodPost,
		"https://search.example.com/v1/search",
		httpmock.NewStringResponder(http.StatusOK, `{"results": []}`))

	batch, err := adapter.Run(context.Background(), ImagePayload{
		ImageID: "img-1",
		Bytes:   []byte("jpeg-bytes"),
	})

	require.NoError(t, err)
	recs, ok := batch.Features[models.FeatureRecognition]
	assert.True(t, ok)
	assert.Empty(t, recs)
}

func TestRefreshingTokenSource_CachesUntilExpiry(t *testing.T) {
	client := &http.Client{}
	httpmock.ActivateNonDefault(client)
	defer httpmock.DeactivateAndReset()

	calls := 0
	httpmock.RegisterResponder(http.MethodPost,
		"https://auth.example.com/token",
		func(req *http.Request) (*http.Response, error) {
			calls++
			return httpmock.NewStringResponse(http.StatusOK, `{"token": "tok-1"}`), nil
		})

	source := NewRefreshingTokenSource("https://auth.example.com/token", "craftar-key", time.Hour, client)

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	source.now = func() time.Time { return now }

	token, err := source.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok-1", token)
	assert.Equal(t, 1, calls)

	// Within the TTL the cached token is reused.
	now = now.Add(30 * time.Minute)
	token, err = source.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok-1", token)
	assert.Equal(t, 1, calls)

	// Past the TTL a fresh token is fetched.
	now = now.Add(31 * time.Minute)
	_, err = source.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestRefreshingTokenSource_EmptyTokenIsMalformed(t *testing.T) {
	client := &http.Client{}
	httpmock.ActivateNonDefault(client)
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder(http.MethodPost,
		"https://auth.example.com/token",
		httpmock.NewStringResponder(http.StatusOK, `{}`))

	source := NewRefreshingTokenSource("https://auth.example.com/token", "craftar-key", time.Hour, client)

	_, err := source.Token(context.Background())
	require.ErrorIs(t, err, ErrMalformed)
}

func TestCraftarAdapter_Run_TokenFailureIsUnavailable(t *testing.T) {
	adapter := NewCraftarAdapter(craftarTestConfig())
	httpmock.ActivateNonDefault(adapter.client)
	defer httpmock.DeactivateAndReset()

	tokenClient := &http.Client{}
	httpmock.ActivateNonDefault(tokenClient)
	httpmock.RegisterResponder(http.MethodPost,
		"https://auth.example.com/token",
		httpmock.NewStringResponder(http.StatusUnauthorized, `{"error": "bad key"}`))

	adapter.SetTokenSource(NewRefreshingTokenSource("https://auth.example.com/token", "bad-key", time.Hour, tokenClient))

	_, err := adapter.Run(context.Background(), ImagePayload{
		ImageID: "img-1",
		Bytes:   []byte("jpeg-bytes"),
	})

	require.ErrorIs(t, err, ErrUnavailable)
}
