package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"sync"
	"time"

	"anysnap/internal/config"
	"anysnap/internal/models"
)

// TokenSource supplies the short-lived access token the fingerprint search
// endpoint expects. Implementations own their refresh behavior; the adapter
// never caches tokens itself.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a TokenSource for deployments with a long-lived API token.
type StaticToken string

func (t StaticToken) Token(ctx context.Context) (string, error) {
	return string(t), nil
}

// RefreshingTokenSource exchanges the API key for a short-lived token and
// caches it until the configured TTL elapses.
type RefreshingTokenSource struct {
	endpoint string
	apiKey   string
	ttl      time.Duration
	client   *http.Client
	now      func() time.Time

	mu     sync.Mutex
	token  string
	expiry time.Time
}

func NewRefreshingTokenSource(endpoint, apiKey string, ttl time.Duration, client *http.Client) *RefreshingTokenSource {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &RefreshingTokenSource{
		endpoint: endpoint,
		apiKey:   apiKey,
		ttl:      ttl,
		client:   client,
		now:      time.Now,
	}
}

func (s *RefreshingTokenSource) Token(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.token != "" && s.now().Before(s.expiry) {
		return s.token, nil
	}

	body, err := json.Marshal(map[string]string{"api_key": s.apiKey})
	if err != nil {
		return "", fmt.Errorf("marshal token request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	var resp struct {
		Token string `json:"token"`
	}
	if err := doJSON(s.client, req, &resp); err != nil {
		return "", fmt.Errorf("refresh token: %w", err)
	}
	if resp.Token == "" {
		return "", fmt.Errorf("%w: empty token", ErrMalformed)
	}

	s.token = resp.Token
	s.expiry = s.now().Add(s.ttl)
	return s.token, nil
}

// CraftarAdapter posts the raw image bytes to the fingerprint search service
// and maps matches into recognition records. It is the one adapter that
// cannot fall back to a URL.
type CraftarAdapter struct {
	cfg    config.CraftarConfig
	tokens TokenSource
	client *http.Client
}

func NewCraftarAdapter(cfg config.CraftarConfig) *CraftarAdapter {
	var tokens TokenSource
	if cfg.TokenEndpoint != "" {
		tokens = NewRefreshingTokenSource(cfg.TokenEndpoint, cfg.APIKey, cfg.TokenTTL, nil)
	} else {
		tokens = StaticToken(cfg.APIKey)
	}
	return &CraftarAdapter{
		cfg:    cfg,
		tokens: tokens,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

// SetTokenSource replaces the adapter's token source.
func (a *CraftarAdapter) SetTokenSource(tokens TokenSource) {
	a.tokens = tokens
}

func (a *CraftarAdapter) Service() models.Service {
	return models.ServiceCraftar
}

func (a *CraftarAdapter) WantsBytes() bool {
	return true
}

type craftarResponse struct {
	Results []json.RawMessage `json:"results"`
}

func (a *CraftarAdapter) Run(ctx context.Context, img ImagePayload) (Batch, error) {
	if len(img.Bytes) == 0 {
		return NewBatch(models.ServiceCraftar), ErrNoPayload
	}

	token, err := a.tokens.Token(ctx)
	if err != nil {
		return NewBatch(models.ServiceCraftar), fmt.Errorf("%w: token: %v", ErrUnavailable, err)
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	if err := writer.WriteField("token", token); err != nil {
		return NewBatch(models.ServiceCraftar), fmt.Errorf("write token field: %w", err)
	}
	part, err := writer.CreateFormFile("image", "image.jpg")
	if err != nil {
		return NewBatch(models.ServiceCraftar), fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(img.Bytes); err != nil {
		return NewBatch(models.ServiceCraftar), fmt.Errorf("write image: %w", err)
	}
	if err := writer.Close(); err != nil {
		return NewBatch(models.ServiceCraftar), fmt.Errorf("close multipart: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.Endpoint, &body)
	if err != nil {
		return NewBatch(models.ServiceCraftar), fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	var resp craftarResponse
	if err := doJSON(a.client, req, &resp); err != nil {
		return NewBatch(models.ServiceCraftar), err
	}

	return parseCraftarResponse(resp), nil
}

func parseCraftarResponse(resp craftarResponse) Batch {
	batch := NewBatch(models.ServiceCraftar, models.FeatureRecognition)

	for _, match := range resp.Results {
		var named struct {
			Name string `json:"name"`
			Item *struct {
				Name string `json:"name"`
			} `json:"item"`
		}
		if err := json.Unmarshal(match, &named); err != nil {
			continue
		}
		name := named.Name
		if name == "" && named.Item != nil {
			name = named.Item.Name
		}
		batch.Add(Record{
			Feature: models.FeatureRecognition,
			Name:    name,
			Locale:  "en",
			Payload: match,
		})
	}

	return batch
}
