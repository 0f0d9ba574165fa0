package providers

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"

	"anysnap/internal/config"
	"anysnap/internal/models"
)

// ClarifaiAdapter is the secondary label provider. It predicts concepts once
// per configured locale so non-English tags land next to the primary
// providers' English ones.
type ClarifaiAdapter struct {
	cfg    config.ClarifaiConfig
	client *http.Client
}

func NewClarifaiAdapter(cfg config.ClarifaiConfig) *ClarifaiAdapter {
	if len(cfg.Locales) == 0 {
		cfg.Locales = []string{"en"}
	}
	return &ClarifaiAdapter{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

func (a *ClarifaiAdapter) Service() models.Service {
	return models.ServiceClarifai
}

func (a *ClarifaiAdapter) WantsBytes() bool {
	return false
}

type clarifaiResponse struct {
	Outputs []struct {
		Data struct {
			Concepts []struct {
				Name  string  `json:"name"`
				Value float64 `json:"value"`
			} `json:"concepts"`
		} `json:"data"`
	} `json:"outputs"`
}

func (a *ClarifaiAdapter) Run(ctx context.Context, img ImagePayload) (Batch, error) {
	batch := NewBatch(models.ServiceClarifai, models.FeatureTag)

	for _, locale := range a.cfg.Locales {
		resp, err := a.predict(ctx, img, locale)
		if err != nil {
			// One failing locale fails the whole run; a partial batch
			// would clear the other locales' tags on merge.
			return NewBatch(models.ServiceClarifai), err
		}
		appendClarifaiConcepts(&batch, resp, locale)
	}

	return batch, nil
}

func (a *ClarifaiAdapter) predict(ctx context.Context, img ImagePayload, locale string) (clarifaiResponse, error) {
	image := map[string]string{}
	if len(img.Bytes) > 0 {
		image["base64"] = base64.StdEncoding.EncodeToString(img.Bytes)
	} else {
		image["url"] = img.URL
	}

	body, err := json.Marshal(map[string]any{
		"inputs": []map[string]any{
			{"data": map[string]any{"image": image}},
		},
		"model": map[string]any{
			"output_info": map[string]any{
				"output_config": map[string]string{"language": locale},
			},
		},
	})
	if err != nil {
		return clarifaiResponse{}, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return clarifaiResponse{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Key "+a.cfg.APIKey)

	var resp clarifaiResponse
	if err := doJSON(a.client, req, &resp); err != nil {
		return clarifaiResponse{}, err
	}
	return resp, nil
}

func appendClarifaiConcepts(batch *Batch, resp clarifaiResponse, locale string) {
	if len(resp.Outputs) == 0 {
		return
	}
	for _, concept := range resp.Outputs[0].Data.Concepts {
		payload, _ := json.Marshal(concept)
		batch.Add(Record{
			Feature: models.FeatureTag,
			Name:    concept.Name,
			Score:   scoreOf(concept.Value),
			Locale:  locale,
			Payload: payload,
		})
	}
}
