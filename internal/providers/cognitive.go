package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"anysnap/internal/config"
	"anysnap/internal/models"
)

// CognitiveAdapter calls the Microsoft Cognitive analyze endpoint. It works
// from the image URL alone, so it never needs the raw bytes.
type CognitiveAdapter struct {
	cfg    config.ProviderConfig
	client *http.Client
}

func NewCognitiveAdapter(cfg config.ProviderConfig) *CognitiveAdapter {
	return &CognitiveAdapter{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

func (a *CognitiveAdapter) Service() models.Service {
	return models.ServiceCognitive
}

func (a *CognitiveAdapter) WantsBytes() bool {
	return false
}

type cognitiveResponse struct {
	Tags []struct {
		Name       string  `json:"name"`
		Confidence float64 `json:"confidence"`
	} `json:"tags"`
	Adult      json.RawMessage `json:"adult"`
	Categories []struct {
		Name   string          `json:"name"`
		Score  float64         `json:"score"`
		Detail *struct {
			Celebrities []json.RawMessage `json:"celebrities"`
		} `json:"detail"`
	} `json:"categories"`
	Description *struct {
		Captions []struct {
			Text       string  `json:"text"`
			Confidence float64 `json:"confidence"`
		} `json:"captions"`
	} `json:"description"`
	Faces []json.RawMessage `json:"faces"`
}

func (a *CognitiveAdapter) Run(ctx context.Context, img ImagePayload) (Batch, error) {
	body, err := json.Marshal(map[string]string{"url": img.URL})
	if err != nil {
		return NewBatch(models.ServiceCognitive), fmt.Errorf("marshal request: %w", err)
	}

	url := a.cfg.Endpoint + "?visualFeatures=Categories,Tags,Description,Faces,Adult&details=Celebrities"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return NewBatch(models.ServiceCognitive), fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Ocp-Apim-Subscription-Key", a.cfg.APIKey)

	var resp cognitiveResponse
	if err := doJSON(a.client, req, &resp); err != nil {
		return NewBatch(models.ServiceCognitive), err
	}

	return parseCognitiveResponse(resp), nil
}

func parseCognitiveResponse(resp cognitiveResponse) Batch {
	batch := NewBatch(models.ServiceCognitive,
		models.FeatureTag, models.FeatureAdult, models.FeatureCategory,
		models.FeatureCelebrity, models.FeatureDescription, models.FeatureFace)

	for _, tag := range resp.Tags {
		payload, _ := json.Marshal(tag)
		batch.Add(Record{
			Feature: models.FeatureTag,
			Name:    tag.Name,
			Score:   scoreOf(tag.Confidence),
			Locale:  "en",
			Payload: payload,
		})
	}

	if len(resp.Adult) > 0 && string(resp.Adult) != "null" {
		// A single payload-only record: the adult block is a verdict about
		// the whole image, not a list of findings.
		batch.Add(Record{
			Feature: models.FeatureAdult,
			Locale:  "en",
			Payload: resp.Adult,
		})
	}

	for _, category := range resp.Categories {
		payload, _ := json.Marshal(category)
		batch.Add(Record{
			Feature: models.FeatureCategory,
			Name:    category.Name,
			Score:   scoreOf(category.Score),
			Locale:  "en",
			Payload: payload,
		})
		if category.Detail == nil {
			continue
		}
		for _, celebrity := range category.Detail.Celebrities {
			var named struct {
				Name string `json:"name"`
			}
			if err := json.Unmarshal(celebrity, &named); err != nil {
				continue
			}
			batch.Add(Record{
				Feature: models.FeatureCelebrity,
				Name:    named.Name,
				Locale:  "en",
				Payload: celebrity,
			})
		}
	}

	if resp.Description != nil {
		for _, caption := range resp.Description.Captions {
			payload, _ := json.Marshal(caption)
			batch.Add(Record{
				Feature: models.FeatureDescription,
				Name:    caption.Text,
				Score:   scoreOf(caption.Confidence),
				Locale:  "en",
				Payload: payload,
			})
		}
	}

	for _, face := range resp.Faces {
		batch.Add(Record{
			Feature: models.FeatureFace,
			Locale:  "en",
			Payload: face,
		})
	}

	return batch
}
