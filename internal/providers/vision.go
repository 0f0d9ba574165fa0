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

// VisionAdapter calls the Google Vision annotate endpoint for label, logo
// and text detection.
type VisionAdapter struct {
	cfg    config.ProviderConfig
	client *http.Client
}

func NewVisionAdapter(cfg config.ProviderConfig) *VisionAdapter {
	return &VisionAdapter{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

func (a *VisionAdapter) Service() models.Service {
	return models.ServiceVision
}

func (a *VisionAdapter) WantsBytes() bool {
	return true
}

type visionImage struct {
	Content string        `json:"content,omitempty"`
	Source  *visionSource `json:"source,omitempty"`
}

type visionSource struct {
	ImageURI string `json:"imageUri"`
}

type visionFeature struct {
	Type       string `json:"type"`
	MaxResults int    `json:"maxResults"`
}

type visionRequestItem struct {
	Image    visionImage     `json:"image"`
	Features []visionFeature `json:"features"`
}

type visionRequest struct {
	Requests []visionRequestItem `json:"requests"`
}

type visionAnnotation struct {
	Description string  `json:"description"`
	Score       float64 `json:"score"`
}

type visionResponse struct {
	Responses []struct {
		LabelAnnotations []json.RawMessage `json:"labelAnnotations"`
		LogoAnnotations  []json.RawMessage `json:"logoAnnotations"`
		TextAnnotations  []json.RawMessage `json:"textAnnotations"`
	} `json:"responses"`
}

func (a *VisionAdapter) Run(ctx context.Context, img ImagePayload) (Batch, error) {
	item := visionRequestItem{
		Features: []visionFeature{
			{Type: "LABEL_DETECTION", MaxResults: 10},
			{Type: "LOGO_DETECTION", MaxResults: 5},
			{Type: "TEXT_DETECTION", MaxResults: 15},
		},
	}
	if len(img.Bytes) > 0 {
		item.Image = visionImage{Content: base64.StdEncoding.EncodeToString(img.Bytes)}
	} else {
		item.Image = visionImage{Source: &visionSource{ImageURI: img.URL}}
	}

	payload, err := json.Marshal(visionRequest{Requests: []visionRequestItem{item}})
	if err != nil {
		return NewBatch(models.ServiceVision), fmt.Errorf("marshal request: %w", err)
	}

	url := fmt.Sprintf("%s?key=%s", a.cfg.Endpoint, a.cfg.APIKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return NewBatch(models.ServiceVision), fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	var resp visionResponse
	if err := doJSON(a.client, req, &resp); err != nil {
		return NewBatch(models.ServiceVision), err
	}

	return parseVisionResponse(resp), nil
}

// parseVisionResponse maps the annotate response into a normalized batch.
// Responses arrive wrapped in a list; only the first entry belongs to our
// single request. Missing annotation kinds clear their feature.
func parseVisionResponse(resp visionResponse) Batch {
	batch := NewBatch(models.ServiceVision, models.FeatureTag, models.FeatureLogo, models.FeatureText)
	if len(resp.Responses) == 0 {
		return batch
	}
	first := resp.Responses[0]

	add := func(feature models.Feature, raw []json.RawMessage) {
		for _, item := range raw {
			var ann visionAnnotation
			if err := json.Unmarshal(item, &ann); err != nil {
				continue
			}
			rec := Record{
				Feature: feature,
				Name:    ann.Description,
				Locale:  "en",
				Payload: item,
			}
			if feature == models.FeatureTag {
				rec.Score = scoreOf(ann.Score)
			}
			batch.Add(rec)
		}
	}

	add(models.FeatureTag, first.LabelAnnotations)
	add(models.FeatureLogo, first.LogoAnnotations)
	add(models.FeatureText, first.TextAnnotations)

	return batch
}
