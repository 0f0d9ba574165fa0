package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"anysnap/internal/models"
)

var (
	// ErrUnavailable covers network failures, timeouts and non-2xx answers
	// from a recognition service.
	ErrUnavailable = errors.New("provider unavailable")
	// ErrMalformed covers responses that cannot be decoded at all. Missing
	// keys inside an otherwise valid response are not malformed.
	ErrMalformed = errors.New("provider response malformed")
	// ErrNoPayload is returned by adapters that need raw image bytes when
	// none were supplied.
	ErrNoPayload = errors.New("image bytes required")
)

// ImagePayload is the shared input to every adapter: the public URL of the
// image and, when already fetched, its raw bytes. Adapters use whichever is
// cheaper for their service.
type ImagePayload struct {
	ImageID string
	URL     string
	Bytes   []byte
}

// Record is one normalized annotation produced by an adapter.
type Record struct {
	Feature models.Feature
	Name    string
	Score   *float64
	Locale  string
	Payload json.RawMessage
}

// Batch groups an adapter's records by feature kind. Every feature the
// adapter owns is present even when empty, so merging an empty sub-batch
// clears annotations the provider no longer asserts.
type Batch struct {
	Service  models.Service
	Features map[models.Feature][]Record
}

func NewBatch(service models.Service, owned ...models.Feature) Batch {
	features := make(map[models.Feature][]Record, len(owned))
	for _, f := range owned {
		features[f] = []Record{}
	}
	return Batch{Service: service, Features: features}
}

func (b *Batch) Add(rec Record) {
	b.Features[rec.Feature] = append(b.Features[rec.Feature], rec)
}

// Len returns the total number of records across all feature kinds.
func (b *Batch) Len() int {
	n := 0
	for _, recs := range b.Features {
		n += len(recs)
	}
	return n
}

// Adapter is one external recognition service. Run issues exactly one round
// of outbound calls and maps the response into a normalized batch. A failed
// call returns an empty batch and an error; the caller decides what to do
// with siblings.
type Adapter interface {
	Service() models.Service
	// WantsBytes reports whether the adapter works on raw pixel data; URL
	// based adapters never trigger an image download.
	WantsBytes() bool
	Run(ctx context.Context, img ImagePayload) (Batch, error)
}

// doJSON executes the request and decodes the body. HTTP-level failures map
// to ErrUnavailable, undecodable bodies to ErrMalformed.
func doJSON(client *http.Client, req *http.Request, out any) error {
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: read body: %v", ErrUnavailable, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return nil
}

func scoreOf(v float64) *float64 {
	return &v
}
