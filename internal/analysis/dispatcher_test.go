package analysis

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"anysnap/internal/models"
	"anysnap/internal/providers"
	"anysnap/internal/repository"
)

type fakeImageStore struct {
	images   map[string]models.Image
	analyzed []string
}

func (s *fakeImageStore) GetByID(_ context.Context, id string) (models.Image, error) {
	img, ok := s.images[id]
	if !ok {
		return models.Image{}, repository.ErrImageNotFound
	}
	return img, nil
}

func (s *fakeImageStore) MarkAnalyzed(_ context.Context, imageID string) error {
	s.analyzed = append(s.analyzed, imageID)
	return nil
}

type fakeFetcher struct {
	bytes []byte
	err   error
	calls int
}

func (f *fakeFetcher) Fetch(context.Context, string, string) ([]byte, error) {
	f.calls++
	return f.bytes, f.err
}

type fakeQueue struct {
	entries []map[string]any
	failFor string
}

func (q *fakeQueue) Enqueue(_ context.Context, values map[string]any) (string, error) {
	if q.failFor != "" && values["provider"] == q.failFor {
		return "", errors.New("stream unavailable")
	}
	q.entries = append(q.entries, values)
	return fmt.Sprintf("%d-0", len(q.entries)), nil
}

func (q *fakeQueue) providersScheduled() []string {
	names := make([]string, 0, len(q.entries))
	for _, entry := range q.entries {
		if entry["type"] == TaskAnalyze {
			names = append(names, entry["provider"].(string))
		}
	}
	return names
}

type stubAdapter struct {
	service    models.Service
	wantsBytes bool
	batch      providers.Batch
	err        error
	runs       int
	gotBytes   []byte
}

func (a *stubAdapter) Service() models.Service { return a.service }

func (a *stubAdapter) WantsBytes() bool { return a.wantsBytes }

func (a *stubAdapter) Run(_ context.Context, img providers.ImagePayload) (providers.Batch, error) {
	a.runs++
	a.gotBytes = img.Bytes
	if a.err != nil {
		return providers.NewBatch(a.service), a.err
	}
	return a.batch, nil
}

func newTestDispatcher(images *fakeImageStore, queue *fakeQueue, adapters AdapterSet) (*Dispatcher, *StatusTracker) {
	fetcher := &fakeFetcher{bytes: []byte("jpeg")}
	status := NewStatusTracker(newClockKV(), 5*time.Minute)
	merger := NewMerger(&memAnnotationStore{}, zerolog.Nop())
	runner := NewRunner(images, merger, fetcher, NewQueueHookScheduler(queue, zerolog.Nop()), zerolog.Nop())
	return NewDispatcher(images, queue, status, fetcher, runner, adapters, zerolog.Nop()), status
}

func testImageStore() *fakeImageStore {
	return &fakeImageStore{images: map[string]models.Image{
		"img-1": {ID: "img-1", URL: "https://cdn.example.com/img-1.jpg"},
	}}
}

func TestDispatcher_Dispatch_UnknownImage(t *testing.T) {
	queue := &fakeQueue{}
	dispatcher, _ := newTestDispatcher(&fakeImageStore{images: map[string]models.Image{}}, queue, AdapterSet{})

	_, err := dispatcher.Dispatch(context.Background(), "missing", true)

	require.ErrorIs(t, err, repository.ErrImageNotFound)
	assert.Empty(t, queue.entries)
}

func TestDispatcher_Dispatch_SchedulesEveryAsyncAdapter(t *testing.T) {
	queue := &fakeQueue{}
	adapters := AdapterSet{
		Async: map[string]providers.Adapter{
			"vision":    &stubAdapter{service: models.ServiceVision},
			"cognitive": &stubAdapter{service: models.ServiceCognitive},
		},
	}
	dispatcher, status := newTestDispatcher(testImageStore(), queue, adapters)

	handle, err := dispatcher.Dispatch(context.Background(), "img-1", true)

	require.NoError(t, err)
	assert.NotEmpty(t, handle.JobID)
	assert.Len(t, handle.TaskIDs, 2)
	assert.ElementsMatch(t, []string{"vision", "cognitive"}, queue.providersScheduled())

	for _, entry := range queue.entries {
		assert.Equal(t, "img-1", entry["imageId"])
		assert.Equal(t, "true", entry["persist"])
		assert.Equal(t, handle.JobID, entry["jobId"])
	}

	got, err := status.Get(context.Background(), "img-1")
	require.NoError(t, err)
	assert.Equal(t, handle, got)
}

func TestDispatcher_Dispatch_EnqueueFailureSkipsOnlyThatProvider(t *testing.T) {
	queue := &fakeQueue{failFor: "vision"}
	adapters := AdapterSet{
		Async: map[string]providers.Adapter{
			"vision":    &stubAdapter{service: models.ServiceVision},
			"cognitive": &stubAdapter{service: models.ServiceCognitive},
		},
	}
	dispatcher, _ := newTestDispatcher(testImageStore(), queue, adapters)

	handle, err := dispatcher.Dispatch(context.Background(), "img-1", true)

	require.NoError(t, err)
	assert.Len(t, handle.TaskIDs, 1)
	assert.Equal(t, []string{"cognitive"}, queue.providersScheduled())
}

func TestDispatcher_Dispatch_SyncAdapterFailureIsIsolated(t *testing.T) {
	queue := &fakeQueue{}
	sync := &stubAdapter{service: models.ServiceCraftar, wantsBytes: true, err: providers.ErrUnavailable}
	adapters := AdapterSet{
		Sync: sync,
		Async: map[string]providers.Adapter{
			"vision": &stubAdapter{service: models.ServiceVision},
		},
	}
	dispatcher, _ := newTestDispatcher(testImageStore(), queue, adapters)

	handle, err := dispatcher.Dispatch(context.Background(), "img-1", true)

	require.NoError(t, err)
	assert.Equal(t, 1, sync.runs)
	assert.Len(t, handle.TaskIDs, 1)
}

func TestDispatcher_Dispatch_SyncAdapterGetsCachedBytes(t *testing.T) {
	queue := &fakeQueue{}
	sync := &stubAdapter{
		service:    models.ServiceCraftar,
		wantsBytes: true,
		batch:      providers.NewBatch(models.ServiceCraftar, models.FeatureRecognition),
	}
	dispatcher, _ := newTestDispatcher(testImageStore(), queue, AdapterSet{Sync: sync})

	_, err := dispatcher.Dispatch(context.Background(), "img-1", false)

	require.NoError(t, err)
	assert.Equal(t, []byte("jpeg"), sync.gotBytes)
}
