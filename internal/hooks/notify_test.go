package hooks

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"anysnap/internal/config"
	"anysnap/internal/models"
)

type fakeUserStore struct {
	users map[string]models.User
}

func (s *fakeUserStore) GetByID(_ context.Context, id string) (models.User, error) {
	return s.users[id], nil
}

type fakeNotificationStore struct {
	created []models.Notification
	sent    []string
}

func (s *fakeNotificationStore) Create(_ context.Context, n models.Notification) (models.Notification, error) {
	n.ID = "note-1"
	s.created = append(s.created, n)
	return n, nil
}

func (s *fakeNotificationStore) MarkSent(_ context.Context, id string) error {
	s.sent = append(s.sent, id)
	return nil
}

type fakeDeduper struct {
	acquired map[string]bool
}

func (d *fakeDeduper) Acquire(_ context.Context, key string, _ time.Duration) (bool, error) {
	if d.acquired == nil {
		d.acquired = map[string]bool{}
	}
	if d.acquired[key] {
		return false, nil
	}
	d.acquired[key] = true
	return true, nil
}

func notifyTestConfig(policy config.NotifyPolicy) config.NotifyConfig {
	return config.NotifyConfig{
		Endpoint: "https://push.example.com/api/v1/notifications",
		AppID:    "app-1",
		AuthKey:  "auth-key",
		Timeout:  5 * time.Second,
		Policy:   policy,
	}
}

func strPtr(s string) *string { return &s }

func ownedImage() models.Image {
	return models.Image{ID: "img-1", UserID: strPtr("user-1")}
}

func playerUsers() *fakeUserStore {
	return &fakeUserStore{users: map[string]models.User{
		"user-1": {ID: "user-1", NotificationPlayerID: strPtr("player-1")},
	}}
}

func TestNotifyHook_Notify_AcceptedMarksSent(t *testing.T) {
	notes := &fakeNotificationStore{}
	hook := NewNotifyHook(notifyTestConfig(config.NotifyPerProvider), playerUsers(), notes, nil, zerolog.Nop())
	httpmock.ActivateNonDefault(hook.client)
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder(http.MethodPost,
		"https://push.example.com/api/v1/notifications",
		httpmock.NewStringResponder(http.StatusOK, `{"id": "push-abc", "recipients": 1}`))

	require.NoError(t, hook.Notify(context.Background(), ownedImage(), "job-1"))

	require.Len(t, notes.created, 1)
	assert.Equal(t, "img-1", notes.created[0].ImageID)
	assert.Equal(t, "user-1", notes.created[0].UserID)
	assert.Equal(t, []string{"note-1"}, notes.sent)
}

func TestNotifyHook_Notify_RejectedStaysUnsent(t *testing.T) {
	notes := &fakeNotificationStore{}
	hook := NewNotifyHook(notifyTestConfig(config.NotifyPerProvider), playerUsers(), notes, nil, zerolog.Nop())
	httpmock.ActivateNonDefault(hook.client)
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder(http.MethodPost,
		"https://push.example.com/api/v1/notifications",
		httpmock.NewStringResponder(http.StatusBadRequest, `{"errors": ["invalid player id"]}`))

	require.NoError(t, hook.Notify(context.Background(), ownedImage(), "job-1"))

	require.Len(t, notes.created, 1)
	assert.Empty(t, notes.sent)
}

func TestNotifyHook_Notify_SkipsOwnerlessImage(t *testing.T) {
	notes := &fakeNotificationStore{}
	hook := NewNotifyHook(notifyTestConfig(config.NotifyPerProvider), playerUsers(), notes, nil, zerolog.Nop())

	require.NoError(t, hook.Notify(context.Background(), models.Image{ID: "img-1"}, "job-1"))

	assert.Empty(t, notes.created)
}

func TestNotifyHook_Notify_SkipsUserWithoutPlayerID(t *testing.T) {
	users := &fakeUserStore{users: map[string]models.User{
		"user-1": {ID: "user-1"},
	}}
	notes := &fakeNotificationStore{}
	hook := NewNotifyHook(notifyTestConfig(config.NotifyPerProvider), users, notes, nil, zerolog.Nop())

	require.NoError(t, hook.Notify(context.Background(), ownedImage(), "job-1"))

	assert.Empty(t, notes.created)
}

func TestNotifyHook_Notify_PerJobPolicySendsOnce(t *testing.T) {
	notes := &fakeNotificationStore{}
	hook := NewNotifyHook(notifyTestConfig(config.NotifyPerJob), playerUsers(), notes, &fakeDeduper{}, zerolog.Nop())
	httpmock.ActivateNonDefault(hook.client)
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder(http.MethodPost,
		"https://push.example.com/api/v1/notifications",
		httpmock.NewStringResponder(http.StatusOK, `{"id": "push-abc"}`))

	require.NoError(t, hook.Notify(context.Background(), ownedImage(), "job-1"))
	require.NoError(t, hook.Notify(context.Background(), ownedImage(), "job-1"))

	assert.Len(t, notes.created, 1)
}

func TestNotifyHook_Notify_PerProviderPolicySendsEachTime(t *testing.T) {
	notes := &fakeNotificationStore{}
	hook := NewNotifyHook(notifyTestConfig(config.NotifyPerProvider), playerUsers(), notes, &fakeDeduper{}, zerolog.Nop())
	httpmock.ActivateNonDefault(hook.client)
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder(http.MethodPost,
		"https://push.example.com/api/v1/notifications",
		httpmock.NewStringResponder(http.StatusOK, `{"id": "push-abc"}`))

	require.NoError(t, hook.Notify(context.Background(), ownedImage(), "job-1"))
	require.NoError(t, hook.Notify(context.Background(), ownedImage(), "job-1"))

	assert.Len(t, notes.created, 2)
}

func TestNotifyHook_Notify_SendsAuthHeader(t *testing.T) {
	notes := &fakeNotificationStore{}
	hook := NewNotifyHook(notifyTestConfig(config.NotifyPerProvider), playerUsers(), notes, nil, zerolog.Nop())
	httpmock.ActivateNonDefault(hook.client)
	defer httpmock.DeactivateAndReset()

	var gotAuth string
	httpmock.RegisterResponder(http.MethodPost,
		"https://push.example.com/api/v1/notifications",
		func(req *http.Request) (*http.Response, error) {
			gotAuth = req.Header.Get("Authorization")
			return httpmock.NewStringResponse(http.StatusOK, `{"id": "push-abc"}`), nil
		})

	require.NoError(t, hook.Notify(context.Background(), ownedImage(), "job-1"))

	assert.Equal(t, "Basic auth-key", gotAuth)
}
