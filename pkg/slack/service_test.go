package slack

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"

	goslack "github.com/slack-go/slack"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medcopilot/medcopilot/pkg/models"
)

type mockSlackAPI struct {
	mu    sync.Mutex
	posts []url.Values
	fail  bool
}

func (m *mockSlackAPI) handler(w http.ResponseWriter, r *http.Request) {
	_ = r.ParseForm()
	m.mu.Lock()
	m.posts = append(m.posts, r.PostForm)
	fail := m.fail
	m.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if fail {
		_, _ = w.Write([]byte(`{"ok":false,"error":"channel_not_found"}`))
		return
	}
	_, _ = w.Write([]byte(`{"ok":true,"channel":"C123","ts":"1700000000.000100"}`))
}

func newMockService(t *testing.T, api *mockSlackAPI) *Service {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/chat.postMessage", api.handler)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return NewServiceWithClient(NewClient("xoxb-test", "C123", goslack.OptionAPIURL(srv.URL+"/")), "https://dash.example.com")
}

func TestService_NilReceiver(_ *testing.T) {
	var s *Service
	// Should not panic
	s.SessionFinished(context.Background(), models.Session{ID: "sess-1", Status: models.StatusCompleted})
}

func TestNewService(t *testing.T) {
	t.Run("returns nil when token empty", func(t *testing.T) {
		svc := NewService(ServiceConfig{Token: "", Channel: "C123"})
		assert.Nil(t, svc)
	})

	t.Run("returns nil when channel empty", func(t *testing.T) {
		svc := NewService(ServiceConfig{Token: "xoxb-test", Channel: ""})
		assert.Nil(t, svc)
	})

	t.Run("returns service when configured", func(t *testing.T) {
		svc := NewService(ServiceConfig{
			Token:        "xoxb-test",
			Channel:      "C123",
			DashboardURL: "https://example.com",
		})
		assert.NotNil(t, svc)
	})
}

func TestService_SessionFinished_PostsToChannel(t *testing.T) {
	api := &mockSlackAPI{}
	svc := newMockService(t, api)

	svc.SessionFinished(context.Background(), models.Session{
		ID:     "sess-1",
		Status: models.StatusCompleted,
		Intake: models.Intake{ChiefComplaint: "chest pain"},
		Report: &models.Report{Urgency: models.UrgencyUrgent, OverallConfidence: 0.8, StagesCompleted: 14},
	})

	api.mu.Lock()
	defer api.mu.Unlock()
	require.Len(t, api.posts, 1)
	form := api.posts[0]
	assert.Equal(t, "C123", form.Get("channel"))
	assert.Equal(t, "Analysis Complete: chest pain", form.Get("text"))
	assert.Contains(t, form.Get("blocks"), "https://dash.example.com/sessions/sess-1")
}

func TestService_SessionFinished_FailOpen(t *testing.T) {
	api := &mockSlackAPI{fail: true}
	svc := newMockService(t, api)

	// API error is logged, not propagated.
	svc.SessionFinished(context.Background(), models.Session{
		ID:      "sess-2",
		Status:  models.StatusFailed,
		Failure: &models.Failure{StageName: "lab_interpreter", Kind: models.ErrorKindStageExecution, Message: "boom"},
	})

	api.mu.Lock()
	defer api.mu.Unlock()
	assert.Len(t, api.posts, 1)
}
