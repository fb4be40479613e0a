package app

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyellow/moodle-linebot-go/internal/config"
	"github.com/garyellow/moodle-linebot-go/internal/dialogue"
	"github.com/garyellow/moodle-linebot-go/internal/logger"
	"github.com/garyellow/moodle-linebot-go/internal/metrics"
	"github.com/garyellow/moodle-linebot-go/internal/session"
	"github.com/garyellow/moodle-linebot-go/internal/webhook"
)

type fakeMoodle struct {
	err error
}

func (f fakeMoodle) Ready(context.Context) error { return f.err }

type nopMessenger struct{}

func (nopMessenger) Reply(string, []messaging_api.MessageInterface) error { return nil }
func (nopMessenger) ShowLoading(string, int32) error                      { return nil }

type nopDispatcher struct{}

func (nopDispatcher) Handle(context.Context, dialogue.Event) []dialogue.Reply { return nil }

// setupTestApp creates a minimal Application for testing endpoints
func setupTestApp(t *testing.T, readyErr error) *Application {
	t.Helper()

	registry := prometheus.NewRegistry()
	sessions := session.NewStore()
	m := metrics.New(registry, sessions.Len)
	log := logger.NewWithWriter("error", io.Discard)

	return &Application{
		cfg: &config.Config{
			MetricsUsername: "prometheus",
			MetricsPassword: "secret123",
		},
		logger:   log,
		metrics:  m,
		registry: registry,
		moodle:   fakeMoodle{err: readyErr},
		sessions: sessions,
		webhookHandler: webhook.NewHandler(webhook.HandlerConfig{
			ChannelSecret: "secret",
			Messenger:     nopMessenger{},
			Dispatcher:    nopDispatcher{},
			Metrics:       m,
			Logger:        log,
		}),
	}
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var response map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	return response
}

func TestLivenessCheck(t *testing.T) {
	t.Parallel()
	app := setupTestApp(t, errors.New("moodle down"))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	app.router().ServeHTTP(w, req)

	// Liveness never depends on Moodle
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "alive", decode(t, w)["status"])
}

func TestReadinessCheckHealthy(t *testing.T) {
	t.Parallel()
	app := setupTestApp(t, nil)
	app.sessions.Get("U1")

	req := httptest.NewRequest(http.MethodGet, "/ready", nil)
	w := httptest.NewRecorder()
	app.router().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	response := decode(t, w)
	assert.Equal(t, "ready", response["status"])
	assert.Equal(t, "connected", response["moodle"])
	assert.InDelta(t, 1, response["sessions"], 0)
}

func TestReadinessCheckMoodleDown(t *testing.T) {
	t.Parallel()
	app := setupTestApp(t, errors.New("connection refused"))

	req := httptest.NewRequest(http.MethodGet, "/ready", nil)
	w := httptest.NewRecorder()
	app.router().ServeHTTP(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	response := decode(t, w)
	assert.Equal(t, "not ready", response["status"])
	assert.Equal(t, "moodle unavailable", response["reason"])
}

func TestMetricsEndpointRequiresAuth(t *testing.T) {
	t.Parallel()
	app := setupTestApp(t, nil)
	router := app.router()

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/metrics", nil)
	req.Header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte("prometheus:secret123")))
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "moodlebot_sessions")
}

func TestCallbackRejectsBadSignature(t *testing.T) {
	t.Parallel()
	app := setupTestApp(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/callback", nil)
	req.Header.Set("X-Line-Signature", "bad")
	w := httptest.NewRecorder()
	app.router().ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRequestIDMiddleware(t *testing.T) {
	t.Parallel()
	app := setupTestApp(t, nil)
	router := app.router()

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(requestIDHeader, "req-123")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, "req-123", w.Header().Get(requestIDHeader))

	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Len(t, w.Header().Get(requestIDHeader), 36)
}

func TestSecurityHeaders(t *testing.T) {
	t.Parallel()
	app := setupTestApp(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	app.router().ServeHTTP(w, req)

	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.Equal(t, "default-src 'none'", w.Header().Get("Content-Security-Policy"))
}
