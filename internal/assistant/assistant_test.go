package assistant

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyellow/moodle-linebot-go/internal/config"
	domerrors "github.com/garyellow/moodle-linebot-go/internal/errors"
	"github.com/garyellow/moodle-linebot-go/internal/metrics"
)

// fakeProvider replies with a fixed answer and records what it was sent.
type fakeProvider struct {
	name  string
	reply string
	err   error
	delay time.Duration

	mu    sync.Mutex
	calls [][]Turn
	seeds []string
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) Complete(ctx context.Context, system string, turns []Turn) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, turns)
	f.seeds = append(f.seeds, system)
	f.mu.Unlock()

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return f.reply, f.err
}

func (f *fakeProvider) lastCall() []Turn {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[len(f.calls)-1]
}

func TestRespond_AppendsBothTurns(t *testing.T) {
	p := &fakeProvider{name: "fake", reply: " Hola, ¿en qué te ayudo? "}
	a := New([]Provider{p}, Options{})

	got, err := a.Respond(context.Background(), "u1", "hola")
	require.NoError(t, err)
	assert.Equal(t, "Hola, ¿en qué te ayudo?", got)

	assert.Equal(t, []Turn{{Role: RoleUser, Content: "hola"}}, p.lastCall())
	assert.Equal(t, SystemSeed, p.seeds[0])
	assert.Equal(t, []Turn{
		{Role: RoleUser, Content: "hola"},
		{Role: RoleAssistant, Content: "Hola, ¿en qué te ayudo?"},
	}, a.Transcript("u1"))
}

func TestRespond_SeesRecordedExchanges(t *testing.T) {
	p := &fakeProvider{name: "fake", reply: "ok"}
	a := New([]Provider{p}, Options{})

	a.RecordExchange("u1", "Tareas pendientes", "No tienes tareas pendientes de entregar")
	_, err := a.Respond(context.Background(), "u1", "¿seguro?")
	require.NoError(t, err)

	assert.Equal(t, []Turn{
		{Role: RoleUser, Content: "Tareas pendientes"},
		{Role: RoleAssistant, Content: "No tienes tareas pendientes de entregar"},
		{Role: RoleUser, Content: "¿seguro?"},
	}, p.lastCall())
}

func TestRespond_EmptyReply(t *testing.T) {
	p := &fakeProvider{name: "fake", reply: "   "}
	reg := prometheus.NewRegistry()
	m := metrics.New(reg, nil)
	a := New([]Provider{p}, Options{Metrics: m})

	_, err := a.Respond(context.Background(), "u1", "hola")
	require.Error(t, err)
	assert.True(t, domerrors.IsEmptyReply(err))

	assert.Empty(t, a.Transcript("u1"))
	assert.InDelta(t, 1, testutil.ToFloat64(m.AssistantRequestsTotal.WithLabelValues("fake", "empty")), 0)
}

func TestRespond_FallsBackToNextProvider(t *testing.T) {
	first := &fakeProvider{name: "openai", err: errors.New("503")}
	second := &fakeProvider{name: "gemini", reply: "desde gemini"}
	a := New([]Provider{first, second}, Options{})

	got, err := a.Respond(context.Background(), "u1", "hola")
	require.NoError(t, err)
	assert.Equal(t, "desde gemini", got)
	assert.Len(t, first.calls, 1)
	assert.Len(t, second.calls, 1)
}

func TestRespond_AllProvidersFail(t *testing.T) {
	a := New([]Provider{
		&fakeProvider{name: "a", err: errors.New("boom")},
		&fakeProvider{name: "b", reply: ""},
	}, Options{})

	_, err := a.Respond(context.Background(), "u1", "hola")
	require.Error(t, err)
	assert.True(t, domerrors.IsEmptyReply(err))
}

func TestRespond_FailureKeepsRolesAlternating(t *testing.T) {
	p := &fakeProvider{name: "fake", err: errors.New("503")}
	a := New([]Provider{p}, Options{})

	a.RecordExchange("u1", "Tareas pendientes", "No tienes tareas pendientes de entregar")
	_, err := a.Respond(context.Background(), "u1", "primero")
	require.Error(t, err)

	p.mu.Lock()
	p.err, p.reply = nil, "ok"
	p.mu.Unlock()

	_, err = a.Respond(context.Background(), "u1", "segundo")
	require.NoError(t, err)
	assert.Equal(t, []Turn{
		{Role: RoleUser, Content: "Tareas pendientes"},
		{Role: RoleAssistant, Content: "No tienes tareas pendientes de entregar"},
		{Role: RoleUser, Content: "segundo"},
	}, p.lastCall())
}

func TestRespond_NoProvider(t *testing.T) {
	a := New(nil, Options{})
	assert.False(t, a.Enabled())

	_, err := a.Respond(context.Background(), "u1", "hola")
	assert.ErrorIs(t, err, domerrors.ErrNoProvider)
}

func TestRespond_Timeout(t *testing.T) {
	p := &fakeProvider{name: "slow", reply: "tarde", delay: time.Second}
	a := New([]Provider{p}, Options{Timeout: 10 * time.Millisecond})

	_, err := a.Respond(context.Background(), "u1", "hola")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestTranscript_PerKeyAndReset(t *testing.T) {
	p := &fakeProvider{name: "fake", reply: "ok"}
	a := New([]Provider{p}, Options{})

	_, _ = a.Respond(context.Background(), "u1", "uno")
	_, _ = a.Respond(context.Background(), "u2", "dos")

	assert.Equal(t, []Turn{{Role: RoleUser, Content: "dos"}}, p.lastCall())
	assert.Len(t, a.Transcript("u1"), 2)

	a.Reset("u1")
	assert.Empty(t, a.Transcript("u1"))
	assert.Len(t, a.Transcript("u2"), 2)
}

func TestTranscript_HistoryLimit(t *testing.T) {
	p := &fakeProvider{name: "fake", reply: "ok"}
	a := New([]Provider{p}, Options{HistoryLimit: 3})

	for _, msg := range []string{"uno", "dos", "tres"} {
		_, err := a.Respond(context.Background(), "u1", msg)
		require.NoError(t, err)
	}

	// Stored: [assistant ok, user tres, assistant ok]; sent window starts at a user turn
	assert.Equal(t, 3, a.transcripts.size("u1"))
	assert.Equal(t, []Turn{
		{Role: RoleUser, Content: "dos"},
		{Role: RoleAssistant, Content: "ok"},
		{Role: RoleUser, Content: "tres"},
	}, p.lastCall())
	assert.Equal(t, []Turn{
		{Role: RoleUser, Content: "tres"},
		{Role: RoleAssistant, Content: "ok"},
	}, a.Transcript("u1"))
}

func TestNewFromConfig(t *testing.T) {
	a, err := NewFromConfig(context.Background(), config.AssistantConfig{
		Providers:    []string{"openai", "gemini"},
		OpenAIAPIKey: "sk-test",
		OpenAIModel:  "gpt-4o-mini",
		Timeout:      time.Second,
	}, nil, nil)
	require.NoError(t, err)
	require.Len(t, a.providers, 1)
	assert.Equal(t, "openai", a.providers[0].Name())

	_, err = NewFromConfig(context.Background(), config.AssistantConfig{Providers: []string{"other"}}, nil, nil)
	assert.ErrorIs(t, err, domerrors.ErrInvalidInput)
}
