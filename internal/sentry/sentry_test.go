package sentry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitialize_EmptyDSN(t *testing.T) {
	// Should return nil when DSN is empty (disabled)
	require.NoError(t, Initialize(Config{DSN: ""}))
}

func TestInitialize_InvalidDSN(t *testing.T) {
	err := Initialize(Config{DSN: "not a dsn"})
	assert.Error(t, err)
}

func TestInitialize_ValidConfig(t *testing.T) {
	// Cannot use t.Parallel() as Sentry uses global state
	err := Initialize(Config{
		DSN:         "https://public@sentry.example.com/1",
		Environment: "test",
		Release:     "v0.0.0-test",
		SampleRate:  0, // defaults to 1.0
	})
	require.NoError(t, err)
	assert.True(t, IsEnabled())

	// Captures must not panic with or without a hub in context
	CaptureExceptionWithContext(context.Background(), errors.New("boom"), map[string]string{"topic": "test"})
	CaptureExceptionWithContext(context.Background(), nil, nil)
	CaptureMessage("hello")

	Flush(100 * time.Millisecond)
}
