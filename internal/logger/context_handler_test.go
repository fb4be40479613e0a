package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/garyellow/moodle-linebot-go/internal/ctxutil"
)

func TestContextHandler_Handle(t *testing.T) {
	tests := []struct {
		name           string
		setupContext   func(context.Context) context.Context
		expectedFields map[string]any
	}{
		{
			name: "extracts all context values",
			setupContext: func(ctx context.Context) context.Context {
				ctx = ctxutil.WithChatID(ctx, "U67890")
				ctx = ctxutil.WithRequestID(ctx, "req-abc-123")
				ctx = ctxutil.WithMoodleUserID(ctx, 31)
				return ctx
			},
			expectedFields: map[string]any{
				"chat_id":        "U67890",
				"request_id":     "req-abc-123",
				"moodle_user_id": float64(31),
			},
		},
		{
			name: "handles empty context",
			setupContext: func(ctx context.Context) context.Context {
				return ctx
			},
			expectedFields: map[string]any{},
		},
		{
			name: "skips empty string values",
			setupContext: func(ctx context.Context) context.Context {
				ctx = ctxutil.WithRequestID(ctx, "")
				ctx = ctxutil.WithChatID(ctx, "U12345")
				return ctx
			},
			expectedFields: map[string]any{
				"chat_id": "U12345",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			handler := NewContextHandler(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
			slog.New(handler).InfoContext(tt.setupContext(context.Background()), "test message")

			var entry map[string]any
			if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
				t.Fatalf("Failed to parse JSON log: %v", err)
			}

			for key, want := range tt.expectedFields {
				if got := entry[key]; got != want {
					t.Errorf("field %s = %v, want %v", key, got, want)
				}
			}
			for _, key := range []string{"chat_id", "request_id", "moodle_user_id"} {
				if _, expected := tt.expectedFields[key]; !expected {
					if _, present := entry[key]; present {
						t.Errorf("field %s should be absent, got %v", key, entry[key])
					}
				}
			}
		})
	}
}

func TestContextHandler_WithAttrsKeepsContextExtraction(t *testing.T) {
	var buf bytes.Buffer
	handler := NewContextHandler(slog.NewJSONHandler(&buf, nil))
	log := slog.New(handler).With("module", "dialogue")

	log.InfoContext(ctxutil.WithChatID(context.Background(), "U1"), "hello")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("Failed to parse JSON log: %v", err)
	}
	if entry["module"] != "dialogue" || entry["chat_id"] != "U1" {
		t.Errorf("unexpected entry: %v", entry)
	}
}
