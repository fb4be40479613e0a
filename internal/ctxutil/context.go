// Package ctxutil provides type-safe context value management.
// Uses private key types to prevent collisions.
package ctxutil

import (
	"context"
)

type contextKey string

const (
	chatIDKey    contextKey = "ctxutil.chatID"
	requestIDKey contextKey = "ctxutil.requestID"
	moodleIDKey  contextKey = "ctxutil.moodleUserID"
)

// WithChatID adds a chat ID to the context.
// The chat ID is the LINE conversation key that owns a session.
func WithChatID(ctx context.Context, chatID string) context.Context {
	return context.WithValue(ctx, chatIDKey, chatID)
}

// GetChatID retrieves the chat ID from the context.
// Returns the chat ID if found, empty string otherwise.
func GetChatID(ctx context.Context) string {
	if chatID, ok := ctx.Value(chatIDKey).(string); ok {
		return chatID
	}
	return ""
}

// WithRequestID adds a request ID to the context for tracing.
// For webhook events this is the LINE webhook event ID.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// GetRequestID retrieves the request ID from the context.
// Returns the request ID and true if found, empty string and false otherwise.
func GetRequestID(ctx context.Context) (string, bool) {
	requestID, ok := ctx.Value(requestIDKey).(string)
	return requestID, ok && requestID != ""
}

// WithMoodleUserID records the Moodle identity of a logged-in session.
func WithMoodleUserID(ctx context.Context, userID int64) context.Context {
	return context.WithValue(ctx, moodleIDKey, userID)
}

// GetMoodleUserID retrieves the Moodle user ID from the context.
func GetMoodleUserID(ctx context.Context) (int64, bool) {
	userID, ok := ctx.Value(moodleIDKey).(int64)
	return userID, ok && userID > 0
}

// PreserveTracing creates a detached context that preserves tracing values.
// The new context is independent of the parent's cancellation and deadlines.
//
// Use for work that must outlive the HTTP request, such as webhook events
// processed after the 200 response has been sent.
func PreserveTracing(ctx context.Context) context.Context {
	newCtx := context.Background()

	if chatID := GetChatID(ctx); chatID != "" {
		newCtx = WithChatID(newCtx, chatID)
	}
	if requestID, ok := GetRequestID(ctx); ok {
		newCtx = WithRequestID(newCtx, requestID)
	}
	if userID, ok := GetMoodleUserID(ctx); ok {
		newCtx = WithMoodleUserID(newCtx, userID)
	}

	return newCtx
}
