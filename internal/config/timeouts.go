// Package config provides centralized timeout constants for the application.
//
// # LINE API Constraints
//
// LINE expects a quick 200 OK for the webhook; replies are sent afterwards
// with the reply token. The loading animation can be shown for up to 60s,
// so a whole turn (Moodle calls + assistant call) is bounded by 60s.
package config

import "time"

// Webhook timeouts
const (
	// WebhookProcessing is the timeout for processing a single webhook event.
	// A pending-assignments turn issues one Moodle call per assignment,
	// so this has to cover several sequential round trips.
	WebhookProcessing = 60 * time.Second

	// WebhookHTTPRead is the HTTP server read timeout for webhook requests.
	// Should be short since LINE sends small JSON payloads.
	WebhookHTTPRead = 10 * time.Second

	// WebhookHTTPWrite is the HTTP server write timeout.
	WebhookHTTPWrite = 15 * time.Second

	// WebhookHTTPIdle is the HTTP server idle timeout for keep-alive connections.
	WebhookHTTPIdle = 120 * time.Second
)

// Upstream timeouts
const (
	// MoodleRequest is the timeout for a single Moodle REST call.
	MoodleRequest = 15 * time.Second

	// MoodleRetryInitial is the initial backoff before retrying a Moodle call.
	MoodleRetryInitial = 500 * time.Millisecond

	// MoodleRetryMax caps the backoff between Moodle retries.
	MoodleRetryMax = 5 * time.Second

	// AssistantRequest is the timeout for one chat completion.
	AssistantRequest = 30 * time.Second

	// ReadinessProbe bounds the token check done by /ready.
	ReadinessProbe = 5 * time.Second
)

// Graceful shutdown
const (
	// GracefulShutdown is the timeout for graceful server shutdown.
	// Allows in-flight webhook turns to complete before forceful termination.
	GracefulShutdown = 30 * time.Second
)
