package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// Moodle metrics
	MoodleRequestsTotal   *prometheus.CounterVec
	MoodleDurationSeconds *prometheus.HistogramVec
	MoodleTokenRefreshes  prometheus.Counter

	// Assistant metrics
	AssistantRequestsTotal   *prometheus.CounterVec
	AssistantDurationSeconds *prometheus.HistogramVec

	// Dialogue metrics
	TopicRequestsTotal *prometheus.CounterVec
	LoginsTotal        *prometheus.CounterVec
	SessionsActive     prometheus.GaugeFunc

	// Webhook metrics
	WebhookDurationSeconds *prometheus.HistogramVec
	WebhookRequestsTotal   *prometheus.CounterVec

	// HTTP metrics
	HTTPErrorsTotal *prometheus.CounterVec

	// Singleflight metrics
	SingleflightDedupTotal *prometheus.CounterVec
}

// New creates a new Metrics instance with all metrics registered.
// sessions reports the current session count for the gauge; nil reports zero.
func New(registry *prometheus.Registry, sessions func() int) *Metrics {
	if sessions == nil {
		sessions = func() int { return 0 }
	}

	m := &Metrics{
		// Moodle metrics
		MoodleRequestsTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "moodlebot_moodle_requests_total",
				Help: "Total number of Moodle web-service calls by function and status",
			},
			[]string{"function", "status"}, // status: success, error, exception
		),

		MoodleDurationSeconds: promauto.With(registry).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "moodlebot_moodle_duration_seconds",
				Help:    "Moodle web-service call duration in seconds by function",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 15}, // Matches 15s request timeout
			},
			[]string{"function"},
		),

		MoodleTokenRefreshes: promauto.With(registry).NewCounter(
			prometheus.CounterOpts{
				Name: "moodlebot_moodle_token_refreshes_total",
				Help: "Total number of Moodle web-service token fetches",
			},
		),

		// Assistant metrics
		AssistantRequestsTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "moodlebot_assistant_requests_total",
				Help: "Total number of LLM completions by provider and status",
			},
			[]string{"provider", "status"}, // status: success, error, empty
		),

		AssistantDurationSeconds: promauto.With(registry).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "moodlebot_assistant_duration_seconds",
				Help:    "LLM completion duration in seconds by provider",
				Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 30},
			},
			[]string{"provider"},
		),

		// Dialogue metrics
		TopicRequestsTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "moodlebot_topic_requests_total",
				Help: "Total number of menu topic requests by topic and status",
			},
			[]string{"topic", "status"}, // status: success, error
		),

		LoginsTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "moodlebot_logins_total",
				Help: "Total number of login attempts by status",
			},
			[]string{"status"}, // status: success, rejected, error
		),

		SessionsActive: promauto.With(registry).NewGaugeFunc(
			prometheus.GaugeOpts{
				Name: "moodlebot_sessions",
				Help: "Number of chat sessions held in memory",
			},
			func() float64 { return float64(sessions()) },
		),

		// Webhook metrics
		WebhookDurationSeconds: promauto.With(registry).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "moodlebot_webhook_duration_seconds",
				Help:    "Webhook event processing duration in seconds by event type",
				Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"event_type"}, // event_type: message, follow, unfollow
		),

		WebhookRequestsTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "moodlebot_webhook_requests_total",
				Help: "Total number of webhook events by event type and status",
			},
			[]string{"event_type", "status"}, // status: success, error, ignored
		),

		// HTTP metrics
		HTTPErrorsTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "moodlebot_http_errors_total",
				Help: "Total HTTP errors by type and module",
			},
			[]string{"error_type", "module"}, // error_type: invalid_signature, reply_failed, etc.
		),

		// Singleflight metrics
		SingleflightDedupTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "moodlebot_singleflight_dedup_total",
				Help: "Total number of deduplicated requests (requests that waited instead of executing)",
			},
			[]string{"module"},
		),
	}

	return m
}

// RecordMoodleRequest records a Moodle web-service call with status
func (m *Metrics) RecordMoodleRequest(function, status string, duration float64) {
	m.MoodleRequestsTotal.WithLabelValues(function, status).Inc()
	m.MoodleDurationSeconds.WithLabelValues(function).Observe(duration)
}

// RecordTokenRefresh records a Moodle token fetch
func (m *Metrics) RecordTokenRefresh() {
	m.MoodleTokenRefreshes.Inc()
}

// RecordAssistant records an LLM completion
func (m *Metrics) RecordAssistant(provider, status string, duration float64) {
	m.AssistantRequestsTotal.WithLabelValues(provider, status).Inc()
	m.AssistantDurationSeconds.WithLabelValues(provider).Observe(duration)
}

// RecordTopic records a menu topic request
func (m *Metrics) RecordTopic(topic, status string) {
	m.TopicRequestsTotal.WithLabelValues(topic, status).Inc()
}

// RecordLogin records a login attempt
func (m *Metrics) RecordLogin(status string) {
	m.LoginsTotal.WithLabelValues(status).Inc()
}

// RecordWebhook records a webhook event
func (m *Metrics) RecordWebhook(eventType, status string, duration float64) {
	m.WebhookRequestsTotal.WithLabelValues(eventType, status).Inc()
	m.WebhookDurationSeconds.WithLabelValues(eventType).Observe(duration)
}

// RecordHTTPError records HTTP error metrics
func (m *Metrics) RecordHTTPError(errorType, module string) {
	m.HTTPErrorsTotal.WithLabelValues(errorType, module).Inc()
}

// RecordSingleflightDedup records a deduplicated request
func (m *Metrics) RecordSingleflightDedup(module string) {
	m.SingleflightDedupTotal.WithLabelValues(module).Inc()
}
