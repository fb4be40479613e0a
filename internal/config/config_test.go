package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("LINE_CHANNEL_ACCESS_TOKEN", "test_token")
	t.Setenv("LINE_CHANNEL_SECRET", "test_secret")
	t.Setenv("MOODLE_URL", "https://campus.example.edu/")
	t.Setenv("REST_USERNAME", "ws-user")
	t.Setenv("REST_PASSWORD", "ws-pass")
}

func TestLoad(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "test_token", cfg.LineChannelToken)
	assert.Equal(t, "test_secret", cfg.LineChannelSecret)

	// Trailing slash is trimmed so paths can be appended
	assert.Equal(t, "https://campus.example.edu", cfg.Moodle.BaseURL)

	// Defaults
	assert.Equal(t, "10000", cfg.Port)
	assert.Equal(t, "/webservice/rest/server.php", cfg.Moodle.WSPath)
	assert.Equal(t, "/login/token.php", cfg.Moodle.LoginPath)
	assert.Equal(t, "json", cfg.Moodle.RestFormat)
	assert.Equal(t, 3, cfg.Moodle.MaxRetries)
	assert.Equal(t, MoodleRequest, cfg.Moodle.Timeout)
	assert.Equal(t, []string{"openai"}, cfg.Assistant.Providers)
	assert.Equal(t, "gpt-4o-mini", cfg.Assistant.OpenAIModel)
	assert.Equal(t, 40, cfg.Assistant.HistoryLimit)
	assert.Equal(t, WebhookProcessing, cfg.WebhookTimeout)
	assert.InDelta(t, 1.0, cfg.SentrySampleRate, 0.0001)
}

func TestLoadOverrides(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("MOODLE_TIMEOUT", "3s")
	t.Setenv("MOODLE_CONCURRENCY", "8")
	t.Setenv("LLM_PROVIDERS", " Gemini , openai,")
	t.Setenv("ASSISTANT_HISTORY_LIMIT", "10")
	t.Setenv("TIMEZONE", "America/Bogota")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 3*time.Second, cfg.Moodle.Timeout)
	assert.Equal(t, 8, cfg.Moodle.Concurrency)
	assert.Equal(t, []string{"gemini", "openai"}, cfg.Assistant.Providers)
	assert.Equal(t, 10, cfg.Assistant.HistoryLimit)
	assert.Equal(t, "America/Bogota", cfg.Location().String())
}

func TestLoadMissingRequired(t *testing.T) {
	t.Setenv("LINE_CHANNEL_ACCESS_TOKEN", "")
	t.Setenv("LINE_CHANNEL_SECRET", "")
	t.Setenv("MOODLE_URL", "")
	t.Setenv("REST_USERNAME", "")
	t.Setenv("REST_PASSWORD", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "LINE_CHANNEL_ACCESS_TOKEN is required")
	assert.Contains(t, err.Error(), "MOODLE_URL is required")
	assert.Contains(t, err.Error(), "REST_USERNAME and REST_PASSWORD are required")
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			LineChannelToken:  "t",
			LineChannelSecret: "s",
			Port:              "10000",
			WebhookTimeout:    time.Minute,
			Timezone:          "UTC",
			SentrySampleRate:  0.5,
			Moodle: MoodleConfig{
				BaseURL:     "https://m.example",
				Username:    "u",
				Password:    "p",
				Service:     "svc",
				Timeout:     time.Second,
				Concurrency: 1,
			},
			Assistant: AssistantConfig{
				Providers: []string{"openai", "gemini"},
				Timeout:   time.Second,
			},
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"bad timezone", func(c *Config) { c.Timezone = "Mars/Olympus" }, "TIMEZONE"},
		{"unknown provider", func(c *Config) { c.Assistant.Providers = []string{"claude"} }, "unknown LLM provider"},
		{"negative history", func(c *Config) { c.Assistant.HistoryLimit = -1 }, "ASSISTANT_HISTORY_LIMIT"},
		{"zero concurrency", func(c *Config) { c.Moodle.Concurrency = 0 }, "MOODLE_CONCURRENCY"},
		{"sample rate", func(c *Config) { c.SentrySampleRate = 2 }, "SENTRY_SAMPLE_RATE"},
		{"zero webhook timeout", func(c *Config) { c.WebhookTimeout = 0 }, "WEBHOOK_TIMEOUT"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestHasLLMProvider(t *testing.T) {
	assert.False(t, (&AssistantConfig{}).HasLLMProvider())
	assert.True(t, (&AssistantConfig{GeminiAPIKey: "k"}).HasLLMProvider())
}
