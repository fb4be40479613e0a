// Package config provides application configuration management.
// It loads settings from environment variables (and an optional .env file)
// and provides defaults for the server, Moodle, assistant and observability.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata" // TIMEZONE must resolve in distroless images

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// LINE Bot Configuration
	LineChannelToken  string
	LineChannelSecret string

	// Moodle Configuration
	Moodle MoodleConfig

	// Assistant Configuration
	Assistant AssistantConfig

	// Server Configuration
	Port            string
	LogLevel        string
	ShutdownTimeout time.Duration
	WebhookTimeout  time.Duration
	Timezone        string

	// Metrics Authentication
	MetricsUsername string // Username for /metrics endpoint Basic Auth (default: "prometheus")
	MetricsPassword string // Password for /metrics endpoint Basic Auth (empty = no auth)

	// Observability
	SentryDSN         string
	SentryEnvironment string
	SentrySampleRate  float64
	BetterStackToken  string
}

// MoodleConfig holds the Moodle web-service endpoint and REST credentials.
type MoodleConfig struct {
	BaseURL    string // MOODLE_URL, e.g. https://campus.example.edu
	WSPath     string // WS_PATH, e.g. /webservice/rest/server.php
	LoginPath  string // LOGIN_PATH, e.g. /login/token.php
	RestFormat string // REST_FORMAT, moodlewsrestformat value
	Service    string // WS_SERVICE, external service short name
	Username   string // REST_USERNAME
	Password   string // REST_PASSWORD

	Timeout     time.Duration
	MaxRetries  int
	Concurrency int // Parallel per-item status checks (submissions, quiz grades)
}

// AssistantConfig holds LLM provider settings for the conversational fallback.
type AssistantConfig struct {
	Providers    []string // Ordered provider chain: "openai", "gemini"
	OpenAIAPIKey string
	OpenAIModel  string
	OpenAIURL    string // Optional OpenAI-compatible base URL
	GeminiAPIKey string
	GeminiModel  string
	HistoryLimit int // Max transcript turns sent upstream (0 = unbounded)
	Timeout      time.Duration
}

// Load reads configuration from environment variables
// It attempts to load .env file first, then reads from env vars
func Load() (*Config, error) {
	// Try to load .env file (ignore error if file doesn't exist)
	_ = godotenv.Load()

	cfg := &Config{
		LineChannelToken:  getEnv("LINE_CHANNEL_ACCESS_TOKEN", ""),
		LineChannelSecret: getEnv("LINE_CHANNEL_SECRET", ""),

		Moodle: MoodleConfig{
			BaseURL:     strings.TrimRight(getEnv("MOODLE_URL", ""), "/"),
			WSPath:      getEnv("WS_PATH", "/webservice/rest/server.php"),
			LoginPath:   getEnv("LOGIN_PATH", "/login/token.php"),
			RestFormat:  getEnv("REST_FORMAT", "json"),
			Service:     getEnv("WS_SERVICE", "moodle_mobile_app"),
			Username:    getEnv("REST_USERNAME", ""),
			Password:    getEnv("REST_PASSWORD", ""),
			Timeout:     getDurationEnv("MOODLE_TIMEOUT", MoodleRequest),
			MaxRetries:  getIntEnv("MOODLE_MAX_RETRIES", 3),
			Concurrency: getIntEnv("MOODLE_CONCURRENCY", 4),
		},

		Assistant: AssistantConfig{
			Providers:    getListEnv("LLM_PROVIDERS", []string{"openai"}),
			OpenAIAPIKey: getEnv("OPENAI_API_KEY", ""),
			OpenAIModel:  getEnv("OPENAI_MODEL", "gpt-4o-mini"),
			OpenAIURL:    getEnv("OPENAI_BASE_URL", ""),
			GeminiAPIKey: getEnv("GEMINI_API_KEY", ""),
			GeminiModel:  getEnv("GEMINI_MODEL", "gemini-2.5-flash"),
			HistoryLimit: getIntEnv("ASSISTANT_HISTORY_LIMIT", 40),
			Timeout:      getDurationEnv("ASSISTANT_TIMEOUT", AssistantRequest),
		},

		Port:            getEnv("PORT", "10000"),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		ShutdownTimeout: getDurationEnv("SHUTDOWN_TIMEOUT", GracefulShutdown),
		WebhookTimeout:  getDurationEnv("WEBHOOK_TIMEOUT", WebhookProcessing),
		Timezone:        getEnv("TIMEZONE", "Europe/Madrid"),

		MetricsUsername: getEnv("METRICS_USERNAME", "prometheus"),
		MetricsPassword: getEnv("METRICS_PASSWORD", ""),

		SentryDSN:         getEnv("SENTRY_DSN", ""),
		SentryEnvironment: getEnv("SENTRY_ENVIRONMENT", "production"),
		SentrySampleRate:  getFloatEnv("SENTRY_SAMPLE_RATE", 1.0),
		BetterStackToken:  getEnv("BETTERSTACK_TOKEN", ""),
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if required configuration values are set
func (c *Config) Validate() error {
	var errs []error

	if c.LineChannelToken == "" {
		errs = append(errs, errors.New("LINE_CHANNEL_ACCESS_TOKEN is required"))
	}
	if c.LineChannelSecret == "" {
		errs = append(errs, errors.New("LINE_CHANNEL_SECRET is required"))
	}
	if c.Port == "" {
		errs = append(errs, errors.New("PORT is required"))
	}
	if c.WebhookTimeout <= 0 {
		errs = append(errs, fmt.Errorf("WEBHOOK_TIMEOUT must be positive, got %v", c.WebhookTimeout))
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("TIMEZONE %q is invalid: %w", c.Timezone, err))
	}
	if err := c.Moodle.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("moodle config: %w", err))
	}
	if err := c.Assistant.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("assistant config: %w", err))
	}
	if c.SentrySampleRate < 0 || c.SentrySampleRate > 1 {
		errs = append(errs, fmt.Errorf("SENTRY_SAMPLE_RATE must be within [0, 1], got %v", c.SentrySampleRate))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// Validate checks the Moodle endpoint and credentials.
func (m *MoodleConfig) Validate() error {
	var errs []error

	if m.BaseURL == "" {
		errs = append(errs, errors.New("MOODLE_URL is required"))
	}
	if m.Username == "" || m.Password == "" {
		errs = append(errs, errors.New("REST_USERNAME and REST_PASSWORD are required"))
	}
	if m.Service == "" {
		errs = append(errs, errors.New("WS_SERVICE is required"))
	}
	if m.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("MOODLE_TIMEOUT must be positive, got %v", m.Timeout))
	}
	if m.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("MOODLE_MAX_RETRIES cannot be negative, got %d", m.MaxRetries))
	}
	if m.Concurrency < 1 {
		errs = append(errs, fmt.Errorf("MOODLE_CONCURRENCY must be at least 1, got %d", m.Concurrency))
	}

	return errors.Join(errs...)
}

// Validate checks the provider chain references known providers.
// A provider listed without its API key is skipped at startup, not rejected here.
func (a *AssistantConfig) Validate() error {
	var errs []error

	for _, p := range a.Providers {
		if p != "openai" && p != "gemini" {
			errs = append(errs, fmt.Errorf("unknown LLM provider %q", p))
		}
	}
	if a.HistoryLimit < 0 {
		errs = append(errs, fmt.Errorf("ASSISTANT_HISTORY_LIMIT cannot be negative, got %d", a.HistoryLimit))
	}
	if a.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("ASSISTANT_TIMEOUT must be positive, got %v", a.Timeout))
	}

	return errors.Join(errs...)
}

// HasLLMProvider returns true if at least one LLM provider is configured.
func (a *AssistantConfig) HasLLMProvider() bool {
	return a.OpenAIAPIKey != "" || a.GeminiAPIKey != ""
}

// Location returns the configured time zone; Validate guarantees it loads.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// getEnv retrieves environment variable with fallback to default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getIntEnv retrieves integer environment variable with fallback to default value
func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getDurationEnv retrieves duration environment variable with fallback to default value
func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getFloatEnv retrieves float64 environment variable with fallback to default value
func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

// getListEnv retrieves a comma-separated list, lower-cased and trimmed
func getListEnv(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for item := range strings.SplitSeq(value, ",") {
		if item = strings.ToLower(strings.TrimSpace(item)); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
