package assistant

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/garyellow/moodle-linebot-go/internal/config"
	domerrors "github.com/garyellow/moodle-linebot-go/internal/errors"
	"github.com/garyellow/moodle-linebot-go/internal/logger"
	"github.com/garyellow/moodle-linebot-go/internal/metrics"
)

// Options tunes an Assistant.
type Options struct {
	HistoryLimit int           // Max stored turns per chat (0 = unbounded)
	Timeout      time.Duration // Per provider call (0 = caller's context only)
	Metrics      *metrics.Metrics
	Logger       *logger.Logger
}

// Assistant answers free text with the first provider that returns content
// and keeps the per-chat transcript.
type Assistant struct {
	providers   []Provider
	transcripts *transcripts
	timeout     time.Duration
	metrics     *metrics.Metrics
	log         *logger.Logger
}

// New creates an Assistant trying providers in order.
func New(providers []Provider, opts Options) *Assistant {
	log := opts.Logger
	if log == nil {
		log = logger.NewWithWriter("error", io.Discard)
	}
	return &Assistant{
		providers:   providers,
		transcripts: newTranscripts(opts.HistoryLimit),
		timeout:     opts.Timeout,
		metrics:     opts.Metrics,
		log:         log.WithModule("assistant"),
	}
}

// NewFromConfig builds the provider chain from configuration.
// Providers listed without an API key are skipped with a warning.
func NewFromConfig(ctx context.Context, cfg config.AssistantConfig, m *metrics.Metrics, log *logger.Logger) (*Assistant, error) {
	if log == nil {
		log = logger.NewWithWriter("error", io.Discard)
	}

	var providers []Provider
	for _, name := range cfg.Providers {
		switch name {
		case "openai":
			if cfg.OpenAIAPIKey == "" {
				log.Warn("OPENAI_API_KEY not set, skipping openai provider")
				continue
			}
			providers = append(providers, NewOpenAIProvider(cfg.OpenAIAPIKey, cfg.OpenAIModel, cfg.OpenAIURL))
		case "gemini":
			if cfg.GeminiAPIKey == "" {
				log.Warn("GEMINI_API_KEY not set, skipping gemini provider")
				continue
			}
			p, err := NewGeminiProvider(ctx, cfg.GeminiAPIKey, cfg.GeminiModel, "")
			if err != nil {
				return nil, err
			}
			providers = append(providers, p)
		default:
			return nil, fmt.Errorf("%w: unknown LLM provider %q", domerrors.ErrInvalidInput, name)
		}
	}

	if len(providers) == 0 {
		log.Warn("No LLM provider configured, free text will not be answered")
	}

	return New(providers, Options{
		HistoryLimit: cfg.HistoryLimit,
		Timeout:      cfg.Timeout,
		Metrics:      m,
		Logger:       log,
	}), nil
}

// Enabled reports whether at least one provider is configured.
func (a *Assistant) Enabled() bool {
	return len(a.providers) > 0
}

// Respond appends the user text to the chat transcript, asks the providers for
// a reply and records it on success. It returns errors.ErrEmptyReply when no
// provider produced content and errors.ErrNoProvider when none is configured.
// On failure the user turn is removed again so roles keep alternating.
func (a *Assistant) Respond(ctx context.Context, key, userText string) (string, error) {
	if len(a.providers) == 0 {
		return "", domerrors.ErrNoProvider
	}

	userTurn := Turn{Role: RoleUser, Content: userText}
	a.transcripts.append(key, userTurn)
	turns := a.transcripts.window(key)

	var errs []error
	for _, p := range a.providers {
		reply, err := a.complete(ctx, p, turns)
		if err != nil {
			a.log.WithError(err).WithField("provider", p.Name()).WarnContext(ctx, "Assistant provider failed")
			errs = append(errs, err)
			continue
		}
		a.transcripts.append(key, Turn{Role: RoleAssistant, Content: reply})
		return reply, nil
	}

	a.transcripts.dropLast(key, userTurn)
	return "", errors.Join(errs...)
}

// complete runs one provider call with its own timeout and records metrics.
func (a *Assistant) complete(ctx context.Context, p Provider, turns []Turn) (string, error) {
	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	start := time.Now()
	reply, err := p.Complete(ctx, SystemSeed, turns)
	reply = strings.TrimSpace(reply)

	status := "success"
	switch {
	case err != nil:
		status = "error"
	case reply == "":
		status = "empty"
		err = fmt.Errorf("%s: %w", p.Name(), domerrors.ErrEmptyReply)
	}
	if a.metrics != nil {
		a.metrics.RecordAssistant(p.Name(), status, time.Since(start).Seconds())
	}
	return reply, err
}

// RecordExchange appends a user/assistant pair without calling any provider,
// so answers produced elsewhere stay in the conversation context.
func (a *Assistant) RecordExchange(key, userText, botText string) {
	a.transcripts.append(key,
		Turn{Role: RoleUser, Content: userText},
		Turn{Role: RoleAssistant, Content: botText},
	)
}

// Reset forgets the transcript of a chat.
func (a *Assistant) Reset(key string) {
	a.transcripts.reset(key)
}

// Transcript returns a copy of the turns kept for a chat, oldest first.
func (a *Assistant) Transcript(key string) []Turn {
	return a.transcripts.window(key)
}
