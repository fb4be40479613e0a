// Package webhook receives LINE webhook calls and feeds chat events to the
// dialogue controller, replying with the produced messages.
package webhook

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"
	"github.com/line/line-bot-sdk-go/v8/linebot/webhook"

	"github.com/garyellow/moodle-linebot-go/internal/config"
	"github.com/garyellow/moodle-linebot-go/internal/ctxutil"
	"github.com/garyellow/moodle-linebot-go/internal/dialogue"
	"github.com/garyellow/moodle-linebot-go/internal/lineutil"
	"github.com/garyellow/moodle-linebot-go/internal/logger"
	"github.com/garyellow/moodle-linebot-go/internal/metrics"
)

// Dispatcher produces the replies for one chat event. *dialogue.Controller implements it.
type Dispatcher interface {
	Handle(ctx context.Context, ev dialogue.Event) []dialogue.Reply
}

// Handler handles LINE webhook events
type Handler struct {
	channelSecret string
	messenger     Messenger
	dispatcher    Dispatcher
	metrics       *metrics.Metrics
	logger        *logger.Logger
	timeout       time.Duration
	wg            sync.WaitGroup // In-flight event processing
}

// HandlerConfig holds configuration for creating a new Handler
type HandlerConfig struct {
	ChannelSecret string
	Messenger     Messenger
	Dispatcher    Dispatcher
	Metrics       *metrics.Metrics
	Logger        *logger.Logger
	Timeout       time.Duration // Per event (default: config.WebhookProcessing)
}

// NewHandler creates a new webhook handler.
func NewHandler(cfg HandlerConfig) *Handler {
	if cfg.Timeout <= 0 {
		cfg.Timeout = config.WebhookProcessing
	}
	return &Handler{
		channelSecret: cfg.ChannelSecret,
		messenger:     cfg.Messenger,
		dispatcher:    cfg.Dispatcher,
		metrics:       cfg.Metrics,
		logger:        cfg.Logger.WithModule("webhook"),
		timeout:       cfg.Timeout,
	}
}

// Handle is the Gin handler for the webhook endpoint.
// It answers 200 as soon as the signature is verified and processes the
// events afterwards: in order within a chat, concurrently across chats.
func (h *Handler) Handle(c *gin.Context) {
	cb, err := webhook.ParseRequest(h.channelSecret, c.Request)
	if err != nil {
		if errors.Is(err, webhook.ErrInvalidSignature) {
			h.logger.Warn("Invalid webhook signature")
			h.recordHTTPError("invalid_signature", "webhook")
			c.Status(http.StatusBadRequest)
		} else {
			h.logger.WithError(err).Error("Failed to parse webhook request")
			h.recordHTTPError("parse_error", "webhook")
			c.Status(http.StatusInternalServerError)
		}
		return
	}

	// LINE requires a quick 200 OK
	c.Status(http.StatusOK)

	var events []inbound
	for _, event := range cb.Events {
		if in, ok := toInbound(event); ok {
			events = append(events, in)
		} else {
			h.recordWebhook(eventTypeName(event), "ignored", 0)
		}
	}
	if len(events) == 0 {
		return
	}

	baseCtx := ctxutil.PreserveTracing(c.Request.Context())

	h.wg.Go(func() {
		var chats sync.WaitGroup
		for _, group := range groupByChat(events) {
			chats.Go(func() {
				defer func() {
					if r := recover(); r != nil {
						h.logger.WithField("panic", r).Error("Panic in async event processing")
					}
				}()
				for _, ev := range group {
					h.processEvent(baseCtx, ev)
				}
			})
		}
		chats.Wait()
	})
}

// processEvent runs one event through the dialogue and sends the replies.
func (h *Handler) processEvent(parent context.Context, ev inbound) {
	start := time.Now()

	ctx, cancel := context.WithTimeout(parent, h.timeout)
	defer cancel()
	ctx = ctxutil.WithChatID(ctx, ev.chatID)
	if ev.eventID != "" {
		ctx = ctxutil.WithRequestID(ctx, ev.eventID)
	}

	log := h.logger.WithField("event_type", ev.kind)
	if ev.isRedelivery {
		log = log.WithField("is_redelivery", true)
	}

	// LINE: loadingSeconds must be 5-60, multiple of 5
	if err := h.messenger.ShowLoading(ev.chatID, 60); err != nil {
		log.WithError(err).WarnContext(ctx, "Failed to show loading animation")
	}

	replies := h.dispatcher.Handle(ctx, dialogue.Event{Key: ev.chatID, Text: ev.text})
	messages := buildMessages(replies)

	status := "success"
	if len(messages) > 0 && ev.replyToken != "" {
		if err := h.messenger.Reply(ev.replyToken, messages); err != nil {
			status = "error"
			if strings.Contains(err.Error(), "Invalid reply token") {
				log.WithError(err).DebugContext(ctx, "Reply token already used or invalid")
			} else {
				log.WithError(err).ErrorContext(ctx, "Failed to send reply")
			}
			h.recordHTTPError("reply_failed", "webhook")
		}
	}

	h.recordWebhook(ev.kind, status, time.Since(start).Seconds())
	log.WithField("duration_ms", time.Since(start).Milliseconds()).
		WithField("messages", len(messages)).
		InfoContext(ctx, "Event processed")
}

// buildMessages turns dialogue replies into LINE messages, menus as quick replies.
func buildMessages(replies []dialogue.Reply) []messaging_api.MessageInterface {
	messages := make([]messaging_api.MessageInterface, 0, len(replies))
	for _, r := range replies {
		if r.Text == "" {
			continue
		}
		messages = append(messages, lineutil.NewTextMessageWithMenu(r.Text, r.Menu, dialogue.QuickLabel))
	}
	return lineutil.CapMessages(messages)
}

func (h *Handler) recordWebhook(eventType, status string, duration float64) {
	if h.metrics != nil {
		h.metrics.RecordWebhook(eventType, status, duration)
	}
}

func (h *Handler) recordHTTPError(errorType, module string) {
	if h.metrics != nil {
		h.metrics.RecordHTTPError(errorType, module)
	}
}

func eventTypeName(event webhook.EventInterface) string {
	switch e := event.(type) {
	case webhook.MessageEvent:
		return "message"
	case webhook.FollowEvent:
		return "follow"
	case webhook.UnfollowEvent:
		return "unfollow"
	default:
		return e.GetType()
	}
}

// Shutdown waits for all async event processing to complete.
// It returns an error if the context is canceled before completion.
func (h *Handler) Shutdown(ctx context.Context) error {
	c := make(chan struct{})
	go func() {
		defer close(c)
		h.wg.Wait()
	}()

	select {
	case <-c:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
