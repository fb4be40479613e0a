// Package app provides application initialization and lifecycle management.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/garyellow/moodle-linebot-go/internal/assistant"
	"github.com/garyellow/moodle-linebot-go/internal/buildinfo"
	"github.com/garyellow/moodle-linebot-go/internal/config"
	"github.com/garyellow/moodle-linebot-go/internal/dialogue"
	"github.com/garyellow/moodle-linebot-go/internal/logger"
	"github.com/garyellow/moodle-linebot-go/internal/metrics"
	"github.com/garyellow/moodle-linebot-go/internal/moodle"
	"github.com/garyellow/moodle-linebot-go/internal/sentry"
	"github.com/garyellow/moodle-linebot-go/internal/session"
	"github.com/garyellow/moodle-linebot-go/internal/webhook"
)

// readyChecker reports whether the Moodle backend can be reached.
type readyChecker interface {
	Ready(ctx context.Context) error
}

// Application manages the application lifecycle and dependencies.
type Application struct {
	cfg            *config.Config
	logger         *logger.Logger
	metrics        *metrics.Metrics
	registry       *prometheus.Registry
	moodle         readyChecker
	sessions       *session.Store
	assistant      *assistant.Assistant
	webhookHandler *webhook.Handler
	server         *http.Server
	wg             sync.WaitGroup // Track background goroutines for graceful shutdown
}

// Initialize creates and initializes a new application with all dependencies.
func Initialize(ctx context.Context, cfg *config.Config) (*Application, error) {
	log := logger.NewWithOptions(logger.Options{
		Level:            cfg.LogLevel,
		BetterStackToken: cfg.BetterStackToken,
	})
	log = log.WithField("service", "moodle-linebot-go")
	if host, err := os.Hostname(); err == nil && host != "" {
		log = log.WithField("instance_id", host)
	}

	// Package-level slog.*Context() calls go through the ContextHandler too
	slog.SetDefault(log.Logger)

	log.Info("Initializing application...")
	if cfg.BetterStackToken != "" {
		log.Info("Better Stack logging enabled")
	}

	if err := sentry.Initialize(sentry.Config{
		DSN:         cfg.SentryDSN,
		Environment: cfg.SentryEnvironment,
		Release:     buildinfo.Release(),
		SampleRate:  cfg.SentrySampleRate,
	}); err != nil {
		log.WithError(err).Warn("Sentry initialization failed, error reporting disabled")
	} else if sentry.IsEnabled() {
		log.WithField("environment", cfg.SentryEnvironment).Info("Sentry error reporting enabled")
	}

	sessions := session.NewStore()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewBuildInfoCollector(),
	)
	m := metrics.New(registry, sessions.Len)

	moodleClient := moodle.NewClient(moodle.ClientConfig{
		BaseURL:    cfg.Moodle.BaseURL,
		WSPath:     cfg.Moodle.WSPath,
		LoginPath:  cfg.Moodle.LoginPath,
		RestFormat: cfg.Moodle.RestFormat,
		Service:    cfg.Moodle.Service,
		Username:   cfg.Moodle.Username,
		Password:   cfg.Moodle.Password,
		Timeout:    cfg.Moodle.Timeout,
		MaxRetries: cfg.Moodle.MaxRetries,
		RetryDelay: config.MoodleRetryInitial,
		MaxDelay:   config.MoodleRetryMax,
	}, m, log)
	moodleService := moodle.NewService(moodleClient, moodle.ServiceOptions{
		Location:    cfg.Location(),
		Concurrency: cfg.Moodle.Concurrency,
	})

	fallback, err := assistant.NewFromConfig(ctx, cfg.Assistant, m, log)
	if err != nil {
		return nil, fmt.Errorf("assistant: %w", err)
	}
	if fallback.Enabled() {
		log.WithField("providers", cfg.Assistant.Providers).Info("LLM assistant enabled")
	} else {
		log.Warn("No LLM provider configured, free text will not be answered")
	}

	controller := dialogue.NewController(sessions, moodleService, fallback, m, log)

	messenger, err := webhook.NewLineMessenger(cfg.LineChannelToken)
	if err != nil {
		return nil, fmt.Errorf("webhook: %w", err)
	}
	webhookHandler := webhook.NewHandler(webhook.HandlerConfig{
		ChannelSecret: cfg.LineChannelSecret,
		Messenger:     messenger,
		Dispatcher:    controller,
		Metrics:       m,
		Logger:        log,
		Timeout:       cfg.WebhookTimeout,
	})

	app := &Application{
		cfg:            cfg,
		logger:         log,
		metrics:        m,
		registry:       registry,
		moodle:         moodleClient,
		sessions:       sessions,
		assistant:      fallback,
		webhookHandler: webhookHandler,
	}

	gin.SetMode(gin.ReleaseMode)
	app.server = &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           app.router(),
		ReadHeaderTimeout: config.WebhookHTTPRead,
		ReadTimeout:       config.WebhookHTTPRead,
		WriteTimeout:      config.WebhookHTTPWrite,
		IdleTimeout:       config.WebhookHTTPIdle,
	}

	log.Info("Initialization complete")
	return app, nil
}

// router builds the HTTP surface.
func (a *Application) router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	if sentry.IsEnabled() {
		router.Use(sentryMiddleware())
	}
	router.Use(requestIDMiddleware())
	router.Use(securityHeadersMiddleware())
	router.Use(loggingMiddleware(a.logger))

	router.GET("/healthz", a.livenessCheck)
	router.HEAD("/healthz", a.livenessCheck)
	router.GET("/ready", a.readinessCheck)
	router.HEAD("/ready", a.readinessCheck)
	router.POST("/callback", a.webhookHandler.Handle)
	router.GET("/metrics",
		metricsAuthMiddleware(a.cfg.MetricsPassword != "", a.cfg.MetricsUsername, a.cfg.MetricsPassword),
		gin.WrapH(promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{})))
	return router
}

func (a *Application) livenessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "alive",
	})
}

func (a *Application) readinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), config.ReadinessProbe)
	defer cancel()

	if err := a.moodle.Ready(ctx); err != nil {
		a.logger.WithError(err).Warn("Readiness check failed: Moodle unavailable")
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not ready",
			"reason": "moodle unavailable",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":   "ready",
		"moodle":   "connected",
		"sessions": a.sessions.Len(),
		"features": gin.H{
			"assistant": a.assistant != nil && a.assistant.Enabled(),
			"sentry":    sentry.IsEnabled(),
		},
	})
}

// Run starts the HTTP server and background jobs and blocks until SIGINT/SIGTERM.
//
// Shutdown order: cancel background jobs and wait for them, stop accepting
// HTTP requests, then drain in-flight webhook events and flush error reports.
func (a *Application) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a.startBackgroundJobs(ctx)
	a.startHTTPServer()

	sig := a.waitForShutdownSignal()
	a.logger.WithField("signal", sig.String()).Info("Received shutdown signal")

	cancel()

	a.logger.Info("Waiting for background jobs to finish...")
	start := time.Now()
	a.wg.Wait()
	a.logger.WithField("duration_ms", time.Since(start).Milliseconds()).
		Info("All background jobs completed")

	return a.shutdown()
}

// startBackgroundJobs starts all background goroutines tracked by WaitGroup.
func (a *Application) startBackgroundJobs(ctx context.Context) {
	a.wg.Go(func() {
		a.prefetchMoodleToken(ctx)
	})
}

// prefetchMoodleToken obtains the REST token at startup so the first chat
// does not pay for it. Failures are logged; the token is fetched lazily later.
func (a *Application) prefetchMoodleToken(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			a.logger.WithField("panic", r).Error("Panic in token prefetch")
		}
	}()

	fetchCtx, cancel := context.WithTimeout(ctx, a.cfg.Moodle.Timeout*time.Duration(a.cfg.Moodle.MaxRetries+1))
	defer cancel()

	start := time.Now()
	if err := a.moodle.Ready(fetchCtx); err != nil {
		a.logger.WithError(err).Warn("Moodle token prefetch failed")
		return
	}
	a.logger.WithField("duration_ms", time.Since(start).Milliseconds()).Info("Moodle token ready")
}

// startHTTPServer starts the HTTP server in a goroutine.
func (a *Application) startHTTPServer() {
	go func() {
		a.logger.WithField("port", a.cfg.Port).Info("Starting HTTP server")
		if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.logger.WithError(err).Error("HTTP server error")
		}
	}()
}

// waitForShutdownSignal blocks until SIGINT/SIGTERM is received.
func (a *Application) waitForShutdownSignal() os.Signal {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	return <-quit
}

// shutdown performs graceful shutdown of the HTTP server and resources.
func (a *Application) shutdown() error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()

	a.logger.Info("Stopping HTTP server...")
	if err := a.server.Shutdown(shutdownCtx); err != nil {
		a.logger.WithError(err).Error("HTTP server shutdown error")
	}

	a.logger.Info("Waiting for webhook events to complete...")
	if err := a.webhookHandler.Shutdown(shutdownCtx); err != nil {
		a.logger.WithError(err).Warn("Webhook handler shutdown timeout")
	}

	if sentry.IsEnabled() && !sentry.Flush(2*time.Second) {
		a.logger.Warn("Sentry flush timed out")
	}

	a.logger.WithField("sessions", a.sessions.Len()).Info("Shutdown complete")
	return nil
}
