// Package main provides the Messenger bot server entry point.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/artofyoga/messenger-bot-go/internal/actions"
	"github.com/artofyoga/messenger-bot-go/internal/buildinfo"
	"github.com/artofyoga/messenger-bot-go/internal/config"
	"github.com/artofyoga/messenger-bot-go/internal/content"
	"github.com/artofyoga/messenger-bot-go/internal/logger"
	"github.com/artofyoga/messenger-bot-go/internal/messenger"
	"github.com/artofyoga/messenger-bot-go/internal/metrics"
	"github.com/artofyoga/messenger-bot-go/internal/nlu"
	"github.com/artofyoga/messenger-bot-go/internal/ratelimit"
	"github.com/artofyoga/messenger-bot-go/internal/sentry"
	"github.com/artofyoga/messenger-bot-go/internal/session"
	"github.com/artofyoga/messenger-bot-go/internal/storage"
	"github.com/artofyoga/messenger-bot-go/internal/webhook"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.NewWithOptions(logger.Options{
		Level:               cfg.LogLevel,
		BetterStackToken:    cfg.BetterStackToken,
		BetterStackEndpoint: cfg.BetterStackEndpoint,
	}, os.Stdout)
	log.WithField("version", buildinfo.Version).
		WithField("commit", buildinfo.Commit).
		Info("Starting Art of Yoga Messenger bot")

	// Initialize error tracking (no-op without a token)
	if err := sentry.Initialize(sentry.Config{
		Token:       cfg.SentryToken,
		Host:        cfg.SentryHost,
		Environment: cfg.SentryEnvironment,
		Release:     buildinfo.Version,
	}); err != nil {
		log.WithError(err).Error("Failed to initialize error tracking")
		os.Exit(1)
	}
	if sentry.IsEnabled() {
		defer sentry.Flush(2 * time.Second)
		log.Info("Error tracking initialized")
	}

	// Connect to the event-dedup database
	db, err := storage.New(cfg.SQLitePath())
	if err != nil {
		log.WithError(err).Error("Failed to connect to database")
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()
	log.WithField("path", cfg.SQLitePath()).Info("Database connected")

	// Create Prometheus registry
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	registry.MustRegister(collectors.NewBuildInfoCollector())

	m := metrics.New(registry)
	log.Info("Metrics initialized")

	// Create session store with lifecycle metrics
	sessions := session.NewStore(cfg.SessionIdleTTL, session.Hooks{
		OnCreate: func() { m.SessionsCreated.Inc() },
		OnEvict:  func(count int) { m.SessionsEvicted.Add(float64(count)) },
		OnUpdate: func(live int) { m.SessionsLive.Set(float64(live)) },
	})

	// Create per-sender rate limiter
	limiter := ratelimit.NewPerSender(cfg.UserRateLimitBurst, cfg.UserRateLimitRefillPerSec)
	limiter.OnDrop = func(string) { m.RecordRateLimiterDrop("user") }
	defer limiter.Close()

	// Create outbound Send API client
	sender := messenger.NewClient(cfg.GraphAPIURL, cfg.PageToken, m, log)

	// Create the action catalog
	catalog, err := actions.NewCatalog(actions.Config{
		Sessions: sessions,
		Sender:   sender,
		Content:  content.NewStore(),
		Metrics:  m,
		Logger:   log,
		Pacing:   cfg.MessagePacing,
	})
	if err != nil {
		log.WithError(err).Error("Failed to create action catalog")
		os.Exit(1)
	}
	log.WithField("actions", catalog.Names()).Info("Action catalog created")

	// Create the NLU engine client
	engine := nlu.NewWitClient(cfg.WitAPIURL, cfg.WitToken, cfg.WitVersion, catalog, m, log)

	// Create webhook handler
	webhookHandler := webhook.NewHandler(webhook.HandlerConfig{
		VerifyToken:  cfg.VerifyToken,
		Sessions:     sessions,
		Engine:       engine,
		Sender:       sender,
		Dedup:        db,
		Limiter:      limiter,
		Metrics:      m,
		Logger:       log,
		EventTimeout: cfg.WebhookTimeout,
		MaxEvents:    cfg.MaxEventsPerWebhook,
	})
	log.Info("Webhook handler created")

	// Set Gin mode based on log level
	if cfg.LogLevel == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	// Create Gin router
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(securityHeadersMiddleware())
	router.Use(loggingMiddleware(log))
	if sentry.IsEnabled() {
		router.Use(sentryMiddleware())
	}

	setupRoutes(router, routeDeps{
		config:  cfg,
		webhook: webhookHandler,
		db:      db,
		metrics: m,
		logger:  log,

		registry: registry,
		sessions: sessions,
	})

	// Create HTTP server with timeouts sized for webhook traffic
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  config.WebhookHTTPRead,
		WriteTimeout: config.WebhookHTTPWrite,
		IdleTimeout:  config.WebhookHTTPIdle,
	}

	// Start background jobs
	jobsCtx, cancelJobs := context.WithCancel(context.Background())
	defer cancelJobs()
	jobsDone := startJobs(jobsCtx, jobDeps{
		config:   cfg,
		sessions: sessions,
		db:       db,
		metrics:  m,
		logger:   log,
	})

	// Start server in goroutine
	go func() {
		log.WithField("port", cfg.Port).Info("Server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("Failed to start server")
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	// Stop accepting new deliveries first
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("Server forced to shutdown")
	}

	// Drain in-flight webhook processing
	if err := webhookHandler.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("Timeout waiting for in-flight events")
	}

	// Stop background jobs
	cancelJobs()
	select {
	case <-jobsDone:
		log.Info("Background jobs stopped")
	case <-time.After(5 * time.Second):
		log.Warn("Timeout waiting for background jobs to stop")
	}

	if err := db.Close(); err != nil {
		log.WithError(err).Error("Failed to close database")
	}

	log.Info("Server stopped")
}
