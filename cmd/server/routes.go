// Package main provides the Messenger bot server entry point.
package main

import (
	"net/http"

	"github.com/artofyoga/messenger-bot-go/internal/config"
	"github.com/artofyoga/messenger-bot-go/internal/logger"
	"github.com/artofyoga/messenger-bot-go/internal/metrics"
	"github.com/artofyoga/messenger-bot-go/internal/session"
	"github.com/artofyoga/messenger-bot-go/internal/signature"
	"github.com/artofyoga/messenger-bot-go/internal/storage"
	"github.com/artofyoga/messenger-bot-go/internal/webhook"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type routeDeps struct {
	config  *config.Config
	webhook *webhook.Handler
	db      *storage.DB
	metrics *metrics.Metrics
	logger  *logger.Logger

	registry *prometheus.Registry
	sessions *session.Store
}

// setupRoutes configures all HTTP routes
func setupRoutes(router *gin.Engine, deps routeDeps) {
	// Root endpoint - plain greeting, doubles as a reachability probe
	rootHandler := func(c *gin.Context) {
		c.String(http.StatusOK, "Hello world, I am a chat bot")
	}
	router.GET("/", rootHandler)
	router.HEAD("/", rootHandler)

	// Liveness probe - process is up, no dependency checks
	healthHandler := func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
	router.GET("/healthz", healthHandler)
	router.HEAD("/healthz", healthHandler)

	// Readiness probe - dependency check
	readyHandler := func(c *gin.Context) {
		if err := deps.db.Ready(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "not ready",
				"reason": err.Error(),
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status":   "ready",
			"database": "connected",
			"sessions": deps.sessions.Len(),
		})
	}
	router.GET("/ready", readyHandler)
	router.HEAD("/ready", readyHandler)

	// Messenger webhook: GET for the subscription handshake, POST for
	// deliveries behind signature verification
	router.GET("/webhook", deps.webhook.HandleVerify)
	router.POST("/webhook",
		signature.Middleware(deps.config.AppSecret, deps.metrics, deps.logger),
		deps.webhook.Handle)

	// Prometheus metrics endpoint
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.registry, promhttp.HandlerOpts{})))
}
