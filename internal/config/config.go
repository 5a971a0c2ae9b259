// Package config provides application configuration management.
// It loads settings from environment variables and provides defaults for
// server mode, timeouts, session lifetime, and rate limits.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Messenger Platform Configuration
	PageToken   string // FB_PAGE_TOKEN: page access token for the Send API
	AppSecret   string // FB_APP_SECRET: shared secret for webhook signature verification
	VerifyToken string // FB_VERIFY_TOKEN: token echoed during webhook subscription
	GraphAPIURL string // Base URL of the Graph API (overridable for tests)

	// NLU Engine Configuration
	WitToken   string // WIT_TOKEN: access token for the Wit.ai converse API
	WitAPIURL  string // Base URL of the Wit API (overridable for tests)
	WitVersion string // Wit API version date

	// Error Tracking (Better Stack via Sentry SDK)
	SentryToken       string
	SentryHost        string
	SentryEnvironment string

	// Log Shipping (Better Stack)
	BetterStackToken    string
	BetterStackEndpoint string

	// Server Configuration
	Port            string
	LogLevel        string
	ShutdownTimeout time.Duration

	// Data Configuration
	DataDir string // Directory for the SQLite event-dedup database

	// Session Configuration
	SessionIdleTTL      time.Duration // Sessions idle longer than this are evicted
	SessionSweepEvery   time.Duration // How often the expiry sweep runs
	MessagePacing       time.Duration // Delay between sequential sends in a handler chain
	DedupRetention      time.Duration // How long processed event ids are remembered
	DedupCleanupEvery   time.Duration // How often expired dedup rows are removed
	MetricsRefreshEvery time.Duration // How often gauge metrics are refreshed

	// Rate Limits (Token Bucket Algorithm)
	UserRateLimitBurst        float64 // Maximum burst tokens per sender
	UserRateLimitRefillPerSec float64 // Tokens refilled per second

	// Webhook Configuration
	WebhookTimeout      time.Duration // Timeout for processing one webhook event
	MaxEventsPerWebhook int           // Maximum events processed per delivery batch
}

// Load reads configuration from environment variables
// It attempts to load .env file first, then reads from env vars
func Load() (*Config, error) {
	// Try to load .env file (ignore error if file doesn't exist)
	_ = godotenv.Load()

	cfg := &Config{
		// Messenger Platform Configuration
		PageToken:   getEnv("FB_PAGE_TOKEN", ""),
		AppSecret:   getEnv("FB_APP_SECRET", ""),
		VerifyToken: getEnv("FB_VERIFY_TOKEN", ""),
		GraphAPIURL: getEnv("GRAPH_API_URL", "https://graph.facebook.com"),

		// NLU Engine Configuration
		WitToken:   getEnv("WIT_TOKEN", ""),
		WitAPIURL:  getEnv("WIT_API_URL", "https://api.wit.ai"),
		WitVersion: getEnv("WIT_API_VERSION", "20160526"),

		// Error Tracking
		SentryToken:       getEnv("SENTRY_TOKEN", ""),
		SentryHost:        getEnv("SENTRY_HOST", "errors.betterstack.com"),
		SentryEnvironment: getEnv("SENTRY_ENVIRONMENT", "production"),

		// Log Shipping
		BetterStackToken:    getEnv("BETTERSTACK_TOKEN", ""),
		BetterStackEndpoint: getEnv("BETTERSTACK_ENDPOINT", ""),

		// Server Configuration
		Port:            getEnv("PORT", "8445"),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		ShutdownTimeout: getDurationEnv("SHUTDOWN_TIMEOUT", 30*time.Second),

		// Data Configuration
		DataDir: getEnv("DATA_DIR", "./data"),

		// Session Configuration
		SessionIdleTTL:      getDurationEnv("SESSION_IDLE_TTL", 24*time.Hour),
		SessionSweepEvery:   getDurationEnv("SESSION_SWEEP_EVERY", 10*time.Minute),
		MessagePacing:       getDurationEnv("MESSAGE_PACING", 2*time.Second),
		DedupRetention:      getDurationEnv("DEDUP_RETENTION", 24*time.Hour),
		DedupCleanupEvery:   getDurationEnv("DEDUP_CLEANUP_EVERY", time.Hour),
		MetricsRefreshEvery: getDurationEnv("METRICS_REFRESH_EVERY", 5*time.Minute),

		// Rate Limits
		UserRateLimitBurst:        getFloatEnv("USER_RATE_LIMIT_BURST", 15.0),
		UserRateLimitRefillPerSec: getFloatEnv("USER_RATE_LIMIT_REFILL_PER_SEC", 0.5), // 1 per 2s

		// Webhook Configuration
		WebhookTimeout:      getDurationEnv("WEBHOOK_TIMEOUT", WebhookProcessing),
		MaxEventsPerWebhook: getIntEnv("MAX_EVENTS_PER_WEBHOOK", 100),
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

	if c.PageToken == "" {
		errs = append(errs, errors.New("FB_PAGE_TOKEN is required"))
	}
	if c.AppSecret == "" {
		errs = append(errs, errors.New("FB_APP_SECRET is required"))
	}
	if c.VerifyToken == "" {
		errs = append(errs, errors.New("FB_VERIFY_TOKEN is required"))
	}
	if c.WitToken == "" {
		errs = append(errs, errors.New("WIT_TOKEN is required"))
	}
	if c.Port == "" {
		errs = append(errs, errors.New("PORT is required"))
	}
	if c.DataDir == "" {
		errs = append(errs, errors.New("DATA_DIR is required"))
	}
	if c.SessionIdleTTL <= 0 {
		errs = append(errs, fmt.Errorf("SESSION_IDLE_TTL must be positive, got %v", c.SessionIdleTTL))
	}
	if c.SessionSweepEvery <= 0 {
		errs = append(errs, fmt.Errorf("SESSION_SWEEP_EVERY must be positive, got %v", c.SessionSweepEvery))
	}
	if c.MessagePacing < 0 {
		errs = append(errs, fmt.Errorf("MESSAGE_PACING cannot be negative, got %v", c.MessagePacing))
	}
	if c.WebhookTimeout <= 0 {
		errs = append(errs, fmt.Errorf("WEBHOOK_TIMEOUT must be positive, got %v", c.WebhookTimeout))
	}
	if c.MaxEventsPerWebhook <= 0 {
		errs = append(errs, fmt.Errorf("MAX_EVENTS_PER_WEBHOOK must be positive, got %d", c.MaxEventsPerWebhook))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
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

// SQLitePath returns the full path to the SQLite database file
func (c *Config) SQLitePath() string {
	return filepath.Join(c.DataDir, "events.db")
}
