// Package config provides centralized timeout constants for the application.
//
// These values are tuned around the Messenger Platform webhook contract:
//   - The platform expects a fast 200 acknowledgment; a non-200 response or
//     a slow one triggers redelivery of the whole batch.
//   - The Send API and the Wit converse API are remote HTTP calls that must
//     be bounded so a hung platform response cannot stall a conversation
//     turn indefinitely.
package config

import "time"

// Webhook timeouts
const (
	// WebhookProcessing is the timeout for processing a single webhook event.
	// This covers the full NLU action loop: several converse round trips plus
	// the sends (with pacing delays) the engine triggers along the way.
	WebhookProcessing = 60 * time.Second

	// WebhookHTTPRead is the HTTP server read timeout for webhook requests.
	// Should be short since the platform sends small JSON payloads.
	WebhookHTTPRead = 10 * time.Second

	// WebhookHTTPWrite is the HTTP server write timeout. The webhook responds
	// before processing, so this only needs to cover response serialization.
	WebhookHTTPWrite = 15 * time.Second

	// WebhookHTTPIdle is the HTTP server idle timeout for keep-alive connections.
	WebhookHTTPIdle = 120 * time.Second
)

// Outbound API timeouts
const (
	// SendRequest bounds a single Send API or thread-control call.
	SendRequest = 10 * time.Second

	// ConverseRequest bounds a single Wit converse round trip. The engine
	// may make several of these per turn, all within WebhookProcessing.
	ConverseRequest = 15 * time.Second
)

// Database timeouts
const (
	// DatabaseBusyTimeout is SQLite busy_timeout pragma value.
	// Handles write contention between the webhook path and cleanup jobs.
	DatabaseBusyTimeout = 5 * time.Second
)
