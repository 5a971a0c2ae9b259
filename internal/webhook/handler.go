// Package webhook provides Messenger webhook handling: subscription
// verification, delivery parsing, and dispatching inbound messages
// through the NLU action loop.
package webhook

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	apperrors "github.com/artofyoga/messenger-bot-go/internal/errors"
	"github.com/artofyoga/messenger-bot-go/internal/logger"
	"github.com/artofyoga/messenger-bot-go/internal/metrics"
	"github.com/artofyoga/messenger-bot-go/internal/nlu"
	"github.com/artofyoga/messenger-bot-go/internal/sentry"
	"github.com/artofyoga/messenger-bot-go/internal/session"
	"github.com/gin-gonic/gin"
)

// attachmentFallbackText is the canned reply for messages the bot
// cannot interpret (images, stickers, audio).
const attachmentFallbackText = "Sorry I can only process text messages for now."

// Sender is the outbound surface the handler needs for fallback
// replies. *messenger.Client satisfies it.
type Sender interface {
	SendText(ctx context.Context, recipientID, text string) error
}

// Deduper records processed event ids. *storage.DB satisfies it.
type Deduper interface {
	MarkProcessed(ctx context.Context, eventID, senderID string) error
}

// Limiter gates inbound events per sender. *ratelimit.PerSenderLimiter
// satisfies it.
type Limiter interface {
	Allow(sender string) bool
}

// Handler handles Messenger webhook requests.
type Handler struct {
	verifyToken string
	sessions    *session.Store
	engine      nlu.Engine
	sender      Sender
	dedup       Deduper
	limiter     Limiter
	metrics     *metrics.Metrics
	logger      *logger.Logger

	eventTimeout time.Duration
	maxEvents    int
	wg           sync.WaitGroup
}

// HandlerConfig holds configuration for creating a new Handler.
type HandlerConfig struct {
	VerifyToken string
	Sessions    *session.Store
	Engine      nlu.Engine
	Sender      Sender
	Dedup       Deduper
	Limiter     Limiter
	Metrics     *metrics.Metrics
	Logger      *logger.Logger

	// EventTimeout bounds the action loop for one inbound event.
	EventTimeout time.Duration

	// MaxEvents caps how many events one delivery batch may carry.
	MaxEvents int
}

// NewHandler creates a new webhook handler.
func NewHandler(cfg HandlerConfig) *Handler {
	return &Handler{
		verifyToken:  cfg.VerifyToken,
		sessions:     cfg.Sessions,
		engine:       cfg.Engine,
		sender:       cfg.Sender,
		dedup:        cfg.Dedup,
		limiter:      cfg.Limiter,
		metrics:      cfg.Metrics,
		logger:       cfg.Logger.WithModule("webhook"),
		eventTimeout: cfg.EventTimeout,
		maxEvents:    cfg.MaxEvents,
	}
}

// HandleVerify is the Gin handler for the GET webhook subscription
// handshake. Messenger sends hub.verify_token and expects the
// hub.challenge value echoed back verbatim on success.
func (h *Handler) HandleVerify(c *gin.Context) {
	if c.Query("hub.verify_token") == h.verifyToken {
		c.String(http.StatusOK, c.Query("hub.challenge"))
		return
	}

	h.logger.Warn("Webhook verification failed: wrong verify token")
	c.String(http.StatusBadRequest, "wrong validation token")
}

// Handle is the Gin handler for POST webhook deliveries. The signature
// middleware has already authenticated the body. The delivery is
// acknowledged with 200 immediately and events are processed
// asynchronously, so platform retries are driven by dedup rather than
// response latency.
func (h *Handler) Handle(c *gin.Context) {
	var payload Payload
	if err := c.ShouldBindJSON(&payload); err != nil {
		h.logger.WithError(err).Warn("Failed to parse webhook payload")
		c.Status(http.StatusBadRequest)
		return
	}

	c.Status(http.StatusOK)

	if payload.Object != "page" {
		h.logger.WithField("object", payload.Object).Debug("Ignoring non-page delivery")
		return
	}

	events := flatten(payload)
	if len(events) > h.maxEvents {
		h.logger.WithField("event_count", len(events)).
			WithField("limit", h.maxEvents).
			Warn("Too many events in webhook batch; truncating")
		events = events[:h.maxEvents]
	}

	start := time.Now()
	h.wg.Go(func() {
		defer func() {
			if r := recover(); r != nil {
				h.logger.WithField("panic", r).Error("Panic in async event processing")
			}
		}()

		for _, event := range events {
			h.processEvent(context.Background(), event, start)
		}
	})
}

// flatten collects the messaging events across all entries in delivery
// order.
func flatten(payload Payload) []MessagingEvent {
	var events []MessagingEvent
	for _, entry := range payload.Entry {
		events = append(events, entry.Messaging...)
	}
	return events
}

// processEvent handles a single messaging event asynchronously.
func (h *Handler) processEvent(ctx context.Context, event MessagingEvent, batchStart time.Time) {
	if event.Message == nil {
		h.metrics.RecordWebhookEvent("other", "skipped", 0)
		return
	}
	if event.Message.IsEcho {
		h.metrics.RecordWebhookEvent("echo", "skipped", 0)
		return
	}

	senderID := event.Sender.ID
	if senderID == "" {
		h.logger.Warn("Messaging event without sender id")
		h.metrics.RecordWebhookEvent("other", "skipped", 0)
		return
	}

	log := h.logger.WithField("sender_id", senderID)
	if mid := event.Message.MID; mid != "" {
		log = log.WithField("mid", mid)

		if err := h.dedup.MarkProcessed(ctx, mid, senderID); err != nil {
			if errors.Is(err, apperrors.ErrDuplicateEvent) {
				log.Debug("Skipping redelivered event")
				h.metrics.DuplicateEventsTotal.Inc()
				return
			}
			// Dedup store failure must not lose the message.
			log.WithError(err).Error("Failed to record event id; processing anyway")
		}
	}

	if !h.limiter.Allow(senderID) {
		log.Warn("Sender rate limit exceeded; dropping event")
		h.metrics.RecordWebhookEvent("text", "rate_limited", 0)
		return
	}

	eventStart := time.Now()
	eventType, status := h.dispatch(ctx, log, senderID, event.Message)
	durationSeconds := time.Since(eventStart).Seconds()
	h.metrics.RecordWebhookEvent(eventType, status, durationSeconds)

	log.WithField("event_type", eventType).
		WithField("status", status).
		WithField("event_duration_ms", time.Since(eventStart).Milliseconds()).
		WithField("batch_duration_ms", time.Since(batchStart).Milliseconds()).
		Info("Event processed")
}

// dispatch routes one message to the action loop or the attachment
// fallback and reports (eventType, status) for metrics.
func (h *Handler) dispatch(ctx context.Context, log *logger.Logger, senderID string, msg *Message) (string, string) {
	sess := h.sessions.FindOrCreate(senderID)
	log = log.WithSession(sess.Key)

	if msg.Text == "" {
		if len(msg.Attachments) == 0 {
			return "other", "skipped"
		}

		sendCtx, cancel := context.WithTimeout(ctx, h.eventTimeout)
		defer cancel()

		if err := h.sender.SendText(sendCtx, senderID, attachmentFallbackText); err != nil {
			log.WithError(err).Error("Failed to send attachment fallback")
			return "attachment", "error"
		}
		return "attachment", "success"
	}

	// One turn at a time per session: concurrent deliveries for the
	// same user queue here instead of racing on the context blob.
	err := h.sessions.Do(sess.Key, func() error {
		turnCtx, cancel := context.WithTimeout(ctx, h.eventTimeout)
		defer cancel()

		conversationContext, err := h.sessions.Context(sess.Key)
		if err != nil {
			return err
		}

		newContext, err := h.engine.RunActions(turnCtx, sess.Key, msg.Text, conversationContext)
		if err != nil {
			// Keep the stale context so the conversation survives a
			// failed turn.
			return err
		}
		return h.sessions.UpdateContext(sess.Key, newContext)
	})
	if err != nil {
		log.WithError(err).Error("Action loop failed")
		sentry.CaptureExceptionWithContext(ctx, err)
		return "text", "error"
	}
	return "text", "success"
}

// Shutdown waits for all async event processing to complete.
// It returns an error if the context is canceled before completion.
func (h *Handler) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		defer close(done)
		h.wg.Wait()
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
