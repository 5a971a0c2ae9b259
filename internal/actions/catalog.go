// Package actions implements the catalog of named reply actions the NLU
// engine invokes during a conversation turn. Each handler resolves the
// session, loads a canned fragment from the content store, and hands it to
// the outbound sender. The catalog is the bot's entire reply surface: the
// engine decides *which* actions run, the catalog decides *what* they say.
package actions

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/artofyoga/messenger-bot-go/internal/content"
	apperrors "github.com/artofyoga/messenger-bot-go/internal/errors"
	"github.com/artofyoga/messenger-bot-go/internal/logger"
	"github.com/artofyoga/messenger-bot-go/internal/messenger"
	"github.com/artofyoga/messenger-bot-go/internal/metrics"
	"github.com/artofyoga/messenger-bot-go/internal/session"
)

// Sender is the outbound surface handlers use. *messenger.Client satisfies it.
type Sender interface {
	SendText(ctx context.Context, recipientID, text string) error
	SendRaw(ctx context.Context, recipientID, fragment string) error
	SendAction(ctx context.Context, recipientID, action string) error
	PassThreadControl(ctx context.Context, recipientID string, targetAppID int64, metadata string) error
	TakeThreadControl(ctx context.Context, recipientID, metadata string) error
}

// SessionResolver resolves session keys to sessions. *session.Store satisfies it.
type SessionResolver interface {
	Get(key string) (*session.Session, error)
}

// HandlerFunc is the shared handler signature. Handlers assume the session
// exists; the catalog resolves it before dispatch and fails with
// ErrSessionNotFound otherwise.
type HandlerFunc func(ctx context.Context, sess *session.Session) error

// Config configures a Catalog.
type Config struct {
	Sessions SessionResolver
	Sender   Sender
	Content  *content.Store
	Metrics  *metrics.Metrics
	Logger   *logger.Logger

	// Pacing is the delay observed before each send in a multi-message
	// handler chain, so a turn that triggers several sequential sends
	// arrives in human-readable order and rhythm.
	Pacing time.Duration

	// Now returns the current time in the studio's timezone. Defaults to
	// time.Now in Asia/Singapore.
	Now func() time.Time

	// Intn is the random source for the teacher draw. Defaults to rand.Intn.
	Intn func(int) int
}

// Catalog is the registry of named action handlers. It implements
// nlu.Invoker: the engine calls Invoke for named actions and Send for
// free text it composes itself.
type Catalog struct {
	sessions SessionResolver
	sender   Sender
	content  *content.Store
	metrics  *metrics.Metrics
	logger   *logger.Logger
	pacing   time.Duration
	now      func() time.Time
	intn     func(int) int
	handlers map[string]HandlerFunc
}

// NewCatalog creates the catalog with all bot-author-defined actions
// registered.
func NewCatalog(cfg Config) (*Catalog, error) {
	now := cfg.Now
	if now == nil {
		loc, err := time.LoadLocation(studioTimezone)
		if err != nil {
			return nil, fmt.Errorf("load studio timezone: %w", err)
		}
		now = func() time.Time { return time.Now().In(loc) }
	}
	intn := cfg.Intn
	if intn == nil {
		intn = rand.Intn
	}

	c := &Catalog{
		sessions: cfg.Sessions,
		sender:   cfg.Sender,
		content:  cfg.Content,
		metrics:  cfg.Metrics,
		logger:   cfg.Logger.WithModule("actions"),
		pacing:   cfg.Pacing,
		now:      now,
		intn:     intn,
	}
	c.handlers = map[string]HandlerFunc{
		"Welcome":        c.fragmentHandler("welcome_card.json", false),
		"WelcomeTextA":   c.fragmentHandler("welcome_text_a.json", true),
		"WelcomeTextB":   c.fragmentHandler("welcome_text_b.json", true),
		"WelcomeTextC":   c.fragmentHandler("welcome_text_c.json", true),
		"Directions":     c.fragmentHandler("directions_card.json", false),
		"Navigation":     c.fragmentHandler("navigation.json", false),
		"HelpA":          c.fragmentHandler("help_a.json", false),
		"HelpB":          c.fragmentHandler("help_b.json", true),
		"HelpC":          c.fragmentHandler("help_c.json", true),
		"Ok":             c.fragmentHandler("ok.json", true),
		"OperatingHours": c.operatingHours,
		"Teachers":       c.teachers,
		"Typing":         c.typing,
		"LiveChat":       c.liveChat,
		"BotResume":      c.botResume,
	}
	return c, nil
}

// Names returns the registered action names, for startup logging.
func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.handlers))
	for name := range c.handlers {
		names = append(names, name)
	}
	return names
}

// Invoke runs the named handler for the session. Unknown actions and
// missing sessions are explicit errors, never crashes.
func (c *Catalog) Invoke(ctx context.Context, name, sessionKey string) error {
	handler, ok := c.handlers[name]
	if !ok {
		c.metrics.RecordAction(name, "unknown")
		return fmt.Errorf("action %q: %w", name, apperrors.ErrUnknownAction)
	}

	sess, err := c.sessions.Get(sessionKey)
	if err != nil {
		c.metrics.RecordAction(name, "no_session")
		return fmt.Errorf("action %q: %w", name, err)
	}

	c.logger.WithSession(sessionKey).WithField("action", name).Debug("Invoking action")
	if err := handler(ctx, sess); err != nil {
		c.metrics.RecordAction(name, "error")
		return fmt.Errorf("action %q: %w", name, err)
	}
	c.metrics.RecordAction(name, "success")
	return nil
}

// Send is the engine's direct channel for free-text replies it composes
// itself, as opposed to the named canned actions above.
func (c *Catalog) Send(ctx context.Context, sessionKey, text string) error {
	sess, err := c.sessions.Get(sessionKey)
	if err != nil {
		c.metrics.RecordAction("send", "no_session")
		return fmt.Errorf("send: %w", err)
	}

	if err := c.sender.SendText(ctx, sess.UserID, text); err != nil {
		c.metrics.RecordAction("send", "error")
		return fmt.Errorf("send: %w", err)
	}
	c.metrics.RecordAction("send", "success")
	return nil
}

// fragmentHandler builds a handler that sends a fixed canned fragment,
// optionally paced to preserve ordering rhythm within a multi-send turn.
func (c *Catalog) fragmentHandler(fragmentName string, paced bool) HandlerFunc {
	return func(ctx context.Context, sess *session.Session) error {
		fragment, err := c.content.Read(fragmentName)
		if err != nil {
			return err
		}
		if paced {
			if err := c.pace(ctx); err != nil {
				return err
			}
		}
		return c.sender.SendRaw(ctx, sess.UserID, fragment)
	}
}

func (c *Catalog) operatingHours(ctx context.Context, sess *session.Session) error {
	fragment, err := c.content.ReadWith("hours_card.json", map[string]string{
		"STATUS": hoursStatus(c.now()),
	})
	if err != nil {
		return err
	}
	return c.sender.SendRaw(ctx, sess.UserID, fragment)
}

func (c *Catalog) teachers(ctx context.Context, sess *session.Session) error {
	picked := drawTeachers(teacherNames, teacherDrawCount, c.intn)
	fragment, err := c.content.ReadWith("teachers.json", map[string]string{
		"TEACHER_1": picked[0],
		"TEACHER_2": picked[1],
		"TEACHER_3": picked[2],
	})
	if err != nil {
		return err
	}
	return c.sender.SendRaw(ctx, sess.UserID, fragment)
}

func (c *Catalog) typing(ctx context.Context, sess *session.Session) error {
	return c.sender.SendAction(ctx, sess.UserID, "typing_on")
}

// liveChat confirms the handover to the user, then passes thread control
// to the page inbox so a human operator owns the conversation.
func (c *Catalog) liveChat(ctx context.Context, sess *session.Session) error {
	fragment, err := c.content.Read("live_chat.json")
	if err != nil {
		return err
	}
	if err := c.sender.SendRaw(ctx, sess.UserID, fragment); err != nil {
		return err
	}
	return c.sender.PassThreadControl(ctx, sess.UserID, messenger.PageInboxAppID, "user requested a human operator")
}

// botResume takes thread control back from the operator integration.
func (c *Catalog) botResume(ctx context.Context, sess *session.Session) error {
	return c.sender.TakeThreadControl(ctx, sess.UserID, "bot resuming the conversation")
}

// pace blocks for the configured pacing delay, honoring cancellation so a
// canceled turn stops immediately instead of sleeping out the chain.
func (c *Catalog) pace(ctx context.Context) error {
	if c.pacing <= 0 {
		return nil
	}
	timer := time.NewTimer(c.pacing)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
