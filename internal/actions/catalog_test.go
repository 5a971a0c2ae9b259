package actions

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/artofyoga/messenger-bot-go/internal/content"
	apperrors "github.com/artofyoga/messenger-bot-go/internal/errors"
	"github.com/artofyoga/messenger-bot-go/internal/logger"
	"github.com/artofyoga/messenger-bot-go/internal/metrics"
	"github.com/artofyoga/messenger-bot-go/internal/session"
	"github.com/prometheus/client_golang/prometheus"
)

type sentItem struct {
	kind      string // text, raw, action, pass, take
	recipient string
	payload   string
}

type fakeSender struct {
	sent    []sentItem
	sendErr error
}

func (f *fakeSender) SendText(_ context.Context, recipientID, text string) error {
	f.sent = append(f.sent, sentItem{kind: "text", recipient: recipientID, payload: text})
	return f.sendErr
}

func (f *fakeSender) SendRaw(_ context.Context, recipientID, fragment string) error {
	f.sent = append(f.sent, sentItem{kind: "raw", recipient: recipientID, payload: fragment})
	return f.sendErr
}

func (f *fakeSender) SendAction(_ context.Context, recipientID, action string) error {
	f.sent = append(f.sent, sentItem{kind: "action", recipient: recipientID, payload: action})
	return f.sendErr
}

func (f *fakeSender) PassThreadControl(_ context.Context, recipientID string, targetAppID int64, metadata string) error {
	f.sent = append(f.sent, sentItem{kind: "pass", recipient: recipientID, payload: metadata})
	return f.sendErr
}

func (f *fakeSender) TakeThreadControl(_ context.Context, recipientID, metadata string) error {
	f.sent = append(f.sent, sentItem{kind: "take", recipient: recipientID, payload: metadata})
	return f.sendErr
}

func setupCatalog(t *testing.T, sender *fakeSender) (*Catalog, *session.Store) {
	t.Helper()

	store := session.NewStore(time.Hour, session.Hooks{})
	registry := prometheus.NewRegistry()

	catalog, err := NewCatalog(Config{
		Sessions: store,
		Sender:   sender,
		Content:  content.NewStore(),
		Metrics:  metrics.New(registry),
		Logger:   logger.New("error"),
		Pacing:   0, // no delays in tests
		Now:      func() time.Time { return time.Date(2026, 9, 7, 12, 0, 0, 0, sgt) },
	})
	if err != nil {
		t.Fatalf("NewCatalog failed: %v", err)
	}
	return catalog, store
}

func TestInvoke_Welcome(t *testing.T) {
	sender := &fakeSender{}
	catalog, store := setupCatalog(t, sender)
	sess := store.FindOrCreate("user-9")

	if err := catalog.Invoke(context.Background(), "Welcome", sess.Key); err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}

	if len(sender.sent) != 1 {
		t.Fatalf("Expected 1 send, got %d", len(sender.sent))
	}
	got := sender.sent[0]
	if got.kind != "raw" || got.recipient != "user-9" {
		t.Errorf("Unexpected send: %+v", got)
	}
	if !strings.Contains(got.payload, "template_type") {
		t.Errorf("Welcome should send a template card, got %s", got.payload)
	}
}

func TestInvoke_UnknownAction(t *testing.T) {
	catalog, store := setupCatalog(t, &fakeSender{})
	sess := store.FindOrCreate("user-9")

	err := catalog.Invoke(context.Background(), "Nonexistent", sess.Key)
	if !errors.Is(err, apperrors.ErrUnknownAction) {
		t.Errorf("Expected ErrUnknownAction, got %v", err)
	}
}

func TestInvoke_MissingSession(t *testing.T) {
	catalog, _ := setupCatalog(t, &fakeSender{})

	err := catalog.Invoke(context.Background(), "Welcome", "no-such-session")
	if !errors.Is(err, apperrors.ErrSessionNotFound) {
		t.Errorf("Expected ErrSessionNotFound, got %v", err)
	}
}

func TestInvoke_OperatingHours(t *testing.T) {
	sender := &fakeSender{}
	catalog, store := setupCatalog(t, sender)
	sess := store.FindOrCreate("user-9")

	if err := catalog.Invoke(context.Background(), "OperatingHours", sess.Key); err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}

	payload := sender.sent[0].payload
	// Catalog clock is fixed to Monday noon: open.
	if !strings.Contains(payload, "Currently Open") {
		t.Errorf("Hours card should report open at Monday noon, got %s", payload)
	}
	if strings.Contains(payload, "{{STATUS}}") {
		t.Error("STATUS token should be substituted")
	}
}

func TestInvoke_Teachers(t *testing.T) {
	sender := &fakeSender{}
	catalog, store := setupCatalog(t, sender)
	sess := store.FindOrCreate("user-9")

	if err := catalog.Invoke(context.Background(), "Teachers", sess.Key); err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}

	payload := sender.sent[0].payload
	if strings.Contains(payload, "{{TEACHER_") {
		t.Errorf("Teacher tokens should be substituted, got %s", payload)
	}
}

func TestInvoke_Typing(t *testing.T) {
	sender := &fakeSender{}
	catalog, store := setupCatalog(t, sender)
	sess := store.FindOrCreate("user-9")

	if err := catalog.Invoke(context.Background(), "Typing", sess.Key); err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}
	if sender.sent[0].kind != "action" || sender.sent[0].payload != "typing_on" {
		t.Errorf("Typing should send a typing_on sender action, got %+v", sender.sent[0])
	}
}

func TestInvoke_LiveChatHandsOver(t *testing.T) {
	sender := &fakeSender{}
	catalog, store := setupCatalog(t, sender)
	sess := store.FindOrCreate("user-9")

	if err := catalog.Invoke(context.Background(), "LiveChat", sess.Key); err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}

	if len(sender.sent) != 2 {
		t.Fatalf("Expected confirmation + handover, got %d sends", len(sender.sent))
	}
	if sender.sent[0].kind != "raw" {
		t.Errorf("First send should be the confirmation message, got %+v", sender.sent[0])
	}
	if sender.sent[1].kind != "pass" {
		t.Errorf("Second send should pass thread control, got %+v", sender.sent[1])
	}
}

func TestInvoke_BotResume(t *testing.T) {
	sender := &fakeSender{}
	catalog, store := setupCatalog(t, sender)
	sess := store.FindOrCreate("user-9")

	if err := catalog.Invoke(context.Background(), "BotResume", sess.Key); err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}
	if sender.sent[0].kind != "take" {
		t.Errorf("BotResume should take thread control, got %+v", sender.sent[0])
	}
}

func TestSend_FreeText(t *testing.T) {
	sender := &fakeSender{}
	catalog, store := setupCatalog(t, sender)
	sess := store.FindOrCreate("user-9")

	if err := catalog.Send(context.Background(), sess.Key, "composed by the engine"); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	got := sender.sent[0]
	if got.kind != "text" || got.payload != "composed by the engine" {
		t.Errorf("Unexpected send: %+v", got)
	}
}

func TestSend_MissingSession(t *testing.T) {
	catalog, _ := setupCatalog(t, &fakeSender{})

	err := catalog.Send(context.Background(), "no-such-session", "hello")
	if !errors.Is(err, apperrors.ErrSessionNotFound) {
		t.Errorf("Expected ErrSessionNotFound, got %v", err)
	}
}

func TestPace_CancelledContext(t *testing.T) {
	sender := &fakeSender{}
	store := session.NewStore(time.Hour, session.Hooks{})
	registry := prometheus.NewRegistry()

	catalog, err := NewCatalog(Config{
		Sessions: store,
		Sender:   sender,
		Content:  content.NewStore(),
		Metrics:  metrics.New(registry),
		Logger:   logger.New("error"),
		Pacing:   time.Minute,
		Now:      func() time.Time { return time.Now() },
	})
	if err != nil {
		t.Fatalf("NewCatalog failed: %v", err)
	}
	sess := store.FindOrCreate("user-9")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err = catalog.Invoke(ctx, "WelcomeTextA", sess.Key)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Paced handler should honor cancellation, got %v", err)
	}
	if len(sender.sent) != 0 {
		t.Error("Nothing should be sent after cancellation")
	}
}

func TestNames_CoversCatalog(t *testing.T) {
	catalog, _ := setupCatalog(t, &fakeSender{})

	names := catalog.Names()
	want := []string{"Welcome", "OperatingHours", "Teachers", "LiveChat", "BotResume"}
	for _, w := range want {
		found := false
		for _, n := range names {
			if n == w {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("Catalog should register %s", w)
		}
	}
}
