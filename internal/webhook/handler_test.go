package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	apperrors "github.com/artofyoga/messenger-bot-go/internal/errors"
	"github.com/artofyoga/messenger-bot-go/internal/logger"
	"github.com/artofyoga/messenger-bot-go/internal/metrics"
	"github.com/artofyoga/messenger-bot-go/internal/session"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

type engineCall struct {
	sessionKey string
	text       string
	context    string
}

type fakeEngine struct {
	mu         sync.Mutex
	calls      []engineCall
	newContext json.RawMessage
	err        error
}

func (f *fakeEngine) RunActions(_ context.Context, sessionKey, text string, conversationContext json.RawMessage) (json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, engineCall{
		sessionKey: sessionKey,
		text:       text,
		context:    string(conversationContext),
	})
	if f.err != nil {
		return conversationContext, f.err
	}
	return f.newContext, nil
}

func (f *fakeEngine) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeSender struct {
	mu    sync.Mutex
	texts []string
}

func (f *fakeSender) SendText(_ context.Context, _, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts = append(f.texts, text)
	return nil
}

type fakeDedup struct {
	mu   sync.Mutex
	seen map[string]bool
}

func (f *fakeDedup) MarkProcessed(_ context.Context, eventID, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.seen[eventID] {
		return apperrors.ErrDuplicateEvent
	}
	f.seen[eventID] = true
	return nil
}

type fakeLimiter struct {
	allow bool
}

func (f *fakeLimiter) Allow(string) bool { return f.allow }

type testEnv struct {
	handler  *Handler
	router   *gin.Engine
	engine   *fakeEngine
	sender   *fakeSender
	sessions *session.Store
}

func setupTestHandler(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	engine := &fakeEngine{newContext: json.RawMessage(`{"state":"greeted"}`)}
	sender := &fakeSender{}
	sessions := session.NewStore(time.Hour, session.Hooks{})
	m := metrics.New(prometheus.NewRegistry())

	handler := NewHandler(HandlerConfig{
		VerifyToken:  "test_verify_token",
		Sessions:     sessions,
		Engine:       engine,
		Sender:       sender,
		Dedup:        &fakeDedup{seen: make(map[string]bool)},
		Limiter:      &fakeLimiter{allow: true},
		Metrics:      m,
		Logger:       logger.New("error"),
		EventTimeout: 5 * time.Second,
		MaxEvents:    100,
	})

	router := gin.New()
	router.GET("/webhook", handler.HandleVerify)
	router.POST("/webhook", handler.Handle)

	return &testEnv{
		handler:  handler,
		router:   router,
		engine:   engine,
		sender:   sender,
		sessions: sessions,
	}
}

// deliver posts a payload and waits for async processing to finish.
func (env *testEnv) deliver(t *testing.T, body string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := env.handler.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	return w
}

func textDelivery(senderID, mid, text string) string {
	return fmt.Sprintf(`{
		"object": "page",
		"entry": [{"id": "page-1", "time": 1, "messaging": [
			{"sender": {"id": %q}, "message": {"mid": %q, "text": %q}}
		]}]
	}`, senderID, mid, text)
}

func TestHandleVerify(t *testing.T) {
	env := setupTestHandler(t)

	req := httptest.NewRequest(http.MethodGet,
		"/webhook?hub.verify_token=test_verify_token&hub.challenge=challenge-123", nil)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if w.Body.String() != "challenge-123" {
		t.Fatalf("body = %q, want the challenge echoed", w.Body.String())
	}
}

func TestHandleVerifyWrongToken(t *testing.T) {
	env := setupTestHandler(t)

	req := httptest.NewRequest(http.MethodGet,
		"/webhook?hub.verify_token=wrong&hub.challenge=challenge-123", nil)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	if strings.Contains(w.Body.String(), "challenge-123") {
		t.Fatal("challenge must not be echoed on token mismatch")
	}
}

func TestTextMessageRunsActionLoop(t *testing.T) {
	env := setupTestHandler(t)

	w := env.deliver(t, textDelivery("user-1", "mid.1", "hello"))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	if env.engine.callCount() != 1 {
		t.Fatalf("engine calls = %d, want 1", env.engine.callCount())
	}
	call := env.engine.calls[0]
	if call.text != "hello" {
		t.Fatalf("text = %q, want hello", call.text)
	}
	if call.context != `{}` {
		t.Fatalf("first-turn context = %q, want {}", call.context)
	}

	sess := env.sessions.FindOrCreate("user-1")
	if call.sessionKey != sess.Key {
		t.Fatalf("engine saw key %q, store has %q", call.sessionKey, sess.Key)
	}

	got, err := env.sessions.Context(sess.Key)
	if err != nil {
		t.Fatalf("Context: %v", err)
	}
	if string(got) != `{"state":"greeted"}` {
		t.Fatalf("stored context = %s, want the engine's return", got)
	}
}

func TestSecondTurnCarriesUpdatedContext(t *testing.T) {
	env := setupTestHandler(t)

	env.deliver(t, textDelivery("user-1", "mid.1", "hello"))
	env.deliver(t, textDelivery("user-1", "mid.2", "what are your hours"))

	if env.engine.callCount() != 2 {
		t.Fatalf("engine calls = %d, want 2", env.engine.callCount())
	}
	if env.engine.calls[1].context != `{"state":"greeted"}` {
		t.Fatalf("second-turn context = %q, want the first turn's result", env.engine.calls[1].context)
	}
	if env.engine.calls[0].sessionKey != env.engine.calls[1].sessionKey {
		t.Fatal("both turns should share one session key")
	}
}

func TestEngineErrorKeepsStaleContext(t *testing.T) {
	env := setupTestHandler(t)

	env.deliver(t, textDelivery("user-1", "mid.1", "hello"))

	env.engine.err = errors.New("engine unavailable")
	w := env.deliver(t, textDelivery("user-1", "mid.2", "hello again"))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 even when the turn fails", w.Code)
	}

	sess := env.sessions.FindOrCreate("user-1")
	got, err := env.sessions.Context(sess.Key)
	if err != nil {
		t.Fatalf("Context: %v", err)
	}
	if string(got) != `{"state":"greeted"}` {
		t.Fatalf("context = %s, want the pre-failure value kept", got)
	}
}

func TestEchoMessageSkipped(t *testing.T) {
	env := setupTestHandler(t)

	env.deliver(t, `{
		"object": "page",
		"entry": [{"id": "page-1", "time": 1, "messaging": [
			{"sender": {"id": "page-1"}, "message": {"mid": "mid.1", "text": "hi", "is_echo": true}}
		]}]
	}`)

	if env.engine.callCount() != 0 {
		t.Fatal("echo messages must not reach the engine")
	}
}

func TestAttachmentGetsFallback(t *testing.T) {
	env := setupTestHandler(t)

	env.deliver(t, `{
		"object": "page",
		"entry": [{"id": "page-1", "time": 1, "messaging": [
			{"sender": {"id": "user-1"}, "message": {"mid": "mid.1",
				"attachments": [{"type": "image", "payload": {"url": "https://example.com/a.png"}}]}}
		]}]
	}`)

	if env.engine.callCount() != 0 {
		t.Fatal("attachments must not reach the engine")
	}
	if len(env.sender.texts) != 1 || env.sender.texts[0] != attachmentFallbackText {
		t.Fatalf("sent = %v, want the attachment fallback text", env.sender.texts)
	}
}

func TestRedeliverySkipped(t *testing.T) {
	env := setupTestHandler(t)

	env.deliver(t, textDelivery("user-1", "mid.1", "hello"))
	env.deliver(t, textDelivery("user-1", "mid.1", "hello"))

	if env.engine.callCount() != 1 {
		t.Fatalf("engine calls = %d, want 1 (redelivery skipped)", env.engine.callCount())
	}
}

func TestRateLimitedSenderDropped(t *testing.T) {
	env := setupTestHandler(t)
	env.handler.limiter = &fakeLimiter{allow: false}

	w := env.deliver(t, textDelivery("user-1", "mid.1", "hello"))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (drop is silent)", w.Code)
	}
	if env.engine.callCount() != 0 {
		t.Fatal("rate-limited events must not reach the engine")
	}
}

func TestMalformedPayloadRejected(t *testing.T) {
	env := setupTestHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader("not json"))
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestNonPageObjectIgnored(t *testing.T) {
	env := setupTestHandler(t)

	env.deliver(t, `{"object": "instagram", "entry": [{"id": "x", "time": 1, "messaging": [
		{"sender": {"id": "user-1"}, "message": {"mid": "mid.1", "text": "hi"}}
	]}]}`)

	if env.engine.callCount() != 0 {
		t.Fatal("non-page deliveries must be ignored")
	}
}

func TestBatchTruncatedAtLimit(t *testing.T) {
	env := setupTestHandler(t)
	env.handler.maxEvents = 2

	var events []string
	for i := 0; i < 5; i++ {
		events = append(events, fmt.Sprintf(
			`{"sender": {"id": "user-%d"}, "message": {"mid": "mid.%d", "text": "hi"}}`, i, i))
	}
	env.deliver(t, fmt.Sprintf(
		`{"object": "page", "entry": [{"id": "page-1", "time": 1, "messaging": [%s]}]}`,
		strings.Join(events, ",")))

	if env.engine.callCount() != 2 {
		t.Fatalf("engine calls = %d, want 2 (batch truncated)", env.engine.callCount())
	}
}
