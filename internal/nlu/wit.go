package nlu

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/artofyoga/messenger-bot-go/internal/config"
	apperrors "github.com/artofyoga/messenger-bot-go/internal/errors"
	"github.com/artofyoga/messenger-bot-go/internal/logger"
	"github.com/artofyoga/messenger-bot-go/internal/metrics"
)

// maxConverseSteps bounds the action loop for a single turn. The engine
// signals completion with a stop step; a runaway dialogue that never stops
// is cut off here instead of looping forever.
const maxConverseSteps = 10

// converseStep is one step of the Wit converse protocol.
type converseStep struct {
	Type       string          `json:"type"` // action, msg, stop, error
	Action     string          `json:"action"`
	Msg        string          `json:"msg"`
	Entities   json.RawMessage `json:"entities"`
	Confidence float64         `json:"confidence"`
	Error      string          `json:"error"`
}

// WitClient implements Engine against the Wit converse API. Each turn is a
// loop of converse round trips: the first carries the user's message, the
// rest ask "what next" until the engine says stop. Action steps are routed
// to the Invoker; msg steps become generic sends.
type WitClient struct {
	baseURL    string
	token      string
	version    string
	invoker    Invoker
	httpClient *http.Client
	metrics    *metrics.Metrics
	logger     *logger.Logger
}

// NewWitClient creates a converse-protocol client.
func NewWitClient(baseURL, token, version string, invoker Invoker, m *metrics.Metrics, log *logger.Logger) *WitClient {
	return &WitClient{
		baseURL:    baseURL,
		token:      token,
		version:    version,
		invoker:    invoker,
		httpClient: &http.Client{Timeout: config.ConverseRequest},
		metrics:    m,
		logger:     log.WithModule("nlu"),
	}
}

// RunActions runs the action loop for one inbound message. The returned
// context is what the engine left the conversation with; the session's
// opaque blob is threaded through every converse call unchanged by this
// client.
func (c *WitClient) RunActions(ctx context.Context, sessionKey, text string, conversationContext json.RawMessage) (json.RawMessage, error) {
	start := time.Now()
	newContext, err := c.runLoop(ctx, sessionKey, text, conversationContext)

	status := "success"
	if err != nil {
		status = "error"
		if ctx.Err() != nil {
			status = "timeout"
		}
	}
	c.metrics.RecordEngineTurn(status, time.Since(start).Seconds())
	return newContext, err
}

func (c *WitClient) runLoop(ctx context.Context, sessionKey, text string, conversationContext json.RawMessage) (json.RawMessage, error) {
	log := c.logger.WithSession(sessionKey)
	message := text

	for step := 0; step < maxConverseSteps; step++ {
		resp, err := c.converse(ctx, sessionKey, message, conversationContext)
		if err != nil {
			return conversationContext, &apperrors.EngineError{
				SessionKey: sessionKey,
				Step:       "converse",
				Cause:      err,
			}
		}
		// Only the first round trip carries the user's message.
		message = ""

		switch resp.Type {
		case "stop":
			return conversationContext, nil

		case "msg":
			log.WithField("confidence", resp.Confidence).Debug("Engine composed a reply")
			if err := c.invoker.Send(ctx, sessionKey, resp.Msg); err != nil {
				return conversationContext, &apperrors.EngineError{
					SessionKey: sessionKey,
					Step:       "msg",
					Cause:      err,
				}
			}

		case "action":
			log.WithField("action", resp.Action).
				WithField("confidence", resp.Confidence).
				Debug("Engine selected an action")
			if err := c.invoker.Invoke(ctx, resp.Action, sessionKey); err != nil {
				return conversationContext, &apperrors.EngineError{
					SessionKey: sessionKey,
					Step:       "action",
					Cause:      err,
				}
			}

		case "error":
			return conversationContext, &apperrors.EngineError{
				SessionKey: sessionKey,
				Step:       "error",
				Cause:      fmt.Errorf("engine reported: %s", resp.Error),
			}

		default:
			return conversationContext, &apperrors.EngineError{
				SessionKey: sessionKey,
				Step:       resp.Type,
				Cause:      fmt.Errorf("unknown converse step type %q", resp.Type),
			}
		}
	}

	return conversationContext, &apperrors.EngineError{
		SessionKey: sessionKey,
		Step:       "loop",
		Cause:      fmt.Errorf("action loop exceeded %d steps without stop", maxConverseSteps),
	}
}

// converse performs one round trip. The request body is the opaque
// conversation context; the engine owns its shape entirely.
func (c *WitClient) converse(ctx context.Context, sessionKey, message string, conversationContext json.RawMessage) (*converseStep, error) {
	q := url.Values{}
	q.Set("v", c.version)
	q.Set("session_id", sessionKey)
	if message != "" {
		q.Set("q", message)
	}

	body := conversationContext
	if len(body) == 0 {
		body = json.RawMessage(`{}`)
	}

	u := c.baseURL + "/converse?" + q.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build converse request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("converse: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("converse returned status %d", resp.StatusCode)
	}

	var step converseStep
	if err := json.NewDecoder(resp.Body).Decode(&step); err != nil {
		return nil, fmt.Errorf("decode converse response: %w", err)
	}
	return &step, nil
}
