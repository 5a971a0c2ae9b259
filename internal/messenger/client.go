// Package messenger provides the outbound client for the Messenger
// Platform: the Send API for plain text and rich payloads, and the
// handover protocol endpoints for transferring a conversation to a human
// operator.
package messenger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/artofyoga/messenger-bot-go/internal/config"
	apperrors "github.com/artofyoga/messenger-bot-go/internal/errors"
	"github.com/artofyoga/messenger-bot-go/internal/logger"
	"github.com/artofyoga/messenger-bot-go/internal/metrics"
)

// PageInboxAppID is the app id of the Page Inbox, the built-in human
// operator surface conversations are handed over to.
const PageInboxAppID = 263902037430900

// Client talks to the Graph API send and thread-control endpoints.
type Client struct {
	baseURL    string
	pageToken  string
	httpClient *http.Client
	metrics    *metrics.Metrics
	logger     *logger.Logger
}

// NewClient creates a Send API client. Every request is bounded by the
// configured send timeout so a hung platform response cannot stall a
// conversation turn.
func NewClient(baseURL, pageToken string, m *metrics.Metrics, log *logger.Logger) *Client {
	return &Client{
		baseURL:    baseURL,
		pageToken:  pageToken,
		httpClient: &http.Client{Timeout: config.SendRequest},
		metrics:    m,
		logger:     log.WithModule("messenger"),
	}
}

// SendText sends a plain text message to the recipient.
func (c *Client) SendText(ctx context.Context, recipientID, text string) error {
	body, err := json.Marshal(map[string]any{
		"recipient": map[string]string{"id": recipientID},
		"message":   map[string]string{"text": text},
	})
	if err != nil {
		return fmt.Errorf("marshal text message: %w", err)
	}
	return c.post(ctx, "text", "me/messages", recipientID, body)
}

// SendRaw wraps a recipient envelope around a caller-supplied pre-formatted
// body fragment (attachment templates, quick replies, sender actions) and
// sends it. The fragment is transmitted as-is: malformed fragments surface
// as platform-side errors only, matching the Send API contract the canned
// content is authored against.
func (c *Client) SendRaw(ctx context.Context, recipientID, fragment string) error {
	body := []byte(`{"recipient":{"id":` + strconv.Quote(recipientID) + `},` + fragment + `}`)
	return c.post(ctx, "raw", "me/messages", recipientID, body)
}

// SendAction sends a sender action indicator such as "typing_on".
func (c *Client) SendAction(ctx context.Context, recipientID, action string) error {
	body, err := json.Marshal(map[string]any{
		"recipient":     map[string]string{"id": recipientID},
		"sender_action": action,
	})
	if err != nil {
		return fmt.Errorf("marshal sender action: %w", err)
	}
	return c.post(ctx, "action", "me/messages", recipientID, body)
}

// PassThreadControl transfers conversation ownership to another app,
// typically the Page Inbox so a human operator can take over.
func (c *Client) PassThreadControl(ctx context.Context, recipientID string, targetAppID int64, metadata string) error {
	body, err := json.Marshal(map[string]any{
		"recipient":     map[string]string{"id": recipientID},
		"target_app_id": targetAppID,
		"metadata":      metadata,
	})
	if err != nil {
		return fmt.Errorf("marshal pass_thread_control: %w", err)
	}
	return c.post(ctx, "thread_control", "me/pass_thread_control", recipientID, body)
}

// TakeThreadControl takes conversation ownership back from the current
// owner, returning the user to the bot.
func (c *Client) TakeThreadControl(ctx context.Context, recipientID, metadata string) error {
	body, err := json.Marshal(map[string]any{
		"recipient": map[string]string{"id": recipientID},
		"metadata":  metadata,
	})
	if err != nil {
		return fmt.Errorf("marshal take_thread_control: %w", err)
	}
	return c.post(ctx, "thread_control", "me/take_thread_control", recipientID, body)
}

// graphError is the error object the Graph API embeds in JSON responses.
type graphError struct {
	Message   string `json:"message"`
	Type      string `json:"type"`
	Code      int    `json:"code"`
	Subcode   int    `json:"error_subcode"`
	FBTraceID string `json:"fbtrace_id"`
}

type graphResponse struct {
	Error *graphError `json:"error"`
}

func (c *Client) post(ctx context.Context, kind, endpoint, recipientID string, body []byte) error {
	start := time.Now()
	err := c.doPost(ctx, endpoint, recipientID, body)

	status := "success"
	if err != nil {
		status = "error"
	}
	c.metrics.RecordSend(kind, status, time.Since(start).Seconds())
	return err
}

func (c *Client) doPost(ctx context.Context, endpoint, recipientID string, body []byte) error {
	u := c.baseURL + "/" + endpoint + "?access_token=" + url.QueryEscape(c.pageToken)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build %s request: %w", endpoint, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("post %s: %w", endpoint, err)
	}
	defer func() { _ = resp.Body.Close() }()

	var parsed graphResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return fmt.Errorf("decode %s response (status %d): %w", endpoint, resp.StatusCode, err)
	}

	if parsed.Error != nil && parsed.Error.Message != "" {
		return &apperrors.SendError{
			Code:      parsed.Error.Code,
			Subcode:   parsed.Error.Subcode,
			Message:   parsed.Error.Message,
			TraceID:   parsed.Error.FBTraceID,
			Endpoint:  endpoint,
			Recipient: recipientID,
		}
	}
	return nil
}
