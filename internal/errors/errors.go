// Package errors provides domain-specific error types and sentinel errors
// for improved error handling across the application.
package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors for common scenarios.
// Use errors.Is() to check these errors in your code.
var (
	// ErrSessionNotFound indicates an action handler was invoked with a
	// session key that is not present in the session store.
	ErrSessionNotFound = errors.New("session not found")

	// ErrDuplicateEvent indicates a webhook event was already processed
	// (platform redelivery).
	ErrDuplicateEvent = errors.New("duplicate event")

	// ErrRateLimitExceeded indicates rate limit has been exceeded.
	ErrRateLimitExceeded = errors.New("rate limit exceeded")

	// ErrUnknownAction indicates the NLU engine requested an action that
	// is not registered in the catalog.
	ErrUnknownAction = errors.New("unknown action")

	// ErrInvalidSignature indicates the webhook payload signature did not
	// match the configured app secret.
	ErrInvalidSignature = errors.New("invalid request signature")

	// ErrTimeout indicates an operation timed out.
	ErrTimeout = errors.New("operation timed out")
)

// SendError represents a platform-reported failure from the Messenger
// Send API. It carries the error object fields from the JSON response.
type SendError struct {
	Code      int
	Subcode   int
	Message   string
	TraceID   string
	Endpoint  string
	Recipient string
}

func (e *SendError) Error() string {
	if e.Subcode != 0 {
		return fmt.Sprintf("send to %s via %s failed: %s (code %d, subcode %d)",
			e.Recipient, e.Endpoint, e.Message, e.Code, e.Subcode)
	}
	return fmt.Sprintf("send to %s via %s failed: %s (code %d)",
		e.Recipient, e.Endpoint, e.Message, e.Code)
}

// EngineError represents a failure reported by the NLU engine while
// running the action loop for a conversation turn.
type EngineError struct {
	SessionKey string
	Step       string // converse step during which the failure occurred
	Cause      error
}

func (e *EngineError) Error() string {
	return fmt.Sprintf("nlu engine failed for session %s at step %q: %v", e.SessionKey, e.Step, e.Cause)
}

func (e *EngineError) Unwrap() error {
	return e.Cause
}
