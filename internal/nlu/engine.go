// Package nlu defines the contract with the external natural-language
// understanding engine and provides the Wit converse-protocol client that
// drives its action loop.
//
// The engine itself (intent resolution, slot filling, dialogue state) is an
// external service. This package only plumbs a conversation turn through
// it: forward the user's text plus the session's opaque context, and invoke
// whichever catalog actions the engine selects along the way.
package nlu

import (
	"context"
	"encoding/json"
)

// Engine runs a full action loop for one user message. It returns the new
// conversation context to persist; on error the caller keeps the stale
// context and the conversation continues.
type Engine interface {
	RunActions(ctx context.Context, sessionKey, text string, conversationContext json.RawMessage) (json.RawMessage, error)
}

// Invoker is the engine's channel back into the bot: named catalog actions
// plus the generic free-text send the engine composes itself.
type Invoker interface {
	// Invoke runs the named action for the session.
	Invoke(ctx context.Context, name, sessionKey string) error

	// Send delivers engine-composed free text to the session's user.
	Send(ctx context.Context, sessionKey, text string) error
}
