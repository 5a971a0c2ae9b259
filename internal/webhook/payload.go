package webhook

import "encoding/json"

// Payload is the top-level Messenger webhook delivery. One delivery can
// batch events for multiple page entries.
type Payload struct {
	Object string  `json:"object"` // "page" for Messenger deliveries
	Entry  []Entry `json:"entry"`
}

// Entry groups the messaging events delivered for one page.
type Entry struct {
	ID        string           `json:"id"`
	Time      int64            `json:"time"`
	Messaging []MessagingEvent `json:"messaging"`
}

// MessagingEvent is a single sender-scoped event inside an entry.
// Fields other than Message (deliveries, read receipts, postbacks) are
// absent and the event is skipped.
type MessagingEvent struct {
	Sender    Party    `json:"sender"`
	Recipient Party    `json:"recipient"`
	Timestamp int64    `json:"timestamp"`
	Message   *Message `json:"message,omitempty"`
}

// Party identifies a conversation participant by page-scoped id.
type Party struct {
	ID string `json:"id"`
}

// Message is the message body of a messaging event.
type Message struct {
	MID         string       `json:"mid"`
	Text        string       `json:"text"`
	IsEcho      bool         `json:"is_echo"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// Attachment is a non-text message part. The payload shape varies by
// type and is never interpreted here.
type Attachment struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}
