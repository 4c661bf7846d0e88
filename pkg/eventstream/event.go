package eventstream

import (
	"time"

	"github.com/google/uuid"
)

const (
	// SchemaVersionV1 is the first version of the event payload schema.
	SchemaVersionV1 = 1

	// EventTypeMessageFinalized is emitted after an assistant message is
	// finalized and persisted.
	EventTypeMessageFinalized = "yui.message.finalized"
)

// MessageFinalizedEvent is a transport-neutral event payload for a
// finalized assistant message.
type MessageFinalizedEvent struct {
	SchemaVersion  int          `json:"schema_version"`
	EventType      string       `json:"event_type"`
	EventID        string       `json:"event_id"`
	EmittedAt      time.Time    `json:"emitted_at"`
	Source         EventSource  `json:"source"`
	RequestMeta    RequestMeta  `json:"request_meta"`
	ConversationID string       `json:"conversation_id"`
	Message        EventMessage `json:"message"`
}

// EventSource identifies the upstream that produced the message.
type EventSource struct {
	Provider string `json:"provider"`
	Model    string `json:"model,omitempty"`
	BaseURL  string `json:"base_url,omitempty"`
}

// RequestMeta captures request lifecycle metadata for the event.
type RequestMeta struct {
	Path        string    `json:"path,omitempty"`
	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`
	DurationMs  int64     `json:"duration_ms"`
	Streaming   bool      `json:"streaming"`
}

// EventMessage is the finalized message content.
type EventMessage struct {
	ID               string  `json:"id"`
	Content          string  `json:"content"`
	ReasoningContent string  `json:"reasoning_content,omitempty"`
	FinishReason     *string `json:"finish_reason,omitempty"`
	Error            string  `json:"error,omitempty"`
}

// NewMessageFinalizedEvent stamps a new event with a fresh id and the
// current time. Duration is derived from the request meta.
func NewMessageFinalizedEvent(conversationID string, msg EventMessage, source EventSource, meta RequestMeta) *MessageFinalizedEvent {
	if !meta.StartedAt.IsZero() && !meta.CompletedAt.IsZero() {
		meta.DurationMs = meta.CompletedAt.Sub(meta.StartedAt).Milliseconds()
	}
	return &MessageFinalizedEvent{
		SchemaVersion:  SchemaVersionV1,
		EventType:      EventTypeMessageFinalized,
		EventID:        uuid.NewString(),
		EmittedAt:      time.Now().UTC(),
		Source:         source,
		RequestMeta:    meta,
		ConversationID: conversationID,
		Message:        msg,
	}
}
