package reasoning

import "github.com/papercomputeco/yui/pkg/llm/delta"

// Snapshot is the displayable state of a message at one point of its
// stream. Each snapshot fully replaces the previous one.
type Snapshot struct {
	Content   string `json:"content"`
	Reasoning string `json:"reasoning,omitempty"`

	// FinishReason is set once the message is final and the stream reported
	// one ("stop", "length", "stopped" for aborts).
	FinishReason string `json:"finish_reason,omitempty"`

	// Error is the transport or upstream error that ended the message.
	Error string `json:"error,omitempty"`

	Final bool `json:"final"`
}

// Stopped reports whether the message was aborted by the caller.
func (s Snapshot) Stopped() bool {
	return s.FinishReason == delta.FinishReasonStopped
}
