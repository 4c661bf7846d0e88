package llm

import (
	"encoding/json"
	"fmt"
)

const (
	// DefaultModel is used when a chat request names no model.
	DefaultModel = "gpt-5.2"

	defaultTemperature = 0.7
	defaultTopP        = 1.0
)

// ChatRequest is the chat payload accepted by the yui proxy.
// It mirrors the OpenAI chat completion request and adds a few yui-only
// fields that are never forwarded upstream.
type ChatRequest struct {
	// Model name (e.g., "gpt-5.2", "deepseek-r1", "qwen3-32b")
	Model string `json:"model"`

	// Conversation messages
	Messages []Message `json:"messages"`

	// Generation parameters
	Temperature *float64 `json:"temperature,omitempty"`
	TopP        *float64 `json:"top_p,omitempty"`
	MaxTokens   *int     `json:"max_tokens,omitempty"`
	Seed        *int     `json:"seed,omitempty"`

	// Whether to stream the response
	Stream *bool `json:"stream,omitempty"`

	// System prompt, prepended as a system message before forwarding
	System string `json:"system,omitempty"`

	// ConversationID enables server side recording of the assistant reply
	// into the given conversation.
	ConversationID string `json:"conversation_id,omitempty"`

	// MessageID is the id for the recorded assistant message. Generated when
	// empty.
	MessageID string `json:"message_id,omitempty"`

	// Reasoning forces inline <think> tag splitting on (true) or off (false)
	// for the recorded reply, overriding model name detection.
	Reasoning *bool `json:"reasoning,omitempty"`
}

// ValidationError reports a chat request field outside its allowed range.
type ValidationError struct {
	Field  string
	Reason string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// ParseChatRequest decodes, defaults and validates a proxy chat request.
func ParseChatRequest(body []byte) (*ChatRequest, error) {
	req := &ChatRequest{}
	if err := json.Unmarshal(body, req); err != nil {
		return nil, fmt.Errorf("decoding chat request: %w", err)
	}

	req.ApplyDefaults()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	return req, nil
}

// ApplyDefaults fills unset generation parameters.
func (r *ChatRequest) ApplyDefaults() {
	if r.Model == "" {
		r.Model = DefaultModel
	}
	if r.Temperature == nil {
		t := defaultTemperature
		r.Temperature = &t
	}
	if r.TopP == nil {
		p := defaultTopP
		r.TopP = &p
	}
}

// Validate checks parameter ranges.
func (r *ChatRequest) Validate() error {
	if r.Messages == nil {
		return ValidationError{Field: "messages", Reason: "field required"}
	}
	for i, msg := range r.Messages {
		if msg.Role == "" {
			return ValidationError{Field: fmt.Sprintf("messages[%d].role", i), Reason: "field required"}
		}
	}
	if r.Temperature != nil && (*r.Temperature < 0 || *r.Temperature > 2) {
		return ValidationError{Field: "temperature", Reason: "must be between 0 and 2"}
	}
	if r.TopP != nil && (*r.TopP < 0 || *r.TopP > 1) {
		return ValidationError{Field: "top_p", Reason: "must be between 0 and 1"}
	}
	if r.MaxTokens != nil && *r.MaxTokens < 1 {
		return ValidationError{Field: "max_tokens", Reason: "must be at least 1"}
	}
	return nil
}

// CompletionPayload is the request body sent to an upstream
// /chat/completions endpoint.
type CompletionPayload struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature *float64  `json:"temperature,omitempty"`
	TopP        *float64  `json:"top_p,omitempty"`
	Stream      bool      `json:"stream"`
	MaxTokens   *int      `json:"max_tokens,omitempty"`
	Seed        *int      `json:"seed,omitempty"`
}

// UpstreamPayload builds the upstream request. The system prompt becomes the
// first message; zero max_tokens and seed values are omitted.
func (r *ChatRequest) UpstreamPayload(stream bool) CompletionPayload {
	messages := make([]Message, 0, len(r.Messages)+1)
	if r.System != "" {
		messages = append(messages, NewMessage(RoleSystem, r.System))
	}
	messages = append(messages, r.Messages...)

	payload := CompletionPayload{
		Model:       r.Model,
		Messages:    messages,
		Temperature: r.Temperature,
		TopP:        r.TopP,
		Stream:      stream,
	}
	if r.MaxTokens != nil && *r.MaxTokens > 0 {
		payload.MaxTokens = r.MaxTokens
	}
	if r.Seed != nil && *r.Seed != 0 {
		payload.Seed = r.Seed
	}

	return payload
}
