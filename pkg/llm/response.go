package llm

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrorResponse is the JSON error body returned by yui HTTP handlers.
type ErrorResponse struct {
	Error string `json:"error"`
}

// ChatCompletion is the subset of a non-streaming OpenAI chat completion
// response that yui reads.
type ChatCompletion struct {
	ID      string             `json:"id,omitempty"`
	Model   string             `json:"model,omitempty"`
	Choices []CompletionChoice `json:"choices"`
	Usage   *Usage             `json:"usage,omitempty"`
}

// CompletionChoice is a single completion choice.
type CompletionChoice struct {
	Index        int               `json:"index"`
	Message      CompletionMessage `json:"message"`
	FinishReason *string           `json:"finish_reason"`
}

// CompletionMessage is the assistant message of a completion choice.
// ReasoningContent is populated by reasoning-aware servers (DeepSeek, vLLM
// and SGLang with a reasoning parser).
type CompletionMessage struct {
	Role             string `json:"role"`
	Content          string `json:"content"`
	ReasoningContent string `json:"reasoning_content,omitempty"`
}

// Usage contains token counts.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens,omitempty"`
	CompletionTokens int `json:"completion_tokens,omitempty"`
	TotalTokens      int `json:"total_tokens,omitempty"`
}

// ParseChatCompletion decodes a non-streaming completion response body.
func ParseChatCompletion(body []byte) (*ChatCompletion, error) {
	resp := &ChatCompletion{}
	if err := json.Unmarshal(body, resp); err != nil {
		return nil, fmt.Errorf("decoding chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("chat completion has no choices")
	}
	return resp, nil
}

// FinishReason returns the finish reason of the first choice, or "".
func (c *ChatCompletion) FinishReason() string {
	if len(c.Choices) == 0 || c.Choices[0].FinishReason == nil {
		return ""
	}
	return *c.Choices[0].FinishReason
}
