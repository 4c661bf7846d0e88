package testutils

import (
	"encoding/json"

	"github.com/papercomputeco/yui/pkg/storage"
)

// NewTestMessage creates a message for testing
func NewTestMessage(id, role, content string, createdAt int64) *storage.Message {
	return &storage.Message{
		ID:        id,
		Role:      role,
		Content:   content,
		CreatedAt: createdAt,
	}
}

// NewTestConversation creates a conversation for testing. Timestamps are
// derived from the messages, or 1000 without any.
func NewTestConversation(id, title string, messages ...*storage.Message) *storage.Conversation {
	ts := int64(1000)
	for _, m := range messages {
		ts = max(ts, m.CreatedAt)
	}
	return &storage.Conversation{
		ID:        id,
		Title:     title,
		CreatedAt: ts,
		UpdatedAt: ts,
		Settings:  json.RawMessage(`{"model":"test-model"}`),
		Messages:  messages,
	}
}

// NewTestFolder creates a folder for testing
func NewTestFolder(id, name string, createdAt int64) *storage.Folder {
	return &storage.Folder{
		ID:        id,
		Name:      name,
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}
}

// NewTestModelSource creates a model source for testing
func NewTestModelSource(id, baseURL string, createdAt int64) *storage.ModelSource {
	return &storage.ModelSource{
		ID:        id,
		Name:      "source " + id,
		BaseURL:   baseURL,
		APIKey:    "sk-test",
		Models:    json.RawMessage(`[{"id":"test-model"}]`),
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T {
	return &v
}
