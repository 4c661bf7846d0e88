package storage

import (
	"bytes"
	"encoding/json"
	"time"
)

const (
	// DefaultFolderID is the folder conversations fall back to. It always
	// exists and cannot be deleted.
	DefaultFolderID = "default-uncategorized"

	// DefaultFolderName is the display name of the default folder.
	DefaultFolderName = "Uncategorized"

	// CopyTitleSuffix is appended to the title of copied conversations.
	CopyTitleSuffix = " (副本)"
)

var (
	// DefaultGlobalSettings are the model settings used until the user
	// changes them.
	DefaultGlobalSettings = json.RawMessage(`{"model":"","temperature":0.7,"top_p":1.0,"max_tokens":null,"system":null}`)

	// DefaultUIPreferences are the UI preferences used until the user
	// changes them.
	DefaultUIPreferences = json.RawMessage(`{"theme":"light","fontSize":"medium","messageDensity":"comfortable","sidebarWidth":280}`)
)

// NowMillis returns the current time as unix milliseconds, the timestamp
// unit of every record.
func NowMillis() int64 {
	return time.Now().UnixMilli()
}

// Folder groups conversations in the sidebar.
type Folder struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Color     *string `json:"color"`
	IsPinned  bool    `json:"isPinned"`
	CreatedAt int64   `json:"createdAt"`
	UpdatedAt int64   `json:"updatedAt"`
}

// Conversation is a chat thread. Messages is empty when a conversation is
// listed rather than fetched.
type Conversation struct {
	ID         string          `json:"id"`
	Title      string          `json:"title"`
	CreatedAt  int64           `json:"createdAt"`
	UpdatedAt  int64           `json:"updatedAt"`
	Settings   json.RawMessage `json:"settings,omitempty"`
	IsPinned   bool            `json:"isPinned"`
	IsArchived bool            `json:"isArchived"`
	FolderID   *string         `json:"folderId"`
	Messages   []*Message      `json:"messages"`
}

// Message is a single chat message.
type Message struct {
	ID               string          `json:"id"`
	ConversationID   string          `json:"-"`
	Role             string          `json:"role"`
	Content          string          `json:"content"`
	ReasoningContent string          `json:"reasoning_content,omitempty"`
	CreatedAt        int64           `json:"createdAt"`
	Attachments      json.RawMessage `json:"attachments,omitempty"`
	ToolCalls        json.RawMessage `json:"toolCalls,omitempty"`
}

// ModelSource is a configured OpenAI-compatible endpoint and the models
// detected on it.
type ModelSource struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	BaseURL   string          `json:"baseUrl"`
	APIKey    string          `json:"apiKey"`
	Models    json.RawMessage `json:"models"`
	CreatedAt int64           `json:"createdAt"`
	UpdatedAt int64           `json:"updatedAt"`
}

// AppSettings is the singleton application settings record.
type AppSettings struct {
	CurrentConversationID *string         `json:"currentConversationId"`
	GlobalSettings        json.RawMessage `json:"globalSettings"`
	UIPreferences         json.RawMessage `json:"uiPreferences"`
}

// DefaultAppSettings returns the settings of a fresh store.
func DefaultAppSettings() *AppSettings {
	return &AppSettings{
		GlobalSettings: DefaultGlobalSettings,
		UIPreferences:  DefaultUIPreferences,
	}
}

// ConversationUpdate holds optional conversation changes. Nil fields are
// left unchanged.
type ConversationUpdate struct {
	Title      *string         `json:"title"`
	UpdatedAt  *int64          `json:"updatedAt"`
	Settings   json.RawMessage `json:"settings"`
	IsPinned   *bool           `json:"isPinned"`
	IsArchived *bool           `json:"isArchived"`
	FolderID   *string         `json:"folderId"`
}

// MessageUpdate holds optional message changes.
type MessageUpdate struct {
	Content          *string `json:"content"`
	ReasoningContent *string `json:"reasoning_content"`
}

// ModelSourceUpdate holds optional model source changes.
type ModelSourceUpdate struct {
	Name      *string         `json:"name"`
	BaseURL   *string         `json:"baseUrl"`
	APIKey    *string         `json:"apiKey"`
	Models    json.RawMessage `json:"models"`
	UpdatedAt *int64          `json:"updatedAt"`
}

// FolderUpdate holds optional folder changes.
type FolderUpdate struct {
	Name      *string `json:"name"`
	Color     *string `json:"color"`
	IsPinned  *bool   `json:"isPinned"`
	UpdatedAt *int64  `json:"updatedAt"`
}

// SettingsUpdate holds optional settings changes.
type SettingsUpdate struct {
	CurrentConversationID *string         `json:"currentConversationId"`
	GlobalSettings        json.RawMessage `json:"globalSettings"`
	UIPreferences         json.RawMessage `json:"uiPreferences"`
}

// MessageHit is a message matched by a search, with its conversation title.
type MessageHit struct {
	ConversationID    string   `json:"conversationId"`
	ConversationTitle string   `json:"conversationTitle"`
	Message           *Message `json:"message"`
}

// IsSet reports whether a raw JSON field carries a non-null value.
func IsSet(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null"))
}
