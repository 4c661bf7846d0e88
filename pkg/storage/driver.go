// Package storage defines the persistence layer for conversations, messages,
// folders, model sources and application settings.
package storage

import "context"

// Driver defines the interface for persisting and retrieving chat data in a
// storage backend. Timestamps are unix milliseconds supplied by the caller
// unless noted otherwise.
type Driver interface {
	// ListConversations returns all conversations without their messages,
	// most recently updated first.
	ListConversations(ctx context.Context) ([]*Conversation, error)

	// GetConversation returns a conversation with its messages ordered by
	// creation time.
	GetConversation(ctx context.Context, id string) (*Conversation, error)

	// CreateConversation stores a conversation and its nested messages.
	// Returns a ConflictError if the id is taken.
	CreateConversation(ctx context.Context, conv *Conversation) (*Conversation, error)

	// UpdateConversation applies the non-nil fields of update.
	UpdateConversation(ctx context.Context, id string, update ConversationUpdate) (*Conversation, error)

	// DeleteConversation removes a conversation and all of its messages.
	DeleteConversation(ctx context.Context, id string) error

	// AddMessage appends a message to a conversation and bumps the
	// conversation's updated time to now.
	AddMessage(ctx context.Context, conversationID string, msg *Message) (*Message, error)

	// PutMessage inserts or fully replaces a message. It does not touch the
	// conversation.
	PutMessage(ctx context.Context, conversationID string, msg *Message) (*Message, error)

	// UpdateMessage applies the non-nil fields of update.
	UpdateMessage(ctx context.Context, conversationID, messageID string, update MessageUpdate) (*Message, error)

	// DeleteMessage removes a single message.
	DeleteMessage(ctx context.Context, conversationID, messageID string) error

	// SearchMessages returns messages whose content or reasoning contains
	// query, case-insensitively. limit <= 0 means no limit.
	SearchMessages(ctx context.Context, query string, limit int) ([]*MessageHit, error)

	// ListModelSources returns all model sources, newest first.
	ListModelSources(ctx context.Context) ([]*ModelSource, error)

	// CreateModelSource stores a model source. Returns a ConflictError if the
	// id is taken.
	CreateModelSource(ctx context.Context, src *ModelSource) (*ModelSource, error)

	// UpdateModelSource applies the non-nil fields of update.
	UpdateModelSource(ctx context.Context, id string, update ModelSourceUpdate) (*ModelSource, error)

	// DeleteModelSource removes a model source.
	DeleteModelSource(ctx context.Context, id string) error

	// GetSettings returns the application settings.
	GetSettings(ctx context.Context) (*AppSettings, error)

	// UpdateSettings applies the non-nil fields of update.
	UpdateSettings(ctx context.Context, update SettingsUpdate) (*AppSettings, error)

	// ListFolders returns all folders, pinned first, then newest first.
	ListFolders(ctx context.Context) ([]*Folder, error)

	// CreateFolder stores a folder. Returns a ConflictError if the id is
	// taken.
	CreateFolder(ctx context.Context, folder *Folder) (*Folder, error)

	// UpdateFolder applies the non-nil fields of update.
	UpdateFolder(ctx context.Context, id string, update FolderUpdate) (*Folder, error)

	// DeleteFolder removes a folder and moves its conversations to the
	// default folder. Returns ErrProtectedFolder for the default folder.
	DeleteFolder(ctx context.Context, id string) error

	// Close closes the store and releases any resources.
	Close() error
}
