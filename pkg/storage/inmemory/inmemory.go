// Package inmemory provides an in-memory storage driver for tests and
// ephemeral runs.
package inmemory

import (
	"cmp"
	"context"
	"errors"
	"slices"
	"strings"
	"sync"

	"github.com/papercomputeco/yui/pkg/storage"
)

type messageEntry struct {
	msg storage.Message
}

// Driver implements storage.Driver using in-memory maps.
type Driver struct {
	// mu is a read write sync mutex guarding every map below
	mu sync.RWMutex

	conversations map[string]storage.Conversation

	// messages maps a conversation id to its messages keyed by message id
	messages map[string]map[string]*messageEntry

	sources  map[string]storage.ModelSource
	folders  map[string]storage.Folder
	settings storage.AppSettings
}

// NewDriver creates a new in-memory driver seeded with the default folder
// and settings.
func NewDriver() *Driver {
	now := storage.NowMillis()
	return &Driver{
		conversations: make(map[string]storage.Conversation),
		messages:      make(map[string]map[string]*messageEntry),
		sources:       make(map[string]storage.ModelSource),
		folders: map[string]storage.Folder{
			storage.DefaultFolderID: {
				ID:        storage.DefaultFolderID,
				Name:      storage.DefaultFolderName,
				CreatedAt: now,
				UpdatedAt: now,
			},
		},
		settings: *storage.DefaultAppSettings(),
	}
}

// ListConversations returns all conversations without messages.
func (d *Driver) ListConversations(_ context.Context) ([]*storage.Conversation, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]*storage.Conversation, 0, len(d.conversations))
	for _, c := range d.conversations {
		conv := c
		conv.Messages = []*storage.Message{}
		out = append(out, &conv)
	}
	slices.SortStableFunc(out, func(a, b *storage.Conversation) int {
		return cmp.Or(cmp.Compare(b.UpdatedAt, a.UpdatedAt), strings.Compare(a.ID, b.ID))
	})
	return out, nil
}

// GetConversation returns a conversation with its messages.
func (d *Driver) GetConversation(_ context.Context, id string) (*storage.Conversation, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	c, ok := d.conversations[id]
	if !ok {
		return nil, storage.NotFoundError{Kind: storage.KindConversation, ID: id}
	}
	conv := c
	conv.Messages = d.messagesLocked(id)
	return &conv, nil
}

func (d *Driver) messagesLocked(conversationID string) []*storage.Message {
	entries := make([]*messageEntry, 0, len(d.messages[conversationID]))
	for _, e := range d.messages[conversationID] {
		entries = append(entries, e)
	}
	slices.SortFunc(entries, func(a, b *messageEntry) int {
		return cmp.Or(cmp.Compare(a.msg.CreatedAt, b.msg.CreatedAt), strings.Compare(a.msg.ID, b.msg.ID))
	})

	out := make([]*storage.Message, 0, len(entries))
	for _, e := range entries {
		m := e.msg
		out = append(out, &m)
	}
	return out
}

// CreateConversation stores a conversation and its messages.
func (d *Driver) CreateConversation(_ context.Context, conv *storage.Conversation) (*storage.Conversation, error) {
	if conv == nil {
		return nil, errors.New("cannot store nil conversation")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.conversations[conv.ID]; ok {
		return nil, storage.ConflictError{Kind: storage.KindConversation, ID: conv.ID}
	}
	if err := d.checkFolderLocked(conv.FolderID); err != nil {
		return nil, err
	}

	stored := *conv
	stored.Messages = nil
	d.conversations[conv.ID] = stored
	d.messages[conv.ID] = make(map[string]*messageEntry)
	for _, msg := range conv.Messages {
		d.putMessageLocked(conv.ID, msg)
	}

	out := stored
	out.Messages = d.messagesLocked(conv.ID)
	return &out, nil
}

func (d *Driver) checkFolderLocked(folderID *string) error {
	if folderID == nil {
		return nil
	}
	if _, ok := d.folders[*folderID]; !ok {
		return storage.NotFoundError{Kind: storage.KindFolder, ID: *folderID}
	}
	return nil
}

// UpdateConversation applies the non-nil fields of update.
func (d *Driver) UpdateConversation(_ context.Context, id string, update storage.ConversationUpdate) (*storage.Conversation, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	conv, ok := d.conversations[id]
	if !ok {
		return nil, storage.NotFoundError{Kind: storage.KindConversation, ID: id}
	}
	if err := d.checkFolderLocked(update.FolderID); err != nil {
		return nil, err
	}

	if update.Title != nil {
		conv.Title = *update.Title
	}
	if update.UpdatedAt != nil {
		conv.UpdatedAt = *update.UpdatedAt
	}
	if storage.IsSet(update.Settings) {
		conv.Settings = update.Settings
	}
	if update.IsPinned != nil {
		conv.IsPinned = *update.IsPinned
	}
	if update.IsArchived != nil {
		conv.IsArchived = *update.IsArchived
	}
	if update.FolderID != nil {
		folderID := *update.FolderID
		conv.FolderID = &folderID
	}
	d.conversations[conv.ID] = conv

	out := conv
	out.Messages = []*storage.Message{}
	return &out, nil
}

// DeleteConversation removes a conversation and its messages.
func (d *Driver) DeleteConversation(_ context.Context, id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.conversations[id]; !ok {
		return storage.NotFoundError{Kind: storage.KindConversation, ID: id}
	}
	delete(d.conversations, id)
	delete(d.messages, id)
	return nil
}

// AddMessage appends a message and bumps the conversation.
func (d *Driver) AddMessage(_ context.Context, conversationID string, msg *storage.Message) (*storage.Message, error) {
	if msg == nil {
		return nil, errors.New("cannot store nil message")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	conv, ok := d.conversations[conversationID]
	if !ok {
		return nil, storage.NotFoundError{Kind: storage.KindConversation, ID: conversationID}
	}
	if d.messageExistsLocked(msg.ID) {
		return nil, storage.ConflictError{Kind: storage.KindMessage, ID: msg.ID}
	}

	out := d.putMessageLocked(conversationID, msg)
	conv.UpdatedAt = storage.NowMillis()
	d.conversations[conv.ID] = conv
	return out, nil
}

// PutMessage inserts or replaces a message.
func (d *Driver) PutMessage(_ context.Context, conversationID string, msg *storage.Message) (*storage.Message, error) {
	if msg == nil {
		return nil, errors.New("cannot store nil message")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.conversations[conversationID]; !ok {
		return nil, storage.NotFoundError{Kind: storage.KindConversation, ID: conversationID}
	}
	return d.putMessageLocked(conversationID, msg), nil
}

// messageExistsLocked checks message ids across conversations, matching the
// global primary key of the SQL schema.
func (d *Driver) messageExistsLocked(id string) bool {
	for _, msgs := range d.messages {
		if _, ok := msgs[id]; ok {
			return true
		}
	}
	return false
}

func (d *Driver) putMessageLocked(conversationID string, msg *storage.Message) *storage.Message {
	stored := *msg
	// Callers may pass request-scoped strings; keep a copy.
	stored.ConversationID = strings.Clone(conversationID)

	msgs := d.messages[conversationID]
	if existing, ok := msgs[msg.ID]; ok {
		existing.msg = stored
	} else {
		msgs[stored.ID] = &messageEntry{msg: stored}
	}

	out := stored
	return &out
}

// UpdateMessage applies the non-nil fields of update.
func (d *Driver) UpdateMessage(_ context.Context, conversationID, messageID string, update storage.MessageUpdate) (*storage.Message, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	entry, ok := d.messages[conversationID][messageID]
	if !ok {
		return nil, storage.NotFoundError{Kind: storage.KindMessage, ID: messageID}
	}
	if update.Content != nil {
		entry.msg.Content = *update.Content
	}
	if update.ReasoningContent != nil {
		entry.msg.ReasoningContent = *update.ReasoningContent
	}

	out := entry.msg
	return &out, nil
}

// DeleteMessage removes a message.
func (d *Driver) DeleteMessage(_ context.Context, conversationID, messageID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.messages[conversationID][messageID]; !ok {
		return storage.NotFoundError{Kind: storage.KindMessage, ID: messageID}
	}
	delete(d.messages[conversationID], messageID)
	return nil
}

// SearchMessages scans every message for a case-insensitive match.
func (d *Driver) SearchMessages(_ context.Context, query string, limit int) ([]*storage.MessageHit, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	needle := strings.ToLower(query)
	var hits []*storage.MessageHit
	for convID, conv := range d.conversations {
		for _, msg := range d.messagesLocked(convID) {
			if strings.Contains(strings.ToLower(msg.Content), needle) ||
				strings.Contains(strings.ToLower(msg.ReasoningContent), needle) {
				hits = append(hits, &storage.MessageHit{
					ConversationID:    convID,
					ConversationTitle: conv.Title,
					Message:           msg,
				})
			}
		}
	}

	slices.SortFunc(hits, func(a, b *storage.MessageHit) int {
		return cmp.Or(cmp.Compare(b.Message.CreatedAt, a.Message.CreatedAt), strings.Compare(a.Message.ID, b.Message.ID))
	})
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// ListModelSources returns all model sources, newest first.
func (d *Driver) ListModelSources(_ context.Context) ([]*storage.ModelSource, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]*storage.ModelSource, 0, len(d.sources))
	for _, s := range d.sources {
		src := s
		out = append(out, &src)
	}
	slices.SortFunc(out, func(a, b *storage.ModelSource) int {
		return cmp.Or(cmp.Compare(b.CreatedAt, a.CreatedAt), strings.Compare(a.ID, b.ID))
	})
	return out, nil
}

// CreateModelSource stores a model source.
func (d *Driver) CreateModelSource(_ context.Context, src *storage.ModelSource) (*storage.ModelSource, error) {
	if src == nil {
		return nil, errors.New("cannot store nil model source")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.sources[src.ID]; ok {
		return nil, storage.ConflictError{Kind: storage.KindModelSource, ID: src.ID}
	}
	stored := *src
	if !storage.IsSet(stored.Models) {
		stored.Models = []byte("[]")
	}
	d.sources[src.ID] = stored

	out := stored
	return &out, nil
}

// UpdateModelSource applies the non-nil fields of update.
func (d *Driver) UpdateModelSource(_ context.Context, id string, update storage.ModelSourceUpdate) (*storage.ModelSource, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	src, ok := d.sources[id]
	if !ok {
		return nil, storage.NotFoundError{Kind: storage.KindModelSource, ID: id}
	}
	if update.Name != nil {
		src.Name = *update.Name
	}
	if update.BaseURL != nil {
		src.BaseURL = *update.BaseURL
	}
	if update.APIKey != nil {
		src.APIKey = *update.APIKey
	}
	if storage.IsSet(update.Models) {
		src.Models = update.Models
	}
	if update.UpdatedAt != nil {
		src.UpdatedAt = *update.UpdatedAt
	}
	d.sources[src.ID] = src

	out := src
	return &out, nil
}

// DeleteModelSource removes a model source.
func (d *Driver) DeleteModelSource(_ context.Context, id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.sources[id]; !ok {
		return storage.NotFoundError{Kind: storage.KindModelSource, ID: id}
	}
	delete(d.sources, id)
	return nil
}

// GetSettings returns the application settings.
func (d *Driver) GetSettings(_ context.Context) (*storage.AppSettings, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := d.settings
	return &out, nil
}

// UpdateSettings applies the non-nil fields of update.
func (d *Driver) UpdateSettings(_ context.Context, update storage.SettingsUpdate) (*storage.AppSettings, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if update.CurrentConversationID != nil {
		id := *update.CurrentConversationID
		d.settings.CurrentConversationID = &id
	}
	if storage.IsSet(update.GlobalSettings) {
		d.settings.GlobalSettings = update.GlobalSettings
	}
	if storage.IsSet(update.UIPreferences) {
		d.settings.UIPreferences = update.UIPreferences
	}

	out := d.settings
	return &out, nil
}

// ListFolders returns all folders, pinned first, then newest first.
func (d *Driver) ListFolders(_ context.Context) ([]*storage.Folder, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]*storage.Folder, 0, len(d.folders))
	for _, f := range d.folders {
		folder := f
		out = append(out, &folder)
	}
	slices.SortFunc(out, func(a, b *storage.Folder) int {
		if a.IsPinned != b.IsPinned {
			if a.IsPinned {
				return -1
			}
			return 1
		}
		return cmp.Or(cmp.Compare(b.CreatedAt, a.CreatedAt), strings.Compare(a.ID, b.ID))
	})
	return out, nil
}

// CreateFolder stores a folder.
func (d *Driver) CreateFolder(_ context.Context, folder *storage.Folder) (*storage.Folder, error) {
	if folder == nil {
		return nil, errors.New("cannot store nil folder")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.folders[folder.ID]; ok {
		return nil, storage.ConflictError{Kind: storage.KindFolder, ID: folder.ID}
	}
	d.folders[folder.ID] = *folder

	out := *folder
	return &out, nil
}

// UpdateFolder applies the non-nil fields of update.
func (d *Driver) UpdateFolder(_ context.Context, id string, update storage.FolderUpdate) (*storage.Folder, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	folder, ok := d.folders[id]
	if !ok {
		return nil, storage.NotFoundError{Kind: storage.KindFolder, ID: id}
	}
	if update.Name != nil {
		folder.Name = *update.Name
	}
	if update.Color != nil {
		color := *update.Color
		folder.Color = &color
	}
	if update.IsPinned != nil {
		folder.IsPinned = *update.IsPinned
	}
	if update.UpdatedAt != nil {
		folder.UpdatedAt = *update.UpdatedAt
	}
	d.folders[folder.ID] = folder

	out := folder
	return &out, nil
}

// DeleteFolder removes a folder, moving its conversations to the default
// folder.
func (d *Driver) DeleteFolder(_ context.Context, id string) error {
	if id == storage.DefaultFolderID {
		return storage.ErrProtectedFolder
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.folders[id]; !ok {
		return storage.NotFoundError{Kind: storage.KindFolder, ID: id}
	}

	for convID, conv := range d.conversations {
		if conv.FolderID != nil && *conv.FolderID == id {
			fallback := storage.DefaultFolderID
			conv.FolderID = &fallback
			d.conversations[convID] = conv
		}
	}
	delete(d.folders, id)
	return nil
}

// Count returns the number of conversations in the store.
func (d *Driver) Count() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.conversations)
}

// Close is a no-op for the in-memory driver.
func (d *Driver) Close() error {
	return nil
}
