package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// CopyConversation duplicates a conversation and all of its messages under
// fresh ids. The copy keeps the folder and settings, is neither pinned nor
// archived, and is stamped with the current time.
func CopyConversation(ctx context.Context, d Driver, id string) (*Conversation, error) {
	original, err := d.GetConversation(ctx, id)
	if err != nil {
		return nil, err
	}

	now := NowMillis()
	dup := &Conversation{
		ID:        uuid.NewString(),
		Title:     original.Title + CopyTitleSuffix,
		CreatedAt: now,
		UpdatedAt: now,
		Settings:  original.Settings,
		FolderID:  original.FolderID,
		Messages:  make([]*Message, 0, len(original.Messages)),
	}
	for _, msg := range original.Messages {
		m := *msg
		m.ID = uuid.NewString()
		m.ConversationID = dup.ID
		dup.Messages = append(dup.Messages, &m)
	}

	created, err := d.CreateConversation(ctx, dup)
	if err != nil {
		return nil, fmt.Errorf("copying conversation %s: %w", id, err)
	}
	return created, nil
}

// ImportData is a full data set, as exported by Export or kept in a
// browser's local storage.
type ImportData struct {
	Conversations         []*Conversation `json:"conversations"`
	ModelSources          []*ModelSource  `json:"modelSources"`
	CurrentConversationID *string         `json:"currentConversationId"`
	GlobalSettings        json.RawMessage `json:"globalSettings"`
	UIPreferences         json.RawMessage `json:"uiPreferences"`
}

// ImportCounts reports how many records an import created.
type ImportCounts struct {
	Conversations int `json:"conversations"`
	Messages      int `json:"messages"`
	ModelSources  int `json:"modelSources"`
	Settings      int `json:"settings"`
}

// Import stores every conversation and model source whose id is not taken
// yet and replaces the settings. Existing records are left untouched.
func Import(ctx context.Context, d Driver, data *ImportData) (*ImportCounts, error) {
	counts := &ImportCounts{Settings: 1}

	for _, src := range data.ModelSources {
		if _, err := d.CreateModelSource(ctx, src); err != nil {
			if IsConflict(err) {
				continue
			}
			return nil, fmt.Errorf("importing model source %s: %w", src.ID, err)
		}
		counts.ModelSources++
	}

	for _, conv := range data.Conversations {
		if _, err := d.CreateConversation(ctx, conv); err != nil {
			if IsConflict(err) {
				continue
			}
			return nil, fmt.Errorf("importing conversation %s: %w", conv.ID, err)
		}
		counts.Conversations++
		counts.Messages += len(conv.Messages)
	}

	update := SettingsUpdate{
		CurrentConversationID: data.CurrentConversationID,
		GlobalSettings:        data.GlobalSettings,
		UIPreferences:         data.UIPreferences,
	}
	if _, err := d.UpdateSettings(ctx, update); err != nil {
		return nil, fmt.Errorf("importing settings: %w", err)
	}

	return counts, nil
}

// ExportData is the full content of a store.
type ExportData struct {
	Conversations         []*Conversation `json:"conversations"`
	ModelSources          []*ModelSource  `json:"modelSources"`
	CurrentConversationID *string         `json:"currentConversationId"`
	GlobalSettings        json.RawMessage `json:"globalSettings"`
	UIPreferences         json.RawMessage `json:"uiPreferences"`
	ExportedAt            int64           `json:"exportedAt"`
}

// Export collects every conversation with its messages, every model source
// and the settings.
func Export(ctx context.Context, d Driver) (*ExportData, error) {
	listed, err := d.ListConversations(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing conversations: %w", err)
	}

	convs := make([]*Conversation, 0, len(listed))
	for _, c := range listed {
		full, err := d.GetConversation(ctx, c.ID)
		if err != nil {
			return nil, fmt.Errorf("loading conversation %s: %w", c.ID, err)
		}
		convs = append(convs, full)
	}

	sources, err := d.ListModelSources(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing model sources: %w", err)
	}

	settings, err := d.GetSettings(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading settings: %w", err)
	}

	return &ExportData{
		Conversations:         convs,
		ModelSources:          sources,
		CurrentConversationID: settings.CurrentConversationID,
		GlobalSettings:        settings.GlobalSettings,
		UIPreferences:         settings.UIPreferences,
		ExportedAt:            NowMillis(),
	}, nil
}
