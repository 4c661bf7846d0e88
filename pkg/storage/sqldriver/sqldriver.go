// Package sqldriver implements storage.Driver on database/sql. Queries are
// built with ent's dialect-aware SQL builder so one implementation serves
// both SQLite and PostgreSQL.
package sqldriver

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	entsql "entgo.io/ent/dialect/sql"

	"github.com/papercomputeco/yui/pkg/storage"
)

// SQLDriver implements storage.Driver over a *sql.DB.
type SQLDriver struct {
	DB *sql.DB

	builder *entsql.DialectBuilder
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

type scanner interface {
	Scan(dest ...any) error
}

// New wraps db for the given ent dialect (dialect.SQLite or
// dialect.Postgres), creates the schema and seeds the default folder and
// settings.
func New(ctx context.Context, db *sql.DB, dialectName string) (*SQLDriver, error) {
	d := &SQLDriver{
		DB:      db,
		builder: entsql.Dialect(dialectName),
	}

	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return nil, fmt.Errorf("failed to create schema: %w", err)
		}
	}

	if err := d.seed(ctx); err != nil {
		return nil, err
	}

	return d, nil
}

func (d *SQLDriver) seed(ctx context.Context) error {
	now := storage.NowMillis()

	folder := d.builder.Insert(tableFolders).
		Columns(folderColumns...).
		Values(storage.DefaultFolderID, storage.DefaultFolderName, nil, false, now, now).
		OnConflict(entsql.ConflictColumns("id"), entsql.DoNothing())
	if err := d.exec(ctx, d.DB, folder); err != nil {
		return fmt.Errorf("failed to seed default folder: %w", err)
	}

	defaults := storage.DefaultAppSettings()
	settings := d.builder.Insert(tableAppSettings).
		Columns("id", "current_conversation_id", "global_settings_json", "ui_preferences_json", "updated_at").
		Values(settingsRowID, nil, string(defaults.GlobalSettings), string(defaults.UIPreferences), now).
		OnConflict(entsql.ConflictColumns("id"), entsql.DoNothing())
	if err := d.exec(ctx, d.DB, settings); err != nil {
		return fmt.Errorf("failed to seed settings: %w", err)
	}

	return nil
}

// Close closes the underlying database.
func (d *SQLDriver) Close() error {
	return d.DB.Close()
}

// ---- helpers ----

func (d *SQLDriver) exec(ctx context.Context, q querier, b entsql.Querier) error {
	_, err := d.execAffected(ctx, q, b)
	return err
}

func (d *SQLDriver) execAffected(ctx context.Context, q querier, b entsql.Querier) (int64, error) {
	query, args := b.Query()
	res, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (d *SQLDriver) query(ctx context.Context, q querier, sel *entsql.Selector) (*sql.Rows, error) {
	query, args := sel.Query()
	return q.QueryContext(ctx, query, args...)
}

// exists reports whether a row with col = value exists in table.
func (d *SQLDriver) exists(ctx context.Context, q querier, table string, preds ...*entsql.Predicate) (bool, error) {
	sel := d.builder.Select("id").From(d.builder.Table(table)).Where(entsql.And(preds...)).Limit(1)
	rows, err := d.query(ctx, q, sel)
	if err != nil {
		return false, err
	}
	defer rows.Close()

	found := rows.Next()
	return found, rows.Err()
}

func (d *SQLDriver) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := d.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func nullable(p *string) any {
	if p == nil {
		return nil
	}
	return *p
}

func nullableText(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullableJSON(raw json.RawMessage) any {
	if !storage.IsSet(raw) {
		return nil
	}
	return string(raw)
}

func fromNull(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func jsonFromNull(ns sql.NullString) json.RawMessage {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	return json.RawMessage(ns.String)
}

// ---- conversations ----

func scanConversation(s scanner) (*storage.Conversation, error) {
	var (
		c        storage.Conversation
		settings sql.NullString
		folderID sql.NullString
	)
	if err := s.Scan(&c.ID, &c.Title, &c.CreatedAt, &c.UpdatedAt, &settings, &c.IsPinned, &c.IsArchived, &folderID); err != nil {
		return nil, err
	}
	c.Settings = jsonFromNull(settings)
	c.FolderID = fromNull(folderID)
	c.Messages = []*storage.Message{}
	return &c, nil
}

func (d *SQLDriver) selectConversations(ctx context.Context, q querier, where *entsql.Predicate) ([]*storage.Conversation, error) {
	sel := d.builder.Select(conversationColumns...).From(d.builder.Table(tableConversations))
	if where != nil {
		sel.Where(where)
	}
	sel.OrderBy(entsql.Desc("updated_at"), entsql.Asc("id"))

	rows, err := d.query(ctx, q, sel)
	if err != nil {
		return nil, fmt.Errorf("failed to query conversations: %w", err)
	}
	defer rows.Close()

	out := []*storage.Conversation{}
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan conversation: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (d *SQLDriver) conversation(ctx context.Context, q querier, id string) (*storage.Conversation, error) {
	convs, err := d.selectConversations(ctx, q, entsql.EQ("id", id))
	if err != nil {
		return nil, err
	}
	if len(convs) == 0 {
		return nil, storage.NotFoundError{Kind: storage.KindConversation, ID: id}
	}
	return convs[0], nil
}

// ListConversations returns all conversations without messages.
func (d *SQLDriver) ListConversations(ctx context.Context) ([]*storage.Conversation, error) {
	return d.selectConversations(ctx, d.DB, nil)
}

// GetConversation returns a conversation with its messages.
func (d *SQLDriver) GetConversation(ctx context.Context, id string) (*storage.Conversation, error) {
	conv, err := d.conversation(ctx, d.DB, id)
	if err != nil {
		return nil, err
	}

	msgs, err := d.selectMessages(ctx, d.DB, entsql.EQ("conversation_id", id), entsql.Asc("created_at"), entsql.Asc("id"))
	if err != nil {
		return nil, err
	}
	conv.Messages = msgs
	return conv, nil
}

func (d *SQLDriver) checkFolder(ctx context.Context, q querier, folderID *string) error {
	if folderID == nil {
		return nil
	}
	ok, err := d.exists(ctx, q, tableFolders, entsql.EQ("id", *folderID))
	if err != nil {
		return fmt.Errorf("failed to check folder: %w", err)
	}
	if !ok {
		return storage.NotFoundError{Kind: storage.KindFolder, ID: *folderID}
	}
	return nil
}

// CreateConversation stores a conversation and its messages in one
// transaction.
func (d *SQLDriver) CreateConversation(ctx context.Context, conv *storage.Conversation) (*storage.Conversation, error) {
	if conv == nil {
		return nil, errors.New("cannot store nil conversation")
	}

	err := d.withTx(ctx, func(tx *sql.Tx) error {
		taken, err := d.exists(ctx, tx, tableConversations, entsql.EQ("id", conv.ID))
		if err != nil {
			return fmt.Errorf("failed to check conversation: %w", err)
		}
		if taken {
			return storage.ConflictError{Kind: storage.KindConversation, ID: conv.ID}
		}
		if err := d.checkFolder(ctx, tx, conv.FolderID); err != nil {
			return err
		}

		insert := d.builder.Insert(tableConversations).
			Columns(conversationColumns...).
			Values(conv.ID, conv.Title, conv.CreatedAt, conv.UpdatedAt, nullableJSON(conv.Settings),
				conv.IsPinned, conv.IsArchived, nullable(conv.FolderID))
		if err := d.exec(ctx, tx, insert); err != nil {
			return fmt.Errorf("failed to insert conversation: %w", err)
		}

		for _, msg := range conv.Messages {
			if err := d.exec(ctx, tx, d.insertMessage(conv.ID, msg)); err != nil {
				return fmt.Errorf("failed to insert message %s: %w", msg.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return d.GetConversation(ctx, conv.ID)
}

// UpdateConversation applies the non-nil fields of update.
func (d *SQLDriver) UpdateConversation(ctx context.Context, id string, update storage.ConversationUpdate) (*storage.Conversation, error) {
	if _, err := d.conversation(ctx, d.DB, id); err != nil {
		return nil, err
	}
	if err := d.checkFolder(ctx, d.DB, update.FolderID); err != nil {
		return nil, err
	}

	u := d.builder.Update(tableConversations).Where(entsql.EQ("id", id))
	if update.Title != nil {
		u.Set("title", *update.Title)
	}
	if update.UpdatedAt != nil {
		u.Set("updated_at", *update.UpdatedAt)
	}
	if storage.IsSet(update.Settings) {
		u.Set("settings_json", string(update.Settings))
	}
	if update.IsPinned != nil {
		u.Set("is_pinned", *update.IsPinned)
	}
	if update.IsArchived != nil {
		u.Set("is_archived", *update.IsArchived)
	}
	if update.FolderID != nil {
		u.Set("folder_id", *update.FolderID)
	}
	if !u.Empty() {
		if err := d.exec(ctx, d.DB, u); err != nil {
			return nil, fmt.Errorf("failed to update conversation: %w", err)
		}
	}

	return d.conversation(ctx, d.DB, id)
}

// DeleteConversation removes a conversation and its messages.
func (d *SQLDriver) DeleteConversation(ctx context.Context, id string) error {
	return d.withTx(ctx, func(tx *sql.Tx) error {
		if err := d.exec(ctx, tx, d.builder.Delete(tableMessages).Where(entsql.EQ("conversation_id", id))); err != nil {
			return fmt.Errorf("failed to delete messages: %w", err)
		}

		n, err := d.execAffected(ctx, tx, d.builder.Delete(tableConversations).Where(entsql.EQ("id", id)))
		if err != nil {
			return fmt.Errorf("failed to delete conversation: %w", err)
		}
		if n == 0 {
			return storage.NotFoundError{Kind: storage.KindConversation, ID: id}
		}
		return nil
	})
}

// ---- messages ----

func scanMessage(s scanner) (*storage.Message, error) {
	var (
		m           storage.Message
		reasoning   sql.NullString
		attachments sql.NullString
		toolCalls   sql.NullString
	)
	if err := s.Scan(&m.ID, &m.ConversationID, &m.Role, &m.Content, &reasoning, &m.CreatedAt, &attachments, &toolCalls); err != nil {
		return nil, err
	}
	m.ReasoningContent = reasoning.String
	m.Attachments = jsonFromNull(attachments)
	m.ToolCalls = jsonFromNull(toolCalls)
	return &m, nil
}

func (d *SQLDriver) selectMessages(ctx context.Context, q querier, where *entsql.Predicate, order ...string) ([]*storage.Message, error) {
	sel := d.builder.Select(messageColumns...).From(d.builder.Table(tableMessages)).Where(where).OrderBy(order...)
	return d.scanMessages(ctx, q, sel)
}

func (d *SQLDriver) scanMessages(ctx context.Context, q querier, sel *entsql.Selector) ([]*storage.Message, error) {
	rows, err := d.query(ctx, q, sel)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	out := []*storage.Message{}
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (d *SQLDriver) message(ctx context.Context, q querier, conversationID, messageID string) (*storage.Message, error) {
	msgs, err := d.selectMessages(ctx, q, entsql.And(
		entsql.EQ("id", messageID),
		entsql.EQ("conversation_id", conversationID),
	))
	if err != nil {
		return nil, err
	}
	if len(msgs) == 0 {
		return nil, storage.NotFoundError{Kind: storage.KindMessage, ID: messageID}
	}
	return msgs[0], nil
}

func (d *SQLDriver) insertMessage(conversationID string, msg *storage.Message) *entsql.InsertBuilder {
	return d.builder.Insert(tableMessages).
		Columns(messageColumns...).
		Values(msg.ID, conversationID, msg.Role, msg.Content, nullableText(msg.ReasoningContent),
			msg.CreatedAt, nullableJSON(msg.Attachments), nullableJSON(msg.ToolCalls))
}

// AddMessage appends a message and bumps the conversation.
func (d *SQLDriver) AddMessage(ctx context.Context, conversationID string, msg *storage.Message) (*storage.Message, error) {
	if msg == nil {
		return nil, errors.New("cannot store nil message")
	}

	err := d.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := d.conversation(ctx, tx, conversationID); err != nil {
			return err
		}
		taken, err := d.exists(ctx, tx, tableMessages, entsql.EQ("id", msg.ID))
		if err != nil {
			return fmt.Errorf("failed to check message: %w", err)
		}
		if taken {
			return storage.ConflictError{Kind: storage.KindMessage, ID: msg.ID}
		}

		if err := d.exec(ctx, tx, d.insertMessage(conversationID, msg)); err != nil {
			return fmt.Errorf("failed to insert message: %w", err)
		}

		touch := d.builder.Update(tableConversations).
			Set("updated_at", storage.NowMillis()).
			Where(entsql.EQ("id", conversationID))
		if err := d.exec(ctx, tx, touch); err != nil {
			return fmt.Errorf("failed to update conversation: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return d.message(ctx, d.DB, conversationID, msg.ID)
}

// PutMessage inserts or replaces a message.
func (d *SQLDriver) PutMessage(ctx context.Context, conversationID string, msg *storage.Message) (*storage.Message, error) {
	if msg == nil {
		return nil, errors.New("cannot store nil message")
	}
	if _, err := d.conversation(ctx, d.DB, conversationID); err != nil {
		return nil, err
	}

	upsert := d.insertMessage(conversationID, msg).
		OnConflict(entsql.ConflictColumns("id"), entsql.ResolveWithNewValues())
	if err := d.exec(ctx, d.DB, upsert); err != nil {
		return nil, fmt.Errorf("failed to upsert message: %w", err)
	}

	return d.message(ctx, d.DB, conversationID, msg.ID)
}

// UpdateMessage applies the non-nil fields of update.
func (d *SQLDriver) UpdateMessage(ctx context.Context, conversationID, messageID string, update storage.MessageUpdate) (*storage.Message, error) {
	if _, err := d.message(ctx, d.DB, conversationID, messageID); err != nil {
		return nil, err
	}

	u := d.builder.Update(tableMessages).Where(entsql.And(
		entsql.EQ("id", messageID),
		entsql.EQ("conversation_id", conversationID),
	))
	if update.Content != nil {
		u.Set("content", *update.Content)
	}
	if update.ReasoningContent != nil {
		u.Set("reasoning_content", *update.ReasoningContent)
	}
	if !u.Empty() {
		if err := d.exec(ctx, d.DB, u); err != nil {
			return nil, fmt.Errorf("failed to update message: %w", err)
		}
	}

	return d.message(ctx, d.DB, conversationID, messageID)
}

// DeleteMessage removes a message.
func (d *SQLDriver) DeleteMessage(ctx context.Context, conversationID, messageID string) error {
	del := d.builder.Delete(tableMessages).Where(entsql.And(
		entsql.EQ("id", messageID),
		entsql.EQ("conversation_id", conversationID),
	))
	n, err := d.execAffected(ctx, d.DB, del)
	if err != nil {
		return fmt.Errorf("failed to delete message: %w", err)
	}
	if n == 0 {
		return storage.NotFoundError{Kind: storage.KindMessage, ID: messageID}
	}
	return nil
}

// SearchMessages matches content and reasoning case-insensitively.
func (d *SQLDriver) SearchMessages(ctx context.Context, query string, limit int) ([]*storage.MessageHit, error) {
	sel := d.builder.Select(messageColumns...).
		From(d.builder.Table(tableMessages)).
		Where(entsql.Or(
			entsql.ContainsFold("content", query),
			entsql.ContainsFold("reasoning_content", query),
		)).
		OrderBy(entsql.Desc("created_at"), entsql.Asc("id"))
	if limit > 0 {
		sel.Limit(limit)
	}

	msgs, err := d.scanMessages(ctx, d.DB, sel)
	if err != nil {
		return nil, err
	}
	if len(msgs) == 0 {
		return []*storage.MessageHit{}, nil
	}

	ids := make([]any, 0, len(msgs))
	for _, m := range msgs {
		ids = append(ids, m.ConversationID)
	}
	convs, err := d.selectConversations(ctx, d.DB, entsql.In("id", ids...))
	if err != nil {
		return nil, err
	}
	titles := make(map[string]string, len(convs))
	for _, c := range convs {
		titles[c.ID] = c.Title
	}

	hits := make([]*storage.MessageHit, 0, len(msgs))
	for _, m := range msgs {
		hits = append(hits, &storage.MessageHit{
			ConversationID:    m.ConversationID,
			ConversationTitle: titles[m.ConversationID],
			Message:           m,
		})
	}
	return hits, nil
}

// ---- model sources ----

func scanModelSource(s scanner) (*storage.ModelSource, error) {
	var (
		src    storage.ModelSource
		models string
	)
	if err := s.Scan(&src.ID, &src.Name, &src.BaseURL, &src.APIKey, &models, &src.CreatedAt, &src.UpdatedAt); err != nil {
		return nil, err
	}
	src.Models = json.RawMessage(models)
	return &src, nil
}

func (d *SQLDriver) selectModelSources(ctx context.Context, where *entsql.Predicate) ([]*storage.ModelSource, error) {
	sel := d.builder.Select(modelSourceColumns...).From(d.builder.Table(tableModelSources))
	if where != nil {
		sel.Where(where)
	}
	sel.OrderBy(entsql.Desc("created_at"), entsql.Asc("id"))

	rows, err := d.query(ctx, d.DB, sel)
	if err != nil {
		return nil, fmt.Errorf("failed to query model sources: %w", err)
	}
	defer rows.Close()

	out := []*storage.ModelSource{}
	for rows.Next() {
		src, err := scanModelSource(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan model source: %w", err)
		}
		out = append(out, src)
	}
	return out, rows.Err()
}

func (d *SQLDriver) modelSource(ctx context.Context, id string) (*storage.ModelSource, error) {
	sources, err := d.selectModelSources(ctx, entsql.EQ("id", id))
	if err != nil {
		return nil, err
	}
	if len(sources) == 0 {
		return nil, storage.NotFoundError{Kind: storage.KindModelSource, ID: id}
	}
	return sources[0], nil
}

// ListModelSources returns all model sources, newest first.
func (d *SQLDriver) ListModelSources(ctx context.Context) ([]*storage.ModelSource, error) {
	return d.selectModelSources(ctx, nil)
}

// CreateModelSource stores a model source.
func (d *SQLDriver) CreateModelSource(ctx context.Context, src *storage.ModelSource) (*storage.ModelSource, error) {
	if src == nil {
		return nil, errors.New("cannot store nil model source")
	}

	taken, err := d.exists(ctx, d.DB, tableModelSources, entsql.EQ("id", src.ID))
	if err != nil {
		return nil, fmt.Errorf("failed to check model source: %w", err)
	}
	if taken {
		return nil, storage.ConflictError{Kind: storage.KindModelSource, ID: src.ID}
	}

	models := "[]"
	if storage.IsSet(src.Models) {
		models = string(src.Models)
	}
	insert := d.builder.Insert(tableModelSources).
		Columns(modelSourceColumns...).
		Values(src.ID, src.Name, src.BaseURL, src.APIKey, models, src.CreatedAt, src.UpdatedAt)
	if err := d.exec(ctx, d.DB, insert); err != nil {
		return nil, fmt.Errorf("failed to insert model source: %w", err)
	}

	return d.modelSource(ctx, src.ID)
}

// UpdateModelSource applies the non-nil fields of update.
func (d *SQLDriver) UpdateModelSource(ctx context.Context, id string, update storage.ModelSourceUpdate) (*storage.ModelSource, error) {
	if _, err := d.modelSource(ctx, id); err != nil {
		return nil, err
	}

	u := d.builder.Update(tableModelSources).Where(entsql.EQ("id", id))
	if update.Name != nil {
		u.Set("name", *update.Name)
	}
	if update.BaseURL != nil {
		u.Set("base_url", *update.BaseURL)
	}
	if update.APIKey != nil {
		u.Set("api_key", *update.APIKey)
	}
	if storage.IsSet(update.Models) {
		u.Set("models_json", string(update.Models))
	}
	if update.UpdatedAt != nil {
		u.Set("updated_at", *update.UpdatedAt)
	}
	if !u.Empty() {
		if err := d.exec(ctx, d.DB, u); err != nil {
			return nil, fmt.Errorf("failed to update model source: %w", err)
		}
	}

	return d.modelSource(ctx, id)
}

// DeleteModelSource removes a model source.
func (d *SQLDriver) DeleteModelSource(ctx context.Context, id string) error {
	n, err := d.execAffected(ctx, d.DB, d.builder.Delete(tableModelSources).Where(entsql.EQ("id", id)))
	if err != nil {
		return fmt.Errorf("failed to delete model source: %w", err)
	}
	if n == 0 {
		return storage.NotFoundError{Kind: storage.KindModelSource, ID: id}
	}
	return nil
}

// ---- settings ----

// GetSettings returns the application settings.
func (d *SQLDriver) GetSettings(ctx context.Context) (*storage.AppSettings, error) {
	sel := d.builder.Select(settingsColumns...).
		From(d.builder.Table(tableAppSettings)).
		Where(entsql.EQ("id", settingsRowID))

	rows, err := d.query(ctx, d.DB, sel)
	if err != nil {
		return nil, fmt.Errorf("failed to query settings: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return storage.DefaultAppSettings(), nil
	}

	var (
		current        sql.NullString
		global, uiPref string
	)
	if err := rows.Scan(&current, &global, &uiPref); err != nil {
		return nil, fmt.Errorf("failed to scan settings: %w", err)
	}
	return &storage.AppSettings{
		CurrentConversationID: fromNull(current),
		GlobalSettings:        json.RawMessage(global),
		UIPreferences:         json.RawMessage(uiPref),
	}, nil
}

// UpdateSettings applies the non-nil fields of update.
func (d *SQLDriver) UpdateSettings(ctx context.Context, update storage.SettingsUpdate) (*storage.AppSettings, error) {
	u := d.builder.Update(tableAppSettings).
		Set("updated_at", storage.NowMillis()).
		Where(entsql.EQ("id", settingsRowID))
	if update.CurrentConversationID != nil {
		u.Set("current_conversation_id", *update.CurrentConversationID)
	}
	if storage.IsSet(update.GlobalSettings) {
		u.Set("global_settings_json", string(update.GlobalSettings))
	}
	if storage.IsSet(update.UIPreferences) {
		u.Set("ui_preferences_json", string(update.UIPreferences))
	}

	n, err := d.execAffected(ctx, d.DB, u)
	if err != nil {
		return nil, fmt.Errorf("failed to update settings: %w", err)
	}
	if n == 0 {
		return nil, storage.NotFoundError{Kind: storage.KindSettings}
	}

	return d.GetSettings(ctx)
}

// ---- folders ----

func scanFolder(s scanner) (*storage.Folder, error) {
	var (
		f     storage.Folder
		color sql.NullString
	)
	if err := s.Scan(&f.ID, &f.Name, &color, &f.IsPinned, &f.CreatedAt, &f.UpdatedAt); err != nil {
		return nil, err
	}
	f.Color = fromNull(color)
	return &f, nil
}

func (d *SQLDriver) selectFolders(ctx context.Context, where *entsql.Predicate) ([]*storage.Folder, error) {
	sel := d.builder.Select(folderColumns...).From(d.builder.Table(tableFolders))
	if where != nil {
		sel.Where(where)
	}
	sel.OrderBy(entsql.Desc("is_pinned"), entsql.Desc("created_at"), entsql.Asc("id"))

	rows, err := d.query(ctx, d.DB, sel)
	if err != nil {
		return nil, fmt.Errorf("failed to query folders: %w", err)
	}
	defer rows.Close()

	out := []*storage.Folder{}
	for rows.Next() {
		f, err := scanFolder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan folder: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func (d *SQLDriver) folder(ctx context.Context, id string) (*storage.Folder, error) {
	folders, err := d.selectFolders(ctx, entsql.EQ("id", id))
	if err != nil {
		return nil, err
	}
	if len(folders) == 0 {
		return nil, storage.NotFoundError{Kind: storage.KindFolder, ID: id}
	}
	return folders[0], nil
}

// ListFolders returns all folders, pinned first, then newest first.
func (d *SQLDriver) ListFolders(ctx context.Context) ([]*storage.Folder, error) {
	return d.selectFolders(ctx, nil)
}

// CreateFolder stores a folder.
func (d *SQLDriver) CreateFolder(ctx context.Context, folder *storage.Folder) (*storage.Folder, error) {
	if folder == nil {
		return nil, errors.New("cannot store nil folder")
	}

	taken, err := d.exists(ctx, d.DB, tableFolders, entsql.EQ("id", folder.ID))
	if err != nil {
		return nil, fmt.Errorf("failed to check folder: %w", err)
	}
	if taken {
		return nil, storage.ConflictError{Kind: storage.KindFolder, ID: folder.ID}
	}

	insert := d.builder.Insert(tableFolders).
		Columns(folderColumns...).
		Values(folder.ID, folder.Name, nullable(folder.Color), folder.IsPinned, folder.CreatedAt, folder.UpdatedAt)
	if err := d.exec(ctx, d.DB, insert); err != nil {
		return nil, fmt.Errorf("failed to insert folder: %w", err)
	}

	return d.folder(ctx, folder.ID)
}

// UpdateFolder applies the non-nil fields of update.
func (d *SQLDriver) UpdateFolder(ctx context.Context, id string, update storage.FolderUpdate) (*storage.Folder, error) {
	if _, err := d.folder(ctx, id); err != nil {
		return nil, err
	}

	u := d.builder.Update(tableFolders).Where(entsql.EQ("id", id))
	if update.Name != nil {
		u.Set("name", *update.Name)
	}
	if update.Color != nil {
		u.Set("color", *update.Color)
	}
	if update.IsPinned != nil {
		u.Set("is_pinned", *update.IsPinned)
	}
	if update.UpdatedAt != nil {
		u.Set("updated_at", *update.UpdatedAt)
	}
	if !u.Empty() {
		if err := d.exec(ctx, d.DB, u); err != nil {
			return nil, fmt.Errorf("failed to update folder: %w", err)
		}
	}

	return d.folder(ctx, id)
}

// DeleteFolder moves the folder's conversations to the default folder and
// removes it.
func (d *SQLDriver) DeleteFolder(ctx context.Context, id string) error {
	if id == storage.DefaultFolderID {
		return storage.ErrProtectedFolder
	}

	return d.withTx(ctx, func(tx *sql.Tx) error {
		move := d.builder.Update(tableConversations).
			Set("folder_id", storage.DefaultFolderID).
			Where(entsql.EQ("folder_id", id))
		if err := d.exec(ctx, tx, move); err != nil {
			return fmt.Errorf("failed to move conversations: %w", err)
		}

		n, err := d.execAffected(ctx, tx, d.builder.Delete(tableFolders).Where(entsql.EQ("id", id)))
		if err != nil {
			return fmt.Errorf("failed to delete folder: %w", err)
		}
		if n == 0 {
			return storage.NotFoundError{Kind: storage.KindFolder, ID: id}
		}
		return nil
	})
}
