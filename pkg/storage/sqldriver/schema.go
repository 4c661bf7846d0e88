package sqldriver

// schema is portable between SQLite and PostgreSQL. Statements are
// idempotent so they run on every open.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS folders (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		color TEXT,
		is_pinned BOOLEAN NOT NULL DEFAULT FALSE,
		created_at BIGINT NOT NULL,
		updated_at BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS conversations (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		created_at BIGINT NOT NULL,
		updated_at BIGINT NOT NULL,
		settings_json TEXT,
		is_pinned BOOLEAN NOT NULL DEFAULT FALSE,
		is_archived BOOLEAN NOT NULL DEFAULT FALSE,
		folder_id TEXT REFERENCES folders(id) ON DELETE SET NULL
	)`,
	`CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		reasoning_content TEXT,
		created_at BIGINT NOT NULL,
		attachments_json TEXT,
		tool_calls_json TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS model_sources (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		base_url TEXT NOT NULL,
		api_key TEXT NOT NULL,
		models_json TEXT NOT NULL,
		created_at BIGINT NOT NULL,
		updated_at BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS app_settings (
		id INTEGER PRIMARY KEY,
		current_conversation_id TEXT,
		global_settings_json TEXT NOT NULL,
		ui_preferences_json TEXT NOT NULL,
		updated_at BIGINT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_conversations_folder_id ON conversations(folder_id)`,
	`CREATE INDEX IF NOT EXISTS idx_messages_conversation_id ON messages(conversation_id)`,
}

const (
	tableFolders       = "folders"
	tableConversations = "conversations"
	tableMessages      = "messages"
	tableModelSources  = "model_sources"
	tableAppSettings   = "app_settings"

	settingsRowID = 1
)

var (
	folderColumns       = []string{"id", "name", "color", "is_pinned", "created_at", "updated_at"}
	conversationColumns = []string{"id", "title", "created_at", "updated_at", "settings_json", "is_pinned", "is_archived", "folder_id"}
	messageColumns      = []string{"id", "conversation_id", "role", "content", "reasoning_content", "created_at", "attachments_json", "tool_calls_json"}
	modelSourceColumns  = []string{"id", "name", "base_url", "api_key", "models_json", "created_at", "updated_at"}
	settingsColumns     = []string{"current_conversation_id", "global_settings_json", "ui_preferences_json"}
)
