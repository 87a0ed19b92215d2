// ABOUTME: SQLite schema for the chat history record store
// ABOUTME: One row per message; seq preserves insertion order
package sqlite

// Schema contains all SQL statements for database initialization
const Schema = `
-- Messages table (both halves of every prompt/response pair)
CREATE TABLE IF NOT EXISTS messages (
    seq INTEGER PRIMARY KEY AUTOINCREMENT,
    id TEXT NOT NULL UNIQUE,
    body TEXT NOT NULL,
    role TEXT NOT NULL DEFAULT '',
    database_name TEXT NOT NULL DEFAULT '',
    table_list TEXT NOT NULL DEFAULT '',
    ts TEXT NOT NULL DEFAULT '',
    conversation_id TEXT NOT NULL DEFAULT '',
    schema_version TEXT NOT NULL DEFAULT '',
    extra TEXT,
    vector BLOB NOT NULL
);

-- Indexes for efficient querying
CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id);
CREATE INDEX IF NOT EXISTS idx_messages_database ON messages(database_name);
CREATE INDEX IF NOT EXISTS idx_messages_ts ON messages(ts);
`

// SchemaVersion is stored in PRAGMA user_version
const SchemaVersion = 1
