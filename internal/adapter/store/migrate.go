package store

import "database/sql"

// migrate creates the schema if it doesn't exist.
func migrate(db *sql.DB) error {
	const schema = `
		CREATE TABLE IF NOT EXISTS messages (
			id         TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			agent_id   TEXT NOT NULL,
			agent_name TEXT NOT NULL DEFAULT '',
			role       TEXT NOT NULL,
			content    TEXT NOT NULL,
			mime_type  TEXT NOT NULL DEFAULT 'text/markdown',
			model      TEXT NOT NULL DEFAULT '',
			metadata   TEXT NOT NULL DEFAULT '{}',
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			version    INTEGER NOT NULL DEFAULT 1
		);

		CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id, created_at);
		CREATE INDEX IF NOT EXISTS idx_messages_agent   ON messages(agent_id, created_at);
	`
	_, err := db.Exec(schema)
	return err
}
