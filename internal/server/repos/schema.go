package repos

import (
	"context"
	"fmt"
)

// Migrate creates the tables if they do not exist.
func (db *DB) Migrate(ctx context.Context) error {
	for _, stmt := range schema(db.Dialect) {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

func schema(d Dialect) []string {
	suffix := ""
	if d == MySQL {
		suffix = " ENGINE=InnoDB DEFAULT CHARSET=utf8mb4"
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id VARCHAR(64) NOT NULL PRIMARY KEY,
			email VARCHAR(255) NOT NULL UNIQUE,
			username VARCHAR(64) NOT NULL UNIQUE,
			password_hash VARCHAR(255) NOT NULL,
			role VARCHAR(16) NOT NULL,
			is_active INTEGER NOT NULL DEFAULT 1,
			created_at BIGINT NOT NULL,
			updated_at BIGINT NOT NULL
		)` + suffix,
		`CREATE TABLE IF NOT EXISTS chat_sessions (
			id VARCHAR(64) NOT NULL PRIMARY KEY,
			user_id VARCHAR(64) NOT NULL,
			topic TEXT NOT NULL,
			memory_prompt TEXT NOT NULL,
			last_summarize_index INTEGER NOT NULL DEFAULT 0,
			clear_context_index INTEGER NULL,
			mask_config TEXT NOT NULL,
			token_count INTEGER NOT NULL DEFAULT 0,
			word_count INTEGER NOT NULL DEFAULT 0,
			char_count INTEGER NOT NULL DEFAULT 0,
			last_update BIGINT NOT NULL,
			created_at BIGINT NOT NULL,
			FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
		)` + suffix,
		`CREATE TABLE IF NOT EXISTS chat_messages (
			id VARCHAR(64) NOT NULL PRIMARY KEY,
			session_id VARCHAR(64) NOT NULL,
			seq BIGINT NOT NULL,
			role VARCHAR(16) NOT NULL,
			content TEXT NOT NULL,
			model VARCHAR(128) NOT NULL,
			msg_date VARCHAR(64) NOT NULL,
			tools TEXT NOT NULL,
			audio_url TEXT NOT NULL,
			is_mcp_response INTEGER NOT NULL DEFAULT 0,
			created_at BIGINT NOT NULL,
			FOREIGN KEY (session_id) REFERENCES chat_sessions(id) ON DELETE CASCADE
		)` + suffix,
		`CREATE TABLE IF NOT EXISTS api_keys (
			id VARCHAR(64) NOT NULL PRIMARY KEY,
			provider VARCHAR(64) NOT NULL,
			name VARCHAR(255) NOT NULL,
			encrypted_key TEXT NOT NULL,
			base_url TEXT NOT NULL,
			priority INTEGER NOT NULL DEFAULT 0,
			is_active INTEGER NOT NULL DEFAULT 1,
			created_at BIGINT NOT NULL,
			updated_at BIGINT NOT NULL
		)` + suffix,
		`CREATE TABLE IF NOT EXISTS system_config (
			config_key VARCHAR(128) NOT NULL PRIMARY KEY,
			config_value TEXT NOT NULL,
			updated_at BIGINT NOT NULL
		)` + suffix,
	}
	return append(stmts, indexes(d)...)
}

// MySQL has no CREATE INDEX IF NOT EXISTS; its indexes come from the
// foreign keys.
func indexes(d Dialect) []string {
	if d == MySQL {
		return nil
	}
	return []string{
		`CREATE INDEX IF NOT EXISTS idx_chat_sessions_user ON chat_sessions(user_id, last_update)`,
		`CREATE INDEX IF NOT EXISTS idx_chat_messages_session ON chat_messages(session_id, seq)`,
	}
}
