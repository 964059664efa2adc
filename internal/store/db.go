// Package store implements the embedded-database persistence layer: users,
// identities, per-user memory with full-text search, conversation turns,
// the knowledge base, scheduled jobs, and their supporting tables. Each
// store type takes a *sql.DB on a SQLite file in WAL mode; the serve command
// opens one handle and shares it across every store, so subsystems do not
// hold independent handles.
package store

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// Open opens a *sql.DB against path with WAL mode, a busy timeout and
// foreign keys enabled. It does not create the schema; call EnsureSchema
// for that. Each call returns its own connection pool.
func Open(path string) (*sql.DB, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: ping %s: %w", path, err)
	}
	return db, nil
}

// EnsureSchema creates every table and FTS index the gateway needs,
// idempotently, through CREATE ... IF NOT EXISTS statements only — spec.md
// §6 explicitly rules out a migration-versioning scheme. A column added to
// a table that already exists in the file is not applied.
func EnsureSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			display_name TEXT NOT NULL DEFAULT '',
			role TEXT NOT NULL DEFAULT 'User',
			can_install_software INTEGER NOT NULL DEFAULT 0,
			can_execute_commands INTEGER NOT NULL DEFAULT 0,
			can_use_browser INTEGER NOT NULL DEFAULT 0,
			requires_admin_approval INTEGER NOT NULL DEFAULT 0,
			daily_token_budget INTEGER NOT NULL DEFAULT 0,
			tokens_consumed_today INTEGER NOT NULL DEFAULT 0,
			budget_reset_date TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS user_identities (
			channel TEXT NOT NULL,
			external_id TEXT NOT NULL,
			user_id TEXT NOT NULL REFERENCES users(id),
			created_at INTEGER NOT NULL,
			PRIMARY KEY (channel, external_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_user_identities_user ON user_identities(user_id)`,

		`CREATE TABLE IF NOT EXISTS approval_queue (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			description TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending',
			requested_at INTEGER NOT NULL,
			resolved_at INTEGER,
			resolved_by TEXT
		)`,

		`CREATE TABLE IF NOT EXISTS user_memory (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			category TEXT NOT NULL,
			key TEXT NOT NULL,
			value TEXT NOT NULL,
			confidence REAL NOT NULL DEFAULT 1.0,
			source TEXT NOT NULL DEFAULT '',
			expires_at INTEGER,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL,
			UNIQUE(user_id, category, key)
		)`,
		`CREATE VIRTUAL TABLE IF NOT EXISTS user_memory_fts USING fts5(
			key, value, content='user_memory', content_rowid='rowid'
		)`,
		`CREATE TRIGGER IF NOT EXISTS user_memory_ai AFTER INSERT ON user_memory BEGIN
			INSERT INTO user_memory_fts(rowid, key, value) VALUES (new.rowid, new.key, new.value);
		END`,
		`CREATE TRIGGER IF NOT EXISTS user_memory_ad AFTER DELETE ON user_memory BEGIN
			INSERT INTO user_memory_fts(user_memory_fts, rowid, key, value) VALUES ('delete', old.rowid, old.key, old.value);
		END`,
		`CREATE TRIGGER IF NOT EXISTS user_memory_au AFTER UPDATE ON user_memory BEGIN
			INSERT INTO user_memory_fts(user_memory_fts, rowid, key, value) VALUES ('delete', old.rowid, old.key, old.value);
			INSERT INTO user_memory_fts(rowid, key, value) VALUES (new.rowid, new.key, new.value);
		END`,

		`CREATE TABLE IF NOT EXISTS conversations (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_key TEXT NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			model TEXT NOT NULL DEFAULT '',
			input_tokens INTEGER NOT NULL DEFAULT 0,
			output_tokens INTEGER NOT NULL DEFAULT 0,
			created_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_conversations_session ON conversations(session_key, id)`,

		`CREATE TABLE IF NOT EXISTS sessions (
			session_key TEXT PRIMARY KEY,
			turn_count INTEGER NOT NULL DEFAULT 0,
			last_compaction_at INTEGER,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS knowledge (
			topic TEXT PRIMARY KEY,
			content TEXT NOT NULL,
			tags TEXT NOT NULL DEFAULT '',
			source TEXT NOT NULL DEFAULT 'user',
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		)`,
		`CREATE VIRTUAL TABLE IF NOT EXISTS knowledge_fts USING fts5(
			topic, content, tags, content='knowledge', content_rowid='rowid'
		)`,
		`CREATE TRIGGER IF NOT EXISTS knowledge_ai AFTER INSERT ON knowledge BEGIN
			INSERT INTO knowledge_fts(rowid, topic, content, tags) VALUES (new.rowid, new.topic, new.content, new.tags);
		END`,
		`CREATE TRIGGER IF NOT EXISTS knowledge_ad AFTER DELETE ON knowledge BEGIN
			INSERT INTO knowledge_fts(knowledge_fts, rowid, topic, content, tags) VALUES ('delete', old.rowid, old.topic, old.content, old.tags);
		END`,
		`CREATE TRIGGER IF NOT EXISTS knowledge_au AFTER UPDATE ON knowledge BEGIN
			INSERT INTO knowledge_fts(knowledge_fts, rowid, topic, content, tags) VALUES ('delete', old.rowid, old.topic, old.content, old.tags);
			INSERT INTO knowledge_fts(rowid, topic, content, tags) VALUES (new.rowid, new.topic, new.content, new.tags);
		END`,

		`CREATE TABLE IF NOT EXISTS tool_calls (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_key TEXT NOT NULL,
			tool_name TEXT NOT NULL,
			created_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_tool_calls_created ON tool_calls(created_at)`,

		`CREATE TABLE IF NOT EXISTS scheduled_jobs (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			name TEXT NOT NULL,
			schedule_kind TEXT NOT NULL,
			schedule_expr TEXT NOT NULL,
			action_message TEXT NOT NULL,
			action_channel TEXT NOT NULL,
			action_recipient TEXT NOT NULL,
			action_priority TEXT NOT NULL DEFAULT 'normal',
			enabled INTEGER NOT NULL DEFAULT 1,
			next_fire INTEGER NOT NULL,
			last_fire INTEGER,
			last_status TEXT NOT NULL DEFAULT '',
			consecutive_errors INTEGER NOT NULL DEFAULT 0,
			total_runs INTEGER NOT NULL DEFAULT 0,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_scheduled_jobs_next_fire ON scheduled_jobs(enabled, next_fire)`,

		`CREATE TABLE IF NOT EXISTS delivery_attempts (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			job_id TEXT,
			session_key TEXT,
			channel TEXT NOT NULL,
			recipient TEXT NOT NULL,
			outcome TEXT NOT NULL,
			reason TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS reminder_acks (
			job_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			acked_at INTEGER NOT NULL,
			PRIMARY KEY (job_id, user_id)
		)`,
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("store: schema statement failed (%s...): %w", truncateStmt(stmt), err)
		}
	}
	return nil
}

func truncateStmt(s string) string {
	if len(s) > 40 {
		return s[:40]
	}
	return s
}
