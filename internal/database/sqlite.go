package database

import (
	_ "github.com/mattn/go-sqlite3" // registers the "sqlite3" driver
)

// SQLiteDB is an embedded single-node store. SQLite allows one writer at a
// time, so the pool is capped at a single connection.
type SQLiteDB struct {
	*store
}

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		username TEXT NOT NULL UNIQUE,
		email TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		display_name TEXT,
		avatar_url TEXT,
		created_at TIMESTAMP NOT NULL,
		last_seen TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS chats (
		id TEXT PRIMARY KEY,
		participant_a TEXT NOT NULL,
		participant_b TEXT NOT NULL,
		last_message_id TEXT,
		message_seq INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		UNIQUE (participant_a, participant_b),
		CHECK (participant_a < participant_b)
	)`,
	`CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		chat_id TEXT NOT NULL REFERENCES chats(id) ON DELETE CASCADE,
		seq INTEGER NOT NULL,
		sender_id TEXT NOT NULL,
		recipient_id TEXT NOT NULL,
		content TEXT NOT NULL,
		is_read BOOLEAN NOT NULL DEFAULT FALSE,
		read_at TIMESTAMP,
		created_at TIMESTAMP NOT NULL,
		UNIQUE (chat_id, seq),
		CHECK (is_read = (read_at IS NOT NULL))
	)`,
	`CREATE INDEX IF NOT EXISTS idx_chats_participant_b ON chats(participant_b)`,
	`CREATE INDEX IF NOT EXISTS idx_messages_unread ON messages(recipient_id, chat_id, is_read)`,
}

// NewSQLiteDB opens a database file (or "file:name?mode=memory&cache=shared")
func NewSQLiteDB(connStr string) (*SQLiteDB, error) {
	db, err := open("sqlite3", connStr)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	return &SQLiteDB{&store{db: db, schema: sqliteSchema}}, nil
}
