package database

import (
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" driver
	_ "github.com/lib/pq"              // registers the "postgres" driver
)

// PostgresDB is the store backed by PostgreSQL through lib/pq or pgx
type PostgresDB struct {
	*store
}

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id UUID PRIMARY KEY,
		username TEXT NOT NULL UNIQUE,
		email TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		display_name TEXT,
		avatar_url TEXT,
		created_at TIMESTAMPTZ NOT NULL,
		last_seen TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS chats (
		id UUID PRIMARY KEY,
		participant_a UUID NOT NULL,
		participant_b UUID NOT NULL,
		last_message_id UUID,
		message_seq BIGINT NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL,
		CONSTRAINT chats_participants_key UNIQUE (participant_a, participant_b),
		CONSTRAINT chats_participants_order CHECK (participant_a < participant_b)
	)`,
	`CREATE TABLE IF NOT EXISTS messages (
		id UUID PRIMARY KEY,
		chat_id UUID NOT NULL REFERENCES chats(id) ON DELETE CASCADE,
		seq BIGINT NOT NULL,
		sender_id UUID NOT NULL,
		recipient_id UUID NOT NULL,
		content TEXT NOT NULL,
		is_read BOOLEAN NOT NULL DEFAULT FALSE,
		read_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL,
		CONSTRAINT messages_chat_seq_key UNIQUE (chat_id, seq),
		CONSTRAINT messages_read_at CHECK (is_read = (read_at IS NOT NULL))
	)`,
	`CREATE INDEX IF NOT EXISTS idx_chats_participant_b ON chats(participant_b)`,
	`CREATE INDEX IF NOT EXISTS idx_chats_updated_at ON chats(updated_at)`,
	`CREATE INDEX IF NOT EXISTS idx_messages_unread ON messages(recipient_id, chat_id) WHERE is_read = FALSE`,
}

// NewPostgresDB connects with driver "postgres" (lib/pq) or "pgx"
func NewPostgresDB(driver, connStr string) (*PostgresDB, error) {
	db, err := open(driver, connStr)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	return &PostgresDB{&store{db: db, schema: postgresSchema}}, nil
}
