package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/fitsphere/chat-service/internal/logger"
)

var (
	ErrUserNotFound      = errors.New("user not found")
	ErrUserAlreadyExists = errors.New("user already exists")
	ErrChatNotFound      = errors.New("chat not found")
	ErrDuplicateChat     = errors.New("chat already exists for participants")
	ErrMessageNotFound   = errors.New("message not found")
	ErrNotParticipant    = errors.New("user is not a participant in this chat")

	log = logger.New("database")
)

// rowScanner is satisfied by *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// store holds the queries shared by every SQL dialect. All statements use
// $N placeholders, numbered in order of first appearance, which both
// PostgreSQL and SQLite accept.
type store struct {
	db     *sql.DB
	schema []string
}

// Migrate creates tables and indexes if they do not exist
func (s *store) Migrate(ctx context.Context) error {
	for _, query := range s.schema {
		if _, err := s.db.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	log.WithField("statements", len(s.schema)).Info("schema up to date")
	return nil
}

func (s *store) Exec(query string, args ...interface{}) (ExecResult, error) {
	return s.db.Exec(query, args...)
}

func (s *store) Close() error {
	return s.db.Close()
}
