package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/fitsphere/chat-service/internal/models"
)

// DBInterface is everything the services need from durable storage
type DBInterface interface {
	// User methods
	CreateUser(ctx context.Context, username, email, passwordHash string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	UpdateLastSeen(ctx context.Context, userID uuid.UUID) error

	// Chat methods
	InsertChat(ctx context.Context, chat *models.Chat) error
	GetChatByID(ctx context.Context, id uuid.UUID) (*models.Chat, error)
	GetChatByParticipants(ctx context.Context, userA, userB uuid.UUID) (*models.Chat, error)
	ListChatsForUser(ctx context.Context, userID uuid.UUID) ([]*models.Chat, error)

	// Message methods
	AppendMessage(ctx context.Context, msg *models.Message) error
	GetMessageByID(ctx context.Context, id uuid.UUID) (*models.Message, error)
	ListMessages(ctx context.Context, chatID uuid.UUID, limit, offset int) ([]*models.Message, error)
	CountMessages(ctx context.Context, chatID uuid.UUID) (int, error)
	MarkMessagesRead(ctx context.Context, recipientID uuid.UUID, messageIDs []uuid.UUID, at time.Time) ([]*models.Message, error)
	MarkChatRead(ctx context.Context, chatID, recipientID uuid.UUID, at time.Time) ([]*models.Message, error)
	CountUnread(ctx context.Context, chatID, userID uuid.UUID) (int, error)
	CountUnreadForUser(ctx context.Context, userID uuid.UUID) (int, error)

	// Common methods
	Migrate(ctx context.Context) error
	Exec(query string, args ...interface{}) (ExecResult, error)
	Close() error
}

type ExecResult interface {
	LastInsertId() (int64, error)
	RowsAffected() (int64, error)
}

type DatabaseType string

const (
	PostgreSQL DatabaseType = "postgres"
	PGX        DatabaseType = "pgx"
	SQLite     DatabaseType = "sqlite3"
)

// NewDatabase opens and pings a connection of the requested type
func NewDatabase(dbType DatabaseType, connStr string) (DBInterface, error) {
	switch dbType {
	case PostgreSQL, PGX:
		db, err := NewPostgresDB(string(dbType), connStr)
		if err != nil {
			return nil, err
		}
		return db, nil
	case SQLite:
		db, err := NewSQLiteDB(connStr)
		if err != nil {
			return nil, err
		}
		return db, nil
	default:
		return nil, fmt.Errorf("unsupported database type: %s", dbType)
	}
}

func open(driver, connStr string) (*sql.DB, error) {
	db, err := sql.Open(driver, connStr)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}
