package database

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/fitsphere/chat-service/internal/models"
)

// setupTestDB creates a migrated in-memory SQLite database private to the test
func setupTestDB(t *testing.T) *SQLiteDB {
	t.Helper()

	connStr := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := NewSQLiteDB(connStr)
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	require.NoError(t, db.Migrate(context.Background()))
	return db
}

func createTestUser(t *testing.T, db DBInterface, name string) *models.User {
	t.Helper()
	user, err := db.CreateUser(context.Background(), name, name+"@example.com", "hash")
	require.NoError(t, err)
	return user
}

func createTestChat(t *testing.T, db DBInterface, a, b uuid.UUID) *models.Chat {
	t.Helper()
	chat := &models.Chat{ParticipantA: a, ParticipantB: b}
	require.NoError(t, db.InsertChat(context.Background(), chat))
	return chat
}
