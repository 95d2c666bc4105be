package database

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fitsphere/chat-service/internal/models"
)

func TestNewDatabase(t *testing.T) {
	tests := []struct {
		name      string
		dbType    DatabaseType
		connStr   string
		wantError bool
	}{
		{
			name:    "sqlite in memory",
			dbType:  SQLite,
			connStr: "file:newdb?mode=memory&cache=shared",
		},
		{
			name:      "unsupported type",
			dbType:    DatabaseType("mysql"),
			connStr:   "mysql://localhost/chat",
			wantError: true,
		},
		{
			name:      "invalid postgres connection string",
			dbType:    PostgreSQL,
			connStr:   "invalid connection string",
			wantError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, err := NewDatabase(tt.dbType, tt.connStr)

			if tt.wantError {
				assert.Error(t, err)
				assert.Nil(t, db)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, db)
			db.Close()
		})
	}
}

// TestPostgresMigrate runs against a real server when TEST_DATABASE_URL is set
func TestPostgresMigrate(t *testing.T) {
	connStr := os.Getenv("TEST_DATABASE_URL")
	if connStr == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	for _, driver := range []string{"postgres", "pgx"} {
		t.Run(driver, func(t *testing.T) {
			db, err := NewPostgresDB(driver, connStr)
			require.NoError(t, err)
			defer db.Close()

			require.NoError(t, db.Migrate(context.Background()))
			_, err = db.Exec("DELETE FROM messages")
			require.NoError(t, err)
		})
	}
}

func TestCreateUser(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	tests := []struct {
		name      string
		username  string
		email     string
		wantError error
	}{
		{name: "valid user", username: "testuser", email: "test@example.com"},
		{name: "duplicate email", username: "testuser2", email: "test@example.com", wantError: ErrUserAlreadyExists},
		{name: "duplicate username", username: "testuser", email: "test2@example.com", wantError: ErrUserAlreadyExists},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			user, err := db.CreateUser(ctx, tt.username, tt.email, "hashedpassword")

			if tt.wantError != nil {
				assert.ErrorIs(t, err, tt.wantError)
				assert.Nil(t, user)
				return
			}
			require.NoError(t, err)
			assert.NotEqual(t, uuid.Nil, user.ID)

			found, err := db.GetUserByID(ctx, user.ID)
			require.NoError(t, err)
			assert.Equal(t, tt.username, found.Username)
			assert.Equal(t, "hashedpassword", found.PasswordHash)

			byEmail, err := db.GetUserByEmail(ctx, tt.email)
			require.NoError(t, err)
			assert.Equal(t, user.ID, byEmail.ID)
		})
	}

	_, err := db.GetUserByID(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrUserNotFound)
	assert.ErrorIs(t, db.UpdateLastSeen(ctx, uuid.New()), ErrUserNotFound)
}

func TestInsertChatCanonicalAndUnique(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	u1 := createTestUser(t, db, "u1")
	u2 := createTestUser(t, db, "u2")

	first := createTestChat(t, db, u2.ID, u1.ID)
	a, b := models.CanonicalPair(u1.ID, u2.ID)
	assert.Equal(t, a, first.ParticipantA)
	assert.Equal(t, b, first.ParticipantB)

	err := db.InsertChat(ctx, &models.Chat{ParticipantA: u1.ID, ParticipantB: u2.ID})
	assert.ErrorIs(t, err, ErrDuplicateChat)

	found, err := db.GetChatByParticipants(ctx, u2.ID, u1.ID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, found.ID)
	assert.Nil(t, found.LastMessageID)

	_, err = db.GetChatByID(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrChatNotFound)
}

func TestInsertChatConcurrent(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	u1 := createTestUser(t, db, "u1")
	u2 := createTestUser(t, db, "u2")

	const n = 10
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			chat := &models.Chat{ParticipantA: u1.ID, ParticipantB: u2.ID}
			if i%2 == 1 {
				chat.ParticipantA, chat.ParticipantB = u2.ID, u1.ID
			}
			errs <- db.InsertChat(ctx, chat)
		}(i)
	}
	wg.Wait()
	close(errs)

	created := 0
	for err := range errs {
		if err == nil {
			created++
			continue
		}
		assert.ErrorIs(t, err, ErrDuplicateChat)
	}
	assert.Equal(t, 1, created)

	chats, err := db.ListChatsForUser(ctx, u1.ID)
	require.NoError(t, err)
	assert.Len(t, chats, 1)
}

func TestAppendMessage(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	u1 := createTestUser(t, db, "u1")
	u2 := createTestUser(t, db, "u2")
	outsider := createTestUser(t, db, "u3")
	chat := createTestChat(t, db, u1.ID, u2.ID)

	msg := &models.Message{ChatID: chat.ID, SenderID: u1.ID, RecipientID: u2.ID, Content: "hello"}
	require.NoError(t, db.AppendMessage(ctx, msg))
	assert.NotEqual(t, uuid.Nil, msg.ID)
	assert.EqualValues(t, 1, msg.Seq)
	assert.False(t, msg.Read)
	assert.Nil(t, msg.ReadAt)

	updated, err := db.GetChatByID(ctx, chat.ID)
	require.NoError(t, err)
	require.NotNil(t, updated.LastMessageID)
	assert.Equal(t, msg.ID, *updated.LastMessageID)
	assert.EqualValues(t, 1, updated.MessageSeq)
	assert.False(t, updated.UpdatedAt.Before(msg.CreatedAt))

	stored, err := db.GetMessageByID(ctx, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, "hello", stored.Content)
	assert.Equal(t, u2.ID, stored.RecipientID)

	tests := []struct {
		name string
		msg  *models.Message
		want error
	}{
		{
			name: "unknown chat",
			msg:  &models.Message{ChatID: uuid.New(), SenderID: u1.ID, RecipientID: u2.ID, Content: "x"},
			want: ErrChatNotFound,
		},
		{
			name: "sender outside chat",
			msg:  &models.Message{ChatID: chat.ID, SenderID: outsider.ID, RecipientID: u2.ID, Content: "x"},
			want: ErrNotParticipant,
		},
		{
			name: "message to self",
			msg:  &models.Message{ChatID: chat.ID, SenderID: u1.ID, RecipientID: u1.ID, Content: "x"},
			want: ErrNotParticipant,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, db.AppendMessage(ctx, tt.msg), tt.want)
		})
	}

	// rejected appends must not consume a sequence number
	next := &models.Message{ChatID: chat.ID, SenderID: u2.ID, RecipientID: u1.ID, Content: "hi"}
	require.NoError(t, db.AppendMessage(ctx, next))
	assert.EqualValues(t, 2, next.Seq)

	_, err = db.GetMessageByID(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrMessageNotFound)
}

func TestAppendMessageConcurrentSequence(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	u1 := createTestUser(t, db, "u1")
	u2 := createTestUser(t, db, "u2")
	chat := createTestChat(t, db, u1.ID, u2.ID)

	const n = 20
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			msg := &models.Message{ChatID: chat.ID, SenderID: u1.ID, RecipientID: u2.ID, Content: "m"}
			assert.NoError(t, db.AppendMessage(ctx, msg))
		}()
	}
	wg.Wait()

	messages, err := db.ListMessages(ctx, chat.ID, n, 0)
	require.NoError(t, err)
	require.Len(t, messages, n)
	for i, msg := range messages {
		assert.EqualValues(t, n-i, msg.Seq)
		if i > 0 {
			assert.False(t, msg.CreatedAt.After(messages[i-1].CreatedAt))
		}
	}

	count, err := db.CountMessages(ctx, chat.ID)
	require.NoError(t, err)
	assert.Equal(t, n, count)
}

func TestMarkMessagesRead(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	u1 := createTestUser(t, db, "u1")
	u2 := createTestUser(t, db, "u2")
	chat := createTestChat(t, db, u1.ID, u2.ID)

	var toU2 []uuid.UUID
	for i := 0; i < 3; i++ {
		msg := &models.Message{ChatID: chat.ID, SenderID: u1.ID, RecipientID: u2.ID, Content: "to u2"}
		require.NoError(t, db.AppendMessage(ctx, msg))
		toU2 = append(toU2, msg.ID)
	}
	fromU2 := &models.Message{ChatID: chat.ID, SenderID: u2.ID, RecipientID: u1.ID, Content: "to u1"}
	require.NoError(t, db.AppendMessage(ctx, fromU2))

	unread, err := db.CountUnread(ctx, chat.ID, u2.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, unread)

	at := time.Now()
	ids := append([]uuid.UUID{fromU2.ID, uuid.New(), toU2[0]}, toU2[:2]...)
	changed, err := db.MarkMessagesRead(ctx, u2.ID, ids, at)
	require.NoError(t, err)
	require.Len(t, changed, 2)
	for _, msg := range changed {
		assert.True(t, msg.Read)
		require.NotNil(t, msg.ReadAt)
		assert.WithinDuration(t, at, *msg.ReadAt, time.Second)
		assert.Equal(t, u2.ID, msg.RecipientID)
	}
	assert.Less(t, changed[0].Seq, changed[1].Seq)

	again, err := db.MarkMessagesRead(ctx, u2.ID, ids, time.Now())
	require.NoError(t, err)
	assert.Empty(t, again)

	unread, err = db.CountUnread(ctx, chat.ID, u2.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, unread)

	// u1's message was not touched by u2's receipt
	stillUnread, err := db.GetMessageByID(ctx, fromU2.ID)
	require.NoError(t, err)
	assert.False(t, stillUnread.Read)
	assert.Nil(t, stillUnread.ReadAt)

	rest, err := db.MarkChatRead(ctx, chat.ID, u2.ID, time.Now())
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.Equal(t, toU2[2], rest[0].ID)

	total, err := db.CountUnreadForUser(ctx, u2.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, total)
	total, err = db.CountUnreadForUser(ctx, u1.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, total)

	empty, err := db.MarkMessagesRead(ctx, u2.ID, nil, time.Now())
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestListChatsForUserOrder(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	u1 := createTestUser(t, db, "u1")
	u2 := createTestUser(t, db, "u2")
	u3 := createTestUser(t, db, "u3")
	older := createTestChat(t, db, u1.ID, u2.ID)
	newer := createTestChat(t, db, u1.ID, u3.ID)

	time.Sleep(5 * time.Millisecond)
	require.NoError(t, db.AppendMessage(ctx, &models.Message{
		ChatID: older.ID, SenderID: u2.ID, RecipientID: u1.ID, Content: "bump",
	}))

	chats, err := db.ListChatsForUser(ctx, u1.ID)
	require.NoError(t, err)
	require.Len(t, chats, 2)
	assert.Equal(t, older.ID, chats[0].ID)
	assert.Equal(t, newer.ID, chats[1].ID)

	chats, err = db.ListChatsForUser(ctx, u3.ID)
	require.NoError(t, err)
	require.Len(t, chats, 1)
	assert.Equal(t, newer.ID, chats[0].ID)
}
