package api

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/fitsphere/chat-service/internal/auth"
	"github.com/fitsphere/chat-service/internal/chat"
	"github.com/fitsphere/chat-service/internal/database"
	"github.com/fitsphere/chat-service/internal/models"
)

// MockChatService is a testify mock of ChatService
type MockChatService struct {
	mock.Mock
}

func (m *MockChatService) ListConversations(ctx context.Context, p auth.Principal) ([]*models.ChatSummary, error) {
	args := m.Called(ctx, p)
	summaries, _ := args.Get(0).([]*models.ChatSummary)
	return summaries, args.Error(1)
}

func (m *MockChatService) UnreadTotal(ctx context.Context, p auth.Principal) (int, error) {
	args := m.Called(ctx, p)
	return args.Int(0), args.Error(1)
}

func (m *MockChatService) OpenConversation(ctx context.Context, p auth.Principal, counterpartID uuid.UUID) (*models.ChatSummary, error) {
	args := m.Called(ctx, p, counterpartID)
	summary, _ := args.Get(0).(*models.ChatSummary)
	return summary, args.Error(1)
}

func (m *MockChatService) GetConversation(ctx context.Context, p auth.Principal, chatID uuid.UUID) (*models.ChatSummary, error) {
	args := m.Called(ctx, p, chatID)
	summary, _ := args.Get(0).(*models.ChatSummary)
	return summary, args.Error(1)
}

func (m *MockChatService) GetPage(ctx context.Context, chatID, requesterID uuid.UUID, page, limit int) (*models.MessagePage, error) {
	args := m.Called(ctx, chatID, requesterID, page, limit)
	result, _ := args.Get(0).(*models.MessagePage)
	return result, args.Error(1)
}

func (m *MockChatService) MarkChatRead(ctx context.Context, p auth.Principal, chatID uuid.UUID, messageIDs []uuid.UUID) (int, error) {
	args := m.Called(ctx, p, chatID, messageIDs)
	return args.Int(0), args.Error(1)
}

func (m *MockChatService) SendMessage(ctx context.Context, p auth.Principal, in chat.SendInput) (*models.MessageView, error) {
	args := m.Called(ctx, p, in)
	view, _ := args.Get(0).(*models.MessageView)
	return view, args.Error(1)
}

type testServer struct {
	router *gin.Engine
	db     *database.SQLiteDB
	tokens *auth.TokenManager
	chats  *MockChatService
}

// setupTestServer builds the full router over an in-memory database and a
// mocked chat service
func setupTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := database.NewSQLiteDB(fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.Migrate(context.Background()))

	tokens := auth.NewTokenManager([]byte("test-secret"), time.Hour)
	chats := &MockChatService{}
	t.Cleanup(func() { chats.AssertExpectations(t) })

	router := NewRouter(RouterConfig{
		Tokens: tokens,
		Auth:   NewAuthHandler(db, tokens),
		Chats:  NewChatHandler(chats),
	})
	return &testServer{router: router, db: db, tokens: tokens, chats: chats}
}

// principal creates a stored user and returns it with a valid token
func (s *testServer) principal(t *testing.T, name string) (auth.Principal, string) {
	t.Helper()
	user, err := s.db.CreateUser(context.Background(), name, name+"@example.com", "hash")
	require.NoError(t, err)
	token, _, err := s.tokens.GenerateToken(user)
	require.NoError(t, err)
	return auth.Principal{UserID: user.ID, Username: user.Username}, token
}

func (s *testServer) do(method, path, token, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}
