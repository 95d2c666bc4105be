package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/fitsphere/chat-service/internal/auth"
	"github.com/fitsphere/chat-service/internal/chat"
	"github.com/fitsphere/chat-service/internal/models"
)

// ChatService is the part of chat.Service the REST mirror exposes
type ChatService interface {
	ListConversations(ctx context.Context, p auth.Principal) ([]*models.ChatSummary, error)
	UnreadTotal(ctx context.Context, p auth.Principal) (int, error)
	OpenConversation(ctx context.Context, p auth.Principal, counterpartID uuid.UUID) (*models.ChatSummary, error)
	GetConversation(ctx context.Context, p auth.Principal, chatID uuid.UUID) (*models.ChatSummary, error)
	GetPage(ctx context.Context, chatID, requesterID uuid.UUID, page, limit int) (*models.MessagePage, error)
	MarkChatRead(ctx context.Context, p auth.Principal, chatID uuid.UUID, messageIDs []uuid.UUID) (int, error)
	SendMessage(ctx context.Context, p auth.Principal, in chat.SendInput) (*models.MessageView, error)
}

// ChatHandler handles conversation and history routes
type ChatHandler struct {
	Chats ChatService
}

// NewChatHandler creates a new chat handler
func NewChatHandler(chats ChatService) *ChatHandler {
	return &ChatHandler{Chats: chats}
}

func pathID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid " + name})
		return uuid.Nil, false
	}
	return id, true
}

func queryInt(c *gin.Context, name string) (int, bool) {
	raw := c.Query(name)
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid " + name})
		return 0, false
	}
	return n, true
}

// ListChats returns the caller's conversations, most recent first
func (h *ChatHandler) ListChats(c *gin.Context, p auth.Principal) {
	chats, err := h.Chats.ListConversations(c.Request.Context(), p)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, chats)
}

// UnreadCount returns unread messages across all of the caller's chats
func (h *ChatHandler) UnreadCount(c *gin.Context, p auth.Principal) {
	count, err := h.Chats.UnreadTotal(c.Request.Context(), p)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"unreadCount": count})
}

// OpenChat gets or creates the chat with another user
func (h *ChatHandler) OpenChat(c *gin.Context, p auth.Principal) {
	userID, ok := pathID(c, "userId")
	if !ok {
		return
	}
	summary, err := h.Chats.OpenConversation(c.Request.Context(), p, userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

// GetChat returns one conversation
func (h *ChatHandler) GetChat(c *gin.Context, p auth.Principal) {
	chatID, ok := pathID(c, "chatId")
	if !ok {
		return
	}
	summary, err := h.Chats.GetConversation(c.Request.Context(), p, chatID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

// GetMessages returns one page of history, oldest first within the page
func (h *ChatHandler) GetMessages(c *gin.Context, p auth.Principal) {
	chatID, ok := pathID(c, "chatId")
	if !ok {
		return
	}
	page, ok := queryInt(c, "page")
	if !ok {
		return
	}
	limit, ok := queryInt(c, "limit")
	if !ok {
		return
	}

	result, err := h.Chats.GetPage(c.Request.Context(), chatID, p.UserID, page, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// MarkRead marks messages of the chat read. Without a body every unread
// message addressed to the caller is marked.
func (h *ChatHandler) MarkRead(c *gin.Context, p auth.Principal) {
	chatID, ok := pathID(c, "chatId")
	if !ok {
		return
	}
	var req models.MarkReadRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	updated, err := h.Chats.MarkChatRead(c.Request.Context(), p, chatID, req.MessageIDs)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": updated})
}

// SendMessage posts a message into an existing chat
func (h *ChatHandler) SendMessage(c *gin.Context, p auth.Principal) {
	chatID, ok := pathID(c, "chatId")
	if !ok {
		return
	}
	var req models.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	msg, err := h.Chats.SendMessage(c.Request.Context(), p, chat.SendInput{ChatID: chatID, Content: req.Content})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}
