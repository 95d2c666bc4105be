package models

import (
	"time"

	"github.com/google/uuid"
)

// Message is one entry of a conversation. Only Read and ReadAt ever change
// after creation, and only from unread to read.
type Message struct {
	ID          uuid.UUID  `json:"id"`
	ChatID      uuid.UUID  `json:"chatId"`
	Seq         int64      `json:"seq"`
	SenderID    uuid.UUID  `json:"senderId"`
	RecipientID uuid.UUID  `json:"recipientId"`
	Content     string     `json:"content"`
	Read        bool       `json:"read"`
	ReadAt      *time.Time `json:"readAt"`
	CreatedAt   time.Time  `json:"createdAt"`
}

// MessageView is a message populated with sender display info
type MessageView struct {
	*Message
	Sender *UserResponse `json:"sender,omitempty"`
}

// SendMessageRequest is the REST body for sending into an existing chat
type SendMessageRequest struct {
	Content string `json:"content" binding:"required"`
}

// MarkReadRequest is the REST body for batch read receipts. An empty list
// means every unread message of the chat addressed to the caller.
type MarkReadRequest struct {
	MessageIDs []uuid.UUID `json:"messageIds"`
}

// Pagination describes one page of history
type Pagination struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Total int `json:"total"`
	Pages int `json:"pages"`
}

// MessagePage is a page of history in ascending order
type MessagePage struct {
	Messages   []*Message `json:"messages"`
	Pagination Pagination `json:"pagination"`
}
