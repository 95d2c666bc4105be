package websocket

import (
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/fitsphere/chat-service/internal/models"
)

// Event names, shared by both directions where they overlap
const (
	EventJoin         = "chat:join"
	EventLeave        = "chat:leave"
	EventMessage      = "chat:message"
	EventNotification = "chat:notification"
	EventTypingStart  = "typing:start"
	EventTypingStop   = "typing:stop"
	EventMessageRead  = "message:read"
	EventUserStatus   = "user:status"
	EventUserJoined   = "user:joined"
	EventUserLeft     = "user:left"
	EventError        = "error"
)

const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

// Envelope wraps every frame on the wire
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Client -> server payloads

type ChatRef struct {
	ChatID string `json:"chatId" validate:"required,uuid"`
}

type SendRequest struct {
	Content   string `json:"content" validate:"required"`
	Recipient string `json:"recipient" validate:"omitempty,uuid"`
	ChatID    string `json:"chatId" validate:"omitempty,uuid"`
}

type TypingRequest struct {
	ChatID    string `json:"chatId" validate:"required,uuid"`
	Recipient string `json:"recipient" validate:"omitempty,uuid"`
}

type ReadRequest struct {
	ChatID     string   `json:"chatId" validate:"omitempty,uuid"`
	MessageIDs []string `json:"messageIds" validate:"required,min=1,dive,uuid"`
}

// Server -> client payloads

type StatusNotice struct {
	UserID uuid.UUID `json:"userId"`
	Status string    `json:"status"`
}

type RoomNotice struct {
	UserID uuid.UUID `json:"userId"`
	ChatID uuid.UUID `json:"chatId"`
}

// RoomMessage is the chat:message payload: the message fields at the top
// level plus the chat they belong to
type RoomMessage struct {
	*models.MessageView
	Chat *models.ChatView `json:"chat"`
}

// MessageNotice is the chat:notification payload for a recipient outside the room
type MessageNotice struct {
	Message *models.MessageView `json:"message"`
	Chat    *models.ChatView    `json:"chat"`
}

type TypingNotice struct {
	ChatID uuid.UUID `json:"chatId"`
	UserID uuid.UUID `json:"userId"`
}

type ReadNotice struct {
	ChatID     uuid.UUID   `json:"chatId"`
	MessageIDs []uuid.UUID `json:"messageIds"`
	Reader     uuid.UUID   `json:"reader"`
}

type ErrorNotice struct {
	Message string `json:"message"`
}

var validate = validator.New()

// encode builds one outbound frame
func encode(event string, data interface{}) ([]byte, error) {
	return json.Marshal(struct {
		Event string      `json:"event"`
		Data  interface{} `json:"data"`
	}{event, data})
}

// decode unmarshals and validates an inbound payload
func decode(raw json.RawMessage, dst interface{}) error {
	if len(raw) == 0 {
		return fmt.Errorf("missing event data")
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("malformed event data: %w", err)
	}
	if err := validate.Struct(dst); err != nil {
		return fmt.Errorf("invalid event data: %w", err)
	}
	return nil
}

// parseOptionalID parses a validated id that may be empty
func parseOptionalID(s string) uuid.UUID {
	if s == "" {
		return uuid.Nil
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil
	}
	return id
}
