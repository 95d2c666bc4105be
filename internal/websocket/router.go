package websocket

import (
	"github.com/google/uuid"

	"github.com/fitsphere/chat-service/internal/chat"
	"github.com/fitsphere/chat-service/internal/models"
)

var _ chat.Notifier = (*Router)(nil)

// Router turns committed chat changes into realtime frames.
//
// Delivery is twofold: every connection in the chat's room gets the room
// event, and a participant who is online but whose current connection is not
// in the room gets a direct copy (chat:notification for new messages, the
// plain event for read receipts and typing). Offline users get nothing; they
// catch up over REST.
type Router struct {
	manager  *Manager
	presence PresenceRegistry
}

func NewRouter(manager *Manager) *Router {
	return &Router{manager: manager, presence: manager.Presence()}
}

// directConn returns the user's current connection if it is not in the room
func (r *Router) directConn(chatID, userID uuid.UUID) (uuid.UUID, bool) {
	connID, online := r.presence.Lookup(userID)
	if !online || r.manager.InRoom(chatID, connID) {
		return uuid.Nil, false
	}
	return connID, true
}

// MessageCreated delivers a stored message, sender's own connections included
func (r *Router) MessageCreated(c *models.Chat, msg *models.MessageView) {
	view := c.View()
	r.manager.SendToRoom(c.ID, frameFor(EventMessage, RoomMessage{MessageView: msg, Chat: view}), uuid.Nil)

	if connID, ok := r.directConn(c.ID, msg.RecipientID); ok {
		r.manager.SendToConnection(connID, frameFor(EventNotification, MessageNotice{Message: msg, Chat: view}))
		log.WithField("chat_id", c.ID).WithField("user_id", msg.RecipientID).Debug("sent out-of-room notification")
	}
}

// MessagesRead tells the room, and each sender outside it, which messages
// the reader has now seen
func (r *Router) MessagesRead(c *models.Chat, readerID uuid.UUID, messages []*models.Message) {
	if len(messages) == 0 {
		return
	}
	all := make([]uuid.UUID, 0, len(messages))
	bySender := make(map[uuid.UUID][]uuid.UUID)
	for _, m := range messages {
		all = append(all, m.ID)
		bySender[m.SenderID] = append(bySender[m.SenderID], m.ID)
	}

	r.manager.SendToRoom(c.ID, frameFor(EventMessageRead, ReadNotice{ChatID: c.ID, MessageIDs: all, Reader: readerID}), uuid.Nil)

	for senderID, ids := range bySender {
		if connID, ok := r.directConn(c.ID, senderID); ok {
			r.manager.SendToConnection(connID, frameFor(EventMessageRead, ReadNotice{ChatID: c.ID, MessageIDs: ids, Reader: readerID}))
		}
	}
}

// Typing relays a typing indicator. Nothing is stored and indicators never
// expire server side.
func (r *Router) Typing(from *Client, chatID, recipientID uuid.UUID, typing bool) {
	event := EventTypingStop
	if typing {
		event = EventTypingStart
	}
	frame := frameFor(event, TypingNotice{ChatID: chatID, UserID: from.Principal.UserID})
	r.manager.SendToRoom(chatID, frame, from.ID)

	if recipientID == uuid.Nil || recipientID == from.Principal.UserID {
		return
	}
	if connID, ok := r.directConn(chatID, recipientID); ok {
		r.manager.SendToConnection(connID, frame)
	}
}
