package models

import (
	"time"

	"github.com/google/uuid"
)

// Chat is a two-party conversation. ParticipantA always sorts before
// ParticipantB so a pair of users maps to exactly one row.
type Chat struct {
	ID            uuid.UUID  `json:"id"`
	ParticipantA  uuid.UUID  `json:"-"`
	ParticipantB  uuid.UUID  `json:"-"`
	LastMessageID *uuid.UUID `json:"lastMessageId"`
	MessageSeq    int64      `json:"-"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
}

// CanonicalPair orders two user ids the way they are stored on a Chat
func CanonicalPair(a, b uuid.UUID) (uuid.UUID, uuid.UUID) {
	if a.String() > b.String() {
		return b, a
	}
	return a, b
}

// Participants returns both members in canonical order
func (c *Chat) Participants() []uuid.UUID {
	return []uuid.UUID{c.ParticipantA, c.ParticipantB}
}

// HasParticipant reports whether userID is one of the two members
func (c *Chat) HasParticipant(userID uuid.UUID) bool {
	return userID == c.ParticipantA || userID == c.ParticipantB
}

// Counterpart returns the member that is not userID
func (c *Chat) Counterpart(userID uuid.UUID) uuid.UUID {
	if userID == c.ParticipantA {
		return c.ParticipantB
	}
	return c.ParticipantA
}

// ChatView is the wire shape of a chat: participants as a list
type ChatView struct {
	*Chat
	Participants []uuid.UUID `json:"participants"`
}

// View wraps the chat for serialization
func (c *Chat) View() *ChatView {
	return &ChatView{Chat: c, Participants: c.Participants()}
}

// ChatSummary is a chat as seen by one of its participants
type ChatSummary struct {
	*ChatView
	Participant *UserResponse `json:"participant"`
	LastMessage *Message      `json:"lastMessage"`
	UnreadCount int           `json:"unreadCount"`
}
