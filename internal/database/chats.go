package database

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/fitsphere/chat-service/internal/models"
)

const chatColumns = `id, participant_a, participant_b, last_message_id, message_seq, created_at, updated_at`

func scanChat(row rowScanner) (*models.Chat, error) {
	var chat models.Chat
	var lastMessageID uuid.NullUUID
	err := row.Scan(
		&chat.ID,
		&chat.ParticipantA,
		&chat.ParticipantB,
		&lastMessageID,
		&chat.MessageSeq,
		&chat.CreatedAt,
		&chat.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if lastMessageID.Valid {
		id := lastMessageID.UUID
		chat.LastMessageID = &id
	}
	return &chat, nil
}

// InsertChat stores the chat unless one already exists for the same pair,
// in which case it returns ErrDuplicateChat and leaves the table untouched.
// The unique (participant_a, participant_b) constraint makes this atomic.
func (s *store) InsertChat(ctx context.Context, chat *models.Chat) error {
	chat.ParticipantA, chat.ParticipantB = models.CanonicalPair(chat.ParticipantA, chat.ParticipantB)
	if chat.ID == uuid.Nil {
		chat.ID = uuid.New()
	}
	now := time.Now().UTC().Truncate(time.Microsecond)
	chat.CreatedAt, chat.UpdatedAt = now, now

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO chats (id, participant_a, participant_b, message_seq, created_at, updated_at)
		VALUES ($1, $2, $3, 0, $4, $5)
		ON CONFLICT (participant_a, participant_b) DO NOTHING`,
		chat.ID, chat.ParticipantA, chat.ParticipantB, chat.CreatedAt, chat.UpdatedAt,
	)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return ErrDuplicateChat
	}
	return nil
}

func (s *store) GetChatByID(ctx context.Context, id uuid.UUID) (*models.Chat, error) {
	chat, err := scanChat(s.db.QueryRowContext(ctx, "SELECT "+chatColumns+" FROM chats WHERE id = $1", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrChatNotFound
	}
	return chat, err
}

func (s *store) GetChatByParticipants(ctx context.Context, userA, userB uuid.UUID) (*models.Chat, error) {
	a, b := models.CanonicalPair(userA, userB)
	chat, err := scanChat(s.db.QueryRowContext(ctx,
		"SELECT "+chatColumns+" FROM chats WHERE participant_a = $1 AND participant_b = $2", a, b))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrChatNotFound
	}
	return chat, err
}

// ListChatsForUser returns the user's chats, most recently active first
func (s *store) ListChatsForUser(ctx context.Context, userID uuid.UUID) ([]*models.Chat, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+chatColumns+" FROM chats WHERE participant_a = $1 OR participant_b = $1 ORDER BY updated_at DESC",
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chats []*models.Chat
	for rows.Next() {
		chat, err := scanChat(rows)
		if err != nil {
			return nil, err
		}
		chats = append(chats, chat)
	}
	return chats, rows.Err()
}
