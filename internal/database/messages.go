package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fitsphere/chat-service/internal/models"
)

const messageColumns = `id, chat_id, seq, sender_id, recipient_id, content, is_read, read_at, created_at`

func scanMessage(row rowScanner) (*models.Message, error) {
	var msg models.Message
	var readAt sql.NullTime
	err := row.Scan(
		&msg.ID,
		&msg.ChatID,
		&msg.Seq,
		&msg.SenderID,
		&msg.RecipientID,
		&msg.Content,
		&msg.Read,
		&readAt,
		&msg.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if readAt.Valid {
		t := readAt.Time
		msg.ReadAt = &t
	}
	return &msg, nil
}

func scanMessages(rows *sql.Rows) ([]*models.Message, error) {
	defer rows.Close()

	messages := make([]*models.Message, 0)
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

// AppendMessage persists msg as the next message of its chat. Bumping
// chats.message_seq first takes the row lock, so concurrent appends to one
// chat commit one after another and seq follows commit order. On success
// msg carries its id, seq and createdAt, and the chat's last_message_id and
// updated_at already point at it.
func (s *store) AppendMessage(ctx context.Context, msg *models.Message) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, "UPDATE chats SET message_seq = message_seq + 1 WHERE id = $1", msg.ChatID)
	if err != nil {
		return err
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return ErrChatNotFound
	}

	var seq int64
	var a, b uuid.UUID
	err = tx.QueryRowContext(ctx, "SELECT message_seq, participant_a, participant_b FROM chats WHERE id = $1",
		msg.ChatID).Scan(&seq, &a, &b)
	if err != nil {
		return err
	}
	if msg.SenderID == msg.RecipientID ||
		(msg.SenderID != a && msg.SenderID != b) ||
		(msg.RecipientID != a && msg.RecipientID != b) {
		return ErrNotParticipant
	}

	if msg.ID == uuid.Nil {
		msg.ID = uuid.New()
	}
	msg.Seq = seq
	msg.Read = false
	msg.ReadAt = nil
	msg.CreatedAt = time.Now().UTC().Truncate(time.Microsecond)

	_, err = tx.ExecContext(ctx, `
		INSERT INTO messages (id, chat_id, seq, sender_id, recipient_id, content, is_read, read_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, FALSE, NULL, $7)`,
		msg.ID, msg.ChatID, msg.Seq, msg.SenderID, msg.RecipientID, msg.Content, msg.CreatedAt,
	)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, "UPDATE chats SET last_message_id = $1, updated_at = $2 WHERE id = $3",
		msg.ID, msg.CreatedAt, msg.ChatID)
	if err != nil {
		return err
	}

	return tx.Commit()
}

func (s *store) GetMessageByID(ctx context.Context, id uuid.UUID) (*models.Message, error) {
	msg, err := scanMessage(s.db.QueryRowContext(ctx, "SELECT "+messageColumns+" FROM messages WHERE id = $1", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrMessageNotFound
	}
	return msg, err
}

// ListMessages returns one page of a chat, newest first
func (s *store) ListMessages(ctx context.Context, chatID uuid.UUID, limit, offset int) ([]*models.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+messageColumns+" FROM messages WHERE chat_id = $1 ORDER BY seq DESC LIMIT $2 OFFSET $3",
		chatID, limit, offset,
	)
	if err != nil {
		return nil, err
	}
	return scanMessages(rows)
}

func (s *store) CountMessages(ctx context.Context, chatID uuid.UUID) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM messages WHERE chat_id = $1", chatID).Scan(&count)
	return count, err
}

// MarkMessagesRead flips the listed messages addressed to recipientID from
// unread to read and returns exactly the ones it changed. Ids that are
// unknown, already read or addressed to someone else are skipped.
func (s *store) MarkMessagesRead(ctx context.Context, recipientID uuid.UUID, messageIDs []uuid.UUID, at time.Time) ([]*models.Message, error) {
	ids := dedupe(messageIDs)
	if len(ids) == 0 {
		return nil, nil
	}

	args := []interface{}{at.UTC().Truncate(time.Microsecond), recipientID}
	placeholders, args := inList(ids, args)
	return s.markRead(ctx, "recipient_id = $2 AND id IN ("+placeholders+")", args)
}

// MarkChatRead flips every unread message of the chat addressed to recipientID
func (s *store) MarkChatRead(ctx context.Context, chatID, recipientID uuid.UUID, at time.Time) ([]*models.Message, error) {
	return s.markRead(ctx, "chat_id = $2 AND recipient_id = $3",
		[]interface{}{at.UTC().Truncate(time.Microsecond), chatID, recipientID})
}

// markRead runs the unread->read transition for rows matching predicate.
// args[0] is the read timestamp ($1). Filtering on is_read = FALSE in the
// UPDATE itself keeps the transition one-way and lets concurrent callers
// each see only the rows they changed.
func (s *store) markRead(ctx context.Context, predicate string, args []interface{}) ([]*models.Message, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx,
		"UPDATE messages SET is_read = TRUE, read_at = $1 WHERE is_read = FALSE AND "+predicate+" RETURNING id",
		args...)
	if err != nil {
		return nil, err
	}
	var changed []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		changed = append(changed, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var messages []*models.Message
	if len(changed) > 0 {
		placeholders, idArgs := inList(changed, nil)
		rows, err := tx.QueryContext(ctx,
			"SELECT "+messageColumns+" FROM messages WHERE id IN ("+placeholders+") ORDER BY chat_id, seq",
			idArgs...)
		if err != nil {
			return nil, err
		}
		if messages, err = scanMessages(rows); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return messages, nil
}

func (s *store) CountUnread(ctx context.Context, chatID, userID uuid.UUID) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM messages WHERE chat_id = $1 AND recipient_id = $2 AND is_read = FALSE",
		chatID, userID).Scan(&count)
	return count, err
}

func (s *store) CountUnreadForUser(ctx context.Context, userID uuid.UUID) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM messages WHERE recipient_id = $1 AND is_read = FALSE",
		userID).Scan(&count)
	return count, err
}

func dedupe(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if id == uuid.Nil {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// inList appends ids to args and returns the matching "$n, $m" list
func inList(ids []uuid.UUID, args []interface{}) (string, []interface{}) {
	placeholders := make([]string, len(ids))
	for i, id := range ids {
		args = append(args, id)
		placeholders[i] = fmt.Sprintf("$%d", len(args))
	}
	return strings.Join(placeholders, ", "), args
}
