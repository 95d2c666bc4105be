package chat

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/fitsphere/chat-service/internal/auth"
	"github.com/fitsphere/chat-service/internal/models"
)

// SendInput addresses a new message either by chat or by recipient.
// When ChatID is empty the chat with RecipientID is resolved or created.
type SendInput struct {
	ChatID      uuid.UUID
	RecipientID uuid.UUID
	Content     string
}

func (s *Service) validateContent(content string) (string, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return "", validationError("message content is required")
	}
	if n := utf8.RuneCountInString(content); n > s.cfg.MaxMessageLength {
		return "", validationError("message is %d characters, maximum is %d", n, s.cfg.MaxMessageLength)
	}
	return content, nil
}

// Append validates and persists one message without notifying anyone.
// recipientID may be empty, in which case the sender's counterpart is used.
func (s *Service) Append(ctx context.Context, chatID, senderID, recipientID uuid.UUID, content string) (*models.Message, error) {
	msg, _, err := s.appendMessage(ctx, chatID, senderID, recipientID, content)
	return msg, err
}

func (s *Service) appendMessage(ctx context.Context, chatID, senderID, recipientID uuid.UUID, content string) (*models.Message, *models.Chat, error) {
	content, err := s.validateContent(content)
	if err != nil {
		return nil, nil, err
	}

	chat, err := s.loadChatFor(ctx, chatID, senderID)
	if err != nil {
		return nil, nil, err
	}
	counterpart := chat.Counterpart(senderID)
	if recipientID == uuid.Nil {
		recipientID = counterpart
	}
	if recipientID != counterpart {
		return nil, nil, validationError("recipient is not the other participant of this chat")
	}

	msg := &models.Message{
		ChatID:      chat.ID,
		SenderID:    senderID,
		RecipientID: recipientID,
		Content:     content,
	}
	if err := s.db.AppendMessage(ctx, msg); err != nil {
		return nil, nil, translate(err)
	}

	chat.LastMessageID = &msg.ID
	chat.MessageSeq = msg.Seq
	chat.UpdatedAt = msg.CreatedAt
	return msg, chat, nil
}

// SendMessage persists a message and hands it to the notifier. Append and
// notification happen under a per-chat lock so delivery order matches the
// stored sequence.
func (s *Service) SendMessage(ctx context.Context, p auth.Principal, in SendInput) (*models.MessageView, error) {
	if _, err := s.validateContent(in.Content); err != nil {
		return nil, err
	}

	chatID := in.ChatID
	if chatID == uuid.Nil {
		if in.RecipientID == uuid.Nil {
			return nil, validationError("chatId or recipientId is required")
		}
		chat, err := s.ResolveOrCreate(ctx, p.UserID, in.RecipientID)
		if err != nil {
			return nil, err
		}
		chatID = chat.ID
	}

	unlock := s.locks.lock(chatID)
	defer unlock()

	msg, chat, err := s.appendMessage(ctx, chatID, p.UserID, in.RecipientID, in.Content)
	if err != nil {
		return nil, err
	}

	view := &models.MessageView{Message: msg, Sender: s.senderInfo(ctx, p)}
	s.notifier.MessageCreated(chat, view)

	s.log.WithFields(logrus.Fields{
		"chat_id":    chat.ID,
		"message_id": msg.ID,
		"seq":        msg.Seq,
	}).Debug("message sent")
	return view, nil
}

func (s *Service) senderInfo(ctx context.Context, p auth.Principal) *models.UserResponse {
	user, err := s.db.GetUserByID(ctx, p.UserID)
	if err != nil {
		s.log.WithError(err).WithField("user_id", p.UserID).Warn("could not load sender profile")
		return &models.UserResponse{ID: p.UserID, Username: p.Username}
	}
	return user.Response()
}

func (s *Service) normalizePage(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = s.cfg.PageSize
	}
	if limit > s.cfg.MaxPageSize {
		limit = s.cfg.MaxPageSize
	}
	return page, limit
}

// GetPage returns one page of history in ascending order. Page 1 holds the
// newest messages. With ReadOnFetch enabled, unread messages addressed to the
// requester on the returned page are marked read and the sender is notified.
func (s *Service) GetPage(ctx context.Context, chatID, requesterID uuid.UUID, page, limit int) (*models.MessagePage, error) {
	chat, err := s.loadChatFor(ctx, chatID, requesterID)
	if err != nil {
		return nil, err
	}
	page, limit = s.normalizePage(page, limit)

	total, err := s.db.CountMessages(ctx, chatID)
	if err != nil {
		return nil, err
	}
	messages, err := s.db.ListMessages(ctx, chatID, limit, (page-1)*limit)
	if err != nil {
		return nil, err
	}
	if messages == nil {
		messages = []*models.Message{}
	}
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}

	if s.cfg.ReadOnFetch {
		s.readOnFetch(ctx, chat, requesterID, messages)
	}

	return &models.MessagePage{
		Messages: messages,
		Pagination: models.Pagination{
			Page:  page,
			Limit: limit,
			Total: total,
			Pages: (total + limit - 1) / limit,
		},
	}, nil
}

func (s *Service) readOnFetch(ctx context.Context, chat *models.Chat, readerID uuid.UUID, messages []*models.Message) {
	var ids []uuid.UUID
	for _, m := range messages {
		if m.RecipientID == readerID && !m.Read {
			ids = append(ids, m.ID)
		}
	}
	if len(ids) == 0 {
		return
	}

	changed, err := s.db.MarkMessagesRead(ctx, readerID, ids, s.now())
	if err != nil {
		s.log.WithError(err).WithField("chat_id", chat.ID).Warn("read-on-fetch failed")
		return
	}

	byID := make(map[uuid.UUID]*models.Message, len(changed))
	for _, m := range changed {
		byID[m.ID] = m
	}
	for i, m := range messages {
		if updated, ok := byID[m.ID]; ok {
			messages[i] = updated
		}
	}
	if len(changed) > 0 {
		s.notifier.MessagesRead(chat, readerID, changed)
	}
}

// CountUnread counts unread messages addressed to userID in one chat
func (s *Service) CountUnread(ctx context.Context, chatID, userID uuid.UUID) (int, error) {
	return s.db.CountUnread(ctx, chatID, userID)
}

// MarkRead marks the given messages read on behalf of their recipient.
// Ids that are unknown, already read or addressed to someone else are
// skipped. Store failures are logged and reported as zero changes.
func (s *Service) MarkRead(ctx context.Context, p auth.Principal, messageIDs []uuid.UUID) (int, error) {
	if len(messageIDs) == 0 {
		return 0, nil
	}
	changed, err := s.db.MarkMessagesRead(ctx, p.UserID, messageIDs, s.now())
	if err != nil {
		s.log.WithError(err).WithField("user_id", p.UserID).Warn("marking messages read failed")
		return 0, nil
	}
	s.notifyRead(ctx, p.UserID, changed)
	return len(changed), nil
}

// MarkChatRead marks messages of one chat read. An empty id list means every
// unread message in the chat addressed to the caller.
func (s *Service) MarkChatRead(ctx context.Context, p auth.Principal, chatID uuid.UUID, messageIDs []uuid.UUID) (int, error) {
	chat, err := s.loadChatFor(ctx, chatID, p.UserID)
	if err != nil {
		return 0, err
	}
	if len(messageIDs) > 0 {
		return s.MarkRead(ctx, p, messageIDs)
	}

	changed, err := s.db.MarkChatRead(ctx, chat.ID, p.UserID, s.now())
	if err != nil {
		s.log.WithError(err).WithField("chat_id", chat.ID).Warn("marking chat read failed")
		return 0, nil
	}
	if len(changed) > 0 {
		s.notifier.MessagesRead(chat, p.UserID, changed)
	}
	return len(changed), nil
}

// notifyRead groups changed messages by chat and emits one notification each
func (s *Service) notifyRead(ctx context.Context, readerID uuid.UUID, changed []*models.Message) {
	if len(changed) == 0 {
		return
	}
	grouped := make(map[uuid.UUID][]*models.Message)
	var order []uuid.UUID
	for _, m := range changed {
		if _, ok := grouped[m.ChatID]; !ok {
			order = append(order, m.ChatID)
		}
		grouped[m.ChatID] = append(grouped[m.ChatID], m)
	}

	for _, chatID := range order {
		chat, err := s.db.GetChatByID(ctx, chatID)
		if err != nil {
			s.log.WithError(err).WithField("chat_id", chatID).Warn("could not load chat for read notification")
			continue
		}
		s.notifier.MessagesRead(chat, readerID, grouped[chatID])
	}
}

// TouchPresence records activity of a user, used on connect and disconnect
func (s *Service) TouchPresence(ctx context.Context, userID uuid.UUID) {
	if err := s.db.UpdateLastSeen(ctx, userID); err != nil {
		s.log.WithError(err).WithField("user_id", userID).Debug("could not update last seen")
	}
}
