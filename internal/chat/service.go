package chat

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/fitsphere/chat-service/internal/auth"
	"github.com/fitsphere/chat-service/internal/database"
	"github.com/fitsphere/chat-service/internal/logger"
	"github.com/fitsphere/chat-service/internal/models"
)

// Config tunes validation and paging
type Config struct {
	MaxMessageLength int
	PageSize         int
	MaxPageSize      int
	// ReadOnFetch marks unread messages addressed to the requester as read
	// whenever they are returned by GetPage
	ReadOnFetch bool
}

// DefaultConfig mirrors the server defaults
func DefaultConfig() Config {
	return Config{MaxMessageLength: 2000, PageSize: 50, MaxPageSize: 100, ReadOnFetch: true}
}

// Notifier receives committed state changes for realtime delivery.
// Implementations must not block and must not call back into the Service.
type Notifier interface {
	MessageCreated(chat *models.Chat, msg *models.MessageView)
	MessagesRead(chat *models.Chat, readerID uuid.UUID, messages []*models.Message)
}

type noopNotifier struct{}

func (noopNotifier) MessageCreated(*models.Chat, *models.MessageView)        {}
func (noopNotifier) MessagesRead(*models.Chat, uuid.UUID, []*models.Message) {}

// Service owns conversations, messages and read state
type Service struct {
	db       database.DBInterface
	notifier Notifier
	cfg      Config
	locks    chatLocks
	now      func() time.Time
	log      *logrus.Entry
}

// NewService creates the chat service. notifier may be nil.
func NewService(db database.DBInterface, notifier Notifier, cfg Config) *Service {
	if notifier == nil {
		notifier = noopNotifier{}
	}
	def := DefaultConfig()
	if cfg.MaxMessageLength <= 0 {
		cfg.MaxMessageLength = def.MaxMessageLength
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = def.PageSize
	}
	if cfg.MaxPageSize < cfg.PageSize {
		cfg.MaxPageSize = cfg.PageSize
	}
	return &Service{
		db:       db,
		notifier: notifier,
		cfg:      cfg,
		now:      time.Now,
		log:      logger.New("chat"),
	}
}

// ResolveOrCreate returns the single chat between two users, creating it on
// first contact. Concurrent first contacts converge on the same chat: the
// losing insert sees ErrDuplicateChat and re-reads the winner.
func (s *Service) ResolveOrCreate(ctx context.Context, userA, userB uuid.UUID) (*models.Chat, error) {
	if userA == userB {
		return nil, validationError("cannot start a chat with yourself")
	}
	for _, id := range []uuid.UUID{userA, userB} {
		if _, err := s.db.GetUserByID(ctx, id); err != nil {
			return nil, translate(err)
		}
	}

	chat, err := s.db.GetChatByParticipants(ctx, userA, userB)
	if err == nil {
		return chat, nil
	}
	if !errors.Is(err, database.ErrChatNotFound) {
		return nil, err
	}

	chat = &models.Chat{ParticipantA: userA, ParticipantB: userB}
	err = s.db.InsertChat(ctx, chat)
	if errors.Is(err, database.ErrDuplicateChat) {
		s.log.WithFields(logrus.Fields{"user_a": userA, "user_b": userB}).Debug("lost chat creation race, re-reading")
		chat, err = s.db.GetChatByParticipants(ctx, userA, userB)
		return chat, translate(err)
	}
	if err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"chat_id": chat.ID,
		"user_a":  chat.ParticipantA,
		"user_b":  chat.ParticipantB,
	}).Info("chat created")
	return chat, nil
}

// loadChatFor fetches a chat and checks that userID belongs to it
func (s *Service) loadChatFor(ctx context.Context, chatID, userID uuid.UUID) (*models.Chat, error) {
	chat, err := s.db.GetChatByID(ctx, chatID)
	if err != nil {
		return nil, translate(err)
	}
	if !chat.HasParticipant(userID) {
		return nil, translate(database.ErrNotParticipant)
	}
	return chat, nil
}

// OpenConversation is get-or-create with a specific counterpart
func (s *Service) OpenConversation(ctx context.Context, p auth.Principal, counterpartID uuid.UUID) (*models.ChatSummary, error) {
	chat, err := s.ResolveOrCreate(ctx, p.UserID, counterpartID)
	if err != nil {
		return nil, err
	}
	return s.summarize(ctx, chat, p.UserID)
}

// GetConversation returns one chat as seen by a participant
func (s *Service) GetConversation(ctx context.Context, p auth.Principal, chatID uuid.UUID) (*models.ChatSummary, error) {
	chat, err := s.loadChatFor(ctx, chatID, p.UserID)
	if err != nil {
		return nil, err
	}
	return s.summarize(ctx, chat, p.UserID)
}

// ListConversations returns every chat of the caller, most recent first
func (s *Service) ListConversations(ctx context.Context, p auth.Principal) ([]*models.ChatSummary, error) {
	chats, err := s.db.ListChatsForUser(ctx, p.UserID)
	if err != nil {
		return nil, err
	}

	summaries := make([]*models.ChatSummary, 0, len(chats))
	for _, chat := range chats {
		summary, err := s.summarize(ctx, chat, p.UserID)
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, summary)
	}
	return summaries, nil
}

// UnreadTotal counts unread messages addressed to the caller across all chats
func (s *Service) UnreadTotal(ctx context.Context, p auth.Principal) (int, error) {
	return s.db.CountUnreadForUser(ctx, p.UserID)
}

func (s *Service) summarize(ctx context.Context, chat *models.Chat, viewerID uuid.UUID) (*models.ChatSummary, error) {
	summary := &models.ChatSummary{ChatView: chat.View()}

	counterpart, err := s.db.GetUserByID(ctx, chat.Counterpart(viewerID))
	switch {
	case err == nil:
		summary.Participant = counterpart.Response()
	case errors.Is(err, database.ErrUserNotFound):
		s.log.WithField("chat_id", chat.ID).Warn("chat counterpart no longer exists")
	default:
		return nil, err
	}

	if chat.LastMessageID != nil {
		last, err := s.db.GetMessageByID(ctx, *chat.LastMessageID)
		if err != nil && !errors.Is(err, database.ErrMessageNotFound) {
			return nil, err
		}
		summary.LastMessage = last
	}

	unread, err := s.db.CountUnread(ctx, chat.ID, viewerID)
	if err != nil {
		return nil, err
	}
	summary.UnreadCount = unread
	return summary, nil
}
