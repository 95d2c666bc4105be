package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/fitsphere/chat-service/internal/auth"
	"github.com/fitsphere/chat-service/internal/chat"
	"github.com/fitsphere/chat-service/internal/models"
)

const (
	maxMessageSize = 64 * 1024
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	writeWait      = 10 * time.Second
)

// ChatService is the part of chat.Service the gateway drives
type ChatService interface {
	SendMessage(ctx context.Context, p auth.Principal, in chat.SendInput) (*models.MessageView, error)
	MarkRead(ctx context.Context, p auth.Principal, messageIDs []uuid.UUID) (int, error)
	GetConversation(ctx context.Context, p auth.Principal, chatID uuid.UUID) (*models.ChatSummary, error)
	TouchPresence(ctx context.Context, userID uuid.UUID)
}

// Authenticator verifies a bearer token
type Authenticator interface {
	Authenticate(token string) (auth.Principal, error)
}

// HandlerConfig tunes per-connection limits
type HandlerConfig struct {
	MaxEventsPerMinute int
	EventTimeout       time.Duration
	// AllowedOrigins restricts browser origins; empty or "*" allows all
	AllowedOrigins []string
}

// Handler upgrades authenticated requests and runs the connection pumps
type Handler struct {
	manager  *Manager
	router   *Router
	chats    ChatService
	auth     Authenticator
	cfg      HandlerConfig
	upgrader websocket.Upgrader
}

func NewHandler(manager *Manager, router *Router, chats ChatService, authn Authenticator, cfg HandlerConfig) *Handler {
	if cfg.MaxEventsPerMinute <= 0 {
		cfg.MaxEventsPerMinute = 120
	}
	if cfg.EventTimeout <= 0 {
		cfg.EventTimeout = 10 * time.Second
	}
	h := &Handler{manager: manager, router: router, chats: chats, auth: authn, cfg: cfg}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(h.cfg.AllowedOrigins) == 0 {
		return true
	}
	for _, allowed := range h.cfg.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	log.WithField("origin", origin).Warn("rejected websocket origin")
	return false
}

// credential reads the bearer token from the Authorization header or the
// token query parameter, since browsers cannot set headers on upgrades
func credential(r *http.Request) string {
	if header := r.Header.Get("Authorization"); strings.HasPrefix(header, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	}
	return r.URL.Query().Get("token")
}

// ServeWS authenticates before upgrading; unauthenticated requests never
// become connections
func (h *Handler) ServeWS(c *gin.Context) {
	principal, err := h.auth.Authenticate(credential(c.Request))
	if err != nil {
		log.WithError(err).WithField("remote_addr", c.Request.RemoteAddr).Debug("rejected websocket connection")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.WithError(err).Error("failed to upgrade connection")
		return
	}

	client := NewClient(principal, conn)
	if !h.manager.Register(client) {
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
		conn.Close()
		return
	}
	h.chats.TouchPresence(c.Request.Context(), principal.UserID)

	go h.writePump(client)
	go h.readPump(client)
}

// readPump pumps events from the websocket connection to the service
func (h *Handler) readPump(c *Client) {
	defer func() {
		h.manager.Unregister(c)
		c.Socket.Close()
		h.chats.TouchPresence(context.Background(), c.Principal.UserID)
	}()

	c.Socket.SetReadLimit(maxMessageSize)
	c.Socket.SetReadDeadline(time.Now().Add(pongWait))
	c.Socket.SetPongHandler(func(string) error {
		c.Socket.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	count := 0
	windowStart := time.Now()

	for {
		_, raw, err := c.Socket.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.WithFields(c.fields()).WithError(err).Warn("unexpected close")
			}
			return
		}

		if time.Since(windowStart) >= time.Minute {
			count = 0
			windowStart = time.Now()
		}
		count++
		if count > h.cfg.MaxEventsPerMinute {
			h.sendError(c, "rate limit exceeded, slow down")
			continue
		}

		var env Envelope
		if err := json.Unmarshal(raw, &env); err != nil || env.Event == "" {
			h.sendError(c, "invalid message format")
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), h.cfg.EventTimeout)
		h.dispatch(ctx, c, env)
		cancel()
	}
}

func (h *Handler) dispatch(ctx context.Context, c *Client, env Envelope) {
	switch env.Event {
	case EventJoin, EventLeave:
		var req ChatRef
		if err := decode(env.Data, &req); err != nil {
			h.sendError(c, err.Error())
			return
		}
		chatID := parseOptionalID(req.ChatID)
		if env.Event == EventJoin {
			h.manager.Join(c, chatID)
		} else {
			h.manager.Leave(c, chatID)
		}

	case EventMessage:
		var req SendRequest
		if err := decode(env.Data, &req); err != nil {
			h.sendError(c, err.Error())
			return
		}
		msg, err := h.chats.SendMessage(ctx, c.Principal, chat.SendInput{
			ChatID:      parseOptionalID(req.ChatID),
			RecipientID: parseOptionalID(req.Recipient),
			Content:     req.Content,
		})
		if err != nil {
			h.sendServiceError(c, env.Event, err)
			return
		}
		h.acknowledge(ctx, c, msg)

	case EventTypingStart, EventTypingStop:
		var req TypingRequest
		if err := decode(env.Data, &req); err != nil {
			h.sendError(c, err.Error())
			return
		}
		h.router.Typing(c, parseOptionalID(req.ChatID), parseOptionalID(req.Recipient), env.Event == EventTypingStart)

	case EventMessageRead:
		var req ReadRequest
		if err := decode(env.Data, &req); err != nil {
			h.sendError(c, err.Error())
			return
		}
		ids := make([]uuid.UUID, 0, len(req.MessageIDs))
		for _, s := range req.MessageIDs {
			ids = append(ids, parseOptionalID(s))
		}
		if _, err := h.chats.MarkRead(ctx, c.Principal, ids); err != nil {
			h.sendServiceError(c, env.Event, err)
		}

	default:
		log.WithFields(c.fields()).WithField("event", env.Event).Debug("unknown event")
		h.sendError(c, "unknown event: "+env.Event)
	}
}

// acknowledge echoes a stored message to a sending connection outside the
// chat's room, which the room broadcast did not reach
func (h *Handler) acknowledge(ctx context.Context, c *Client, msg *models.MessageView) {
	if h.manager.InRoom(msg.ChatID, c.ID) {
		return
	}
	payload := RoomMessage{MessageView: msg}
	if summary, err := h.chats.GetConversation(ctx, c.Principal, msg.ChatID); err == nil {
		payload.Chat = summary.ChatView
	} else {
		log.WithFields(c.fields()).WithError(err).Warn("could not load chat for send acknowledgement")
	}
	h.manager.SendToConnection(c.ID, frameFor(EventMessage, payload))
}

// sendServiceError reports domain errors verbatim and hides everything else
func (h *Handler) sendServiceError(c *Client, event string, err error) {
	if errors.Is(err, chat.ErrValidation) || errors.Is(err, chat.ErrNotFound) || errors.Is(err, chat.ErrForbidden) {
		h.sendError(c, err.Error())
		return
	}
	log.WithFields(c.fields()).WithField("event", event).WithError(err).Error("event handling failed")
	h.sendError(c, "internal error")
}

func (h *Handler) sendError(c *Client, message string) {
	h.manager.SendToConnection(c.ID, frameFor(EventError, ErrorNotice{Message: message}))
}

// writePump pumps frames from the manager to the websocket connection, one
// event per websocket message
func (h *Handler) writePump(c *Client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Socket.Close()
	}()

	for {
		select {
		case frame, ok := <-c.Send:
			c.Socket.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The manager closed the channel
				c.Socket.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Socket.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			c.Socket.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Socket.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
