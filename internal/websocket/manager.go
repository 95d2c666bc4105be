package websocket

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/fitsphere/chat-service/internal/auth"
	"github.com/fitsphere/chat-service/internal/logger"
)

const sendBufferSize = 256

var log = logger.New("websocket")

// Client is one websocket connection. A user may hold several; only the
// most recent one is tracked in presence.
type Client struct {
	ID        uuid.UUID
	Principal auth.Principal
	Socket    *websocket.Conn
	Send      chan []byte

	rooms map[uuid.UUID]struct{} // guarded by Manager.mu
}

// NewClient wraps a connection for the given principal
func NewClient(p auth.Principal, socket *websocket.Conn) *Client {
	return &Client{
		ID:        uuid.New(),
		Principal: p,
		Socket:    socket,
		Send:      make(chan []byte, sendBufferSize),
		rooms:     make(map[uuid.UUID]struct{}),
	}
}

func (c *Client) fields() logrus.Fields {
	return logrus.Fields{"conn_id": c.ID, "user_id": c.Principal.UserID}
}

type membership struct {
	client *Client
	done   chan struct{}
}

// Manager maintains the set of active clients and their chat rooms.
// Send channels are written under mu.RLock and closed under mu.Lock.
type Manager struct {
	mu       sync.RWMutex
	clients  map[uuid.UUID]*Client
	rooms    map[uuid.UUID]map[uuid.UUID]*Client
	presence PresenceRegistry

	register   chan membership
	unregister chan membership
	done       chan struct{}
}

// NewManager creates a new websocket manager
func NewManager(presence PresenceRegistry) *Manager {
	if presence == nil {
		presence = NewMemoryPresence()
	}
	return &Manager{
		clients:    make(map[uuid.UUID]*Client),
		rooms:      make(map[uuid.UUID]map[uuid.UUID]*Client),
		presence:   presence,
		register:   make(chan membership),
		unregister: make(chan membership),
		done:       make(chan struct{}),
	}
}

// Presence exposes the registry the manager updates
func (m *Manager) Presence() PresenceRegistry {
	return m.presence
}

// Run processes connects and disconnects until ctx is cancelled, then
// closes every remaining client
func (m *Manager) Run(ctx context.Context) {
	defer close(m.done)
	for {
		select {
		case req := <-m.register:
			m.connect(req.client)
			close(req.done)
		case req := <-m.unregister:
			m.disconnect(req.client)
			close(req.done)
		case <-ctx.Done():
			m.shutdown()
			return
		}
	}
}

// Register adds a client and blocks until it is visible to routing.
// It returns false once the manager has stopped.
func (m *Manager) Register(c *Client) bool {
	return m.submit(m.register, c)
}

// Unregister removes a client, releasing its rooms and presence
func (m *Manager) Unregister(c *Client) bool {
	return m.submit(m.unregister, c)
}

func (m *Manager) submit(ch chan membership, c *Client) bool {
	req := membership{client: c, done: make(chan struct{})}
	select {
	case ch <- req:
	case <-m.done:
		return false
	}
	<-req.done
	return true
}

func (m *Manager) connect(c *Client) {
	m.mu.Lock()
	m.clients[c.ID] = c
	m.mu.Unlock()

	if previous, replaced := m.presence.Register(c.Principal.UserID, c.ID); replaced {
		log.WithFields(c.fields()).WithField("previous_conn_id", previous).Info("connection superseded")
	}
	log.WithFields(c.fields()).Info("client connected")

	m.Broadcast(frameFor(EventUserStatus, StatusNotice{UserID: c.Principal.UserID, Status: StatusOnline}), c.ID)
}

func (m *Manager) disconnect(c *Client) {
	m.mu.Lock()
	if _, ok := m.clients[c.ID]; !ok {
		m.mu.Unlock()
		return
	}
	delete(m.clients, c.ID)
	left := make([]uuid.UUID, 0, len(c.rooms))
	for chatID := range c.rooms {
		m.removeFromRoomLocked(chatID, c)
		left = append(left, chatID)
	}
	close(c.Send)
	m.mu.Unlock()

	log.WithFields(c.fields()).Info("client disconnected")

	for _, chatID := range left {
		m.SendToRoom(chatID, frameFor(EventUserLeft, RoomNotice{UserID: c.Principal.UserID, ChatID: chatID}), c.ID)
	}
	if m.presence.Remove(c.Principal.UserID, c.ID) {
		m.Broadcast(frameFor(EventUserStatus, StatusNotice{UserID: c.Principal.UserID, Status: StatusOffline}), c.ID)
	}
}

func (m *Manager) shutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, c := range m.clients {
		m.presence.Remove(c.Principal.UserID, c.ID)
		close(c.Send)
		delete(m.clients, id)
	}
	m.rooms = make(map[uuid.UUID]map[uuid.UUID]*Client)
	log.Info("websocket manager stopped")
}

// Join adds the connection to the chat's room and tells the other members.
// Joining twice is a no-op.
func (m *Manager) Join(c *Client, chatID uuid.UUID) {
	m.mu.Lock()
	if _, ok := m.clients[c.ID]; !ok {
		m.mu.Unlock()
		return
	}
	members, ok := m.rooms[chatID]
	if !ok {
		members = make(map[uuid.UUID]*Client)
		m.rooms[chatID] = members
	}
	if _, already := members[c.ID]; already {
		m.mu.Unlock()
		return
	}
	members[c.ID] = c
	c.rooms[chatID] = struct{}{}
	m.mu.Unlock()

	log.WithFields(c.fields()).WithField("chat_id", chatID).Debug("joined room")
	m.SendToRoom(chatID, frameFor(EventUserJoined, RoomNotice{UserID: c.Principal.UserID, ChatID: chatID}), c.ID)
}

// Leave removes the connection from the chat's room
func (m *Manager) Leave(c *Client, chatID uuid.UUID) {
	m.mu.Lock()
	if _, ok := c.rooms[chatID]; !ok {
		m.mu.Unlock()
		return
	}
	m.removeFromRoomLocked(chatID, c)
	m.mu.Unlock()

	log.WithFields(c.fields()).WithField("chat_id", chatID).Debug("left room")
	m.SendToRoom(chatID, frameFor(EventUserLeft, RoomNotice{UserID: c.Principal.UserID, ChatID: chatID}), c.ID)
}

func (m *Manager) removeFromRoomLocked(chatID uuid.UUID, c *Client) {
	delete(c.rooms, chatID)
	if members, ok := m.rooms[chatID]; ok {
		delete(members, c.ID)
		if len(members) == 0 {
			delete(m.rooms, chatID)
		}
	}
}

// InRoom reports whether the connection is a member of the chat's room
func (m *Manager) InRoom(chatID, connID uuid.UUID) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.rooms[chatID][connID]
	return ok
}

// SendToRoom queues frame for every room member except the exclude connection
func (m *Manager) SendToRoom(chatID uuid.UUID, frame []byte, exclude uuid.UUID) {
	if frame == nil {
		return
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for id, c := range m.rooms[chatID] {
		if id != exclude {
			m.deliverLocked(c, frame)
		}
	}
}

// SendToConnection queues frame for a single connection
func (m *Manager) SendToConnection(connID uuid.UUID, frame []byte) bool {
	if frame == nil {
		return false
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.clients[connID]
	if !ok {
		return false
	}
	return m.deliverLocked(c, frame)
}

// Broadcast queues frame for every connection except exclude
func (m *Manager) Broadcast(frame []byte, exclude uuid.UUID) {
	if frame == nil {
		return
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for id, c := range m.clients {
		if id != exclude {
			m.deliverLocked(c, frame)
		}
	}
}

// deliverLocked never blocks. A client whose buffer is full is too slow to
// keep up; its socket is closed so the read pump unregisters it.
func (m *Manager) deliverLocked(c *Client, frame []byte) bool {
	select {
	case c.Send <- frame:
		return true
	default:
		log.WithFields(c.fields()).Warn("send buffer full, dropping client")
		if c.Socket != nil {
			c.Socket.Close()
		}
		return false
	}
}

// ClientCount returns the number of live connections
func (m *Manager) ClientCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.clients)
}

func frameFor(event string, data interface{}) []byte {
	frame, err := encode(event, data)
	if err != nil {
		log.WithError(err).WithField("event", event).Error("failed to encode event")
		return nil
	}
	return frame
}
