package websocket

import (
	"sync"

	"github.com/google/uuid"
)

// PresenceRegistry maps an online user to its current connection
type PresenceRegistry interface {
	// Register makes connID the user's current connection, superseding any
	// previous one, which is returned with replaced=true
	Register(userID, connID uuid.UUID) (previous uuid.UUID, replaced bool)
	Lookup(userID uuid.UUID) (connID uuid.UUID, online bool)
	// Remove clears the entry only if it still points at connID
	Remove(userID, connID uuid.UUID) bool
}

// MemoryPresence is a process-local PresenceRegistry
type MemoryPresence struct {
	mu    sync.RWMutex
	conns map[uuid.UUID]uuid.UUID
}

func NewMemoryPresence() *MemoryPresence {
	return &MemoryPresence{conns: make(map[uuid.UUID]uuid.UUID)}
}

func (p *MemoryPresence) Register(userID, connID uuid.UUID) (uuid.UUID, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	previous, replaced := p.conns[userID]
	p.conns[userID] = connID
	return previous, replaced && previous != connID
}

func (p *MemoryPresence) Lookup(userID uuid.UUID) (uuid.UUID, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	connID, ok := p.conns[userID]
	return connID, ok
}

func (p *MemoryPresence) Remove(userID, connID uuid.UUID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if current, ok := p.conns[userID]; !ok || current != connID {
		return false
	}
	delete(p.conns, userID)
	return true
}
