package chat

import (
	"hash/fnv"
	"sync"

	"github.com/google/uuid"
)

const lockStripes = 64

// chatLocks serializes append+deliver per chat so realtime observers see
// messages in the order the store numbered them
type chatLocks struct {
	stripes [lockStripes]sync.Mutex
}

func (l *chatLocks) lock(chatID uuid.UUID) (unlock func()) {
	h := fnv.New32a()
	h.Write(chatID[:])
	m := &l.stripes[h.Sum32()%lockStripes]
	m.Lock()
	return m.Unlock
}
