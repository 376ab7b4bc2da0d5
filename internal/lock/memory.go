package lock

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryLock is a single-process Lock implementation for tests,
// mirroring RedisLock's CAS semantics with a mutex instead of Lua.
type MemoryLock struct {
	mu      sync.Mutex
	entries map[string]*memEntry
}

type memEntry struct {
	owner     string
	expiresAt time.Time
}

// NewMemoryLock creates an empty MemoryLock.
func NewMemoryLock() *MemoryLock {
	return &MemoryLock{entries: make(map[string]*memEntry)}
}

func (l *MemoryLock) TryAcquire(_ context.Context, name string, ttl time.Duration) (Handle, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now().UTC()
	existing, held := l.entries[name]
	if held && existing.expiresAt.After(now) {
		return nil, false, nil
	}

	owner := uuid.NewString()
	l.entries[name] = &memEntry{owner: owner, expiresAt: now.Add(ttl)}
	return &memHandle{lock: l, name: name, owner: owner}, true, nil
}

type memHandle struct {
	lock  *MemoryLock
	name  string
	owner string
}

func (h *memHandle) Name() string  { return h.name }
func (h *memHandle) Owner() string { return h.owner }

func (h *memHandle) TryRenew(_ context.Context, ttl time.Duration) (bool, error) {
	h.lock.mu.Lock()
	defer h.lock.mu.Unlock()

	entry, ok := h.lock.entries[h.name]
	if !ok || entry.owner != h.owner {
		return false, nil
	}
	entry.expiresAt = time.Now().UTC().Add(ttl)
	return true, nil
}

func (h *memHandle) Release(_ context.Context) error {
	h.lock.mu.Lock()
	defer h.lock.mu.Unlock()

	entry, ok := h.lock.entries[h.name]
	if !ok || entry.owner != h.owner {
		return nil
	}
	delete(h.lock.entries, h.name)
	return nil
}

var _ Lock = (*MemoryLock)(nil)
var _ Handle = (*memHandle)(nil)
