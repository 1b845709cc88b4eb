package repository

import (
	"context"
	"sync"
	"time"

	"studiodesk/internal/domain"

	"github.com/google/uuid"
)

type lockEntry struct {
	token     string
	expiresAt time.Time
}

// MemorySlotLocker is a process-local SlotLocker.
type MemorySlotLocker struct {
	mu    sync.Mutex
	locks map[string]lockEntry
}

func NewMemorySlotLocker() *MemorySlotLocker {
	return &MemorySlotLocker{locks: make(map[string]lockEntry)}
}

func (r *MemorySlotLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (string, error) {
	now := time.Now()

	r.mu.Lock()
	defer r.mu.Unlock()

	if entry, ok := r.locks[key]; ok && now.Before(entry.expiresAt) {
		return "", domain.ErrLockHeld
	}

	token := uuid.NewString()
	r.locks[key] = lockEntry{token: token, expiresAt: now.Add(ttl)}
	return token, nil
}

func (r *MemorySlotLocker) Release(ctx context.Context, key, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if entry, ok := r.locks[key]; ok && entry.token == token {
		delete(r.locks, key)
	}
	return nil
}
