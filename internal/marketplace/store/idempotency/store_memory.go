package idempotency

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

type entry struct {
	orderID   uuid.UUID
	expiresAt time.Time
}

// MemoryStore is the single-instance fallback when Redis is not configured.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]entry
	ttl     time.Duration
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{entries: make(map[string]entry), ttl: ttl}
}

func (s *MemoryStore) Reserve(ctx context.Context, key string, orderID uuid.UUID) (uuid.UUID, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	if e, ok := s.entries[key]; ok && now.Before(e.expiresAt) {
		return e.orderID, false, nil
	}
	s.entries[key] = entry{orderID: orderID, expiresAt: now.Add(s.ttl)}
	return orderID, true, nil
}
