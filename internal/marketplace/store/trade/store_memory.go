package trade

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/knowton/marketplace/internal/marketplace/models"
	dErrors "github.com/knowton/marketplace/pkg/domain-errors"
)

// MemoryStore keeps trades in a map. Used in tests and when Postgres is not
// configured.
type MemoryStore struct {
	mu     sync.RWMutex
	trades map[uuid.UUID]*models.Trade
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{trades: make(map[uuid.UUID]*models.Trade)}
}

func (s *MemoryStore) Create(ctx context.Context, t *models.Trade) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.trades[t.ID]; exists {
		return dErrors.New(dErrors.CodeConflict, "trade already exists")
	}
	s.trades[t.ID] = t.Clone()
	return nil
}

func (s *MemoryStore) Update(ctx context.Context, t *models.Trade) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.trades[t.ID]; !exists {
		return dErrors.New(dErrors.CodeNotFound, "trade not found")
	}
	s.trades[t.ID] = t.Clone()
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id uuid.UUID) (*models.Trade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.trades[id]
	if !ok {
		return nil, dErrors.New(dErrors.CodeNotFound, "trade not found")
	}
	return t.Clone(), nil
}

// ListByToken returns trades for a token, newest first.
func (s *MemoryStore) ListByToken(ctx context.Context, tokenID uuid.UUID, limit, offset int) ([]*models.Trade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Trade
	for _, t := range s.trades {
		if t.TokenID == tokenID {
			out = append(out, t.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExecutedAt.After(out[j].ExecutedAt) })
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}
