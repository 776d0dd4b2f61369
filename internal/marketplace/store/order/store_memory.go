package order

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/knowton/marketplace/internal/marketplace/models"
	dErrors "github.com/knowton/marketplace/pkg/domain-errors"
)

// MemoryStore keeps orders in a map. Used in tests and when Postgres is not
// configured.
type MemoryStore struct {
	mu     sync.RWMutex
	orders map[uuid.UUID]*models.Order
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{orders: make(map[uuid.UUID]*models.Order)}
}

func (s *MemoryStore) Create(ctx context.Context, o *models.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.orders[o.ID]; exists {
		return dErrors.New(dErrors.CodeConflict, "order already exists")
	}
	s.orders[o.ID] = o.Clone()
	return nil
}

func (s *MemoryStore) Update(ctx context.Context, o *models.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.orders[o.ID]; !exists {
		return dErrors.New(dErrors.CodeNotFound, "order not found")
	}
	s.orders[o.ID] = o.Clone()
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, dErrors.New(dErrors.CodeNotFound, "order not found")
	}
	return o.Clone(), nil
}

// ListOpenByToken returns resting orders for a token in creation order, so
// the book rebuild preserves time priority.
func (s *MemoryStore) ListOpenByToken(ctx context.Context, tokenID uuid.UUID) ([]*models.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Order
	for _, o := range s.orders {
		if o.TokenID == tokenID && isOpen(o.Status) {
			out = append(out, o.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// ListOpenTokenIDs returns the tokens that still have resting orders. Used
// to rebuild books after a restart.
func (s *MemoryStore) ListOpenTokenIDs(ctx context.Context) ([]uuid.UUID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[uuid.UUID]struct{})
	var out []uuid.UUID
	for _, o := range s.orders {
		if !isOpen(o.Status) {
			continue
		}
		if _, ok := seen[o.TokenID]; ok {
			continue
		}
		seen[o.TokenID] = struct{}{}
		out = append(out, o.TokenID)
	}
	return out, nil
}

func (s *MemoryStore) ListByOwner(ctx context.Context, owner string, openOnly bool) ([]*models.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Order
	for _, o := range s.orders {
		if o.Owner != owner {
			continue
		}
		if openOnly && !isOpen(o.Status) {
			continue
		}
		out = append(out, o.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func isOpen(status models.OrderStatus) bool {
	return status == models.StatusOpen || status == models.StatusPartiallyFilled
}
