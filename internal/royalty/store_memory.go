package royalty

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	dErrors "github.com/knowton/marketplace/pkg/domain-errors"
)

// MemoryPolicyStore keeps royalty policies in a map.
type MemoryPolicyStore struct {
	mu       sync.RWMutex
	policies map[uuid.UUID]Policy
}

func NewMemoryPolicyStore() *MemoryPolicyStore {
	return &MemoryPolicyStore{policies: make(map[uuid.UUID]Policy)}
}

func (s *MemoryPolicyStore) Put(ctx context.Context, p Policy) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.policies[p.TokenID] = p
	return nil
}

func (s *MemoryPolicyStore) Get(ctx context.Context, tokenID uuid.UUID) (Policy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.policies[tokenID]
	if !ok {
		return Policy{}, dErrors.New(dErrors.CodeNotFound, "royalty policy not found")
	}
	return p, nil
}

// MemoryDistributionStore keeps distribution records in memory.
type MemoryDistributionStore struct {
	mu            sync.RWMutex
	distributions []Distribution
}

func NewMemoryDistributionStore() *MemoryDistributionStore {
	return &MemoryDistributionStore{}
}

func (s *MemoryDistributionStore) CreateBatch(ctx context.Context, batch []Distribution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.distributions = append(s.distributions, batch...)
	return nil
}

func (s *MemoryDistributionStore) ListByToken(ctx context.Context, tokenID uuid.UUID) ([]Distribution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Distribution
	for _, d := range s.distributions {
		if d.TokenID == tokenID {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryDistributionStore) ListByRecipient(ctx context.Context, recipient string) ([]Distribution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Distribution
	for _, d := range s.distributions {
		if d.Recipient == recipient {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}
