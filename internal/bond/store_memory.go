package bond

import (
	"context"
	"math/big"
	"sort"
	"sync"

	"github.com/google/uuid"

	dErrors "github.com/knowton/marketplace/pkg/domain-errors"
)

// MemoryStore keeps bonds, investments and distributions in memory.
type MemoryStore struct {
	mu            sync.RWMutex
	bonds         map[uuid.UUID]Bond
	investments   []Investment
	distributions []Distribution
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{bonds: make(map[uuid.UUID]Bond)}
}

func (s *MemoryStore) Create(ctx context.Context, b Bond) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.bonds[b.ID]; exists {
		return dErrors.New(dErrors.CodeConflict, "bond already exists")
	}
	s.bonds[b.ID] = cloneBond(b)
	return nil
}

func (s *MemoryStore) Update(ctx context.Context, b Bond) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.bonds[b.ID]; !exists {
		return dErrors.New(dErrors.CodeNotFound, "bond not found")
	}
	s.bonds[b.ID] = cloneBond(b)
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id uuid.UUID) (Bond, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.bonds[id]
	if !ok {
		return Bond{}, dErrors.New(dErrors.CodeNotFound, "bond not found")
	}
	return cloneBond(b), nil
}

func (s *MemoryStore) ListByIssuer(ctx context.Context, issuer string) ([]Bond, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Bond
	for _, b := range s.bonds {
		if b.Issuer == issuer {
			out = append(out, cloneBond(b))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) CreateInvestment(ctx context.Context, inv Investment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.investments = append(s.investments, cloneInvestment(inv))
	return nil
}

func (s *MemoryStore) ListInvestments(ctx context.Context, bondID uuid.UUID) ([]Investment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Investment
	for _, inv := range s.investments {
		if inv.BondID == bondID {
			out = append(out, cloneInvestment(inv))
		}
	}
	return out, nil
}

func (s *MemoryStore) CreateDistribution(ctx context.Context, d Distribution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.distributions = append(s.distributions, d)
	return nil
}

func (s *MemoryStore) ListDistributions(ctx context.Context, bondID uuid.UUID) ([]Distribution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Distribution
	for _, d := range s.distributions {
		if d.BondID == bondID {
			out = append(out, d)
		}
	}
	return out, nil
}

func cloneBond(b Bond) Bond {
	out := b
	out.TotalValue = new(big.Int).Set(b.TotalValue)
	out.TotalRevenue = new(big.Int).Set(b.TotalRevenue)
	out.Tranches = make([]Tranche, len(b.Tranches))
	for i, t := range b.Tranches {
		out.Tranches[i] = t
		out.Tranches[i].Allocation = new(big.Int).Set(t.Allocation)
		out.Tranches[i].Invested = new(big.Int).Set(t.Invested)
		out.Tranches[i].Distributed = new(big.Int).Set(t.Distributed)
	}
	out.Assessment.RiskFactors = append([]string(nil), b.Assessment.RiskFactors...)
	return out
}

func cloneInvestment(inv Investment) Investment {
	out := inv
	out.Amount = new(big.Int).Set(inv.Amount)
	return out
}
