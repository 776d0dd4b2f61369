package fraction

import (
	"context"
	"math/big"
	"sync"

	"github.com/google/uuid"

	dErrors "github.com/knowton/marketplace/pkg/domain-errors"
)

type vaultState struct {
	vault    Vault
	balances map[string]*big.Int
}

// MemoryStore keeps vaults and share balances under one lock so transfers
// stay atomic.
type MemoryStore struct {
	mu      sync.RWMutex
	vaults  map[uuid.UUID]*vaultState
	byToken map[uuid.UUID]uuid.UUID
	claims  []Claim
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		vaults:  make(map[uuid.UUID]*vaultState),
		byToken: make(map[uuid.UUID]uuid.UUID),
	}
}

func (s *MemoryStore) CreateVault(ctx context.Context, v Vault, initialHolder string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byToken[v.TokenID]; exists {
		return dErrors.New(dErrors.CodeConflict, "token already fractionalized")
	}
	s.vaults[v.ID] = &vaultState{
		vault:    cloneVault(v),
		balances: map[string]*big.Int{initialHolder: new(big.Int).Set(v.TotalShares)},
	}
	s.byToken[v.TokenID] = v.ID
	return nil
}

func (s *MemoryStore) UpdateVault(ctx context.Context, v Vault) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.vaults[v.ID]
	if !ok {
		return dErrors.New(dErrors.CodeNotFound, "vault not found")
	}
	st.vault = cloneVault(v)
	return nil
}

func (s *MemoryStore) GetVault(ctx context.Context, id uuid.UUID) (Vault, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.vaults[id]
	if !ok {
		return Vault{}, dErrors.New(dErrors.CodeNotFound, "vault not found")
	}
	return cloneVault(st.vault), nil
}

func (s *MemoryStore) GetVaultByToken(ctx context.Context, tokenID uuid.UUID) (Vault, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byToken[tokenID]
	if !ok {
		return Vault{}, dErrors.New(dErrors.CodeNotFound, "vault not found")
	}
	return cloneVault(s.vaults[id].vault), nil
}

func (s *MemoryStore) Balance(ctx context.Context, vaultID uuid.UUID, holder string) (*big.Int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.vaults[vaultID]
	if !ok {
		return nil, dErrors.New(dErrors.CodeNotFound, "vault not found")
	}
	if b, ok := st.balances[holder]; ok {
		return new(big.Int).Set(b), nil
	}
	return new(big.Int), nil
}

func (s *MemoryStore) Transfer(ctx context.Context, vaultID uuid.UUID, from, to string, quantity *big.Int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.vaults[vaultID]
	if !ok {
		return dErrors.New(dErrors.CodeNotFound, "vault not found")
	}
	balance := st.balances[from]
	if balance == nil || balance.Cmp(quantity) < 0 {
		return dErrors.New(dErrors.CodeConflict, "insufficient share balance")
	}
	balance.Sub(balance, quantity)
	if balance.Sign() == 0 {
		delete(st.balances, from)
	}
	if st.balances[to] == nil {
		st.balances[to] = new(big.Int)
	}
	st.balances[to].Add(st.balances[to], quantity)
	return nil
}

// ClearBalance zeroes a holder's balance and returns what it was. Used when
// redeeming and when claiming buyout proceeds.
func (s *MemoryStore) ClearBalance(ctx context.Context, vaultID uuid.UUID, holder string) (*big.Int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.vaults[vaultID]
	if !ok {
		return nil, dErrors.New(dErrors.CodeNotFound, "vault not found")
	}
	balance := st.balances[holder]
	if balance == nil {
		return new(big.Int), nil
	}
	delete(st.balances, holder)
	return balance, nil
}

func (s *MemoryStore) RecordClaim(ctx context.Context, c Claim) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.claims = append(s.claims, c)
	return nil
}

func (s *MemoryStore) ListClaims(ctx context.Context, vaultID uuid.UUID) ([]Claim, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Claim
	for _, c := range s.claims {
		if c.VaultID == vaultID {
			out = append(out, c)
		}
	}
	return out, nil
}

func cloneVault(v Vault) Vault {
	out := v
	if v.TotalShares != nil {
		out.TotalShares = new(big.Int).Set(v.TotalShares)
	}
	if v.ReservePrice != nil {
		out.ReservePrice = new(big.Int).Set(v.ReservePrice)
	}
	if v.BuyoutPrice != nil {
		out.BuyoutPrice = new(big.Int).Set(v.BuyoutPrice)
	}
	return out
}
