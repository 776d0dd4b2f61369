package ipnft

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	dErrors "github.com/knowton/marketplace/pkg/domain-errors"
)

// MemoryStore keeps tokens in a map. The token registry is small relative to
// order flow, so a durable store has not been needed yet.
type MemoryStore struct {
	mu     sync.RWMutex
	tokens map[uuid.UUID]Token
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tokens: make(map[uuid.UUID]Token)}
}

func (s *MemoryStore) Create(ctx context.Context, t Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.tokens[t.ID]; exists {
		return dErrors.New(dErrors.CodeConflict, "token already exists")
	}
	s.tokens[t.ID] = cloneToken(t)
	return nil
}

func (s *MemoryStore) Update(ctx context.Context, t Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.tokens[t.ID]; !exists {
		return dErrors.New(dErrors.CodeNotFound, "token not found")
	}
	s.tokens[t.ID] = cloneToken(t)
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id uuid.UUID) (Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tokens[id]
	if !ok {
		return Token{}, dErrors.New(dErrors.CodeNotFound, "token not found")
	}
	return cloneToken(t), nil
}

func (s *MemoryStore) ListByOwner(ctx context.Context, owner string) ([]Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Token
	for _, t := range s.tokens {
		if t.Owner == owner {
			out = append(out, cloneToken(t))
		}
	}
	sortTokens(out)
	return out, nil
}

func (s *MemoryStore) ListByCategory(ctx context.Context, category Category) ([]Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Token
	for _, t := range s.tokens {
		if t.Category == category {
			out = append(out, cloneToken(t))
		}
	}
	sortTokens(out)
	return out, nil
}

func sortTokens(tokens []Token) {
	sort.Slice(tokens, func(i, j int) bool { return tokens[i].CreatedAt.After(tokens[j].CreatedAt) })
}

func cloneToken(t Token) Token {
	out := t
	out.Tags = append([]string(nil), t.Tags...)
	return out
}
