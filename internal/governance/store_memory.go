package governance

import (
	"context"
	"math/big"
	"sort"
	"sync"

	"github.com/google/uuid"

	dErrors "github.com/knowton/marketplace/pkg/domain-errors"
)

// MemoryStore keeps proposals and votes in memory.
type MemoryStore struct {
	mu        sync.RWMutex
	proposals map[uuid.UUID]Proposal
	votes     map[uuid.UUID][]Vote
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		proposals: make(map[uuid.UUID]Proposal),
		votes:     make(map[uuid.UUID][]Vote),
	}
}

func (s *MemoryStore) Create(ctx context.Context, p Proposal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.proposals[p.ID] = cloneProposal(p)
	return nil
}

func (s *MemoryStore) Update(ctx context.Context, p Proposal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.proposals[p.ID]; !exists {
		return dErrors.New(dErrors.CodeNotFound, "proposal not found")
	}
	s.proposals[p.ID] = cloneProposal(p)
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id uuid.UUID) (Proposal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.proposals[id]
	if !ok {
		return Proposal{}, dErrors.New(dErrors.CodeNotFound, "proposal not found")
	}
	return cloneProposal(p), nil
}

func (s *MemoryStore) ListByToken(ctx context.Context, tokenID uuid.UUID) ([]Proposal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Proposal
	for _, p := range s.proposals {
		if p.TokenID == tokenID {
			out = append(out, cloneProposal(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) CreateVote(ctx context.Context, v Vote) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.votes[v.ProposalID] {
		if existing.Voter == v.Voter {
			return dErrors.New(dErrors.CodeConflict, "already voted")
		}
	}
	s.votes[v.ProposalID] = append(s.votes[v.ProposalID], cloneVote(v))
	return nil
}

func (s *MemoryStore) ListVotes(ctx context.Context, proposalID uuid.UUID) ([]Vote, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Vote, 0, len(s.votes[proposalID]))
	for _, v := range s.votes[proposalID] {
		out = append(out, cloneVote(v))
	}
	return out, nil
}

func cloneProposal(p Proposal) Proposal {
	out := p
	out.VotesFor = new(big.Int).Set(p.VotesFor)
	out.VotesAgainst = new(big.Int).Set(p.VotesAgainst)
	return out
}

func cloneVote(v Vote) Vote {
	out := v
	out.Votes = new(big.Int).Set(v.Votes)
	out.Credits = new(big.Int).Set(v.Credits)
	return out
}
