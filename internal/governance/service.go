package governance

import (
	"context"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	dErrors "github.com/knowton/marketplace/pkg/domain-errors"
)

// Store persists proposals and votes.
type Store interface {
	Create(ctx context.Context, p Proposal) error
	Update(ctx context.Context, p Proposal) error
	Get(ctx context.Context, id uuid.UUID) (Proposal, error)
	ListByToken(ctx context.Context, tokenID uuid.UUID) ([]Proposal, error)
	CreateVote(ctx context.Context, v Vote) error
	ListVotes(ctx context.Context, proposalID uuid.UUID) ([]Vote, error)
}

// ShareBalance supplies voting credits: one credit per vault share held.
type ShareBalance interface {
	Balance(ctx context.Context, tokenID uuid.UUID, holder string) (*big.Int, error)
}

// ProposeRequest opens a governance question for a fractionalized token.
type ProposeRequest struct {
	TokenID     uuid.UUID
	Proposer    string
	Title       string
	Description string
	StartsAt    time.Time
	EndsAt      time.Time
}

type Service struct {
	logger *slog.Logger
	store  Store
	shares ShareBalance
	tracer trace.Tracer
}

func NewService(logger *slog.Logger, store Store, shares ShareBalance) *Service {
	return &Service{
		logger: logger,
		store:  store,
		shares: shares,
		tracer: otel.Tracer("governance"),
	}
}

// Propose opens a proposal. Only shareholders may propose.
func (s *Service) Propose(ctx context.Context, req ProposeRequest) (Proposal, error) {
	ctx, span := s.tracer.Start(ctx, "governance.Propose")
	defer span.End()

	if strings.TrimSpace(req.Title) == "" {
		return Proposal{}, dErrors.New(dErrors.CodeBadRequest, "title is required")
	}
	if !req.EndsAt.After(req.StartsAt) {
		return Proposal{}, dErrors.New(dErrors.CodeBadRequest, "voting window must end after it starts")
	}
	if req.EndsAt.Before(time.Now()) {
		return Proposal{}, dErrors.New(dErrors.CodeBadRequest, "voting window must end in the future")
	}

	balance, err := s.shares.Balance(ctx, req.TokenID, req.Proposer)
	if err != nil {
		return Proposal{}, err
	}
	if balance.Sign() <= 0 {
		return Proposal{}, dErrors.New(dErrors.CodeForbidden, "only shareholders may propose")
	}

	now := time.Now().UTC()
	p := Proposal{
		ID:           uuid.New(),
		TokenID:      req.TokenID,
		Proposer:     req.Proposer,
		Title:        strings.TrimSpace(req.Title),
		Description:  strings.TrimSpace(req.Description),
		Status:       ProposalPending,
		VotesFor:     new(big.Int),
		VotesAgainst: new(big.Int),
		StartsAt:     req.StartsAt.UTC(),
		EndsAt:       req.EndsAt.UTC(),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.Create(ctx, p); err != nil {
		return Proposal{}, err
	}

	s.logger.InfoContext(ctx, "proposal created",
		"proposal_id", p.ID,
		"token_id", p.TokenID,
		"proposer", p.Proposer,
	)
	return p, nil
}

// Vote casts a quadratic vote: casting n votes costs n squared credits, and
// a holder's credits equal their share balance.
func (s *Service) Vote(ctx context.Context, proposalID uuid.UUID, voter string, choice VoteChoice, votes *big.Int) (Vote, error) {
	ctx, span := s.tracer.Start(ctx, "governance.Vote")
	defer span.End()

	if choice != VoteFor && choice != VoteAgainst {
		return Vote{}, dErrors.New(dErrors.CodeBadRequest, "choice must be FOR or AGAINST")
	}
	if votes == nil || votes.Sign() <= 0 {
		return Vote{}, dErrors.New(dErrors.CodeBadRequest, "votes must be positive")
	}

	p, err := s.store.Get(ctx, proposalID)
	if err != nil {
		return Vote{}, err
	}
	now := time.Now().UTC()
	if p.EffectiveStatus(now) != ProposalActive || now.After(p.EndsAt) {
		return Vote{}, dErrors.New(dErrors.CodeConflict, "proposal is not open for voting")
	}

	credits, err := s.shares.Balance(ctx, p.TokenID, voter)
	if err != nil {
		return Vote{}, err
	}
	cost := new(big.Int).Mul(votes, votes)
	if cost.Cmp(credits) > 0 {
		return Vote{}, dErrors.New(dErrors.CodeForbidden, "insufficient voting credits")
	}

	v := Vote{
		ID:         uuid.New(),
		ProposalID: proposalID,
		Voter:      voter,
		Choice:     choice,
		Votes:      new(big.Int).Set(votes),
		Credits:    cost,
		CreatedAt:  now,
	}
	if err := s.store.CreateVote(ctx, v); err != nil {
		return Vote{}, err
	}

	if choice == VoteFor {
		p.VotesFor.Add(p.VotesFor, votes)
	} else {
		p.VotesAgainst.Add(p.VotesAgainst, votes)
	}
	p.Status = ProposalActive
	p.UpdatedAt = now
	if err := s.store.Update(ctx, p); err != nil {
		return Vote{}, err
	}
	return v, nil
}

// Finalize tallies a proposal whose voting window has closed.
func (s *Service) Finalize(ctx context.Context, proposalID uuid.UUID) (Proposal, error) {
	p, err := s.store.Get(ctx, proposalID)
	if err != nil {
		return Proposal{}, err
	}
	if p.Status == ProposalPassed || p.Status == ProposalRejected || p.Status == ProposalExecuted {
		return Proposal{}, dErrors.New(dErrors.CodeConflict, "proposal already finalized")
	}
	now := time.Now().UTC()
	if now.Before(p.EndsAt) {
		return Proposal{}, dErrors.New(dErrors.CodeConflict, "voting window is still open")
	}

	if p.VotesFor.Cmp(p.VotesAgainst) > 0 {
		p.Status = ProposalPassed
	} else {
		p.Status = ProposalRejected
	}
	p.UpdatedAt = now
	if err := s.store.Update(ctx, p); err != nil {
		return Proposal{}, err
	}

	s.logger.InfoContext(ctx, "proposal finalized",
		"proposal_id", p.ID,
		"status", p.Status,
		"for", p.VotesFor.String(),
		"against", p.VotesAgainst.String(),
	)
	return p, nil
}

// Execute marks a passed proposal as carried out. Only the proposer may
// execute.
func (s *Service) Execute(ctx context.Context, proposalID uuid.UUID, caller string) (Proposal, error) {
	p, err := s.store.Get(ctx, proposalID)
	if err != nil {
		return Proposal{}, err
	}
	if p.Proposer != caller {
		return Proposal{}, dErrors.New(dErrors.CodeForbidden, "only the proposer may execute")
	}
	if p.Status != ProposalPassed {
		return Proposal{}, dErrors.New(dErrors.CodeConflict, "only passed proposals can be executed")
	}

	p.Status = ProposalExecuted
	p.UpdatedAt = time.Now().UTC()
	if err := s.store.Update(ctx, p); err != nil {
		return Proposal{}, err
	}
	return p, nil
}

// Get returns one proposal with its time-driven status resolved.
func (s *Service) Get(ctx context.Context, proposalID uuid.UUID) (Proposal, error) {
	p, err := s.store.Get(ctx, proposalID)
	if err != nil {
		return Proposal{}, err
	}
	p.Status = p.EffectiveStatus(time.Now().UTC())
	return p, nil
}

// ListByToken returns a token's proposals, newest first.
func (s *Service) ListByToken(ctx context.Context, tokenID uuid.UUID) ([]Proposal, error) {
	proposals, err := s.store.ListByToken(ctx, tokenID)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	for i := range proposals {
		proposals[i].Status = proposals[i].EffectiveStatus(now)
	}
	return proposals, nil
}

// Votes lists the votes cast on a proposal.
func (s *Service) Votes(ctx context.Context, proposalID uuid.UUID) ([]Vote, error) {
	return s.store.ListVotes(ctx, proposalID)
}
