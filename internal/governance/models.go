package governance

import (
	"math/big"
	"time"

	"github.com/google/uuid"
)

type ProposalStatus string

const (
	ProposalPending  ProposalStatus = "PENDING"
	ProposalActive   ProposalStatus = "ACTIVE"
	ProposalPassed   ProposalStatus = "PASSED"
	ProposalRejected ProposalStatus = "REJECTED"
	ProposalExecuted ProposalStatus = "EXECUTED"
)

type VoteChoice string

const (
	VoteFor     VoteChoice = "FOR"
	VoteAgainst VoteChoice = "AGAINST"
)

// Proposal is a governance question put to a token's shareholders.
type Proposal struct {
	ID           uuid.UUID
	TokenID      uuid.UUID
	Proposer     string
	Title        string
	Description  string
	Status       ProposalStatus
	VotesFor     *big.Int
	VotesAgainst *big.Int
	StartsAt     time.Time
	EndsAt       time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// EffectiveStatus resolves the time-driven part of the lifecycle: a pending
// proposal becomes active once its window opens. Terminal states stick.
func (p *Proposal) EffectiveStatus(now time.Time) ProposalStatus {
	if p.Status != ProposalPending && p.Status != ProposalActive {
		return p.Status
	}
	switch {
	case now.Before(p.StartsAt):
		return ProposalPending
	default:
		return ProposalActive
	}
}

// Vote is one shareholder's quadratic vote. Credits spent equal votes
// squared.
type Vote struct {
	ID         uuid.UUID
	ProposalID uuid.UUID
	Voter      string
	Choice     VoteChoice
	Votes      *big.Int
	Credits    *big.Int
	CreatedAt  time.Time
}
