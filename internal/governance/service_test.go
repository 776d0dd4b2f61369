package governance

import (
	"context"
	"log/slog"
	"math/big"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "github.com/knowton/marketplace/pkg/domain-errors"
)

type stubShares struct {
	balances map[string]int64
}

func (s stubShares) Balance(_ context.Context, _ uuid.UUID, holder string) (*big.Int, error) {
	return big.NewInt(s.balances[holder]), nil
}

type govFixture struct {
	svc   *Service
	store *MemoryStore
}

func newGovFixture(t *testing.T, balances map[string]int64) *govFixture {
	t.Helper()
	store := NewMemoryStore()
	return &govFixture{
		svc:   NewService(slog.New(slog.DiscardHandler), store, stubShares{balances: balances}),
		store: store,
	}
}

func (f *govFixture) propose(t *testing.T, tokenID uuid.UUID, proposer string) Proposal {
	t.Helper()
	p, err := f.svc.Propose(context.Background(), ProposeRequest{
		TokenID:  tokenID,
		Proposer: proposer,
		Title:    "License the catalog to a distributor",
		StartsAt: time.Now().Add(-time.Minute),
		EndsAt:   time.Now().Add(time.Hour),
	})
	require.NoError(t, err)
	return p
}

func TestProposeRequiresShares(t *testing.T) {
	tokenID := uuid.New()
	f := newGovFixture(t, map[string]int64{"0xholder": 100})

	_, err := f.svc.Propose(context.Background(), ProposeRequest{
		TokenID:  tokenID,
		Proposer: "0xoutsider",
		Title:    "Anything",
		StartsAt: time.Now(),
		EndsAt:   time.Now().Add(time.Hour),
	})
	require.Error(t, err)
	assert.True(t, dErrors.Is(err, dErrors.CodeForbidden))

	p := f.propose(t, tokenID, "0xholder")
	got, err := f.svc.Get(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, ProposalActive, got.Status)
}

func TestPendingUntilWindowOpens(t *testing.T) {
	tokenID := uuid.New()
	f := newGovFixture(t, map[string]int64{"0xholder": 100})

	p, err := f.svc.Propose(context.Background(), ProposeRequest{
		TokenID:  tokenID,
		Proposer: "0xholder",
		Title:    "Future question",
		StartsAt: time.Now().Add(time.Hour),
		EndsAt:   time.Now().Add(2 * time.Hour),
	})
	require.NoError(t, err)

	got, err := f.svc.Get(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, ProposalPending, got.Status)

	_, err = f.svc.Vote(context.Background(), p.ID, "0xholder", VoteFor, big.NewInt(1))
	require.Error(t, err)
	assert.True(t, dErrors.Is(err, dErrors.CodeConflict))
}

func TestQuadraticVoteCost(t *testing.T) {
	tokenID := uuid.New()
	f := newGovFixture(t, map[string]int64{"0xholder": 100, "0xsmall": 100})
	p := f.propose(t, tokenID, "0xholder")

	// 100 credits buy at most 10 votes
	_, err := f.svc.Vote(context.Background(), p.ID, "0xsmall", VoteFor, big.NewInt(11))
	require.Error(t, err)
	assert.True(t, dErrors.Is(err, dErrors.CodeForbidden))

	v, err := f.svc.Vote(context.Background(), p.ID, "0xsmall", VoteFor, big.NewInt(10))
	require.NoError(t, err)
	assert.Equal(t, "100", v.Credits.String())

	got, err := f.svc.Get(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, "10", got.VotesFor.String())
}

func TestVoteOncePerProposal(t *testing.T) {
	tokenID := uuid.New()
	f := newGovFixture(t, map[string]int64{"0xholder": 100})
	p := f.propose(t, tokenID, "0xholder")

	_, err := f.svc.Vote(context.Background(), p.ID, "0xholder", VoteFor, big.NewInt(2))
	require.NoError(t, err)

	_, err = f.svc.Vote(context.Background(), p.ID, "0xholder", VoteAgainst, big.NewInt(1))
	require.Error(t, err)
	assert.True(t, dErrors.Is(err, dErrors.CodeConflict))
}

func TestFinalizeTally(t *testing.T) {
	tokenID := uuid.New()
	f := newGovFixture(t, map[string]int64{"0xholder": 100})
	base := f.propose(t, tokenID, "0xholder")

	// still open
	_, err := f.svc.Finalize(context.Background(), base.ID)
	require.Error(t, err)
	assert.True(t, dErrors.Is(err, dErrors.CodeConflict))

	closed := base
	closed.ID = uuid.New()
	closed.EndsAt = time.Now().Add(-time.Minute)
	closed.VotesFor = big.NewInt(5)
	closed.VotesAgainst = big.NewInt(3)
	require.NoError(t, f.store.Create(context.Background(), closed))

	p, err := f.svc.Finalize(context.Background(), closed.ID)
	require.NoError(t, err)
	assert.Equal(t, ProposalPassed, p.Status)

	// ties reject
	tied := base
	tied.ID = uuid.New()
	tied.EndsAt = time.Now().Add(-time.Minute)
	tied.VotesFor = big.NewInt(3)
	tied.VotesAgainst = big.NewInt(3)
	require.NoError(t, f.store.Create(context.Background(), tied))

	p, err = f.svc.Finalize(context.Background(), tied.ID)
	require.NoError(t, err)
	assert.Equal(t, ProposalRejected, p.Status)

	// double finalize
	_, err = f.svc.Finalize(context.Background(), closed.ID)
	require.Error(t, err)
	assert.True(t, dErrors.Is(err, dErrors.CodeConflict))
}

func TestExecuteOnlyPassedByProposer(t *testing.T) {
	tokenID := uuid.New()
	f := newGovFixture(t, map[string]int64{"0xholder": 100})
	base := f.propose(t, tokenID, "0xholder")

	// active proposals cannot be executed
	_, err := f.svc.Execute(context.Background(), base.ID, "0xholder")
	require.Error(t, err)
	assert.True(t, dErrors.Is(err, dErrors.CodeConflict))

	passed := base
	passed.ID = uuid.New()
	passed.Status = ProposalPassed
	require.NoError(t, f.store.Create(context.Background(), passed))

	_, err = f.svc.Execute(context.Background(), passed.ID, "0xother")
	require.Error(t, err)
	assert.True(t, dErrors.Is(err, dErrors.CodeForbidden))

	p, err := f.svc.Execute(context.Background(), passed.ID, "0xholder")
	require.NoError(t, err)
	assert.Equal(t, ProposalExecuted, p.Status)
}
