package royalty

import (
	"context"
	"errors"
	"log/slog"
	"math/big"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/knowton/marketplace/internal/events"
	"github.com/knowton/marketplace/internal/marketplace/models"
	dErrors "github.com/knowton/marketplace/pkg/domain-errors"
)

type stubRegistry struct {
	creator string
	owner   string
	err     error
}

func (r stubRegistry) TokenParties(context.Context, uuid.UUID) (string, string, error) {
	return r.creator, r.owner, r.err
}

type royaltyFixture struct {
	svc           *Service
	policies      *MemoryPolicyStore
	distributions *MemoryDistributionStore
}

func newRoyaltyFixture(t *testing.T, tokens TokenRegistry) *royaltyFixture {
	t.Helper()
	f := &royaltyFixture{
		policies:      NewMemoryPolicyStore(),
		distributions: NewMemoryDistributionStore(),
	}
	f.svc = NewService(slog.New(slog.DiscardHandler), f.policies, f.distributions, tokens, events.NoopPublisher{})
	return f
}

func newTrade(tokenID uuid.UUID, seller string, price, quantity int64) *models.Trade {
	return &models.Trade{
		ID:         uuid.New(),
		TokenID:    tokenID,
		BuyOrderID: uuid.New(),
		SellOrderID: uuid.New(),
		Buyer:      "0xbuyer",
		Seller:     seller,
		Price:      big.NewInt(price),
		Quantity:   big.NewInt(quantity),
		TakerSide:  models.SideBuy,
		Status:     models.TradeSettled,
		ExecutedAt: time.Now().UTC(),
	}
}

type failingDistributions struct {
	*MemoryDistributionStore
}

func (failingDistributions) CreateBatch(context.Context, []Distribution) error {
	return errors.New("connection reset")
}

func TestDistributeOnSalePersistFailure(t *testing.T) {
	tokenID := uuid.New()
	svc := NewService(slog.New(slog.DiscardHandler), NewMemoryPolicyStore(),
		failingDistributions{NewMemoryDistributionStore()},
		stubRegistry{creator: "0xcreator", owner: "0xcreator"}, events.NoopPublisher{})

	err := svc.DistributeOnSale(context.Background(), newTrade(tokenID, "0xseller", 1_000, 1))
	require.Error(t, err)
	assert.True(t, dErrors.Is(err, dErrors.CodeInternal))
	assert.Contains(t, err.Error(), "connection reset")
}

func TestSetPolicyValidation(t *testing.T) {
	tokenID := uuid.New()
	f := newRoyaltyFixture(t, stubRegistry{creator: "0xcreator", owner: "0xcreator"})

	cases := []struct {
		name   string
		policy Policy
	}{
		{
			name:   "bps over cap",
			policy: Policy{TokenID: tokenID, RoyaltyBps: 5_001, Beneficiaries: []Beneficiary{{Address: "0xa", ShareBps: 10_000}}},
		},
		{
			name:   "negative bps",
			policy: Policy{TokenID: tokenID, RoyaltyBps: -1},
		},
		{
			name:   "no beneficiaries",
			policy: Policy{TokenID: tokenID, RoyaltyBps: 500},
		},
		{
			name:   "zero share",
			policy: Policy{TokenID: tokenID, RoyaltyBps: 500, Beneficiaries: []Beneficiary{{Address: "0xa", ShareBps: 0}}},
		},
		{
			name:   "missing address",
			policy: Policy{TokenID: tokenID, RoyaltyBps: 500, Beneficiaries: []Beneficiary{{ShareBps: 10_000}}},
		},
		{
			name: "shares exceed denominator",
			policy: Policy{TokenID: tokenID, RoyaltyBps: 500, Beneficiaries: []Beneficiary{
				{Address: "0xa", ShareBps: 6_000},
				{Address: "0xb", ShareBps: 6_000},
			}},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := f.svc.SetPolicy(context.Background(), "0xcreator", tc.policy)
			require.Error(t, err)
			assert.True(t, dErrors.Is(err, dErrors.CodeBadRequest))
		})
	}
}

func TestSetPolicyOnlyCreatorWhileHolding(t *testing.T) {
	tokenID := uuid.New()
	policy := Policy{TokenID: tokenID, RoyaltyBps: 500, Beneficiaries: []Beneficiary{{Address: "0xa", ShareBps: 10_000}}}

	t.Run("non-creator rejected", func(t *testing.T) {
		f := newRoyaltyFixture(t, stubRegistry{creator: "0xcreator", owner: "0xcreator"})
		err := f.svc.SetPolicy(context.Background(), "0xsomeone", policy)
		require.Error(t, err)
		assert.True(t, dErrors.Is(err, dErrors.CodeForbidden))
	})

	t.Run("frozen after transfer", func(t *testing.T) {
		f := newRoyaltyFixture(t, stubRegistry{creator: "0xcreator", owner: "0xbuyer"})
		err := f.svc.SetPolicy(context.Background(), "0xcreator", policy)
		require.Error(t, err)
		assert.True(t, dErrors.Is(err, dErrors.CodeConflict))
	})

	t.Run("creator while holding", func(t *testing.T) {
		f := newRoyaltyFixture(t, stubRegistry{creator: "0xcreator", owner: "0xcreator"})
		require.NoError(t, f.svc.SetPolicy(context.Background(), "0xcreator", policy))

		got, err := f.svc.Policy(context.Background(), tokenID)
		require.NoError(t, err)
		assert.Equal(t, int64(500), got.RoyaltyBps)
		assert.False(t, got.UpdatedAt.IsZero())
	})
}

func TestDistributeOnSaleSplitsByShares(t *testing.T) {
	tokenID := uuid.New()
	f := newRoyaltyFixture(t, stubRegistry{creator: "0xcreator", owner: "0xcreator"})
	require.NoError(t, f.svc.SetPolicy(context.Background(), "0xcreator", Policy{
		TokenID:    tokenID,
		RoyaltyBps: 1_000,
		Beneficiaries: []Beneficiary{
			{Address: "0xalice", ShareBps: 5_000},
			{Address: "0xbob", ShareBps: 5_000},
		},
	}))

	// proceeds 1000, royalty 10% = 100, split 50/50, seller keeps 900
	trade := newTrade(tokenID, "0xseller", 10, 100)
	require.NoError(t, f.svc.DistributeOnSale(context.Background(), trade))

	got, err := f.svc.DistributionsByToken(context.Background(), tokenID)
	require.NoError(t, err)
	require.Len(t, got, 3)

	byRecipient := map[string]Distribution{}
	for _, d := range got {
		byRecipient[d.Recipient] = d
		assert.Equal(t, trade.ID, d.TradeID)
	}
	assert.Equal(t, "50", byRecipient["0xalice"].Amount.String())
	assert.Equal(t, RoleRoyalty, byRecipient["0xalice"].Role)
	assert.Equal(t, "50", byRecipient["0xbob"].Amount.String())
	assert.Equal(t, "900", byRecipient["0xseller"].Amount.String())
	assert.Equal(t, RoleSeller, byRecipient["0xseller"].Role)
}

func TestDistributeOnSaleDustToFirstBeneficiary(t *testing.T) {
	tokenID := uuid.New()
	f := newRoyaltyFixture(t, stubRegistry{creator: "0xcreator", owner: "0xcreator"})
	require.NoError(t, f.svc.SetPolicy(context.Background(), "0xcreator", Policy{
		TokenID:    tokenID,
		RoyaltyBps: 1_000,
		Beneficiaries: []Beneficiary{
			{Address: "0xalice", ShareBps: 3_333},
			{Address: "0xbob", ShareBps: 3_333},
			{Address: "0xcarol", ShareBps: 3_334},
		},
	}))

	// royalty 100; even thirds floor to 33 each, the 1 wei of dust lands on
	// the first beneficiary
	trade := newTrade(tokenID, "0xseller", 1, 1_000)
	require.NoError(t, f.svc.DistributeOnSale(context.Background(), trade))

	got, err := f.svc.DistributionsByToken(context.Background(), tokenID)
	require.NoError(t, err)
	require.Len(t, got, 4)

	byRecipient := map[string]string{}
	royaltySum := new(big.Int)
	for _, d := range got {
		byRecipient[d.Recipient] = d.Amount.String()
		if d.Role == RoleRoyalty {
			royaltySum.Add(royaltySum, d.Amount)
		}
	}
	assert.Equal(t, "34", byRecipient["0xalice"])
	assert.Equal(t, "33", byRecipient["0xbob"])
	assert.Equal(t, "33", byRecipient["0xcarol"])
	assert.Equal(t, "900", byRecipient["0xseller"])
	assert.Equal(t, "100", royaltySum.String())
}

func TestDistributeOnSaleWithoutPolicy(t *testing.T) {
	tokenID := uuid.New()
	f := newRoyaltyFixture(t, stubRegistry{creator: "0xcreator", owner: "0xcreator"})

	trade := newTrade(tokenID, "0xseller", 25, 4)
	require.NoError(t, f.svc.DistributeOnSale(context.Background(), trade))

	got, err := f.svc.DistributionsByRecipient(context.Background(), "0xseller")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, RoleSeller, got[0].Role)
	assert.Equal(t, "100", got[0].Amount.String())
}
