package royalty

import (
	"context"
	"log/slog"
	"math/big"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/knowton/marketplace/internal/events"
	"github.com/knowton/marketplace/internal/marketplace/models"
	dErrors "github.com/knowton/marketplace/pkg/domain-errors"
)

// PolicyStore persists per-token royalty policies.
type PolicyStore interface {
	Put(ctx context.Context, p Policy) error
	Get(ctx context.Context, tokenID uuid.UUID) (Policy, error)
}

// DistributionStore persists payout records produced by settlement.
type DistributionStore interface {
	CreateBatch(ctx context.Context, batch []Distribution) error
	ListByToken(ctx context.Context, tokenID uuid.UUID) ([]Distribution, error)
	ListByRecipient(ctx context.Context, recipient string) ([]Distribution, error)
}

// TokenRegistry answers who created and who currently holds a token. The
// creator may only change the royalty policy while still holding the token;
// after the first sale the policy is frozen for buyers' benefit.
type TokenRegistry interface {
	TokenParties(ctx context.Context, tokenID uuid.UUID) (creator, owner string, err error)
}

type Service struct {
	logger        *slog.Logger
	policies      PolicyStore
	distributions DistributionStore
	tokens        TokenRegistry
	publisher     events.Publisher
	tracer        trace.Tracer
}

func NewService(
	logger *slog.Logger,
	policies PolicyStore,
	distributions DistributionStore,
	tokens TokenRegistry,
	publisher events.Publisher,
) *Service {
	return &Service{
		logger:        logger,
		policies:      policies,
		distributions: distributions,
		tokens:        tokens,
		publisher:     publisher,
		tracer:        otel.Tracer("royalty"),
	}
}

const maxRoyaltyBps = 5_000

// SetPolicy installs or replaces the royalty policy for a token.
func (s *Service) SetPolicy(ctx context.Context, caller string, p Policy) error {
	ctx, span := s.tracer.Start(ctx, "royalty.SetPolicy")
	defer span.End()

	if p.RoyaltyBps < 0 || p.RoyaltyBps > maxRoyaltyBps {
		return dErrors.New(dErrors.CodeBadRequest, "royalty_bps out of range")
	}
	if p.RoyaltyBps > 0 && len(p.Beneficiaries) == 0 {
		return dErrors.New(dErrors.CodeBadRequest, "beneficiaries required when royalty_bps > 0")
	}
	var totalShares int64
	for _, b := range p.Beneficiaries {
		if b.Address == "" {
			return dErrors.New(dErrors.CodeBadRequest, "beneficiary address required")
		}
		if b.ShareBps <= 0 {
			return dErrors.New(dErrors.CodeBadRequest, "beneficiary share_bps must be positive")
		}
		totalShares += b.ShareBps
	}
	if totalShares > BpsDenominator {
		return dErrors.New(dErrors.CodeBadRequest, "beneficiary shares exceed 10000 bps")
	}

	creator, owner, err := s.tokens.TokenParties(ctx, p.TokenID)
	if err != nil {
		return err
	}
	if caller != creator {
		return dErrors.New(dErrors.CodeForbidden, "only the creator may set the royalty policy")
	}
	if owner != creator {
		return dErrors.New(dErrors.CodeConflict, "royalty policy is frozen once the token changes hands")
	}

	p.UpdatedAt = time.Now().UTC()
	return s.policies.Put(ctx, p)
}

// Policy returns the policy for a token.
func (s *Service) Policy(ctx context.Context, tokenID uuid.UUID) (Policy, error) {
	return s.policies.Get(ctx, tokenID)
}

// DistributeOnSale fans a settled trade's proceeds out: the royalty cut is
// split across beneficiaries by share basis points, integer dust goes to the
// first beneficiary, and the seller receives whatever is left. Without a
// policy the seller receives the full proceeds.
func (s *Service) DistributeOnSale(ctx context.Context, t *models.Trade) error {
	ctx, span := s.tracer.Start(ctx, "royalty.DistributeOnSale")
	defer span.End()

	proceeds := t.Proceeds()
	now := time.Now().UTC()

	policy, err := s.policies.Get(ctx, t.TokenID)
	if err != nil && !dErrors.Is(err, dErrors.CodeNotFound) {
		return err
	}

	var batch []Distribution
	royaltyTotal := new(big.Int)
	if err == nil && policy.RoyaltyBps > 0 && len(policy.Beneficiaries) > 0 {
		royaltyTotal.Mul(proceeds, big.NewInt(policy.RoyaltyBps))
		royaltyTotal.Div(royaltyTotal, big.NewInt(BpsDenominator))

		var totalShares int64
		for _, b := range policy.Beneficiaries {
			totalShares += b.ShareBps
		}

		paid := new(big.Int)
		for _, b := range policy.Beneficiaries {
			amount := new(big.Int).Mul(royaltyTotal, big.NewInt(b.ShareBps))
			amount.Div(amount, big.NewInt(totalShares))
			paid.Add(paid, amount)
			batch = append(batch, Distribution{
				ID:        uuid.New(),
				TradeID:   t.ID,
				TokenID:   t.TokenID,
				Recipient: b.Address,
				Role:      RoleRoyalty,
				Amount:    amount,
				CreatedAt: now,
			})
		}
		if dust := new(big.Int).Sub(royaltyTotal, paid); dust.Sign() > 0 {
			batch[0].Amount.Add(batch[0].Amount, dust)
		}
	}

	sellerAmount := new(big.Int).Sub(proceeds, royaltyTotal)
	batch = append(batch, Distribution{
		ID:        uuid.New(),
		TradeID:   t.ID,
		TokenID:   t.TokenID,
		Recipient: t.Seller,
		Role:      RoleSeller,
		Amount:    sellerAmount,
		CreatedAt: now,
	})

	if err := s.distributions.CreateBatch(ctx, batch); err != nil {
		return dErrors.Wrap(dErrors.CodeInternal, "persist royalty distributions", err)
	}

	s.publisher.Publish(ctx, events.TopicDistributions,
		events.Marshal("royalty.distributed", t.TokenID.String(), distributionBatchEvent(t, batch)))

	s.logger.InfoContext(ctx, "distributed sale proceeds",
		"trade_id", t.ID,
		"token_id", t.TokenID,
		"recipients", len(batch),
		"royalty", royaltyTotal.String(),
	)
	return nil
}

// DistributionsByToken lists payouts for a token, newest first.
func (s *Service) DistributionsByToken(ctx context.Context, tokenID uuid.UUID) ([]Distribution, error) {
	return s.distributions.ListByToken(ctx, tokenID)
}

// DistributionsByRecipient lists payouts to an address, newest first.
func (s *Service) DistributionsByRecipient(ctx context.Context, recipient string) ([]Distribution, error) {
	return s.distributions.ListByRecipient(ctx, recipient)
}

type distributionEventEntry struct {
	Recipient string `json:"recipient"`
	Role      string `json:"role"`
	Amount    string `json:"amount"`
}

type distributionEvent struct {
	TradeID  string                   `json:"trade_id"`
	Proceeds string                   `json:"proceeds"`
	Payouts  []distributionEventEntry `json:"payouts"`
}

func distributionBatchEvent(t *models.Trade, batch []Distribution) distributionEvent {
	ev := distributionEvent{
		TradeID:  t.ID.String(),
		Proceeds: t.Proceeds().String(),
	}
	for _, d := range batch {
		ev.Payouts = append(ev.Payouts, distributionEventEntry{
			Recipient: d.Recipient,
			Role:      string(d.Role),
			Amount:    d.Amount.String(),
		})
	}
	return ev
}
