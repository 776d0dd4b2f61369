package bond

import (
	"context"
	"log/slog"
	"math/big"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/knowton/marketplace/internal/chain"
	"github.com/knowton/marketplace/internal/ipnft"
	"github.com/knowton/marketplace/internal/oracle"
	"github.com/knowton/marketplace/internal/risk"
	dErrors "github.com/knowton/marketplace/pkg/domain-errors"
)

// Store persists bonds, investments and distributions.
type Store interface {
	Create(ctx context.Context, b Bond) error
	Update(ctx context.Context, b Bond) error
	Get(ctx context.Context, id uuid.UUID) (Bond, error)
	ListByIssuer(ctx context.Context, issuer string) ([]Bond, error)
	CreateInvestment(ctx context.Context, inv Investment) error
	ListInvestments(ctx context.Context, bondID uuid.UUID) ([]Investment, error)
	CreateDistribution(ctx context.Context, d Distribution) error
	ListDistributions(ctx context.Context, bondID uuid.UUID) ([]Distribution, error)
}

// TokenRegistry resolves token metadata for issuance checks and risk input.
type TokenRegistry interface {
	Get(ctx context.Context, id uuid.UUID) (ipnft.Token, error)
}

// Valuer prices IP assets. The oracle client implements it; issuance falls
// back to the risk engine's own valuation when the oracle is unreachable.
type Valuer interface {
	EstimateValue(ctx context.Context, tokenID string, metadata map[string]any) (*oracle.ValuationResponse, error)
}

// TrancheConfig is the issuer's setup for one tranche.
type TrancheConfig struct {
	Class         TrancheClass
	AllocationPct int64
	APY           float64
}

// IssueRequest creates a bond against a token's future revenue.
type IssueRequest struct {
	TokenID      uuid.UUID
	Issuer       string
	TotalValue   *big.Int
	MaturityDate time.Time
	Tranches     []TrancheConfig
	Views        int64
	Likes        int64
}

type Service struct {
	logger *slog.Logger
	store  Store
	tokens TokenRegistry
	engine *risk.Engine
	valuer Valuer
	client chain.Client
	retry  chain.RetryConfig
	tracer trace.Tracer
}

func NewService(
	logger *slog.Logger,
	store Store,
	tokens TokenRegistry,
	engine *risk.Engine,
	valuer Valuer,
	client chain.Client,
) *Service {
	return &Service{
		logger: logger,
		store:  store,
		tokens: tokens,
		engine: engine,
		valuer: valuer,
		client: client,
		retry:  chain.DefaultRetryConfig(),
		tracer: otel.Tracer("bond"),
	}
}

var trancheOrder = []TrancheClass{TrancheSenior, TrancheMezzanine, TrancheJunior}

// Issue assesses the token, issues the bond on chain and persists it with
// its three tranches.
func (s *Service) Issue(ctx context.Context, req IssueRequest) (Bond, error) {
	ctx, span := s.tracer.Start(ctx, "bond.Issue")
	defer span.End()

	if err := validateIssue(req); err != nil {
		return Bond{}, err
	}

	token, err := s.tokens.Get(ctx, req.TokenID)
	if err != nil {
		return Bond{}, err
	}
	if token.Owner != req.Issuer {
		return Bond{}, dErrors.New(dErrors.CodeForbidden, "only the token owner may issue a bond")
	}

	assessment := s.engine.Assess(risk.Metadata{
		Category:  token.Category,
		CreatedAt: token.CreatedAt,
		Views:     req.Views,
		Likes:     req.Likes,
		Tags:      token.Tags,
	})
	if s.valuer != nil {
		valuation, valErr := s.valuer.EstimateValue(ctx, token.ID.String(), map[string]any{
			"category":     string(token.Category),
			"content_hash": token.ContentHash,
			"tags":         token.Tags,
			"views":        req.Views,
			"likes":        req.Likes,
		})
		if valErr != nil {
			s.logger.WarnContext(ctx, "oracle valuation unavailable, using engine estimate",
				"token_id", token.ID, "error", valErr)
		} else {
			assessment.ValuationUSD = valuation.EstimatedValue
		}
	}

	now := time.Now().UTC()
	bond := Bond{
		ID:           uuid.New(),
		TokenID:      req.TokenID,
		Issuer:       req.Issuer,
		TotalValue:   new(big.Int).Set(req.TotalValue),
		MaturityDate: req.MaturityDate.UTC(),
		Status:       BondActive,
		TotalRevenue: new(big.Int),
		Assessment:   assessment,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	for i, cfg := range req.Tranches {
		allocation := new(big.Int).Mul(req.TotalValue, big.NewInt(cfg.AllocationPct))
		allocation.Div(allocation, big.NewInt(100))
		bond.Tranches = append(bond.Tranches, Tranche{
			Class:         cfg.Class,
			Priority:      i,
			AllocationPct: cfg.AllocationPct,
			Allocation:    allocation,
			APY:           cfg.APY,
			Invested:      new(big.Int),
			Distributed:   new(big.Int),
		})
	}

	err = chain.RetryWithBackoff(ctx, s.retry, func() error {
		txHash, issueErr := s.client.IssueBond(ctx, bond.ID, bond.Issuer)
		if issueErr != nil {
			return issueErr
		}
		bond.TxHash = txHash
		return nil
	})
	if err != nil {
		return Bond{}, dErrors.Wrap(dErrors.CodeInternal, "issue bond", err)
	}

	if err := s.store.Create(ctx, bond); err != nil {
		return Bond{}, err
	}

	s.logger.InfoContext(ctx, "issued bond",
		"bond_id", bond.ID,
		"token_id", bond.TokenID,
		"issuer", bond.Issuer,
		"total_value", bond.TotalValue.String(),
		"rating", assessment.Rating,
	)
	return bond, nil
}

// Get returns one bond.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (Bond, error) {
	return s.store.Get(ctx, id)
}

// ListByIssuer returns an issuer's bonds, newest first.
func (s *Service) ListByIssuer(ctx context.Context, issuer string) ([]Bond, error) {
	return s.store.ListByIssuer(ctx, issuer)
}

// Invest buys into a tranche, capped at the tranche's allocation.
func (s *Service) Invest(ctx context.Context, bondID uuid.UUID, class TrancheClass, investor string, amount *big.Int) (Investment, error) {
	ctx, span := s.tracer.Start(ctx, "bond.Invest")
	defer span.End()

	if amount == nil || amount.Sign() <= 0 {
		return Investment{}, dErrors.New(dErrors.CodeBadRequest, "amount must be positive")
	}
	bond, err := s.store.Get(ctx, bondID)
	if err != nil {
		return Investment{}, err
	}
	if bond.Status != BondActive {
		return Investment{}, dErrors.New(dErrors.CodeConflict, "bond is not open for investment")
	}
	tranche := bond.TrancheByClass(class)
	if tranche == nil {
		return Investment{}, dErrors.New(dErrors.CodeBadRequest, "unknown tranche")
	}

	capacity := new(big.Int).Sub(tranche.Allocation, tranche.Invested)
	if amount.Cmp(capacity) > 0 {
		return Investment{}, dErrors.New(dErrors.CodeConflict, "tranche capacity exceeded")
	}

	tranche.Invested.Add(tranche.Invested, amount)
	bond.UpdatedAt = time.Now().UTC()
	if err := s.store.Update(ctx, bond); err != nil {
		return Investment{}, err
	}

	inv := Investment{
		ID:        uuid.New(),
		BondID:    bondID,
		Class:     class,
		Investor:  investor,
		Amount:    new(big.Int).Set(amount),
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.CreateInvestment(ctx, inv); err != nil {
		return Investment{}, err
	}
	return inv, nil
}

// Distribute runs revenue through the waterfall: senior is filled to its
// allocation first, then mezzanine, and junior takes whatever is left.
func (s *Service) Distribute(ctx context.Context, bondID uuid.UUID, caller string, amount *big.Int) (Distribution, error) {
	ctx, span := s.tracer.Start(ctx, "bond.Distribute")
	defer span.End()

	if amount == nil || amount.Sign() <= 0 {
		return Distribution{}, dErrors.New(dErrors.CodeBadRequest, "amount must be positive")
	}
	bond, err := s.store.Get(ctx, bondID)
	if err != nil {
		return Distribution{}, err
	}
	if bond.Issuer != caller {
		return Distribution{}, dErrors.New(dErrors.CodeForbidden, "only the issuer may distribute revenue")
	}
	if bond.Status != BondActive {
		return Distribution{}, dErrors.New(dErrors.CodeConflict, "bond is not active")
	}

	dist := Distribution{
		ID:        uuid.New(),
		BondID:    bondID,
		Amount:    new(big.Int).Set(amount),
		CreatedAt: time.Now().UTC(),
	}
	err = chain.RetryWithBackoff(ctx, s.retry, func() error {
		txHash, distErr := s.client.DistributeRevenue(ctx, bondID, amount)
		if distErr != nil {
			return distErr
		}
		dist.TxHash = txHash
		return nil
	})
	if err != nil {
		return Distribution{}, dErrors.Wrap(dErrors.CodeInternal, "distribute revenue", err)
	}

	remaining := new(big.Int).Set(amount)
	for i, class := range trancheOrder {
		tranche := bond.TrancheByClass(class)
		if tranche == nil || remaining.Sign() == 0 {
			continue
		}
		var pay *big.Int
		if i == len(trancheOrder)-1 {
			// junior keeps the residual beyond its allocation
			pay = new(big.Int).Set(remaining)
		} else {
			owed := new(big.Int).Sub(tranche.Allocation, tranche.Distributed)
			if owed.Sign() < 0 {
				owed.SetInt64(0)
			}
			pay = minBig(remaining, owed)
		}
		if pay.Sign() == 0 {
			continue
		}
		tranche.Distributed.Add(tranche.Distributed, pay)
		remaining.Sub(remaining, pay)
		dist.Payouts = append(dist.Payouts, TranchePayout{Class: class, Amount: pay})
	}

	bond.TotalRevenue.Add(bond.TotalRevenue, amount)
	bond.UpdatedAt = time.Now().UTC()
	if err := s.store.Update(ctx, bond); err != nil {
		return Distribution{}, err
	}
	if err := s.store.CreateDistribution(ctx, dist); err != nil {
		return Distribution{}, err
	}

	s.logger.InfoContext(ctx, "distributed bond revenue",
		"bond_id", bondID,
		"amount", amount.String(),
		"payouts", len(dist.Payouts),
	)
	return dist, nil
}

// Mature closes a bond past its maturity date. A bond whose senior tranche
// was not made whole matures into default.
func (s *Service) Mature(ctx context.Context, bondID uuid.UUID) (Bond, error) {
	bond, err := s.store.Get(ctx, bondID)
	if err != nil {
		return Bond{}, err
	}
	if bond.Status != BondActive {
		return Bond{}, dErrors.New(dErrors.CodeConflict, "bond is not active")
	}
	if time.Now().Before(bond.MaturityDate) {
		return Bond{}, dErrors.New(dErrors.CodeConflict, "bond has not reached maturity")
	}

	senior := bond.TrancheByClass(TrancheSenior)
	if senior != nil && senior.Distributed.Cmp(senior.Allocation) < 0 {
		bond.Status = BondDefaulted
	} else {
		bond.Status = BondMatured
	}
	bond.UpdatedAt = time.Now().UTC()
	if err := s.store.Update(ctx, bond); err != nil {
		return Bond{}, err
	}

	s.logger.InfoContext(ctx, "bond closed", "bond_id", bondID, "status", bond.Status)
	return bond, nil
}

// Investments lists investments in a bond.
func (s *Service) Investments(ctx context.Context, bondID uuid.UUID) ([]Investment, error) {
	return s.store.ListInvestments(ctx, bondID)
}

// Distributions lists revenue distributions for a bond.
func (s *Service) Distributions(ctx context.Context, bondID uuid.UUID) ([]Distribution, error) {
	return s.store.ListDistributions(ctx, bondID)
}

func validateIssue(req IssueRequest) error {
	if req.Issuer == "" {
		return dErrors.New(dErrors.CodeBadRequest, "issuer is required")
	}
	if req.TotalValue == nil || req.TotalValue.Sign() <= 0 {
		return dErrors.New(dErrors.CodeBadRequest, "total_value must be positive")
	}
	if !req.MaturityDate.After(time.Now()) {
		return dErrors.New(dErrors.CodeBadRequest, "maturity_date must be in the future")
	}
	if len(req.Tranches) != len(trancheOrder) {
		return dErrors.New(dErrors.CodeBadRequest, "senior, mezzanine and junior tranches are required")
	}
	var pctSum int64
	for i, cfg := range req.Tranches {
		if cfg.Class != trancheOrder[i] {
			return dErrors.New(dErrors.CodeBadRequest, "tranches must be ordered senior, mezzanine, junior")
		}
		if cfg.AllocationPct <= 0 {
			return dErrors.New(dErrors.CodeBadRequest, "tranche allocation must be positive")
		}
		if cfg.APY < 0 {
			return dErrors.New(dErrors.CodeBadRequest, "tranche apy must not be negative")
		}
		pctSum += cfg.AllocationPct
	}
	if pctSum != 100 {
		return dErrors.New(dErrors.CodeBadRequest, "tranche allocations must sum to 100")
	}
	return nil
}

func minBig(a, b *big.Int) *big.Int {
	if a.Cmp(b) < 0 {
		return new(big.Int).Set(a)
	}
	return new(big.Int).Set(b)
}
