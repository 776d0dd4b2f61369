package ipnft

import (
	"context"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/knowton/marketplace/internal/chain"
	dErrors "github.com/knowton/marketplace/pkg/domain-errors"
)

// Store persists registered tokens.
type Store interface {
	Create(ctx context.Context, t Token) error
	Update(ctx context.Context, t Token) error
	Get(ctx context.Context, id uuid.UUID) (Token, error)
	ListByOwner(ctx context.Context, owner string) ([]Token, error)
	ListByCategory(ctx context.Context, category Category) ([]Token, error)
}

// ShareLedger answers share balances for fractionalized tokens. Sales of a
// locked token trade vault shares, so authorization and transfers defer to
// the ledger instead of whole-token ownership.
type ShareLedger interface {
	Balance(ctx context.Context, tokenID uuid.UUID, holder string) (*big.Int, error)
	Transfer(ctx context.Context, tokenID uuid.UUID, from, to string, quantity *big.Int) error
}

// RegisterRequest carries the metadata for a new IP asset.
type RegisterRequest struct {
	Creator     string
	Title       string
	Description string
	Category    Category
	ContentHash string
	Tags        []string
}

type Service struct {
	logger *slog.Logger
	store  Store
	client chain.Client
	shares ShareLedger
	retry  chain.RetryConfig
	tracer trace.Tracer
}

func NewService(logger *slog.Logger, store Store, client chain.Client, shares ShareLedger) *Service {
	return &Service{
		logger: logger,
		store:  store,
		client: client,
		shares: shares,
		retry:  chain.DefaultRetryConfig(),
		tracer: otel.Tracer("ipnft"),
	}
}

// SetShareLedger binds the vault share ledger after construction. The
// fraction service needs this registry and this registry needs the ledger,
// so one side binds late during startup.
func (s *Service) SetShareLedger(shares ShareLedger) {
	s.shares = shares
}

// Register validates the metadata, mints the token on chain and persists it.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (Token, error) {
	ctx, span := s.tracer.Start(ctx, "ipnft.Register")
	defer span.End()

	if err := validateRegister(req); err != nil {
		return Token{}, err
	}

	now := time.Now().UTC()
	token := Token{
		ID:          uuid.New(),
		Creator:     req.Creator,
		Owner:       req.Creator,
		Title:       strings.TrimSpace(req.Title),
		Description: strings.TrimSpace(req.Description),
		Category:    req.Category,
		ContentHash: req.ContentHash,
		Tags:        req.Tags,
		Status:      StatusMinted,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	err := chain.RetryWithBackoff(ctx, s.retry, func() error {
		txHash, mintErr := s.client.MintToken(ctx, token.ID, token.Owner)
		if mintErr != nil {
			return mintErr
		}
		token.TxHash = txHash
		return nil
	})
	if err != nil {
		return Token{}, dErrors.Wrap(dErrors.CodeInternal, "mint token", err)
	}

	if err := s.store.Create(ctx, token); err != nil {
		return Token{}, err
	}

	s.logger.InfoContext(ctx, "registered ip token",
		"token_id", token.ID,
		"creator", token.Creator,
		"category", token.Category,
		"tx_hash", token.TxHash,
	)
	return token, nil
}

// Get returns one token.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (Token, error) {
	return s.store.Get(ctx, id)
}

// ListByOwner returns the caller's tokens, newest first.
func (s *Service) ListByOwner(ctx context.Context, owner string) ([]Token, error) {
	return s.store.ListByOwner(ctx, owner)
}

// ListByCategory returns tokens in a category, newest first.
func (s *Service) ListByCategory(ctx context.Context, category Category) ([]Token, error) {
	if !ValidCategory(category) {
		return nil, dErrors.New(dErrors.CodeBadRequest, "unknown category")
	}
	return s.store.ListByCategory(ctx, category)
}

// AuthorizeSell checks that the seller can place a sell order for the token.
// A minted token may only be sold by its owner; a locked token trades vault
// shares, so any positive share balance qualifies.
func (s *Service) AuthorizeSell(ctx context.Context, tokenID uuid.UUID, seller string) error {
	token, err := s.store.Get(ctx, tokenID)
	if err != nil {
		return err
	}
	switch token.Status {
	case StatusLocked:
		if s.shares == nil {
			return dErrors.New(dErrors.CodeConflict, "token is locked in a vault")
		}
		balance, err := s.shares.Balance(ctx, tokenID, seller)
		if err != nil {
			return err
		}
		if balance.Sign() <= 0 {
			return dErrors.New(dErrors.CodeForbidden, "seller holds no shares of this token")
		}
		return nil
	default:
		if token.Owner != seller {
			return dErrors.New(dErrors.CodeForbidden, "seller does not own this token")
		}
		return nil
	}
}

// RecordTransfer applies a settled trade to ownership. Locked tokens move
// shares through the vault ledger, minted tokens change hands outright.
func (s *Service) RecordTransfer(ctx context.Context, tokenID uuid.UUID, from, to string, quantity *big.Int) error {
	ctx, span := s.tracer.Start(ctx, "ipnft.RecordTransfer")
	defer span.End()

	token, err := s.store.Get(ctx, tokenID)
	if err != nil {
		return err
	}
	if token.Status == StatusLocked {
		if s.shares == nil {
			return dErrors.New(dErrors.CodeInternal, "locked token without share ledger")
		}
		return s.shares.Transfer(ctx, tokenID, from, to, quantity)
	}

	if token.Owner != from {
		return dErrors.New(dErrors.CodeConflict, "transfer from non-owner")
	}
	token.Owner = to
	token.UpdatedAt = time.Now().UTC()
	return s.store.Update(ctx, token)
}

// TokenParties returns the creator and current owner of a token.
func (s *Service) TokenParties(ctx context.Context, tokenID uuid.UUID) (string, string, error) {
	token, err := s.store.Get(ctx, tokenID)
	if err != nil {
		return "", "", err
	}
	return token.Creator, token.Owner, nil
}

// Lock marks a token as held by a fractionalization vault.
func (s *Service) Lock(ctx context.Context, tokenID uuid.UUID) error {
	token, err := s.store.Get(ctx, tokenID)
	if err != nil {
		return err
	}
	if token.Status != StatusMinted {
		return dErrors.New(dErrors.CodeConflict, "token is not available to lock")
	}
	token.Status = StatusLocked
	token.UpdatedAt = time.Now().UTC()
	return s.store.Update(ctx, token)
}

// Unlock releases a vault-held token to its new owner.
func (s *Service) Unlock(ctx context.Context, tokenID uuid.UUID, newOwner string) error {
	token, err := s.store.Get(ctx, tokenID)
	if err != nil {
		return err
	}
	if token.Status != StatusLocked {
		return dErrors.New(dErrors.CodeConflict, "token is not locked")
	}
	token.Status = StatusMinted
	token.Owner = newOwner
	token.UpdatedAt = time.Now().UTC()
	return s.store.Update(ctx, token)
}

func validateRegister(req RegisterRequest) error {
	if req.Creator == "" {
		return dErrors.New(dErrors.CodeBadRequest, "creator is required")
	}
	if strings.TrimSpace(req.Title) == "" {
		return dErrors.New(dErrors.CodeBadRequest, "title is required")
	}
	if !ValidCategory(req.Category) {
		return dErrors.New(dErrors.CodeBadRequest, "unknown category")
	}
	if req.ContentHash == "" {
		return dErrors.New(dErrors.CodeBadRequest, "content_hash is required")
	}
	if len(req.Tags) > 16 {
		return dErrors.New(dErrors.CodeBadRequest, "too many tags")
	}
	return nil
}
