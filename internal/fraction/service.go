package fraction

import (
	"context"
	"log/slog"
	"math/big"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/knowton/marketplace/internal/chain"
	dErrors "github.com/knowton/marketplace/pkg/domain-errors"
)

// Store persists vaults, share balances and buyout claims.
type Store interface {
	CreateVault(ctx context.Context, v Vault, initialHolder string) error
	UpdateVault(ctx context.Context, v Vault) error
	GetVault(ctx context.Context, id uuid.UUID) (Vault, error)
	GetVaultByToken(ctx context.Context, tokenID uuid.UUID) (Vault, error)
	Balance(ctx context.Context, vaultID uuid.UUID, holder string) (*big.Int, error)
	Transfer(ctx context.Context, vaultID uuid.UUID, from, to string, quantity *big.Int) error
	ClearBalance(ctx context.Context, vaultID uuid.UUID, holder string) (*big.Int, error)
	RecordClaim(ctx context.Context, c Claim) error
	ListClaims(ctx context.Context, vaultID uuid.UUID) ([]Claim, error)
}

// TokenRegistry is the slice of the token service the vault needs: ownership
// lookups and the lock state transitions.
type TokenRegistry interface {
	TokenParties(ctx context.Context, tokenID uuid.UUID) (creator, owner string, err error)
	Lock(ctx context.Context, tokenID uuid.UUID) error
	Unlock(ctx context.Context, tokenID uuid.UUID, newOwner string) error
}

// FractionalizeRequest locks a token and issues shares against it.
type FractionalizeRequest struct {
	TokenID      uuid.UUID
	Curator      string
	TotalShares  *big.Int
	ReservePrice *big.Int
}

type Service struct {
	logger *slog.Logger
	store  Store
	tokens TokenRegistry
	client chain.Client
	retry  chain.RetryConfig
	tracer trace.Tracer
}

func NewService(logger *slog.Logger, store Store, tokens TokenRegistry, client chain.Client) *Service {
	return &Service{
		logger: logger,
		store:  store,
		tokens: tokens,
		client: client,
		retry:  chain.DefaultRetryConfig(),
		tracer: otel.Tracer("fraction"),
	}
}

// Fractionalize locks the caller's token in a new vault and credits the full
// share supply to them.
func (s *Service) Fractionalize(ctx context.Context, req FractionalizeRequest) (Vault, error) {
	ctx, span := s.tracer.Start(ctx, "fraction.Fractionalize")
	defer span.End()

	if req.TotalShares == nil || req.TotalShares.Sign() <= 0 {
		return Vault{}, dErrors.New(dErrors.CodeBadRequest, "total_shares must be positive")
	}
	if req.ReservePrice == nil || req.ReservePrice.Sign() <= 0 {
		return Vault{}, dErrors.New(dErrors.CodeBadRequest, "reserve_price must be positive")
	}

	_, owner, err := s.tokens.TokenParties(ctx, req.TokenID)
	if err != nil {
		return Vault{}, err
	}
	if owner != req.Curator {
		return Vault{}, dErrors.New(dErrors.CodeForbidden, "only the owner may fractionalize a token")
	}

	now := time.Now().UTC()
	vault := Vault{
		ID:           uuid.New(),
		TokenID:      req.TokenID,
		Curator:      req.Curator,
		TotalShares:  new(big.Int).Set(req.TotalShares),
		ReservePrice: new(big.Int).Set(req.ReservePrice),
		Status:       VaultActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	err = chain.RetryWithBackoff(ctx, s.retry, func() error {
		txHash, lockErr := s.client.LockToken(ctx, req.TokenID, vault.ID)
		if lockErr != nil {
			return lockErr
		}
		vault.TxHash = txHash
		return nil
	})
	if err != nil {
		return Vault{}, dErrors.Wrap(dErrors.CodeInternal, "lock token", err)
	}

	if err := s.tokens.Lock(ctx, req.TokenID); err != nil {
		return Vault{}, err
	}
	if err := s.store.CreateVault(ctx, vault, req.Curator); err != nil {
		return Vault{}, err
	}

	s.logger.InfoContext(ctx, "fractionalized token",
		"vault_id", vault.ID,
		"token_id", req.TokenID,
		"curator", req.Curator,
		"total_shares", req.TotalShares.String(),
	)
	return vault, nil
}

// Vault returns one vault.
func (s *Service) Vault(ctx context.Context, id uuid.UUID) (Vault, error) {
	return s.store.GetVault(ctx, id)
}

// VaultByToken returns the vault holding a token.
func (s *Service) VaultByToken(ctx context.Context, tokenID uuid.UUID) (Vault, error) {
	return s.store.GetVaultByToken(ctx, tokenID)
}

// Balance returns a holder's share balance for a token.
func (s *Service) Balance(ctx context.Context, tokenID uuid.UUID, holder string) (*big.Int, error) {
	vault, err := s.store.GetVaultByToken(ctx, tokenID)
	if err != nil {
		return nil, err
	}
	return s.store.Balance(ctx, vault.ID, holder)
}

// Transfer moves shares of a token between holders. Settlement calls this
// when a trade of a locked token settles.
func (s *Service) Transfer(ctx context.Context, tokenID uuid.UUID, from, to string, quantity *big.Int) error {
	vault, err := s.store.GetVaultByToken(ctx, tokenID)
	if err != nil {
		return err
	}
	if vault.Status != VaultActive {
		return dErrors.New(dErrors.CodeConflict, "vault is not active")
	}
	return s.store.Transfer(ctx, vault.ID, from, to, quantity)
}

// Redeem lets a holder who accumulated the entire share supply pull the
// token out of the vault.
func (s *Service) Redeem(ctx context.Context, vaultID uuid.UUID, caller string) (Vault, error) {
	ctx, span := s.tracer.Start(ctx, "fraction.Redeem")
	defer span.End()

	vault, err := s.store.GetVault(ctx, vaultID)
	if err != nil {
		return Vault{}, err
	}
	if vault.Status != VaultActive {
		return Vault{}, dErrors.New(dErrors.CodeConflict, "vault is not active")
	}
	balance, err := s.store.Balance(ctx, vaultID, caller)
	if err != nil {
		return Vault{}, err
	}
	if balance.Cmp(vault.TotalShares) != 0 {
		return Vault{}, dErrors.New(dErrors.CodeForbidden, "redeeming requires the full share supply")
	}

	if err := s.unlock(ctx, &vault, caller); err != nil {
		return Vault{}, err
	}
	if _, err := s.store.ClearBalance(ctx, vaultID, caller); err != nil {
		return Vault{}, err
	}

	vault.Status = VaultRedeemed
	vault.UpdatedAt = time.Now().UTC()
	if err := s.store.UpdateVault(ctx, vault); err != nil {
		return Vault{}, err
	}

	s.logger.InfoContext(ctx, "vault redeemed", "vault_id", vaultID, "holder", caller)
	return vault, nil
}

// Buyout sells the whole token to a buyer paying at least the reserve price.
// Holders keep their shares until they claim proceeds.
func (s *Service) Buyout(ctx context.Context, vaultID uuid.UUID, buyer string, price *big.Int) (Vault, error) {
	ctx, span := s.tracer.Start(ctx, "fraction.Buyout")
	defer span.End()

	if price == nil || price.Sign() <= 0 {
		return Vault{}, dErrors.New(dErrors.CodeBadRequest, "price must be positive")
	}
	vault, err := s.store.GetVault(ctx, vaultID)
	if err != nil {
		return Vault{}, err
	}
	if vault.Status != VaultActive {
		return Vault{}, dErrors.New(dErrors.CodeConflict, "vault is not active")
	}
	if price.Cmp(vault.ReservePrice) < 0 {
		return Vault{}, dErrors.New(dErrors.CodeBadRequest, "price is below the reserve")
	}

	if err := s.unlock(ctx, &vault, buyer); err != nil {
		return Vault{}, err
	}

	vault.Status = VaultBoughtOut
	vault.BuyoutBuyer = buyer
	vault.BuyoutPrice = new(big.Int).Set(price)
	vault.UpdatedAt = time.Now().UTC()
	if err := s.store.UpdateVault(ctx, vault); err != nil {
		return Vault{}, err
	}

	s.logger.InfoContext(ctx, "vault bought out",
		"vault_id", vaultID,
		"buyer", buyer,
		"price", price.String(),
	)
	return vault, nil
}

// ClaimProceeds pays a holder their pro-rata cut of the buyout price and
// burns their shares.
func (s *Service) ClaimProceeds(ctx context.Context, vaultID uuid.UUID, holder string) (Claim, error) {
	vault, err := s.store.GetVault(ctx, vaultID)
	if err != nil {
		return Claim{}, err
	}
	if vault.Status != VaultBoughtOut {
		return Claim{}, dErrors.New(dErrors.CodeConflict, "vault has no buyout to claim from")
	}

	shares, err := s.store.ClearBalance(ctx, vaultID, holder)
	if err != nil {
		return Claim{}, err
	}
	if shares.Sign() <= 0 {
		return Claim{}, dErrors.New(dErrors.CodeConflict, "no shares to claim")
	}

	amount := new(big.Int).Mul(vault.BuyoutPrice, shares)
	amount.Div(amount, vault.TotalShares)

	claim := Claim{
		VaultID:   vaultID,
		Holder:    holder,
		Shares:    shares,
		Amount:    amount,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.RecordClaim(ctx, claim); err != nil {
		return Claim{}, err
	}
	return claim, nil
}

// Claims lists proceeds claims for a vault.
func (s *Service) Claims(ctx context.Context, vaultID uuid.UUID) ([]Claim, error) {
	return s.store.ListClaims(ctx, vaultID)
}

func (s *Service) unlock(ctx context.Context, vault *Vault, newOwner string) error {
	err := chain.RetryWithBackoff(ctx, s.retry, func() error {
		txHash, unlockErr := s.client.UnlockToken(ctx, vault.TokenID, vault.ID)
		if unlockErr != nil {
			return unlockErr
		}
		vault.TxHash = txHash
		return nil
	})
	if err != nil {
		return dErrors.Wrap(dErrors.CodeInternal, "unlock token", err)
	}
	return s.tokens.Unlock(ctx, vault.TokenID, newOwner)
}
