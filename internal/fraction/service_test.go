package fraction

import (
	"context"
	"errors"
	"log/slog"
	"math/big"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/knowton/marketplace/internal/chain"
	"github.com/knowton/marketplace/internal/ipnft"
	dErrors "github.com/knowton/marketplace/pkg/domain-errors"
)

type vaultFixture struct {
	svc    *Service
	tokens *ipnft.Service
}

func newVaultFixture(t *testing.T) *vaultFixture {
	t.Helper()
	logger := slog.New(slog.DiscardHandler)
	client := chain.NewSimulatedClient()
	tokens := ipnft.NewService(logger, ipnft.NewMemoryStore(), client, nil)
	return &vaultFixture{
		svc:    NewService(logger, NewMemoryStore(), tokens, client),
		tokens: tokens,
	}
}

func (f *vaultFixture) mintToken(t *testing.T, owner string) ipnft.Token {
	t.Helper()
	token, err := f.tokens.Register(context.Background(), ipnft.RegisterRequest{
		Creator:     owner,
		Title:       "Synth catalog",
		Category:    ipnft.CategoryCopyright,
		ContentHash: "0xcafe",
	})
	require.NoError(t, err)
	return token
}

func (f *vaultFixture) fractionalize(t *testing.T, tokenID uuid.UUID, curator string, shares, reserve int64) Vault {
	t.Helper()
	vault, err := f.svc.Fractionalize(context.Background(), FractionalizeRequest{
		TokenID:      tokenID,
		Curator:      curator,
		TotalShares:  big.NewInt(shares),
		ReservePrice: big.NewInt(reserve),
	})
	require.NoError(t, err)
	return vault
}

type revertingChain struct {
	*chain.SimulatedClient
}

func (revertingChain) LockToken(context.Context, uuid.UUID, uuid.UUID) (string, error) {
	return "", errors.New("execution reverted")
}

func TestFractionalizeLockFailure(t *testing.T) {
	logger := slog.New(slog.DiscardHandler)
	client := chain.NewSimulatedClient()
	tokens := ipnft.NewService(logger, ipnft.NewMemoryStore(), client, nil)
	svc := NewService(logger, NewMemoryStore(), tokens, revertingChain{client})

	token, err := tokens.Register(context.Background(), ipnft.RegisterRequest{
		Creator:     "0xowner",
		Title:       "Synth catalog",
		Category:    ipnft.CategoryCopyright,
		ContentHash: "0xcafe",
	})
	require.NoError(t, err)

	_, err = svc.Fractionalize(context.Background(), FractionalizeRequest{
		TokenID:      token.ID,
		Curator:      "0xowner",
		TotalShares:  big.NewInt(100),
		ReservePrice: big.NewInt(1_000),
	})
	require.Error(t, err)
	assert.True(t, dErrors.Is(err, dErrors.CodeInternal))
	assert.Contains(t, err.Error(), "execution reverted")

	// The token stays unlocked and no vault exists.
	got, err := tokens.Get(context.Background(), token.ID)
	require.NoError(t, err)
	assert.Equal(t, ipnft.StatusMinted, got.Status)
	_, err = svc.VaultByToken(context.Background(), token.ID)
	assert.True(t, dErrors.Is(err, dErrors.CodeNotFound))
}

func TestFractionalizeLocksTokenAndCreditsCurator(t *testing.T) {
	f := newVaultFixture(t)
	token := f.mintToken(t, "0xowner")
	vault := f.fractionalize(t, token.ID, "0xowner", 100, 1_000)

	assert.Equal(t, VaultActive, vault.Status)
	assert.NotEmpty(t, vault.TxHash)

	locked, err := f.tokens.Get(context.Background(), token.ID)
	require.NoError(t, err)
	assert.Equal(t, ipnft.StatusLocked, locked.Status)

	balance, err := f.svc.Balance(context.Background(), token.ID, "0xowner")
	require.NoError(t, err)
	assert.Equal(t, "100", balance.String())
}

func TestFractionalizeRejectsNonOwner(t *testing.T) {
	f := newVaultFixture(t)
	token := f.mintToken(t, "0xowner")

	_, err := f.svc.Fractionalize(context.Background(), FractionalizeRequest{
		TokenID:      token.ID,
		Curator:      "0xstranger",
		TotalShares:  big.NewInt(100),
		ReservePrice: big.NewInt(1_000),
	})
	require.Error(t, err)
	assert.True(t, dErrors.Is(err, dErrors.CodeForbidden))
}

func TestFractionalizeRejectsLockedToken(t *testing.T) {
	f := newVaultFixture(t)
	token := f.mintToken(t, "0xowner")
	f.fractionalize(t, token.ID, "0xowner", 100, 1_000)

	_, err := f.svc.Fractionalize(context.Background(), FractionalizeRequest{
		TokenID:      token.ID,
		Curator:      "0xowner",
		TotalShares:  big.NewInt(50),
		ReservePrice: big.NewInt(500),
	})
	require.Error(t, err)
	assert.True(t, dErrors.Is(err, dErrors.CodeConflict))
}

func TestTransferMovesShares(t *testing.T) {
	f := newVaultFixture(t)
	token := f.mintToken(t, "0xowner")
	f.fractionalize(t, token.ID, "0xowner", 100, 1_000)

	require.NoError(t, f.svc.Transfer(context.Background(), token.ID, "0xowner", "0xbuyer", big.NewInt(30)))

	ownerBal, err := f.svc.Balance(context.Background(), token.ID, "0xowner")
	require.NoError(t, err)
	buyerBal, err := f.svc.Balance(context.Background(), token.ID, "0xbuyer")
	require.NoError(t, err)
	assert.Equal(t, "70", ownerBal.String())
	assert.Equal(t, "30", buyerBal.String())

	err = f.svc.Transfer(context.Background(), token.ID, "0xbuyer", "0xother", big.NewInt(31))
	require.Error(t, err)
	assert.True(t, dErrors.Is(err, dErrors.CodeConflict))
}

func TestRedeemRequiresFullSupply(t *testing.T) {
	f := newVaultFixture(t)
	token := f.mintToken(t, "0xowner")
	vault := f.fractionalize(t, token.ID, "0xowner", 100, 1_000)

	require.NoError(t, f.svc.Transfer(context.Background(), token.ID, "0xowner", "0xbuyer", big.NewInt(1)))

	_, err := f.svc.Redeem(context.Background(), vault.ID, "0xowner")
	require.Error(t, err)
	assert.True(t, dErrors.Is(err, dErrors.CodeForbidden))

	// buy the last share back, then redemption goes through
	require.NoError(t, f.svc.Transfer(context.Background(), token.ID, "0xbuyer", "0xowner", big.NewInt(1)))

	redeemed, err := f.svc.Redeem(context.Background(), vault.ID, "0xowner")
	require.NoError(t, err)
	assert.Equal(t, VaultRedeemed, redeemed.Status)

	got, err := f.tokens.Get(context.Background(), token.ID)
	require.NoError(t, err)
	assert.Equal(t, ipnft.StatusMinted, got.Status)
	assert.Equal(t, "0xowner", got.Owner)
}

func TestBuyoutBelowReserveRejected(t *testing.T) {
	f := newVaultFixture(t)
	token := f.mintToken(t, "0xowner")
	vault := f.fractionalize(t, token.ID, "0xowner", 100, 1_000)

	_, err := f.svc.Buyout(context.Background(), vault.ID, "0xwhale", big.NewInt(999))
	require.Error(t, err)
	assert.True(t, dErrors.Is(err, dErrors.CodeBadRequest))
}

func TestBuyoutAndProRataClaims(t *testing.T) {
	f := newVaultFixture(t)
	token := f.mintToken(t, "0xowner")
	vault := f.fractionalize(t, token.ID, "0xowner", 100, 1_000)
	require.NoError(t, f.svc.Transfer(context.Background(), token.ID, "0xowner", "0xbuyer", big.NewInt(40)))

	bought, err := f.svc.Buyout(context.Background(), vault.ID, "0xwhale", big.NewInt(2_000))
	require.NoError(t, err)
	assert.Equal(t, VaultBoughtOut, bought.Status)
	assert.Equal(t, "0xwhale", bought.BuyoutBuyer)

	got, err := f.tokens.Get(context.Background(), token.ID)
	require.NoError(t, err)
	assert.Equal(t, "0xwhale", got.Owner)

	// shares no longer trade once the vault settled
	err = f.svc.Transfer(context.Background(), token.ID, "0xowner", "0xbuyer", big.NewInt(1))
	require.Error(t, err)
	assert.True(t, dErrors.Is(err, dErrors.CodeConflict))

	ownerClaim, err := f.svc.ClaimProceeds(context.Background(), vault.ID, "0xowner")
	require.NoError(t, err)
	assert.Equal(t, "1200", ownerClaim.Amount.String())

	buyerClaim, err := f.svc.ClaimProceeds(context.Background(), vault.ID, "0xbuyer")
	require.NoError(t, err)
	assert.Equal(t, "800", buyerClaim.Amount.String())

	// a second claim finds no shares left
	_, err = f.svc.ClaimProceeds(context.Background(), vault.ID, "0xowner")
	require.Error(t, err)
	assert.True(t, dErrors.Is(err, dErrors.CodeConflict))

	claims, err := f.svc.Claims(context.Background(), vault.ID)
	require.NoError(t, err)
	assert.Len(t, claims, 2)
}

func TestClaimBeforeBuyoutRejected(t *testing.T) {
	f := newVaultFixture(t)
	token := f.mintToken(t, "0xowner")
	vault := f.fractionalize(t, token.ID, "0xowner", 100, 1_000)

	_, err := f.svc.ClaimProceeds(context.Background(), vault.ID, "0xowner")
	require.Error(t, err)
	assert.True(t, dErrors.Is(err, dErrors.CodeConflict))
}
