package ipnft

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
	dErrors "github.com/knowton/marketplace/pkg/domain-errors"
)

type stubLedger struct {
	balances  map[string]*big.Int
	transfers int
}

func (l *stubLedger) Balance(_ context.Context, _ uuid.UUID, holder string) (*big.Int, error) {
	if b, ok := l.balances[holder]; ok {
		return b, nil
	}
	return big.NewInt(0), nil
}

func (l *stubLedger) Transfer(context.Context, uuid.UUID, string, string, *big.Int) error {
	l.transfers++
	return nil
}

func newTokenService(t *testing.T, shares ShareLedger) *Service {
	t.Helper()
	return NewService(slog.New(slog.DiscardHandler), NewMemoryStore(), chain.NewSimulatedClient(), shares)
}

type revertingChain struct {
	*chain.SimulatedClient
}

func (revertingChain) MintToken(context.Context, uuid.UUID, string) (string, error) {
	return "", errors.New("execution reverted")
}

func register(t *testing.T, svc *Service, creator string) Token {
	t.Helper()
	token, err := svc.Register(context.Background(), RegisterRequest{
		Creator:     creator,
		Title:       "Compression patent",
		Category:    CategoryPatent,
		ContentHash: "0xdeadbeef",
		Tags:        []string{"codec", "video"},
	})
	require.NoError(t, err)
	return token
}

func TestRegisterMintsAndStores(t *testing.T) {
	svc := newTokenService(t, nil)
	token := register(t, svc, "0xcreator")

	assert.Equal(t, StatusMinted, token.Status)
	assert.Equal(t, "0xcreator", token.Owner)
	assert.NotEmpty(t, token.TxHash)

	got, err := svc.Get(context.Background(), token.ID)
	require.NoError(t, err)
	assert.Equal(t, token.ID, got.ID)

	creator, owner, err := svc.TokenParties(context.Background(), token.ID)
	require.NoError(t, err)
	assert.Equal(t, "0xcreator", creator)
	assert.Equal(t, "0xcreator", owner)
}

func TestRegisterMintFailure(t *testing.T) {
	svc := NewService(slog.New(slog.DiscardHandler), NewMemoryStore(),
		revertingChain{chain.NewSimulatedClient()}, nil)

	_, err := svc.Register(context.Background(), RegisterRequest{
		Creator:     "0xcreator",
		Title:       "Compression patent",
		Category:    CategoryPatent,
		ContentHash: "0xdeadbeef",
	})
	require.Error(t, err)
	assert.True(t, dErrors.Is(err, dErrors.CodeInternal))
	assert.Contains(t, err.Error(), "execution reverted")
}

func TestRegisterValidation(t *testing.T) {
	svc := newTokenService(t, nil)
	cases := []struct {
		name string
		req  RegisterRequest
	}{
		{"missing creator", RegisterRequest{Title: "t", Category: CategoryPatent, ContentHash: "h"}},
		{"missing title", RegisterRequest{Creator: "0xa", Category: CategoryPatent, ContentHash: "h"}},
		{"bad category", RegisterRequest{Creator: "0xa", Title: "t", Category: "ARTWORK", ContentHash: "h"}},
		{"missing hash", RegisterRequest{Creator: "0xa", Title: "t", Category: CategoryPatent}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Register(context.Background(), tc.req)
			require.Error(t, err)
			assert.True(t, dErrors.Is(err, dErrors.CodeBadRequest))
		})
	}
}

func TestAuthorizeSellOwnerOnly(t *testing.T) {
	svc := newTokenService(t, nil)
	token := register(t, svc, "0xcreator")

	require.NoError(t, svc.AuthorizeSell(context.Background(), token.ID, "0xcreator"))

	err := svc.AuthorizeSell(context.Background(), token.ID, "0xstranger")
	require.Error(t, err)
	assert.True(t, dErrors.Is(err, dErrors.CodeForbidden))

	err = svc.AuthorizeSell(context.Background(), uuid.New(), "0xcreator")
	require.Error(t, err)
	assert.True(t, dErrors.Is(err, dErrors.CodeNotFound))
}

func TestAuthorizeSellLockedTokenUsesShares(t *testing.T) {
	ledger := &stubLedger{balances: map[string]*big.Int{"0xholder": big.NewInt(10)}}
	svc := newTokenService(t, ledger)
	token := register(t, svc, "0xcreator")
	require.NoError(t, svc.Lock(context.Background(), token.ID))

	require.NoError(t, svc.AuthorizeSell(context.Background(), token.ID, "0xholder"))

	err := svc.AuthorizeSell(context.Background(), token.ID, "0xempty")
	require.Error(t, err)
	assert.True(t, dErrors.Is(err, dErrors.CodeForbidden))
}

func TestRecordTransferWholeToken(t *testing.T) {
	svc := newTokenService(t, nil)
	token := register(t, svc, "0xcreator")

	err := svc.RecordTransfer(context.Background(), token.ID, "0xstranger", "0xbuyer", big.NewInt(1))
	require.Error(t, err)
	assert.True(t, dErrors.Is(err, dErrors.CodeConflict))

	require.NoError(t, svc.RecordTransfer(context.Background(), token.ID, "0xcreator", "0xbuyer", big.NewInt(1)))

	got, err := svc.Get(context.Background(), token.ID)
	require.NoError(t, err)
	assert.Equal(t, "0xbuyer", got.Owner)
	assert.Equal(t, "0xcreator", got.Creator)
}

func TestRecordTransferLockedTokenDelegatesToLedger(t *testing.T) {
	ledger := &stubLedger{balances: map[string]*big.Int{}}
	svc := newTokenService(t, ledger)
	token := register(t, svc, "0xcreator")
	require.NoError(t, svc.Lock(context.Background(), token.ID))

	require.NoError(t, svc.RecordTransfer(context.Background(), token.ID, "0xa", "0xb", big.NewInt(5)))
	assert.Equal(t, 1, ledger.transfers)
}

func TestLockUnlockTransitions(t *testing.T) {
	svc := newTokenService(t, nil)
	token := register(t, svc, "0xcreator")

	require.NoError(t, svc.Lock(context.Background(), token.ID))
	err := svc.Lock(context.Background(), token.ID)
	require.Error(t, err)
	assert.True(t, dErrors.Is(err, dErrors.CodeConflict))

	require.NoError(t, svc.Unlock(context.Background(), token.ID, "0xwinner"))
	got, err := svc.Get(context.Background(), token.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusMinted, got.Status)
	assert.Equal(t, "0xwinner", got.Owner)

	err = svc.Unlock(context.Background(), token.ID, "0xwinner")
	require.Error(t, err)
	assert.True(t, dErrors.Is(err, dErrors.CodeConflict))
}
