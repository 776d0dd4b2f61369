package chain

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"math/big"
	"sync"

	"github.com/google/uuid"
)

// SettleParams describes one trade settlement: transfer quantity units of the
// token from seller to buyer against payment wei.
type SettleParams struct {
	TokenID  uuid.UUID
	Seller   string
	Buyer    string
	Quantity *big.Int
	Payment  *big.Int
}

// Client abstracts the settlement chain. The production implementation signs
// and submits transactions against the marketplace contracts; the simulated
// one is used in dev and tests.
type Client interface {
	MintToken(ctx context.Context, tokenID uuid.UUID, owner string) (txHash string, err error)
	SettleTrade(ctx context.Context, params SettleParams) (txHash string, err error)
	LockToken(ctx context.Context, tokenID, vaultID uuid.UUID) (txHash string, err error)
	UnlockToken(ctx context.Context, tokenID, vaultID uuid.UUID) (txHash string, err error)
	IssueBond(ctx context.Context, bondID uuid.UUID, issuer string) (txHash string, err error)
	DistributeRevenue(ctx context.Context, bondID uuid.UUID, amount *big.Int) (txHash string, err error)
}

// SimulatedClient produces deterministic transaction hashes without touching
// a chain. Each call consumes a nonce so hashes never collide.
type SimulatedClient struct {
	mu    sync.Mutex
	nonce uint64
}

func NewSimulatedClient() *SimulatedClient {
	return &SimulatedClient{}
}

func (c *SimulatedClient) MintToken(_ context.Context, tokenID uuid.UUID, owner string) (string, error) {
	return c.hash("mint", tokenID.String(), owner), nil
}

func (c *SimulatedClient) SettleTrade(_ context.Context, params SettleParams) (string, error) {
	return c.hash("settle", params.TokenID.String(), params.Seller, params.Buyer,
		params.Quantity.String(), params.Payment.String()), nil
}

func (c *SimulatedClient) LockToken(_ context.Context, tokenID, vaultID uuid.UUID) (string, error) {
	return c.hash("lock", tokenID.String(), vaultID.String()), nil
}

func (c *SimulatedClient) UnlockToken(_ context.Context, tokenID, vaultID uuid.UUID) (string, error) {
	return c.hash("unlock", tokenID.String(), vaultID.String()), nil
}

func (c *SimulatedClient) IssueBond(_ context.Context, bondID uuid.UUID, issuer string) (string, error) {
	return c.hash("issue", bondID.String(), issuer), nil
}

func (c *SimulatedClient) DistributeRevenue(_ context.Context, bondID uuid.UUID, amount *big.Int) (string, error) {
	return c.hash("distribute", bondID.String(), amount.String()), nil
}

func (c *SimulatedClient) hash(parts ...string) string {
	c.mu.Lock()
	nonce := c.nonce
	c.nonce++
	c.mu.Unlock()

	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
	}
	h.Write([]byte{byte(nonce), byte(nonce >> 8), byte(nonce >> 16), byte(nonce >> 24)})
	return "0x" + hex.EncodeToString(h.Sum(nil))
}
