package fraction

import (
	"math/big"
	"time"

	"github.com/google/uuid"
)

type VaultStatus string

const (
	// VaultActive means the token is locked and its shares trade freely.
	VaultActive VaultStatus = "ACTIVE"
	// VaultBoughtOut means a buyer paid at least the reserve price for the
	// whole token; holders claim their pro-rata share of the proceeds.
	VaultBoughtOut VaultStatus = "BOUGHT_OUT"
	// VaultRedeemed means a single holder accumulated every share and pulled
	// the token back out.
	VaultRedeemed VaultStatus = "REDEEMED"
)

// Vault locks one IP token and issues fungible shares against it.
type Vault struct {
	ID           uuid.UUID
	TokenID      uuid.UUID
	Curator      string
	TotalShares  *big.Int
	ReservePrice *big.Int
	Status       VaultStatus
	BuyoutBuyer  string
	BuyoutPrice  *big.Int
	TxHash       string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Claim records a holder collecting buyout proceeds.
type Claim struct {
	VaultID   uuid.UUID
	Holder    string
	Shares    *big.Int
	Amount    *big.Int
	CreatedAt time.Time
}
