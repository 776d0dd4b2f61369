package royalty

import (
	"math/big"
	"time"

	"github.com/google/uuid"
)

// BpsDenominator is the basis-point scale: 10_000 bps = 100%.
const BpsDenominator = 10_000

// Beneficiary receives a share of the royalty, expressed in basis points of
// the royalty amount.
type Beneficiary struct {
	Address  string
	ShareBps int64
}

// Policy configures royalty distribution for one token. RoyaltyBps is the
// cut taken from every sale's proceeds.
type Policy struct {
	TokenID       uuid.UUID
	RoyaltyBps    int64
	Beneficiaries []Beneficiary
	UpdatedAt     time.Time
}

// Role distinguishes royalty payouts from the seller's remainder.
type Role string

const (
	RoleRoyalty Role = "royalty"
	RoleSeller  Role = "seller"
)

// Distribution is one payout produced by a settled sale.
type Distribution struct {
	ID        uuid.UUID
	TradeID   uuid.UUID
	TokenID   uuid.UUID
	Recipient string
	Role      Role
	Amount    *big.Int
	CreatedAt time.Time
}
