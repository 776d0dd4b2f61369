package bond

import (
	"math/big"
	"time"

	"github.com/google/uuid"

	"github.com/knowton/marketplace/internal/risk"
)

type BondStatus string

const (
	BondActive    BondStatus = "ACTIVE"
	BondMatured   BondStatus = "MATURED"
	BondDefaulted BondStatus = "DEFAULTED"
)

// TrancheClass orders the payout waterfall: senior is paid first, junior
// absorbs losses and keeps the residual.
type TrancheClass string

const (
	TrancheSenior    TrancheClass = "SENIOR"
	TrancheMezzanine TrancheClass = "MEZZANINE"
	TrancheJunior    TrancheClass = "JUNIOR"
)

// Tranche is one slice of a bond.
type Tranche struct {
	Class         TrancheClass
	Priority      int
	AllocationPct int64
	Allocation    *big.Int
	APY           float64
	Invested      *big.Int
	Distributed   *big.Int
}

// Bond is an IP-backed bond: the token's future revenue securitized into
// three tranches.
type Bond struct {
	ID           uuid.UUID
	TokenID      uuid.UUID
	Issuer       string
	TotalValue   *big.Int
	MaturityDate time.Time
	Status       BondStatus
	TotalRevenue *big.Int
	TxHash       string
	Tranches     []Tranche
	Assessment   risk.Assessment
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// TrancheByClass returns a pointer into the bond's tranche slice.
func (b *Bond) TrancheByClass(class TrancheClass) *Tranche {
	for i := range b.Tranches {
		if b.Tranches[i].Class == class {
			return &b.Tranches[i]
		}
	}
	return nil
}

// Investment records an investor buying into a tranche.
type Investment struct {
	ID        uuid.UUID
	BondID    uuid.UUID
	Class     TrancheClass
	Investor  string
	Amount    *big.Int
	CreatedAt time.Time
}

// TranchePayout is one tranche's cut of a revenue distribution.
type TranchePayout struct {
	Class  TrancheClass
	Amount *big.Int
}

// Distribution records one revenue distribution run through the waterfall.
type Distribution struct {
	ID        uuid.UUID
	BondID    uuid.UUID
	Amount    *big.Int
	TxHash    string
	Payouts   []TranchePayout
	CreatedAt time.Time
}
