package ipnft

import (
	"time"

	"github.com/google/uuid"
)

// Category classifies the intellectual property behind a token. The risk
// engine keys its scoring tables off these values.
type Category string

const (
	CategoryPatent      Category = "PATENT"
	CategoryCopyright   Category = "COPYRIGHT"
	CategoryTrademark   Category = "TRADEMARK"
	CategoryTradeSecret Category = "TRADE_SECRET"
	CategoryRoyalty     Category = "ROYALTY_STREAM"
)

// ValidCategory reports whether c is a known IP category.
func ValidCategory(c Category) bool {
	switch c {
	case CategoryPatent, CategoryCopyright, CategoryTrademark, CategoryTradeSecret, CategoryRoyalty:
		return true
	}
	return false
}

type TokenStatus string

const (
	// StatusMinted means the token is on-chain and freely tradable.
	StatusMinted TokenStatus = "MINTED"
	// StatusLocked means the token sits in a fractionalization vault and
	// only its shares trade.
	StatusLocked TokenStatus = "LOCKED"
)

// Token is one registered IP asset.
type Token struct {
	ID          uuid.UUID
	Creator     string
	Owner       string
	Title       string
	Description string
	Category    Category
	ContentHash string
	Tags        []string
	Status      TokenStatus
	TxHash      string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
