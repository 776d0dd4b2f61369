package models

import (
	"math/big"
	"time"

	"github.com/google/uuid"
)

// Side of the book an order sits on.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Opposite returns the other side of the book.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// OrderType controls resting behavior after the matching pass.
type OrderType string

const (
	// TypeLimit rests any unfilled remainder on the book.
	TypeLimit OrderType = "LIMIT"
	// TypeMarket crosses at any price and never rests.
	TypeMarket OrderType = "MARKET"
	// TypeIOC fills what crosses its limit immediately, cancels the rest.
	TypeIOC OrderType = "IOC"
)

// OrderStatus is the lifecycle state of an order.
type OrderStatus string

const (
	StatusOpen            OrderStatus = "OPEN"
	StatusPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	StatusFilled          OrderStatus = "FILLED"
	StatusCancelled       OrderStatus = "CANCELLED"
	StatusExpired         OrderStatus = "EXPIRED"
)

// TradeStatus tracks a trade from match through on-chain settlement.
type TradeStatus string

const (
	TradeMatched TradeStatus = "MATCHED"
	TradeSettled TradeStatus = "SETTLED"
	TradeFailed  TradeStatus = "FAILED"
)

// Order is a bid or ask against a single IPNFT token. Prices and quantities
// are wei-denominated big integers; Price is nil for market orders.
type Order struct {
	ID        uuid.UUID
	TokenID   uuid.UUID
	Owner     string
	Side      Side
	Type      OrderType
	Price     *big.Int
	Quantity  *big.Int
	Remaining *big.Int
	Status    OrderStatus
	CreatedAt time.Time
	ExpiresAt *time.Time

	// Sequence is assigned by the book on resting and orders time priority
	// within a price level.
	Sequence uint64
}

// Filled returns the executed quantity.
func (o *Order) Filled() *big.Int {
	return new(big.Int).Sub(o.Quantity, o.Remaining)
}

// IsExpired reports whether the order's expiry has passed.
func (o *Order) IsExpired(now time.Time) bool {
	return o.ExpiresAt != nil && !now.Before(*o.ExpiresAt)
}

// Trade is one execution between a resting maker and an incoming taker.
// Price is always the maker's price.
type Trade struct {
	ID          uuid.UUID
	TokenID     uuid.UUID
	BuyOrderID  uuid.UUID
	SellOrderID uuid.UUID
	Buyer       string
	Seller      string
	Price       *big.Int
	Quantity    *big.Int
	TakerSide   Side
	Status      TradeStatus
	TxHash      string
	ExecutedAt  time.Time
	SettledAt   *time.Time
}

// Proceeds returns price * quantity, the gross amount the seller is owed
// before royalties.
func (t *Trade) Proceeds() *big.Int {
	return new(big.Int).Mul(t.Price, t.Quantity)
}

// DepthLevel is one aggregated price level of the book.
type DepthLevel struct {
	Price    *big.Int
	Quantity *big.Int
	Orders   int
}

// Depth is an order book snapshot for one token.
type Depth struct {
	TokenID   uuid.UUID
	Bids      []DepthLevel
	Asks      []DepthLevel
	LastPrice *big.Int
}
