package book

import (
	"math/big"
	"sync"
	"time"

	"github.com/google/btree"
	"github.com/google/uuid"

	"github.com/knowton/marketplace/internal/marketplace/models"
)

// Fill is one execution produced by a matching pass. Maker is the resting
// order; Price is the maker's price.
type Fill struct {
	Maker    *models.Order
	Price    *big.Int
	Quantity *big.Int
}

// Result reports what a Submit did to the book.
type Result struct {
	Fills  []Fill
	Rested bool
	// Expired holds resting orders purged lazily during this pass so the
	// caller can persist their terminal status.
	Expired []*models.Order
}

// priceLevel holds the FIFO queue of resting orders at one price.
type priceLevel struct {
	price  *big.Int
	orders []*models.Order
}

func levelLess(a, b *priceLevel) bool {
	return a.price.Cmp(b.price) < 0
}

// Book is the order book for a single token. All mutations are serialized
// through the book's mutex; price levels live in btrees keyed by price so the
// best opposite level is always the edge of the tree.
type Book struct {
	mu        sync.Mutex
	tokenID   uuid.UUID
	bids      *btree.BTreeG[*priceLevel]
	asks      *btree.BTreeG[*priceLevel]
	resting   map[uuid.UUID]*models.Order
	seq       uint64
	lastPrice *big.Int
}

// New creates an empty book for the given token.
func New(tokenID uuid.UUID) *Book {
	return &Book{
		tokenID: tokenID,
		bids:    btree.NewG(8, levelLess),
		asks:    btree.NewG(8, levelLess),
		resting: make(map[uuid.UUID]*models.Order),
	}
}

// TokenID returns the token this book trades.
func (b *Book) TokenID() uuid.UUID { return b.tokenID }

// Submit matches the incoming order against the opposite side with
// price-time priority and, for limit orders, rests any remainder. The order's
// Remaining and Status fields are updated in place.
func (b *Book) Submit(order *models.Order, now time.Time) Result {
	b.mu.Lock()
	defer b.mu.Unlock()

	var res Result
	remaining := new(big.Int).Set(order.Remaining)

	for _, level := range b.crossingLevels(order) {
		if remaining.Sign() == 0 {
			break
		}
		remaining = b.matchLevel(order, level, remaining, now, &res)
	}
	b.dropEmptyLevels(order.Side.Opposite())

	order.Remaining = remaining
	switch {
	case remaining.Sign() == 0:
		order.Status = models.StatusFilled
	case len(res.Fills) > 0:
		order.Status = models.StatusPartiallyFilled
	default:
		order.Status = models.StatusOpen
	}

	if remaining.Sign() > 0 {
		switch {
		case order.Type != models.TypeLimit:
			// Market and IOC remainders never rest; the unfilled part is
			// cancelled and the order is terminal. Filled() still reports
			// any partial execution.
			order.Status = models.StatusCancelled
		case b.stillCrosses(order):
			// Any crossing liquidity left after matching belongs to the
			// taker's own account (self-matches are skipped). Resting here
			// would leave the book crossed, so the remainder is cancelled.
			order.Status = models.StatusCancelled
		default:
			b.rest(order)
			res.Rested = true
		}
	}
	return res
}

// stillCrosses reports whether the order's limit still crosses the best
// opposite price. Caller holds the lock.
func (b *Book) stillCrosses(order *models.Order) bool {
	var best *priceLevel
	if order.Side == models.SideBuy {
		if l, ok := b.asks.Min(); ok {
			best = l
		}
	} else {
		if l, ok := b.bids.Max(); ok {
			best = l
		}
	}
	return best != nil && crosses(order, best.price)
}

// crossingLevels returns the opposite levels the order can trade against, in
// matching priority order (best price first).
func (b *Book) crossingLevels(order *models.Order) []*priceLevel {
	var levels []*priceLevel
	collect := func(l *priceLevel) bool {
		if !crosses(order, l.price) {
			return false
		}
		levels = append(levels, l)
		return true
	}
	if order.Side == models.SideBuy {
		b.asks.Ascend(collect)
	} else {
		b.bids.Descend(collect)
	}
	return levels
}

// matchLevel walks a level's FIFO queue, filling against makers until either
// the level or the taker is exhausted. Expired makers are purged in passing;
// makers owned by the taker are skipped and stay on the book.
func (b *Book) matchLevel(taker *models.Order, level *priceLevel, remaining *big.Int, now time.Time, res *Result) *big.Int {
	i := 0
	for i < len(level.orders) && remaining.Sign() > 0 {
		maker := level.orders[i]
		if maker.IsExpired(now) {
			maker.Status = models.StatusExpired
			level.orders = append(level.orders[:i], level.orders[i+1:]...)
			delete(b.resting, maker.ID)
			res.Expired = append(res.Expired, maker)
			continue
		}
		if maker.Owner == taker.Owner {
			i++
			continue
		}

		qty := minInt(remaining, maker.Remaining)
		remaining = new(big.Int).Sub(remaining, qty)
		maker.Remaining = new(big.Int).Sub(maker.Remaining, qty)
		b.lastPrice = level.price

		res.Fills = append(res.Fills, Fill{
			Maker:    maker,
			Price:    new(big.Int).Set(level.price),
			Quantity: qty,
		})

		if maker.Remaining.Sign() == 0 {
			maker.Status = models.StatusFilled
			level.orders = append(level.orders[:i], level.orders[i+1:]...)
			delete(b.resting, maker.ID)
		} else {
			maker.Status = models.StatusPartiallyFilled
			i++
		}
	}
	return remaining
}

// rest places the remainder of a limit order on its own side of the book.
func (b *Book) rest(order *models.Order) {
	b.seq++
	order.Sequence = b.seq
	tree := b.sideTree(order.Side)
	key := &priceLevel{price: order.Price}
	level, ok := tree.Get(key)
	if !ok {
		level = &priceLevel{price: new(big.Int).Set(order.Price)}
		tree.ReplaceOrInsert(level)
	}
	level.orders = append(level.orders, order)
	b.resting[order.ID] = order
}

// Restore rests an order without a matching pass. Used to rebuild the book
// from persisted open orders at startup; callers must feed orders in
// creation order so FIFO priority is preserved.
func (b *Book) Restore(order *models.Order) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rest(order)
}

// Cancel removes a resting order. Returns false if the order is not resting
// on this book.
func (b *Book) Cancel(orderID uuid.UUID) (*models.Order, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	order, ok := b.resting[orderID]
	if !ok {
		return nil, false
	}
	b.remove(order)
	order.Status = models.StatusCancelled
	return order, true
}

// Get returns a resting order by ID.
func (b *Book) Get(orderID uuid.UUID) (*models.Order, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	order, ok := b.resting[orderID]
	return order, ok
}

// PurgeExpired removes every resting order whose expiry has passed and
// returns them so the caller can persist the status change.
func (b *Book) PurgeExpired(now time.Time) []*models.Order {
	b.mu.Lock()
	defer b.mu.Unlock()

	var expired []*models.Order
	for _, order := range b.resting {
		if order.IsExpired(now) {
			expired = append(expired, order)
		}
	}
	for _, order := range expired {
		b.remove(order)
		order.Status = models.StatusExpired
	}
	return expired
}

// Depth returns up to maxLevels aggregated price levels per side, best price
// first, excluding expired orders.
func (b *Book) Depth(maxLevels int, now time.Time) models.Depth {
	b.mu.Lock()
	defer b.mu.Unlock()

	d := models.Depth{TokenID: b.tokenID}
	if b.lastPrice != nil {
		d.LastPrice = new(big.Int).Set(b.lastPrice)
	}
	collect := func(out *[]models.DepthLevel) func(*priceLevel) bool {
		return func(l *priceLevel) bool {
			if len(*out) >= maxLevels {
				return false
			}
			qty := new(big.Int)
			count := 0
			for _, o := range l.orders {
				if o.IsExpired(now) {
					continue
				}
				qty.Add(qty, o.Remaining)
				count++
			}
			if count > 0 {
				*out = append(*out, models.DepthLevel{
					Price:    new(big.Int).Set(l.price),
					Quantity: qty,
					Orders:   count,
				})
			}
			return true
		}
	}
	b.bids.Descend(collect(&d.Bids))
	b.asks.Ascend(collect(&d.Asks))
	return d
}

// BestBid returns the highest resting bid price, or nil.
func (b *Book) BestBid() *big.Int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if level, ok := b.bids.Max(); ok {
		return new(big.Int).Set(level.price)
	}
	return nil
}

// BestAsk returns the lowest resting ask price, or nil.
func (b *Book) BestAsk() *big.Int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if level, ok := b.asks.Min(); ok {
		return new(big.Int).Set(level.price)
	}
	return nil
}

// LastPrice returns the price of the most recent execution, or nil.
func (b *Book) LastPrice() *big.Int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.lastPrice == nil {
		return nil
	}
	return new(big.Int).Set(b.lastPrice)
}

// SetLastPrice seeds the last trade price when rebuilding from history.
func (b *Book) SetLastPrice(price *big.Int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lastPrice = new(big.Int).Set(price)
}

// remove deletes an order from its level and the resting index. Caller holds
// the lock.
func (b *Book) remove(order *models.Order) {
	tree := b.sideTree(order.Side)
	if level, ok := tree.Get(&priceLevel{price: order.Price}); ok {
		for i, o := range level.orders {
			if o.ID == order.ID {
				level.orders = append(level.orders[:i], level.orders[i+1:]...)
				break
			}
		}
		if len(level.orders) == 0 {
			tree.Delete(level)
		}
	}
	delete(b.resting, order.ID)
}

func (b *Book) sideTree(side models.Side) *btree.BTreeG[*priceLevel] {
	if side == models.SideBuy {
		return b.bids
	}
	return b.asks
}

func (b *Book) dropEmptyLevels(side models.Side) {
	tree := b.sideTree(side)
	var empty []*priceLevel
	tree.Ascend(func(l *priceLevel) bool {
		if len(l.orders) == 0 {
			empty = append(empty, l)
		}
		return true
	})
	for _, l := range empty {
		tree.Delete(l)
	}
}

// crosses reports whether the taker's limit admits the given opposite price.
// Market orders cross any price.
func crosses(order *models.Order, price *big.Int) bool {
	if order.Type == models.TypeMarket {
		return true
	}
	if order.Side == models.SideBuy {
		return order.Price.Cmp(price) >= 0
	}
	return order.Price.Cmp(price) <= 0
}

func minInt(a, b *big.Int) *big.Int {
	if a.Cmp(b) <= 0 {
		return new(big.Int).Set(a)
	}
	return new(big.Int).Set(b)
}
