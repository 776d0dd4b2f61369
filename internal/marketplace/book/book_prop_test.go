package book

import (
	"math/big"
	"testing"
	"time"

	"github.com/google/uuid"
	"pgregory.net/rapid"

	"github.com/knowton/marketplace/internal/marketplace/models"
)

// TestBookProperties drives the book with random order flow and checks the
// matching invariants after every submit.
func TestBookProperties(t *testing.T) {
	owners := []string{"alice", "bob", "carol", "dave"}
	sides := []models.Side{models.SideBuy, models.SideSell}
	types := []models.OrderType{models.TypeLimit, models.TypeLimit, models.TypeIOC, models.TypeMarket}

	rapid.Check(t, func(rt *rapid.T) {
		b := New(uuid.New())
		now := time.Now()

		steps := rapid.IntRange(1, 60).Draw(rt, "steps").(int)
		for i := 0; i < steps; i++ {
			owner := owners[rapid.IntRange(0, len(owners)-1).Draw(rt, "owner").(int)]
			side := sides[rapid.IntRange(0, 1).Draw(rt, "side").(int)]
			typ := types[rapid.IntRange(0, len(types)-1).Draw(rt, "type").(int)]
			price := int64(rapid.IntRange(1, 20).Draw(rt, "price").(int))
			qty := int64(rapid.IntRange(1, 10).Draw(rt, "qty").(int))

			order := newOrder(owner, side, typ, price, qty)
			res := b.Submit(order, now)

			// Conservation: the taker's executed quantity equals the sum of
			// its fills.
			total := new(big.Int)
			for _, f := range res.Fills {
				total.Add(total, f.Quantity)
				if f.Quantity.Sign() <= 0 {
					rt.Fatalf("non-positive fill quantity %s", f.Quantity)
				}
				if f.Maker.Owner == order.Owner {
					rt.Fatalf("self-trade: order %s matched own resting order", order.ID)
				}
			}
			if total.Cmp(order.Filled()) != 0 {
				rt.Fatalf("fill conservation violated: fills %s, taker filled %s", total, order.Filled())
			}

			// The book never crosses.
			bid, ask := b.BestBid(), b.BestAsk()
			if bid != nil && ask != nil && bid.Cmp(ask) >= 0 {
				rt.Fatalf("crossed book: bid %s >= ask %s", bid, ask)
			}

			// No zero-quantity resting orders.
			for _, o := range b.resting {
				if o.Remaining.Sign() <= 0 {
					rt.Fatalf("resting order %s with remaining %s", o.ID, o.Remaining)
				}
				if o.Type != models.TypeLimit {
					rt.Fatalf("non-limit order %s resting on book", o.ID)
				}
			}
		}
	})
}
