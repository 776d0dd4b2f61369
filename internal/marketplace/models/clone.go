package models

import "math/big"

// Clone returns a deep copy. Stores hold copies so the live book and
// persisted state never alias the same big.Int values.
func (o *Order) Clone() *Order {
	c := *o
	c.Price = copyInt(o.Price)
	c.Quantity = copyInt(o.Quantity)
	c.Remaining = copyInt(o.Remaining)
	if o.ExpiresAt != nil {
		t := *o.ExpiresAt
		c.ExpiresAt = &t
	}
	return &c
}

// Clone returns a deep copy of the trade.
func (t *Trade) Clone() *Trade {
	c := *t
	c.Price = copyInt(t.Price)
	c.Quantity = copyInt(t.Quantity)
	if t.SettledAt != nil {
		ts := *t.SettledAt
		c.SettledAt = &ts
	}
	return &c
}

func copyInt(v *big.Int) *big.Int {
	if v == nil {
		return nil
	}
	return new(big.Int).Set(v)
}
