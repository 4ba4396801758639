package economy

import (
	"fmt"
	"iter"
	"math"
	"slices"
)

// sequence hands out monotonically increasing order IDs. Books created by the
// same Markets share one sequence.
type sequence struct{ next uint64 }

func (s *sequence) take() uint64 {
	s.next++
	return s.next
}

// OrderBook holds the open sell orders for one (currency, commodity) pair,
// sorted ascending by price with ties broken by order ID.
//
// An OrderBook is single-writer: Place, RemoveAll and MatchEngine.Buy must
// not run concurrently, and the book must not be mutated while a sequence
// from Ascending is being consumed.
type OrderBook struct {
	key    BookKey
	orders []*Order
	seq    *sequence
}

// NewOrderBook creates an empty book with its own ID sequence.
func NewOrderBook(key BookKey) *OrderBook {
	return newOrderBook(key, &sequence{})
}

func newOrderBook(key BookKey, seq *sequence) *OrderBook {
	return &OrderBook{key: key, seq: seq}
}

// Key returns the (currency, commodity) pair of this book.
func (b *OrderBook) Key() BookKey { return b.key }

// Place inserts an order at its price position. Orders with nothing left to
// sell are accepted but never enter the book.
func (b *OrderBook) Place(o *Order) error {
	if o == nil {
		return fmt.Errorf("%w: nil order", ErrInvalidOrder)
	}
	if o.book != nil {
		return fmt.Errorf("%w: order #%d already booked", ErrInvalidOrder, o.ID)
	}
	if o.Key() != b.key {
		return fmt.Errorf("%w: order for %s placed in book %s", ErrInvalidOrder, o.Key(), b.key)
	}
	if !validQuantity(o.PricePerUnit) || !validQuantity(o.Remaining) {
		return fmt.Errorf("%w: price %v amount %v", ErrInvalidOrder, o.PricePerUnit, o.Remaining)
	}
	if o.Remaining <= Epsilon {
		return nil
	}

	o.ID = b.seq.take()
	i, _ := slices.BinarySearchFunc(b.orders, o, compareOrders)
	b.orders = slices.Insert(b.orders, i, o)
	o.book = b
	return nil
}

func compareOrders(a, b *Order) int {
	switch {
	case a.less(b):
		return -1
	case b.less(a):
		return 1
	default:
		return 0
	}
}

// RemoveAll withdraws every order of offeror. It returns how many orders were
// removed; calling it when there are none is a no-op.
func (b *OrderBook) RemoveAll(offeror AgentID) int {
	n := 0
	for _, o := range b.orders {
		if o.Offeror == offeror {
			o.book = nil
			continue
		}
		b.orders[n] = o
		n++
	}
	removed := len(b.orders) - n
	clear(b.orders[n:])
	b.orders = b.orders[:n]
	return removed
}

// removeAt drops the order at index i, keeping the order of the rest.
func (b *OrderBook) removeAt(i int) {
	b.orders[i].book = nil
	b.orders = slices.Delete(b.orders, i, i+1)
}

// decrement consumes amount from the order at index i and removes it once
// exhausted. Reports whether the order was removed. Price is unchanged, so
// the ordering of the remaining orders holds.
func (b *OrderBook) decrement(i int, amount float64) bool {
	o := b.orders[i]
	o.Remaining -= amount
	if o.Remaining <= Epsilon {
		o.Remaining = 0
		b.removeAt(i)
		return true
	}
	return false
}

// MarginalPrice returns the price of the cheapest order, or NaN when empty.
func (b *OrderBook) MarginalPrice() float64 {
	if len(b.orders) == 0 {
		return math.NaN()
	}
	return b.orders[0].PricePerUnit
}

// AmountSum returns the total remaining amount across all orders.
func (b *OrderBook) AmountSum() float64 {
	sum := 0.0
	for _, o := range b.orders {
		sum += o.Remaining
	}
	return sum
}

// Len returns the number of open orders.
func (b *OrderBook) Len() int { return len(b.orders) }

// Ascending yields open orders from cheapest to most expensive. The sequence
// is lazy and may be ranged over any number of times.
func (b *OrderBook) Ascending() iter.Seq[*Order] {
	return func(yield func(*Order) bool) {
		for _, o := range b.orders {
			if o.Remaining <= 0 {
				continue
			}
			if !yield(o) {
				return
			}
		}
	}
}

// OrderView is a read-only copy of an order.
type OrderView struct {
	ID           uint64  `json:"id"`
	Offeror      AgentID `json:"offeror"`
	PricePerUnit float64 `json:"price_per_unit"`
	Remaining    float64 `json:"remaining"`
}

// Orders returns a snapshot of the book in ascending order.
func (b *OrderBook) Orders() []OrderView {
	out := make([]OrderView, 0, len(b.orders))
	for o := range b.Ascending() {
		out = append(out, OrderView{
			ID:           o.ID,
			Offeror:      o.Offeror,
			PricePerUnit: o.PricePerUnit,
			Remaining:    o.Remaining,
		})
	}
	return out
}
