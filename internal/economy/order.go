package economy

import (
	"errors"
	"fmt"
	"math"
)

// Epsilon is the tolerance used for every floating-point comparison in
// matching and bookkeeping: price ceilings, budgets and order exhaustion.
const Epsilon = 1e-7

// ErrInvalidOrder is returned for orders with a negative, NaN or infinite
// price or amount, a missing delegate, or an order that is already booked.
var ErrInvalidOrder = errors.New("invalid order")

// AgentID identifies a trading party.
type AgentID string

// Delegate is the settlement handle of a trading party: whatever the
// settlement bridge needs to move that party's money and commodities.
type Delegate interface {
	OwnerID() AgentID
}

// Order is a standing offer to sell a commodity at a fixed unit price.
type Order struct {
	ID           uint64    `json:"id"`
	Offeror      AgentID   `json:"offeror"`
	Delegate     Delegate  `json:"-"`
	Commodity    Commodity `json:"commodity"`
	Currency     Currency  `json:"currency"`
	PricePerUnit float64   `json:"price_per_unit"`
	Remaining    float64   `json:"remaining"`

	book *OrderBook
}

// NewOrder validates and builds an order. The ID is assigned when the order
// is placed in a book.
func NewOrder(seller Delegate, c Commodity, currency Currency, pricePerUnit, amount float64) (*Order, error) {
	if seller == nil {
		return nil, fmt.Errorf("%w: no settlement delegate", ErrInvalidOrder)
	}
	if c.IsZero() || currency == "" {
		return nil, fmt.Errorf("%w: commodity and currency required", ErrInvalidOrder)
	}
	if !validQuantity(pricePerUnit) {
		return nil, fmt.Errorf("%w: price %v", ErrInvalidOrder, pricePerUnit)
	}
	if !validQuantity(amount) {
		return nil, fmt.Errorf("%w: amount %v", ErrInvalidOrder, amount)
	}
	return &Order{
		Offeror:      seller.OwnerID(),
		Delegate:     seller,
		Commodity:    c,
		Currency:     currency,
		PricePerUnit: pricePerUnit,
		Remaining:    amount,
	}, nil
}

func validQuantity(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v >= 0
}

// Key returns the book key this order belongs in.
func (o *Order) Key() BookKey { return BookKey{Currency: o.Currency, Commodity: o.Commodity} }

// Booked reports whether the order currently rests in a book.
func (o *Order) Booked() bool { return o.book != nil }

// less orders by price, then by insertion sequence.
func (o *Order) less(other *Order) bool {
	if o.PricePerUnit != other.PricePerUnit {
		return o.PricePerUnit < other.PricePerUnit
	}
	return o.ID < other.ID
}

func (o *Order) String() string {
	return fmt.Sprintf("order#%d %s %s %.4f@%.4f %s", o.ID, o.Offeror, o.Commodity, o.Remaining, o.PricePerUnit, o.Currency)
}
