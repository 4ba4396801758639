package economy

import (
	"errors"
	"fmt"
)

// Settlement failures reported by a SettlementBridge.
var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrInvalidOwnership  = errors.New("invalid ownership")
)

// Fill is the amount and price at which one order is (partially) consumed.
type Fill struct {
	OrderID      uint64
	Seller       Delegate
	Buyer        Delegate
	Commodity    Commodity
	Currency     Currency
	Amount       float64
	PricePerUnit float64
}

// Volume returns the money value of the fill.
func (f Fill) Volume() float64 { return f.Amount * f.PricePerUnit }

func (f Fill) String() string {
	return fmt.Sprintf("%s -> %s %.4f %s @ %.4f %s",
		f.Seller.OwnerID(), f.Buyer.OwnerID(), f.Amount, f.Commodity, f.PricePerUnit, f.Currency)
}

// SettlementBridge performs the paired money and ownership transfer for one
// fill. It is implemented outside the matching core (see package banking).
// A failure must leave both parties untouched and should wrap
// ErrInsufficientFunds or ErrInvalidOwnership.
type SettlementBridge interface {
	Transfer(f Fill) error
}

// SettlementFunc adapts a function to SettlementBridge.
type SettlementFunc func(f Fill) error

// Transfer calls fn(f).
func (fn SettlementFunc) Transfer(f Fill) error { return fn(f) }

func settlementReason(err error) string {
	switch {
	case errors.Is(err, ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, ErrInvalidOwnership):
		return "invalid_ownership"
	default:
		return "other"
	}
}
