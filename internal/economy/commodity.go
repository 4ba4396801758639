package economy

import (
	"fmt"
	"strings"
)

// Currency is a tradable currency code such as "EUR".
type Currency string

// Well-known currencies of the default scenario.
const (
	EUR Currency = "EUR"
	USD Currency = "USD"
	YEN Currency = "YEN"
)

// CommodityKind tags which variant a Commodity holds. The zero value is
// reserved for "no commodity" so that filters can leave it unset.
type CommodityKind uint8

const (
	KindGood CommodityKind = iota + 1
	KindCurrency
	KindProperty
)

func (k CommodityKind) String() string {
	switch k {
	case KindGood:
		return "good"
	case KindCurrency:
		return "currency"
	case KindProperty:
		return "property"
	default:
		return "none"
	}
}

// PropertyID references a financial property such as a share or a bond.
type PropertyID string

// Commodity describes what an order sells. Exactly one of Good, Currency or
// Property is meaningful, selected by Kind.
type Commodity struct {
	Kind     CommodityKind `json:"kind"`
	Good     GoodType      `json:"good,omitempty"`
	Currency Currency      `json:"currency,omitempty"`
	Property PropertyID    `json:"property,omitempty"`
}

// Good returns the commodity descriptor for a physical good.
func Good(g GoodType) Commodity { return Commodity{Kind: KindGood, Good: g} }

// CurrencyCommodity returns the descriptor for trading currency c itself.
func CurrencyCommodity(c Currency) Commodity {
	return Commodity{Kind: KindCurrency, Currency: c}
}

// Property returns the descriptor for a financial property.
func Property(id PropertyID) Commodity { return Commodity{Kind: KindProperty, Property: id} }

// IsZero reports whether c is the unset commodity.
func (c Commodity) IsZero() bool { return c.Kind == 0 }

// Key returns a stable string identifying the commodity, e.g. "good:grain".
func (c Commodity) Key() string {
	switch c.Kind {
	case KindGood:
		return "good:" + c.Good.String()
	case KindCurrency:
		return "currency:" + string(c.Currency)
	case KindProperty:
		return "property:" + string(c.Property)
	default:
		return "none"
	}
}

func (c Commodity) String() string { return c.Key() }

// ParseCommodity is the inverse of Commodity.Key.
func ParseCommodity(key string) (Commodity, error) {
	kind, name, ok := strings.Cut(key, ":")
	if !ok || name == "" {
		return Commodity{}, fmt.Errorf("malformed commodity %q", key)
	}
	switch kind {
	case "good":
		g, ok := GoodTypeFromString(name)
		if !ok {
			return Commodity{}, fmt.Errorf("unknown good %q", name)
		}
		return Good(g), nil
	case "currency":
		return CurrencyCommodity(Currency(name)), nil
	case "property":
		return Property(PropertyID(name)), nil
	default:
		return Commodity{}, fmt.Errorf("unknown commodity kind %q", kind)
	}
}

// BookKey identifies one order book: the currency prices are quoted in and
// the commodity being sold.
type BookKey struct {
	Currency  Currency
	Commodity Commodity
}

func (k BookKey) String() string {
	return string(k.Currency) + "/" + k.Commodity.Key()
}
