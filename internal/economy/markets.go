package economy

import (
	"sort"

	"github.com/talgya/mini-economy/internal/metrics"
)

// Markets is the registry of order books of one simulation run, keyed by
// (currency, commodity). Books are created on first use.
type Markets struct {
	books   map[BookKey]*OrderBook
	seq     *sequence
	metrics *metrics.Metrics
}

// NewMarkets creates an empty registry. m may be nil.
func NewMarkets(m *metrics.Metrics) *Markets {
	return &Markets{
		books:   make(map[BookKey]*OrderBook),
		seq:     &sequence{},
		metrics: m,
	}
}

// Book returns the book for (currency, commodity), creating it if needed.
func (m *Markets) Book(currency Currency, c Commodity) *OrderBook {
	key := BookKey{Currency: currency, Commodity: c}
	b, ok := m.books[key]
	if !ok {
		b = newOrderBook(key, m.seq)
		m.books[key] = b
	}
	return b
}

// Lookup returns an existing book without creating one.
func (m *Markets) Lookup(key BookKey) (*OrderBook, bool) {
	b, ok := m.books[key]
	return b, ok
}

// Place routes an order to its book.
func (m *Markets) Place(o *Order) error {
	if o == nil {
		m.metrics.RecordOrder(false)
		return ErrInvalidOrder
	}
	err := m.Book(o.Currency, o.Commodity).Place(o)
	if err == nil && !o.Booked() {
		// Zero amount: accepted, never booked.
		return nil
	}
	m.metrics.RecordOrder(err == nil)
	return err
}

// Filter narrows RemoveAll. Zero fields match everything.
type Filter struct {
	Currency  Currency
	Commodity Commodity
}

func (f Filter) matches(k BookKey) bool {
	if f.Currency != "" && f.Currency != k.Currency {
		return false
	}
	if !f.Commodity.IsZero() && f.Commodity != k.Commodity {
		return false
	}
	return true
}

// RemoveAll withdraws every order of offeror in the books selected by f and
// returns how many were removed. It is idempotent.
func (m *Markets) RemoveAll(offeror AgentID, f Filter) int {
	n := 0
	for key, b := range m.books {
		if f.matches(key) {
			n += b.RemoveAll(offeror)
		}
	}
	return n
}

// Books returns every book sorted by key.
func (m *Markets) Books() []*OrderBook {
	out := make([]*OrderBook, 0, len(m.books))
	for _, b := range m.books {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].key.String() < out[j].key.String()
	})
	return out
}

// Reset drops every book and restarts order numbering.
func (m *Markets) Reset() {
	for _, b := range m.books {
		for _, o := range b.orders {
			o.book = nil
		}
	}
	m.books = make(map[BookKey]*OrderBook)
	m.seq = &sequence{}
}
