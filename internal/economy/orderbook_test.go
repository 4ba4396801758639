package economy

import (
	"errors"
	"math"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/talgya/mini-economy/internal/metrics"
)

// party is a minimal Delegate for tests.
type party string

func (p party) OwnerID() AgentID { return AgentID(p) }

var grainEUR = BookKey{Currency: EUR, Commodity: Good(GoodGrain)}

func mustOrder(t *testing.T, seller Delegate, price, amount float64) *Order {
	t.Helper()
	o, err := NewOrder(seller, Good(GoodGrain), EUR, price, amount)
	if err != nil {
		t.Fatalf("NewOrder(%v, %v): %v", price, amount, err)
	}
	return o
}

func prices(b *OrderBook) []float64 {
	var out []float64
	for o := range b.Ascending() {
		out = append(out, o.PricePerUnit)
	}
	return out
}

func TestNewOrderRejectsInvalid(t *testing.T) {
	tests := []struct {
		name          string
		seller        Delegate
		price, amount float64
	}{
		{"negative price", party("a"), -1, 5},
		{"negative amount", party("a"), 1, -5},
		{"nan price", party("a"), math.NaN(), 5},
		{"inf amount", party("a"), 1, math.Inf(1)},
		{"no delegate", nil, 1, 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewOrder(tt.seller, Good(GoodGrain), EUR, tt.price, tt.amount)
			if !errors.Is(err, ErrInvalidOrder) {
				t.Fatalf("got %v, want ErrInvalidOrder", err)
			}
		})
	}
}

func TestPlaceKeepsAscendingOrder(t *testing.T) {
	b := NewOrderBook(grainEUR)
	for _, p := range []float64{3, 1, 2, 5, 0.5, 4} {
		if err := b.Place(mustOrder(t, party("s"), p, 1)); err != nil {
			t.Fatal(err)
		}
	}
	got := prices(b)
	for i := 1; i < len(got); i++ {
		if got[i] < got[i-1] {
			t.Fatalf("not ascending: %v", got)
		}
	}
	if b.MarginalPrice() != 0.5 {
		t.Fatalf("MarginalPrice = %v, want 0.5", b.MarginalPrice())
	}
}

func TestEqualPricesKeepInsertionOrder(t *testing.T) {
	b := NewOrderBook(grainEUR)
	first := mustOrder(t, party("first"), 2, 1)
	second := mustOrder(t, party("second"), 2, 1)
	cheaper := mustOrder(t, party("cheaper"), 1, 1)
	for _, o := range []*Order{first, second, cheaper} {
		if err := b.Place(o); err != nil {
			t.Fatal(err)
		}
	}
	var got []AgentID
	for o := range b.Ascending() {
		got = append(got, o.Offeror)
	}
	want := []AgentID{"cheaper", "first", "second"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order = %v, want %v", got, want)
		}
	}
	if !(first.ID < second.ID) {
		t.Fatalf("IDs not monotonic: %d, %d", first.ID, second.ID)
	}
}

func TestPlaceRejects(t *testing.T) {
	b := NewOrderBook(grainEUR)
	o := mustOrder(t, party("s"), 1, 1)
	if err := b.Place(o); err != nil {
		t.Fatal(err)
	}
	if err := b.Place(o); !errors.Is(err, ErrInvalidOrder) {
		t.Fatalf("double place: got %v", err)
	}

	fish, _ := NewOrder(party("s"), Good(GoodFish), EUR, 1, 1)
	if err := b.Place(fish); !errors.Is(err, ErrInvalidOrder) {
		t.Fatalf("wrong book: got %v", err)
	}

	bad := &Order{Offeror: "s", Commodity: Good(GoodGrain), Currency: EUR, PricePerUnit: -2, Remaining: 1}
	if err := b.Place(bad); !errors.Is(err, ErrInvalidOrder) {
		t.Fatalf("negative price: got %v", err)
	}
	if b.Len() != 1 {
		t.Fatalf("Len = %d, want 1", b.Len())
	}
}

func TestPlaceZeroAmountIsNoop(t *testing.T) {
	b := NewOrderBook(grainEUR)
	if err := b.Place(mustOrder(t, party("s"), 1, 0)); err != nil {
		t.Fatal(err)
	}
	if b.Len() != 0 {
		t.Fatalf("zero-amount order entered the book")
	}
}

func TestPlaceThenIterateYieldsOnce(t *testing.T) {
	b := NewOrderBook(grainEUR)
	o := mustOrder(t, party("s"), 1.5, 3)
	if err := b.Place(o); err != nil {
		t.Fatal(err)
	}
	n := 0
	for got := range b.Ascending() {
		if got == o {
			n++
		}
	}
	if n != 1 {
		t.Fatalf("order yielded %d times", n)
	}
	// Restartable.
	n = 0
	for range b.Ascending() {
		n++
	}
	if n != 1 {
		t.Fatalf("second pass yielded %d orders", n)
	}
}

func TestRemoveAllIdempotent(t *testing.T) {
	b := NewOrderBook(grainEUR)
	for i, who := range []party{"a", "b", "a", "c", "a"} {
		if err := b.Place(mustOrder(t, who, float64(i+1), 1)); err != nil {
			t.Fatal(err)
		}
	}
	if n := b.RemoveAll("a"); n != 3 {
		t.Fatalf("first RemoveAll = %d, want 3", n)
	}
	after := prices(b)
	if n := b.RemoveAll("a"); n != 0 {
		t.Fatalf("second RemoveAll = %d, want 0", n)
	}
	again := prices(b)
	if len(after) != 2 || len(again) != 2 || after[0] != again[0] || after[1] != again[1] {
		t.Fatalf("book changed by second RemoveAll: %v -> %v", after, again)
	}
}

func TestAmountSumAndEmptyBook(t *testing.T) {
	b := NewOrderBook(grainEUR)
	if !math.IsNaN(b.MarginalPrice()) {
		t.Fatalf("empty book MarginalPrice = %v, want NaN", b.MarginalPrice())
	}
	if b.AmountSum() != 0 {
		t.Fatalf("empty AmountSum = %v", b.AmountSum())
	}
	b.Place(mustOrder(t, party("a"), 1, 2.5))
	b.Place(mustOrder(t, party("b"), 2, 4))
	if got := b.AmountSum(); got != 6.5 {
		t.Fatalf("AmountSum = %v, want 6.5", got)
	}
}

func TestMarketsRemoveAllFilter(t *testing.T) {
	m := NewMarkets(nil)
	seller := party("s")
	orders := []struct {
		c   Commodity
		cur Currency
	}{
		{Good(GoodGrain), EUR},
		{Good(GoodFish), EUR},
		{Good(GoodGrain), USD},
		{CurrencyCommodity(USD), EUR},
	}
	for _, k := range orders {
		o, err := NewOrder(seller, k.c, k.cur, 1, 1)
		if err != nil {
			t.Fatal(err)
		}
		if err := m.Place(o); err != nil {
			t.Fatal(err)
		}
	}

	if n := m.RemoveAll("s", Filter{Currency: EUR, Commodity: Good(GoodGrain)}); n != 1 {
		t.Fatalf("currency+commodity filter removed %d, want 1", n)
	}
	if n := m.RemoveAll("s", Filter{Currency: EUR}); n != 2 {
		t.Fatalf("currency filter removed %d, want 2", n)
	}
	if n := m.RemoveAll("s", Filter{}); n != 1 {
		t.Fatalf("no filter removed %d, want 1", n)
	}
	if n := m.RemoveAll("s", Filter{}); n != 0 {
		t.Fatalf("repeat removed %d, want 0", n)
	}
}

func TestMarketsBooksSharedSequence(t *testing.T) {
	m := NewMarkets(nil)
	a, _ := NewOrder(party("s"), Good(GoodGrain), EUR, 1, 1)
	b, _ := NewOrder(party("s"), Good(GoodFish), EUR, 1, 1)
	m.Place(a)
	m.Place(b)
	if b.ID <= a.ID {
		t.Fatalf("IDs across books not monotonic: %d, %d", a.ID, b.ID)
	}
	if len(m.Books()) != 2 {
		t.Fatalf("Books = %d, want 2", len(m.Books()))
	}
	m.Reset()
	if len(m.Books()) != 0 || a.Booked() {
		t.Fatal("Reset left books or booked orders behind")
	}
}

func TestParseCommodityRoundTrip(t *testing.T) {
	for _, c := range []Commodity{Good(GoodTools), CurrencyCommodity(USD), Property("bond-1")} {
		got, err := ParseCommodity(c.Key())
		if err != nil {
			t.Fatalf("ParseCommodity(%q): %v", c.Key(), err)
		}
		if got != c {
			t.Fatalf("ParseCommodity(%q) = %v", c.Key(), got)
		}
	}
	if _, err := ParseCommodity("good:unobtainium"); err == nil {
		t.Fatal("expected error for unknown good")
	}
}

func TestMarketsCountsOnlyBookedOrders(t *testing.T) {
	mt := metrics.New(prometheus.NewRegistry())
	m := NewMarkets(mt)

	if err := m.Place(mustOrder(t, party("s"), 1, 0)); err != nil {
		t.Fatal(err)
	}
	if err := m.Place(mustOrder(t, party("s"), 1, 2)); err != nil {
		t.Fatal(err)
	}
	booked := mustOrder(t, party("s"), 1, 2)
	m.Place(booked)
	if err := m.Place(booked); !errors.Is(err, ErrInvalidOrder) {
		t.Fatalf("re-placing a booked order: got %v", err)
	}

	if got := testutil.ToFloat64(mt.OrdersPlaced); got != 2 {
		t.Errorf("orders placed = %v, want 2", got)
	}
	if got := testutil.ToFloat64(mt.OrdersRejected); got != 1 {
		t.Errorf("orders rejected = %v, want 1", got)
	}
}
