package economy

import (
	"log/slog"
	"math"

	"github.com/talgya/mini-economy/internal/metrics"
)

// Result is the outcome of one MatchEngine.Buy call. A partial result is
// normal when the book runs out of liquidity; Err is set only when a
// settlement failure stopped the loop.
type Result struct {
	Amount float64
	Spent  float64
	Fills  []Fill
	Err    error
}

// AveragePrice returns Spent/Amount, or NaN when nothing was bought.
func (r Result) AveragePrice() float64 {
	if r.Amount <= Epsilon {
		return math.NaN()
	}
	return r.Spent / r.Amount
}

// MatchEngine executes bounded purchases against order books and hands each
// fill to a settlement bridge.
type MatchEngine struct {
	bridge    SettlementBridge
	logger    *slog.Logger
	metrics   *metrics.Metrics
	observers []func(Fill)
}

// NewMatchEngine creates a match engine settling through bridge. m may be nil.
func NewMatchEngine(bridge SettlementBridge, logger *slog.Logger, m *metrics.Metrics) *MatchEngine {
	if logger == nil {
		logger = slog.Default()
	}
	return &MatchEngine{
		bridge:  bridge,
		logger:  logger.With("component", "match_engine"),
		metrics: m,
	}
}

// OnFill registers fn to be called after every committed fill.
func (e *MatchEngine) OnFill(fn func(Fill)) {
	e.observers = append(e.observers, fn)
}

// Buy acquires from book, cheapest first, until maxAmount is bought,
// maxTotalPrice is spent, the next order costs more than maxPricePerUnit, or
// the book is exhausted. NaN leaves a bound unset.
//
// Orders offered by the buyer itself are skipped. A settlement failure
// aborts that fill and stops the loop; fills already committed are kept.
func (e *MatchEngine) Buy(book *OrderBook, maxAmount, maxTotalPrice, maxPricePerUnit float64, buyer Delegate) Result {
	var res Result
	if book == nil || buyer == nil {
		return res
	}
	buyerID := buyer.OwnerID()

	i := 0
	for i < len(book.orders) {
		o := book.orders[i]

		if !math.IsNaN(maxPricePerUnit) && o.PricePerUnit > maxPricePerUnit+Epsilon {
			break
		}

		fill := o.Remaining
		if !math.IsNaN(maxAmount) {
			fill = math.Min(fill, maxAmount-res.Amount)
		}
		if !math.IsNaN(maxTotalPrice) && o.PricePerUnit > Epsilon {
			fill = math.Min(fill, (maxTotalPrice-res.Spent)/o.PricePerUnit)
		}
		if fill <= Epsilon {
			break
		}

		if o.Offeror == buyerID {
			i++
			continue
		}

		f := Fill{
			OrderID:      o.ID,
			Seller:       o.Delegate,
			Buyer:        buyer,
			Commodity:    o.Commodity,
			Currency:     o.Currency,
			Amount:       fill,
			PricePerUnit: o.PricePerUnit,
		}
		if err := e.bridge.Transfer(f); err != nil {
			reason := settlementReason(err)
			e.metrics.RecordSettlementFailure(reason)
			e.logger.Warn("settlement failed",
				"book", book.key.String(),
				"order", o.ID,
				"seller", o.Offeror,
				"buyer", buyerID,
				"amount", fill,
				"price", o.PricePerUnit,
				"reason", reason,
				"error", err,
			)
			res.Err = err
			break
		}

		res.Amount += fill
		res.Spent += f.Volume()
		res.Fills = append(res.Fills, f)
		if !book.decrement(i, fill) {
			i++
		}

		e.metrics.RecordFill(o.Commodity.Kind.String(), string(o.Currency), f.Volume())
		for _, fn := range e.observers {
			fn(f)
		}
	}

	return res
}
