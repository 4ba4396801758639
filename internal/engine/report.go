// Daily and yearly market reports.
package engine

import (
	"fmt"
	"log/slog"
	"maps"
	"math"
	"slices"

	"github.com/dustin/go-humanize"

	"github.com/talgya/mini-economy/internal/clock"
	"github.com/talgya/mini-economy/internal/economy"
)

// Quote is the state of one order book at an instant.
type Quote struct {
	Instant       clock.Instant `json:"instant"`
	Book          string        `json:"book"`
	Currency      string        `json:"currency"`
	Commodity     string        `json:"commodity"`
	MarginalPrice *float64      `json:"marginal_price"` // nil when the book is empty
	AmountSum     float64       `json:"amount_sum"`
	Orders        int           `json:"orders"`
}

// Quotes returns one quote per book, sorted by book key.
func (s *Simulation) Quotes() []Quote {
	now := s.Now()
	books := s.Markets.Books()
	out := make([]Quote, 0, len(books))
	for _, b := range books {
		q := Quote{
			Instant:   now,
			Book:      b.Key().String(),
			Currency:  string(b.Key().Currency),
			Commodity: b.Key().Commodity.Key(),
			AmountSum: b.AmountSum(),
			Orders:    b.Len(),
		}
		if p := b.MarginalPrice(); !math.IsNaN(p) {
			q.MarginalPrice = &p
		}
		out = append(out, q)
	}
	return out
}

// LogDailyReport logs the run statistics, the volume traded per currency
// since the previous report and one line per non-empty book.
func (s *Simulation) LogDailyReport(now clock.Instant) {
	s.Logger.Info("daily report",
		"run_id", s.RunID,
		"instant", now.String(),
		"ticks", s.Stats.Ticks,
		"subscriptions", s.Calendar.Len(),
		"events_fired", humanize.Comma(int64(s.Stats.EventsFired)),
		"dispatch_failures", s.Stats.DispatchFailures,
		"external_events", s.Stats.ExternalEvents,
		"fills", humanize.Comma(int64(s.Stats.Fills)),
	)
	for _, cur := range slices.Sorted(maps.Keys(s.traded)) {
		s.Logger.Info("traded",
			"currency", cur,
			"volume", humanize.CommafWithDigits(s.traded[cur], 2),
		)
	}
	clear(s.traded)
	for _, q := range s.Quotes() {
		if q.Orders == 0 {
			continue
		}
		s.Logger.Info("market",
			"book", q.Book,
			"marginal_price", fmt.Sprintf("%.4f", *q.MarginalPrice),
			"amount", humanize.CommafWithDigits(q.AmountSum, 2),
			"orders", q.Orders,
		)
	}
}

// LogYearlySnapshot logs the aggregate state at a year boundary.
func (s *Simulation) LogYearlySnapshot(now clock.Instant) {
	var volume float64
	var orders int
	for _, b := range s.Markets.Books() {
		volume += b.AmountSum()
		orders += b.Len()
	}
	s.Logger.Info("yearly snapshot",
		slog.String("run_id", s.RunID.String()),
		slog.Int("year", now.Year),
		slog.Int("books", len(s.Markets.Books())),
		slog.Int("open_orders", orders),
		slog.String("open_amount", humanize.CommafWithDigits(volume, 2)),
		slog.Uint64("fills", s.Stats.Fills),
	)
}

// TradedVolume returns the money volume of fills by currency since the last
// daily report.
func (s *Simulation) TradedVolume() map[economy.Currency]float64 {
	return maps.Clone(s.traded)
}
