package persistence

import (
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/talgya/mini-economy/internal/clock"
	"github.com/talgya/mini-economy/internal/economy"
	"github.com/talgya/mini-economy/internal/engine"
)

type party string

func (p party) OwnerID() economy.AgentID { return economy.AgentID(p) }

func openTemp(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func fill(order uint64, amount, price float64) engine.FillRecord {
	return engine.FillRecord{
		Instant: clock.Instant{Year: 2000, Month: time.January, Day: 1, Hour: 12},
		Fill: economy.Fill{
			OrderID:      order,
			Seller:       party("farm"),
			Buyer:        party("home"),
			Commodity:    economy.Good(economy.GoodGrain),
			Currency:     economy.EUR,
			Amount:       amount,
			PricePerUnit: price,
		},
	}
}

func TestFillsAreBufferedUntilFlush(t *testing.T) {
	db := openTemp(t)
	db.RecordFill("run-a", fill(1, 5, 1))
	db.RecordFill("run-a", fill(2, 3, 2))
	db.RecordFill("run-b", fill(3, 1, 9))

	rows, err := db.RecentFills("run-a", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 0 || db.Pending() != 3 {
		t.Fatalf("before flush: rows=%d pending=%d", len(rows), db.Pending())
	}

	if err := db.Flush(); err != nil {
		t.Fatal(err)
	}
	if db.Pending() != 0 {
		t.Errorf("pending = %d after flush", db.Pending())
	}

	rows, err = db.RecentFills("run-a", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 {
		t.Fatalf("rows = %+v", rows)
	}
	newest := rows[0]
	if newest.OrderID != 2 || newest.Seller != "farm" || newest.Buyer != "home" ||
		newest.Commodity != "good:grain" || newest.Currency != "EUR" ||
		newest.Amount != 3 || newest.PricePerUnit != 2 || newest.Instant != "2000-01-01 12h" {
		t.Errorf("row = %+v", newest)
	}
}

func TestJournalDay(t *testing.T) {
	db := openTemp(t)
	sim := engine.NewSimulation(engine.Options{Seed: 1})
	o, err := economy.NewOrder(party("farm"), economy.Good(economy.GoodFish), economy.EUR, 2, 4)
	if err != nil {
		t.Fatal(err)
	}
	if err := sim.Markets.Place(o); err != nil {
		t.Fatal(err)
	}
	sim.Markets.Book(economy.USD, economy.Good(economy.GoodFish))
	db.RecordFill(sim.RunID.String(), fill(7, 1, 1))

	if err := db.JournalDay(sim); err != nil {
		t.Fatal(err)
	}
	runID := sim.RunID.String()

	fills, err := db.RecentFills(runID, 5)
	if err != nil || len(fills) != 1 {
		t.Fatalf("fills = %v, %v", fills, err)
	}

	quotes, err := db.QuoteHistory(runID, economy.BookKey{Currency: economy.EUR, Commodity: economy.Good(economy.GoodFish)}.String(), 5)
	if err != nil || len(quotes) != 1 {
		t.Fatalf("quotes = %v, %v", quotes, err)
	}
	if quotes[0].MarginalPrice == nil || *quotes[0].MarginalPrice != 2 || quotes[0].AmountSum != 4 {
		t.Errorf("quote = %+v", quotes[0])
	}

	empty, err := db.QuoteHistory(runID, economy.BookKey{Currency: economy.USD, Commodity: economy.Good(economy.GoodFish)}.String(), 5)
	if err != nil || len(empty) != 1 || empty[0].MarginalPrice != nil {
		t.Errorf("empty book quote = %+v, %v", empty, err)
	}

	last, err := db.GetMeta(runID, "last_instant")
	if err != nil || last != sim.Now().String() {
		t.Errorf("last_instant = %q, %v", last, err)
	}
}

func TestGetMetaMissing(t *testing.T) {
	db := openTemp(t)
	if _, err := db.GetMeta("run", "nope"); !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("err = %v", err)
	}
}

func TestReopenKeepsJournal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	db, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	db.RecordFill("run", fill(1, 1, 1))
	// Close flushes.
	if err := db.Close(); err != nil {
		t.Fatal(err)
	}

	db, err = Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	rows, err := db.RecentFills("run", 10)
	if err != nil || len(rows) != 1 {
		t.Errorf("rows = %v, %v", rows, err)
	}
}
