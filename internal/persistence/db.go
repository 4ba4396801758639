// Package persistence provides the SQLite trade journal: an append-only audit
// log of fills and daily book quotes per run. It is never read back into a
// simulation.
package persistence

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/talgya/mini-economy/internal/engine"
)

// FillRow is one journaled fill.
type FillRow struct {
	ID           int64   `db:"id" json:"id"`
	RunID        string  `db:"run_id" json:"run_id"`
	Instant      string  `db:"instant" json:"instant"`
	OrderID      int64   `db:"order_id" json:"order_id"`
	Seller       string  `db:"seller" json:"seller"`
	Buyer        string  `db:"buyer" json:"buyer"`
	Commodity    string  `db:"commodity" json:"commodity"`
	Currency     string  `db:"currency" json:"currency"`
	Amount       float64 `db:"amount" json:"amount"`
	PricePerUnit float64 `db:"price_per_unit" json:"price_per_unit"`
}

// QuoteRow is one book's state at the start of a day.
type QuoteRow struct {
	RunID         string   `db:"run_id" json:"run_id"`
	Instant       string   `db:"instant" json:"instant"`
	Book          string   `db:"book" json:"book"`
	MarginalPrice *float64 `db:"marginal_price" json:"marginal_price"`
	AmountSum     float64  `db:"amount_sum" json:"amount_sum"`
	Orders        int      `db:"orders" json:"orders"`
}

// DB wraps a SQLite connection for the trade journal. Fills are buffered in
// memory by RecordFill and written in one transaction by Flush.
type DB struct {
	conn *sqlx.DB

	mu      sync.Mutex
	pending []FillRow
}

// Open opens or creates a SQLite database at the given path.
func Open(path string) (*DB, error) {
	conn, err := sqlx.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return db, nil
}

// Close flushes buffered fills and closes the database connection.
func (db *DB) Close() error {
	if err := db.Flush(); err != nil {
		slog.Warn("journal flush on close failed", "error", err)
	}
	return db.conn.Close()
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS fills (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		instant TEXT NOT NULL,
		order_id INTEGER NOT NULL,
		seller TEXT NOT NULL,
		buyer TEXT NOT NULL,
		commodity TEXT NOT NULL,
		currency TEXT NOT NULL,
		amount REAL NOT NULL,
		price_per_unit REAL NOT NULL
	);

	CREATE TABLE IF NOT EXISTS quotes (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		instant TEXT NOT NULL,
		book TEXT NOT NULL,
		marginal_price REAL,
		amount_sum REAL NOT NULL,
		orders INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS run_meta (
		run_id TEXT NOT NULL,
		key TEXT NOT NULL,
		value TEXT NOT NULL,
		PRIMARY KEY (run_id, key)
	);

	CREATE INDEX IF NOT EXISTS idx_fills_run ON fills(run_id, id);
	CREATE INDEX IF NOT EXISTS idx_quotes_run_book ON quotes(run_id, book, id);
	`
	_, err := db.conn.Exec(schema)
	return err
}

// RecordFill buffers a fill for the next Flush.
func (db *DB) RecordFill(runID string, rec engine.FillRecord) {
	f := rec.Fill
	row := FillRow{
		RunID:        runID,
		Instant:      rec.Instant.String(),
		OrderID:      int64(f.OrderID),
		Commodity:    f.Commodity.Key(),
		Currency:     string(f.Currency),
		Amount:       f.Amount,
		PricePerUnit: f.PricePerUnit,
	}
	if f.Seller != nil {
		row.Seller = string(f.Seller.OwnerID())
	}
	if f.Buyer != nil {
		row.Buyer = string(f.Buyer.OwnerID())
	}

	db.mu.Lock()
	db.pending = append(db.pending, row)
	db.mu.Unlock()
}

// Pending returns the number of buffered fills.
func (db *DB) Pending() int {
	db.mu.Lock()
	defer db.mu.Unlock()
	return len(db.pending)
}

// Flush writes every buffered fill. On failure the buffer is kept.
func (db *DB) Flush() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if len(db.pending) == 0 {
		return nil
	}

	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareNamed(`INSERT INTO fills
		(run_id, instant, order_id, seller, buyer, commodity, currency, amount, price_per_unit)
		VALUES (:run_id, :instant, :order_id, :seller, :buyer, :commodity, :currency, :amount, :price_per_unit)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, row := range db.pending {
		if _, err := stmt.Exec(row); err != nil {
			return fmt.Errorf("insert fill of order %d: %w", row.OrderID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	clear(db.pending)
	db.pending = db.pending[:0]
	return nil
}

// SaveQuotes appends one quote row per book.
func (db *DB) SaveQuotes(runID string, quotes []engine.Quote) error {
	if len(quotes) == 0 {
		return nil
	}

	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, q := range quotes {
		_, err := tx.Exec(
			"INSERT INTO quotes (run_id, instant, book, marginal_price, amount_sum, orders) VALUES (?, ?, ?, ?, ?, ?)",
			runID, q.Instant.String(), q.Book, q.MarginalPrice, q.AmountSum, q.Orders,
		)
		if err != nil {
			return fmt.Errorf("insert quote %s: %w", q.Book, err)
		}
	}

	return tx.Commit()
}

// SaveMeta stores a key-value pair for a run.
func (db *DB) SaveMeta(runID, key, value string) error {
	_, err := db.conn.Exec(
		"INSERT OR REPLACE INTO run_meta (run_id, key, value) VALUES (?, ?, ?)",
		runID, key, value,
	)
	return err
}

// GetMeta retrieves a metadata value.
func (db *DB) GetMeta(runID, key string) (string, error) {
	var value string
	err := db.conn.Get(&value, "SELECT value FROM run_meta WHERE run_id = ? AND key = ?", runID, key)
	return value, err
}

// JournalDay flushes buffered fills and records the day's quotes. It is
// meant to be called from the engine's day hook.
func (db *DB) JournalDay(sim *engine.Simulation) error {
	runID := sim.RunID.String()
	if err := db.Flush(); err != nil {
		return fmt.Errorf("flush fills: %w", err)
	}
	if err := db.SaveQuotes(runID, sim.Quotes()); err != nil {
		return fmt.Errorf("save quotes: %w", err)
	}
	if err := db.SaveMeta(runID, "last_instant", sim.Now().String()); err != nil {
		return fmt.Errorf("save meta: %w", err)
	}
	return nil
}

// RecentFills returns the most recent fills of a run, newest first.
func (db *DB) RecentFills(runID string, limit int) ([]FillRow, error) {
	var rows []FillRow
	err := db.conn.Select(&rows,
		`SELECT id, run_id, instant, order_id, seller, buyer, commodity, currency, amount, price_per_unit
		 FROM fills WHERE run_id = ? ORDER BY id DESC LIMIT ?`,
		runID, limit,
	)
	return rows, err
}

// QuoteHistory returns the most recent quotes of one book, newest first.
func (db *DB) QuoteHistory(runID, book string, limit int) ([]QuoteRow, error) {
	var rows []QuoteRow
	err := db.conn.Select(&rows,
		`SELECT run_id, instant, book, marginal_price, amount_sum, orders
		 FROM quotes WHERE run_id = ? AND book = ? ORDER BY id DESC LIMIT ?`,
		runID, book, limit,
	)
	return rows, err
}
