package execution

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Journal persists order results to SQLite for analysis and audit.
type Journal struct {
	mu sync.Mutex
	db *sql.DB
}

// NewJournal opens (or creates) a SQLite order journal.
func NewJournal(dbPath string) (*Journal, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open journal %s: %w", dbPath, err)
	}

	schema := `
	CREATE TABLE IF NOT EXISTS orders (
		id              INTEGER PRIMARY KEY AUTOINCREMENT,
		client_order_id TEXT NOT NULL,
		order_id        TEXT,
		symbol          TEXT NOT NULL,
		side            TEXT NOT NULL,
		type            TEXT NOT NULL,
		quantity        REAL NOT NULL,
		price           REAL DEFAULT 0,
		stop_price      REAL DEFAULT 0,
		status          TEXT NOT NULL,
		executed_qty    REAL DEFAULT 0,
		confidence      REAL DEFAULT 0,
		reason          TEXT,
		error           TEXT,
		placed_at       DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_orders_symbol ON orders(symbol);
	CREATE INDEX IF NOT EXISTS idx_orders_placed_at ON orders(placed_at);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("journal schema: %w", err)
	}

	log.Printf("[journal] opened order journal at %s", dbPath)
	return &Journal{db: db}, nil
}

// Record implements Recorder.
func (j *Journal) Record(ctx context.Context, r OrderResult) error {
	var (
		orderID     string
		price, exec float64
		errText     string
		placedAt    = time.Now().UTC()
	)
	if r.Response != nil {
		orderID = r.Response.OrderID
		price = r.Response.Price
		exec = r.Response.ExecutedQty
		if !r.Response.Timestamp.IsZero() {
			placedAt = r.Response.Timestamp.UTC()
		}
	}
	if r.Err != nil {
		errText = r.Err.Error()
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	_, err := j.db.ExecContext(ctx,
		`INSERT INTO orders (client_order_id, order_id, symbol, side, type, quantity, price, stop_price,
		 status, executed_qty, confidence, reason, error, placed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.Request.ClientOrderID,
		orderID,
		r.Request.Symbol,
		string(r.Request.Side),
		string(r.Request.Type),
		r.Request.Quantity,
		price,
		r.Request.StopPrice,
		r.Status(),
		exec,
		r.Signal.Confidence,
		r.Signal.Reasoning,
		errText,
		placedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("journal insert %s: %w", r.Request.ClientOrderID, err)
	}
	return nil
}

// OrderRecord represents a row from the orders table.
type OrderRecord struct {
	ID            int64   `json:"id"`
	ClientOrderID string  `json:"client_order_id"`
	OrderID       string  `json:"order_id"`
	Symbol        string  `json:"symbol"`
	Side          string  `json:"side"`
	Type          string  `json:"type"`
	Quantity      float64 `json:"quantity"`
	Price         float64 `json:"price"`
	StopPrice     float64 `json:"stop_price"`
	Status        string  `json:"status"`
	ExecutedQty   float64 `json:"executed_qty"`
	Confidence    float64 `json:"confidence"`
	Reason        string  `json:"reason"`
	Error         string  `json:"error,omitempty"`
	PlacedAt      string  `json:"placed_at"`
}

// Orders returns the last limit orders, newest first. An empty symbol
// matches every symbol.
func (j *Journal) Orders(ctx context.Context, symbol string, limit int) ([]OrderRecord, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	rows, err := j.db.QueryContext(ctx,
		`SELECT id, client_order_id, order_id, symbol, side, type, quantity, price, stop_price,
		        status, executed_qty, confidence, reason, error, placed_at
		 FROM orders WHERE (? = '' OR symbol = ?) ORDER BY id DESC LIMIT ?`, symbol, symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("journal query: %w", err)
	}
	defer rows.Close()

	var out []OrderRecord
	for rows.Next() {
		var r OrderRecord
		if err := rows.Scan(&r.ID, &r.ClientOrderID, &r.OrderID, &r.Symbol, &r.Side, &r.Type,
			&r.Quantity, &r.Price, &r.StopPrice, &r.Status, &r.ExecutedQty, &r.Confidence,
			&r.Reason, &r.Error, &r.PlacedAt); err != nil {
			return nil, fmt.Errorf("journal scan: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Close closes the journal database.
func (j *Journal) Close() error {
	return j.db.Close()
}
