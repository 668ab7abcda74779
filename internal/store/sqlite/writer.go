package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"signal-enginev1/internal/model"
)

const (
	defaultBatchSize  = 100
	defaultFlushDelay = 200 * time.Millisecond
	defaultInterval   = "1h"
)

// WriterConfig configures the SQLite writer.
type WriterConfig struct {
	DBPath   string // path to SQLite database file, e.g. "data/signals.db"
	Interval string // interval label stored with candles, default "1h"
}

// Writer is a single-goroutine SQLite writer with transaction batching.
// It stores closed candles and journals every signal the engine produces.
type Writer struct {
	db       *sql.DB
	interval string

	// OnCommit is called after each committed batch (e.g. metrics).
	OnCommit func(n int, d time.Duration)
}

// DB returns the underlying sql.DB for health checks.
func (w *Writer) DB() *sql.DB { return w.db }

// New creates a new SQLite Writer, initializes the database with WAL mode and schema.
func New(cfg WriterConfig) (*Writer, error) {
	if cfg.Interval == "" {
		cfg.Interval = defaultInterval
	}
	db, err := open(cfg.DBPath)
	if err != nil {
		return nil, err
	}

	// Set connection pool for single-writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	log.Printf("[sqlite] opened database at %s", cfg.DBPath)
	return &Writer{db: db, interval: cfg.Interval}, nil
}

func open(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}
	return db, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS candles (
			symbol   TEXT    NOT NULL,
			interval TEXT    NOT NULL,
			ts       INTEGER NOT NULL,
			open     REAL    NOT NULL,
			high     REAL    NOT NULL,
			low      REAL    NOT NULL,
			close    REAL    NOT NULL,
			volume   REAL    NOT NULL,
			PRIMARY KEY (symbol, interval, ts)
		);

		CREATE TABLE IF NOT EXISTS signals (
			id              INTEGER PRIMARY KEY AUTOINCREMENT,
			symbol          TEXT    NOT NULL,
			action          TEXT    NOT NULL,
			confidence      REAL    NOT NULL,
			target_price    REAL    NOT NULL,
			stop_loss       REAL    NOT NULL,
			reasoning       TEXT    NOT NULL,
			timeframe       TEXT    NOT NULL,
			risk_score      REAL    NOT NULL,
			expected_return REAL    NOT NULL,
			price           REAL    NOT NULL,
			score           REAL    NOT NULL,
			generated_at    INTEGER NOT NULL,
			created_at      INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
		);
		CREATE INDEX IF NOT EXISTS idx_signals_symbol ON signals(symbol, id);
	`)
	return err
}

// Run reads candles from candleCh and inserts them in batched transactions.
// Flushes every batchSize candles OR every flushDelay, whichever first.
// Blocks until ctx is cancelled or candleCh is closed.
func (w *Writer) Run(ctx context.Context, candleCh <-chan model.Candle) {
	batch := make([]model.Candle, 0, defaultBatchSize)
	timer := time.NewTimer(defaultFlushDelay)
	defer timer.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		start := time.Now()
		if err := w.WriteCandles(context.Background(), batch); err != nil {
			log.Printf("[sqlite] batch insert error: %v", err)
		} else if w.OnCommit != nil {
			w.OnCommit(len(batch), time.Since(start))
		}
		batch = batch[:0]
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return

		case c, ok := <-candleCh:
			if !ok {
				flush()
				return
			}
			batch = append(batch, c)
			if len(batch) >= defaultBatchSize {
				flush()
				timer.Reset(defaultFlushDelay)
			}

		case <-timer.C:
			flush()
			timer.Reset(defaultFlushDelay)
		}
	}
}

// WriteCandles upserts candles in a single transaction.
func (w *Writer) WriteCandles(ctx context.Context, candles []model.Candle) error {
	return w.inTx(ctx, `
		INSERT OR REPLACE INTO candles (symbol, interval, ts, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, len(candles), func(stmt *sql.Stmt, i int) error {
		c := candles[i]
		_, err := stmt.ExecContext(ctx, c.Symbol, w.interval, c.TS, c.Open, c.High, c.Low, c.Close, c.Volume)
		return err
	})
}

// WriteSignals appends signals to the journal in a single transaction.
func (w *Writer) WriteSignals(ctx context.Context, signals []model.TradingSignal) error {
	return w.inTx(ctx, `
		INSERT INTO signals (symbol, action, confidence, target_price, stop_loss, reasoning, timeframe,
		                     risk_score, expected_return, price, score, generated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, len(signals), func(stmt *sql.Stmt, i int) error {
		s := signals[i]
		_, err := stmt.ExecContext(ctx, s.Symbol, string(s.Action), s.Confidence, s.TargetPrice, s.StopLoss,
			s.Reasoning, s.Timeframe, s.RiskScore, s.ExpectedReturn, s.Price, s.Score, s.GeneratedAt)
		return err
	})
}

func (w *Writer) inTx(ctx context.Context, query string, n int, exec func(*sql.Stmt, int) error) error {
	if n == 0 {
		return nil
	}
	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for i := 0; i < n; i++ {
		if err := exec(stmt, i); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// LastTimestamp returns the newest stored candle TS for symbol, or 0.
func (w *Writer) LastTimestamp(ctx context.Context, symbol string) (int64, error) {
	var ts sql.NullInt64
	err := w.db.QueryRowContext(ctx,
		`SELECT MAX(ts) FROM candles WHERE symbol = ? AND interval = ?`,
		symbol, w.interval,
	).Scan(&ts)
	if err != nil {
		return 0, err
	}
	if !ts.Valid {
		return 0, nil
	}
	return ts.Int64, nil
}

// PruneSignals keeps only the newest keep journal rows per symbol.
func (w *Writer) PruneSignals(ctx context.Context, keep int) (int64, error) {
	res, err := w.db.ExecContext(ctx, `
		DELETE FROM signals WHERE id IN (
			SELECT id FROM (
				SELECT id, ROW_NUMBER() OVER (PARTITION BY symbol ORDER BY id DESC) AS rn FROM signals
			) WHERE rn > ?
		)`, keep)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Close closes the database.
func (w *Writer) Close() error {
	return w.db.Close()
}
