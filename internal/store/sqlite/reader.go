package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"

	_ "github.com/mattn/go-sqlite3"

	"signal-enginev1/internal/model"
)

// Reader provides read access to stored candles and the signal journal.
// It is the offline CandleSource used by backtests and startup backfill.
type Reader struct {
	db *sql.DB
}

// NewReader opens a SQLite connection for reading.
func NewReader(dbPath string) (*Reader, error) {
	db, err := open(dbPath)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(2)
	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	log.Printf("[sqlite-reader] opened %s", dbPath)
	return &Reader{db: db}, nil
}

// DB returns the underlying sql.DB for health checks.
func (r *Reader) DB() *sql.DB { return r.db }

// Candles returns the newest limit candles for symbol, oldest first.
func (r *Reader) Candles(ctx context.Context, symbol, interval string, limit int) (model.Series, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT symbol, ts, open, high, low, close, volume FROM (
			SELECT symbol, ts, open, high, low, close, volume
			FROM candles
			WHERE symbol = ? AND interval = ?
			ORDER BY ts DESC
			LIMIT ?
		) ORDER BY ts ASC
	`, symbol, interval, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite query candles: %w", err)
	}
	return scanCandles(rows)
}

// ReadCandles returns every candle for symbol after afterTS, oldest first.
func (r *Reader) ReadCandles(ctx context.Context, symbol, interval string, afterTS int64) (model.Series, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT symbol, ts, open, high, low, close, volume
		FROM candles
		WHERE symbol = ? AND interval = ? AND ts > ?
		ORDER BY ts ASC
	`, symbol, interval, afterTS)
	if err != nil {
		return nil, fmt.Errorf("sqlite query candles: %w", err)
	}
	return scanCandles(rows)
}

func scanCandles(rows *sql.Rows) (model.Series, error) {
	defer rows.Close()
	var out model.Series
	for rows.Next() {
		var c model.Candle
		if err := rows.Scan(&c.Symbol, &c.TS, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			return nil, fmt.Errorf("sqlite scan candles: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Symbols lists the symbols with stored candles at interval.
func (r *Reader) Symbols(ctx context.Context, interval string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT DISTINCT symbol FROM candles WHERE interval = ? ORDER BY symbol`, interval)
	if err != nil {
		return nil, fmt.Errorf("sqlite query symbols: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

const signalColumns = `symbol, action, confidence, target_price, stop_loss, reasoning, timeframe,
	risk_score, expected_return, price, score, generated_at`

func scanSignal(sc interface{ Scan(...any) error }) (model.TradingSignal, error) {
	var s model.TradingSignal
	var action string
	err := sc.Scan(&s.Symbol, &action, &s.Confidence, &s.TargetPrice, &s.StopLoss, &s.Reasoning, &s.Timeframe,
		&s.RiskScore, &s.ExpectedReturn, &s.Price, &s.Score, &s.GeneratedAt)
	s.Action = model.Action(action)
	return s, err
}

// LatestSignal returns the newest journaled signal for symbol, or nil.
func (r *Reader) LatestSignal(ctx context.Context, symbol string) (*model.TradingSignal, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+signalColumns+` FROM signals WHERE symbol = ? ORDER BY id DESC LIMIT 1`, symbol)
	s, err := scanSignal(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite read signal: %w", err)
	}
	return &s, nil
}

// RecentSignals returns up to limit journaled signals for symbol, newest
// first. An empty symbol returns signals for every symbol.
func (r *Reader) RecentSignals(ctx context.Context, symbol string, limit int) ([]model.TradingSignal, error) {
	query := `SELECT ` + signalColumns + ` FROM signals`
	args := []any{}
	if symbol != "" {
		query += ` WHERE symbol = ?`
		args = append(args, symbol)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite query signals: %w", err)
	}
	defer rows.Close()

	var out []model.TradingSignal
	for rows.Next() {
		s, err := scanSignal(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite scan signal: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Close closes the reader.
func (r *Reader) Close() error {
	return r.db.Close()
}
