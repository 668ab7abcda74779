package model

import "context"

// ── Port Interfaces ──
// These decouple the engine and its callers from concrete market data,
// storage and broker implementations.

// CandleSource is the Market Data Gateway: it supplies OHLCV history in
// ascending TS order with malformed bars already rejected.
type CandleSource interface {
	Candles(ctx context.Context, symbol, interval string, limit int) (Series, error)
}

// PriceSource supplies a live last-traded price for a symbol.
type PriceSource interface {
	LastPrice(ctx context.Context, symbol string) (float64, error)
}

// CandleWriter persists closed candles.
type CandleWriter interface {
	// Run reads candles from candleCh and writes them.
	// Blocks until ctx is cancelled or candleCh is closed.
	Run(ctx context.Context, candleCh <-chan Candle)

	// Close releases underlying resources.
	Close() error
}

// SignalWriter persists or publishes trading signals.
type SignalWriter interface {
	WriteSignals(ctx context.Context, signals []TradingSignal) error
}

// SignalReader returns previously published signals.
type SignalReader interface {
	// LatestSignal returns nil, nil when nothing is stored for symbol.
	LatestSignal(ctx context.Context, symbol string) (*TradingSignal, error)
}

// OrderPlacer is the order-execution collaborator.
type OrderPlacer interface {
	PlaceOrder(ctx context.Context, req OrderRequest) (*OrderResponse, error)
}
