// Package stream ingests closed klines from the exchange websocket (or the
// local simulator in cmd/klineserver) and feeds validated candles into the
// engine pipeline.
//
// Each message is either a raw kline event or the combined-stream envelope
//
//	{"stream":"btcusdt@kline_1h","data":{"e":"kline","s":"BTCUSDT","k":{"t":...,"o":"...","x":true}}}
//
// Only final bars (k.x == true) are forwarded.
package stream

import (
	"context"
	"errors"
	"log"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"signal-enginev1/internal/model"
)

// Config holds configuration for the kline ingest.
type Config struct {
	// URL of the stream, e.g. StreamURL("wss://stream.binance.com:9443", symbols, "1h")
	// or "ws://localhost:9001/ws" for the simulator.
	URL string

	// ReconnectDelay is the initial delay before reconnection attempts.
	// Defaults to 2 seconds if zero.
	ReconnectDelay time.Duration

	// MaxReconnectDelay caps the exponential backoff. Defaults to 30s.
	MaxReconnectDelay time.Duration

	// IncludeForming forwards in-progress bars too.
	IncludeForming bool
}

func (c *Config) defaults() {
	if c.ReconnectDelay == 0 {
		c.ReconnectDelay = 2 * time.Second
	}
	if c.MaxReconnectDelay == 0 {
		c.MaxReconnectDelay = 30 * time.Second
	}
}

// Ingest connects to a kline websocket and pushes candles into a channel.
type Ingest struct {
	cfg Config

	received atomic.Uint64
	rejected atomic.Uint64
	dropped  atomic.Uint64

	// Optional hooks.
	OnReconnect func()
	OnConnect   func(connected bool)
	OnReject    func(err error)
}

// New creates a new Ingest. Returns an error if the URL is unparseable.
func New(cfg Config) (*Ingest, error) {
	cfg.defaults()
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, errors.New("stream: url scheme must be ws or wss")
	}
	return &Ingest{cfg: cfg}, nil
}

// Stats returns counts of forwarded, rejected and dropped candles.
func (ing *Ingest) Stats() (received, rejected, dropped uint64) {
	return ing.received.Load(), ing.rejected.Load(), ing.dropped.Load()
}

// Start streams candles into candleCh. Blocks until ctx is cancelled and
// reconnects with exponential backoff on disconnect.
func (ing *Ingest) Start(ctx context.Context, candleCh chan<- model.Candle) error {
	delay := ing.cfg.ReconnectDelay

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		err := ing.runOnce(ctx, candleCh, func() { delay = ing.cfg.ReconnectDelay })
		ing.setConnected(false)
		if err == nil {
			return nil
		}

		log.Printf("[stream] disconnected (%v), reconnecting in %s...", err, delay)
		if ing.OnReconnect != nil {
			ing.OnReconnect()
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}

		delay *= 2
		if delay > ing.cfg.MaxReconnectDelay {
			delay = ing.cfg.MaxReconnectDelay
		}
	}
}

func (ing *Ingest) setConnected(v bool) {
	if ing.OnConnect != nil {
		ing.OnConnect(v)
	}
}

// runOnce makes a single connection attempt and reads until disconnect or ctx cancel.
func (ing *Ingest) runOnce(ctx context.Context, candleCh chan<- model.Candle, onConnected func()) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, ing.cfg.URL, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	log.Printf("[stream] connected to %s", ing.cfg.URL)
	ing.setConnected(true)
	onConnected()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "shutdown"))
			conn.Close()
		case <-done:
		}
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			return err
		}

		c, closed, err := ParseKline(raw)
		if err != nil {
			if !errors.Is(err, ErrNotKline) {
				ing.rejected.Add(1)
				log.Printf("[stream] rejected message: %v", err)
				if ing.OnReject != nil {
					ing.OnReject(err)
				}
			}
			continue
		}
		if !closed && !ing.cfg.IncludeForming {
			continue
		}

		select {
		case candleCh <- c:
			ing.received.Add(1)
		default:
			ing.dropped.Add(1)
			log.Printf("[stream] candleCh full, dropping %s", c.Key())
		}
	}
}
