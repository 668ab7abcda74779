package redis

import (
	"context"
	"fmt"
	"log"
	"time"

	"signal-enginev1/internal/model"

	goredis "github.com/go-redis/redis/v8"
)

const (
	defaultStreamMaxLen = 5000
	defaultLatestTTL    = 2 * time.Hour

	// symbolsKey is a set of every symbol that has a published signal.
	symbolsKey = "signal:symbols"
)

// WriterConfig configures the Redis writer.
type WriterConfig struct {
	Addr     string // Redis address, e.g. "localhost:6379"
	Password string
	DB       int

	StreamMaxLen int64         // approximate cap per signal stream (default 5000)
	LatestTTL    time.Duration // TTL on signal:latest:{symbol} (default 2h)
}

// Writer publishes trading signals to Redis: one stream entry, the
// latest-value key and a PubSub message per signal.
type Writer struct {
	client *goredis.Client
	maxLen int64
	ttl    time.Duration

	// OnWrite is called with the pipeline latency after every batch.
	OnWrite func(d time.Duration)
}

// New creates a new Redis Writer and pings the server.
func New(cfg WriterConfig) (*Writer, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	log.Printf("[redis] connected to %s", cfg.Addr)
	return NewWithClient(client, cfg), nil
}

// NewWithClient wraps an existing client without pinging it.
func NewWithClient(client *goredis.Client, cfg WriterConfig) *Writer {
	maxLen := cfg.StreamMaxLen
	if maxLen <= 0 {
		maxLen = defaultStreamMaxLen
	}
	ttl := cfg.LatestTTL
	if ttl <= 0 {
		ttl = defaultLatestTTL
	}
	return &Writer{client: client, maxLen: maxLen, ttl: ttl}
}

// Client returns the underlying Redis client for health checks.
func (w *Writer) Client() *goredis.Client { return w.client }

// Run reads signals from sigCh and publishes them one at a time.
// Blocks until ctx is cancelled or sigCh is closed.
func (w *Writer) Run(ctx context.Context, sigCh <-chan model.TradingSignal) {
	for {
		select {
		case <-ctx.Done():
			return
		case sig, ok := <-sigCh:
			if !ok {
				return
			}
			if err := w.WriteSignals(ctx, []model.TradingSignal{sig}); err != nil {
				log.Printf("[redis] publish %s: %v", sig.Symbol, err)
			}
		}
	}
}

// WriteSignals writes a batch of signals in a single pipeline:
// XADD signal:{symbol}, SET signal:latest:{symbol}, PUBLISH pub:signal:{symbol}.
func (w *Writer) WriteSignals(ctx context.Context, signals []model.TradingSignal) error {
	if len(signals) == 0 {
		return nil
	}

	start := time.Now()
	pipe := w.client.Pipeline()
	for i := range signals {
		sig := &signals[i]
		data := string(sig.JSON())

		pipe.XAdd(ctx, &goredis.XAddArgs{
			Stream: sig.StreamKey(),
			MaxLen: w.maxLen,
			Approx: true,
			Values: map[string]interface{}{"data": data},
		})
		pipe.Set(ctx, sig.LatestKey(), data, w.ttl)
		pipe.SAdd(ctx, symbolsKey, sig.Symbol)
		pipe.Publish(ctx, sig.PubSubChannel(), data)
	}

	_, err := pipe.Exec(ctx)
	if w.OnWrite != nil {
		w.OnWrite(time.Since(start))
	}
	if err != nil {
		return fmt.Errorf("redis signal pipeline (%d signals): %w", len(signals), err)
	}
	return nil
}

// Close closes the Redis client.
func (w *Writer) Close() error {
	return w.client.Close()
}
