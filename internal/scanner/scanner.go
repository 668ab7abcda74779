// Package scanner evaluates many symbols concurrently and on a schedule.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"signal-enginev1/internal/aggregator"
	"signal-enginev1/internal/metrics"
	"signal-enginev1/internal/model"
)

// Evaluator scores a series at a given price.
type Evaluator interface {
	EvaluateAt(symbol string, candles model.Series, price float64) (model.TradingSignal, error)
}

// Config controls how history is fetched for each symbol.
type Config struct {
	Interval    string        // kline interval, default "1h"
	Limit       int           // bars per symbol, default 100
	Concurrency int           // max symbols in flight, default 8
	Timeout     time.Duration // per-symbol fetch+evaluate budget, default 15s
}

func (c *Config) defaults() {
	if c.Interval == "" {
		c.Interval = "1h"
	}
	if c.Limit <= 0 {
		c.Limit = 100
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 8
	}
	if c.Timeout <= 0 {
		c.Timeout = 15 * time.Second
	}
}

// Scanner runs batch evaluations over a candle source.
type Scanner struct {
	cfg    Config
	src    model.CandleSource
	prices model.PriceSource
	eval   Evaluator
	filter aggregator.Filter
	prom   *metrics.Metrics
}

// Option customises a Scanner.
type Option func(*Scanner)

// WithPriceSource evaluates against a live last price instead of the last close.
func WithPriceSource(p model.PriceSource) Option { return func(s *Scanner) { s.prices = p } }

// WithFilter sets the policy applied to EvaluateMany results.
func WithFilter(f aggregator.Filter) Option { return func(s *Scanner) { s.filter = f } }

// WithMetrics attaches Prometheus instrumentation.
func WithMetrics(m *metrics.Metrics) Option { return func(s *Scanner) { s.prom = m } }

// New creates a Scanner.
func New(cfg Config, src model.CandleSource, eval Evaluator, opts ...Option) *Scanner {
	cfg.defaults()
	s := &Scanner{cfg: cfg, src: src, eval: eval}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// EvaluateOne fetches history for symbol and scores it.
func (s *Scanner) EvaluateOne(ctx context.Context, symbol string) (model.TradingSignal, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	candles, err := s.src.Candles(ctx, symbol, s.cfg.Interval, s.cfg.Limit)
	if err != nil {
		s.prom.ObserveEvaluation(0, "fetch", err)
		return model.TradingSignal{}, fmt.Errorf("fetch %s: %w", symbol, err)
	}

	var price float64
	if s.prices != nil {
		price, err = s.prices.LastPrice(ctx, symbol)
		if err != nil {
			log.Printf("[scanner] %s: live price unavailable, using last close: %v", symbol, err)
		}
	}
	if price <= 0 {
		if last, ok := candles.Last(); ok {
			price = last.Close
		}
	}

	start := time.Now()
	sig, err := s.eval.EvaluateAt(symbol, candles, price)
	s.prom.ObserveEvaluation(time.Since(start), reason(err), err)
	if err != nil {
		return model.TradingSignal{}, err
	}
	s.prom.ObserveSignal(sig)
	return sig, nil
}

// EvaluateMany scores every symbol concurrently. Results keep the input order;
// symbols that fail or fall below the gate are logged and skipped. The
// configured filter is applied last. The only error returned is ctx's.
func (s *Scanner) EvaluateMany(ctx context.Context, symbols []string) ([]model.TradingSignal, error) {
	start := time.Now()
	results := make([]*model.TradingSignal, len(symbols))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Concurrency)
	for i, sym := range symbols {
		i, sym := i, sym
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			sig, err := s.EvaluateOne(gctx, sym)
			if err != nil {
				log.Printf("[scanner] skipping %s: %v", sym, err)
				return nil
			}
			results[i] = &sig
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := make([]model.TradingSignal, 0, len(symbols))
	for _, r := range results {
		if r != nil {
			out = append(out, *r)
		}
	}
	skipped := len(symbols) - len(out)
	out = aggregator.Apply(s.filter, out)

	s.prom.ObserveScan(time.Since(start), len(symbols), skipped, len(out))
	log.Printf("[scanner] scanned %d symbols in %s: %d skipped, %d kept",
		len(symbols), time.Since(start).Round(time.Millisecond), skipped, len(out))
	return out, nil
}

// Sink receives the results of a scheduled scan.
type Sink func(ctx context.Context, signals []model.TradingSignal)

// Schedule runs EvaluateMany on the cron spec (e.g. "@every 5m" or
// "0 0 * * * *" with seconds) until ctx is cancelled. symbols is called before
// every run so the universe can change between scans. Overlapping runs are
// skipped.
func (s *Scanner) Schedule(ctx context.Context, spec string, symbols func() []string, sink Sink) error {
	c := cron.New(
		cron.WithSeconds(),
		cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)),
	)
	if _, err := c.AddFunc(spec, func() {
		signals, err := s.EvaluateMany(ctx, symbols())
		if err != nil {
			log.Printf("[scanner] scheduled scan aborted: %v", err)
			return
		}
		sink(ctx, signals)
	}); err != nil {
		return fmt.Errorf("register scan %q: %w", spec, err)
	}

	c.Start()
	log.Printf("[scanner] scheduled scan %q", spec)
	go func() {
		<-ctx.Done()
		<-c.Stop().Done()
		log.Println("[scanner] scheduler stopped")
	}()
	return nil
}

func reason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, aggregator.ErrInsufficientData):
		return "insufficient_data"
	case errors.Is(err, model.ErrMalformedCandle), errors.Is(err, model.ErrUnorderedSeries):
		return "malformed"
	case errors.Is(err, aggregator.ErrInvalidPrice):
		return "invalid_price"
	default:
		return "other"
	}
}
