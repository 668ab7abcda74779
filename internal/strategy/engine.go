// Package strategy runs the signal aggregator over a live candle feed.
//
// The Engine keeps a bounded window per symbol. Every closed candle is pushed
// into its window and, once the window is past the aggregator's gate, the
// window is evaluated and the resulting TradingSignal emitted.
package strategy

import (
	"context"
	"errors"
	"log"
	"sync"
	"sync/atomic"

	"signal-enginev1/internal/aggregator"
	"signal-enginev1/internal/model"
	"signal-enginev1/internal/ringbuf"
)

// Evaluator turns a candle series into a signal.
type Evaluator interface {
	Evaluate(symbol string, candles model.Series) (model.TradingSignal, error)
}

// Engine routes closed candles to per-symbol windows and evaluates them.
type Engine struct {
	eval     Evaluator
	filter   aggregator.Filter
	capacity int

	mu      sync.Mutex
	windows map[string]*ringbuf.Window

	signalCh chan model.TradingSignal
	dropped  atomic.Uint64
	failed   atomic.Uint64

	// OnSignal is called for every emitted signal (e.g. metrics).
	OnSignal func(sig model.TradingSignal)
	// OnDrop is called when the signal channel is full.
	OnDrop func(sig model.TradingSignal)
}

// NewEngine creates an engine. windowSize bounds the per-symbol history and
// should exceed aggregator.MinBars.
func NewEngine(eval Evaluator, windowSize, signalBufferSize int) *Engine {
	if windowSize <= aggregator.MinBars {
		windowSize = aggregator.MaxSeriesLen
	}
	return &Engine{
		eval:     eval,
		capacity: windowSize,
		windows:  make(map[string]*ringbuf.Window),
		signalCh: make(chan model.TradingSignal, signalBufferSize),
	}
}

// SetFilter restricts which signals are emitted. nil emits everything.
func (e *Engine) SetFilter(f aggregator.Filter) { e.filter = f }

// Signals returns the channel of emitted signals. It is closed when Run returns.
func (e *Engine) Signals() <-chan model.TradingSignal {
	return e.signalCh
}

// Dropped returns the number of signals dropped because the channel was full.
func (e *Engine) Dropped() uint64 { return e.dropped.Load() }

// Failed returns the number of evaluations that returned an error.
func (e *Engine) Failed() uint64 { return e.failed.Load() }

// Seed preloads history for a symbol, typically from the candle store at startup.
func (e *Engine) Seed(symbol string, history model.Series) {
	w := e.window(symbol)
	for _, c := range history.Tail(e.capacity) {
		w.Push(c)
	}
}

// Window returns a snapshot of the current history for symbol.
func (e *Engine) Window(symbol string) model.Series {
	e.mu.Lock()
	w, ok := e.windows[symbol]
	e.mu.Unlock()
	if !ok {
		return nil
	}
	return w.Snapshot()
}

func (e *Engine) window(symbol string) *ringbuf.Window {
	e.mu.Lock()
	defer e.mu.Unlock()
	w, ok := e.windows[symbol]
	if !ok {
		w = ringbuf.New(e.capacity)
		e.windows[symbol] = w
	}
	return w
}

// Run consumes closed candles until ctx is cancelled or candleCh is closed.
func (e *Engine) Run(ctx context.Context, candleCh <-chan model.Candle) {
	defer close(e.signalCh)
	for {
		select {
		case <-ctx.Done():
			return
		case c, ok := <-candleCh:
			if !ok {
				return
			}
			if sig, ok := e.OnCandle(c); ok {
				e.emit(sig)
			}
		}
	}
}

// OnCandle pushes c into its window and evaluates the window when it is past
// the gate. ok is false when no signal was produced.
func (e *Engine) OnCandle(c model.Candle) (model.TradingSignal, bool) {
	if err := c.Validate(); err != nil {
		log.Printf("[strategy] dropping candle: %v", err)
		return model.TradingSignal{}, false
	}
	w := e.window(c.Symbol)
	if !w.Push(c) {
		return model.TradingSignal{}, false
	}
	if w.Len() <= aggregator.MinBars {
		return model.TradingSignal{}, false
	}

	sig, err := e.eval.Evaluate(c.Symbol, w.Snapshot())
	if err != nil {
		if !errors.Is(err, aggregator.ErrInsufficientData) {
			e.failed.Add(1)
			log.Printf("[strategy] evaluate %s: %v", c.Symbol, err)
		}
		return model.TradingSignal{}, false
	}
	if e.filter != nil && !e.filter.Keep(sig) {
		return model.TradingSignal{}, false
	}
	return sig, true
}

func (e *Engine) emit(sig model.TradingSignal) {
	if e.OnSignal != nil {
		e.OnSignal(sig)
	}
	select {
	case e.signalCh <- sig:
	default:
		e.dropped.Add(1)
		if e.OnDrop != nil {
			e.OnDrop(sig)
		}
	}
}
