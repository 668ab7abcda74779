// Package execution turns actionable trading signals into orders.
//
// The Executor receives signals from the scanner or the live engine and
// hands MARKET entries (plus an optional protective stop) to an
// OrderPlacer: the PaperPlacer by default, the exchange gateway when live
// trading is enabled. Every placement attempt is journaled.
package execution

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"signal-enginev1/internal/metrics"
	"signal-enginev1/internal/model"

	"github.com/google/uuid"
)

// ErrNotActionable is returned by Execute for HOLD signals.
var ErrNotActionable = errors.New("signal is not actionable")

// Config controls how signals become orders.
type Config struct {
	Quantity      float64       // base-asset quantity per entry
	PlaceStop     bool          // also place an opposite-side STOP_LOSS at the signal stop
	MinConfidence float64       // signals at or below are ignored
	Cooldown      time.Duration // same-action re-entry delay per symbol; 0 waits for an action change
}

// OrderResult is the outcome of one placement attempt.
type OrderResult struct {
	Signal   model.TradingSignal  `json:"signal"`
	Request  model.OrderRequest   `json:"request"`
	Response *model.OrderResponse `json:"response,omitempty"`
	Err      error                `json:"-"`
}

// Status returns the broker status, or ERROR when placement failed.
func (r OrderResult) Status() string {
	if r.Err != nil || r.Response == nil {
		return "ERROR"
	}
	return string(r.Response.Status)
}

// Recorder persists order results.
type Recorder interface {
	Record(ctx context.Context, r OrderResult) error
}

type entry struct {
	action model.Action
	at     time.Time
}

// Executor places orders for actionable signals.
type Executor struct {
	cfg     Config
	placer  model.OrderPlacer
	journal Recorder
	marks   *MarkBook
	prom    *metrics.Metrics
	now     func() time.Time

	mu   sync.Mutex
	last map[string]entry

	resultCh chan OrderResult
	dropped  atomic.Int64
}

// Option configures an Executor.
type Option func(*Executor)

// WithJournal records every result.
func WithJournal(r Recorder) Option { return func(e *Executor) { e.journal = r } }

// WithMarks updates mb with each signal's price before placing, so a
// paper placer can fill MARKET orders at the evaluated price.
func WithMarks(mb *MarkBook) Option { return func(e *Executor) { e.marks = mb } }

// WithMetrics counts placed orders.
func WithMetrics(m *metrics.Metrics) Option { return func(e *Executor) { e.prom = m } }

// NewExecutor creates an executor sending orders to placer.
func NewExecutor(cfg Config, placer model.OrderPlacer, resultBufferSize int, opts ...Option) *Executor {
	e := &Executor{
		cfg:      cfg,
		placer:   placer,
		now:      time.Now,
		last:     make(map[string]entry),
		resultCh: make(chan OrderResult, resultBufferSize),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Results returns the channel of order results. Results are dropped when
// nobody keeps up with it.
func (e *Executor) Results() <-chan OrderResult {
	return e.resultCh
}

// Dropped returns how many results were not delivered on Results.
func (e *Executor) Dropped() int64 { return e.dropped.Load() }

// Run consumes signals and places orders.
// Blocks until ctx is cancelled or signalCh is closed.
func (e *Executor) Run(ctx context.Context, signalCh <-chan model.TradingSignal) {
	for {
		select {
		case <-ctx.Done():
			return
		case sig, ok := <-signalCh:
			if !ok {
				return
			}
			e.Handle(ctx, []model.TradingSignal{sig})
		}
	}
}

// Handle executes every signal in the batch, logging failures. Its
// signature matches a scanner sink.
func (e *Executor) Handle(ctx context.Context, signals []model.TradingSignal) {
	for _, sig := range signals {
		if _, err := e.Execute(ctx, sig); err != nil && !errors.Is(err, ErrNotActionable) {
			log.Printf("[executor] %s %s: %v", sig.Action, sig.Symbol, err)
		}
	}
}

// Execute places the entry order for sig and, when configured, the
// protective stop. Filtered or repeated signals return no results and a
// nil error.
func (e *Executor) Execute(ctx context.Context, sig model.TradingSignal) ([]OrderResult, error) {
	if !sig.Actionable() {
		return nil, ErrNotActionable
	}
	if e.cfg.Quantity <= 0 {
		return nil, fmt.Errorf("executor: quantity must be positive, got %v", e.cfg.Quantity)
	}
	if sig.Confidence <= e.cfg.MinConfidence {
		return nil, nil
	}
	release, ok := e.claim(sig)
	if !ok {
		return nil, nil
	}
	if e.marks != nil && sig.Price > 0 {
		e.marks.Update(sig.Symbol, sig.Price)
	}

	entryReq := EntryRequest(sig, e.cfg.Quantity)
	entryRes := e.place(ctx, sig, entryReq)
	results := []OrderResult{entryRes}
	if entryRes.Err != nil {
		release()
		return results, entryRes.Err
	}

	if e.cfg.PlaceStop && sig.StopLoss > 0 {
		stopRes := e.place(ctx, sig, StopRequest(sig, e.cfg.Quantity))
		results = append(results, stopRes)
		if stopRes.Err != nil {
			return results, fmt.Errorf("stop order: %w", stopRes.Err)
		}
	}
	return results, nil
}

// EntryRequest builds the MARKET entry for sig.
func EntryRequest(sig model.TradingSignal, qty float64) model.OrderRequest {
	side := model.SideBuy
	if sig.Action == model.ActionSell {
		side = model.SideSell
	}
	return model.OrderRequest{
		Symbol:        sig.Symbol,
		Side:          side,
		Quantity:      qty,
		Type:          model.OrderMarket,
		ClientOrderID: uuid.NewString(),
	}
}

// StopRequest builds the opposite-side STOP_LOSS at the signal stop.
func StopRequest(sig model.TradingSignal, qty float64) model.OrderRequest {
	side := model.SideSell
	if sig.Action == model.ActionSell {
		side = model.SideBuy
	}
	return model.OrderRequest{
		Symbol:        sig.Symbol,
		Side:          side,
		Quantity:      qty,
		Type:          model.OrderStopLoss,
		StopPrice:     sig.StopLoss,
		ClientOrderID: uuid.NewString(),
	}
}

func (e *Executor) place(ctx context.Context, sig model.TradingSignal, req model.OrderRequest) OrderResult {
	resp, err := e.placer.PlaceOrder(ctx, req)
	res := OrderResult{Signal: sig, Request: req, Response: resp, Err: err}

	e.prom.ObserveOrder(string(req.Side), res.Status())
	if err != nil {
		log.Printf("[executor] %s %s %s qty=%g failed: %v", req.Type, req.Side, req.Symbol, req.Quantity, err)
	} else {
		log.Printf("[executor] %s %s %s qty=%g -> %s order=%s price=%g",
			req.Type, req.Side, req.Symbol, req.Quantity, resp.Status, resp.OrderID, resp.Price)
	}

	if e.journal != nil {
		if jerr := e.journal.Record(ctx, res); jerr != nil {
			log.Printf("[executor] journal: %v", jerr)
		}
	}

	select {
	case e.resultCh <- res:
	default:
		e.dropped.Add(1)
	}
	return res
}

// claim reserves sig's symbol for an entry. It fails while the previous
// entry had the same action and is inside the cooldown. The returned
// release undoes the claim after a failed placement, restoring the entry
// it replaced.
func (e *Executor) claim(sig model.TradingSignal) (release func(), ok bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	prev, hadPrev := e.last[sig.Symbol]
	if hadPrev && prev.action == sig.Action {
		if e.cfg.Cooldown <= 0 || now.Sub(prev.at) < e.cfg.Cooldown {
			return nil, false
		}
	}
	mine := entry{action: sig.Action, at: now}
	e.last[sig.Symbol] = mine

	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		if cur, ok := e.last[sig.Symbol]; !ok || cur != mine {
			return // claimed again since
		}
		if hadPrev {
			e.last[sig.Symbol] = prev
		} else {
			delete(e.last, sig.Symbol)
		}
	}, true
}
