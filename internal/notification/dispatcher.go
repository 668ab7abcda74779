package notification

import (
	"context"
	"errors"
	"math"
	"sync"

	"signal-enginev1/internal/model"
)

// Dispatcher sends alerts for actionable signals, suppressing repeats:
// a symbol is only re-alerted when its signal changed materially since
// the last alert.
type Dispatcher struct {
	n Notifier

	// MinConfidence drops signals at or below this confidence.
	MinConfidence float64
	// PriceTolerance is the relative move in target or stop that counts
	// as a change (default 0.0001, i.e. 0.01%).
	PriceTolerance float64

	mu   sync.Mutex
	last map[string]model.TradingSignal
}

// NewDispatcher creates a dispatcher sending through n.
func NewDispatcher(n Notifier) *Dispatcher {
	return &Dispatcher{
		n:              n,
		PriceTolerance: 0.0001,
		last:           make(map[string]model.TradingSignal),
	}
}

// Notify alerts on every new or changed actionable signal and returns how
// many alerts were delivered. A HOLD clears the symbol's history so the
// next BUY or SELL alerts again.
func (d *Dispatcher) Notify(ctx context.Context, signals []model.TradingSignal) (int, error) {
	var (
		sent int
		errs []error
	)
	for _, sig := range signals {
		if !d.shouldSend(sig) {
			continue
		}
		if err := d.n.Send(ctx, SignalAlert(sig)); err != nil {
			errs = append(errs, err)
			d.forget(sig.Symbol)
			continue
		}
		sent++
	}
	return sent, errors.Join(errs...)
}

func (d *Dispatcher) shouldSend(sig model.TradingSignal) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !sig.Actionable() {
		delete(d.last, sig.Symbol)
		return false
	}
	if sig.Confidence <= d.MinConfidence {
		return false
	}
	prev, seen := d.last[sig.Symbol]
	if seen && !d.changed(prev, sig) {
		return false
	}
	d.last[sig.Symbol] = sig
	return true
}

func (d *Dispatcher) forget(symbol string) {
	d.mu.Lock()
	delete(d.last, symbol)
	d.mu.Unlock()
}

// changed reports whether the action flipped or target/stop moved by more
// than PriceTolerance.
func (d *Dispatcher) changed(prev, next model.TradingSignal) bool {
	if prev.Action != next.Action {
		return true
	}
	return moved(prev.TargetPrice, next.TargetPrice, d.PriceTolerance) ||
		moved(prev.StopLoss, next.StopLoss, d.PriceTolerance)
}

func moved(a, b, tol float64) bool {
	if a == 0 {
		return b != 0
	}
	return math.Abs(b-a)/math.Abs(a) > tol
}
