// Package ringbuf provides a fixed-capacity sliding window of candles.
// When full, pushing a new candle evicts the oldest one.
package ringbuf

import (
	"sync"

	"signal-enginev1/internal/model"
)

// Window is a circular buffer of the most recent candles for one symbol.
// It is safe for concurrent use.
type Window struct {
	mu    sync.RWMutex
	buf   []model.Candle
	start int // index of the oldest candle
	n     int

	evicted  uint64
	rejected uint64
}

// New creates a window holding at most capacity candles. Minimum capacity is 1.
func New(capacity int) *Window {
	if capacity < 1 {
		capacity = 1
	}
	return &Window{buf: make([]model.Candle, capacity)}
}

// Push appends c. A candle with the same TS as the newest one replaces it
// (exchanges resend the closing update); an older TS is rejected and Push
// returns false.
func (w *Window) Push(c model.Candle) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.n > 0 {
		lastIdx := (w.start + w.n - 1) % len(w.buf)
		last := w.buf[lastIdx]
		switch {
		case c.TS == last.TS:
			w.buf[lastIdx] = c
			return true
		case c.TS < last.TS:
			w.rejected++
			return false
		}
	}

	if w.n < len(w.buf) {
		w.buf[(w.start+w.n)%len(w.buf)] = c
		w.n++
		return true
	}
	// full: overwrite oldest
	w.buf[w.start] = c
	w.start = (w.start + 1) % len(w.buf)
	w.evicted++
	return true
}

// Snapshot returns a copy of the window, oldest first.
func (w *Window) Snapshot() model.Series {
	w.mu.RLock()
	defer w.mu.RUnlock()

	out := make(model.Series, w.n)
	for i := 0; i < w.n; i++ {
		out[i] = w.buf[(w.start+i)%len(w.buf)]
	}
	return out
}

// Last returns the newest candle.
func (w *Window) Last() (model.Candle, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.n == 0 {
		return model.Candle{}, false
	}
	return w.buf[(w.start+w.n-1)%len(w.buf)], true
}

// Len returns the number of candles held.
func (w *Window) Len() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.n
}

// Cap returns the window capacity.
func (w *Window) Cap() int { return len(w.buf) }

// Evicted returns how many candles were pushed out by newer ones.
func (w *Window) Evicted() uint64 {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.evicted
}

// Rejected returns how many out-of-order candles were refused.
func (w *Window) Rejected() uint64 {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.rejected
}
