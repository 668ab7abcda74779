package redis

import (
	"context"
	"log"
	"sync"

	"signal-enginev1/internal/model"
)

// BufferedWriter wraps a signal writer with a circuit breaker.
// Signals that fail or arrive while the circuit is open are kept in a
// bounded local buffer and replayed when the circuit closes again.
type BufferedWriter struct {
	writer model.SignalWriter
	cb     *CircuitBreaker
	ctx    context.Context

	mu     sync.Mutex
	buffer []model.TradingSignal
	maxBuf int // oldest buffered signal is dropped beyond this (default 10000)

	// Callbacks
	OnBuffer func()          // called when a signal is buffered (for metrics)
	OnFlush  func(count int) // called after flushing buffered signals
}

// NewBufferedWriter creates a BufferedWriter around w. ctx bounds the
// background flushes.
func NewBufferedWriter(ctx context.Context, w model.SignalWriter, cb *CircuitBreaker, maxBufferSize int) *BufferedWriter {
	if maxBufferSize <= 0 {
		maxBufferSize = 10000
	}
	bw := &BufferedWriter{
		writer: w,
		cb:     cb,
		ctx:    ctx,
		buffer: make([]model.TradingSignal, 0, 64),
		maxBuf: maxBufferSize,
	}

	prevCallback := cb.OnStateChange
	cb.OnStateChange = func(from, to State) {
		if prevCallback != nil {
			prevCallback(from, to)
		}
		if to == StateClosed {
			go bw.flush()
		}
	}

	return bw
}

// WriteSignals writes through the circuit breaker. An open circuit
// buffers the batch and returns nil; a failed write is buffered too and
// its error returned.
func (bw *BufferedWriter) WriteSignals(ctx context.Context, signals []model.TradingSignal) error {
	if len(signals) == 0 {
		return nil
	}
	err := bw.cb.Execute(func() error {
		return bw.writer.WriteSignals(ctx, signals)
	})
	switch {
	case err == nil:
		return nil
	case err == ErrCircuitOpen:
		bw.bufferSignals(signals)
		return nil
	default:
		bw.bufferSignals(signals)
		return err
	}
}

func (bw *BufferedWriter) bufferSignals(signals []model.TradingSignal) {
	bw.mu.Lock()
	defer bw.mu.Unlock()

	for _, sig := range signals {
		if len(bw.buffer) >= bw.maxBuf {
			bw.buffer = bw.buffer[1:]
		}
		bw.buffer = append(bw.buffer, sig)
		if bw.OnBuffer != nil {
			bw.OnBuffer()
		}
	}
}

// flush replays buffered signals through the underlying writer.
func (bw *BufferedWriter) flush() {
	bw.mu.Lock()
	if len(bw.buffer) == 0 {
		bw.mu.Unlock()
		return
	}
	toFlush := bw.buffer
	bw.buffer = make([]model.TradingSignal, 0, 64)
	bw.mu.Unlock()

	if err := bw.writer.WriteSignals(bw.ctx, toFlush); err != nil {
		log.Printf("[buffered-writer] flush of %d signals failed: %v", len(toFlush), err)
		bw.bufferSignals(toFlush)
		return
	}

	log.Printf("[buffered-writer] flushed %d buffered signals", len(toFlush))
	if bw.OnFlush != nil {
		bw.OnFlush(len(toFlush))
	}
}

// PendingCount returns the number of buffered signals waiting to be flushed.
func (bw *BufferedWriter) PendingCount() int {
	bw.mu.Lock()
	defer bw.mu.Unlock()
	return len(bw.buffer)
}

// Breaker returns the circuit breaker guarding the writer.
func (bw *BufferedWriter) Breaker() *CircuitBreaker {
	return bw.cb
}
