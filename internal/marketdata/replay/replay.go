// Package replay reads stored candles and emits them at a configurable
// speed, feeding backtests and offline runs through the same pipeline as the
// live stream.
package replay

import (
	"context"
	"log"
	"sort"
	"time"

	"signal-enginev1/internal/model"
)

// Source reads stored history.
type Source interface {
	ReadCandles(ctx context.Context, symbol, interval string, afterTS int64) (model.Series, error)
}

// Replayer replays stored candles at a speed multiplier.
type Replayer struct {
	src Source

	// MaxGap caps the sleep between two candles. Default 5s.
	MaxGap time.Duration
}

// New creates a Replayer.
func New(src Source) *Replayer {
	return &Replayer{src: src, MaxGap: 5 * time.Second}
}

// Load returns the stored candles for symbols merged into one timeline.
// Candles with equal TS keep symbol order.
func (r *Replayer) Load(ctx context.Context, symbols []string, interval string, fromTS int64) ([]model.Candle, error) {
	var all []model.Candle
	for _, sym := range symbols {
		s, err := r.src.ReadCandles(ctx, sym, interval, fromTS)
		if err != nil {
			return nil, err
		}
		all = append(all, s...)
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].TS < all[j].TS })
	return all, nil
}

// Run replays candles for symbols into outCh.
// speed controls the playback rate: 1.0 = real-time, 10.0 = 10x, 0 = as fast as possible.
// fromTS filters candles to those after this epoch-ms timestamp (0 = all).
func (r *Replayer) Run(ctx context.Context, symbols []string, interval string, fromTS int64, speed float64, outCh chan<- model.Candle) error {
	candles, err := r.Load(ctx, symbols, interval, fromTS)
	if err != nil {
		return err
	}
	if len(candles) == 0 {
		log.Println("[replay] no candles found")
		return nil
	}

	log.Printf("[replay] loaded %d candles across %d symbols, speed=%.1fx", len(candles), len(symbols), speed)

	var prevTS int64
	emitted := 0
	for i, c := range candles {
		if speed > 0 && i > 0 {
			if gap := time.Duration(c.TS-prevTS) * time.Millisecond; gap > 0 {
				scaled := time.Duration(float64(gap) / speed)
				if r.MaxGap > 0 && scaled > r.MaxGap {
					scaled = r.MaxGap
				}
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(scaled):
				}
			}
		}
		prevTS = c.TS

		select {
		case <-ctx.Done():
			log.Printf("[replay] cancelled after %d candles", emitted)
			return ctx.Err()
		case outCh <- c:
			emitted++
		}
	}

	log.Printf("[replay] completed: %d candles replayed", emitted)
	return nil
}
