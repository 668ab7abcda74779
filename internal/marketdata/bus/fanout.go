// Package bus distributes closed candles from the feed to every consumer
// (strategy engine, candle store, websocket clients).
package bus

import (
	"context"
	"log"
	"sync"

	"signal-enginev1/internal/model"
)

type subscriber struct {
	name string
	ch   chan model.Candle
}

// FanOut broadcasts candles from a single input channel to N named output
// channels. If an output channel is full, the candle is dropped for that
// consumer so a slow consumer cannot block the pipeline.
type FanOut struct {
	mu      sync.RWMutex
	outputs []subscriber
	bufSize int

	// OnDrop is called when a candle is dropped for a subscriber.
	OnDrop func(subscriber string, c model.Candle)
}

// New creates a FanOut with the given buffer size for output channels.
func New(outputBufferSize int) *FanOut {
	return &FanOut{bufSize: outputBufferSize}
}

// Subscribe creates and returns a new output channel. name labels drops.
func (f *FanOut) Subscribe(name string) <-chan model.Candle {
	ch := make(chan model.Candle, f.bufSize)
	f.mu.Lock()
	f.outputs = append(f.outputs, subscriber{name: name, ch: ch})
	f.mu.Unlock()
	return ch
}

// Run reads from input and fans out to all subscribers. Output channels are
// closed when Run returns. Blocks until ctx is cancelled or input is closed.
func (f *FanOut) Run(ctx context.Context, input <-chan model.Candle) {
	defer func() {
		f.mu.RLock()
		for _, s := range f.outputs {
			close(s.ch)
		}
		f.mu.RUnlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case c, ok := <-input:
			if !ok {
				return
			}
			f.mu.RLock()
			for _, s := range f.outputs {
				select {
				case s.ch <- c:
				default:
					if f.OnDrop != nil {
						f.OnDrop(s.name, c)
					} else {
						log.Printf("[bus] %s full, dropping candle %s", s.name, c.Key())
					}
				}
			}
			f.mu.RUnlock()
		}
	}
}

// ChannelStat is the fill level of one subscriber channel.
type ChannelStat struct {
	Name string
	Len  int
	Cap  int
}

// ChannelStats returns the fill level of each subscriber channel.
func (f *FanOut) ChannelStats() []ChannelStat {
	f.mu.RLock()
	defer f.mu.RUnlock()
	stats := make([]ChannelStat, len(f.outputs))
	for i, s := range f.outputs {
		stats[i] = ChannelStat{Name: s.name, Len: len(s.ch), Cap: cap(s.ch)}
	}
	return stats
}
