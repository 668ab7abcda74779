// Package push streams published trading signals to WebSocket clients.
//
// Server messages are envelopes
//
//	{"type":"signal","symbol":"BTCUSDT","seq":7,"ts":"...","data":{...}}
//
// with a per-symbol seq. Clients send
//
//	{"type":"SUBSCRIBE","symbols":["BTCUSDT"],"last_seq":{"BTCUSDT":5}}
//	{"type":"UNSUBSCRIBE","symbols":["BTCUSDT"]}
//	{"ping":1700000000000}
//
// and receive the missed envelopes (or the latest signal, flagged
// "initial") for every newly subscribed symbol.
package push

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"signal-enginev1/internal/model"
)

const defaultReplaySize = 200

type latestEntry struct {
	seq  int64
	data []byte // signal JSON
	ts   time.Time
}

// Hub fans published signals out to WebSocket clients.
type Hub struct {
	mu         sync.RWMutex
	clients    map[*Client]struct{}
	latest     map[string]latestEntry
	seqs       map[string]int64
	replays    map[string]*ReplayBuffer
	replaySize int

	upgrader websocket.Upgrader

	// OnDrop is called when a slow client misses an envelope.
	OnDrop func()
}

// NewHub creates a hub keeping replaySize envelopes per symbol.
func NewHub(replaySize int) *Hub {
	if replaySize <= 0 {
		replaySize = defaultReplaySize
	}
	return &Hub{
		clients:    make(map[*Client]struct{}),
		latest:     make(map[string]latestEntry),
		seqs:       make(map[string]int64),
		replays:    make(map[string]*ReplayBuffer),
		replaySize: replaySize,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(_ *http.Request) bool { return true },
		},
	}
}

// WriteSignals broadcasts every signal to the clients subscribed to its
// symbol. It never fails; it is shaped like a signal sink.
func (h *Hub) WriteSignals(_ context.Context, signals []model.TradingSignal) error {
	for _, sig := range signals {
		h.broadcast(sig)
	}
	return nil
}

func (h *Hub) broadcast(sig model.TradingSignal) {
	data, err := json.Marshal(sig)
	if err != nil {
		log.Printf("[push] encode %s: %v", sig.Symbol, err)
		return
	}
	now := time.Now().UTC()

	h.mu.Lock()
	h.seqs[sig.Symbol]++
	seq := h.seqs[sig.Symbol]
	h.latest[sig.Symbol] = latestEntry{seq: seq, data: data, ts: now}
	rb, ok := h.replays[sig.Symbol]
	if !ok {
		rb = NewReplayBuffer(h.replaySize)
		h.replays[sig.Symbol] = rb
	}
	h.mu.Unlock()

	env := envelope(sig.Symbol, seq, data, now, false)
	rb.Push(seq, env)

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if c.wants(sig.Symbol) {
			h.enqueue(c, env)
		}
	}
}

// envelope hand-builds the message JSON; symbol is an exchange symbol and
// needs no escaping.
func envelope(symbol string, seq int64, data []byte, ts time.Time, initial bool) []byte {
	buf := make([]byte, 0, len(symbol)+len(data)+112)
	buf = append(buf, `{"type":"signal","symbol":"`...)
	buf = append(buf, symbol...)
	buf = append(buf, `","seq":`...)
	buf = strconv.AppendInt(buf, seq, 10)
	buf = append(buf, `,"ts":"`...)
	buf = ts.AppendFormat(buf, time.RFC3339Nano)
	buf = append(buf, `","data":`...)
	buf = append(buf, data...)
	if initial {
		buf = append(buf, `,"initial":true`...)
	}
	buf = append(buf, '}')
	return buf
}

// enqueue must be called with h.mu held (read or write).
func (h *Hub) enqueue(c *Client, msg []byte) {
	select {
	case c.send <- msg:
	default:
		if h.OnDrop != nil {
			h.OnDrop()
		}
	}
}

// catchUp queues, for each symbol, the envelopes after lastSeq[symbol] or,
// when the replay buffer cannot cover the gap, the latest signal marked
// initial. An empty symbols list means every symbol seen so far.
func (h *Hub) catchUp(c *Client, symbols []string, lastSeq map[string]int64) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if _, ok := h.clients[c]; !ok {
		return
	}

	if len(symbols) == 0 {
		for sym := range h.latest {
			symbols = append(symbols, sym)
		}
	}
	for _, sym := range symbols {
		entry, ok := h.latest[sym]
		if !ok {
			continue
		}
		last := lastSeq[sym]
		if last >= entry.seq {
			continue
		}
		if last > 0 {
			if missed, complete := h.replays[sym].Since(last); complete {
				for _, env := range missed {
					h.enqueue(c, env)
				}
				continue
			}
		}
		h.enqueue(c, envelope(sym, entry.seq, entry.data, entry.ts, true))
	}
}

// Seq returns the current sequence number of symbol.
func (h *Hub) Seq(symbol string) int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.seqs[symbol]
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeHTTP upgrades the request and registers the client. The optional
// symbols query parameter ("BTCUSDT,ETHUSDT") subscribes immediately.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[push] upgrade error: %v", err)
		return
	}

	c := newClient(h, conn)
	var initial []string
	for _, s := range strings.Split(r.URL.Query().Get("symbols"), ",") {
		if s = strings.ToUpper(strings.TrimSpace(s)); s != "" {
			initial = append(initial, s)
		}
	}
	c.subscribe(initial)

	h.mu.Lock()
	h.clients[c] = struct{}{}
	count := len(h.clients)
	h.mu.Unlock()
	log.Printf("[push] client connected from %s (%d total)", r.RemoteAddr, count)

	go c.writePump()
	go c.readPump()
	h.catchUp(c, initial, nil)
}

func (h *Hub) remove(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}
