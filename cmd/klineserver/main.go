// cmd/klineserver serves simulated klines on the exchange combined-stream
// endpoint so the signal engine can run without network access.
//
// Connect with ws://localhost:9001/stream?streams=btcusdt@kline_1h/ethusdt@kline_1h
// and point BINANCE_WS_URL at ws://localhost:9001.
//
// Each simulated bar is labelled one interval after the previous one but
// lasts only KLINE_BAR_MS of wall time, so hours of market pass in minutes.
//
// Config (env vars):
//
//	KLINE_SERVER_ADDR   listen address (default ":9001")
//	KLINE_SYMBOLS       comma-separated symbols (default "BTCUSDT,ETHUSDT")
//	KLINE_INTERVAL      interval label (default "1h")
//	KLINE_BAR_MS        wall-clock length of one bar (default 5000)
//	KLINE_UPDATES       forming updates sent per bar (default 4)
package main

import (
	"encoding/json"
	"fmt"
	"log"
	"math"
	"math/rand"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"signal-enginev1/config"
	"signal-enginev1/internal/marketdata/stream"
	"signal-enginev1/internal/model"
)

var intervalMs = map[string]int64{
	"1m": 60_000, "5m": 300_000, "15m": 900_000, "30m": 1_800_000,
	"1h": 3_600_000, "4h": 14_400_000, "1d": 86_400_000,
}

// ─── Hub ──────────────────────────────────────────────────────────────────────

type client struct {
	ch      chan []byte
	streams map[string]bool
}

type hub struct {
	mu      sync.RWMutex
	clients map[*websocket.Conn]*client
}

func newHub() *hub {
	return &hub{clients: make(map[*websocket.Conn]*client)}
}

func (h *hub) register(conn *websocket.Conn, streams map[string]bool) chan []byte {
	c := &client{ch: make(chan []byte, 256), streams: streams}
	h.mu.Lock()
	h.clients[conn] = c
	h.mu.Unlock()
	return c.ch
}

func (h *hub) unregister(conn *websocket.Conn) {
	h.mu.Lock()
	if c, ok := h.clients[conn]; ok {
		close(c.ch)
		delete(h.clients, conn)
	}
	h.mu.Unlock()
}

// broadcast sends msg to every client subscribed to streamName.
func (h *hub) broadcast(streamName string, msg []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		if !c.streams[streamName] {
			continue
		}
		select {
		case c.ch <- msg:
		default: // slow client, drop the update
		}
	}
}

// ─── WebSocket handler ────────────────────────────────────────────────────────

var upgrader = websocket.Upgrader{
	CheckOrigin: func(_ *http.Request) bool { return true },
}

// parseStreams reads "btcusdt@kline_1h/ethusdt@kline_1h" into a set.
func parseStreams(q string) map[string]bool {
	set := make(map[string]bool)
	for _, s := range strings.Split(q, "/") {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			set[s] = true
		}
	}
	return set
}

func streamHandler(h *hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		streams := parseStreams(r.URL.Query().Get("streams"))
		if len(streams) == 0 {
			http.Error(w, "streams query parameter is required", http.StatusBadRequest)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("[klineserver] upgrade error: %v", err)
			return
		}
		log.Printf("[klineserver] client connected: %s (%d streams)", r.RemoteAddr, len(streams))

		ch := h.register(conn, streams)
		defer func() {
			h.unregister(conn)
			conn.Close()
			log.Printf("[klineserver] client disconnected: %s", r.RemoteAddr)
		}()

		// Reader: detect client close.
		go func() {
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					h.unregister(conn)
					return
				}
			}
		}()

		for msg := range ch {
			conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		}
	}
}

// ─── Kline generator ─────────────────────────────────────────────────────────

// instrument holds per-symbol simulation state.
type instrument struct {
	symbol string
	price  float64
	bar    model.Candle
}

// walk applies a small random move (±0.4%) to price.
func walk(rng *rand.Rand, price float64) float64 {
	next := price * (1 + (rng.Float64()*0.8-0.4)/100)
	return math.Max(next, 0.0001)
}

// step advances the forming bar by one price update.
func (in *instrument) step(rng *rand.Rand) {
	in.price = walk(rng, in.price)
	in.bar.Close = in.price
	in.bar.High = math.Max(in.bar.High, in.price)
	in.bar.Low = math.Min(in.bar.Low, in.price)
	in.bar.Volume += 1 + rng.Float64()*10
}

// open starts a new bar at ts from the current price.
func (in *instrument) open(ts int64) {
	in.bar = model.Candle{Symbol: in.symbol, TS: ts, Open: in.price, High: in.price, Low: in.price, Close: in.price}
}

type generator struct {
	h           *hub
	instruments []*instrument
	interval    string
	step        int64 // label distance between bars, ms
	updates     int
	rng         *rand.Rand
}

func (g *generator) send(in *instrument, closed bool) {
	name := strings.ToLower(in.symbol) + "@kline_" + g.interval
	ev := stream.NewKlineEvent(in.bar, g.interval, in.bar.TS+g.step-1, time.Now().UnixMilli(), closed)
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	msg, err := json.Marshal(stream.Envelope{Stream: name, Data: data})
	if err != nil {
		return
	}
	g.h.broadcast(name, msg)
}

func (g *generator) run(barDur time.Duration) {
	tick := barDur / time.Duration(g.updates+1)
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	ts := time.Now().UnixMilli() / g.step * g.step
	for _, in := range g.instruments {
		in.open(ts)
	}

	n := 0
	for range ticker.C {
		n++
		for _, in := range g.instruments {
			in.step(g.rng)
			g.send(in, n > g.updates)
		}
		if n > g.updates {
			n = 0
			ts += g.step
			for _, in := range g.instruments {
				in.open(ts)
			}
		}
	}
}

// ─── main ─────────────────────────────────────────────────────────────────────

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	log.Println("[klineserver] starting simulated kline server...")

	addr := envOrDefault("KLINE_SERVER_ADDR", ":9001")
	symbols := config.SplitList(envOrDefault("KLINE_SYMBOLS", "BTCUSDT,ETHUSDT"))
	interval := envOrDefault("KLINE_INTERVAL", "1h")
	barMs := envIntOrDefault("KLINE_BAR_MS", 5000)
	updates := envIntOrDefault("KLINE_UPDATES", 4)

	step, ok := intervalMs[interval]
	if !ok {
		log.Fatalf("[klineserver] unsupported KLINE_INTERVAL %q", interval)
	}
	if len(symbols) == 0 {
		log.Fatalf("[klineserver] no symbols configured via KLINE_SYMBOLS")
	}
	if updates < 0 {
		updates = 0
	}

	h := newHub()
	g := &generator{
		h:           h,
		instruments: newInstruments(symbols),
		interval:    interval,
		step:        step,
		updates:     updates,
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	go g.run(time.Duration(barMs) * time.Millisecond)

	http.HandleFunc("/stream", streamHandler(h))
	http.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintln(w, `{"status":"ok","service":"klineserver"}`)
	})

	log.Printf("[klineserver] symbols: %v, interval: %s, bar every %dms", symbols, interval, barMs)
	log.Printf("[klineserver] ✅ listening on %s  (WebSocket: ws://localhost%s/stream?streams=...)", addr, addr)
	if err := http.ListenAndServe(addr, nil); err != nil {
		log.Fatalf("[klineserver] server error: %v", err)
	}
}

// ─── helpers ──────────────────────────────────────────────────────────────────

func newInstruments(symbols []string) []*instrument {
	// Rough starting prices so simulated levels look familiar.
	startPrices := map[string]float64{
		"BTCUSDT": 43000,
		"ETHUSDT": 2300,
		"BNBUSDT": 310,
		"SOLUSDT": 95,
		"XRPUSDT": 0.62,
	}
	out := make([]*instrument, 0, len(symbols))
	for _, s := range symbols {
		p := startPrices[s]
		if p == 0 {
			p = 100
		}
		out = append(out, &instrument{symbol: s, price: p})
	}
	return out
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envIntOrDefault(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
