package main

import (
	"encoding/json"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signal-enginev1/internal/marketdata/stream"
)

func TestParseStreams(t *testing.T) {
	got := parseStreams("BTCUSDT@kline_1h/ethusdt@kline_1h//")
	assert.Equal(t, map[string]bool{"btcusdt@kline_1h": true, "ethusdt@kline_1h": true}, got)
	assert.Empty(t, parseStreams(""))
}

func TestInstrument_BarsStayValid(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	in := newInstruments([]string{"BTCUSDT"})[0]
	in.open(0)
	for i := 0; i < 500; i++ {
		in.step(rng)
		require.NoError(t, in.bar.Validate(), "step %d", i)
	}
}

func TestStreamHandler_FiltersByStream(t *testing.T) {
	h := newHub()
	srv := httptest.NewServer(streamHandler(h))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/stream?streams=btcusdt@kline_1h"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	g := &generator{
		h:           h,
		instruments: newInstruments([]string{"ETHUSDT", "BTCUSDT"}),
		interval:    "1h",
		step:        intervalMs["1h"],
		updates:     0,
		rng:         rand.New(rand.NewSource(2)),
	}
	for _, in := range g.instruments {
		in.open(1_700_000_000_000 / g.step * g.step)
		in.step(g.rng)
	}

	// Registration happens after the upgrade; retry until the hub sees it.
	require.Eventually(t, func() bool {
		h.mu.RLock()
		defer h.mu.RUnlock()
		return len(h.clients) == 1
	}, time.Second, 10*time.Millisecond)

	for _, in := range g.instruments {
		g.send(in, true)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)

	var env stream.Envelope
	require.NoError(t, json.Unmarshal(msg, &env))
	assert.Equal(t, "btcusdt@kline_1h", env.Stream)

	c, closed, err := stream.ParseKline(msg)
	require.NoError(t, err)
	assert.True(t, closed)
	assert.Equal(t, "BTCUSDT", c.Symbol)
}
