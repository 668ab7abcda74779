package push

import (
	"encoding/json"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
)

// Client is one WebSocket peer.
type Client struct {
	conn *websocket.Conn
	send chan []byte
	hub  *Hub

	mu      sync.RWMutex
	symbols map[string]bool // empty: every symbol
}

type clientMsg struct {
	Type    string           `json:"type"`
	Symbols []string         `json:"symbols"`
	LastSeq map[string]int64 `json:"last_seq"`
	Ping    int64            `json:"ping"`
}

func newClient(h *Hub, conn *websocket.Conn) *Client {
	return &Client{
		conn:    conn,
		send:    make(chan []byte, 256),
		hub:     h,
		symbols: make(map[string]bool),
	}
}

func (c *Client) wants(symbol string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.symbols) == 0 || c.symbols[symbol]
}

func (c *Client) subscribe(symbols []string) {
	c.mu.Lock()
	for _, s := range symbols {
		c.symbols[s] = true
	}
	c.mu.Unlock()
}

func (c *Client) unsubscribe(symbols []string) {
	c.mu.Lock()
	for _, s := range symbols {
		delete(c.symbols, s)
	}
	c.mu.Unlock()
}

// writePump coalesces queued envelopes into one frame, newline separated,
// and pings the peer every pingPeriod.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(msg)
			for i, n := 0, len(c.send); i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.send)
			}
			if err := w.Close(); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.remove(c)
		c.conn.Close()
		log.Println("[push] client disconnected")
	}()

	c.conn.SetReadLimit(4096)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var msg clientMsg
		if json.Unmarshal(raw, &msg) != nil {
			continue
		}
		symbols := normalize(msg.Symbols)

		switch strings.ToUpper(msg.Type) {
		case "SUBSCRIBE":
			c.subscribe(symbols)
			c.hub.catchUp(c, symbols, upperKeys(msg.LastSeq))
		case "UNSUBSCRIBE":
			c.unsubscribe(symbols)
		default:
			if msg.Ping > 0 {
				pong, _ := json.Marshal(map[string]any{
					"type":      "pong",
					"ping":      msg.Ping,
					"server_ts": time.Now().UnixMilli(),
				})
				c.hub.mu.RLock()
				if _, ok := c.hub.clients[c]; ok {
					c.hub.enqueue(c, pong)
				}
				c.hub.mu.RUnlock()
			}
		}
	}
}

func normalize(symbols []string) []string {
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		if s = strings.ToUpper(strings.TrimSpace(s)); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func upperKeys(m map[string]int64) map[string]int64 {
	out := make(map[string]int64, len(m))
	for k, v := range m {
		out[strings.ToUpper(k)] = v
	}
	return out
}
