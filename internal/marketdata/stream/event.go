package stream

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"signal-enginev1/internal/model"
)

// ErrNotKline is returned for stream payloads that are not kline events
// (subscription acks, other event types).
var ErrNotKline = errors.New("not a kline event")

// Envelope wraps events on the combined-stream endpoint (/stream?streams=...).
type Envelope struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

// KlineEvent is the exchange "kline" event.
type KlineEvent struct {
	EventType string    `json:"e"`
	EventTime int64     `json:"E"`
	Symbol    string    `json:"s"`
	Kline     KlineBody `json:"k"`
}

// KlineBody carries the bar itself. Closed is true on the final update of the bar.
type KlineBody struct {
	StartTime int64           `json:"t"`
	CloseTime int64           `json:"T"`
	Symbol    string          `json:"s"`
	Interval  string          `json:"i"`
	Open      decimal.Decimal `json:"o"`
	Close     decimal.Decimal `json:"c"`
	High      decimal.Decimal `json:"h"`
	Low       decimal.Decimal `json:"l"`
	Volume    decimal.Decimal `json:"v"`
	Trades    int64           `json:"n"`
	Closed    bool            `json:"x"`
}

// NewKlineEvent builds the event for c. Used by the simulated stream server.
func NewKlineEvent(c model.Candle, interval string, closeTime, eventTime int64, closed bool) KlineEvent {
	return KlineEvent{
		EventType: "kline",
		EventTime: eventTime,
		Symbol:    c.Symbol,
		Kline: KlineBody{
			StartTime: c.TS,
			CloseTime: closeTime,
			Symbol:    c.Symbol,
			Interval:  interval,
			Open:      decimal.NewFromFloat(c.Open),
			Close:     decimal.NewFromFloat(c.Close),
			High:      decimal.NewFromFloat(c.High),
			Low:       decimal.NewFromFloat(c.Low),
			Volume:    decimal.NewFromFloat(c.Volume),
			Closed:    closed,
		},
	}
}

// Candle converts the event body. TS is the bar start time.
func (e KlineEvent) Candle() model.Candle {
	sym := e.Kline.Symbol
	if sym == "" {
		sym = e.Symbol
	}
	return model.Candle{
		Symbol: sym,
		TS:     e.Kline.StartTime,
		Open:   e.Kline.Open.InexactFloat64(),
		High:   e.Kline.High.InexactFloat64(),
		Low:    e.Kline.Low.InexactFloat64(),
		Close:  e.Kline.Close.InexactFloat64(),
		Volume: e.Kline.Volume.InexactFloat64(),
	}
}

// ParseKline decodes a raw or combined-stream message into a candle.
// closed reports whether the bar is final.
func ParseKline(raw []byte) (c model.Candle, closed bool, err error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err == nil && len(env.Data) > 0 {
		raw = env.Data
	}

	var ev KlineEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		return model.Candle{}, false, fmt.Errorf("decode kline: %w", err)
	}
	if ev.EventType != "kline" {
		return model.Candle{}, false, ErrNotKline
	}
	c = ev.Candle()
	if err := c.Validate(); err != nil {
		return model.Candle{}, false, err
	}
	return c, ev.Kline.Closed, nil
}

// StreamURL builds the combined-stream URL for symbols at interval,
// e.g. wss://stream.binance.com:9443/stream?streams=btcusdt@kline_1h/ethusdt@kline_1h.
func StreamURL(base string, symbols []string, interval string) string {
	names := make([]string, 0, len(symbols))
	for _, s := range symbols {
		names = append(names, strings.ToLower(s)+"@kline_"+interval)
	}
	return strings.TrimRight(base, "/") + "/stream?streams=" + strings.Join(names, "/")
}
