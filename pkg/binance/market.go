package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"

	"github.com/shopspring/decimal"
)

// Kline is one bar from /api/v3/klines. Binance sends each bar as a
// heterogeneous JSON array with prices as strings.
type Kline struct {
	OpenTime    int64
	Open        decimal.Decimal
	High        decimal.Decimal
	Low         decimal.Decimal
	Close       decimal.Decimal
	Volume      decimal.Decimal
	CloseTime   int64
	QuoteVolume decimal.Decimal
	Trades      int64
}

// UnmarshalJSON decodes the array form
// [openTime,"open","high","low","close","volume",closeTime,"quoteVolume",trades,...].
func (k *Kline) UnmarshalJSON(b []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	if len(raw) < 9 {
		return fmt.Errorf("kline: expected at least 9 fields, got %d", len(raw))
	}
	ints := []struct {
		dst *int64
		idx int
	}{{&k.OpenTime, 0}, {&k.CloseTime, 6}, {&k.Trades, 8}}
	for _, f := range ints {
		if err := json.Unmarshal(raw[f.idx], f.dst); err != nil {
			return fmt.Errorf("kline field %d: %w", f.idx, err)
		}
	}
	decs := []struct {
		dst *decimal.Decimal
		idx int
	}{{&k.Open, 1}, {&k.High, 2}, {&k.Low, 3}, {&k.Close, 4}, {&k.Volume, 5}, {&k.QuoteVolume, 7}}
	for _, f := range decs {
		if err := f.dst.UnmarshalJSON(raw[f.idx]); err != nil {
			return fmt.Errorf("kline field %d: %w", f.idx, err)
		}
	}
	return nil
}

// Klines returns up to limit bars for symbol at interval (e.g. "1h"), oldest first.
func (c *Client) Klines(ctx context.Context, symbol, interval string, limit int) ([]Kline, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("interval", interval)
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}
	var out []Kline
	if err := c.getJSON(ctx, "api.klines", params, false, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Ticker24h is the rolling 24h statistics for one symbol.
type Ticker24h struct {
	Symbol             string          `json:"symbol"`
	PriceChange        decimal.Decimal `json:"priceChange"`
	PriceChangePercent decimal.Decimal `json:"priceChangePercent"`
	LastPrice          decimal.Decimal `json:"lastPrice"`
	BidPrice           decimal.Decimal `json:"bidPrice"`
	AskPrice           decimal.Decimal `json:"askPrice"`
	HighPrice          decimal.Decimal `json:"highPrice"`
	LowPrice           decimal.Decimal `json:"lowPrice"`
	Volume             decimal.Decimal `json:"volume"`
	QuoteVolume        decimal.Decimal `json:"quoteVolume"`
	CloseTime          int64           `json:"closeTime"`
}

// Ticker24h returns 24h statistics for symbol.
func (c *Client) Ticker24h(ctx context.Context, symbol string) (*Ticker24h, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	var t Ticker24h
	if err := c.getJSON(ctx, "api.ticker.24hr", params, false, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// Depth is an order book snapshot. Each level is [price, qty].
type Depth struct {
	LastUpdateID int64                `json:"lastUpdateId"`
	Bids         [][2]decimal.Decimal `json:"bids"`
	Asks         [][2]decimal.Decimal `json:"asks"`
}

// Depth returns the order book for symbol.
func (c *Client) Depth(ctx context.Context, symbol string, limit int) (*Depth, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}
	var d Depth
	if err := c.getJSON(ctx, "api.depth", params, false, &d); err != nil {
		return nil, err
	}
	return &d, nil
}
