package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrMalformedCandle is the sentinel wrapped by every MalformedCandleError.
var ErrMalformedCandle = errors.New("malformed candle")

// ErrUnorderedSeries is returned when a Series is not sorted by ascending TS.
var ErrUnorderedSeries = errors.New("series not in ascending timestamp order")

// Candle is one OHLCV bar. TS is the bar open time in epoch milliseconds.
type Candle struct {
	Symbol string  `json:"symbol"`
	TS     int64   `json:"ts"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
}

// MalformedCandleError describes why a candle was rejected at ingestion.
type MalformedCandleError struct {
	Symbol string
	TS     int64
	Index  int // position in the series, -1 when validated standalone
	Reason string
}

func (e *MalformedCandleError) Error() string {
	if e.Index >= 0 {
		return fmt.Sprintf("malformed candle %s@%d (index %d): %s", e.Symbol, e.TS, e.Index, e.Reason)
	}
	return fmt.Sprintf("malformed candle %s@%d: %s", e.Symbol, e.TS, e.Reason)
}

func (e *MalformedCandleError) Unwrap() error { return ErrMalformedCandle }

// Key returns the symbol the candle belongs to.
func (c *Candle) Key() string {
	return c.Symbol
}

// Time returns TS as a UTC time.Time.
func (c *Candle) Time() time.Time {
	return time.UnixMilli(c.TS).UTC()
}

// JSON returns the JSON-encoded candle (ignoring errors for hot-path usage).
func (c *Candle) JSON() []byte {
	b, _ := json.Marshal(c)
	return b
}

// Validate rejects candles that indicator math cannot consume:
// non-finite fields, negative prices or volume, high < low, or
// open/close outside the [low, high] range.
func (c *Candle) Validate() error {
	fail := func(reason string) error {
		return &MalformedCandleError{Symbol: c.Symbol, TS: c.TS, Index: -1, Reason: reason}
	}
	for _, f := range [...]struct {
		name string
		v    float64
	}{
		{"open", c.Open}, {"high", c.High}, {"low", c.Low}, {"close", c.Close}, {"volume", c.Volume},
	} {
		if math.IsNaN(f.v) || math.IsInf(f.v, 0) {
			return fail(f.name + " is not finite")
		}
		if f.v < 0 {
			return fail(f.name + " is negative")
		}
	}
	if c.High < c.Low {
		return fail("high below low")
	}
	if c.Open < c.Low || c.Open > c.High {
		return fail("open outside high/low range")
	}
	if c.Close < c.Low || c.Close > c.High {
		return fail("close outside high/low range")
	}
	return nil
}
