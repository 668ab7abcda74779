package model

import "errors"

// Series is a sequence of candles ordered by ascending TS.
// Gaps between bars are accepted; indicators work positionally.
type Series []Candle

// Validate checks every candle and the ordering. The first problem found is returned.
func (s Series) Validate() error {
	for i := range s {
		if err := s[i].Validate(); err != nil {
			var mce *MalformedCandleError
			if errors.As(err, &mce) {
				mce.Index = i
			}
			return err
		}
		if i > 0 && s[i].TS < s[i-1].TS {
			return ErrUnorderedSeries
		}
	}
	return nil
}

// Tail returns the last n candles (the whole series when n >= len).
func (s Series) Tail(n int) Series {
	if n <= 0 || n >= len(s) {
		return s
	}
	return s[len(s)-n:]
}

// Last returns the most recent candle. ok is false for an empty series.
func (s Series) Last() (Candle, bool) {
	if len(s) == 0 {
		return Candle{}, false
	}
	return s[len(s)-1], true
}

func (s Series) Opens() []float64   { return s.field(func(c *Candle) float64 { return c.Open }) }
func (s Series) Highs() []float64   { return s.field(func(c *Candle) float64 { return c.High }) }
func (s Series) Lows() []float64    { return s.field(func(c *Candle) float64 { return c.Low }) }
func (s Series) Closes() []float64  { return s.field(func(c *Candle) float64 { return c.Close }) }
func (s Series) Volumes() []float64 { return s.field(func(c *Candle) float64 { return c.Volume }) }

func (s Series) field(get func(*Candle) float64) []float64 {
	out := make([]float64, len(s))
	for i := range s {
		out[i] = get(&s[i])
	}
	return out
}
