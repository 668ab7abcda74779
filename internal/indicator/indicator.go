// Package indicator provides technical indicator calculations over price series.
//
// Every function is pure: it takes the full window it needs and returns a value
// for the latest point. Short or degenerate input never panics and never yields
// NaN or Inf; each indicator falls back to a defined neutral value instead.
package indicator

import "math"

// Standard lookback periods used by Compute.
const (
	RSIPeriod        = 14
	BollingerPeriod  = 20
	BollingerMult    = 2.0
	StochasticPeriod = 14
	WilliamsPeriod   = 14
	ATRPeriod        = 14
	VolumeAvgPeriod  = 20
	MACDFast         = 12
	MACDSlow         = 26
	MACDSignal       = 9
)

// finite replaces NaN/Inf with fallback.
func finite(v, fallback float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fallback
	}
	return v
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func tail(values []float64, n int) []float64 {
	if n <= 0 || n >= len(values) {
		return values
	}
	return values[len(values)-n:]
}

// extremes returns the highest high and lowest low over the last period bars.
func extremes(highs, lows []float64, period int) (hh, ll float64) {
	hs, ls := tail(highs, period), tail(lows, period)
	hh, ll = math.Inf(-1), math.Inf(1)
	for _, h := range hs {
		hh = math.Max(hh, h)
	}
	for _, l := range ls {
		ll = math.Min(ll, l)
	}
	return hh, ll
}
