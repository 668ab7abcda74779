// Package levels approximates support and resistance from local extrema.
package levels

import (
	"math"

	"signal-enginev1/internal/model"
)

const (
	// DefaultKeep is how many of the most recent extrema Find retains.
	DefaultKeep = 3
	// DefaultTolerance is the relative distance that counts as "near" a level.
	DefaultTolerance = 0.02
)

// LocalMaxima returns values[i] for every 2 ≤ i ≤ n−3 strictly greater than
// its two neighbours on each side, in series order.
func LocalMaxima(values []float64) []float64 {
	return extrema(values, func(a, b float64) bool { return a > b })
}

// LocalMinima is the mirror of LocalMaxima.
func LocalMinima(values []float64) []float64 {
	return extrema(values, func(a, b float64) bool { return a < b })
}

func extrema(values []float64, beats func(a, b float64) bool) []float64 {
	var out []float64
	for i := 2; i < len(values)-2; i++ {
		v := values[i]
		if beats(v, values[i-1]) && beats(v, values[i-2]) &&
			beats(v, values[i+1]) && beats(v, values[i+2]) {
			out = append(out, v)
		}
	}
	return out
}

// Find takes resistance from local maxima of highs and support from local
// minima of lows, keeping the last keep of each. CurrentPrice is the last close.
func Find(s model.Series, keep int) model.SupportResistance {
	if keep <= 0 {
		keep = DefaultKeep
	}
	sr := model.SupportResistance{
		Resistance: lastN(LocalMaxima(s.Highs()), keep),
		Support:    lastN(LocalMinima(s.Lows()), keep),
	}
	if last, ok := s.Last(); ok {
		sr.CurrentPrice = last.Close
	}
	return sr
}

// Near reports |price − level| / price < tolerance. A non-positive price is never near.
func Near(price, level, tolerance float64) bool {
	if price <= 0 {
		return false
	}
	return math.Abs(price-level)/price < tolerance
}

// NearAny reports whether price is near any of levels.
func NearAny(price float64, levels []float64, tolerance float64) bool {
	for _, l := range levels {
		if Near(price, l, tolerance) {
			return true
		}
	}
	return false
}

func lastN(values []float64, n int) []float64 {
	if len(values) > n {
		values = values[len(values)-n:]
	}
	out := make([]float64, len(values))
	copy(out, values)
	return out
}
