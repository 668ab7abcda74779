package indicator

import "math"

// ATR averages the true range max(h−l, |h−prevC|, |l−prevC|) from the second
// bar onward with an SMA over period. Fewer than two bars gives 0.
func ATR(highs, lows, closes []float64, period int) float64 {
	n := min(len(highs), len(lows), len(closes))
	if n < 2 {
		return 0
	}
	trueRanges := make([]float64, 0, n-1)
	for i := 1; i < n; i++ {
		tr := math.Max(highs[i]-lows[i],
			math.Max(math.Abs(highs[i]-closes[i-1]), math.Abs(lows[i]-closes[i-1])))
		trueRanges = append(trueRanges, tr)
	}
	return SMA(trueRanges, period)
}
