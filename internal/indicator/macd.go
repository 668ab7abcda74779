package indicator

import "signal-enginev1/internal/model"

// MACD returns EMA12 − EMA26 as the MACD line and an EMA9 signal line.
//
// The signal line is built from a MACD history recomputed over every prefix
// prices[:i+1] for i ≥ 26. That is O(n²) in series length; callers bound the
// series (the aggregator keeps at most 200 bars).
func MACD(prices []float64) model.MACD {
	line := EMA(prices, MACDFast) - EMA(prices, MACDSlow)

	var history []float64
	if len(prices) > MACDSlow {
		history = make([]float64, 0, len(prices)-MACDSlow)
		for i := MACDSlow; i < len(prices); i++ {
			prefix := prices[:i+1]
			history = append(history, EMA(prefix, MACDFast)-EMA(prefix, MACDSlow))
		}
	}

	signal := EMA(history, MACDSignal)
	return model.MACD{
		MACD:      line,
		Signal:    signal,
		Histogram: line - signal,
	}
}
