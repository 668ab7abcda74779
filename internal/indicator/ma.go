package indicator

// SMA returns the mean of the last period values. With fewer values than
// period it degrades to the mean of everything supplied; empty input gives 0.
func SMA(prices []float64, period int) float64 {
	return mean(tail(prices, period))
}

// EMA seeds with prices[0] and applies ema = p·k + ema·(1−k), k = 2/(period+1),
// over the whole series. Empty input gives 0.
func EMA(prices []float64, period int) float64 {
	if len(prices) == 0 {
		return 0
	}
	k := 2.0 / float64(period+1)
	ema := prices[0]
	for _, p := range prices[1:] {
		ema = p*k + ema*(1-k)
	}
	return ema
}
