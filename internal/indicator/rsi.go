package indicator

// RSI uses a simple average of gains and losses over the last period deltas
// (not Wilder smoothing). It returns 50 when fewer than period+1 closes are
// available and 100 when the window has no losses.
func RSI(closes []float64, period int) float64 {
	if period <= 0 || len(closes) < period+1 {
		return 50
	}

	var gains, losses float64
	n := len(closes)
	for i := 1; i <= period; i++ {
		change := closes[n-i] - closes[n-i-1]
		if change > 0 {
			gains += change
		} else {
			losses -= change
		}
	}

	avgGain := gains / float64(period)
	avgLoss := losses / float64(period)
	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return finite(100-100/(1+rs), 50)
}
