package indicator

import "signal-enginev1/internal/model"

// OBV adds volume on up closes, subtracts it on down closes and ignores flat closes.
func OBV(closes, volumes []float64) float64 {
	n := min(len(closes), len(volumes))
	var obv float64
	for i := 1; i < n; i++ {
		switch {
		case closes[i] > closes[i-1]:
			obv += volumes[i]
		case closes[i] < closes[i-1]:
			obv -= volumes[i]
		}
	}
	return obv
}

// VWAP is the volume-weighted mean of the typical price (h+l+c)/3 over the
// entire series. Zero total volume falls back to the last close.
func VWAP(highs, lows, closes, volumes []float64) float64 {
	n := min(len(highs), len(lows), len(closes), len(volumes))
	if n == 0 {
		return 0
	}
	var pv, vol float64
	for i := 0; i < n; i++ {
		typical := (highs[i] + lows[i] + closes[i]) / 3
		pv += typical * volumes[i]
		vol += volumes[i]
	}
	if vol == 0 {
		return closes[n-1]
	}
	return pv / vol
}

// High-volume and trend windows for AnalyzeVolume.
const (
	highVolumeMultiple = 1.5
	volumeTrendWindow  = 5
)

// AnalyzeVolume compares the latest volume with its 20-bar average and
// measures the relative change between the mean of the last 5 volumes and
// the 5 before them. Undefined ratios collapse to 0.
func AnalyzeVolume(volumes []float64) model.VolumeProfile {
	if len(volumes) == 0 {
		return model.VolumeProfile{}
	}
	avg := SMA(volumes, VolumeAvgPeriod)
	cur := volumes[len(volumes)-1]

	ratio := 0.0
	if avg > 0 {
		ratio = cur / avg
	}

	return model.VolumeProfile{
		CurrentVolume: cur,
		AvgVolume:     avg,
		VolumeRatio:   ratio,
		IsHighVolume:  cur > avg*highVolumeMultiple,
		VolumeTrend:   volumeTrend(volumes),
	}
}

func volumeTrend(volumes []float64) float64 {
	n := len(volumes)
	if n < volumeTrendWindow+1 {
		return 0
	}
	recent := mean(volumes[n-volumeTrendWindow:])
	start := n - 2*volumeTrendWindow
	if start < 0 {
		start = 0
	}
	previous := mean(volumes[start : n-volumeTrendWindow])
	if previous == 0 {
		return 0
	}
	return finite((recent-previous)/previous, 0)
}
