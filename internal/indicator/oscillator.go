package indicator

import "signal-enginev1/internal/model"

// Stochastic computes %K over the last period bars. %D is reported equal to
// %K rather than a smoothed average. A flat window (HH == LL) gives 50.
func Stochastic(highs, lows, closes []float64, period int) model.Stochastic {
	if len(closes) == 0 || len(highs) == 0 || len(lows) == 0 {
		return model.Stochastic{K: 50, D: 50}
	}
	hh, ll := extremes(highs, lows, period)
	last := closes[len(closes)-1]
	if hh == ll {
		return model.Stochastic{K: 50, D: 50}
	}
	k := finite((last-ll)/(hh-ll)*100, 50)
	return model.Stochastic{K: k, D: k}
}

// WilliamsR is (HH − close)/(HH − LL)·−100 over the last period bars.
// A flat window gives −50.
func WilliamsR(highs, lows, closes []float64, period int) float64 {
	if len(closes) == 0 || len(highs) == 0 || len(lows) == 0 {
		return -50
	}
	hh, ll := extremes(highs, lows, period)
	if hh == ll {
		return -50
	}
	last := closes[len(closes)-1]
	return finite((hh-last)/(hh-ll)*-100, -50)
}
