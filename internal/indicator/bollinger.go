package indicator

import (
	"math"

	"signal-enginev1/internal/model"
)

// BollingerBands uses the population standard deviation of the last period
// prices around their SMA. Upper and lower are always symmetric about Middle.
func BollingerBands(prices []float64, period int, mult float64) model.Bollinger {
	middle := SMA(prices, period)

	window := tail(prices, period)
	var variance float64
	if len(window) > 0 {
		for _, p := range window {
			d := p - middle
			variance += d * d
		}
		// Denominator stays period even for short series.
		variance /= float64(period)
	}
	std := math.Sqrt(variance)

	bandwidth := 0.0
	if middle != 0 {
		bandwidth = finite(std*mult*2/middle*100, 0)
	}
	return model.Bollinger{
		Upper:     middle + std*mult,
		Middle:    middle,
		Lower:     middle - std*mult,
		Bandwidth: bandwidth,
	}
}
