package model

// MACD holds the MACD line, its signal line and the histogram.
type MACD struct {
	MACD      float64 `json:"macd"`
	Signal    float64 `json:"signal"`
	Histogram float64 `json:"histogram"`
}

// Bollinger holds Bollinger band levels. Bandwidth is a percentage of Middle.
type Bollinger struct {
	Upper     float64 `json:"upper"`
	Middle    float64 `json:"middle"`
	Lower     float64 `json:"lower"`
	Bandwidth float64 `json:"bandwidth"`
}

// Stochastic holds %K and %D. %D mirrors %K.
type Stochastic struct {
	K float64 `json:"k"`
	D float64 `json:"d"`
}

// IndicatorSet is every indicator evaluated at the latest bar of a Series.
type IndicatorSet struct {
	RSI        float64    `json:"rsi"`
	MACD       MACD       `json:"macd"`
	Bollinger  Bollinger  `json:"bollinger"`
	Stochastic Stochastic `json:"stochastic"`
	WilliamsR  float64    `json:"williams_r"`
	ATR        float64    `json:"atr"`
	OBV        float64    `json:"obv"`
	VWAP       float64    `json:"vwap"`
	EMA20      float64    `json:"ema20"`
	EMA50      float64    `json:"ema50"`
	SMA200     float64    `json:"sma200"`
}

// Pattern is a detected candlestick formation.
// Bullish is nil when the pattern has no directional bias (e.g. Doji).
type Pattern struct {
	Name     string  `json:"name"`
	Strength float64 `json:"strength"`
	Bullish  *bool   `json:"bullish"`
}

// VolumeProfile summarises recent volume against its average.
type VolumeProfile struct {
	CurrentVolume float64 `json:"current_volume"`
	AvgVolume     float64 `json:"avg_volume"`
	VolumeRatio   float64 `json:"volume_ratio"`
	IsHighVolume  bool    `json:"is_high_volume"`
	VolumeTrend   float64 `json:"volume_trend"`
}

// SupportResistance holds the most recent local extrema.
type SupportResistance struct {
	Support      []float64 `json:"support"`
	Resistance   []float64 `json:"resistance"`
	CurrentPrice float64   `json:"current_price"`
}
