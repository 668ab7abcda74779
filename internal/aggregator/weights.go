package aggregator

// Weights holds every threshold and score contribution the aggregator uses.
// DefaultWeights reproduces the standard model; each value can be tuned
// through config.
type Weights struct {
	// RSI ladder, checked in order <Oversold, <WeakOversold, >Overbought, >WeakOverbought.
	RSIOversold       float64 `yaml:"rsi_oversold"`
	RSIWeakOversold   float64 `yaml:"rsi_weak_oversold"`
	RSIOverbought     float64 `yaml:"rsi_overbought"`
	RSIWeakOverbought float64 `yaml:"rsi_weak_overbought"`
	RSIStrong         float64 `yaml:"rsi_strong"`
	RSIWeak           float64 `yaml:"rsi_weak"`

	// TrendConfirmsRSI leaves an RSI reading unscored when a confirmed EMA
	// trend points the same way (overbought in an uptrend, oversold in a
	// downtrend). The reading still appears in the reasoning. It is on in
	// DefaultWeights, which departs from the plain ladder: a steady ramp
	// otherwise scores its RSI of 100 against the move. StrictLadder turns
	// it off.
	TrendConfirmsRSI bool `yaml:"trend_confirms_rsi"`

	MACD           float64 `yaml:"macd"`
	Bollinger      float64 `yaml:"bollinger"`
	EMATrend       float64 `yaml:"ema_trend"`
	Volume         float64 `yaml:"volume"`
	VolumeTrendMin float64 `yaml:"volume_trend_min"`
	LevelProximity float64 `yaml:"level_proximity"`
	LevelTolerance float64 `yaml:"level_tolerance"`

	BuyThreshold  float64 `yaml:"buy_threshold"`
	SellThreshold float64 `yaml:"sell_threshold"`

	BaseConfidence      float64 `yaml:"base_confidence"`
	ConfidencePerScore  float64 `yaml:"confidence_per_score"`
	ConfidencePerReason float64 `yaml:"confidence_per_reason"`
	MaxConfidence       float64 `yaml:"max_confidence"`
	HoldConfidenceCap   float64 `yaml:"hold_confidence_cap"`

	TargetBase     float64 `yaml:"target_base"`
	TargetPerScore float64 `yaml:"target_per_score"`
	StopBase       float64 `yaml:"stop_base"`
}

// DefaultWeights returns the standard scoring model.
func DefaultWeights() Weights {
	return Weights{
		RSIOversold:       30,
		RSIWeakOversold:   40,
		RSIOverbought:     70,
		RSIWeakOverbought: 60,
		RSIStrong:         2,
		RSIWeak:           1,
		TrendConfirmsRSI:  true,

		MACD:           1.5,
		Bollinger:      1,
		EMATrend:       1,
		Volume:         0.5,
		VolumeTrendMin: 0.2,
		LevelProximity: 0.5,
		LevelTolerance: 0.02,

		BuyThreshold:  2.5,
		SellThreshold: -2.5,

		BaseConfidence:      50,
		ConfidencePerScore:  10,
		ConfidencePerReason: 2,
		MaxConfidence:       95,
		HoldConfidenceCap:   60,

		TargetBase:     0.03,
		TargetPerScore: 0.01,
		StopBase:       0.02,
	}
}

// StrictLadder returns DefaultWeights with TrendConfirmsRSI disabled, so every
// RSI extreme is scored against the move regardless of trend.
func StrictLadder() Weights {
	w := DefaultWeights()
	w.TrendConfirmsRSI = false
	return w
}
