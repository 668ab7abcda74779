// Package aggregator fuses indicator readings, volume, candlestick patterns
// and support/resistance proximity into one TradingSignal per symbol.
//
// Evaluation is a single-shot pure transformation: no state survives between
// calls, so an Aggregator may be shared by any number of goroutines.
package aggregator

import (
	"fmt"
	"math"
	"strings"

	"signal-enginev1/internal/indicator"
	"signal-enginev1/internal/levels"
	"signal-enginev1/internal/model"
	"signal-enginev1/internal/pattern"
)

const (
	// MinBars is the entry gate: a series must hold more than MinBars candles.
	MinBars = 50
	// MaxSeriesLen bounds the series fed to the indicators (MACD is O(n²)).
	MaxSeriesLen = 200
	// DefaultTimeframe labels signals built from 1h bars.
	DefaultTimeframe = "1H"
)

// Analysis is every intermediate reading that feeds the score.
type Analysis struct {
	Indicators model.IndicatorSet      `json:"indicators"`
	Volume     model.VolumeProfile     `json:"volume"`
	Patterns   []model.Pattern         `json:"patterns"`
	Levels     model.SupportResistance `json:"levels"`
}

// Aggregator scores series into trading signals.
type Aggregator struct {
	w         Weights
	detector  pattern.Detector
	timeframe string
	maxBars   int
}

// Option customises an Aggregator.
type Option func(*Aggregator)

// WithTimeframe sets the label copied into every signal.
func WithTimeframe(tf string) Option {
	return func(a *Aggregator) { a.timeframe = tf }
}

// WithMaxBars overrides MaxSeriesLen.
func WithMaxBars(n int) Option {
	return func(a *Aggregator) {
		if n > MinBars {
			a.maxBars = n
		}
	}
}

// New creates an Aggregator.
func New(w Weights, detector pattern.Detector, opts ...Option) *Aggregator {
	a := &Aggregator{
		w:         w,
		detector:  detector,
		timeframe: DefaultTimeframe,
		maxBars:   MaxSeriesLen,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// NewDefault creates an Aggregator with DefaultWeights and default pattern thresholds.
func NewDefault() *Aggregator {
	return New(DefaultWeights(), pattern.NewDetector(pattern.DefaultConfig()))
}

// Evaluate scores candles using the last close as the current price.
func (a *Aggregator) Evaluate(symbol string, candles model.Series) (model.TradingSignal, error) {
	last, ok := candles.Last()
	if !ok {
		return model.TradingSignal{}, &InsufficientDataError{Symbol: symbol, Have: 0, Need: MinBars + 1}
	}
	return a.EvaluateAt(symbol, candles, last.Close)
}

// EvaluateAt scores candles against a live price supplied by the caller.
func (a *Aggregator) EvaluateAt(symbol string, candles model.Series, price float64) (model.TradingSignal, error) {
	if len(candles) <= MinBars {
		return model.TradingSignal{}, &InsufficientDataError{Symbol: symbol, Have: len(candles), Need: MinBars + 1}
	}
	if err := candles.Validate(); err != nil {
		return model.TradingSignal{}, fmt.Errorf("evaluate %s: %w", symbol, err)
	}
	if !(price > 0) || math.IsInf(price, 0) {
		return model.TradingSignal{}, fmt.Errorf("evaluate %s: %w: %v", symbol, ErrInvalidPrice, price)
	}

	candles = candles.Tail(a.maxBars)
	an := a.Analyze(candles)
	last, _ := candles.Last()
	return a.decide(symbol, price, last.TS, an), nil
}

// Analyze computes the readings for a series without scoring them.
func (a *Aggregator) Analyze(candles model.Series) Analysis {
	return Analysis{
		Indicators: indicator.Compute(candles),
		Volume:     indicator.AnalyzeVolume(candles.Volumes()),
		Patterns:   a.detector.Detect(candles),
		Levels:     levels.Find(candles, levels.DefaultKeep),
	}
}

// Score returns the additive score and the reasoning phrases for an analysis.
func (a *Aggregator) Score(price float64, an Analysis) (float64, []string) {
	w := a.w
	ind := an.Indicators
	var score float64
	var reasons []string

	uptrend := price > ind.EMA20 && ind.EMA20 > ind.EMA50
	downtrend := price < ind.EMA20 && ind.EMA20 < ind.EMA50

	switch rsi := ind.RSI; {
	case rsi < w.RSIOversold:
		if w.TrendConfirmsRSI && downtrend {
			reasons = append(reasons, "RSI oversold within confirmed downtrend")
		} else {
			score += w.RSIStrong
			reasons = append(reasons, "RSI indicates extreme oversold")
		}
	case rsi < w.RSIWeakOversold:
		if w.TrendConfirmsRSI && downtrend {
			reasons = append(reasons, "RSI weak within confirmed downtrend")
		} else {
			score += w.RSIWeak
			reasons = append(reasons, "RSI suggests possible oversold")
		}
	case rsi > w.RSIOverbought:
		if w.TrendConfirmsRSI && uptrend {
			reasons = append(reasons, "RSI overbought within confirmed uptrend")
		} else {
			score -= w.RSIStrong
			reasons = append(reasons, "RSI indicates extreme overbought")
		}
	case rsi > w.RSIWeakOverbought:
		if w.TrendConfirmsRSI && uptrend {
			reasons = append(reasons, "RSI strong within confirmed uptrend")
		} else {
			score -= w.RSIWeak
			reasons = append(reasons, "RSI suggests possible overbought")
		}
	}

	m := ind.MACD
	if m.MACD > m.Signal && m.Histogram > 0 {
		score += w.MACD
		reasons = append(reasons, "MACD shows strong bullish momentum")
	} else if m.MACD < m.Signal && m.Histogram < 0 {
		score -= w.MACD
		reasons = append(reasons, "MACD shows strong bearish momentum")
	}

	if price < ind.Bollinger.Lower {
		score += w.Bollinger
		reasons = append(reasons, "Price below lower Bollinger band")
	} else if price > ind.Bollinger.Upper {
		score -= w.Bollinger
		reasons = append(reasons, "Price above upper Bollinger band")
	}

	if uptrend {
		score += w.EMATrend
		reasons = append(reasons, "Uptrend confirmed by EMAs")
	} else if downtrend {
		score -= w.EMATrend
		reasons = append(reasons, "Downtrend confirmed by EMAs")
	}

	if an.Volume.IsHighVolume && an.Volume.VolumeTrend > w.VolumeTrendMin {
		score += w.Volume
		reasons = append(reasons, "High volume with rising trend")
	}

	for _, p := range an.Patterns {
		if p.Bullish == nil {
			continue
		}
		if *p.Bullish {
			score += p.Strength
			reasons = append(reasons, "Bullish pattern detected: "+p.Name)
		} else {
			score -= p.Strength
			reasons = append(reasons, "Bearish pattern detected: "+p.Name)
		}
	}

	if levels.NearAny(price, an.Levels.Support, w.LevelTolerance) {
		score += w.LevelProximity
		reasons = append(reasons, "Price near support level")
	}
	if levels.NearAny(price, an.Levels.Resistance, w.LevelTolerance) {
		score -= w.LevelProximity
		reasons = append(reasons, "Price near resistance level")
	}

	return score, reasons
}

func (a *Aggregator) decide(symbol string, price float64, ts int64, an Analysis) model.TradingSignal {
	w := a.w
	score, reasons := a.Score(price, an)

	confidence := w.BaseConfidence + math.Abs(score)*w.ConfidencePerScore + float64(len(reasons))*w.ConfidencePerReason
	confidence = clamp(math.Min(confidence, w.MaxConfidence), 0, 100)

	atrFrac := 0.0
	if atr := an.Indicators.ATR; atr > 0 && !math.IsInf(atr, 0) {
		atrFrac = atr / price
	}

	sig := model.TradingSignal{
		Symbol:      symbol,
		Confidence:  confidence,
		Reasoning:   strings.Join(reasons, ", "),
		Timeframe:   a.timeframe,
		RiskScore:   math.Abs(score),
		Price:       price,
		Score:       score,
		GeneratedAt: ts,
	}

	switch {
	case score >= w.BuyThreshold:
		sig.Action = model.ActionBuy
		sig.TargetPrice = price * (1 + w.TargetBase + score*w.TargetPerScore)
		sig.StopLoss = price * (1 - w.StopBase - atrFrac)
		sig.ExpectedReturn = (sig.TargetPrice - price) / price * 100
	case score <= w.SellThreshold:
		sig.Action = model.ActionSell
		sig.TargetPrice = price * (1 - w.TargetBase - math.Abs(score)*w.TargetPerScore)
		sig.StopLoss = price * (1 + w.StopBase + atrFrac)
		sig.ExpectedReturn = (price - sig.TargetPrice) / price * 100
	default:
		sig.Action = model.ActionHold
		sig.TargetPrice = price
		sig.StopLoss = price
		sig.ExpectedReturn = 0
		sig.Confidence = math.Min(sig.Confidence, w.HoldConfidenceCap)
	}
	return sig
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Max(lo, math.Min(hi, v))
}
