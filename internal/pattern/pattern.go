// Package pattern classifies the most recent candles into named
// candlestick formations with a polarity and a strength weight.
package pattern

import (
	"math"

	"signal-enginev1/internal/model"
)

// Pattern names as they appear in signal reasoning.
const (
	Doji         = "Doji"
	Hammer       = "Hammer"
	ShootingStar = "Shooting Star"
	Engulfing    = "Engulfing"
)

// Config holds detection thresholds and the strength assigned to each pattern.
type Config struct {
	DojiBodyRatio       float64 `yaml:"doji_body_ratio"`       // body/range below this is a Doji
	ShadowBodyRatio     float64 `yaml:"shadow_body_ratio"`     // long shadow must exceed body × this
	OppositeShadowRatio float64 `yaml:"opposite_shadow_ratio"` // short shadow must stay under body × this

	DojiStrength         float64 `yaml:"doji_strength"`
	HammerStrength       float64 `yaml:"hammer_strength"`
	ShootingStarStrength float64 `yaml:"shooting_star_strength"`
	EngulfingStrength    float64 `yaml:"engulfing_strength"`
}

// DefaultConfig returns the standard thresholds.
func DefaultConfig() Config {
	return Config{
		DojiBodyRatio:        0.1,
		ShadowBodyRatio:      2.0,
		OppositeShadowRatio:  0.5,
		DojiStrength:         0.6,
		HammerStrength:       0.7,
		ShootingStarStrength: 0.7,
		EngulfingStrength:    0.8,
	}
}

// Detector runs every pattern check against a series.
type Detector struct {
	cfg Config
}

// NewDetector creates a Detector with the given thresholds.
func NewDetector(cfg Config) Detector {
	return Detector{cfg: cfg}
}

// Detect checks the last candle for Doji, Hammer and Shooting Star and the
// last pair for Engulfing. Each pattern is reported at most once, in that order.
func (d Detector) Detect(s model.Series) []model.Pattern {
	last, ok := s.Last()
	if !ok {
		return nil
	}

	var out []model.Pattern
	if d.isDoji(last) {
		out = append(out, model.Pattern{Name: Doji, Strength: d.cfg.DojiStrength})
	}
	if d.isHammer(last) {
		out = append(out, model.Pattern{Name: Hammer, Strength: d.cfg.HammerStrength, Bullish: boolPtr(true)})
	}
	if d.isShootingStar(last) {
		out = append(out, model.Pattern{Name: ShootingStar, Strength: d.cfg.ShootingStarStrength, Bullish: boolPtr(false)})
	}
	if len(s) >= 2 {
		if bullish, ok := IsEngulfing(s[len(s)-2], last); ok {
			out = append(out, model.Pattern{Name: Engulfing, Strength: d.cfg.EngulfingStrength, Bullish: boolPtr(bullish)})
		}
	}
	return out
}

// IsDoji reports a body smaller than 10% of the high-low range.
// A zero-range candle is not a Doji.
func IsDoji(c model.Candle) bool { return NewDetector(DefaultConfig()).isDoji(c) }

// IsHammer reports a long lower shadow (> 2× body) with a short upper shadow (< 0.5× body).
func IsHammer(c model.Candle) bool { return NewDetector(DefaultConfig()).isHammer(c) }

// IsShootingStar is the mirror of IsHammer.
func IsShootingStar(c model.Candle) bool { return NewDetector(DefaultConfig()).isShootingStar(c) }

// IsEngulfing checks cur against prev. They must point in opposite directions;
// a bullish engulfing opens below prev.Close and closes above prev.Open, a
// bearish one is the mirror. ok is false when there is no engulfing.
func IsEngulfing(prev, cur model.Candle) (bullish, ok bool) {
	prevUp := prev.Close > prev.Open
	curUp := cur.Close > cur.Open
	if prevUp == curUp {
		return false, false
	}
	if curUp && cur.Open < prev.Close && cur.Close > prev.Open {
		return true, true
	}
	if !curUp && cur.Open > prev.Close && cur.Close < prev.Open {
		return false, true
	}
	return false, false
}

func (d Detector) isDoji(c model.Candle) bool {
	rng := c.High - c.Low
	if rng <= 0 {
		return false
	}
	return body(c)/rng < d.cfg.DojiBodyRatio
}

func (d Detector) isHammer(c model.Candle) bool {
	b := body(c)
	return lowerShadow(c) > b*d.cfg.ShadowBodyRatio && upperShadow(c) < b*d.cfg.OppositeShadowRatio
}

func (d Detector) isShootingStar(c model.Candle) bool {
	b := body(c)
	return upperShadow(c) > b*d.cfg.ShadowBodyRatio && lowerShadow(c) < b*d.cfg.OppositeShadowRatio
}

func body(c model.Candle) float64        { return math.Abs(c.Close - c.Open) }
func lowerShadow(c model.Candle) float64 { return math.Min(c.Open, c.Close) - c.Low }
func upperShadow(c model.Candle) float64 { return c.High - math.Max(c.Open, c.Close) }

func boolPtr(b bool) *bool { return &b }
