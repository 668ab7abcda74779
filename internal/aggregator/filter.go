package aggregator

import "signal-enginev1/internal/model"

// Filter decides which signals reach consumers. Filtering is a policy of the
// calling layer; Evaluate never drops a signal itself.
type Filter interface {
	Keep(sig model.TradingSignal) bool
}

// FilterFunc adapts a plain function to Filter.
type FilterFunc func(sig model.TradingSignal) bool

func (f FilterFunc) Keep(sig model.TradingSignal) bool { return f(sig) }

// ConfidenceFilter keeps signals with confidence strictly greater than Min.
type ConfidenceFilter struct {
	Min float64
}

func (f ConfidenceFilter) Keep(sig model.TradingSignal) bool { return sig.Confidence > f.Min }

// ActionableFilter drops HOLD signals.
type ActionableFilter struct{}

func (ActionableFilter) Keep(sig model.TradingSignal) bool { return sig.Actionable() }

type chain []Filter

func (c chain) Keep(sig model.TradingSignal) bool {
	for _, f := range c {
		if f != nil && !f.Keep(sig) {
			return false
		}
	}
	return true
}

// Chain keeps a signal only when every filter keeps it.
func Chain(filters ...Filter) Filter { return chain(filters) }

// DefaultFilter is the batch policy: confidence > 60.
func DefaultFilter() Filter { return ConfidenceFilter{Min: 60} }

// RecommendationFilter is the user-facing policy: non-HOLD with confidence > 65.
func RecommendationFilter() Filter {
	return Chain(ActionableFilter{}, ConfidenceFilter{Min: 65})
}

// Apply returns the signals f keeps, preserving order. A nil filter keeps everything.
func Apply(f Filter, signals []model.TradingSignal) []model.TradingSignal {
	if f == nil {
		return signals
	}
	out := make([]model.TradingSignal, 0, len(signals))
	for _, s := range signals {
		if f.Keep(s) {
			out = append(out, s)
		}
	}
	return out
}
