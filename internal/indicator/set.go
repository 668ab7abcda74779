package indicator

import "signal-enginev1/internal/model"

// Compute evaluates every indicator at the latest bar of s using the
// standard periods. Nothing is cached between calls.
func Compute(s model.Series) model.IndicatorSet {
	closes := s.Closes()
	highs := s.Highs()
	lows := s.Lows()
	volumes := s.Volumes()

	return model.IndicatorSet{
		RSI:        RSI(closes, RSIPeriod),
		MACD:       MACD(closes),
		Bollinger:  BollingerBands(closes, BollingerPeriod, BollingerMult),
		Stochastic: Stochastic(highs, lows, closes, StochasticPeriod),
		WilliamsR:  WilliamsR(highs, lows, closes, WilliamsPeriod),
		ATR:        ATR(highs, lows, closes, ATRPeriod),
		OBV:        OBV(closes, volumes),
		VWAP:       VWAP(highs, lows, closes, volumes),
		EMA20:      EMA(closes, 20),
		EMA50:      EMA(closes, 50),
		SMA200:     SMA(closes, 200),
	}
}
