package indicator

import (
	"math"
	"math/rand"
	"testing"

	"signal-enginev1/internal/model"
)

// ────────────────────────────────────────────────────────────
// Helpers
// ────────────────────────────────────────────────────────────

func assertClose(t *testing.T, label string, got, want, tol float64) {
	t.Helper()
	if math.Abs(got-want) > tol {
		t.Errorf("%s: got %.6f, want %.6f (tol=%.6f, diff=%.6f)", label, got, want, tol, math.Abs(got-want))
	}
}

func linear(from, to float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = from + (to-from)*float64(i)/float64(n-1)
	}
	return out
}

func randomWalk(seed int64, n int) []float64 {
	rng := rand.New(rand.NewSource(seed))
	out := make([]float64, n)
	p := 100.0
	for i := range out {
		p += rng.Float64()*4 - 2
		if p < 1 {
			p = 1
		}
		out[i] = p
	}
	return out
}

// ────────────────────────────────────────────────────────────
// SMA / EMA
// ────────────────────────────────────────────────────────────

func TestSMA_LastPeriodValues(t *testing.T) {
	prices := []float64{100, 102, 104, 103, 105}
	assertClose(t, "SMA(3)", SMA(prices, 3), 104.0, 1e-9)
	assertClose(t, "SMA(5)", SMA(prices, 5), 102.8, 1e-9)
}

func TestSMA_ShortSeriesUsesAllValues(t *testing.T) {
	assertClose(t, "SMA(10) of 3 values", SMA([]float64{1, 2, 6}, 10), 3.0, 1e-9)
	if got := SMA(nil, 5); got != 0 {
		t.Errorf("SMA(empty): got %v, want 0", got)
	}
}

func TestEMA_SeededWithFirstPrice(t *testing.T) {
	// k = 0.5: 1 → 1.5 → 2.25
	assertClose(t, "EMA(3)", EMA([]float64{1, 2, 3}, 3), 2.25, 1e-9)
	assertClose(t, "EMA single", EMA([]float64{42}, 20), 42, 1e-9)
	if got := EMA(nil, 12); got != 0 {
		t.Errorf("EMA(empty): got %v, want 0", got)
	}
}

// ────────────────────────────────────────────────────────────
// RSI
// ────────────────────────────────────────────────────────────

func TestRSI_NeutralOnShortInput(t *testing.T) {
	for n := 0; n <= RSIPeriod; n++ {
		if got := RSI(linear(1, 2, max(n, 2))[:n], RSIPeriod); got != 50 {
			t.Errorf("RSI with %d closes: got %v, want 50", n, got)
		}
	}
}

func TestRSI_SimpleAverage(t *testing.T) {
	// deltas +1, -0.5 → avgGain 0.5, avgLoss 0.25, rs 2
	assertClose(t, "RSI(2)", RSI([]float64{1, 2, 1.5}, 2), 100-100.0/3, 1e-9)
}

func TestRSI_MonotonicSeries(t *testing.T) {
	if got := RSI(linear(100, 150, 100), RSIPeriod); got != 100 {
		t.Errorf("rising series: got %v, want 100", got)
	}
	if got := RSI(linear(150, 100, 100), RSIPeriod); got != 0 {
		t.Errorf("falling series: got %v, want 0", got)
	}
}

func TestRSI_Bounded(t *testing.T) {
	for seed := int64(1); seed <= 20; seed++ {
		got := RSI(randomWalk(seed, 120), RSIPeriod)
		if got < 0 || got > 100 || math.IsNaN(got) {
			t.Errorf("seed %d: RSI %v out of [0,100]", seed, got)
		}
	}
}

// ────────────────────────────────────────────────────────────
// MACD
// ────────────────────────────────────────────────────────────

func TestMACD_RisingSeriesPositiveHistogram(t *testing.T) {
	m := MACD(linear(100, 150, 100))
	if m.MACD <= 0 {
		t.Errorf("MACD line: got %v, want > 0", m.MACD)
	}
	if m.Histogram <= 0 {
		t.Errorf("histogram: got %v, want > 0", m.Histogram)
	}
	assertClose(t, "histogram identity", m.Histogram, m.MACD-m.Signal, 1e-12)
}

func TestMACD_ShortSeriesHasNoSignal(t *testing.T) {
	prices := linear(10, 20, MACDSlow)
	m := MACD(prices)
	if m.Signal != 0 {
		t.Errorf("signal with no history: got %v, want 0", m.Signal)
	}
	assertClose(t, "histogram == line", m.Histogram, m.MACD, 1e-12)
}

// ────────────────────────────────────────────────────────────
// Bollinger
// ────────────────────────────────────────────────────────────

func TestBollinger_KnownValues(t *testing.T) {
	// mean 5, population std 2
	b := BollingerBands([]float64{2, 4, 4, 4, 5, 5, 7, 9}, 8, 2)
	assertClose(t, "middle", b.Middle, 5, 1e-9)
	assertClose(t, "upper", b.Upper, 9, 1e-9)
	assertClose(t, "lower", b.Lower, 1, 1e-9)
	assertClose(t, "bandwidth", b.Bandwidth, 160, 1e-9)
}

func TestBollinger_Symmetric(t *testing.T) {
	for seed := int64(1); seed <= 10; seed++ {
		b := BollingerBands(randomWalk(seed, 60), BollingerPeriod, BollingerMult)
		assertClose(t, "symmetry", b.Upper-b.Middle, b.Middle-b.Lower, 1e-9)
	}
}

func TestBollinger_ZeroMiddle(t *testing.T) {
	b := BollingerBands([]float64{0, 0, 0}, 20, 2)
	if b.Bandwidth != 0 || math.IsNaN(b.Bandwidth) {
		t.Errorf("bandwidth with zero middle: got %v, want 0", b.Bandwidth)
	}
}

// ────────────────────────────────────────────────────────────
// Stochastic / Williams %R
// ────────────────────────────────────────────────────────────

func TestStochastic_Extremes(t *testing.T) {
	highs := []float64{10, 12, 11, 13}
	lows := []float64{8, 9, 7, 10}

	atHigh := Stochastic(highs, lows, []float64{9, 11, 10, 13}, 14)
	assertClose(t, "%K at highest high", atHigh.K, 100, 1e-9)
	if atHigh.D != atHigh.K {
		t.Errorf("%%D should mirror %%K: got %v vs %v", atHigh.D, atHigh.K)
	}

	atLow := Stochastic(highs, []float64{8, 9, 7, 7}, []float64{9, 11, 10, 7}, 14)
	assertClose(t, "%K at lowest low", atLow.K, 0, 1e-9)
}

func TestStochastic_FlatWindow(t *testing.T) {
	s := Stochastic([]float64{5, 5}, []float64{5, 5}, []float64{5, 5}, 14)
	if s.K != 50 {
		t.Errorf("flat window: got %v, want 50", s.K)
	}
}

func TestStochastic_Bounded(t *testing.T) {
	for seed := int64(1); seed <= 10; seed++ {
		closes := randomWalk(seed, 40)
		highs := make([]float64, len(closes))
		lows := make([]float64, len(closes))
		for i, c := range closes {
			highs[i], lows[i] = c+1, c-1
		}
		k := Stochastic(highs, lows, closes, StochasticPeriod).K
		if k < 0 || k > 100 {
			t.Errorf("seed %d: %%K %v out of [0,100]", seed, k)
		}
	}
}

func TestWilliamsR(t *testing.T) {
	highs := []float64{10, 20}
	lows := []float64{0, 5}
	assertClose(t, "close at HH", WilliamsR(highs, lows, []float64{5, 20}, 14), 0, 1e-9)
	assertClose(t, "close at LL", WilliamsR(highs, lows, []float64{5, 0}, 14), -100, 1e-9)
	assertClose(t, "midpoint", WilliamsR(highs, lows, []float64{5, 10}, 14), -50, 1e-9)
	assertClose(t, "flat", WilliamsR([]float64{3}, []float64{3}, []float64{3}, 14), -50, 1e-9)
}

// ────────────────────────────────────────────────────────────
// ATR / OBV / VWAP
// ────────────────────────────────────────────────────────────

func TestATR_TrueRangeFromSecondBar(t *testing.T) {
	highs := []float64{10, 11, 12}
	lows := []float64{9, 10, 11}
	closes := []float64{9.5, 10.5, 11.5}
	assertClose(t, "ATR", ATR(highs, lows, closes, 14), 1.5, 1e-9)
	if got := ATR(highs[:1], lows[:1], closes[:1], 14); got != 0 {
		t.Errorf("ATR single bar: got %v, want 0", got)
	}
}

func TestOBV(t *testing.T) {
	got := OBV([]float64{10, 11, 11, 10}, []float64{100, 200, 300, 400})
	assertClose(t, "OBV", got, -200, 1e-9)
}

func TestVWAP(t *testing.T) {
	got := VWAP([]float64{2, 4}, []float64{0, 2}, []float64{1, 3}, []float64{1, 3})
	assertClose(t, "VWAP", got, 2.5, 1e-9)

	zero := VWAP([]float64{2, 4}, []float64{0, 2}, []float64{1, 3}, []float64{0, 0})
	assertClose(t, "VWAP zero volume", zero, 3, 1e-9)
}

// ────────────────────────────────────────────────────────────
// Volume profile
// ────────────────────────────────────────────────────────────

func TestAnalyzeVolume_Constant(t *testing.T) {
	vols := make([]float64, 100)
	for i := range vols {
		vols[i] = 1000
	}
	vp := AnalyzeVolume(vols)
	assertClose(t, "ratio", vp.VolumeRatio, 1, 1e-9)
	assertClose(t, "trend", vp.VolumeTrend, 0, 1e-9)
	if vp.IsHighVolume {
		t.Error("constant volume should not be high volume")
	}
}

func TestAnalyzeVolume_Spike(t *testing.T) {
	vols := make([]float64, 0, 20)
	for i := 0; i < 15; i++ {
		vols = append(vols, 100)
	}
	for i := 0; i < 5; i++ {
		vols = append(vols, 300)
	}
	vp := AnalyzeVolume(vols)
	assertClose(t, "avg", vp.AvgVolume, 150, 1e-9)
	assertClose(t, "trend", vp.VolumeTrend, 2, 1e-9)
	if !vp.IsHighVolume {
		t.Error("300 vs avg 150 should be high volume")
	}
}

func TestAnalyzeVolume_ShortSeries(t *testing.T) {
	vp := AnalyzeVolume([]float64{1, 2, 3})
	if vp.VolumeTrend != 0 {
		t.Errorf("trend with no previous window: got %v, want 0", vp.VolumeTrend)
	}
	if AnalyzeVolume(nil) != (model.VolumeProfile{}) {
		t.Error("empty volumes should give zero profile")
	}
}

// ────────────────────────────────────────────────────────────
// Compute
// ────────────────────────────────────────────────────────────

func TestCompute_UptrendSeries(t *testing.T) {
	closes := linear(100, 150, 100)
	s := make(model.Series, len(closes))
	for i, c := range closes {
		s[i] = model.Candle{Symbol: "TEST", TS: int64(i) * 3_600_000, Open: c, High: c + 0.5, Low: c - 0.5, Close: c, Volume: 1000}
	}

	set := Compute(s)
	if set.RSI != 100 {
		t.Errorf("RSI: got %v, want 100", set.RSI)
	}
	if !(closes[99] > set.EMA20 && set.EMA20 > set.EMA50) {
		t.Errorf("expected price > EMA20 > EMA50, got %v %v %v", closes[99], set.EMA20, set.EMA50)
	}
	assertClose(t, "SMA200 of 100 bars", set.SMA200, 125, 1e-9)
	assertClose(t, "OBV", set.OBV, 99*1000, 1e-9)
}
