package levels

import (
	"reflect"
	"testing"

	"signal-enginev1/internal/model"
)

func TestLocalMaxima(t *testing.T) {
	values := []float64{1, 2, 5, 2, 1, 3, 4, 9, 4, 3, 2}
	got := LocalMaxima(values)
	want := []float64{5, 9}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestLocalMaxima_StrictComparison(t *testing.T) {
	// plateau of two equal highs is not a maximum
	if got := LocalMaxima([]float64{1, 2, 5, 5, 2, 1}); len(got) != 0 {
		t.Errorf("expected no maxima on a plateau, got %v", got)
	}
}

func TestLocalMaxima_EdgesIgnored(t *testing.T) {
	// index 0, 1, n-2, n-1 can never qualify
	if got := LocalMaxima([]float64{9, 1, 1, 1, 9}); len(got) != 0 {
		t.Errorf("expected none, got %v", got)
	}
	if got := LocalMaxima([]float64{1, 2, 3}); got != nil {
		t.Errorf("short input: expected nil, got %v", got)
	}
}

func TestLocalMinima(t *testing.T) {
	values := []float64{5, 4, 1, 4, 5, 6, 2, 6, 7}
	got := LocalMinima(values)
	want := []float64{1, 2}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestFind_KeepsLastThree(t *testing.T) {
	// highs peak at 10, 11, 12, 13; lows trough at 1, 2, 3, 4
	peaks := []float64{5, 5, 10, 5, 5, 11, 5, 5, 12, 5, 5, 13, 5, 5}
	troughs := []float64{8, 8, 1, 8, 8, 2, 8, 8, 3, 8, 8, 4, 8, 8}
	s := make(model.Series, len(peaks))
	for i := range s {
		s[i] = model.Candle{High: peaks[i], Low: troughs[i], Open: 6, Close: 7}
	}

	sr := Find(s, DefaultKeep)
	if !reflect.DeepEqual(sr.Resistance, []float64{11, 12, 13}) {
		t.Errorf("resistance: got %v", sr.Resistance)
	}
	if !reflect.DeepEqual(sr.Support, []float64{2, 3, 4}) {
		t.Errorf("support: got %v", sr.Support)
	}
	if sr.CurrentPrice != 7 {
		t.Errorf("current price: got %v, want 7", sr.CurrentPrice)
	}
}

func TestNear(t *testing.T) {
	if !Near(100, 101.9, DefaultTolerance) {
		t.Error("1.9% away should be near")
	}
	if Near(100, 102, DefaultTolerance) {
		t.Error("exactly 2% away is not near")
	}
	if Near(0, 0, DefaultTolerance) {
		t.Error("zero price is never near")
	}
	if !NearAny(100, []float64{50, 99}, DefaultTolerance) {
		t.Error("expected NearAny to match 99")
	}
}
