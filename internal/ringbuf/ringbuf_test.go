package ringbuf

import (
	"sync"
	"testing"

	"signal-enginev1/internal/model"
)

func bar(ts int64, close float64) model.Candle {
	return model.Candle{Symbol: "BTCUSDT", TS: ts, Open: close, High: close, Low: close, Close: close, Volume: 1}
}

func TestWindow_PushSnapshot(t *testing.T) {
	w := New(4)

	w.Push(bar(1, 100))
	w.Push(bar(2, 101))

	if w.Len() != 2 {
		t.Fatalf("expected len=2, got %d", w.Len())
	}
	s := w.Snapshot()
	if s[0].Close != 100 || s[1].Close != 101 {
		t.Fatalf("unexpected snapshot %+v", s)
	}
	last, ok := w.Last()
	if !ok || last.TS != 2 {
		t.Fatalf("expected last ts=2, got %d ok=%v", last.TS, ok)
	}
}

func TestWindow_EvictsOldest(t *testing.T) {
	w := New(3)
	for i := int64(1); i <= 5; i++ {
		w.Push(bar(i, float64(i)))
	}

	if w.Len() != 3 {
		t.Fatalf("expected len=3, got %d", w.Len())
	}
	if w.Evicted() != 2 {
		t.Fatalf("expected evicted=2, got %d", w.Evicted())
	}
	s := w.Snapshot()
	for i, want := range []int64{3, 4, 5} {
		if s[i].TS != want {
			t.Fatalf("at %d: expected ts=%d, got %d", i, want, s[i].TS)
		}
	}
}

func TestWindow_ReplacesSameTS(t *testing.T) {
	w := New(3)
	w.Push(bar(1, 100))
	w.Push(bar(2, 101))
	if !w.Push(bar(2, 105)) {
		t.Fatal("same-ts push should succeed")
	}

	if w.Len() != 2 {
		t.Fatalf("expected len=2, got %d", w.Len())
	}
	last, _ := w.Last()
	if last.Close != 105 {
		t.Fatalf("expected replaced close=105, got %v", last.Close)
	}
}

func TestWindow_RejectsOutOfOrder(t *testing.T) {
	w := New(3)
	w.Push(bar(5, 100))
	if w.Push(bar(4, 99)) {
		t.Fatal("older candle should be rejected")
	}
	if w.Rejected() != 1 || w.Len() != 1 {
		t.Fatalf("rejected=%d len=%d", w.Rejected(), w.Len())
	}
}

func TestWindow_SnapshotIsCopy(t *testing.T) {
	w := New(2)
	w.Push(bar(1, 100))
	s := w.Snapshot()
	s[0].Close = 0

	last, _ := w.Last()
	if last.Close != 100 {
		t.Fatal("snapshot must not alias the window")
	}
}

func TestWindow_Concurrent(t *testing.T) {
	w := New(64)
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		for i := int64(0); i < 10_000; i++ {
			w.Push(bar(i, float64(i)))
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			s := w.Snapshot()
			for j := 1; j < len(s); j++ {
				if s[j].TS <= s[j-1].TS {
					t.Errorf("snapshot out of order at %d", j)
					return
				}
			}
		}
	}()
	wg.Wait()

	if w.Len() != 64 {
		t.Fatalf("expected full window, got %d", w.Len())
	}
}

func TestWindow_MinCapacity(t *testing.T) {
	if New(0).Cap() != 1 {
		t.Fatal("capacity should be clamped to 1")
	}
}
