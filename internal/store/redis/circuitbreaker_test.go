package redis

import (
	"errors"
	"testing"
	"time"
)

var errFail = errors.New("fail")

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestBreaker(maxFailures int, reset time.Duration) (*CircuitBreaker, *fakeClock) {
	clk := &fakeClock{t: time.Unix(1700000000, 0)}
	cb := NewCircuitBreaker(maxFailures, reset)
	cb.now = clk.now
	return cb, clk
}

func TestCircuitBreaker_StartsClosed(t *testing.T) {
	cb := NewCircuitBreaker(3, time.Second)
	if cb.CurrentState() != StateClosed {
		t.Errorf("expected closed, got %v", cb.CurrentState())
	}
}

func TestCircuitBreaker_OpensAfterFailures(t *testing.T) {
	cb, _ := newTestBreaker(3, time.Second)

	for i := 0; i < 3; i++ {
		if err := cb.Execute(func() error { return errFail }); err != errFail {
			t.Fatalf("call %d: expected errFail, got %v", i, err)
		}
	}
	if cb.CurrentState() != StateOpen {
		t.Fatalf("expected open after 3 failures, got %v", cb.CurrentState())
	}

	called := false
	err := cb.Execute(func() error { called = true; return nil })
	if err != ErrCircuitOpen {
		t.Errorf("expected ErrCircuitOpen, got %v", err)
	}
	if called {
		t.Error("fn ran while circuit was open")
	}
	if cb.Trips() != 1 {
		t.Errorf("expected 1 trip, got %d", cb.Trips())
	}
}

func TestCircuitBreaker_HalfOpenRecovery(t *testing.T) {
	cb, clk := newTestBreaker(2, 50*time.Millisecond)
	for i := 0; i < 2; i++ {
		cb.Execute(func() error { return errFail })
	}

	clk.advance(49 * time.Millisecond)
	if err := cb.Execute(func() error { return nil }); err != ErrCircuitOpen {
		t.Fatalf("expected ErrCircuitOpen before timeout, got %v", err)
	}

	clk.advance(time.Millisecond)
	if err := cb.Execute(func() error { return nil }); err != nil {
		t.Fatalf("expected probe to pass, got %v", err)
	}
	if cb.CurrentState() != StateClosed {
		t.Errorf("expected closed after successful probe, got %v", cb.CurrentState())
	}
}

func TestCircuitBreaker_HalfOpenFailure(t *testing.T) {
	cb, clk := newTestBreaker(2, 50*time.Millisecond)
	for i := 0; i < 2; i++ {
		cb.Execute(func() error { return errFail })
	}

	clk.advance(60 * time.Millisecond)
	cb.Execute(func() error { return errFail })

	if cb.CurrentState() != StateOpen {
		t.Errorf("expected open after failed probe, got %v", cb.CurrentState())
	}
	if cb.Trips() != 2 {
		t.Errorf("expected 2 trips, got %d", cb.Trips())
	}
}

func TestCircuitBreaker_SingleProbe(t *testing.T) {
	cb, clk := newTestBreaker(1, 10*time.Millisecond)
	cb.Execute(func() error { return errFail })
	clk.advance(20 * time.Millisecond)

	err := cb.Execute(func() error {
		// A second caller arriving mid-probe is rejected.
		if inner := cb.Execute(func() error { return nil }); inner != ErrCircuitOpen {
			t.Errorf("expected concurrent call rejected, got %v", inner)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("probe: %v", err)
	}
	if cb.CurrentState() != StateClosed {
		t.Errorf("expected closed, got %v", cb.CurrentState())
	}
}

func TestCircuitBreaker_SuccessResetsFailureCount(t *testing.T) {
	cb, _ := newTestBreaker(3, time.Second)

	cb.Execute(func() error { return errFail })
	cb.Execute(func() error { return errFail })
	cb.Execute(func() error { return nil })

	cb.Execute(func() error { return errFail })
	cb.Execute(func() error { return errFail })

	if cb.CurrentState() != StateClosed {
		t.Errorf("expected closed, counter should have reset; got %v", cb.CurrentState())
	}
}

func TestCircuitBreaker_OnStateChangeCallback(t *testing.T) {
	var transitions []State
	cb, clk := newTestBreaker(1, 50*time.Millisecond)
	cb.OnStateChange = func(from, to State) {
		transitions = append(transitions, to)
	}

	cb.Execute(func() error { return errFail })
	if len(transitions) != 1 || transitions[0] != StateOpen {
		t.Fatalf("expected [open], got %v", transitions)
	}

	clk.advance(60 * time.Millisecond)
	cb.Execute(func() error { return nil })

	want := []State{StateOpen, StateHalfOpen, StateClosed}
	if len(transitions) != len(want) {
		t.Fatalf("expected %v, got %v", want, transitions)
	}
	for i := range want {
		if transitions[i] != want[i] {
			t.Errorf("transition %d: expected %v, got %v", i, want[i], transitions[i])
		}
	}
}
