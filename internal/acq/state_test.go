package acq

import (
	"context"
	"errors"
	"testing"
	"testing/quick"
	"time"
)

func TestPhaseString(t *testing.T) {
	tests := []struct {
		phase    Phase
		expected string
	}{
		{Idle, "idle"},
		{Acquiring, "acquiring"},
		{Saving, "saving"},
		{Finished, "finished"},
		{Busy, "acquiring|saving"},
		{0, "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			if got := tt.phase.String(); got != tt.expected {
				t.Errorf("String() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestPhaseIn(t *testing.T) {
	if !Acquiring.In(Busy) || !Saving.In(Busy) {
		t.Error("expected acquiring and saving to be busy")
	}
	if Idle.In(Busy) || Finished.In(Busy) {
		t.Error("expected idle and finished to be outside busy")
	}
}

func TestSetThenWaitNotProperty(t *testing.T) {
	phases := []Phase{Idle, Acquiring, Saving, Finished}

	// After any sequence of Sets, Get reports the last one and WaitNot(Busy)
	// returns it without blocking when it is not busy.
	prop := func(seq []uint8) bool {
		s := NewState()
		want := Idle
		for _, v := range seq {
			want = phases[int(v)%len(phases)]
			s.Set(want)
		}
		if s.Get() != want {
			return false
		}
		if want.In(Busy) {
			return true
		}
		return s.WaitNot(Busy) == want
	}
	if err := quick.Check(prop, nil); err != nil {
		t.Error(err)
	}
}

func TestNewStateIsIdle(t *testing.T) {
	s := NewState()
	if got := s.Get(); got != Idle {
		t.Fatalf("expected idle, got %s", got)
	}
}

func TestSetReplacesPhase(t *testing.T) {
	s := NewState()
	s.Set(Acquiring)
	if got := s.Get(); got != Acquiring {
		t.Fatalf("expected acquiring, got %s", got)
	}
}

func TestWaitNotReturnsImmediatelyOutsideMask(t *testing.T) {
	s := NewState()
	if got := s.WaitNot(Busy); got != Idle {
		t.Fatalf("expected idle, got %s", got)
	}
}

func TestWaitNotReleasedOnlyOutsideMask(t *testing.T) {
	s := NewState()
	s.Set(Acquiring)

	released := make(chan Phase, 1)
	go func() {
		released <- s.WaitNot(Busy)
	}()

	// Moving inside the mask must not release the waiter.
	time.Sleep(20 * time.Millisecond)
	s.Set(Saving)
	s.Set(Acquiring)
	s.Set(Saving)

	select {
	case p := <-released:
		t.Fatalf("waiter released while still busy (phase %s)", p)
	case <-time.After(50 * time.Millisecond):
	}

	s.Set(Finished)

	select {
	case p := <-released:
		if p != Finished {
			t.Errorf("expected waiter to observe finished, got %s", p)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("waiter not released after leaving busy mask")
	}
}

func TestWaitNotReleasesAllWaiters(t *testing.T) {
	s := NewState()
	s.Set(Acquiring)

	const waiters = 5
	released := make(chan Phase, waiters)
	for i := 0; i < waiters; i++ {
		go func() {
			released <- s.WaitNot(Busy)
		}()
	}

	time.Sleep(20 * time.Millisecond)
	s.Set(Idle)

	for i := 0; i < waiters; i++ {
		select {
		case p := <-released:
			if p != Idle {
				t.Errorf("waiter %d observed %s", i, p)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("only %d of %d waiters released", i, waiters)
		}
	}
}

func TestWaitNotContextCanceled(t *testing.T) {
	s := NewState()
	s.Set(Saving)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := s.WaitNotContext(ctx, Busy)
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("WaitNotContext did not return after cancel")
	}

	if got := s.Get(); got != Saving {
		t.Errorf("cancel must not change the phase, got %s", got)
	}
}

func TestWaitNotContextDeadline(t *testing.T) {
	s := NewState()
	s.Set(Acquiring)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	p, err := s.WaitNotContext(ctx, Busy)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if p != Acquiring {
		t.Errorf("expected acquiring, got %s", p)
	}
}

func TestWaitNotContextReleasedBySet(t *testing.T) {
	s := NewState()
	s.Set(Acquiring)

	go func() {
		time.Sleep(20 * time.Millisecond)
		s.Set(Finished)
	}()

	p, err := s.WaitNotContext(context.Background(), Busy)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p != Finished {
		t.Errorf("expected finished, got %s", p)
	}
}
