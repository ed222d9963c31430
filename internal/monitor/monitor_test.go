package monitor

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"testing/quick"
	"time"

	"github.com/chr1sbest/acqctl/internal/acq"
	"github.com/chr1sbest/acqctl/internal/logger"
)

type fixedFrames struct {
	n     int
	reads int
}

func (f *fixedFrames) FrameCount() int {
	f.reads++
	return f.n
}

type recordingSink struct {
	mu    sync.Mutex
	lines []string
}

func (s *recordingSink) Always(msg string, _ ...logger.Field) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lines = append(s.lines, msg)
}

func (s *recordingSink) count(substr string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, l := range s.lines {
		if strings.Contains(l, substr) {
			n++
		}
	}
	return n
}

// fakeClock advances only when told to.
type fakeClock struct {
	t time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func snap(acquired, saved int) Snapshot {
	return Snapshot{LastAcquired: acquired, LastSaved: saved}
}

func reportsOf(s *recordingSink) int {
	return s.count("Last Acquired:")
}

func acquiringState() *acq.State {
	s := acq.NewState()
	s.Set(acq.Acquiring)
	return s
}

func newTestMonitor(total int) (*Monitor, *acq.State, *recordingSink, *fakeClock) {
	state := acquiringState()
	sink := &recordingSink{}
	clock := newFakeClock()
	m := New(state, &fixedFrames{n: total}, sink, WithClock(clock.now), WithReportInterval(time.Second))
	return m, state, sink, clock
}

func TestReportLineFormat(t *testing.T) {
	r := Report{Acquired: 4, Saved: -1}
	want := "Last Acquired:        4, Last Saved:       -1"
	if got := r.Line(); got != want {
		t.Errorf("Line() = %q, want %q", got, want)
	}
}

func TestEndToEndFiveFrames(t *testing.T) {
	m, state, sink, clock := newTestMonitor(5)

	var transitions []acq.Phase
	m.Observe(func(r Report) {
		if r.Transition {
			transitions = append(transitions, r.Phase)
		}
	})

	seq := []Snapshot{
		snap(0, 0), snap(1, 0), snap(2, 0), snap(3, 0), snap(4, 0),
		snap(4, 1), snap(4, 2), snap(4, 3), snap(4, 4),
	}
	for i, s := range seq {
		clock.advance(10 * time.Millisecond)
		r, emitted := m.Evaluate(s)

		switch i {
		case 4:
			if !emitted || r.Message != MsgAllAcquired || state.Get() != acq.Saving {
				t.Fatalf("snapshot %v: expected saving transition, got emitted=%v report=%+v phase=%s", s, emitted, r, state.Get())
			}
		case 8:
			if !emitted || r.Message != MsgAllSaved || state.Get() != acq.Finished {
				t.Fatalf("snapshot %v: expected finished transition, got emitted=%v report=%+v phase=%s", s, emitted, r, state.Get())
			}
		}
	}

	if len(transitions) != 2 || transitions[0] != acq.Saving || transitions[1] != acq.Finished {
		t.Errorf("unexpected transitions: %v", transitions)
	}
	if sink.count(MsgAllAcquired) != 1 || sink.count(MsgAllSaved) != 1 {
		t.Errorf("expected one message each, got lines %v", sink.lines)
	}
}

func TestSingleFrameGoesStraightToFinished(t *testing.T) {
	m, state, sink, clock := newTestMonitor(1)

	var phases []acq.Phase
	m.Observe(func(r Report) { phases = append(phases, r.Phase) })

	r, emitted := m.Evaluate(snap(0, 0))
	if !emitted || !r.Transition {
		t.Fatalf("expected a transition report, got emitted=%v report=%+v", emitted, r)
	}
	if state.Get() != acq.Finished {
		t.Fatalf("expected finished, got %s", state.Get())
	}
	if r.Message != MsgAllSaved {
		t.Errorf("expected combined report to carry %q, got %q", MsgAllSaved, r.Message)
	}

	clock.advance(10 * time.Millisecond)
	if _, emitted := m.Evaluate(snap(0, 0)); emitted {
		t.Error("second identical snapshot should be a no-op")
	}
	if state.Get() != acq.Finished {
		t.Errorf("phase changed on no-op snapshot: %s", state.Get())
	}
	if reportsOf(sink) != 1 {
		t.Errorf("expected exactly one report, got %d", reportsOf(sink))
	}
	for _, p := range phases {
		if p == acq.Saving {
			t.Error("saving must not be reported when both rules fire together")
		}
	}
}

func TestRuleAEdgeTriggered(t *testing.T) {
	m, state, sink, clock := newTestMonitor(3)
	m.Evaluate(snap(0, -1))

	for i := 0; i < 5; i++ {
		clock.advance(10 * time.Millisecond)
		m.Evaluate(snap(2, 0))
	}

	if state.Get() != acq.Saving {
		t.Fatalf("expected saving, got %s", state.Get())
	}
	if n := sink.count(MsgAllAcquired); n != 1 {
		t.Errorf("expected one %q, got %d", MsgAllAcquired, n)
	}
}

func TestRuleBPrecedence(t *testing.T) {
	m, state, sink, _ := newTestMonitor(4)
	m.Evaluate(snap(0, -1))

	reportsBefore := reportsOf(sink)
	r, emitted := m.Evaluate(snap(3, 3))

	if !emitted || state.Get() != acq.Finished {
		t.Fatalf("expected finished, got emitted=%v phase=%s", emitted, state.Get())
	}
	if r.Phase != acq.Finished {
		t.Errorf("report phase = %s, want finished", r.Phase)
	}
	if got := reportsOf(sink) - reportsBefore; got != 1 {
		t.Errorf("expected one combined report, got %d", got)
	}
	if sink.count(MsgAllAcquired) != 0 {
		t.Error("combined report should not carry the acquired message")
	}
}

func TestRuleBFiresWithoutSaving(t *testing.T) {
	m, state, _, _ := newTestMonitor(5)
	m.Evaluate(snap(0, -1))

	// Coalesced snapshot: saving finished before acquisition completion was seen.
	m.Evaluate(snap(3, 4))
	if state.Get() != acq.Finished {
		t.Errorf("expected finished, got %s", state.Get())
	}
}

func TestThrottle(t *testing.T) {
	m, _, sink, clock := newTestMonitor(100)

	for i := 0; i < 10; i++ {
		m.Evaluate(snap(i, -1))
		clock.advance(50 * time.Millisecond)
	}
	if got := reportsOf(sink); got != 1 {
		t.Fatalf("expected 1 report for 10 snapshots in 0.5s, got %d", got)
	}
}

func TestThrottleTransitionForcesReport(t *testing.T) {
	m, _, sink, clock := newTestMonitor(5)

	for i := 0; i < 10; i++ {
		acquired := i
		if acquired > 4 {
			acquired = 4
		}
		m.Evaluate(snap(acquired, -1))
		clock.advance(50 * time.Millisecond)
	}
	// One throttled report plus one forced by the transition at snapshot 5.
	if got := reportsOf(sink); got != 2 {
		t.Fatalf("expected 2 reports, got %d", got)
	}
}

func TestThrottleElapsedInterval(t *testing.T) {
	m, _, sink, clock := newTestMonitor(100)

	m.Evaluate(snap(0, -1))
	clock.advance(999 * time.Millisecond)
	m.Evaluate(snap(1, -1))
	clock.advance(time.Millisecond)
	m.Evaluate(snap(2, -1))

	if got := reportsOf(sink); got != 2 {
		t.Errorf("expected reports at 0s and 1s, got %d", got)
	}
}

func TestTotalCapturedLazilyOnce(t *testing.T) {
	frames := &fixedFrames{n: 3}
	state := acquiringState()
	m := New(state, frames, nil)

	m.Evaluate(snap(-1, -1))
	if _, ok := m.Total(); ok {
		t.Fatal("total captured before first frame")
	}
	if frames.reads != 0 {
		t.Fatalf("frame count read too early: %d", frames.reads)
	}

	// Changed between configuration and first frame: the new value wins.
	frames.n = 2
	m.Evaluate(snap(0, -1))
	m.Evaluate(snap(0, -1))
	if total, ok := m.Total(); !ok || total != 2 {
		t.Fatalf("expected total 2, got %d (captured=%v)", total, ok)
	}
	if frames.reads != 1 {
		t.Errorf("expected a single frame count read, got %d", frames.reads)
	}

	m.Evaluate(snap(1, 1))
	if state.Get() != acq.Finished {
		t.Errorf("expected finished, got %s", state.Get())
	}
}

func TestNoFirstFrameNeverTransitions(t *testing.T) {
	m, state, _, clock := newTestMonitor(0)

	for i := 0; i < 20; i++ {
		clock.advance(time.Second)
		m.Evaluate(snap(-1, -1))
	}
	if state.Get() != acq.Acquiring {
		t.Errorf("expected run to stay acquiring, got %s", state.Get())
	}
}

func TestResetStartsNewRun(t *testing.T) {
	m, state, _, clock := newTestMonitor(1)
	m.Evaluate(snap(0, 0))
	if state.Get() != acq.Finished {
		t.Fatalf("expected finished, got %s", state.Get())
	}

	m.frames.(*fixedFrames).n = 2
	m.Reset(time.Second)
	state.Set(acq.Acquiring)
	clock.advance(10 * time.Millisecond)

	m.Evaluate(snap(0, -1))
	if state.Get() != acq.Acquiring {
		t.Errorf("stale total used after reset: phase %s", state.Get())
	}
	m.Evaluate(snap(1, 1))
	if state.Get() != acq.Finished {
		t.Errorf("expected finished, got %s", state.Get())
	}
}

func TestPhaseMonotonicity(t *testing.T) {
	rank := map[acq.Phase]int{acq.Acquiring: 0, acq.Saving: 1, acq.Finished: 2}

	property := func(raw []uint8, totalSeed uint8) bool {
		total := int(totalSeed%8) + 1
		m, state, _, clock := newTestMonitor(total)

		last := rank[state.Get()]
		for i := 0; i+1 < len(raw); i += 2 {
			acquired := int(raw[i])%(total+1) - 1
			saved := int(raw[i+1])%(total+1) - 1
			clock.advance(time.Duration(raw[i]) * time.Millisecond)
			m.Evaluate(snap(acquired, saved))

			r := rank[state.Get()]
			if r < last {
				return false
			}
			last = r
		}
		return true
	}

	if err := quick.Check(property, &quick.Config{MaxCount: 500}); err != nil {
		t.Error(err)
	}
}

type scriptedSource struct {
	mu    sync.Mutex
	snaps []Snapshot
	calls int
	err   error
}

func (s *scriptedSource) Snapshot() (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return Snapshot{}, s.err
	}
	i := s.calls
	if i >= len(s.snaps) {
		i = len(s.snaps) - 1
	}
	s.calls++
	return s.snaps[i], nil
}

func TestPollRunsUntilFinished(t *testing.T) {
	state := acquiringState()
	sink := &recordingSink{}
	m := New(state, &fixedFrames{n: 3}, sink)
	src := &scriptedSource{snaps: []Snapshot{
		snap(0, -1), snap(1, 0), snap(2, 0), snap(2, 1), snap(2, 2),
	}}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := m.Poll(ctx, src, time.Millisecond); err != nil {
		t.Fatalf("Poll failed: %v", err)
	}
	if state.Get() != acq.Finished {
		t.Errorf("expected finished, got %s", state.Get())
	}
	if src.calls != 5 {
		t.Errorf("expected poll to stop after the final snapshot, got %d calls", src.calls)
	}
	if sink.count(MsgAllSaved) != 1 {
		t.Errorf("expected saved message, got %v", sink.lines)
	}
}

func TestPollCapturesTotalOnEntry(t *testing.T) {
	state := acquiringState()
	m := New(state, &fixedFrames{n: 4}, nil)
	// Frame 0 is never observed.
	src := &scriptedSource{snaps: []Snapshot{snap(2, 1), snap(3, 2), snap(3, 3)}}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := m.Poll(ctx, src, time.Millisecond); err != nil {
		t.Fatalf("Poll failed: %v", err)
	}
	if state.Get() != acq.Finished {
		t.Errorf("expected finished, got %s", state.Get())
	}
	if total, ok := m.Total(); !ok || total != 4 {
		t.Errorf("expected total 4, got %d (captured=%v)", total, ok)
	}
}

func TestPollHonoursContext(t *testing.T) {
	state := acquiringState()
	m := New(state, &fixedFrames{n: 3}, nil)
	src := &scriptedSource{snaps: []Snapshot{snap(-1, -1)}}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	err := m.Poll(ctx, src, 5*time.Millisecond)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestPollSourceError(t *testing.T) {
	state := acquiringState()
	m := New(state, &fixedFrames{n: 3}, nil)
	boom := errors.New("serial line timeout")

	err := m.Poll(context.Background(), &scriptedSource{err: boom}, time.Millisecond)
	if !errors.Is(err, boom) {
		t.Fatalf("expected source error, got %v", err)
	}
}

func TestPollNotBusyReturnsImmediately(t *testing.T) {
	state := acq.NewState()
	m := New(state, &fixedFrames{n: 3}, nil)
	src := &scriptedSource{snaps: []Snapshot{snap(0, 0)}}

	if err := m.Poll(context.Background(), src, time.Millisecond); err != nil {
		t.Fatal(err)
	}
	if src.calls != 0 {
		t.Errorf("expected no snapshots while idle, got %d", src.calls)
	}
}

func TestConsume(t *testing.T) {
	state := acquiringState()
	m := New(state, &fixedFrames{n: 2}, nil)

	ch := make(chan Snapshot, 4)
	ch <- snap(0, -1)
	ch <- snap(1, 0)
	ch <- snap(1, 1)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := m.Consume(ctx, ch); err != nil {
		t.Fatalf("Consume failed: %v", err)
	}
	if state.Get() != acq.Finished {
		t.Errorf("expected finished, got %s", state.Get())
	}
}

func TestConsumeClosedChannel(t *testing.T) {
	state := acquiringState()
	m := New(state, &fixedFrames{n: 2}, nil)

	ch := make(chan Snapshot)
	close(ch)
	if err := m.Consume(context.Background(), ch); err != nil {
		t.Fatalf("expected nil on closed channel, got %v", err)
	}
}

func TestOnStatusChangedReleasesWaiter(t *testing.T) {
	state := acquiringState()
	m := New(state, &fixedFrames{n: 2}, nil)

	done := make(chan acq.Phase, 1)
	go func() { done <- state.WaitNot(acq.Busy) }()

	go func() {
		for _, s := range []Snapshot{snap(0, -1), snap(1, 0), snap(1, 1)} {
			time.Sleep(5 * time.Millisecond)
			m.OnStatusChanged(s)
		}
	}()

	select {
	case p := <-done:
		if p != acq.Finished {
			t.Errorf("expected finished, got %s", p)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("waiter never released")
	}
}
