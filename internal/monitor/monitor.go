// Package monitor turns frame-count snapshots from an acquisition device into
// phase transitions and throttled progress reports.
//
// The same evaluation runs in both delivery modes: pushed by the device
// through OnStatusChanged (or a channel via Consume), or pulled by the
// waiting goroutine via Poll.
package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/chr1sbest/acqctl/internal/acq"
	"github.com/chr1sbest/acqctl/internal/logger"
)

const (
	MsgAllAcquired = "All frames acquired!"
	MsgAllSaved    = "All frames saved!"

	// DefaultReportInterval is the minimum spacing of non-transition reports.
	DefaultReportInterval = time.Second
	// DefaultPollInterval is how long Poll sleeps between snapshots.
	DefaultPollInterval = 100 * time.Millisecond
)

// Snapshot is a point-in-time view of device progress. Indices are zero
// based; -1 means nothing acquired or saved yet.
type Snapshot struct {
	LastAcquired int
	LastSaved    int
}

// Report is one emitted progress report.
type Report struct {
	Acquired   int
	Saved      int
	Total      int
	Phase      acq.Phase
	Message    string
	Transition bool
	At         time.Time
}

// Line renders the report's progress line.
func (r Report) Line() string {
	return fmt.Sprintf("Last Acquired: %8d, Last Saved: %8d", r.Acquired, r.Saved)
}

// Sink receives report lines. Every logger.Logger is a Sink.
type Sink interface {
	Always(msg string, fields ...logger.Field)
}

// FrameCounter reports the frame count the device is configured for.
type FrameCounter interface {
	FrameCount() int
}

// SnapshotSource produces snapshots on demand (poll mode).
type SnapshotSource interface {
	Snapshot() (Snapshot, error)
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(m *Monitor) { m.now = now }
}

// WithReportInterval sets the initial report throttle.
func WithReportInterval(d time.Duration) Option {
	return func(m *Monitor) { m.interval = d }
}

// Monitor evaluates snapshots against the acquisition State.
//
// A Monitor holds no lock of its own: callers must not evaluate snapshots
// from two goroutines at once. Devices serialize their notifications, and
// poll mode runs on a single goroutine.
type Monitor struct {
	state  *acq.State
	frames FrameCounter
	sink   Sink
	now    func() time.Time

	interval   time.Duration
	total      int
	captured   bool
	lastReport time.Time

	observers []func(Report)
}

// New creates a Monitor driving state. frames is consulted once per run, when
// the first frame is reported.
func New(state *acq.State, frames FrameCounter, sink Sink, opts ...Option) *Monitor {
	m := &Monitor{
		state:    state,
		frames:   frames,
		sink:     sink,
		now:      time.Now,
		interval: DefaultReportInterval,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.sink == nil {
		m.sink = logger.NewNoopLogger()
	}
	return m
}

// Observe registers fn to be called with every emitted report, on the
// goroutine that evaluated the snapshot.
func (m *Monitor) Observe(fn func(Report)) {
	m.observers = append(m.observers, fn)
}

// Reset prepares the monitor for a new run.
func (m *Monitor) Reset(interval time.Duration) {
	m.interval = interval
	m.total = 0
	m.captured = false
	m.lastReport = time.Time{}
}

// Total returns the captured frame count and whether it has been captured
// yet in this run.
func (m *Monitor) Total() (int, bool) {
	return m.total, m.captured
}

// Evaluate applies one snapshot. It returns the emitted report, if any.
func (m *Monitor) Evaluate(snap Snapshot) (Report, bool) {
	// The frame count may be changed right up to the moment the producer
	// starts, so it is read only once the first frame exists.
	if snap.LastAcquired == 0 {
		m.capture()
	}

	var msg string
	changed := false
	if m.captured {
		last := m.total - 1
		if snap.LastAcquired == last && m.state.Get() == acq.Acquiring {
			m.state.Set(acq.Saving)
			msg = MsgAllAcquired
			changed = true
		}
		// Checked after the acquired rule so that one snapshot satisfying
		// both ends in Finished.
		if snap.LastSaved == last && m.state.Get() != acq.Finished {
			m.state.Set(acq.Finished)
			msg = MsgAllSaved
			changed = true
		}
	}

	now := m.now()
	if !changed && now.Sub(m.lastReport) < m.interval {
		return Report{}, false
	}
	m.lastReport = now

	r := Report{
		Acquired:   snap.LastAcquired,
		Saved:      snap.LastSaved,
		Total:      m.total,
		Phase:      m.state.Get(),
		Message:    msg,
		Transition: changed,
		At:         now,
	}
	m.sink.Always(r.Line())
	if msg != "" {
		m.sink.Always(msg)
	}
	for _, fn := range m.observers {
		fn(r)
	}
	return r, true
}

func (m *Monitor) capture() {
	if m.captured {
		return
	}
	m.total = m.frames.FrameCount()
	m.captured = true
}

// OnStatusChanged is the event-mode entry point called by the device.
func (m *Monitor) OnStatusChanged(snap Snapshot) {
	m.Evaluate(snap)
}

// Consume evaluates snapshots from ch until the run leaves the busy phases,
// ch is closed or ctx ends.
func (m *Monitor) Consume(ctx context.Context, ch <-chan Snapshot) error {
	for m.state.Get().In(acq.Busy) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case snap, ok := <-ch:
			if !ok {
				return nil
			}
			m.Evaluate(snap)
		}
	}
	return nil
}

// Poll pulls snapshots from src every interval while the run is busy. It
// replaces a blocking wait in poll mode.
func (m *Monitor) Poll(ctx context.Context, src SnapshotSource, interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	// Polled snapshots can coalesce past frame 0, so the total is read
	// once on entry instead of waiting for the first frame.
	if m.state.Get().In(acq.Busy) {
		m.capture()
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for m.state.Get().In(acq.Busy) {
		if err := ctx.Err(); err != nil {
			return err
		}

		snap, err := src.Snapshot()
		if err != nil {
			return fmt.Errorf("failed to read device status: %w", err)
		}
		m.Evaluate(snap)
		if !m.state.Get().In(acq.Busy) {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}
