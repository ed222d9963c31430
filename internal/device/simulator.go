// Package device provides the acquisition parameter types and a simulated
// camera that produces frames on a background goroutine and saves them
// through a worker pool.
package device

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"gopkg.in/tomb.v2"

	"github.com/chr1sbest/acqctl/internal/logger"
	"github.com/chr1sbest/acqctl/internal/monitor"
	"github.com/chr1sbest/acqctl/internal/resilience"
	"github.com/chr1sbest/acqctl/internal/workerpool"
)

var (
	// ErrBusy is returned when the device is asked to change while running.
	ErrBusy = errors.New("device is acquiring")
	// ErrListenerRegistered is returned by a second RegisterListener call.
	ErrListenerRegistered = errors.New("status listener already registered")
)

// JobRunner accepts background save jobs.
type JobRunner interface {
	Submit(job workerpool.Job) error
}

// SimulatorOptions tunes the simulated camera.
type SimulatorOptions struct {
	// Sensor is the unbinned sensor size.
	Sensor Size
	// LineTime is the readout time of one binned sensor row.
	LineTime time.Duration
	// SaveLatency is how long writing one frame takes.
	SaveLatency time.Duration
	Logger      logger.Logger
}

// DefaultSimulatorOptions describes a 2048x2048 camera.
func DefaultSimulatorOptions() SimulatorOptions {
	return SimulatorOptions{
		Sensor:      Size{Width: 2048, Height: 2048},
		LineTime:    time.Microsecond,
		SaveLatency: 2 * time.Millisecond,
	}
}

// Simulator is a camera that acquires frames on a timer. It satisfies the
// device contract the session drives.
type Simulator struct {
	opts   SimulatorOptions
	log    logger.Logger
	pool   JobRunner
	saving *Saving

	cfgMu  sync.Mutex
	params AcqParams

	mu           sync.Mutex
	t            *tomb.Tomb
	gen          int
	lastAcquired int
	lastSaved    int
	saved        []bool

	// notifyMu serializes listener calls so snapshots arrive in order.
	notifyMu sync.Mutex
	listener StatusListener
}

// NewSimulator creates a camera that saves through pool using the
// configuration held by saving.
func NewSimulator(pool JobRunner, saving *Saving, opts SimulatorOptions) *Simulator {
	def := DefaultSimulatorOptions()
	if opts.Sensor.IsEmpty() {
		opts.Sensor = def.Sensor
	}
	if opts.LineTime < 0 {
		opts.LineTime = 0
	}
	if opts.SaveLatency < 0 {
		opts.SaveLatency = 0
	}
	log := opts.Logger
	if log == nil {
		log = logger.NewNoopLogger()
	}
	if saving == nil {
		saving = NewSaving()
	}

	return &Simulator{
		opts:         opts,
		log:          log,
		pool:         pool,
		saving:       saving,
		params:       DefaultAcqParams(),
		lastAcquired: -1,
		lastSaved:    -1,
	}
}

// Configure validates and stores the acquisition parameters.
func (s *Simulator) Configure(p AcqParams) error {
	if s.busy() {
		return resilience.NewTransientError(ErrBusy)
	}
	if err := s.check(p); err != nil {
		return resilience.NewPermanentError(err)
	}

	s.cfgMu.Lock()
	defer s.cfgMu.Unlock()
	s.params = p
	return nil
}

func (s *Simulator) check(p AcqParams) error {
	if p.Exposure < 0 {
		return fmt.Errorf("negative exposure %s", p.Exposure)
	}
	if p.Bin.X < 1 || p.Bin.Y < 1 {
		return fmt.Errorf("invalid binning %s", p.Bin)
	}
	if p.ROI.FullFrame() {
		return nil
	}

	maxW := s.opts.Sensor.Width / p.Bin.X
	maxH := s.opts.Sensor.Height / p.Bin.Y
	r := p.ROI
	if r.TopLeft.X < 0 || r.TopLeft.Y < 0 || r.Size.IsEmpty() ||
		r.TopLeft.X+r.Size.Width > maxW || r.TopLeft.Y+r.Size.Height > maxH {
		return fmt.Errorf("roi %s outside binned sensor %dx%d", r, maxW, maxH)
	}
	return nil
}

// FrameCount returns the configured number of frames.
func (s *Simulator) FrameCount() int {
	s.cfgMu.Lock()
	defer s.cfgMu.Unlock()
	return s.params.FrameCount
}

// Params returns the current acquisition parameters.
func (s *Simulator) Params() AcqParams {
	s.cfgMu.Lock()
	defer s.cfgMu.Unlock()
	return s.params
}

// RegisterListener installs l as the status listener. Only one listener
// may be registered for the life of the device.
func (s *Simulator) RegisterListener(l StatusListener) error {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()
	if s.listener != nil {
		return ErrListenerRegistered
	}
	s.listener = l
	return nil
}

// FrameTime is the time between two frames for p: exposure plus readout of
// the binned rows in the region of interest.
func (s *Simulator) FrameTime(p AcqParams) time.Duration {
	rows := s.opts.Sensor.Height
	if p.Bin.Y > 1 {
		rows /= p.Bin.Y
	}
	if !p.ROI.FullFrame() {
		rows = p.ROI.Size.Height
	}
	return p.Exposure + time.Duration(rows)*s.opts.LineTime
}

// Start begins acquiring frames in the background.
func (s *Simulator) Start(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	params := s.Params()
	if params.FrameCount < 1 {
		return resilience.NewPermanentError(fmt.Errorf("cannot start with %d frames", params.FrameCount))
	}

	if s.busy() {
		return resilience.NewTransientError(ErrBusy)
	}

	s.mu.Lock()
	s.gen++
	s.lastAcquired = -1
	s.lastSaved = -1
	s.saved = make([]bool, params.FrameCount)
	t := new(tomb.Tomb)
	s.t = t
	gen := s.gen
	s.mu.Unlock()

	s.log.Debug("acquisition started",
		logger.F("frames", params.FrameCount),
		logger.F("exposure", params.Exposure.String()),
		logger.F("bin", params.Bin.String()),
		logger.F("roi", params.ROI.String()))

	t.Go(func() error { return s.produce(t, gen, params) })
	return nil
}

func (s *Simulator) produce(t *tomb.Tomb, gen int, p AcqParams) error {
	period := s.FrameTime(p)
	saving := s.saving.Params()
	enabled := saving.Mode != SavingManual

	timer := time.NewTimer(period)
	defer timer.Stop()

	for frame := 0; frame < p.FrameCount; frame++ {
		select {
		case <-t.Dying():
			s.log.Debug("acquisition stopped", logger.F("last_acquired", frame-1))
			return nil
		case <-timer.C:
		}
		timer.Reset(period)

		s.mu.Lock()
		if gen != s.gen {
			s.mu.Unlock()
			return nil
		}
		s.lastAcquired = frame
		if !enabled {
			s.lastSaved = frame
		}
		s.mu.Unlock()
		s.notify(gen)

		if enabled {
			if err := s.submitSave(gen, frame, saving); err != nil {
				s.log.Error("failed to queue frame for saving", logger.F("frame", frame), logger.F("error", err.Error()))
				return fmt.Errorf("failed to queue frame %d: %w", frame, err)
			}
		}
	}
	return nil
}

func (s *Simulator) submitSave(gen, frame int, p SavingParams) error {
	return s.pool.Submit(func() error {
		if s.opts.SaveLatency > 0 {
			time.Sleep(s.opts.SaveLatency)
		}
		s.log.Debug("frame saved", logger.F("frame", frame), logger.F("file", p.FileName(frame)))
		if s.markSaved(gen, frame) {
			s.notify(gen)
		}
		return nil
	})
}

// markSaved records frame as written and advances lastSaved over the
// contiguous prefix of saved frames. It reports whether lastSaved moved.
func (s *Simulator) markSaved(gen, frame int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.gen || frame >= len(s.saved) {
		return false
	}
	s.saved[frame] = true

	moved := false
	for s.lastSaved+1 < len(s.saved) && s.saved[s.lastSaved+1] {
		s.lastSaved++
		moved = true
	}
	return moved
}

// notify reports the current progress of run gen. Runs retired by Stop or
// a newer Start stay silent.
func (s *Simulator) notify(gen int) {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	if s.listener == nil {
		return
	}
	s.mu.Lock()
	current := gen == s.gen
	snap := monitor.Snapshot{LastAcquired: s.lastAcquired, LastSaved: s.lastSaved}
	s.mu.Unlock()
	if !current {
		return
	}
	s.listener.OnStatusChanged(snap)
}

// Snapshot returns the current progress.
func (s *Simulator) Snapshot() (monitor.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return monitor.Snapshot{LastAcquired: s.lastAcquired, LastSaved: s.lastSaved}, nil
}

// Stop aborts a running acquisition and waits for the producer to exit.
// The run is retired first: frames still queued for saving are written but
// no longer move LastSaved or reach the listener. When Stop returns no
// notification of the stopped run is in flight.
func (s *Simulator) Stop() error {
	s.mu.Lock()
	s.gen++
	t := s.t
	s.mu.Unlock()

	var err error
	if t != nil {
		t.Kill(nil)
		err = t.Wait()
	}

	// Wait out a listener call that passed the generation check before
	// the bump.
	s.notifyMu.Lock()
	s.notifyMu.Unlock()
	return err
}

// busy reports whether frames remain to be acquired. A producer that has
// already delivered its last frame is reaped instead.
func (s *Simulator) busy() bool {
	s.mu.Lock()
	t := s.t
	done := s.lastAcquired+1 >= len(s.saved)
	s.mu.Unlock()

	if t == nil || !t.Alive() {
		return false
	}
	if !done {
		return true
	}
	_ = t.Wait()
	return false
}
