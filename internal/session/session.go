// Package session drives acquisition runs: it pushes configuration to the
// device, starts it, and blocks until the run is finished, saved and drained.
package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/chr1sbest/acqctl/internal/acq"
	"github.com/chr1sbest/acqctl/internal/device"
	"github.com/chr1sbest/acqctl/internal/logger"
	"github.com/chr1sbest/acqctl/internal/monitor"
	"github.com/chr1sbest/acqctl/internal/resilience"
	"github.com/chr1sbest/acqctl/internal/tracker"
)

// ErrRunInProgress is returned when a run is started or reconfigured while
// another is still acquiring or saving.
var ErrRunInProgress = errors.New("acquisition run in progress")

// Device is the camera the session drives.
type Device interface {
	Configure(p device.AcqParams) error
	Start(ctx context.Context) error
	Stop() error
	Snapshot() (monitor.Snapshot, error)
	FrameCount() int
	RegisterListener(l device.StatusListener) error
}

// Saver receives the saving configuration.
type Saver interface {
	Configure(p device.SavingParams) error
}

// Pool is the background worker pool drained at the end of every run.
type Pool interface {
	WaitIdle(ctx context.Context) error
}

// Mode selects how progress reaches the monitor.
type Mode int

const (
	// ModePoll has the waiting goroutine pull snapshots from the device.
	ModePoll Mode = iota
	// ModeEvents has the device push snapshots as they change.
	ModeEvents
)

func (m Mode) String() string {
	if m == ModeEvents {
		return "events"
	}
	return "poll"
}

// ParseMode accepts "poll" or "events".
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "poll":
		return ModePoll, nil
	case "events", "event":
		return ModeEvents, nil
	default:
		return ModePoll, fmt.Errorf("unknown mode %q (expected poll or events)", s)
	}
}

// Options configures a Session.
type Options struct {
	Mode           Mode
	ReportInterval time.Duration
	PollInterval   time.Duration
	// WaitTimeout bounds Wait. Zero waits until the caller's context ends.
	WaitTimeout  time.Duration
	StartRetries int
	Logger       logger.Logger
	// Clock replaces time.Now in the monitor.
	Clock func() time.Time
}

// DefaultOptions polls every 100ms and reports every second.
func DefaultOptions() Options {
	return Options{
		Mode:           ModePoll,
		ReportInterval: monitor.DefaultReportInterval,
		PollInterval:   monitor.DefaultPollInterval,
		StartRetries:   3,
	}
}

// RunContext is captured at Start and describes the current run.
type RunContext struct {
	ID             string
	Number         int
	Label          string
	FrameCount     int
	ReportInterval time.Duration
	Mode           Mode
	StartedAt      time.Time
}

// Session owns the acquisition state of one device.
type Session struct {
	dev   Device
	saver Saver
	pool  Pool
	opts  Options
	log   logger.Logger

	state *acq.State
	mon   *monitor.Monitor

	// startMu makes the busy check and the move to Acquiring one step, and
	// keeps setters out while a run is being started.
	startMu sync.Mutex

	mu        sync.Mutex
	params    device.AcqParams
	saving    device.SavingParams
	savingSet bool
	label     string
	run       RunContext
	runs      int

	trackerWriter *tracker.Writer
	history       *tracker.History
	scenario      string
}

// New creates a session. In event mode the session registers itself as the
// device's status listener.
func New(dev Device, saver Saver, pool Pool, opts Options) (*Session, error) {
	def := DefaultOptions()
	if opts.ReportInterval <= 0 {
		opts.ReportInterval = def.ReportInterval
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = def.PollInterval
	}
	if opts.StartRetries < 0 {
		opts.StartRetries = 0
	}
	log := opts.Logger
	if log == nil {
		log = logger.NewNoopLogger()
	}

	s := &Session{
		dev:    dev,
		saver:  saver,
		pool:   pool,
		opts:   opts,
		log:    log,
		state:  acq.NewState(),
		params: device.DefaultAcqParams(),
	}

	monOpts := []monitor.Option{monitor.WithReportInterval(opts.ReportInterval)}
	if opts.Clock != nil {
		monOpts = append(monOpts, monitor.WithClock(opts.Clock))
	}
	s.mon = monitor.New(s.state, dev, log, monOpts...)
	s.mon.Observe(s.onReport)

	if opts.Mode == ModeEvents {
		if err := dev.RegisterListener(s); err != nil {
			return nil, fmt.Errorf("failed to register status listener: %w", err)
		}
	}
	return s, nil
}

// OnStatusChanged is called by the device in event mode.
func (s *Session) OnStatusChanged(snap monitor.Snapshot) {
	s.mon.OnStatusChanged(snap)
}

// Observe registers fn for every progress report.
func (s *Session) Observe(fn func(monitor.Report)) {
	s.mon.Observe(fn)
}

// EnableRunTracking writes run_state.json and run metrics through w.
func (s *Session) EnableRunTracking(w *tracker.Writer) {
	s.trackerWriter = w
}

// SetHistory records every finished run in h.
func (s *Session) SetHistory(h *tracker.History) {
	s.history = h
}

// SetScenario names the scenario recorded with each run.
func (s *Session) SetScenario(name string) {
	s.scenario = name
}

// State returns the current phase.
func (s *Session) State() acq.Phase {
	return s.state.Get()
}

// Monitor exposes the session's monitor.
func (s *Session) Monitor() *monitor.Monitor {
	return s.mon
}

// Mode returns the delivery mode.
func (s *Session) Mode() Mode {
	return s.opts.Mode
}

// RunContext returns the context of the current or last run.
func (s *Session) RunContext() RunContext {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.run
}

// Params returns the acquisition parameters pushed on the next Start.
func (s *Session) Params() device.AcqParams {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.params
}

func (s *Session) update(fn func()) error {
	s.startMu.Lock()
	defer s.startMu.Unlock()
	if s.state.Get().In(acq.Busy) {
		return ErrRunInProgress
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	fn()
	return nil
}

// SetFrameCount sets the number of frames for subsequent runs.
func (s *Session) SetFrameCount(n int) error {
	return s.update(func() { s.params.FrameCount = n })
}

// SetExposure sets the exposure time for subsequent runs.
func (s *Session) SetExposure(d time.Duration) error {
	return s.update(func() { s.params.Exposure = d })
}

// SetBin sets the binning for subsequent runs.
func (s *Session) SetBin(b device.Bin) error {
	return s.update(func() { s.params.Bin = b })
}

// SetROI sets the region of interest for subsequent runs.
func (s *Session) SetROI(r device.ROI) error {
	return s.update(func() { s.params.ROI = r })
}

// SetLabel describes the next run in logs and history.
func (s *Session) SetLabel(label string) error {
	return s.update(func() { s.label = label })
}

// InitSaving sets the saving configuration pushed on the next Start.
func (s *Session) InitSaving(p device.SavingParams) error {
	return s.update(func() {
		s.saving = p
		s.savingSet = true
	})
}

// Start configures the device and starts a run. The phase is Acquiring
// before the device is started so that no early notification is lost.
func (s *Session) Start(ctx context.Context) error {
	s.startMu.Lock()
	defer s.startMu.Unlock()
	if s.state.Get().In(acq.Busy) {
		return ErrRunInProgress
	}

	s.mu.Lock()
	params := s.params
	saving, savingSet := s.saving, s.savingSet
	label := s.label
	s.mu.Unlock()

	if err := s.dev.Configure(params); err != nil {
		return fmt.Errorf("failed to configure device: %w", err)
	}
	if savingSet && s.saver != nil {
		if err := s.saver.Configure(saving); err != nil {
			return fmt.Errorf("failed to configure saving: %w", err)
		}
	}

	s.mon.Reset(s.opts.ReportInterval)

	s.mu.Lock()
	s.runs++
	s.run = RunContext{
		ID:             tracker.NewRunID(),
		Number:         s.runs,
		Label:          label,
		FrameCount:     params.FrameCount,
		ReportInterval: s.opts.ReportInterval,
		Mode:           s.opts.Mode,
		StartedAt:      time.Now(),
	}
	run := s.run
	s.mu.Unlock()

	s.log.Debug("Starting acquisition",
		logger.F("run_id", run.ID),
		logger.F("frames", params.FrameCount),
		logger.F("mode", run.Mode.String()),
	)

	s.state.Set(acq.Acquiring)
	s.writeRunState(tracker.StatusRunning, monitor.Snapshot{LastAcquired: -1, LastSaved: -1}, nil)

	retryCfg := resilience.DefaultRetryConfig().WithMaxRetries(s.opts.StartRetries)
	retryCfg.OnRetry = func(retry int, err error, delay time.Duration) {
		s.log.Debug("Retrying device start",
			logger.F("attempt", retry),
			logger.F("error", err),
			logger.F("next_delay", delay),
		)
	}
	err := resilience.Retry(ctx, retryCfg, s.dev.Start)
	if err != nil {
		s.state.Set(acq.Idle)
		s.finish(tracker.StatusError, err)
		return fmt.Errorf("failed to start acquisition: %w", err)
	}
	return nil
}

// Wait blocks until the run leaves the busy phases and every background job
// has completed. On timeout or cancellation the device is stopped, the phase
// returns to Idle and the error matches resilience.ErrWaitTimeout or
// resilience.ErrWaitCanceled.
func (s *Session) Wait(ctx context.Context) error {
	if s.opts.WaitTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.WaitTimeout)
		defer cancel()
	}

	var err error
	switch s.opts.Mode {
	case ModeEvents:
		_, err = s.state.WaitNotContext(ctx, acq.Busy)
	default:
		err = s.mon.Poll(ctx, s.dev, s.opts.PollInterval)
	}
	if err != nil {
		return s.abort(err)
	}

	if err := s.pool.WaitIdle(ctx); err != nil {
		if ctx.Err() != nil {
			return s.abort(err)
		}
		s.finish(tracker.StatusError, err)
		return fmt.Errorf("background jobs failed: %w", err)
	}

	s.finish(tracker.StatusComplete, nil)
	return nil
}

// Run starts a run and waits for it.
func (s *Session) Run(ctx context.Context) error {
	if err := s.Start(ctx); err != nil {
		return err
	}
	return s.Wait(ctx)
}

func (s *Session) abort(cause error) error {
	err := resilience.FromContext(cause)
	status := tracker.StatusError
	switch {
	case errors.Is(err, resilience.ErrWaitTimeout):
		status = tracker.StatusTimeout
	case errors.Is(err, resilience.ErrWaitCanceled):
		status = tracker.StatusCanceled
	}

	if stopErr := s.dev.Stop(); stopErr != nil {
		s.log.Warn("Failed to stop device", logger.F("error", stopErr))
		err = errors.Join(err, stopErr)
	}
	s.state.Set(acq.Idle)
	s.finish(status, err)

	s.log.Debug("Acquisition aborted", logger.F("status", status), logger.F("error", err))
	return err
}

func (s *Session) onReport(r monitor.Report) {
	s.writeRunState(tracker.StatusRunning, monitor.Snapshot{LastAcquired: r.Acquired, LastSaved: r.Saved}, nil)
}

func (s *Session) writeRunState(status string, snap monitor.Snapshot, lastErr error) {
	if s.trackerWriter == nil {
		return
	}

	run := s.RunContext()
	rs := tracker.RunState{
		RunID:        run.ID,
		PID:          os.Getpid(),
		StartedAt:    run.StartedAt,
		UpdatedAt:    time.Now(),
		RunNumber:    run.Number,
		Label:        run.Label,
		Mode:         run.Mode.String(),
		FrameCount:   run.FrameCount,
		LastAcquired: snap.LastAcquired,
		LastSaved:    snap.LastSaved,
		Phase:        s.state.Get().String(),
		Status:       status,
	}
	if lastErr != nil {
		rs.LastError = lastErr.Error()
	}
	_ = s.trackerWriter.WriteRunState(rs)
}

func (s *Session) finish(status string, err error) {
	if s.trackerWriter == nil && s.history == nil {
		return
	}

	snap, snapErr := s.dev.Snapshot()
	if snapErr != nil {
		snap = monitor.Snapshot{LastAcquired: -1, LastSaved: -1}
	}
	run := s.RunContext()
	params := s.Params()
	now := time.Now()

	s.writeRunState(status, snap, err)
	if s.trackerWriter != nil {
		s.trackerWriter.AddRun(run.ID, tracker.RunDelta{
			FramesAcquired: snap.LastAcquired + 1,
			FramesSaved:    snap.LastSaved + 1,
			Duration:       now.Sub(run.StartedAt),
			Failed:         status != tracker.StatusComplete,
		})
	}

	if s.history == nil {
		return
	}
	rec := tracker.Record{
		RunID:        run.ID,
		Scenario:     s.scenario,
		Label:        run.Label,
		Mode:         run.Mode.String(),
		FrameCount:   run.FrameCount,
		Exposure:     params.Exposure,
		Bin:          params.Bin.String(),
		ROI:          params.ROI.String(),
		LastAcquired: snap.LastAcquired,
		LastSaved:    snap.LastSaved,
		Status:       status,
		StartedAt:    run.StartedAt,
		FinishedAt:   now,
	}
	if err != nil {
		rec.Error = err.Error()
	}
	if herr := s.history.Append(rec); herr != nil {
		s.log.Warn("Failed to record run history", logger.F("error", herr))
	}
}
