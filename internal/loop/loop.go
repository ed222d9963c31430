// Package loop executes acquisition scenarios: each pass applies the
// settings of every run in order and waits for the run to finish.
package loop

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chr1sbest/acqctl/internal/config"
	"github.com/chr1sbest/acqctl/internal/device"
	"github.com/chr1sbest/acqctl/internal/logger"
	"github.com/chr1sbest/acqctl/internal/resilience"
	"github.com/chr1sbest/acqctl/internal/status"
)

// Session is the part of session.Session a scenario drives.
type Session interface {
	SetFrameCount(n int) error
	SetExposure(d time.Duration) error
	SetBin(b device.Bin) error
	SetROI(r device.ROI) error
	SetLabel(label string) error
	InitSaving(p device.SavingParams) error
	Run(ctx context.Context) error
}

// Status represents the current state of the loop.
type Status string

const (
	StatusRunning  Status = "RUNNING"
	StatusComplete Status = "COMPLETE"
	StatusCanceled Status = "CANCELED"
	StatusError    Status = "ERROR"
)

// State holds the current loop execution state.
type State struct {
	Pass       int
	RunNumber  int
	StartTime  time.Time
	CurrentRun string
	Status     Status
}

// RunResult captures the outcome of one run.
type RunResult struct {
	Label    string
	Duration time.Duration
	Error    error
}

// Loop is the scenario executor.
type Loop struct {
	session Session
	logger  logger.Logger
	status  *status.Writer
	breaker *resilience.CircuitBreaker

	mu       sync.Mutex
	scenario *config.Scenario
	state    State
	results  []RunResult
	runDelay time.Duration
}

// NewLoop creates a loop that runs sc on sess.
func NewLoop(sc *config.Scenario, sess Session, log logger.Logger) *Loop {
	if log == nil {
		log = logger.NewNoopLogger()
	}
	l := &Loop{
		session:  sess,
		logger:   log,
		scenario: sc,
	}
	l.SetCircuitBreaker(resilience.NewCircuitBreaker(resilience.DefaultCircuitBreakerConfig()))
	return l
}

// SetStatusWriter shows run labels and outcomes on w.
func (l *Loop) SetStatusWriter(w *status.Writer) {
	l.status = w
}

// SetRunDelay sets the pause between runs.
func (l *Loop) SetRunDelay(d time.Duration) {
	l.runDelay = d
}

// SetCircuitBreaker replaces the breaker used by Run.
func (l *Loop) SetCircuitBreaker(cb *resilience.CircuitBreaker) {
	cb.OnStateChange(func(from, to resilience.CircuitState) {
		l.logger.Warn("Circuit breaker state changed",
			logger.F("from", from.String()),
			logger.F("to", to.String()))
	})
	l.breaker = cb
}

// SetScenario swaps the scenario used by the next pass (for hot-reload).
func (l *Loop) SetScenario(sc *config.Scenario) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.scenario = sc
}

// Scenario returns the scenario of the next pass.
func (l *Loop) Scenario() *config.Scenario {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.scenario
}

// State returns the current loop state.
func (l *Loop) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Results returns the runs of the last pass.
func (l *Loop) Results() []RunResult {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]RunResult(nil), l.results...)
}

func (l *Loop) setState(fn func(*State)) {
	l.mu.Lock()
	fn(&l.state)
	l.mu.Unlock()
}

// RunOnce executes every run of the scenario once. Settings a run does not
// mention keep the value from the run before it. The pass stops at the
// first failed run.
func (l *Loop) RunOnce(ctx context.Context) error {
	sc := l.Scenario()

	l.mu.Lock()
	l.state.Pass++
	l.state.RunNumber = 0
	l.state.StartTime = time.Now()
	l.state.Status = StatusRunning
	l.results = nil
	pass := l.state.Pass
	l.mu.Unlock()

	l.logger.Debug("Starting scenario pass", logger.F("scenario", sc.Name), logger.F("pass", pass))

	if sc.Saving != nil {
		p, err := sc.Saving.Params()
		if err == nil {
			err = l.session.InitSaving(p)
		}
		if err != nil {
			l.setState(func(s *State) { s.Status = StatusError })
			return fmt.Errorf("failed to set up saving: %w", err)
		}
	}

	for i, run := range sc.Runs {
		if err := ctx.Err(); err != nil {
			l.setState(func(s *State) { s.Status = StatusCanceled })
			return err
		}

		label := Describe(run)
		l.setState(func(s *State) {
			s.RunNumber = i + 1
			s.CurrentRun = label
		})

		err := l.executeRun(ctx, run, label)
		if err != nil {
			st := StatusError
			if errors.Is(err, resilience.ErrWaitCanceled) || errors.Is(err, context.Canceled) {
				st = StatusCanceled
			}
			l.setState(func(s *State) { s.Status = st })
			return fmt.Errorf("run %d (%s): %w", i+1, label, err)
		}

		if l.runDelay > 0 && i < len(sc.Runs)-1 {
			if err := resilience.Sleep(ctx, l.runDelay); err != nil {
				l.setState(func(s *State) { s.Status = StatusCanceled })
				return err
			}
		}
	}

	l.setState(func(s *State) { s.Status = StatusComplete })
	l.logger.Debug("Scenario pass complete",
		logger.F("scenario", sc.Name),
		logger.F("pass", pass),
		logger.F("duration", time.Since(l.State().StartTime).String()),
	)
	return nil
}

func (l *Loop) executeRun(ctx context.Context, run config.RunConfig, label string) error {
	start := time.Now()

	err := Apply(l.session, run)
	if err == nil {
		err = l.session.SetLabel(label)
	}
	if err == nil {
		l.logger.Always("Run " + label)
		if l.status != nil {
			l.status.SetLabel(label)
		}
		err = l.session.Run(ctx)
	}

	l.mu.Lock()
	l.results = append(l.results, RunResult{Label: label, Duration: time.Since(start), Error: err})
	l.mu.Unlock()

	if err != nil {
		l.logger.Error("Run failed", logger.F("run", label), logger.F("error", err))
		if l.status != nil {
			l.status.Error(label, err)
		}
		return err
	}

	l.logger.Always("Done!")
	return nil
}

// Run repeats the scenario until ctx is canceled. Failed passes are retried
// with backoff until the circuit breaker opens. A permanent failure other
// than a stalled run ends the loop at once.
func (l *Loop) Run(ctx context.Context) error {
	base := l.runDelay
	if base <= 0 {
		base = 500 * time.Millisecond
	}
	backoff := resilience.Backoff{Initial: base, Max: 30 * time.Second, Multiplier: 1.5}
	failed := 0

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := l.breaker.Execute(ctx, l.RunOnce)
		switch {
		case err == nil:
			failed = 0
			continue
		case errors.Is(err, resilience.ErrCircuitOpen):
			return fmt.Errorf("giving up after %d failed passes (retry in %s): %w",
				l.breaker.Failures(), l.breaker.RetryAfter().Round(time.Second), err)
		case ctx.Err() != nil:
			return ctx.Err()
		case !resilience.IsTransientError(err) && !resilience.IsWaitError(err):
			// Rejected settings fail the same way on every pass.
			return fmt.Errorf("giving up: %w", err)
		}

		delay := backoff.Delay(failed)
		failed++
		l.logger.Warn("Scenario pass failed", logger.F("error", err), logger.F("backoff", delay.String()))
		if err := resilience.Sleep(ctx, delay); err != nil {
			return err
		}
	}
}
