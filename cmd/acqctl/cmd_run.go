package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/chr1sbest/acqctl/internal/banner"
	"github.com/chr1sbest/acqctl/internal/config"
	"github.com/chr1sbest/acqctl/internal/logger"
	"github.com/chr1sbest/acqctl/internal/loop"
	"github.com/chr1sbest/acqctl/internal/resilience"
	"github.com/chr1sbest/acqctl/internal/status"
	"github.com/chr1sbest/acqctl/internal/tracker"
)

// controller is everything a scenario needs while it runs: logging, the
// state directory lock, run history and the camera rig.
type controller struct {
	settings *config.Settings
	log      logger.Logger
	tracker  *tracker.Writer
	runID    string
	history  *tracker.History
	rig      *rig

	closers []func() error
}

// Close releases resources in reverse order of acquisition.
func (c *controller) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		_ = c.closers[i]()
	}
}

func loadSettingsAndLogger(c *cli, console bool) (*config.Settings, logger.Logger, func() error, error) {
	settings, err := config.LoadSettings(*c.settingsFile)
	if err != nil {
		return nil, nil, nil, err
	}
	log, closeLog, err := newLogger(settings, logOptions{debug: *c.debug, json: *c.jsonLogs, console: console})
	if err != nil {
		return nil, nil, nil, err
	}
	return settings, log, closeLog, nil
}

// openController takes the state directory lock and builds the rig for sc.
func openController(settings *config.Settings, log logger.Logger, sc *config.Scenario, mode string, timeout time.Duration) (*controller, error) {
	ctl := &controller{settings: settings, log: log}

	opts, err := sessionOptions(sc, mode, timeout, log)
	if err != nil {
		return nil, err
	}

	ctl.tracker = tracker.NewWriter(settings.StateDir)
	if err := ctl.tracker.EnsureDir(); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}
	if prev, _ := ctl.tracker.LoadRunState(); prev.Interrupted() {
		log.Warn("Previous run was interrupted",
			logger.F("run_id", prev.RunID),
			logger.F("label", prev.Label),
			logger.F("last_acquired", prev.LastAcquired),
			logger.F("last_saved", prev.LastSaved),
		)
	}

	ctl.runID = tracker.NewRunID()
	release, err := ctl.tracker.AcquireLock(ctl.runID)
	if err != nil {
		return nil, err
	}
	ctl.closers = append(ctl.closers, release)
	if _, err := ctl.tracker.LoadOrInitMetrics(ctl.runID); err != nil {
		log.Warn("Failed to initialise run metrics", logger.F("error", err))
	}

	ctl.history, err = tracker.OpenHistory(settings.StateDir)
	if err != nil {
		ctl.Close()
		return nil, err
	}
	ctl.closers = append(ctl.closers, ctl.history.Close)

	log.Always("Creating simulated camera")
	ctl.rig, err = newRig(settings, opts)
	if err != nil {
		ctl.Close()
		return nil, err
	}
	ctl.closers = append(ctl.closers, ctl.rig.Close)
	log.Always("Done!")

	sess := ctl.rig.session
	sess.EnableRunTracking(ctl.tracker)
	sess.SetHistory(ctl.history)
	sess.SetScenario(sc.Name)
	return ctl, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func runCmd(c *cli) int {
	progress := *c.run.progress
	settings, log, closeLog, err := loadSettingsAndLogger(c, !progress)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer closeLog()

	sc, err := loadScenario(settings, *c.run.scenario, log)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	opts, err := sessionOptions(sc, *c.run.mode, *c.run.timeout, log)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	banner.New().Print(sc, opts.Mode.String())

	ctl, err := openController(settings, log, sc, *c.run.mode, *c.run.timeout)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer ctl.Close()

	mainLoop := loop.NewLoop(sc, ctl.rig.session, log)
	mainLoop.SetRunDelay(sc.Monitor.GetRunDelay())
	if progress {
		sw := status.New()
		ctl.rig.session.Observe(sw.Progress)
		mainLoop.SetStatusWriter(sw)
	}

	ctx, cancel := signalContext()
	defer cancel()

	if *c.run.repeat {
		err = mainLoop.Run(ctx)
	} else {
		err = mainLoop.RunOnce(ctx)
		printResults(os.Stdout, mainLoop.Results())
	}
	return finishRun(ctl, err)
}

// finishRun reports the outcome and maps it to an exit code.
func finishRun(ctl *controller, err error) int {
	switch {
	case err == nil:
		ctl.tracker.MarkComplete(ctl.runID)
		printRunMetrics(ctl.tracker)
		return 0
	case errors.Is(err, context.Canceled), errors.Is(err, resilience.ErrWaitCanceled):
		fmt.Fprintln(os.Stderr, "Interrupted.")
		fmt.Fprint(os.Stderr, queuedSavesNote(ctl.rig.pool.Pending()))
		printRunMetrics(ctl.tracker)
		return 130
	case errors.Is(err, resilience.ErrWaitTimeout):
		fmt.Fprintf(os.Stderr, "Timed out: %v\n", err)
		fmt.Fprint(os.Stderr, queuedSavesNote(ctl.rig.pool.Pending()))
		return 3
	default:
		fmt.Fprintf(os.Stderr, "Scenario failed: %v\n", err)
		return 1
	}
}

func printRunMetrics(trk *tracker.Writer) {
	m, _ := trk.LoadMetrics()
	if m == nil {
		return
	}
	fmt.Printf("\nRuns: %d completed, %d failed\n", m.Completed, m.Failed)
	fmt.Printf("Frames: %s acquired, %s saved (%.1f%%)\n",
		humanize.Comma(int64(m.FramesAcquired)), humanize.Comma(int64(m.FramesSaved)), 100*m.SaveRate())
	fmt.Printf("Acquisition time: %s\n", m.AcquireTime.Round(time.Millisecond))
}

// printResults lists each run of a pass with its duration.
func printResults(w io.Writer, results []loop.RunResult) {
	if len(results) == 0 {
		return
	}
	fmt.Fprintln(w)
	for i, r := range results {
		outcome := "ok"
		if r.Error != nil {
			outcome = "failed"
		}
		fmt.Fprintf(w, "%2d. %-40s %10s  %s\n", i+1, r.Label, r.Duration.Round(time.Millisecond), outcome)
	}
}

// queuedSavesNote tells the user that saves of an aborted run are still
// being written.
func queuedSavesNote(pending int) string {
	if pending <= 0 {
		return ""
	}
	return fmt.Sprintf("%s frame saves still queued.\n", humanize.Comma(int64(pending)))
}
