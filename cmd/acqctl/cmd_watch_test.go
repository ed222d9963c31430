package main

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/chr1sbest/acqctl/internal/config"
	"github.com/chr1sbest/acqctl/internal/device"
	"github.com/chr1sbest/acqctl/internal/logger"
	"github.com/chr1sbest/acqctl/internal/loop"
)

// countingSession counts runs and remembers the last frame count.
type countingSession struct {
	mu     sync.Mutex
	frames int
	runs   int
	ran    chan int
}

func (s *countingSession) SetFrameCount(n int) error {
	s.mu.Lock()
	s.frames = n
	s.mu.Unlock()
	return nil
}

func (s *countingSession) SetExposure(time.Duration) error      { return nil }
func (s *countingSession) SetBin(device.Bin) error              { return nil }
func (s *countingSession) SetROI(device.ROI) error              { return nil }
func (s *countingSession) SetLabel(string) error                { return nil }
func (s *countingSession) InitSaving(device.SavingParams) error { return nil }

func (s *countingSession) Run(ctx context.Context) error {
	s.mu.Lock()
	s.runs++
	frames := s.frames
	s.mu.Unlock()
	s.ran <- frames
	return nil
}

func expectRun(t *testing.T, ran <-chan int, frames int) {
	t.Helper()
	select {
	case got := <-ran:
		if got != frames {
			t.Errorf("run used %d frames, want %d", got, frames)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a run")
	}
}

func TestWatchLoopRerunsOnChange(t *testing.T) {
	one, four := 1, 4
	sess := &countingSession{ran: make(chan int, 4)}
	sc := &config.Scenario{Name: "w", Runs: []config.RunConfig{{Frames: &one}}}
	mainLoop := loop.NewLoop(sc, sess, nil)

	events := make(chan config.ScenarioEvent)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- watchLoop(ctx, mainLoop, events, "profiles/w.yaml", nil, logger.NewNoopLogger())
	}()

	expectRun(t, sess.ran, 1)

	// Other files, errors, removals and invalid edits do not trigger a run.
	events <- config.ScenarioEvent{Path: "profiles/other.yaml", Scenario: sc}
	events <- config.ScenarioEvent{Path: "profiles/w.yaml", Error: errors.New("bad yaml")}
	events <- config.ScenarioEvent{Path: "profiles/w.yaml", Removed: true}
	events <- config.ScenarioEvent{Path: "profiles/w.yaml", Scenario: &config.Scenario{Name: "w"}}

	edited := &config.Scenario{Name: "w", Runs: []config.RunConfig{{Frames: &four}}}
	events <- config.ScenarioEvent{Path: "profiles/w.yaml", Scenario: edited}
	expectRun(t, sess.ran, 4)

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.runs != 2 {
		t.Errorf("expected 2 runs, got %d", sess.runs)
	}
}

func TestWatchLoopStopsWhenEventsClose(t *testing.T) {
	one := 1
	sess := &countingSession{ran: make(chan int, 1)}
	mainLoop := loop.NewLoop(&config.Scenario{Name: "w", Runs: []config.RunConfig{{Frames: &one}}}, sess, nil)

	events := make(chan config.ScenarioEvent)
	close(events)
	if err := watchLoop(context.Background(), mainLoop, events, "w.yaml", nil, logger.NewNoopLogger()); err != nil {
		t.Errorf("expected nil on closed events, got %v", err)
	}
}
