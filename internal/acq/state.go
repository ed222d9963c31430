package acq

import (
	"context"
	"strings"
	"sync"
)

// Phase is one step of the acquisition lifecycle. Phases are bit flags so a
// caller can wait on a mask of several of them.
type Phase uint8

const (
	Idle Phase = 1 << iota
	Acquiring
	Saving
	Finished
)

// Busy is the mask of phases during which a run is still in flight.
const Busy = Acquiring | Saving

var phaseName = map[Phase]string{
	Idle:      "idle",
	Acquiring: "acquiring",
	Saving:    "saving",
	Finished:  "finished",
}

func (p Phase) String() string {
	if name, ok := phaseName[p]; ok {
		return name
	}
	var names []string
	for _, single := range []Phase{Idle, Acquiring, Saving, Finished} {
		if p&single != 0 {
			names = append(names, phaseName[single])
		}
	}
	if len(names) == 0 {
		return "unknown"
	}
	return strings.Join(names, "|")
}

// In reports whether p is one of the phases in mask.
func (p Phase) In(mask Phase) bool {
	return p&mask != 0
}

// State is a thread-safe acquisition phase that goroutines can block on.
type State struct {
	mu    sync.Mutex
	cond  *sync.Cond
	phase Phase
}

// NewState returns a State in the Idle phase.
func NewState() *State {
	s := &State{phase: Idle}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// Get returns the current phase.
func (s *State) Get() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// Set replaces the phase and wakes every waiter, even when the phase is
// unchanged. Waiters re-check their mask after waking.
func (s *State) Set(p Phase) {
	s.mu.Lock()
	s.phase = p
	s.cond.Broadcast()
	s.mu.Unlock()
}

// WaitNot blocks until the phase is outside mask and returns the phase it
// observed. It blocks forever if nobody moves the phase out of mask.
func (s *State) WaitNot(mask Phase) Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	for s.phase.In(mask) {
		s.cond.Wait()
	}
	return s.phase
}

// WaitNotContext is WaitNot bounded by ctx. When ctx ends first it returns
// the phase at that moment together with ctx.Err().
func (s *State) WaitNotContext(ctx context.Context, mask Phase) (Phase, error) {
	// The wake-up takes the mutex, so it cannot slip in between the ctx check
	// and cond.Wait below.
	stop := context.AfterFunc(ctx, func() {
		s.mu.Lock()
		s.cond.Broadcast()
		s.mu.Unlock()
	})
	defer stop()

	s.mu.Lock()
	defer s.mu.Unlock()
	for s.phase.In(mask) {
		if err := ctx.Err(); err != nil {
			return s.phase, err
		}
		s.cond.Wait()
	}
	return s.phase, nil
}
