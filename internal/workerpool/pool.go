// Package workerpool runs background jobs, such as frame saving, on a fixed
// set of goroutines and lets a caller block until every submitted job is done.
package workerpool

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"gopkg.in/tomb.v2"

	"github.com/chr1sbest/acqctl/internal/logger"
)

// ErrClosed is returned by Submit after Shutdown.
var ErrClosed = errors.New("worker pool is shut down")

// DefaultQueueSize bounds the number of queued, not yet running, jobs.
const DefaultQueueSize = 4096

// Job is one unit of background work.
type Job func() error

// Pool is a fixed-size worker pool.
type Pool struct {
	log  logger.Logger
	t    *tomb.Tomb
	jobs chan Job

	submitting sync.WaitGroup

	mu      sync.Mutex
	idle    *sync.Cond
	pending int
	errs    []error
	closed  bool
}

// New starts a pool with the given number of workers. At least one worker
// is always started.
func New(workers int, log logger.Logger) *Pool {
	if workers < 1 {
		workers = 1
	}
	if log == nil {
		log = logger.NewNoopLogger()
	}

	p := &Pool{
		log:  log,
		t:    new(tomb.Tomb),
		jobs: make(chan Job, DefaultQueueSize),
	}
	p.idle = sync.NewCond(&p.mu)

	for i := 0; i < workers; i++ {
		id := i
		p.t.Go(func() error { return p.work(id) })
	}
	p.log.Debug("worker pool started", logger.F("workers", workers))
	return p
}

func (p *Pool) work(id int) error {
	for {
		select {
		case <-p.t.Dying():
			return nil
		case job := <-p.jobs:
			p.run(id, job)
		}
	}
}

func (p *Pool) run(id int, job Job) {
	err := job()

	p.mu.Lock()
	defer p.mu.Unlock()

	if err != nil {
		p.log.Debug("job failed", logger.F("worker", id), logger.F("error", err.Error()))
		p.errs = append(p.errs, err)
	}
	p.pending--
	if p.pending == 0 {
		p.idle.Broadcast()
	}
}

// Submit queues job. It blocks while the queue is full.
func (p *Pool) Submit(job Job) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrClosed
	}
	p.pending++
	p.submitting.Add(1)
	p.mu.Unlock()
	defer p.submitting.Done()

	select {
	case p.jobs <- job:
		return nil
	case <-p.t.Dying():
		p.done()
		return ErrClosed
	}
}

func (p *Pool) done() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pending--
	if p.pending == 0 {
		p.idle.Broadcast()
	}
}

// Pending returns the number of queued or running jobs.
func (p *Pool) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pending
}

// WaitIdle blocks until no job is queued or running, or ctx ends. Errors
// returned by jobs since the previous WaitIdle are joined and returned.
func (p *Pool) WaitIdle(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		p.idle.Broadcast()
	})
	defer stop()

	p.mu.Lock()
	defer p.mu.Unlock()

	for p.pending > 0 {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("waiting for %d background jobs: %w", p.pending, err)
		}
		p.idle.Wait()
	}

	errs := p.errs
	p.errs = nil
	return errors.Join(errs...)
}

// Shutdown stops the workers. Jobs still queued are dropped and no longer
// count as pending.
func (p *Pool) Shutdown() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	p.t.Kill(nil)
	p.submitting.Wait()
	err := p.t.Wait()

	dropped := 0
	for {
		select {
		case <-p.jobs:
			dropped++
			p.done()
			continue
		default:
		}
		break
	}
	if dropped > 0 {
		p.log.Warn("worker pool shut down with queued jobs", logger.F("dropped", dropped))
	}
	return err
}
