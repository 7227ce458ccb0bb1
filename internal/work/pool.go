package work

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"
)

// ErrQueueFull is returned by Submit when the job queue has no room. Callers
// decide whether to drop or surface the overload.
var ErrQueueFull = errors.New("worker pool queue is full")

// ErrStopped is returned by Submit after Stop has been called.
var ErrStopped = errors.New("worker pool is stopped")

// Job is one unit of service work. The pool passes its shutdown context so
// jobs can abandon outbound calls when the process stops.
type Job func(ctx context.Context)

// Pool runs service calls on a fixed set of workers so a burst of sessions
// cannot spawn unbounded goroutines against the downstream services.
type Pool struct {
	jobs    chan Job
	workers int
	logger  zerolog.Logger

	mu      sync.Mutex
	stopped bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewPool creates a pool with the given worker count and queue capacity.
func NewPool(workers, queueSize int, logger zerolog.Logger) *Pool {
	if workers < 1 {
		workers = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		jobs:    make(chan Job, queueSize),
		workers: workers,
		logger:  logger.With().Str("component", "worker_pool").Logger(),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start launches the worker goroutines.
func (p *Pool) Start() {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
	p.logger.Info().Int("workers", p.workers).Int("queue_size", cap(p.jobs)).Msg("Worker pool started")
}

// Submit enqueues a job without blocking. ErrStopped after Stop, ErrQueueFull
// on overload. The mutex orders Submit against Stop; the jobs channel is
// never closed, so a Submit racing shutdown fails cleanly instead of
// panicking.
func (p *Pool) Submit(job Job) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return ErrStopped
	}
	select {
	case p.jobs <- job:
		return nil
	default:
		return ErrQueueFull
	}
}

// Stop rejects further submissions, cancels in-flight jobs and waits for the
// workers to exit. Safe to call more than once.
func (p *Pool) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	p.mu.Unlock()

	p.cancel()
	p.wg.Wait()
	p.logger.Info().Msg("Worker pool stopped")
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()
	for {
		select {
		case <-p.ctx.Done():
			p.logger.Debug().Int("worker_id", id).Msg("Worker exiting")
			return
		case job := <-p.jobs:
			job(p.ctx)
		}
	}
}
