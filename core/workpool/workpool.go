// Package workpool provides the bounded, shared worker pool the command
// router dispatches units of work onto. A fixed number of workers drains a
// single task queue; tasks for different fan-out calls interleave freely.
package workpool

import (
	"context"
	"errors"
	"runtime"
	"sync"
)

// ErrPoolClosed is returned by Submit after Close.
var ErrPoolClosed = errors.New("worker pool is closed")

// Option configures a Pool.
type Option func(*config)

type config struct {
	size       int
	queueDepth int
}

// WithSize sets the number of workers (default: GOMAXPROCS).
func WithSize(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.size = n
		}
	}
}

// WithQueueDepth sets the task queue buffer (default: 64). Submit blocks
// once the queue is full, which bounds how far dispatch can run ahead of
// execution.
func WithQueueDepth(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.queueDepth = n
		}
	}
}

// Pool runs submitted tasks on a fixed set of workers. It is safe for
// concurrent use from multiple fan-out calls.
type Pool struct {
	mu      sync.Mutex
	tasks   chan func()
	closed  bool
	pending sync.WaitGroup // in-flight Submit calls
	workers sync.WaitGroup
}

// New creates a started Pool.
func New(opts ...Option) *Pool {
	cfg := &config{size: runtime.GOMAXPROCS(0), queueDepth: 64}
	for _, opt := range opts {
		opt(cfg)
	}

	p := &Pool{tasks: make(chan func(), cfg.queueDepth)}
	p.workers.Add(cfg.size)
	for i := 0; i < cfg.size; i++ {
		go p.runWorker()
	}
	return p
}

func (p *Pool) runWorker() {
	defer p.workers.Done()
	for task := range p.tasks {
		task()
	}
}

// Submit enqueues fn for execution. It blocks while the queue is full and
// returns the context error if ctx is canceled before fn is enqueued, or
// [ErrPoolClosed] after Close. Once Submit returns nil, fn will run.
func (p *Pool) Submit(ctx context.Context, fn func()) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrPoolClosed
	}
	p.pending.Add(1)
	p.mu.Unlock()
	defer p.pending.Done()

	select {
	case p.tasks <- fn:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting tasks, lets queued tasks drain and waits for all
// workers to exit. It is idempotent.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()

	// wait for in-flight Submit calls before closing the channel
	p.pending.Wait()
	close(p.tasks)
	p.workers.Wait()
}
