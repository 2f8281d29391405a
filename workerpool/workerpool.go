// Package workerpool implements the preallocated thread pool each module's
// long-running task is dispatched onto exactly once. There is no work
// stealing and no priority; tasks are long-lived and typically pinned for
// the process lifetime. There is no cron, no job store, no retry — just
// dispatch.
package workerpool

import (
	"context"
	"errors"
	"sync"

	"github.com/triton-robotics/onboard/logger"
)

// ErrClosed is returned by Submit after Close has been called.
var ErrClosed = errors.New("workerpool: pool is closed")

// Task is a unit of work dispatched onto a worker. It receives the pool so
// it may spawn child tasks on the same pool.
type Task func(ctx context.Context, pool *Pool)

// Pool is a fixed-size set of preallocated worker goroutines.
type Pool struct {
	ctx    context.Context
	cancel context.CancelFunc
	queue  chan Task
	wg     sync.WaitGroup
	log    logger.Logger

	mu     sync.Mutex
	closed bool
}

// New preallocates size worker goroutines, each pulling tasks off an
// internal queue for the lifetime of the pool.
func New(ctx context.Context, size int, log logger.Logger) *Pool {
	if log == nil {
		log = logger.Nop{}
	}
	if size < 1 {
		size = 1
	}
	ctx, cancel := context.WithCancel(ctx)
	p := &Pool{
		ctx:    ctx,
		cancel: cancel,
		queue:  make(chan Task, size*4),
		log:    log,
	}
	for i := 0; i < size; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
	return p
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()
	for {
		select {
		case <-p.ctx.Done():
			return
		case task := <-p.queue:
			p.log.Debug("workerpool: dispatching task", "worker_id", id)
			task(p.ctx, p)
		}
	}
}

// Submit enqueues a task for execution on the pool and returns immediately;
// it does not wait for the task to start or finish. lifecycle.Runtime.Start
// calls Submit exactly once per registered module.
func (p *Pool) Submit(t Task) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrClosed
	}
	p.mu.Unlock()

	select {
	case p.queue <- t:
		return nil
	case <-p.ctx.Done():
		return ErrClosed
	}
}

// Close cancels the pool's context (signaling cooperative shutdown to every
// running task) and waits for all worker goroutines to return.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()

	p.cancel()
	p.wg.Wait()
}

// Context returns the pool's lifecycle context, cancelled on Close.
func (p *Pool) Context() context.Context { return p.ctx }
