// Package executor runs blocking vendor calls off the caller's goroutine on
// a bounded pool and hands back futures to wait on.
package executor

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// DefaultWorkers is the pool size used when none is configured.
const DefaultWorkers = 8

// ErrClosed is returned when submitting to a closed pool.
var ErrClosed = errors.New("executor: pool closed")

// Pool bounds the number of concurrently running blocking jobs.
//
// A job that hangs keeps its slot; the pool enforces no timeout on the work
// itself. Canceling the submitter's context only stops the wait.
type Pool struct {
	sem    *semaphore.Weighted
	logger *zap.Logger

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// Future is the pending result of a submitted job.
type Future struct {
	done chan struct{}
	err  error
}

// New creates a pool with the given number of workers.
func New(workers int, logger *zap.Logger) *Pool {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	return &Pool{
		sem:    semaphore.NewWeighted(int64(workers)),
		logger: logger.Named("executor"),
	}
}

// Submit queues fn and returns immediately. The job starts once a worker
// slot is free; ctx bounds only the wait for that slot.
func (p *Pool) Submit(ctx context.Context, fn func() error) *Future {
	f := &Future{done: make(chan struct{})}

	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		f.err = ErrClosed
		close(f.done)
		return f
	}
	p.wg.Add(1)
	p.mu.RUnlock()

	go func() {
		defer p.wg.Done()
		defer close(f.done)

		if err := p.sem.Acquire(ctx, 1); err != nil {
			f.err = fmt.Errorf("executor: waiting for worker: %w", err)
			return
		}
		defer p.sem.Release(1)

		f.err = runJob(fn)
		if f.err != nil {
			p.logger.Debug("Job failed", zap.Error(f.err))
		}
	}()

	return f
}

// Run submits fn and waits for it.
func (p *Pool) Run(ctx context.Context, fn func() error) error {
	return p.Submit(ctx, fn).Wait(ctx)
}

// AddExecutorJob is Run under the name the host contract uses.
func (p *Pool) AddExecutorJob(ctx context.Context, fn func() error) error {
	return p.Run(ctx, fn)
}

// Close rejects new submissions and waits for running jobs to finish.
func (p *Pool) Close() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	p.wg.Wait()
}

// Wait blocks until the job has finished or ctx is done.
func (f *Future) Wait(ctx context.Context) error {
	select {
	case <-f.done:
		return f.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done is closed once the job has finished.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// runJob turns a panic in vendor code into an error so one bad call cannot
// take the process down.
func runJob(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("executor: job panicked: %v", r)
		}
	}()
	return fn()
}
