package settings

import (
	"context"
	"sync"
)

// defaultQueueDepth is the number of jobs that can wait for the worker.
const defaultQueueDepth = 64

// Queue runs submitted jobs one at a time on a single worker goroutine.
//
// A Registry does no locking of its own; every goroutine that touches it
// (transport handlers, the console, timers) submits its work to one Queue so
// registry calls and the callbacks they trigger never overlap.
type Queue struct {
	jobs    chan job
	stopped chan struct{}

	mu     sync.RWMutex
	closed bool
}

type job struct {
	ctx  context.Context
	fn   func(ctx context.Context) error
	done chan error
}

// NewQueue starts a worker with room for depth waiting jobs.
// A depth of 0 or less uses 64.
func NewQueue(depth int) *Queue {
	if depth <= 0 {
		depth = defaultQueueDepth
	}
	q := &Queue{
		jobs:    make(chan job, depth),
		stopped: make(chan struct{}),
	}
	go q.run()
	return q
}

func (q *Queue) run() {
	defer close(q.stopped)
	for j := range q.jobs {
		if err := j.ctx.Err(); err != nil {
			j.done <- err
			continue
		}
		j.done <- j.fn(j.ctx)
	}
}

// Do runs fn on the worker and waits for its result.
//
// If ctx ends before fn starts, fn is skipped and ctx.Err() is returned.
// Once fn has started it runs to completion even if the caller stops waiting.
func (q *Queue) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	done := make(chan error, 1)

	q.mu.RLock()
	if q.closed {
		q.mu.RUnlock()
		return ErrQueueClosed
	}
	select {
	case q.jobs <- job{ctx: ctx, fn: fn, done: done}:
		q.mu.RUnlock()
	case <-ctx.Done():
		q.mu.RUnlock()
		return ctx.Err()
	}

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting jobs, waits for queued jobs to finish and stops the worker.
// It is safe to call more than once.
func (q *Queue) Close() {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.jobs)
	}
	q.mu.Unlock()
	<-q.stopped
}
