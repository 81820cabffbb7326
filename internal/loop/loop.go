// Package loop implements the designated execution context: a single goroutine
// that runs posted tasks one at a time in FIFO order. All client state is owned
// by tasks running here, so no further locking is needed around it.
package loop

import (
	"context"
	"runtime/debug"
	"sync"

	"go.uber.org/zap"

	"github.com/and161185/imagefeed/internal/errs"
)

// Poster schedules work onto the loop.
type Poster interface {
	// Post enqueues fn. It reports false if the loop has stopped.
	Post(fn func()) bool
}

// Loop is a single-consumer task queue. The queue is unbounded so Post never
// blocks, including when called from a task already running on the loop.
type Loop struct {
	log *zap.Logger

	mu      sync.Mutex
	queue   []func()
	stopped bool
	wake    chan struct{}
	done    chan struct{}
}

var _ Poster = (*Loop)(nil)

// New constructs an idle loop. Call Run to start draining it.
func New(log *zap.Logger) *Loop {
	if log == nil {
		log = zap.NewNop()
	}
	return &Loop{
		log:  log,
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
}

// Post enqueues fn for execution on the loop.
func (l *Loop) Post(fn func()) bool {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return false
	}
	l.queue = append(l.queue, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
	return true
}

// Call runs fn on the loop and waits for it to return. It must not be called
// from a task on the same loop.
func (l *Loop) Call(ctx context.Context, fn func()) error {
	ran := make(chan struct{})
	if !l.Post(func() {
		defer close(ran)
		fn()
	}) {
		return errs.ErrStopped
	}
	select {
	case <-ran:
		return nil
	case <-l.done:
		return errs.ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Flush waits until every task posted before the call has run.
func (l *Loop) Flush(ctx context.Context) error {
	return l.Call(ctx, func() {})
}

// Done is closed once Run has returned.
func (l *Loop) Done() <-chan struct{} { return l.done }

// Run drains the queue until ctx is cancelled. Tasks still queued at that
// point are dropped. Run must be called once.
func (l *Loop) Run(ctx context.Context) error {
	defer close(l.done)
	defer func() {
		l.mu.Lock()
		l.stopped = true
		dropped := len(l.queue)
		l.queue = nil
		l.mu.Unlock()
		if dropped > 0 {
			l.log.Debug("loop stopped with pending tasks", zap.Int("dropped", dropped))
		}
	}()

	for {
		l.mu.Lock()
		batch := l.queue
		l.queue = nil
		l.mu.Unlock()

		for i, fn := range batch {
			if ctx.Err() != nil {
				l.requeue(batch[i:])
				return ctx.Err()
			}
			l.exec(fn)
		}
		if len(batch) > 0 {
			continue
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.wake:
		}
	}
}

func (l *Loop) requeue(rest []func()) {
	l.mu.Lock()
	l.queue = append(rest, l.queue...)
	l.mu.Unlock()
}

// exec runs a single task, recovering panics so one faulty callback cannot
// take the loop down.
func (l *Loop) exec(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.log.Error("panic",
				zap.Any("reason", r),
				zap.ByteString("stack", debug.Stack()),
			)
		}
	}()
	fn()
}
