// Package eventloop provides a minimal single-goroutine task loop and a
// [Future] type used to express asynchronous tool callables.
//
// A [Loop] executes posted tasks serially on whichever goroutine is currently
// driving it via [Loop.Drive]. Tasks receive a context that carries the loop,
// so code running inside a task can discover that it is "inside a running
// loop" with [FromContext]. Asynchronous work started with [Go] resolves its
// future by posting back onto that loop, which means the future only completes
// while the loop is being driven. Blocking a task on such a future deadlocks
// the loop; the invocation bridge exists to avoid exactly that.
package eventloop

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

var (
	// ErrClosed is returned when posting to or driving a closed loop.
	ErrClosed = errors.New("eventloop: loop closed")

	// ErrBusy is returned by [Loop.Drive] when another goroutine is already
	// driving the loop.
	ErrBusy = errors.New("eventloop: loop already running")

	// ErrNoLoop is the failure of a future started outside a running loop.
	ErrNoLoop = errors.New("eventloop: no running loop in context")

	errNilFuture = errors.New("eventloop: start returned a nil future")
)

// Task is a unit of work executed on the loop goroutine. ctx reports the loop
// through [FromContext].
type Task func(ctx context.Context)

// Loop is a serial task executor. The zero value is not usable; create loops
// with [New]. All methods are safe for concurrent use.
type Loop struct {
	mu     sync.Mutex
	queue  []Task
	closed bool

	running atomic.Bool

	notify    chan struct{} // signalled when a task is posted
	done      chan struct{} // closed by Close
	closeOnce sync.Once
}

// New returns an idle loop. Nothing runs until a goroutine calls [Loop.Drive]
// or [Loop.Run].
func New() *Loop {
	return &Loop{
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

// Post enqueues t for execution on the loop. It never blocks.
func (l *Loop) Post(t Task) error {
	if t == nil {
		return errors.New("eventloop: nil task")
	}
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return ErrClosed
	}
	l.queue = append(l.queue, t)
	l.mu.Unlock()

	select {
	case l.notify <- struct{}{}:
	default:
	}
	return nil
}

// Drive executes tasks on the calling goroutine until until is closed, ctx is
// done, or the loop is closed. A nil until drives until ctx or Close.
//
// Drive returns nil when until fired, ctx.Err() when ctx ended first and
// [ErrClosed] when the loop was closed.
func (l *Loop) Drive(ctx context.Context, until <-chan struct{}) error {
	if !l.running.CompareAndSwap(false, true) {
		return ErrBusy
	}
	defer l.running.Store(false)

	taskCtx := context.WithValue(ctx, loopKey{}, l)
	for {
		for {
			t, ok := l.next()
			if !ok {
				break
			}
			t(taskCtx)
			select {
			case <-until:
				return nil
			default:
			}
		}

		select {
		case <-until:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		case <-l.done:
			return ErrClosed
		case <-l.notify:
		}
	}
}

// Run drives the loop until ctx is done or the loop is closed.
func (l *Loop) Run(ctx context.Context) error {
	return l.Drive(ctx, nil)
}

// Running reports whether a goroutine is currently driving the loop.
func (l *Loop) Running() bool {
	return l.running.Load()
}

// Close stops the loop and drops any tasks that have not started. It is safe
// to call more than once.
func (l *Loop) Close() error {
	l.closeOnce.Do(func() {
		l.mu.Lock()
		l.closed = true
		l.queue = nil
		l.mu.Unlock()
		close(l.done)
	})
	return nil
}

func (l *Loop) next() (Task, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed || len(l.queue) == 0 {
		return nil, false
	}
	t := l.queue[0]
	l.queue[0] = nil
	l.queue = l.queue[1:]
	return t, true
}

type loopKey struct{}

// FromContext returns the loop driving the task that owns ctx. ok is false
// when ctx does not originate from a loop, the loop was detached, or the loop
// is no longer being driven (a task context that outlived its Drive call).
func FromContext(ctx context.Context) (*Loop, bool) {
	l, _ := ctx.Value(loopKey{}).(*Loop)
	if l == nil || !l.Running() {
		return nil, false
	}
	return l, true
}

// Detach returns a copy of ctx that no longer reports a running loop while
// keeping its deadline, cancellation and other values.
func Detach(ctx context.Context) context.Context {
	if l, _ := ctx.Value(loopKey{}).(*Loop); l == nil {
		return ctx
	}
	return context.WithValue(ctx, loopKey{}, (*Loop)(nil))
}
