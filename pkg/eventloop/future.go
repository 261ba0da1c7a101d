package eventloop

import (
	"context"
	"sync"
)

// Future is the eventual result of an asynchronous operation. The first call
// to [Future.Resolve] wins; later calls are ignored.
type Future struct {
	once sync.Once
	done chan struct{}
	val  any
	err  error
}

// NewFuture returns an unresolved future.
func NewFuture() *Future {
	return &Future{done: make(chan struct{})}
}

// Resolved returns a future that has already completed with v and err.
func Resolved(v any, err error) *Future {
	f := NewFuture()
	f.Resolve(v, err)
	return f
}

// Resolve completes the future. It reports whether this call won.
func (f *Future) Resolve(v any, err error) bool {
	won := false
	f.once.Do(func() {
		f.val, f.err = v, err
		close(f.done)
		won = true
	})
	return won
}

// Done is closed once the future is resolved.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Result returns the resolved value. It must only be called after Done is
// closed; before that it returns zero values.
func (f *Future) Result() (any, error) {
	select {
	case <-f.done:
		return f.val, f.err
	default:
		return nil, nil
	}
}

// Await blocks until the future resolves or ctx ends.
//
// Calling Await from a task on the loop that is expected to resolve the
// future deadlocks that loop until ctx ends.
func (f *Future) Await(ctx context.Context) (any, error) {
	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Go runs fn on a new goroutine and resolves the returned future on the loop
// found in ctx. Without a running loop the future fails immediately with
// [ErrNoLoop].
func Go(ctx context.Context, fn func(ctx context.Context) (any, error)) *Future {
	f := NewFuture()
	l, ok := FromContext(ctx)
	if !ok {
		f.Resolve(nil, ErrNoLoop)
		return f
	}
	go func() {
		v, err := fn(ctx)
		if perr := l.Post(func(context.Context) { f.Resolve(v, err) }); perr != nil {
			f.Resolve(nil, perr)
		}
	}()
	return f
}

// RunUntilComplete posts start onto l, drives l on the calling goroutine and
// returns once the future produced by start resolves or ctx ends. The loop is
// not closed; callers own its lifetime.
func (l *Loop) RunUntilComplete(ctx context.Context, start func(ctx context.Context) *Future) (any, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var fut *Future
	stop := make(chan struct{})
	err := l.Post(func(taskCtx context.Context) {
		fut = start(taskCtx)
		if fut == nil {
			fut = Resolved(nil, errNilFuture)
		}
		go func() {
			select {
			case <-fut.Done():
				close(stop)
			case <-ctx.Done():
			}
		}()
	})
	if err != nil {
		return nil, err
	}

	if err := l.Drive(ctx, stop); err != nil {
		return nil, err
	}
	return fut.Result()
}
