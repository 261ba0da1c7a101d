// Package bridge invokes tools uniformly, whatever their callable kind and
// whatever the calling context.
//
// Every invocation is in exactly one mode:
//
//   - direct: synchronous callable, caller not on an event loop. The callable
//     runs on the caller's goroutine.
//   - direct-async: asynchronous callable, caller not on an event loop. A loop
//     owned by the call is driven by a worker goroutine until the future
//     resolves; the caller waits on a channel, so a callable that blocks
//     while starting still cannot hold it past the deadline.
//   - bridged: the caller is a task on a running event loop. Waiting on that
//     loop would deadlock it, so a worker goroutine with its own loop runs the
//     callable and the caller waits on a channel.
//
// Direct-async and bridged calls are bounded by a deadline; on expiry the
// caller gets an error wrapping [tool.ErrInvocationTimeout] and any late
// result is discarded. Loops owned by a call are closed on every exit path.
//
// Typical usage:
//
//	b := bridge.New(bridge.WithTimeout(10 * time.Second))
//	sin := b.Wrap(desc)
//	v, err := sin.Call(ctx, tool.Arguments{"x": 1.57})
package bridge

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"

	"github.com/MrWong99/toolhub/internal/observe"
	"github.com/MrWong99/toolhub/pkg/eventloop"
	"github.com/MrWong99/toolhub/pkg/tool"
)

// DefaultTimeout bounds each invocation unless overridden by [WithTimeout] or
// the descriptor's own Timeout.
const DefaultTimeout = 30 * time.Second

// Mode is the execution strategy chosen for one invocation.
type Mode string

const (
	ModeDirect      Mode = "direct"
	ModeDirectAsync Mode = "direct-async"
	ModeBridged     Mode = "bridged"
)

// ModeFor returns the mode an invocation of d from ctx will use.
func ModeFor(ctx context.Context, d tool.Descriptor) Mode {
	if _, onLoop := eventloop.FromContext(ctx); onLoop {
		return ModeBridged
	}
	if d.Kind == tool.KindAsync {
		return ModeDirectAsync
	}
	return ModeDirect
}

// Option configures a [Bridge].
type Option func(*Bridge)

// WithTimeout sets the default per-invocation deadline.
func WithTimeout(d time.Duration) Option {
	return func(b *Bridge) {
		if d > 0 {
			b.timeout = d
		}
	}
}

// WithMetrics records invocations on m.
func WithMetrics(m *observe.Metrics) Option {
	return func(b *Bridge) { b.metrics = m }
}

// Bridge executes tool descriptors. It holds no per-call state and is safe
// for concurrent use; concurrent invocations never share a loop.
type Bridge struct {
	timeout time.Duration
	metrics *observe.Metrics
}

// New creates a Bridge.
func New(opts ...Option) *Bridge {
	b := &Bridge{timeout: DefaultTimeout}
	for _, o := range opts {
		o(b)
	}
	if b.metrics == nil {
		b.metrics = observe.DefaultMetrics()
	}
	return b
}

// Timeout returns the default deadline.
func (b *Bridge) Timeout() time.Duration { return b.timeout }

// Invoke runs d with args and blocks until it completes, fails or times out.
//
// Failures raised by the callable are returned as *tool.InvocationError;
// deadline expiry wraps [tool.ErrInvocationTimeout].
func (b *Bridge) Invoke(ctx context.Context, d tool.Descriptor, args tool.Arguments) (any, error) {
	if err := d.Validate(); err != nil {
		return nil, &tool.InvocationError{Tool: d.Name, Err: err}
	}
	if args == nil {
		args = tool.Arguments{}
	}
	timeout := b.timeout
	if d.Timeout > 0 {
		timeout = d.Timeout
	}
	mode := ModeFor(ctx, d)

	ctx, span := observe.StartSpan(ctx, "bridge.Invoke")
	defer span.End()
	span.SetAttributes(
		attribute.String("tool.name", d.Name),
		attribute.String("tool.kind", d.Kind.String()),
		attribute.String("bridge.mode", string(mode)),
	)

	start := time.Now()
	var (
		v   any
		err error
	)
	switch mode {
	case ModeDirect:
		v, err = b.direct(ctx, d, args, timeout)
	case ModeDirectAsync:
		v, err = b.directAsync(ctx, d, args, timeout)
	case ModeBridged:
		v, err = b.bridged(ctx, d, args, timeout)
	}
	elapsed := time.Since(start)

	status := "ok"
	switch {
	case errors.Is(err, tool.ErrInvocationTimeout):
		status = "timeout"
	case err != nil:
		status = "error"
	}
	b.metrics.ToolExecutionDuration.Record(ctx, elapsed.Seconds(),
		metric.WithAttributes(observe.Attr("tool", d.Name), observe.Attr("mode", string(mode))))
	b.metrics.RecordToolCall(ctx, d.Name, status)

	log := observe.Logger(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, status)
		log.Warn("tool invocation failed", "tool", d.Name, "mode", mode, "status", status, "duration", elapsed, "err", err)
		return nil, err
	}
	log.Debug("tool invocation completed", "tool", d.Name, "mode", mode, "duration", elapsed)
	return v, nil
}

func (b *Bridge) direct(ctx context.Context, d tool.Descriptor, args tool.Arguments, timeout time.Duration) (any, error) {
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	v, err := callSync(callCtx, d, args)
	if err == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
		// Late results are discarded like in the other modes.
		return nil, classify(callCtx, d.Name, timeout, callCtx.Err())
	}
	if err != nil {
		v = nil
	}
	return v, classify(callCtx, d.Name, timeout, err)
}

func (b *Bridge) directAsync(ctx context.Context, d tool.Descriptor, args tool.Arguments, timeout time.Duration) (any, error) {
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return await(callCtx, d.Name, timeout, func() (any, error) {
		return runOnOwnLoop(callCtx, d, args)
	})
}

type outcome struct {
	v   any
	err error
}

func (b *Bridge) bridged(ctx context.Context, d tool.Descriptor, args tool.Arguments, timeout time.Duration) (any, error) {
	// The worker must not see the caller's loop, otherwise async callables
	// would schedule their completion onto the loop the caller is blocking.
	callCtx, cancel := context.WithTimeout(eventloop.Detach(ctx), timeout)
	defer cancel()

	return await(callCtx, d.Name, timeout, func() (any, error) {
		if d.Kind == tool.KindAsync {
			return runOnOwnLoop(callCtx, d, args)
		}
		return callSync(callCtx, d, args)
	})
}

// await runs work on a worker goroutine and waits for it or for callCtx.
func await(callCtx context.Context, name string, timeout time.Duration, work func() (any, error)) (any, error) {
	done := make(chan outcome, 1) // buffered: a late worker never blocks
	go func() {
		var o outcome
		o.v, o.err = work()
		done <- o
	}()

	select {
	case o := <-done:
		if o.err != nil {
			o.v = nil
		}
		return o.v, classify(callCtx, name, timeout, o.err)
	case <-callCtx.Done():
		return nil, classify(callCtx, name, timeout, callCtx.Err())
	}
}

// runOnOwnLoop starts d's async callable on a fresh loop driven by the
// calling goroutine. The loop is closed before returning.
func runOnOwnLoop(ctx context.Context, d tool.Descriptor, args tool.Arguments) (any, error) {
	loop := eventloop.New()
	defer loop.Close()
	return loop.RunUntilComplete(ctx, func(loopCtx context.Context) (f *eventloop.Future) {
		defer func() {
			if r := recover(); r != nil {
				f = eventloop.Resolved(nil, panicError(r))
			}
		}()
		return d.Async(loopCtx, args)
	})
}

func callSync(ctx context.Context, d tool.Descriptor, args tool.Arguments) (v any, err error) {
	defer func() {
		if r := recover(); r != nil {
			v, err = nil, panicError(r)
		}
	}()
	return d.Sync(ctx, args)
}

func panicError(r any) error {
	return fmt.Errorf("panic: %v\n%s", r, debug.Stack())
}

// classify maps a raw callable outcome onto the error taxonomy.
func classify(callCtx context.Context, name string, timeout time.Duration, err error) error {
	if err == nil {
		return nil
	}
	var ie *tool.InvocationError
	if errors.Is(err, tool.ErrInvocationTimeout) || errors.As(err, &ie) {
		return err
	}
	if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("bridge: %q exceeded %s: %w", name, timeout, tool.ErrInvocationTimeout)
	}
	if errors.Is(callCtx.Err(), context.Canceled) && errors.Is(err, context.Canceled) {
		return fmt.Errorf("bridge: %q: %w", name, err)
	}
	return &tool.InvocationError{Tool: name, Err: err}
}
