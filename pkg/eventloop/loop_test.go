package eventloop

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestDrive_RunsTasksInOrder(t *testing.T) {
	t.Parallel()
	l := New()
	defer l.Close()

	var got []int
	stop := make(chan struct{})
	for i := range 3 {
		if err := l.Post(func(context.Context) { got = append(got, i) }); err != nil {
			t.Fatalf("Post: %v", err)
		}
	}
	_ = l.Post(func(context.Context) { close(stop) })

	if err := l.Drive(context.Background(), stop); err != nil {
		t.Fatalf("Drive: %v", err)
	}
	if len(got) != 3 || got[0] != 0 || got[1] != 1 || got[2] != 2 {
		t.Errorf("task order = %v, want [0 1 2]", got)
	}
}

func TestDrive_TaskContextCarriesLoop(t *testing.T) {
	t.Parallel()
	l := New()
	defer l.Close()

	if _, ok := FromContext(context.Background()); ok {
		t.Fatal("background context must not report a loop")
	}

	stop := make(chan struct{})
	var seen *Loop
	var detachedOK bool
	_ = l.Post(func(ctx context.Context) {
		seen, _ = FromContext(ctx)
		_, detachedOK = FromContext(Detach(ctx))
		close(stop)
	})
	if err := l.Drive(context.Background(), stop); err != nil {
		t.Fatalf("Drive: %v", err)
	}
	if seen != l {
		t.Errorf("FromContext inside task = %p, want %p", seen, l)
	}
	if detachedOK {
		t.Error("Detach must hide the running loop")
	}
}

func TestFromContext_EscapedTaskContext(t *testing.T) {
	t.Parallel()
	l := New()
	defer l.Close()

	stop := make(chan struct{})
	var escaped context.Context
	_ = l.Post(func(ctx context.Context) {
		escaped = ctx
		close(stop)
	})
	if err := l.Drive(context.Background(), stop); err != nil {
		t.Fatalf("Drive: %v", err)
	}
	if _, ok := FromContext(escaped); ok {
		t.Error("a task context must not report the loop once Drive returned")
	}
	f := Go(escaped, func(context.Context) (any, error) { return 1, nil })
	if _, err := f.Result(); !errors.Is(err, ErrNoLoop) {
		t.Errorf("Go on a stopped loop: err = %v, want ErrNoLoop", err)
	}
}

func TestDrive_ContextCancel(t *testing.T) {
	t.Parallel()
	l := New()
	defer l.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := l.Drive(ctx, nil); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Drive error = %v, want DeadlineExceeded", err)
	}
}

func TestDrive_Busy(t *testing.T) {
	t.Parallel()
	l := New()
	defer l.Close()

	inside := make(chan struct{})
	release := make(chan struct{})
	_ = l.Post(func(context.Context) {
		close(inside)
		<-release
	})
	go func() { _ = l.Drive(context.Background(), release) }()
	<-inside

	if err := l.Drive(context.Background(), nil); !errors.Is(err, ErrBusy) {
		t.Errorf("second Drive error = %v, want ErrBusy", err)
	}
	close(release)
}

func TestClose_Idempotent(t *testing.T) {
	t.Parallel()
	l := New()
	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if err := l.Post(func(context.Context) {}); !errors.Is(err, ErrClosed) {
		t.Errorf("Post after Close = %v, want ErrClosed", err)
	}
	if err := l.Drive(context.Background(), nil); !errors.Is(err, ErrClosed) {
		t.Errorf("Drive after Close = %v, want ErrClosed", err)
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// Futures
// ──────────────────────────────────────────────────────────────────────────────

func TestFuture_FirstResolveWins(t *testing.T) {
	t.Parallel()
	f := NewFuture()
	if v, err := f.Result(); v != nil || err != nil {
		t.Fatalf("unresolved Result = (%v, %v), want zero values", v, err)
	}
	if !f.Resolve(1, nil) {
		t.Fatal("first Resolve should win")
	}
	if f.Resolve(2, errors.New("late")) {
		t.Fatal("second Resolve should lose")
	}
	v, err := f.Await(context.Background())
	if err != nil || v != 1 {
		t.Errorf("Await = (%v, %v), want (1, nil)", v, err)
	}
}

func TestGo_WithoutLoop(t *testing.T) {
	t.Parallel()
	f := Go(context.Background(), func(context.Context) (any, error) { return "never", nil })
	_, err := f.Await(context.Background())
	if !errors.Is(err, ErrNoLoop) {
		t.Errorf("Await error = %v, want ErrNoLoop", err)
	}
}

func TestRunUntilComplete(t *testing.T) {
	t.Parallel()
	l := New()
	defer l.Close()

	v, err := l.RunUntilComplete(context.Background(), func(ctx context.Context) *Future {
		return Go(ctx, func(context.Context) (any, error) {
			time.Sleep(5 * time.Millisecond)
			return 42, nil
		})
	})
	if err != nil {
		t.Fatalf("RunUntilComplete: %v", err)
	}
	if v != 42 {
		t.Errorf("result = %v, want 42", v)
	}
}

func TestRunUntilComplete_Deadline(t *testing.T) {
	t.Parallel()
	l := New()
	defer l.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := l.RunUntilComplete(ctx, func(ctx context.Context) *Future {
		return NewFuture() // never resolves
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("error = %v, want DeadlineExceeded", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("RunUntilComplete took %v after a 20ms deadline", elapsed)
	}
}

// A task that blocks on a future resolved through its own loop can never
// complete; this is the hazard callers must avoid.
func TestAwaitOnOwnLoopBlocks(t *testing.T) {
	t.Parallel()
	l := New()
	defer l.Close()

	var awaitErr error
	stop := make(chan struct{})
	_ = l.Post(func(ctx context.Context) {
		f := Go(ctx, func(context.Context) (any, error) { return 1, nil })
		waitCtx, cancel := context.WithTimeout(ctx, 30*time.Millisecond)
		defer cancel()
		_, awaitErr = f.Await(waitCtx)
		close(stop)
	})
	if err := l.Drive(context.Background(), stop); err != nil {
		t.Fatalf("Drive: %v", err)
	}
	if !errors.Is(awaitErr, context.DeadlineExceeded) {
		t.Errorf("Await on own loop = %v, want DeadlineExceeded", awaitErr)
	}
}
