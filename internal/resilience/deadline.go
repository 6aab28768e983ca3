package resilience

import (
	"context"
	"errors"
	"time"
)

var ErrTimedOut = errors.New("operation timed out")

type outcome[T any] struct {
	val T
	err error
}

// WithDeadline runs op on its own goroutine and waits for whichever comes
// first: op's result or the timer. A timed out op is abandoned, not
// cancelled: it receives a context detached from ctx and runs to completion,
// so its side effects still land. A timeout <= 0 waits for op unconditionally.
// If ctx ends first, op is abandoned the same way and ctx.Err() is returned
// instead of ErrTimedOut.
func WithDeadline[T any](ctx context.Context, timeout time.Duration, op func(ctx context.Context) (T, error)) (T, error) {
	done := make(chan outcome[T], 1)
	detached := context.WithoutCancel(ctx)

	go func() {
		v, err := op(detached)
		done <- outcome[T]{val: v, err: err}
	}()

	var deadline <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		deadline = timer.C
	}

	var zero T
	select {
	case res := <-done:
		return res.val, res.err
	case <-deadline:
		return zero, ErrTimedOut
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}
