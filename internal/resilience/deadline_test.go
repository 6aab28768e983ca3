package resilience

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sleeper(d time.Duration, val int, err error, finished *atomic.Bool) func(context.Context) (int, error) {
	return func(ctx context.Context) (int, error) {
		time.Sleep(d)
		if finished != nil {
			finished.Store(true)
		}
		return val, err
	}
}

func TestWithDeadlineRace(t *testing.T) {
	cases := []struct {
		name     string
		op       time.Duration
		deadline time.Duration
		timedOut bool
	}{
		{"op well inside deadline", 10 * time.Millisecond, 200 * time.Millisecond, false},
		{"op well past deadline", 200 * time.Millisecond, 20 * time.Millisecond, true},
		{"instant op", 0, 50 * time.Millisecond, false},
		{"slow op short deadline", 150 * time.Millisecond, 1 * time.Millisecond, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			v, err := WithDeadline(context.Background(), tc.deadline, sleeper(tc.op, 7, nil, nil))
			if tc.timedOut {
				assert.ErrorIs(t, err, ErrTimedOut)
				assert.Zero(t, v)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, 7, v)
		})
	}
}

func TestWithDeadlinePassesDomainErrorThrough(t *testing.T) {
	domain := errors.New("insufficient stock")
	_, err := WithDeadline(context.Background(), time.Second, sleeper(0, 0, domain, nil))
	assert.ErrorIs(t, err, domain)
	assert.NotErrorIs(t, err, ErrTimedOut)
}

func TestWithDeadlineAbandonsWithoutCancelling(t *testing.T) {
	var finished atomic.Bool
	var sawCancel atomic.Bool

	op := func(ctx context.Context) (int, error) {
		time.Sleep(100 * time.Millisecond)
		if ctx.Err() != nil {
			sawCancel.Store(true)
		}
		finished.Store(true)
		return 1, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	_, err := WithDeadline(ctx, 10*time.Millisecond, op)
	cancel()
	require.ErrorIs(t, err, ErrTimedOut)
	assert.False(t, finished.Load(), "caller returns before the op finishes")

	assert.Eventually(t, finished.Load, time.Second, 5*time.Millisecond)
	assert.False(t, sawCancel.Load(), "the abandoned op must not observe cancellation")
}

func TestWithDeadlineDisabled(t *testing.T) {
	v, err := WithDeadline(context.Background(), 0, sleeper(30*time.Millisecond, 3, nil, nil))
	require.NoError(t, err)
	assert.Equal(t, 3, v)
}

func TestWithDeadlineCallerGone(t *testing.T) {
	var finished atomic.Bool
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := WithDeadline(ctx, time.Second, sleeper(50*time.Millisecond, 1, nil, &finished))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Eventually(t, finished.Load, time.Second, 5*time.Millisecond)
}
