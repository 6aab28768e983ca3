package usecase

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fekuna/omnipos-inventory-service/internal/inventory"
	"github.com/fekuna/omnipos-inventory-service/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	_ Locker = (*LocalLocker)(nil)
	_ Locker = (*RedisLocker)(nil)
)

func TestLocalLockerSerializesPerProduct(t *testing.T) {
	l := NewLocalLocker()

	var inside, maxInside atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := l.Lock(context.Background(), "p-1")
			require.NoError(t, err)
			n := inside.Add(1)
			for {
				m := maxInside.Load()
				if n <= m || maxInside.CompareAndSwap(m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			inside.Add(-1)
			unlock()
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, maxInside.Load())
	assert.Empty(t, l.locks, "idle keys are dropped")
}

func TestLocalLockerIndependentProducts(t *testing.T) {
	l := NewLocalLocker()
	unlockA, err := l.Lock(context.Background(), "a")
	require.NoError(t, err)
	defer unlockA()

	done := make(chan struct{})
	go func() {
		unlockB, _ := l.Lock(context.Background(), "b")
		unlockB()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on b blocked behind a")
	}
}

type fakeLockClient struct {
	mu       sync.Mutex
	free     bool
	err      error
	attempts int
	holder   string
	released []string
}

func (f *fakeLockClient) AcquireLock(_ context.Context, _, value string, _ time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts++
	if f.err != nil || !f.free {
		return false, f.err
	}
	f.free = false
	f.holder = value
	return true, nil
}

func (f *fakeLockClient) ReleaseLock(_ context.Context, _, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.released = append(f.released, value)
	if value == f.holder {
		f.free = true
	}
	return nil
}

func TestRedisLocker(t *testing.T) {
	cfg := RedisLockerConfig{TTL: time.Second, Attempts: 3, RetryDelay: time.Millisecond}

	t.Run("acquires and releases with its own token", func(t *testing.T) {
		client := &fakeLockClient{free: true}
		l := NewRedisLocker(client, cfg, logger.NewNop())

		unlock, err := l.Lock(context.Background(), "p-1")
		require.NoError(t, err)
		assert.Equal(t, 1, client.attempts)

		unlock()
		assert.Equal(t, []string{client.holder}, client.released)
		assert.True(t, client.free)
	})

	t.Run("gives up after the configured attempts", func(t *testing.T) {
		client := &fakeLockClient{free: false}
		l := NewRedisLocker(client, cfg, logger.NewNop())

		_, err := l.Lock(context.Background(), "p-1")
		assert.ErrorIs(t, err, inventory.ErrLockUnavailable)
		assert.Equal(t, 3, client.attempts)
	})

	t.Run("redis errors count as failed attempts", func(t *testing.T) {
		client := &fakeLockClient{free: true, err: errors.New("connection refused")}
		l := NewRedisLocker(client, cfg, logger.NewNop())

		_, err := l.Lock(context.Background(), "p-1")
		assert.ErrorIs(t, err, inventory.ErrLockUnavailable)
		assert.Equal(t, 3, client.attempts)
	})
}
