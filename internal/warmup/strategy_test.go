package warmup

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fekuna/omnipos-inventory-service/internal/cache"
	"github.com/fekuna/omnipos-inventory-service/internal/chance"
	"github.com/fekuna/omnipos-inventory-service/internal/logger"
	"github.com/fekuna/omnipos-inventory-service/internal/telemetry"
	"github.com/fekuna/omnipos-inventory-service/internal/variant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newStrategy(cfg Config) (*Strategy, *fakeClock) {
	clock := &fakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
	s := NewStrategy(cache.NewMemoryStore(time.Minute), cfg, chance.New(7), telemetry.NewRecorder(), logger.NewNop())
	s.now = clock.Now
	return s, clock
}

func selection(mode variant.WarmupMode, ttlSeconds int) variant.Selection {
	return variant.Selection{
		CacheMode:        variant.CacheModeStandard,
		Algorithm:        variant.AlgorithmLockBased,
		TimeoutMs:        1000,
		WarmupMode:       mode,
		WarmupTTLSeconds: ttlSeconds,
	}
}

func countingLoader(calls *atomic.Int64, payload string) Loader {
	return func(context.Context) ([]byte, error) {
		calls.Add(1)
		return []byte(payload), nil
	}
}

func TestOnDemandPopulatesLazily(t *testing.T) {
	ctx := context.Background()
	s, _ := newStrategy(Config{})
	sel := selection(variant.WarmupOnDemand, 60)

	var calls atomic.Int64
	load := countingLoader(&calls, "v1")

	first, err := s.Read(ctx, "inventory:list:a", sel, 0, load)
	require.NoError(t, err)
	assert.False(t, first.FromCache)
	assert.Equal(t, []byte("v1"), first.Value)

	second, err := s.Read(ctx, "inventory:list:a", sel, 0, load)
	require.NoError(t, err)
	assert.True(t, second.FromCache)
	assert.False(t, second.Stale)
	assert.Equal(t, []byte("v1"), second.Value)
	assert.EqualValues(t, 1, calls.Load())
}

func TestZeroTTLBypassesCache(t *testing.T) {
	ctx := context.Background()
	s, _ := newStrategy(Config{})
	sel := selection(variant.WarmupOnDemand, 0)

	var calls atomic.Int64
	for i := 0; i < 3; i++ {
		res, err := s.Read(ctx, "k", sel, 0, countingLoader(&calls, "v"))
		require.NoError(t, err)
		assert.False(t, res.FromCache)
	}
	assert.EqualValues(t, 3, calls.Load())
}

func TestLoaderErrorIsNotCached(t *testing.T) {
	ctx := context.Background()
	s, _ := newStrategy(Config{})
	sel := selection(variant.WarmupOnDemand, 60)
	boom := errors.New("db down")

	_, err := s.Read(ctx, "k", sel, 0, func(context.Context) ([]byte, error) { return nil, boom })
	assert.ErrorIs(t, err, boom)

	var calls atomic.Int64
	res, err := s.Read(ctx, "k", sel, 0, countingLoader(&calls, "ok"))
	require.NoError(t, err)
	assert.False(t, res.FromCache)
	assert.EqualValues(t, 1, calls.Load())
}

func TestBackgroundServesFreshEntry(t *testing.T) {
	ctx := context.Background()
	s, clock := newStrategy(Config{HighRateThreshold: 100, StaleServeProbability: 1})
	sel := selection(variant.WarmupBackground, 60)

	var calls atomic.Int64
	load := countingLoader(&calls, "v")
	_, err := s.Read(ctx, "k", sel, 0, load)
	require.NoError(t, err)

	clock.Advance(30 * time.Second)
	res, err := s.Read(ctx, "k", sel, 500, load)
	require.NoError(t, err)
	assert.True(t, res.FromCache)
	assert.False(t, res.Stale)
	assert.EqualValues(t, 1, calls.Load())
}

func TestBackgroundServesExpiredEntryUnderHighRate(t *testing.T) {
	ctx := context.Background()
	s, clock := newStrategy(Config{HighRateThreshold: 100, StaleServeProbability: 1})
	sel := selection(variant.WarmupBackground, 60)

	_, err := s.Read(ctx, "k", sel, 0, func(context.Context) ([]byte, error) { return []byte("old"), nil })
	require.NoError(t, err)
	clock.Advance(2 * time.Minute)

	var calls atomic.Int64
	res, err := s.Read(ctx, "k", sel, 150, countingLoader(&calls, "new"))
	require.NoError(t, err)
	assert.True(t, res.FromCache)
	assert.True(t, res.Stale)
	assert.Equal(t, []byte("old"), res.Value)

	assert.Eventually(t, func() bool {
		got, err := s.Read(ctx, "k", sel, 0, countingLoader(&calls, "new"))
		return err == nil && !got.Stale && string(got.Value) == "new"
	}, time.Second, 5*time.Millisecond)
}

func TestBackgroundReloadsExpiredEntryUnderLowRate(t *testing.T) {
	ctx := context.Background()
	s, clock := newStrategy(Config{HighRateThreshold: 100, StaleServeProbability: 1})
	sel := selection(variant.WarmupBackground, 60)

	_, err := s.Read(ctx, "k", sel, 0, func(context.Context) ([]byte, error) { return []byte("old"), nil })
	require.NoError(t, err)
	clock.Advance(2 * time.Minute)

	var calls atomic.Int64
	res, err := s.Read(ctx, "k", sel, 10, countingLoader(&calls, "new"))
	require.NoError(t, err)
	assert.False(t, res.FromCache)
	assert.False(t, res.Stale)
	assert.Equal(t, []byte("new"), res.Value)
	assert.EqualValues(t, 1, calls.Load())
}

func TestConcurrentMissesShareOneLoad(t *testing.T) {
	ctx := context.Background()
	s, _ := newStrategy(Config{})
	sel := selection(variant.WarmupOnDemand, 60)

	var calls atomic.Int64
	started := make(chan struct{})
	release := make(chan struct{})
	load := func(context.Context) ([]byte, error) {
		if calls.Add(1) == 1 {
			close(started)
		}
		<-release
		return []byte("v"), nil
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, _ = s.Read(ctx, "k", sel, 0, load)
	}()
	<-started

	for i := 0; i < 9; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := s.Read(ctx, "k", sel, 0, load)
			assert.NoError(t, err)
			assert.Equal(t, []byte("v"), res.Value)
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.EqualValues(t, 1, calls.Load())
}

func TestRefreshAllReloadsBackgroundKeys(t *testing.T) {
	ctx := context.Background()
	s, _ := newStrategy(Config{})

	var version atomic.Int64
	load := func(context.Context) ([]byte, error) {
		if version.Add(1) == 1 {
			return []byte("v1"), nil
		}
		return []byte("v2"), nil
	}

	_, err := s.Read(ctx, "bg", selection(variant.WarmupBackground, 60), 0, load)
	require.NoError(t, err)
	_, err = s.Read(ctx, "od", selection(variant.WarmupOnDemand, 60), 0, func(context.Context) ([]byte, error) {
		return []byte("on-demand"), nil
	})
	require.NoError(t, err)

	s.RefreshAll(ctx)

	res, err := s.Read(ctx, "bg", selection(variant.WarmupBackground, 60), 0, load)
	require.NoError(t, err)
	assert.True(t, res.FromCache)
	assert.Equal(t, []byte("v2"), res.Value)
	assert.EqualValues(t, 2, version.Load())
}

func TestRefreshAllForgetsIdleKeys(t *testing.T) {
	ctx := context.Background()
	s, clock := newStrategy(Config{RetentionFactor: 2})

	var idle, busy atomic.Int64
	sel := selection(variant.WarmupBackground, 60)
	_, err := s.Read(ctx, "list:page=1", sel, 0, countingLoader(&idle, "idle"))
	require.NoError(t, err)
	_, err = s.Read(ctx, "list:page=2", sel, 0, countingLoader(&busy, "busy"))
	require.NoError(t, err)
	require.Equal(t, 2, s.Registered())

	clock.Advance(90 * time.Second)
	_, err = s.Read(ctx, "list:page=2", sel, 0, countingLoader(&busy, "busy"))
	require.NoError(t, err)

	clock.Advance(60 * time.Second)
	s.RefreshAll(ctx)

	assert.Equal(t, 1, s.Registered())
	assert.EqualValues(t, 1, idle.Load())
	assert.EqualValues(t, 3, busy.Load())
}

func TestRegistrationsAreCapped(t *testing.T) {
	ctx := context.Background()
	s, clock := newStrategy(Config{MaxRegistrations: 3})

	var calls atomic.Int64
	sel := selection(variant.WarmupBackground, 60)
	for i := 0; i < 10; i++ {
		_, err := s.Read(ctx, fmt.Sprintf("list:page=%d", i), sel, 0, countingLoader(&calls, "page"))
		require.NoError(t, err)
		clock.Advance(time.Second)
	}
	assert.Equal(t, 3, s.Registered())

	calls.Store(0)
	s.RefreshAll(ctx)
	assert.EqualValues(t, 3, calls.Load())
}

func TestInvalidateDropsMatchingEntries(t *testing.T) {
	ctx := context.Background()
	s, _ := newStrategy(Config{})
	sel := selection(variant.WarmupOnDemand, 60)

	var calls atomic.Int64
	load := countingLoader(&calls, "v")
	_, err := s.Read(ctx, "inventory:list:a", sel, 0, load)
	require.NoError(t, err)

	s.Invalidate(ctx, "inventory:list:*")

	res, err := s.Read(ctx, "inventory:list:a", sel, 0, load)
	require.NoError(t, err)
	assert.False(t, res.FromCache)
	assert.EqualValues(t, 2, calls.Load())
}
