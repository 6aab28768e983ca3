package variant

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defaultSelection() Selection {
	return Selection{
		CacheMode:        CacheModeStandard,
		Algorithm:        AlgorithmLockBased,
		TimeoutMs:        5000,
		Retries:          3,
		WarmupMode:       WarmupOnDemand,
		WarmupTTLSeconds: 60,
	}
}

func TestParse(t *testing.T) {
	for _, in := range []string{"lockBased", "lock-based", "LOCK_BASED", " lock_based "} {
		a, err := ParseAlgorithm(in)
		require.NoError(t, err, in)
		assert.Equal(t, AlgorithmLockBased, a)
	}

	a, err := ParseAlgorithm("fastPath")
	require.NoError(t, err)
	assert.Equal(t, AlgorithmFastPath, a)

	_, err = ParseAlgorithm("optimistic")
	assert.ErrorIs(t, err, ErrInvalidSelection)

	m, err := ParseCacheMode("Optimized")
	require.NoError(t, err)
	assert.Equal(t, CacheModeOptimized, m)

	w, err := ParseWarmupMode("onDemand")
	require.NoError(t, err)
	assert.Equal(t, WarmupOnDemand, w)

	_, err = ParseWarmupMode("eager")
	assert.ErrorIs(t, err, ErrInvalidSelection)
}

func TestSelectionDurations(t *testing.T) {
	s := defaultSelection()
	assert.Equal(t, 5*time.Second, s.Timeout())
	assert.Equal(t, time.Minute, s.WarmupTTL())
}

func TestValidate(t *testing.T) {
	assert.NoError(t, defaultSelection().Validate())

	s := defaultSelection()
	s.Algorithm = "bogus"
	assert.ErrorIs(t, s.Validate(), ErrInvalidSelection)

	s = defaultSelection()
	s.TimeoutMs = -1
	assert.ErrorIs(t, s.Validate(), ErrInvalidSelection)
}

func TestWithOverrides(t *testing.T) {
	base := defaultSelection()

	t.Run("applies known keys", func(t *testing.T) {
		out, err := base.WithOverrides(map[string]string{
			KeyAlgorithm:  "fast-path",
			KeyCacheMode:  "optimized",
			KeyTimeoutMs:  "50",
			KeyWarmupMode: "background",
			KeyRetries:    "",
		})
		require.NoError(t, err)
		assert.Equal(t, AlgorithmFastPath, out.Algorithm)
		assert.Equal(t, CacheModeOptimized, out.CacheMode)
		assert.Equal(t, 50, out.TimeoutMs)
		assert.Equal(t, WarmupBackground, out.WarmupMode)
		assert.Equal(t, 3, out.Retries)
		assert.Equal(t, AlgorithmLockBased, base.Algorithm, "original untouched")
	})

	t.Run("rejects bad values", func(t *testing.T) {
		out, err := base.WithOverrides(map[string]string{KeyTimeoutMs: "-5"})
		assert.ErrorIs(t, err, ErrInvalidSelection)
		assert.Equal(t, base, out)
	})
}

func TestStaticProvider(t *testing.T) {
	p, err := NewStaticProvider(defaultSelection())
	require.NoError(t, err)

	sel, err := p.Resolve(context.Background(), Context{UserID: "u-1", RequestRate: 500})
	require.NoError(t, err)
	assert.Equal(t, defaultSelection(), sel)

	_, err = NewStaticProvider(Selection{})
	assert.Error(t, err)
}
