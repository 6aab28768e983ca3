package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore(time.Minute)

	_, err := m.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrCacheMiss)

	value := []byte("v1")
	require.NoError(t, m.Set(ctx, "inventory:ledger:p-1", value, 0))
	value[0] = 'x'

	got, err := m.Get(ctx, "inventory:ledger:p-1")
	require.NoError(t, err)
	assert.Equal(t, []byte("v1"), got, "stored value is a copy")

	require.NoError(t, m.Set(ctx, "short", []byte("v"), 10*time.Millisecond))
	time.Sleep(30 * time.Millisecond)
	_, err = m.Get(ctx, "short")
	assert.ErrorIs(t, err, ErrCacheMiss)

	require.NoError(t, m.Set(ctx, "inventory:list:a", []byte("1"), 0))
	require.NoError(t, m.Set(ctx, "inventory:list:b", []byte("2"), 0))
	require.NoError(t, m.DelPattern(ctx, "inventory:list:*"))
	_, err = m.Get(ctx, "inventory:list:a")
	assert.ErrorIs(t, err, ErrCacheMiss)
	_, err = m.Get(ctx, "inventory:ledger:p-1")
	assert.NoError(t, err)

	require.NoError(t, m.Del(ctx, "inventory:ledger:p-1"))
	_, err = m.Get(ctx, "inventory:ledger:p-1")
	assert.ErrorIs(t, err, ErrCacheMiss)
}
