package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCache(t *testing.T) {
	c := NewMemoryCache()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "live_attempts:exam:1", []int{1, 2}, time.Minute))
	require.NoError(t, c.Set(ctx, "live_attempts:exam:2", []int{3}, time.Minute))

	var got []int
	require.NoError(t, c.Get(ctx, "live_attempts:exam:1", &got))
	assert.Equal(t, []int{1, 2}, got)

	require.NoError(t, c.Delete(ctx, "live_attempts:exam:1"))
	assert.ErrorIs(t, c.Get(ctx, "live_attempts:exam:1", &got), ErrCacheMiss)

	require.NoError(t, c.DeletePattern(ctx, "live_attempts:*"))
	assert.ErrorIs(t, c.Get(ctx, "live_attempts:exam:2", &got), ErrCacheMiss)
}

func TestMemoryCache_Expiry(t *testing.T) {
	c := NewMemoryCache()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", "v", time.Millisecond))
	time.Sleep(5 * time.Millisecond)

	var got string
	assert.ErrorIs(t, c.Get(ctx, "k", &got), ErrCacheMiss)
}
