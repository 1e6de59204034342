package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCacheTryLock(t *testing.T) {
	ctx := context.Background()
	mc := NewMemoryCache()
	defer mc.Close()

	ok, err := mc.TryLock(ctx, "news:1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = mc.TryLock(ctx, "news:1", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = mc.TryLock(ctx, "news:2", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemoryCacheTryLockAfterTTL(t *testing.T) {
	ctx := context.Background()
	mc := NewMemoryCache()
	defer mc.Close()

	ok, _ := mc.TryLock(ctx, "k", 10*time.Millisecond)
	require.True(t, ok)
	time.Sleep(25 * time.Millisecond)
	ok, _ = mc.TryLock(ctx, "k", 10*time.Millisecond)
	assert.True(t, ok)
}

func TestMemoryCacheEvictsLeastRecentlyUsed(t *testing.T) {
	ctx := context.Background()
	mc := NewMemoryCache(WithMemoryMaxSize(2))
	defer mc.Close()

	ok, _ := mc.TryLock(ctx, "a", 0)
	require.True(t, ok)
	time.Sleep(time.Millisecond)
	ok, _ = mc.TryLock(ctx, "b", 0)
	require.True(t, ok)
	time.Sleep(time.Millisecond)
	ok, _ = mc.TryLock(ctx, "a", 0) // touches a
	require.False(t, ok)
	time.Sleep(time.Millisecond)
	ok, _ = mc.TryLock(ctx, "c", 0)
	require.True(t, ok)

	assert.Equal(t, 2, mc.Len())
	ok, _ = mc.TryLock(ctx, "a", 0)
	assert.False(t, ok, "a was recently used and must survive")
	ok, _ = mc.TryLock(ctx, "b", 0)
	assert.True(t, ok, "b was evicted")
}

func TestMemoryCacheCleanupRemovesExpired(t *testing.T) {
	ctx := context.Background()
	mc := NewMemoryCache(WithMemoryCleanup(5 * time.Millisecond))
	defer mc.Close()

	ok, _ := mc.TryLock(ctx, "k", time.Millisecond)
	require.True(t, ok)
	assert.Eventually(t, func() bool { return mc.Len() == 0 }, time.Second, 5*time.Millisecond)
}
