package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/effective-security/toolgate/cache"
	"github.com/effective-security/toolgate/toolcall"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_Fingerprint(t *testing.T) {
	fp1, err := cache.Fingerprint("execute_query", map[string]any{
		"sql":     "SELECT 1",
		"db_path": "data.db",
	})
	require.NoError(t, err)

	// key order does not matter
	fp2, err := cache.Fingerprint("execute_query", map[string]any{
		"db_path": "data.db",
		"sql":     "SELECT 1",
	})
	require.NoError(t, err)
	assert.Equal(t, fp1, fp2)

	// different tool name, same arguments
	fp3, err := cache.Fingerprint("get_schema", map[string]any{
		"sql":     "SELECT 1",
		"db_path": "data.db",
	})
	require.NoError(t, err)
	assert.NotEqual(t, fp1, fp3)

	// different arguments
	fp4, err := cache.Fingerprint("execute_query", map[string]any{
		"sql":     "SELECT 2",
		"db_path": "data.db",
	})
	require.NoError(t, err)
	assert.NotEqual(t, fp1, fp4)

	// nested maps are canonicalized as well
	fp5, err := cache.Fingerprint("search", map[string]any{
		"filter": map[string]any{"a": 1, "b": 2},
	})
	require.NoError(t, err)
	fp6, err := cache.Fingerprint("search", map[string]any{
		"filter": map[string]any{"b": 2, "a": 1},
	})
	require.NoError(t, err)
	assert.Equal(t, fp5, fp6)
}

func Test_MemoryCache(t *testing.T) {
	ctx := context.Background()
	c := cache.NewMemoryCache(10)

	_, ok := c.Lookup(ctx, "fp1")
	assert.False(t, ok)

	res := toolcall.Success([]byte(`{"rows":[{"id":1}]}`))
	require.NoError(t, c.Store(ctx, "fp1", res, time.Minute))

	got, ok := c.Lookup(ctx, "fp1")
	require.True(t, ok)
	assert.Equal(t, res.Payload, got.Payload)

	require.NoError(t, c.Remove(ctx, "fp1"))
	_, ok = c.Lookup(ctx, "fp1")
	assert.False(t, ok)

	// zero ttl is not stored
	require.NoError(t, c.Store(ctx, "fp2", res, 0))
	_, ok = c.Lookup(ctx, "fp2")
	assert.False(t, ok)
}

func Test_MemoryCache_TTL(t *testing.T) {
	ctx := context.Background()
	c := cache.NewMemoryCache(10)

	res := toolcall.Success([]byte(`{}`))
	require.NoError(t, c.Store(ctx, "fp1", res, 20*time.Millisecond))

	_, ok := c.Lookup(ctx, "fp1")
	assert.True(t, ok)

	time.Sleep(30 * time.Millisecond)
	_, ok = c.Lookup(ctx, "fp1")
	assert.False(t, ok)
}

func Test_MemoryCache_LRU(t *testing.T) {
	ctx := context.Background()
	c := cache.NewMemoryCache(2)

	res := toolcall.Success([]byte(`{}`))
	require.NoError(t, c.Store(ctx, "fp1", res, time.Minute))
	require.NoError(t, c.Store(ctx, "fp2", res, time.Minute))

	// refresh fp1 so fp2 becomes the eviction candidate
	_, ok := c.Lookup(ctx, "fp1")
	require.True(t, ok)

	require.NoError(t, c.Store(ctx, "fp3", res, time.Minute))

	_, ok = c.Lookup(ctx, "fp1")
	assert.True(t, ok)
	_, ok = c.Lookup(ctx, "fp2")
	assert.False(t, ok)
	_, ok = c.Lookup(ctx, "fp3")
	assert.True(t, ok)
}
