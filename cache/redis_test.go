package cache_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/effective-security/toolgate/cache"
	"github.com/effective-security/toolgate/toolcall"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	rediscon "github.com/testcontainers/testcontainers-go/modules/redis"
)

func Test_RedisCache(t *testing.T) {
	ctx := context.Background()
	redisContainer, err := rediscon.Run(ctx, "redis:7",
		testcontainers.WithConfigModifier(func(config *container.Config) {
			config.Env = []string{
				"ALLOW_EMPTY_PASSWORD=yes",
			}
		}),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, redisContainer.Terminate(ctx))
	})

	state, err := redisContainer.State(ctx)
	require.NoError(t, err)
	require.True(t, state.Running)

	root := fmt.Sprintf("test-%d", time.Now().Unix())

	host, err := redisContainer.ConnectionString(ctx)
	require.NoError(t, err)

	options, err := redis.ParseURL(host)
	require.NoError(t, err)

	client := redis.NewClient(options)

	rs := client.Ping(ctx)
	require.NoError(t, rs.Err(), "failed to connect to Redis")

	c := cache.NewRedisCache(client, root)

	fp, err := cache.Fingerprint("execute_query", map[string]any{
		"sql": "SELECT 1",
	})
	require.NoError(t, err)

	_, ok := c.Lookup(ctx, fp)
	assert.False(t, ok)

	res := toolcall.Success([]byte(`{"rows":[{"one":1}]}`))
	require.NoError(t, c.Store(ctx, fp, res, time.Minute))

	got, ok := c.Lookup(ctx, fp)
	require.True(t, ok)
	assert.Equal(t, res.Payload, got.Payload)
	assert.True(t, got.OK())

	require.NoError(t, c.Remove(ctx, fp))
	_, ok = c.Lookup(ctx, fp)
	assert.False(t, ok)

	// native TTL expiry
	require.NoError(t, c.Store(ctx, fp, res, time.Second))
	_, ok = c.Lookup(ctx, fp)
	assert.True(t, ok)
	time.Sleep(1500 * time.Millisecond)
	_, ok = c.Lookup(ctx, fp)
	assert.False(t, ok)
}
