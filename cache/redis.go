package cache

import (
	"context"
	"encoding/json"
	"path"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/toolgate/toolcall"
	"github.com/effective-security/xlog"
	"github.com/redis/go-redis/v9"
)

// The redis cache implements the ResultCache interface using Redis as
// the backend, for deployments where several tool server processes
// share one cache. Expiry uses the native Redis TTL; capacity is left
// to the server-side eviction policy. Keys are organized as
// `/<prefix>/toolcache/<fingerprint>`.

type redisCache struct {
	client *redis.Client
	prefix string
}

func NewRedisCache(client *redis.Client, prefix string) ResultCache {
	return &redisCache{
		client: client,
		prefix: prefix,
	}
}

func (m *redisCache) key(fingerprint string) string {
	return path.Join(m.prefix, "toolcache", fingerprint)
}

func (m *redisCache) Lookup(ctx context.Context, fingerprint string) (*toolcall.Result, bool) {
	data, err := m.client.Get(ctx, m.key(fingerprint)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			logger.ContextKV(ctx, xlog.ERROR, "reason", "redis_get", "err", err.Error())
		}
		return nil, false
	}

	var res toolcall.Result
	if err := json.Unmarshal(data, &res); err != nil {
		logger.ContextKV(ctx, xlog.ERROR, "reason", "unmarshal_result", "err", err.Error())
		return nil, false
	}
	return &res, true
}

func (m *redisCache) Store(ctx context.Context, fingerprint string, res *toolcall.Result, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	data, err := json.Marshal(res)
	if err != nil {
		return errors.Wrap(err, "failed to marshal result")
	}
	err = m.client.Set(ctx, m.key(fingerprint), data, ttl).Err()
	if err != nil {
		return errors.Wrap(err, "failed to store result in Redis")
	}
	return nil
}

func (m *redisCache) Remove(ctx context.Context, fingerprint string) error {
	err := m.client.Del(ctx, m.key(fingerprint)).Err()
	if err != nil {
		return errors.Wrap(err, "failed to remove result from Redis")
	}
	return nil
}
