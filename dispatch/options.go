package dispatch

import (
	"time"

	"github.com/effective-security/toolgate/cache"
	"github.com/effective-security/toolgate/policy"
	"github.com/effective-security/toolgate/ratelimit"
	"github.com/effective-security/toolgate/retry"
	"github.com/effective-security/toolgate/tools"
)

// Option is a function that can be used to modify the Dispatcher Config.
type Option func(*Config)

type Config struct {
	// Guard evaluates dangerous tool invocations against the allow-list.
	// Without a guard all dangerous invocations are denied.
	Guard *policy.Guard

	// Cache stores results of idempotent tools. Nil disables caching.
	Cache cache.ResultCache

	// Limiter admits invocations per (tool, client). Nil disables
	// rate limiting.
	Limiter *ratelimit.Limiter

	// CallbackHandler observes tool invocations.
	CallbackHandler tools.Callback

	// Retry is the default retry policy for tool handlers.
	Retry retry.Policy

	// CacheTTL is the default lifetime of cached results; zero disables
	// caching for tools without a per-tool TTL.
	CacheTTL time.Duration

	retryByTool map[string]retry.Policy
	ttlByTool   map[string]time.Duration
}

func NewConfig(opts ...Option) *Config {
	cfg := &Config{
		retryByTool: make(map[string]retry.Policy),
		ttlByTool:   make(map[string]time.Duration),
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

func (c *Config) retryFor(tool string) retry.Policy {
	if p, ok := c.retryByTool[tool]; ok {
		return p
	}
	return c.Retry
}

func (c *Config) ttlFor(tool string) time.Duration {
	if ttl, ok := c.ttlByTool[tool]; ok {
		return ttl
	}
	return c.CacheTTL
}

// WithGuard allows setting the policy guard for dangerous tools.
func WithGuard(guard *policy.Guard) Option {
	return func(o *Config) {
		o.Guard = guard
	}
}

// WithCache allows setting the result cache backend.
func WithCache(c cache.ResultCache) Option {
	return func(o *Config) {
		o.Cache = c
	}
}

// WithLimiter allows setting the rate limiter.
func WithLimiter(l *ratelimit.Limiter) Option {
	return func(o *Config) {
		o.Limiter = l
	}
}

// WithCallback allows setting a custom Callback Handler.
func WithCallback(callbackHandler tools.Callback) Option {
	return func(o *Config) {
		o.CallbackHandler = callbackHandler
	}
}

// WithRetry allows setting the default retry policy.
func WithRetry(p retry.Policy) Option {
	return func(o *Config) {
		o.Retry = p
	}
}

// WithToolRetry allows overriding the retry policy of one tool.
func WithToolRetry(tool string, p retry.Policy) Option {
	return func(o *Config) {
		o.retryByTool[tool] = p
	}
}

// WithCacheTTL allows setting the default cache TTL.
func WithCacheTTL(ttl time.Duration) Option {
	return func(o *Config) {
		o.CacheTTL = ttl
	}
}

// WithToolCacheTTL allows overriding the cache TTL of one tool.
func WithToolCacheTTL(tool string, ttl time.Duration) Option {
	return func(o *Config) {
		o.ttlByTool[tool] = ttl
	}
}
