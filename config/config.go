// Package config defines the startup configuration of the runtime and
// converts it into the dispatcher's collaborators.
package config

import (
	"os"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/toolgate/cache"
	"github.com/effective-security/toolgate/dispatch"
	"github.com/effective-security/toolgate/encoding"
	"github.com/effective-security/toolgate/policy"
	"github.com/effective-security/toolgate/ratelimit"
	"github.com/effective-security/toolgate/retry"
	"github.com/effective-security/x/configloader"
	"github.com/redis/go-redis/v9"
)

// Config is the root configuration, loaded from a YAML, JSON or TOML
// file.
type Config struct {
	// Policy is the allow-list for dangerous tool actions.
	Policy policy.Config `json:"policy" yaml:"policy" toml:"policy"`

	// Cache configures the result cache for idempotent tools.
	Cache Cache `json:"cache" yaml:"cache" toml:"cache"`

	// RateLimit is the default admission window per (tool, client).
	RateLimit RateLimit `json:"rate_limit" yaml:"rate_limit" toml:"rate_limit"`

	// Retry is the default retry policy for tool handlers.
	Retry Retry `json:"retry" yaml:"retry" toml:"retry"`

	// Tools carries per-tool overrides keyed by tool name.
	Tools map[string]Tool `json:"tools,omitempty" yaml:"tools,omitempty" toml:"tools"`
}

// Cache configures the result cache backend.
type Cache struct {
	// Backend is one of: memory | redis. Empty disables caching.
	Backend    string `json:"backend,omitempty" yaml:"backend,omitempty" toml:"backend"`
	MaxEntries int    `json:"max_entries,omitempty" yaml:"max_entries,omitempty" toml:"max_entries"`
	TTLSeconds int    `json:"ttl_seconds,omitempty" yaml:"ttl_seconds,omitempty" toml:"ttl_seconds"`
	Redis      Redis  `json:"redis" yaml:"redis" toml:"redis"`
}

// Redis configures the Redis cache backend.
type Redis struct {
	Addr     string `json:"addr,omitempty" yaml:"addr,omitempty" toml:"addr"`
	Password string `json:"password,omitempty" yaml:"password,omitempty" toml:"password"`
	DB       int    `json:"db,omitempty" yaml:"db,omitempty" toml:"db"`
	Prefix   string `json:"prefix,omitempty" yaml:"prefix,omitempty" toml:"prefix"`
}

// RateLimit is a sliding-window admission config.
type RateLimit struct {
	WindowSeconds int `json:"window_seconds,omitempty" yaml:"window_seconds,omitempty" toml:"window_seconds"`
	MaxCalls      int `json:"max_calls,omitempty" yaml:"max_calls,omitempty" toml:"max_calls"`
}

// Retry bounds handler attempts.
type Retry struct {
	MaxAttempts              int `json:"max_attempts,omitempty" yaml:"max_attempts,omitempty" toml:"max_attempts"`
	PerAttemptTimeoutSeconds int `json:"per_attempt_timeout_seconds,omitempty" yaml:"per_attempt_timeout_seconds,omitempty" toml:"per_attempt_timeout_seconds"`
	TotalTimeoutSeconds      int `json:"total_timeout_seconds,omitempty" yaml:"total_timeout_seconds,omitempty" toml:"total_timeout_seconds"`
}

// Tool carries per-tool overrides of the cache, rate-limit and retry
// defaults.
type Tool struct {
	TTLSeconds               int `json:"ttl_seconds,omitempty" yaml:"ttl_seconds,omitempty" toml:"ttl_seconds"`
	WindowSeconds            int `json:"window_seconds,omitempty" yaml:"window_seconds,omitempty" toml:"window_seconds"`
	MaxCalls                 int `json:"max_calls,omitempty" yaml:"max_calls,omitempty" toml:"max_calls"`
	MaxAttempts              int `json:"max_attempts,omitempty" yaml:"max_attempts,omitempty" toml:"max_attempts"`
	PerAttemptTimeoutSeconds int `json:"per_attempt_timeout_seconds,omitempty" yaml:"per_attempt_timeout_seconds,omitempty" toml:"per_attempt_timeout_seconds"`
	TotalTimeoutSeconds      int `json:"total_timeout_seconds,omitempty" yaml:"total_timeout_seconds,omitempty" toml:"total_timeout_seconds"`
}

// Load reads the configuration from file, expanding environment
// variables. An empty file name returns the zero config.
func Load(file string) (*Config, error) {
	cfg := new(Config)
	if file == "" {
		return cfg, nil
	}

	if strings.HasSuffix(file, ".toml") {
		bs, err := os.ReadFile(file)
		if err != nil {
			return nil, errors.WithStack(err)
		}
		codec, _ := encoding.CodecFor(encoding.FormatTOML)
		if err := codec.Unmarshal(bs, cfg); err != nil {
			return nil, errors.WithMessagef(err, "failed to parse %s", file)
		}
		return cfg, nil
	}

	err := configloader.UnmarshalAndExpand(file, cfg)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// ResultCache builds the configured cache backend, or nil when
// caching is disabled.
func (c *Config) ResultCache() (cache.ResultCache, error) {
	switch c.Cache.Backend {
	case "":
		return nil, nil
	case "memory":
		return cache.NewMemoryCache(c.Cache.MaxEntries), nil
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     c.Cache.Redis.Addr,
			Password: c.Cache.Redis.Password,
			DB:       c.Cache.Redis.DB,
		})
		return cache.NewRedisCache(client, c.Cache.Redis.Prefix), nil
	default:
		return nil, errors.Newf("unsupported cache backend: %s", c.Cache.Backend)
	}
}

// Limiter builds the rate limiter with per-tool overrides, or nil
// when no window is configured.
func (c *Config) Limiter() *ratelimit.Limiter {
	defaults := ratelimit.Config{
		Window:   time.Duration(c.RateLimit.WindowSeconds) * time.Second,
		MaxCalls: c.RateLimit.MaxCalls,
	}

	hasPerTool := false
	for _, tc := range c.Tools {
		if tc.MaxCalls > 0 && tc.WindowSeconds > 0 {
			hasPerTool = true
			break
		}
	}
	if defaults.MaxCalls <= 0 && !hasPerTool {
		return nil
	}

	l := ratelimit.NewLimiter(defaults)
	for name, tc := range c.Tools {
		if tc.MaxCalls > 0 && tc.WindowSeconds > 0 {
			l.SetToolConfig(name, ratelimit.Config{
				Window:   time.Duration(tc.WindowSeconds) * time.Second,
				MaxCalls: tc.MaxCalls,
			})
		}
	}
	return l
}

func (c *Retry) policy() retry.Policy {
	return retry.Policy{
		MaxAttempts:       c.MaxAttempts,
		PerAttemptTimeout: time.Duration(c.PerAttemptTimeoutSeconds) * time.Second,
		TotalTimeout:      time.Duration(c.TotalTimeoutSeconds) * time.Second,
	}
}

// DispatchOptions converts the configuration into dispatcher options.
func (c *Config) DispatchOptions() ([]dispatch.Option, error) {
	opts := []dispatch.Option{
		dispatch.WithGuard(policy.NewGuard(c.Policy)),
		dispatch.WithRetry(c.Retry.policy()),
	}

	resultCache, err := c.ResultCache()
	if err != nil {
		return nil, err
	}
	if resultCache != nil {
		opts = append(opts,
			dispatch.WithCache(resultCache),
			dispatch.WithCacheTTL(time.Duration(c.Cache.TTLSeconds)*time.Second),
		)
	}

	if l := c.Limiter(); l != nil {
		opts = append(opts, dispatch.WithLimiter(l))
	}

	for name, tc := range c.Tools {
		if tc.TTLSeconds > 0 {
			opts = append(opts, dispatch.WithToolCacheTTL(name, time.Duration(tc.TTLSeconds)*time.Second))
		}
		if tc.MaxAttempts > 0 || tc.PerAttemptTimeoutSeconds > 0 || tc.TotalTimeoutSeconds > 0 {
			r := Retry{
				MaxAttempts:              tc.MaxAttempts,
				PerAttemptTimeoutSeconds: tc.PerAttemptTimeoutSeconds,
				TotalTimeoutSeconds:      tc.TotalTimeoutSeconds,
			}
			opts = append(opts, dispatch.WithToolRetry(name, r.policy()))
		}
	}
	return opts, nil
}
