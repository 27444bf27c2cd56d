package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/effective-security/toolgate/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func Test_Load_YAML(t *testing.T) {
	path := writeFile(t, "toolgate.yaml", `
policy:
  patterns:
    - "ls *"
    - "git status"
cache:
  backend: memory
  max_entries: 256
  ttl_seconds: 300
rate_limit:
  window_seconds: 60
  max_calls: 30
retry:
  max_attempts: 3
  per_attempt_timeout_seconds: 10
  total_timeout_seconds: 60
tools:
  web_search:
    ttl_seconds: 900
    max_calls: 5
    window_seconds: 60
`)

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"ls *", "git status"}, cfg.Policy.Patterns)
	assert.False(t, cfg.Policy.Unrestricted)
	assert.Equal(t, "memory", cfg.Cache.Backend)
	assert.Equal(t, 256, cfg.Cache.MaxEntries)
	assert.Equal(t, 300, cfg.Cache.TTLSeconds)
	assert.Equal(t, 30, cfg.RateLimit.MaxCalls)
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
	require.Contains(t, cfg.Tools, "web_search")
	assert.Equal(t, 900, cfg.Tools["web_search"].TTLSeconds)

	resultCache, err := cfg.ResultCache()
	require.NoError(t, err)
	require.NotNil(t, resultCache)

	limiter := cfg.Limiter()
	require.NotNil(t, limiter)
	retryAfter, ok := limiter.Admit("web_search", "client-1")
	assert.True(t, ok)
	assert.Zero(t, retryAfter)

	opts, err := cfg.DispatchOptions()
	require.NoError(t, err)
	assert.NotEmpty(t, opts)
}

func Test_Load_TOML(t *testing.T) {
	path := writeFile(t, "toolgate.toml", `
[policy]
patterns = ["ls *"]

[cache]
backend = "memory"
ttl_seconds = 60

[rate_limit]
window_seconds = 60
max_calls = 10
`)

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"ls *"}, cfg.Policy.Patterns)
	assert.Equal(t, "memory", cfg.Cache.Backend)
	assert.Equal(t, 10, cfg.RateLimit.MaxCalls)
}

func Test_Load_Empty(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)

	resultCache, err := cfg.ResultCache()
	require.NoError(t, err)
	assert.Nil(t, resultCache)
	assert.Nil(t, cfg.Limiter())

	opts, err := cfg.DispatchOptions()
	require.NoError(t, err)
	// guard and retry defaults are always configured
	assert.NotEmpty(t, opts)
}

func Test_Load_BadBackend(t *testing.T) {
	path := writeFile(t, "toolgate.yaml", `
cache:
  backend: memcached
`)
	cfg, err := config.Load(path)
	require.NoError(t, err)

	_, err = cfg.ResultCache()
	assert.EqualError(t, err, "unsupported cache backend: memcached")

	_, err = cfg.DispatchOptions()
	assert.Error(t, err)
}

func Test_RetryPolicySeconds(t *testing.T) {
	path := writeFile(t, "toolgate.yaml", `
retry:
  max_attempts: 2
  per_attempt_timeout_seconds: 5
tools:
  shell:
    max_attempts: 1
    total_timeout_seconds: 30
`)
	cfg, err := config.Load(path)
	require.NoError(t, err)

	opts, err := cfg.DispatchOptions()
	require.NoError(t, err)
	assert.NotEmpty(t, opts)

	assert.Equal(t, 5*time.Second, time.Duration(cfg.Retry.PerAttemptTimeoutSeconds)*time.Second)
	assert.Equal(t, 1, cfg.Tools["shell"].MaxAttempts)
}
