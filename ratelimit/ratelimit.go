// Package ratelimit bounds invocation frequency per (tool, client)
// pair using a sliding window of timestamps. Expired timestamps are
// purged lazily on each admission check.
package ratelimit

import (
	"sync"
	"time"
)

// Config bounds one tool's invocation rate. A zero MaxCalls disables
// limiting for the tool.
type Config struct {
	// Window is the sliding window length.
	Window time.Duration `json:"window,omitempty" yaml:"window,omitempty" toml:"window,omitempty"`
	// MaxCalls is the number of admissions allowed within the window.
	MaxCalls int `json:"max_calls,omitempty" yaml:"max_calls,omitempty" toml:"max_calls,omitempty"`
}

type slidingWindow struct {
	mu       sync.Mutex
	requests []time.Time
	cfg      Config
}

// allow admits the call or returns the suggested wait until the oldest
// timestamp leaves the window. Admission checks on the same window are
// serialized by its mutex, which preserves arrival order per
// (tool, client) pair.
func (sw *slidingWindow) allow() (retryAfter time.Duration, ok bool) {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-sw.cfg.Window)

	// Drop old entries
	valid := sw.requests[:0]
	for _, t := range sw.requests {
		if t.After(cutoff) {
			valid = append(valid, t)
		}
	}
	sw.requests = valid

	if len(sw.requests) >= sw.cfg.MaxCalls {
		oldest := sw.requests[0]
		return ceilSeconds(oldest.Add(sw.cfg.Window).Sub(now)), false
	}
	sw.requests = append(sw.requests, now)
	return 0, true
}

// Limiter tracks sliding windows per (tool, client) pair. Per-tool
// configuration is set at startup; the window map grows lazily as
// clients appear.
type Limiter struct {
	mu       sync.Mutex
	windows  map[string]*slidingWindow
	defaults Config
	perTool  map[string]Config
}

func NewLimiter(defaults Config) *Limiter {
	return &Limiter{
		windows:  make(map[string]*slidingWindow),
		defaults: defaults,
		perTool:  make(map[string]Config),
	}
}

// SetToolConfig overrides the default limits for one tool. Intended
// for startup configuration, before the limiter receives traffic.
func (l *Limiter) SetToolConfig(tool string, cfg Config) *Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.perTool[tool] = cfg
	return l
}

// Admit checks whether a call for the (tool, client) pair fits in the
// current window. On denial it returns the suggested retry-after wait.
func (l *Limiter) Admit(tool, client string) (retryAfter time.Duration, ok bool) {
	cfg := l.configFor(tool)
	if cfg.MaxCalls <= 0 || cfg.Window <= 0 {
		return 0, true
	}
	return l.window(tool, client, cfg).allow()
}

func (l *Limiter) configFor(tool string) Config {
	l.mu.Lock()
	defer l.mu.Unlock()
	if cfg, ok := l.perTool[tool]; ok {
		return cfg
	}
	return l.defaults
}

func (l *Limiter) window(tool, client string, cfg Config) *slidingWindow {
	key := tool + "\x00" + client
	l.mu.Lock()
	defer l.mu.Unlock()
	if sw, ok := l.windows[key]; ok {
		return sw
	}
	sw := &slidingWindow{cfg: cfg}
	l.windows[key] = sw
	return sw
}

// Purge drops windows whose entries have all expired. The limiter
// works without it; callers may invoke it periodically to bound
// memory across many short-lived clients.
func (l *Limiter) Purge() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for key, sw := range l.windows {
		sw.mu.Lock()
		if len(sw.requests) == 0 || sw.requests[len(sw.requests)-1].Before(time.Now().Add(-sw.cfg.Window)) {
			delete(l.windows, key)
		}
		sw.mu.Unlock()
	}
}

func ceilSeconds(d time.Duration) time.Duration {
	if d <= 0 {
		return time.Second
	}
	if rem := d % time.Second; rem != 0 {
		return d - rem + time.Second
	}
	return d
}
