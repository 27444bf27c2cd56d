package ratelimit_test

import (
	"sync"
	"testing"
	"time"

	"github.com/effective-security/toolgate/ratelimit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_Limiter_Window(t *testing.T) {
	l := ratelimit.NewLimiter(ratelimit.Config{
		Window:   time.Minute,
		MaxCalls: 3,
	})

	for i := 0; i < 3; i++ {
		_, ok := l.Admit("execute_query", "client1")
		require.True(t, ok, "call %d should be admitted", i+1)
	}

	retryAfter, ok := l.Admit("execute_query", "client1")
	require.False(t, ok)
	assert.Greater(t, retryAfter, time.Duration(0))
	assert.LessOrEqual(t, retryAfter, time.Minute)

	// other clients and tools keep their own windows
	_, ok = l.Admit("execute_query", "client2")
	assert.True(t, ok)
	_, ok = l.Admit("list_tables", "client1")
	assert.True(t, ok)
}

func Test_Limiter_Expiry(t *testing.T) {
	l := ratelimit.NewLimiter(ratelimit.Config{
		Window:   50 * time.Millisecond,
		MaxCalls: 1,
	})

	_, ok := l.Admit("search", "client1")
	require.True(t, ok)
	_, ok = l.Admit("search", "client1")
	require.False(t, ok)

	time.Sleep(60 * time.Millisecond)
	_, ok = l.Admit("search", "client1")
	assert.True(t, ok, "expired timestamps must be purged lazily")
}

func Test_Limiter_PerToolConfig(t *testing.T) {
	l := ratelimit.NewLimiter(ratelimit.Config{
		Window:   time.Minute,
		MaxCalls: 1,
	}).SetToolConfig("read_file", ratelimit.Config{
		Window:   time.Minute,
		MaxCalls: 5,
	})

	for i := 0; i < 5; i++ {
		_, ok := l.Admit("read_file", "client1")
		require.True(t, ok)
	}
	_, ok := l.Admit("read_file", "client1")
	assert.False(t, ok)

	// default applies to unconfigured tools
	_, ok = l.Admit("write_file", "client1")
	require.True(t, ok)
	_, ok = l.Admit("write_file", "client1")
	assert.False(t, ok)
}

func Test_Limiter_Unlimited(t *testing.T) {
	l := ratelimit.NewLimiter(ratelimit.Config{})
	for i := 0; i < 100; i++ {
		_, ok := l.Admit("echo", "client1")
		require.True(t, ok)
	}
}

func Test_Limiter_Concurrent(t *testing.T) {
	l := ratelimit.NewLimiter(ratelimit.Config{
		Window:   time.Minute,
		MaxCalls: 50,
	})

	var wg sync.WaitGroup
	var mu sync.Mutex
	admitted := 0
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, ok := l.Admit("search", "client1"); ok {
				mu.Lock()
				admitted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, admitted)
}

func Test_Limiter_Purge(t *testing.T) {
	l := ratelimit.NewLimiter(ratelimit.Config{
		Window:   10 * time.Millisecond,
		MaxCalls: 1,
	})
	_, ok := l.Admit("search", "client1")
	require.True(t, ok)

	time.Sleep(20 * time.Millisecond)
	l.Purge()

	_, ok = l.Admit("search", "client1")
	assert.True(t, ok)
}
