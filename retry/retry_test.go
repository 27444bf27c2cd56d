package retry_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/effective-security/toolgate/retry"
	"github.com/effective-security/toolgate/toolcall"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_Execute_FirstAttempt(t *testing.T) {
	var states []string
	obs := func(s retry.State, attempt int, err error) {
		states = append(states, s.String())
	}

	res := retry.Execute(context.Background(), func(ctx context.Context) ([]byte, error) {
		return []byte(`"ok"`), nil
	}, retry.Policy{MaxAttempts: 3}, obs)

	require.True(t, res.OK())
	assert.Equal(t, `"ok"`, string(res.Payload))
	assert.Equal(t, []string{"attempting", "succeeded"}, states)
}

func Test_Execute_RetryableThenSuccess(t *testing.T) {
	var calls int32
	var states []string
	obs := func(s retry.State, attempt int, err error) {
		states = append(states, s.String())
	}

	res := retry.Execute(context.Background(), func(ctx context.Context) ([]byte, error) {
		if atomic.AddInt32(&calls, 1) < 3 {
			return nil, toolcall.NewRetryableError("upstream busy")
		}
		return []byte(`{}`), nil
	}, retry.Policy{
		MaxAttempts: 3,
		BaseDelay:   time.Millisecond,
		MaxDelay:    2 * time.Millisecond,
	}, obs)

	require.True(t, res.OK())
	assert.EqualValues(t, 3, atomic.LoadInt32(&calls))
	assert.Equal(t, []string{
		"attempting", "backoff",
		"attempting", "backoff",
		"attempting", "succeeded",
	}, states)
}

func Test_Execute_NonRetryableStops(t *testing.T) {
	var calls int32

	res := retry.Execute(context.Background(), func(ctx context.Context) ([]byte, error) {
		atomic.AddInt32(&calls, 1)
		return nil, toolcall.NewError("no such table: users")
	}, retry.Policy{MaxAttempts: 5, BaseDelay: time.Millisecond}, nil)

	require.False(t, res.OK())
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
	assert.Equal(t, toolcall.KindHandler, res.Failure.Kind)
	assert.Equal(t, "no such table: users", res.Failure.Message)
	assert.False(t, res.Failure.Retryable)
}

func Test_Execute_ExhaustionReturnsLastFailure(t *testing.T) {
	var calls int32

	res := retry.Execute(context.Background(), func(ctx context.Context) ([]byte, error) {
		n := atomic.AddInt32(&calls, 1)
		return nil, toolcall.NewRetryableError("attempt %d failed", n)
	}, retry.Policy{
		MaxAttempts: 2,
		BaseDelay:   time.Millisecond,
		MaxDelay:    2 * time.Millisecond,
	}, nil)

	require.False(t, res.OK())
	assert.EqualValues(t, 2, atomic.LoadInt32(&calls))
	assert.Equal(t, toolcall.KindHandler, res.Failure.Kind)
	assert.Equal(t, "attempt 2 failed", res.Failure.Message)
	assert.True(t, res.Failure.Retryable)
}

func Test_Execute_PerAttemptTimeout(t *testing.T) {
	var calls int32

	res := retry.Execute(context.Background(), func(ctx context.Context) ([]byte, error) {
		atomic.AddInt32(&calls, 1)
		<-ctx.Done()
		return nil, ctx.Err()
	}, retry.Policy{
		MaxAttempts:       2,
		PerAttemptTimeout: 10 * time.Millisecond,
		BaseDelay:         time.Millisecond,
		MaxDelay:          2 * time.Millisecond,
	}, nil)

	require.False(t, res.OK())
	assert.EqualValues(t, 2, atomic.LoadInt32(&calls))
	assert.Equal(t, toolcall.KindTimeout, res.Failure.Kind)
	assert.False(t, res.Failure.Retryable)
}

func Test_Execute_TotalBudget(t *testing.T) {
	res := retry.Execute(context.Background(), func(ctx context.Context) ([]byte, error) {
		return nil, toolcall.NewRetryableError("flaky")
	}, retry.Policy{
		MaxAttempts:  10000,
		TotalTimeout: 30 * time.Millisecond,
		BaseDelay:    time.Millisecond,
		MaxDelay:     2 * time.Millisecond,
	}, nil)

	require.False(t, res.OK())
	assert.Equal(t, toolcall.KindTimeout, res.Failure.Kind)
	assert.Equal(t, "total invocation budget exceeded", res.Failure.Message)
}

func Test_Execute_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	res := retry.Execute(ctx, func(ctx context.Context) ([]byte, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}, retry.Policy{MaxAttempts: 3}, nil)

	require.False(t, res.OK())
	assert.Equal(t, toolcall.KindCancelled, res.Failure.Kind)
}

func Test_Execute_DefaultSingleAttempt(t *testing.T) {
	var calls int32

	res := retry.Execute(context.Background(), func(ctx context.Context) ([]byte, error) {
		atomic.AddInt32(&calls, 1)
		return nil, toolcall.NewRetryableError("flaky")
	}, retry.Policy{}, nil)

	require.False(t, res.OK())
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func Test_State_String(t *testing.T) {
	assert.Equal(t, "pending", retry.StatePending.String())
	assert.Equal(t, "attempting", retry.StateAttempting.String())
	assert.Equal(t, "backoff", retry.StateBackoff.String())
	assert.Equal(t, "succeeded", retry.StateSucceeded.String())
	assert.Equal(t, "failed", retry.StateFailed.String())
	assert.Equal(t, "unknown", retry.State(42).String())
}
