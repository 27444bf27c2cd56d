// Package retry runs a tool handler with bounded retries, exponential
// backoff with jitter, per-attempt timeouts, and a total wall-clock
// budget across all attempts.
package retry

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/toolgate/toolcall"
)

// State enumerates the lifecycle of one invocation in the executor.
type State int

const (
	StatePending State = iota
	StateAttempting
	StateBackoff
	StateSucceeded
	StateFailed
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateAttempting:
		return "attempting"
	case StateBackoff:
		return "backoff"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

const (
	DefaultBaseDelay = 100 * time.Millisecond
	DefaultMaxDelay  = 5 * time.Second
)

// Policy bounds the attempts of one invocation.
type Policy struct {
	// MaxAttempts is the attempt ceiling; zero means a single attempt.
	MaxAttempts int
	// PerAttemptTimeout aborts one attempt; exceeding it counts as a
	// retryable failure until attempts are exhausted.
	PerAttemptTimeout time.Duration
	// TotalTimeout is the wall-clock budget across all attempts,
	// including backoff waits. Exceeding it aborts remaining retries.
	TotalTimeout time.Duration
	// BaseDelay is the first backoff delay, doubled on each retry up
	// to MaxDelay. The actual wait is drawn uniformly from [0, delay)
	// (full jitter). Zero values use the package defaults.
	BaseDelay time.Duration
	MaxDelay  time.Duration
}

func (p Policy) maxAttempts() int {
	if p.MaxAttempts <= 0 {
		return 1
	}
	return p.MaxAttempts
}

// Func is a single handler attempt bound to its arguments.
type Func func(ctx context.Context) ([]byte, error)

// Observer receives executor state transitions. The attempt counter
// starts at 1; err is set for StateBackoff and StateFailed.
type Observer func(state State, attempt int, err error)

// Execute runs fn under the policy and converts the outcome into a
// Result. Non-retryable failures stop immediately; on exhaustion the
// last failure is returned verbatim, except per-attempt timeouts which
// become a terminal Timeout failure.
func Execute(ctx context.Context, fn Func, policy Policy, observer Observer) *toolcall.Result {
	if observer == nil {
		observer = func(State, int, error) {}
	}

	if policy.TotalTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, policy.TotalTimeout)
		defer cancel()
	}

	maxAttempts := policy.maxAttempts()
	state := StatePending
	attempt := 0

	for {
		switch state {
		case StatePending, StateBackoff:
			attempt++
			state = StateAttempting
			observer(state, attempt, nil)

		case StateAttempting:
			payload, err := runAttempt(ctx, fn, policy.PerAttemptTimeout)
			if err == nil {
				state = StateSucceeded
				observer(state, attempt, nil)
				return toolcall.Success(payload)
			}

			// The caller's context takes precedence over attempt
			// classification: a disconnect or total-budget expiry
			// aborts remaining retries early.
			if ctxErr := ctx.Err(); ctxErr != nil {
				state = StateFailed
				observer(state, attempt, ctxErr)
				return toolcall.Failed(budgetFailure(ctxErr))
			}

			if attempt >= maxAttempts || !toolcall.IsRetryable(err) {
				state = StateFailed
				observer(state, attempt, err)
				return toolcall.Failed(terminalFailure(err))
			}

			state = StateBackoff
			observer(state, attempt, err)
			if waitErr := backoff(ctx, policy, attempt); waitErr != nil {
				state = StateFailed
				observer(state, attempt, waitErr)
				return toolcall.Failed(budgetFailure(waitErr))
			}
		}
	}
}

func runAttempt(ctx context.Context, fn Func, timeout time.Duration) ([]byte, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return fn(ctx)
}

// backoff waits for the jittered delay of the given attempt, or until
// the context is done.
func backoff(ctx context.Context, policy Policy, attempt int) error {
	base := policy.BaseDelay
	if base <= 0 {
		base = DefaultBaseDelay
	}
	maxDelay := policy.MaxDelay
	if maxDelay <= 0 {
		maxDelay = DefaultMaxDelay
	}

	delay := base
	for i := 1; i < attempt && delay < maxDelay; i++ {
		delay *= 2
	}
	if delay > maxDelay {
		delay = maxDelay
	}
	// full jitter
	delay = rand.N(delay)

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(delay):
		return nil
	}
}

// terminalFailure converts the last attempt error into the final
// failure. Exhausted per-attempt timeouts are no longer retryable.
func terminalFailure(err error) *toolcall.Failure {
	if errors.Is(err, context.DeadlineExceeded) {
		return &toolcall.Failure{
			Kind:    toolcall.KindTimeout,
			Message: "attempts exhausted by per-attempt timeout",
		}
	}
	return toolcall.Classify(err)
}

// budgetFailure maps a caller-context error to Cancelled or Timeout.
func budgetFailure(err error) *toolcall.Failure {
	if errors.Is(err, context.Canceled) {
		return &toolcall.Failure{
			Kind:    toolcall.KindCancelled,
			Message: "invocation cancelled",
		}
	}
	return &toolcall.Failure{
		Kind:    toolcall.KindTimeout,
		Message: "total invocation budget exceeded",
	}
}
