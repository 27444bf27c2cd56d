package toolcall

import (
	"context"
	"fmt"
	"time"

	"github.com/cockroachdb/errors"
)

// Kind is a stable failure classification returned to the caller.
type Kind string

const (
	KindUnknownTool      Kind = "unknown_tool"
	KindInvalidArguments Kind = "invalid_arguments"
	KindPolicyDenied     Kind = "policy_denied"
	KindRateLimited      Kind = "rate_limited"
	KindTimeout          Kind = "timeout"
	KindCancelled        Kind = "cancelled"
	KindInternal         Kind = "internal"
	// KindHandler marks a domain failure produced by the tool handler,
	// passed through to the caller unchanged.
	KindHandler Kind = "handler"
)

// Request is a single decoded tool invocation. It is owned by the
// dispatcher for its lifetime; handlers receive only the validated
// arguments.
type Request struct {
	Tool      string         `json:"tool" yaml:"tool"`
	Args      map[string]any `json:"args,omitempty" yaml:"args,omitempty"`
	ClientID  string         `json:"client_id,omitempty" yaml:"client_id,omitempty"`
	RequestID string         `json:"request_id,omitempty" yaml:"request_id,omitempty"`
}

// Failure describes why an invocation did not produce a payload.
type Failure struct {
	Kind      Kind   `json:"kind" yaml:"kind"`
	Message   string `json:"message" yaml:"message"`
	Retryable bool   `json:"retryable" yaml:"retryable"`
	// RetryAfter carries the suggested wait for KindRateLimited.
	RetryAfter time.Duration `json:"retry_after,omitempty" yaml:"retry_after,omitempty"`
}

func (f *Failure) String() string {
	return fmt.Sprintf("%s: %s", f.Kind, f.Message)
}

// Result is the outcome of a single invocation: either a payload or a
// failure, never both. A Result is not mutated after construction.
type Result struct {
	Payload []byte   `json:"payload,omitempty" yaml:"payload,omitempty"`
	Failure *Failure `json:"failure,omitempty" yaml:"failure,omitempty"`
}

func (r *Result) OK() bool {
	return r.Failure == nil
}

// Success returns a successful result with the given payload.
func Success(payload []byte) *Result {
	return &Result{Payload: payload}
}

// Failed returns a failed result.
func Failed(f *Failure) *Result {
	return &Result{Failure: f}
}

// Failf returns a non-retryable failure of the given kind.
func Failf(kind Kind, format string, args ...any) *Result {
	return &Result{Failure: &Failure{
		Kind:    kind,
		Message: fmt.Sprintf(format, args...),
	}}
}

// Error is a typed failure raised by a tool handler. The runtime only
// inspects Kind and Retryable; the message is passed through.
type Error struct {
	Kind      Kind
	Message   string
	Retryable bool
}

func (e *Error) Error() string {
	return e.Message
}

// NewError returns a non-retryable handler error.
func NewError(format string, args ...any) *Error {
	return &Error{
		Kind:    KindHandler,
		Message: fmt.Sprintf(format, args...),
	}
}

// NewRetryableError returns a transient handler error eligible for
// automatic re-attempt.
func NewRetryableError(format string, args ...any) *Error {
	return &Error{
		Kind:      KindHandler,
		Message:   fmt.Sprintf(format, args...),
		Retryable: true,
	}
}

// retryabler is the classification surface exposed by client errors,
// such as upstream 5xx responses.
type retryabler interface {
	IsRetryable() bool
}

// IsRetryable reports whether the error is classified as transient.
// Context deadline errors count as retryable; the retry executor
// converts them to a terminal timeout once attempts are exhausted.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var te *Error
	if errors.As(err, &te) {
		return te.Retryable
	}
	var r retryabler
	if errors.As(err, &r) {
		return r.IsRetryable()
	}
	return false
}

// Classify converts a handler error into a Failure. Typed handler
// errors keep their message; anything unclassified becomes a redacted
// internal failure so raw fault detail never crosses the transport
// boundary.
func Classify(err error) *Failure {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.Canceled):
		return &Failure{Kind: KindCancelled, Message: "invocation cancelled"}
	case errors.Is(err, context.DeadlineExceeded):
		return &Failure{Kind: KindTimeout, Message: "attempt timed out", Retryable: true}
	}

	var te *Error
	if errors.As(err, &te) {
		return &Failure{Kind: te.Kind, Message: te.Message, Retryable: te.Retryable}
	}

	var r retryabler
	if errors.As(err, &r) {
		return &Failure{Kind: KindHandler, Message: err.Error(), Retryable: r.IsRetryable()}
	}

	return &Failure{Kind: KindInternal, Message: "internal error"}
}
