// Package dispatch runs tool invocations through the full pipeline:
// lookup, argument validation, policy guard, result cache, rate
// admission, and the retry executor.
package dispatch

import (
	"context"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/toolgate/callctx"
	"github.com/effective-security/toolgate/cache"
	"github.com/effective-security/toolgate/pkg/metricskey"
	"github.com/effective-security/toolgate/pkg/schema"
	"github.com/effective-security/toolgate/retry"
	"github.com/effective-security/toolgate/toolcall"
	"github.com/effective-security/toolgate/tools"
	"github.com/effective-security/toolgate/utils"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/toolgate", "dispatch")

// Dispatcher routes decoded requests to registered tools. It is safe
// for concurrent use; the registry is sealed at construction and the
// argument validators are compiled once.
type Dispatcher struct {
	cfg        *Config
	registry   *tools.Registry
	validators map[string]*schema.Validator
	toolNames  string
}

// New seals the registry, compiles the argument validators, and
// returns a ready dispatcher.
func New(registry *tools.Registry, opts ...Option) (*Dispatcher, error) {
	cfg := NewConfig(opts...)

	list := registry.Seal().List()
	validators := make(map[string]*schema.Validator, len(list))
	names := make([]string, 0, len(list))
	for _, tool := range list {
		names = append(names, tool.Name())
		params := tool.Parameters()
		if params == nil {
			continue
		}
		v, err := schema.NewValidator(params)
		if err != nil {
			return nil, errors.WithMessagef(err, "invalid schema for tool %s", tool.Name())
		}
		validators[tool.Name()] = v
	}

	return &Dispatcher{
		cfg:        cfg,
		registry:   registry,
		validators: validators,
		toolNames:  strings.Join(names, ", "),
	}, nil
}

// Registry returns the sealed registry backing the dispatcher.
func (d *Dispatcher) Registry() *tools.Registry {
	return d.registry
}

// Dispatch runs one request through the pipeline and always returns a
// result; faults never escape as errors or panics.
func (d *Dispatcher) Dispatch(ctx context.Context, req *toolcall.Request) *toolcall.Result {
	ctx = d.ensureCallContext(ctx, req)
	cb := d.cfg.CallbackHandler

	tool, ok := d.registry.Lookup(req.Tool)
	if !ok {
		metricskey.StatsToolCallsNotFound.IncrCounter(1, req.Tool)
		if cb != nil {
			cb.OnToolNotFound(ctx, req.Tool)
		}
		logger.ContextKV(ctx, xlog.WARNING,
			"status", "tool_not_found",
			"tool", req.Tool,
			"available_tools", d.toolNames,
		)
		return toolcall.Failf(toolcall.KindUnknownTool,
			"tool %q not found, available tools: %s", req.Tool, d.toolNames)
	}

	started := time.Now()
	defer metricskey.PerfDispatch.MeasureSince(started, tool.Name())

	input := utils.ToJSON(req.Args)

	if v := d.validators[tool.Name()]; v != nil {
		if err := v.Validate(req.Args); err != nil {
			metricskey.StatsToolCallsFailed.IncrCounter(1, tool.Name(), string(toolcall.KindInvalidArguments))
			if cb != nil {
				cb.OnToolError(ctx, tool, input, err)
			}
			return toolcall.Failf(toolcall.KindInvalidArguments, "%s", err.Error())
		}
	}

	if f := d.checkPolicy(ctx, tool, req.Args); f != nil {
		metricskey.StatsToolCallsDenied.IncrCounter(1, tool.Name())
		if cb != nil {
			cb.OnToolError(ctx, tool, input, errors.New(f.Message))
		}
		return toolcall.Failed(f)
	}

	fingerprint := d.fingerprint(ctx, tool, req.Args)
	if fingerprint != "" {
		if res, ok := d.cfg.Cache.Lookup(ctx, fingerprint); ok {
			metricskey.StatsCacheHits.IncrCounter(1, tool.Name())
			if cb != nil {
				cb.OnToolEnd(ctx, tool, input, string(res.Payload))
			}
			return res
		}
		metricskey.StatsCacheMisses.IncrCounter(1, tool.Name())
	}

	if d.cfg.Limiter != nil {
		if retryAfter, ok := d.cfg.Limiter.Admit(tool.Name(), req.ClientID); !ok {
			metricskey.StatsToolCallsRateLimited.IncrCounter(1, tool.Name())
			logger.ContextKV(ctx, xlog.DEBUG,
				"status", "rate_limited",
				"tool", tool.Name(),
				"retry_after", retryAfter.String(),
			)
			return toolcall.Failed(&toolcall.Failure{
				Kind:       toolcall.KindRateLimited,
				Message:    "rate limit exceeded",
				Retryable:  true,
				RetryAfter: retryAfter,
			})
		}
	}

	if cb != nil {
		cb.OnToolStart(ctx, tool, input)
	}

	res := d.execute(ctx, tool, req.Args)

	if !res.OK() {
		metricskey.StatsToolCallsFailed.IncrCounter(1, tool.Name(), string(res.Failure.Kind))
		if cb != nil {
			cb.OnToolError(ctx, tool, input, errors.New(res.Failure.String()))
		}
		return res
	}

	metricskey.StatsToolCallsSucceeded.IncrCounter(1, tool.Name())
	if cb != nil {
		cb.OnToolEnd(ctx, tool, input, string(res.Payload))
	}

	// a cancelled invocation never populates the cache
	if fingerprint != "" && ctx.Err() == nil {
		_ = d.cfg.Cache.Store(ctx, fingerprint, res, d.cfg.ttlFor(tool.Name()))
	}
	return res
}

func (d *Dispatcher) ensureCallContext(ctx context.Context, req *toolcall.Request) context.Context {
	if callctx.GetCallContext(ctx) != nil {
		return ctx
	}
	requestID := req.RequestID
	if requestID == "" {
		requestID = callctx.NewID()
	}
	return callctx.WithCallContext(ctx, callctx.NewCallContext(req.ClientID, requestID, nil))
}

// checkPolicy denies dangerous tools when no guard is configured;
// otherwise the guard decides.
func (d *Dispatcher) checkPolicy(ctx context.Context, tool tools.ITool, args map[string]any) *toolcall.Failure {
	if d.cfg.Guard != nil {
		return d.cfg.Guard.Check(ctx, tool, args)
	}
	if tool.SideEffect() == tools.SideEffectDangerous {
		return &toolcall.Failure{
			Kind:    toolcall.KindPolicyDenied,
			Message: "dangerous tools are not allowed without a policy",
		}
	}
	return nil
}

// fingerprint returns the cache key for the invocation, or empty when
// the result is not cacheable. Only read-only idempotent tools are
// cacheable; a mutating or dangerous tool never consults or populates
// the cache even if it declares itself idempotent.
func (d *Dispatcher) fingerprint(ctx context.Context, tool tools.ITool, args map[string]any) string {
	if d.cfg.Cache == nil ||
		tool.SideEffect() != tools.SideEffectReadOnly ||
		!tool.Idempotent() ||
		d.cfg.ttlFor(tool.Name()) <= 0 {
		return ""
	}
	fp, err := cache.Fingerprint(tool.Name(), args)
	if err != nil {
		logger.ContextKV(ctx, xlog.ERROR,
			"status", "fingerprint_failed",
			"tool", tool.Name(),
			"err", err.Error(),
		)
		return ""
	}
	return fp
}

func (d *Dispatcher) execute(ctx context.Context, tool tools.ITool, args map[string]any) *toolcall.Result {
	observer := func(state retry.State, attempt int, err error) {
		if state != retry.StateBackoff {
			return
		}
		metricskey.StatsToolCallsRetried.IncrCounter(1, tool.Name())
		logger.ContextKV(ctx, xlog.DEBUG,
			"status", "retrying",
			"tool", tool.Name(),
			"attempt", attempt,
			"err", err.Error(),
		)
	}

	started := time.Now()
	defer metricskey.PerfToolCall.MeasureSince(started, tool.Name())

	policy := d.cfg.retryFor(tool.Name())
	return retry.Execute(ctx, func(ctx context.Context) ([]byte, error) {
		return callTool(ctx, tool, args)
	}, policy, observer)
}

// callTool converts handler panics into an internal error so one
// faulting tool cannot take down the runtime. The recovered value is
// logged but never reaches the caller.
func callTool(ctx context.Context, tool tools.ITool, args map[string]any) (payload []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.ContextKV(ctx, xlog.ERROR,
				"status", "tool_panic",
				"tool", tool.Name(),
				"recovered", utils.Stringify(r),
			)
			err = errors.Newf("tool %s panicked", tool.Name())
		}
	}()
	return tool.Call(ctx, args)
}
