// Package policy implements the allow-list guard for dangerous tools.
// The default posture is deny-unless-listed; unrestricted mode must be
// enabled explicitly in configuration.
package policy

import (
	"context"
	"encoding/json"
	"path"

	"github.com/effective-security/toolgate/toolcall"
	"github.com/effective-security/toolgate/tools"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/toolgate", "policy")

// Config is the startup policy configuration: an ordered list of
// permitted action patterns, plus the opt-in unrestricted override.
type Config struct {
	// Patterns are matched against the tool's action string, either as
	// exact strings or as path.Match globs, in order.
	Patterns []string `json:"patterns,omitempty" yaml:"patterns,omitempty" toml:"patterns,omitempty"`
	// Unrestricted bypasses the allow-list entirely. Never the default.
	Unrestricted bool `json:"unrestricted,omitempty" yaml:"unrestricted,omitempty" toml:"unrestricted,omitempty"`
}

// Guard checks dangerous actions against the configured allow-list.
type Guard struct {
	cfg Config
}

func NewGuard(cfg Config) *Guard {
	return &Guard{cfg: cfg}
}

// Check evaluates a tool invocation. It returns nil when the action is
// allowed, or a PolicyDenied failure. Tools not flagged dangerous are
// always allowed; the handler is never invoked on denial.
func (g *Guard) Check(ctx context.Context, tool tools.ITool, args map[string]any) *toolcall.Failure {
	if tool.SideEffect() != tools.SideEffectDangerous {
		return nil
	}
	if g.cfg.Unrestricted {
		logger.ContextKV(ctx, xlog.WARNING,
			"tool", tool.Name(),
			"status", "unrestricted_policy",
		)
		return nil
	}

	action := actionOf(tool, args)
	if action != "" && g.matches(action) {
		return nil
	}

	logger.ContextKV(ctx, xlog.INFO,
		"tool", tool.Name(),
		"status", "policy_denied",
		"action", action,
	)
	return &toolcall.Failure{
		Kind:    toolcall.KindPolicyDenied,
		Message: "action is not in the policy allow-list",
	}
}

func (g *Guard) matches(action string) bool {
	for _, pattern := range g.cfg.Patterns {
		if pattern == action {
			return true
		}
		if ok, err := path.Match(pattern, action); err == nil && ok {
			return true
		}
	}
	return false
}

func actionOf(tool tools.ITool, args map[string]any) string {
	if dt, ok := tool.(tools.DangerousTool); ok {
		return dt.PolicyAction(args)
	}
	js, _ := json.Marshal(args)
	return string(js)
}
