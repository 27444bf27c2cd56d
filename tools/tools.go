package tools

import (
	"context"

	"github.com/effective-security/toolgate/utils"
)

// SideEffect is the declared side-effect class of a tool.
type SideEffect string

const (
	// SideEffectReadOnly marks tools that observe state without changing it.
	SideEffectReadOnly SideEffect = "read-only"
	// SideEffectMutating marks tools that change local or remote state.
	SideEffectMutating SideEffect = "mutating"
	// SideEffectDangerous marks tools that require an explicit policy
	// allow-list entry before execution, such as shell commands.
	SideEffectDangerous SideEffect = "dangerous"
)

// ITool is a capability exposed to the assistant process.
type ITool interface {
	// Name returns the name of the Tool, unique within a registry.
	Name() string
	// Description returns the description of the tool, to be used in the prompt.
	Description() string
	// Parameters returns the JSON schema of the tool input.
	Parameters() any
	// SideEffect returns the declared side-effect class.
	SideEffect() SideEffect
	// Idempotent reports whether repeated invocation with identical
	// arguments yields an equivalent result; only idempotent tools are
	// eligible for result caching.
	Idempotent() bool

	// Call executes the tool with validated arguments and returns a
	// JSON payload, or an error classified by the runtime.
	Call(ctx context.Context, args map[string]any) ([]byte, error)
}

// DangerousTool exposes the action string the policy guard evaluates
// against the configured allow-list. Dangerous tools that do not
// implement it are matched on their canonical argument JSON.
type DangerousTool interface {
	ITool
	PolicyAction(args map[string]any) string
}

// Callback observes tool invocations made through the dispatcher.
type Callback interface {
	OnToolStart(ctx context.Context, tool ITool, input string)
	OnToolEnd(ctx context.Context, tool ITool, input string, output string)
	OnToolError(ctx context.Context, tool ITool, input string, err error)
	OnToolNotFound(ctx context.Context, tool string)
}

// Tool is a typed tool with structured input and output.
type Tool[I any, O any] interface {
	ITool
	Run(ctx context.Context, req *I) (*O, error)
}

type toolDescription struct {
	Name        string `json:"Name" yaml:"Name"`
	Description string `json:"Description" yaml:"Description"`
}

type toolsDescription struct {
	Tools []toolDescription `json:"Tools" yaml:"Tools"`
}

// GetDescriptions returns the names and descriptions of the given
// tools as fenced JSON, for inclusion in a prompt.
func GetDescriptions(list ...ITool) string {
	var d toolsDescription
	for _, tool := range list {
		d.Tools = append(d.Tools, toolDescription{
			Name:        tool.Name(),
			Description: tool.Description(),
		})
	}
	return utils.BackticksJSON(utils.ToJSONIndent(d))
}
