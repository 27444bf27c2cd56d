package tools

import (
	"context"
	"encoding/json"
	"reflect"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/toolgate/pkg/schema"
	"github.com/effective-security/toolgate/toolcall"
)

// Func adapts a typed Go function into an ITool. The input schema is
// reflected from I; arguments are decoded into I before the function
// runs and the output is marshaled to JSON.
type Func[I any, O any] struct {
	name        string
	description string
	sideEffect  SideEffect
	idempotent  bool
	funcParams  any
	fn          func(ctx context.Context, req *I) (*O, error)

	// actionArg names the argument the policy guard matches for
	// dangerous tools.
	actionArg string
}

var (
	_ Tool[struct{}, struct{}] = (*Func[struct{}, struct{}])(nil)
	_ DangerousTool            = (*Func[struct{}, struct{}])(nil)
)

// NewFunc creates a read-only tool from a typed function.
func NewFunc[I any, O any](name, description string, fn func(ctx context.Context, req *I) (*O, error)) (*Func[I, O], error) {
	var input I
	sc, err := schema.New(reflect.TypeOf(input))
	if err != nil {
		return nil, errors.WithMessagef(err, "failed to create schema for tool %q", name)
	}
	return &Func[I, O]{
		name:        name,
		description: description,
		sideEffect:  SideEffectReadOnly,
		funcParams:  sc.Parameters,
		fn:          fn,
	}, nil
}

// WithSideEffect declares the side-effect class of the tool.
func (t *Func[I, O]) WithSideEffect(se SideEffect) *Func[I, O] {
	t.sideEffect = se
	return t
}

// WithIdempotent marks the tool as eligible for result caching.
func (t *Func[I, O]) WithIdempotent(idempotent bool) *Func[I, O] {
	t.idempotent = idempotent
	return t
}

// WithActionArg names the argument whose value is evaluated against
// the policy allow-list for dangerous tools.
func (t *Func[I, O]) WithActionArg(arg string) *Func[I, O] {
	t.actionArg = arg
	return t
}

func (t *Func[I, O]) Name() string {
	return t.name
}

func (t *Func[I, O]) Description() string {
	return t.description
}

func (t *Func[I, O]) Parameters() any {
	return t.funcParams
}

func (t *Func[I, O]) SideEffect() SideEffect {
	return t.sideEffect
}

func (t *Func[I, O]) Idempotent() bool {
	return t.idempotent
}

// PolicyAction implements DangerousTool. When no action argument is
// declared, the canonical argument JSON is matched instead.
func (t *Func[I, O]) PolicyAction(args map[string]any) string {
	if t.actionArg != "" {
		if v, ok := args[t.actionArg].(string); ok {
			return v
		}
		return ""
	}
	js, _ := json.Marshal(args)
	return string(js)
}

func (t *Func[I, O]) Run(ctx context.Context, req *I) (*O, error) {
	return t.fn(ctx, req)
}

func (t *Func[I, O]) Call(ctx context.Context, args map[string]any) ([]byte, error) {
	js, err := json.Marshal(args)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal arguments")
	}
	var req I
	if err := json.Unmarshal(js, &req); err != nil {
		return nil, toolcall.NewError("failed to unmarshal arguments: %s", err.Error())
	}
	out, err := t.fn(ctx, &req)
	if err != nil {
		return nil, err
	}
	bs, err := json.Marshal(out)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal output")
	}
	return bs, nil
}
