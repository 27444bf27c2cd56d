package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/cockroachdb/errors"
	jsonschemav5 "github.com/santhosh-tekuri/jsonschema/v5"
)

// ValidationError lists the fields of an argument map that violate the
// tool schema, with one human-readable cause per field.
type ValidationError struct {
	Fields []string
	Causes []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid arguments: %s", strings.Join(e.Causes, "; "))
}

// Validator checks argument maps against a compiled JSON schema.
type Validator struct {
	compiled *jsonschemav5.Schema
}

// Validator compiles the schema parameters for argument validation.
// The compiled form is cached on first use via New.
func (s *Schema) Validator() (*Validator, error) {
	return NewValidator(s.Parameters)
}

// NewValidator compiles a validator from any JSON-marshalable schema
// definition.
func NewValidator(schema any) (*Validator, error) {
	js, err := json.Marshal(schema)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal schema")
	}

	c := jsonschemav5.NewCompiler()
	if err := c.AddResource("tool.schema.json", bytes.NewReader(js)); err != nil {
		return nil, errors.Wrap(err, "failed to add schema resource")
	}
	compiled, err := c.Compile("tool.schema.json")
	if err != nil {
		return nil, errors.Wrap(err, "failed to compile schema")
	}
	return &Validator{compiled: compiled}, nil
}

// Validate checks the argument map against the schema. On violation it
// returns a *ValidationError listing the offending fields.
func (v *Validator) Validate(args map[string]any) error {
	// Round-trip through JSON so argument values carry JSON types
	// regardless of how the caller constructed the map.
	js, err := json.Marshal(args)
	if err != nil {
		return errors.Wrap(err, "failed to marshal arguments")
	}
	var decoded any
	if err := json.Unmarshal(js, &decoded); err != nil {
		return errors.Wrap(err, "failed to decode arguments")
	}

	err = v.compiled.Validate(decoded)
	if err == nil {
		return nil
	}

	var ve *jsonschemav5.ValidationError
	if !errors.As(err, &ve) {
		return errors.Wrap(err, "failed to validate arguments")
	}

	fields := make(map[string]string)
	collectLeafCauses(ve, fields)

	res := &ValidationError{}
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		res.Fields = append(res.Fields, name)
		res.Causes = append(res.Causes, fmt.Sprintf("%s: %s", name, fields[name]))
	}
	return res
}

func collectLeafCauses(ve *jsonschemav5.ValidationError, fields map[string]string) {
	if len(ve.Causes) == 0 {
		name := strings.TrimPrefix(ve.InstanceLocation, "/")
		name = strings.ReplaceAll(name, "/", ".")
		if name == "" {
			name = "(root)"
		}
		if _, ok := fields[name]; !ok {
			fields[name] = ve.Message
		}
		return
	}
	for _, cause := range ve.Causes {
		collectLeafCauses(cause, fields)
	}
}
