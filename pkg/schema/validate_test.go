package schema_test

import (
	"reflect"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/toolgate/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_Validator(t *testing.T) {
	sc, err := schema.New(reflect.TypeOf(execArgs{}))
	require.NoError(t, err)

	v, err := sc.Validator()
	require.NoError(t, err)

	err = v.Validate(map[string]any{
		"command":     "ls -la",
		"working_dir": ".",
		"timeout":     30,
	})
	assert.NoError(t, err)

	// missing required field
	err = v.Validate(map[string]any{"working_dir": "."})
	require.Error(t, err)
	var ve *schema.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, []string{"(root)"}, ve.Fields)
	assert.Contains(t, ve.Error(), "command")

	// wrong type
	err = v.Validate(map[string]any{
		"command": "ls",
		"timeout": "soon",
	})
	require.Error(t, err)
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, []string{"timeout"}, ve.Fields)
}

func Test_NewValidator_FromAny(t *testing.T) {
	v, err := schema.NewValidator(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path": map[string]any{"type": "string"},
		},
		"required": []string{"path"},
	})
	require.NoError(t, err)

	assert.NoError(t, v.Validate(map[string]any{"path": "a/b.txt"}))

	err = v.Validate(map[string]any{"path": 42})
	require.Error(t, err)
	var ve *schema.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, []string{"path"}, ve.Fields)
}
