package gateway

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

var testSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"name":  map[string]any{"type": "string"},
		"limit": map[string]any{"type": "integer"},
		"ratio": map[string]any{"type": "number"},
		"flag":  map[string]any{"type": "boolean"},
		"tags":  map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
		"extra": map[string]any{"type": "object"},
		"mode":  map[string]any{"type": "string", "enum": []string{"fast", "slow"}},
	},
	"required": []string{"name"},
}

func TestValidateArgsAcceptsValid(t *testing.T) {
	err := ValidateArgs(testSchema, map[string]any{
		"name":  "x",
		"limit": float64(5),
		"ratio": 1.5,
		"flag":  true,
		"tags":  []any{"a", "b"},
		"extra": map[string]any{"anything": 1},
		"mode":  "fast",
	})
	require.NoError(t, err)
}

func TestValidateArgsRequired(t *testing.T) {
	err := ValidateArgs(testSchema, map[string]any{"limit": float64(1)})
	var argErr *ArgError
	require.ErrorAs(t, err, &argErr)
	require.Equal(t, "name", argErr.Field)
	require.Equal(t, "required", argErr.Reason)
}

func TestValidateArgsTypeMismatches(t *testing.T) {
	cases := []struct {
		field string
		args  map[string]any
	}{
		{"name", map[string]any{"name": 42}},
		{"limit", map[string]any{"name": "x", "limit": "five"}},
		{"limit", map[string]any{"name": "x", "limit": 1.5}},
		{"flag", map[string]any{"name": "x", "flag": "yes"}},
		{"tags", map[string]any{"name": "x", "tags": "a,b"}},
		{"tags[0]", map[string]any{"name": "x", "tags": []any{1}}},
		{"extra", map[string]any{"name": "x", "extra": "not an object"}},
	}
	for _, tc := range cases {
		err := ValidateArgs(testSchema, tc.args)
		var argErr *ArgError
		require.ErrorAs(t, err, &argErr, "args %v", tc.args)
		require.Equal(t, tc.field, argErr.Field)
	}
}

func TestValidateArgsEnum(t *testing.T) {
	err := ValidateArgs(testSchema, map[string]any{"name": "x", "mode": "sideways"})
	var argErr *ArgError
	require.ErrorAs(t, err, &argErr)
	require.Equal(t, "mode", argErr.Field)
}

func TestValidateArgsRejectsUnknownArgument(t *testing.T) {
	err := ValidateArgs(testSchema, map[string]any{"name": "x", "surprise": true})
	var argErr *ArgError
	require.True(t, errors.As(err, &argErr))
	require.Equal(t, "surprise", argErr.Field)
	require.Equal(t, "unknown argument", argErr.Reason)
}
