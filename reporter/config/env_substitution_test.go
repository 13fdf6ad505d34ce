package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mapLookup(env map[string]string) LookupFunc {
	return func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}
}

func TestSubstituteEnvVars_Basic(t *testing.T) {
	lookup := mapLookup(map[string]string{
		"TEST_VAR":    "test_value",
		"ANOTHER_VAR": "another_value",
	})

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "simple substitution",
			input:    "value: ${TEST_VAR}",
			expected: "value: test_value",
		},
		{
			name:     "multiple substitutions",
			input:    "first: ${TEST_VAR}, second: ${ANOTHER_VAR}",
			expected: "first: test_value, second: another_value",
		},
		{
			name:     "substitution in URL",
			input:    "connection: mongodb://${TEST_VAR}:27017",
			expected: "connection: mongodb://test_value:27017",
		},
		{
			name:     "no substitution",
			input:    "plain text without vars",
			expected: "plain text without vars",
		},
		{
			name:     "empty variable",
			input:    "value: ${EMPTY_VAR}",
			expected: "value: ",
		},
		{
			name:     "unterminated reference",
			input:    "value: ${TEST_VAR",
			expected: "value: ${TEST_VAR",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := SubstituteEnvVars(tt.input, lookup)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestSubstituteEnvVars_DefaultsAndEscapes(t *testing.T) {
	lookup := mapLookup(map[string]string{"SET": "x", "BLANK": ""})

	result, err := SubstituteEnvVars("a: ${UNSET:-fallback}\nb: ${SET:-fallback}\nc: ${BLANK:-y}", lookup)
	require.NoError(t, err)
	assert.Equal(t, "a: fallback\nb: x\nc: y", result)

	result, err = SubstituteEnvVars("literal: $${SET}", lookup)
	require.NoError(t, err)
	assert.Equal(t, "literal: ${SET}", result)
}

func TestSubstituteEnvVars_Required(t *testing.T) {
	lookup := mapLookup(map[string]string{"TOKEN": "abc"})

	result, err := SubstituteEnvVars("token: ${TOKEN:?token missing}", lookup)
	require.NoError(t, err)
	assert.Equal(t, "token: abc", result)

	_, err = SubstituteEnvVars("a: ${MISSING:?connection string missing}\nb: ${OTHER:?second}", lookup)
	require.Error(t, err)
	assert.Equal(t, "connection string missing", err.Error())

	_, err = SubstituteEnvVars("a: ${MISSING:?}", lookup)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MISSING")
}
