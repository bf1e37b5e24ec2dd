package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExpandEnvSubstitutesVariables(t *testing.T) {
	t.Setenv("WORKFLOWENGINE_TEST_VAR", "replaced")
	out := ExpandEnv([]byte("value: ${WORKFLOWENGINE_TEST_VAR}"))
	assert.Equal(t, "value: replaced", string(out))
}

func TestExpandEnvMissingVariableBecomesEmpty(t *testing.T) {
	out := ExpandEnv([]byte("value: ${WORKFLOWENGINE_DEFINITELY_UNSET}"))
	assert.Equal(t, "value: ", string(out))
}
