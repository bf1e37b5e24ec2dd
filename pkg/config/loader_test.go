package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, yamlText string) string {
	t.Helper()
	path := filepath.Join(dir, "workflow.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yamlText), 0o644))
	return path
}

func TestLoadMergesUserOverBuiltinDefaults(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `
auto_trigger_threshold: 8.5
agent_models:
  os_detect:
    model: claude-3-5-sonnet-20241022
    provider: anthropic
    temperature: 0.1
    top_p: 1.0
`)

	cfg, err := Load(path, 1)
	require.NoError(t, err)

	assert.Equal(t, 1, cfg.Version)
	assert.Equal(t, 8.5, cfg.AutoTriggerThreshold)
	// Defaults the user config didn't override must survive the merge.
	assert.Equal(t, 10, cfg.SimilarityK)
	assert.True(t, cfg.SigmaFallbackEnabled)
	assert.Equal(t, "claude-3-5-sonnet-20241022", cfg.AgentModels["os_detect"].Model)
}

func TestLoadMissingFileReturnsErrConfigNotFound(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), 1)
	assert.ErrorIs(t, err, ErrConfigNotFound)
}

func TestLoadInvalidYAMLReturnsWrappedError(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "{{{not valid yaml")

	_, err := Load(path, 1)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidYAML)
}

func TestLoadRejectsOutOfRangeThreshold(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "auto_trigger_threshold: 99\n")

	_, err := Load(path, 1)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrValidationFailed)
}

func TestLoadExpandsEnvironmentVariables(t *testing.T) {
	t.Setenv("WORKFLOW_TEST_MODEL", "claude-3-5-haiku-20241022")
	dir := t.TempDir()
	path := writeConfig(t, dir, `
agent_models:
  os_detect:
    model: ${WORKFLOW_TEST_MODEL}
    provider: anthropic
`)

	cfg, err := Load(path, 1)
	require.NoError(t, err)
	assert.Equal(t, "claude-3-5-haiku-20241022", cfg.AgentModels["os_detect"].Model)
}
