package config

import (
	"fmt"
	"os"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"

	"github.com/ctihunt/workflowengine/pkg/models"
)

// Load reads path, expands environment variables, merges the result over
// builtinDefaults (user values win), validates, and returns a fresh
// WorkflowConfig stamped at the given version. Mirrors the teacher's
// load()/loadYAML() pipeline in pkg/config/loader.go.
func Load(path string, version int) (models.WorkflowConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return models.WorkflowConfig{}, fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return models.WorkflowConfig{}, &LoadError{File: path, Err: err}
	}

	data = ExpandEnv(data)

	var user YAMLConfig
	if err := yaml.Unmarshal(data, &user); err != nil {
		return models.WorkflowConfig{}, &LoadError{File: path, Err: fmt.Errorf("%w: %v", ErrInvalidYAML, err)}
	}

	merged := builtinDefaults()
	if err := mergo.Merge(merged, &user, mergo.WithOverride); err != nil {
		return models.WorkflowConfig{}, &LoadError{File: path, Err: fmt.Errorf("merge over builtin defaults: %w", err)}
	}

	if err := validateStruct(merged); err != nil {
		return models.WorkflowConfig{}, &LoadError{File: path, Err: err}
	}

	return merged.toModel(version), nil
}
