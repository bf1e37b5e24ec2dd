package config

import (
	"sync"

	"github.com/ctihunt/workflowengine/pkg/models"
)

// Registry holds every WorkflowConfig version ever loaded and serves both
// the "current" snapshot (for stamping new Executions) and historical
// lookups by version (for a running Execution to Resolve its own frozen
// config_version, per §9 "snapshot by value at execution creation").
// Implements both pkg/workflow.ConfigProvider and pkg/sweeper.ConfigProvider
// structurally.
type Registry struct {
	mu       sync.RWMutex
	path     string
	versions map[int]models.WorkflowConfig
	current  int
}

// NewRegistry loads path as version 1 and returns a ready Registry.
func NewRegistry(path string) (*Registry, error) {
	cfg, err := Load(path, 1)
	if err != nil {
		return nil, err
	}
	return &Registry{
		path:     path,
		versions: map[int]models.WorkflowConfig{1: cfg},
		current:  1,
	}, nil
}

// Current returns the presently active config snapshot (deep-enough-copied
// via WorkflowConfig.Clone so callers can't mutate the registry's maps).
func (r *Registry) Current() models.WorkflowConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.versions[r.current].Clone()
}

// Resolve returns the exact snapshot for a historical version.
func (r *Registry) Resolve(version int) (models.WorkflowConfig, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cfg, ok := r.versions[version]
	if !ok {
		return models.WorkflowConfig{}, ErrVersionNotFound
	}
	return cfg.Clone(), nil
}

// Reload re-reads the config file from disk and publishes it as a new,
// monotonically increasing version. Prior Executions keep resolving their
// original version untouched — editing the live file never reaches back
// into an in-flight Execution (§9).
func (r *Registry) Reload() (models.WorkflowConfig, error) {
	r.mu.Lock()
	nextVersion := r.current + 1
	r.mu.Unlock()

	cfg, err := Load(r.path, nextVersion)
	if err != nil {
		return models.WorkflowConfig{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.versions[nextVersion] = cfg
	r.current = nextVersion
	return cfg.Clone(), nil
}
