// Package config loads and serves the workflow engine's mutable
// configuration (agent models, prompts, thresholds, sub-agent toggles) from
// YAML, and exposes it as versioned snapshots so a running Execution can
// always Resolve() the exact config it was triggered under (§3, §9).
//
// Grounded on the teacher's pkg/config: same load → merge-over-builtin-
// defaults → validate pipeline, same ExpandEnv/mergo/go-playground-
// validator stack, generalized from agent/chain/MCP registries to a single
// versioned WorkflowConfig registry.
package config

import "github.com/ctihunt/workflowengine/pkg/models"

// YAMLConfig is the on-disk shape of workflow.yaml.
type YAMLConfig struct {
	AgentModels           map[string]AgentModelYAML `yaml:"agent_models"`
	AgentPrompts          map[string]string         `yaml:"agent_prompts"`
	Thresholds            *ThresholdsYAML           `yaml:"thresholds"`
	QAEnabled             map[string]bool           `yaml:"qa_enabled"`
	EnabledSubAgents      map[string]bool           `yaml:"enabled_sub_agents"`
	MinHuntableChunks     int                       `yaml:"min_huntable_chunks" validate:"omitempty,min=0"`
	SigmaFallbackEnabled  *bool                     `yaml:"sigma_fallback_enabled"`
	OSDetectUnknownPolicy string                    `yaml:"os_detect_unknown_policy" validate:"omitempty,oneof=proceed terminate"`
	SimilarityK           int                       `yaml:"similarity_k" validate:"omitempty,min=1"`
	AutoTriggerThreshold  float64                   `yaml:"auto_trigger_threshold" validate:"omitempty,min=0,max=10"`
	ExecutionDeadlineS    int                       `yaml:"execution_deadline_s" validate:"omitempty,min=1"`
}

// AgentModelYAML is one agent_models entry.
type AgentModelYAML struct {
	Model       string  `yaml:"model" validate:"required"`
	Provider    string  `yaml:"provider" validate:"required"`
	Temperature float64 `yaml:"temperature" validate:"min=0,max=2"`
	TopP        float64 `yaml:"top_p" validate:"min=0,max=1"`
	MaxTokens   int     `yaml:"max_tokens" validate:"omitempty,min=1"`
}

// ThresholdsYAML is the thresholds block.
type ThresholdsYAML struct {
	Ranking    float64 `yaml:"ranking" validate:"min=0,max=10"`
	Junk       float64 `yaml:"junk" validate:"min=0,max=1"`
	Similarity float64 `yaml:"similarity" validate:"min=0,max=1"`
}

// toModel converts a fully merged YAMLConfig into the engine's runtime
// WorkflowConfig, stamping version.
func (y *YAMLConfig) toModel(version int) models.WorkflowConfig {
	agentModels := make(map[string]models.AgentModelConfig, len(y.AgentModels))
	for name, a := range y.AgentModels {
		agentModels[name] = models.AgentModelConfig{
			Model: a.Model, Provider: models.LLMProvider(a.Provider),
			Temperature: a.Temperature, TopP: a.TopP, MaxTokens: a.MaxTokens,
		}
	}

	enabledSubAgents := make(map[models.ObservableType]bool, len(y.EnabledSubAgents))
	for name, enabled := range y.EnabledSubAgents {
		enabledSubAgents[models.ObservableType(name)] = enabled
	}

	policy := models.OSDetectUnknownPolicy(y.OSDetectUnknownPolicy)
	if policy == "" {
		policy = models.OSDetectUnknownProceed
	}

	fallback := true
	if y.SigmaFallbackEnabled != nil {
		fallback = *y.SigmaFallbackEnabled
	}

	thresholds := models.Thresholds{}
	if y.Thresholds != nil {
		thresholds = models.Thresholds{Ranking: y.Thresholds.Ranking, Junk: y.Thresholds.Junk, Similarity: y.Thresholds.Similarity}
	}

	return models.WorkflowConfig{
		Version:               version,
		AgentModels:           agentModels,
		AgentPrompts:          y.AgentPrompts,
		Thresholds:            thresholds,
		QAEnabled:             y.QAEnabled,
		EnabledSubAgents:      enabledSubAgents,
		MinHuntableChunks:     y.MinHuntableChunks,
		SigmaFallbackEnabled:  fallback,
		OSDetectUnknownPolicy: policy,
		SimilarityK:           y.SimilarityK,
		AutoTriggerThreshold:  y.AutoTriggerThreshold,
		ExecutionDeadlineS:    y.ExecutionDeadlineS,
	}
}
