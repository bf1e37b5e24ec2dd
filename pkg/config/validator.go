package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

var structValidator = validator.New()

// validateStruct runs field-tag validation (required/min/max/oneof), then
// the cross-field checks a struct tag can't express — mirroring the
// teacher's hybrid of go-playground/validator plus a hand-rolled Validator
// for relational invariants.
func validateStruct(cfg *YAMLConfig) error {
	if err := structValidator.Struct(cfg); err != nil {
		return fmt.Errorf("%w: %v", ErrValidationFailed, err)
	}
	for name, agent := range cfg.AgentModels {
		if err := structValidator.Struct(&agent); err != nil {
			return fmt.Errorf("%w: agent_models.%s: %v", ErrValidationFailed, name, err)
		}
	}
	return validateCrossFields(cfg)
}

// validateCrossFields enforces invariants that span multiple fields, which
// go-playground/validator struct tags cannot express on their own.
func validateCrossFields(cfg *YAMLConfig) error {
	if cfg.Thresholds != nil && cfg.Thresholds.Similarity > 0 && cfg.SimilarityK <= 0 {
		return fmt.Errorf("%w: similarity_k must be positive when a similarity threshold is configured", ErrValidationFailed)
	}
	enabledAny := false
	for _, enabled := range cfg.EnabledSubAgents {
		if enabled {
			enabledAny = true
			break
		}
	}
	if len(cfg.EnabledSubAgents) > 0 && !enabledAny {
		return fmt.Errorf("%w: enabled_sub_agents has no enabled entries", ErrValidationFailed)
	}
	return nil
}
