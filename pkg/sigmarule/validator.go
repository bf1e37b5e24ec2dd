// Package sigmarule implements the Sigma Validator (§2 "pure function
// mapping rule text -> {ok, errors[]}"): YAML parsing plus structural
// validation against the Sigma detection-rule schema shape.
//
// Grounded on the teacher's config loader's YAML-parse-then-validate
// pattern (gopkg.in/yaml.v3), generalized from WorkflowConfig documents to
// Sigma rule documents.
package sigmarule

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Rule is the structural shape of a Sigma detection rule this validator
// checks. Unknown/additional Sigma fields (references, fields, falsepositives,
// level metadata) are ignored when parsing and not validated — the engine
// only enforces the structural invariants spec §4.2 (sigma validator) cares
// about: a well-formed detection block with a resolvable condition.
type Rule struct {
	Title         string                 `yaml:"title"`
	ID            string                 `yaml:"id"`
	Status        string                 `yaml:"status"`
	Description   string                 `yaml:"description"`
	LogSource     map[string]string      `yaml:"logsource"`
	Detection     map[string]any         `yaml:"detection"`
	Tags          []string               `yaml:"tags"`
}

// Result is the validator's {ok, errors[]} contract.
type Result struct {
	OK     bool
	Errors []string
}

// Validate parses yamlText and checks it against the Sigma schema shape
// (§4.2). It never panics on malformed input; parse and structural failures
// both surface as Result.Errors with OK=false.
func Validate(yamlText string) Result {
	var rule Rule
	if err := yaml.Unmarshal([]byte(yamlText), &rule); err != nil {
		return Result{OK: false, Errors: []string{fmt.Sprintf("yaml parse error: %v", err)}}
	}

	var errs []string
	if strings.TrimSpace(rule.Title) == "" {
		errs = append(errs, "missing required field: title")
	}
	if rule.LogSource == nil || len(rule.LogSource) == 0 {
		errs = append(errs, "missing required field: logsource")
	}
	if rule.Detection == nil || len(rule.Detection) == 0 {
		errs = append(errs, "missing required field: detection")
	} else {
		condition, ok := rule.Detection["condition"]
		if !ok {
			errs = append(errs, "detection block missing required key: condition")
		} else if err := validateCondition(condition, rule.Detection); err != nil {
			errs = append(errs, err.Error())
		}
		if atomErrs := validateDetectionAtoms(rule.Detection); len(atomErrs) > 0 {
			errs = append(errs, atomErrs...)
		}
	}

	return Result{OK: len(errs) == 0, Errors: errs}
}

// validateCondition checks that the condition expression only references
// selection names actually present in the detection block.
func validateCondition(condition any, detection map[string]any) error {
	condStr, ok := condition.(string)
	if !ok {
		return fmt.Errorf("condition must be a string expression")
	}
	condStr = strings.TrimSpace(condStr)
	if condStr == "" {
		return fmt.Errorf("condition expression is empty")
	}
	for _, token := range tokenizeCondition(condStr) {
		if token == "" || isConditionKeyword(token) {
			continue
		}
		if _, ok := detection[token]; !ok {
			return fmt.Errorf("condition references undefined selection %q", token)
		}
	}
	return nil
}

func isConditionKeyword(token string) bool {
	switch strings.ToLower(token) {
	case "and", "or", "not", "1", "all", "of", "them":
		return true
	default:
		return false
	}
}

func tokenizeCondition(cond string) []string {
	replacer := strings.NewReplacer("(", " ", ")", " ")
	return strings.Fields(replacer.Replace(cond))
}

// validateDetectionAtoms checks every non-"condition" selection is a
// well-formed map of field-op-value atoms (or a list of such maps).
func validateDetectionAtoms(detection map[string]any) []string {
	var errs []string
	for name, sel := range detection {
		if name == "condition" {
			continue
		}
		switch v := sel.(type) {
		case map[string]any:
			if len(v) == 0 {
				errs = append(errs, fmt.Sprintf("selection %q is empty", name))
			}
		case []any:
			if len(v) == 0 {
				errs = append(errs, fmt.Sprintf("selection %q is empty", name))
			}
		default:
			errs = append(errs, fmt.Sprintf("selection %q has unsupported shape", name))
		}
	}
	return errs
}
