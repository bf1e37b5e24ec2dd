package workflow

import (
	"errors"

	"github.com/ctihunt/workflowengine/pkg/llmgateway"
)

// ErrorKind is the stage-attempt error taxonomy of §7.
type ErrorKind string

// Error kind constants (§7 "Error taxonomy").
const (
	KindTransient         ErrorKind = "Transient"
	KindValidationFailure ErrorKind = "ValidationFailure"
	KindConfigError       ErrorKind = "ConfigError"
	KindPolicyViolation   ErrorKind = "PolicyViolation"
	KindCancelled         ErrorKind = "Cancelled"
	KindUnexpected        ErrorKind = "Unexpected"
)

// ValidationError is returned by a stage executor when structured-output or
// Sigma validation fails; the engine retries with the error fed back into
// the correction prompt (§4.1 "JSON-shape validation failures").
type ValidationError struct {
	Messages []string
}

func (e *ValidationError) Error() string {
	if len(e.Messages) == 0 {
		return "workflow: validation failure"
	}
	return "workflow: validation failure: " + e.Messages[0]
}

// ConfigError is returned when a stage cannot run because its model/prompt
// is missing or disabled (§7: "not recovered; stage fails permanently").
type ConfigError struct {
	Detail string
}

func (e *ConfigError) Error() string { return "workflow: config error: " + e.Detail }

// PolicyViolation is returned when a stage's output violates a structural
// invariant after QA (e.g. ProcTree cmd.exe-as-parent). Treated as a
// ValidationFailure for retry purposes (§7).
type PolicyViolation struct {
	Detail string
}

func (e *PolicyViolation) Error() string { return "workflow: policy violation: " + e.Detail }

// ErrCancelled is returned by a stage when it observes cancel_requested or
// the execution deadline mid-attempt (§5).
var ErrCancelled = errors.New("workflow: cancelled")

// ErrAlreadyTerminal is returned by Cancel when the execution has already
// reached a terminal status (§6 "409 if already terminal").
var ErrAlreadyTerminal = errors.New("workflow: execution already terminal")

// Classify maps a stage executor error to the §7 taxonomy, reusing the LLM
// Gateway's own Transient/Permanent classification for errors that
// propagate up from it unchanged.
func Classify(err error) ErrorKind {
	if err == nil {
		return ""
	}
	switch {
	case errors.Is(err, ErrCancelled):
		return KindCancelled
	case isValidationFailure(err):
		return KindValidationFailure
	case isConfigError(err):
		return KindConfigError
	case llmgateway.IsTransient(err):
		return KindTransient
	case llmgateway.IsPermanent(err):
		return KindConfigError
	default:
		return KindUnexpected
	}
}

func isValidationFailure(err error) bool {
	var v *ValidationError
	var p *PolicyViolation
	return errors.As(err, &v) || errors.As(err, &p)
}

func isConfigError(err error) bool {
	var c *ConfigError
	return errors.As(err, &c)
}

// Retryable reports whether kind is retried locally by the engine rather
// than failing the stage immediately (§4.1 "Retries per stage").
func Retryable(kind ErrorKind) bool {
	switch kind {
	case KindTransient, KindValidationFailure:
		return true
	default:
		return false
	}
}
