package models

import "time"

// ExecutionStatus is the Execution state machine's status column (§3, §4.1).
type ExecutionStatus string

// Execution status constants. Terminal statuses never leave the terminal
// set once entered (completed, failed, terminated_early).
const (
	ExecutionStatusQueued          ExecutionStatus = "queued"
	ExecutionStatusRunning         ExecutionStatus = "running"
	ExecutionStatusCompleted       ExecutionStatus = "completed"
	ExecutionStatusFailed          ExecutionStatus = "failed"
	ExecutionStatusTerminatedEarly ExecutionStatus = "terminated_early"
)

// IsTerminal reports whether status is one from which the Execution never
// transitions again.
func (s ExecutionStatus) IsTerminal() bool {
	switch s {
	case ExecutionStatusCompleted, ExecutionStatusFailed, ExecutionStatusTerminatedEarly:
		return true
	default:
		return false
	}
}

// TerminationReason tags why an Execution entered terminated_early or failed.
type TerminationReason string

// Termination reason constants (§4.1 early-termination rules, §5 cancellation).
const (
	ReasonNonWindowsOS      TerminationReason = "non_windows_os_detected"
	ReasonJunkFiltered      TerminationReason = "junk_filtered"
	ReasonBelowRankThresh   TerminationReason = "below_rank_threshold"
	ReasonDeadlineExceeded  TerminationReason = "deadline_exceeded"
	ReasonCancelled         TerminationReason = "cancelled"
	ReasonStageFailed       TerminationReason = "stage_failed"
)

// Execution is one workflow run bound to exactly one article and one config
// version (§3).
type Execution struct {
	ID                      string
	ArticleID               string
	Status                  ExecutionStatus
	TerminationReason       TerminationReason // empty unless terminated_early/failed
	ConfigVersion           int
	StartedAt               *time.Time
	FinishedAt              *time.Time
	LastHeartbeatAt         time.Time // orphan detection, mirrors teacher's last_interaction_at
	DiscreteHuntablesCount  int
	ExtractionResult        *ExtractOutput
	SigmaRules              []SigmaRule
	SimilarityResults       []RuleSimilarity
	Error                   *ExecutionError
}

// ExecutionError is the user-visible failure detail for a failed Execution (§7).
type ExecutionError struct {
	Stage  string
	Kind   string // Transient, ValidationFailure, ConfigError, PolicyViolation, Cancelled, Unexpected
	Detail string
}

// StageName enumerates the DAG nodes of §4.1.
type StageName string

// Stage name constants, in DAG order.
const (
	StageOSDetect         StageName = "os_detect"
	StageJunkFilter       StageName = "junk_filter"
	StageRank             StageName = "rank"
	StageExtractSupervisor StageName = "extract_supervisor"
	StageSigmaGen         StageName = "sigma_gen"
	StageSimilarityMatch  StageName = "similarity_match"
)

// StageStatus is the status of one StageResult attempt.
type StageStatus string

// Stage attempt status constants.
const (
	StageStatusSucceeded StageStatus = "succeeded"
	StageStatusFailed    StageStatus = "failed"
	StageStatusTimedOut  StageStatus = "timed_out"
	StageStatusCancelled StageStatus = "cancelled"
)

// LLMTelemetry records per-attempt model usage (§3 StageResult.llm_telemetry).
type LLMTelemetry struct {
	Model        string
	Provider     string
	InputTokens  int
	OutputTokens int
	LatencyMS    int64
}

// StageResult is one attempt of one stage of one execution (§3). Append-only:
// re-executing a stage appends a new attempt row rather than mutating a prior one.
type StageResult struct {
	ExecutionID      string
	StageName        StageName
	StageIndex       int
	Attempt          int
	Status           StageStatus
	StartedAt        time.Time
	FinishedAt       time.Time
	InputFingerprint string
	Nonce            string // stable per-attempt nonce for downstream trace dedupe (§4.1 idempotence)
	Output           StageOutput // nil if the attempt failed before producing output
	LLMTelemetry     *LLMTelemetry
	Error            *ExecutionError
}
