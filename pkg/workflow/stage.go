// Package workflow implements the Agentic Workflow Engine: the scheduler,
// executor, and state machine that advance one Execution through the stage
// DAG of §4.1, with idempotent triggering, at-most-one-concurrent-execution
// enforcement, per-stage retries, early termination, and typed aggregation.
//
// Grounded on the teacher's pkg/queue/worker.go (claim discipline, heartbeat,
// terminal-status update) and pkg/agent/orchestrator/runner.go (fan-out/fan-in
// dispatch, CancelAll/WaitAll barrier), generalized from a session-oriented
// agent runner to the article-oriented stage DAG this spec describes.
package workflow

import (
	"context"

	"github.com/ctihunt/workflowengine/pkg/models"
)

// StageInput bundles everything a stage executor needs: the immutable
// article, the config snapshot taken at trigger time, and whatever prior
// stage outputs the DAG has produced so far (§4.1 "pure function of article,
// prior_outputs, agent_config").
type StageInput struct {
	Article *models.Article
	Config  models.WorkflowConfig
	Prior   map[models.StageName]models.StageOutput

	// PriorError carries the previous attempt's validation/transient error
	// message back into a retried Execute call, so the executor can build a
	// correction prompt (§4.1 "feeding the prior parse error back into the
	// prompt"). Empty on a stage's first attempt.
	PriorError string
}

// StageOutcome is one stage attempt's result before it is persisted as a
// models.StageResult: either a typed output, a termination instruction, or
// an error the engine's retry policy classifies.
type StageOutcome struct {
	Output      models.StageOutput
	Terminate   bool
	Reason      models.TerminationReason
	Telemetry   *models.LLMTelemetry
}

// StageExecutor is one DAG node (§4.1). Implementations are pure functions
// of StageInput plus the LLM Gateway; they never touch the Catalog Store —
// the engine owns all persistence so a stage can be retried without
// double-writing state.
type StageExecutor interface {
	Name() models.StageName
	// Execute runs one attempt. A non-nil error is classified by the
	// engine's retry policy (errors.go) into Transient/ValidationFailure/
	// ConfigError/Unexpected (§7).
	Execute(ctx context.Context, in StageInput) (*StageOutcome, error)
}

// stageOrder is the DAG's strict sequential order (§4.1, §5 "Stage ordering
// within an execution is strictly sequential").
var stageOrder = []models.StageName{
	models.StageOSDetect,
	models.StageJunkFilter,
	models.StageRank,
	models.StageExtractSupervisor,
	models.StageSigmaGen,
	models.StageSimilarityMatch,
}

// StageIndex returns name's position in the DAG, or -1 if unknown.
func StageIndex(name models.StageName) int {
	for i, s := range stageOrder {
		if s == name {
			return i
		}
	}
	return -1
}
