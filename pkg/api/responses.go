package api

import (
	"time"

	"github.com/ctihunt/workflowengine/pkg/models"
	"github.com/ctihunt/workflowengine/pkg/queue"
)

// TriggerResponse is returned by POST /workflow/articles/:id/trigger.
type TriggerResponse struct {
	ExecutionID string `json:"execution_id"`
	Accepted    bool   `json:"accepted"`
	Reason      string `json:"reason,omitempty"`
}

// ExecutionResponse is returned by GET /workflow/executions/:id (§6).
type ExecutionResponse struct {
	ID                string                     `json:"id"`
	ArticleID         string                     `json:"article_id"`
	Status            models.ExecutionStatus     `json:"status"`
	TerminationReason models.TerminationReason   `json:"termination_reason,omitempty"`
	ConfigVersion     int                        `json:"config_version"`
	DiscreteHuntables int                        `json:"discrete_huntables_count"`
	ExtractionResult  *models.ExtractOutput      `json:"extraction_result,omitempty"`
	SigmaRules        []models.SigmaRule         `json:"sigma_rules,omitempty"`
	SimilarityResults []models.RuleSimilarity    `json:"similarity_results,omitempty"`
	StartedAt         *time.Time                 `json:"started_at,omitempty"`
	FinishedAt        *time.Time                 `json:"finished_at,omitempty"`
	Error             *models.ExecutionError     `json:"error,omitempty"`
	StageResults      []StageResultResponse      `json:"stage_results"`
}

// StageResultResponse is one entry of ExecutionResponse.StageResults.
type StageResultResponse struct {
	Stage      models.StageName   `json:"stage"`
	Attempt    int                `json:"attempt"`
	Status     models.StageStatus `json:"status"`
	StartedAt  time.Time          `json:"started_at"`
	FinishedAt time.Time          `json:"finished_at"`
	Error      *models.ExecutionError `json:"error,omitempty"`
}

func toExecutionResponse(exec *models.Execution, results []*models.StageResult) ExecutionResponse {
	stageResults := make([]StageResultResponse, 0, len(results))
	for _, r := range results {
		stageResults = append(stageResults, StageResultResponse{
			Stage: r.StageName, Attempt: r.Attempt, Status: r.Status,
			StartedAt: r.StartedAt, FinishedAt: r.FinishedAt, Error: r.Error,
		})
	}
	return ExecutionResponse{
		ID: exec.ID, ArticleID: exec.ArticleID, Status: exec.Status,
		TerminationReason: exec.TerminationReason, ConfigVersion: exec.ConfigVersion,
		DiscreteHuntables: exec.DiscreteHuntablesCount, ExtractionResult: exec.ExtractionResult,
		SigmaRules: exec.SigmaRules, SimilarityResults: exec.SimilarityResults,
		StartedAt: exec.StartedAt, FinishedAt: exec.FinishedAt,
		Error: exec.Error, StageResults: stageResults,
	}
}

// ListExecutionsResponse is returned by GET /workflow/executions.
type ListExecutionsResponse struct {
	Executions []ExecutionResponse `json:"executions"`
}

// HealthResponse is returned by GET /workflow/healthz.
type HealthResponse struct {
	Status  string               `json:"status"`
	Workers []queue.WorkerHealth `json:"workers,omitempty"`
}

// ErrorResponse is the standard error envelope for 4xx/5xx responses.
type ErrorResponse struct {
	Error string `json:"error"`
}
