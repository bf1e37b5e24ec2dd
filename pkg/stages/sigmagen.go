package stages

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ctihunt/workflowengine/pkg/llmgateway"
	"github.com/ctihunt/workflowengine/pkg/models"
	"github.com/ctihunt/workflowengine/pkg/sigmarule"
	"github.com/ctihunt/workflowengine/pkg/workflow"
)

// SigmaGen generates candidate Sigma rules from extracted content and
// validates each one, retrying invalid candidates with validator feedback
// up to 3 attempts total per candidate (§4.3.e).
type SigmaGen struct {
	Gateway llmgateway.Gateway
	// CandidatesPerRun bounds how many distinct rules SigmaGen asks the
	// model to propose in one stage attempt (not a retry count).
	CandidatesPerRun int
}

func (s *SigmaGen) Name() models.StageName { return models.StageSigmaGen }

func (s *SigmaGen) Execute(ctx context.Context, in workflow.StageInput) (*workflow.StageOutcome, error) {
	agentCfg, ok := in.Config.AgentModels[string(models.StageSigmaGen)]
	if !ok {
		return nil, &workflow.ConfigError{Detail: "no agent_models entry for sigma_gen"}
	}
	prompt := in.Config.AgentPrompts[string(models.StageSigmaGen)]

	content := sigmaGenInput(in)
	if content == "" {
		return &workflow.StageOutcome{Output: models.SigmaOutput{}}, nil
	}

	candidates := s.CandidatesPerRun
	if candidates <= 0 {
		candidates = 1
	}

	var rules []models.SigmaRule
	var attemptLog []models.SigmaAttempt
	var totalIn, totalOut int
	var totalLatency time.Duration
	attemptCounter := 0

	for c := 0; c < candidates; c++ {
		var lastErrors []string
		for try := 0; try < workflow.MaxStageAttempts; try++ {
			attemptCounter++
			messages := []llmgateway.Message{
				{Role: "system", Content: prompt},
				{Role: "user", Content: content},
			}
			if len(lastErrors) > 0 {
				messages = append(messages, llmgateway.Message{
					Role:    "user",
					Content: "The previous rule failed validation: " + strings.Join(lastErrors, "; ") + ". Produce a corrected rule.",
				})
			}

			req := llmgateway.Request{
				Provider: string(agentCfg.Provider), Model: agentCfg.Model,
				Temperature: agentCfg.Temperature, TopP: agentCfg.TopP, MaxTokens: agentCfg.MaxTokens,
				Messages: messages,
			}
			start := time.Now()
			resp, err := s.Gateway.Complete(ctx, req)
			if err != nil {
				return nil, err
			}
			totalLatency += time.Since(start)
			totalIn += resp.Usage.InputTokens
			totalOut += resp.Usage.OutputTokens

			yamlText := strings.TrimSpace(resp.Text)
			result := sigmarule.Validate(yamlText)
			attemptLog = append(attemptLog, models.SigmaAttempt{
				Attempt: attemptCounter, YAMLText: yamlText, Valid: result.OK, ValidationErrors: result.Errors,
			})

			if result.OK {
				rules = append(rules, models.SigmaRule{YAMLText: yamlText})
				break
			}
			lastErrors = result.Errors
		}
	}

	telemetry := &models.LLMTelemetry{
		Model: agentCfg.Model, Provider: string(agentCfg.Provider),
		InputTokens: totalIn, OutputTokens: totalOut, LatencyMS: totalLatency.Milliseconds(),
	}

	if len(attemptLog) == 0 {
		return nil, fmt.Errorf("sigma_gen: produced no attempts")
	}

	return &workflow.StageOutcome{
		Output:    models.SigmaOutput{Rules: rules, AttemptLog: attemptLog},
		Telemetry: telemetry,
	}, nil
}

// sigmaGenInput implements §4.3.e's input selection: extraction content when
// huntables exist, else filtered_content when the fallback is enabled, else
// empty (caller skips the stage cleanly).
func sigmaGenInput(in workflow.StageInput) string {
	if extract, ok := in.Prior[models.StageExtractSupervisor].(models.ExtractOutput); ok && extract.DiscreteHuntablesCount > 0 {
		return extract.Content
	}
	if in.Config.SigmaFallbackEnabled {
		return in.Article.FilteredContent
	}
	return ""
}
