package stages

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ctihunt/workflowengine/pkg/llmgateway"
	"github.com/ctihunt/workflowengine/pkg/models"
	"github.com/ctihunt/workflowengine/pkg/workflow"
)

// Rank issues a single LLM call returning a numeric score in [0,10] with a
// rationale (§4.3.c). The expected response shape is "SCORE|RATIONALE" on one
// line, parsed defensively since the prompt contract is enforced externally.
type Rank struct {
	Gateway llmgateway.Gateway
}

func (s *Rank) Name() models.StageName { return models.StageRank }

func (s *Rank) Execute(ctx context.Context, in workflow.StageInput) (*workflow.StageOutcome, error) {
	agentCfg, ok := in.Config.AgentModels[string(models.StageRank)]
	if !ok {
		return nil, &workflow.ConfigError{Detail: "no agent_models entry for rank"}
	}
	prompt := in.Config.AgentPrompts[string(models.StageRank)]

	req := llmgateway.Request{
		Provider:    string(agentCfg.Provider),
		Model:       agentCfg.Model,
		Temperature: agentCfg.Temperature,
		TopP:        agentCfg.TopP,
		MaxTokens:   agentCfg.MaxTokens,
		Messages: []llmgateway.Message{
			{Role: "system", Content: prompt},
			{Role: "user", Content: in.Article.Content},
		},
	}
	if in.PriorError != "" {
		req.Messages = append(req.Messages, llmgateway.Message{
			Role:    "user",
			Content: "Your previous answer was invalid: " + in.PriorError + ". Reply with \"SCORE|RATIONALE\" where SCORE is a number 0-10.",
		})
	}

	start := time.Now()
	resp, err := s.Gateway.Complete(ctx, req)
	if err != nil {
		return nil, err
	}
	latency := time.Since(start)

	score, rationale, err := parseRank(resp.Text)
	if err != nil {
		return nil, &workflow.ValidationError{Messages: []string{err.Error()}}
	}

	return &workflow.StageOutcome{
		Output: models.RankOutput{Score: score, Rationale: rationale},
		Telemetry: &models.LLMTelemetry{
			Model: agentCfg.Model, Provider: string(agentCfg.Provider),
			InputTokens: resp.Usage.InputTokens, OutputTokens: resp.Usage.OutputTokens,
			LatencyMS: latency.Milliseconds(),
		},
	}, nil
}

func parseRank(text string) (float64, string, error) {
	parts := strings.SplitN(strings.TrimSpace(text), "|", 2)
	score, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return 0, "", fmt.Errorf("rank: missing or non-numeric score: %w", err)
	}
	if score < 0 || score > 10 {
		return 0, "", fmt.Errorf("rank: score %v out of range [0,10]", score)
	}
	rationale := ""
	if len(parts) == 2 {
		rationale = strings.TrimSpace(parts[1])
	}
	return score, rationale, nil
}
