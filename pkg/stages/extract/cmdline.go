package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ctihunt/workflowengine/pkg/llmgateway"
	"github.com/ctihunt/workflowengine/pkg/models"
	"github.com/ctihunt/workflowengine/pkg/workflow"
)

// These are the config-registry keys each sub-agent looks itself up under in
// WorkflowConfig.AgentModels/AgentPrompts. QAEnabled is keyed by observable
// type instead (see Supervisor.runOne).
const (
	agentCmdlineExtract    = "cmdline_extract"
	agentProcTreeExtract   = "proctree_extract"
	agentHuntQueriesExtract = "huntqueries_extract"
)

// CmdlineExtract pulls verbatim command lines from the article (§4.3.d).
type CmdlineExtract struct {
	Gateway llmgateway.Gateway
}

func (a *CmdlineExtract) Type() models.ObservableType { return models.ObservableTypeCmdline }

type cmdlineResponse struct {
	Count int      `json:"count"`
	Items []string `json:"items"`
}

func (a *CmdlineExtract) Extract(ctx context.Context, in workflow.StageInput) (models.SubAgentResult, *models.LLMTelemetry, error) {
	agentCfg, ok := in.Config.AgentModels[agentCmdlineExtract]
	if !ok {
		return models.SubAgentResult{}, nil, fmt.Errorf("cmdline_extract: no agent_models entry")
	}
	prompt := in.Config.AgentPrompts[agentCmdlineExtract]
	content := in.Article.Content
	if extracted, ok := in.Prior[models.StageJunkFilter].(models.JunkFilterOutput); ok && extracted.FilteredContent != "" {
		content = extracted.FilteredContent
	}

	req := llmgateway.Request{
		Provider: string(agentCfg.Provider), Model: agentCfg.Model,
		Temperature: agentCfg.Temperature, TopP: agentCfg.TopP, MaxTokens: agentCfg.MaxTokens,
		JSONMode: true,
		Messages: []llmgateway.Message{
			{Role: "system", Content: prompt},
			{Role: "user", Content: content},
		},
	}
	start := time.Now()
	resp, err := a.Gateway.Complete(ctx, req)
	if err != nil {
		return models.SubAgentResult{}, nil, err
	}
	latency := time.Since(start)

	var parsed cmdlineResponse
	if err := json.Unmarshal([]byte(resp.Text), &parsed); err != nil {
		return models.SubAgentResult{}, nil, fmt.Errorf("cmdline_extract: %w", err)
	}

	items := make([]models.Observable, 0, len(parsed.Items))
	for _, v := range parsed.Items {
		items = append(items, models.Observable{
			Type: models.ObservableTypeCmdline, Value: v, Source: "cmdline_extract",
			Detail: models.CmdlineItem{Value: v},
		})
	}

	tel := &models.LLMTelemetry{
		Model: agentCfg.Model, Provider: string(agentCfg.Provider),
		InputTokens: resp.Usage.InputTokens, OutputTokens: resp.Usage.OutputTokens, LatencyMS: latency.Milliseconds(),
	}
	return models.SubAgentResult{Items: items, Count: len(items)}, tel, nil
}
