package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ctihunt/workflowengine/pkg/llmgateway"
	"github.com/ctihunt/workflowengine/pkg/models"
	"github.com/ctihunt/workflowengine/pkg/workflow"
)

// ProcTreeExtract pulls process lineage pairs from the article (§4.3.d).
// Rules: cmd.exe is forbidden as a parent; both processes must be explicitly
// named; source_text is required.
type ProcTreeExtract struct {
	Gateway llmgateway.Gateway
}

func (a *ProcTreeExtract) Type() models.ObservableType { return models.ObservableTypeProcessLineage }

type procLineageItem struct {
	Parent    string `json:"parent"`
	Child     string `json:"child"`
	Arguments string `json:"arguments"`
	Context   string `json:"context"`
	SourceText string `json:"source_text"`
}

type proctreeResponse struct {
	ProcessLineage []procLineageItem `json:"process_lineage"`
	Count          int               `json:"count"`
}

func (a *ProcTreeExtract) Extract(ctx context.Context, in workflow.StageInput) (models.SubAgentResult, *models.LLMTelemetry, error) {
	agentCfg, ok := in.Config.AgentModels[agentProcTreeExtract]
	if !ok {
		return models.SubAgentResult{}, nil, fmt.Errorf("proctree_extract: no agent_models entry")
	}
	prompt := in.Config.AgentPrompts[agentProcTreeExtract]
	content := in.Article.Content
	if jf, ok := in.Prior[models.StageJunkFilter].(models.JunkFilterOutput); ok && jf.FilteredContent != "" {
		content = jf.FilteredContent
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

	var parsed proctreeResponse
	if err := json.Unmarshal([]byte(resp.Text), &parsed); err != nil {
		return models.SubAgentResult{}, nil, fmt.Errorf("proctree_extract: %w", err)
	}

	items := make([]models.Observable, 0, len(parsed.ProcessLineage))
	for _, lineage := range parsed.ProcessLineage {
		if !validProcLineage(lineage) {
			continue
		}
		items = append(items, models.Observable{
			Type:   models.ObservableTypeProcessLineage,
			Value:  lineage.Parent + " -> " + lineage.Child,
			Source: "proctree_extract",
			Detail: models.ProcessLineageItem{
				Parent: lineage.Parent, Child: lineage.Child, Arguments: lineage.Arguments,
				Context: lineage.Context, SourceText: lineage.SourceText,
			},
		})
	}

	tel := &models.LLMTelemetry{
		Model: agentCfg.Model, Provider: string(agentCfg.Provider),
		InputTokens: resp.Usage.InputTokens, OutputTokens: resp.Usage.OutputTokens, LatencyMS: latency.Milliseconds(),
	}
	return models.SubAgentResult{Items: items, Count: len(items)}, tel, nil
}

// validProcLineage enforces §4.3.d's ProcTree rules: cmd.exe forbidden as a
// parent, both processes explicitly named, source_text required. Also
// applied post-QA per §8's "filtered out by validator" boundary behavior.
func validProcLineage(l procLineageItem) bool {
	if strings.TrimSpace(l.Parent) == "" || strings.TrimSpace(l.Child) == "" {
		return false
	}
	if strings.TrimSpace(l.SourceText) == "" {
		return false
	}
	if strings.EqualFold(strings.TrimSpace(l.Parent), "cmd.exe") {
		return false
	}
	return true
}
