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

// QAVerdict is the QA agent's review outcome (§4.3.d "Optional QA pass").
type QAVerdict string

// QA verdict constants.
const (
	QAVerdictPass          QAVerdict = "pass"
	QAVerdictFail          QAVerdict = "fail"
	QAVerdictNeedsRevision QAVerdict = "needs_revision"
)

// QA reviews a sub-agent's output and applies corrections (§4.3.d). Corrections
// may add, remove, or modify items; the final items list is the corrected list.
type QA struct {
	Gateway llmgateway.Gateway
}

type qaCorrection struct {
	Value      string `json:"value"`
	Context    string `json:"context"`
	Parent     string `json:"parent"`
	Child      string `json:"child"`
	Arguments  string `json:"arguments"`
	SourceText string `json:"source_text"`
	QueryType  string `json:"query_type"`
}

type qaResponse struct {
	Verdict     string         `json:"verdict"`
	Corrections []qaCorrection `json:"corrections"`
}

// Review sends result plus the article text to the QA agent configured under
// "qa_<observable_type>" and returns the corrected SubAgentResult.
func (q *QA) Review(ctx context.Context, obsType models.ObservableType, result models.SubAgentResult, in workflow.StageInput) (models.SubAgentResult, *models.LLMTelemetry, error) {
	agentName := "qa_" + string(obsType)
	agentCfg, ok := in.Config.AgentModels[agentName]
	if !ok {
		// No QA agent configured for this type: treat as a pass-through
		// rather than a ConfigError, since QA is optional per sub-agent.
		return result, nil, nil
	}
	prompt := in.Config.AgentPrompts[agentName]

	payload, err := json.Marshal(result.Items)
	if err != nil {
		return result, nil, fmt.Errorf("qa: marshal prior items: %w", err)
	}

	req := llmgateway.Request{
		Provider: string(agentCfg.Provider), Model: agentCfg.Model,
		Temperature: agentCfg.Temperature, TopP: agentCfg.TopP, MaxTokens: agentCfg.MaxTokens,
		JSONMode: true,
		Messages: []llmgateway.Message{
			{Role: "system", Content: prompt},
			{Role: "user", Content: in.Article.Content},
			{Role: "user", Content: string(payload)},
		},
	}
	start := time.Now()
	resp, err := q.Gateway.Complete(ctx, req)
	if err != nil {
		return result, nil, err
	}
	latency := time.Since(start)

	var parsed qaResponse
	if err := json.Unmarshal([]byte(resp.Text), &parsed); err != nil {
		return result, nil, fmt.Errorf("qa: %w", err)
	}

	tel := &models.LLMTelemetry{
		Model: agentCfg.Model, Provider: string(agentCfg.Provider),
		InputTokens: resp.Usage.InputTokens, OutputTokens: resp.Usage.OutputTokens, LatencyMS: latency.Milliseconds(),
	}

	if QAVerdict(parsed.Verdict) == QAVerdictPass {
		return result, tel, nil
	}

	corrected := make([]models.Observable, 0, len(parsed.Corrections))
	for _, c := range parsed.Corrections {
		value := c.Value
		if obsType == models.ObservableTypeProcessLineage {
			value = c.Parent + " -> " + c.Child
		}
		corrected = append(corrected, models.Observable{
			Type: obsType, Value: value, Source: "qa_" + string(obsType),
			Detail: detailFor(obsType, c),
		})
	}

	if obsType == models.ObservableTypeProcessLineage {
		corrected = filterProcLineageObservables(corrected)
	}

	return models.SubAgentResult{Items: corrected, Count: len(corrected)}, tel, nil
}

func detailFor(obsType models.ObservableType, c qaCorrection) models.ObservableDetail {
	switch obsType {
	case models.ObservableTypeCmdline:
		return models.CmdlineItem{Value: c.Value}
	case models.ObservableTypeHuntQueries:
		return models.HuntQueryItem{Query: c.Value, Context: c.Context, Type: normalizeHuntQueryType(c.QueryType)}
	case models.ObservableTypeProcessLineage:
		return models.ProcessLineageItem{
			Parent: c.Parent, Child: c.Child, Arguments: c.Arguments,
			Context: c.Context, SourceText: c.SourceText,
		}
	default:
		return models.CmdlineItem{Value: c.Value}
	}
}

// filterProcLineageObservables re-applies the cmd.exe-as-parent and
// explicit-naming rules after QA corrections, since QA can reintroduce an
// invalid lineage pair (§8 boundary behavior).
func filterProcLineageObservables(items []models.Observable) []models.Observable {
	kept := make([]models.Observable, 0, len(items))
	for _, o := range items {
		detail, ok := o.Detail.(models.ProcessLineageItem)
		if !ok {
			continue
		}
		if validProcLineage(procLineageItem{
			Parent: detail.Parent, Child: detail.Child, Arguments: detail.Arguments,
			Context: detail.Context, SourceText: detail.SourceText,
		}) {
			kept = append(kept, o)
		}
	}
	return kept
}
