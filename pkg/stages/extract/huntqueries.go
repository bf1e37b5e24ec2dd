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

// HuntQueriesExtract pulls detection queries from code blocks only (§4.3.d).
type HuntQueriesExtract struct {
	Gateway llmgateway.Gateway
}

func (a *HuntQueriesExtract) Type() models.ObservableType { return models.ObservableTypeHuntQueries }

type huntQueryItem struct {
	Query   string `json:"query"`
	Type    string `json:"type"`
	Context string `json:"context"`
}

type huntQueriesResponse struct {
	Queries    []huntQueryItem `json:"queries"`
	QueryCount int             `json:"query_count"`
}

func (a *HuntQueriesExtract) Extract(ctx context.Context, in workflow.StageInput) (models.SubAgentResult, *models.LLMTelemetry, error) {
	agentCfg, ok := in.Config.AgentModels[agentHuntQueriesExtract]
	if !ok {
		return models.SubAgentResult{}, nil, fmt.Errorf("huntqueries_extract: no agent_models entry")
	}
	prompt := in.Config.AgentPrompts[agentHuntQueriesExtract]
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

	var parsed huntQueriesResponse
	if err := json.Unmarshal([]byte(resp.Text), &parsed); err != nil {
		return models.SubAgentResult{}, nil, fmt.Errorf("huntqueries_extract: %w", err)
	}

	items := make([]models.Observable, 0, len(parsed.Queries))
	for _, q := range parsed.Queries {
		qType := normalizeHuntQueryType(q.Type)
		items = append(items, models.Observable{
			Type: models.ObservableTypeHuntQueries, Value: q.Query, Source: "huntqueries_extract",
			Detail: models.HuntQueryItem{Query: q.Query, Context: q.Context, Type: qType},
		})
	}

	tel := &models.LLMTelemetry{
		Model: agentCfg.Model, Provider: string(agentCfg.Provider),
		InputTokens: resp.Usage.InputTokens, OutputTokens: resp.Usage.OutputTokens, LatencyMS: latency.Milliseconds(),
	}
	return models.SubAgentResult{Items: items, Count: len(items)}, tel, nil
}

// normalizeHuntQueryType implements §9 "Dynamic field-name normalization":
// sub-agents may emit aliases for the same query platform; normalize at the
// adapter boundary to the canonical HuntQueryType.
func normalizeHuntQueryType(raw string) models.HuntQueryType {
	switch raw {
	case "kql", "kusto", "sentinel_kql":
		return models.HuntQueryTypeKQL
	case "splunk", "spl":
		return models.HuntQueryTypeSplunk
	case "elastic", "eql", "elasticsearch":
		return models.HuntQueryTypeElastic
	case "falcon", "crowdstrike", "crowdstrike_falcon":
		return models.HuntQueryTypeFalcon
	case "sentinelone", "s1", "sentinel_one":
		return models.HuntQueryTypeSentinelOne
	default:
		return models.HuntQueryTypeOther
	}
}
