package stages

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ctihunt/workflowengine/pkg/llmgateway"
	"github.com/ctihunt/workflowengine/pkg/models"
	"github.com/ctihunt/workflowengine/pkg/workflow"
)

const (
	chunkSize    = 1000
	chunkOverlap = 200
)

// JunkFilter chunks the article and classifies each chunk huntable/junk
// (§4.3.b). Chunk classification runs sequentially: §5 reserves intra-
// execution parallelism for the ExtractSupervisor fan-out alone.
type JunkFilter struct {
	Gateway llmgateway.Gateway
}

func (s *JunkFilter) Name() models.StageName { return models.StageJunkFilter }

func (s *JunkFilter) Execute(ctx context.Context, in workflow.StageInput) (*workflow.StageOutcome, error) {
	agentCfg, ok := in.Config.AgentModels[string(models.StageJunkFilter)]
	if !ok {
		return nil, &workflow.ConfigError{Detail: "no agent_models entry for junk_filter"}
	}
	prompt := in.Config.AgentPrompts[string(models.StageJunkFilter)]

	chunks := chunkText(in.Article.Content, chunkSize, chunkOverlap)
	if len(chunks) == 0 {
		// Empty article content: no chunks to classify at all, which
		// vacuously yields zero huntable chunks (§8 boundary behavior).
		return &workflow.StageOutcome{Output: models.JunkFilterOutput{Junk: true}}, nil
	}

	classifications := make([]models.ChunkClassification, len(chunks))
	var totalIn, totalOut int
	var totalLatency time.Duration

	for i, chunk := range chunks {
		req := llmgateway.Request{
			Provider:    string(agentCfg.Provider),
			Model:       agentCfg.Model,
			Temperature: agentCfg.Temperature,
			TopP:        agentCfg.TopP,
			MaxTokens:   agentCfg.MaxTokens,
			Messages: []llmgateway.Message{
				{Role: "system", Content: prompt},
				{Role: "user", Content: chunk},
			},
		}
		start := time.Now()
		resp, err := s.Gateway.Complete(ctx, req)
		if err != nil {
			return nil, err
		}
		totalLatency += time.Since(start)
		totalIn += resp.Usage.InputTokens
		totalOut += resp.Usage.OutputTokens

		huntable, err := parseHuntableVerdict(resp.Text)
		if err != nil {
			return nil, &workflow.ValidationError{Messages: []string{err.Error()}}
		}
		classifications[i] = models.ChunkClassification{Index: i, Huntable: huntable, Text: chunk}
	}

	minHuntable := in.Config.MinHuntableChunks
	if minHuntable <= 0 {
		minHuntable = 1
	}

	huntableCount := 0
	var kept []string
	for _, c := range classifications {
		if c.Huntable {
			huntableCount++
			kept = append(kept, c.Text)
		}
	}

	output := models.JunkFilterOutput{
		Junk:            huntableCount < minHuntable,
		Chunks:          classifications,
		HuntableChunks:  huntableCount,
		FilteredContent: strings.Join(kept, "\n---\n"),
	}

	return &workflow.StageOutcome{
		Output: output,
		Telemetry: &models.LLMTelemetry{
			Model: agentCfg.Model, Provider: string(agentCfg.Provider),
			InputTokens: totalIn, OutputTokens: totalOut, LatencyMS: totalLatency.Milliseconds(),
		},
	}, nil
}

// chunkText splits text into fixed-size overlapping windows (§4.3.b).
func chunkText(text string, size, overlap int) []string {
	if len(text) == 0 {
		return nil
	}
	step := size - overlap
	if step <= 0 {
		step = size
	}
	var chunks []string
	for start := 0; start < len(text); start += step {
		end := start + size
		if end > len(text) {
			end = len(text)
		}
		chunks = append(chunks, text[start:end])
		if end == len(text) {
			break
		}
	}
	return chunks
}

func parseHuntableVerdict(text string) (bool, error) {
	word := strings.ToLower(strings.TrimSpace(text))
	switch word {
	case "huntable":
		return true, nil
	case "junk":
		return false, nil
	default:
		return false, fmt.Errorf("junk_filter: unrecognized verdict %q", text)
	}
}
