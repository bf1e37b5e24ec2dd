// Package stages implements the single-call stage executors of §4.3: OSDetect,
// JunkFilter, and Rank. The fan-out ExtractSupervisor lives in its own
// subpackage (pkg/stages/extract) since it owns sub-agent concurrency;
// SigmaGen and SimilarityMatch likewise get their own files here since they
// depend on the sigmarule validator and similarity index respectively.
//
// Grounded on the teacher's pkg/agent/controller/single_call.go: one LLM
// call, parse the structured response, return a typed result or an error the
// engine's retry policy classifies.
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

// OSDetect classifies an article's target platform via a single LLM call
// returning a one-word label (§4.3.a).
type OSDetect struct {
	Gateway llmgateway.Gateway
}

func (s *OSDetect) Name() models.StageName { return models.StageOSDetect }

func (s *OSDetect) Execute(ctx context.Context, in workflow.StageInput) (*workflow.StageOutcome, error) {
	agentCfg, ok := in.Config.AgentModels[string(models.StageOSDetect)]
	if !ok {
		return nil, &workflow.ConfigError{Detail: "no agent_models entry for os_detect"}
	}
	prompt, ok := in.Config.AgentPrompts[string(models.StageOSDetect)]
	if !ok {
		return nil, &workflow.ConfigError{Detail: "no agent_prompts entry for os_detect"}
	}

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
			Content: fmt.Sprintf("Your previous answer was invalid: %s. Reply with exactly one word: windows, linux, macos, cross_platform, or unknown.", in.PriorError),
		})
	}

	start := time.Now()
	resp, err := s.Gateway.Complete(ctx, req)
	if err != nil {
		return nil, err
	}
	latency := time.Since(start)

	platform, err := parsePlatform(resp.Text)
	if err != nil {
		return nil, &workflow.ValidationError{Messages: []string{err.Error()}}
	}

	outcome := &workflow.StageOutcome{
		Output: models.OSDetectOutput{Platform: platform},
		Telemetry: &models.LLMTelemetry{
			Model: agentCfg.Model, Provider: string(agentCfg.Provider),
			InputTokens: resp.Usage.InputTokens, OutputTokens: resp.Usage.OutputTokens,
			LatencyMS: latency.Milliseconds(),
		},
	}
	return outcome, nil
}

func parsePlatform(text string) (models.OSPlatform, error) {
	word := strings.ToLower(strings.TrimSpace(text))
	switch models.OSPlatform(word) {
	case models.OSPlatformWindows, models.OSPlatformLinux, models.OSPlatformMacOS,
		models.OSPlatformCrossPlatform, models.OSPlatformUnknown:
		return models.OSPlatform(word), nil
	default:
		return "", fmt.Errorf("os_detect: unrecognized platform label %q", text)
	}
}
