// Package extract implements the ExtractSupervisor fan-out/fan-in stage
// (§4.3.d): CmdlineExtract, ProcTreeExtract, and HuntQueriesExtract run
// concurrently, each optionally followed by a QA pass, and the supervisor
// merges their results deterministically.
//
// Grounded on the teacher's SubAgentRunner.Dispatch/runSubAgent dispatch
// pattern, reimplemented with golang.org/x/sync/errgroup (jordigilh-kubernaut
// dependency) since this fan-out is a fixed bounded set invoked once per
// stage rather than an open-ended LLM-driven dispatch loop.
package extract

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/ctihunt/workflowengine/pkg/llmgateway"
	"github.com/ctihunt/workflowengine/pkg/models"
	"github.com/ctihunt/workflowengine/pkg/workflow"
)

// SubAgent is one of the three extractor types plus the optional QA pass.
type SubAgent interface {
	Type() models.ObservableType
	Extract(ctx context.Context, in workflow.StageInput) (models.SubAgentResult, *models.LLMTelemetry, error)
}

// Supervisor runs the enabled sub-agents concurrently and merges their
// results (§4.3.d).
type Supervisor struct {
	Gateway   llmgateway.Gateway
	SubAgents []SubAgent
	QA        *QA // nil disables the QA pass entirely
}

func (s *Supervisor) Name() models.StageName { return models.StageExtractSupervisor }

func (s *Supervisor) Execute(ctx context.Context, in workflow.StageInput) (*workflow.StageOutcome, error) {
	enabled := make([]SubAgent, 0, len(s.SubAgents))
	for _, sa := range s.SubAgents {
		if in.Config.EnabledSubAgents == nil || in.Config.EnabledSubAgents[sa.Type()] {
			enabled = append(enabled, sa)
		}
	}
	if len(enabled) == 0 {
		return nil, &workflow.ConfigError{Detail: "no sub-agents enabled for extract_supervisor"}
	}

	results := make(map[models.ObservableType]models.SubAgentResult, len(enabled))
	var telemetry []*models.LLMTelemetry
	var mu sync.Mutex

	// Concurrency discipline (§4.3.d, §5): sub-agents execute in parallel;
	// the supervisor waits for all to complete or fail. A single sub-agent's
	// failure is isolated — its items become empty with an error recorded —
	// so errgroup's functions never return an error themselves; isolation is
	// handled inside runOne.
	g, gctx := errgroup.WithContext(ctx)
	for _, sa := range enabled {
		sa := sa
		g.Go(func() error {
			result, tel, qaTel := s.runOne(gctx, sa, in)
			mu.Lock()
			results[sa.Type()] = result
			if tel != nil {
				telemetry = append(telemetry, tel)
			}
			if qaTel != nil {
				telemetry = append(telemetry, qaTel)
			}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait() // runOne never returns an error; isolation happens per sub-agent

	if allFailed(results) {
		return nil, &workflow.ValidationError{Messages: []string{"all extract sub-agents failed"}}
	}

	merged := workflow.MergeExtraction(results)
	return &workflow.StageOutcome{
		Output:    *merged,
		Telemetry: combineTelemetry(telemetry),
	}, nil
}

// runOne executes one sub-agent (and its optional QA pass), isolating any
// failure into the SubAgentResult.Error field rather than propagating it
// (§4.3.d "A sub-agent failure is isolated").
func (s *Supervisor) runOne(ctx context.Context, sa SubAgent, in workflow.StageInput) (models.SubAgentResult, *models.LLMTelemetry, *models.LLMTelemetry) {
	result, tel, err := sa.Extract(ctx, in)
	if err != nil {
		return models.SubAgentResult{Items: nil, Count: 0, Error: err.Error()}, tel, nil
	}

	if s.QA == nil || !in.Config.QAEnabled[string(sa.Type())] {
		return result, tel, nil
	}

	corrected, qaTel, err := s.QA.Review(ctx, sa.Type(), result, in)
	if err != nil {
		// QA failure: keep the pre-QA result rather than discarding work.
		return result, tel, qaTel
	}
	return corrected, tel, qaTel
}

func allFailed(results map[models.ObservableType]models.SubAgentResult) bool {
	for _, r := range results {
		if r.Error == "" {
			return false
		}
	}
	return true
}

func combineTelemetry(tel []*models.LLMTelemetry) *models.LLMTelemetry {
	if len(tel) == 0 {
		return nil
	}
	combined := &models.LLMTelemetry{Model: tel[0].Model, Provider: tel[0].Provider}
	for _, t := range tel {
		combined.InputTokens += t.InputTokens
		combined.OutputTokens += t.OutputTokens
		combined.LatencyMS += t.LatencyMS
	}
	return combined
}

