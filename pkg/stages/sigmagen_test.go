package stages

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ctihunt/workflowengine/pkg/models"
	"github.com/ctihunt/workflowengine/pkg/workflow"
)

const validSigmaYAML = `title: Suspicious cmdline
logsource:
  product: windows
detection:
  selection:
    CommandLine|contains: "whoami"
  condition: selection
`

const invalidSigmaYAML = `title: missing logsource
detection:
  selection:
    CommandLine|contains: "whoami"
  condition: selection
`

func TestSigmaGenSkipsWhenNoExtractionAndFallbackDisabled(t *testing.T) {
	s := &SigmaGen{Gateway: &fakeGateway{responses: []string{validSigmaYAML}}, CandidatesPerRun: 1}

	out, err := s.Execute(context.Background(), workflow.StageInput{
		Article: &models.Article{},
		Config:  baseConfig(models.StageSigmaGen),
		Prior:   map[models.StageName]models.StageOutput{},
	})
	require.NoError(t, err)
	assert.Empty(t, out.Output.(models.SigmaOutput).Rules)
}

func TestSigmaGenUsesExtractionContentWhenHuntablesPresent(t *testing.T) {
	gw := &fakeGateway{responses: []string{validSigmaYAML}}
	s := &SigmaGen{Gateway: gw, CandidatesPerRun: 1}

	out, err := s.Execute(context.Background(), workflow.StageInput{
		Article: &models.Article{},
		Config:  baseConfig(models.StageSigmaGen),
		Prior: map[models.StageName]models.StageOutput{
			models.StageExtractSupervisor: models.ExtractOutput{Content: "cmdline: whoami", DiscreteHuntablesCount: 1},
		},
	})
	require.NoError(t, err)
	result := out.Output.(models.SigmaOutput)
	require.Len(t, result.Rules, 1)
	assert.Equal(t, strings.TrimSpace(validSigmaYAML), result.Rules[0].YAMLText)
	assert.Len(t, result.AttemptLog, 1)
	assert.True(t, result.AttemptLog[0].Valid)
}

func TestSigmaGenFallsBackToFilteredContentWhenEnabled(t *testing.T) {
	gw := &fakeGateway{responses: []string{validSigmaYAML}}
	s := &SigmaGen{Gateway: gw, CandidatesPerRun: 1}
	cfg := baseConfig(models.StageSigmaGen)
	cfg.SigmaFallbackEnabled = true

	out, err := s.Execute(context.Background(), workflow.StageInput{
		Article: &models.Article{FilteredContent: "some huntable content"},
		Config:  cfg,
		Prior:   map[models.StageName]models.StageOutput{},
	})
	require.NoError(t, err)
	require.Len(t, out.Output.(models.SigmaOutput).Rules, 1)
}

// TestSigmaGenRetriesInvalidCandidateWithFeedback covers §4.3.e's per-
// candidate retry budget: an invalid rule on the first attempt must be
// retried (fed validator errors), succeeding within MaxStageAttempts.
func TestSigmaGenRetriesInvalidCandidateWithFeedback(t *testing.T) {
	gw := &fakeGateway{responses: []string{invalidSigmaYAML, validSigmaYAML}}
	s := &SigmaGen{Gateway: gw, CandidatesPerRun: 1}

	out, err := s.Execute(context.Background(), workflow.StageInput{
		Article: &models.Article{},
		Config:  baseConfig(models.StageSigmaGen),
		Prior: map[models.StageName]models.StageOutput{
			models.StageExtractSupervisor: models.ExtractOutput{Content: "x", DiscreteHuntablesCount: 1},
		},
	})
	require.NoError(t, err)
	result := out.Output.(models.SigmaOutput)
	require.Len(t, result.Rules, 1)
	require.Len(t, result.AttemptLog, 2)
	assert.False(t, result.AttemptLog[0].Valid)
	assert.True(t, result.AttemptLog[1].Valid)
}

func TestSigmaGenExhaustsAttemptsWithoutProducingRule(t *testing.T) {
	gw := &fakeGateway{responses: []string{invalidSigmaYAML}}
	s := &SigmaGen{Gateway: gw, CandidatesPerRun: 1}

	out, err := s.Execute(context.Background(), workflow.StageInput{
		Article: &models.Article{},
		Config:  baseConfig(models.StageSigmaGen),
		Prior: map[models.StageName]models.StageOutput{
			models.StageExtractSupervisor: models.ExtractOutput{Content: "x", DiscreteHuntablesCount: 1},
		},
	})
	require.NoError(t, err)
	result := out.Output.(models.SigmaOutput)
	assert.Empty(t, result.Rules)
	assert.Len(t, result.AttemptLog, workflow.MaxStageAttempts)
}
