package stages

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ctihunt/workflowengine/pkg/llmgateway"
	"github.com/ctihunt/workflowengine/pkg/models"
	"github.com/ctihunt/workflowengine/pkg/workflow"
)

// fakeGateway answers every Complete call from a queue of canned responses,
// consumed in call order, so multi-call stages (JunkFilter's per-chunk loop)
// can be driven deterministically without a real LLM backend.
type fakeGateway struct {
	responses []string
	err       error
	calls     int
}

func (f *fakeGateway) Complete(ctx context.Context, req llmgateway.Request) (*llmgateway.Response, error) {
	if f.err != nil {
		return nil, f.err
	}
	text := f.responses[f.calls%len(f.responses)]
	f.calls++
	return &llmgateway.Response{Text: text, Usage: llmgateway.Usage{InputTokens: 10, OutputTokens: 5}}, nil
}

func (f *fakeGateway) Embed(ctx context.Context, text string) ([]float32, error) { return nil, nil }

func baseConfig(stage models.StageName) models.WorkflowConfig {
	return models.WorkflowConfig{
		AgentModels:  map[string]models.AgentModelConfig{string(stage): {Model: "m", Provider: "anthropic"}},
		AgentPrompts: map[string]string{string(stage): "system prompt"},
	}
}

func TestOSDetectParsesRecognizedPlatform(t *testing.T) {
	gw := &fakeGateway{responses: []string{"Linux"}}
	s := &OSDetect{Gateway: gw}

	out, err := s.Execute(context.Background(), workflow.StageInput{
		Article: &models.Article{Content: "some content"},
		Config:  baseConfig(models.StageOSDetect),
	})
	require.NoError(t, err)
	assert.Equal(t, models.OSPlatformLinux, out.Output.(models.OSDetectOutput).Platform)
}

func TestOSDetectRejectsUnrecognizedLabel(t *testing.T) {
	gw := &fakeGateway{responses: []string{"not a platform"}}
	s := &OSDetect{Gateway: gw}

	_, err := s.Execute(context.Background(), workflow.StageInput{
		Article: &models.Article{Content: "x"},
		Config:  baseConfig(models.StageOSDetect),
	})
	var verr *workflow.ValidationError
	require.ErrorAs(t, err, &verr)
}

func TestOSDetectMissingAgentConfigIsConfigError(t *testing.T) {
	s := &OSDetect{Gateway: &fakeGateway{responses: []string{"linux"}}}

	_, err := s.Execute(context.Background(), workflow.StageInput{
		Article: &models.Article{Content: "x"},
		Config:  models.WorkflowConfig{},
	})
	var cerr *workflow.ConfigError
	require.ErrorAs(t, err, &cerr)
}

func TestJunkFilterClassifiesChunksAndComputesHuntableCount(t *testing.T) {
	gw := &fakeGateway{responses: []string{"huntable", "junk", "huntable"}}
	s := &JunkFilter{Gateway: gw}
	cfg := baseConfig(models.StageJunkFilter)
	cfg.MinHuntableChunks = 1

	content := make([]byte, chunkSize*2+1)
	for i := range content {
		content[i] = 'a'
	}

	out, err := s.Execute(context.Background(), workflow.StageInput{
		Article: &models.Article{Content: string(content)},
		Config:  cfg,
	})
	require.NoError(t, err)
	result := out.Output.(models.JunkFilterOutput)
	assert.False(t, result.Junk)
	assert.True(t, result.HuntableChunks >= 1)
}

func TestJunkFilterEmptyContentIsVacuouslyJunk(t *testing.T) {
	s := &JunkFilter{Gateway: &fakeGateway{responses: []string{"huntable"}}}

	out, err := s.Execute(context.Background(), workflow.StageInput{
		Article: &models.Article{Content: ""},
		Config:  baseConfig(models.StageJunkFilter),
	})
	require.NoError(t, err)
	assert.True(t, out.Output.(models.JunkFilterOutput).Junk)
}

func TestJunkFilterBelowMinHuntableChunksIsJunk(t *testing.T) {
	gw := &fakeGateway{responses: []string{"junk"}}
	s := &JunkFilter{Gateway: gw}
	cfg := baseConfig(models.StageJunkFilter)
	cfg.MinHuntableChunks = 2

	out, err := s.Execute(context.Background(), workflow.StageInput{
		Article: &models.Article{Content: "short content"},
		Config:  cfg,
	})
	require.NoError(t, err)
	assert.True(t, out.Output.(models.JunkFilterOutput).Junk)
}

func TestRankParsesScoreAndRationale(t *testing.T) {
	gw := &fakeGateway{responses: []string{"7.5|looks like a real intrusion technique"}}
	s := &Rank{Gateway: gw}

	out, err := s.Execute(context.Background(), workflow.StageInput{
		Article: &models.Article{Content: "x"},
		Config:  baseConfig(models.StageRank),
	})
	require.NoError(t, err)
	result := out.Output.(models.RankOutput)
	assert.Equal(t, 7.5, result.Score)
	assert.Equal(t, "looks like a real intrusion technique", result.Rationale)
}

func TestRankRejectsOutOfRangeScore(t *testing.T) {
	gw := &fakeGateway{responses: []string{"15|too high"}}
	s := &Rank{Gateway: gw}

	_, err := s.Execute(context.Background(), workflow.StageInput{
		Article: &models.Article{Content: "x"},
		Config:  baseConfig(models.StageRank),
	})
	var verr *workflow.ValidationError
	require.ErrorAs(t, err, &verr)
}

func TestRankRejectsNonNumericScore(t *testing.T) {
	gw := &fakeGateway{responses: []string{"not-a-number|rationale"}}
	s := &Rank{Gateway: gw}

	_, err := s.Execute(context.Background(), workflow.StageInput{
		Article: &models.Article{Content: "x"},
		Config:  baseConfig(models.StageRank),
	})
	var verr *workflow.ValidationError
	require.ErrorAs(t, err, &verr)
}
