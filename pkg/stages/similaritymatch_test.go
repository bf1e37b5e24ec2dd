package stages

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ctihunt/workflowengine/pkg/models"
	"github.com/ctihunt/workflowengine/pkg/similarity"
	"github.com/ctihunt/workflowengine/pkg/workflow"
)

type fakeIndex struct {
	matches []similarity.CorpusRule
	err     error
}

func (f *fakeIndex) KNN(ctx context.Context, query []float64, k int) ([]similarity.CorpusRule, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.matches, nil
}

func TestSimilarityMatchSkipsWhenNoSigmaRules(t *testing.T) {
	s := &SimilarityMatch{Gateway: &fakeGateway{}, Index: &fakeIndex{}}

	out, err := s.Execute(context.Background(), workflow.StageInput{
		Prior: map[models.StageName]models.StageOutput{},
	})
	require.NoError(t, err)
	assert.Empty(t, out.Output.(models.SimilarityOutput).Matches)
}

func TestSimilarityMatchComparesAgainstEachCorpusMatch(t *testing.T) {
	gw := &fakeGateway{responses: []string{"embedding-call-ignored"}}
	index := &fakeIndex{matches: []similarity.CorpusRule{
		{ID: "corpus-1", YAMLText: validSigmaYAML},
	}}
	s := &SimilarityMatch{Gateway: gw, Index: index}

	out, err := s.Execute(context.Background(), workflow.StageInput{
		Config: models.WorkflowConfig{SimilarityK: 5},
		Prior: map[models.StageName]models.StageOutput{
			models.StageSigmaGen: models.SigmaOutput{Rules: []models.SigmaRule{{YAMLText: validSigmaYAML}}},
		},
	})
	require.NoError(t, err)
	matches := out.Output.(models.SimilarityOutput).Matches
	require.Len(t, matches, 1)
	assert.Equal(t, "corpus-1", matches[0].CorpusRuleID)
	assert.Equal(t, models.NoveltyDuplicate, matches[0].Classification)
}

func TestSimilarityMatchPropagatesIndexError(t *testing.T) {
	s := &SimilarityMatch{
		Gateway: &fakeGateway{responses: []string{"x"}},
		Index:   &fakeIndex{err: assert.AnError},
	}

	_, err := s.Execute(context.Background(), workflow.StageInput{
		Prior: map[models.StageName]models.StageOutput{
			models.StageSigmaGen: models.SigmaOutput{Rules: []models.SigmaRule{{YAMLText: validSigmaYAML}}},
		},
	})
	require.Error(t, err)
}
