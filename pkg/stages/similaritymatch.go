package stages

import (
	"context"

	"github.com/ctihunt/workflowengine/pkg/llmgateway"
	"github.com/ctihunt/workflowengine/pkg/models"
	"github.com/ctihunt/workflowengine/pkg/similarity"
	"github.com/ctihunt/workflowengine/pkg/workflow"
)

// SimilarityMatch computes, for each generated Sigma rule, embedding-based
// k-NN matches against the Rule Corpus Index and classifies each match
// (§4.3.f).
type SimilarityMatch struct {
	Gateway llmgateway.Gateway
	Index   similarity.Index
}

func (s *SimilarityMatch) Name() models.StageName { return models.StageSimilarityMatch }

func (s *SimilarityMatch) Execute(ctx context.Context, in workflow.StageInput) (*workflow.StageOutcome, error) {
	sigmaOut, ok := in.Prior[models.StageSigmaGen].(models.SigmaOutput)
	if !ok || len(sigmaOut.Rules) == 0 {
		return &workflow.StageOutcome{Output: models.SimilarityOutput{}}, nil
	}

	k := in.Config.SimilarityK
	if k <= 0 {
		k = 10
	}

	var matches []models.RuleSimilarity
	for ruleIdx, rule := range sigmaOut.Rules {
		embedding64, err := s.embed(ctx, rule.YAMLText)
		if err != nil {
			return nil, err
		}
		corpusMatches, err := s.Index.KNN(ctx, embedding64, k)
		if err != nil {
			return nil, err
		}
		for _, corpusRule := range corpusMatches {
			metrics, err := similarity.Compare(rule.YAMLText, corpusRule.YAMLText)
			if err != nil {
				return nil, &workflow.ValidationError{Messages: []string{err.Error()}}
			}
			matches = append(matches, models.RuleSimilarity{
				RuleIndex:            ruleIdx,
				CorpusRuleID:         corpusRule.ID,
				AtomJaccard:          metrics.AtomJaccard,
				LogicShapeSimilarity: metrics.LogicShapeSimilarity,
				WeightedSimilarity:   metrics.WeightedSimilarity,
				Classification:       metrics.Classification,
			})
		}
	}

	return &workflow.StageOutcome{Output: models.SimilarityOutput{Matches: matches}}, nil
}

func (s *SimilarityMatch) embed(ctx context.Context, text string) ([]float64, error) {
	vec32, err := s.Gateway.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	vec64 := make([]float64, len(vec32))
	for i, v := range vec32 {
		vec64[i] = float64(v)
	}
	return vec64, nil
}
