package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ctihunt/workflowengine/pkg/models"
)

// TestMergeExtractionOrdersByTypeThenPosition covers §8 property 6: the
// merged Observables list is sorted by type then by original index within
// that type, regardless of map iteration order.
func TestMergeExtractionOrdersByTypeThenPosition(t *testing.T) {
	sub := map[models.ObservableType]models.SubAgentResult{
		models.ObservableTypeHuntQueries: {
			Count: 1,
			Items: []models.Observable{{Type: models.ObservableTypeHuntQueries, Value: "hunt1"}},
		},
		models.ObservableTypeCmdline: {
			Count: 2,
			Items: []models.Observable{
				{Type: models.ObservableTypeCmdline, Value: "cmd1"},
				{Type: models.ObservableTypeCmdline, Value: "cmd2"},
			},
		},
		models.ObservableTypeProcessLineage: {
			Count: 1,
			Items: []models.Observable{{Type: models.ObservableTypeProcessLineage, Value: "lineage1"}},
		},
	}

	out := MergeExtraction(sub)

	require.Len(t, out.Observables, 4)
	assert.Equal(t, []string{"cmd1", "cmd2", "lineage1", "hunt1"}, valuesOf(out.Observables))
	assert.Equal(t, 4, out.DiscreteHuntablesCount)
}

func TestMergeExtractionUnknownTypeSortsLast(t *testing.T) {
	sub := map[models.ObservableType]models.SubAgentResult{
		"exotic": {Count: 1, Items: []models.Observable{{Type: "exotic", Value: "x"}}},
		models.ObservableTypeCmdline: {Count: 1, Items: []models.Observable{{Type: models.ObservableTypeCmdline, Value: "cmd1"}}},
	}

	out := MergeExtraction(sub)
	assert.Equal(t, []string{"cmd1", "x"}, valuesOf(out.Observables))
}

// TestMergeExtractionDiscreteHuntablesCountSumsSubResults covers §8's
// discrete_huntables_count-is-the-sum invariant: the total must match the
// sum of each sub-agent's own Count, not len(Observables). Count and Items
// are set independently here so the test can tell which one the merge sums.
func TestMergeExtractionDiscreteHuntablesCountSumsSubResults(t *testing.T) {
	sub := map[models.ObservableType]models.SubAgentResult{
		models.ObservableTypeCmdline: {
			Count: 3, // deliberately differs from len(Items)
			Items: []models.Observable{{Type: models.ObservableTypeCmdline, Value: "cmd1"}},
		},
	}

	out := MergeExtraction(sub)
	assert.Equal(t, 3, out.DiscreteHuntablesCount)
	assert.Len(t, out.Observables, 1)
}

func valuesOf(obs []models.Observable) []string {
	out := make([]string, len(obs))
	for i, o := range obs {
		out[i] = o.Value
	}
	return out
}
