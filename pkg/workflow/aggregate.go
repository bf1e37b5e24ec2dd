package workflow

import (
	"sort"
	"strings"

	"github.com/ctihunt/workflowengine/pkg/models"
)

// MergeExtraction implements the ExtractSupervisor fan-in merge (§4.3.d):
// observables sorted by type then by original index within that type
// (§5 "merged deterministically (sorted by type then by position in items
// list)", §8 property 6).
func MergeExtraction(subResults map[models.ObservableType]models.SubAgentResult) *models.ExtractOutput {
	types := make([]models.ObservableType, 0, len(subResults))
	for t := range subResults {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool {
		return models.ObservableTypeRank(types[i]) < models.ObservableTypeRank(types[j])
	})

	var observables []models.Observable
	var contentLines []string
	total := 0
	for _, t := range types {
		res := subResults[t]
		total += res.Count
		for _, item := range res.Items {
			item.Source = "supervisor_aggregation"
			observables = append(observables, item)
			contentLines = append(contentLines, item.Value)
		}
	}

	return &models.ExtractOutput{
		SubResults:             subResults,
		Observables:            observables,
		Content:                strings.Join(contentLines, "\n"),
		DiscreteHuntablesCount: total,
	}
}
