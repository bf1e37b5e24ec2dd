package models

// ObservableType discriminates the Observable sum type.
type ObservableType string

// Observable type constants, in the canonical sort order used by the
// ExtractSupervisor merge (§4.3.d / §8 property 6: sorted by type then by
// position in the items list).
const (
	ObservableTypeCmdline        ObservableType = "cmdline"
	ObservableTypeProcessLineage ObservableType = "process_lineage"
	ObservableTypeHuntQueries    ObservableType = "hunt_queries"
)

// observableTypeOrder fixes the deterministic merge order.
var observableTypeOrder = map[ObservableType]int{
	ObservableTypeCmdline:        0,
	ObservableTypeProcessLineage: 1,
	ObservableTypeHuntQueries:    2,
}

// ObservableTypeRank returns the sort rank for a type; unknown types sort last.
func ObservableTypeRank(t ObservableType) int {
	if r, ok := observableTypeOrder[t]; ok {
		return r
	}
	return len(observableTypeOrder)
}

// Observable is the typed, attributed extraction output the spec's §9
// "Dynamic typing -> tagged variants" note calls for: a huntable after
// typing and attribution. Value renders the item as a single display/search
// string; the concrete sub-type (accessible via Detail) carries structure.
type Observable struct {
	Type   ObservableType
	Value  string
	Source string // always "supervisor_aggregation" for merged output
	Detail ObservableDetail
}

// ObservableDetail is the marker interface implemented by the three
// observable payload shapes. Only ProcessLineageItem and HuntQueryItem carry
// extra structure beyond Value; CmdlineItem is a thin wrapper for symmetry.
type ObservableDetail interface{ isObservableDetail() }

// CmdlineItem is a verbatim command line extracted from an article.
type CmdlineItem struct {
	Value string
}

func (CmdlineItem) isObservableDetail() {}

// ProcessLineageItem is one parent/child process relationship.
type ProcessLineageItem struct {
	Parent     string
	Child      string
	Arguments  string
	Context    string
	SourceText string // required per §4.3.d rules
}

func (ProcessLineageItem) isObservableDetail() {}

// HuntQueryType enumerates the supported detection-query platforms.
type HuntQueryType string

// Hunt query platform constants.
const (
	HuntQueryTypeKQL         HuntQueryType = "kql"
	HuntQueryTypeSplunk      HuntQueryType = "splunk"
	HuntQueryTypeElastic     HuntQueryType = "elastic"
	HuntQueryTypeFalcon      HuntQueryType = "falcon"
	HuntQueryTypeSentinelOne HuntQueryType = "sentinelone"
	HuntQueryTypeOther       HuntQueryType = "other"
)

// HuntQueryItem is one hunt query extracted verbatim from a code block.
type HuntQueryItem struct {
	Query   string
	Type    HuntQueryType
	Context string
}

func (HuntQueryItem) isObservableDetail() {}
