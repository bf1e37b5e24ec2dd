// Package models defines the data model shared across the catalog,
// workflow engine, and stage executors: articles, sources, executions,
// stage results, and the typed stage output variants.
package models

import "time"

// Source is a feed configuration. Created and edited by the collector
// subsystem; the engine only ever reads it.
type Source struct {
	ID               string
	URL              string
	RSSURL           string
	Active           bool
	CheckFrequencyS  int
	LookbackDays     int
	AllowFilters     []string
	DenyFilters      []string
}

// Article is a unit of CTI content harvested from a Source. Content is
// immutable once stored; Metadata may be appended by collectors after the
// fact (e.g. scoring passes).
type Article struct {
	ID                string
	SourceID          string
	CanonicalURL      string
	Title             string
	Content           string
	FilteredContent   string // set by JunkFilter; empty until that stage runs
	ContentHash       string
	PublishedAt       time.Time
	ThreatHuntingScore float64
	MLHuntScore       float64
	Metadata          map[string]any
}
