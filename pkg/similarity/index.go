// Package similarity implements the Rule Corpus Index and SimilarityMatch's
// classification math (§4.3.f): k-NN lookup against indexed Sigma rules,
// Jaccard similarity of detection atoms, structural comparison of condition
// trees, and the weighted NOVEL/SIMILAR/DUPLICATE classification.
//
// No vector-search or ANN library exists anywhere in the retrieved example
// pack (every go.mod was checked); k-NN here is brute-force cosine
// similarity computed in Go against embeddings stored in Postgres
// double-precision arrays, which is the one component in this repo built
// directly on the standard library rather than a third-party library (see
// DESIGN.md).
package similarity

import "context"

// CorpusRule is one indexed Sigma rule (§3 "SigmaRule (indexed)").
type CorpusRule struct {
	ID        string
	YAMLText  string
	Embedding []float64
	Tags      []string
}

// Index is the read-only-ish Rule Corpus Index (§2 "Rule Corpus Index").
// Rebuilds happen offline; this repo only ever queries it (§5).
type Index interface {
	// KNN returns the k corpus rules whose embeddings are nearest to query
	// by cosine similarity, most similar first.
	KNN(ctx context.Context, query []float64, k int) ([]CorpusRule, error)
}
