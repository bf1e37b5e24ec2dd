package similarity

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresIndex implements Index as brute-force cosine similarity over the
// sigma_corpus_rules table's embedding column. The corpus is expected to be
// small enough (thousands, not millions, of rules) that a full scan per
// SimilarityMatch call is acceptable; an ANN index is future work noted in
// DESIGN.md since no ANN library exists in the example pack.
type PostgresIndex struct {
	pool *pgxpool.Pool
}

// NewPostgresIndex wraps an existing pool (shared with pkg/catalog).
func NewPostgresIndex(pool *pgxpool.Pool) *PostgresIndex {
	return &PostgresIndex{pool: pool}
}

func (idx *PostgresIndex) KNN(ctx context.Context, query []float64, k int) ([]CorpusRule, error) {
	rows, err := idx.pool.Query(ctx, `SELECT id, yaml_text, embedding, tags FROM sigma_corpus_rules`)
	if err != nil {
		return nil, fmt.Errorf("similarity: query corpus: %w", err)
	}
	defer rows.Close()

	type scored struct {
		rule  CorpusRule
		score float64
	}
	var all []scored
	for rows.Next() {
		var r CorpusRule
		if err := rows.Scan(&r.ID, &r.YAMLText, &r.Embedding, &r.Tags); err != nil {
			return nil, fmt.Errorf("similarity: scan corpus row: %w", err)
		}
		all = append(all, scored{rule: r, score: cosineSimilarity(query, r.Embedding)})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.Slice(all, func(i, j int) bool { return all[i].score > all[j].score })
	if k > len(all) {
		k = len(all)
	}
	out := make([]CorpusRule, k)
	for i := 0; i < k; i++ {
		out[i] = all[i].rule
	}
	return out, nil
}

func cosineSimilarity(a, b []float64) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, magA, magB float64
	for i := range a {
		dot += a[i] * b[i]
		magA += a[i] * a[i]
		magB += b[i] * b[i]
	}
	if magA == 0 || magB == 0 {
		return 0
	}
	return dot / (math.Sqrt(magA) * math.Sqrt(magB))
}
