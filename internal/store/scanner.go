package store

import (
	"context"
	"fmt"
)

// SimilarPair is two patterns whose embeddings are closer than a threshold.
type SimilarPair struct {
	ID1        string
	ID2        string
	Similarity float64
}

// FindSimilarPairs returns pattern pairs with cosine similarity above
// threshold using pgvector, most similar first.
func (s *Postgres) FindSimilarPairs(ctx context.Context, threshold float64) ([]SimilarPair, error) {
	query := `
		SELECT a.id::text, b.id::text, 1 - (a.embedding <=> b.embedding) AS similarity
		FROM patterns a, patterns b
		WHERE a.id < b.id
		  AND a.embedding IS NOT NULL AND b.embedding IS NOT NULL
		  AND 1 - (a.embedding <=> b.embedding) > $1
		ORDER BY similarity DESC`

	rows, err := s.pool.Query(ctx, query, threshold)
	if err != nil {
		return nil, fmt.Errorf("query similar patterns: %w", err)
	}
	defer rows.Close()

	var pairs []SimilarPair
	for rows.Next() {
		var pair SimilarPair
		if err := rows.Scan(&pair.ID1, &pair.ID2, &pair.Similarity); err != nil {
			return nil, fmt.Errorf("scan similar pair: %w", err)
		}
		pairs = append(pairs, pair)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return pairs, nil
}
