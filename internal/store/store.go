package store

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres is the pgx-backed Repository. Embeddings live in a pgvector
// column so near-duplicate scans run inside the database.
type Postgres struct {
	pool *pgxpool.Pool
}

func NewPostgres(ctx context.Context, databaseURL string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

// EnsureSchema creates the patterns table and its indexes when missing.
func (s *Postgres) EnsureSchema(ctx context.Context, dim int) error {
	ddl := fmt.Sprintf(`
		CREATE EXTENSION IF NOT EXISTS vector;
		CREATE TABLE IF NOT EXISTS patterns (
			id             uuid PRIMARY KEY,
			concept        text NOT NULL,
			content        bytea NOT NULL,
			entities       jsonb NOT NULL DEFAULT '[]',
			sentiment      double precision NOT NULL DEFAULT 0,
			confidence     double precision NOT NULL,
			feedback_score double precision NOT NULL DEFAULT 0,
			source         text NOT NULL,
			title          text NOT NULL DEFAULT '',
			url            text NOT NULL DEFAULT '',
			output_id      text,
			embedding      vector(%d),
			created_at     timestamptz NOT NULL DEFAULT now(),
			updated_at     timestamptz NOT NULL DEFAULT now()
		);
		CREATE UNIQUE INDEX IF NOT EXISTS patterns_output_id_idx ON patterns (output_id) WHERE output_id IS NOT NULL;
		CREATE INDEX IF NOT EXISTS patterns_concept_updated_idx ON patterns (concept, updated_at DESC);
		CREATE INDEX IF NOT EXISTS patterns_source_idx ON patterns (source);`, dim)
	if _, err := s.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

func (s *Postgres) Close() error {
	s.pool.Close()
	return nil
}

// pgVector formats a float64 slice as a pgvector-compatible string literal, e.g. "[0.1,0.2,0.3]".
func pgVector(v []float64) string {
	parts := make([]string, len(v))
	for i, f := range v {
		parts[i] = strconv.FormatFloat(f, 'g', -1, 64)
	}
	return "[" + strings.Join(parts, ",") + "]"
}

// parsePgVector parses a pgvector string like "[0.1,0.2,0.3]" into []float64.
func parsePgVector(s string) ([]float64, error) {
	if len(s) < 2 || s[0] != '[' || s[len(s)-1] != ']' {
		return nil, fmt.Errorf("invalid vector format")
	}
	s = s[1 : len(s)-1]
	if s == "" {
		return []float64{}, nil
	}
	parts := strings.Split(s, ",")
	result := make([]float64, len(parts))
	for i, part := range parts {
		val, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return nil, fmt.Errorf("parse float %q: %w", part, err)
		}
		result[i] = val
	}
	return result, nil
}
