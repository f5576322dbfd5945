package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/MikeSquared-Agency/casi/internal/casierr"
)

const patternColumns = `id::text, concept, content, entities, sentiment, confidence, feedback_score,
	source, title, url, coalesce(output_id, ''), coalesce(embedding::text, ''), created_at, updated_at`

// Insert writes a pattern. A conflicting id or output id is skipped.
func (s *Postgres) Insert(ctx context.Context, p Pattern) (string, error) {
	var embedding any
	if len(p.Embedding) > 0 {
		embedding = pgVector(p.Embedding)
	}
	var outputID any
	if p.OutputID != "" {
		outputID = p.OutputID
	}
	entities := p.Entities
	if entities == nil {
		entities = []Entity{}
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO patterns (id, concept, content, entities, sentiment, confidence, feedback_score, source, title, url, output_id, embedding, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT DO NOTHING`,
		p.ID, p.Concept, p.Content, entities, p.Sentiment, ClampConfidence(p.Confidence, 1), p.FeedbackScore,
		p.Source, p.Title, p.URL, outputID, embedding, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return "", fmt.Errorf("insert pattern: %w", err)
	}
	return p.ID, nil
}

// FindByConceptOrKeywords runs q against the patterns table.
func (s *Postgres) FindByConceptOrKeywords(ctx context.Context, q Query) ([]Pattern, error) {
	args := []any{q.MinConfidence}
	query := `SELECT ` + patternColumns + ` FROM patterns WHERE confidence >= $1`

	if terms := LowerTerms(q.Terms); len(terms) > 0 {
		args = append(args, terms)
		query += `
		  AND (lower(concept) = ANY($2)
		    OR EXISTS (SELECT 1 FROM unnest($2::text[]) t WHERE strpos(lower(concept), t) > 0)
		    OR EXISTS (SELECT 1 FROM jsonb_array_elements(entities) e WHERE lower(e->>'value') = ANY($2)))`
	}
	query += " ORDER BY " + OrderBy(q.Sort)
	if q.Limit > 0 {
		args = append(args, q.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query patterns: %w", err)
	}
	defer rows.Close()

	var out []Pattern
	for rows.Next() {
		p, err := scanPattern(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return out, nil
}

// UpdateFeedback applies d to the pattern stored under outputID.
func (s *Postgres) UpdateFeedback(ctx context.Context, outputID string, d FeedbackDelta) error {
	ceiling := d.Ceiling
	if ceiling <= 0 {
		ceiling = 1
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE patterns
		SET confidence = LEAST(GREATEST(confidence + $1, 0), $2),
		    feedback_score = feedback_score + $3,
		    updated_at = now()
		WHERE output_id = $4`,
		d.Confidence, ceiling, d.FeedbackScore, outputID,
	)
	if err != nil {
		return fmt.Errorf("update feedback: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("output %s: %w", outputID, casierr.ErrNotFound)
	}
	return nil
}

// DeleteMany removes every pattern matching f.
func (s *Postgres) DeleteMany(ctx context.Context, f Filter) (int64, error) {
	where, args := filterSQL(f)
	tag, err := s.pool.Exec(ctx, `DELETE FROM patterns`+where, args...)
	if err != nil {
		return 0, fmt.Errorf("delete patterns: %w", err)
	}
	return tag.RowsAffected(), nil
}

// CountMatching counts patterns matching f.
func (s *Postgres) CountMatching(ctx context.Context, f Filter) (int64, error) {
	where, args := filterSQL(f)
	var n int64
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM patterns`+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count patterns: %w", err)
	}
	return n, nil
}

func filterSQL(f Filter) (string, []any) {
	var conds []string
	var args []any
	if len(f.IDs) > 0 {
		args = append(args, f.IDs)
		conds = append(conds, fmt.Sprintf("id::text = ANY($%d)", len(args)))
	}
	if f.ConfidenceBelow > 0 {
		args = append(args, f.ConfidenceBelow)
		conds = append(conds, fmt.Sprintf("confidence < $%d", len(args)))
	}
	if !f.UpdatedBefore.IsZero() {
		args = append(args, f.UpdatedBefore)
		conds = append(conds, fmt.Sprintf("updated_at < $%d", len(args)))
	}
	if f.Source != "" {
		args = append(args, f.Source)
		conds = append(conds, fmt.Sprintf("source = $%d", len(args)))
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func scanPattern(row pgx.Row) (Pattern, error) {
	var p Pattern
	var embedding string
	err := row.Scan(&p.ID, &p.Concept, &p.Content, &p.Entities, &p.Sentiment, &p.Confidence, &p.FeedbackScore,
		&p.Source, &p.Title, &p.URL, &p.OutputID, &embedding, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return Pattern{}, fmt.Errorf("scan pattern: %w", err)
	}
	if embedding != "" {
		// Malformed vectors are left nil and recomputed by the pruner.
		if v, err := parsePgVector(embedding); err == nil {
			p.Embedding = v
		}
	}
	return p, nil
}
