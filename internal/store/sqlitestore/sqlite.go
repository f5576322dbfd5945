package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/MikeSquared-Agency/casi/internal/casierr"
	"github.com/MikeSquared-Agency/casi/internal/store"
)

type Store struct {
	db *sql.DB
}

var _ store.Repository = (*Store)(nil)

// Open opens (and if needed creates) the database at path with WAL mode.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000"} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}
	if err := initSchema(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func initSchema(ctx context.Context, db *sql.DB) error {
	schema := `
CREATE TABLE IF NOT EXISTS patterns (
	id             TEXT PRIMARY KEY,
	concept        TEXT NOT NULL,
	content        BLOB NOT NULL,
	entities       TEXT NOT NULL DEFAULT '[]',
	sentiment      REAL NOT NULL DEFAULT 0,
	confidence     REAL NOT NULL,
	feedback_score REAL NOT NULL DEFAULT 0,
	source         TEXT NOT NULL,
	title          TEXT NOT NULL DEFAULT '',
	url            TEXT NOT NULL DEFAULT '',
	output_id      TEXT UNIQUE,
	embedding      TEXT,
	created_at     INTEGER NOT NULL,
	updated_at     INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_patterns_concept ON patterns(concept, updated_at DESC);
CREATE INDEX IF NOT EXISTS idx_patterns_source ON patterns(source);
`
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Insert(ctx context.Context, p store.Pattern) (string, error) {
	entities, err := json.Marshal(nonNil(p.Entities))
	if err != nil {
		return "", fmt.Errorf("marshal entities: %w", err)
	}
	var embedding, outputID any
	if len(p.Embedding) > 0 {
		raw, err := json.Marshal(p.Embedding)
		if err != nil {
			return "", fmt.Errorf("marshal embedding: %w", err)
		}
		embedding = string(raw)
	}
	if p.OutputID != "" {
		outputID = p.OutputID
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO patterns (id, concept, content, entities, sentiment, confidence, feedback_score, source, title, url, output_id, embedding, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Concept, p.Content, string(entities), p.Sentiment, store.ClampConfidence(p.Confidence, 1), p.FeedbackScore,
		p.Source, p.Title, p.URL, outputID, embedding, p.CreatedAt.UnixNano(), p.UpdatedAt.UnixNano(),
	)
	if err != nil {
		return "", fmt.Errorf("insert pattern: %w", err)
	}
	return p.ID, nil
}

func (s *Store) FindByConceptOrKeywords(ctx context.Context, q store.Query) ([]store.Pattern, error) {
	query := `SELECT id, concept, content, entities, sentiment, confidence, feedback_score, source, title, url,
		coalesce(output_id, ''), coalesce(embedding, ''), created_at, updated_at
		FROM patterns WHERE confidence >= ?`
	args := []any{q.MinConfidence}

	if terms := store.LowerTerms(q.Terms); len(terms) > 0 {
		ors := make([]string, 0, len(terms))
		for _, t := range terms {
			ors = append(ors, `(instr(lower(concept), ?) > 0 OR EXISTS (
				SELECT 1 FROM json_each(patterns.entities) e WHERE lower(json_extract(e.value, '$.value')) = ?))`)
			args = append(args, t, t)
		}
		query += " AND (" + strings.Join(ors, " OR ") + ")"
	}
	query += " ORDER BY " + store.OrderBy(q.Sort)
	if q.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, q.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query patterns: %w", err)
	}
	defer rows.Close()

	var out []store.Pattern
	for rows.Next() {
		var (
			p                   store.Pattern
			entities, embedding string
			created, updated    int64
		)
		if err := rows.Scan(&p.ID, &p.Concept, &p.Content, &entities, &p.Sentiment, &p.Confidence, &p.FeedbackScore,
			&p.Source, &p.Title, &p.URL, &p.OutputID, &embedding, &created, &updated); err != nil {
			return nil, fmt.Errorf("scan pattern: %w", err)
		}
		if err := json.Unmarshal([]byte(entities), &p.Entities); err != nil {
			return nil, fmt.Errorf("decode entities for %s: %w", p.ID, err)
		}
		if embedding != "" {
			_ = json.Unmarshal([]byte(embedding), &p.Embedding)
		}
		p.CreatedAt = time.Unix(0, created).UTC()
		p.UpdatedAt = time.Unix(0, updated).UTC()
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) UpdateFeedback(ctx context.Context, outputID string, d store.FeedbackDelta) error {
	ceiling := d.Ceiling
	if ceiling <= 0 {
		ceiling = 1
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE patterns
		SET confidence = MIN(MAX(confidence + ?, 0), ?),
		    feedback_score = feedback_score + ?,
		    updated_at = ?
		WHERE output_id = ?`,
		d.Confidence, ceiling, d.FeedbackScore, time.Now().UnixNano(), outputID,
	)
	if err != nil {
		return fmt.Errorf("update feedback: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update feedback: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("output %s: %w", outputID, casierr.ErrNotFound)
	}
	return nil
}

func (s *Store) DeleteMany(ctx context.Context, f store.Filter) (int64, error) {
	where, args := filterSQL(f)
	res, err := s.db.ExecContext(ctx, "DELETE FROM patterns"+where, args...)
	if err != nil {
		return 0, fmt.Errorf("delete patterns: %w", err)
	}
	return res.RowsAffected()
}

func (s *Store) CountMatching(ctx context.Context, f store.Filter) (int64, error) {
	where, args := filterSQL(f)
	var n int64
	if err := s.db.QueryRowContext(ctx, "SELECT count(*) FROM patterns"+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count patterns: %w", err)
	}
	return n, nil
}

func filterSQL(f store.Filter) (string, []any) {
	var conds []string
	var args []any
	if len(f.IDs) > 0 {
		marks := strings.TrimSuffix(strings.Repeat("?,", len(f.IDs)), ",")
		conds = append(conds, "id IN ("+marks+")")
		for _, id := range f.IDs {
			args = append(args, id)
		}
	}
	if f.ConfidenceBelow > 0 {
		conds = append(conds, "confidence < ?")
		args = append(args, f.ConfidenceBelow)
	}
	if !f.UpdatedBefore.IsZero() {
		conds = append(conds, "updated_at < ?")
		args = append(args, f.UpdatedBefore.UnixNano())
	}
	if f.Source != "" {
		conds = append(conds, "source = ?")
		args = append(args, f.Source)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func nonNil(es []store.Entity) []store.Entity {
	if es == nil {
		return []store.Entity{}
	}
	return es
}
