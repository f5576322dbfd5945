package store

import (
	"context"
	"sort"
	"strings"
	"time"
)

// Repository is the persistence contract for patterns. Implementations must
// be safe for concurrent use and must make Insert atomic: a conflicting id
// or output id is skipped, never merged.
type Repository interface {
	FindByConceptOrKeywords(ctx context.Context, q Query) ([]Pattern, error)
	Insert(ctx context.Context, p Pattern) (string, error)
	UpdateFeedback(ctx context.Context, outputID string, d FeedbackDelta) error
	DeleteMany(ctx context.Context, f Filter) (int64, error)
	CountMatching(ctx context.Context, f Filter) (int64, error)
	Close() error
}

// SortKey names a descending sort column.
type SortKey int

const (
	ByFeedbackScore SortKey = iota
	ByConfidence
	ByUpdatedAt
)

// DefaultSort is the retrieval order: feedback, then confidence, then recency.
var DefaultSort = []SortKey{ByFeedbackScore, ByConfidence, ByUpdatedAt}

// Query selects patterns whose concept contains any term, whose concept
// equals a term, or that carry an entity equal to a term. No terms matches
// every pattern. Limit <= 0 means unlimited.
type Query struct {
	Terms         []string
	MinConfidence float64
	Limit         int
	Sort          []SortKey
}

// Filter selects patterns for deletion or counting. Zero fields are
// ignored; the zero Filter matches everything.
type Filter struct {
	IDs             []string
	ConfidenceBelow float64
	UpdatedBefore   time.Time
	Source          string
}

// FeedbackDelta is applied to the pattern carrying an output id.
// Confidence is clamped to [0, Ceiling] after the change.
type FeedbackDelta struct {
	Confidence    float64
	FeedbackScore float64
	Ceiling       float64
}

// LowerTerms lowercases and drops blank terms.
func LowerTerms(terms []string) []string {
	out := make([]string, 0, len(terms))
	for _, t := range terms {
		if t = strings.ToLower(strings.TrimSpace(t)); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// Matches reports whether p satisfies q's term and confidence predicates.
// Backends without a query language use it directly.
func (q Query) Matches(p Pattern) bool {
	if p.Confidence < q.MinConfidence {
		return false
	}
	terms := LowerTerms(q.Terms)
	if len(terms) == 0 {
		return true
	}
	concept := strings.ToLower(p.Concept)
	for _, t := range terms {
		if strings.Contains(concept, t) {
			return true
		}
		for _, e := range p.Entities {
			if strings.ToLower(e.Value) == t {
				return true
			}
		}
	}
	return false
}

// Matches reports whether p satisfies every set field of f.
func (f Filter) Matches(p Pattern) bool {
	if len(f.IDs) > 0 {
		found := false
		for _, id := range f.IDs {
			if id == p.ID {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.ConfidenceBelow > 0 && p.Confidence >= f.ConfidenceBelow {
		return false
	}
	if !f.UpdatedBefore.IsZero() && !p.UpdatedAt.Before(f.UpdatedBefore) {
		return false
	}
	if f.Source != "" && p.Source != f.Source {
		return false
	}
	return true
}

// Apply returns p with the delta applied and UpdatedAt refreshed.
func (d FeedbackDelta) Apply(p Pattern, now time.Time) Pattern {
	ceiling := d.Ceiling
	if ceiling <= 0 {
		ceiling = 1
	}
	p.Confidence = ClampConfidence(p.Confidence+d.Confidence, ceiling)
	p.FeedbackScore += d.FeedbackScore
	p.UpdatedAt = now
	return p
}

// SortPatterns orders patterns descending by each key in turn; ids break
// remaining ties so the order is deterministic.
func SortPatterns(ps []Pattern, keys []SortKey) {
	if len(keys) == 0 {
		keys = DefaultSort
	}
	sort.SliceStable(ps, func(i, j int) bool {
		a, b := ps[i], ps[j]
		for _, k := range keys {
			switch k {
			case ByFeedbackScore:
				if a.FeedbackScore != b.FeedbackScore {
					return a.FeedbackScore > b.FeedbackScore
				}
			case ByConfidence:
				if a.Confidence != b.Confidence {
					return a.Confidence > b.Confidence
				}
			case ByUpdatedAt:
				if !a.UpdatedAt.Equal(b.UpdatedAt) {
					return a.UpdatedAt.After(b.UpdatedAt)
				}
			}
		}
		return a.ID < b.ID
	})
}

// OrderBy renders sort keys as a SQL ORDER BY list for the column names
// shared by the SQL backends.
func OrderBy(keys []SortKey) string {
	if len(keys) == 0 {
		keys = DefaultSort
	}
	cols := make([]string, 0, len(keys)+1)
	for _, k := range keys {
		switch k {
		case ByFeedbackScore:
			cols = append(cols, "feedback_score DESC")
		case ByConfidence:
			cols = append(cols, "confidence DESC")
		case ByUpdatedAt:
			cols = append(cols, "updated_at DESC")
		}
	}
	cols = append(cols, "id ASC")
	return strings.Join(cols, ", ")
}
