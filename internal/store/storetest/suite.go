// Package storetest holds the behavioural suite every Repository backend
// must pass.
package storetest

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/MikeSquared-Agency/casi/internal/casierr"
	"github.com/MikeSquared-Agency/casi/internal/store"
)

// Run exercises repo. newRepo must return an empty repository.
func Run(t *testing.T, newRepo func(t *testing.T) store.Repository) {
	t.Run("InsertAndFind", func(t *testing.T) { testInsertAndFind(t, newRepo(t)) })
	t.Run("SortAndLimit", func(t *testing.T) { testSortAndLimit(t, newRepo(t)) })
	t.Run("DuplicateInsertSkipped", func(t *testing.T) { testDuplicateInsert(t, newRepo(t)) })
	t.Run("UpdateFeedback", func(t *testing.T) { testUpdateFeedback(t, newRepo(t)) })
	t.Run("DeleteAndCount", func(t *testing.T) { testDeleteAndCount(t, newRepo(t)) })
}

// Make builds a pattern with fixed timestamps.
func Make(t *testing.T, concept, text string, confidence float64, updated time.Time) store.Pattern {
	t.Helper()
	p, err := store.NewPattern(concept, text, "test", confidence)
	if err != nil {
		t.Fatalf("NewPattern: %v", err)
	}
	p.CreatedAt = updated.UTC().Truncate(time.Millisecond)
	p.UpdatedAt = p.CreatedAt
	return p
}

func insert(t *testing.T, repo store.Repository, ps ...store.Pattern) {
	t.Helper()
	for _, p := range ps {
		if _, err := repo.Insert(context.Background(), p); err != nil {
			t.Fatalf("Insert(%s): %v", p.Concept, err)
		}
	}
}

func testInsertAndFind(t *testing.T, repo store.Repository) {
	ctx := context.Background()
	base := time.Now().Add(-time.Hour)

	ml := Make(t, "machine learning", "Machine learning finds patterns in data.", 0.96, base)
	ml.Entities = []store.Entity{{Value: "python", Type: "topic"}}
	ml.Embedding = []float64{0.5, 0.5, 0}
	yoruba := Make(t, "yoruba culture", "Yoruba culture is rich in music.", 0.97, base)
	low := Make(t, "machine vision", "Cameras see.", 0.5, base)
	insert(t, repo, ml, yoruba, low)

	got, err := repo.FindByConceptOrKeywords(ctx, store.Query{Terms: []string{"Machine"}, MinConfidence: 0.95})
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if len(got) != 1 || got[0].ID != ml.ID {
		t.Fatalf("expected only the eligible machine learning pattern, got %+v", got)
	}
	text, err := got[0].Text()
	if err != nil || text != "Machine learning finds patterns in data." {
		t.Errorf("content round trip failed: %q, %v", text, err)
	}
	if len(got[0].Entities) != 1 || got[0].Entities[0].Value != "python" {
		t.Errorf("entities not stored: %+v", got[0].Entities)
	}

	byEntity, err := repo.FindByConceptOrKeywords(ctx, store.Query{Terms: []string{"python"}})
	if err != nil {
		t.Fatalf("find by entity: %v", err)
	}
	if len(byEntity) != 1 || byEntity[0].ID != ml.ID {
		t.Errorf("expected entity match, got %+v", byEntity)
	}

	all, err := repo.FindByConceptOrKeywords(ctx, store.Query{})
	if err != nil {
		t.Fatalf("find all: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("expected 3 patterns with no terms, got %d", len(all))
	}
}

func testSortAndLimit(t *testing.T, repo store.Repository) {
	ctx := context.Background()
	now := time.Now()

	a := Make(t, "go", "Go is simple.", 0.96, now.Add(-3*time.Hour))
	b := Make(t, "go", "Go compiles fast.", 0.99, now.Add(-2*time.Hour))
	c := Make(t, "go", "Go has goroutines.", 0.96, now.Add(-1*time.Hour))
	d := Make(t, "go", "Go was liked.", 0.95, now.Add(-4*time.Hour))
	d.FeedbackScore = 0.3
	insert(t, repo, a, b, c, d)

	got, err := repo.FindByConceptOrKeywords(ctx, store.Query{Terms: []string{"go"}, Limit: 3, Sort: store.DefaultSort})
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	want := []string{d.ID, b.ID, c.ID}
	if len(got) != len(want) {
		t.Fatalf("expected %d results, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i].ID != want[i] {
			t.Errorf("position %d: got %s (%s), want %s", i, got[i].ID, got[i].Concept, want[i])
		}
	}
}

func testDuplicateInsert(t *testing.T, repo store.Repository) {
	ctx := context.Background()
	p := Make(t, "dup", "Only once.", 0.96, time.Now())
	p.OutputID = "out-1"
	insert(t, repo, p, p)

	q := Make(t, "dup", "Different text, same output.", 0.96, time.Now())
	q.OutputID = "out-1"
	insert(t, repo, q)

	n, err := repo.CountMatching(ctx, store.Filter{})
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 1 {
		t.Errorf("expected duplicate inserts to be skipped, have %d patterns", n)
	}
}

func testUpdateFeedback(t *testing.T, repo store.Repository) {
	ctx := context.Background()
	p := Make(t, "feedback", "Votes move me.", 0.99, time.Now().Add(-time.Hour))
	p.OutputID = "out-vote"
	insert(t, repo, p)

	up := store.FeedbackDelta{Confidence: 0.01, FeedbackScore: 0.1, Ceiling: 0.995}
	if err := repo.UpdateFeedback(ctx, "out-vote", up); err != nil {
		t.Fatalf("UpdateFeedback: %v", err)
	}
	got, err := repo.FindByConceptOrKeywords(ctx, store.Query{Terms: []string{"feedback"}})
	if err != nil || len(got) != 1 {
		t.Fatalf("find after vote: %v, %d", err, len(got))
	}
	if math.Abs(got[0].Confidence-0.995) > 1e-9 {
		t.Errorf("expected confidence clamped to 0.995, got %f", got[0].Confidence)
	}
	if math.Abs(got[0].FeedbackScore-0.1) > 1e-9 {
		t.Errorf("expected feedback score 0.1, got %f", got[0].FeedbackScore)
	}
	if !got[0].UpdatedAt.After(p.UpdatedAt) {
		t.Errorf("expected updated_at to advance")
	}

	err = repo.UpdateFeedback(ctx, "missing", up)
	if !errors.Is(err, casierr.ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown output, got %v", err)
	}
}

func testDeleteAndCount(t *testing.T, repo store.Repository) {
	ctx := context.Background()
	now := time.Now()
	keep := Make(t, "a", "Keep me.", 0.96, now)
	weak := Make(t, "b", "Weak one.", 0.4, now)
	old := Make(t, "c", "Old one.", 0.96, now.Add(-48*time.Hour))
	insert(t, repo, keep, weak, old)

	n, err := repo.CountMatching(ctx, store.Filter{ConfidenceBelow: 0.9})
	if err != nil || n != 1 {
		t.Fatalf("expected 1 low-confidence pattern, got %d (%v)", n, err)
	}
	deleted, err := repo.DeleteMany(ctx, store.Filter{ConfidenceBelow: 0.9})
	if err != nil || deleted != 1 {
		t.Fatalf("expected 1 deletion, got %d (%v)", deleted, err)
	}
	deleted, err = repo.DeleteMany(ctx, store.Filter{IDs: []string{old.ID}})
	if err != nil || deleted != 1 {
		t.Fatalf("expected id deletion, got %d (%v)", deleted, err)
	}
	n, err = repo.CountMatching(ctx, store.Filter{})
	if err != nil || n != 1 {
		t.Fatalf("expected 1 remaining pattern, got %d (%v)", n, err)
	}
	if deleted, _ := repo.DeleteMany(ctx, store.Filter{IDs: []string{old.ID}}); deleted != 0 {
		t.Errorf("second delete should be a no-op, deleted %d", deleted)
	}
}
