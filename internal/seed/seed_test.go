package seed

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/MikeSquared-Agency/casi/internal/embedding"
	"github.com/MikeSquared-Agency/casi/internal/store"
	"github.com/MikeSquared-Agency/casi/internal/store/memstore"
	"github.com/MikeSquared-Agency/casi/internal/store/storetest"
)

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

// repoSink stores straight into the repository.
type repoSink struct{ repo store.Repository }

func (s repoSink) Store(ctx context.Context, p store.Pattern) error {
	_, err := s.repo.Insert(ctx, p)
	return err
}

func newSeeder(t *testing.T) (*Seeder, *memstore.Store) {
	t.Helper()
	repo := memstore.New()
	emb, err := embedding.NewService(embedding.NewHash(32), 10, time.Second, quiet())
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return New(repo, repoSink{repo}, emb, quiet()), repo
}

func countTexts(entries []Entry) int {
	n := 0
	for _, e := range entries {
		n += len(e.Texts)
	}
	return n
}

func TestLoad_Embedded(t *testing.T) {
	entries, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(entries) < 5 {
		t.Fatalf("expected a starter corpus, got %d entries", len(entries))
	}
	if entries[0].Concept != "greeting" || len(entries[0].Entities) == 0 || entries[0].Entities[0].Value != "hello" {
		t.Errorf("unexpected first entry: %+v", entries[0])
	}
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seeds.yaml")
	body := "- concept: tides\n  title: Tides\n  texts:\n    - The moon drives the tides.\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	entries, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(entries) != 1 || entries[0].Texts[0] != "The moon drives the tides." {
		t.Errorf("unexpected entries: %+v", entries)
	}
}

func TestLoad_Rejects(t *testing.T) {
	dir := t.TempDir()
	for name, body := range map[string]string{
		"no-concept.yaml": "- title: nothing\n  texts: [a]\n",
		"broken.yaml":     "- concept: [unclosed\n",
	} {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
		if _, err := Load(path); err == nil {
			t.Errorf("%s: expected an error", name)
		}
	}
	if _, err := Load(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("expected an error for a missing file")
	}
}

func TestSeed(t *testing.T) {
	s, repo := newSeeder(t)
	entries, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	n, err := s.Seed(context.Background(), entries, false)
	if err != nil {
		t.Fatalf("Seed: %v", err)
	}
	if n != countTexts(entries) {
		t.Errorf("stored %d, expected %d", n, countTexts(entries))
	}

	got, err := repo.FindByConceptOrKeywords(context.Background(), store.Query{Terms: []string{"blockchain"}, MinConfidence: 0.95, Limit: 5})
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected the blockchain seed to be retrievable at 0.95, got %d", len(got))
	}
	p := got[0]
	if p.Source != Source || p.Confidence != 0.95 || p.Title != "Blockchain Overview" || len(p.Embedding) != 32 {
		t.Errorf("unexpected seeded pattern: %+v", p)
	}
}

func TestSeed_Reset(t *testing.T) {
	s, repo := newSeeder(t)
	ctx := context.Background()
	if _, err := repo.Insert(ctx, storetest.Make(t, "stale", "Stale knowledge.", 0.99, time.Now())); err != nil {
		t.Fatal(err)
	}
	entries := []Entry{{Concept: "tides", Title: "Tides", Texts: []string{"The moon drives the tides.", "Spring tides are stronger."}}}
	if _, err := s.Seed(ctx, entries, true); err != nil {
		t.Fatalf("Seed: %v", err)
	}
	if n, _ := repo.CountMatching(ctx, store.Filter{}); n != 2 {
		t.Errorf("expected only the 2 new patterns after reset, got %d", n)
	}
}

func TestIfEmpty(t *testing.T) {
	s, repo := newSeeder(t)
	ctx := context.Background()
	entries := []Entry{{Concept: "tides", Texts: []string{"The moon drives the tides."}}}

	if n, err := s.IfEmpty(ctx, entries); err != nil || n != 1 {
		t.Fatalf("first IfEmpty: n=%d err=%v", n, err)
	}
	if n, err := s.IfEmpty(ctx, entries); err != nil || n != 0 {
		t.Errorf("second IfEmpty should do nothing: n=%d err=%v", n, err)
	}
	if n, _ := repo.CountMatching(ctx, store.Filter{}); n != 1 {
		t.Errorf("expected 1 pattern, got %d", n)
	}
}
