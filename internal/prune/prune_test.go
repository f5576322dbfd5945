package prune

import (
	"context"
	"io"
	"log/slog"
	"math"
	"testing"
	"time"

	"github.com/MikeSquared-Agency/casi/internal/cache"
	"github.com/MikeSquared-Agency/casi/internal/embedding"
	"github.com/MikeSquared-Agency/casi/internal/store"
	"github.com/MikeSquared-Agency/casi/internal/store/memstore"
	"github.com/MikeSquared-Agency/casi/internal/store/storetest"
)

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func service(t *testing.T, dim int) *embedding.Service {
	t.Helper()
	s, err := embedding.NewService(embedding.NewHash(dim), 100, time.Second, quiet())
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return s
}

func seed(t *testing.T, repo store.Repository, ps ...store.Pattern) {
	t.Helper()
	for _, p := range ps {
		if _, err := repo.Insert(context.Background(), p); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}
}

func TestPrune_NearDuplicateKeepsHigherScore(t *testing.T) {
	repo := memstore.New()
	now := time.Now()
	a := storetest.Make(t, "energy", "solar panels", 0.90, now)
	a.Embedding = []float64{1, 0, 0}
	b := storetest.Make(t, "energy", "photovoltaic cells", 0.95, now)
	b.Embedding = []float64{0.97, math.Sqrt(1 - 0.97*0.97), 0}
	c := storetest.Make(t, "history", "the roman empire", 0.90, now)
	c.Embedding = []float64{0, 0, 1}
	seed(t, repo, a, b, c)

	res, err := New(repo, service(t, 3), nil, quiet()).Prune(context.Background(), Options{MinDiversity: 0.3})
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if res.NearDuplicates != 1 {
		t.Errorf("NearDuplicates = %d, want 1", res.NearDuplicates)
	}
	if _, ok := repo.Get(a.ID); ok {
		t.Error("lower scoring near duplicate survived")
	}
	if _, ok := repo.Get(b.ID); !ok {
		t.Error("higher scoring near duplicate was deleted")
	}
	if _, ok := repo.Get(c.ID); !ok {
		t.Error("unrelated pattern was deleted")
	}
}

func TestPrune_FeedbackCountsTowardsSurvival(t *testing.T) {
	repo := memstore.New()
	now := time.Now()
	a := storetest.Make(t, "energy", "solar panels", 0.90, now)
	a.FeedbackScore = 0.3
	a.Embedding = []float64{1, 0, 0}
	b := storetest.Make(t, "energy", "photovoltaic cells", 0.95, now)
	b.Embedding = []float64{1, 0, 0}
	seed(t, repo, a, b)

	if _, err := New(repo, service(t, 3), nil, quiet()).Prune(context.Background(), Options{MinDiversity: 0.1}); err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if _, ok := repo.Get(a.ID); !ok {
		t.Error("pattern with higher confidence+feedback should survive")
	}
}

func TestPrune_LowConfidenceDuplicatesAndCap(t *testing.T) {
	repo := memstore.New()
	base := time.Now().Add(-time.Hour)
	low := storetest.Make(t, "misc", "barely trusted", 0.5, base)
	dupOld := storetest.Make(t, "ai", "machine learning finds patterns", 0.95, base.Add(5*time.Minute))
	dupNew := storetest.Make(t, "ai", "machine learning finds patterns", 0.95, base.Add(6*time.Minute))
	oldest := storetest.Make(t, "history", "pyramids were built in egypt", 0.95, base.Add(2*time.Minute))
	middle := storetest.Make(t, "space", "mars has two small moons", 0.95, base.Add(3*time.Minute))
	newest := storetest.Make(t, "ocean", "tides follow the moon", 0.95, base.Add(4*time.Minute))
	seed(t, repo, low, dupOld, dupNew, oldest, middle, newest)

	c := cache.New(100, quiet())
	for _, p := range []store.Pattern{low, dupOld, dupNew, oldest, middle, newest} {
		c.Add(p)
	}

	res, err := New(repo, nil, c, quiet()).Prune(context.Background(), Options{MaxDocs: 3, MinConfidence: 0.9})
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if res.LowConfidence != 1 || res.Duplicates != 1 || res.OverCap != 1 {
		t.Errorf("result = %+v", res)
	}
	if res.Remaining != 3 {
		t.Errorf("Remaining = %d, want 3", res.Remaining)
	}
	for _, gone := range []store.Pattern{low, dupOld, oldest} {
		if _, ok := repo.Get(gone.ID); ok {
			t.Errorf("%q should have been pruned", gone.Concept)
		}
	}
	if c.Len() != 3 {
		t.Errorf("cache holds %d entries, want 3", c.Len())
	}
}

func TestPrune_Idempotent(t *testing.T) {
	repo := memstore.New()
	now := time.Now()
	texts := []string{
		"solar power converts sunlight into electricity",
		"solar power converts sunlight into electricity today",
		"wind turbines harvest moving air",
		"wind turbines harvest moving air",
		"the nile is the longest river in africa",
		"quantum computers use qubits",
		"bread needs flour water and yeast",
	}
	for i, text := range texts {
		seed(t, repo, storetest.Make(t, "mixed", text, 0.9+float64(i)*0.01, now.Add(time.Duration(i)*time.Second)))
	}
	seed(t, repo, storetest.Make(t, "mixed", "low quality", 0.2, now))

	p := New(repo, service(t, 384), nil, quiet())
	opts := Options{MaxDocs: 4, MinConfidence: 0.9, MinDiversity: 0.2}
	first, err := p.Prune(context.Background(), opts)
	if err != nil {
		t.Fatalf("first Prune: %v", err)
	}
	if first.Deleted() == 0 {
		t.Fatal("first prune deleted nothing")
	}
	second, err := p.Prune(context.Background(), opts)
	if err != nil {
		t.Fatalf("second Prune: %v", err)
	}
	if second.Deleted() != 0 {
		t.Errorf("second prune deleted %d, want 0 (%+v)", second.Deleted(), second)
	}
}

func TestPrune_ChainKeepsPatternsUnlikeSurvivor(t *testing.T) {
	repo := memstore.New()
	now := time.Now()
	// a~b and b~c sit above the threshold, a and c do not.
	a := storetest.Make(t, "chain", "first link", 0.99, now)
	a.Embedding = []float64{1, 0}
	b := storetest.Make(t, "chain", "middle link", 0.90, now)
	b.Embedding = []float64{0.8, 0.6}
	c := storetest.Make(t, "chain", "last link", 0.95, now)
	c.Embedding = []float64{0.28, 0.96}
	seed(t, repo, a, b, c)

	res, err := New(repo, service(t, 2), nil, quiet()).Prune(context.Background(), Options{MinDiversity: 0.3})
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if res.NearDuplicates != 1 {
		t.Errorf("NearDuplicates = %d, want 1", res.NearDuplicates)
	}
	if _, ok := repo.Get(b.ID); ok {
		t.Error("middle of the chain survived")
	}
	for _, p := range []store.Pattern{a, c} {
		if _, ok := repo.Get(p.ID); !ok {
			t.Errorf("pattern %s was deleted", p.ID)
		}
	}
}

func TestRedundant(t *testing.T) {
	live := map[string]store.Pattern{
		"a": {ID: "a", Confidence: 0.99},
		"b": {ID: "b", Confidence: 0.90},
		"c": {ID: "c", Confidence: 0.95},
		"d": {ID: "d", Confidence: 0.96},
		"e": {ID: "e", Confidence: 0.97},
	}
	pairs := []store.SimilarPair{
		{ID1: "b", ID2: "c"},
		{ID1: "a", ID2: "b"},
		{ID1: "d", ID2: "e"},
	}
	got := redundant(pairs, live)
	if len(got) != 2 || got[0] != "b" || got[1] != "d" {
		t.Errorf("redundant = %v, want [b d]", got)
	}
	if redundant(nil, live) != nil {
		t.Error("no pairs should give nothing")
	}
}

func TestIsBetter(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name string
		a, b store.Pattern
		want bool
	}{
		{"higher score", store.Pattern{ID: "z", Confidence: 0.9, FeedbackScore: 0.2}, store.Pattern{ID: "a", Confidence: 0.95}, true},
		{"lower score", store.Pattern{ID: "a", Confidence: 0.9}, store.Pattern{ID: "z", Confidence: 0.95}, false},
		{"newer wins tie", store.Pattern{ID: "z", Confidence: 0.9, UpdatedAt: now}, store.Pattern{ID: "a", Confidence: 0.9, UpdatedAt: now.Add(-time.Second)}, true},
		{"lower id wins full tie", store.Pattern{ID: "a", Confidence: 0.9, UpdatedAt: now}, store.Pattern{ID: "b", Confidence: 0.9, UpdatedAt: now}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isBetter(tt.a, tt.b); got != tt.want {
				t.Errorf("isBetter = %v, want %v", got, tt.want)
			}
		})
	}
}
