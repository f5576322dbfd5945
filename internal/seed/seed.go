package seed

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/MikeSquared-Agency/casi/internal/embedding"
	"github.com/MikeSquared-Agency/casi/internal/score"
	"github.com/MikeSquared-Agency/casi/internal/store"
	"github.com/MikeSquared-Agency/casi/internal/textnorm"
)

// Source tags every seeded pattern.
const Source = "seed"

//go:embed seeds.yaml
var defaultSeeds []byte

type Entry struct {
	Concept   string         `yaml:"concept"`
	Title     string         `yaml:"title"`
	Sentiment float64        `yaml:"sentiment"`
	Entities  []store.Entity `yaml:"entities"`
	Texts     []string       `yaml:"texts"`
}

// Sink persists a ready pattern.
type Sink interface {
	Store(ctx context.Context, p store.Pattern) error
}

// Load reads a seed file, or the embedded corpus when path is empty.
func Load(path string) ([]Entry, error) {
	data := defaultSeeds
	if path != "" {
		var err error
		if data, err = os.ReadFile(path); err != nil {
			return nil, fmt.Errorf("read seeds: %w", err)
		}
	}
	var entries []Entry
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parse seeds: %w", err)
	}
	for i, e := range entries {
		if strings.TrimSpace(e.Concept) == "" {
			return nil, fmt.Errorf("parse seeds: entry %d has no concept", i)
		}
	}
	return entries, nil
}

type Seeder struct {
	repo     store.Repository
	sink     Sink
	embedder *embedding.Service
	logger   *slog.Logger
}

// New creates a seeder. embedder may be nil.
func New(repo store.Repository, sink Sink, emb *embedding.Service, logger *slog.Logger) *Seeder {
	return &Seeder{repo: repo, sink: sink, embedder: emb, logger: logger}
}

// Seed stores every text in entries. With reset set, all patterns are
// deleted first. It returns the number of patterns stored.
func (s *Seeder) Seed(ctx context.Context, entries []Entry, reset bool) (int, error) {
	if reset {
		n, err := s.repo.DeleteMany(ctx, store.Filter{})
		if err != nil {
			return 0, fmt.Errorf("reset: %w", err)
		}
		s.logger.Info("repository reset", "deleted", n)
	}

	stored := 0
	for _, e := range entries {
		for i, text := range e.Texts {
			p, err := s.pattern(ctx, e, i, text)
			if err != nil {
				return stored, err
			}
			if err := s.sink.Store(ctx, p); err != nil {
				return stored, fmt.Errorf("seed %s: %w", e.Concept, err)
			}
			stored++
		}
	}
	s.logger.Info("seed corpus stored", "patterns", stored)
	return stored, nil
}

// IfEmpty seeds only when the repository holds no patterns.
func (s *Seeder) IfEmpty(ctx context.Context, entries []Entry) (int, error) {
	n, err := s.repo.CountMatching(ctx, store.Filter{})
	if err != nil {
		return 0, fmt.Errorf("count patterns: %w", err)
	}
	if n > 0 {
		return 0, nil
	}
	return s.Seed(ctx, entries, false)
}

func (s *Seeder) pattern(ctx context.Context, e Entry, i int, text string) (store.Pattern, error) {
	p, err := store.NewPattern(strings.ToLower(strings.TrimSpace(e.Concept)), textnorm.Clean(text), Source, score.SeedConfidence)
	if err != nil {
		return store.Pattern{}, fmt.Errorf("seed %s: %w", e.Concept, err)
	}
	p.Entities = e.Entities
	p.Sentiment = e.Sentiment
	p.Title = e.Title
	if len(e.Texts) > 1 {
		p.Title = fmt.Sprintf("%s %d", e.Title, i+1)
	}
	if s.embedder != nil {
		if res := s.embedder.Embed(ctx, textnorm.Normalize(text)); !res.Degraded() {
			p.Embedding = res.Value
		}
	}
	return p, nil
}
