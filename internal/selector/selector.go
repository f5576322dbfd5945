package selector

import (
	"context"
	"log/slog"
	"math"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MikeSquared-Agency/casi/internal/cache"
	"github.com/MikeSquared-Agency/casi/internal/degrade"
	"github.com/MikeSquared-Agency/casi/internal/embedding"
	"github.com/MikeSquared-Agency/casi/internal/extract"
	"github.com/MikeSquared-Agency/casi/internal/metrics"
	"github.com/MikeSquared-Agency/casi/internal/store"
	"github.com/MikeSquared-Agency/casi/internal/textnorm"
)

// PrimaryCount is the size of the primary pool handed to synthesis.
const PrimaryCount = 3

// Params bound one selection. Depth caps the repository query, Breadth the
// re-ranked pool, and DiversityFactor the share of Breadth kept after
// diversity filtering.
type Params struct {
	Depth           int
	Breadth         int
	DiversityFactor float64
}

// Keep is the number of candidates that survive diversity filtering.
func (p Params) Keep() int {
	k := int(math.Ceil(float64(p.Breadth) * p.DiversityFactor))
	if k < 1 {
		return 1
	}
	return k
}

// Candidate is a readable pattern scored against the prompt.
type Candidate struct {
	Pattern    store.Pattern
	Text       string
	Embedding  []float64
	Similarity float64
}

type Selection struct {
	Analysis        extract.Analysis
	PromptEmbedding []float64
	// Candidates is the diversity-filtered pool in similarity order.
	Candidates []Candidate
	Primary    []Candidate
	// Best is the highest-similarity candidate, nil when nothing scored
	// above zero.
	Best *Candidate
	// EmbeddingDegraded is set when the prompt could not be embedded.
	EmbeddingDegraded bool
	// FromCache is set when the repository was unreachable.
	FromCache bool
}

type Selector struct {
	repo          store.Repository
	cache         *cache.Cache
	embedder      *embedding.Service
	extractor     *extract.Extractor
	minConfidence float64
	storeTimeout  time.Duration
	logger        *slog.Logger
}

type Config struct {
	MinConfidence float64
	StoreTimeout  time.Duration
}

func New(repo store.Repository, c *cache.Cache, emb *embedding.Service, ex *extract.Extractor, cfg Config, logger *slog.Logger) *Selector {
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = 5 * time.Second
	}
	return &Selector{
		repo:          repo,
		cache:         c,
		embedder:      emb,
		extractor:     ex,
		minConfidence: cfg.MinConfidence,
		storeTimeout:  cfg.StoreTimeout,
		logger:        logger,
	}
}

// Select never fails: repository, decompression and embedding errors
// degrade to fewer or unranked candidates.
func (s *Selector) Select(ctx context.Context, prompt string, p Params) Selection {
	var (
		sel       Selection
		promptVec degrade.Result[[]float64]
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		sel.Analysis = s.extractor.Analyze(prompt)
		return nil
	})
	g.Go(func() error {
		promptVec = s.embedder.Embed(gctx, textnorm.Normalize(prompt))
		return nil
	})
	_ = g.Wait()
	sel.PromptEmbedding = promptVec.Value
	sel.EmbeddingDegraded = promptVec.Degraded()

	terms := sel.Analysis.Terms()
	if len(terms) == 0 {
		return sel
	}
	patterns, fromCache := s.retrieve(ctx, store.Query{
		Terms:         terms,
		MinConfidence: s.minConfidence,
		Limit:         p.Depth,
		Sort:          store.DefaultSort,
	})
	sel.FromCache = fromCache

	cands := s.readable(patterns)
	s.score(ctx, cands, sel.PromptEmbedding)

	sort.SliceStable(cands, func(i, j int) bool { return cands[i].Similarity > cands[j].Similarity })
	if p.Breadth > 0 && len(cands) > p.Breadth {
		cands = cands[:p.Breadth]
	}
	if len(cands) > 0 && cands[0].Similarity > 0 {
		best := cands[0]
		sel.Best = &best
	}

	if keep := p.Keep(); len(cands) > keep {
		if sel.EmbeddingDegraded {
			cands = cands[:keep]
		} else {
			cands = diversify(cands, keep)
		}
	}
	sel.Candidates = cands
	sel.Primary = cands[:min(PrimaryCount, len(cands))]
	return sel
}

func (s *Selector) retrieve(ctx context.Context, q store.Query) ([]store.Pattern, bool) {
	callCtx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()
	patterns, err := s.repo.FindByConceptOrKeywords(callCtx, q)
	if err == nil {
		return patterns, false
	}
	metrics.Degraded("repository")
	s.logger.Warn("repository unavailable, reading retrieval cache", "component", "repository", "error", err)
	return s.cache.Find(q), true
}

// readable decompresses patterns, preferring cached text and skipping
// corrupt payloads.
func (s *Selector) readable(patterns []store.Pattern) []Candidate {
	out := make([]Candidate, 0, len(patterns))
	for _, p := range patterns {
		text, ok := s.cache.Text(p.ID)
		if !ok {
			var err error
			if text, err = p.Text(); err != nil {
				s.logger.Warn("skipping corrupt pattern", "pattern_id", p.ID, "error", err)
				continue
			}
		}
		out = append(out, Candidate{Pattern: p, Text: text})
	}
	return out
}

// score fills Embedding and Similarity. Stored embeddings of the right
// dimension are reused; the rest are computed concurrently.
func (s *Selector) score(ctx context.Context, cands []Candidate, promptVec []float64) {
	var (
		idx   []int
		texts []string
	)
	for i := range cands {
		if v := cands[i].Pattern.Embedding; len(v) == s.embedder.Dimension() && !embedding.IsZero(v) {
			cands[i].Embedding = v
			continue
		}
		idx = append(idx, i)
		texts = append(texts, cands[i].Text)
	}
	for j, res := range s.embedder.EmbedAll(ctx, texts) {
		cands[idx[j]].Embedding = res.Value
	}
	for i := range cands {
		cands[i].Similarity = embedding.Cosine(promptVec, cands[i].Embedding)
	}
}
