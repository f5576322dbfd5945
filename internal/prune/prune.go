package prune

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/MikeSquared-Agency/casi/internal/cache"
	"github.com/MikeSquared-Agency/casi/internal/embedding"
	"github.com/MikeSquared-Agency/casi/internal/metrics"
	"github.com/MikeSquared-Agency/casi/internal/store"
)

const deleteBatch = 500

// Options bound one prune run. Zero MaxDocs disables the cap, zero
// MinConfidence skips the confidence pass and zero MinDiversity skips the
// near-duplicate pass.
type Options struct {
	MaxDocs       int     `json:"maxDocs"`
	MinConfidence float64 `json:"minConfidence"`
	MinDiversity  float64 `json:"minDiversity"`
}

// Result counts deletions per pass.
type Result struct {
	LowConfidence  int64 `json:"lowConfidence"`
	Duplicates     int64 `json:"duplicates"`
	NearDuplicates int64 `json:"nearDuplicates"`
	OverCap        int64 `json:"overCap"`
	Remaining      int   `json:"remaining"`
}

func (r Result) Deleted() int64 {
	return r.LowConfidence + r.Duplicates + r.NearDuplicates + r.OverCap
}

// SimilarityFinder is implemented by repositories that can find
// near-duplicate pairs server side.
type SimilarityFinder interface {
	FindSimilarPairs(ctx context.Context, threshold float64) ([]store.SimilarPair, error)
}

type Pruner struct {
	repo     store.Repository
	embedder *embedding.Service
	cache    *cache.Cache
	logger   *slog.Logger
}

// New creates a pruner. embedder may be nil, which disables the
// near-duplicate pass unless repo is a SimilarityFinder; cache may be nil.
func New(repo store.Repository, embedder *embedding.Service, c *cache.Cache, logger *slog.Logger) *Pruner {
	return &Pruner{repo: repo, embedder: embedder, cache: c, logger: logger}
}

// Prune runs every pass in order. Running it twice without writes in
// between deletes nothing the second time.
func (p *Pruner) Prune(ctx context.Context, opts Options) (Result, error) {
	var res Result
	p.logger.Info("starting prune", "max_docs", opts.MaxDocs, "min_confidence", opts.MinConfidence, "min_diversity", opts.MinDiversity)

	if opts.MinConfidence > 0 {
		n, err := p.repo.DeleteMany(ctx, store.Filter{ConfidenceBelow: opts.MinConfidence})
		if err != nil {
			return res, fmt.Errorf("delete low confidence: %w", err)
		}
		res.LowConfidence = n
		metrics.Pruned.WithLabelValues("low_confidence").Add(float64(n))
	}

	all, err := p.repo.FindByConceptOrKeywords(ctx, store.Query{Sort: []store.SortKey{store.ByUpdatedAt}})
	if err != nil {
		return res, fmt.Errorf("list patterns: %w", err)
	}
	p.forgetBelow(opts.MinConfidence)
	live := make(map[string]store.Pattern, len(all))
	for _, pt := range all {
		if pt.Confidence >= opts.MinConfidence {
			live[pt.ID] = pt
		}
	}

	dupes := exactDuplicates(live)
	if res.Duplicates, err = p.delete(ctx, dupes, live, "duplicate"); err != nil {
		return res, err
	}

	if opts.MinDiversity > 0 {
		near, err := p.nearDuplicates(ctx, live, 1-opts.MinDiversity)
		if err != nil {
			return res, err
		}
		if res.NearDuplicates, err = p.delete(ctx, near, live, "near_duplicate"); err != nil {
			return res, err
		}
	}

	if opts.MaxDocs > 0 && len(live) > opts.MaxDocs {
		if res.OverCap, err = p.delete(ctx, overCap(live, opts.MaxDocs), live, "over_cap"); err != nil {
			return res, err
		}
	}

	res.Remaining = len(live)
	p.logger.Info("prune completed",
		"low_confidence", res.LowConfidence,
		"duplicates", res.Duplicates,
		"near_duplicates", res.NearDuplicates,
		"over_cap", res.OverCap,
		"remaining", res.Remaining,
	)
	return res, nil
}

// exactDuplicates keeps the best pattern per (concept, content) pair.
func exactDuplicates(live map[string]store.Pattern) []string {
	groups := make(map[string][]store.Pattern)
	for _, pt := range live {
		key := pt.Concept + "\x00" + string(pt.Content)
		groups[key] = append(groups[key], pt)
	}
	var doomed []string
	for _, members := range groups {
		if len(members) < 2 {
			continue
		}
		keep := survivor(members)
		for _, pt := range members {
			if pt.ID != keep.ID {
				doomed = append(doomed, pt.ID)
			}
		}
	}
	sort.Strings(doomed)
	return doomed
}

// nearDuplicates drops the lower scoring side of every pair above threshold
// whose better side survives. Pairs come from the repository when it can
// compute them, otherwise from pairwise comparison of embeddings.
func (p *Pruner) nearDuplicates(ctx context.Context, live map[string]store.Pattern, threshold float64) ([]string, error) {
	var pairs []store.SimilarPair
	if finder, ok := p.repo.(SimilarityFinder); ok {
		found, err := finder.FindSimilarPairs(ctx, threshold)
		if err != nil {
			return nil, fmt.Errorf("find similar pairs: %w", err)
		}
		for _, pair := range found {
			_, ok1 := live[pair.ID1]
			_, ok2 := live[pair.ID2]
			if ok1 && ok2 {
				pairs = append(pairs, pair)
			}
		}
	} else if p.embedder != nil {
		pairs = p.comparePairwise(ctx, live, threshold)
	} else {
		p.logger.Warn("no embedder configured, skipping near-duplicate pass", "component", "prune")
		return nil, nil
	}

	doomed := redundant(pairs, live)
	p.logger.Info("resolved near duplicates", "pairs", len(pairs), "redundant", len(doomed))
	return doomed, nil
}

// comparePairwise is quadratic in the corpus size. Patterns that cannot be
// embedded or decompressed sit the pass out.
func (p *Pruner) comparePairwise(ctx context.Context, live map[string]store.Pattern, threshold float64) []store.SimilarPair {
	ids := make([]string, 0, len(live))
	for id := range live {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	vecs := make([][]float64, len(ids))
	var missing []int
	var texts []string
	for i, id := range ids {
		pt := live[id]
		if len(pt.Embedding) == p.embedder.Dimension() && !embedding.IsZero(pt.Embedding) {
			vecs[i] = pt.Embedding
			continue
		}
		text, err := pt.Text()
		if err != nil {
			p.logger.Warn("skipping corrupt pattern", "component", "prune", "pattern_id", id, "error", err)
			continue
		}
		missing = append(missing, i)
		texts = append(texts, text)
	}
	for j, r := range p.embedder.EmbedAll(ctx, texts) {
		if !r.Degraded() {
			vecs[missing[j]] = r.Value
		}
	}

	var pairs []store.SimilarPair
	for i := range ids {
		if embedding.IsZero(vecs[i]) {
			continue
		}
		for j := i + 1; j < len(ids); j++ {
			if embedding.IsZero(vecs[j]) {
				continue
			}
			if sim := embedding.Cosine(vecs[i], vecs[j]); sim > threshold {
				pairs = append(pairs, store.SimilarPair{ID1: ids[i], ID2: ids[j], Similarity: sim})
			}
		}
	}
	return pairs
}

// overCap returns the oldest patterns beyond max, by UpdatedAt.
func overCap(live map[string]store.Pattern, max int) []string {
	ps := make([]store.Pattern, 0, len(live))
	for _, pt := range live {
		ps = append(ps, pt)
	}
	sort.Slice(ps, func(i, j int) bool {
		if !ps[i].UpdatedAt.Equal(ps[j].UpdatedAt) {
			return ps[i].UpdatedAt.After(ps[j].UpdatedAt)
		}
		return ps[i].ID < ps[j].ID
	})
	var doomed []string
	for _, pt := range ps[max:] {
		doomed = append(doomed, pt.ID)
	}
	return doomed
}

// delete removes ids in batches and drops them from live and the cache.
func (p *Pruner) delete(ctx context.Context, ids []string, live map[string]store.Pattern, reason string) (int64, error) {
	var total int64
	for start := 0; start < len(ids); start += deleteBatch {
		end := start + deleteBatch
		if end > len(ids) {
			end = len(ids)
		}
		batch := ids[start:end]
		n, err := p.repo.DeleteMany(ctx, store.Filter{IDs: batch})
		if err != nil {
			return total, fmt.Errorf("delete %s patterns: %w", reason, err)
		}
		total += n
		for _, id := range batch {
			delete(live, id)
		}
		p.forget(batch)
	}
	metrics.Pruned.WithLabelValues(reason).Add(float64(total))
	return total, nil
}

func (p *Pruner) forget(ids []string) {
	if p.cache != nil && len(ids) > 0 {
		p.cache.Remove(ids...)
	}
}

func (p *Pruner) forgetBelow(minConfidence float64) {
	if p.cache == nil || minConfidence <= 0 {
		return
	}
	var ids []string
	for _, e := range p.cache.Snapshot() {
		if e.Pattern.Confidence < minConfidence {
			ids = append(ids, e.Pattern.ID)
		}
	}
	p.forget(ids)
}
