// Package embedding maps text to fixed-length vectors. The Service wraps a
// Model and never fails: unavailable models degrade to zero vectors.
package embedding

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/cespare/xxhash/v2"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/errgroup"

	"github.com/MikeSquared-Agency/casi/internal/degrade"
	"github.com/MikeSquared-Agency/casi/internal/metrics"
)

// Model is a text embedding backend.
type Model interface {
	Name() string
	Dimension() int
	Embed(ctx context.Context, text string) ([]float64, error)
}

const maxParallel = 8

type Service struct {
	model   Model
	dim     int
	timeout time.Duration
	cache   *lru.Cache[uint64, []float64]
	logger  *slog.Logger
}

// NewService wraps model with an LRU of cacheSize successful embeddings and
// a per-call timeout.
func NewService(model Model, cacheSize int, timeout time.Duration, logger *slog.Logger) (*Service, error) {
	if cacheSize <= 0 {
		cacheSize = 1024
	}
	cache, err := lru.New[uint64, []float64](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("create embedding cache: %w", err)
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Service{
		model:   model,
		dim:     model.Dimension(),
		timeout: timeout,
		cache:   cache,
		logger:  logger,
	}, nil
}

func (s *Service) Dimension() int { return s.dim }

func (s *Service) ModelName() string { return s.model.Name() }

// Embed returns the vector for text, or a zero vector of the model's
// dimension with the cause attached.
func (s *Service) Embed(ctx context.Context, text string) degrade.Result[[]float64] {
	key := xxhash.Sum64String(text)
	if v, ok := s.cache.Get(key); ok {
		return degrade.OK(v)
	}

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	v, err := s.model.Embed(callCtx, text)
	if err == nil && len(v) != s.dim {
		err = fmt.Errorf("%s returned %d dimensions, want %d", s.model.Name(), len(v), s.dim)
	}
	if err != nil {
		metrics.Degraded("embedding")
		s.logger.Warn("embedding unavailable, using zero vector", "component", "embedding", "model", s.model.Name(), "error", err)
		return degrade.Fallback(make([]float64, s.dim), fmt.Errorf("embed: %w", err))
	}
	s.cache.Add(key, v)
	return degrade.OK(v)
}

// EmbedAll embeds texts concurrently; result i belongs to texts[i].
func (s *Service) EmbedAll(ctx context.Context, texts []string) []degrade.Result[[]float64] {
	out := make([]degrade.Result[[]float64], len(texts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallel)
	for i, text := range texts {
		i, text := i, text
		g.Go(func() error {
			out[i] = s.Embed(gctx, text)
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// Cosine returns the cosine similarity of a and b, or 0 when either is a
// zero vector or the lengths differ.
func Cosine(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// IsZero reports whether v carries no signal.
func IsZero(v []float64) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}
