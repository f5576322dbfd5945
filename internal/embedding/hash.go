package embedding

import (
	"context"
	"math"
	"strings"
	"unicode"

	"github.com/cespare/xxhash/v2"

	"github.com/MikeSquared-Agency/casi/internal/textnorm"
)

// Hash is a corpus-independent feature-hashing embedder over word unigrams
// and bigrams. The same text always maps to the same vector, whatever else
// has been stored.
type Hash struct {
	dim int
}

func NewHash(dim int) *Hash {
	if dim <= 0 {
		dim = 384
	}
	return &Hash{dim: dim}
}

func (h *Hash) Name() string   { return "hash" }
func (h *Hash) Dimension() int { return h.dim }

func (h *Hash) Embed(_ context.Context, text string) ([]float64, error) {
	v := make([]float64, h.dim)
	words := strings.FieldsFunc(textnorm.Normalize(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && !unicode.Is(unicode.Mn, r)
	})
	for i, w := range words {
		h.add(v, w, 1)
		if i > 0 {
			h.add(v, words[i-1]+" "+w, 0.5)
		}
	}
	var norm float64
	for _, x := range v {
		norm += x * x
	}
	if norm == 0 {
		return v, nil
	}
	norm = math.Sqrt(norm)
	for i := range v {
		v[i] /= norm
	}
	return v, nil
}

// add folds feature into v; bit 63 of the hash picks the sign so unrelated
// collisions tend to cancel.
func (h *Hash) add(v []float64, feature string, weight float64) {
	sum := xxhash.Sum64String(feature)
	idx := int(sum % uint64(h.dim))
	if sum>>63 == 1 {
		weight = -weight
	}
	v[idx] += weight
}
