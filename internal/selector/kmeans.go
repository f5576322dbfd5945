package selector

import (
	"sort"

	"github.com/MikeSquared-Agency/casi/internal/embedding"
)

const kmeansIterations = 20

// diversify clusters cands (already in similarity order) into keep groups
// and draws round-robin across clusters, each cluster yielding its members
// in similarity order. The result is returned in similarity order.
func diversify(cands []Candidate, keep int) []Candidate {
	vecs := make([][]float64, len(cands))
	for i, c := range cands {
		vecs[i] = c.Embedding
	}
	clusters := kmeans(vecs, keep)

	picked := make([]int, 0, keep)
	for round := 0; len(picked) < keep; round++ {
		progressed := false
		for _, members := range clusters {
			if round < len(members) && len(picked) < keep {
				picked = append(picked, members[round])
				progressed = true
			}
		}
		if !progressed {
			break
		}
	}
	sort.Ints(picked)

	out := make([]Candidate, len(picked))
	for i, idx := range picked {
		out[i] = cands[idx]
	}
	return out
}

// kmeans groups vector indices into at most k clusters by cosine distance.
// Seeding is deterministic: the first vector, then repeatedly the vector
// farthest from every chosen centroid. Clusters come back ordered by their
// lowest member index, members ascending.
func kmeans(vecs [][]float64, k int) [][]int {
	n := len(vecs)
	if k >= n {
		out := make([][]int, n)
		for i := range out {
			out[i] = []int{i}
		}
		return out
	}

	centroids := [][]float64{clone(vecs[0])}
	for len(centroids) < k {
		far, farDist := -1, -1.0
		for i, v := range vecs {
			d := nearestDistance(v, centroids)
			if d > farDist {
				far, farDist = i, d
			}
		}
		centroids = append(centroids, clone(vecs[far]))
	}

	assign := make([]int, n)
	for iter := 0; iter < kmeansIterations; iter++ {
		changed := iter == 0
		for i, v := range vecs {
			if c := nearest(v, centroids); c != assign[i] {
				assign[i] = c
				changed = true
			}
		}
		if !changed {
			break
		}
		for c := range centroids {
			var sum []float64
			count := 0
			for i, v := range vecs {
				if assign[i] != c {
					continue
				}
				if sum == nil {
					sum = make([]float64, len(v))
				}
				for d := range v {
					sum[d] += v[d]
				}
				count++
			}
			if count > 0 {
				for d := range sum {
					sum[d] /= float64(count)
				}
				centroids[c] = sum
			}
		}
	}

	byCluster := make(map[int][]int)
	var order []int
	for i, c := range assign {
		if _, ok := byCluster[c]; !ok {
			order = append(order, c)
		}
		byCluster[c] = append(byCluster[c], i)
	}
	out := make([][]int, 0, len(order))
	for _, c := range order {
		out = append(out, byCluster[c])
	}
	return out
}

func nearest(v []float64, centroids [][]float64) int {
	best, bestDist := 0, 2.0
	for c, centroid := range centroids {
		if d := 1 - embedding.Cosine(v, centroid); d < bestDist {
			best, bestDist = c, d
		}
	}
	return best
}

func nearestDistance(v []float64, centroids [][]float64) float64 {
	dist := 2.0
	for _, centroid := range centroids {
		if d := 1 - embedding.Cosine(v, centroid); d < dist {
			dist = d
		}
	}
	return dist
}

func clone(v []float64) []float64 {
	return append([]float64(nil), v...)
}
