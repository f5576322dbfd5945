package prune

import (
	"sort"

	"github.com/MikeSquared-Agency/casi/internal/store"
)

// redundant walks the patterns named in pairs from best to worst and marks
// a pattern redundant when it is similar to a better pattern that was kept.
// Survivors are never similar to each other, so a second walk over them
// finds nothing.
func redundant(pairs []store.SimilarPair, live map[string]store.Pattern) []string {
	if len(pairs) == 0 {
		return nil
	}

	neighbours := make(map[string][]string)
	for _, pair := range pairs {
		neighbours[pair.ID1] = append(neighbours[pair.ID1], pair.ID2)
		neighbours[pair.ID2] = append(neighbours[pair.ID2], pair.ID1)
	}
	order := make([]store.Pattern, 0, len(neighbours))
	for id := range neighbours {
		order = append(order, live[id])
	}
	sort.Slice(order, func(i, j int) bool { return isBetter(order[i], order[j]) })

	kept := make(map[string]bool, len(order))
	var doomed []string
	for _, p := range order {
		similarToKept := false
		for _, n := range neighbours[p.ID] {
			if kept[n] {
				similarToKept = true
				break
			}
		}
		if similarToKept {
			doomed = append(doomed, p.ID)
			continue
		}
		kept[p.ID] = true
	}
	sort.Strings(doomed)
	return doomed
}

// survivor picks the member of a group to keep.
func survivor(members []store.Pattern) store.Pattern {
	best := members[0]
	for _, p := range members[1:] {
		if isBetter(p, best) {
			best = p
		}
	}
	return best
}

// isBetter reports whether a should survive over b: higher combined
// confidence and feedback score, then more recently updated, then lower id.
func isBetter(a, b store.Pattern) bool {
	if as, bs := a.Score(), b.Score(); as != bs {
		return as > bs
	}
	if !a.UpdatedAt.Equal(b.UpdatedAt) {
		return a.UpdatedAt.After(b.UpdatedAt)
	}
	return a.ID < b.ID
}
