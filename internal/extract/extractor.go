package extract

import (
	"sort"
	"strings"
	"unicode"

	"github.com/MikeSquared-Agency/casi/internal/store"
	"github.com/MikeSquared-Agency/casi/internal/textnorm"
)

// Entity types produced by the extractor.
const (
	EntityName  = "name"
	EntityTopic = "topic"
)

// Analysis is everything the pipeline needs to know about one text.
type Analysis struct {
	Normalized string
	Keywords   []string
	Entities   []store.Entity
	Concept    string
	Sentiment  float64
}

// FirstKeyword returns the most salient keyword, the concept, or the
// normalized text, whichever exists first.
func (a Analysis) FirstKeyword() string {
	if len(a.Keywords) > 0 {
		return a.Keywords[0]
	}
	if a.Concept != "" {
		return a.Concept
	}
	return a.Normalized
}

// Terms lists the lookup terms for the repository: concept, entity values
// and keywords, deduplicated, in that order.
func (a Analysis) Terms() []string {
	seen := make(map[string]struct{})
	var out []string
	add := func(s string) {
		s = strings.ToLower(strings.TrimSpace(s))
		if s == "" {
			return
		}
		if _, ok := seen[s]; ok {
			return
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	add(a.Concept)
	for _, e := range a.Entities {
		add(e.Value)
	}
	for _, k := range a.Keywords {
		add(k)
	}
	return out
}

// Extractor is safe for concurrent use.
type Extractor struct {
	tok *Tokenizer
}

// New creates an extractor using DefaultStopwords.
func New() *Extractor {
	return &Extractor{tok: NewTokenizer(DefaultStopwords)}
}

// Analyze runs the full extraction over raw text.
func (e *Extractor) Analyze(raw string) Analysis {
	normalized := textnorm.Normalize(raw)
	a := Analysis{
		Normalized: normalized,
		Keywords:   e.Keywords(normalized, 8),
		Sentiment:  Sentiment(normalized),
	}
	a.Entities = append(e.names(raw), e.topics(normalized)...)
	a.Entities = dedupeEntities(a.Entities)
	a.Concept = concept(a)
	return a
}

// Keywords returns up to limit content tokens ranked by frequency, ties
// broken by first appearance. limit <= 0 returns all.
func (e *Extractor) Keywords(text string, limit int) []string {
	tokens := e.tok.Tokenize(text)
	counts := make(map[string]int)
	first := make(map[string]int)
	var uniq []string
	for i, t := range tokens {
		if _, ok := counts[t]; !ok {
			first[t] = i
			uniq = append(uniq, t)
		}
		counts[t]++
	}
	sort.SliceStable(uniq, func(i, j int) bool {
		if counts[uniq[i]] != counts[uniq[j]] {
			return counts[uniq[i]] > counts[uniq[j]]
		}
		return first[uniq[i]] < first[uniq[j]]
	})
	if limit > 0 && len(uniq) > limit {
		uniq = uniq[:limit]
	}
	return uniq
}

// topics returns maximal runs of consecutive content words, so "what is
// machine learning" yields the single topic "machine learning".
func (e *Extractor) topics(normalized string) []store.Entity {
	var out []store.Entity
	var run []string
	flush := func() {
		if len(run) > 0 {
			out = append(out, store.Entity{Value: strings.Join(run, " "), Type: EntityTopic})
			run = nil
		}
	}
	for _, w := range words(normalized) {
		if e.tok.keep(w) {
			run = append(run, w)
			if len(run) == 3 {
				flush()
			}
			continue
		}
		flush()
	}
	flush()
	return out
}

// names finds capitalized word runs that do not merely open a sentence.
func (e *Extractor) names(raw string) []store.Entity {
	var out []store.Entity
	for _, sentence := range textnorm.SplitSentences(raw) {
		fields := strings.Fields(sentence)
		var run []string
		flush := func() {
			if len(run) > 0 {
				out = append(out, store.Entity{Value: strings.ToLower(strings.Join(run, " ")), Type: EntityName})
				run = nil
			}
		}
		for i, f := range fields {
			w := trimmed(f)
			opener := i == 0 && !(len(fields) > 1 && isCapitalized(trimmed(fields[1])))
			if len([]rune(w)) < 2 || !isCapitalized(w) || opener || e.tok.IsStop(strings.ToLower(w)) {
				flush()
				continue
			}
			run = append(run, w)
			if strings.ContainsAny(f[len(f)-1:], ",;:.!?") {
				flush()
			}
		}
		flush()
	}
	return out
}

func trimmed(f string) string {
	return strings.TrimFunc(f, func(r rune) bool { return !unicode.IsLetter(r) && !unicode.IsDigit(r) })
}

func isCapitalized(w string) bool {
	for _, r := range w {
		return unicode.IsUpper(r)
	}
	return false
}

func dedupeEntities(in []store.Entity) []store.Entity {
	seen := make(map[string]struct{}, len(in))
	out := in[:0]
	for _, e := range in {
		if _, ok := seen[e.Value]; ok || e.Value == "" {
			continue
		}
		seen[e.Value] = struct{}{}
		out = append(out, e)
	}
	return out
}

func concept(a Analysis) string {
	if len(a.Entities) > 0 {
		return a.Entities[0].Value
	}
	if len(a.Keywords) > 0 {
		return a.Keywords[0]
	}
	return a.Normalized
}
