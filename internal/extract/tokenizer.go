package extract

import (
	"strings"
	"unicode"
)

// Tokenizer splits text into lowercase word tokens and drops stopwords.
type Tokenizer struct {
	stopwords map[string]struct{}
}

// NewTokenizer creates a tokenizer with the given stopword list.
func NewTokenizer(stopwords []string) *Tokenizer {
	stops := make(map[string]struct{}, len(stopwords))
	for _, w := range stopwords {
		stops[strings.ToLower(w)] = struct{}{}
	}
	return &Tokenizer{stopwords: stops}
}

// Tokenize returns content tokens in order of appearance.
func (t *Tokenizer) Tokenize(text string) []string {
	var tokens []string
	for _, w := range words(text) {
		if t.keep(w) {
			tokens = append(tokens, w)
		}
	}
	return tokens
}

// IsStop reports whether the token is filtered out.
func (t *Tokenizer) IsStop(token string) bool {
	_, ok := t.stopwords[token]
	return ok
}

func (t *Tokenizer) keep(w string) bool {
	if len([]rune(w)) <= 1 || isNumericOnly(w) {
		return false
	}
	return !t.IsStop(w)
}

// words lowercases and splits on anything that is not a letter, digit,
// combining mark or inner hyphen. No filtering is applied.
func words(text string) []string {
	var out []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() == 0 {
			return
		}
		if w := strings.Trim(cur.String(), "-"); w != "" {
			out = append(out, w)
		}
		cur.Reset()
	}
	for _, r := range text {
		switch {
		case r == '\'':
			continue
		case unicode.IsLetter(r) || unicode.IsNumber(r) || unicode.Is(unicode.Mn, r) || r == '-':
			cur.WriteRune(unicode.ToLower(r))
		default:
			flush()
		}
	}
	flush()
	return out
}

func isNumericOnly(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) && r != '-' && r != '.' {
			return false
		}
	}
	return true
}

// DefaultStopwords is a compact English stoplist plus the request verbs
// that describe what the user wants rather than what they ask about.
var DefaultStopwords = []string{
	"a", "about", "above", "after", "again", "all", "also", "am", "an", "and", "any", "are", "as", "at",
	"be", "because", "been", "before", "being", "below", "between", "both", "but", "by",
	"can", "could", "did", "do", "does", "doing", "down", "during", "each", "few", "for", "from", "further",
	"had", "has", "have", "having", "he", "her", "here", "hers", "him", "his", "how", "i", "if", "in", "into",
	"is", "it", "its", "itself", "just", "me", "more", "most", "my", "no", "nor", "not", "now", "of", "off",
	"on", "once", "only", "or", "other", "our", "out", "over", "own", "same", "she", "should", "so", "some",
	"such", "than", "that", "the", "their", "them", "then", "there", "these", "they", "this", "those",
	"through", "to", "too", "under", "until", "up", "us", "very", "was", "we", "were", "what", "when",
	"where", "which", "while", "who", "whom", "why", "will", "with", "would", "you", "your", "yours",
	"please", "tell", "explain", "describe", "define", "give", "show", "list", "compare", "versus", "vs",
	"summarize", "summary", "overview", "know", "want", "need", "let", "lets", "thing", "things",
}
