package textnorm

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

var (
	entityApos    = strings.NewReplacer("&#039;", "'", "&#39;", "'", "&apos;", "'")
	dashesQuotes  = strings.NewReplacer("–", "-", "—", "-", "’", "'", "‘", "'", "“", "", "”", "")
	promptNoise   = regexp.MustCompile(`[^\p{L}\p{M}\p{N}\s.,!?*'|-]`)
	repeatedDots  = regexp.MustCompile(`\.{2,}`)
	horizontalWS  = regexp.MustCompile(`[ \t\f\v\r]+`)
	spaceBeforeP  = regexp.MustCompile(`[ \t]+([.,!?;:])`)
	blankLines    = regexp.MustCompile(`\n{3,}`)
	htmlEntity    = regexp.MustCompile(`&(?:[a-zA-Z]+|#\d+);`)
	camelBoundary = regexp.MustCompile(`(\p{Ll})(\p{Lu})`)
)

// Normalize canonicalizes a user prompt: unicode compatibility forms,
// encoding artifacts, dash/quote variants and stray symbols are folded away
// and the result is lowercased.
func Normalize(prompt string) string {
	s := norm.NFKC.String(prompt)
	s = entityApos.Replace(s)
	s = dashesQuotes.Replace(s)
	s = promptNoise.ReplaceAllString(s, "")
	s = repeatedDots.ReplaceAllString(s, ".")
	s = strings.Join(strings.Fields(s), " ")
	return strings.ToLower(s)
}

// Clean repairs scraped or generated text: non-breaking spaces, HTML
// entities, glued camelCase words and stuttered words.
func Clean(text string) string {
	s := norm.NFKC.String(text)
	s = strings.ReplaceAll(s, "\u00a0", " ")
	s = entityApos.Replace(s)
	s = strings.NewReplacer("&amp;", "&", "&quot;", `"`, "&nbsp;", " ", "&lt;", "<", "&gt;", ">").Replace(s)
	s = htmlEntity.ReplaceAllString(s, "")
	s = camelBoundary.ReplaceAllString(s, "$1 $2")
	s = CollapseRepeatedWords(s)
	return PreserveFormatting(s)
}

// PreserveFormatting tidies whitespace without destroying line structure:
// runs of blanks collapse, blank-line runs shrink to one and whitespace in
// front of punctuation is removed.
func PreserveFormatting(text string) string {
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	for i, line := range lines {
		line = horizontalWS.ReplaceAllString(line, " ")
		line = spaceBeforeP.ReplaceAllString(line, "$1")
		lines[i] = strings.TrimSpace(line)
	}
	s := strings.Join(lines, "\n")
	s = blankLines.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

// CollapseRepeatedWords removes immediately repeated words ("the the" ->
// "the"), case-insensitively, line by line.
func CollapseRepeatedWords(text string) string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = collapseLine(line)
	}
	return strings.Join(lines, "\n")
}

func collapseLine(line string) string {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return line
	}
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if n := len(out); n > 0 {
			prev := out[n-1]
			run := leadingWord(f)
			if isWord(prev) && run != "" && strings.EqualFold(prev, run) {
				out[n-1] = prev + f[len(run):]
				continue
			}
		}
		out = append(out, f)
	}
	return strings.Join(out, " ")
}

func leadingWord(s string) string {
	for i, r := range s {
		if !isWordRune(r) {
			return s[:i]
		}
	}
	return s
}

func isWord(s string) bool {
	return s != "" && leadingWord(s) == s
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_'
}

// SplitSentences splits text on terminal punctuation. A run of '.', '!' or
// '?' ends a sentence only when whitespace or the end of text follows it, so
// "3.14", "Go 1.22" and "example.com" stay whole. Trailing text without
// punctuation becomes the last sentence.
func SplitSentences(text string) []string {
	var out []string
	emit := func(m string) {
		if s := strings.TrimSpace(m); s != "" && strings.IndexFunc(s, isWordRune) >= 0 {
			out = append(out, s)
		}
	}
	start := 0
	for i := 0; i < len(text); {
		if !isTerminal(text[i]) {
			i++
			continue
		}
		end := i
		for end < len(text) && isTerminal(text[end]) {
			end++
		}
		if end == len(text) || unicode.IsSpace(rune(text[end])) {
			emit(text[start:end])
			start = end
		}
		i = end
	}
	emit(text[start:])
	return out
}

func isTerminal(b byte) bool { return b == '.' || b == '!' || b == '?' }

// Capitalize upper-cases the first letter, skipping leading markup such as
// "**".
func Capitalize(s string) string {
	for i, r := range s {
		if unicode.IsLetter(r) {
			if unicode.IsUpper(r) {
				return s
			}
			return s[:i] + string(unicode.ToUpper(r)) + s[i+len(string(r)):]
		}
		if unicode.IsDigit(r) {
			return s
		}
	}
	return s
}

// WordCount counts whitespace-separated words.
func WordCount(s string) int {
	return len(strings.Fields(s))
}

// EndsWithTerminal reports whether s ends in ., ! or ?.
func EndsWithTerminal(s string) bool {
	s = strings.TrimRightFunc(s, unicode.IsSpace)
	if s == "" {
		return false
	}
	switch s[len(s)-1] {
	case '.', '!', '?':
		return true
	}
	return false
}
