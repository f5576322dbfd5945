package format

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/MikeSquared-Agency/casi/internal/casierr"
	"github.com/MikeSquared-Agency/casi/internal/textnorm"
)

// Mood selects terminal punctuation for sentence-based output.
type Mood string

const (
	Neutral      Mood = "neutral"
	Empathetic   Mood = "empathetic"
	Enthusiastic Mood = "enthusiastic"
	// Playful is accepted as an alias of Enthusiastic.
	Playful Mood = "playful"
)

const (
	DefaultMaxWords = 100
	// Filler is returned when nothing survives formatting.
	Filler = "Let's explore this topic together."
)

var (
	datePattern = regexp.MustCompile(`\b(?:Jan|Feb|Mar|Apr|May|Jun|Jul|Aug|Sep|Oct|Nov|Dec)[a-z]*\.?\s+\d{1,2},\s+\d{4}\b`)
	noise       = regexp.MustCompile(`[^\p{L}\p{M}\p{N}\s.,!?*'"():;|#_/%&+$\-]`)
	terminalRun = regexp.MustCompile(`[.!?]+$`)
)

// ParseMood maps a request mood onto a Mood. The empty string is Neutral.
func ParseMood(s string) (Mood, error) {
	switch m := Mood(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return Neutral, nil
	case Neutral, Empathetic, Enthusiastic:
		return m, nil
	case Playful:
		return Enthusiastic, nil
	default:
		return "", fmt.Errorf("parse mood: %w", casierr.Invalid("mood", "unknown mood %q", s))
	}
}

// Format returns text cut to at most maxWords words. List and table text is
// truncated line by line; everything else is rebuilt from whole sentences
// with mood punctuation, capitalized and terminated. The result is never
// empty, and formatting an already formatted text changes nothing.
func Format(text string, maxWords int, mood Mood) string {
	if maxWords <= 0 {
		maxWords = DefaultMaxWords
	}
	if mood == Playful {
		mood = Enthusiastic
	}

	s := strip(text)
	if textnorm.Structured(s) {
		s = truncateLines(s, maxWords)
		if textnorm.Structured(s) {
			return s
		}
	}
	return prose(s, maxWords, mood)
}

// strip removes dates and noise until nothing more changes. One removal can
// close the gap between the pieces of another date.
func strip(text string) string {
	s := textnorm.PreserveFormatting(text)
	for {
		next := datePattern.ReplaceAllString(s, "")
		next = noise.ReplaceAllString(next, "")
		next = textnorm.PreserveFormatting(next)
		if next == s {
			return s
		}
		s = next
	}
}

// truncateLines keeps whole lines while the budget allows. The line that
// overflows is cut at the budget, except table rows, which are dropped
// whole so they stay rows.
func truncateLines(s string, maxWords int) string {
	var out []string
	used := 0
	for _, line := range strings.Split(s, "\n") {
		n := textnorm.WordCount(line)
		if used+n <= maxWords {
			out = append(out, line)
			used += n
			continue
		}
		left := maxWords - used
		if left > 0 && !textnorm.IsTableLine(line) {
			cut := strings.Join(strings.Fields(line)[:left], " ")
			if !textnorm.IsListLine(line) || left > 1 {
				out = append(out, cut)
			}
		}
		break
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}

func prose(s string, maxWords int, mood Mood) string {
	var kept []string
	used := 0
	for _, sentence := range textnorm.SplitSentences(s) {
		n := textnorm.WordCount(sentence)
		if used+n > maxWords {
			if len(kept) == 0 {
				kept = append(kept, strings.Join(strings.Fields(sentence)[:maxWords], " "))
			}
			break
		}
		kept = append(kept, sentence)
		used += n
	}
	if len(kept) == 0 {
		kept = []string{Filler}
	}
	for i, sentence := range kept {
		kept[i] = punctuate(sentence, mood, i == len(kept)-1)
	}
	return textnorm.Capitalize(strings.Join(kept, " "))
}

func punctuate(sentence string, mood Mood, last bool) string {
	switch mood {
	case Enthusiastic:
		return terminalRun.ReplaceAllString(sentence, "") + "!"
	case Empathetic:
		return terminalRun.ReplaceAllString(sentence, "") + "."
	}
	if last && !textnorm.EndsWithTerminal(sentence) {
		return sentence + "."
	}
	return sentence
}
