package scrape

import (
	"strings"

	"github.com/MikeSquared-Agency/casi/internal/textnorm"
)

const (
	maxChunkSentences = 5
	maxChunkWords     = 120
	minChunkWords     = 4
)

// Chunk splits page text into sentence groups small enough to serve as
// patterns. Groups break on paragraph boundaries and on sentence or word
// count; fragments under minChunkWords are dropped.
func Chunk(text string) []string {
	var chunks []string
	var current []string
	words := 0

	flush := func() {
		if len(current) > 0 && words >= minChunkWords {
			chunks = append(chunks, strings.Join(current, " "))
		}
		current = nil
		words = 0
	}

	for _, para := range strings.Split(text, "\n\n") {
		for _, line := range strings.Split(para, "\n") {
			for _, s := range textnorm.SplitSentences(line) {
				n := textnorm.WordCount(s)
				if len(current) >= maxChunkSentences || (len(current) > 0 && words+n > maxChunkWords) {
					flush()
				}
				current = append(current, s)
				words += n
			}
		}
		// Break on paragraph boundary.
		flush()
	}
	return chunks
}
