package textnorm

import (
	"regexp"
	"strings"
)

var (
	listLine  = regexp.MustCompile(`^\s*(?:\d+\.\s+|[-*]\s+)`)
	tableLine = regexp.MustCompile(`^\s*\|.*\|\s*$`)
)

// IsListLine reports whether line is a numbered or bulleted list item.
func IsListLine(line string) bool { return listLine.MatchString(line) }

// IsTableLine reports whether line is a markdown table row.
func IsTableLine(line string) bool { return tableLine.MatchString(line) }

// Structured reports whether any line of text is a list item or table row.
// Structured text is kept line by line and never sentence-split.
func Structured(text string) bool {
	for _, line := range strings.Split(text, "\n") {
		if IsListLine(line) || IsTableLine(line) {
			return true
		}
	}
	return false
}
