package synth

import (
	"strings"
	"unicode"
)

// Intent is the kind of answer a prompt asks for.
type Intent int

const (
	SelfDescription Intent = iota
	Greeting
	List
	Comparison
	Definition
	Story
	QA
	Summary
	Table
	Tutorial
	ProsCons
	FAQ
	Timeline
	CodeSnippet
	CaseStudy
	Recommendation
	Interview
	Glossary
	Troubleshooting
	Roadmap
	Analysis
	Explanation
)

var intentNames = [...]string{
	SelfDescription: "self_description",
	Greeting:        "greeting",
	List:            "list",
	Comparison:      "comparison",
	Definition:      "definition",
	Story:           "story",
	QA:              "qa",
	Summary:         "summary",
	Table:           "table",
	Tutorial:        "tutorial",
	ProsCons:        "pros_cons",
	FAQ:             "faq",
	Timeline:        "timeline",
	CodeSnippet:     "code_snippet",
	CaseStudy:       "case_study",
	Recommendation:  "recommendation",
	Interview:       "interview",
	Glossary:        "glossary",
	Troubleshooting: "troubleshooting",
	Roadmap:         "roadmap",
	Analysis:        "analysis",
	Explanation:     "explanation",
}

func (i Intent) String() string {
	if i < 0 || int(i) >= len(intentNames) {
		return "unknown"
	}
	return intentNames[i]
}

// intentTable is matched in order; the first intent with a phrase present
// in the prompt wins. Greeting sits between SelfDescription and List but is
// only chosen when nothing else matched.
var intentTable = []struct {
	intent  Intent
	phrases []string
}{
	{SelfDescription, []string{"who are you", "what are you", "your name", "about yourself", "what is casi", "who is casi", "what can you do"}},
	{List, []string{"list", "types", "examples"}},
	{Comparison, []string{"compare", "comparison", "versus", "vs", "difference between"}},
	{Definition, []string{"define", "definition", "what is", "what are", "meaning of"}},
	{Story, []string{"story", "tell me about", "history"}},
	{QA, []string{"why", "how does", "how do", "how is", "how can"}},
	{Summary, []string{"summarize", "summarise", "summary", "overview"}},
	{Table, []string{"table", "chart"}},
	{Tutorial, []string{"tutorial", "guide", "how to"}},
	{ProsCons, []string{"pros and cons", "advantages", "disadvantages"}},
	{FAQ, []string{"faq", "questions", "answers"}},
	{Timeline, []string{"timeline", "chronology"}},
	{CodeSnippet, []string{"code", "program", "script"}},
	{CaseStudy, []string{"case study", "scenario", "example"}},
	{Recommendation, []string{"recommend", "suggest", "best practices"}},
	{Interview, []string{"interview", "discussion"}},
	{Glossary, []string{"glossary", "terms", "definitions"}},
	{Troubleshooting, []string{"troubleshoot", "troubleshooting", "fix", "issues", "error"}},
	{Roadmap, []string{"roadmap", "plan", "strategy"}},
	{Analysis, []string{"analyze", "analyse", "analysis", "evaluate"}},
}

var greetingWords = map[string]struct{}{
	"hi": {}, "hello": {}, "hey": {}, "hiya": {}, "howdy": {}, "greetings": {}, "yo": {},
	"morning": {}, "afternoon": {}, "evening": {}, "sup": {},
}

const maxGreetingWords = 5

// Detect classifies prompt. Phrases match on whole words only, so "show"
// never triggers "how".
func Detect(prompt string) Intent {
	words := strings.FieldsFunc(strings.ToLower(prompt), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	if len(words) == 0 {
		return Explanation
	}
	padded := " " + strings.Join(words, " ") + " "

	if hasAny(padded, intentTable[0].phrases) {
		return SelfDescription
	}
	matched := Explanation
	for _, row := range intentTable[1:] {
		if hasAny(padded, row.phrases) {
			matched = row.intent
			break
		}
	}
	if matched == Explanation && isGreeting(words, padded) {
		return Greeting
	}
	return matched
}

// isGreeting accepts short prompts opening with a greeting word. Callers
// only ask once no other intent matched.
func isGreeting(words []string, padded string) bool {
	if len(words) > maxGreetingWords {
		return false
	}
	if strings.Contains(padded, " how are you ") {
		return true
	}
	first := words[0]
	if first == "good" && len(words) > 1 {
		first = words[1]
	}
	_, ok := greetingWords[first]
	return ok
}

func hasAny(padded string, phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(padded, " "+p+" ") {
			return true
		}
	}
	return false
}
