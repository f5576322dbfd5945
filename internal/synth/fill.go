package synth

import (
	"context"
	"fmt"
	"strings"

	"github.com/MikeSquared-Agency/casi/internal/textnorm"
)

const maxParaphraseSentences = 2

// filler maps ranked sentences onto template slots for one request.
type filler struct {
	s        *Synthesizer
	ctx      context.Context
	in       Input
	ranked   []string
	topic    string
	domain   string
	keywords []string
	extra    string
	// external is the leading run of ranked that came from the knowledge
	// service. taken records every ranked sentence a template slot used.
	external []string
	taken    map[string]bool
}

func (s *Synthesizer) newFiller(ctx context.Context, in Input, ranked []string, external int, d *Draft) *filler {
	a := in.Selection.Analysis
	f := &filler{
		s:        s,
		ctx:      ctx,
		in:       in,
		ranked:   ranked,
		domain:   contextOf(a),
		keywords: a.Keywords,
		external: ranked[:external],
		taken:    make(map[string]bool),
	}
	switch {
	case len(a.Entities) > 0:
		f.topic = a.Entities[0].Value
	case len(a.Keywords) > 0:
		f.topic = a.Keywords[0]
	default:
		if w := strings.Fields(in.Prompt); len(w) > 0 {
			f.topic = strings.ToLower(w[0])
		}
	}

	// With external text leading the answer, the best stored match follows
	// as a second voice: rewritten by the generator when one is available,
	// verbatim otherwise.
	if len(f.external) > 0 && in.Selection.Best != nil {
		if s.paraphrase.Available() {
			src := firstSentences(in.Selection.Best.Text, maxParaphraseSentences)
			if res := s.paraphrase.Paraphrase(ctx, src); !res.Degraded() && !f.used(res.Value) {
				f.extra = res.Value
				d.Paraphrase = res.Value
			}
		}
		if f.extra == "" && len(ranked) > external {
			f.extra = ranked[external]
		}
	}
	return f
}

// sentence returns the i-th ranked sentence or def.
func (f *filler) sentence(i int, def string) string {
	if i < len(f.ranked) {
		return f.take(f.ranked[i])
	}
	return def
}

func (f *filler) sentences(from, to int) []string {
	if from >= len(f.ranked) {
		return nil
	}
	if to > len(f.ranked) {
		to = len(f.ranked)
	}
	for _, s := range f.ranked[from:to] {
		f.take(s)
	}
	return f.ranked[from:to]
}

func (f *filler) take(s string) string {
	f.taken[s] = true
	return s
}

// externalIn reports whether any external sentence made it into text.
func (f *filler) externalIn(text string) bool {
	for _, s := range f.external {
		if strings.Contains(text, s) {
			return true
		}
	}
	return false
}

func (f *filler) keyword(i int, def string) string {
	if i < len(f.keywords) {
		return f.keywords[i]
	}
	return def
}

// describe is the lead sentence: the best ranked sentence, else a
// generated one-line explanation, else a stock sentence.
func (f *filler) describe() string {
	if len(f.ranked) > 0 {
		return f.take(f.ranked[0])
	}
	if res := f.s.paraphrase.Explain(f.ctx, f.topic); !res.Degraded() {
		return res.Value
	}
	return f.topic + " is a key concept in " + f.domain + "."
}

func (f *filler) used(text string) bool {
	text = strings.ToLower(strings.TrimSpace(text))
	for _, r := range f.ranked {
		if strings.ToLower(r) == text {
			return true
		}
	}
	return false
}

// label names a sentence by its leading keyword.
func (f *filler) label(sentence string, i int) string {
	if kw := f.s.extractor.Keywords(sentence, 1); len(kw) > 0 {
		return textnorm.Capitalize(kw[0])
	}
	return fmt.Sprintf("Item %d", i+1)
}

func (f *filler) fill(intent Intent) slots {
	d := slots{Topic: f.topic, Context: f.domain, Extra: f.extra}
	switch intent {
	case List:
		for i, s := range f.sentences(0, 3) {
			d.Items = append(d.Items, item{Name: f.label(s, i), Text: s})
		}
	case Comparison:
		d.Item1 = f.keyword(0, "the first concept")
		d.Item2 = f.keyword(1, "the second concept")
		d.Desc1 = f.mentioning(d.Item1, "")
		d.Desc2 = f.mentioning(d.Item2, d.Desc1)
		d.Summary = d.Item1 + " and " + d.Item2 + " differ in purpose and approach."
		if d.Desc2 == "" {
			d.Desc2 = "No details on " + d.Item2 + " yet."
		}
	case Definition:
		d.Body = f.describe()
	case Story:
		d.Body = strings.Join(f.sentences(0, 2), " ")
		d.Closing = "Conclusion: " + f.topic + " shapes our understanding of " + f.domain + "."
	case QA:
		q := strings.TrimSpace(f.in.Prompt)
		if !strings.HasSuffix(q, "?") {
			q = strings.TrimRight(q, ".!") + "?"
		}
		d.Question = textnorm.Capitalize(q)
		d.Answer = strings.Join(f.sentences(0, 2), " ")
	case Summary:
		d.Body = f.describe()
		d.Lines = f.sentences(1, 4)
		if len(d.Lines) == 0 {
			d.Lines = []string{"Related to " + f.domain + "."}
		}
	case Table:
		for i, s := range f.sentences(0, 3) {
			d.Items = append(d.Items, item{Name: f.label(s, i), Text: strings.ReplaceAll(s, "|", "/")})
		}
	case Tutorial:
		d.Lines = append([]string(nil), f.sentences(0, 3)...)
		if len(d.Lines) < 2 {
			d.Lines = append(d.Lines, "Apply "+f.domain+" in practice.")
		}
		d.Focus = f.keyword(2, "key concepts")
	case ProsCons:
		d.Lines = f.sentences(0, 2)
		d.Lines2 = []string{f.sentence(2, "Requires understanding of "+f.keyword(2, "its complexity")+".")}
	case FAQ:
		d.Items = []item{
			{Name: "What is " + f.topic + "?", Text: f.describe()},
			{Name: "How does " + f.topic + " work?", Text: f.sentence(1, "It involves "+f.domain+".")},
		}
	case Timeline:
		d.Items = []item{
			{Name: "Early", Text: f.describe()},
			{Name: "Recent", Text: f.sentence(1, "Advances in "+f.domain+".")},
		}
	case CodeSnippet:
		d.Language = f.language()
		d.Body = strings.ReplaceAll(f.describe(), `"`, "'")
	case CaseStudy:
		d.Body = f.describe()
		d.Desc1 = f.sentence(1, "It relates to "+f.domain+" through practical applications.")
		d.Closing = f.sentence(2, textnorm.Capitalize(f.topic)+" achieved significant results.")
	case Recommendation:
		d.Lines = append([]string(nil), f.sentences(0, 2)...)
		if len(d.Lines) < 2 {
			d.Lines = append(d.Lines, "Leverage "+f.domain+" for better results.")
		}
		d.Focus = f.keyword(2, "analysis")
	case Interview:
		d.Items = []item{
			{Name: "What is " + f.topic + "?", Text: f.describe()},
			{Name: "Why is " + f.topic + " important?", Text: f.sentence(1, "It drives "+f.domain+".")},
		}
	case Glossary:
		d.Items = []item{
			{Name: f.topic, Text: f.describe()},
			{Name: f.domain, Text: f.sentence(1, "Related to "+f.keyword(2, "core concepts")+".")},
		}
	case Troubleshooting:
		d.Items = []item{
			{Name: "Understanding " + f.topic, Text: f.describe()},
			{Name: "Applying " + f.topic, Text: f.sentence(1, "Practice with "+f.domain+".")},
		}
		d.Focus = f.keyword(2, "fundamentals")
	case Roadmap:
		d.Items = []item{
			{Name: "Short-term", Text: f.describe()},
			{Name: "Long-term", Text: f.sentence(1, "Scale "+f.domain+".")},
		}
	case Analysis:
		d.Body = f.describe()
		d.Lines = f.sentences(1, 3)
		if len(d.Lines) == 0 {
			d.Lines = []string{"Related to " + f.domain + ".", "Impacts " + f.keyword(2, "outcomes") + "."}
		}
		d.Closing = textnorm.Capitalize(f.topic) + " drives innovation in " + f.domain + "."
	default:
		d.Body = strings.Join(f.sentences(0, explanationSpan), " ")
		if ex := f.keywords; len(ex) > 2 {
			end := len(ex)
			if end > 4 {
				end = 4
			}
			d.Focus = strings.Join(ex[2:end], ", ")
		}
	}
	if f.taken[d.Extra] {
		d.Extra = ""
	}
	return d
}

// mentioning returns the best sentence naming term, skipping exclude.
// Without a match it takes the best sentence that is not exclude.
func (f *filler) mentioning(term, exclude string) string {
	term = strings.ToLower(term)
	for _, s := range f.ranked {
		if s != exclude && strings.Contains(strings.ToLower(s), term) {
			return f.take(s)
		}
	}
	for _, s := range f.ranked {
		if s != exclude {
			return f.take(s)
		}
	}
	return ""
}

func (f *filler) language() string {
	for _, w := range strings.Fields(textnorm.Normalize(f.in.Prompt)) {
		if lang, ok := languages[w]; ok {
			return lang
		}
	}
	return "Python"
}

func firstSentences(text string, n int) string {
	var out []string
	for _, line := range strings.Split(textnorm.PlainText(text), "\n") {
		for _, s := range textnorm.SplitSentences(line) {
			if len(out) == n {
				return strings.Join(out, " ")
			}
			out = append(out, s)
		}
	}
	return strings.Join(out, " ")
}
