package synth

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/MikeSquared-Agency/casi/internal/embedding"
	"github.com/MikeSquared-Agency/casi/internal/extract"
	"github.com/MikeSquared-Agency/casi/internal/paraphrase"
	"github.com/MikeSquared-Agency/casi/internal/selector"
	"github.com/MikeSquared-Agency/casi/internal/textnorm"
)

const (
	maxRankedSentences = 40
	explanationSpan    = 10
)

const selfDescription = "I'm CASI, a self-learning conversational engine. I answer from patterns I've learned, " +
	"blend in fresh knowledge when I can reach it, and get better with every vote you give me."

var greetings = []string{
	"Hello! I'm CASI, here to assist with knowledge or a friendly chat.",
	"Hi! Ready to explore any topic or question?",
	"Hey there! I'm excited to chat about anything you'd like.",
}

var languages = map[string]string{
	"python": "Python", "go": "Go", "golang": "Go", "javascript": "JavaScript", "typescript": "TypeScript",
	"java": "Java", "rust": "Rust", "ruby": "Ruby", "kotlin": "Kotlin", "swift": "Swift", "php": "PHP",
}

// Input is everything synthesis draws on.
type Input struct {
	Prompt    string
	Selection selector.Selection
	// External is text from the knowledge service, empty when unavailable.
	External string
}

// Draft is the unformatted answer plus how it was produced.
type Draft struct {
	Text         string
	Intent       Intent
	UsedExternal bool
	UsedPatterns bool
	// Paraphrase is the generator's rewrite of the best stored match. It is
	// empty unless the generator actually produced one.
	Paraphrase string
	Fallback   bool
}

type Synthesizer struct {
	embedder   *embedding.Service
	paraphrase *paraphrase.Paraphraser
	extractor  *extract.Extractor
	tmpl       templates
	logger     *slog.Logger
}

func New(emb *embedding.Service, para *paraphrase.Paraphraser, ex *extract.Extractor, logger *slog.Logger) *Synthesizer {
	return &Synthesizer{
		embedder:   emb,
		paraphrase: para,
		extractor:  ex,
		tmpl:       mustParseTemplates(),
		logger:     logger,
	}
}

// Synthesize never fails. A panic or template error anywhere below turns
// into the generic fallback answer.
func (s *Synthesizer) Synthesize(ctx context.Context, in Input) (d Draft) {
	d.Intent = Detect(in.Prompt)
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("synthesis failed, using fallback", "intent", d.Intent.String(), "panic", fmt.Sprint(r))
			d = s.fallback(in, d.Intent)
		}
	}()

	switch d.Intent {
	case SelfDescription:
		d.Text = selfDescription
		return d
	case Greeting:
		d.Text = greetings[xxhash.Sum64String(in.Prompt)%uint64(len(greetings))]
		return d
	}

	ranked, external := s.rank(ctx, in)
	if len(ranked) == 0 {
		return s.fallback(in, d.Intent)
	}

	f := s.newFiller(ctx, in, ranked, external, &d)
	data := f.fill(d.Intent)
	text, err := render(s.tmpl.byIntent[d.Intent], data)
	if err != nil {
		s.logger.Error("template render failed, using fallback", "intent", d.Intent.String(), "error", err)
		return s.fallback(in, d.Intent)
	}
	d.Text = finish(text, in.Selection.Analysis)
	d.UsedExternal = f.externalIn(text)
	d.UsedPatterns = len(in.Selection.Candidates) > 0
	return d
}

// Fallback renders the generic answer for prompt analysis a.
func (s *Synthesizer) Fallback(a extract.Analysis) string {
	return s.fallback(Input{Selection: selector.Selection{Analysis: a}}, Explanation).Text
}

func (s *Synthesizer) fallback(in Input, intent Intent) Draft {
	a := in.Selection.Analysis
	topic := a.FirstKeyword()
	if topic == "" {
		topic = "this"
	}
	text, err := render(s.tmpl.fallback, slots{Topic: topic, Context: contextOf(a)})
	if err != nil {
		text = "Let's explore " + topic + " together."
	}
	return Draft{Text: finish(text, extract.Analysis{}), Intent: intent, Fallback: true}
}

// rank orders sentences by similarity to the prompt within two groups:
// external sentences first, then stored ones. It returns the ranked list and
// how many leading entries are external. Without a prompt embedding the
// gathered order is kept.
func (s *Synthesizer) rank(ctx context.Context, in Input) ([]string, int) {
	seen := make(map[string]struct{})
	total := 0
	collect := func(texts ...string) []string {
		var out []string
		for _, text := range texts {
			for _, line := range strings.Split(textnorm.PlainText(text), "\n") {
				for _, sentence := range textnorm.SplitSentences(line) {
					key := strings.ToLower(sentence)
					if _, ok := seen[key]; ok || total >= maxRankedSentences {
						continue
					}
					seen[key] = struct{}{}
					total++
					out = append(out, sentence)
				}
			}
		}
		return out
	}
	var external []string
	if in.External != "" {
		external = collect(textnorm.Clean(in.External))
	}
	stored := make([]string, 0, len(in.Selection.Candidates))
	for _, c := range in.Selection.Candidates {
		stored = append(stored, collect(c.Text)...)
	}

	if !in.Selection.EmbeddingDegraded && !embedding.IsZero(in.Selection.PromptEmbedding) {
		external = s.bySimilarity(ctx, external, in.Selection.PromptEmbedding)
		stored = s.bySimilarity(ctx, stored, in.Selection.PromptEmbedding)
	}
	return append(external, stored...), len(external)
}

func (s *Synthesizer) bySimilarity(ctx context.Context, sentences []string, prompt []float64) []string {
	if len(sentences) < 2 {
		return sentences
	}
	sims := make([]float64, len(sentences))
	for i, res := range s.embedder.EmbedAll(ctx, sentences) {
		sims[i] = embedding.Cosine(prompt, res.Value)
	}
	idx := make([]int, len(sentences))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return sims[idx[a]] > sims[idx[b]] })
	out := make([]string, len(idx))
	for i, j := range idx {
		out[i] = sentences[j]
	}
	return out
}

// finish applies the output invariants: the prompt's main entity is named,
// stuttered words collapse, and prose starts upper-case and ends with
// terminal punctuation. List and table output keeps its line structure.
func finish(text string, a extract.Analysis) string {
	text = strings.TrimSpace(text)
	if len(a.Entities) > 0 {
		ent := a.Entities[0].Value
		if ent != "" && !strings.Contains(strings.ToLower(text), strings.ToLower(ent)) {
			sep := ": "
			if textnorm.Structured(text) {
				sep = ":\n"
			}
			text = textnorm.Capitalize(ent) + sep + text
		}
	}
	text = textnorm.CollapseRepeatedWords(text)
	text = textnorm.PreserveFormatting(text)
	if !textnorm.Structured(text) {
		text = textnorm.Capitalize(text)
		if !textnorm.EndsWithTerminal(text) {
			text += "."
		}
	}
	return text
}

func contextOf(a extract.Analysis) string {
	if len(a.Keywords) > 1 {
		return a.Keywords[1]
	}
	return "this topic"
}
