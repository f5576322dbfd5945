package synth

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/MikeSquared-Agency/casi/internal/embedding"
	"github.com/MikeSquared-Agency/casi/internal/extract"
	"github.com/MikeSquared-Agency/casi/internal/paraphrase"
	"github.com/MikeSquared-Agency/casi/internal/selector"
	"github.com/MikeSquared-Agency/casi/internal/store"
	"github.com/MikeSquared-Agency/casi/internal/textnorm"
)

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

type fixedGenerator struct {
	out   string
	panic bool
}

func (g *fixedGenerator) Name() string { return "fixed" }
func (g *fixedGenerator) Generate(context.Context, string, paraphrase.Options) (string, error) {
	if g.panic {
		panic("generator exploded")
	}
	return g.out, nil
}

func newSynth(t *testing.T, gen paraphrase.Generator) *Synthesizer {
	t.Helper()
	emb, err := embedding.NewService(embedding.NewHash(64), 100, time.Second, quiet())
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return New(emb, paraphrase.New(gen, time.Second, quiet()), extract.New(), quiet())
}

// input builds a selection the way the selector would for prompt.
func input(t *testing.T, s *Synthesizer, prompt string, texts ...string) Input {
	t.Helper()
	sel := selector.Selection{Analysis: s.extractor.Analyze(prompt)}
	sel.PromptEmbedding = s.embedder.Embed(context.Background(), textnorm.Normalize(prompt)).Value
	for _, text := range texts {
		p, err := store.NewPattern("test", text, "test", 0.9)
		if err != nil {
			t.Fatalf("NewPattern: %v", err)
		}
		sel.Candidates = append(sel.Candidates, selector.Candidate{Pattern: p, Text: text, Similarity: 0.5})
	}
	if len(sel.Candidates) > 0 {
		sel.Best = &sel.Candidates[0]
	}
	return Input{Prompt: prompt, Selection: sel}
}

func TestDetect(t *testing.T) {
	tests := []struct {
		prompt string
		want   Intent
	}{
		{"hello", Greeting},
		{"Good morning!", Greeting},
		{"hey, how are you", Greeting},
		{"hi, compare cats and dogs", Comparison},
		{"who are you", SelfDescription},
		{"What is CASI?", SelfDescription},
		{"list renewable energy sources", List},
		{"what is photosynthesis", Definition},
		{"why is the sky blue", QA},
		{"show me the ocean", Explanation},
		{"how to bake bread", Tutorial},
		{"pros and cons of remote work", ProsCons},
		{"give me a timeline of aviation", Timeline},
		{"hello there my friend, explain gravity please", Explanation},
		{"", Explanation},
	}
	for _, tt := range tests {
		t.Run(tt.prompt, func(t *testing.T) {
			if got := Detect(tt.prompt); got != tt.want {
				t.Errorf("Detect(%q) = %s, want %s", tt.prompt, got, tt.want)
			}
		})
	}
}

func TestIntentString(t *testing.T) {
	if ProsCons.String() != "pros_cons" {
		t.Errorf("got %q", ProsCons.String())
	}
	if Intent(99).String() != "unknown" {
		t.Errorf("out of range intent should be unknown")
	}
}

func TestTemplatesCoverEveryIntent(t *testing.T) {
	tmpl := mustParseTemplates()
	for i := List; i <= Explanation; i++ {
		if tmpl.byIntent[i] == nil {
			t.Errorf("no template for %s", i)
		}
	}
}

func TestSynthesize_Greeting(t *testing.T) {
	s := newSynth(t, nil)
	d := s.Synthesize(context.Background(), input(t, s, "hello"))
	if d.Intent != Greeting {
		t.Fatalf("intent = %s", d.Intent)
	}
	found := false
	for _, g := range greetings {
		if d.Text == g {
			found = true
		}
	}
	if !found {
		t.Errorf("unexpected greeting %q", d.Text)
	}
	again := s.Synthesize(context.Background(), input(t, s, "hello"))
	if again.Text != d.Text {
		t.Error("greeting choice should be deterministic per prompt")
	}
}

func TestSynthesize_FallbackWithoutData(t *testing.T) {
	s := newSynth(t, nil)
	d := s.Synthesize(context.Background(), input(t, s, "explain quantum entanglement"))
	if !d.Fallback {
		t.Fatal("expected fallback")
	}
	if !strings.Contains(d.Text, "quantum") || !strings.Contains(d.Text, "key concept") {
		t.Errorf("fallback text = %q", d.Text)
	}
	if d.UsedPatterns || d.UsedExternal {
		t.Error("fallback should not report sources")
	}
}

func TestSynthesize_ListKeepsStructure(t *testing.T) {
	s := newSynth(t, nil)
	in := input(t, s, "list renewable energy sources",
		"Solar power converts sunlight into electricity. Wind turbines harvest moving air. Hydro power uses flowing water.")
	d := s.Synthesize(context.Background(), in)
	if d.Intent != List || d.Fallback {
		t.Fatalf("intent = %s fallback = %v", d.Intent, d.Fallback)
	}
	if !textnorm.Structured(d.Text) {
		t.Fatalf("list output lost its structure:\n%s", d.Text)
	}
	lines := 0
	for _, l := range strings.Split(d.Text, "\n") {
		if textnorm.IsListLine(l) {
			lines++
		}
	}
	if lines != 3 {
		t.Errorf("want 3 list lines, got %d:\n%s", lines, d.Text)
	}
	if !d.UsedPatterns {
		t.Error("UsedPatterns should be set")
	}
}

func TestSynthesize_ProseInvariants(t *testing.T) {
	s := newSynth(t, nil)
	in := input(t, s, "explain ocean tides",
		"the the moon pulls pulls on the oceans. tides rise and fall twice a day")
	d := s.Synthesize(context.Background(), in)
	if d.Fallback {
		t.Fatal("unexpected fallback")
	}
	lower := strings.ToLower(d.Text)
	for _, stutter := range []string{"the the", "pulls pulls"} {
		if strings.Contains(lower, stutter) {
			t.Errorf("repeated words survived in %q", d.Text)
		}
	}
	if !textnorm.EndsWithTerminal(d.Text) {
		t.Errorf("prose should end with punctuation: %q", d.Text)
	}
	if d.Text != textnorm.Capitalize(d.Text) {
		t.Errorf("prose should start upper-case: %q", d.Text)
	}
}

func TestSynthesize_ParaphraseNeedsExternalText(t *testing.T) {
	gen := &fixedGenerator{out: "Tides follow the pull of the moon."}
	s := newSynth(t, gen)

	in := input(t, s, "explain ocean tides", "The moon pulls on the oceans.")
	d := s.Synthesize(context.Background(), in)
	if d.Paraphrase != "" {
		t.Errorf("paraphrase without external text: %q", d.Paraphrase)
	}

	in.External = "Ocean tides are caused by gravity."
	d = s.Synthesize(context.Background(), in)
	if d.Paraphrase != gen.out {
		t.Errorf("Paraphrase = %q", d.Paraphrase)
	}
	if !d.UsedExternal || !strings.Contains(d.Text, "pull of the moon") {
		t.Errorf("external draft = %+v", d)
	}
}

func TestSynthesize_NoGeneratorLeavesParaphraseEmpty(t *testing.T) {
	s := newSynth(t, nil)
	in := input(t, s, "explain ocean tides", "The moon pulls on the oceans.")
	in.External = "Ocean tides are caused by gravity."
	d := s.Synthesize(context.Background(), in)
	if d.Paraphrase != "" {
		t.Errorf("Paraphrase = %q", d.Paraphrase)
	}
	if !strings.Contains(d.Text, "gravity") {
		t.Errorf("external text missing: %q", d.Text)
	}
}

func TestSynthesize_ExternalLeadsBetterStoredMatch(t *testing.T) {
	s := newSynth(t, nil)
	in := input(t, s, "what is golang", "Golang is what golang developers use.")
	in.External = "Go is a statically typed language designed at Google."
	d := s.Synthesize(context.Background(), in)
	if d.Intent != Definition || d.Fallback {
		t.Fatalf("intent = %s fallback = %v", d.Intent, d.Fallback)
	}
	if !strings.Contains(d.Text, "statically typed language") {
		t.Errorf("external text missing from lead: %q", d.Text)
	}
	if !strings.Contains(d.Text, "what golang developers use") {
		t.Errorf("best stored sentence not appended: %q", d.Text)
	}
	if strings.Index(d.Text, "statically") > strings.Index(d.Text, "developers use") {
		t.Errorf("stored sentence should follow external text: %q", d.Text)
	}
	if !d.UsedExternal {
		t.Error("UsedExternal should be set")
	}
}

func TestSynthesize_ExplanationDoesNotRepeatStoredSentence(t *testing.T) {
	s := newSynth(t, nil)
	in := input(t, s, "explain ocean tides", "The moon pulls on the oceans.")
	in.External = "Ocean tides are caused by gravity."
	d := s.Synthesize(context.Background(), in)
	if n := strings.Count(d.Text, "moon pulls"); n != 1 {
		t.Errorf("stored sentence appears %d times: %q", n, d.Text)
	}
	if strings.Index(d.Text, "gravity") > strings.Index(d.Text, "moon pulls") {
		t.Errorf("external text should lead: %q", d.Text)
	}
}

func TestSynthesize_PanicFallsBack(t *testing.T) {
	s := newSynth(t, &fixedGenerator{panic: true})
	in := input(t, s, "explain ocean tides", "The moon pulls on the oceans.")
	in.External = "Ocean tides are caused by gravity."
	d := s.Synthesize(context.Background(), in)
	if !d.Fallback {
		t.Fatalf("expected fallback after panic, got %+v", d)
	}
	if d.Text == "" {
		t.Error("fallback text empty")
	}
}

func TestFinish(t *testing.T) {
	a := extract.Analysis{Entities: []store.Entity{{Value: "golang", Type: extract.EntityTopic}}}
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"prefixes entity", "it compiles fast", "Golang: it compiles fast."},
		{"entity already present", "golang compiles fast!", "Golang compiles fast!"},
		{"structured keeps lines", "1. one\n2. two", "Golang:\n1. one\n2. two"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := finish(tt.in, a); got != tt.want {
				t.Errorf("finish(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
