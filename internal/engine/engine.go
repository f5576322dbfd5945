package engine

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"golang.org/x/sync/errgroup"

	"github.com/MikeSquared-Agency/casi/internal/casierr"
	"github.com/MikeSquared-Agency/casi/internal/degrade"
	"github.com/MikeSquared-Agency/casi/internal/extract"
	"github.com/MikeSquared-Agency/casi/internal/format"
	"github.com/MikeSquared-Agency/casi/internal/hermes"
	"github.com/MikeSquared-Agency/casi/internal/knowledge"
	"github.com/MikeSquared-Agency/casi/internal/learn"
	"github.com/MikeSquared-Agency/casi/internal/metrics"
	"github.com/MikeSquared-Agency/casi/internal/score"
	"github.com/MikeSquared-Agency/casi/internal/selector"
	"github.com/MikeSquared-Agency/casi/internal/synth"
)

const (
	SourceCASI        = "CASI"
	SourceParaphrased = "CASI_Paraphrased"
	SourceFallback    = "Fallback"

	titlePromptChars = 50
)

// Response is what a caller gets back for a valid prompt.
type Response struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
	OutputID   string  `json:"outputId"`
	Source     string  `json:"source"`
	Intent     string  `json:"intent"`
}

type Engine struct {
	selector  *selector.Selector
	synth     *synth.Synthesizer
	knowledge *knowledge.Client
	learn     *learn.Loop
	extractor *extract.Extractor
	logger    *slog.Logger

	mu      sync.Mutex
	entropy io.Reader
}

// New wires an engine. know may be nil when no knowledge service is configured.
func New(sel *selector.Selector, syn *synth.Synthesizer, know *knowledge.Client, loop *learn.Loop, ex *extract.Extractor, logger *slog.Logger) *Engine {
	return &Engine{
		selector:  sel,
		synth:     syn,
		knowledge: know,
		learn:     loop,
		extractor: ex,
		logger:    logger,
		entropy:   ulid.Monotonic(rand.Reader, 0),
	}
}

// Generate answers req. Only a ValidationError is returned; every other
// failure degrades into a lower-confidence answer.
func (e *Engine) Generate(ctx context.Context, req Request) (Response, error) {
	p, err := req.Validate()
	if err != nil {
		return Response{}, err
	}

	start := time.Now()
	resp := e.generate(ctx, p)
	metrics.GenerateRequests.WithLabelValues(resp.Intent).Inc()
	metrics.GenerateLatency.Observe(time.Since(start).Seconds())

	e.logger.Info("response generated",
		"output_id", resp.OutputID,
		"intent", resp.Intent,
		"source", resp.Source,
		"confidence", resp.Confidence,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return resp, nil
}

func (e *Engine) generate(ctx context.Context, p Params) (resp Response) {
	resp.OutputID = e.newID()
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("generation failed, using fallback", "output_id", resp.OutputID, "panic", fmt.Sprint(r))
			resp = e.fallback(p, resp.OutputID)
		}
	}()

	intent := synth.Detect(p.Prompt)
	if intent == synth.Greeting || intent == synth.SelfDescription {
		d := e.synth.Synthesize(ctx, synth.Input{Prompt: p.Prompt})
		resp = e.respond(p, resp.OutputID, d, score.CannedConfidence)
		return resp
	}

	sel, ext := e.gather(ctx, p)
	external := ext.Value
	d := e.synth.Synthesize(ctx, synth.Input{Prompt: p.Prompt, Selection: sel, External: external})

	if external != "" {
		e.absorb(learn.Record{
			Prompt:     p.Prompt,
			Text:       external,
			Source:     e.knowledge.Source(),
			Title:      e.knowledge.Source() + ": " + clip(p.Prompt),
			Confidence: score.RawKnowledgeConf,
		})
	}
	if d.Paraphrase != "" {
		e.absorb(learn.Record{
			Prompt:     p.Prompt,
			Text:       d.Paraphrase,
			Source:     SourceParaphrased,
			Title:      "Paraphrased: " + clip(p.Prompt),
			Confidence: score.ParaphraseConf,
		})
	}

	conf := score.PatternConfidence
	if d.UsedExternal {
		conf = score.ExternalConfidence
	}
	resp = e.respond(p, resp.OutputID, d, conf)
	return resp
}

// gather runs retrieval and the knowledge fetch concurrently. Neither fails.
func (e *Engine) gather(ctx context.Context, p Params) (selector.Selection, degrade.Result[string]) {
	var (
		sel selector.Selection
		ext degrade.Result[string]
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		sel = e.selector.Select(gctx, p.Prompt, p.Selector)
		return nil
	})
	if e.knowledge.Enabled() {
		g.Go(func() error {
			ext = e.knowledge.Fetch(gctx, p.Prompt)
			return nil
		})
	}
	_ = g.Wait()
	return sel, ext
}

// respond formats d, records the output for later votes and builds the
// response.
func (e *Engine) respond(p Params, id string, d synth.Draft, conf float64) Response {
	source := SourceCASI
	if d.Fallback {
		source = SourceFallback
		conf = score.FallbackConfidence
		metrics.Fallbacks.Inc()
	}
	text := format.Format(d.Text, p.MaxWords, p.Mood)
	e.absorb(learn.Record{
		Prompt:     p.Prompt,
		Text:       text,
		Source:     source,
		Title:      "Response to: " + clip(p.Prompt),
		OutputID:   id,
		Confidence: conf,
	})
	return Response{
		Text:       text,
		Confidence: conf,
		OutputID:   id,
		Source:     source,
		Intent:     d.Intent.String(),
	}
}

func (e *Engine) fallback(p Params, id string) (resp Response) {
	text := format.Filler
	func() {
		defer func() { _ = recover() }()
		text = e.synth.Fallback(e.extractor.Analyze(p.Prompt))
	}()
	metrics.Fallbacks.Inc()
	text = format.Format(text, p.MaxWords, p.Mood)
	e.absorb(learn.Record{
		Prompt:     p.Prompt,
		Text:       text,
		Source:     SourceFallback,
		Title:      "Response to: " + clip(p.Prompt),
		OutputID:   id,
		Confidence: score.FallbackConfidence,
	})
	return Response{
		Text:       text,
		Confidence: score.FallbackConfidence,
		OutputID:   id,
		Source:     SourceFallback,
		Intent:     synth.Explanation.String(),
	}
}

func (e *Engine) absorb(r learn.Record) {
	if e.learn == nil {
		return
	}
	e.learn.AbsorbAsync(r)
}

// Feedback applies a vote to the pattern stored for outputID.
func (e *Engine) Feedback(ctx context.Context, outputID, vote string) error {
	if outputID == "" {
		return casierr.Invalid("outputId", "must not be empty")
	}
	v, err := score.ParseVote(vote)
	if err != nil {
		return err
	}
	if e.learn == nil {
		return fmt.Errorf("feedback: %w", casierr.ErrUnavailable)
	}
	return e.learn.Vote(ctx, outputID, v)
}

// HandleVote applies a vote received from the event bus. Unknown output ids
// are logged and dropped.
func (e *Engine) HandleVote(evt hermes.VoteCast) {
	ctx := context.Background()
	if err := e.Feedback(ctx, evt.OutputID, evt.Vote); err != nil {
		if errors.Is(err, casierr.ErrNotFound) {
			e.logger.Debug("vote for unknown output", "output_id", evt.OutputID)
			return
		}
		e.logger.Warn("failed to apply bus vote", "output_id", evt.OutputID, "error", err)
	}
}

func (e *Engine) newID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return ulid.MustNew(ulid.Now(), e.entropy).String()
}

func clip(prompt string) string {
	r := []rune(prompt)
	if len(r) <= titlePromptChars {
		return prompt
	}
	return string(r[:titlePromptChars])
}
