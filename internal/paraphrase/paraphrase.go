package paraphrase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/MikeSquared-Agency/casi/internal/casierr"
	"github.com/MikeSquared-Agency/casi/internal/degrade"
	"github.com/MikeSquared-Agency/casi/internal/metrics"
)

// Options are sampling parameters passed through to the generator.
type Options struct {
	MaxNewTokens int
	Temperature  float64
	TopK         int
}

// Generator is a hosted text generation model.
type Generator interface {
	Name() string
	Generate(ctx context.Context, prompt string, opts Options) (string, error)
}

var defaultOptions = Options{MaxNewTokens: 60, Temperature: 0.7, TopK: 40}

type Paraphraser struct {
	gen     Generator
	timeout time.Duration
	logger  *slog.Logger
}

// New returns a Paraphraser. gen may be nil, in which case every call
// returns its input unchanged.
func New(gen Generator, timeout time.Duration, logger *slog.Logger) *Paraphraser {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Paraphraser{gen: gen, timeout: timeout, logger: logger}
}

func (p *Paraphraser) Available() bool { return p != nil && p.gen != nil }

// Paraphrase rewrites sentence. The fallback value is sentence itself.
func (p *Paraphraser) Paraphrase(ctx context.Context, sentence string) degrade.Result[string] {
	sentence = strings.TrimSpace(sentence)
	if sentence == "" {
		return degrade.OK(sentence)
	}
	out, err := p.generate(ctx, "Paraphrase: "+sentence, "paraphrase:")
	if err != nil {
		return degrade.Fallback(sentence, err)
	}
	return degrade.OK(out)
}

// Explain asks for a one-sentence explanation of topic. The fallback value
// is the empty string; callers supply their own default sentence.
func (p *Paraphraser) Explain(ctx context.Context, topic string) degrade.Result[string] {
	out, err := p.generate(ctx, "Explain "+topic+" in one sentence", "")
	if err != nil {
		return degrade.Fallback("", err)
	}
	return degrade.OK(out)
}

func (p *Paraphraser) generate(ctx context.Context, prompt, echo string) (string, error) {
	if !p.Available() {
		return "", fmt.Errorf("text generator: %w", casierr.ErrUnavailable)
	}
	callCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	out, err := p.gen.Generate(callCtx, prompt, defaultOptions)
	if err == nil {
		out = clean(out, echo)
		if out == "" {
			err = errors.New("empty generation")
		}
	}
	if err != nil {
		metrics.Degraded("generator")
		p.logger.Warn("text generator unavailable, keeping original text", "component", "generator", "model", p.gen.Name(), "error", err)
		return "", fmt.Errorf("generate: %w", err)
	}
	return out, nil
}

// clean drops an echoed instruction prefix and wrapping quotes.
func clean(out, echo string) string {
	out = strings.TrimSpace(out)
	if echo != "" && len(out) >= len(echo) && strings.EqualFold(out[:len(echo)], echo) {
		out = strings.TrimSpace(out[len(echo):])
	}
	return strings.TrimSpace(strings.Trim(out, `"`))
}
