package engine

import (
	"strings"
	"unicode/utf8"

	"github.com/MikeSquared-Agency/casi/internal/casierr"
	"github.com/MikeSquared-Agency/casi/internal/format"
	"github.com/MikeSquared-Agency/casi/internal/selector"
)

const (
	MaxPromptLength = 1000

	DefaultDiversityFactor = 0.7
	DefaultDepth           = 8
	DefaultBreadth         = 6
	DefaultMaxWords        = 300
)

// Request is one generate call. Nil tuning fields take their defaults.
type Request struct {
	Prompt          string   `json:"prompt"`
	DiversityFactor *float64 `json:"diversityFactor,omitempty"`
	Depth           *int     `json:"depth,omitempty"`
	Breadth         *int     `json:"breadth,omitempty"`
	MaxWords        *int     `json:"maxWords,omitempty"`
	Mood            string   `json:"mood,omitempty"`
}

// Params is a validated Request.
type Params struct {
	Prompt   string
	Selector selector.Params
	MaxWords int
	Mood     format.Mood
}

// Validate checks every field and fills defaults.
func (r Request) Validate() (Params, error) {
	prompt := strings.TrimSpace(r.Prompt)
	if prompt == "" {
		return Params{}, casierr.Invalid("prompt", "must not be empty")
	}
	if n := utf8.RuneCountInString(prompt); n > MaxPromptLength {
		return Params{}, casierr.Invalid("prompt", "must be at most %d characters, got %d", MaxPromptLength, n)
	}

	p := Params{
		Prompt: prompt,
		Selector: selector.Params{
			Depth:           DefaultDepth,
			Breadth:         DefaultBreadth,
			DiversityFactor: DefaultDiversityFactor,
		},
		MaxWords: DefaultMaxWords,
	}
	if r.DiversityFactor != nil {
		if d := *r.DiversityFactor; d < 0 || d > 1 {
			return Params{}, casierr.Invalid("diversityFactor", "must be between 0 and 1, got %g", d)
		}
		p.Selector.DiversityFactor = *r.DiversityFactor
	}
	if err := intInRange("depth", r.Depth, 1, 20, &p.Selector.Depth); err != nil {
		return Params{}, err
	}
	if err := intInRange("breadth", r.Breadth, 1, 10, &p.Selector.Breadth); err != nil {
		return Params{}, err
	}
	if err := intInRange("maxWords", r.MaxWords, 10, 500, &p.MaxWords); err != nil {
		return Params{}, err
	}
	mood, err := format.ParseMood(r.Mood)
	if err != nil {
		return Params{}, err
	}
	p.Mood = mood
	return p, nil
}

func intInRange(field string, v *int, lo, hi int, dst *int) error {
	if v == nil {
		return nil
	}
	if *v < lo || *v > hi {
		return casierr.Invalid(field, "must be between %d and %d, got %d", lo, hi, *v)
	}
	*dst = *v
	return nil
}
