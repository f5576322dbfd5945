package score

import (
	"errors"
	"math"
	"testing"

	"github.com/MikeSquared-Agency/casi/internal/casierr"
)

func TestApply(t *testing.T) {
	tests := []struct {
		name    string
		current float64
		vote    Vote
		want    float64
	}{
		{"upvote from 0.5", 0.5, Upvote, 0.51},
		{"downvote from 0.5", 0.5, Downvote, 0.48},
		{"upvote clamped at ceiling", 0.99, Upvote, ConfidenceCeiling},
		{"upvote at ceiling stays", ConfidenceCeiling, Upvote, ConfidenceCeiling},
		{"downvote clamped at zero", 0.01, Downvote, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Apply(tt.current, tt.vote)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("Apply(%f, %s) = %f, want %f", tt.current, tt.vote, got, tt.want)
			}
		})
	}
}

func TestDelta_Asymmetry(t *testing.T) {
	up, down := Delta(Upvote), Delta(Downvote)
	if math.Abs(-down.Confidence-2*up.Confidence) > 1e-9 {
		t.Errorf("downvote (%f) should cost twice an upvote (%f)", down.Confidence, up.Confidence)
	}
	if up.FeedbackScore != 0.1 || down.FeedbackScore != -0.1 {
		t.Errorf("feedback deltas = %f / %f", up.FeedbackScore, down.FeedbackScore)
	}
	if up.Ceiling != ConfidenceCeiling {
		t.Errorf("ceiling = %f", up.Ceiling)
	}
}

func TestParseVote(t *testing.T) {
	for _, in := range []string{"upvote", " Downvote "} {
		if _, err := ParseVote(in); err != nil {
			t.Errorf("ParseVote(%q): %v", in, err)
		}
	}
	if _, err := ParseVote("sideways"); !errors.Is(err, casierr.ErrValidation) {
		t.Errorf("want validation error, got %v", err)
	}
}

func TestScraped(t *testing.T) {
	tests := []struct {
		sentiment float64
		want      float64
	}{
		{0, 0.95},
		{2, 0.97},
		{10, 0.98},
		{-5, 0.90},
	}
	for _, tt := range tests {
		if got := Scraped(tt.sentiment); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("Scraped(%f) = %f, want %f", tt.sentiment, got, tt.want)
		}
	}
}
