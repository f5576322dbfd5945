package score

import (
	"fmt"
	"strings"

	"github.com/MikeSquared-Agency/casi/internal/casierr"
	"github.com/MikeSquared-Agency/casi/internal/store"
)

// Vote is a user's judgement of a generated response.
type Vote string

const (
	Upvote   Vote = "upvote"
	Downvote Vote = "downvote"
)

const (
	// ConfidenceCeiling keeps votes from ever certifying a pattern fully.
	ConfidenceCeiling = 0.995

	upvoteWeight   = 0.01
	feedbackWeight = 0.1
)

// Response confidences by how the answer was produced.
const (
	CannedConfidence    = 0.99
	ExternalConfidence  = 0.98
	PatternConfidence   = 0.95
	FallbackConfidence  = 0.9
	RawKnowledgeConf    = 0.97
	ParaphraseConf      = 0.95
	SeedConfidence      = 0.95
	MaxScrapeConfidence = 0.98
)

func ParseVote(s string) (Vote, error) {
	switch v := Vote(strings.ToLower(strings.TrimSpace(s))); v {
	case Upvote, Downvote:
		return v, nil
	default:
		return "", fmt.Errorf("parse vote: %w", casierr.Invalid("vote", "must be upvote or downvote, got %q", s))
	}
}

// Delta returns the repository change for v.
//
// Degradation is asymmetric: a downvote costs twice the confidence an
// upvote earns. The feedback score moves symmetrically.
func Delta(v Vote) store.FeedbackDelta {
	if v == Upvote {
		return store.FeedbackDelta{Confidence: upvoteWeight, FeedbackScore: feedbackWeight, Ceiling: ConfidenceCeiling}
	}
	return store.FeedbackDelta{Confidence: -upvoteWeight * 2, FeedbackScore: -feedbackWeight, Ceiling: ConfidenceCeiling}
}

// Apply returns confidence after v, clamped to [0, ConfidenceCeiling].
func Apply(confidence float64, v Vote) float64 {
	return store.ClampConfidence(confidence+Delta(v).Confidence, ConfidenceCeiling)
}

// Scraped maps the sentiment of ingested text onto an initial confidence:
// 0.95 for neutral text, nudged by one point per hundred sentiment units
// and capped at MaxScrapeConfidence.
func Scraped(sentiment float64) float64 {
	c := 0.95 + sentiment/100
	if c > MaxScrapeConfidence {
		c = MaxScrapeConfidence
	}
	return store.ClampConfidence(c, 1)
}
