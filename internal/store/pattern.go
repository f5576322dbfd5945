package store

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/casi/internal/casierr"
)

// Entity is a named thing extracted from a pattern's text.
type Entity struct {
	Value string `json:"value" bson:"value"`
	Type  string `json:"type" bson:"type"`
}

// Pattern is one stored unit of learned text. Content holds the compressed
// payload; only Confidence, FeedbackScore and UpdatedAt change after insert.
type Pattern struct {
	ID            string    `json:"id"`
	Concept       string    `json:"concept"`
	Content       []byte    `json:"content"`
	Entities      []Entity  `json:"entities,omitempty"`
	Sentiment     float64   `json:"sentiment"`
	Confidence    float64   `json:"confidence"`
	FeedbackScore float64   `json:"feedback_score"`
	Source        string    `json:"source"`
	Title         string    `json:"title,omitempty"`
	URL           string    `json:"url,omitempty"`
	OutputID      string    `json:"output_id,omitempty"`
	Embedding     []float64 `json:"embedding,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// NewPattern compresses text into a fresh pattern with a new id and
// timestamps. Confidence is clamped to [0,1].
func NewPattern(concept, text, source string, confidence float64) (Pattern, error) {
	if strings.TrimSpace(text) == "" {
		return Pattern{}, fmt.Errorf("new pattern: %w", casierr.Invalid("text", "must not be empty"))
	}
	content, err := Compress(text)
	if err != nil {
		return Pattern{}, fmt.Errorf("compress pattern: %w", err)
	}
	now := time.Now().UTC()
	return Pattern{
		ID:         uuid.NewString(),
		Concept:    concept,
		Content:    content,
		Source:     source,
		Confidence: ClampConfidence(confidence, 1),
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

// Text decompresses the content. Corrupt or empty payloads return an error
// wrapping casierr.ErrCorrupt.
func (p Pattern) Text() (string, error) {
	return Decompress(p.Content)
}

// Score is the combined quality used for ranking and survivor selection.
func (p Pattern) Score() float64 {
	return p.Confidence + p.FeedbackScore
}

// ClampConfidence bounds c to [0, ceiling].
func ClampConfidence(c, ceiling float64) float64 {
	if c < 0 {
		return 0
	}
	if c > ceiling {
		return ceiling
	}
	return c
}
