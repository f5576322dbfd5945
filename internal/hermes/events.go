package hermes

import (
	"time"

	"github.com/MikeSquared-Agency/casi/internal/store"
)

const (
	// SubjectPatternLearned carries every pattern a replica absorbs so the
	// others can add it to their retrieval cache.
	SubjectPatternLearned = "casi.pattern.learned"
	// SubjectVote carries feedback votes from producers other than the
	// HTTP API.
	SubjectVote = "casi.feedback.vote"
	// SubjectRegistered is announced once on startup.
	SubjectRegistered = "casi.agent.registered"
)

// PatternLearned is published after a pattern is persisted. Origin lets a
// replica ignore its own events.
type PatternLearned struct {
	Origin  string        `json:"origin"`
	Pattern store.Pattern `json:"pattern"`
}

type VoteCast struct {
	OutputID string `json:"output_id"`
	Vote     string `json:"vote"`
}

type Registered struct {
	Origin    string    `json:"origin"`
	Port      int       `json:"port"`
	Store     string    `json:"store"`
	Embedder  string    `json:"embedder"`
	Timestamp time.Time `json:"timestamp"`
}
