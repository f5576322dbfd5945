package hermes

import (
	"encoding/json"
	"testing"
)

func TestVoteCastParsing(t *testing.T) {
	raw := `{"output_id": "01HZX3", "vote": "upvote"}`
	var v VoteCast
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		t.Fatalf("failed to parse VoteCast: %v", err)
	}
	if v.OutputID != "01HZX3" || v.Vote != "upvote" {
		t.Errorf("got %+v", v)
	}
}

func TestSubjects(t *testing.T) {
	tests := map[string]string{
		SubjectPatternLearned: "casi.pattern.learned",
		SubjectVote:           "casi.feedback.vote",
		SubjectRegistered:     "casi.agent.registered",
	}
	for got, want := range tests {
		if got != want {
			t.Errorf("subject %q, want %q", got, want)
		}
	}
}
