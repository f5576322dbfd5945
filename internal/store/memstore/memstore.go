package memstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/MikeSquared-Agency/casi/internal/casierr"
	"github.com/MikeSquared-Agency/casi/internal/store"
)

type Store struct {
	mu       sync.RWMutex
	patterns map[string]store.Pattern
	byOutput map[string]string
	now      func() time.Time
}

func New() *Store {
	return &Store{
		patterns: make(map[string]store.Pattern),
		byOutput: make(map[string]string),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) Insert(_ context.Context, p store.Pattern) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.patterns[p.ID]; ok {
		return p.ID, nil
	}
	if p.OutputID != "" {
		if _, ok := s.byOutput[p.OutputID]; ok {
			return p.ID, nil
		}
		s.byOutput[p.OutputID] = p.ID
	}
	p.Confidence = store.ClampConfidence(p.Confidence, 1)
	s.patterns[p.ID] = clone(p)
	return p.ID, nil
}

func (s *Store) FindByConceptOrKeywords(_ context.Context, q store.Query) ([]store.Pattern, error) {
	s.mu.RLock()
	var out []store.Pattern
	for _, p := range s.patterns {
		if q.Matches(p) {
			out = append(out, clone(p))
		}
	}
	s.mu.RUnlock()

	store.SortPatterns(out, q.Sort)
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (s *Store) UpdateFeedback(_ context.Context, outputID string, d store.FeedbackDelta) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byOutput[outputID]
	if !ok {
		return fmt.Errorf("output %s: %w", outputID, casierr.ErrNotFound)
	}
	s.patterns[id] = d.Apply(s.patterns[id], s.now())
	return nil
}

func (s *Store) DeleteMany(_ context.Context, f store.Filter) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, p := range s.patterns {
		if f.Matches(p) {
			delete(s.patterns, id)
			if p.OutputID != "" {
				delete(s.byOutput, p.OutputID)
			}
			n++
		}
	}
	return n, nil
}

func (s *Store) CountMatching(_ context.Context, f store.Filter) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int64
	for _, p := range s.patterns {
		if f.Matches(p) {
			n++
		}
	}
	return n, nil
}

func (s *Store) Close() error { return nil }

// Get returns a copy of the pattern with the given id.
func (s *Store) Get(id string) (store.Pattern, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.patterns[id]
	return clone(p), ok
}

func clone(p store.Pattern) store.Pattern {
	p.Content = append([]byte(nil), p.Content...)
	p.Entities = append([]store.Entity(nil), p.Entities...)
	p.Embedding = append([]float64(nil), p.Embedding...)
	return p
}

var _ store.Repository = (*Store)(nil)
