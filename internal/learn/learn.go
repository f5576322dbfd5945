package learn

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/MikeSquared-Agency/casi/internal/cache"
	"github.com/MikeSquared-Agency/casi/internal/embedding"
	"github.com/MikeSquared-Agency/casi/internal/extract"
	"github.com/MikeSquared-Agency/casi/internal/metrics"
	"github.com/MikeSquared-Agency/casi/internal/score"
	"github.com/MikeSquared-Agency/casi/internal/store"
	"github.com/MikeSquared-Agency/casi/internal/textnorm"
)

// Publisher announces persisted patterns to other replicas.
type Publisher interface {
	PublishLearned(ctx context.Context, p store.Pattern) error
}

// Record is one piece of text to learn. Concept defaults to the prompt's
// detected concept, then to the normalized prompt.
type Record struct {
	Prompt     string
	Text       string
	Concept    string
	Source     string
	Title      string
	URL        string
	OutputID   string
	Confidence float64
}

type Config struct {
	QueueSize    int
	Workers      int
	StoreTimeout time.Duration
	// VoteWait bounds how long a vote waits for its output's pattern to
	// land when the pattern is still queued or being written.
	VoteWait time.Duration
}

// queued is a record on its way to the repository. done closes once the
// write has finished, successfully or not.
type queued struct {
	Record
	done chan struct{}
}

type Loop struct {
	repo      store.Repository
	cache     *cache.Cache
	extractor *extract.Extractor
	embedder  *embedding.Service
	pub       Publisher
	timeout   time.Duration
	voteWait  time.Duration
	workers   int
	logger    *slog.Logger

	mu     sync.RWMutex
	closed bool
	queue  chan queued
	wg     sync.WaitGroup

	inflightMu sync.Mutex
	inflight   map[string]chan struct{}
}

// New creates a loop. embedder and pub may be nil.
func New(repo store.Repository, c *cache.Cache, ex *extract.Extractor, emb *embedding.Service, pub Publisher, cfg Config, logger *slog.Logger) *Loop {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = 5 * time.Second
	}
	if cfg.VoteWait <= 0 {
		cfg.VoteWait = 15 * time.Second
	}
	return &Loop{
		repo:      repo,
		cache:     c,
		extractor: ex,
		embedder:  emb,
		pub:       pub,
		timeout:   cfg.StoreTimeout,
		voteWait:  cfg.VoteWait,
		workers:   cfg.Workers,
		logger:    logger,
		queue:     make(chan queued, cfg.QueueSize),
		inflight:  make(map[string]chan struct{}),
	}
}

// Start runs the workers that drain AbsorbAsync. They stop once Stop has
// been called and the queue is empty.
func (l *Loop) Start(ctx context.Context) {
	for i := 0; i < l.workers; i++ {
		l.wg.Add(1)
		go func() {
			defer l.wg.Done()
			for q := range l.queue {
				if _, err := l.Absorb(ctx, q.Record); err != nil {
					l.logger.Error("failed to absorb pattern", "source", q.Source, "output_id", q.OutputID, "error", err)
				}
				l.settle(q)
			}
		}()
	}
}

// Stop closes the queue and waits for queued records to be written.
func (l *Loop) Stop() {
	l.mu.Lock()
	if !l.closed {
		l.closed = true
		close(l.queue)
	}
	l.mu.Unlock()
	l.wg.Wait()
}

// AbsorbAsync queues r without blocking. It reports false when the queue
// is full or stopped; the record is then dropped. A record with an output
// id stays in flight until its write finishes, and votes on that id wait
// for it.
func (l *Loop) AbsorbAsync(r Record) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return false
	}
	q := queued{Record: r}
	if r.OutputID != "" {
		q.done = make(chan struct{})
		l.inflightMu.Lock()
		l.inflight[r.OutputID] = q.done
		l.inflightMu.Unlock()
	}
	select {
	case l.queue <- q:
		return true
	default:
		l.settle(q)
		metrics.Degraded("learn_queue")
		l.logger.Error("learn queue full, dropping pattern", "source", r.Source, "output_id", r.OutputID)
		return false
	}
}

func (l *Loop) settle(q queued) {
	if q.done == nil {
		return
	}
	l.inflightMu.Lock()
	if l.inflight[q.OutputID] == q.done {
		delete(l.inflight, q.OutputID)
	}
	l.inflightMu.Unlock()
	close(q.done)
}

// awaitOutput blocks until the queued write for outputID finishes. It gives
// up after the vote wait or when ctx is done.
func (l *Loop) awaitOutput(ctx context.Context, outputID string) {
	l.inflightMu.Lock()
	done, ok := l.inflight[outputID]
	l.inflightMu.Unlock()
	if !ok {
		return
	}
	timer := time.NewTimer(l.voteWait)
	defer timer.Stop()
	select {
	case <-done:
	case <-timer.C:
		l.logger.Warn("vote arrived before its output was stored", "output_id", outputID)
	case <-ctx.Done():
	}
}

// Absorb builds a pattern from r and stores it.
func (l *Loop) Absorb(ctx context.Context, r Record) (store.Pattern, error) {
	p, err := l.build(ctx, r)
	if err != nil {
		return store.Pattern{}, err
	}
	if err := l.Store(ctx, p); err != nil {
		return store.Pattern{}, err
	}
	return p, nil
}

func (l *Loop) build(ctx context.Context, r Record) (store.Pattern, error) {
	prompt := l.extractor.Analyze(r.Prompt)
	concept := strings.TrimSpace(r.Concept)
	if concept == "" {
		concept = prompt.Concept
	}
	if concept == "" {
		concept = textnorm.Normalize(r.Prompt)
	}
	if concept == "" {
		return store.Pattern{}, fmt.Errorf("absorb: no concept for %q", r.Title)
	}

	p, err := store.NewPattern(concept, r.Text, r.Source, r.Confidence)
	if err != nil {
		return store.Pattern{}, fmt.Errorf("absorb: %w", err)
	}
	body := l.extractor.Analyze(r.Text)
	p.Entities = mergeEntities(prompt.Entities, body.Entities)
	p.Sentiment = body.Sentiment
	p.Title = r.Title
	p.URL = r.URL
	p.OutputID = r.OutputID
	if l.embedder != nil {
		if res := l.embedder.Embed(ctx, textnorm.Normalize(r.Text)); !res.Degraded() {
			p.Embedding = res.Value
		}
	}
	return p, nil
}

// Store persists a ready pattern, adds it to the cache and announces it.
// Only the repository write can fail the call.
func (l *Loop) Store(ctx context.Context, p store.Pattern) error {
	storeCtx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()
	if _, err := l.repo.Insert(storeCtx, p); err != nil {
		return fmt.Errorf("insert pattern: %w", err)
	}
	l.cache.Add(p)
	metrics.Absorbed.WithLabelValues(p.Source).Inc()
	metrics.CachePatterns.Set(float64(l.cache.Len()))

	if l.pub != nil {
		if err := l.pub.PublishLearned(ctx, p); err != nil {
			l.logger.Warn("failed to publish learned pattern", "component", "hermes", "pattern_id", p.ID, "error", err)
		}
	}
	l.logger.Debug("pattern absorbed", "pattern_id", p.ID, "concept", p.Concept, "source", p.Source)
	return nil
}

// Learned adds a pattern persisted by another replica to the cache.
func (l *Loop) Learned(p store.Pattern) {
	if l.cache.Add(p) {
		metrics.CachePatterns.Set(float64(l.cache.Len()))
	}
}

// Vote applies v to the pattern stored for outputID. A vote on an output
// that is still being written waits for the write first.
func (l *Loop) Vote(ctx context.Context, outputID string, v score.Vote) error {
	l.awaitOutput(ctx, outputID)
	storeCtx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()
	if err := l.repo.UpdateFeedback(storeCtx, outputID, score.Delta(v)); err != nil {
		return fmt.Errorf("vote %s: %w", v, err)
	}
	metrics.Votes.WithLabelValues(string(v)).Inc()
	l.logger.Info("vote applied", "output_id", outputID, "vote", string(v))
	return nil
}

func mergeEntities(a, b []store.Entity) []store.Entity {
	seen := make(map[string]struct{}, len(a)+len(b))
	var out []store.Entity
	for _, e := range append(append([]store.Entity(nil), a...), b...) {
		key := strings.ToLower(e.Value)
		if _, ok := seen[key]; ok || key == "" {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, e)
	}
	return out
}
