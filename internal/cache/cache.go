package cache

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MikeSquared-Agency/casi/internal/metrics"
	"github.com/MikeSquared-Agency/casi/internal/store"
)

// Entry is one cached pattern with its decompressed text.
type Entry struct {
	Pattern store.Pattern
	Text    string
	addedAt time.Time
}

type snapshot struct {
	entries []Entry
	ids     map[string]struct{}
}

type Cache struct {
	snap   atomic.Pointer[snapshot]
	mu     sync.Mutex // serialises writers
	max    int
	logger *slog.Logger

	// loading counts running rebuilds; removed collects ids dropped while
	// one runs so the rebuilt snapshot does not bring them back.
	loading int
	removed map[string]struct{}
}

func New(maxEntries int, logger *slog.Logger) *Cache {
	if maxEntries <= 0 {
		maxEntries = 5000
	}
	c := &Cache{max: maxEntries, logger: logger}
	c.snap.Store(&snapshot{ids: map[string]struct{}{}})
	return c
}

// Load rebuilds the cache from repo and swaps it in when complete. Patterns
// added while the rebuild ran are carried over and patterns removed while it
// ran stay removed.
func (c *Cache) Load(ctx context.Context, repo store.Repository) (int, error) {
	started := time.Now()
	c.mu.Lock()
	if c.loading == 0 {
		c.removed = make(map[string]struct{})
	}
	c.loading++
	c.mu.Unlock()
	done := func() {
		c.loading--
		if c.loading == 0 {
			c.removed = nil
		}
	}

	patterns, err := repo.FindByConceptOrKeywords(ctx, store.Query{Limit: c.max, Sort: store.DefaultSort})
	if err != nil {
		c.mu.Lock()
		done()
		c.mu.Unlock()
		return 0, fmt.Errorf("load cache: %w", err)
	}

	loaded := make([]Entry, 0, len(patterns))
	for _, p := range patterns {
		if e, ok := c.entry(p, time.Time{}); ok {
			loaded = append(loaded, e)
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	defer done()
	next := &snapshot{entries: make([]Entry, 0, len(loaded)), ids: make(map[string]struct{}, len(loaded))}
	for _, e := range loaded {
		if _, gone := c.removed[e.Pattern.ID]; gone {
			continue
		}
		next.entries = append(next.entries, e)
		next.ids[e.Pattern.ID] = struct{}{}
	}
	for _, e := range c.snap.Load().entries {
		if _, ok := next.ids[e.Pattern.ID]; !ok && e.addedAt.After(started) {
			next.entries = append(next.entries, e)
			next.ids[e.Pattern.ID] = struct{}{}
		}
	}
	c.evict(next)
	c.snap.Store(next)
	metrics.CachePatterns.Set(float64(len(next.entries)))
	c.logger.Info("retrieval cache loaded", "patterns", len(next.entries), "duration", time.Since(started))
	return len(next.entries), nil
}

// Add appends one pattern without a rebuild. It reports false when the
// pattern is already cached or its content is unreadable.
func (c *Cache) Add(p store.Pattern) bool {
	e, ok := c.entry(p, time.Now())
	if !ok {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	cur := c.snap.Load()
	if _, dup := cur.ids[p.ID]; dup {
		return false
	}
	delete(c.removed, p.ID)
	next := &snapshot{
		entries: make([]Entry, len(cur.entries), len(cur.entries)+1),
		ids:     make(map[string]struct{}, len(cur.ids)+1),
	}
	copy(next.entries, cur.entries)
	for id := range cur.ids {
		next.ids[id] = struct{}{}
	}
	next.entries = append(next.entries, e)
	next.ids[p.ID] = struct{}{}
	c.evict(next)
	c.snap.Store(next)
	metrics.CachePatterns.Set(float64(len(next.entries)))
	return true
}

// Remove drops the given pattern ids, used after pruning.
func (c *Cache) Remove(ids ...string) int {
	if len(ids) == 0 {
		return 0
	}
	drop := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.removed != nil {
		for id := range drop {
			c.removed[id] = struct{}{}
		}
	}
	cur := c.snap.Load()
	next := &snapshot{entries: make([]Entry, 0, len(cur.entries)), ids: make(map[string]struct{}, len(cur.ids))}
	for _, e := range cur.entries {
		if _, ok := drop[e.Pattern.ID]; ok {
			continue
		}
		next.entries = append(next.entries, e)
		next.ids[e.Pattern.ID] = struct{}{}
	}
	c.snap.Store(next)
	metrics.CachePatterns.Set(float64(len(next.entries)))
	return len(cur.entries) - len(next.entries)
}

// Snapshot returns the current entries. The slice must not be modified.
func (c *Cache) Snapshot() []Entry {
	return c.snap.Load().entries
}

func (c *Cache) Len() int {
	return len(c.snap.Load().entries)
}

// Find answers q from memory with repository semantics. It is the read
// path when the repository is unreachable.
func (c *Cache) Find(q store.Query) []store.Pattern {
	var out []store.Pattern
	for _, e := range c.snap.Load().entries {
		if q.Matches(e.Pattern) {
			out = append(out, e.Pattern)
		}
	}
	store.SortPatterns(out, q.Sort)
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out
}

// Text returns the cached text for a pattern id.
func (c *Cache) Text(id string) (string, bool) {
	for _, e := range c.snap.Load().entries {
		if e.Pattern.ID == id {
			return e.Text, true
		}
	}
	return "", false
}

func (c *Cache) entry(p store.Pattern, addedAt time.Time) (Entry, bool) {
	text, err := p.Text()
	if err != nil {
		c.logger.Warn("skipping unreadable pattern", "pattern_id", p.ID, "error", err)
		return Entry{}, false
	}
	return Entry{Pattern: p, Text: text, addedAt: addedAt}, true
}

// evict drops least recently updated entries until s fits.
func (c *Cache) evict(s *snapshot) {
	for len(s.entries) > c.max {
		oldest := 0
		for i, e := range s.entries {
			if e.Pattern.UpdatedAt.Before(s.entries[oldest].Pattern.UpdatedAt) {
				oldest = i
			}
		}
		delete(s.ids, s.entries[oldest].Pattern.ID)
		s.entries = append(s.entries[:oldest], s.entries[oldest+1:]...)
	}
}
