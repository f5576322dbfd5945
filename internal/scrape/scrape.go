package scrape

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/markusmobius/go-trafilatura"
	"golang.org/x/time/rate"

	"github.com/MikeSquared-Agency/casi/internal/casierr"
	"github.com/MikeSquared-Agency/casi/internal/extract"
	"github.com/MikeSquared-Agency/casi/internal/score"
	"github.com/MikeSquared-Agency/casi/internal/store"
	"github.com/MikeSquared-Agency/casi/internal/textnorm"
)

const (
	userAgent    = "casi-ingest/1.0"
	maxBodyBytes = 10 << 20
	hostRate     = 0.5
)

// Sink stores ingested patterns; the learning loop implements it.
type Sink interface {
	Store(ctx context.Context, p store.Pattern) error
}

// Report describes one ingest.
type Report struct {
	URL     string `json:"url"`
	Title   string `json:"title,omitempty"`
	Concept string `json:"concept"`
	Chunks  int    `json:"chunks"`
	Stored  int    `json:"stored"`
	// Unchanged is set when the page matched the last ingest and nothing
	// was stored.
	Unchanged bool `json:"unchanged"`
}

type Ingester struct {
	http      *http.Client
	sink      Sink
	extractor *extract.Extractor
	state     *State
	logger    *slog.Logger

	limiters sync.Map // host -> *rate.Limiter
}

func New(sink Sink, ex *extract.Extractor, state *State, timeout time.Duration, logger *slog.Logger) *Ingester {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if state == nil {
		state = &State{Pages: make(map[string]PageState)}
	}
	return &Ingester{
		http:      &http.Client{Timeout: timeout},
		sink:      sink,
		extractor: ex,
		state:     state,
		logger:    logger,
	}
}

// IngestURL fetches rawURL, extracts its main text and stores it as
// patterns under concept. An empty concept is derived from the page.
func (in *Ingester) IngestURL(ctx context.Context, rawURL, concept string) (Report, error) {
	rep := Report{URL: rawURL}
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return rep, fmt.Errorf("ingest: %w", casierr.Invalid("url", "must be an absolute http(s) url"))
	}

	body, err := in.fetch(ctx, u)
	if err != nil {
		return rep, fmt.Errorf("ingest: %w: %w", casierr.ErrUnavailable, err)
	}
	result, err := trafilatura.Extract(bytes.NewReader(body), trafilatura.Options{OriginalURL: u})
	if err != nil {
		return rep, fmt.Errorf("extract content: %w", err)
	}
	if result == nil || strings.TrimSpace(result.ContentText) == "" {
		return rep, fmt.Errorf("extract content: no main text on %s", u.Host)
	}
	rep.Title = strings.TrimSpace(result.Metadata.Title)

	text := textnorm.FilterSensitive(textnorm.Clean(result.ContentText))
	hash := strconv.FormatUint(xxhash.Sum64String(text), 16)
	rep.Concept = in.concept(concept, rep.Title, text)
	if in.state.Unchanged(rawURL, hash) {
		rep.Unchanged = true
		in.logger.Info("page unchanged, skipping", "url", rawURL)
		return rep, nil
	}

	chunks := Chunk(text)
	rep.Chunks = len(chunks)
	source := strings.TrimPrefix(u.Hostname(), "www.")
	for _, chunk := range chunks {
		a := in.extractor.Analyze(chunk)
		p, err := store.NewPattern(rep.Concept, chunk, source, score.Scraped(a.Sentiment))
		if err != nil {
			continue
		}
		p.Entities = a.Entities
		p.Sentiment = a.Sentiment
		p.Title = rep.Title
		p.URL = rawURL
		if err := in.sink.Store(ctx, p); err != nil {
			in.logger.Error("failed to store ingested chunk", "url", rawURL, "error", err)
			continue
		}
		rep.Stored++
	}

	if rep.Stored > 0 {
		if err := in.state.Mark(rawURL, hash, rep.Stored); err != nil {
			in.logger.Warn("failed to save ingest state", "error", err)
		}
	}
	in.logger.Info("page ingested", "url", rawURL, "concept", rep.Concept, "chunks", rep.Chunks, "stored", rep.Stored)
	return rep, nil
}

// IngestAll ingests every url, logging failures. It returns the number of
// patterns stored.
func (in *Ingester) IngestAll(ctx context.Context, urls []string) int {
	total := 0
	for _, raw := range urls {
		if ctx.Err() != nil {
			break
		}
		rep, err := in.IngestURL(ctx, raw, "")
		if err != nil {
			in.logger.Warn("ingest failed", "url", raw, "error", err)
			continue
		}
		total += rep.Stored
	}
	return total
}

func (in *Ingester) fetch(ctx context.Context, u *url.URL) ([]byte, error) {
	if err := in.limiter(u.Host).Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := in.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", u.Host, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: status %d", u.Host, resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return body, nil
}

// limiter returns the per-host limiter, creating it on first use.
func (in *Ingester) limiter(host string) *rate.Limiter {
	if l, ok := in.limiters.Load(host); ok {
		return l.(*rate.Limiter)
	}
	l, _ := in.limiters.LoadOrStore(host, rate.NewLimiter(rate.Limit(hostRate), 2))
	return l.(*rate.Limiter)
}

func (in *Ingester) concept(given, title, text string) string {
	if c := strings.ToLower(strings.TrimSpace(given)); c != "" {
		return c
	}
	if title != "" {
		if c := in.extractor.Analyze(title).Concept; c != "" {
			return c
		}
	}
	return in.extractor.Analyze(firstSentence(text)).Concept
}

func firstSentence(text string) string {
	if s := textnorm.SplitSentences(text); len(s) > 0 {
		return s[0]
	}
	return text
}
