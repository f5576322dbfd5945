package knowledge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"github.com/MikeSquared-Agency/casi/internal/casierr"
	"github.com/MikeSquared-Agency/casi/internal/degrade"
	"github.com/MikeSquared-Agency/casi/internal/metrics"
	"github.com/MikeSquared-Agency/casi/internal/textnorm"
)

// MinAnswerLength is the shortest answer treated as real content.
const MinAnswerLength = 5

const maxBodyBytes = 1 << 20

var errShortAnswer = errors.New("answer too short")

type Config struct {
	URL     string
	Source  string
	RPS     float64
	Timeout time.Duration
	TTL     time.Duration
	// Redis, when set, shares answers between replicas.
	Redis *redis.Client
}

type Client struct {
	endpoint *url.URL
	source   string
	http     *http.Client
	limiter  *rate.Limiter
	cache    *answerCache
	logger   *slog.Logger
}

// New creates a client. An empty URL yields a disabled client whose
// Fetch always returns an empty, non-degraded answer.
func New(cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.TTL <= 0 {
		cfg.TTL = time.Hour
	}
	if cfg.RPS <= 0 {
		cfg.RPS = 2
	}
	if cfg.Source == "" {
		cfg.Source = "external"
	}
	c := &Client{
		source:  cfg.Source,
		http:    &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(rate.Limit(cfg.RPS), int(cfg.RPS*2)+1),
		cache:   newAnswerCache(cfg.TTL, cfg.Redis, logger),
		logger:  logger,
	}
	if cfg.URL != "" {
		u, err := url.Parse(cfg.URL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return nil, fmt.Errorf("knowledge url %q: %w", cfg.URL, casierr.ErrInvalidConfig)
		}
		c.endpoint = u
	}
	return c, nil
}

func (c *Client) Enabled() bool { return c != nil && c.endpoint != nil }

// Source names the service in stored pattern provenance.
func (c *Client) Source() string { return c.source }

// Fetch asks the service about query. Answers are cached per normalized
// query; failures and answers shorter than MinAnswerLength degrade to "".
func (c *Client) Fetch(ctx context.Context, query string) degrade.Result[string] {
	if !c.Enabled() {
		return degrade.OK("")
	}
	key := strconv.FormatUint(xxhash.Sum64String(textnorm.Normalize(query)), 16)
	if v, ok := c.cache.get(ctx, key); ok {
		return degrade.OK(v)
	}

	answer, err := c.fetch(ctx, query)
	if err != nil {
		metrics.Degraded("knowledge")
		c.logger.Warn("knowledge service unavailable", "component", "knowledge", "error", err)
		return degrade.Fallback("", fmt.Errorf("fetch knowledge: %w", err))
	}
	c.cache.set(ctx, key, answer)
	return degrade.OK(answer)
}

type answer struct {
	Response string `json:"response"`
	Model    struct {
		Response string `json:"response"`
	} `json:"model"`
}

func (c *Client) fetch(ctx context.Context, query string) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limit: %w", err)
	}

	u := *c.endpoint
	q := u.Query()
	q.Set("input", query)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var a answer
	if err := json.Unmarshal(body, &a); err != nil {
		return "", fmt.Errorf("unmarshal response: %w", err)
	}
	text := strings.TrimSpace(a.Response)
	if text == "" {
		text = strings.TrimSpace(a.Model.Response)
	}
	if len([]rune(text)) < MinAnswerLength {
		return "", errShortAnswer
	}
	return text, nil
}
