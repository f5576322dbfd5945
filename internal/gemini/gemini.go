package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"

	genai "google.golang.org/genai"

	"github.com/MikeSquared-Agency/casi/internal/paraphrase"
)

type Client struct {
	cli        *genai.Client
	model      string
	embedModel string
	dim        int
}

type Config struct {
	APIKey     string
	Model      string
	EmbedModel string
	Dimension  int
	// BaseURL overrides the API endpoint; tests point it at httptest.
	BaseURL string
}

func New(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("gemini: missing API key")
	}
	cc := &genai.ClientConfig{APIKey: cfg.APIKey, Backend: genai.BackendGeminiAPI}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}
	cli, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &Client{cli: cli, model: cfg.Model, embedModel: cfg.EmbedModel, dim: cfg.Dimension}, nil
}

func (c *Client) Name() string   { return "gemini:" + c.model }
func (c *Client) Dimension() int { return c.dim }

// Embed satisfies embedding.Model.
func (c *Client) Embed(ctx context.Context, text string) ([]float64, error) {
	var cfg *genai.EmbedContentConfig
	if c.dim > 0 {
		dim := int32(c.dim)
		cfg = &genai.EmbedContentConfig{OutputDimensionality: &dim}
	}
	resp, err := c.cli.Models.EmbedContent(ctx, c.embedModel,
		[]*genai.Content{{Parts: []*genai.Part{{Text: text}}}}, cfg)
	if err != nil {
		return nil, fmt.Errorf("embed content: %w", err)
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Values) == 0 {
		return nil, errors.New("embed content: no embedding returned")
	}
	values := resp.Embeddings[0].Values
	out := make([]float64, len(values))
	for i, v := range values {
		out[i] = float64(v)
	}
	return out, nil
}

// Generate satisfies paraphrase.Generator.
func (c *Client) Generate(ctx context.Context, prompt string, opts paraphrase.Options) (string, error) {
	cfg := &genai.GenerateContentConfig{}
	if opts.MaxNewTokens > 0 {
		cfg.MaxOutputTokens = int32(opts.MaxNewTokens)
	}
	if opts.Temperature > 0 {
		t := float32(opts.Temperature)
		cfg.Temperature = &t
	}
	if opts.TopK > 0 {
		k := float32(opts.TopK)
		cfg.TopK = &k
	}
	resp, err := c.cli.Models.GenerateContent(ctx, c.model,
		[]*genai.Content{{Role: "user", Parts: []*genai.Part{{Text: prompt}}}}, cfg)
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", errors.New("generate content: empty response")
	}
	return text, nil
}
