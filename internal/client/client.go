package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/MikeSquared-Agency/casi/internal/api"
	"github.com/MikeSquared-Agency/casi/internal/casierr"
	"github.com/MikeSquared-Agency/casi/internal/engine"
)

type Client struct {
	baseURL string
	http    *http.Client
}

func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

func (c *Client) Generate(ctx context.Context, req engine.Request) (engine.Response, error) {
	var out api.GenerateResponse
	if err := c.post(ctx, "/api/v1/generate", api.GenerateRequest{Request: req}, &out); err != nil {
		return engine.Response{}, fmt.Errorf("generate: %w", err)
	}
	return out.Response, nil
}

func (c *Client) Feedback(ctx context.Context, outputID, vote string) error {
	if err := c.post(ctx, "/api/v1/feedback", api.FeedbackRequest{OutputID: outputID, Vote: vote}, nil); err != nil {
		return fmt.Errorf("feedback: %w", err)
	}
	return nil
}

type errorBody struct {
	Error string `json:"error"`
}

// post sends body as JSON. 400 and 404 answers map onto the casierr
// sentinels so callers can branch on them.
func (c *Client) post(ctx context.Context, path string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", casierr.ErrUnavailable, err)
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var e errorBody
		msg := strings.TrimSpace(string(respBody))
		if json.Unmarshal(respBody, &e) == nil && e.Error != "" {
			msg = e.Error
		}
		switch resp.StatusCode {
		case http.StatusBadRequest:
			return fmt.Errorf("%s: %w", msg, casierr.ErrValidation)
		case http.StatusNotFound:
			return fmt.Errorf("%s: %w", msg, casierr.ErrNotFound)
		default:
			return fmt.Errorf("server error %d: %s", resp.StatusCode, msg)
		}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	return nil
}
