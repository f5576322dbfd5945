package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/MikeSquared-Agency/casi/internal/casierr"
	"github.com/MikeSquared-Agency/casi/internal/engine"
	"github.com/MikeSquared-Agency/casi/internal/prune"
	"github.com/MikeSquared-Agency/casi/internal/scrape"
)

const token = "s3cret"

type fakeEngine struct {
	votes []string
}

func (f *fakeEngine) Generate(_ context.Context, req engine.Request) (engine.Response, error) {
	if _, err := req.Validate(); err != nil {
		return engine.Response{}, err
	}
	return engine.Response{Text: "**Tides** follow the moon.", Confidence: 0.95, OutputID: "01OUT", Source: "CASI", Intent: "explanation"}, nil
}

func (f *fakeEngine) Feedback(_ context.Context, outputID, vote string) error {
	if vote != "upvote" && vote != "downvote" {
		return casierr.Invalid("vote", "bad vote")
	}
	if outputID != "01OUT" {
		return fmt.Errorf("vote: %w", casierr.ErrNotFound)
	}
	f.votes = append(f.votes, vote)
	return nil
}

type fakePruner struct{ got prune.Options }

func (f *fakePruner) Prune(_ context.Context, opts prune.Options) (prune.Result, error) {
	f.got = opts
	return prune.Result{LowConfidence: 2, Duplicates: 1, Remaining: 7}, nil
}

type fakeIngester struct{}

func (fakeIngester) IngestURL(_ context.Context, rawURL, concept string) (scrape.Report, error) {
	if rawURL == "down" {
		return scrape.Report{}, fmt.Errorf("ingest: %w", casierr.ErrUnavailable)
	}
	return scrape.Report{URL: rawURL, Concept: concept, Chunks: 3, Stored: 3}, nil
}

func newTestServer(t *testing.T) (*Server, *fakeEngine, *fakePruner) {
	t.Helper()
	eng := &fakeEngine{}
	pr := &fakePruner{}
	srv := NewServer(8760, Deps{
		Engine:        eng,
		Pruner:        pr,
		PruneDefaults: prune.Options{MaxDocs: 5000, MinConfidence: 0.9, MinDiversity: 0.05},
		Ingester:      fakeIngester{},
		Reload:        func(context.Context) (int, error) { return 42, nil },
		CacheSize:     func() int { return 42 },
		Status:        Status{Store: "memory", Embedder: "hash", Generator: "none"},
		APIToken:      token,
		Logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	return srv, eng, pr
}

func do(srv *Server, method, path, body string, auth bool) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if auth {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	srv.router.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return body
}

func TestHealthEndpoint(t *testing.T) {
	srv, _, _ := newTestServer(t)
	w := do(srv, "GET", "/health", "", false)
	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}
	if body := decodeBody(t, w); body["status"] != "ok" {
		t.Errorf("expected status ok, got %v", body["status"])
	}
}

func TestStatusEndpoint(t *testing.T) {
	srv, _, _ := newTestServer(t)
	w := do(srv, "GET", "/api/v1/casi/status", "", false)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	body := decodeBody(t, w)
	if body["agent"] != "casi" || body["store"] != "memory" || body["cache_patterns"] != float64(42) {
		t.Errorf("unexpected status body: %v", body)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _, _ := newTestServer(t)
	w := do(srv, "GET", "/metrics", "", false)
	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}
}

func TestNotFoundEndpoint(t *testing.T) {
	srv, _, _ := newTestServer(t)
	if w := do(srv, "GET", "/nonexistent", "", false); w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}

func TestGenerate(t *testing.T) {
	srv, _, _ := newTestServer(t)
	tests := []struct {
		name     string
		body     string
		wantCode int
		wantHTML bool
	}{
		{"ok", `{"prompt":"explain tides"}`, http.StatusOK, false},
		{"html", `{"prompt":"explain tides","render":"html"}`, http.StatusOK, true},
		{"empty prompt", `{"prompt":""}`, http.StatusBadRequest, false},
		{"bad depth", `{"prompt":"x","depth":99}`, http.StatusBadRequest, false},
		{"bad mood", `{"prompt":"x","mood":"grumpy"}`, http.StatusBadRequest, false},
		{"bad render", `{"prompt":"x","render":"pdf"}`, http.StatusBadRequest, false},
		{"bad json", `{"prompt":`, http.StatusBadRequest, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(srv, "POST", "/api/v1/generate", tt.body, false)
			if w.Code != tt.wantCode {
				t.Fatalf("expected %d, got %d: %s", tt.wantCode, w.Code, w.Body.String())
			}
			body := decodeBody(t, w)
			if tt.wantCode != http.StatusOK {
				if body["error"] == "" {
					t.Error("expected an error message")
				}
				return
			}
			if body["outputId"] != "01OUT" || body["source"] != "CASI" || body["confidence"] != 0.95 {
				t.Errorf("unexpected body: %v", body)
			}
			html, _ := body["html"].(string)
			if tt.wantHTML != strings.Contains(html, "<strong>Tides</strong>") {
				t.Errorf("unexpected html %q", html)
			}
		})
	}
}

func TestFeedback(t *testing.T) {
	srv, eng, _ := newTestServer(t)
	tests := []struct {
		body     string
		wantCode int
	}{
		{`{"outputId":"01OUT","vote":"upvote"}`, http.StatusOK},
		{`{"outputId":"missing","vote":"downvote"}`, http.StatusNotFound},
		{`{"outputId":"01OUT","vote":"sideways"}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		if w := do(srv, "POST", "/api/v1/feedback", tt.body, false); w.Code != tt.wantCode {
			t.Errorf("%s: expected %d, got %d", tt.body, tt.wantCode, w.Code)
		}
	}
	if len(eng.votes) != 1 {
		t.Errorf("expected 1 applied vote, got %d", len(eng.votes))
	}
}

func TestAdminRoutesRequireToken(t *testing.T) {
	srv, _, _ := newTestServer(t)
	for _, path := range []string{"/api/v1/prune", "/api/v1/ingest", "/api/v1/cache/reload"} {
		if w := do(srv, "POST", path, "{}", false); w.Code != http.StatusUnauthorized {
			t.Errorf("%s without token: expected 401, got %d", path, w.Code)
		}
	}

	closed := NewServer(0, Deps{Engine: &fakeEngine{}, Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})
	if w := do(closed, "POST", "/api/v1/prune", "", true); w.Code != http.StatusForbidden {
		t.Errorf("expected 403 with no token configured, got %d", w.Code)
	}
}

func TestPrune(t *testing.T) {
	srv, _, pr := newTestServer(t)

	w := do(srv, "POST", "/api/v1/prune", "", true)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if body := decodeBody(t, w); body["deleted"] != float64(3) {
		t.Errorf("expected 3 deleted, got %v", body["deleted"])
	}
	if pr.got.MaxDocs != 5000 || pr.got.MinConfidence != 0.9 {
		t.Errorf("defaults not applied: %+v", pr.got)
	}

	if w := do(srv, "POST", "/api/v1/prune", `{"maxDocs":10}`, true); w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if pr.got.MaxDocs != 10 || pr.got.MinDiversity != 0.05 {
		t.Errorf("override not applied: %+v", pr.got)
	}

	if w := do(srv, "POST", "/api/v1/prune", `{"minConfidence":2}`, true); w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestIngest(t *testing.T) {
	srv, _, _ := newTestServer(t)
	w := do(srv, "POST", "/api/v1/ingest", `{"url":"https://example.com/tides","concept":"tides"}`, true)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if body := decodeBody(t, w); body["stored"] != float64(3) || body["concept"] != "tides" {
		t.Errorf("unexpected report: %v", body)
	}
	if w := do(srv, "POST", "/api/v1/ingest", `{"url":"down"}`, true); w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", w.Code)
	}
}

func TestCacheReload(t *testing.T) {
	srv, _, _ := newTestServer(t)
	w := do(srv, "POST", "/api/v1/cache/reload", "", true)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if body := decodeBody(t, w); body["patterns"] != float64(42) {
		t.Errorf("unexpected body: %v", body)
	}
}

func TestRenderHTMLEscapesRawHTML(t *testing.T) {
	out := renderHTML("Hello <script>alert(1)</script>")
	if strings.Contains(out, "<script>") {
		t.Errorf("raw html passed through: %q", out)
	}
}
