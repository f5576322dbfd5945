package gemini

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/MikeSquared-Agency/casi/internal/paraphrase"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := New(context.Background(), Config{
		APIKey:     "test-key",
		Model:      "gemini-test",
		EmbedModel: "embed-test",
		Dimension:  3,
		BaseURL:    srv.URL,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func TestEmbed(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "embed-test") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"embeddings":[{"values":[0.25,0.5,0.75]}]}`))
	})
	v, err := c.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(v) != 3 || v[1] != 0.5 {
		t.Errorf("unexpected vector %v", v)
	}
}

func TestGenerate(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "gemini-test") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"candidates":[{"content":{"role":"model","parts":[{"text":" Go is pleasant. "}]}}]}`))
	})
	out, err := c.Generate(context.Background(), "Paraphrase: Go is nice.", paraphrase.Options{MaxNewTokens: 40, Temperature: 0.7, TopK: 40})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if out != "Go is pleasant." {
		t.Errorf("unexpected output %q", out)
	}
}

func TestGenerate_ServerError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"code":400,"message":"bad","status":"INVALID_ARGUMENT"}}`))
	})
	if _, err := c.Generate(context.Background(), "x", paraphrase.Options{}); err == nil {
		t.Fatal("expected error")
	}
}

func TestNew_RequiresKey(t *testing.T) {
	if _, err := New(context.Background(), Config{}); err == nil {
		t.Fatal("expected missing key error")
	}
}
