package knowledge

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MikeSquared-Agency/casi/internal/casierr"
)

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		handler(w, r)
	}))
	t.Cleanup(srv.Close)
	c, err := New(Config{URL: srv.URL + "/ask", RPS: 100, Timeout: time.Second}, quiet())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c, &calls
}

func TestFetch(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		want     string
		degraded bool
	}{
		{"top level response", 200, `{"response":"Gravity bends spacetime."}`, "Gravity bends spacetime.", false},
		{"nested model response", 200, `{"model":{"response":"Tides follow the moon."}}`, "Tides follow the moon.", false},
		{"short answer", 200, `{"response":"ok"}`, "", true},
		{"empty object", 200, `{}`, "", true},
		{"server error", 500, `boom`, "", true},
		{"not json", 200, `<html>`, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/ask" || r.URL.Query().Get("input") != "what is gravity" {
					t.Errorf("unexpected request %s", r.URL)
				}
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})
			res := c.Fetch(context.Background(), "what is gravity")
			if res.Value != tt.want || res.Degraded() != tt.degraded {
				t.Errorf("Fetch = %q degraded=%v, want %q degraded=%v", res.Value, res.Degraded(), tt.want, tt.degraded)
			}
		})
	}
}

func TestFetch_CachesByNormalizedQuery(t *testing.T) {
	c, calls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"response":"Photosynthesis makes sugar from light."}`))
	})
	for _, q := range []string{"What is photosynthesis?", "what is photosynthesis?", "  What is   photosynthesis?"} {
		if res := c.Fetch(context.Background(), q); res.Degraded() {
			t.Fatalf("Fetch(%q) degraded: %v", q, res.Cause)
		}
	}
	if n := calls.Load(); n != 1 {
		t.Errorf("service called %d times, want 1", n)
	}
}

func TestFetch_FailuresAreNotCached(t *testing.T) {
	var fail atomic.Bool
	fail.Store(true)
	c, calls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if fail.Load() {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"response":"Back online now."}`))
	})
	if res := c.Fetch(context.Background(), "status"); !res.Degraded() {
		t.Fatal("expected degraded result")
	}
	fail.Store(false)
	if res := c.Fetch(context.Background(), "status"); res.Value != "Back online now." {
		t.Errorf("second fetch = %q", res.Value)
	}
	if calls.Load() != 2 {
		t.Errorf("calls = %d, want 2", calls.Load())
	}
}

func TestFetch_TimeoutDegrades(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if res := c.Fetch(ctx, "slow"); !res.Degraded() || res.Value != "" {
		t.Errorf("Fetch = %+v, want degraded empty", res)
	}
}

func TestDisabledClient(t *testing.T) {
	c, err := New(Config{}, quiet())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if c.Enabled() {
		t.Error("client without url should be disabled")
	}
	if res := c.Fetch(context.Background(), "anything"); res.Degraded() || res.Value != "" {
		t.Errorf("disabled Fetch = %+v", res)
	}
	if c.Source() != "external" {
		t.Errorf("default source = %q", c.Source())
	}
}

func TestNew_RejectsBadURL(t *testing.T) {
	_, err := New(Config{URL: "not a url"}, quiet())
	if !errors.Is(err, casierr.ErrInvalidConfig) {
		t.Errorf("want ErrInvalidConfig, got %v", err)
	}
}
