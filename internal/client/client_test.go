package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/MikeSquared-Agency/casi/internal/casierr"
	"github.com/MikeSquared-Agency/casi/internal/engine"
)

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/generate", func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req["prompt"] == "" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"prompt: must not be empty"}`))
			return
		}
		if req["mood"] != "empathetic" {
			t.Errorf("mood not forwarded: %v", req["mood"])
		}
		_, _ = w.Write([]byte(`{"text":"Tides follow the moon.","confidence":0.95,"outputId":"01OUT","source":"CASI","intent":"explanation"}`))
	})
	mux.HandleFunc("/api/v1/feedback", func(w http.ResponseWriter, r *http.Request) {
		var req map[string]string
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req["outputId"] != "01OUT" {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":"not found"}`))
			return
		}
		_, _ = w.Write([]byte(`{"status":"recorded"}`))
	})
	mux.HandleFunc("/api/v1/broken", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestGenerate(t *testing.T) {
	c := New(newServer(t).URL+"/", time.Second)
	resp, err := c.Generate(context.Background(), engine.Request{Prompt: "explain tides", Mood: "empathetic"})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if resp.OutputID != "01OUT" || resp.Confidence != 0.95 || resp.Text != "Tides follow the moon." {
		t.Errorf("unexpected response: %+v", resp)
	}
}

func TestGenerate_Validation(t *testing.T) {
	c := New(newServer(t).URL, time.Second)
	_, err := c.Generate(context.Background(), engine.Request{Mood: "empathetic"})
	if !errors.Is(err, casierr.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestFeedback(t *testing.T) {
	c := New(newServer(t).URL, time.Second)
	if err := c.Feedback(context.Background(), "01OUT", "upvote"); err != nil {
		t.Errorf("Feedback: %v", err)
	}
	if err := c.Feedback(context.Background(), "nope", "upvote"); !errors.Is(err, casierr.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestServerErrorAndUnreachable(t *testing.T) {
	c := New(newServer(t).URL, time.Second)
	if err := c.post(context.Background(), "/api/v1/broken", struct{}{}, nil); err == nil {
		t.Error("expected an error for a 500")
	}

	down := New("http://127.0.0.1:1", 200*time.Millisecond)
	if err := down.Feedback(context.Background(), "x", "upvote"); !errors.Is(err, casierr.ErrUnavailable) {
		t.Errorf("expected ErrUnavailable, got %v", err)
	}
}
