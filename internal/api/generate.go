package api

import (
	"bytes"
	"context"
	"net/http"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/MikeSquared-Agency/casi/internal/casierr"
	"github.com/MikeSquared-Agency/casi/internal/engine"
)

var markdown = goldmark.New(goldmark.WithExtensions(extension.GFM))

// GenerateRequest is an engine request plus presentation options.
type GenerateRequest struct {
	engine.Request
	// Render is "html" to add an HTML rendering of the answer.
	Render string `json:"render,omitempty"`
}

type GenerateResponse struct {
	engine.Response
	HTML string `json:"html,omitempty"`
}

type FeedbackRequest struct {
	OutputID string `json:"outputId"`
	Vote     string `json:"vote"`
}

// generate handles POST /api/v1/generate.
func (s *Server) generate(w http.ResponseWriter, r *http.Request) {
	var req GenerateRequest
	if err := decode(w, r, &req); err != nil {
		s.writeFailure(w, "generate", err)
		return
	}
	render := strings.ToLower(strings.TrimSpace(req.Render))
	if render != "" && render != "html" {
		s.writeFailure(w, "generate", casierr.Invalid("render", "must be html, got %q", req.Render))
		return
	}

	ctx := r.Context()
	if s.deps.GenerateTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.deps.GenerateTimeout)
		defer cancel()
	}
	resp, err := s.deps.Engine.Generate(ctx, req.Request)
	if err != nil {
		s.writeFailure(w, "generate", err)
		return
	}

	out := GenerateResponse{Response: resp}
	if render == "html" {
		out.HTML = renderHTML(resp.Text)
	}
	writeJSON(w, http.StatusOK, out)
}

// feedback handles POST /api/v1/feedback.
func (s *Server) feedback(w http.ResponseWriter, r *http.Request) {
	var req FeedbackRequest
	if err := decode(w, r, &req); err != nil {
		s.writeFailure(w, "feedback", err)
		return
	}
	if err := s.deps.Engine.Feedback(r.Context(), req.OutputID, req.Vote); err != nil {
		s.writeFailure(w, "feedback", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "recorded", "outputId": req.OutputID})
}

// renderHTML converts markdown to HTML. Raw HTML in the answer is escaped
// by goldmark's default renderer.
func renderHTML(text string) string {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(text), &buf); err != nil {
		return ""
	}
	return buf.String()
}
