package api

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/MikeSquared-Agency/casi/internal/casierr"
	"github.com/MikeSquared-Agency/casi/internal/prune"
)

// BearerAuthMiddleware guards maintenance routes. With no token configured
// the routes are closed.
func BearerAuthMiddleware(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token == "" {
				writeError(w, http.StatusForbidden, "admin API disabled: CASI_API_TOKEN not set")
				return
			}
			got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// PruneRequest overrides the configured prune options. Zero fields keep
// the defaults.
type PruneRequest struct {
	MaxDocs       *int     `json:"maxDocs,omitempty"`
	MinConfidence *float64 `json:"minConfidence,omitempty"`
	MinDiversity  *float64 `json:"minDiversity,omitempty"`
}

func (p PruneRequest) apply(opts prune.Options) (prune.Options, error) {
	if p.MaxDocs != nil {
		if *p.MaxDocs <= 0 {
			return opts, casierr.Invalid("maxDocs", "must be positive")
		}
		opts.MaxDocs = *p.MaxDocs
	}
	if p.MinConfidence != nil {
		if *p.MinConfidence < 0 || *p.MinConfidence > 1 {
			return opts, casierr.Invalid("minConfidence", "must be between 0 and 1")
		}
		opts.MinConfidence = *p.MinConfidence
	}
	if p.MinDiversity != nil {
		if *p.MinDiversity < 0 || *p.MinDiversity > 1 {
			return opts, casierr.Invalid("minDiversity", "must be between 0 and 1")
		}
		opts.MinDiversity = *p.MinDiversity
	}
	return opts, nil
}

// prune handles POST /api/v1/prune. An empty body uses the defaults.
func (s *Server) prune(w http.ResponseWriter, r *http.Request) {
	if s.deps.Pruner == nil {
		writeError(w, http.StatusServiceUnavailable, "pruner not configured")
		return
	}
	var req PruneRequest
	if r.ContentLength != 0 {
		if err := decode(w, r, &req); err != nil {
			s.writeFailure(w, "prune", err)
			return
		}
	}
	opts, err := req.apply(s.deps.PruneDefaults)
	if err != nil {
		s.writeFailure(w, "prune", err)
		return
	}
	res, err := s.deps.Pruner.Prune(r.Context(), opts)
	if err != nil {
		s.writeFailure(w, "prune", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": res.Deleted(), "result": res})
}

type IngestRequest struct {
	URL     string `json:"url"`
	Concept string `json:"concept,omitempty"`
}

// ingest handles POST /api/v1/ingest.
func (s *Server) ingest(w http.ResponseWriter, r *http.Request) {
	if s.deps.Ingester == nil {
		writeError(w, http.StatusServiceUnavailable, "ingest not configured")
		return
	}
	var req IngestRequest
	if err := decode(w, r, &req); err != nil {
		s.writeFailure(w, "ingest", err)
		return
	}
	rep, err := s.deps.Ingester.IngestURL(r.Context(), req.URL, req.Concept)
	if err != nil {
		s.writeFailure(w, "ingest", err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

// reload handles POST /api/v1/cache/reload.
func (s *Server) reload(w http.ResponseWriter, r *http.Request) {
	if s.deps.Reload == nil {
		writeError(w, http.StatusServiceUnavailable, "cache reload not configured")
		return
	}
	n, err := s.deps.Reload(r.Context())
	if err != nil {
		s.writeFailure(w, "cache reload", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"patterns": n})
}
