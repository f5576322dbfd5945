package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MikeSquared-Agency/casi/internal/casierr"
	"github.com/MikeSquared-Agency/casi/internal/engine"
	"github.com/MikeSquared-Agency/casi/internal/prune"
	"github.com/MikeSquared-Agency/casi/internal/scrape"
)

const maxBodyBytes = 64 << 10

type Generator interface {
	Generate(ctx context.Context, req engine.Request) (engine.Response, error)
	Feedback(ctx context.Context, outputID, vote string) error
}

type Pruner interface {
	Prune(ctx context.Context, opts prune.Options) (prune.Result, error)
}

type Ingester interface {
	IngestURL(ctx context.Context, rawURL, concept string) (scrape.Report, error)
}

// Status is the static part of GET /api/v1/casi/status.
type Status struct {
	Store     string `json:"store"`
	Embedder  string `json:"embedder"`
	Generator string `json:"generator"`
	Knowledge bool   `json:"knowledge"`
}

// Deps are the server's collaborators. Pruner, Ingester and Reload may be
// nil; their routes then answer 503.
type Deps struct {
	Engine          Generator
	Pruner          Pruner
	PruneDefaults   prune.Options
	Ingester        Ingester
	Reload          func(ctx context.Context) (int, error)
	CacheSize       func() int
	Status          Status
	APIToken        string
	GenerateTimeout time.Duration
	Logger          *slog.Logger
}

type Server struct {
	router *chi.Mux
	port   int
	deps   Deps
	http   *http.Server
}

func NewServer(port int, deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	router := chi.NewRouter()
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)

	s := &Server{
		router: router,
		port:   port,
		deps:   deps,
	}

	router.Get("/health", s.health)
	router.Handle("/metrics", promhttp.Handler())
	router.Get("/api/v1/casi/status", s.status)
	router.Post("/api/v1/generate", s.generate)
	router.Post("/api/v1/feedback", s.feedback)

	router.Group(func(r chi.Router) {
		r.Use(BearerAuthMiddleware(deps.APIToken))
		r.Post("/api/v1/prune", s.prune)
		r.Post("/api/v1/ingest", s.ingest)
		r.Post("/api/v1/cache/reload", s.reload)
	})

	return s
}

func (s *Server) Handler() http.Handler { return s.router }

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.port)
	s.http = &http.Server{Addr: addr, Handler: s.router, ReadHeaderTimeout: 10 * time.Second}
	s.deps.Logger.Info("API server starting", "addr", addr)
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{
		"agent":     "casi",
		"status":    "ok",
		"store":     s.deps.Status.Store,
		"embedder":  s.deps.Status.Embedder,
		"generator": s.deps.Status.Generator,
		"knowledge": s.deps.Status.Knowledge,
	}
	if s.deps.CacheSize != nil {
		body["cache_patterns"] = s.deps.CacheSize()
	}
	writeJSON(w, http.StatusOK, body)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

// writeFailure maps err onto a status code. Only validation and not-found
// errors carry their message to the caller.
func (s *Server) writeFailure(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, casierr.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, casierr.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, casierr.ErrUnavailable):
		s.deps.Logger.Warn(op+" unavailable", "error", err)
		writeError(w, http.StatusServiceUnavailable, op+" unavailable")
	default:
		s.deps.Logger.Error(op+" failed", "error", err)
		writeError(w, http.StatusInternalServerError, op+" failed")
	}
}

func decode(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return casierr.Invalid("body", "invalid JSON: %v", err)
	}
	return nil
}
