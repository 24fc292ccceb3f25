// Package server exposes the import pipeline over HTTP. One import runs at
// a time; callers poll for its progress and result.
package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/sells-group/invoice-rpa/internal/config"
	"github.com/sells-group/invoice-rpa/internal/model"
	"github.com/sells-group/invoice-rpa/internal/pipeline"
)

// maxBodyBytes caps the job object accepted by POST /imports.
const maxBodyBytes = 64 << 10

// StartFunc runs one import with cfg and reports through rep.
type StartFunc func(ctx context.Context, cfg *config.Config, rep pipeline.Reporter) model.Result

// Status is the state of the latest import.
type Status struct {
	Running    bool            `json:"running"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt *time.Time      `json:"finished_at,omitempty"`
	Progress   *model.Progress `json:"progress,omitempty"`
	Result     *model.Result   `json:"result,omitempty"`
}

// Server holds the HTTP handlers and the single-run state.
type Server struct {
	ctx   context.Context
	cfg   *config.Config
	start StartFunc
	log   *zap.Logger

	mu      sync.Mutex
	current *Status
	wg      sync.WaitGroup
}

// New creates a Server. Imports run under ctx, not the request context, and
// use a copy of cfg with the request's job object applied.
func New(ctx context.Context, cfg *config.Config, start StartFunc) *Server {
	return &Server{
		ctx:   ctx,
		cfg:   cfg,
		start: start,
		log:   zap.L().With(zap.String("component", "server")),
	}
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.Server.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/imports", func(r chi.Router) {
		r.Post("/", s.handleStart)
		r.Get("/current", s.handleCurrent)
	})

	return r
}

// Wait blocks until the running import, if any, has finished.
func (s *Server) Wait() {
	s.wg.Wait()
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	cfg := *s.cfg
	if err := config.ApplyJob(&cfg, raw); err != nil {
		writeError(w, http.StatusBadRequest, "invalid job object")
		return
	}
	if err := cfg.Validate("run"); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.mu.Lock()
	if s.current != nil && s.current.Running {
		s.mu.Unlock()
		writeError(w, http.StatusConflict, "an import is already running")
		return
	}
	s.current = &Status{Running: true, StartedAt: time.Now().UTC()}
	s.wg.Add(1)
	s.mu.Unlock()

	go s.run(&cfg)

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

func (s *Server) run(cfg *config.Config) {
	defer s.wg.Done()
	defer func() {
		if p := recover(); p != nil {
			s.log.Error("import panicked", zap.Any("panic", p))
			s.finish(model.Result{Success: false, Error: "internal error"})
		}
	}()

	res := s.start(s.ctx, cfg, (*statusReporter)(s))
	s.finish(res)
}

func (s *Server) finish(res model.Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	s.current.Running = false
	s.current.FinishedAt = &now
	s.current.Result = &res
	s.log.Info("import finished", zap.Bool("success", res.Success), zap.String("run_id", res.RunID))
}

func (s *Server) handleCurrent(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	if s.current == nil {
		s.mu.Unlock()
		writeError(w, http.StatusNotFound, "no import has run yet")
		return
	}
	snap := *s.current
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, snap)
}

// statusReporter records progress on the current Status. The final result
// is recorded by run once start returns.
type statusReporter Server

func (r *statusReporter) Progress(p model.Progress) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current != nil {
		r.current.Progress = &p
	}
}

func (r *statusReporter) Result(model.Result) {}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("server: encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
