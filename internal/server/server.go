package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/tjfontaine/research-copilot/internal/domain"
	"github.com/tjfontaine/research-copilot/internal/runtime"
	"github.com/tjfontaine/research-copilot/internal/trace"
)

// Runs is the run management surface the API serves.
// Implemented by *runtime.Copilot.
type Runs interface {
	StartRun(ctx context.Context, sourceDir string) (runtime.RunInfo, error)
	ListRuns(ctx context.Context) ([]runtime.RunInfo, error)
	GetRun(ctx context.Context, runID string) (runtime.RunInfo, error)
	TracePath(runID string) (string, error)
}

type Server struct {
	Router *chi.Mux
	Addr   string
	runs   Runs
	logger *slog.Logger
	srv    *http.Server
}

func New(addr string, runs Runs, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(logger))
	r.Use(TimeoutMiddleware(30*time.Second, isTraceStream))
	r.Use(middleware.Recoverer)

	r.Use(func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(next, "research-copilot")
	})

	s := &Server{
		Router: r,
		Addr:   addr,
		runs:   runs,
		logger: logger,
	}

	r.Get("/healthz", s.handleHealth)
	r.Route("/runs", func(r chi.Router) {
		r.Get("/", s.handleListRuns)
		r.Post("/", s.handleStartRun)
		r.Get("/{id}", s.handleGetRun)
		r.Get("/{id}/trace", s.handleTrace)
	})

	return s
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	s.srv = &http.Server{
		Addr:              s.Addr,
		Handler:           s.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting server", slog.String("addr", s.Addr))
		errCh <- s.srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.logger.Info("shutting down server")
		return s.srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := s.runs.ListRuns(r.Context())
	if err != nil {
		s.writeError(w, r, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

type startRunRequest struct {
	SourceDir string `json:"source_dir"`
}

func (s *Server) handleStartRun(w http.ResponseWriter, r *http.Request) {
	var req startRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, r, http.StatusBadRequest, errors.New("invalid JSON body"))
		return
	}
	if req.SourceDir == "" {
		s.writeError(w, r, http.StatusBadRequest, errors.New("source_dir is required"))
		return
	}

	info, err := s.runs.StartRun(r.Context(), req.SourceDir)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, os.ErrNotExist) {
			status = http.StatusBadRequest
		}
		s.writeError(w, r, status, err)
		return
	}
	AddLogField(r.Context(), "run_id", info.ID)

	w.Header().Set("Location", "/runs/"+info.ID)
	writeJSON(w, http.StatusAccepted, info)
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	info, err := s.runs.GetRun(r.Context(), id)
	if err != nil {
		s.writeError(w, r, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// handleTrace streams a run's events as NDJSON, optionally limited to one
// event type with ?type=.
func (s *Server) handleTrace(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	path, err := s.runs.TracePath(id)
	if err != nil {
		s.writeError(w, r, statusFor(err), err)
		return
	}

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			s.writeError(w, r, http.StatusNotFound, runtime.ErrRunNotFound)
			return
		}
		s.writeError(w, r, http.StatusInternalServerError, err)
		return
	}
	defer f.Close()

	eventType := r.URL.Query().Get("type")
	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)

	enc := json.NewEncoder(w)
	err = trace.Scan(f, func(e domain.TraceEvent) error {
		if eventType != "" && e.EventType != eventType {
			return nil
		}
		return enc.Encode(e)
	})
	if err != nil {
		// Headers are already sent; the client sees a truncated stream.
		AddError(r.Context(), err)
	}
}

func statusFor(err error) int {
	if errors.Is(err, runtime.ErrRunNotFound) {
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, status int, err error) {
	AddError(r.Context(), err)
	writeJSON(w, status, map[string]any{
		"error": map[string]string{
			"message":    err.Error(),
			"request_id": GetRequestID(r.Context()),
		},
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
