// Package server exposes an Orchestrator over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/hupe1980/assistmesh/core"
	"github.com/hupe1980/assistmesh/logging"
	"github.com/hupe1980/assistmesh/orchestrator"
)

// Service is the orchestrator surface served over HTTP.
type Service interface {
	Handle(ctx context.Context, runID, userID, text string) (orchestrator.Reply, error)
	CreateRun(ctx context.Context, userID string) (string, error)
	ListRuns(ctx context.Context, userID string) ([]string, error)
	History(ctx context.Context, runID string) ([]core.Turn, error)
	Ingest(ctx context.Context, docs []core.Document, upsert bool) (int, error)
	ClearKnowledge(ctx context.Context) error
	KnowledgeCount(ctx context.Context) (int, error)
}

var _ Service = (*orchestrator.Orchestrator)(nil)

// Options configures a Server.
type Options struct {
	AllowedOrigins []string

	// RequestTimeout bounds each request (default 2m).
	RequestTimeout time.Duration

	// MaxBodyBytes caps request bodies (default 10 MiB).
	MaxBodyBytes int64

	// Metrics is mounted at /metrics when set.
	Metrics http.Handler

	Logger logging.Logger
}

// Server is the HTTP front end.
type Server struct {
	svc    Service
	opts   Options
	logger logging.Logger
	router chi.Router
}

// New creates a Server and its routes.
func New(svc Service, optFns ...func(o *Options)) *Server {
	opts := Options{
		AllowedOrigins: []string{"*"},
		RequestTimeout: 2 * time.Minute,
		MaxBodyBytes:   10 << 20,
		Logger:         logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}

	s := &Server{svc: svc, opts: opts, logger: logging.With(opts.Logger, "component", "server")}
	s.router = s.routes()

	return s
}

// Handler returns the root http.Handler.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(s.requestLogger)
	r.Use(chimw.Recoverer)
	r.Use(tracing)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.opts.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders: []string{"X-Request-Id"},
		MaxAge:         300,
	}))

	r.Get("/healthz", s.health)
	if s.opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.opts.Metrics)
	}

	r.Group(func(r chi.Router) {
		r.Use(chimw.Timeout(s.opts.RequestTimeout))
		r.Use(chimw.RequestSize(s.opts.MaxBodyBytes))

		r.Post("/chat", s.chat)

		r.Route("/v1", func(r chi.Router) {
			r.Route("/runs", func(r chi.Router) {
				r.Post("/", s.createRun)
				r.Get("/", s.listRuns)
				r.Get("/{runID}/turns", s.history)
				r.Post("/{runID}/messages", s.postMessage)
			})

			r.Route("/knowledge", func(r chi.Router) {
				r.Get("/", s.knowledgeCount)
				r.Post("/", s.ingest)
				r.Delete("/", s.clearKnowledge)
			})
		})
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "not found", Code: "not_found"})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "method not allowed", Code: "method_not_allowed"})
	})

	return r
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server.start", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	s.logger.Info("server.shutdown", "addr", addr)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
