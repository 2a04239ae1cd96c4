// Package transport exposes the scheduler kernel's embedded API (spec.md
// §6) over HTTP, so a program under test running out-of-process can drive
// a remote instance the same way an in-process client drives kernel.Kernel
// directly. The kernel itself never imports net/http; every handler here
// is a thin adaptor from a JSON request/reply pair onto kernel method
// calls plus error_code on the way back out.
package transport

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/weftsched/weft/internal/store"
	"github.com/weftsched/weft/internal/strategy"
)

const (
	shutdownTimeout   = 10 * time.Second
	readHeaderTimeout = 10 * time.Second
	writeTimeout      = 30 * time.Second
)

// Server wraps the chi router, the scheduler instance registry, and the
// run history store.
type Server struct {
	router     *chi.Mux
	store      store.Store
	registry   *registry
	defaultCfg strategy.Config
	logger     *slog.Logger
	addr       string
}

// NewServer creates and configures a new HTTP server. defaultCfg supplies
// the strategy settings a POST /v1/schedulers call falls back to for any
// field it omits.
func NewServer(addr string, s store.Store, defaultCfg strategy.Config, logger *slog.Logger) *Server {
	srv := &Server{
		router:     chi.NewRouter(),
		store:      s,
		registry:   newRegistry(),
		defaultCfg: defaultCfg,
		logger:     logger,
		addr:       addr,
	}

	srv.router.Use(middleware.RequestID)
	srv.router.Use(middleware.Recoverer)
	srv.router.Use(srv.loggingMiddleware)
	srv.router.Use(metricsMiddleware)
	srv.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	srv.routes()

	return srv
}

// routes registers all HTTP routes on the router.
func (s *Server) routes() {
	s.router.Get("/healthz", s.handleHealthz)
	s.router.Handle("/metrics", metricsHandler())

	s.router.Get("/v1/runs", s.handleListRuns)
	s.router.Get("/v1/runs/{id}", s.handleGetRun)

	s.router.Route("/v1/schedulers", func(r chi.Router) {
		r.Post("/", s.handleCreateScheduler)

		r.Route("/{id}", func(r chi.Router) {
			r.Post("/attach", s.handleAttach)
			r.Post("/detach", s.handleDetach)

			r.Post("/operations", s.handleCreateOperation)
			r.Post("/operations/{op}/start", s.handleStartOperation)
			r.Post("/operations/{op}/complete", s.handleCompleteOperation)
			r.Post("/operations/{op}/join", s.handleJoinOperation)
			r.Post("/join", s.handleJoinOperations)

			r.Post("/resources", s.handleCreateResource)
			r.Delete("/resources/{res}", s.handleDeleteResource)
			r.Post("/resources/{res}/wait", s.handleWaitResource)
			r.Post("/resources/wait", s.handleWaitResources)
			r.Post("/resources/{res}/signal", s.handleSignalResource)
			r.Post("/resources/{res}/signal/{op}", s.handleSignalResourceTo)

			r.Post("/schedule-next", s.handleScheduleNext)
			r.Get("/next-boolean", s.handleNextBoolean)
			r.Get("/next-integer", s.handleNextInteger)
			r.Get("/random-seed", s.handleRandomSeed)
			r.Get("/scheduled-operation", s.handleScheduledOperation)
			r.Get("/last-error", s.handleLastError)
		})
	})
}

// Router returns the chi router, chiefly for tests that want to exercise
// handlers through httptest.NewServer without going through Run.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Run starts the HTTP server and blocks until a shutdown signal is received.
func (s *Server) Run() error {
	httpServer := &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: readHeaderTimeout,
		WriteTimeout:      writeTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", "addr", s.addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		s.logger.Info("shutting down", "signal", sig.String())
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	s.logger.Info("server stopped")
	return nil
}

// loggingMiddleware logs each request using the structured logger.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
