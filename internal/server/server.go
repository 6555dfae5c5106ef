// Package server exposes load tests and their history over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"loadtest-engine/internal/orchestrator"
)

const shutdownTimeout = 10 * time.Second

// errShuttingDown is the cancellation cause of every in-flight request once the server stops.
var errShuttingDown = errors.New("server shutting down")

type Config struct {
	Addr      string
	RateLimit float64
	RateBurst int
	Gatherer  prometheus.Gatherer
}

type Server struct {
	router *chi.Mux
	orch   *orchestrator.Orchestrator
	logger *zap.Logger
	addr   string
}

func New(cfg Config, orch *orchestrator.Orchestrator, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Gatherer == nil {
		cfg.Gatherer = prometheus.DefaultGatherer
	}

	s := &Server{router: chi.NewRouter(), orch: orch, logger: logger, addr: cfg.Addr}
	r := s.router
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Get("/health", s.health)
	r.Handle("/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))

	limiter := newRateLimiter(cfg.RateLimit, cfg.RateBurst)
	r.Route("/api", func(r chi.Router) {
		r.With(limiter.Middleware).Post("/load-test", s.runLoadTest)
		r.Route("/history", func(r chi.Router) {
			r.Get("/", s.listHistory)
			r.Delete("/", s.clearHistory)
			r.Get("/{id}", s.getHistory)
			r.Delete("/{id}", s.deleteHistory)
			r.With(limiter.Middleware).Post("/{id}/retry", s.retryHistory)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		WriteError(w, http.StatusNotFound, errNotFound)
	})

	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until ctx ends, then shuts down gracefully. Requests still running at that point
// are cancelled with errShuttingDown as their cause.
func (s *Server) Start(ctx context.Context) error {
	base, cancelBase := context.WithCancelCause(context.WithoutCancel(ctx))
	defer cancelBase(nil)
	stop := context.AfterFunc(ctx, func() { cancelBase(errShuttingDown) })
	defer stop()

	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(_ net.Listener) context.Context { return base },
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", zap.String("addr", s.addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	s.logger.Info("shutting down http server")
	if err := srv.Shutdown(shutdownCtx); err != nil { //nolint:contextcheck // shutdown must outlive the cancelled ctx
		return fmt.Errorf("failed to shut down http server: %w", err)
	}
	return nil
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}
