// Package server provides the HTTP API for kilimo.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/hyperjump/kilimo/internal/config"
	"github.com/hyperjump/kilimo/internal/search"
	"github.com/hyperjump/kilimo/pkg/utils"
)

// Reload results recorded in metrics.
const (
	reloadChanged   = "changed"
	reloadUnchanged = "unchanged"
	reloadFailed    = "failed"
)

// Server is the HTTP server for the kilimo API.
type Server struct {
	engine     *search.Engine
	config     *config.ServerConfig
	logger     *zap.Logger
	metrics    *Metrics
	askLimiter *rate.Limiter // nil means unlimited
	handler    http.Handler
	server     *http.Server
}

// NewServer creates a server with the given dependencies.
func NewServer(engine *search.Engine, cfg *config.ServerConfig, logger *zap.Logger) *Server {
	s := &Server{
		engine:  engine,
		config:  cfg,
		logger:  utils.OrNop(logger),
		metrics: NewMetrics(),
	}
	if cfg.AskRateLimit > 0 {
		burst := cfg.AskBurst
		if burst < 1 {
			burst = 1
		}
		s.askLimiter = rate.NewLimiter(rate.Limit(cfg.AskRateLimit), burst)
	}
	s.handler = s.routes()
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(middleware.Compress(5))

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", s.metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Get("/summary", s.handleSummary)
		r.Get("/counties", s.handleCounties)
		r.Get("/counties/{county}/records", s.handleCountyRecords)
		r.Get("/filters", s.handleFilters)
		r.Get("/records", s.handleRecords)
		r.Get("/samples", s.handleSamples)
		r.Get("/pivot", s.handlePivot)
		r.With(s.limitAsks).Post("/ask", s.handleAsk)
		r.Post("/reload", s.handleReload)
		r.Get("/asks", s.handleAsks)
	})
	return r
}

// limitAsks rejects asks beyond the configured rate with 429.
func (s *Server) limitAsks(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.askLimiter != nil && !s.askLimiter.Allow() {
			s.metrics.rateLimited.Inc()
			w.Header().Set("Retry-After", "1")
			s.respondError(w, http.StatusTooManyRequests, "too many requests")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Reload reloads the dataset and records the outcome. The watcher and the
// reload endpoint both go through here.
func (s *Server) Reload(ctx context.Context) (bool, error) {
	changed, err := s.engine.Reload(ctx)
	if err != nil {
		s.metrics.observeReload(reloadFailed, 0, 0)
		s.logger.Error("dataset reload failed, keeping previous snapshot", zap.Error(err))
		return false, err
	}
	result := reloadUnchanged
	if changed {
		result = reloadChanged
	}
	var records, corpus int
	if st, err := s.engine.Status(ctx); err == nil {
		records, corpus = st.Records, st.Corpus
	}
	s.metrics.observeReload(result, records, corpus)
	return changed, nil
}

func (s *Server) httpServer() *http.Server {
	if s.server == nil {
		s.server = &http.Server{
			Addr:              fmt.Sprintf("%s:%d", s.config.Host, s.config.Port),
			Handler:           s.handler,
			ReadHeaderTimeout: 10 * time.Second,
		}
	}
	return s.server
}

// Run starts the server and shuts it down when ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	srv := s.httpServer()
	s.logger.Info("Starting server", zap.String("addr", srv.Addr))
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.Stop(shutdownCtx); err != nil {
			return err
		}
		<-errCh
		return nil
	}
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
