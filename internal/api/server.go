// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package api exposes the sync engine over a small JSON HTTP surface.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/ManuGH/recsync/internal/api/middleware"
	"github.com/ManuGH/recsync/internal/download"
	"github.com/ManuGH/recsync/internal/log"
	"github.com/ManuGH/recsync/internal/model"
	"github.com/ManuGH/recsync/internal/reconcile"
	"github.com/ManuGH/recsync/internal/registry"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Scheduler is the part of the download engine the API drives.
type Scheduler interface {
	StartSession(ctx context.Context, files []model.Recording) (model.Session, error)
	Redownload(ctx context.Context, files []model.Recording) ([]string, error)
	CancelAll()
	ClearFinished() int
	GetState() download.State
	GetStats(ctx context.Context) (download.Stats, error)
}

// Catalog serves device listings.
type Catalog interface {
	Refresh(ctx context.Context, force bool) (model.CatalogSnapshot, error)
}

// Planner decides which catalog entries still need syncing.
type Planner interface {
	GetFilesToSync(ctx context.Context, entries []model.Recording) (reconcile.Plan, error)
}

// Deps wires the server to the engine.
type Deps struct {
	Scheduler Scheduler
	Catalog   Catalog
	Planner   Planner
	Registry  registry.Registry
	// DevicePing reports device reachability for /healthz. Optional.
	DevicePing func(ctx context.Context) error
	// Version is reported by /healthz.
	Version string
}

// Config controls the middleware stack.
type Config struct {
	Listen    string
	RateLimit int
	Tracing   bool
}

// Server is the HTTP boundary.
type Server struct {
	deps   Deps
	cfg    Config
	logger zerolog.Logger
	router http.Handler
	srv    *http.Server
}

// New builds the server and its routes.
func New(deps Deps, cfg Config) *Server {
	s := &Server{
		deps:   deps,
		cfg:    cfg,
		logger: log.WithComponent("api"),
	}
	s.router = s.routes()
	return s
}

// Handler returns the root handler, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) routes() http.Handler {
	stack := middleware.StackConfig{
		EnableMetrics: true,
		EnableLogging: true,
		RateLimit:     s.cfg.RateLimit,
	}
	if s.cfg.Tracing {
		stack.TracingService = "recsync-api"
	}
	r := middleware.NewRouter(stack)

	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/state", s.handleState)
		r.Get("/stats", s.handleStats)
		r.With(forcedRefreshLimit).Get("/catalog", s.handleCatalog)
		r.Get("/sync/plan", s.handlePlan)
		r.Post("/sessions", s.handleStartSession)
		r.Post("/downloads/cancel", s.handleCancel)
		r.Post("/downloads/clear", s.handleClear)
		r.Post("/downloads/redownload", s.handleRedownload)
		r.Get("/files/{filename}", s.handleFile)
	})
	return r
}

// forcedRefreshLimit applies the stricter limiter only to ?force=true.
func forcedRefreshLimit(next http.Handler) http.Handler {
	limited := middleware.RefreshRateLimit()(next)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if forceParam(r) {
			limited.ServeHTTP(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	s.srv = &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("event", "api.listen").Str("addr", s.cfg.Listen).Msg("api listening")
		errCh <- s.srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.logger.Info().Str("event", "api.stopped").Msg("api stopped")
	return nil
}
