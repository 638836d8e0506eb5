// Package server wires the configuration, storage facade, sandbox registry,
// middleware chain, and S3 protocol adapter into a runnable HTTP server.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/maxiofs/ps3/internal/config"
	"github.com/maxiofs/ps3/internal/metrics"
	"github.com/maxiofs/ps3/internal/middleware"
	"github.com/maxiofs/ps3/internal/sandbox"
	"github.com/maxiofs/ps3/internal/storage"
	"github.com/maxiofs/ps3/pkg/s3compat"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// Server is the ps3 process: an HTTP server in front of the storage facade.
type Server struct {
	config     *config.Config
	httpServer *http.Server

	Storage  *storage.Facade
	Sandbox  *sandbox.Registry
	Metrics  *metrics.Registry
	logger   *logrus.Logger
}

// New constructs a Server from cfg: the sandbox registry, the storage
// facade, the metrics registry, and the router/middleware chain.
func New(cfg *config.Config) (*Server, error) {
	logger := logrus.StandardLogger()

	registry, err := sandbox.NewRegistry()
	if err != nil {
		return nil, fmt.Errorf("failed to create sandbox registry: %w", err)
	}
	if err := registry.SetMode(sandbox.Mode(cfg.Sandbox.Mode)); err != nil {
		return nil, fmt.Errorf("failed to set sandbox mode: %w", err)
	}

	facade, err := storage.NewFacade(&cfg.Storage, registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage facade: %w", err)
	}
	if err := facade.Init(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	metricsReg := metrics.NewRegistry(registry.OwnerCount)

	router := mux.NewRouter()
	router.HandleFunc("/health", healthHandler).Methods(http.MethodGet)
	router.HandleFunc("/ready", healthHandler).Methods(http.MethodGet)
	if cfg.Metrics.Enable {
		router.Handle(cfg.Metrics.Path, promhttp.HandlerFor(metricsReg.Gatherer(), promhttp.HandlerOpts{}))
	}

	s3Router := router.PathPrefix("/").Subrouter()
	s3Router.Use(middleware.CORS())
	s3Router.Use(middleware.SandboxAllowance(registry))
	s3Router.Use(middleware.Metrics(metricsReg))
	s3Router.Use(middleware.Logging(logger))
	handler := s3compat.NewHandler(facade)
	handler.RegisterRoutes(s3Router)

	srv := &Server{
		config:  cfg,
		Storage: facade,
		Sandbox: registry,
		Metrics: metricsReg,
		logger:  logger,
		httpServer: &http.Server{
			Addr:         cfg.Listen,
			Handler:      handlers.CompressHandler(router),
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
	}
	return srv, nil
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

// Start runs the HTTP server until ctx is canceled, then shuts it down
// gracefully.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.WithField("addr", s.httpServer.Addr).Info("ps3 listening")
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return s.shutdown()
	}
}

func (s *Server) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.logger.Info("ps3 shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return err
	}
	return s.Sandbox.Close()
}
