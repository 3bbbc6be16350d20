// Package server wires the turn pipeline, the store API, and observability
// endpoints into one HTTP server.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/haasonsaas/dragonchat/internal/agent"
	"github.com/haasonsaas/dragonchat/internal/config"
	"github.com/haasonsaas/dragonchat/internal/knowledge"
	"github.com/haasonsaas/dragonchat/internal/observability"
	"github.com/haasonsaas/dragonchat/internal/providers"
	"github.com/haasonsaas/dragonchat/internal/store"
)

// Server hosts the turn endpoint, the store API, /healthz, and /metrics.
type Server struct {
	cfg      *config.Config
	logger   *slog.Logger
	metrics  *observability.Metrics
	registry *prometheus.Registry

	store      *store.SQLiteStore
	middleware *agent.Middleware
	executor   *agent.Executor
	providers  *providers.Registry

	httpServer *http.Server
	listener   net.Listener
}

// New builds a fully wired server from cfg.
func New(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}

	promRegistry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(promRegistry)

	db, err := store.OpenSQLite(cfg.Store.Path)
	if err != nil {
		return nil, err
	}

	toolRegistry := agent.NewRegistry()
	if cfg.Agent.KnowledgeBase {
		toolRegistry.Register(knowledge.NewSearchTool(db))
		toolRegistry.Register(knowledge.NewStoreTool(db))
	}

	middleware := agent.NewMiddleware(agent.MiddlewareConfig{
		MaxMessages: cfg.Agent.MaxMessages,
		AssistantID: cfg.Agent.AssistantID,
	}, toolRegistry, logger, metrics)

	providerRegistry := providers.NewRegistry()
	providerRegistry.Register(providers.NewOpenAIProvider(
		cfg.Provider.APIKey,
		openAIOptions(cfg)...,
	))

	return &Server{
		cfg:        cfg,
		logger:     logger,
		metrics:    metrics,
		registry:   promRegistry,
		store:      db,
		middleware: middleware,
		executor:   &agent.Executor{},
		providers:  providerRegistry,
	}, nil
}

func openAIOptions(cfg *config.Config) []providers.OpenAIOption {
	var opts []providers.OpenAIOption
	if cfg.Provider.Model != "" {
		opts = append(opts, providers.WithDefaultModel(cfg.Provider.Model))
	}
	if cfg.Provider.BaseURL != "" {
		opts = append(opts, providers.WithBaseURL(cfg.Provider.APIKey, cfg.Provider.BaseURL))
	}
	return opts
}

// Handler returns the server's HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("POST /v1/turns", s.handleTurn)

	store.NewAPI(s.store, nil, s.logger).Register(mux)
	return mux
}

// Start listens and serves until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("http listen: %w", err)
	}
	s.listener = listener
	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	s.logger.Info("server started", "addr", listener.Addr().String())

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return s.Shutdown(context.Background())
	}
}

// Shutdown stops the HTTP server and closes the store.
func (s *Server) Shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var err error
	if s.httpServer != nil {
		err = s.httpServer.Shutdown(shutdownCtx)
	}
	if closeErr := s.store.Close(); err == nil {
		err = closeErr
	}
	s.logger.Info("server stopped")
	return err
}
