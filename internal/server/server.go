package server

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mihaisavezi/llm-bridge/internal/capabilities"
	"github.com/mihaisavezi/llm-bridge/internal/config"
	"github.com/mihaisavezi/llm-bridge/internal/handlers"
	"github.com/mihaisavezi/llm-bridge/internal/middleware"
	"github.com/mihaisavezi/llm-bridge/internal/providers"
	"github.com/mihaisavezi/llm-bridge/internal/query"
	"github.com/mihaisavezi/llm-bridge/internal/transport"
)

type Server struct {
	config  *config.Manager
	logger  *slog.Logger
	server  *http.Server
	handler *handlers.QueryHandler

	metricsRegistry *prometheus.Registry
	metrics         *query.Metrics
	cache           query.Cache
}

func New(configManager *config.Manager, logger *slog.Logger) (*Server, error) {
	cfg := configManager.Get()

	cache, err := query.OpenCache(cfg.Cache.Backend, cfg.Cache.TTL(), cfg.Cache.RedisURL, logger)
	if err != nil {
		return nil, fmt.Errorf("open cache: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	s := &Server{
		config:          configManager,
		logger:          logger,
		metricsRegistry: reg,
		metrics:         query.NewMetrics(reg),
		cache:           cache,
	}
	s.handler = handlers.NewQueryHandler(configManager, NewBackend(cfg, logger, s.metrics, cache), logger)

	return s, nil
}

// NewBackend wires the provider registry, transport and runner described
// by cfg. The CLI uses it directly when no sidecar is involved.
func NewBackend(cfg *config.Config, logger *slog.Logger, metrics *query.Metrics, cache query.Cache) *handlers.Backend {
	catalog := providers.DefaultCatalog().WithOverrides(cfg.CatalogOverrides())
	registry := providers.NewRegistry(catalog, capabilities.Builtin())
	registry.Initialize()

	client := transport.NewClient(logger, transport.WithTimeouts(
		cfg.Timeouts.RequestDuration(),
		cfg.Timeouts.StreamDuration(),
		cfg.Timeouts.WarmupDuration(),
	))

	runner := query.NewRunner(registry, client,
		query.WithLogger(logger),
		query.WithMetrics(metrics),
		query.WithCache(cache),
		query.WithRetry(query.RetryPolicy{
			MaxRetries:     cfg.Retry.MaxRetries,
			InitialBackoff: time.Duration(cfg.Retry.InitialBackoffMs) * time.Millisecond,
			MaxBackoff:     time.Duration(cfg.Retry.MaxBackoffMs) * time.Millisecond,
		}),
	)

	return &handlers.Backend{Runner: runner, Registry: registry}
}

func (s *Server) Start() error {
	cfg := s.config.Get()
	if cfg == nil {
		return fmt.Errorf("configuration not loaded")
	}

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	done := make(chan struct{})
	defer close(done)

	s.config.OnReload(s.reload)
	if err := s.config.Watch(done); err != nil {
		s.logger.Warn("Config hot reload disabled", "error", err)
	}

	s.logger.Info("Starting server", "address", addr)

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("Server error", "error", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	s.logger.Info("Server is shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	s.closeCache()

	s.logger.Info("Server exited")
	return nil
}

func (s *Server) Stop() error {
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	defer s.closeCache()
	return s.server.Shutdown(ctx)
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	ms := middleware.NewMiddlewareSet(s.config, s.logger)

	health := handlers.NewHealthHandler(s.logger)
	r.Method(http.MethodGet, "/health", ms.HealthChain().Handler(health))
	r.Method(http.MethodGet, "/metrics", ms.HealthChain().Handler(
		promhttp.HandlerFor(s.metricsRegistry, promhttp.HandlerOpts{}),
	))

	r.Group(func(r chi.Router) {
		r.Use(ms.DefaultChain().Slice()...)

		r.Get("/v1/providers", s.handler.Providers)
		r.Post("/v1/inspect", s.handler.Inspect)
		r.Post("/v1/ask", s.handler.Ask)
		r.Post("/v1/stream", s.handler.Stream)
	})

	return r
}

// reload rebuilds the backend after a config change. The cache backend is
// fixed for the lifetime of the process.
func (s *Server) reload(cfg *config.Config) {
	if err := cfg.Validate(); err != nil {
		s.logger.Error("Ignoring invalid configuration", "error", err)
		return
	}
	s.handler.SetBackend(NewBackend(cfg, s.logger, s.metrics, s.cache))
	s.logger.Info("Configuration reloaded", "providers", len(cfg.Providers))
}

func (s *Server) closeCache() {
	if c, ok := s.cache.(io.Closer); ok {
		if err := c.Close(); err != nil {
			s.logger.Warn("Failed to close cache", "error", err)
		}
	}
}
