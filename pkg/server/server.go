package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"mercator-hq/admission/pkg/config"
	"mercator-hq/admission/pkg/limits"
	"mercator-hq/admission/pkg/limits/journal"
	"mercator-hq/admission/pkg/server/middleware"
	"mercator-hq/admission/pkg/telemetry/health"
	"mercator-hq/admission/pkg/telemetry/metrics"
	"mercator-hq/admission/pkg/telemetry/tracing"
)

// Server is the HTTP front end of the admission service.
type Server struct {
	config  *config.ServerConfig
	manager *limits.Manager
	journal journal.Store
	health  *health.Checker
	metrics *metrics.Collector
	tracer  trace.Tracer
	logger  *slog.Logger

	// keyFuncs maps policy names to the identity extractor of the
	// protected endpoint. Replaced on reload.
	keyFuncs   map[string]middleware.KeyFunc
	keyFuncsMu sync.RWMutex

	adminKeys *middleware.AdminKeys

	httpServer   *http.Server
	listener     net.Listener
	shutdownOnce sync.Once
	mu           sync.RWMutex
	isRunning    bool
}

// Options contains the collaborators of a Server.
type Options struct {
	// Manager answers admission checks. Required.
	Manager *limits.Manager

	// Policies configures how the protected endpoint extracts identities.
	Policies map[string]config.PolicyConfig

	// Journal serves GET /v1/decisions. Optional; the endpoint returns 404
	// when nil.
	Journal journal.Store

	// Health serves /health and /ready.
	// Default: a checker with the default timeout
	Health *health.Checker

	// Metrics serves /metrics and instruments requests. Optional.
	Metrics *metrics.Collector

	// MetricsPath is where the metrics handler is mounted.
	// Default: "/metrics"
	MetricsPath string

	// Tracer creates server spans.
	// Default: the global OpenTelemetry tracer provider
	Tracer trace.Tracer

	// Logger is the structured logger.
	// Default: slog.Default()
	Logger *slog.Logger
}

// New creates a server. It does not start listening.
func New(cfg *config.ServerConfig, opts Options) (*Server, error) {
	if opts.Manager == nil {
		return nil, errors.New("server requires a limits manager")
	}
	if opts.Health == nil {
		opts.Health = health.New(0)
	}
	if opts.Tracer == nil {
		opts.Tracer = otel.Tracer(tracing.InstrumentationName)
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.MetricsPath == "" {
		opts.MetricsPath = config.DefaultPrometheusPath
	}

	s := &Server{
		config:  cfg,
		manager: opts.Manager,
		journal: opts.Journal,
		health:  opts.Health,
		metrics: opts.Metrics,
		tracer:  opts.Tracer,
		logger:  opts.Logger.With("component", "server"),

		adminKeys: middleware.NewAdminKeys(cfg.AdminKeys),
	}
	if err := s.SetPolicies(opts.Policies); err != nil {
		return nil, err
	}

	s.health.RegisterCheck("limits", s.manager.Healthy)
	s.httpServer = &http.Server{
		Addr:           cfg.ListenAddress,
		Handler:        s.routes(opts.MetricsPath),
		ReadTimeout:    cfg.ReadTimeout,
		WriteTimeout:   cfg.WriteTimeout,
		IdleTimeout:    cfg.IdleTimeout,
		MaxHeaderBytes: cfg.MaxHeaderBytes,
	}

	return s, nil
}

// SetPolicies replaces the identity extractors of the protected endpoint.
// It is called with the new policy set after a configuration reload.
func (s *Server) SetPolicies(policies map[string]config.PolicyConfig) error {
	keyFuncs := make(map[string]middleware.KeyFunc, len(policies))
	for name, p := range policies {
		keyFunc, err := middleware.KeyFuncFor(p)
		if err != nil {
			return fmt.Errorf("policy %q: %w", name, err)
		}
		keyFuncs[name] = keyFunc
	}

	s.keyFuncsMu.Lock()
	s.keyFuncs = keyFuncs
	s.keyFuncsMu.Unlock()
	return nil
}

// SetAdminKeys replaces the keys accepted on administrative endpoints.
func (s *Server) SetAdminKeys(keys []config.AdminKeyConfig) {
	s.adminKeys.Set(keys)
}

// Start listens on the configured address and serves until ctx is
// cancelled or the server fails. A cancelled ctx triggers a graceful
// shutdown.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return fmt.Errorf("server is already running")
	}

	listener, err := net.Listen("tcp", s.config.ListenAddress)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("failed to listen on %s: %w", s.config.ListenAddress, err)
	}
	s.listener = listener
	s.isRunning = true
	s.mu.Unlock()

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("starting admission server", "address", listener.Addr().String())

		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("server error: %w", err)
		}
		close(errChan)
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("context cancelled, initiating shutdown")
		return s.Shutdown(context.Background())
	case err := <-errChan:
		return err
	}
}

// Shutdown gracefully shuts down the server. Readiness starts failing
// immediately; in-flight requests get up to ShutdownTimeout to finish.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		s.mu.RLock()
		running := s.isRunning
		s.mu.RUnlock()
		if !running {
			return
		}

		s.health.SetDraining(true)
		s.logger.Info("initiating graceful shutdown", "timeout", s.config.ShutdownTimeout.String())

		shutdownCtx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
		defer cancel()

		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("error during server shutdown", "error", err)
			shutdownErr = fmt.Errorf("server shutdown error: %w", err)
		}

		s.mu.Lock()
		s.isRunning = false
		s.mu.Unlock()

		s.logger.Info("admission server stopped")
	})

	return shutdownErr
}

// IsRunning returns true if the server is running.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// Addr returns the address the server listens on, or nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Handler returns the configured HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// routes configures HTTP routes and the middleware chain.
func (s *Server) routes(metricsPath string) http.Handler {
	router := mux.NewRouter()
	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteError(w, http.StatusNotFound, middleware.ErrorTypeNotFound, "route not found")
	})
	router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteError(w, http.StatusMethodNotAllowed, middleware.ErrorTypeMethodBlocked, "method not allowed")
	})

	api := router.PathPrefix("/v1").Subrouter()
	api.HandleFunc("/policies", s.handleListPolicies).Methods(http.MethodGet)
	api.HandleFunc("/policies/{policy}/keys/{key}/record", s.handleRecord).Methods(http.MethodPost)
	api.HandleFunc("/policies/{policy}/keys/{key}", s.handlePeek).Methods(http.MethodGet)
	admin := middleware.AdminAuthMiddleware(s.adminKeys)
	api.Handle("/policies/{policy}/keys/{key}", admin(http.HandlerFunc(s.handleForget))).Methods(http.MethodDelete)
	api.Handle("/decisions", admin(http.HandlerFunc(s.handleDecisions))).Methods(http.MethodGet)
	api.HandleFunc("/protected/{policy}", s.handleProtected)

	router.Handle("/health", s.health.LivenessHandler()).Methods(http.MethodGet, http.MethodHead)
	router.Handle("/ready", s.health.ReadinessHandler()).Methods(http.MethodGet, http.MethodHead)
	if s.metrics != nil && s.metrics.Enabled() {
		router.Handle(metricsPath, s.metrics.Handler()).Methods(http.MethodGet)
		router.Use(s.metrics.Middleware(routeTemplate))
	}

	var handler http.Handler = router
	handler = tracing.HTTPMiddleware(s.tracer)(handler)
	handler = middleware.LoggingMiddleware(s.logger)(handler)
	handler = middleware.RequestIDMiddleware(handler)

	// Recovery middleware (outermost)
	handler = middleware.RecoveryMiddleware(handler)

	return handler
}

// routeTemplate labels requests by the mux route they matched.
func routeTemplate(r *http.Request) string {
	route := mux.CurrentRoute(r)
	if route == nil {
		return "unmatched"
	}
	tmpl, err := route.GetPathTemplate()
	if err != nil {
		return "unmatched"
	}
	return tmpl
}
