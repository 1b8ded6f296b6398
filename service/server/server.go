package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/brojonat/aascan/service/metrics"
	natspkg "github.com/brojonat/aascan/service/nats"
	"github.com/brojonat/aascan/service/networks"
	"github.com/brojonat/aascan/service/session"
	"github.com/brojonat/aascan/service/telemetry"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NotificationSubscriber relays a session's notifications until ctx ends.
type NotificationSubscriber interface {
	Subscribe(ctx context.Context, sessionID string, handle func(*natspkg.NotificationEvent)) error
}

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) error

// Server is the explorer's HTTP surface.
type Server struct {
	addr       string
	registry   *networks.Registry
	sessions   *session.Store
	subscriber NotificationSubscriber
	renderer   *TemplateRenderer
	metrics    *metrics.Metrics
	checks     map[string]HealthCheck
	logger     *slog.Logger
	server     *http.Server
}

// New creates the HTTP server. The subscriber and metrics are optional: a
// nil subscriber disables the notification stream and nil metrics disables
// /metrics.
func New(addr string, reg *networks.Registry, sessions *session.Store, subscriber NotificationSubscriber, m *metrics.Metrics, logger *slog.Logger) *Server {
	return &Server{
		addr:       addr,
		registry:   reg,
		sessions:   sessions,
		subscriber: subscriber,
		metrics:    m,
		checks:     make(map[string]HealthCheck),
		logger:     logger,
	}
}

// WithTemplates enables the HTML pages using the embedded templates.
func (s *Server) WithTemplates() error {
	renderer, err := NewTemplateRenderer(s.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize templates: %w", err)
	}
	s.renderer = renderer
	s.logger.Info("HTML templates loaded from embedded files")
	return nil
}

// WithHealthCheck adds a dependency check to /health.
func (s *Server) WithHealthCheck(name string, check HealthCheck) {
	s.checks[name] = check
}

// Handler returns the routed handler with CORS applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	route := func(pattern, name string, h http.Handler) {
		h = metrics.Instrument(s.metrics, name)(h)
		h = telemetry.Middleware(name)(h)
		mux.Handle(pattern, h)
	}

	route("GET /api/v1/home", "home", handleHome(s.sessions, s.logger))
	route("GET /api/v1/lists/{kind}", "list", handleList(s.sessions, s.logger))
	route("GET /api/v1/details/{kind}/{address}", "detail", handleDetail(s.sessions, s.logger))
	route("GET /api/v1/resolve/{hash}", "resolve", handleResolve(s.sessions, s.logger))
	route("GET /api/v1/networks", "networks", handleNetworks(s.registry))
	route("GET /api/v1/notifications", "notifications", handlePendingNotifications(s.sessions))

	if s.subscriber != nil {
		route("GET /api/v1/stream/notifications", "stream_notifications", handleStreamNotifications(s.sessions, s.subscriber, s.metrics, s.logger))
		s.logger.Info("notification streaming enabled")
	} else {
		s.logger.Warn("NATS subscriber not configured, notification streaming disabled")
	}

	if s.renderer != nil {
		route("GET /{$}", "home_page", handleHomePage(s.renderer, s.sessions))
		route("GET /{kind}", "list_page", handleListPage(s.renderer, s.sessions))
		route("GET /{kind}/{address}", "detail_page", handleDetailPage(s.renderer, s.sessions))
		s.logger.Info("HTML page endpoints enabled")
	}

	mux.HandleFunc("GET /health", handleHealth(s.checks, s.logger))

	if s.metrics != nil {
		mux.Handle("GET /metrics", promhttp.Handler())
		s.logger.Info("Prometheus metrics endpoint enabled")
	}

	return corsMiddleware(mux)
}

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:        s.addr,
		Handler:     s.Handler(),
		ReadTimeout: 15 * time.Second,
		// No write timeout: the notification stream is long-lived.
		IdleTimeout: 60 * time.Second,
	}

	s.logger.Info("starting HTTP server", "addr", s.addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// corsMiddleware adds CORS headers to all responses and answers preflight
// requests.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.Header().Set("Access-Control-Max-Age", "3600")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
