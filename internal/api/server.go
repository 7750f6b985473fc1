package api

import (
	"context"
	"crypto/tls"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"

	"github.com/foxzi/rbacdash/internal/auth"
	"github.com/foxzi/rbacdash/internal/config"
	"github.com/foxzi/rbacdash/internal/directory"
	"github.com/foxzi/rbacdash/internal/ipfilter"
	"github.com/foxzi/rbacdash/internal/metrics"
	"github.com/foxzi/rbacdash/internal/rbac"
)

// Version is reported by the health endpoint
var Version = "dev"

// Options holds the collaborators of the API server
type Options struct {
	Service       *rbac.Service
	Bootstrapper  *directory.Bootstrapper // optional
	Authenticator auth.Authenticator
	Sessions      *auth.SessionStore
	Config        *config.APIConfig
	TLSConfig     *tls.Config // nil serves plain HTTP
	RecentLimit   int
	Logger        *slog.Logger
}

// Server is the HTTP API server
type Server struct {
	router      *chi.Mux
	httpServer  *http.Server
	svc         *rbac.Service
	boot        *directory.Bootstrapper
	auth        auth.Authenticator
	sessions    *auth.SessionStore
	config      *config.APIConfig
	tlsConfig   *tls.Config
	recentLimit int
	logger      *slog.Logger
	startTime   time.Time
}

// NewServer creates a new API server
func NewServer(opts Options) *Server {
	s := &Server{
		router:      chi.NewRouter(),
		svc:         opts.Service,
		boot:        opts.Bootstrapper,
		auth:        opts.Authenticator,
		sessions:    opts.Sessions,
		config:      opts.Config,
		tlsConfig:   opts.TLSConfig,
		recentLimit: opts.RecentLimit,
		logger:      opts.Logger.With("component", "api"),
		startTime:   time.Now(),
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures the HTTP routes
func (s *Server) setupRoutes() {
	// Middleware
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(middleware.Recoverer)
	s.router.Use(metrics.HTTPMiddleware)
	s.router.Use(ipfilter.New(s.config.AllowedIPs, s.logger).HTTPMiddleware)
	s.router.Use(securityHeaders(s.tlsConfig != nil).Handler)
	if s.config.RateLimitPerMinute > 0 {
		s.router.Use(httprate.Limit(s.config.RateLimitPerMinute, time.Minute, httprate.WithKeyFuncs(httprate.KeyByIP)))
	}

	// Health check (no auth required)
	s.router.Get("/health", s.handleHealth)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Post("/login", s.handleLogin)

		// Authenticated routes
		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Post("/logout", s.handleLogout)
			r.Get("/dashboard", s.handleDashboard)
			r.Get("/catalogue", s.handleCatalogue)
			r.Get("/bootstrap", s.handleBootstrapStatus)

			mountResource(r, s, rbac.Users, s.svc.Users, s.ensureUsers)
			mountResource(r, s, rbac.Roles, s.svc.Roles, nil)
			mountResource(r, s, rbac.Permissions, s.svc.Permissions, nil)
		})
	})
}

// Handler returns the root HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe starts the HTTP server
func (s *Server) ListenAndServe() error {
	s.httpServer = &http.Server{
		Addr:           s.config.ListenAddr,
		Handler:        s.router,
		ReadTimeout:    s.config.ReadTimeout,
		WriteTimeout:   s.config.WriteTimeout,
		IdleTimeout:    s.config.IdleTimeout,
		MaxHeaderBytes: s.config.MaxHeaderBytes,
		TLSConfig:      s.tlsConfig,
	}

	if s.tlsConfig != nil {
		s.logger.Info("starting HTTPS API server", "addr", s.config.ListenAddr)
		// Certificates come from TLSConfig
		return s.httpServer.ListenAndServeTLS("", "")
	}

	s.logger.Info("starting HTTP API server", "addr", s.config.ListenAddr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP API server")
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}
