package app

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/foxzi/rbacdash/internal/api"
	"github.com/foxzi/rbacdash/internal/auth"
	"github.com/foxzi/rbacdash/internal/config"
	"github.com/foxzi/rbacdash/internal/directory"
	"github.com/foxzi/rbacdash/internal/metrics"
	"github.com/foxzi/rbacdash/internal/rbac"
	"github.com/foxzi/rbacdash/internal/store"
	rbacTLS "github.com/foxzi/rbacdash/internal/tls"
)

// sessionSweepInterval is how often expired sessions are dropped
const sessionSweepInterval = 5 * time.Minute

// App is the main application
type App struct {
	config        *config.Config
	store         store.Store
	service       *rbac.Service
	bootstrapper  *directory.Bootstrapper
	sessions      *auth.SessionStore
	apiServer     *api.Server
	metricsServer *metrics.Server
	acmeServer    *http.Server
	collector     *metrics.Collector
	logger        *slog.Logger
}

// New creates a new application
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	logger := setupLogger(cfg.Logging)

	st, err := OpenStore(ctx, cfg.Storage)
	if err != nil {
		return nil, err
	}

	a := &App{
		config: cfg,
		store:  st,
		logger: logger,
	}

	// Metrics go global before the collections open so their gauges are set
	if cfg.Metrics.Enabled {
		m := metrics.New()
		metrics.SetGlobal(m)

		collectorCfg := metrics.CollectorConfig{
			Metrics:  m,
			Store:    st,
			Interval: cfg.Metrics.RefreshInterval,
			Logger:   logger,
		}
		if sized, ok := st.(interface{ Size() int64 }); ok {
			collectorCfg.StorageSize = sized.Size
		}
		a.collector, err = metrics.NewCollector(ctx, collectorCfg)
		if err != nil {
			st.Close()
			return nil, fmt.Errorf("failed to create metrics collector: %w", err)
		}

		a.metricsServer = metrics.NewServer(m, cfg.Metrics.ListenAddr, cfg.Metrics.Path,
			cfg.Metrics.AllowedIPs, logger.With("component", "metrics_server"))
	}

	a.service, err = rbac.Open(ctx, rbac.Options{
		Store:  st,
		Logger: logger.With("component", "rbac"),
	})
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("failed to open collections: %w", err)
	}

	authn, err := auth.NewStaticAuthenticator(credentials(cfg.Auth), logger.With("component", "auth"))
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("failed to create authenticator: %w", err)
	}
	a.sessions = auth.NewSessionStore(cfg.Auth.SessionTTL, nil)

	a.bootstrapper = NewBootstrapper(cfg.Directory, a.service, logger)

	tlsConfig, err := a.setupTLS(cfg.API.TLS)
	if err != nil {
		st.Close()
		return nil, err
	}

	a.apiServer = api.NewServer(api.Options{
		Service:       a.service,
		Bootstrapper:  a.bootstrapper,
		Authenticator: authn,
		Sessions:      a.sessions,
		Config:        &cfg.API,
		TLSConfig:     tlsConfig,
		RecentLimit:   cfg.Audit.RecentLimit,
		Logger:        logger.With("component", "api"),
	})

	return a, nil
}

// setupTLS returns the API TLS config, nil for plain HTTP. With ACME it
// also prepares the HTTP-01 challenge server.
func (a *App) setupTLS(cfg config.TLSConfig) (*tls.Config, error) {
	switch {
	case cfg.ACME.Enabled:
		acme := rbacTLS.NewACME(cfg.ACME.Email, cfg.ACME.Domains, cfg.ACME.CacheDir)
		a.acmeServer = &http.Server{
			Addr:              cfg.ACME.ChallengeAddr,
			Handler:           acme.HTTPHandler(nil),
			ReadHeaderTimeout: 10 * time.Second,
		}
		a.logger.Info("ACME (Let's Encrypt) enabled", "domains", acme.Domains())
		return acme.TLSConfig(), nil
	case cfg.CertFile != "":
		tlsConfig, err := rbacTLS.LoadCertificate(cfg.CertFile, cfg.KeyFile)
		if err != nil {
			return nil, err
		}
		a.logger.Info("TLS enabled with manual certificates")
		return tlsConfig, nil
	}
	return nil, nil
}

// OpenStore opens the configured storage backend
func OpenStore(ctx context.Context, cfg config.StorageConfig) (store.Store, error) {
	switch cfg.Backend {
	case config.BackendRedis:
		st, err := store.NewRedisStore(ctx, cfg.RedisAddr, cfg.RedisPrefix)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		return st, nil
	default:
		st, err := store.NewBoltStore(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to create storage: %w", err)
		}
		return st, nil
	}
}

// NewBootstrapper returns the user directory bootstrapper, or nil when the
// directory is disabled
func NewBootstrapper(cfg config.DirectoryConfig, svc *rbac.Service, logger *slog.Logger) *directory.Bootstrapper {
	if !cfg.IsEnabled() {
		return nil
	}
	client := directory.NewClient(cfg.BaseURL, cfg.Timeout)
	return directory.NewBootstrapper(svc.Users, client, nil, nil, logger)
}

func credentials(cfg config.AuthConfig) []auth.Credential {
	creds := make([]auth.Credential, 0, len(cfg.Users))
	for _, u := range cfg.Users {
		creds = append(creds, auth.Credential{Email: u.Email, PasswordHash: u.PasswordHash})
	}
	return creds
}

// Service returns the collections service
func (a *App) Service() *rbac.Service {
	return a.service
}

// Handler returns the API handler
func (a *App) Handler() http.Handler {
	return a.apiServer.Handler()
}

// Run starts all components and waits for shutdown
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("starting rbacdash",
		"version", api.Version,
		"api_addr", a.config.API.ListenAddr,
		"storage", a.config.Storage.Backend,
		"directory", a.bootstrapper != nil,
	)

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	errCh := make(chan error, 3)

	if a.collector != nil {
		a.collector.Start()
	}

	go func() {
		if err := a.apiServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("api server: %w", err)
		}
	}()

	if a.metricsServer != nil {
		go func() {
			if err := a.metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("metrics server: %w", err)
			}
		}()
	}

	if a.acmeServer != nil {
		go func() {
			a.logger.Info("starting ACME HTTP challenge server", "addr", a.acmeServer.Addr)
			if err := a.acmeServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.logger.Warn("ACME HTTP server error", "error", err)
			}
		}()
	}

	go a.sweepSessions(ctx)

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		a.logger.Error("server error", "error", err)
		cancel()
	}

	return a.Shutdown(context.Background())
}

func (a *App) sweepSessions(ctx context.Context) {
	ticker := time.NewTicker(sessionSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := a.sessions.Sweep(); n > 0 {
				a.logger.Debug("expired sessions removed", "count", n)
			}
		}
	}
}

// Shutdown gracefully shuts down all components
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := a.apiServer.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("api server shutdown error", "error", err)
	}

	if a.metricsServer != nil {
		if err := a.metricsServer.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("metrics server shutdown error", "error", err)
		}
	}

	if a.acmeServer != nil {
		if err := a.acmeServer.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("acme server shutdown error", "error", err)
		}
	}

	// Persists counters, so it runs before the store closes
	if a.collector != nil {
		a.collector.Stop()
	}

	if err := a.store.Close(); err != nil {
		a.logger.Error("storage close error", "error", err)
	}

	a.logger.Info("shutdown complete")
	return nil
}

// Close releases the store without serving. Used by one-shot CLI commands.
func (a *App) Close() error {
	if a.collector != nil {
		a.collector.Stop()
	}
	return a.store.Close()
}

// Bootstrapper returns the directory bootstrapper, nil when disabled
func (a *App) Bootstrapper() *directory.Bootstrapper {
	return a.bootstrapper
}

// Logger returns the application logger
func (a *App) Logger() *slog.Logger {
	return a.logger
}

// setupLogger creates a logger based on configuration
func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	return NewLogger(cfg, os.Stdout)
}
