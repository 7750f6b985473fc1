package config

import (
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/foxzi/rbacdash/internal/ipfilter"
)

// EnvPrefix prefixes every environment override, e.g. RBACDASH_API_KEY
const EnvPrefix = "RBACDASH"

// Config is the main configuration structure
type Config struct {
	API       APIConfig       `yaml:"api"`
	Storage   StorageConfig   `yaml:"storage"`
	Directory DirectoryConfig `yaml:"directory"`
	Auth      AuthConfig      `yaml:"auth"`
	Audit     AuditConfig     `yaml:"audit"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// APIConfig contains HTTP API settings
type APIConfig struct {
	ListenAddr     string        `yaml:"listen_addr"`
	APIKey         string        `yaml:"api_key"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	IdleTimeout    time.Duration `yaml:"idle_timeout"`
	MaxHeaderBytes int           `yaml:"max_header_bytes"`
	AllowedIPs     []string      `yaml:"allowed_ips"` // IP addresses/CIDRs allowed to reach the API, empty = all

	// RateLimitPerMinute caps requests per client IP, 0 disables the limit
	RateLimitPerMinute int `yaml:"rate_limit_per_minute"`

	TLS TLSConfig `yaml:"tls"`
}

// TLSConfig enables HTTPS on the API. Either cert_file/key_file or acme.
type TLSConfig struct {
	CertFile string     `yaml:"cert_file"`
	KeyFile  string     `yaml:"key_file"`
	ACME     ACMEConfig `yaml:"acme"`
}

// ACMEConfig contains Let's Encrypt settings
type ACMEConfig struct {
	Enabled  bool     `yaml:"enabled"`
	Email    string   `yaml:"email"`
	Domains  []string `yaml:"domains"`
	CacheDir string   `yaml:"cache_dir"`
	// ChallengeAddr serves HTTP-01 challenges, default ":80"
	ChallengeAddr string `yaml:"challenge_addr"`
}

// Enabled reports whether the API serves HTTPS
func (t TLSConfig) Enabled() bool {
	return t.ACME.Enabled || t.CertFile != ""
}

// Storage backends
const (
	BackendBolt  = "bolt"
	BackendRedis = "redis"
)

// StorageConfig selects where collections are persisted
type StorageConfig struct {
	Backend     string `yaml:"backend"` // bolt, redis
	Path        string `yaml:"path"`    // bolt database file
	RedisAddr   string `yaml:"redis_addr"`
	RedisPrefix string `yaml:"redis_prefix"`
}

// DirectoryConfig contains the upstream user directory settings
type DirectoryConfig struct {
	Enabled *bool         `yaml:"enabled"` // Default: true
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

// IsEnabled reports whether the users collection is bootstrapped
func (d DirectoryConfig) IsEnabled() bool {
	return d.Enabled == nil || *d.Enabled
}

// AuthConfig contains login settings
type AuthConfig struct {
	Users      []UserCredential `yaml:"users"` // empty = demo credential
	SessionTTL time.Duration    `yaml:"session_ttl"`
}

// UserCredential is a dashboard login
type UserCredential struct {
	Email        string `yaml:"email"`
	PasswordHash string `yaml:"password_hash"` // bcrypt, see `rbacdash hash-password`
}

// AuditConfig contains activity log settings
type AuditConfig struct {
	RecentLimit int `yaml:"recent_limit"` // Default: 5
}

// MetricsConfig contains Prometheus metrics settings
type MetricsConfig struct {
	Enabled         bool          `yaml:"enabled"`
	ListenAddr      string        `yaml:"listen_addr"`      // Default: :9090
	Path            string        `yaml:"path"`             // Default: /metrics
	RefreshInterval time.Duration `yaml:"refresh_interval"` // Default: 10s
	AllowedIPs      []string      `yaml:"allowed_ips"`      // IP addresses/CIDRs allowed to access metrics
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// envOverrides are read from RBACDASH_* variables. Unset variables leave
// the file value alone.
type envOverrides struct {
	ListenAddr       string   `envconfig:"API_LISTEN_ADDR"`
	APIKey           string   `envconfig:"API_KEY"`
	StorageBackend   string   `envconfig:"STORAGE_BACKEND"`
	StoragePath      string   `envconfig:"STORAGE_PATH"`
	RedisAddr        string   `envconfig:"REDIS_ADDR"`
	DirectoryURL     string   `envconfig:"DIRECTORY_URL"`
	DirectoryEnabled *bool    `envconfig:"DIRECTORY_ENABLED"`
	MetricsEnabled   *bool    `envconfig:"METRICS_ENABLED"`
	LogLevel         string   `envconfig:"LOG_LEVEL"`
	LogFormat        string   `envconfig:"LOG_FORMAT"`
	AllowedIPs       []string `envconfig:"API_ALLOWED_IPS"`
}

// Load loads configuration from a YAML file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return cfg.finish()
}

// Default returns the configuration used when no file is given
func Default() (*Config, error) {
	return (&Config{}).finish()
}

func (c *Config) finish() (*Config, error) {
	c.setDefaults()

	if err := c.applyEnv(); err != nil {
		return nil, err
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return c, nil
}

// setDefaults sets default values for configuration
func (c *Config) setDefaults() {
	if c.API.ListenAddr == "" {
		c.API.ListenAddr = ":8080"
	}
	if c.API.MaxHeaderBytes == 0 {
		c.API.MaxHeaderBytes = 1 << 20 // 1 MB
	}
	if c.API.ReadTimeout == 0 {
		c.API.ReadTimeout = 30 * time.Second
	}
	if c.API.WriteTimeout == 0 {
		c.API.WriteTimeout = 30 * time.Second
	}
	if c.API.IdleTimeout == 0 {
		c.API.IdleTimeout = 60 * time.Second
	}

	if c.API.TLS.ACME.Enabled {
		if c.API.TLS.ACME.CacheDir == "" {
			c.API.TLS.ACME.CacheDir = "/var/lib/rbacdash/certs"
		}
		if c.API.TLS.ACME.ChallengeAddr == "" {
			c.API.TLS.ACME.ChallengeAddr = ":80"
		}
	}

	if c.Storage.Backend == "" {
		c.Storage.Backend = BackendBolt
	}
	if c.Storage.Path == "" {
		c.Storage.Path = "/var/lib/rbacdash/rbacdash.db"
	}
	if c.Storage.RedisPrefix == "" {
		c.Storage.RedisPrefix = "rbacdash:"
	}

	if c.Directory.BaseURL == "" {
		c.Directory.BaseURL = "https://jsonplaceholder.typicode.com/users"
	}
	if c.Directory.Timeout == 0 {
		c.Directory.Timeout = 10 * time.Second
	}

	if c.Auth.SessionTTL == 0 {
		c.Auth.SessionTTL = 24 * time.Hour
	}

	if c.Audit.RecentLimit == 0 {
		c.Audit.RecentLimit = 5
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}

	// Metrics defaults
	if c.Metrics.ListenAddr == "" {
		c.Metrics.ListenAddr = ":9090"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
	if c.Metrics.RefreshInterval == 0 {
		c.Metrics.RefreshInterval = 10 * time.Second
	}
}

// applyEnv overlays RBACDASH_* environment variables
func (c *Config) applyEnv() error {
	var env envOverrides
	if err := envconfig.Process(EnvPrefix, &env); err != nil {
		return fmt.Errorf("failed to read environment: %w", err)
	}

	setString(&c.API.ListenAddr, env.ListenAddr)
	setString(&c.API.APIKey, env.APIKey)
	setString(&c.Storage.Backend, env.StorageBackend)
	setString(&c.Storage.Path, env.StoragePath)
	setString(&c.Storage.RedisAddr, env.RedisAddr)
	setString(&c.Directory.BaseURL, env.DirectoryURL)
	setString(&c.Logging.Level, env.LogLevel)
	setString(&c.Logging.Format, env.LogFormat)

	if env.DirectoryEnabled != nil {
		c.Directory.Enabled = env.DirectoryEnabled
	}
	if env.MetricsEnabled != nil {
		c.Metrics.Enabled = *env.MetricsEnabled
	}
	if len(env.AllowedIPs) > 0 {
		c.API.AllowedIPs = env.AllowedIPs
	}

	return nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case BackendBolt:
		if c.Storage.Path == "" {
			return fmt.Errorf("storage.path is required for the bolt backend")
		}
	case BackendRedis:
		if c.Storage.RedisAddr == "" {
			return fmt.Errorf("storage.redis_addr is required for the redis backend")
		}
	default:
		return fmt.Errorf("invalid storage.backend: %s (must be bolt or redis)", c.Storage.Backend)
	}

	if c.API.RateLimitPerMinute < 0 {
		return fmt.Errorf("api.rate_limit_per_minute must not be negative")
	}

	if err := c.API.TLS.validate(); err != nil {
		return err
	}

	if err := validateAllowedIPs("api.allowed_ips", c.API.AllowedIPs); err != nil {
		return err
	}
	if err := validateAllowedIPs("metrics.allowed_ips", c.Metrics.AllowedIPs); err != nil {
		return err
	}

	if c.Audit.RecentLimit < 1 || c.Audit.RecentLimit > 50 {
		return fmt.Errorf("audit.recent_limit must be between 1 and 50, got %d", c.Audit.RecentLimit)
	}

	if c.Directory.IsEnabled() {
		u, err := url.Parse(c.Directory.BaseURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("invalid directory.base_url: %q", c.Directory.BaseURL)
		}
	}

	for i, u := range c.Auth.Users {
		if u.Email == "" || u.PasswordHash == "" {
			return fmt.Errorf("auth.users[%d]: email and password_hash are required", i)
		}
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("invalid logging.level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}

	validLogFormats := map[string]bool{"json": true, "text": true}
	if !validLogFormats[c.Logging.Format] {
		return fmt.Errorf("invalid logging.format: %s (must be json or text)", c.Logging.Format)
	}

	return nil
}

func validateAllowedIPs(field string, entries []string) error {
	for i, e := range entries {
		if _, err := ipfilter.ParsePrefix(e); err != nil {
			return fmt.Errorf("%s[%d]: %w", field, i, err)
		}
	}
	return nil
}

func (t TLSConfig) validate() error {
	if t.ACME.Enabled {
		if t.CertFile != "" || t.KeyFile != "" {
			return fmt.Errorf("api.tls: acme and cert_file/key_file are mutually exclusive")
		}
		if len(t.ACME.Domains) == 0 {
			return fmt.Errorf("api.tls.acme.domains is required when acme is enabled")
		}
		return nil
	}
	if (t.CertFile == "") != (t.KeyFile == "") {
		return fmt.Errorf("api.tls: cert_file and key_file must be set together")
	}
	return nil
}
