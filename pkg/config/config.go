// Package config loads and validates the platform configuration.
//
// Configuration is a single YAML document. Every section has a working
// default so an empty file yields a usable development setup: memory cache,
// file-spool dispatch under the data directory, SQLite storage. Application
// configuration payloads are NOT handled here; those stay opaque blobs the
// runner interprets.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/IntrovertedFL/runtipi/pkg/cache"
	"github.com/IntrovertedFL/runtipi/pkg/dispatch"
	"github.com/IntrovertedFL/runtipi/pkg/release"
	"github.com/IntrovertedFL/runtipi/pkg/sessions"
	"github.com/IntrovertedFL/runtipi/pkg/settle"
	"github.com/IntrovertedFL/runtipi/pkg/stores"
	"github.com/IntrovertedFL/runtipi/pkg/telemetry"
)

// Config is the root platform configuration.
type Config struct {
	// Environment is the deployment environment. System update and
	// restart are policy-restricted outside production.
	Environment string `yaml:"environment" validate:"required,oneof=development staging production"`

	// DataDir is the root directory for platform state: the database
	// and the runner spool live under it unless overridden.
	DataDir string `yaml:"data_dir" validate:"required"`

	Database DatabaseConfig `yaml:"database"`
	Cache    CacheConfig    `yaml:"cache"`
	Dispatch DispatchConfig `yaml:"dispatch"`
	Release  ReleaseConfig  `yaml:"release"`
	Sessions SessionsConfig `yaml:"sessions"`
	Policy   PolicyConfig   `yaml:"policy"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Tracing  TracingConfig  `yaml:"tracing"`
}

// DatabaseConfig configures the status store.
type DatabaseConfig struct {
	// Path is the SQLite database file. Defaults to
	// <data_dir>/runtipi.db.
	Path string `yaml:"path"`
}

// CacheConfig configures the ephemeral cache.
type CacheConfig struct {
	// Engine selects the cache backend.
	Engine string `yaml:"engine" validate:"omitempty,oneof=memory redis"`

	// CleanupInterval is the memory engine's expiry sweep interval.
	CleanupInterval time.Duration `yaml:"cleanup_interval"`

	// Redis configures the redis engine.
	Redis RedisConfig `yaml:"redis"`
}

// RedisConfig configures the redis cache engine.
type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db" validate:"gte=0"`
}

// DispatchConfig configures the event dispatcher.
type DispatchConfig struct {
	// Engine selects how intents reach the runner.
	Engine string `yaml:"engine" validate:"omitempty,oneof=spool nats"`

	// SpoolDir is the directory shared with the runner. Dispatched
	// intents land in <spool_dir>/pending, settlements are read from
	// <spool_dir>/results. Defaults to <data_dir>/spool.
	SpoolDir string `yaml:"spool_dir"`

	// NATS configures the nats engine.
	NATS NATSConfig `yaml:"nats"`
}

// NATSConfig configures the NATS dispatch engine.
type NATSConfig struct {
	URL           string `yaml:"url"`
	SubjectPrefix string `yaml:"subject_prefix"`
}

// ReleaseConfig configures the upstream release feed lookup.
type ReleaseConfig struct {
	// Endpoint is the latest-release feed URL.
	Endpoint string `yaml:"endpoint" validate:"omitempty,url"`

	// Timeout bounds a single fetch.
	Timeout time.Duration `yaml:"timeout"`
}

// SessionsConfig configures session token lifetimes.
type SessionsConfig struct {
	// TTL is the lifetime of a freshly issued session.
	TTL time.Duration `yaml:"ttl"`

	// GraceTTL is the dual-validity window after rotation.
	GraceTTL time.Duration `yaml:"grace_ttl"`
}

// PolicyConfig configures the operation guard.
type PolicyConfig struct {
	// Paths lists .rego files or directories loaded on top of the
	// builtin policies.
	Paths []string `yaml:"paths"`

	// Watch hot-reloads policies when files under Paths change.
	Watch bool `yaml:"watch"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	Level  string `yaml:"level" validate:"omitempty,oneof=trace debug info warn error fatal"`
	Format string `yaml:"format" validate:"omitempty,oneof=console json"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled       bool   `yaml:"enabled"`
	ListenAddress string `yaml:"listen_address"`
}

// TracingConfig configures OpenTelemetry tracing.
type TracingConfig struct {
	Enabled      bool    `yaml:"enabled"`
	Exporter     string  `yaml:"exporter" validate:"omitempty,oneof=otlp stdout none"`
	Endpoint     string  `yaml:"endpoint"`
	SamplingRate float64 `yaml:"sampling_rate" validate:"gte=0,lte=1"`
}

// DefaultConfig returns a development-ready configuration.
func DefaultConfig() *Config {
	return &Config{
		Environment: "development",
		DataDir:     "/var/lib/runtipi",
		Cache: CacheConfig{
			Engine:          "memory",
			CleanupInterval: time.Minute,
		},
		Dispatch: DispatchConfig{
			Engine: "spool",
		},
		Release: ReleaseConfig{
			Timeout: 30 * time.Second,
		},
		Sessions: SessionsConfig{
			TTL:      sessions.DefaultTTL,
			GraceTTL: sessions.DefaultGraceTTL,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Metrics: MetricsConfig{
			Enabled:       true,
			ListenAddress: ":9090",
		},
		Tracing: TracingConfig{
			Enabled:      false,
			Exporter:     "stdout",
			SamplingRate: 1.0,
		},
	}
}

// Load reads the configuration file at path on top of the defaults. An
// empty path returns the defaults unchanged.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	cfg.applyDerivedDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyDerivedDefaults fills paths that default relative to the data
// directory.
func (c *Config) applyDerivedDefaults() {
	if c.Database.Path == "" && c.DataDir != "" {
		c.Database.Path = filepath.Join(c.DataDir, "runtipi.db")
	}
	if c.Dispatch.SpoolDir == "" && c.DataDir != "" {
		c.Dispatch.SpoolDir = filepath.Join(c.DataDir, "spool")
	}
}

// Validate checks the configuration against its struct tags plus the
// cross-field rules the tags cannot express.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			first := verrs[0]
			return fmt.Errorf("invalid config: field %s failed %q validation", first.Namespace(), first.Tag())
		}
		return fmt.Errorf("invalid config: %w", err)
	}

	if c.Cache.Engine == "redis" && c.Cache.Redis.Address == "" {
		return fmt.Errorf("invalid config: cache.redis.address is required for the redis engine")
	}
	if c.Dispatch.Engine == "spool" && c.Dispatch.SpoolDir == "" {
		return fmt.Errorf("invalid config: dispatch.spool_dir is required for the spool engine")
	}
	if c.Tracing.Enabled && c.Tracing.Exporter == "otlp" && c.Tracing.Endpoint == "" {
		return fmt.Errorf("invalid config: tracing.endpoint is required for the otlp exporter")
	}
	return nil
}

// ToStoreConfig maps the database section onto the store configuration.
func (c *Config) ToStoreConfig() stores.Config {
	return stores.Config{
		Path: c.Database.Path,
	}
}

// ToCacheConfig maps the cache section onto the cache configuration.
func (c *Config) ToCacheConfig() cache.Config {
	return cache.Config{
		Engine:          cache.Engine(c.Cache.Engine),
		CleanupInterval: c.Cache.CleanupInterval,
		Redis: cache.RedisConfig{
			Address:  c.Cache.Redis.Address,
			Password: c.Cache.Redis.Password,
			DB:       c.Cache.Redis.DB,
		},
	}
}

// ToSpoolConfig maps the dispatch section onto the spool engine
// configuration.
func (c *Config) ToSpoolConfig() dispatch.SpoolConfig {
	return dispatch.SpoolConfig{
		Dir: c.Dispatch.SpoolDir,
	}
}

// ToNATSConfig maps the dispatch section onto the NATS engine
// configuration.
func (c *Config) ToNATSConfig() dispatch.NATSConfig {
	return dispatch.NATSConfig{
		URL:           c.Dispatch.NATS.URL,
		SubjectPrefix: c.Dispatch.NATS.SubjectPrefix,
	}
}

// ToSettleConfig maps the dispatch section onto the settlement watcher
// configuration. The watcher shares the spool root with the dispatcher.
func (c *Config) ToSettleConfig() settle.Config {
	return settle.Config{
		Dir: c.Dispatch.SpoolDir,
	}
}

// ToReleaseConfig maps the release section onto the release client
// configuration.
func (c *Config) ToReleaseConfig() release.Config {
	return release.Config{
		Endpoint: c.Release.Endpoint,
		Timeout:  c.Release.Timeout,
	}
}

// ToSessionsConfig maps the sessions section onto the session manager
// configuration.
func (c *Config) ToSessionsConfig() sessions.Config {
	return sessions.Config{
		TTL:      c.Sessions.TTL,
		GraceTTL: c.Sessions.GraceTTL,
	}
}

// ToTelemetryConfig maps the logging, metrics and tracing sections onto
// the telemetry configuration.
func (c *Config) ToTelemetryConfig(serviceVersion string) *telemetry.Config {
	tc := telemetry.DefaultConfig()
	tc.ServiceVersion = serviceVersion
	tc.Environment = c.Environment
	tc.Logging.Level = c.Logging.Level
	tc.Logging.Format = c.Logging.Format
	tc.Metrics.Enabled = c.Metrics.Enabled
	tc.Metrics.ListenAddress = c.Metrics.ListenAddress
	tc.Tracing.Enabled = c.Tracing.Enabled
	tc.Tracing.Exporter = c.Tracing.Exporter
	tc.Tracing.Endpoint = c.Tracing.Endpoint
	tc.Tracing.SamplingRate = c.Tracing.SamplingRate
	return tc
}
