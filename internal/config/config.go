// Package config provides Viper-based configuration loading for the arena
// coordinator.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// OrchestratorConfig holds the connection settings for the remote
// matchmaking orchestrator.
type OrchestratorConfig struct {
	// Host is the orchestrator hostname.
	Host string `mapstructure:"host"`
	// Port is the orchestrator websocket port. Zero means the host carries
	// the port implicitly (e.g. behind a reverse proxy on 80/443).
	Port int `mapstructure:"port"`
	// Path is the websocket endpoint path.
	Path string `mapstructure:"path"`
	// AuthKey is the shared secret sent in the auth handshake.
	AuthKey string `mapstructure:"auth_key"`
	// ConnectTimeout bounds a single connection attempt.
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	// ReconnectBaseDelay is the backoff base; the delay for attempt N is
	// min(N * ReconnectBaseDelay, ReconnectMaxDelay).
	ReconnectBaseDelay time.Duration `mapstructure:"reconnect_base_delay"`
	// ReconnectMaxDelay caps the computed backoff delay.
	ReconnectMaxDelay time.Duration `mapstructure:"reconnect_max_delay"`
	// MaxReconnectAttempts stops automatic retries once reached; an
	// operator reset is required afterwards.
	MaxReconnectAttempts int `mapstructure:"max_reconnect_attempts"`
}

// URL returns the websocket URL for the orchestrator endpoint.
//
// Postcondition: Returns a ws:// URL; the port is omitted when unset.
func (o OrchestratorConfig) URL() string {
	if o.Port > 0 {
		return fmt.Sprintf("ws://%s:%d%s", o.Host, o.Port, o.Path)
	}
	return fmt.Sprintf("ws://%s%s", o.Host, o.Path)
}

// ArenaConfig holds registry maintenance settings.
type ArenaConfig struct {
	// SweepInterval is how often the occupancy sweeper inspects locked
	// groups for abandoned arenas.
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
	// ResyncInterval is how often the full maps_info snapshot is resent
	// to the orchestrator while connected.
	ResyncInterval time.Duration `mapstructure:"resync_interval"`
}

// RetryConfig holds the pre-start player-departure retry sub-protocol
// settings.
type RetryConfig struct {
	// Attempts is the number of retrygame notices sent before voiding.
	Attempts int `mapstructure:"attempts"`
	// Interval is the spacing between retrygame notices.
	Interval time.Duration `mapstructure:"interval"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: "debug", "info", "warn", "error".
	Level string `mapstructure:"level"`
	// Format is the log output format: "json" or "console".
	Format string `mapstructure:"format"`
}

// StorageConfig selects the match-log persistence backend.
type StorageConfig struct {
	// Enabled disables all match-log writes when false.
	Enabled bool `mapstructure:"enabled"`
	// Backend is "file" or "postgres".
	Backend string `mapstructure:"backend"`
	// FolderPath is the root directory for the file backend.
	FolderPath string `mapstructure:"folder_path"`
}

// DatabaseConfig holds PostgreSQL connection settings for the postgres
// match-log backend.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

// DSN returns the PostgreSQL connection string.
//
// Precondition: Host, Port, User, and Name must be non-empty.
// Postcondition: Returns a valid PostgreSQL DSN string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode,
	)
}

// StatsAPIConfig holds the read-only stats backend settings.
type StatsAPIConfig struct {
	// BaseURL is the stats API root, e.g. "http://stats.example:25506/rbw/api".
	BaseURL string `mapstructure:"base_url"`
	// RequestTimeout bounds each HTTP request.
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	// CacheTTL is how long responses are served from the cache.
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

// PermissionsConfig holds the operator permission snapshot settings.
type PermissionsConfig struct {
	// FilePath is the permission YAML file sent to the orchestrator on
	// each resync.
	FilePath string `mapstructure:"file_path"`
}

// Config is the top-level application configuration.
type Config struct {
	Orchestrator OrchestratorConfig `mapstructure:"orchestrator"`
	Arena        ArenaConfig        `mapstructure:"arena"`
	Retry        RetryConfig        `mapstructure:"retry"`
	Logging      LoggingConfig      `mapstructure:"logging"`
	Storage      StorageConfig      `mapstructure:"storage"`
	Database     DatabaseConfig     `mapstructure:"database"`
	StatsAPI     StatsAPIConfig     `mapstructure:"statsapi"`
	Permissions  PermissionsConfig  `mapstructure:"permissions"`
}

// Validate checks all configuration invariants.
//
// Postcondition: Returns nil if configuration is valid, or an error
// describing all violations.
func (c Config) Validate() error {
	var errs []string

	if err := validateOrchestrator(c.Orchestrator); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateArena(c.Arena); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateRetry(c.Retry); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateLogging(c.Logging); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateStorage(c.Storage); err != nil {
		errs = append(errs, err.Error())
	}
	if c.Storage.Enabled && c.Storage.Backend == "postgres" {
		if err := validateDatabase(c.Database); err != nil {
			errs = append(errs, err.Error())
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

func validateOrchestrator(o OrchestratorConfig) error {
	var errs []string
	if o.Host == "" {
		errs = append(errs, "orchestrator.host must not be empty")
	}
	if o.Port < 0 || o.Port > 65535 {
		errs = append(errs, fmt.Sprintf("orchestrator.port must be 0-65535, got %d", o.Port))
	}
	if !strings.HasPrefix(o.Path, "/") {
		errs = append(errs, fmt.Sprintf("orchestrator.path must start with '/', got %q", o.Path))
	}
	if o.AuthKey == "" {
		errs = append(errs, "orchestrator.auth_key must not be empty")
	}
	if o.ConnectTimeout <= 0 {
		errs = append(errs, "orchestrator.connect_timeout must be > 0")
	}
	if o.ReconnectBaseDelay <= 0 {
		errs = append(errs, "orchestrator.reconnect_base_delay must be > 0")
	}
	if o.ReconnectMaxDelay < o.ReconnectBaseDelay {
		errs = append(errs, "orchestrator.reconnect_max_delay must be >= reconnect_base_delay")
	}
	if o.MaxReconnectAttempts < 1 {
		errs = append(errs, "orchestrator.max_reconnect_attempts must be >= 1")
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateArena(a ArenaConfig) error {
	var errs []string
	if a.SweepInterval <= 0 {
		errs = append(errs, "arena.sweep_interval must be > 0")
	}
	if a.ResyncInterval <= 0 {
		errs = append(errs, "arena.resync_interval must be > 0")
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateRetry(r RetryConfig) error {
	var errs []string
	if r.Attempts < 1 {
		errs = append(errs, fmt.Sprintf("retry.attempts must be >= 1, got %d", r.Attempts))
	}
	if r.Interval <= 0 {
		errs = append(errs, "retry.interval must be > 0")
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateLogging(l LoggingConfig) error {
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[l.Level] {
		return fmt.Errorf("logging.level must be one of [debug, info, warn, error], got %q", l.Level)
	}
	validFormats := map[string]bool{"json": true, "console": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("logging.format must be one of [json, console], got %q", l.Format)
	}
	return nil
}

func validateStorage(s StorageConfig) error {
	if !s.Enabled {
		return nil
	}
	switch s.Backend {
	case "file":
		if s.FolderPath == "" {
			return fmt.Errorf("storage.folder_path must not be empty for the file backend")
		}
	case "postgres":
	default:
		return fmt.Errorf("storage.backend must be one of [file, postgres], got %q", s.Backend)
	}
	return nil
}

func validateDatabase(d DatabaseConfig) error {
	var errs []string
	if d.Host == "" {
		errs = append(errs, "database.host must not be empty")
	}
	if d.Port < 1 || d.Port > 65535 {
		errs = append(errs, fmt.Sprintf("database.port must be 1-65535, got %d", d.Port))
	}
	if d.User == "" {
		errs = append(errs, "database.user must not be empty")
	}
	if d.Name == "" {
		errs = append(errs, "database.name must not be empty")
	}
	validSSL := map[string]bool{"disable": true, "require": true, "verify-ca": true, "verify-full": true}
	if !validSSL[d.SSLMode] {
		errs = append(errs, fmt.Sprintf("database.sslmode must be one of [disable, require, verify-ca, verify-full], got %q", d.SSLMode))
	}
	if d.MaxConns < 1 {
		errs = append(errs, fmt.Sprintf("database.max_conns must be >= 1, got %d", d.MaxConns))
	}
	if d.MinConns < 0 || d.MinConns > d.MaxConns {
		errs = append(errs, fmt.Sprintf("database.min_conns must be 0-%d, got %d", d.MaxConns, d.MinConns))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

// Load reads configuration from the given file path, applies environment
// variable overrides, and validates the result.
//
// Precondition: path must be a valid file path to a YAML configuration file.
// Postcondition: Returns a valid Config or a non-nil error.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	// Environment variable overrides with RBW_ prefix
	v.SetEnvPrefix("RBW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshalling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// LoadFromViper builds a Config from an already-configured Viper instance.
//
// Precondition: v must be non-nil and have configuration values set.
// Postcondition: Returns a valid Config or a non-nil error.
func LoadFromViper(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshalling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("orchestrator.host", "localhost")
	v.SetDefault("orchestrator.port", 25505)
	v.SetDefault("orchestrator.path", "/rbw/websocket")
	v.SetDefault("orchestrator.connect_timeout", "30s")
	v.SetDefault("orchestrator.reconnect_base_delay", "5s")
	v.SetDefault("orchestrator.reconnect_max_delay", "60s")
	v.SetDefault("orchestrator.max_reconnect_attempts", 5)

	v.SetDefault("arena.sweep_interval", "5s")
	v.SetDefault("arena.resync_interval", "30s")

	v.SetDefault("retry.attempts", 5)
	v.SetDefault("retry.interval", "5s")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("storage.enabled", true)
	v.SetDefault("storage.backend", "file")
	v.SetDefault("storage.folder_path", "games")

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "rbw")
	v.SetDefault("database.password", "rbw")
	v.SetDefault("database.name", "rbw")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.min_conns", 2)
	v.SetDefault("database.max_conn_lifetime", "1h")

	v.SetDefault("statsapi.base_url", "http://localhost:25506/rbw/api")
	v.SetDefault("statsapi.request_timeout", "5s")
	v.SetDefault("statsapi.cache_ttl", "30s")

	v.SetDefault("permissions.file_path", "permission.yml")
}
