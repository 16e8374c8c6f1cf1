package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents wbrbd's application configuration: everything outside
// the WBRB engine's own wbrbcache.Config (which is deliberately kept
// dependency-free — see pkg/wbrbcache/config.go).
type Config struct {
	// Profile selects the deployment profile: "lite" (embedded SQLite,
	// single-node) or "standard" (Postgres/Redis-backed, HA-ready).
	Profile DeploymentProfile `mapstructure:"profile"`

	Storage StorageConfig `mapstructure:"storage"`
	Server  ServerConfig  `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis   RedisConfig   `mapstructure:"redis"`
	Log     LogConfig     `mapstructure:"log"`
	WBRB    WBRBConfig    `mapstructure:"wbrb"`
	App     AppConfig     `mapstructure:"app"`
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// DeploymentProfile represents the deployment profile type.
type DeploymentProfile string

const (
	// ProfileLite is the single-node profile: validation accepts any storage
	// backend except postgres.
	ProfileLite DeploymentProfile = "lite"

	// ProfileStandard accepts any storage backend except memory. The daemon
	// uses exactly one backend; Redis is never layered over PostgreSQL.
	ProfileStandard DeploymentProfile = "standard"
)

// StorageConfig selects and configures the wbrbcache.Storage backend.
type StorageConfig struct {
	// Backend selects the storagebackend implementation: "memory",
	// "sqlite", "postgres", or "redis".
	Backend StorageBackend `mapstructure:"backend"`

	// SQLitePath is the embedded database file path, used when
	// Backend == StorageBackendSQLite.
	SQLitePath string `mapstructure:"sqlite_path"`
}

// StorageBackend identifies a storagebackend implementation.
type StorageBackend string

const (
	StorageBackendMemory   StorageBackend = "memory"
	StorageBackendSQLite   StorageBackend = "sqlite"
	StorageBackendPostgres StorageBackend = "postgres"
	StorageBackendRedis    StorageBackend = "redis"
)

// ServerConfig holds the admin/status HTTP server's configuration.
type ServerConfig struct {
	Port                    int           `mapstructure:"port"`
	Host                    string        `mapstructure:"host"`
	ReadTimeout             time.Duration `mapstructure:"read_timeout"`
	WriteTimeout            time.Duration `mapstructure:"write_timeout"`
	IdleTimeout             time.Duration `mapstructure:"idle_timeout"`
	GracefulShutdownTimeout time.Duration `mapstructure:"graceful_shutdown_timeout"`
}

// DatabaseConfig configures the PostgreSQL storage backend.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Database        string        `mapstructure:"database"`
	Username        string        `mapstructure:"username"`
	Password        string        `mapstructure:"password"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxConnections  int32         `mapstructure:"max_connections"`
	MinConnections  int32         `mapstructure:"min_connections"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`
	ConnectTimeout  time.Duration `mapstructure:"connect_timeout"`
}

// RedisConfig configures the Redis storage backend.
type RedisConfig struct {
	Addr            string        `mapstructure:"addr"`
	Password        string        `mapstructure:"password"`
	DB              int           `mapstructure:"db"`
	PoolSize        int           `mapstructure:"pool_size"`
	MinIdleConns    int           `mapstructure:"min_idle_conns"`
	DialTimeout     time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	MaxRetries      int           `mapstructure:"max_retries"`
	MinRetryBackoff time.Duration `mapstructure:"min_retry_backoff"`
	MaxRetryBackoff time.Duration `mapstructure:"max_retry_backoff"`
}

// LogConfig holds logging-related configuration (wired to pkg/logger, which
// layers lumberjack.v2 rotation under log/slog — see SPEC_FULL.md §... ambient
// stack section).
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	Filename   string `mapstructure:"filename"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
}

// WBRBConfig is wbrbd's outer view of the engine's tuning knobs. It is kept
// distinct from wbrbcache.Config (string-typed durations here, parsed via
// wbrbcache.ParseTimeInterval at startup) so the engine package itself never
// needs to import viper/mapstructure.
type WBRBConfig struct {
	CommonNamingPrefix                          string `mapstructure:"common_naming_prefix"`
	LogThrottleTimeInterval                     string `mapstructure:"log_throttle_time_interval"`
	LogThrottleMaxMessagesOfTypePerTimeInterval int    `mapstructure:"log_throttle_max_messages_of_type_per_time_interval"`
	MainQueueCacheTime                          string `mapstructure:"main_queue_cache_time"`
	ReturnQueueCacheTimeMin                      string `mapstructure:"return_queue_cache_time_min"`
	MainQueueMaxTargetSize                      int    `mapstructure:"main_queue_max_target_size"`
	MaxCacheElementsHardLimit                   int    `mapstructure:"max_cache_elements_hard_limit"`
	MaxUpdatesPerElement                        int    `mapstructure:"max_updates_per_element"`
	ReadRetryLimit                              int    `mapstructure:"read_retry_limit"`
	WriteRetryLimit                              int    `mapstructure:"write_retry_limit"`
	MaxFullCyclesWithoutWriteSuccess            int    `mapstructure:"max_full_cycles_without_write_success"`
	ReadBatchDelay                              string `mapstructure:"read_batch_delay"`
	WriteBatchDelay                             string `mapstructure:"write_batch_delay"`
	ReadTimeout                                  string `mapstructure:"read_timeout"`
	TimeFactor                                   float64 `mapstructure:"time_factor"`
	RemovedFromCacheRetryLimit                  int    `mapstructure:"removed_from_cache_retry_limit"`
	ReadWorkerPoolSize                          int    `mapstructure:"read_worker_pool_size"`
	WriteWorkerPoolSize                         int    `mapstructure:"write_worker_pool_size"`
}

// AppConfig holds application-specific configuration.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
	Debug       bool   `mapstructure:"debug"`
}

// MetricsConfig holds metrics-related configuration.
type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Path      string `mapstructure:"path"`
	Namespace string `mapstructure:"namespace"`
}

// LoadConfigFromEnv loads configuration from environment variables only.
func LoadConfigFromEnv() (*Config, error) {
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	setDefaults()

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// LoadConfig loads configuration from file and environment variables.
func LoadConfig(configPath string) (*Config, error) {
	setDefaults()

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if configPath != "" {
		viper.SetConfigFile(configPath)
		viper.SetConfigType("yaml")

		if err := viper.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

func setDefaults() {
	viper.SetDefault("profile", "lite")
	viper.SetDefault("storage.backend", "sqlite")
	viper.SetDefault("storage.sqlite_path", "./wbrbcache.db")

	viper.SetDefault("server.port", 8090)
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.read_timeout", "30s")
	viper.SetDefault("server.write_timeout", "30s")
	viper.SetDefault("server.idle_timeout", "120s")
	viper.SetDefault("server.graceful_shutdown_timeout", "30s")

	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.database", "wbrbcache")
	viper.SetDefault("database.username", "wbrbcache")
	viper.SetDefault("database.password", "")
	viper.SetDefault("database.ssl_mode", "disable")
	viper.SetDefault("database.max_connections", 20)
	viper.SetDefault("database.min_connections", 2)
	viper.SetDefault("database.max_conn_lifetime", "1h")
	viper.SetDefault("database.max_conn_idle_time", "5m")
	viper.SetDefault("database.connect_timeout", "10s")

	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.pool_size", 10)
	viper.SetDefault("redis.min_idle_conns", 1)
	viper.SetDefault("redis.dial_timeout", "5s")
	viper.SetDefault("redis.read_timeout", "3s")
	viper.SetDefault("redis.write_timeout", "3s")
	viper.SetDefault("redis.max_retries", 3)
	viper.SetDefault("redis.min_retry_backoff", "8ms")
	viper.SetDefault("redis.max_retry_backoff", "512ms")

	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "json")
	viper.SetDefault("log.output", "stdout")
	viper.SetDefault("log.filename", "")
	viper.SetDefault("log.max_size", 100)
	viper.SetDefault("log.max_backups", 3)
	viper.SetDefault("log.max_age", 28)
	viper.SetDefault("log.compress", true)

	viper.SetDefault("wbrb.common_naming_prefix", "wbrbd")
	viper.SetDefault("wbrb.log_throttle_time_interval", "1s")
	viper.SetDefault("wbrb.log_throttle_max_messages_of_type_per_time_interval", 20)
	viper.SetDefault("wbrb.main_queue_cache_time", "10s")
	viper.SetDefault("wbrb.return_queue_cache_time_min", "5s")
	viper.SetDefault("wbrb.main_queue_max_target_size", 10000)
	viper.SetDefault("wbrb.max_cache_elements_hard_limit", 100000)
	viper.SetDefault("wbrb.max_updates_per_element", 100)
	viper.SetDefault("wbrb.read_retry_limit", 3)
	viper.SetDefault("wbrb.write_retry_limit", 3)
	viper.SetDefault("wbrb.max_full_cycles_without_write_success", 5)
	viper.SetDefault("wbrb.read_batch_delay", "0ms")
	viper.SetDefault("wbrb.write_batch_delay", "0ms")
	viper.SetDefault("wbrb.read_timeout", "5s")
	viper.SetDefault("wbrb.time_factor", 1.0)
	viper.SetDefault("wbrb.removed_from_cache_retry_limit", 3)
	viper.SetDefault("wbrb.read_worker_pool_size", 0)
	viper.SetDefault("wbrb.write_worker_pool_size", 0)

	viper.SetDefault("app.name", "wbrbd")
	viper.SetDefault("app.version", "0.1.0")
	viper.SetDefault("app.environment", "development")
	viper.SetDefault("app.debug", false)

	viper.SetDefault("metrics.enabled", true)
	viper.SetDefault("metrics.path", "/metrics")
	viper.SetDefault("metrics.namespace", "wbrbd")
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.validateProfile(); err != nil {
		return fmt.Errorf("profile validation failed: %w", err)
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Server.Host == "" {
		return fmt.Errorf("server host cannot be empty")
	}
	if c.Log.Level == "" {
		return fmt.Errorf("log level cannot be empty")
	}
	if c.App.Name == "" {
		return fmt.Errorf("app name cannot be empty")
	}

	return nil
}

func (c *Config) validateProfile() error {
	switch c.Profile {
	case ProfileLite, ProfileStandard:
	default:
		return fmt.Errorf("invalid deployment profile: %s (must be 'lite' or 'standard')", c.Profile)
	}

	switch c.Storage.Backend {
	case StorageBackendMemory, StorageBackendSQLite, StorageBackendPostgres, StorageBackendRedis:
	default:
		return fmt.Errorf("invalid storage backend: %s", c.Storage.Backend)
	}

	if c.Profile == ProfileLite && c.Storage.Backend == StorageBackendPostgres {
		return fmt.Errorf("lite profile does not support storage.backend=postgres")
	}
	if c.Profile == ProfileStandard && c.Storage.Backend == StorageBackendMemory {
		return fmt.Errorf("standard profile does not support storage.backend=memory")
	}
	if c.Storage.Backend == StorageBackendSQLite && c.Storage.SQLitePath == "" {
		return fmt.Errorf("storage.backend=sqlite requires storage.sqlite_path")
	}

	return nil
}

// IsDevelopment returns true if the application is running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == "development"
}

// IsProduction returns true if the application is running in production mode.
func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

// IsDebug returns true if debug mode is enabled.
func (c *Config) IsDebug() bool {
	return c.App.Debug || c.IsDevelopment()
}

// IsLiteProfile returns true if running in the Lite deployment profile.
func (c *Config) IsLiteProfile() bool {
	return c.Profile == ProfileLite
}

// IsStandardProfile returns true if running in the Standard deployment profile.
func (c *Config) IsStandardProfile() bool {
	return c.Profile == ProfileStandard
}

// GetProfileName returns a human-readable profile name.
func (c *Config) GetProfileName() string {
	switch c.Profile {
	case ProfileLite:
		return "Lite (embedded SQLite)"
	case ProfileStandard:
		return "Standard (Postgres/Redis)"
	default:
		return string(c.Profile)
	}
}
