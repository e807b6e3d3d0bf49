// Package config loads the service TOML configuration via viper, with
// APP_-prefixed environment overrides and validated defaults.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Config is the root configuration for the ledger service.
type Config struct {
	ServiceName string `mapstructure:"service_name"`
	Version     string `mapstructure:"version"`
	// Environment: dev, staging, prod.
	Environment string `mapstructure:"environment"`

	HTTP       HTTPConfig       `mapstructure:"http"`
	Database   DatabaseConfig   `mapstructure:"database"`
	ClickHouse ClickHouseConfig `mapstructure:"clickhouse"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Kafka      KafkaConfig      `mapstructure:"kafka"`
	Logger     LoggerConfig     `mapstructure:"logger"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
	Sync       SyncConfig       `mapstructure:"sync"`
	Cache      CacheConfig      `mapstructure:"cache"`
	Ledger     LedgerConfig     `mapstructure:"ledger"`
	Benchmark  BenchmarkConfig  `mapstructure:"benchmark"`
	RateLimit  RateLimitConfig  `mapstructure:"rate_limit"`
}

// RateLimitConfig bounds request rates per client IP.
type RateLimitConfig struct {
	Enabled bool `mapstructure:"enabled"`
	QPS     int  `mapstructure:"qps"`
	Burst   int  `mapstructure:"burst"`
}

// BenchmarkConfig points at the external benchmark provider.
type BenchmarkConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	BaseURL string `mapstructure:"base_url"`
	// Timeout per request, in seconds.
	Timeout int `mapstructure:"timeout"`
}

// HTTPConfig configures the gin listener.
type HTTPConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	ReadTimeout  int    `mapstructure:"read_timeout"`
	WriteTimeout int    `mapstructure:"write_timeout"`
}

// DatabaseConfig configures the MySQL system of record.
type DatabaseConfig struct {
	DSN                string `mapstructure:"dsn"`
	MaxOpenConns       int    `mapstructure:"max_open_conns"`
	MaxIdleConns       int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime    int    `mapstructure:"conn_max_lifetime"`
	LogEnabled         bool   `mapstructure:"log_enabled"`
	SlowQueryThreshold int    `mapstructure:"slow_query_threshold"`
}

// ClickHouseConfig configures the analytical mirror.
type ClickHouseConfig struct {
	Addr     string `mapstructure:"addr"`
	Database string `mapstructure:"database"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	// QueryTimeout bounds every analytical query, in seconds.
	QueryTimeout int `mapstructure:"query_timeout"`
}

// RedisConfig configures the asset-metadata cache tier.
type RedisConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Password     string `mapstructure:"password"`
	DB           int    `mapstructure:"db"`
	MaxPoolSize  int    `mapstructure:"max_pool_size"`
	ReadTimeout  int    `mapstructure:"read_timeout"`
	WriteTimeout int    `mapstructure:"write_timeout"`
}

// KafkaConfig configures the best-effort downstream event feed.
type KafkaConfig struct {
	Enabled      bool     `mapstructure:"enabled"`
	Brokers      []string `mapstructure:"brokers"`
	Topic        string   `mapstructure:"topic"`
	MaxRetries   int      `mapstructure:"max_retries"`
	RetryBackoff int      `mapstructure:"retry_backoff"`
}

// LoggerConfig mirrors pkg/logger.Config.
type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	FilePath   string `mapstructure:"file_path"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
	WithCaller bool   `mapstructure:"with_caller"`
}

// MetricsConfig configures the Prometheus listener.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Port    int    `mapstructure:"port"`
	Path    string `mapstructure:"path"`
}

// SyncConfig tunes the mirror synchronisation and retry sweep.
type SyncConfig struct {
	// SweepInterval between retry sweeps, in seconds.
	SweepInterval int `mapstructure:"sweep_interval"`
	// MaxAttempts before a queue item is left for operator inspection.
	MaxAttempts int `mapstructure:"max_attempts"`
	// ChunkSize for bulk/migration mirror inserts.
	ChunkSize int `mapstructure:"chunk_size"`
	// SweepBatch limits how many queue items one sweep picks up.
	SweepBatch int `mapstructure:"sweep_batch"`
}

// CacheConfig tunes the process-local caches.
type CacheConfig struct {
	// PriceTTL for current-price entries, in seconds.
	PriceTTL int `mapstructure:"price_ttl"`
	// MetadataTTL for asset metadata entries, in seconds.
	MetadataTTL int `mapstructure:"metadata_ttl"`
	// SnapshotCapacity bounds the snapshot cache.
	SnapshotCapacity int `mapstructure:"snapshot_capacity"`
	// PriceLookbackDays for single price lookups against the mirror.
	PriceLookbackDays int `mapstructure:"price_lookback_days"`
	// BatchLookbackDays for batch price lookups against the mirror.
	BatchLookbackDays int `mapstructure:"batch_lookback_days"`
}

// LedgerConfig holds domain settings.
type LedgerConfig struct {
	// Timezone is the fixed reference timezone for calendar-day cutoffs.
	Timezone string `mapstructure:"timezone"`
	// BaseCurrency used for reporting.
	BaseCurrency string `mapstructure:"base_currency"`
}

// Load reads the TOML file at path, applies env overrides and validates.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		if _, statErr := os.Stat(path); statErr == nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Missing file is tolerated; defaults plus env carry the dev setup.
	}

	v.SetEnvPrefix("APP")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// Validate checks the settings a running service cannot do without.
func (c *Config) Validate() error {
	if c.ServiceName == "" {
		return fmt.Errorf("service_name is required")
	}
	if c.Environment == "" {
		c.Environment = "dev"
	}
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTP.Port)
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database DSN is required")
	}
	if c.Sync.MaxAttempts <= 0 {
		return fmt.Errorf("sync.max_attempts must be positive")
	}
	if _, err := timezoneOf(c.Ledger.Timezone); err != nil {
		return err
	}
	return nil
}

func timezoneOf(name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("ledger.timezone is required")
	}
	return name, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("service_name", "wealthledger")
	v.SetDefault("environment", "dev")

	v.SetDefault("http.host", "0.0.0.0")
	v.SetDefault("http.port", 8080)
	v.SetDefault("http.read_timeout", 30)
	v.SetDefault("http.write_timeout", 30)

	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 300)
	v.SetDefault("database.log_enabled", false)
	v.SetDefault("database.slow_query_threshold", 1000)

	v.SetDefault("clickhouse.addr", "localhost:9000")
	v.SetDefault("clickhouse.database", "wealthledger")
	v.SetDefault("clickhouse.query_timeout", 30)

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.max_pool_size", 10)
	v.SetDefault("redis.read_timeout", 3)
	v.SetDefault("redis.write_timeout", 3)

	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.topic", "wealthledger.events")
	v.SetDefault("kafka.max_retries", 3)
	v.SetDefault("kafka.retry_backoff", 100)

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "json")
	v.SetDefault("logger.output", "stdout")
	v.SetDefault("logger.file_path", "logs/app.log")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 10)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.with_caller", false)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.port", 9090)
	v.SetDefault("metrics.path", "/metrics")

	v.SetDefault("sync.sweep_interval", 300)
	v.SetDefault("sync.max_attempts", 3)
	v.SetDefault("sync.chunk_size", 1000)
	v.SetDefault("sync.sweep_batch", 100)

	v.SetDefault("cache.price_ttl", 300)
	v.SetDefault("cache.metadata_ttl", 600)
	v.SetDefault("cache.snapshot_capacity", 4096)
	v.SetDefault("cache.price_lookback_days", 7)
	v.SetDefault("cache.batch_lookback_days", 30)

	v.SetDefault("ledger.timezone", "America/New_York")
	v.SetDefault("ledger.base_currency", "USD")

	v.SetDefault("benchmark.enabled", false)
	v.SetDefault("benchmark.timeout", 10)

	v.SetDefault("rate_limit.enabled", false)
	v.SetDefault("rate_limit.qps", 50)
	v.SetDefault("rate_limit.burst", 100)
}
