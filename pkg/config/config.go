package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config represents the complete application configuration
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Auth       AuthConfig       `yaml:"auth"`
	Storage    StorageConfig    `yaml:"storage"`
	Analytics  AnalyticsConfig  `yaml:"analytics"`
	RateLimits RateLimitsConfig `yaml:"rate_limits"`
	Logging    LoggingConfig    `yaml:"logging"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type AuthConfig struct {
	Enabled          bool          `yaml:"enabled"`
	JWTSecret        string        `yaml:"jwt_secret"`
	JWTPublicKeyPath string        `yaml:"jwt_public_key_path"`
	TokenExpiry      time.Duration `yaml:"token_expiry"`
}

type StorageConfig struct {
	Search     SearchConfig     `yaml:"search"`
	ClickHouse ClickHouseConfig `yaml:"clickhouse"`
	Badger     BadgerConfig     `yaml:"badger"`
}

// SearchConfig configures the Elasticsearch backend. It is disabled when
// no address is set.
type SearchConfig struct {
	Addresses []string `yaml:"addresses"`
	Username  string   `yaml:"username"`
	Password  string   `yaml:"password"`
	APIKey    string   `yaml:"api_key"`
	Index     string   `yaml:"index"`
	// TermsFallback reads distinct counts from terms aggregations, for
	// clusters without the cardinality aggregation.
	TermsFallback bool `yaml:"terms_fallback"`
}

// ClickHouseConfig configures the columnar backend. It is disabled when
// no address is set.
type ClickHouseConfig struct {
	Addresses       []string      `yaml:"addresses"`
	Database        string        `yaml:"database"`
	Username        string        `yaml:"username"`
	Password        string        `yaml:"password"`
	DialTimeout     time.Duration `yaml:"dial_timeout"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// BadgerConfig configures the tenant settings store
type BadgerConfig struct {
	DataDir            string `yaml:"data_dir"`
	InMemory           bool   `yaml:"in_memory"`
	ValueLogMaxEntries int    `yaml:"value_log_max_entries"`
}

type AnalyticsConfig struct {
	ComparisonMode     bool          `yaml:"comparison_mode"`
	MaxBuckets         int           `yaml:"max_buckets"`
	FilterOptionsLimit int           `yaml:"filter_options_limit"`
	TopDocumentsLimit  int           `yaml:"top_documents_limit"`
	FeedbackLimit      int           `yaml:"feedback_limit"`
	QueryTimeout       time.Duration `yaml:"query_timeout"`
	MaxSeries          int           `yaml:"max_series"`
}

type RateLimitsConfig struct {
	QueryRequestsPerSecond int `yaml:"query_requests_per_second"`
	Burst                  int `yaml:"burst"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Load reads and parses the configuration file. Variables from a .env file
// in the working directory are loaded first and may be referenced as ${VAR}.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.setDefaults()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func (c *Config) setDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 30 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 30 * time.Second
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}

	if c.Auth.TokenExpiry == 0 {
		c.Auth.TokenExpiry = time.Hour
	}

	if c.Storage.Search.Index == "" {
		c.Storage.Search.Index = "traces"
	}
	if c.Storage.ClickHouse.Database == "" {
		c.Storage.ClickHouse.Database = "default"
	}
	if c.Storage.ClickHouse.DialTimeout == 0 {
		c.Storage.ClickHouse.DialTimeout = 5 * time.Second
	}
	if c.Storage.Badger.DataDir == "" && !c.Storage.Badger.InMemory {
		c.Storage.Badger.DataDir = "data/tenants"
	}

	if c.Analytics.MaxBuckets == 0 {
		c.Analytics.MaxBuckets = 1000
	}
	if c.Analytics.FilterOptionsLimit == 0 {
		c.Analytics.FilterOptionsLimit = 100
	}
	if c.Analytics.TopDocumentsLimit == 0 {
		c.Analytics.TopDocumentsLimit = 10
	}
	if c.Analytics.FeedbackLimit == 0 {
		c.Analytics.FeedbackLimit = 100
	}
	if c.Analytics.QueryTimeout == 0 {
		c.Analytics.QueryTimeout = 30 * time.Second
	}
	if c.Analytics.MaxSeries == 0 {
		c.Analytics.MaxSeries = 20
	}

	if c.RateLimits.QueryRequestsPerSecond == 0 {
		c.RateLimits.QueryRequestsPerSecond = 50
	}
	if c.RateLimits.Burst == 0 {
		c.RateLimits.Burst = c.RateLimits.QueryRequestsPerSecond * 2
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	if c.Logging.Output == "" {
		c.Logging.Output = "stdout"
	}

	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
}

func (c *Config) validate() error {
	if len(c.Storage.Search.Addresses) == 0 && len(c.Storage.ClickHouse.Addresses) == 0 {
		return fmt.Errorf("no analytics backend configured (set storage.search.addresses or storage.clickhouse.addresses)")
	}

	if c.Auth.Enabled && c.Auth.JWTSecret == "" && c.Auth.JWTPublicKeyPath == "" {
		return fmt.Errorf("auth enabled but no JWT secret or public key provided")
	}

	if c.Analytics.MaxBuckets < 0 {
		return fmt.Errorf("analytics.max_buckets must not be negative")
	}

	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("invalid logging format: %s (must be 'json' or 'console')", c.Logging.Format)
	}

	return nil
}
