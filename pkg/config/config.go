// Package config loads and validates application configuration from YAML files
// with environment-variable overrides. It provides typed structs for every
// subsystem (Server, Postgres, Kafka, Redis, Store, CMS, Search, etc.).
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/Adithya-Monish-Kumar-K/unified-search/internal/domain"
)

// EnvPrefix is prepended to every environment variable name.
const EnvPrefix = "US_"

const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
)

// Config is the top-level application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server" envPrefix:"SERVER_"`
	Postgres  PostgresConfig  `yaml:"postgres" envPrefix:"POSTGRES_"`
	Kafka     KafkaConfig     `yaml:"kafka" envPrefix:"KAFKA_"`
	Redis     RedisConfig     `yaml:"redis" envPrefix:"REDIS_"`
	Store     StoreConfig     `yaml:"store" envPrefix:"STORE_"`
	CMS       CMSConfig       `yaml:"cms" envPrefix:"CMS_"`
	Search    domain.Settings `yaml:"search" envPrefix:"SEARCH_"`
	Logging   LoggingConfig   `yaml:"logging" envPrefix:"LOGGING_"`
	Metrics   MetricsConfig   `yaml:"metrics" envPrefix:"METRICS_"`
	Analytics AnalyticsConfig `yaml:"analytics" envPrefix:"ANALYTICS_"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port" env:"PORT" validate:"gte=1,lte=65535"`
	ReadTimeout     time.Duration `yaml:"readTimeout" env:"READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"writeTimeout" env:"WRITE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout" env:"SHUTDOWN_TIMEOUT"`
	RequestTimeout  time.Duration `yaml:"requestTimeout" env:"REQUEST_TIMEOUT"`
	// CORSOrigins lists the storefront origins allowed to call the search
	// API from a browser. Empty disables CORS headers.
	CORSOrigins []string `yaml:"corsOrigins" env:"CORS_ORIGINS" envSeparator:","`
	// RateLimit caps search requests per client per RateWindow. Zero
	// disables limiting.
	RateLimit  int           `yaml:"rateLimit" env:"RATE_LIMIT" validate:"gte=0"`
	RateWindow time.Duration `yaml:"rateWindow" env:"RATE_WINDOW"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Host            string        `yaml:"host" env:"HOST"`
	Port            int           `yaml:"port" env:"PORT"`
	Database        string        `yaml:"database" env:"DATABASE"`
	User            string        `yaml:"user" env:"USER"`
	Password        string        `yaml:"password" env:"PASSWORD"`
	SSLMode         string        `yaml:"sslMode" env:"SSLMODE"`
	MaxOpenConns    int           `yaml:"maxOpenConns" env:"MAX_OPEN_CONNS"`
	MaxIdleConns    int           `yaml:"maxIdleConns" env:"MAX_IDLE_CONNS"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime" env:"CONN_MAX_LIFETIME"`
}

// DSN returns a lib/pq-compatible data source name.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// KafkaConfig holds Kafka broker and topic settings. An empty broker list
// disables every Kafka integration.
type KafkaConfig struct {
	Brokers       []string    `yaml:"brokers" env:"BROKERS" envSeparator:","`
	ConsumerGroup string      `yaml:"consumerGroup" env:"CONSUMER_GROUP"`
	Topics        KafkaTopics `yaml:"topics" envPrefix:"TOPIC_"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	ContentLifecycle string `yaml:"contentLifecycle" env:"CONTENT_LIFECYCLE"`
	IndexEvents      string `yaml:"indexEvents" env:"INDEX_EVENTS"`
	AnalyticsEvents  string `yaml:"analyticsEvents" env:"ANALYTICS_EVENTS"`
}

func (k KafkaConfig) Enabled() bool {
	return len(k.Brokers) > 0
}

// RedisConfig holds Redis connection and caching parameters.
type RedisConfig struct {
	Enabled  bool          `yaml:"enabled" env:"ENABLED"`
	Addr     string        `yaml:"addr" env:"ADDR"`
	Password string        `yaml:"password" env:"PASSWORD"`
	DB       int           `yaml:"db" env:"DB"`
	PoolSize int           `yaml:"poolSize" env:"POOL_SIZE"`
	CacheTTL time.Duration `yaml:"cacheTTL" env:"CACHE_TTL"`
}

// StoreConfig selects the index store backend.
type StoreConfig struct {
	Driver       string `yaml:"driver" env:"DRIVER" validate:"oneof=memory postgres"`
	CreateSchema bool   `yaml:"createSchema" env:"CREATE_SCHEMA"`
}

// CMSConfig points at the content source. Without a BaseURL the items in
// SeedFile are served from memory.
type CMSConfig struct {
	BaseURL       string        `yaml:"baseUrl" env:"BASE_URL" validate:"omitempty,url"`
	SeedFile      string        `yaml:"seedFile" env:"SEED_FILE"`
	Timeout       time.Duration `yaml:"timeout" env:"TIMEOUT"`
	RetryAttempts int           `yaml:"retryAttempts" env:"RETRY_ATTEMPTS" validate:"gte=0,lte=10"`
	PageSize      int           `yaml:"pageSize" env:"PAGE_SIZE" validate:"gte=1,lte=1000"`
	// Placeholder images for results without a featured image. Empty keeps
	// the built-in paths.
	ProductPlaceholder string `yaml:"productPlaceholder" env:"PRODUCT_PLACEHOLDER"`
	ArticlePlaceholder string `yaml:"articlePlaceholder" env:"ARTICLE_PLACEHOLDER"`
}

// AnalyticsConfig controls the analytics aggregation service.
type AnalyticsConfig struct {
	ConsumerGroup    string        `yaml:"consumerGroup" env:"CONSUMER_GROUP"`
	TopN             int           `yaml:"topN" env:"TOP_N" validate:"gte=1,lte=1000"`
	SnapshotInterval time.Duration `yaml:"snapshotInterval" env:"SNAPSHOT_INTERVAL"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level" env:"LEVEL" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" env:"FORMAT" validate:"oneof=json text"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	Port    int  `yaml:"port" env:"PORT"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Load reads a YAML config file (if provided), applies US_* environment
// overrides and validates the result. Missing values keep their defaults.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("parsing environment overrides: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks struct tags on cfg, or on any value carrying validate tags
// such as domain.Settings.
func Validate(v any) error {
	if err := validate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			first := verrs[0]
			return fmt.Errorf("invalid configuration: %s failed %q (value %v)",
				first.Namespace(), first.Tag(), first.Value())
		}
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// Default returns the configuration used when no file or environment
// overrides are present.
func Default() *Config {
	return defaultConfig()
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			RequestTimeout:  10 * time.Second,
			RateWindow:      time.Minute,
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "unifiedsearch",
			User:            "unifiedsearch",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Kafka: KafkaConfig{
			ConsumerGroup: "unified-search-indexer",
			Topics: KafkaTopics{
				ContentLifecycle: "content.lifecycle",
				IndexEvents:      "search.index-events",
				AnalyticsEvents:  "search.analytics",
			},
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			PoolSize: 10,
			CacheTTL: 60 * time.Second,
		},
		Store: StoreConfig{
			Driver:       StoreMemory,
			CreateSchema: true,
		},
		CMS: CMSConfig{
			Timeout:       10 * time.Second,
			RetryAttempts: 3,
			PageSize:      100,
		},
		Search: domain.DefaultSettings(),
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
		Analytics: AnalyticsConfig{
			ConsumerGroup:    "unified-search-analytics",
			TopN:             10,
			SnapshotInterval: time.Minute,
		},
	}
}
