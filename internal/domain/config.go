package domain

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the complete Kestrel configuration.
type Config struct {
	// Server settings
	Server ServerConfig `json:"server" yaml:"server"`

	// Tier determines feature availability
	Tier Tier `json:"tier" yaml:"tier"`

	// Pipeline settings for label engineering and feature fitting
	Pipeline PipelineConfig `json:"pipeline" yaml:"pipeline"`

	// Component configurations
	Repository RepositoryConfig `json:"repository" yaml:"repository"`
	Cache      CacheConfig      `json:"cache" yaml:"cache"`
	EventBus   EventBusConfig   `json:"eventBus" yaml:"eventBus"`

	// Observability
	Logging LoggingConfig `json:"logging" yaml:"logging"`
	Tracing TracingConfig `json:"tracing" yaml:"tracing"`
}

// PipelineConfig controls the proxy-label and feature-fitting run.
type PipelineConfig struct {
	// K is the number of behavioral clusters.
	K int `json:"k" yaml:"k"`

	// Seed fixes centroid initialization so a run is reproducible.
	Seed int64 `json:"seed" yaml:"seed"`

	// WindowDays bounds the observation window; 0 means the full ledger.
	WindowDays int `json:"windowDays" yaml:"windowDays"`

	// SnapshotDate anchors recency. Empty means day after the latest
	// transaction in the ledger.
	SnapshotDate string `json:"snapshotDate" yaml:"snapshotDate"`

	// WoEBins is the quantile bin count for numeric WoE maps.
	WoEBins int `json:"woeBins" yaml:"woeBins"`

	// IVThreshold flags weak predictors for review.
	IVThreshold float64 `json:"ivThreshold" yaml:"ivThreshold"`

	// RefitSchedule is an optional cron expression for periodic re-fits.
	RefitSchedule string `json:"refitSchedule" yaml:"refitSchedule"`

	// Workers bounds parallel aggregation partitions.
	Workers int `json:"workers" yaml:"workers"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string `json:"host" yaml:"host"`
	Port         int    `json:"port" yaml:"port"`
	ReadTimeout  int    `json:"readTimeout" yaml:"readTimeout"`   // seconds
	WriteTimeout int    `json:"writeTimeout" yaml:"writeTimeout"` // seconds
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `json:"level" yaml:"level"`   // debug, info, warn, error
	Format string `json:"format" yaml:"format"` // json, text
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled      bool   `json:"enabled" yaml:"enabled"`
	ServiceName  string `json:"serviceName" yaml:"serviceName"`
	ExporterType string `json:"exporterType" yaml:"exporterType"` // stdout, otlp, jaeger
	Endpoint     string `json:"endpoint" yaml:"endpoint"`
}

// Tier represents the product tier.
type Tier string

const (
	// TierCommunity is the free tier with SQLite + channels
	TierCommunity Tier = "community"

	// TierPro is the paid tier with PostgreSQL + NATS + Redis
	TierPro Tier = "pro"

	// TierEnterprise includes multi-node, SSO, etc.
	TierEnterprise Tier = "enterprise"
)

// DefaultConfig returns a default configuration for Community tier.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30,
			WriteTimeout: 30,
		},
		Tier: TierCommunity,
		Pipeline: PipelineConfig{
			K:           3,
			Seed:        42,
			WoEBins:     10,
			IVThreshold: 0.02,
			Workers:     4,
		},
		Repository: RepositoryConfig{
			Driver:     "sqlite",
			SQLitePath: "./kestrel.db",
		},
		Cache: CacheConfig{
			Type:         "memory",
			LocalMaxSize: 10000,
			LocalTTL:     300 * time.Second,
		},
		EventBus: EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 1000,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "kestrel",
		},
	}
}

// ProConfig returns a configuration for Pro tier.
func ProConfig() *Config {
	cfg := DefaultConfig()
	cfg.Tier = TierPro
	cfg.Repository = RepositoryConfig{
		Driver:       "postgres",
		PostgresHost: "localhost",
		PostgresPort: 5432,
		PostgresDB:   "kestrel",
	}
	cfg.Cache = CacheConfig{
		Type:           "redis",
		RedisAddr:      "localhost:6379",
		EnableTwoPhase: true,
		LocalMaxSize:   1000,
	}
	cfg.EventBus = EventBusConfig{
		Type:              "nats",
		NATSUrl:           "nats://localhost:4222",
		NATSMaxReconnects: 10,
		NATSReconnectWait: 5,
	}
	cfg.Tracing.Enabled = true
	return cfg
}

// LoadFile overlays a YAML config file onto cfg. Missing file is not an
// error when optional is true.
func (c *Config) LoadFile(path string, optional bool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if optional && os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// Validate checks pipeline configuration before a run is accepted.
func (c *Config) Validate() error {
	if c.Pipeline.K < 2 {
		return fmt.Errorf("%w: cluster count k must be >= 2, got %d", ErrInvalidInput, c.Pipeline.K)
	}
	if c.Pipeline.WoEBins < 2 {
		return fmt.Errorf("%w: woeBins must be >= 2, got %d", ErrInvalidInput, c.Pipeline.WoEBins)
	}
	if c.Pipeline.IVThreshold < 0 {
		return fmt.Errorf("%w: ivThreshold must be >= 0", ErrInvalidInput)
	}
	return nil
}
