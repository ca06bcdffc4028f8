// Package config loads the orchestrator's tunables from an optional YAML
// file plus environment variable overrides, following the same
// file-then-env layering the rest of the stack uses for its services.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ServerConfig controls the ops-only health/metrics HTTP surface.
type ServerConfig struct {
	Host string `json:"host" yaml:"host" env:"SERVER_HOST"`
	Port int    `json:"port" yaml:"port" env:"SERVER_PORT"`
}

// DatabaseConfig controls the persistence backend. Driver "memory" uses
// the in-process store; "postgres" dials DSN.
type DatabaseConfig struct {
	Driver          string `json:"driver" yaml:"driver" env:"DATABASE_DRIVER"`
	DSN             string `json:"dsn" yaml:"dsn" env:"DATABASE_DSN"`
	MaxOpenConns    int    `json:"max_open_conns" yaml:"max_open_conns" env:"DATABASE_MAX_OPEN_CONNS"`
	MaxIdleConns    int    `json:"max_idle_conns" yaml:"max_idle_conns" env:"DATABASE_MAX_IDLE_CONNS"`
	ConnMaxLifetime int    `json:"conn_max_lifetime" yaml:"conn_max_lifetime" env:"DATABASE_CONN_MAX_LIFETIME"`
}

// CacheConfig controls the ephemeral snapshot/checkpoint store. Driver
// "memory" uses the in-process map; "redis" dials Addr.
type CacheConfig struct {
	Driver string `json:"driver" yaml:"driver" env:"CACHE_DRIVER"`
	Addr   string `json:"addr" yaml:"addr" env:"CACHE_REDIS_ADDR"`
}

// LoggingConfig controls application logging.
type LoggingConfig struct {
	Level      string `json:"level" yaml:"level" env:"LOG_LEVEL"`
	Format     string `json:"format" yaml:"format" env:"LOG_FORMAT"`
	Output     string `json:"output" yaml:"output" env:"LOG_OUTPUT"`
	FilePrefix string `json:"file_prefix" yaml:"file_prefix" env:"LOG_FILE_PREFIX"`
}

// OrchestrationConfig holds every tunable named in the orchestration
// design's options table.
type OrchestrationConfig struct {
	MaxConcurrentRegistrations     int   `json:"max_concurrent_registrations" yaml:"max_concurrent_registrations" env:"ORC_MAX_CONCURRENT_REGISTRATIONS"`
	MaxRetryAttempts               int   `json:"max_retry_attempts" yaml:"max_retry_attempts" env:"ORC_MAX_RETRY_ATTEMPTS"`
	RetryBackoffSeconds            []int `json:"retry_backoff_seconds" yaml:"retry_backoff_seconds" env:"ORC_RETRY_BACKOFF_SECONDS"`
	PlatformCallTimeoutSeconds     int   `json:"platform_call_timeout_seconds" yaml:"platform_call_timeout_seconds" env:"ORC_PLATFORM_CALL_TIMEOUT_SECONDS"`
	ProgressTickMinIntervalSeconds int   `json:"progress_tick_min_interval_seconds" yaml:"progress_tick_min_interval_seconds" env:"ORC_PROGRESS_TICK_MIN_INTERVAL_SECONDS"`
	SnapshotTTLDays                int   `json:"snapshot_ttl_days" yaml:"snapshot_ttl_days" env:"ORC_SNAPSHOT_TTL_DAYS"`
	CheckpointTTLDays              int   `json:"checkpoint_ttl_days" yaml:"checkpoint_ttl_days" env:"ORC_CHECKPOINT_TTL_DAYS"`
	RecoveryStaleThresholdMinutes  int   `json:"recovery_stale_threshold_minutes" yaml:"recovery_stale_threshold_minutes" env:"ORC_RECOVERY_STALE_THRESHOLD_MINUTES"`
	ProgressHistoryPoints          int   `json:"progress_history_points" yaml:"progress_history_points" env:"ORC_PROGRESS_HISTORY_POINTS"`
	ProgressRatePoints             int   `json:"progress_rate_points" yaml:"progress_rate_points" env:"ORC_PROGRESS_RATE_POINTS"`
}

// Config is the top-level configuration structure.
type Config struct {
	Server        ServerConfig        `json:"server" yaml:"server"`
	Database      DatabaseConfig      `json:"database" yaml:"database"`
	Cache         CacheConfig         `json:"cache" yaml:"cache"`
	Logging       LoggingConfig       `json:"logging" yaml:"logging"`
	Orchestration OrchestrationConfig `json:"orchestration" yaml:"orchestration"`
}

// New returns a configuration populated with the defaults from the
// orchestration design's options table.
func New() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Database: DatabaseConfig{
			Driver:          "memory",
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: 300,
		},
		Cache: CacheConfig{
			Driver: "memory",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			Output:     "stdout",
			FilePrefix: "orchestrator",
		},
		Orchestration: OrchestrationConfig{
			MaxConcurrentRegistrations:     10,
			MaxRetryAttempts:               4,
			RetryBackoffSeconds:            []int{30, 60, 120, 300},
			PlatformCallTimeoutSeconds:     30,
			ProgressTickMinIntervalSeconds: 5,
			SnapshotTTLDays:                7,
			CheckpointTTLDays:              3,
			RecoveryStaleThresholdMinutes:  60,
			ProgressHistoryPoints:          100,
			ProgressRatePoints:             20,
		},
	}
}

// Load loads configuration from an optional YAML file (configs/config.yaml,
// or the path named by CONFIG_FILE) and layers environment variable
// overrides on top.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := New()

	path := strings.TrimSpace(os.Getenv("CONFIG_FILE"))
	if path == "" {
		path = "configs/config.yaml"
	}
	if err := loadFromFile(path, cfg); err != nil {
		return nil, err
	}

	if err := envdecode.Decode(cfg); err != nil {
		// envdecode errors when no tagged fields are present in the
		// environment; treat that as "no overrides" so local runs work
		// without exporting vars.
		if !strings.Contains(err.Error(), "none of the target fields were set") {
			return nil, fmt.Errorf("decode env: %w", err)
		}
	}

	if dsn := strings.TrimSpace(os.Getenv("DATABASE_URL")); dsn != "" {
		cfg.Database.DSN = dsn
	}

	return cfg, nil
}

func loadFromFile(path string, cfg *Config) error {
	expanded, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(expanded)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return yaml.Unmarshal(data, cfg)
}
