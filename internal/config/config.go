package config

// Package config handles configuration loading for StockPulse.
// It supports YAML config files with environment variable overrides.

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config represents the complete application configuration.
type Config struct {
	Store    StoreConfig    `mapstructure:"store"    yaml:"store"`
	Pipeline PipelineConfig `mapstructure:"pipeline" yaml:"pipeline"`
	API      APIConfig      `mapstructure:"api"      yaml:"api"`
	Logging  LoggingConfig  `mapstructure:"logging"  yaml:"logging"`
}

// StoreConfig selects and configures the persistence backends. The metadata
// store is always SQLite; the time-series backend is either the same SQLite
// database or an S3-compatible object store.
type StoreConfig struct {
	// Timeseries is "sqlite" or "s3".
	Timeseries string   `mapstructure:"timeseries"  yaml:"timeseries"`
	SQLitePath string   `mapstructure:"sqlite_path" yaml:"sqlite_path"`
	S3         S3Config `mapstructure:"s3"          yaml:"s3"`
}

// S3Config holds the object-store settings. Endpoint is non-empty for
// S3-compatible providers such as Cloudflare R2; credentials come from the
// standard AWS environment variables or shared config.
type S3Config struct {
	Bucket     string `mapstructure:"bucket"       yaml:"bucket"`
	Region     string `mapstructure:"region"       yaml:"region"`
	Endpoint   string `mapstructure:"endpoint"     yaml:"endpoint"`
	RatePerSec int    `mapstructure:"rate_per_sec" yaml:"rate_per_sec"`
}

// PipelineConfig holds batch-run settings.
type PipelineConfig struct {
	Workers        int    `mapstructure:"workers"         yaml:"workers"`
	DailySchedule  string `mapstructure:"daily_schedule"  yaml:"daily_schedule"`
	WeeklySchedule string `mapstructure:"weekly_schedule" yaml:"weekly_schedule"`
}

// APIConfig holds HTTP server settings.
type APIConfig struct {
	Host        string   `mapstructure:"host"         yaml:"host"`
	Port        int      `mapstructure:"port"         yaml:"port"`
	CORSOrigins []string `mapstructure:"cors_origins" yaml:"cors_origins"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"  yaml:"level"`  // "debug", "info", "warn", "error"
	Format string `mapstructure:"format" yaml:"format"` // "text" or "json"
}

// Load reads the configuration from file and environment variables.
// Config file search order:
//  1. ./config/config.yaml (project root)
//  2. ~/.stockpulse/config.yaml (home directory)
//  3. /etc/stockpulse/config.yaml (system)
//
// Environment variables override config file values.
// Format: STOCKPULSE_<SECTION>_<KEY>, e.g., STOCKPULSE_STORE_SQLITE_PATH
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./config")
	v.AddConfigPath(filepath.Join(homeDir(), ".stockpulse"))
	v.AddConfigPath("/etc/stockpulse")

	v.SetEnvPrefix("STOCKPULSE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file (not required to exist)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found — that's fine, use defaults + env vars
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	return &cfg, nil
}

// LoadFromFile reads configuration from a specific file path.
func LoadFromFile(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(path)
	v.SetEnvPrefix("STOCKPULSE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file %s: %w", path, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	return &cfg, nil
}

// setDefaults sets sensible defaults for all config values.
func setDefaults(v *viper.Viper) {
	// Store defaults: everything in one local SQLite file.
	v.SetDefault("store.timeseries", "sqlite")
	v.SetDefault("store.sqlite_path", filepath.Join(homeDir(), ".stockpulse", "stockpulse.db"))
	v.SetDefault("store.s3.region", "auto")
	v.SetDefault("store.s3.rate_per_sec", 50)

	// Pipeline defaults: weekday evenings after the US close, Sunday stats.
	v.SetDefault("pipeline.workers", 8)
	v.SetDefault("pipeline.daily_schedule", "30 22 * * MON-FRI")
	v.SetDefault("pipeline.weekly_schedule", "0 8 * * SUN")

	// API defaults
	v.SetDefault("api.host", "0.0.0.0")
	v.SetDefault("api.port", 8080)
	v.SetDefault("api.cors_origins", []string{"http://localhost:3000"})

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
}

// homeDir returns the user's home directory.
func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
