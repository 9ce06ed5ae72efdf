package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Config holds runtime parameters for the daemon.
// Zero values mean "unspecified" and are replaced by ApplyDefaults.
type Config struct {
	Addr       string   `json:"addr" yaml:"addr" toml:"addr"`
	ModelsDirs []string `json:"models_dirs" yaml:"models_dirs" toml:"models_dirs"`
	StorePath  string   `json:"store_path" yaml:"store_path" toml:"store_path"`
	LogLevel   string   `json:"log_level" yaml:"log_level" toml:"log_level"`

	MaxConcurrentModels            int     `json:"max_concurrent_models" yaml:"max_concurrent_models" toml:"max_concurrent_models"`
	MemoryWarningThresholdPercent  float64 `json:"memory_warning_threshold_percent" yaml:"memory_warning_threshold_percent" toml:"memory_warning_threshold_percent"`
	MemoryCriticalThresholdPercent float64 `json:"memory_critical_threshold_percent" yaml:"memory_critical_threshold_percent" toml:"memory_critical_threshold_percent"`
	CacheSizeBytes                 int64   `json:"cache_size_bytes" yaml:"cache_size_bytes" toml:"cache_size_bytes"`
	AutoUnloadTimeoutMinutes       int     `json:"auto_unload_timeout_minutes" yaml:"auto_unload_timeout_minutes" toml:"auto_unload_timeout_minutes"`
	MemoryCheckIntervalMs          int     `json:"memory_check_interval_ms" yaml:"memory_check_interval_ms" toml:"memory_check_interval_ms"`
	FallbackModelID                string  `json:"fallback_model_id" yaml:"fallback_model_id" toml:"fallback_model_id"`
	EnableTelemetry                bool    `json:"enable_telemetry" yaml:"enable_telemetry" toml:"enable_telemetry"`
}

// Defaults applied when corresponding fields are unset.
const (
	DefaultAddr                     = ":8090"
	DefaultStorePath                = "modelhost.db"
	DefaultLogLevel                 = "info"
	DefaultMaxConcurrentModels      = 3
	DefaultWarningThresholdPercent  = 80.0
	DefaultCriticalThresholdPercent = 95.0
	DefaultCacheSizeBytes           = 64 << 20
	DefaultAutoUnloadTimeoutMin     = 30
	DefaultMemoryCheckIntervalMs    = 5000
)

// Load reads a configuration file based on its extension.
// Supports: .yaml/.yml, .json, .toml
func Load(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, fmt.Errorf("empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".json":
		if err := json.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".toml":
		if err := toml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	default:
		return cfg, fmt.Errorf("unsupported config extension: %s", ext)
	}
	return cfg, nil
}

// ApplyDefaults fills unset fields and returns the resulting config.
func (c Config) ApplyDefaults() Config {
	if c.Addr == "" {
		c.Addr = DefaultAddr
	}
	if c.StorePath == "" {
		c.StorePath = DefaultStorePath
	}
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
	if c.MaxConcurrentModels <= 0 {
		c.MaxConcurrentModels = DefaultMaxConcurrentModels
	}
	if c.MemoryWarningThresholdPercent <= 0 {
		c.MemoryWarningThresholdPercent = DefaultWarningThresholdPercent
	}
	if c.MemoryCriticalThresholdPercent <= 0 {
		c.MemoryCriticalThresholdPercent = DefaultCriticalThresholdPercent
	}
	if c.CacheSizeBytes <= 0 {
		c.CacheSizeBytes = DefaultCacheSizeBytes
	}
	if c.AutoUnloadTimeoutMinutes <= 0 {
		c.AutoUnloadTimeoutMinutes = DefaultAutoUnloadTimeoutMin
	}
	if c.MemoryCheckIntervalMs <= 0 {
		c.MemoryCheckIntervalMs = DefaultMemoryCheckIntervalMs
	}
	return c
}

// Validate rejects configurations that cannot work.
func (c Config) Validate() error {
	if c.MemoryWarningThresholdPercent >= c.MemoryCriticalThresholdPercent {
		return fmt.Errorf("memory_warning_threshold_percent (%.1f) must be below memory_critical_threshold_percent (%.1f)",
			c.MemoryWarningThresholdPercent, c.MemoryCriticalThresholdPercent)
	}
	if c.MemoryCriticalThresholdPercent > 100 {
		return fmt.Errorf("memory_critical_threshold_percent (%.1f) must be <= 100", c.MemoryCriticalThresholdPercent)
	}
	return nil
}

// AutoUnloadTimeout returns the idle timeout as a duration.
func (c Config) AutoUnloadTimeout() time.Duration {
	return time.Duration(c.AutoUnloadTimeoutMinutes) * time.Minute
}

// MemoryCheckInterval returns the resource sampling interval as a duration.
func (c Config) MemoryCheckInterval() time.Duration {
	return time.Duration(c.MemoryCheckIntervalMs) * time.Millisecond
}
