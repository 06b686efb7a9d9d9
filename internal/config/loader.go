package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Config holds runtime parameters for the bootstrap controller and the
// service it launches. Zero values mean "unspecified" and are replaced by
// Defaults() during Resolve.
type Config struct {
	Host      string `json:"host" yaml:"host" toml:"host"`
	Port      int    `json:"port" yaml:"port" toml:"port"`
	LogLevel  string `json:"log_level" yaml:"log_level" toml:"log_level"`
	LogFormat string `json:"log_format" yaml:"log_format" toml:"log_format"`
	// Device overrides hardware detection: auto|cpu|accelerated.
	Device    string `json:"device" yaml:"device" toml:"device"`
	CachePath string `json:"cache_path" yaml:"cache_path" toml:"cache_path"`
	DataRoot  string `json:"data_root" yaml:"data_root" toml:"data_root"`

	ServiceUser    string   `json:"service_user" yaml:"service_user" toml:"service_user"`
	ServiceCommand []string `json:"service_command" yaml:"service_command" toml:"service_command"`
	WarmupCommand  []string `json:"warmup_command" yaml:"warmup_command" toml:"warmup_command"`

	WarmupTimeoutSeconds int     `json:"warmup_timeout_seconds" yaml:"warmup_timeout_seconds" toml:"warmup_timeout_seconds"`
	ProbeTimeoutSeconds  int     `json:"probe_timeout_seconds" yaml:"probe_timeout_seconds" toml:"probe_timeout_seconds"`
	MemoryThresholdGB    float64 `json:"memory_threshold_gb" yaml:"memory_threshold_gb" toml:"memory_threshold_gb"`

	StatusAddr        string   `json:"status_addr" yaml:"status_addr" toml:"status_addr"`
	StatusCORSOrigins []string `json:"status_cors_origins" yaml:"status_cors_origins" toml:"status_cors_origins"`
	HealthPath        string   `json:"health_path" yaml:"health_path" toml:"health_path"`
}

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
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	case ".json":
		if err := json.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	case ".toml":
		if err := toml.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	default:
		return cfg, fmt.Errorf("unsupported config extension: %s", ext)
	}
	return cfg, nil
}
