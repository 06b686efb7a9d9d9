package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/mattn/go-shellwords"
	"github.com/spf13/viper"

	"voiced/internal/common/fsutil"
	"voiced/internal/logging"
)

// Viper keys. Flags bound with BindFlags use the same names with '_'
// replaced by '-'.
const (
	KeyHost              = "host"
	KeyPort              = "port"
	KeyLogLevel          = "log_level"
	KeyLogFormat         = "log_format"
	KeyDevice            = "device"
	KeyCachePath         = "cache_path"
	KeyDataRoot          = "data_root"
	KeyServiceUser       = "service_user"
	KeyServiceCommand    = "service_command"
	KeyWarmupCommand     = "warmup_command"
	KeyWarmupTimeout     = "warmup_timeout_seconds"
	KeyProbeTimeout      = "probe_timeout_seconds"
	KeyMemoryThreshold   = "memory_threshold_gb"
	KeyStatusAddr        = "status_addr"
	KeyStatusCORSOrigins = "status_cors_origins"
	KeyHealthPath        = "health_path"
)

// envNames lists the environment variables consulted for each key, in
// order. The bare names are the ones the container image documents.
var envNames = map[string][]string{
	KeyHost:              {"HOST", "VOICED_HOST"},
	KeyPort:              {"PORT", "VOICED_PORT"},
	KeyLogLevel:          {"LOG_LEVEL", "VOICED_LOG_LEVEL"},
	KeyLogFormat:         {"LOG_FORMAT", "VOICED_LOG_FORMAT"},
	KeyDevice:            {"DEVICE", "VOICED_DEVICE"},
	KeyCachePath:         {"TTS_CACHE_PATH", "VOICED_CACHE_PATH"},
	KeyDataRoot:          {"VOICED_DATA_ROOT"},
	KeyServiceUser:       {"VOICED_SERVICE_USER"},
	KeyServiceCommand:    {"VOICED_SERVICE_COMMAND"},
	KeyWarmupCommand:     {"VOICED_WARMUP_COMMAND"},
	KeyWarmupTimeout:     {"VOICED_WARMUP_TIMEOUT_SECONDS"},
	KeyProbeTimeout:      {"VOICED_PROBE_TIMEOUT_SECONDS"},
	KeyMemoryThreshold:   {"VOICED_MEMORY_THRESHOLD_GB"},
	KeyStatusAddr:        {"VOICED_STATUS_ADDR"},
	KeyStatusCORSOrigins: {"VOICED_STATUS_CORS_ORIGINS"},
	KeyHealthPath:        {"VOICED_HEALTH_PATH"},
}

// Defaults returns the built-in configuration matching the container image.
func Defaults() Config {
	return Config{
		Host:      "0.0.0.0",
		Port:      8000,
		LogLevel:  "info",
		LogFormat: logging.FormatJSON,
		Device:    "auto",
		DataRoot:  "/app",
		// CachePath empty means <data_root>/cache.
		ServiceUser:          "appuser",
		ServiceCommand:       []string{"uvicorn", "app:app", "--host", "{host}", "--port", "{port}", "--log-level", "{log_level}"},
		WarmupCommand:        []string{"python", "-c", "from models.voice_cloner import VoiceCloner; VoiceCloner()"},
		WarmupTimeoutSeconds: 600,
		ProbeTimeoutSeconds:  5,
		MemoryThresholdGB:    4,
		HealthPath:           "/health",
	}
}

// Merge returns c with every zero-valued field taken from base.
func (c Config) Merge(base Config) Config {
	out := base
	if c.Host != "" {
		out.Host = c.Host
	}
	if c.Port != 0 {
		out.Port = c.Port
	}
	if c.LogLevel != "" {
		out.LogLevel = c.LogLevel
	}
	if c.LogFormat != "" {
		out.LogFormat = c.LogFormat
	}
	if c.Device != "" {
		out.Device = c.Device
	}
	if c.CachePath != "" {
		out.CachePath = c.CachePath
	}
	if c.DataRoot != "" {
		out.DataRoot = c.DataRoot
	}
	if c.ServiceUser != "" {
		out.ServiceUser = c.ServiceUser
	}
	if len(c.ServiceCommand) > 0 {
		out.ServiceCommand = c.ServiceCommand
	}
	if len(c.WarmupCommand) > 0 {
		out.WarmupCommand = c.WarmupCommand
	}
	if c.WarmupTimeoutSeconds != 0 {
		out.WarmupTimeoutSeconds = c.WarmupTimeoutSeconds
	}
	if c.ProbeTimeoutSeconds != 0 {
		out.ProbeTimeoutSeconds = c.ProbeTimeoutSeconds
	}
	if c.MemoryThresholdGB != 0 {
		out.MemoryThresholdGB = c.MemoryThresholdGB
	}
	if c.StatusAddr != "" {
		out.StatusAddr = c.StatusAddr
	}
	if len(c.StatusCORSOrigins) > 0 {
		out.StatusCORSOrigins = c.StatusCORSOrigins
	}
	if c.HealthPath != "" {
		out.HealthPath = c.HealthPath
	}
	return out
}

// LoadEnvFile loads KEY=VALUE pairs from path into the process environment
// without overriding variables that are already set.
func LoadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

// Resolve layers configuration sources with precedence
// flags > environment > file > defaults. Flags must already be bound on v
// (see BindFlags); file may be the zero Config.
func Resolve(v *viper.Viper, file Config) (Config, error) {
	base := file.Merge(Defaults())
	v.SetDefault(KeyHost, base.Host)
	v.SetDefault(KeyPort, base.Port)
	v.SetDefault(KeyLogLevel, base.LogLevel)
	v.SetDefault(KeyLogFormat, base.LogFormat)
	v.SetDefault(KeyDevice, base.Device)
	v.SetDefault(KeyCachePath, base.CachePath)
	v.SetDefault(KeyDataRoot, base.DataRoot)
	v.SetDefault(KeyServiceUser, base.ServiceUser)
	v.SetDefault(KeyServiceCommand, base.ServiceCommand)
	v.SetDefault(KeyWarmupCommand, base.WarmupCommand)
	v.SetDefault(KeyWarmupTimeout, base.WarmupTimeoutSeconds)
	v.SetDefault(KeyProbeTimeout, base.ProbeTimeoutSeconds)
	v.SetDefault(KeyMemoryThreshold, base.MemoryThresholdGB)
	v.SetDefault(KeyStatusAddr, base.StatusAddr)
	v.SetDefault(KeyStatusCORSOrigins, base.StatusCORSOrigins)
	v.SetDefault(KeyHealthPath, base.HealthPath)
	for key, names := range envNames {
		args := append([]string{key}, names...)
		if err := v.BindEnv(args...); err != nil {
			return Config{}, fmt.Errorf("bind env %s: %w", key, err)
		}
	}

	cfg := Config{
		Host:                 strings.TrimSpace(v.GetString(KeyHost)),
		Port:                 v.GetInt(KeyPort),
		LogLevel:             strings.TrimSpace(v.GetString(KeyLogLevel)),
		LogFormat:            strings.TrimSpace(v.GetString(KeyLogFormat)),
		Device:               strings.TrimSpace(v.GetString(KeyDevice)),
		CachePath:            strings.TrimSpace(v.GetString(KeyCachePath)),
		DataRoot:             strings.TrimSpace(v.GetString(KeyDataRoot)),
		ServiceUser:          strings.TrimSpace(v.GetString(KeyServiceUser)),
		WarmupTimeoutSeconds: v.GetInt(KeyWarmupTimeout),
		ProbeTimeoutSeconds:  v.GetInt(KeyProbeTimeout),
		MemoryThresholdGB:    v.GetFloat64(KeyMemoryThreshold),
		StatusAddr:           strings.TrimSpace(v.GetString(KeyStatusAddr)),
		StatusCORSOrigins:    splitList(v.GetStringSlice(KeyStatusCORSOrigins)),
		HealthPath:           strings.TrimSpace(v.GetString(KeyHealthPath)),
	}
	var err error
	if cfg.ServiceCommand, err = commandArgv(v, KeyServiceCommand); err != nil {
		return Config{}, err
	}
	if cfg.WarmupCommand, err = commandArgv(v, KeyWarmupCommand); err != nil {
		return Config{}, err
	}
	if cfg.DataRoot, err = fsutil.ExpandHome(cfg.DataRoot); err != nil {
		return Config{}, err
	}
	if cfg.CachePath, err = fsutil.ExpandHome(cfg.CachePath); err != nil {
		return Config{}, err
	}
	if cfg.CachePath == "" {
		cfg.CachePath = filepath.Join(cfg.DataRoot, "cache")
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports the first invalid field.
func (c Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range", c.Port)
	}
	if c.Host == "" {
		return errors.New("host is required")
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	switch strings.ToLower(c.Device) {
	case "auto", "cpu", "accelerated", "cuda", "gpu":
	default:
		return fmt.Errorf("device %q: want auto|cpu|accelerated", c.Device)
	}
	if c.DataRoot == "" {
		return errors.New("data_root is required")
	}
	if strings.TrimSpace(c.ServiceUser) == "" {
		return errors.New("service_user is required")
	}
	if len(c.ServiceCommand) == 0 {
		return errors.New("service_command is required")
	}
	if c.ProbeTimeoutSeconds <= 0 {
		return fmt.Errorf("probe_timeout_seconds must be positive, got %d", c.ProbeTimeoutSeconds)
	}
	if c.WarmupTimeoutSeconds < 0 {
		return fmt.Errorf("warmup_timeout_seconds must not be negative, got %d", c.WarmupTimeoutSeconds)
	}
	if c.MemoryThresholdGB <= 0 {
		return fmt.Errorf("memory_threshold_gb must be positive, got %v", c.MemoryThresholdGB)
	}
	if c.HealthPath == "" || !strings.HasPrefix(c.HealthPath, "/") {
		return fmt.Errorf("health_path %q must start with /", c.HealthPath)
	}
	return nil
}

// ProbeTimeout is the hardware probe bound.
func (c Config) ProbeTimeout() time.Duration {
	return time.Duration(c.ProbeTimeoutSeconds) * time.Second
}

// WarmupTimeout is the warm-up bound; zero selects the 10 minute default.
func (c Config) WarmupTimeout() time.Duration {
	return time.Duration(c.WarmupTimeoutSeconds) * time.Second
}

// commandArgv reads an argv-valued key. A plain string, as environment
// variables deliver it, is split with shell quoting rules so that
// `python -c "import x; x.load()"` keeps its quoted argument intact.
func commandArgv(v *viper.Viper, key string) ([]string, error) {
	s, ok := v.Get(key).(string)
	if !ok {
		return v.GetStringSlice(key), nil
	}
	argv, err := shellwords.Parse(s)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", key, err)
	}
	return argv, nil
}

// splitList flattens comma separated entries so env values like "a,b" and
// repeated flags resolve the same way.
func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}
