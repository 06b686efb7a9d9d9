package config

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// RegisterFlags declares one flag per configuration key. Defaults are left
// empty so that unset flags fall through to env, file and built-in values.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String(flagName(KeyHost), "", "address the service binds (HOST)")
	fs.Int(flagName(KeyPort), 0, "port the service binds (PORT)")
	fs.String(flagName(KeyLogLevel), "", "trace|debug|info|warn|error|critical|off (LOG_LEVEL)")
	fs.String(flagName(KeyLogFormat), "", "json|console")
	fs.String(flagName(KeyDevice), "", "auto|cpu|accelerated (DEVICE)")
	fs.String(flagName(KeyCachePath), "", "model cache directory (TTS_CACHE_PATH)")
	fs.String(flagName(KeyDataRoot), "", "root for uploads, outputs, voice_embeddings, logs and cache")
	fs.String(flagName(KeyServiceUser), "", "unprivileged account to switch to when started as root")
	fs.StringSlice(flagName(KeyServiceCommand), nil, "service argv; {host} {port} {log_level} {device} are expanded")
	fs.StringSlice(flagName(KeyWarmupCommand), nil, "warm-up argv")
	fs.Int(flagName(KeyWarmupTimeout), 0, "warm-up timeout in seconds")
	fs.Int(flagName(KeyProbeTimeout), 0, "accelerator probe timeout in seconds")
	fs.Float64(flagName(KeyMemoryThreshold), 0, "memory advisory threshold in GB")
	fs.String(flagName(KeyStatusAddr), "", "listen address for the status server (disabled when empty)")
	fs.StringSlice(flagName(KeyStatusCORSOrigins), nil, "allowed CORS origins for the status server")
	fs.String(flagName(KeyHealthPath), "", "health endpoint path of the launched service")
}

// BindFlags attaches every flag declared by RegisterFlags to v.
func BindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	for key := range envNames {
		f := fs.Lookup(flagName(key))
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("bind flag %s: %w", f.Name, err)
		}
	}
	return nil
}

func flagName(key string) string { return strings.ReplaceAll(key, "_", "-") }
