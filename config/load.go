package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/candelahq/trellis/errors"
)

// Load reads the configuration: defaults, then the first config file found
// (./trellis.toml, then the user config directory), then TRELLIS_-prefixed
// environment variables. Dots in keys map to underscores in env names, so
// scheduler.poll_interval_seconds reads TRELLIS_SCHEDULER_POLL_INTERVAL_SECONDS.
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("TRELLIS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if path := findConfigFile(); path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "failed to read config file %s", path)
		}
	}

	return unmarshal(v)
}

// LoadFromFile reads configuration from an explicit path, with defaults
// but without environment overrides. Used by tests and --config.
func LoadFromFile(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrapf(err, "failed to read config file %s", path)
	}
	return unmarshal(v)
}

func unmarshal(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// findConfigFile returns the first config file that exists: a project-local
// trellis.toml in the working directory or any parent, then the user-level
// config. Empty when none exists (defaults plus env apply).
func findConfigFile() string {
	dir, err := os.Getwd()
	if err == nil {
		for {
			candidate := filepath.Join(dir, "trellis.toml")
			if _, err := os.Stat(candidate); err == nil {
				return candidate
			}
			parent := filepath.Dir(dir)
			if parent == dir {
				break
			}
			dir = parent
		}
	}

	userPath := DefaultConfigPath()
	if _, err := os.Stat(userPath); err == nil {
		return userPath
	}
	return ""
}
