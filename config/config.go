// Package config loads and persists the trellis configuration: a TOML
// file layered under TRELLIS_-prefixed environment variables, with live
// reload through a file watcher.
package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	"github.com/candelahq/trellis/errors"
)

// Config is the full trellis configuration
type Config struct {
	Database  DatabaseConfig  `mapstructure:"database" toml:"database" yaml:"database"`
	Server    ServerConfig    `mapstructure:"server" toml:"server" yaml:"server"`
	Scheduler SchedulerConfig `mapstructure:"scheduler" toml:"scheduler" yaml:"scheduler"`
	Log       LogConfig       `mapstructure:"log" toml:"log" yaml:"log"`
}

// DatabaseConfig configures the SQLite database
type DatabaseConfig struct {
	Path string `mapstructure:"path" toml:"path" yaml:"path"`
}

// ServerConfig configures the HTTP API server
type ServerConfig struct {
	Host string `mapstructure:"host" toml:"host" yaml:"host"`
	Port int    `mapstructure:"port" toml:"port" yaml:"port"`
}

// SchedulerConfig configures the job poller.
// PollIntervalSeconds is floored at 1; MaxSendsPerMinute 0 means unlimited.
type SchedulerConfig struct {
	PollIntervalSeconds int `mapstructure:"poll_interval_seconds" toml:"poll_interval_seconds" yaml:"poll_interval_seconds"`
	BatchSize           int `mapstructure:"batch_size" toml:"batch_size" yaml:"batch_size"`
	MaxSendsPerMinute   int `mapstructure:"max_sends_per_minute" toml:"max_sends_per_minute" yaml:"max_sends_per_minute"`
}

// LogConfig configures log output
type LogConfig struct {
	JSON bool `mapstructure:"json" toml:"json" yaml:"json"`
}

// PollInterval returns the scheduler tick interval with the floor applied
func (c *SchedulerConfig) PollInterval() time.Duration {
	seconds := c.PollIntervalSeconds
	if seconds < 1 {
		seconds = 1
	}
	return time.Duration(seconds) * time.Second
}

// setDefaults seeds viper with the default configuration
func setDefaults(v *viper.Viper) {
	v.SetDefault("database.path", defaultDatabasePath())
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 8714)
	v.SetDefault("scheduler.poll_interval_seconds", 1)
	v.SetDefault("scheduler.batch_size", 50)
	v.SetDefault("scheduler.max_sends_per_minute", 0)
	v.SetDefault("log.json", false)
}

// defaultDatabasePath places the database under the user config directory,
// falling back to the working directory.
func defaultDatabasePath() string {
	base, err := os.UserConfigDir()
	if err != nil {
		return "trellis.db"
	}
	return filepath.Join(base, "trellis", "trellis.db")
}

// DefaultConfigPath is where `config init` writes and Load looks first
func DefaultConfigPath() string {
	base, err := os.UserConfigDir()
	if err != nil {
		return "trellis.toml"
	}
	return filepath.Join(base, "trellis", "config.toml")
}

// Validate rejects configurations the daemon cannot run with
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return errors.NewInvalidRequestError("database.path must not be empty")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return errors.NewInvalidRequestError("server.port %d out of range", c.Server.Port)
	}
	if c.Scheduler.BatchSize <= 0 {
		return errors.NewInvalidRequestError("scheduler.batch_size must be positive")
	}
	if c.Scheduler.MaxSendsPerMinute < 0 {
		return errors.NewInvalidRequestError("scheduler.max_sends_per_minute must not be negative")
	}
	return nil
}
