package config

import (
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"

	"github.com/candelahq/trellis/errors"
)

// Save writes the configuration as TOML, creating the parent directory
// when needed. The daemon's config watcher is told about the write first
// so the save does not trigger a reload of itself.
func Save(cfg *Config, path string) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return errors.Wrap(err, "failed to create config directory")
		}
	}

	raw, err := toml.Marshal(cfg)
	if err != nil {
		return errors.Wrap(err, "failed to marshal config")
	}

	if w := GetGlobalWatcher(); w != nil {
		w.MarkOwnWrite()
	}

	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return errors.Wrap(err, "failed to write config file")
	}
	return nil
}
