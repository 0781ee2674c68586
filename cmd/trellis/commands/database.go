package commands

import (
	"database/sql"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/candelahq/trellis/config"
	"github.com/candelahq/trellis/db"
	"github.com/candelahq/trellis/errors"
	"github.com/candelahq/trellis/logger"
)

// loadConfig reads the configuration, honoring the persistent --config flag
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	if path != "" {
		return config.LoadFromFile(path)
	}
	return config.Load()
}

// openDatabase opens and migrates the database at the configured path.
// An explicit dbPath overrides the configuration.
func openDatabase(cmd *cobra.Command, dbPath string) (*sql.DB, error) {
	if dbPath == "" {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return nil, errors.Wrap(err, "failed to load configuration")
		}
		dbPath = cfg.Database.Path
	}

	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.Wrapf(err, "failed to create database directory %s", dir)
		}
	}

	database, err := db.OpenWithMigrations(dbPath, logger.Logger)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open database at %s", dbPath)
	}
	return database, nil
}
