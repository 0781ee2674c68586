package commands

import (
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

// MigrateCmd applies pending database migrations
var MigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations",
	Long: `Open the configured database and apply any pending schema migrations.

Migrations are embedded in the binary and applied in lexical order; each
is recorded in schema_migrations so reruns are no-ops. The serve command
migrates on startup, so this is only needed for standalone upgrades.`,
	RunE: runMigrate,
}

var migrateDBPath string

func init() {
	MigrateCmd.Flags().StringVar(&migrateDBPath, "db-path", "", "Custom database path (overrides config)")
}

func runMigrate(cmd *cobra.Command, args []string) error {
	database, err := openDatabase(cmd, migrateDBPath)
	if err != nil {
		return err
	}
	defer database.Close()

	pterm.Success.Println("Database is up to date")
	return nil
}
