package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/candelahq/trellis/cmd/trellis/commands"
	"github.com/candelahq/trellis/logger"
)

var rootCmd = &cobra.Command{
	Use:   "trellis",
	Short: "Trellis - conversational flow engine",
	Long: `Trellis - protocol execution core for conversational messaging flows.

Trellis stores flow definitions (nodes, templates, variables, keywords),
enrolls participants, evaluates inbound answers against branch conditions
and fires scheduled nodes through a durable job queue.

Available commands:
  serve    - Start the API server and job scheduler
  migrate  - Apply pending database migrations
  seed     - Install the bundled demo flow definitions
  db       - Database statistics and diagnostics
  projects - Inspect installed flow definitions
  config   - Show or initialize configuration
  version  - Show version information

Examples:
  trellis serve                # Run the daemon in the foreground
  trellis seed                 # Install demo flows into the database
  trellis projects ls          # List installed projects
  trellis db stats             # Show database statistics`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		jsonLogs, _ := cmd.Flags().GetBool("json-logs")
		if err := logger.Initialize(jsonLogs); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "Path to config file (overrides discovery)")
	rootCmd.PersistentFlags().Bool("json-logs", false, "Emit logs as JSON instead of console output")

	rootCmd.AddCommand(commands.ServeCmd)
	rootCmd.AddCommand(commands.MigrateCmd)
	rootCmd.AddCommand(commands.SeedCmd)
	rootCmd.AddCommand(commands.DbCmd)
	rootCmd.AddCommand(commands.ProjectsCmd)
	rootCmd.AddCommand(commands.ConfigCmd)
	rootCmd.AddCommand(commands.VersionCmd)
}

func main() {
	defer logger.Sync()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
