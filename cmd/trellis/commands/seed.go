package commands

import (
	"context"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/candelahq/trellis/errors"
	"github.com/candelahq/trellis/logger"
	"github.com/candelahq/trellis/seed"
	"github.com/candelahq/trellis/store"
)

// SeedCmd installs the bundled demo flow definitions
var SeedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Install the bundled demo flow definitions",
	Long: `Install the bundled demo flows into the database.

Three demo projects ship with trellis: the Prototype onboarding flow,
the iBuy purchase flow and the Long-term Demo. Seeding is idempotent;
projects that already exist are left untouched. A project row without
nodes is reported as an error so a half-deleted project cannot sit
silently empty.`,
	RunE: runSeed,
}

var (
	seedDBPath  string
	seedProject string
)

func init() {
	SeedCmd.Flags().StringVar(&seedDBPath, "db-path", "", "Custom database path (overrides config)")
	SeedCmd.Flags().StringVar(&seedProject, "project", "", "Seed only the named demo project")
}

func runSeed(cmd *cobra.Command, args []string) error {
	database, err := openDatabase(cmd, seedDBPath)
	if err != nil {
		return err
	}
	defer database.Close()

	ctx := context.Background()
	s := store.New(database, logger.ComponentLogger("store"))

	if seedProject != "" {
		if err := seed.EnsureProject(ctx, s, seedProject); err != nil {
			return errors.Wrapf(err, "failed to seed project %q", seedProject)
		}
	} else if err := seed.EnsureDemoProjects(ctx, s); err != nil {
		return errors.Wrap(err, "failed to seed demo flows")
	}

	projects, err := s.ListProjects(ctx)
	if err != nil {
		return err
	}
	for _, p := range projects {
		nodes, err := s.CountNodes(ctx, p.ID)
		if err != nil {
			return err
		}
		pterm.Success.Printf("%s (%d nodes)\n", p.Name, nodes)
	}
	return nil
}
