package commands

import (
	"context"
	"fmt"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/candelahq/trellis/errors"
	"github.com/candelahq/trellis/flow"
	"github.com/candelahq/trellis/logger"
	"github.com/candelahq/trellis/scheduler"
	"github.com/candelahq/trellis/store"
)

// DbCmd groups database operations
var DbCmd = &cobra.Command{
	Use:   "db",
	Short: "Manage the trellis database",
	Long: `Manage database operations: statistics and diagnostics.

Examples:
  trellis db stats             # Show row counts and job queue state`,
}

var dbStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show database statistics",
	Long:  "Display row counts per table, participant and job queue state, and process memory",
	RunE:  runDbStats,
}

var dbStatsDBPath string

func init() {
	DbCmd.AddCommand(dbStatsCmd)
	dbStatsCmd.Flags().StringVar(&dbStatsDBPath, "db-path", "", "Custom database path (overrides config)")
}

func runDbStats(cmd *cobra.Command, args []string) error {
	database, err := openDatabase(cmd, dbStatsDBPath)
	if err != nil {
		return err
	}
	defer database.Close()

	ctx := context.Background()
	s := store.New(database, logger.ComponentLogger("store"))

	var projects, nodes, templates, variables, keywords int
	row := database.QueryRow(`
		SELECT
			(SELECT COUNT(*) FROM projects),
			(SELECT COUNT(*) FROM nodes),
			(SELECT COUNT(*) FROM message_templates),
			(SELECT COUNT(*) FROM variables),
			(SELECT COUNT(*) FROM keywords)`)
	if err := row.Scan(&projects, &nodes, &templates, &variables, &keywords); err != nil {
		return errors.Wrap(err, "failed to query definition counts")
	}

	var activeParticipants, inactiveParticipants, messages int
	row = database.QueryRow(`
		SELECT
			(SELECT COUNT(*) FROM participants WHERE status = ?),
			(SELECT COUNT(*) FROM participants WHERE status = ?),
			(SELECT COUNT(*) FROM participant_messages)`,
		flow.ParticipantStatusActive, flow.ParticipantStatusInactive)
	if err := row.Scan(&activeParticipants, &inactiveParticipants, &messages); err != nil {
		return errors.Wrap(err, "failed to query participant counts")
	}

	jobCounts, err := s.CountJobsByStatus(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to count jobs")
	}

	pterm.DefaultSection.Println("Definitions")
	if err := pterm.DefaultTable.WithData(pterm.TableData{
		{"Projects", fmt.Sprint(projects)},
		{"Nodes", fmt.Sprint(nodes)},
		{"Templates", fmt.Sprint(templates)},
		{"Variables", fmt.Sprint(variables)},
		{"Keywords", fmt.Sprint(keywords)},
	}).Render(); err != nil {
		return err
	}

	pterm.DefaultSection.Println("Participants")
	if err := pterm.DefaultTable.WithData(pterm.TableData{
		{"Active", fmt.Sprint(activeParticipants)},
		{"Inactive", fmt.Sprint(inactiveParticipants)},
		{"Messages", fmt.Sprint(messages)},
	}).Render(); err != nil {
		return err
	}

	pterm.DefaultSection.Println("Job queue")
	tableData := pterm.TableData{
		{"Pending", fmt.Sprint(jobCounts[flow.JobStatusPending])},
		{"Running", fmt.Sprint(jobCounts[flow.JobStatusRunning])},
		{"Done", fmt.Sprint(jobCounts[flow.JobStatusDone])},
		{"Cancelled", fmt.Sprint(jobCounts[flow.JobStatusCancelled])},
	}
	if next, err := s.NextPendingRunAt(ctx); err == nil && next != nil {
		tableData = append(tableData, []string{"Next due", next.Format("2006-01-02 15:04:05 MST")})
	}
	if err := pterm.DefaultTable.WithData(tableData).Render(); err != nil {
		return err
	}

	if mem, err := scheduler.GetMemoryStats(); err == nil {
		pterm.Info.Printf("Memory: %.1f/%.1f GB (%.0f%%)\n", mem.UsedGB, mem.TotalGB, mem.UsedPercent)
	}
	return nil
}
