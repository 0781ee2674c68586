package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/candelahq/trellis/errors"
	"github.com/candelahq/trellis/flow"
	"github.com/candelahq/trellis/logger"
	"github.com/candelahq/trellis/store"
)

// ProjectsCmd inspects installed flow definitions
var ProjectsCmd = &cobra.Command{
	Use:   "projects",
	Short: "Inspect installed flow definitions",
	Long: `Inspect the flow definitions installed in the database.

Examples:
  trellis projects ls            # List all projects
  trellis projects show <id>     # Show a project's nodes and keywords`,
}

var projectsLsCmd = &cobra.Command{
	Use:     "ls",
	Aliases: []string{"list"},
	Short:   "List all projects",
	RunE:    runProjectsLs,
}

var projectsShowCmd = &cobra.Command{
	Use:   "show <project-id-or-name>",
	Short: "Show a project's nodes, templates and keywords",
	Args:  cobra.ExactArgs(1),
	RunE:  runProjectsShow,
}

var (
	projectsDBPath     string
	projectsShowFormat string
)

func init() {
	ProjectsCmd.AddCommand(projectsLsCmd)
	ProjectsCmd.AddCommand(projectsShowCmd)
	ProjectsCmd.PersistentFlags().StringVar(&projectsDBPath, "db-path", "", "Custom database path (overrides config)")
	projectsShowCmd.Flags().StringVar(&projectsShowFormat, "format", "table", "Output format: table, yaml or toml")
}

func runProjectsLs(cmd *cobra.Command, args []string) error {
	database, err := openDatabase(cmd, projectsDBPath)
	if err != nil {
		return err
	}
	defer database.Close()

	ctx := context.Background()
	s := store.New(database, logger.ComponentLogger("store"))

	projects, err := s.ListProjects(ctx)
	if err != nil {
		return err
	}
	if len(projects) == 0 {
		pterm.Info.Println("No projects installed. Run `trellis seed` to install the demo flows.")
		return nil
	}

	data := pterm.TableData{{"ID", "Name", "Status", "Nodes"}}
	for _, p := range projects {
		nodes, err := s.CountNodes(ctx, p.ID)
		if err != nil {
			return err
		}
		data = append(data, []string{p.ID, p.Name, string(p.Status), fmt.Sprint(nodes)})
	}
	return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
}

func runProjectsShow(cmd *cobra.Command, args []string) error {
	database, err := openDatabase(cmd, projectsDBPath)
	if err != nil {
		return err
	}
	defer database.Close()

	ctx := context.Background()
	s := store.New(database, logger.ComponentLogger("store"))

	project, err := resolveProject(ctx, s, args[0])
	if err != nil {
		return err
	}

	if projectsShowFormat != "table" {
		return dumpDefinition(ctx, s, project, projectsShowFormat)
	}

	pterm.DefaultSection.Printf("%s (%s)\n", project.Name, project.ID)
	if project.Description != "" {
		pterm.Info.Println(project.Description)
	}

	nodes, err := s.ListNodes(ctx, project.ID)
	if err != nil {
		return err
	}
	templates, err := s.ListMessageTemplates(ctx, project.ID)
	if err != nil {
		return err
	}
	templateNames := make(map[string]string, len(templates))
	for _, t := range templates {
		templateNames[t.ID] = t.Name
	}

	data := pterm.TableData{{"Node", "Activation", "Template", "Terminal"}}
	for i := range nodes {
		n := &nodes[i]
		terminal := ""
		if n.IsTerminal {
			terminal = "yes"
		}
		data = append(data, []string{
			n.Name,
			describeActivation(n.Activation),
			templateNames[n.MessageTemplateID],
			terminal,
		})
	}
	if err := pterm.DefaultTable.WithHasHeader().WithData(data).Render(); err != nil {
		return err
	}

	keywords, err := s.ListKeywords(ctx, project.ID)
	if err != nil {
		return err
	}
	if len(keywords) > 0 {
		data = pterm.TableData{{"Keyword", "Action"}}
		for _, k := range keywords {
			data = append(data, []string{k.KeywordText, string(k.Action)})
		}
		pterm.DefaultSection.Println("Keywords")
		if err := pterm.DefaultTable.WithHasHeader().WithData(data).Render(); err != nil {
			return err
		}
	}
	return nil
}

// resolveProject accepts either a project ID or an exact project name
func resolveProject(ctx context.Context, s *store.Store, ref string) (*flow.Project, error) {
	project, err := s.GetProject(ctx, ref)
	if err == nil {
		return project, nil
	}
	if !errors.IsNotFoundError(err) {
		return nil, err
	}
	return s.GetProjectByName(ctx, ref)
}

// describeActivation renders an activation rule for the node table
func describeActivation(a flow.Activation) string {
	if a == nil {
		return ""
	}
	typ, sourceNodeID, pollTemplateID, dateTimeVarID, startDateVarID := flow.EncodeActivation(a)
	source := sourceNodeID + pollTemplateID + dateTimeVarID + startDateVarID
	if source == "" {
		return string(typ)
	}
	return string(typ) + " " + strings.TrimSpace(source)
}
