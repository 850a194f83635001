package cmd

import (
	"context"
	"fmt"
	"net/url"

	"github.com/spf13/cobra"

	"github.com/joescharf/issues/internal/output"
	"github.com/joescharf/issues/internal/tracker"
)

var projectJSON bool

var projectCmd = &cobra.Command{
	Use:   "project",
	Short: "Inspect projects",
	Long:  "Projects are created implicitly by adding their first issue.",
}

var projectListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List projects that have issues",
	RunE: func(cmd *cobra.Command, args []string) error {
		return projectListRun(cmd.Context())
	},
}

func init() {
	projectListCmd.Flags().BoolVar(&projectJSON, "json", false, "Print project names as JSON")

	projectCmd.AddCommand(projectListCmd)
	rootCmd.AddCommand(projectCmd)
}

// projectSummary counts the issues of one project.
type projectSummary struct {
	Name   string
	Open   int
	Closed int
}

func summarizeProject(ctx context.Context, svc *tracker.Service, name string) (projectSummary, error) {
	issues, err := svc.List(ctx, name, url.Values{})
	if err != nil {
		return projectSummary{}, err
	}
	sum := projectSummary{Name: name}
	for _, issue := range issues {
		if issue.Open {
			sum.Open++
		} else {
			sum.Closed++
		}
	}
	return sum, nil
}

func projectListRun(ctx context.Context) error {
	svc, err := getService(ctx)
	if err != nil {
		return err
	}

	projects, err := svc.Projects(ctx)
	if err != nil {
		return err
	}

	if projectJSON {
		return ui.JSON(projects)
	}

	if len(projects) == 0 {
		ui.Info("No projects yet. Use 'issues issue add <project>' to get started.")
		return nil
	}

	table := ui.Table([]string{"Project", "Open", "Closed"})
	for _, name := range projects {
		sum, err := summarizeProject(ctx, svc, name)
		if err != nil {
			return err
		}
		_ = table.Append([]string{
			output.Cyan(sum.Name),
			fmt.Sprintf("%d", sum.Open),
			fmt.Sprintf("%d", sum.Closed),
		})
	}
	_ = table.Render()
	return nil
}
