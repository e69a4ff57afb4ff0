package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/joescharf/pmdash/internal/board"
	"github.com/joescharf/pmdash/internal/health"
	"github.com/joescharf/pmdash/internal/models"
	"github.com/joescharf/pmdash/internal/output"
	"github.com/joescharf/pmdash/internal/store"
)

var statusAtRisk bool

var statusCmd = &cobra.Command{
	Use:   "status [project]",
	Short: "Show the dashboard overview",
	Long: `Show a cross-project health overview, board totals and team load.

With a project name, shows detailed status for that project.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 1 {
			return projectShowRun(args[0])
		}
		return statusOverviewRun()
	},
}

func init() {
	statusCmd.Flags().BoolVar(&statusAtRisk, "at-risk", false, "Only projects whose suggested status is not on-track")
	rootCmd.AddCommand(statusCmd)
}

func statusOverviewRun() error {
	s, err := getStore()
	if err != nil {
		return err
	}
	ctx := context.Background()

	projects, err := s.ListProjects(ctx)
	if err != nil {
		return err
	}
	if len(projects) == 0 {
		ui.Info("No projects yet. Use 'pmdash project add <name>' to get started.")
		return nil
	}

	tasks, err := s.ListTasks(ctx, store.TaskListFilter{})
	if err != nil {
		return err
	}
	issues, err := s.ListQAIssues(ctx, "")
	if err != nil {
		return err
	}
	byProject := groupTasksByProject(tasks)
	issuesByProject := make(map[string][]*models.QAIssue)
	for _, q := range issues {
		issuesByProject[q.ProjectID] = append(issuesByProject[q.ProjectID], q)
	}

	scorer := health.NewScorer()
	table := ui.Table([]string{"Project", "Reported", "Suggested", "Progress", "Overdue", "Open QA", "Health"})
	shown := 0
	for _, p := range projects {
		r := scorer.Assess(p, byProject[p.ID], issuesByProject[p.ID])
		if statusAtRisk && r.Suggested == models.ProjectStatusOnTrack {
			continue
		}
		reported := string(r.Reported)
		if reported == "" {
			reported = "-"
		}
		_ = table.Append([]string{
			output.Cyan(p.Name),
			output.ProjectStatusColor(reported),
			output.ProjectStatusColor(string(r.Suggested)),
			output.ProgressBar(r.Progress, 10),
			overdueCell(r.OverdueTasks),
			formatQACounts(r),
			output.HealthColor(r.Score.Total),
		})
		shown++
	}
	if shown == 0 {
		ui.Success("All projects on track")
	} else if err := table.Render(); err != nil {
		return err
	}

	fmt.Fprintln(ui.Out)
	fmt.Fprintf(ui.Out, "Board: %s\n", boardSummary(tasks))

	members, err := s.ListTeamMembers(ctx)
	if err != nil {
		return err
	}
	if len(members) > 0 {
		fmt.Fprintf(ui.Out, "Team:  %s\n", teamSummary(health.ComputeWorkload(members, tasks)))
	}
	return nil
}

func overdueCell(n int) string {
	if n == 0 {
		return "-"
	}
	return output.Red(fmt.Sprintf("%d", n))
}

// formatQACounts is open issues, with open criticals called out.
func formatQACounts(r *health.Report) string {
	if r.OpenIssues == 0 {
		return "-"
	}
	if r.OpenCritical > 0 {
		return fmt.Sprintf("%d (%s)", r.OpenIssues, output.Red(fmt.Sprintf("%d critical", r.OpenCritical)))
	}
	return fmt.Sprintf("%d", r.OpenIssues)
}

// boardSummary counts tasks per column in board order.
func boardSummary(tasks []*models.Task) string {
	b := board.Build(tasks, board.Options{Layout: board.LayoutFor(true)})
	parts := make([]string, 0, len(b.Columns)+1)
	for _, col := range b.Columns {
		parts = append(parts, fmt.Sprintf("%s %d", col.Label, len(col.Tasks)))
	}
	if n := len(b.Unrecognized); n > 0 {
		parts = append(parts, output.Red(fmt.Sprintf("unrecognized %d", n)))
	}
	return strings.Join(parts, ", ")
}

// teamSummary counts members by computed load.
func teamSummary(loads []health.Workload) string {
	counts := make(map[models.MemberStatus]int)
	for _, w := range loads {
		counts[w.Status]++
	}
	return fmt.Sprintf("%d members: %s available, %s busy, %s overloaded",
		len(loads),
		output.Green(fmt.Sprintf("%d", counts[models.MemberAvailable])),
		output.Yellow(fmt.Sprintf("%d", counts[models.MemberBusy])),
		output.Red(fmt.Sprintf("%d", counts[models.MemberOverloaded])))
}
