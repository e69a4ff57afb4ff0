package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/joescharf/pmdash/internal/activity"
	"github.com/joescharf/pmdash/internal/forms"
	"github.com/joescharf/pmdash/internal/health"
	"github.com/joescharf/pmdash/internal/models"
	"github.com/joescharf/pmdash/internal/output"
	"github.com/joescharf/pmdash/internal/store"
)

var (
	projectDescription string
	projectStatus      string
	projectDeadline    string
	projectProgress    int
	projectActivityTyp string
)

var projectCmd = &cobra.Command{
	Use:     "project",
	Aliases: []string{"p"},
	Short:   "Manage projects",
	Long:    "Create, edit, list and inspect projects and their team rosters.",
}

var projectAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Create a project",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return projectAddRun(cmd, args[0])
	},
}

var projectEditCmd = &cobra.Command{
	Use:   "edit <project>",
	Short: "Update project fields",
	Long:  "Update a project. Only the flags given are changed.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return projectEditRun(cmd, args[0])
	},
}

var projectRemoveCmd = &cobra.Command{
	Use:     "remove <project>",
	Aliases: []string{"rm"},
	Short:   "Delete a project and its tasks, QA issues and test cases",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return projectRemoveRun(args[0])
	},
}

var projectListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List projects",
	RunE: func(cmd *cobra.Command, args []string) error {
		return projectListRun()
	},
}

var projectShowCmd = &cobra.Command{
	Use:   "show <project>",
	Short: "Show project details, health and team",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return projectShowRun(args[0])
	},
}

var projectActivityCmd = &cobra.Command{
	Use:   "activity <project>",
	Short: "Show the project activity feed",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return projectActivityRun(args[0])
	},
}

var projectMemberCmd = &cobra.Command{
	Use:   "member",
	Short: "Manage a project's team roster",
}

var projectMemberAddCmd = &cobra.Command{
	Use:   "add <project> <member>",
	Short: "Add a team member to a project",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return projectMemberAddRun(args[0], args[1])
	},
}

var projectMemberRemoveCmd = &cobra.Command{
	Use:     "remove <project> <member>",
	Aliases: []string{"rm"},
	Short:   "Remove a team member from a project",
	Args:    cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return projectMemberRemoveRun(args[0], args[1])
	},
}

var projectMemberListCmd = &cobra.Command{
	Use:     "list <project>",
	Aliases: []string{"ls"},
	Short:   "List a project's team",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return projectMemberListRun(args[0])
	},
}

func init() {
	for _, c := range []*cobra.Command{projectAddCmd, projectEditCmd} {
		c.Flags().StringVarP(&projectDescription, "description", "d", "", "Project description")
		c.Flags().StringVar(&projectStatus, "status", "", "Status: on-track, at-risk, delayed")
		c.Flags().StringVar(&projectDeadline, "deadline", "", "Deadline (YYYY-MM-DD)")
		c.Flags().IntVar(&projectProgress, "progress", 0, "Reported progress 0-100")
	}
	projectEditCmd.Flags().String("name", "", "New project name")
	projectActivityCmd.Flags().StringVar(&projectActivityTyp, "type", "", "Only show one activity type")

	projectMemberCmd.AddCommand(projectMemberAddCmd)
	projectMemberCmd.AddCommand(projectMemberRemoveCmd)
	projectMemberCmd.AddCommand(projectMemberListCmd)

	projectCmd.AddCommand(projectAddCmd)
	projectCmd.AddCommand(projectEditCmd)
	projectCmd.AddCommand(projectRemoveCmd)
	projectCmd.AddCommand(projectListCmd)
	projectCmd.AddCommand(projectShowCmd)
	projectCmd.AddCommand(projectActivityCmd)
	projectCmd.AddCommand(projectMemberCmd)
	rootCmd.AddCommand(projectCmd)
}

// applyProjectFlags copies the flags the user actually set onto in.
func applyProjectFlags(cmd *cobra.Command, in *forms.ProjectInput) {
	flags := cmd.Flags()
	if flags.Changed("name") {
		in.Name, _ = flags.GetString("name")
	}
	if flags.Changed("description") {
		in.Description = projectDescription
	}
	if flags.Changed("status") {
		in.Status = projectStatus
	}
	if flags.Changed("deadline") {
		in.Deadline = projectDeadline
	}
	if flags.Changed("progress") {
		v := projectProgress
		in.Progress = &v
	}
}

func projectAddRun(cmd *cobra.Command, name string) error {
	s, err := getStore()
	if err != nil {
		return err
	}

	in := forms.ProjectInput{Name: name}
	applyProjectFlags(cmd, &in)

	if dryRun {
		ui.DryRunMsg("Would create project: %s", name)
		return nil
	}

	p, err := newSubmitter(s).SaveProject(context.Background(), cliIdentity(), in)
	if err != nil {
		return err
	}
	ui.VerboseLog("ID: %s", p.ID)
	return nil
}

func projectEditRun(cmd *cobra.Command, ref string) error {
	s, err := getStore()
	if err != nil {
		return err
	}
	ctx := context.Background()

	p, err := resolveProject(ctx, s, ref)
	if err != nil {
		return err
	}
	in := forms.EditProject(p)
	applyProjectFlags(cmd, &in)

	if dryRun {
		ui.DryRunMsg("Would update project: %s", p.Name)
		return nil
	}

	_, err = newSubmitter(s).SaveProject(ctx, cliIdentity(), in)
	return err
}

func projectRemoveRun(ref string) error {
	s, err := getStore()
	if err != nil {
		return err
	}
	ctx := context.Background()

	p, err := resolveProject(ctx, s, ref)
	if err != nil {
		return err
	}

	if dryRun {
		ui.DryRunMsg("Would delete project: %s", p.Name)
		return nil
	}

	if err := s.DeleteProject(ctx, p.ID); err != nil {
		return fmt.Errorf("delete project: %w", err)
	}
	ui.Success("Deleted project: %s", output.Cyan(p.Name))
	return nil
}

func projectListRun() error {
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
		ui.Info("No projects yet. Use 'pmdash project add <name>' to create one.")
		return nil
	}

	tasks, err := s.ListTasks(ctx, store.TaskListFilter{})
	if err != nil {
		return err
	}
	byProject := groupTasksByProject(tasks)

	table := ui.Table([]string{"ID", "Name", "Status", "Tasks", "Progress", "Deadline"})
	for _, p := range projects {
		pt := byProject[p.ID]
		done := countCompleted(pt)
		_ = table.Append([]string{
			shortID(p.ID),
			output.Cyan(p.Name),
			output.ProjectStatusColor(string(p.Status.Display())),
			fmt.Sprintf("%d/%d", done, len(pt)),
			output.ProgressBar(health.Progress(done, len(pt)), 10),
			dateOrDash(p.Deadline),
		})
	}
	return table.Render()
}

func projectShowRun(ref string) error {
	s, err := getStore()
	if err != nil {
		return err
	}
	ctx := context.Background()

	p, err := resolveProject(ctx, s, ref)
	if err != nil {
		return err
	}
	tasks, err := s.ListTasks(ctx, store.TaskListFilter{ProjectID: p.ID})
	if err != nil {
		return err
	}
	issues, err := s.ListQAIssues(ctx, p.ID)
	if err != nil {
		return err
	}
	members, err := s.ListProjectMembers(ctx, p.ID)
	if err != nil {
		return err
	}

	r := health.NewScorer().Assess(p, tasks, issues)

	fmt.Fprintf(ui.Out, "%s  %s\n", output.Cyan(p.Name), shortID(p.ID))
	if p.Description != "" {
		fmt.Fprintf(ui.Out, "  %s\n", p.Description)
	}
	fmt.Fprintln(ui.Out)
	fmt.Fprintf(ui.Out, "  Status:     %s", output.ProjectStatusColor(string(r.Reported)))
	if r.Suggested != r.Reported {
		fmt.Fprintf(ui.Out, " (suggested: %s)", output.ProjectStatusColor(string(r.Suggested)))
	}
	fmt.Fprintln(ui.Out)
	if p.StatusRaw != "" {
		fmt.Fprintf(ui.Out, "  Stored as:  %q\n", p.StatusRaw)
	}
	fmt.Fprintf(ui.Out, "  Deadline:   %s\n", dateOrDash(p.Deadline))
	fmt.Fprintf(ui.Out, "  Progress:   %s  (%d/%d tasks)\n", output.ProgressBar(r.Progress, 20), r.CompletedTasks, r.TotalTasks)
	fmt.Fprintf(ui.Out, "  Overdue:    %d\n", r.OverdueTasks)
	fmt.Fprintf(ui.Out, "  QA issues:  %d open, %d critical\n", r.OpenIssues, r.OpenCritical)
	fmt.Fprintf(ui.Out, "  Health:     %s\n", output.HealthColor(r.Score.Total))
	fmt.Fprintf(ui.Out, "  Created:    %s\n", timeAgo(p.CreatedAt))

	if len(members) > 0 {
		names := make([]string, 0, len(members))
		for _, m := range members {
			if m.Member != nil {
				names = append(names, m.Member.Name)
			}
		}
		fmt.Fprintf(ui.Out, "  Team:       %s\n", strings.Join(names, ", "))
	}
	return nil
}

func projectActivityRun(ref string) error {
	only, err := activity.ParseType(projectActivityTyp)
	if err != nil {
		return err
	}
	s, err := getStore()
	if err != nil {
		return err
	}
	ctx := context.Background()

	p, err := resolveProject(ctx, s, ref)
	if err != nil {
		return err
	}
	tasks, err := s.ListTasks(ctx, store.TaskListFilter{ProjectID: p.ID})
	if err != nil {
		return err
	}
	issues, err := s.ListQAIssues(ctx, p.ID)
	if err != nil {
		return err
	}

	items := activity.Build(tasks, issues, only)
	if len(items) == 0 {
		ui.Info("No activity for %s", output.Cyan(p.Name))
		return nil
	}

	table := ui.Table([]string{"When", "Type", "Title", "Who"})
	for _, it := range items {
		_ = table.Append([]string{timeAgo(it.At), string(it.Type), it.Title, it.Actor.Name})
	}
	return table.Render()
}

func projectMemberAddRun(projectRef, memberRef string) error {
	s, err := getStore()
	if err != nil {
		return err
	}
	ctx := context.Background()

	p, err := resolveProject(ctx, s, projectRef)
	if err != nil {
		return err
	}
	m, err := findMember(ctx, s, memberRef)
	if err != nil {
		return err
	}

	if dryRun {
		ui.DryRunMsg("Would add %s to %s", m.Name, p.Name)
		return nil
	}

	_, err = newSubmitter(s).AddProjectMember(ctx, cliIdentity(), p.ID, m.ID)
	return err
}

func projectMemberRemoveRun(projectRef, memberRef string) error {
	s, err := getStore()
	if err != nil {
		return err
	}
	ctx := context.Background()

	p, err := resolveProject(ctx, s, projectRef)
	if err != nil {
		return err
	}
	m, err := findMember(ctx, s, memberRef)
	if err != nil {
		return err
	}

	if dryRun {
		ui.DryRunMsg("Would remove %s from %s", m.Name, p.Name)
		return nil
	}

	if err := s.RemoveProjectMember(ctx, p.ID, m.ID); err != nil {
		return fmt.Errorf("remove project member: %w", err)
	}
	ui.Success("Removed %s from %s", m.Name, output.Cyan(p.Name))
	return nil
}

func projectMemberListRun(ref string) error {
	s, err := getStore()
	if err != nil {
		return err
	}
	ctx := context.Background()

	p, err := resolveProject(ctx, s, ref)
	if err != nil {
		return err
	}
	members, err := s.ListProjectMembers(ctx, p.ID)
	if err != nil {
		return err
	}
	if len(members) == 0 {
		ui.Info("No team members on %s", output.Cyan(p.Name))
		return nil
	}

	table := ui.Table([]string{"ID", "Name", "Role", "Added"})
	for _, ptm := range members {
		if ptm.Member == nil {
			continue
		}
		_ = table.Append([]string{shortID(ptm.Member.ID), ptm.Member.Name, string(ptm.Member.Role), timeAgo(ptm.CreatedAt)})
	}
	return table.Render()
}

func groupTasksByProject(tasks []*models.Task) map[string][]*models.Task {
	out := make(map[string][]*models.Task)
	for _, t := range tasks {
		out[t.ProjectID] = append(out[t.ProjectID], t)
	}
	return out
}

func countCompleted(tasks []*models.Task) int {
	n := 0
	for _, t := range tasks {
		if t.Status == models.TaskStatusCompleted {
			n++
		}
	}
	return n
}
