package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/joescharf/pmdash/internal/board"
	"github.com/joescharf/pmdash/internal/forms"
	"github.com/joescharf/pmdash/internal/models"
	"github.com/joescharf/pmdash/internal/output"
	"github.com/joescharf/pmdash/internal/store"
)

var (
	taskDescription string
	taskPriority    string
	taskStatus      string
	taskDue         string
	taskTags        []string
	taskProject     string
	taskAssignee    string
)

var taskCmd = &cobra.Command{
	Use:     "task",
	Aliases: []string{"t"},
	Short:   "Manage tasks",
	Long:    "Create, edit, list and delete tasks on the board.",
}

var taskAddCmd = &cobra.Command{
	Use:   "add <title>",
	Short: "Create a task in To Do",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return taskAddRun(cmd, args[0])
	},
}

var taskEditCmd = &cobra.Command{
	Use:   "edit <task>",
	Short: "Update task fields",
	Long:  "Update a task. Only the flags given are changed. Use 'pmdash board move' to change columns with confirmation.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return taskEditRun(cmd, args[0])
	},
}

var taskListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List tasks",
	RunE: func(cmd *cobra.Command, args []string) error {
		return taskListRun()
	},
}

var taskShowCmd = &cobra.Command{
	Use:   "show <task>",
	Short: "Show task details",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return taskShowRun(args[0])
	},
}

var taskRemoveCmd = &cobra.Command{
	Use:     "remove <task>",
	Aliases: []string{"rm", "archive"},
	Short:   "Delete a task",
	Long:    "Delete a task. Archiving is the same operation; there is no archived state.",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return taskRemoveRun(args[0])
	},
}

func init() {
	for _, c := range []*cobra.Command{taskAddCmd, taskEditCmd} {
		c.Flags().StringVarP(&taskDescription, "description", "d", "", "Task description")
		c.Flags().StringVar(&taskPriority, "priority", "", "Priority: high, medium (default), low")
		c.Flags().StringVar(&taskDue, "due", "", "Due date (YYYY-MM-DD)")
		c.Flags().StringSliceVar(&taskTags, "tag", nil, "Tag (repeatable)")
		c.Flags().StringVar(&taskProject, "project", "", "Project name or ID")
		c.Flags().StringVar(&taskAssignee, "assignee", "", "Assignee name or ID")
	}
	taskEditCmd.Flags().String("title", "", "New title")
	taskEditCmd.Flags().StringVar(&taskStatus, "status", "", "Status: todo, progress, testing, hold, completed")

	taskListCmd.Flags().StringVarP(&boardSearch, "search", "s", "", "Search title, description and assignee")
	taskListCmd.Flags().StringVar(&boardPriority, "priority", "", "Filter by priority")
	taskListCmd.Flags().StringVar(&boardAssignee, "assignee", "", "Filter by assignee name or ID")
	taskListCmd.Flags().StringVar(&boardProject, "project", "", "Filter by project name or ID")
	taskListCmd.Flags().StringVar(&boardSort, "sort", "", "Sort by: created (default), due_date, priority, title")

	taskCmd.AddCommand(taskAddCmd)
	taskCmd.AddCommand(taskEditCmd)
	taskCmd.AddCommand(taskListCmd)
	taskCmd.AddCommand(taskShowCmd)
	taskCmd.AddCommand(taskRemoveCmd)
	rootCmd.AddCommand(taskCmd)
}

// applyTaskFlags copies the flags the user set onto in, resolving project
// and assignee references.
func applyTaskFlags(ctx context.Context, s store.Store, cmd *cobra.Command, in *forms.TaskInput) error {
	flags := cmd.Flags()
	if flags.Changed("title") {
		in.Title, _ = flags.GetString("title")
	}
	if flags.Changed("description") {
		in.Description = taskDescription
	}
	if flags.Changed("priority") {
		in.Priority = taskPriority
	}
	if flags.Changed("status") {
		in.Status = taskStatus
	}
	if flags.Changed("due") {
		in.DueDate = taskDue
	}
	if flags.Changed("tag") {
		in.Tags = taskTags
	}
	if flags.Changed("project") {
		id, err := projectID(ctx, s, taskProject)
		if err != nil {
			return err
		}
		in.ProjectID = id
	}
	if flags.Changed("assignee") {
		id, err := memberID(ctx, s, taskAssignee)
		if err != nil {
			return err
		}
		in.AssigneeID = id
	}
	return nil
}

func taskAddRun(cmd *cobra.Command, title string) error {
	s, err := getStore()
	if err != nil {
		return err
	}
	ctx := context.Background()

	in := forms.TaskInput{Title: title}
	if err := applyTaskFlags(ctx, s, cmd, &in); err != nil {
		return err
	}

	if dryRun {
		ui.DryRunMsg("Would create task: %s", title)
		return nil
	}

	t, err := newSubmitter(s).SaveTask(ctx, cliIdentity(), in)
	if err != nil {
		return err
	}
	ui.VerboseLog("ID: %s", t.ID)
	return nil
}

func taskEditRun(cmd *cobra.Command, ref string) error {
	s, err := getStore()
	if err != nil {
		return err
	}
	ctx := context.Background()

	t, err := findTask(ctx, s, ref)
	if err != nil {
		return err
	}
	in := forms.EditTask(t)
	if err := applyTaskFlags(ctx, s, cmd, &in); err != nil {
		return err
	}

	if dryRun {
		ui.DryRunMsg("Would update task: %s", t.Title)
		return nil
	}

	_, err = newSubmitter(s).SaveTask(ctx, cliIdentity(), in)
	return err
}

func taskListRun() error {
	s, err := getStore()
	if err != nil {
		return err
	}
	ctx := context.Background()

	opts, err := boardOptions(ctx, s)
	if err != nil {
		return err
	}
	tasks, err := s.ListTasks(ctx, store.TaskListFilter{})
	if err != nil {
		return err
	}
	tasks = board.Sort(board.Apply(tasks, opts.Filter), opts.Sort)
	if len(tasks) == 0 {
		ui.Info("No tasks found")
		return nil
	}

	table := ui.Table([]string{"ID", "Title", "Status", "Priority", "Assignee", "Project", "Due"})
	for _, t := range tasks {
		project := "-"
		if t.Project != nil {
			project = t.Project.Name
		}
		assignee := t.AssigneeName()
		if assignee == "" {
			assignee = "-"
		}
		_ = table.Append([]string{
			shortID(t.ID),
			t.Title,
			output.StatusColor(displayStatus(t)),
			output.PriorityColor(string(t.Priority)),
			assignee,
			project,
			dateOrDash(t.DueDate),
		})
	}
	return table.Render()
}

func taskShowRun(ref string) error {
	s, err := getStore()
	if err != nil {
		return err
	}
	t, err := findTask(context.Background(), s, ref)
	if err != nil {
		return err
	}

	fmt.Fprintf(ui.Out, "%s  %s\n", output.Cyan(t.Title), t.ID)
	if t.Description != "" {
		fmt.Fprintf(ui.Out, "  %s\n", t.Description)
	}
	fmt.Fprintln(ui.Out)
	fmt.Fprintf(ui.Out, "  Status:    %s\n", output.StatusColor(displayStatus(t)))
	fmt.Fprintf(ui.Out, "  Priority:  %s\n", output.PriorityColor(string(t.Priority)))
	fmt.Fprintf(ui.Out, "  Due:       %s\n", dateOrDash(t.DueDate))
	if t.Assignee != nil {
		fmt.Fprintf(ui.Out, "  Assignee:  %s\n", t.Assignee.Name)
	}
	if t.Project != nil {
		fmt.Fprintf(ui.Out, "  Project:   %s\n", t.Project.Name)
	}
	if len(t.Tags) > 0 {
		fmt.Fprintf(ui.Out, "  Tags:      %s\n", strings.Join(t.Tags, ", "))
	}
	fmt.Fprintf(ui.Out, "  Created:   %s\n", timeAgo(t.CreatedAt))
	fmt.Fprintf(ui.Out, "  Updated:   %s\n", timeAgo(t.UpdatedAt))
	return nil
}

func taskRemoveRun(ref string) error {
	s, err := getStore()
	if err != nil {
		return err
	}
	ctx := context.Background()

	t, err := findTask(ctx, s, ref)
	if err != nil {
		return err
	}

	if dryRun {
		ui.DryRunMsg("Would delete task: %s", t.Title)
		return nil
	}

	if err := s.DeleteTask(ctx, t.ID); err != nil {
		ui.Error("Failed to delete task")
		return fmt.Errorf("delete task: %w", err)
	}
	ui.Success("Deleted task: %s", t.Title)
	return nil
}

// displayStatus shows an unrecognised status by its stored text.
func displayStatus(t *models.Task) string {
	if t.Status == models.TaskStatusUnknown && t.StatusRaw != "" {
		return t.StatusRaw + " (unknown)"
	}
	return string(t.Status)
}
