package cmd

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/joescharf/pmdash/internal/models"
	"github.com/joescharf/pmdash/internal/store"
)

var (
	exportFormat  string
	exportType    string
	exportProject string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export data as JSON, YAML, CSV or Markdown",
	Long: `Export projects, tasks, team members, QA issues or test cases.

JSON and YAML carry every field; CSV and Markdown carry a summary table.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return exportRun(ui.Out)
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportFormat, "format", "json", "Output format: json, yaml, csv, markdown")
	exportCmd.Flags().StringVar(&exportType, "type", "projects", "Data type: projects, tasks, team, qa, tests")
	exportCmd.Flags().StringVar(&exportProject, "project", "", "Only this project's tasks, QA issues or test cases")
	rootCmd.AddCommand(exportCmd)
}

// exportTable is the flat form used by csv and markdown output.
type exportTable struct {
	title   string
	headers []string
	rows    [][]string
}

func exportRun(w io.Writer) error {
	s, err := getStore()
	if err != nil {
		return err
	}
	ctx := context.Background()

	pid, err := projectID(ctx, s, exportProject)
	if err != nil {
		return err
	}

	var (
		data  any
		table exportTable
	)
	switch exportType {
	case "projects":
		data, table, err = exportProjects(ctx, s)
	case "tasks":
		data, table, err = exportTasks(ctx, s, pid)
	case "team":
		data, table, err = exportTeam(ctx, s)
	case "qa":
		data, table, err = exportQAIssues(ctx, s, pid)
	case "tests":
		data, table, err = exportTestCases(ctx, s, pid)
	default:
		return fmt.Errorf("unknown export type: %s (use: projects, tasks, team, qa, tests)", exportType)
	}
	if err != nil {
		return err
	}

	switch exportFormat {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(data)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(data); err != nil {
			return err
		}
		return enc.Close()
	case "csv":
		cw := csv.NewWriter(w)
		_ = cw.Write(table.headers)
		_ = cw.WriteAll(table.rows)
		return cw.Error()
	case "markdown", "md":
		writeMarkdownTable(w, table)
		return nil
	default:
		return fmt.Errorf("unknown format: %s (use: json, yaml, csv, markdown)", exportFormat)
	}
}

func writeMarkdownTable(w io.Writer, t exportTable) {
	fmt.Fprintf(w, "# %s\n\n", t.title)
	fmt.Fprintf(w, "| %s |\n", strings.Join(t.headers, " | "))
	seps := make([]string, len(t.headers))
	for i, h := range t.headers {
		seps[i] = strings.Repeat("-", max(len(h), 3))
	}
	fmt.Fprintf(w, "|%s|\n", "-"+strings.Join(seps, "-|-")+"-")
	for _, row := range t.rows {
		cells := make([]string, len(row))
		for i, c := range row {
			cells[i] = strings.ReplaceAll(c, "|", `\|`)
		}
		fmt.Fprintf(w, "| %s |\n", strings.Join(cells, " | "))
	}
}

func dateCell(d *models.Date) string {
	if d == nil {
		return ""
	}
	return d.String()
}

func exportProjects(ctx context.Context, s store.Store) (any, exportTable, error) {
	projects, err := s.ListProjects(ctx)
	if err != nil {
		return nil, exportTable{}, err
	}
	t := exportTable{title: "Projects", headers: []string{"ID", "Name", "Status", "Deadline", "Progress", "Created"}}
	for _, p := range projects {
		progress := ""
		if p.Progress != nil {
			progress = strconv.Itoa(*p.Progress)
		}
		t.rows = append(t.rows, []string{
			p.ID, p.Name, string(p.Status), dateCell(p.Deadline), progress, p.CreatedAt.Format(models.DateLayout),
		})
	}
	return projects, t, nil
}

func exportTasks(ctx context.Context, s store.Store, projectID string) (any, exportTable, error) {
	tasks, err := s.ListTasks(ctx, store.TaskListFilter{ProjectID: projectID})
	if err != nil {
		return nil, exportTable{}, err
	}
	t := exportTable{title: "Tasks", headers: []string{"ID", "Title", "Status", "Priority", "Assignee", "Project", "Due", "Tags"}}
	for _, task := range tasks {
		project := ""
		if task.Project != nil {
			project = task.Project.Name
		}
		t.rows = append(t.rows, []string{
			task.ID, task.Title, displayStatus(task), string(task.Priority), task.AssigneeName(),
			project, dateCell(task.DueDate), strings.Join(task.Tags, ","),
		})
	}
	return tasks, t, nil
}

func exportTeam(ctx context.Context, s store.Store) (any, exportTable, error) {
	members, err := s.ListTeamMembers(ctx)
	if err != nil {
		return nil, exportTable{}, err
	}
	t := exportTable{title: "Team", headers: []string{"ID", "Name", "Role", "Status", "Capacity", "Skills"}}
	for _, m := range members {
		t.rows = append(t.rows, []string{
			m.ID, m.Name, string(m.Role), string(m.Status), strconv.Itoa(m.MaxCapacity), strings.Join(m.Skills, ","),
		})
	}
	return members, t, nil
}

func exportQAIssues(ctx context.Context, s store.Store, projectID string) (any, exportTable, error) {
	issues, err := s.ListQAIssues(ctx, projectID)
	if err != nil {
		return nil, exportTable{}, err
	}
	t := exportTable{title: "QA Issues", headers: []string{"ID", "Title", "Severity", "Status", "Type", "Tester", "Attachments"}}
	for _, q := range issues {
		tester := ""
		if q.Tester != nil {
			tester = q.Tester.Name
		}
		t.rows = append(t.rows, []string{
			q.ID, q.Title, string(q.Severity), string(q.Status), q.IssueType, tester, strconv.Itoa(len(q.Attachments)),
		})
	}
	return issues, t, nil
}

func exportTestCases(ctx context.Context, s store.Store, projectID string) (any, exportTable, error) {
	cases, err := s.ListTestCases(ctx, projectID)
	if err != nil {
		return nil, exportTable{}, err
	}
	t := exportTable{title: "Test Cases", headers: []string{"ID", "Title", "Type", "Severity", "Status"}}
	for _, tc := range cases {
		t.rows = append(t.rows, []string{tc.ID, tc.Title, string(tc.TestType), string(tc.Severity), string(tc.Status)})
	}
	return cases, t, nil
}
