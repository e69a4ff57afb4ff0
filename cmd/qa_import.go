package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joescharf/pmdash/internal/forms"
	"github.com/joescharf/pmdash/internal/llm"
	"github.com/joescharf/pmdash/internal/models"
	"github.com/joescharf/pmdash/internal/store"
)

var (
	importProject string
	importLLM     bool
)

// importedIssue is one QA issue read from session notes, before it is saved.
type importedIssue struct {
	Project string
	llm.ExtractedQAIssue
}

var qaIssueImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import QA issues from tester notes",
	Long: `Import QA issues from a markdown file of tester notes.

Issues are numbered or bulleted list items, optionally grouped under
"## Project <name>" headings. Severity and type are inferred from each
title. A "1.1" item keeps its parent item as reproduction context.

With --llm the notes are sent to the LLM instead, which also fills in
descriptions, reproduction steps, expected and actual results. --llm needs
--project and ANTHROPIC_API_KEY (or anthropic.api_key in config).

Issues whose title already exists in the project are skipped.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return qaImportRun(cmd.Context(), args[0])
	},
}

func init() {
	qaIssueImportCmd.Flags().StringVar(&importProject, "project", "", "Assign every issue to this project")
	qaIssueImportCmd.Flags().BoolVar(&importLLM, "llm", false, "Extract issues with the LLM")
	qaIssueCmd.AddCommand(qaIssueImportCmd)
}

func qaImportRun(ctx context.Context, file string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	data, err := os.ReadFile(file)
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}
	content := string(data)
	if strings.TrimSpace(content) == "" {
		return fmt.Errorf("file is empty: %s", file)
	}

	s, err := getStore()
	if err != nil {
		return err
	}

	var project *models.Project
	if importProject != "" {
		if project, err = resolveProject(ctx, s, importProject); err != nil {
			return err
		}
	}

	var issues []importedIssue
	if importLLM {
		if project == nil {
			return fmt.Errorf("--llm needs --project")
		}
		if issues, err = extractWithLLM(ctx, content, project.Name); err != nil {
			return err
		}
	} else {
		issues = parseQANotes(content)
	}
	if project != nil {
		for i := range issues {
			issues[i].Project = project.Name
		}
	}
	if len(issues) == 0 {
		ui.Info("No issues found in file.")
		return nil
	}

	table := ui.Table([]string{"#", "Project", "Title", "Severity", "Type"})
	for i, e := range issues {
		_ = table.Append([]string{
			fmt.Sprintf("%d", i+1),
			e.Project,
			e.Title,
			e.Severity,
			e.IssueType,
		})
	}
	_ = table.Render()

	if dryRun {
		ui.DryRunMsg("Would import %d QA issues", len(issues))
		return nil
	}

	return createImportedIssues(ctx, s, forms.New(s, nil, newLogger()), issues)
}

func extractWithLLM(ctx context.Context, notes, projectName string) ([]importedIssue, error) {
	client := newLLMClient()
	if client == nil {
		return nil, fmt.Errorf("ANTHROPIC_API_KEY not set (set env var or anthropic.api_key in config)")
	}

	ui.Info("Extracting QA issues with LLM (%s)...", viper.GetString("anthropic.model"))
	extracted, err := client.ExtractQAIssues(ctx, notes, projectName)
	if err != nil {
		return nil, fmt.Errorf("extract qa issues: %w", err)
	}
	issues := make([]importedIssue, len(extracted))
	for i, e := range extracted {
		issues[i] = importedIssue{Project: projectName, ExtractedQAIssue: e}
	}
	return issues, nil
}

// parseSubItem matches a sub-item number like "1.1" or "2.3." and returns
// the text after it.
func parseSubItem(line string) (title string, ok bool) {
	i := 0
	for i < len(line) && line[i] >= '0' && line[i] <= '9' {
		i++
	}
	if i == 0 || i >= len(line) || line[i] != '.' {
		return "", false
	}
	i++
	start := i
	for i < len(line) && line[i] >= '0' && line[i] <= '9' {
		i++
	}
	if i == start {
		return "", false
	}
	if i < len(line) && line[i] == '.' {
		i++
	}
	if i >= len(line) || line[i] != ' ' {
		return "", false
	}
	title = strings.TrimSpace(line[i:])
	if title == "" {
		return "", false
	}
	return title, true
}

// listItem returns the text of a "1. text", "- text" or "* text" line.
func listItem(line string) (title string, numbered bool) {
	if len(line) <= 2 {
		return "", false
	}
	for i, c := range line {
		if c == '.' && i > 0 && i < 4 {
			return strings.TrimSpace(line[i+1:]), true
		}
		if c < '0' || c > '9' {
			break
		}
	}
	if strings.HasPrefix(line, "- ") || strings.HasPrefix(line, "* ") {
		return strings.TrimSpace(line[2:]), false
	}
	return "", false
}

func classified(project, title string) importedIssue {
	return importedIssue{
		Project: project,
		ExtractedQAIssue: llm.ExtractedQAIssue{
			Title:     title,
			Severity:  string(forms.ClassifySeverity(title)),
			IssueType: forms.ClassifyIssueType(title),
		},
	}
}

// parseQANotes reads list items from markdown notes without the LLM.
func parseQANotes(content string) []importedIssue {
	var issues []importedIssue
	currentProject := ""
	parent := ""

	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)

		if strings.HasPrefix(line, "## ") {
			heading := strings.TrimSpace(strings.TrimPrefix(line, "## "))
			if strings.HasPrefix(strings.ToLower(heading), "project ") {
				currentProject = strings.TrimSpace(heading[len("project "):])
			}
			parent = ""
			continue
		}

		if sub, ok := parseSubItem(line); ok {
			issue := classified(currentProject, sub)
			if parent != "" {
				issue.StepsToReproduce = parent + "\n" + line
			}
			issues = append(issues, issue)
			continue
		}

		title, numbered := listItem(line)
		if title == "" {
			continue
		}
		if numbered {
			parent = line
		}
		issues = append(issues, classified(currentProject, title))
	}

	return issues
}

// createImportedIssues saves issues, skipping any whose title is already
// reported in the same project or repeated earlier in the batch.
func createImportedIssues(ctx context.Context, s store.Store, sub *forms.Submitter, issues []importedIssue) error {
	projects := make(map[string]*models.Project)
	seen := make(map[string]map[string]bool)
	created, skipped := 0, 0
	id := cliIdentity()

	for _, e := range issues {
		proj, ok := projects[e.Project]
		if !ok {
			p, err := resolveProject(ctx, s, e.Project)
			if err != nil || e.Project == "" {
				ui.Warning("Skipping issue %q: project %q not found", e.Title, e.Project)
				skipped++
				continue
			}
			existing, err := s.ListQAIssues(ctx, p.ID)
			if err != nil {
				return fmt.Errorf("list qa issues: %w", err)
			}
			titles := make(map[string]bool, len(existing))
			for _, q := range existing {
				titles[strings.ToLower(q.Title)] = true
			}
			projects[e.Project], seen[p.ID] = p, titles
			proj = p
		}

		key := strings.ToLower(e.Title)
		if seen[proj.ID][key] {
			ui.VerboseLog("Skipping existing issue %q", e.Title)
			skipped++
			continue
		}

		in := forms.QAIssueInput{
			Title:            e.Title,
			Description:      e.Description,
			Severity:         e.Severity,
			IssueType:        e.IssueType,
			ProjectID:        proj.ID,
			StepsToReproduce: e.StepsToReproduce,
			ExpectedResult:   e.ExpectedResult,
			ActualResult:     e.ActualResult,
			Classify:         true,
		}
		if models.ParseSeverity(in.Severity) == models.SeverityUnknown {
			in.Severity = ""
		}
		if _, err := sub.SaveQAIssue(ctx, id, in); err != nil {
			ui.Warning("Failed to import %q: %v", e.Title, err)
			skipped++
			continue
		}
		seen[proj.ID][key] = true
		created++
	}

	ui.Success("Imported %d QA issues across %d projects", created, len(seen))
	if skipped > 0 {
		ui.Warning("Skipped %d issues", skipped)
	}
	return nil
}
