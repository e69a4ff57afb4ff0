package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/joescharf/pmdash/internal/models"
	"github.com/joescharf/pmdash/internal/notify"
	"github.com/joescharf/pmdash/internal/store"
)

// uiNotifier prints form and board notifications to the terminal.
type uiNotifier struct{}

func (uiNotifier) Notify(_ context.Context, n notify.Notification) {
	msg := n.Title
	if n.Description != "" {
		msg += ": " + n.Description
	}
	if n.Variant == notify.VariantDestructive {
		ui.Error("%s", msg)
		return
	}
	ui.Success("%s", msg)
}

// resolveProject finds a project by ID, ID prefix or case-insensitive name.
func resolveProject(ctx context.Context, s store.Store, ref string) (*models.Project, error) {
	if p, err := s.GetProject(ctx, ref); err == nil {
		return p, nil
	}

	projects, err := s.ListProjects(ctx)
	if err != nil {
		return nil, err
	}
	upper := strings.ToUpper(ref)
	var matches []*models.Project
	for _, p := range projects {
		if strings.EqualFold(p.Name, ref) {
			return p, nil
		}
		if strings.HasPrefix(p.ID, upper) {
			matches = append(matches, p)
		}
	}
	switch len(matches) {
	case 0:
		return nil, fmt.Errorf("project not found: %s", ref)
	case 1:
		return matches[0], nil
	default:
		return nil, fmt.Errorf("ambiguous project ID %s: matches %d projects", ref, len(matches))
	}
}

// projectID resolves an optional project reference to its ID.
func projectID(ctx context.Context, s store.Store, ref string) (string, error) {
	if ref == "" {
		return "", nil
	}
	p, err := resolveProject(ctx, s, ref)
	if err != nil {
		return "", err
	}
	return p.ID, nil
}

// findTask finds a task by full ID or prefix match.
func findTask(ctx context.Context, s store.Store, id string) (*models.Task, error) {
	if t, err := s.GetTask(ctx, id); err == nil {
		return t, nil
	}

	tasks, err := s.ListTasks(ctx, store.TaskListFilter{})
	if err != nil {
		return nil, err
	}
	return uniquePrefix(tasks, id, "task", func(t *models.Task) string { return t.ID })
}

// findMember finds a team member by ID, ID prefix or case-insensitive name.
func findMember(ctx context.Context, s store.Store, ref string) (*models.TeamMember, error) {
	if m, err := s.GetTeamMember(ctx, ref); err == nil {
		return m, nil
	}

	members, err := s.ListTeamMembers(ctx)
	if err != nil {
		return nil, err
	}
	for _, m := range members {
		if strings.EqualFold(m.Name, ref) {
			return m, nil
		}
	}
	return uniquePrefix(members, ref, "team member", func(m *models.TeamMember) string { return m.ID })
}

// memberID resolves an optional member reference to its ID.
func memberID(ctx context.Context, s store.Store, ref string) (string, error) {
	if ref == "" {
		return "", nil
	}
	m, err := findMember(ctx, s, ref)
	if err != nil {
		return "", err
	}
	return m.ID, nil
}

// findQAIssue finds a QA issue by full ID or prefix match.
func findQAIssue(ctx context.Context, s store.Store, id string) (*models.QAIssue, error) {
	if q, err := s.GetQAIssue(ctx, id); err == nil {
		return q, nil
	}

	issues, err := s.ListQAIssues(ctx, "")
	if err != nil {
		return nil, err
	}
	q, err := uniquePrefix(issues, id, "QA issue", func(q *models.QAIssue) string { return q.ID })
	if err != nil {
		return nil, err
	}
	// Re-fetch to get attachments loaded
	return s.GetQAIssue(ctx, q.ID)
}

// findTestCase finds a test case by full ID or prefix match.
func findTestCase(ctx context.Context, s store.Store, id string) (*models.TestCase, error) {
	if tc, err := s.GetTestCase(ctx, id); err == nil {
		return tc, nil
	}

	cases, err := s.ListTestCases(ctx, "")
	if err != nil {
		return nil, err
	}
	return uniquePrefix(cases, id, "test case", func(tc *models.TestCase) string { return tc.ID })
}

func uniquePrefix[T any](items []T, id, kind string, idOf func(T) string) (T, error) {
	var zero T
	upper := strings.ToUpper(id)
	var matches []T
	for _, it := range items {
		if strings.HasPrefix(idOf(it), upper) {
			matches = append(matches, it)
		}
	}

	switch len(matches) {
	case 0:
		return zero, fmt.Errorf("%s not found: %s", kind, id)
	case 1:
		return matches[0], nil
	default:
		return zero, fmt.Errorf("ambiguous %s ID %s: matches %d", kind, id, len(matches))
	}
}

// shortID returns a truncated ULID for display (first 12 chars).
func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}

// dateOrDash formats an optional date for tables.
func dateOrDash(d *models.Date) string {
	if d == nil {
		return "-"
	}
	return d.String()
}

// timeAgo returns a human-readable duration from a time.
func timeAgo(t time.Time) string {
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		days := int(d.Hours() / 24)
		if days == 1 {
			return "1d ago"
		}
		return fmt.Sprintf("%dd ago", days)
	}
}

// formatBytes returns a human-readable byte size string.
func formatBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(b)/float64(div), "KMGTPE"[exp])
}
