package collection

import (
	"context"
	"log/slog"

	"github.com/joescharf/pmdash/internal/models"
	"github.com/joescharf/pmdash/internal/realtime"
	"github.com/joescharf/pmdash/internal/store"
)

// Lister is the read side both the local store and the remote client offer.
type Lister interface {
	ListProjects(ctx context.Context) ([]*models.Project, error)
	ListTasks(ctx context.Context, filter store.TaskListFilter) ([]*models.Task, error)
	ListTeamMembers(ctx context.Context) ([]*models.TeamMember, error)
	ListQAIssues(ctx context.Context, projectID string) ([]*models.QAIssue, error)
	ListTestCases(ctx context.Context, projectID string) ([]*models.TestCase, error)
	ListProjectMembers(ctx context.Context, projectID string) ([]*models.ProjectTeamMember, error)
}

// Projects syncs the projects table.
func Projects(l Lister, src realtime.Source, logger *slog.Logger) *Collection[*models.Project] {
	return New(l.ListProjects, src, realtime.Filter{Table: realtime.TableProjects}, WithLogger(logger))
}

// Tasks syncs tasks, optionally scoped to one project.
func Tasks(l Lister, src realtime.Source, projectID string, logger *slog.Logger) *Collection[*models.Task] {
	fetch := func(ctx context.Context) ([]*models.Task, error) {
		return l.ListTasks(ctx, store.TaskListFilter{ProjectID: projectID})
	}
	return New(fetch, src, realtime.Filter{Table: realtime.TableTasks, ProjectID: projectID}, WithLogger(logger))
}

// TeamMembers syncs the roster.
func TeamMembers(l Lister, src realtime.Source, logger *slog.Logger) *Collection[*models.TeamMember] {
	return New(l.ListTeamMembers, src, realtime.Filter{Table: realtime.TableTeamMembers}, WithLogger(logger))
}

// QAIssues syncs the QA issues of one project.
func QAIssues(l Lister, src realtime.Source, projectID string, logger *slog.Logger) *Collection[*models.QAIssue] {
	fetch := func(ctx context.Context) ([]*models.QAIssue, error) {
		return l.ListQAIssues(ctx, projectID)
	}
	return New(fetch, src, realtime.Filter{Table: realtime.TableQAIssues, ProjectID: projectID}, WithLogger(logger))
}

// TestCases syncs test cases, optionally scoped to one project.
func TestCases(l Lister, src realtime.Source, projectID string, logger *slog.Logger) *Collection[*models.TestCase] {
	fetch := func(ctx context.Context) ([]*models.TestCase, error) {
		return l.ListTestCases(ctx, projectID)
	}
	return New(fetch, src, realtime.Filter{Table: realtime.TableTestCases, ProjectID: projectID}, WithLogger(logger))
}

// ProjectMembers syncs one project's roster.
func ProjectMembers(l Lister, src realtime.Source, projectID string, logger *slog.Logger) *Collection[*models.ProjectTeamMember] {
	fetch := func(ctx context.Context) ([]*models.ProjectTeamMember, error) {
		return l.ListProjectMembers(ctx, projectID)
	}
	return New(fetch, src, realtime.Filter{Table: realtime.TableProjectTeamMembers, ProjectID: projectID}, WithLogger(logger))
}
