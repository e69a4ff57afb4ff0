package store

import (
	"context"
	"errors"

	"github.com/joescharf/pmdash/internal/models"
)

// ErrNotFound is wrapped by every lookup or mutation that matched no row.
var ErrNotFound = errors.New("not found")

// TaskListFilter narrows ListTasks. Empty fields match everything.
type TaskListFilter struct {
	ProjectID  string
	AssigneeID string
}

// Store defines the persistence interface for pmdash.
// Writes are unconditional: the last write to a row wins.
type Store interface {
	// Projects
	CreateProject(ctx context.Context, p *models.Project) error
	GetProject(ctx context.Context, id string) (*models.Project, error)
	ListProjects(ctx context.Context) ([]*models.Project, error)
	UpdateProject(ctx context.Context, p *models.Project) error
	DeleteProject(ctx context.Context, id string) error

	// Tasks
	CreateTask(ctx context.Context, t *models.Task) error
	GetTask(ctx context.Context, id string) (*models.Task, error)
	ListTasks(ctx context.Context, filter TaskListFilter) ([]*models.Task, error)
	UpdateTask(ctx context.Context, t *models.Task) error
	UpdateTaskStatus(ctx context.Context, id string, status models.TaskStatus) error
	DeleteTask(ctx context.Context, id string) error

	// Team members
	CreateTeamMember(ctx context.Context, m *models.TeamMember) error
	GetTeamMember(ctx context.Context, id string) (*models.TeamMember, error)
	ListTeamMembers(ctx context.Context) ([]*models.TeamMember, error)
	UpdateTeamMember(ctx context.Context, m *models.TeamMember) error
	DeleteTeamMember(ctx context.Context, id string) error

	// Project rosters
	AddProjectMember(ctx context.Context, projectID, memberID string) (*models.ProjectTeamMember, error)
	ListProjectMembers(ctx context.Context, projectID string) ([]*models.ProjectTeamMember, error)
	RemoveProjectMember(ctx context.Context, projectID, memberID string) error

	// QA issues
	CreateQAIssue(ctx context.Context, q *models.QAIssue) error
	GetQAIssue(ctx context.Context, id string) (*models.QAIssue, error)
	ListQAIssues(ctx context.Context, projectID string) ([]*models.QAIssue, error)
	UpdateQAIssue(ctx context.Context, q *models.QAIssue) error
	DeleteQAIssue(ctx context.Context, id string) error

	// QA attachments and mentions
	AddQAAttachment(ctx context.Context, a *models.QAAttachment) error
	GetQAAttachment(ctx context.Context, id string) (*models.QAAttachment, error)
	ListQAAttachments(ctx context.Context, issueID string) ([]*models.QAAttachment, error)
	DeleteQAAttachment(ctx context.Context, id string) error
	AddQAMentions(ctx context.Context, issueID, mentionedBy string, memberIDs []string) ([]*models.QAMention, error)
	ListQAMentions(ctx context.Context, issueID string) ([]*models.QAMention, error)

	// Test cases
	CreateTestCase(ctx context.Context, tc *models.TestCase) error
	GetTestCase(ctx context.Context, id string) (*models.TestCase, error)
	ListTestCases(ctx context.Context, projectID string) ([]*models.TestCase, error)
	UpdateTestCase(ctx context.Context, tc *models.TestCase) error
	UpdateTestCaseStatus(ctx context.Context, id string, status models.TestStatus) error
	DeleteTestCase(ctx context.Context, id string) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// IsNotFound reports whether err wraps ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
