package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/pmdash/internal/models"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "test.db")

	s, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)

	err = s.Migrate(context.Background())
	require.NoError(t, err)

	t.Cleanup(func() { s.Close() })
	return s
}

func mustDate(t *testing.T, s string) *models.Date {
	t.Helper()
	d, err := models.ParseDate(s)
	require.NoError(t, err)
	return &d
}

func TestNewSQLiteStore_CreatesDirectory(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "subdir", "test.db")

	s, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	defer s.Close()

	_, err = os.Stat(filepath.Join(dir, "subdir"))
	assert.NoError(t, err, "should create parent directory")
}

func TestMigrate_Idempotent(t *testing.T) {
	s := newTestStore(t)
	assert.NoError(t, s.Migrate(context.Background()))
}

// --- Projects ---

func TestProjectCRUD(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	progress := 40
	p := &models.Project{
		Name:        "Website relaunch",
		Description: "New marketing site",
		Status:      models.ProjectStatusAtRisk,
		Deadline:    mustDate(t, "2025-03-01"),
		Progress:    &progress,
		CreatedBy:   "user-1",
	}
	require.NoError(t, s.CreateProject(ctx, p))
	assert.NotEmpty(t, p.ID)
	assert.False(t, p.CreatedAt.IsZero())

	got, err := s.GetProject(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "Website relaunch", got.Name)
	assert.Equal(t, models.ProjectStatusAtRisk, got.Status)
	require.NotNil(t, got.Deadline)
	assert.Equal(t, "2025-03-01", got.Deadline.String())
	require.NotNil(t, got.Progress)
	assert.Equal(t, 40, *got.Progress)

	got.Description = "Updated"
	got.Status = models.ProjectStatusOnTrack
	require.NoError(t, s.UpdateProject(ctx, got))

	got2, err := s.GetProject(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "Updated", got2.Description)
	assert.Equal(t, models.ProjectStatusOnTrack, got2.Status)

	projects, err := s.ListProjects(ctx)
	require.NoError(t, err)
	assert.Len(t, projects, 1)

	require.NoError(t, s.DeleteProject(ctx, p.ID))
	_, err = s.GetProject(ctx, p.ID)
	assert.True(t, IsNotFound(err))
	assert.Contains(t, err.Error(), "project not found")
}

func TestProject_EmptyStatusNotDefaulted(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	p := &models.Project{Name: "quiet"}
	require.NoError(t, s.CreateProject(ctx, p))

	got, err := s.GetProject(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ProjectStatusNone, got.Status)
	assert.Equal(t, models.ProjectStatusOnTrack, got.Status.Display())
}

func TestListProjects_NewestFirst(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, name := range []string{"first", "second", "third"} {
		require.NoError(t, s.CreateProject(ctx, &models.Project{Name: name}))
	}

	projects, err := s.ListProjects(ctx)
	require.NoError(t, err)
	require.Len(t, projects, 3)
	assert.Equal(t, "third", projects[0].Name)
	assert.Equal(t, "first", projects[2].Name)
}

func TestUpdateProject_NotFound(t *testing.T) {
	s := newTestStore(t)
	err := s.UpdateProject(context.Background(), &models.Project{ID: "missing", Name: "x"})
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
}

// --- Tasks ---

func seedTaskFixtures(t *testing.T, s *SQLiteStore) (*models.Project, *models.TeamMember) {
	t.Helper()
	ctx := context.Background()
	p := &models.Project{Name: "Apollo"}
	require.NoError(t, s.CreateProject(ctx, p))
	m := &models.TeamMember{Name: "Ada", Role: models.RoleDev, AvatarURL: "https://example.com/ada.png"}
	require.NoError(t, s.CreateTeamMember(ctx, m))
	return p, m
}

func TestTaskCRUD_WithJoins(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	p, m := seedTaskFixtures(t, s)

	task := &models.Task{
		Title:      "Write onboarding copy",
		Status:     models.TaskStatusTodo,
		Priority:   models.PriorityHigh,
		DueDate:    mustDate(t, "2024-01-10"),
		Tags:       []string{"copy", "web"},
		ProjectID:  p.ID,
		AssigneeID: m.ID,
		CreatedBy:  "user-1",
	}
	require.NoError(t, s.CreateTask(ctx, task))

	got, err := s.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusTodo, got.Status)
	assert.Equal(t, models.PriorityHigh, got.Priority)
	assert.Equal(t, []string{"copy", "web"}, got.Tags)
	assert.Equal(t, "2024-01-10", got.DueDate.String())
	require.NotNil(t, got.Assignee)
	assert.Equal(t, "Ada", got.Assignee.Name)
	assert.Equal(t, "https://example.com/ada.png", got.Assignee.AvatarURL)
	require.NotNil(t, got.Project)
	assert.Equal(t, "Apollo", got.Project.Name)

	got.Title = "Write onboarding copy v2"
	got.AssigneeID = ""
	require.NoError(t, s.UpdateTask(ctx, got))

	got2, err := s.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, "Write onboarding copy v2", got2.Title)
	assert.Nil(t, got2.Assignee)

	require.NoError(t, s.DeleteTask(ctx, task.ID))
	_, err = s.GetTask(ctx, task.ID)
	assert.True(t, IsNotFound(err))
}

func TestListTasks_FiltersAndOrder(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	p, m := seedTaskFixtures(t, s)

	require.NoError(t, s.CreateTask(ctx, &models.Task{Title: "a", Status: models.TaskStatusTodo, Priority: models.PriorityLow, ProjectID: p.ID}))
	require.NoError(t, s.CreateTask(ctx, &models.Task{Title: "b", Status: models.TaskStatusTodo, Priority: models.PriorityLow, AssigneeID: m.ID}))
	require.NoError(t, s.CreateTask(ctx, &models.Task{Title: "c", Status: models.TaskStatusTodo, Priority: models.PriorityLow}))

	all, err := s.ListTasks(ctx, TaskListFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "c", all[0].Title, "newest first")

	byProject, err := s.ListTasks(ctx, TaskListFilter{ProjectID: p.ID})
	require.NoError(t, err)
	require.Len(t, byProject, 1)
	assert.Equal(t, "a", byProject[0].Title)

	byAssignee, err := s.ListTasks(ctx, TaskListFilter{AssigneeID: m.ID})
	require.NoError(t, err)
	require.Len(t, byAssignee, 1)
	assert.Equal(t, "b", byAssignee[0].Title)
}

func TestUpdateTaskStatus(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	task := &models.Task{Title: "ship", Status: models.TaskStatusTodo, Priority: models.PriorityMedium}
	require.NoError(t, s.CreateTask(ctx, task))

	require.NoError(t, s.UpdateTaskStatus(ctx, task.ID, models.TaskStatusTesting))
	got, err := s.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusTesting, got.Status)

	err = s.UpdateTaskStatus(ctx, task.ID, models.TaskStatus("archived"))
	assert.Error(t, err, "unknown statuses are never written")

	err = s.UpdateTaskStatus(ctx, "missing", models.TaskStatusHold)
	assert.True(t, IsNotFound(err))
}

func TestTask_UnknownStatusDecodesAndRoundTrips(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	task := &models.Task{Title: "legacy", Status: models.TaskStatusTodo, Priority: models.PriorityMedium}
	require.NoError(t, s.CreateTask(ctx, task))
	_, err := s.db.ExecContext(ctx, "UPDATE tasks SET status = 'archived', priority = 'urgent' WHERE id = ?", task.ID)
	require.NoError(t, err)

	got, err := s.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusUnknown, got.Status)
	assert.Equal(t, "archived", got.StatusRaw)
	assert.Equal(t, models.PriorityUnknown, got.Priority)
	assert.Equal(t, "urgent", got.PriorityRaw)

	got.Title = "legacy renamed"
	require.NoError(t, s.UpdateTask(ctx, got))

	var raw string
	require.NoError(t, s.db.QueryRowContext(ctx, "SELECT status FROM tasks WHERE id = ?", task.ID).Scan(&raw))
	assert.Equal(t, "archived", raw, "raw value survives an unrelated edit")
}

// --- Team ---

func TestTeamMember_Defaults(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	m := &models.TeamMember{Name: "Grace", Role: models.RoleQA, Skills: []string{"selenium"}}
	require.NoError(t, s.CreateTeamMember(ctx, m))

	got, err := s.GetTeamMember(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DefaultMaxCapacity, got.MaxCapacity)
	assert.Equal(t, models.MemberAvailable, got.Status)
	assert.Equal(t, models.RoleQA, got.Role)
	assert.Equal(t, []string{"selenium"}, got.Skills)

	got.Status = models.MemberBusy
	require.NoError(t, s.UpdateTeamMember(ctx, got))

	members, err := s.ListTeamMembers(ctx)
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.Equal(t, models.MemberBusy, members[0].Status)

	require.NoError(t, s.DeleteTeamMember(ctx, m.ID))
	_, err = s.GetTeamMember(ctx, m.ID)
	assert.True(t, IsNotFound(err))
}

func TestDeleteTeamMember_UnassignsTasks(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	_, m := seedTaskFixtures(t, s)

	task := &models.Task{Title: "t", Status: models.TaskStatusTodo, Priority: models.PriorityLow, AssigneeID: m.ID}
	require.NoError(t, s.CreateTask(ctx, task))
	require.NoError(t, s.DeleteTeamMember(ctx, m.ID))

	got, err := s.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Empty(t, got.AssigneeID)
	assert.Nil(t, got.Assignee)
}

func TestProjectMembers(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	p, m := seedTaskFixtures(t, s)

	ptm, err := s.AddProjectMember(ctx, p.ID, m.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, ptm.ID)

	_, err = s.AddProjectMember(ctx, p.ID, m.ID)
	assert.Error(t, err, "a member joins a project once")

	roster, err := s.ListProjectMembers(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, roster, 1)
	require.NotNil(t, roster[0].Member)
	assert.Equal(t, "Ada", roster[0].Member.Name)

	require.NoError(t, s.RemoveProjectMember(ctx, p.ID, m.ID))
	roster, err = s.ListProjectMembers(ctx, p.ID)
	require.NoError(t, err)
	assert.Empty(t, roster)

	assert.True(t, IsNotFound(s.RemoveProjectMember(ctx, p.ID, m.ID)))
}

// --- QA ---

func TestQAIssueCRUD(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	p, m := seedTaskFixtures(t, s)

	q := &models.QAIssue{
		Title:            "Login button unresponsive",
		Severity:         models.SeverityHigh,
		Status:           models.QAStatusOpen,
		ProjectID:        p.ID,
		AssignedTesterID: m.ID,
		StepsToReproduce: "1. open login\n2. click",
		ExpectedResult:   "signs in",
		ActualResult:     "nothing",
		IssueType:        "bug",
		CreatedBy:        "user-1",
	}
	require.NoError(t, s.CreateQAIssue(ctx, q))

	att := &models.QAAttachment{QAIssueID: q.ID, FileName: "shot.png", FileType: "image/png", FileSize: 42, FileURL: "/files/u/shot.png", UploadedBy: "user-1"}
	require.NoError(t, s.AddQAAttachment(ctx, att))

	added, err := s.AddQAMentions(ctx, q.ID, "user-1", []string{m.ID, m.ID})
	require.NoError(t, err)
	assert.Len(t, added, 1, "duplicate mentions collapse")

	got, err := s.GetQAIssue(ctx, q.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SeverityHigh, got.Severity)
	assert.Equal(t, "nothing", got.ActualResult)
	require.NotNil(t, got.Tester)
	assert.Equal(t, "Ada", got.Tester.Name)
	assert.Len(t, got.Attachments, 1)
	assert.Len(t, got.Mentions, 1)

	got.Status = models.QAStatusResolved
	require.NoError(t, s.UpdateQAIssue(ctx, got))

	list, err := s.ListQAIssues(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, models.QAStatusResolved, list[0].Status)

	other, err := s.ListQAIssues(ctx, "other-project")
	require.NoError(t, err)
	assert.Empty(t, other)

	require.NoError(t, s.DeleteQAAttachment(ctx, att.ID))
	_, err = s.GetQAAttachment(ctx, att.ID)
	assert.True(t, IsNotFound(err))

	require.NoError(t, s.DeleteQAIssue(ctx, q.ID))
	_, err = s.GetQAIssue(ctx, q.ID)
	assert.True(t, IsNotFound(err))
}

func TestQAIssue_LegacyStatusSpelling(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	q := &models.QAIssue{Title: "x", Severity: models.SeverityLow, Status: models.QAStatusOpen, CreatedBy: "u"}
	require.NoError(t, s.CreateQAIssue(ctx, q))
	_, err := s.db.ExecContext(ctx, "UPDATE qa_issues SET status = 'in_progress' WHERE id = ?", q.ID)
	require.NoError(t, err)

	got, err := s.GetQAIssue(ctx, q.ID)
	require.NoError(t, err)
	assert.Equal(t, models.QAStatusInProgress, got.Status)
}

func TestTestCaseCRUD(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	p, _ := seedTaskFixtures(t, s)

	tc := &models.TestCase{
		Title:     "checkout happy path",
		TestType:  models.TestFunctional,
		Severity:  models.SeverityMedium,
		Status:    models.TestPending,
		ProjectID: p.ID,
		CreatedBy: "user-1",
	}
	require.NoError(t, s.CreateTestCase(ctx, tc))

	require.NoError(t, s.UpdateTestCaseStatus(ctx, tc.ID, models.TestFail))
	got, err := s.GetTestCase(ctx, tc.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TestFail, got.Status)

	assert.Error(t, s.UpdateTestCaseStatus(ctx, tc.ID, models.TestStatus("skipped")))

	got.Notes = "fails on step 3"
	require.NoError(t, s.UpdateTestCase(ctx, got))

	list, err := s.ListTestCases(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "fails on step 3", list[0].Notes)

	require.NoError(t, s.DeleteTestCase(ctx, tc.ID))
	_, err = s.GetTestCase(ctx, tc.ID)
	assert.True(t, IsNotFound(err))
}
