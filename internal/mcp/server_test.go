package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	mcpgo "github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/pmdash/internal/auth"
	"github.com/joescharf/pmdash/internal/models"
	"github.com/joescharf/pmdash/internal/store"
)

// ---------------------------------------------------------------------------
// Mock implementations
// ---------------------------------------------------------------------------

// mockStore implements the store methods the tools use. Anything else
// panics through the nil embedded interface.
type mockStore struct {
	store.Store

	projects []*models.Project
	tasks    []*models.Task
	members  []*models.TeamMember
	issues   []*models.QAIssue

	statusUpdates int

	listProjectsErr error
	updateStatusErr error
}

func (m *mockStore) ListProjects(_ context.Context) ([]*models.Project, error) {
	return m.projects, m.listProjectsErr
}

func (m *mockStore) GetProject(_ context.Context, id string) (*models.Project, error) {
	for _, p := range m.projects {
		if p.ID == id {
			return p, nil
		}
	}
	return nil, fmt.Errorf("project %w: %s", store.ErrNotFound, id)
}

func (m *mockStore) ListTasks(_ context.Context, f store.TaskListFilter) ([]*models.Task, error) {
	var out []*models.Task
	for _, t := range m.tasks {
		if f.ProjectID == "" || t.ProjectID == f.ProjectID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *mockStore) GetTask(_ context.Context, id string) (*models.Task, error) {
	for _, t := range m.tasks {
		if t.ID == id {
			cp := *t
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("task %w: %s", store.ErrNotFound, id)
}

func (m *mockStore) CreateTask(_ context.Context, t *models.Task) error {
	t.ID = fmt.Sprintf("01TASK%d", len(m.tasks)+1)
	t.CreatedAt = time.Now()
	m.tasks = append(m.tasks, t)
	return nil
}

func (m *mockStore) UpdateTaskStatus(_ context.Context, id string, status models.TaskStatus) error {
	m.statusUpdates++
	if m.updateStatusErr != nil {
		return m.updateStatusErr
	}
	for _, t := range m.tasks {
		if t.ID == id {
			t.Status = status
			return nil
		}
	}
	return fmt.Errorf("task %w: %s", store.ErrNotFound, id)
}

func (m *mockStore) ListTeamMembers(_ context.Context) ([]*models.TeamMember, error) {
	return m.members, nil
}

func (m *mockStore) ListQAIssues(_ context.Context, projectID string) ([]*models.QAIssue, error) {
	var out []*models.QAIssue
	for _, q := range m.issues {
		if projectID == "" || q.ProjectID == projectID {
			out = append(out, q)
		}
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// Test helpers
// ---------------------------------------------------------------------------

var service = auth.Identity{UserID: "svc-mcp"}

func newTestServer(t *testing.T) (*Server, *mockStore) {
	t.Helper()
	ms := &mockStore{}
	srv := NewServer(ms, service, nil)
	require.NotNil(t, srv)
	return srv, ms
}

// callToolReq builds a mcpgo.CallToolRequest with the given name and arguments.
func callToolReq(name string, args map[string]any) mcpgo.CallToolRequest {
	return mcpgo.CallToolRequest{
		Params: mcpgo.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

// resultText extracts the concatenated text from a CallToolResult.
func resultText(t *testing.T, result *mcpgo.CallToolResult) string {
	t.Helper()
	var b strings.Builder
	for _, c := range result.Content {
		if tc, ok := c.(mcpgo.TextContent); ok {
			b.WriteString(tc.Text)
		}
	}
	return b.String()
}

// resultJSON parses the text result as JSON into the provided target.
func resultJSON(t *testing.T, result *mcpgo.CallToolResult, target any) {
	t.Helper()
	text := resultText(t, result)
	require.NoError(t, json.Unmarshal([]byte(text), target), "failed to parse result JSON: %s", text)
}

func seedProject(ms *mockStore, id, name string) *models.Project {
	p := &models.Project{ID: id, Name: name}
	ms.projects = append(ms.projects, p)
	return p
}

func seedTask(ms *mockStore, id, title string, status models.TaskStatus, projectID string) *models.Task {
	t := &models.Task{ID: id, Title: title, Status: status, Priority: models.PriorityMedium, ProjectID: projectID, CreatedAt: time.Now()}
	ms.tasks = append(ms.tasks, t)
	return t
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestNewServer(t *testing.T) {
	srv, _ := newTestServer(t)
	require.NotNil(t, srv.MCPServer())
}

func TestHandleListProjects(t *testing.T) {
	srv, ms := newTestServer(t)
	seedProject(ms, "p1", "Apollo")
	ms.projects[0].Status = models.ProjectStatusNone

	result, err := srv.handleListProjects(context.Background(), callToolReq("pmdash_list_projects", nil))
	require.NoError(t, err)
	assert.False(t, result.IsError)

	var out []map[string]any
	resultJSON(t, result, &out)
	require.Len(t, out, 1)
	assert.Equal(t, "Apollo", out[0]["name"])
	assert.Equal(t, "on-track", out[0]["status"], "unset status displays as on-track")
}

func TestHandleListProjects_StoreError(t *testing.T) {
	srv, ms := newTestServer(t)
	ms.listProjectsErr = errors.New("db closed")

	result, err := srv.handleListProjects(context.Background(), callToolReq("pmdash_list_projects", nil))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "db closed")
}

func TestHandleBoard(t *testing.T) {
	srv, ms := newTestServer(t)
	seedProject(ms, "p1", "Apollo")
	seedTask(ms, "01A", "Alpha", models.TaskStatusTodo, "p1")
	seedTask(ms, "01B", "Beta", models.TaskStatusHold, "p1")
	seedTask(ms, "01C", "Gamma", models.TaskStatusUnknown, "p1")
	seedTask(ms, "01D", "Other", models.TaskStatusTodo, "p2")

	result, err := srv.handleBoard(context.Background(), callToolReq("pmdash_board", map[string]any{
		"project": "apollo",
		"hold":    false,
	}))
	require.NoError(t, err)
	require.False(t, result.IsError, resultText(t, result))

	var out struct {
		Columns []struct {
			Status string `json:"status"`
			Tasks  []struct {
				Title string `json:"title"`
			} `json:"tasks"`
		} `json:"columns"`
		Unrecognized []struct {
			Title string `json:"title"`
		} `json:"unrecognized"`
		Total int `json:"total"`
	}
	resultJSON(t, result, &out)
	require.Len(t, out.Columns, 4)
	assert.Equal(t, 1, out.Total)
	require.Len(t, out.Columns[0].Tasks, 1)
	assert.Equal(t, "Alpha", out.Columns[0].Tasks[0].Title)
	// Hold is off the compact board, so it joins the unknown status there.
	assert.Len(t, out.Unrecognized, 2)
}

func TestHandleBoard_BadSort(t *testing.T) {
	srv, _ := newTestServer(t)
	result, err := srv.handleBoard(context.Background(), callToolReq("pmdash_board", map[string]any{"sort": "mood"}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestHandleCreateTask(t *testing.T) {
	srv, ms := newTestServer(t)
	seedProject(ms, "p1", "Apollo")

	result, err := srv.handleCreateTask(context.Background(), callToolReq("pmdash_create_task", map[string]any{
		"title":   "Write docs",
		"project": "Apollo",
	}))
	require.NoError(t, err)
	require.False(t, result.IsError, resultText(t, result))

	require.Len(t, ms.tasks, 1)
	created := ms.tasks[0]
	assert.Equal(t, "p1", created.ProjectID)
	assert.Equal(t, models.TaskStatusTodo, created.Status)
	assert.Equal(t, models.PriorityMedium, created.Priority)
	assert.Equal(t, "svc-mcp", created.CreatedBy)
}

func TestHandleCreateTask_NoIdentity(t *testing.T) {
	ms := &mockStore{}
	srv := NewServer(ms, auth.Identity{}, nil)

	result, err := srv.handleCreateTask(context.Background(), callToolReq("pmdash_create_task", map[string]any{"title": "Write docs"}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Empty(t, ms.tasks)
}

func TestHandleCreateTask_Validation(t *testing.T) {
	srv, ms := newTestServer(t)
	result, err := srv.handleCreateTask(context.Background(), callToolReq("pmdash_create_task", map[string]any{"title": "   "}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "Task title is required")
	assert.Empty(t, ms.tasks)
}

func TestHandleMoveTask(t *testing.T) {
	srv, ms := newTestServer(t)
	seedTask(ms, "01HXYZTASK", "Ship", models.TaskStatusProgress, "")

	result, err := srv.handleMoveTask(context.Background(), callToolReq("pmdash_move_task", map[string]any{
		"task_id": "01hxyz",
		"status":  "completed",
	}))
	require.NoError(t, err)
	require.False(t, result.IsError, resultText(t, result))

	var out struct {
		Result  string `json:"result"`
		Message string `json:"message"`
		Task    struct {
			Status string `json:"status"`
		} `json:"task"`
	}
	resultJSON(t, result, &out)
	assert.Equal(t, "moved", out.Result)
	assert.Equal(t, "completed", out.Task.Status)
	assert.Equal(t, "Task moved to Completed", out.Message)
	assert.Equal(t, 1, ms.statusUpdates)
}

func TestHandleMoveTask_SameColumn(t *testing.T) {
	srv, ms := newTestServer(t)
	seedTask(ms, "01A", "Ship", models.TaskStatusTesting, "")

	result, err := srv.handleMoveTask(context.Background(), callToolReq("pmdash_move_task", map[string]any{"task_id": "01A", "status": "testing"}))
	require.NoError(t, err)
	assert.Contains(t, resultText(t, result), `"noop"`)
	assert.Zero(t, ms.statusUpdates)
}

func TestHandleMoveTask_Errors(t *testing.T) {
	srv, ms := newTestServer(t)
	seedTask(ms, "01A1", "One", models.TaskStatusTodo, "")
	seedTask(ms, "01A2", "Two", models.TaskStatusTodo, "")

	result, err := srv.handleMoveTask(context.Background(), callToolReq("pmdash_move_task", map[string]any{"task_id": "01A", "status": "testing"}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "ambiguous")

	ms.updateStatusErr = errors.New("disk full")
	result, err = srv.handleMoveTask(context.Background(), callToolReq("pmdash_move_task", map[string]any{"task_id": "01A1", "status": "testing"}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "Failed to update task status")
}

func TestHandleListQAIssues_Filters(t *testing.T) {
	srv, ms := newTestServer(t)
	ms.issues = []*models.QAIssue{
		{ID: "q1", Title: "Crash", Severity: models.SeverityCritical, Status: models.QAStatusOpen},
		{ID: "q2", Title: "Typo", Severity: models.SeverityLow, Status: models.QAStatusResolved},
		{ID: "q3", Title: "Slow", Severity: models.SeverityHigh, Status: models.QAStatusInProgress},
	}

	result, err := srv.handleListQAIssues(context.Background(), callToolReq("pmdash_list_qa_issues", map[string]any{"status": "active"}))
	require.NoError(t, err)
	var out []map[string]any
	resultJSON(t, result, &out)
	assert.Len(t, out, 2)

	result, err = srv.handleListQAIssues(context.Background(), callToolReq("pmdash_list_qa_issues", map[string]any{"severity": "low"}))
	require.NoError(t, err)
	out = nil
	resultJSON(t, result, &out)
	require.Len(t, out, 1)
	assert.Equal(t, "q2", out[0]["id"])
}

func TestHandleTeamWorkload(t *testing.T) {
	srv, ms := newTestServer(t)
	ms.members = []*models.TeamMember{{ID: "m1", Name: "Grace", MaxCapacity: 4}}
	for i, st := range []models.TaskStatus{models.TaskStatusTodo, models.TaskStatusProgress, models.TaskStatusTesting, models.TaskStatusCompleted} {
		tk := seedTask(ms, fmt.Sprintf("t%d", i), "task", st, "")
		tk.AssigneeID = "m1"
	}

	result, err := srv.handleTeamWorkload(context.Background(), callToolReq("pmdash_team_workload", nil))
	require.NoError(t, err)
	var out []struct {
		ActiveTasks int    `json:"active_tasks"`
		Status      string `json:"status"`
	}
	resultJSON(t, result, &out)
	require.Len(t, out, 1)
	assert.Equal(t, 3, out[0].ActiveTasks)
	assert.Equal(t, "busy", out[0].Status)
}

func TestResolveProject_NotFound(t *testing.T) {
	srv, _ := newTestServer(t)
	_, err := srv.resolveProject(context.Background(), "nope")
	assert.ErrorContains(t, err, "project not found")
}
