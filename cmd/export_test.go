package cmd

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/joescharf/pmdash/internal/models"
)

func exportEnv(t *testing.T) *models.Project {
	t.Helper()
	testEnv(t)
	s, err := getStore()
	require.NoError(t, err)
	ctx := context.Background()

	p := &models.Project{Name: "Storefront", Status: models.ProjectStatusAtRisk}
	require.NoError(t, s.CreateProject(ctx, p))
	due, err := models.ParseDate("2026-05-01")
	require.NoError(t, err)
	require.NoError(t, s.CreateTask(ctx, &models.Task{
		Title: "Cart | totals", Status: models.TaskStatusTodo, Priority: models.PriorityHigh,
		ProjectID: p.ID, DueDate: &due, Tags: []string{"checkout", "web"},
	}))
	require.NoError(t, s.CreateTask(ctx, &models.Task{
		Title: "Elsewhere", Status: models.TaskStatusCompleted, Priority: models.PriorityLow,
	}))

	exportFormat, exportType, exportProject = "json", "projects", ""
	return p
}

func TestExportRun_JSON(t *testing.T) {
	exportEnv(t)
	exportType = "tasks"

	var out bytes.Buffer
	require.NoError(t, exportRun(&out))

	var tasks []*models.Task
	require.NoError(t, json.Unmarshal(out.Bytes(), &tasks))
	assert.Len(t, tasks, 2)
}

func TestExportRun_ProjectFilter(t *testing.T) {
	p := exportEnv(t)
	exportType, exportFormat, exportProject = "tasks", "csv", p.Name

	var out bytes.Buffer
	require.NoError(t, exportRun(&out))

	rows, err := csv.NewReader(&out).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"ID", "Title", "Status", "Priority", "Assignee", "Project", "Due", "Tags"}, rows[0])
	assert.Equal(t, "Cart | totals", rows[1][1])
	assert.Equal(t, "Storefront", rows[1][5])
	assert.Equal(t, "2026-05-01", rows[1][6])
	assert.Equal(t, "checkout,web", rows[1][7])
}

func TestExportRun_Markdown(t *testing.T) {
	exportEnv(t)
	exportType, exportFormat = "tasks", "markdown"

	var out bytes.Buffer
	require.NoError(t, exportRun(&out))

	s := out.String()
	assert.Contains(t, s, "# Tasks")
	assert.Contains(t, s, "| ID | Title | Status |")
	assert.Contains(t, s, `Cart \| totals`)
}

func TestExportRun_YAML(t *testing.T) {
	exportEnv(t)
	exportFormat = "yaml"

	var out bytes.Buffer
	require.NoError(t, exportRun(&out))

	var projects []map[string]any
	require.NoError(t, yaml.Unmarshal(out.Bytes(), &projects))
	require.Len(t, projects, 1)
	assert.Equal(t, "Storefront", projects[0]["name"])
}

func TestExportRun_Errors(t *testing.T) {
	exportEnv(t)

	exportType = "sessions"
	assert.ErrorContains(t, exportRun(&bytes.Buffer{}), "unknown export type")

	exportType, exportFormat = "team", "xml"
	assert.ErrorContains(t, exportRun(&bytes.Buffer{}), "unknown format")
}
