package health

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/pmdash/internal/models"
)

var fixedNow = time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)

func fixedScorer() *Scorer {
	return &Scorer{now: func() time.Time { return fixedNow }}
}

func day(t *testing.T, s string) *models.Date {
	t.Helper()
	d, err := models.ParseDate(s)
	require.NoError(t, err)
	return &d
}

func TestAssess_HealthyProject(t *testing.T) {
	s := fixedScorer()

	project := &models.Project{ID: "p1", Name: "test"}
	tasks := []*models.Task{
		{Status: models.TaskStatusCompleted, UpdatedAt: fixedNow.Add(-time.Hour)},
		{Status: models.TaskStatusCompleted, UpdatedAt: fixedNow.Add(-2 * time.Hour)},
	}
	issues := []*models.QAIssue{
		{Status: models.QAStatusResolved, Severity: models.SeverityCritical},
	}

	r := s.Assess(project, tasks, issues)

	assert.Equal(t, 100, r.Progress)
	assert.Equal(t, models.ProjectStatusOnTrack, r.Suggested)
	assert.Equal(t, models.ProjectStatusOnTrack, r.Reported, "unset status reads as on-track")
	assert.Equal(t, 30, r.Score.Completion)
	assert.Equal(t, 30, r.Score.Schedule, "nothing overdue = full schedule points")
	assert.Equal(t, 20, r.Score.Quality, "all issues resolved = full points")
	assert.Equal(t, 20, r.Score.Activity, "recent activity should get full points")
	assert.Equal(t, 100, r.Score.Total)
}

func TestAssess_UnhealthyProject(t *testing.T) {
	s := fixedScorer()

	project := &models.Project{ID: "p1", Status: models.ProjectStatusOnTrack}
	stale := fixedNow.Add(-120 * 24 * time.Hour)
	tasks := []*models.Task{
		{Status: models.TaskStatusTodo, DueDate: day(t, "2024-05-01"), UpdatedAt: stale},
		{Status: models.TaskStatusProgress, DueDate: day(t, "2024-05-10"), UpdatedAt: stale},
		{Status: models.TaskStatusTesting, UpdatedAt: stale},
	}
	issues := []*models.QAIssue{
		{Status: models.QAStatusOpen, Severity: models.SeverityCritical},
		{Status: models.QAStatusOpen, Severity: models.SeverityHigh},
	}

	r := s.Assess(project, tasks, issues)

	assert.Equal(t, 0, r.Progress)
	assert.Equal(t, 2, r.OverdueTasks)
	assert.Equal(t, 1, r.OpenCritical)
	assert.Equal(t, models.ProjectStatusDelayed, r.Suggested, "two of three tasks overdue")
	assert.True(t, r.Score.Activity < 5, "old activity should get few points")
	assert.True(t, r.Score.Quality < 10, "open critical issues = low quality")
	assert.True(t, r.Score.Total < 40, "unhealthy project should score below 40")
}

func TestAssess_SuggestedStatus(t *testing.T) {
	s := fixedScorer()
	open := func(n int) []*models.Task {
		var ts []*models.Task
		for range n {
			ts = append(ts, &models.Task{Status: models.TaskStatusTodo})
		}
		return ts
	}

	t.Run("past deadline with work left", func(t *testing.T) {
		p := &models.Project{Deadline: day(t, "2024-06-01")}
		assert.Equal(t, models.ProjectStatusDelayed, s.Assess(p, open(1), nil).Suggested)
	})

	t.Run("past deadline but finished", func(t *testing.T) {
		p := &models.Project{Deadline: day(t, "2024-06-01")}
		done := []*models.Task{{Status: models.TaskStatusCompleted}}
		assert.Equal(t, models.ProjectStatusOnTrack, s.Assess(p, done, nil).Suggested)
	})

	t.Run("one overdue of three", func(t *testing.T) {
		tasks := append(open(2), &models.Task{Status: models.TaskStatusHold, DueDate: day(t, "2024-06-14")})
		assert.Equal(t, models.ProjectStatusAtRisk, s.Assess(&models.Project{}, tasks, nil).Suggested)
	})

	t.Run("open critical issue", func(t *testing.T) {
		issues := []*models.QAIssue{{Status: models.QAStatusInProgress, Severity: models.SeverityCritical}}
		assert.Equal(t, models.ProjectStatusAtRisk, s.Assess(&models.Project{}, open(1), issues).Suggested)
	})

	t.Run("due today is not overdue", func(t *testing.T) {
		tasks := []*models.Task{{Status: models.TaskStatusTodo, DueDate: day(t, "2024-06-15")}}
		assert.Equal(t, 0, s.Assess(&models.Project{}, tasks, nil).OverdueTasks)
	})
}

func TestProgress(t *testing.T) {
	assert.Equal(t, 0, Progress(0, 0))
	assert.Equal(t, 33, Progress(1, 3))
	assert.Equal(t, 100, Progress(4, 4))
}

func TestScoreRecency(t *testing.T) {
	tests := []struct {
		name     string
		ago      time.Duration
		expected int
	}{
		{"today", 1 * time.Hour, 20},
		{"2 days", 2 * 24 * time.Hour, 18},
		{"5 days", 5 * 24 * time.Hour, 15},
		{"10 days", 10 * 24 * time.Hour, 12},
		{"20 days", 20 * 24 * time.Hour, 8},
		{"60 days", 60 * 24 * time.Hour, 4},
		{"200 days", 200 * 24 * time.Hour, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, scoreRecency(fixedNow.Add(-tt.ago), fixedNow, 20))
		})
	}
	assert.Equal(t, 0, scoreRecency(time.Time{}, fixedNow, 20))
}

func TestWorkloadStatus(t *testing.T) {
	tests := []struct {
		ratio    float64
		expected models.MemberStatus
	}{
		{0, models.MemberAvailable},
		{0.74, models.MemberAvailable},
		{0.75, models.MemberBusy},
		{1.0, models.MemberBusy},
		{1.01, models.MemberOverloaded},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, WorkloadStatus(tt.ratio), "ratio %v", tt.ratio)
	}
}

func TestComputeWorkload(t *testing.T) {
	members := []*models.TeamMember{
		{ID: "m1", Name: "Ana", MaxCapacity: 4, Status: models.MemberAvailable},
		{ID: "m2", Name: "Ben", MaxCapacity: 2},
		{ID: "m3", Name: "Cy"},
	}
	tasks := []*models.Task{
		{AssigneeID: "m1", Status: models.TaskStatusTodo},
		{AssigneeID: "m1", Status: models.TaskStatusProgress},
		{AssigneeID: "m1", Status: models.TaskStatusTesting},
		{AssigneeID: "m1", Status: models.TaskStatusCompleted},
		{AssigneeID: "m2", Status: models.TaskStatusTodo},
		{AssigneeID: "m2", Status: models.TaskStatusHold},
		{AssigneeID: "m2", Status: models.TaskStatusHold},
		{Status: models.TaskStatusTodo},
	}

	w := ComputeWorkload(members, tasks)
	require.Len(t, w, 3)

	assert.Equal(t, 3, w[0].ActiveTasks)
	assert.Equal(t, models.MemberBusy, w[0].Status)
	assert.Equal(t, models.MemberAvailable, w[0].Reported)

	assert.Equal(t, 3, w[1].ActiveTasks)
	assert.Equal(t, models.MemberOverloaded, w[1].Status)

	assert.Equal(t, models.DefaultMaxCapacity, w[2].Capacity, "zero capacity falls back to default")
	assert.Equal(t, models.MemberAvailable, w[2].Status)
}
