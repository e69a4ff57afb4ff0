package health

import (
	"time"

	"github.com/joescharf/pmdash/internal/models"
)

// Workload thresholds as a fraction of capacity.
const (
	BusyThreshold       = 0.75
	OverloadedThreshold = 1.0
)

// HealthScore is a 0-100 composite of a project's delivery signals.
type HealthScore struct {
	Total      int `json:"total"`
	Completion int `json:"completion"` // 0-30
	Schedule   int `json:"schedule"`   // 0-30
	Quality    int `json:"quality"`    // 0-20
	Activity   int `json:"activity"`   // 0-20
}

// Report is the derived health of one project.
type Report struct {
	ProjectID      string               `json:"project_id"`
	Progress       int                  `json:"progress"`
	TotalTasks     int                  `json:"total_tasks"`
	CompletedTasks int                  `json:"completed_tasks"`
	OverdueTasks   int                  `json:"overdue_tasks"`
	OpenIssues     int                  `json:"open_issues"`
	OpenCritical   int                  `json:"open_critical"`
	Reported       models.ProjectStatus `json:"reported_status"`
	Suggested      models.ProjectStatus `json:"suggested_status"`
	Score          *HealthScore         `json:"score"`
}

// Scorer computes project health.
type Scorer struct {
	now func() time.Time
}

// NewScorer returns a new health Scorer.
func NewScorer() *Scorer {
	return &Scorer{now: time.Now}
}

// Assess derives progress, suggested status and a health score for a
// project from its tasks and QA issues.
func (s *Scorer) Assess(project *models.Project, tasks []*models.Task, issues []*models.QAIssue) *Report {
	now := s.now()
	today := models.NewDate(now)
	r := &Report{
		ProjectID:  project.ID,
		TotalTasks: len(tasks),
		Reported:   project.Status.Display(),
	}

	var lastActivity time.Time
	for _, t := range tasks {
		if t.Status == models.TaskStatusCompleted {
			r.CompletedTasks++
		}
		if t.IsOverdue(today) {
			r.OverdueTasks++
		}
		if t.UpdatedAt.After(lastActivity) {
			lastActivity = t.UpdatedAt
		}
	}
	for _, q := range issues {
		if !q.Status.IsOpen() {
			continue
		}
		r.OpenIssues++
		if q.Severity == models.SeverityCritical {
			r.OpenCritical++
		}
	}

	r.Progress = Progress(r.CompletedTasks, r.TotalTasks)
	r.Suggested = suggestStatus(project, r, today)
	r.Score = &HealthScore{
		Completion: r.Progress * 30 / 100,
		Schedule:   scoreSchedule(r, 30),
		Quality:    scoreIssues(issues, 20),
		Activity:   scoreRecency(lastActivity, now, 20),
	}
	r.Score.Total = r.Score.Completion + r.Score.Schedule + r.Score.Quality + r.Score.Activity
	return r
}

// Progress is completed/total as a whole percentage; 0 with no tasks.
func Progress(completed, total int) int {
	if total == 0 {
		return 0
	}
	return completed * 100 / total
}

// suggestStatus: delayed when the deadline has passed with work left or at
// least half the tasks are overdue; at-risk with any overdue task or open
// critical issue; on-track otherwise.
func suggestStatus(p *models.Project, r *Report, today models.Date) models.ProjectStatus {
	unfinished := r.TotalTasks - r.CompletedTasks
	pastDeadline := p.Deadline != nil && p.Deadline.Before(today)
	switch {
	case pastDeadline && unfinished > 0:
		return models.ProjectStatusDelayed
	case r.TotalTasks > 0 && float64(r.OverdueTasks)/float64(r.TotalTasks) >= 0.5:
		return models.ProjectStatusDelayed
	case r.OverdueTasks > 0 || r.OpenCritical > 0:
		return models.ProjectStatusAtRisk
	default:
		return models.ProjectStatusOnTrack
	}
}

// scoreSchedule loses points in proportion to overdue work.
func scoreSchedule(r *Report, maxPoints int) int {
	if r.TotalTasks == 0 {
		return maxPoints
	}
	ratio := float64(r.OverdueTasks) / float64(r.TotalTasks)
	return int(float64(maxPoints) * (1 - ratio))
}

// scoreRecency converts time since last activity to points.
func scoreRecency(t, now time.Time, maxPoints int) int {
	if t.IsZero() {
		return 0
	}
	days := int(now.Sub(t).Hours() / 24)
	switch {
	case days <= 1:
		return maxPoints
	case days <= 3:
		return int(float64(maxPoints) * 0.9)
	case days <= 7:
		return int(float64(maxPoints) * 0.75)
	case days <= 14:
		return int(float64(maxPoints) * 0.6)
	case days <= 30:
		return int(float64(maxPoints) * 0.4)
	case days <= 90:
		return int(float64(maxPoints) * 0.2)
	default:
		return int(float64(maxPoints) * 0.1)
	}
}

// scoreIssues computes QA health from the open backlog. Open critical
// issues weigh double.
func scoreIssues(issues []*models.QAIssue, maxPoints int) int {
	if len(issues) == 0 {
		return maxPoints
	}
	weight := 0
	for _, q := range issues {
		if !q.Status.IsOpen() {
			continue
		}
		weight++
		if q.Severity == models.SeverityCritical {
			weight++
		}
	}
	ratio := float64(weight) / float64(2*len(issues))
	return int(float64(maxPoints) * (1 - ratio))
}
