// Package board derives the kanban view from a task list: filter, sort,
// partition into columns, and the status-change protocol shared by drag and
// menu moves.
package board

import (
	"strings"

	"github.com/joescharf/pmdash/internal/models"
)

// All is the filter value that matches every task.
const All = "all"

// Filter narrows the board. Every set field must match.
type Filter struct {
	Search     string `json:"search,omitempty"`
	Priority   string `json:"priority,omitempty"`
	AssigneeID string `json:"assignee_id,omitempty"`
	ProjectID  string `json:"project_id,omitempty"`
}

func isAny(v string) bool {
	return v == "" || v == All
}

// Match reports whether t passes every criterion of f.
func (f Filter) Match(t *models.Task) bool {
	if !isAny(f.Priority) && string(t.Priority) != f.Priority {
		return false
	}
	if !isAny(f.AssigneeID) && t.AssigneeID != f.AssigneeID {
		return false
	}
	if !isAny(f.ProjectID) && t.ProjectID != f.ProjectID {
		return false
	}
	return matchSearch(t, f.Search)
}

func matchSearch(t *models.Task, search string) bool {
	q := strings.ToLower(strings.TrimSpace(search))
	if q == "" {
		return true
	}
	for _, field := range []string{t.Title, t.Description, t.AssigneeName()} {
		if strings.Contains(strings.ToLower(field), q) {
			return true
		}
	}
	return false
}

// Apply returns the tasks matching f, in their original order.
func Apply(tasks []*models.Task, f Filter) []*models.Task {
	out := make([]*models.Task, 0, len(tasks))
	for _, t := range tasks {
		if f.Match(t) {
			out = append(out, t)
		}
	}
	return out
}
