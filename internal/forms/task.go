package forms

import (
	"context"
	"fmt"
	"strings"

	"github.com/joescharf/pmdash/internal/auth"
	"github.com/joescharf/pmdash/internal/models"
	"github.com/joescharf/pmdash/internal/notify"
)

// TaskInput is the task dialog. An empty ID creates a new task.
type TaskInput struct {
	ID          string   `json:"id,omitempty"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Status      string   `json:"status,omitempty"`
	Priority    string   `json:"priority,omitempty"`
	DueDate     string   `json:"due_date,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	ProjectID   string   `json:"project_id,omitempty"`
	AssigneeID  string   `json:"assignee_id,omitempty"`
}

type taskFields struct {
	title    string
	priority models.Priority
	status   models.TaskStatus
	due      *models.Date
}

func (in TaskInput) validate() (taskFields, error) {
	var f taskFields
	f.title = strings.TrimSpace(in.Title)
	if f.title == "" {
		return f, invalid("title", "Task title is required")
	}

	if p := strings.TrimSpace(in.Priority); p != "" {
		f.priority = models.ParsePriority(p)
		if f.priority == models.PriorityUnknown {
			return f, invalid("priority", fmt.Sprintf("invalid priority %q", p))
		}
	}

	if s := strings.TrimSpace(in.Status); s != "" {
		f.status = models.ParseTaskStatus(s)
		if !f.status.Valid() {
			return f, invalid("status", fmt.Sprintf("invalid status %q", s))
		}
	}

	due, err := parseOptionalDate("due_date", in.DueDate)
	if err != nil {
		return f, err
	}
	f.due = due
	return f, nil
}

// SaveTask creates or updates a task. New tasks always start in To Do. On an
// update a blank status or priority keeps the stored value.
func (s *Submitter) SaveTask(ctx context.Context, id auth.Identity, in TaskInput) (*models.Task, error) {
	var f taskFields
	err := s.guard(ctx, id, "You must be logged in to create tasks", func() error {
		var verr error
		f, verr = in.validate()
		return verr
	})
	if err != nil {
		return nil, err
	}

	var t *models.Task
	if in.ID == "" {
		t = &models.Task{Status: models.TaskStatusTodo, Priority: models.PriorityMedium, CreatedBy: id.UserID}
	} else {
		existing, err := s.Store.GetTask(ctx, in.ID)
		if err != nil {
			return nil, s.saveFailed(ctx, fmt.Errorf("load task: %w", err))
		}
		t = existing
		if f.status != "" {
			t.Status, t.StatusRaw = f.status, ""
		}
	}
	t.Title = f.title
	t.Description = strings.TrimSpace(in.Description)
	if f.priority != "" {
		t.Priority, t.PriorityRaw = f.priority, ""
	}
	t.DueDate = f.due
	t.Tags = cleanList(in.Tags)
	t.ProjectID = in.ProjectID
	t.AssigneeID = in.AssigneeID

	if in.ID == "" {
		err = s.Store.CreateTask(ctx, t)
	} else {
		err = s.Store.UpdateTask(ctx, t)
	}
	if err != nil {
		return nil, s.saveFailed(ctx, fmt.Errorf("save task: %w", err))
	}

	s.notify(ctx, notify.Success("Task Saved", fmt.Sprintf("Task \"%s\" has been saved successfully.", t.Title)))
	return t, nil
}

func (s *Submitter) saveFailed(ctx context.Context, err error) error {
	s.Logger.Error("task save failed", "error", err)
	s.notify(ctx, notify.Failure("Error", "Failed to save task. Please try again."))
	return err
}
