// Package activity derives a project's activity feed from its tasks, QA
// issues and attachments.
package activity

import (
	"fmt"
	"sort"
	"time"

	"github.com/joescharf/pmdash/internal/models"
)

// Type classifies a feed entry.
type Type string

const (
	TaskCreated   Type = "task_created"
	TaskAssigned  Type = "task_assigned"
	TaskCompleted Type = "task_completed"
	TaskUpdated   Type = "task_updated"
	QAIssue       Type = "qa_issue"
	FileUploaded  Type = "file_uploaded"
)

// AllTypes returns every feed type.
func AllTypes() map[Type]bool {
	return map[Type]bool{
		TaskCreated:   true,
		TaskAssigned:  true,
		TaskCompleted: true,
		TaskUpdated:   true,
		QAIssue:       true,
		FileUploaded:  true,
	}
}

// ParseType validates a filter value. "" and "all" mean every type.
func ParseType(s string) (Type, error) {
	if s == "" || s == "all" {
		return "", nil
	}
	if AllTypes()[Type(s)] {
		return Type(s), nil
	}
	return "", fmt.Errorf("unknown activity type %q", s)
}

// Actor is who the entry is attributed to.
type Actor struct {
	ID        string `json:"id,omitempty"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

// Item is one feed entry.
type Item struct {
	ID          string    `json:"id"`
	Type        Type      `json:"type"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Actor       Actor     `json:"user"`
	At          time.Time `json:"timestamp"`
	RecordID    string    `json:"record_id"`
}

var systemActor = Actor{Name: "System User"}

func assigneeActor(t *models.Task) Actor {
	if t.Assignee == nil {
		return Actor{Name: "Unknown User"}
	}
	return Actor{ID: t.Assignee.ID, Name: t.Assignee.Name, AvatarURL: t.Assignee.AvatarURL}
}

// Build assembles the feed, newest first. A non-empty only keeps a single type.
func Build(tasks []*models.Task, issues []*models.QAIssue, only Type) []Item {
	var items []Item
	for _, t := range tasks {
		items = append(items, Item{
			ID:          "activity-" + t.ID + "-created",
			Type:        TaskCreated,
			Title:       "Task Created",
			Description: fmt.Sprintf("Created task \"%s\"", t.Title),
			Actor:       systemActor,
			At:          t.CreatedAt,
			RecordID:    t.ID,
		})
		if t.Assignee != nil {
			items = append(items, Item{
				ID:          "activity-" + t.ID + "-assigned",
				Type:        TaskAssigned,
				Title:       "Task Assigned",
				Description: fmt.Sprintf("Assigned \"%s\" to %s", t.Title, t.Assignee.Name),
				Actor:       systemActor,
				At:          t.CreatedAt,
				RecordID:    t.ID,
			})
		}
		switch t.Status {
		case models.TaskStatusCompleted:
			items = append(items, Item{
				ID:          "activity-" + t.ID + "-completed",
				Type:        TaskCompleted,
				Title:       "Task Completed",
				Description: fmt.Sprintf("Completed task \"%s\"", t.Title),
				Actor:       assigneeActor(t),
				At:          t.UpdatedAt,
				RecordID:    t.ID,
			})
		case models.TaskStatusProgress, models.TaskStatusTesting:
			items = append(items, Item{
				ID:          "activity-" + t.ID + "-updated",
				Type:        TaskUpdated,
				Title:       "Task Updated",
				Description: fmt.Sprintf("Updated task \"%s\" status to %s", t.Title, t.Status.Label()),
				Actor:       assigneeActor(t),
				At:          t.UpdatedAt,
				RecordID:    t.ID,
			})
		}
	}

	for _, q := range issues {
		reporter := systemActor
		if q.Tester != nil {
			reporter = Actor{ID: q.Tester.ID, Name: q.Tester.Name, AvatarURL: q.Tester.AvatarURL}
		}
		items = append(items, Item{
			ID:          "activity-" + q.ID + "-qa",
			Type:        QAIssue,
			Title:       "QA Issue Reported",
			Description: fmt.Sprintf("Reported %s issue \"%s\"", q.Severity, q.Title),
			Actor:       reporter,
			At:          q.CreatedAt,
			RecordID:    q.ID,
		})
		for _, a := range q.Attachments {
			items = append(items, Item{
				ID:          "activity-" + a.ID + "-file",
				Type:        FileUploaded,
				Title:       "File Uploaded",
				Description: fmt.Sprintf("Uploaded %s to \"%s\"", a.FileName, q.Title),
				Actor:       systemActor,
				At:          a.CreatedAt,
				RecordID:    a.ID,
			})
		}
	}

	if only != "" {
		kept := items[:0]
		for _, it := range items {
			if it.Type == only {
				kept = append(kept, it)
			}
		}
		items = kept
	}

	sort.SliceStable(items, func(i, j int) bool {
		return items[i].At.After(items[j].At)
	})
	if items == nil {
		items = []Item{}
	}
	return items
}
