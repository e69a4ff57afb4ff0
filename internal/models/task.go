package models

import "time"

// TaskStatus is the board column a task sits in.
type TaskStatus string

const (
	TaskStatusTodo      TaskStatus = "todo"
	TaskStatusProgress  TaskStatus = "progress"
	TaskStatusTesting   TaskStatus = "testing"
	TaskStatusHold      TaskStatus = "hold"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusUnknown   TaskStatus = "unknown"
)

// TaskStatuses lists every known status in board order.
var TaskStatuses = []TaskStatus{
	TaskStatusTodo, TaskStatusProgress, TaskStatusTesting, TaskStatusHold, TaskStatusCompleted,
}

var taskStatusLabels = map[TaskStatus]string{
	TaskStatusTodo:      "To Do",
	TaskStatusProgress:  "In Progress",
	TaskStatusTesting:   "Testing",
	TaskStatusHold:      "Hold",
	TaskStatusCompleted: "Completed",
}

// ParseTaskStatus decodes a stored status, mapping anything unrecognised to unknown.
func ParseTaskStatus(raw string) TaskStatus {
	return parseEnum(raw, TaskStatuses, TaskStatusUnknown)
}

// Label is the human-readable column title.
func (s TaskStatus) Label() string {
	if l, ok := taskStatusLabels[s]; ok {
		return l
	}
	return "Unknown"
}

// Valid reports whether s is a known status.
func (s TaskStatus) Valid() bool {
	_, ok := taskStatusLabels[s]
	return ok
}

// Priority is a task's urgency.
type Priority string

const (
	PriorityHigh    Priority = "high"
	PriorityMedium  Priority = "medium"
	PriorityLow     Priority = "low"
	PriorityUnknown Priority = "unknown"
)

// Priorities lists the known priorities, most urgent first.
var Priorities = []Priority{PriorityHigh, PriorityMedium, PriorityLow}

// ParsePriority decodes a stored priority.
func ParsePriority(raw string) Priority {
	return parseEnum(raw, Priorities, PriorityUnknown)
}

// Rank orders priorities for sorting: high=3, medium=2, low=1, unknown=0.
func (p Priority) Rank() int {
	switch p {
	case PriorityHigh:
		return 3
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 1
	default:
		return 0
	}
}

// MemberRef is the joined subset of a team member carried on tasks.
type MemberRef struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

// Task is a unit of work placed on the board.
type Task struct {
	ID          string      `json:"id"`
	Title       string      `json:"title"`
	Description string      `json:"description,omitempty"`
	Status      TaskStatus  `json:"status"`
	StatusRaw   string      `json:"status_raw,omitempty"`
	Priority    Priority    `json:"priority"`
	PriorityRaw string      `json:"priority_raw,omitempty"`
	DueDate     *Date       `json:"due_date,omitempty"`
	Tags        []string    `json:"tags,omitempty"`
	ProjectID   string      `json:"project_id,omitempty"`
	AssigneeID  string      `json:"assignee_id,omitempty"`
	CreatedBy   string      `json:"created_by,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
	Assignee    *MemberRef  `json:"assignee,omitempty"`
	Project     *ProjectRef `json:"project,omitempty"`
}

// DecodeEnums normalizes enumerated fields after a read.
func (t *Task) DecodeEnums() {
	rawStatus, rawPriority := string(t.Status), string(t.Priority)
	t.Status = ParseTaskStatus(rawStatus)
	t.StatusRaw = rawIfUnknown(t.Status, TaskStatusUnknown, rawStatus)
	t.Priority = ParsePriority(rawPriority)
	t.PriorityRaw = rawIfUnknown(t.Priority, PriorityUnknown, rawPriority)
}

// StoredStatus is the value written back for Status; unknown round-trips its raw text.
func (t *Task) StoredStatus() string {
	if t.Status == TaskStatusUnknown && t.StatusRaw != "" {
		return t.StatusRaw
	}
	return string(t.Status)
}

// StoredPriority is the value written back for Priority.
func (t *Task) StoredPriority() string {
	if t.Priority == PriorityUnknown && t.PriorityRaw != "" {
		return t.PriorityRaw
	}
	return string(t.Priority)
}

// AssigneeName returns the joined assignee name or "".
func (t *Task) AssigneeName() string {
	if t.Assignee == nil {
		return ""
	}
	return t.Assignee.Name
}

// IsOverdue reports whether the task is unfinished and past its due date on day today.
func (t *Task) IsOverdue(today Date) bool {
	return t.DueDate != nil && t.Status != TaskStatusCompleted && t.DueDate.Before(today)
}
