package board

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/joescharf/pmdash/internal/auth"
	"github.com/joescharf/pmdash/internal/models"
	"github.com/joescharf/pmdash/internal/notify"
)

// Result says what a move did.
type Result string

const (
	ResultMoved Result = "moved"
	ResultNoop  Result = "noop"
)

// StatusUpdater writes a task's status field. Both the store and the remote
// client satisfy it.
type StatusUpdater interface {
	UpdateTaskStatus(ctx context.Context, id string, status models.TaskStatus) error
}

// Mover runs the status-change protocol: skip same-column moves, issue one
// status update, report the outcome and refetch. The held list is never
// patched locally; the refetch is the only path by which a move becomes
// visible.
type Mover struct {
	Updater  StatusUpdater
	Notifier notify.Notifier
	// Refetch reloads the task list after a successful update. Optional.
	Refetch func(ctx context.Context) error
	Logger  *slog.Logger
}

// ErrInvalidStatus rejects moves to a status that is not a board column.
var ErrInvalidStatus = errors.New("invalid task status")

// Move changes task's status to to on behalf of id.
func (m *Mover) Move(ctx context.Context, id auth.Identity, task *models.Task, to models.TaskStatus) (Result, error) {
	if task.Status == to {
		return ResultNoop, nil
	}
	if !to.Valid() {
		m.notify(ctx, notify.Failure("Error", "Failed to update task status"))
		return "", fmt.Errorf("%w: %q", ErrInvalidStatus, to)
	}
	if err := id.Require(); err != nil {
		m.notify(ctx, notify.Failure("Error", "You must be logged in to update tasks"))
		return "", err
	}

	if err := m.Updater.UpdateTaskStatus(ctx, task.ID, to); err != nil {
		m.notify(ctx, notify.Failure("Error", "Failed to update task status"))
		return "", fmt.Errorf("update task status: %w", err)
	}

	if m.Refetch != nil {
		if err := m.Refetch(ctx); err != nil {
			m.logger().Warn("refetch after move failed", "task", task.ID, "error", err)
		}
	}
	m.notify(ctx, notify.Success("Task Status Updated", "Task moved to "+to.Label()))
	return ResultMoved, nil
}

func (m *Mover) notify(ctx context.Context, n notify.Notification) {
	if m.Notifier != nil {
		m.Notifier.Notify(ctx, n)
	}
}

func (m *Mover) logger() *slog.Logger {
	if m.Logger != nil {
		return m.Logger
	}
	return slog.New(slog.DiscardHandler)
}
