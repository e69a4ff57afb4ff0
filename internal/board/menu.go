package board

import (
	"context"
	"errors"
	"fmt"

	"github.com/joescharf/pmdash/internal/auth"
	"github.com/joescharf/pmdash/internal/models"
)

// MenuOption is one "Move to" entry in a card's menu.
type MenuOption struct {
	Status   models.TaskStatus `json:"status"`
	Label    string            `json:"label"`
	Disabled bool              `json:"disabled"`
}

// MenuOptions lists every column of layout, disabling the task's own.
func MenuOptions(task *models.Task, layout Layout) []MenuOption {
	opts := make([]MenuOption, len(layout))
	for i, s := range layout {
		opts[i] = MenuOption{
			Status:   s,
			Label:    "Move to " + s.Label(),
			Disabled: s == task.Status,
		}
	}
	return opts
}

// ErrMoveSettled is returned when a pending move is used after it was
// confirmed or cancelled.
var ErrMoveSettled = errors.New("move already confirmed or cancelled")

// PendingMove is a menu selection awaiting confirmation.
type PendingMove struct {
	Task    *models.Task
	To      models.TaskStatus
	settled bool
}

// RequestMove opens a confirmation for moving task to one of layout's columns.
func RequestMove(task *models.Task, to models.TaskStatus, layout Layout) (*PendingMove, error) {
	if !layout.Contains(to) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, to)
	}
	return &PendingMove{Task: task, To: to}, nil
}

// Prompt is the confirmation question shown to the user.
func (p *PendingMove) Prompt() string {
	return fmt.Sprintf("Are you sure you want to move \"%s\" to %s?", p.Task.Title, p.To.Label())
}

// Confirm runs the move.
func (p *PendingMove) Confirm(ctx context.Context, m *Mover, id auth.Identity) (Result, error) {
	if p.settled {
		return "", ErrMoveSettled
	}
	p.settled = true
	return m.Move(ctx, id, p.Task, p.To)
}

// Cancel discards the move without touching the store.
func (p *PendingMove) Cancel() {
	p.settled = true
}
