package board

import (
	"sync"

	"github.com/joescharf/pmdash/internal/models"
)

// Drop is the outcome of releasing a dragged card over a column.
type Drop struct {
	Task *models.Task
	To   models.TaskStatus
}

// SameColumn reports whether the card was released over its own column.
func (d Drop) SameColumn() bool {
	return d.Task.Status == d.To
}

// DragSession tracks one drag gesture over a board snapshot.
type DragSession struct {
	mu     sync.Mutex
	board  *Board
	active *models.Task
}

// NewDragSession starts tracking drags over b.
func NewDragSession(b *Board) *DragSession {
	return &DragSession{board: b}
}

// Start captures the dragged task. It fails when the id is not on the board.
func (d *DragSession) Start(taskID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	t, ok := d.board.Find(taskID)
	if !ok {
		d.active = nil
		return false
	}
	d.active = t
	return true
}

// Active is the card shown in the drag overlay, or nil.
func (d *DragSession) Active() *models.Task {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.active
}

// IsDragging reports whether taskID is the card being dragged, so its
// in-column placeholder can be dimmed.
func (d *DragSession) IsDragging(taskID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.active != nil && d.active.ID == taskID
}

// ResolveDropTarget maps the id under the pointer to a column. A column id
// resolves to itself, a task id to the column holding that task. Anything
// else is outside every column.
func (d *DragSession) ResolveDropTarget(overID string) (models.TaskStatus, bool) {
	if overID == "" {
		return "", false
	}
	s := models.TaskStatus(overID)
	if _, ok := d.board.Column(s); ok {
		return s, true
	}
	if t, ok := d.board.Find(overID); ok {
		return t.Status, true
	}
	return "", false
}

// End finishes the gesture released over overID. It returns false when
// nothing was being dragged or the release was outside every column.
func (d *DragSession) End(overID string) (Drop, bool) {
	to, ok := d.ResolveDropTarget(overID)

	d.mu.Lock()
	active := d.active
	d.active = nil
	d.mu.Unlock()

	if active == nil || !ok {
		return Drop{}, false
	}
	return Drop{Task: active, To: to}, true
}

// Cancel abandons the gesture.
func (d *DragSession) Cancel() {
	d.mu.Lock()
	d.active = nil
	d.mu.Unlock()
}
