package board

import (
	"github.com/joescharf/pmdash/internal/models"
)

// Layout is the ordered set of columns a board shows.
type Layout []models.TaskStatus

var (
	// DefaultLayout shows every status, hold included.
	DefaultLayout = Layout(models.TaskStatuses)
	// CompactLayout omits the hold column.
	CompactLayout = Layout{
		models.TaskStatusTodo, models.TaskStatusProgress, models.TaskStatusTesting, models.TaskStatusCompleted,
	}
)

// LayoutFor picks the compact layout when withHold is false.
func LayoutFor(withHold bool) Layout {
	if withHold {
		return DefaultLayout
	}
	return CompactLayout
}

// Contains reports whether s is one of the layout's columns.
func (l Layout) Contains(s models.TaskStatus) bool {
	for _, c := range l {
		if c == s {
			return true
		}
	}
	return false
}

// Column is one status lane.
type Column struct {
	Status models.TaskStatus `json:"status"`
	Label  string            `json:"label"`
	Tasks  []*models.Task    `json:"tasks"`
}

// Board is the partitioned view. Tasks whose status has no column land in
// Unrecognized rather than silently disappearing.
type Board struct {
	Columns      []Column       `json:"columns"`
	Unrecognized []*models.Task `json:"unrecognized"`
}

// Partition projects tasks into the layout's columns, preserving order.
// It is pure: partitioning the same input twice yields the same board.
func Partition(tasks []*models.Task, layout Layout) Board {
	b := Board{
		Columns:      make([]Column, len(layout)),
		Unrecognized: []*models.Task{},
	}
	index := make(map[models.TaskStatus]int, len(layout))
	for i, s := range layout {
		b.Columns[i] = Column{Status: s, Label: s.Label(), Tasks: []*models.Task{}}
		index[s] = i
	}
	for _, t := range tasks {
		i, ok := index[t.Status]
		if !ok {
			b.Unrecognized = append(b.Unrecognized, t)
			continue
		}
		b.Columns[i].Tasks = append(b.Columns[i].Tasks, t)
	}
	return b
}

// Options describes one rendering of the board.
type Options struct {
	Filter Filter
	Sort   SortKey
	Layout Layout
}

// Build filters, sorts and partitions tasks.
func Build(tasks []*models.Task, opts Options) Board {
	layout := opts.Layout
	if len(layout) == 0 {
		layout = DefaultLayout
	}
	return Partition(Sort(Apply(tasks, opts.Filter), opts.Sort), layout)
}

// Column returns the lane for s.
func (b *Board) Column(s models.TaskStatus) (*Column, bool) {
	for i := range b.Columns {
		if b.Columns[i].Status == s {
			return &b.Columns[i], true
		}
	}
	return nil, false
}

// Find locates a task on the board by id.
func (b *Board) Find(taskID string) (*models.Task, bool) {
	for _, c := range b.Columns {
		for _, t := range c.Tasks {
			if t.ID == taskID {
				return t, true
			}
		}
	}
	return nil, false
}

// Layout returns the statuses of the board's columns in order.
func (b *Board) Layout() Layout {
	l := make(Layout, len(b.Columns))
	for i, c := range b.Columns {
		l[i] = c.Status
	}
	return l
}

// Count is the number of tasks placed in columns.
func (b *Board) Count() int {
	n := 0
	for _, c := range b.Columns {
		n += len(c.Tasks)
	}
	return n
}
