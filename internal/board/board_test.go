package board

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/pmdash/internal/auth"
	"github.com/joescharf/pmdash/internal/collection"
	"github.com/joescharf/pmdash/internal/models"
	"github.com/joescharf/pmdash/internal/notify"
	"github.com/joescharf/pmdash/internal/realtime"
	"github.com/joescharf/pmdash/internal/store"
)

var alice = auth.Identity{UserID: "user-alice"}

func task(id string, status models.TaskStatus) *models.Task {
	return &models.Task{ID: id, Title: "Task " + id, Status: status, Priority: models.PriorityMedium}
}

func ids(ts []*models.Task) []string {
	out := make([]string, len(ts))
	for i, t := range ts {
		out[i] = t.ID
	}
	return out
}

func date(t *testing.T, s string) *models.Date {
	t.Helper()
	d, err := models.ParseDate(s)
	require.NoError(t, err)
	return &d
}

// countingUpdater records every status write.
type countingUpdater struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (u *countingUpdater) UpdateTaskStatus(_ context.Context, id string, status models.TaskStatus) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.calls = append(u.calls, fmt.Sprintf("%s->%s", id, status))
	return u.err
}

// --- Partition ---

func TestPartition_EveryKnownTaskInExactlyOneColumn(t *testing.T) {
	tasks := []*models.Task{
		task("1", models.TaskStatusTodo),
		task("2", models.TaskStatusProgress),
		task("3", models.TaskStatusTesting),
		task("4", models.TaskStatusHold),
		task("5", models.TaskStatusCompleted),
		task("6", models.TaskStatusTodo),
	}
	b := Partition(tasks, DefaultLayout)

	require.Len(t, b.Columns, 5)
	seen := map[string]int{}
	for _, c := range b.Columns {
		for _, tk := range c.Tasks {
			assert.Equal(t, c.Status, tk.Status)
			seen[tk.ID]++
		}
	}
	assert.Len(t, seen, len(tasks))
	for id, n := range seen {
		assert.Equal(t, 1, n, "task %s", id)
	}
	assert.Equal(t, []string{"1", "6"}, ids(b.Columns[0].Tasks), "column keeps input order")
	assert.Empty(t, b.Unrecognized)
}

func TestPartition_UnknownStatusExcludedFromColumns(t *testing.T) {
	odd := task("x", models.ParseTaskStatus("blocked"))
	b := Partition([]*models.Task{task("1", models.TaskStatusTodo), odd}, DefaultLayout)

	assert.Equal(t, 1, b.Count())
	_, found := b.Find("x")
	assert.False(t, found)
	assert.Equal(t, []string{"x"}, ids(b.Unrecognized))
}

func TestPartition_CompactLayoutReportsHoldAsUnrecognized(t *testing.T) {
	b := Partition([]*models.Task{task("1", models.TaskStatusHold)}, CompactLayout)
	assert.Len(t, b.Columns, 4)
	assert.Equal(t, []string{"1"}, ids(b.Unrecognized))
}

func TestPartition_Idempotent(t *testing.T) {
	tasks := []*models.Task{task("1", models.TaskStatusTodo), task("2", models.TaskStatusCompleted)}
	assert.Equal(t, Partition(tasks, DefaultLayout), Partition(tasks, DefaultLayout))
}

func TestPartition_ColumnLabels(t *testing.T) {
	b := Partition(nil, DefaultLayout)
	var labels []string
	for _, c := range b.Columns {
		labels = append(labels, c.Label)
		assert.NotNil(t, c.Tasks)
	}
	assert.Equal(t, []string{"To Do", "In Progress", "Testing", "Hold", "Completed"}, labels)
}

// --- Filter ---

func TestFilter_Conjunction(t *testing.T) {
	a := &models.Task{ID: "a", Title: "Fix login", Priority: models.PriorityHigh, AssigneeID: "m1"}
	b := &models.Task{ID: "b", Title: "Fix logout", Priority: models.PriorityLow, AssigneeID: "m1"}
	c := &models.Task{ID: "c", Title: "Fix layout", Priority: models.PriorityHigh, AssigneeID: "m2"}
	d := &models.Task{ID: "d", Title: "Write docs", Priority: models.PriorityHigh, AssigneeID: "m1"}
	tasks := []*models.Task{a, b, c, d}

	f := Filter{Search: "fix", Priority: "high", AssigneeID: "m1"}
	got := Apply(tasks, f)
	assert.Equal(t, []string{"a"}, ids(got))

	for _, tk := range tasks {
		want := f.Match(tk)
		alone := Filter{Search: f.Search}.Match(tk) &&
			Filter{Priority: f.Priority}.Match(tk) &&
			Filter{AssigneeID: f.AssigneeID}.Match(tk)
		assert.Equal(t, alone, want, "task %s", tk.ID)
	}
}

func TestFilter_SearchFields(t *testing.T) {
	tk := &models.Task{
		Title:       "Checkout page",
		Description: "Totals are rounded wrong",
		Assignee:    &models.MemberRef{ID: "m1", Name: "Priya Shah"},
	}
	assert.True(t, Filter{Search: "CHECKOUT"}.Match(tk))
	assert.True(t, Filter{Search: "rounded"}.Match(tk))
	assert.True(t, Filter{Search: "priya"}.Match(tk))
	assert.False(t, Filter{Search: "invoice"}.Match(tk))
}

func TestFilter_AllMatchesEverything(t *testing.T) {
	tk := &models.Task{Priority: models.PriorityLow, ProjectID: "p1"}
	assert.True(t, Filter{Priority: All, AssigneeID: All, ProjectID: All}.Match(tk))
	assert.False(t, Filter{ProjectID: "p2"}.Match(tk))
}

func TestFilter_EmptySearchPassthrough(t *testing.T) {
	var tasks []*models.Task
	for i := range 5 {
		tasks = append(tasks, task(fmt.Sprint(i), models.TaskStatusTodo))
	}
	assert.Len(t, Apply(tasks, Filter{}), 5)
	assert.Len(t, Apply(tasks, Filter{Search: "   "}), 5)
}

// --- Sort ---

func TestSort_PriorityStable(t *testing.T) {
	tasks := []*models.Task{
		{ID: "m1", Priority: models.PriorityMedium},
		{ID: "h1", Priority: models.PriorityHigh},
		{ID: "l1", Priority: models.PriorityLow},
		{ID: "m2", Priority: models.PriorityMedium},
		{ID: "h2", Priority: models.PriorityHigh},
	}
	got := Sort(tasks, SortPriority)
	assert.Equal(t, []string{"h1", "h2", "m1", "m2", "l1"}, ids(got))
	assert.Equal(t, "m1", tasks[0].ID, "input is not reordered")
}

func TestSort_DueDateNullLast(t *testing.T) {
	tasks := []*models.Task{
		{ID: "1"},
		{ID: "2", DueDate: date(t, "2024-01-10")},
	}
	assert.Equal(t, []string{"2", "1"}, ids(Sort(tasks, SortDueDate)))

	more := []*models.Task{
		{ID: "a"},
		{ID: "b", DueDate: date(t, "2024-03-01")},
		{ID: "c"},
		{ID: "d", DueDate: date(t, "2024-01-05")},
	}
	assert.Equal(t, []string{"d", "b", "a", "c"}, ids(Sort(more, SortDueDate)))
}

func TestSort_TitleAndCreated(t *testing.T) {
	now := time.Now()
	tasks := []*models.Task{
		{ID: "1", Title: "banana", CreatedAt: now.Add(-2 * time.Hour)},
		{ID: "2", Title: "Apple", CreatedAt: now},
		{ID: "3", Title: "cherry", CreatedAt: now.Add(-time.Hour)},
	}
	assert.Equal(t, []string{"2", "1", "3"}, ids(Sort(tasks, SortTitle)))
	assert.Equal(t, []string{"2", "3", "1"}, ids(Sort(tasks, SortCreated)))
}

func TestParseSortKey(t *testing.T) {
	k, err := ParseSortKey("")
	require.NoError(t, err)
	assert.Equal(t, SortCreated, k)

	k, err = ParseSortKey("due_date")
	require.NoError(t, err)
	assert.Equal(t, SortDueDate, k)

	_, err = ParseSortKey("random")
	assert.Error(t, err)
}

func TestBuild(t *testing.T) {
	tasks := []*models.Task{
		{ID: "1", Title: "Fix A", Status: models.TaskStatusTodo, Priority: models.PriorityLow},
		{ID: "2", Title: "Fix B", Status: models.TaskStatusTodo, Priority: models.PriorityHigh},
		{ID: "3", Title: "Docs", Status: models.TaskStatusTodo, Priority: models.PriorityHigh},
	}
	b := Build(tasks, Options{Filter: Filter{Search: "fix"}, Sort: SortPriority})
	require.Len(t, b.Columns, 5)
	assert.Equal(t, []string{"2", "1"}, ids(b.Columns[0].Tasks))
}

// --- Move ---

func TestMove_SameColumnIsNoop(t *testing.T) {
	u := &countingUpdater{}
	rec := &notify.Recorder{}
	refetched := 0
	m := &Mover{Updater: u, Notifier: rec, Refetch: func(context.Context) error { refetched++; return nil }}

	res, err := m.Move(context.Background(), alice, task("1", models.TaskStatusTesting), models.TaskStatusTesting)
	require.NoError(t, err)
	assert.Equal(t, ResultNoop, res)
	assert.Empty(t, u.calls)
	assert.Empty(t, rec.All())
	assert.Zero(t, refetched)
}

func TestMove_Success(t *testing.T) {
	u := &countingUpdater{}
	rec := &notify.Recorder{}
	refetched := 0
	m := &Mover{Updater: u, Notifier: rec, Refetch: func(context.Context) error { refetched++; return nil }}

	res, err := m.Move(context.Background(), alice, task("1", models.TaskStatusTodo), models.TaskStatusCompleted)
	require.NoError(t, err)
	assert.Equal(t, ResultMoved, res)
	assert.Equal(t, []string{"1->completed"}, u.calls)
	assert.Equal(t, 1, refetched)

	last, ok := rec.Last()
	require.True(t, ok)
	assert.Equal(t, notify.Success("Task Status Updated", "Task moved to Completed"), last)
}

func TestMove_UpdateFailure(t *testing.T) {
	u := &countingUpdater{err: errors.New("connection reset")}
	rec := &notify.Recorder{}
	refetched := 0
	m := &Mover{Updater: u, Notifier: rec, Refetch: func(context.Context) error { refetched++; return nil }}

	tk := task("1", models.TaskStatusTodo)
	_, err := m.Move(context.Background(), alice, tk, models.TaskStatusProgress)
	require.Error(t, err)
	assert.Equal(t, models.TaskStatusTodo, tk.Status, "no local change on failure")
	assert.Zero(t, refetched)

	last, _ := rec.Last()
	assert.Equal(t, notify.VariantDestructive, last.Variant)
	assert.Equal(t, "Failed to update task status", last.Description)
}

func TestMove_RequiresIdentity(t *testing.T) {
	u := &countingUpdater{}
	rec := &notify.Recorder{}
	m := &Mover{Updater: u, Notifier: rec}

	_, err := m.Move(context.Background(), auth.Identity{}, task("1", models.TaskStatusTodo), models.TaskStatusHold)
	assert.ErrorIs(t, err, auth.ErrUnauthenticated)
	assert.Empty(t, u.calls)
	assert.Len(t, rec.All(), 1)
}

func TestMove_InvalidTarget(t *testing.T) {
	u := &countingUpdater{}
	m := &Mover{Updater: u}
	_, err := m.Move(context.Background(), alice, task("1", models.TaskStatusTodo), models.TaskStatusUnknown)
	assert.ErrorIs(t, err, ErrInvalidStatus)
	assert.Empty(t, u.calls)
}

func TestMove_RoundTripThroughRefetch(t *testing.T) {
	ctx := context.Background()
	base, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, base.Migrate(ctx))
	t.Cleanup(func() { base.Close() })

	hub := realtime.NewHub(nil)
	s := store.NewNotifying(base, hub)
	tk := &models.Task{Title: "Ship it", Status: models.TaskStatusTodo, Priority: models.PriorityHigh}
	require.NoError(t, s.CreateTask(ctx, tk))

	tasks := collection.Tasks(s, hub, "", nil)
	t.Cleanup(tasks.Unmount)
	require.NoError(t, tasks.Mount(ctx))

	m := &Mover{Updater: s, Notifier: &notify.Recorder{}, Refetch: tasks.Refetch}
	before := Partition(tasks.Items(), DefaultLayout)
	held, ok := before.Find(tk.ID)
	require.True(t, ok)

	res, err := m.Move(ctx, alice, held, models.TaskStatusTesting)
	require.NoError(t, err)
	assert.Equal(t, ResultMoved, res)

	after := Partition(tasks.Items(), DefaultLayout)
	col, _ := after.Column(models.TaskStatusTesting)
	assert.Equal(t, []string{tk.ID}, ids(col.Tasks))
	todo, _ := after.Column(models.TaskStatusTodo)
	assert.Empty(t, todo.Tasks)
}

// --- Drag ---

func dragBoard() *Board {
	b := Partition([]*models.Task{
		task("1", models.TaskStatusTodo),
		task("2", models.TaskStatusProgress),
	}, DefaultLayout)
	return &b
}

func TestDrag_DropOnColumn(t *testing.T) {
	d := NewDragSession(dragBoard())
	require.True(t, d.Start("1"))
	assert.True(t, d.IsDragging("1"))
	assert.False(t, d.IsDragging("2"))
	assert.Equal(t, "1", d.Active().ID)

	drop, ok := d.End("completed")
	require.True(t, ok)
	assert.Equal(t, models.TaskStatusCompleted, drop.To)
	assert.False(t, drop.SameColumn())
	assert.Nil(t, d.Active())
}

func TestDrag_DropOnCardResolvesItsColumn(t *testing.T) {
	d := NewDragSession(dragBoard())
	require.True(t, d.Start("1"))
	drop, ok := d.End("2")
	require.True(t, ok)
	assert.Equal(t, models.TaskStatusProgress, drop.To)
}

func TestDrag_DropOutsideCancels(t *testing.T) {
	d := NewDragSession(dragBoard())
	require.True(t, d.Start("1"))
	_, ok := d.End("sidebar")
	assert.False(t, ok)
	assert.Nil(t, d.Active())

	require.True(t, d.Start("1"))
	_, ok = d.End("")
	assert.False(t, ok)
}

func TestDrag_DropOnOriginIsNoop(t *testing.T) {
	d := NewDragSession(dragBoard())
	require.True(t, d.Start("1"))
	drop, ok := d.End("todo")
	require.True(t, ok)
	assert.True(t, drop.SameColumn())

	u := &countingUpdater{}
	res, err := (&Mover{Updater: u}).Move(context.Background(), alice, drop.Task, drop.To)
	require.NoError(t, err)
	assert.Equal(t, ResultNoop, res)
	assert.Empty(t, u.calls)
}

func TestDrag_StartUnknownTask(t *testing.T) {
	d := NewDragSession(dragBoard())
	assert.False(t, d.Start("missing"))
	assert.Nil(t, d.Active())
	_, ok := d.End("todo")
	assert.False(t, ok)
}

func TestDrag_Cancel(t *testing.T) {
	d := NewDragSession(dragBoard())
	require.True(t, d.Start("2"))
	d.Cancel()
	assert.False(t, d.IsDragging("2"))
}

// --- Menu ---

func TestMenuOptions(t *testing.T) {
	opts := MenuOptions(task("1", models.TaskStatusTesting), DefaultLayout)
	require.Len(t, opts, 5)
	assert.Equal(t, "Move to To Do", opts[0].Label)
	for _, o := range opts {
		assert.Equal(t, o.Status == models.TaskStatusTesting, o.Disabled, o.Label)
	}
}

func TestPendingMove_ConfirmAndCancel(t *testing.T) {
	tk := &models.Task{ID: "1", Title: "Fix login", Status: models.TaskStatusTodo}
	u := &countingUpdater{}
	m := &Mover{Updater: u, Notifier: &notify.Recorder{}}

	p, err := RequestMove(tk, models.TaskStatusHold, DefaultLayout)
	require.NoError(t, err)
	assert.Equal(t, `Are you sure you want to move "Fix login" to Hold?`, p.Prompt())

	p.Cancel()
	_, err = p.Confirm(context.Background(), m, alice)
	assert.ErrorIs(t, err, ErrMoveSettled)
	assert.Empty(t, u.calls, "cancel never mutates")

	p, err = RequestMove(tk, models.TaskStatusHold, DefaultLayout)
	require.NoError(t, err)
	res, err := p.Confirm(context.Background(), m, alice)
	require.NoError(t, err)
	assert.Equal(t, ResultMoved, res)
	assert.Equal(t, []string{"1->hold"}, u.calls)
}

func TestRequestMove_OutsideLayout(t *testing.T) {
	_, err := RequestMove(task("1", models.TaskStatusTodo), models.TaskStatusHold, CompactLayout)
	assert.ErrorIs(t, err, ErrInvalidStatus)
}
