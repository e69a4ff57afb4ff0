package cmd

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/pmdash/internal/board"
	"github.com/joescharf/pmdash/internal/models"
)

// boardEnv opens the configured store and seeds one task per given status.
func boardEnv(t *testing.T, statuses ...models.TaskStatus) (*bytes.Buffer, []*models.Task) {
	t.Helper()
	testEnv(t)
	var out bytes.Buffer
	ui.Out, ui.ErrOut = &out, &out

	s, err := getStore()
	require.NoError(t, err)

	var tasks []*models.Task
	for i, st := range statuses {
		task := &models.Task{
			Title:    "Task " + string(rune('A'+i)),
			Status:   st,
			Priority: models.PriorityMedium,
		}
		require.NoError(t, s.CreateTask(context.Background(), task))
		tasks = append(tasks, task)
	}

	boardSearch, boardPriority, boardAssignee, boardProject, boardSort = "", "", "", "", ""
	boardNoHold, moveYes = false, false
	t.Cleanup(func() { promptIn = strings.NewReader("") })
	return &out, tasks
}

func storedStatus(t *testing.T, id string) models.TaskStatus {
	t.Helper()
	task, err := dataStore.GetTask(context.Background(), id)
	require.NoError(t, err)
	return task.Status
}

func TestBoardMoveRun_Confirmed(t *testing.T) {
	out, tasks := boardEnv(t, models.TaskStatusTodo)
	promptIn = strings.NewReader("y\n")

	require.NoError(t, boardMoveRun(tasks[0].ID, "testing"))

	assert.Equal(t, models.TaskStatusTesting, storedStatus(t, tasks[0].ID))
	assert.Contains(t, out.String(), `Are you sure you want to move "Task A" to Testing?`)
	assert.Contains(t, out.String(), "Task moved to Testing")
}

func TestBoardMoveRun_Declined(t *testing.T) {
	out, tasks := boardEnv(t, models.TaskStatusTodo)
	promptIn = strings.NewReader("n\n")

	require.NoError(t, boardMoveRun(tasks[0].ID, "completed"))

	assert.Equal(t, models.TaskStatusTodo, storedStatus(t, tasks[0].ID))
	assert.Contains(t, out.String(), "Move cancelled")
	assert.NotContains(t, out.String(), "Task moved")
}

func TestBoardMoveRun_SameColumnIsNoop(t *testing.T) {
	out, tasks := boardEnv(t, models.TaskStatusProgress)

	require.NoError(t, boardMoveRun(tasks[0].ID, "progress"))

	assert.Equal(t, models.TaskStatusProgress, storedStatus(t, tasks[0].ID))
	assert.NotContains(t, out.String(), "Are you sure")
	assert.NotContains(t, out.String(), "Task moved")
}

func TestBoardMoveRun_Yes(t *testing.T) {
	_, tasks := boardEnv(t, models.TaskStatusTodo)
	moveYes = true

	require.NoError(t, boardMoveRun(tasks[0].ID, "hold"))
	assert.Equal(t, models.TaskStatusHold, storedStatus(t, tasks[0].ID))
}

func TestBoardMoveRun_Rejects(t *testing.T) {
	t.Run("unknown status", func(t *testing.T) {
		_, tasks := boardEnv(t, models.TaskStatusTodo)
		err := boardMoveRun(tasks[0].ID, "archived")
		assert.ErrorIs(t, err, board.ErrInvalidStatus)
	})

	t.Run("hold on a board without hold", func(t *testing.T) {
		_, tasks := boardEnv(t, models.TaskStatusTodo)
		boardNoHold = true
		err := boardMoveRun(tasks[0].ID, "hold")
		assert.ErrorIs(t, err, board.ErrInvalidStatus)
	})

	t.Run("dry run leaves the task", func(t *testing.T) {
		_, tasks := boardEnv(t, models.TaskStatusTodo)
		dryRun = true
		t.Cleanup(func() { dryRun = false })

		require.NoError(t, boardMoveRun(tasks[0].ID, "progress"))
		assert.Equal(t, models.TaskStatusTodo, storedStatus(t, tasks[0].ID))
	})
}

func TestConfirm(t *testing.T) {
	testEnv(t)
	ui.Out = &bytes.Buffer{}
	t.Cleanup(func() { promptIn = strings.NewReader("") })

	for answer, want := range map[string]bool{
		"y\n":   true,
		"YES\n": true,
		" y ":   true,
		"n\n":   false,
		"\n":    false,
		"":      false,
		"yep\n": false,
	} {
		promptIn = strings.NewReader(answer)
		assert.Equal(t, want, confirm("Continue?"), "answer %q", answer)
	}
}

func TestRenderBoard(t *testing.T) {
	out, _ := boardEnv(t, models.TaskStatusTodo)
	// A status written by another client that this board does not know.
	foreign := &models.Task{Title: "Foreign", Status: models.TaskStatusUnknown, StatusRaw: "blocked"}
	require.NoError(t, dataStore.CreateTask(context.Background(), foreign))

	out.Reset()
	require.NoError(t, boardShowRun())

	s := out.String()
	assert.Contains(t, s, "To Do (1)")
	assert.Contains(t, s, "Completed (0)")
	assert.Contains(t, s, "Hold (0)")
	assert.Contains(t, s, "Unrecognized status (1)")
	assert.Contains(t, s, `[status "blocked"]`)
}

func TestBoardMenuRun(t *testing.T) {
	out, tasks := boardEnv(t, models.TaskStatusTesting)
	out.Reset()

	require.NoError(t, boardMenuRun(tasks[0].ID))

	s := out.String()
	assert.Contains(t, s, "Testing (current)")
	assert.Contains(t, s, "Move to To Do")
	assert.Contains(t, s, "Move to Completed")
}
