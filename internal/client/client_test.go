package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/pmdash/internal/api"
	"github.com/joescharf/pmdash/internal/auth"
	"github.com/joescharf/pmdash/internal/board"
	"github.com/joescharf/pmdash/internal/collection"
	"github.com/joescharf/pmdash/internal/forms"
	"github.com/joescharf/pmdash/internal/models"
	"github.com/joescharf/pmdash/internal/realtime"
	"github.com/joescharf/pmdash/internal/store"
)

func setupServer(t *testing.T) (*Client, store.Store) {
	t.Helper()
	dir := t.TempDir()
	base, err := store.NewSQLiteStore(filepath.Join(dir, "test.db"))
	require.NoError(t, err)
	require.NoError(t, base.Migrate(context.Background()))
	t.Cleanup(func() { base.Close() })

	hub := realtime.NewHub(nil)
	s := store.NewNotifying(base, hub)
	verifier := auth.NewVerifier("test-secret", "")
	token, err := verifier.Issue(auth.Identity{UserID: "user-alice"}, time.Hour)
	require.NoError(t, err)

	ts := httptest.NewServer(api.NewServer(s, hub, nil, nil, verifier, nil).Router(nil))
	t.Cleanup(ts.Close)
	return New(ts.URL, token), s
}

func TestTaskRoundTrip(t *testing.T) {
	c, _ := setupServer(t)
	ctx := context.Background()

	task, err := c.SaveTask(ctx, forms.TaskInput{Title: "Wire sync", Priority: "high"})
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusTodo, task.Status)

	res, err := c.MoveTask(ctx, task.ID, models.TaskStatusProgress)
	require.NoError(t, err)
	assert.Equal(t, board.ResultMoved, res.Result)
	assert.Equal(t, models.TaskStatusProgress, res.Task.Status)

	got, err := c.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusProgress, got.Status)

	view, err := c.Board(ctx, board.Options{Filter: board.Filter{Priority: "high"}, Layout: board.CompactLayout})
	require.NoError(t, err)
	assert.Len(t, view.Columns, 4)
	assert.Equal(t, 1, view.Total)
}

func TestErrorMapping(t *testing.T) {
	c, _ := setupServer(t)
	ctx := context.Background()

	_, err := c.GetTask(ctx, "missing")
	assert.True(t, store.IsNotFound(err))

	_, err = c.SaveTask(ctx, forms.TaskInput{Title: " "})
	require.Error(t, err)
	assert.True(t, forms.IsValidation(err))

	anon := New(c.BaseURL, "")
	_, err = anon.SaveTask(ctx, forms.TaskInput{Title: "Valid"})
	assert.ErrorIs(t, err, auth.ErrUnauthenticated)

	bad := New(c.BaseURL, "garbage")
	_, err = bad.ListProjects(ctx)
	assert.ErrorIs(t, err, auth.ErrUnauthenticated)
}

func TestDecodeError_Fallback(t *testing.T) {
	err := decodeError(http.StatusInternalServerError, []byte("boom"))
	var ae *APIError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, "boom", ae.Message)
	assert.Equal(t, http.StatusInternalServerError, ae.Status)
}

func TestSubscribe_DeliversChanges(t *testing.T) {
	c, s := setupServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sub, err := c.Subscribe(ctx, realtime.Filter{Table: realtime.TableTasks})
	require.NoError(t, err)
	defer sub.Close()

	require.NoError(t, s.CreateTeamMember(ctx, &models.TeamMember{Name: "Grace", Role: models.RoleDev, Status: models.MemberAvailable}))
	task := &models.Task{Title: "Live", Status: models.TaskStatusTodo, Priority: models.PriorityLow}
	require.NoError(t, s.CreateTask(ctx, task))

	select {
	case e := <-sub.Events():
		assert.Equal(t, realtime.TableTasks, e.Table)
		assert.Equal(t, task.ID, e.RecordID)
	case <-ctx.Done():
		t.Fatal("no change event received")
	}
}

func TestSubscribe_CloseEndsStream(t *testing.T) {
	c, _ := setupServer(t)
	sub, err := c.Subscribe(context.Background(), realtime.Filter{Table: realtime.TableProjects})
	require.NoError(t, err)

	sub.Close()
	require.Eventually(t, func() bool {
		_, open := <-sub.Events()
		return !open
	}, 2*time.Second, 10*time.Millisecond)
}

func TestCollection_ConvergesOverHTTP(t *testing.T) {
	c, _ := setupServer(t)
	ctx := context.Background()

	tasks := collection.Tasks(c, c, "", nil)
	t.Cleanup(tasks.Unmount)
	require.NoError(t, tasks.Mount(ctx))
	assert.Empty(t, tasks.Items())

	task, err := c.SaveTask(ctx, forms.TaskInput{Title: "Remote"})
	require.NoError(t, err)
	require.Eventually(t, func() bool { return len(tasks.Items()) == 1 }, 2*time.Second, 10*time.Millisecond)

	mover := &board.Mover{Updater: c, Refetch: tasks.Refetch}
	result, err := mover.Move(ctx, auth.Identity{UserID: "user-alice"}, task, models.TaskStatusCompleted)
	require.NoError(t, err)
	assert.Equal(t, board.ResultMoved, result)
	items := tasks.Items()
	require.Len(t, items, 1)
	assert.Equal(t, models.TaskStatusCompleted, items[0].Status)
}
