package api

import (
	"context"
	"fmt"
	"net/http"

	"golang.org/x/sync/errgroup"

	"github.com/joescharf/pmdash/internal/auth"
	"github.com/joescharf/pmdash/internal/board"
	"github.com/joescharf/pmdash/internal/forms"
	"github.com/joescharf/pmdash/internal/models"
	"github.com/joescharf/pmdash/internal/notify"
	"github.com/joescharf/pmdash/internal/store"
)

// boardQuery reads the filter, sort and layout parameters shared by the
// task list and the board.
func boardQuery(r *http.Request) (board.Options, error) {
	q := r.URL.Query()
	key, err := board.ParseSortKey(q.Get("sort"))
	if err != nil {
		return board.Options{}, err
	}
	return board.Options{
		Filter: board.Filter{
			Search:     q.Get("search"),
			Priority:   q.Get("priority"),
			AssigneeID: q.Get("assignee_id"),
			ProjectID:  q.Get("project_id"),
		},
		Sort:   key,
		Layout: board.LayoutFor(queryBool(r, "hold", true)),
	}, nil
}

func (s *Server) listTasks(w http.ResponseWriter, r *http.Request) {
	opts, err := boardQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	tasks, err := s.store.ListTasks(r.Context(), store.TaskListFilter{})
	if err != nil {
		s.fail(w, err, "Failed to load tasks")
		return
	}
	out := board.Sort(board.Apply(tasks, opts.Filter), opts.Sort)
	if out == nil {
		out = []*models.Task{}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) getTask(w http.ResponseWriter, r *http.Request) {
	t, err := s.store.GetTask(r.Context(), r.PathValue("id"))
	if err != nil {
		s.fail(w, err, "Failed to load task")
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) createTask(w http.ResponseWriter, r *http.Request) {
	var in forms.TaskInput
	if !decode(w, r, &in) {
		return
	}
	in.ID = ""
	t, err := s.submitter().SaveTask(r.Context(), auth.FromContext(r.Context()), in)
	if err != nil {
		s.fail(w, err, "Failed to save task. Please try again.")
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

func (s *Server) updateTask(w http.ResponseWriter, r *http.Request) {
	existing, err := s.store.GetTask(r.Context(), r.PathValue("id"))
	if err != nil {
		s.fail(w, err, "Failed to load task")
		return
	}
	in := forms.EditTask(existing)
	if !decode(w, r, &in) {
		return
	}
	in.ID = existing.ID
	t, err := s.submitter().SaveTask(r.Context(), auth.FromContext(r.Context()), in)
	if err != nil {
		s.fail(w, err, "Failed to save task. Please try again.")
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) deleteTask(w http.ResponseWriter, r *http.Request) {
	s.deleteByID(s.store.DeleteTask, "Failed to delete task")(w, r)
}

type statusRequest struct {
	Status string `json:"status"`
	// OverID is the column or card a dragged task was released over. When
	// set it decides the target column instead of Status.
	OverID string `json:"over_id,omitempty"`
}

type moveResponse struct {
	Result        board.Result          `json:"result,omitempty"`
	Task          *models.Task          `json:"task,omitempty"`
	Error         string                `json:"error,omitempty"`
	Notifications []notify.Notification `json:"notifications"`
}

// changeTaskStatus runs the board's move protocol. The returned task is the
// refetched row, never a locally patched copy. The hold query selects the
// board layout; a target outside it is rejected before any write.
func (s *Server) changeTaskStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if !decode(w, r, &req) {
		return
	}
	ctx := r.Context()
	task, err := s.store.GetTask(ctx, r.PathValue("id"))
	if err != nil {
		s.fail(w, err, "Failed to update task status")
		return
	}

	layout := board.LayoutFor(queryBool(r, "hold", true))
	to := models.TaskStatus(req.Status)
	if req.OverID != "" {
		var ok bool
		to, ok, err = s.dropTarget(ctx, task, req.OverID, layout)
		if err != nil {
			s.fail(w, err, "Failed to update task status")
			return
		}
		if !ok {
			writeError(w, http.StatusBadRequest, "drop target is outside the board")
			return
		}
	}
	if to != task.Status && !layout.Contains(to) {
		writeJSON(w, http.StatusBadRequest, moveResponse{
			Error:         fmt.Sprintf("%v: %q", board.ErrInvalidStatus, to),
			Notifications: []notify.Notification{notify.Failure("Error", "Failed to update task status")},
		})
		return
	}

	rec := &notify.Recorder{}
	current := task
	mover := &board.Mover{
		Updater:  s.store,
		Notifier: notify.Multi{rec, notify.Log{Logger: s.logger}},
		Refetch: func(ctx context.Context) error {
			t, err := s.store.GetTask(ctx, task.ID)
			if err != nil {
				return err
			}
			current = t
			return nil
		},
		Logger: s.logger,
	}

	result, err := mover.Move(ctx, auth.FromContext(ctx), task, to)
	resp := moveResponse{Result: result, Task: current, Notifications: rec.All()}
	if resp.Notifications == nil {
		resp.Notifications = []notify.Notification{}
	}
	if err != nil {
		status, msg := errorStatus(err, "Failed to update task status")
		if status == http.StatusInternalServerError {
			s.logger.Error("task status change failed", "task", task.ID, "error", err)
		}
		resp.Task, resp.Error = nil, msg
		writeJSON(w, status, resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// dropTarget replays a drag gesture over the current board: the task is
// picked up and released over overID. ok is false when the task is not on
// the board or the release is outside every column.
func (s *Server) dropTarget(ctx context.Context, task *models.Task, overID string, layout board.Layout) (to models.TaskStatus, ok bool, err error) {
	tasks, err := s.store.ListTasks(ctx, store.TaskListFilter{})
	if err != nil {
		return "", false, err
	}
	b := board.Build(tasks, board.Options{Layout: layout})
	drag := board.NewDragSession(&b)
	if !drag.Start(task.ID) {
		return "", false, nil
	}
	drop, ok := drag.End(overID)
	if !ok {
		return "", false, nil
	}
	return drop.To, true, nil
}

type moveOption struct {
	board.MenuOption
	Prompt string `json:"prompt,omitempty"`
}

func (s *Server) taskMoves(w http.ResponseWriter, r *http.Request) {
	task, err := s.store.GetTask(r.Context(), r.PathValue("id"))
	if err != nil {
		s.fail(w, err, "Failed to load task")
		return
	}
	layout := board.LayoutFor(queryBool(r, "hold", true))
	var out []moveOption
	for _, opt := range board.MenuOptions(task, layout) {
		mo := moveOption{MenuOption: opt}
		if !opt.Disabled {
			pending, err := board.RequestMove(task, opt.Status, layout)
			if err != nil {
				s.fail(w, err, "Failed to load task")
				return
			}
			mo.Prompt = pending.Prompt()
		}
		out = append(out, mo)
	}
	writeJSON(w, http.StatusOK, out)
}

type boardResponse struct {
	board.Board
	Sort    board.SortKey        `json:"sort"`
	Filter  board.Filter         `json:"filter"`
	Total   int                  `json:"total"`
	Members []*models.TeamMember `json:"members"`
}

// getBoard loads tasks and the roster concurrently and returns the
// partitioned board plus the members the assignee filter offers.
func (s *Server) getBoard(w http.ResponseWriter, r *http.Request) {
	opts, err := boardQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var (
		tasks   []*models.Task
		members []*models.TeamMember
	)
	g, ctx := errgroup.WithContext(r.Context())
	g.Go(func() (err error) {
		tasks, err = s.store.ListTasks(ctx, store.TaskListFilter{})
		return err
	})
	g.Go(func() (err error) {
		members, err = s.store.ListTeamMembers(ctx)
		return err
	})
	if err := g.Wait(); err != nil {
		s.fail(w, err, "Failed to load board")
		return
	}
	if members == nil {
		members = []*models.TeamMember{}
	}
	b := board.Build(tasks, opts)
	writeJSON(w, http.StatusOK, boardResponse{
		Board:   b,
		Sort:    opts.Sort,
		Filter:  opts.Filter,
		Total:   b.Count(),
		Members: members,
	})
}
