package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/joescharf/pmdash/internal/auth"
	"github.com/joescharf/pmdash/internal/board"
	"github.com/joescharf/pmdash/internal/forms"
	"github.com/joescharf/pmdash/internal/health"
	"github.com/joescharf/pmdash/internal/models"
	"github.com/joescharf/pmdash/internal/notify"
	"github.com/joescharf/pmdash/internal/store"
)

// Server wraps the pmdash data layer and exposes it as MCP tools. Mutations
// run as a single configured service identity.
type Server struct {
	store    store.Store
	identity auth.Identity
	logger   *slog.Logger
}

// NewServer creates the MCP server wrapper. An empty identity makes every
// mutating tool fail with a login error.
func NewServer(s store.Store, identity auth.Identity, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Server{store: s, identity: identity, logger: logger}
}

// MCPServer returns a configured mcp-go server with all tools registered.
func (s *Server) MCPServer() *server.MCPServer {
	srv := server.NewMCPServer("pmdash", "1.0.0", server.WithToolCapabilities(true))

	srv.AddTool(s.listProjectsTool())
	srv.AddTool(s.boardTool())
	srv.AddTool(s.createTaskTool())
	srv.AddTool(s.moveTaskTool())
	srv.AddTool(s.listQAIssuesTool())
	srv.AddTool(s.teamWorkloadTool())

	return srv
}

// ServeStdio starts the stdio transport, blocking until ctx is cancelled.
func (s *Server) ServeStdio(ctx context.Context) error {
	srv := s.MCPServer()
	stdioServer := server.NewStdioServer(srv)
	return stdioServer.Listen(ctx, os.Stdin, os.Stdout)
}

func jsonResult(v any, what string) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal %s: %v", what, err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// ---------------------------------------------------------------------------
// Tool definitions and handlers
// ---------------------------------------------------------------------------

// pmdash_list_projects
func (s *Server) listProjectsTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("pmdash_list_projects",
		mcp.WithDescription("List all projects. Returns a JSON array with id, name, description, status, deadline and progress."),
	)
	return tool, s.handleListProjects
}

func (s *Server) handleListProjects(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	projects, err := s.store.ListProjects(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list projects: %v", err)), nil
	}

	type projectOut struct {
		ID          string `json:"id"`
		Name        string `json:"name"`
		Description string `json:"description,omitempty"`
		Status      string `json:"status"`
		Deadline    string `json:"deadline,omitempty"`
		Progress    *int   `json:"progress,omitempty"`
	}

	out := make([]projectOut, len(projects))
	for i, p := range projects {
		out[i] = projectOut{
			ID:          p.ID,
			Name:        p.Name,
			Description: p.Description,
			Status:      string(p.Status.Display()),
			Progress:    p.Progress,
		}
		if p.Deadline != nil {
			out[i].Deadline = p.Deadline.String()
		}
	}
	return jsonResult(out, "projects")
}

// pmdash_board
func (s *Server) boardTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("pmdash_board",
		mcp.WithDescription("Show the task board: tasks grouped by status column after filtering and sorting. Tasks with an unrecognised status are listed under \"unrecognized\"."),
		mcp.WithString("project", mcp.Description("Project name or ID")),
		mcp.WithString("search", mcp.Description("Case-insensitive match on title, description or assignee name")),
		mcp.WithString("priority", mcp.Description("Priority filter: high, medium, low")),
		mcp.WithString("assignee_id", mcp.Description("Team member ID to filter by")),
		mcp.WithString("sort", mcp.Description("Sort key: created (default), due_date, priority, title")),
		mcp.WithBoolean("hold", mcp.Description("Include the Hold column (default: true)")),
	)
	return tool, s.handleBoard
}

type taskOut struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Priority string `json:"priority"`
	DueDate  string `json:"due_date,omitempty"`
	Assignee string `json:"assignee,omitempty"`
	Status   string `json:"status"`
}

func toTaskOut(t *models.Task) taskOut {
	out := taskOut{ID: t.ID, Title: t.Title, Priority: string(t.Priority), Assignee: t.AssigneeName(), Status: t.StoredStatus()}
	if t.DueDate != nil {
		out.DueDate = t.DueDate.String()
	}
	return out
}

func (s *Server) handleBoard(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	key, err := board.ParseSortKey(request.GetString("sort", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	opts := board.Options{
		Filter: board.Filter{
			Search:     request.GetString("search", ""),
			Priority:   request.GetString("priority", ""),
			AssigneeID: request.GetString("assignee_id", ""),
		},
		Sort:   key,
		Layout: board.LayoutFor(request.GetBool("hold", true)),
	}
	if name := request.GetString("project", ""); name != "" {
		p, err := s.resolveProject(ctx, name)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		opts.Filter.ProjectID = p.ID
	}

	tasks, err := s.store.ListTasks(ctx, store.TaskListFilter{})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list tasks: %v", err)), nil
	}
	b := board.Build(tasks, opts)

	type columnOut struct {
		Status string    `json:"status"`
		Label  string    `json:"label"`
		Tasks  []taskOut `json:"tasks"`
	}
	out := struct {
		Columns      []columnOut `json:"columns"`
		Unrecognized []taskOut   `json:"unrecognized"`
		Total        int         `json:"total"`
	}{Total: b.Count(), Columns: []columnOut{}, Unrecognized: []taskOut{}}
	for _, c := range b.Columns {
		col := columnOut{Status: string(c.Status), Label: c.Label, Tasks: make([]taskOut, len(c.Tasks))}
		for i, t := range c.Tasks {
			col.Tasks[i] = toTaskOut(t)
		}
		out.Columns = append(out.Columns, col)
	}
	for _, t := range b.Unrecognized {
		out.Unrecognized = append(out.Unrecognized, toTaskOut(t))
	}
	return jsonResult(out, "board")
}

// pmdash_create_task
func (s *Server) createTaskTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("pmdash_create_task",
		mcp.WithDescription("Create a new task. New tasks always start in To Do. Returns the created task as JSON."),
		mcp.WithString("title", mcp.Required(), mcp.Description("Task title")),
		mcp.WithString("project", mcp.Description("Project name or ID")),
		mcp.WithString("description", mcp.Description("Task description")),
		mcp.WithString("priority", mcp.Description("Priority: low, medium, high (default: medium)")),
		mcp.WithString("due_date", mcp.Description("Due date as YYYY-MM-DD")),
		mcp.WithString("assignee_id", mcp.Description("Team member ID to assign")),
	)
	return tool, s.handleCreateTask
}

func (s *Server) handleCreateTask(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	title, err := request.RequireString("title")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: title"), nil
	}
	in := forms.TaskInput{
		Title:       title,
		Description: request.GetString("description", ""),
		Priority:    request.GetString("priority", ""),
		DueDate:     request.GetString("due_date", ""),
		AssigneeID:  request.GetString("assignee_id", ""),
	}
	if name := request.GetString("project", ""); name != "" {
		p, err := s.resolveProject(ctx, name)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		in.ProjectID = p.ID
	}

	sub := forms.New(s.store, notify.Log{Logger: s.logger}, s.logger)
	t, err := sub.SaveTask(ctx, s.identity, in)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to create task: %v", err)), nil
	}
	return jsonResult(t, "task")
}

// pmdash_move_task
func (s *Server) moveTaskTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("pmdash_move_task",
		mcp.WithDescription("Move a task to another board column. Moving to the current column is a no-op. Returns the result and the refetched task."),
		mcp.WithString("task_id", mcp.Required(), mcp.Description("Task ID (full ULID or unique prefix)")),
		mcp.WithString("status", mcp.Required(), mcp.Description("Target status: todo, progress, testing, hold, completed")),
	)
	return tool, s.handleMoveTask
}

func (s *Server) handleMoveTask(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	taskID, err := request.RequireString("task_id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: task_id"), nil
	}
	status, err := request.RequireString("status")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: status"), nil
	}

	task, err := s.findTask(ctx, taskID)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	rec := &notify.Recorder{}
	current := task
	mover := &board.Mover{
		Updater:  s.store,
		Notifier: rec,
		Refetch: func(ctx context.Context) error {
			t, err := s.store.GetTask(ctx, task.ID)
			if err == nil {
				current = t
			}
			return err
		},
		Logger: s.logger,
	}
	result, err := mover.Move(ctx, s.identity, task, models.TaskStatus(status))
	if err != nil {
		msg := err.Error()
		if last, ok := rec.Last(); ok {
			msg = last.Description + ": " + msg
		}
		return mcp.NewToolResultError(msg), nil
	}

	out := map[string]any{
		"result": string(result),
		"task":   toTaskOut(current),
	}
	if last, ok := rec.Last(); ok {
		out["message"] = last.Description
	}
	return jsonResult(out, "move result")
}

// pmdash_list_qa_issues
func (s *Server) listQAIssuesTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("pmdash_list_qa_issues",
		mcp.WithDescription("List QA issues, optionally scoped to a project and filtered by status or severity."),
		mcp.WithString("project", mcp.Description("Project name or ID")),
		mcp.WithString("status", mcp.Description("Status filter: open, in-progress, resolved, cant-reproduce, rejected, or \"active\" for open and in-progress")),
		mcp.WithString("severity", mcp.Description("Severity filter: critical, high, medium, low")),
	)
	return tool, s.handleListQAIssues
}

func (s *Server) handleListQAIssues(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	projectID := ""
	if name := request.GetString("project", ""); name != "" {
		p, err := s.resolveProject(ctx, name)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		projectID = p.ID
	}
	issues, err := s.store.ListQAIssues(ctx, projectID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list QA issues: %v", err)), nil
	}

	status := request.GetString("status", "")
	severity := request.GetString("severity", "")

	type issueOut struct {
		ID        string `json:"id"`
		Title     string `json:"title"`
		Severity  string `json:"severity"`
		Status    string `json:"status"`
		IssueType string `json:"issue_type,omitempty"`
		ProjectID string `json:"project_id,omitempty"`
		Tester    string `json:"assigned_tester,omitempty"`
	}
	out := []issueOut{}
	for _, q := range issues {
		switch {
		case status == "active" && !q.Status.IsOpen():
			continue
		case status != "" && status != "active" && q.Status != models.ParseQAStatus(status):
			continue
		case severity != "" && string(q.Severity) != severity:
			continue
		}
		o := issueOut{
			ID:        q.ID,
			Title:     q.Title,
			Severity:  string(q.Severity),
			Status:    string(q.Status),
			IssueType: q.IssueType,
			ProjectID: q.ProjectID,
		}
		if q.Tester != nil {
			o.Tester = q.Tester.Name
		}
		out = append(out, o)
	}
	return jsonResult(out, "QA issues")
}

// pmdash_team_workload
func (s *Server) teamWorkloadTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("pmdash_team_workload",
		mcp.WithDescription("Show each team member's active (non-completed) task count against their capacity, with derived availability."),
		mcp.WithString("project", mcp.Description("Count only tasks of this project (name or ID)")),
	)
	return tool, s.handleTeamWorkload
}

func (s *Server) handleTeamWorkload(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	filter := store.TaskListFilter{}
	if name := request.GetString("project", ""); name != "" {
		p, err := s.resolveProject(ctx, name)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		filter.ProjectID = p.ID
	}
	members, err := s.store.ListTeamMembers(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list team members: %v", err)), nil
	}
	tasks, err := s.store.ListTasks(ctx, filter)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list tasks: %v", err)), nil
	}
	out := health.ComputeWorkload(members, tasks)
	if out == nil {
		out = []health.Workload{}
	}
	return jsonResult(out, "workload")
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// resolveProject tries the ID first, then a case-insensitive name match.
func (s *Server) resolveProject(ctx context.Context, name string) (*models.Project, error) {
	if p, err := s.store.GetProject(ctx, name); err == nil {
		return p, nil
	}
	projects, err := s.store.ListProjects(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	for _, p := range projects {
		if strings.EqualFold(p.Name, name) {
			return p, nil
		}
	}
	return nil, fmt.Errorf("project not found: %s", name)
}

// findTask finds a task by full ID or unique prefix.
func (s *Server) findTask(ctx context.Context, id string) (*models.Task, error) {
	if t, err := s.store.GetTask(ctx, id); err == nil {
		return t, nil
	}

	upper := strings.ToUpper(id)
	tasks, err := s.store.ListTasks(ctx, store.TaskListFilter{})
	if err != nil {
		return nil, err
	}
	var matches []*models.Task
	for _, t := range tasks {
		if strings.HasPrefix(t.ID, upper) {
			matches = append(matches, t)
		}
	}

	switch len(matches) {
	case 0:
		return nil, fmt.Errorf("task not found: %s", id)
	case 1:
		return matches[0], nil
	default:
		return nil, fmt.Errorf("ambiguous task ID %s: matches %d tasks", id, len(matches))
	}
}
