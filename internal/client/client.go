// Package client talks to a running pmdash server over its REST API and
// change stream. It offers the same read, status-update and subscription
// surface as the in-process store and hub, so the board and collections work
// unchanged against a remote server.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/joescharf/pmdash/internal/activity"
	"github.com/joescharf/pmdash/internal/auth"
	"github.com/joescharf/pmdash/internal/board"
	"github.com/joescharf/pmdash/internal/forms"
	"github.com/joescharf/pmdash/internal/health"
	"github.com/joescharf/pmdash/internal/llm"
	"github.com/joescharf/pmdash/internal/models"
	"github.com/joescharf/pmdash/internal/notify"
	"github.com/joescharf/pmdash/internal/search"
	"github.com/joescharf/pmdash/internal/store"
)

// Client is an HTTP client for the pmdash server.
type Client struct {
	BaseURL string
	Token   string
	HTTP    *http.Client
	// Stream is used for the long-lived event stream. It must not set a
	// Timeout.
	Stream *http.Client
}

// New creates a client for the server at baseURL. token may be empty for
// read-only use.
func New(baseURL, token string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		HTTP:    &http.Client{Timeout: 30 * time.Second},
		Stream:  &http.Client{},
	}
}

// APIError is a non-2xx response that maps to no sentinel.
type APIError struct {
	Status  int    `json:"-"`
	Message string `json:"error"`
	Field   string `json:"field,omitempty"`
}

func (e *APIError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("HTTP %d: %s (%s)", e.Status, e.Message, e.Field)
	}
	return fmt.Sprintf("HTTP %d: %s", e.Status, e.Message)
}

// IsValidation reports whether err is a 400 naming a form field.
func IsValidation(err error) bool {
	var ae *APIError
	return errors.As(err, &ae) && ae.Status == http.StatusBadRequest && ae.Field != ""
}

func (c *Client) do(ctx context.Context, method, path string, body, result any) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.authorize(req)

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		if err := decodeError(resp.StatusCode, respBody); err != nil {
			return err
		}
	}
	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}
	return nil
}

// decodeError maps an error response onto the sentinels the local store
// and forms return, so callers handle both the same way.
func decodeError(status int, body []byte) error {
	apiErr := &APIError{Status: status}
	if json.Unmarshal(body, apiErr) != nil || apiErr.Message == "" {
		apiErr.Message = strings.TrimSpace(string(body))
	}
	switch status {
	case http.StatusUnauthorized:
		return fmt.Errorf("%w: %s", auth.ErrUnauthenticated, apiErr.Message)
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", store.ErrNotFound, apiErr.Message)
	case http.StatusBadRequest:
		if apiErr.Field != "" {
			return &forms.ValidationError{Field: apiErr.Field, Message: apiErr.Message}
		}
	}
	return apiErr
}

func (c *Client) authorize(req *http.Request) {
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
}

func withQuery(path string, q url.Values) string {
	if enc := q.Encode(); enc != "" {
		return path + "?" + enc
	}
	return path
}

// save POSTs to collection when id is empty, else PUTs to collection/id.
func (c *Client) save(ctx context.Context, collection, id string, in, out any) error {
	if id == "" {
		return c.do(ctx, http.MethodPost, collection, in, out)
	}
	return c.do(ctx, http.MethodPut, collection+"/"+url.PathEscape(id), in, out)
}

// HealthCheck pings the server.
func (c *Client) HealthCheck(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/healthz", nil, nil)
}

// --- Projects ---

func (c *Client) ListProjects(ctx context.Context) ([]*models.Project, error) {
	var out []*models.Project
	return out, c.do(ctx, http.MethodGet, "/api/v1/projects", nil, &out)
}

func (c *Client) GetProject(ctx context.Context, id string) (*models.Project, error) {
	var out models.Project
	if err := c.do(ctx, http.MethodGet, "/api/v1/projects/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SaveProject creates the project, or updates it when in.ID is set.
func (c *Client) SaveProject(ctx context.Context, in forms.ProjectInput) (*models.Project, error) {
	var out models.Project
	if err := c.save(ctx, "/api/v1/projects", in.ID, in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DeleteProject(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/v1/projects/"+url.PathEscape(id), nil, nil)
}

func (c *Client) ProjectHealth(ctx context.Context, id string) (*health.Report, error) {
	var out health.Report
	if err := c.do(ctx, http.MethodGet, "/api/v1/projects/"+url.PathEscape(id)+"/health", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ProjectActivity(ctx context.Context, id string, only activity.Type) ([]activity.Item, error) {
	q := url.Values{}
	if only != "" {
		q.Set("type", string(only))
	}
	var out []activity.Item
	return out, c.do(ctx, http.MethodGet, withQuery("/api/v1/projects/"+url.PathEscape(id)+"/activity", q), nil, &out)
}

func (c *Client) ListProjectMembers(ctx context.Context, projectID string) ([]*models.ProjectTeamMember, error) {
	var out []*models.ProjectTeamMember
	return out, c.do(ctx, http.MethodGet, "/api/v1/projects/"+url.PathEscape(projectID)+"/members", nil, &out)
}

func (c *Client) AddProjectMember(ctx context.Context, projectID, memberID string) (*models.ProjectTeamMember, error) {
	var out models.ProjectTeamMember
	body := map[string]string{"team_member_id": memberID}
	if err := c.do(ctx, http.MethodPost, "/api/v1/projects/"+url.PathEscape(projectID)+"/members", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) RemoveProjectMember(ctx context.Context, projectID, memberID string) error {
	return c.do(ctx, http.MethodDelete, "/api/v1/projects/"+url.PathEscape(projectID)+"/members/"+url.PathEscape(memberID), nil, nil)
}

// --- Tasks ---

func (c *Client) ListTasks(ctx context.Context, filter store.TaskListFilter) ([]*models.Task, error) {
	q := url.Values{}
	if filter.ProjectID != "" {
		q.Set("project_id", filter.ProjectID)
	}
	if filter.AssigneeID != "" {
		q.Set("assignee_id", filter.AssigneeID)
	}
	var out []*models.Task
	return out, c.do(ctx, http.MethodGet, withQuery("/api/v1/tasks", q), nil, &out)
}

func (c *Client) GetTask(ctx context.Context, id string) (*models.Task, error) {
	var out models.Task
	if err := c.do(ctx, http.MethodGet, "/api/v1/tasks/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SaveTask creates the task, or updates it when in.ID is set.
func (c *Client) SaveTask(ctx context.Context, in forms.TaskInput) (*models.Task, error) {
	var out models.Task
	if err := c.save(ctx, "/api/v1/tasks", in.ID, in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DeleteTask(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/v1/tasks/"+url.PathEscape(id), nil, nil)
}

// MoveResult is the server's answer to a status change.
type MoveResult struct {
	Result        board.Result          `json:"result"`
	Task          *models.Task          `json:"task"`
	Notifications []notify.Notification `json:"notifications"`
}

// MoveTask asks the server to run the status change for id.
func (c *Client) MoveTask(ctx context.Context, id string, status models.TaskStatus) (*MoveResult, error) {
	var out MoveResult
	body := map[string]string{"status": string(status)}
	if err := c.do(ctx, http.MethodPost, "/api/v1/tasks/"+url.PathEscape(id)+"/status", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateTaskStatus satisfies board.StatusUpdater.
func (c *Client) UpdateTaskStatus(ctx context.Context, id string, status models.TaskStatus) error {
	_, err := c.MoveTask(ctx, id, status)
	return err
}

// BoardView is the server-rendered board.
type BoardView struct {
	board.Board
	Sort    board.SortKey        `json:"sort"`
	Filter  board.Filter         `json:"filter"`
	Total   int                  `json:"total"`
	Members []*models.TeamMember `json:"members"`
}

// Board fetches the partitioned board for opts. A nil layout asks for the
// default layout.
func (c *Client) Board(ctx context.Context, opts board.Options) (*BoardView, error) {
	q := url.Values{}
	for k, v := range map[string]string{
		"search":      opts.Filter.Search,
		"priority":    opts.Filter.Priority,
		"assignee_id": opts.Filter.AssigneeID,
		"project_id":  opts.Filter.ProjectID,
		"sort":        string(opts.Sort),
	} {
		if v != "" {
			q.Set(k, v)
		}
	}
	if opts.Layout != nil && !opts.Layout.Contains(models.TaskStatusHold) {
		q.Set("hold", "false")
	}
	var out BoardView
	if err := c.do(ctx, http.MethodGet, withQuery("/api/v1/board", q), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// --- Team ---

func (c *Client) ListTeamMembers(ctx context.Context) ([]*models.TeamMember, error) {
	var out []*models.TeamMember
	return out, c.do(ctx, http.MethodGet, "/api/v1/team", nil, &out)
}

// SaveTeamMember creates the member, or updates it when in.ID is set.
func (c *Client) SaveTeamMember(ctx context.Context, in forms.MemberInput) (*models.TeamMember, error) {
	var out models.TeamMember
	if err := c.save(ctx, "/api/v1/team", in.ID, in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DeleteTeamMember(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/v1/team/"+url.PathEscape(id), nil, nil)
}

func (c *Client) TeamWorkload(ctx context.Context, projectID string) ([]health.Workload, error) {
	q := url.Values{}
	if projectID != "" {
		q.Set("project_id", projectID)
	}
	var out []health.Workload
	return out, c.do(ctx, http.MethodGet, withQuery("/api/v1/team/workload", q), nil, &out)
}

// --- QA ---

func (c *Client) ListQAIssues(ctx context.Context, projectID string) ([]*models.QAIssue, error) {
	q := url.Values{}
	if projectID != "" {
		q.Set("project_id", projectID)
	}
	var out []*models.QAIssue
	return out, c.do(ctx, http.MethodGet, withQuery("/api/v1/qa/issues", q), nil, &out)
}

// SaveQAIssue creates the issue, or updates it when in.ID is set.
func (c *Client) SaveQAIssue(ctx context.Context, in forms.QAIssueInput) (*models.QAIssue, error) {
	var out models.QAIssue
	if err := c.save(ctx, "/api/v1/qa/issues", in.ID, in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// EnrichQAIssue asks the server's LLM to fill out the issue. With apply the
// result is saved.
func (c *Client) EnrichQAIssue(ctx context.Context, id string, apply bool) (*llm.EnrichedQAIssue, error) {
	path := "/api/v1/qa/issues/" + url.PathEscape(id) + "/enrich"
	if apply {
		path += "?apply=true"
	}
	var out struct {
		Enriched *llm.EnrichedQAIssue `json:"enriched"`
	}
	if err := c.do(ctx, http.MethodPost, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Enriched, nil
}

func (c *Client) ListTestCases(ctx context.Context, projectID string) ([]*models.TestCase, error) {
	q := url.Values{}
	if projectID != "" {
		q.Set("project_id", projectID)
	}
	var out []*models.TestCase
	return out, c.do(ctx, http.MethodGet, withQuery("/api/v1/qa/tests", q), nil, &out)
}

// SaveTestCase creates the test case, or updates it when in.ID is set.
func (c *Client) SaveTestCase(ctx context.Context, in forms.TestCaseInput) (*models.TestCase, error) {
	var out models.TestCase
	if err := c.save(ctx, "/api/v1/qa/tests", in.ID, in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UpdateTestCaseStatus(ctx context.Context, id string, status models.TestStatus) (*models.TestCase, error) {
	var out models.TestCase
	body := map[string]string{"status": string(status)}
	if err := c.do(ctx, http.MethodPost, "/api/v1/qa/tests/"+url.PathEscape(id)+"/status", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// --- Search ---

func (c *Client) Search(ctx context.Context, query string, limit int) ([]search.Result, error) {
	q := url.Values{"q": {query}}
	if limit > 0 {
		q.Set("limit", fmt.Sprint(limit))
	}
	var out []search.Result
	return out, c.do(ctx, http.MethodGet, withQuery("/api/v1/search", q), nil, &out)
}
