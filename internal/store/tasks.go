package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/joescharf/pmdash/internal/models"
)

// taskSelect joins the assignee and project refs the board renders.
const taskSelect = `SELECT t.id, t.title, t.description, t.status, t.priority, t.due_date, t.tags,
	COALESCE(t.project_id, ''), COALESCE(t.assignee_id, ''), t.created_by, t.created_at, t.updated_at,
	m.name, m.avatar_url, p.name
	FROM tasks t
	LEFT JOIN team_members m ON m.id = t.assignee_id
	LEFT JOIN projects p ON p.id = t.project_id`

func scanTask(row rowScanner) (*models.Task, error) {
	t := &models.Task{}
	var status, priority, tags string
	var dueDate, assigneeName, assigneeAvatar, projectName sql.NullString
	if err := row.Scan(&t.ID, &t.Title, &t.Description, &status, &priority, &dueDate, &tags,
		&t.ProjectID, &t.AssigneeID, &t.CreatedBy, &t.CreatedAt, &t.UpdatedAt,
		&assigneeName, &assigneeAvatar, &projectName); err != nil {
		return nil, err
	}
	t.Status = models.TaskStatus(status)
	t.Priority = models.Priority(priority)
	t.DecodeEnums()
	t.DueDate = scanDate(dueDate)
	t.Tags = decodeList(tags)
	if t.AssigneeID != "" && assigneeName.Valid {
		t.Assignee = &models.MemberRef{ID: t.AssigneeID, Name: assigneeName.String, AvatarURL: assigneeAvatar.String}
	}
	if t.ProjectID != "" && projectName.Valid {
		t.Project = &models.ProjectRef{ID: t.ProjectID, Name: projectName.String}
	}
	return t, nil
}

func (s *SQLiteStore) CreateTask(ctx context.Context, t *models.Task) error {
	if t.ID == "" {
		t.ID = newULID()
	}
	ts := utcNow()
	t.CreatedAt = ts
	t.UpdatedAt = ts

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tasks (id, title, description, status, priority, due_date, tags, project_id, assignee_id, created_by, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Title, t.Description, t.StoredStatus(), t.StoredPriority(), nullDate(t.DueDate), encodeList(t.Tags),
		nullString(t.ProjectID), nullString(t.AssigneeID), t.CreatedBy, t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create task: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetTask(ctx context.Context, id string) (*models.Task, error) {
	t, err := scanTask(s.db.QueryRowContext(ctx, taskSelect+` WHERE t.id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("task", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	return t, nil
}

// ListTasks returns tasks newest first with assignee and project joined.
func (s *SQLiteStore) ListTasks(ctx context.Context, filter TaskListFilter) ([]*models.Task, error) {
	query := taskSelect
	var conditions []string
	var args []any

	if filter.ProjectID != "" {
		conditions = append(conditions, "t.project_id = ?")
		args = append(args, filter.ProjectID)
	}
	if filter.AssigneeID != "" {
		conditions = append(conditions, "t.assignee_id = ?")
		args = append(args, filter.AssigneeID)
	}
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY t.created_at DESC, t.id DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var tasks []*models.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

func (s *SQLiteStore) UpdateTask(ctx context.Context, t *models.Task) error {
	t.UpdatedAt = utcNow()
	result, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET title=?, description=?, status=?, priority=?, due_date=?, tags=?, project_id=?, assignee_id=?, updated_at=?
		WHERE id=?`,
		t.Title, t.Description, t.StoredStatus(), t.StoredPriority(), nullDate(t.DueDate), encodeList(t.Tags),
		nullString(t.ProjectID), nullString(t.AssigneeID), t.UpdatedAt, t.ID,
	)
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	return checkAffected(result, "task", t.ID)
}

// UpdateTaskStatus writes only the status column.
func (s *SQLiteStore) UpdateTaskStatus(ctx context.Context, id string, status models.TaskStatus) error {
	if !status.Valid() {
		return fmt.Errorf("update task status: invalid status %q", status)
	}
	result, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET status=?, updated_at=? WHERE id=?`, string(status), utcNow(), id)
	if err != nil {
		return fmt.Errorf("update task status: %w", err)
	}
	return checkAffected(result, "task", id)
}

func (s *SQLiteStore) DeleteTask(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM tasks WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	return checkAffected(result, "task", id)
}
