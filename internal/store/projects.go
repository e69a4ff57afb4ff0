package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/joescharf/pmdash/internal/models"
)

const projectColumns = `id, name, description, status, deadline, progress, created_by, created_at, updated_at`

func scanProject(row rowScanner) (*models.Project, error) {
	p := &models.Project{}
	var status string
	var deadline sql.NullString
	var progress sql.NullInt64
	if err := row.Scan(&p.ID, &p.Name, &p.Description, &status, &deadline, &progress, &p.CreatedBy, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	p.Status = models.ProjectStatus(status)
	p.DecodeEnums()
	p.Deadline = scanDate(deadline)
	if progress.Valid {
		v := int(progress.Int64)
		p.Progress = &v
	}
	return p, nil
}

func storedProjectStatus(p *models.Project) string {
	if p.Status == models.ProjectStatusUnknown && p.StatusRaw != "" {
		return p.StatusRaw
	}
	return string(p.Status)
}

func nullProgress(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

func (s *SQLiteStore) CreateProject(ctx context.Context, p *models.Project) error {
	if p.ID == "" {
		p.ID = newULID()
	}
	ts := utcNow()
	p.CreatedAt = ts
	p.UpdatedAt = ts

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO projects (`+projectColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Name, p.Description, storedProjectStatus(p), nullDate(p.Deadline), nullProgress(p.Progress),
		p.CreatedBy, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create project: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetProject(ctx context.Context, id string) (*models.Project, error) {
	p, err := scanProject(s.db.QueryRowContext(ctx,
		`SELECT `+projectColumns+` FROM projects WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("project", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get project: %w", err)
	}
	return p, nil
}

// ListProjects returns every project, newest first.
func (s *SQLiteStore) ListProjects(ctx context.Context) ([]*models.Project, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+projectColumns+` FROM projects ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var projects []*models.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

func (s *SQLiteStore) UpdateProject(ctx context.Context, p *models.Project) error {
	p.UpdatedAt = utcNow()
	result, err := s.db.ExecContext(ctx,
		`UPDATE projects SET name=?, description=?, status=?, deadline=?, progress=?, updated_at=? WHERE id=?`,
		p.Name, p.Description, storedProjectStatus(p), nullDate(p.Deadline), nullProgress(p.Progress), p.UpdatedAt, p.ID,
	)
	if err != nil {
		return fmt.Errorf("update project: %w", err)
	}
	return checkAffected(result, "project", p.ID)
}

func (s *SQLiteStore) DeleteProject(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM projects WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete project: %w", err)
	}
	return checkAffected(result, "project", id)
}

// --- Project rosters ---

func (s *SQLiteStore) AddProjectMember(ctx context.Context, projectID, memberID string) (*models.ProjectTeamMember, error) {
	ptm := &models.ProjectTeamMember{
		ID:           newULID(),
		ProjectID:    projectID,
		TeamMemberID: memberID,
		CreatedAt:    utcNow(),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO project_team_members (id, project_id, team_member_id, created_at) VALUES (?, ?, ?, ?)`,
		ptm.ID, ptm.ProjectID, ptm.TeamMemberID, ptm.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("add project member: %w", err)
	}
	return ptm, nil
}

// ListProjectMembers returns the roster of a project with each member joined.
func (s *SQLiteStore) ListProjectMembers(ctx context.Context, projectID string) ([]*models.ProjectTeamMember, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT ptm.id, ptm.project_id, ptm.team_member_id, ptm.created_at, `+prefixed("m", memberColumns)+`
		FROM project_team_members ptm
		JOIN team_members m ON m.id = ptm.team_member_id
		WHERE ptm.project_id = ?
		ORDER BY ptm.created_at DESC, ptm.id DESC`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list project members: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*models.ProjectTeamMember
	for rows.Next() {
		ptm := &models.ProjectTeamMember{}
		m, err := scanMemberWith(rows, &ptm.ID, &ptm.ProjectID, &ptm.TeamMemberID, &ptm.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan project member: %w", err)
		}
		ptm.Member = m
		out = append(out, ptm)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) RemoveProjectMember(ctx context.Context, projectID, memberID string) error {
	result, err := s.db.ExecContext(ctx,
		"DELETE FROM project_team_members WHERE project_id = ? AND team_member_id = ?", projectID, memberID)
	if err != nil {
		return fmt.Errorf("remove project member: %w", err)
	}
	return checkAffected(result, "project member", memberID)
}
