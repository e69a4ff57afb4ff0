package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/joescharf/pmdash/internal/models"
)

const memberColumns = `id, name, role, avatar_url, current_tasks, max_capacity, skills, status, created_by, created_at, updated_at`

// prefixed qualifies a comma-separated column list with a table alias.
func prefixed(alias, columns string) string {
	parts := strings.Split(columns, ",")
	for i, c := range parts {
		parts[i] = alias + "." + strings.TrimSpace(c)
	}
	return strings.Join(parts, ", ")
}

// scanMemberWith scans leading columns into extra, then the member columns.
func scanMemberWith(row rowScanner, extra ...any) (*models.TeamMember, error) {
	m := &models.TeamMember{}
	var role, status, skills string
	dest := append(extra, &m.ID, &m.Name, &role, &m.AvatarURL, &m.CurrentTasks, &m.MaxCapacity,
		&skills, &status, &m.CreatedBy, &m.CreatedAt, &m.UpdatedAt)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	m.Role = models.TeamRole(role)
	m.Status = models.MemberStatus(status)
	m.DecodeEnums()
	m.Skills = decodeList(skills)
	return m, nil
}

func storedRole(m *models.TeamMember) string {
	if m.Role == models.RoleUnknown && m.RoleRaw != "" {
		return m.RoleRaw
	}
	return string(m.Role)
}

func storedMemberStatus(m *models.TeamMember) string {
	if m.Status == models.MemberUnknown && m.StatusRaw != "" {
		return m.StatusRaw
	}
	return string(m.Status)
}

// applyMemberDefaults fills capacity and status the way the roster form does.
func applyMemberDefaults(m *models.TeamMember) {
	if m.MaxCapacity <= 0 {
		m.MaxCapacity = models.DefaultMaxCapacity
	}
	if m.Status == "" {
		m.Status = models.MemberAvailable
	}
	if m.Role == "" {
		m.Role = models.RoleDev
	}
}

func (s *SQLiteStore) CreateTeamMember(ctx context.Context, m *models.TeamMember) error {
	if m.ID == "" {
		m.ID = newULID()
	}
	applyMemberDefaults(m)
	ts := utcNow()
	m.CreatedAt = ts
	m.UpdatedAt = ts

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO team_members (`+memberColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.Name, storedRole(m), m.AvatarURL, m.CurrentTasks, m.MaxCapacity,
		encodeList(m.Skills), storedMemberStatus(m), m.CreatedBy, m.CreatedAt, m.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create team member: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetTeamMember(ctx context.Context, id string) (*models.TeamMember, error) {
	m, err := scanMemberWith(s.db.QueryRowContext(ctx,
		`SELECT `+memberColumns+` FROM team_members WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("team member", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get team member: %w", err)
	}
	return m, nil
}

func (s *SQLiteStore) ListTeamMembers(ctx context.Context) ([]*models.TeamMember, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+memberColumns+` FROM team_members ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("list team members: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var members []*models.TeamMember
	for rows.Next() {
		m, err := scanMemberWith(rows)
		if err != nil {
			return nil, fmt.Errorf("scan team member: %w", err)
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

func (s *SQLiteStore) UpdateTeamMember(ctx context.Context, m *models.TeamMember) error {
	applyMemberDefaults(m)
	m.UpdatedAt = utcNow()
	result, err := s.db.ExecContext(ctx,
		`UPDATE team_members SET name=?, role=?, avatar_url=?, current_tasks=?, max_capacity=?, skills=?, status=?, updated_at=?
		WHERE id=?`,
		m.Name, storedRole(m), m.AvatarURL, m.CurrentTasks, m.MaxCapacity, encodeList(m.Skills),
		storedMemberStatus(m), m.UpdatedAt, m.ID,
	)
	if err != nil {
		return fmt.Errorf("update team member: %w", err)
	}
	return checkAffected(result, "team member", m.ID)
}

func (s *SQLiteStore) DeleteTeamMember(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM team_members WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete team member: %w", err)
	}
	return checkAffected(result, "team member", id)
}
