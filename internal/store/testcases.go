package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/joescharf/pmdash/internal/models"
)

const testCaseColumns = `id, title, test_type, severity, status, COALESCE(assigned_tester_id, ''), COALESCE(project_id, ''),
	notes, screenshot_url, created_by, created_at, updated_at`

func scanTestCase(row rowScanner) (*models.TestCase, error) {
	tc := &models.TestCase{}
	var testType, severity, status string
	if err := row.Scan(&tc.ID, &tc.Title, &testType, &severity, &status, &tc.AssignedTesterID, &tc.ProjectID,
		&tc.Notes, &tc.ScreenshotURL, &tc.CreatedBy, &tc.CreatedAt, &tc.UpdatedAt); err != nil {
		return nil, err
	}
	tc.TestType = models.TestType(testType)
	tc.Severity = models.Severity(severity)
	tc.Status = models.TestStatus(status)
	tc.DecodeEnums()
	return tc, nil
}

func storedTestStatus(tc *models.TestCase) string {
	if tc.Status == models.TestStatusUnknown && tc.StatusRaw != "" {
		return tc.StatusRaw
	}
	return string(tc.Status)
}

func storedTestType(tc *models.TestCase) string {
	if tc.TestType == models.TestTypeUnknown && tc.TestTypeRaw != "" {
		return tc.TestTypeRaw
	}
	return string(tc.TestType)
}

func (s *SQLiteStore) CreateTestCase(ctx context.Context, tc *models.TestCase) error {
	if tc.ID == "" {
		tc.ID = newULID()
	}
	ts := utcNow()
	tc.CreatedAt = ts
	tc.UpdatedAt = ts

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO test_cases (id, title, test_type, severity, status, assigned_tester_id, project_id, notes, screenshot_url, created_by, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tc.ID, tc.Title, storedTestType(tc), storedSeverity(tc.Severity, tc.SeverityRaw), storedTestStatus(tc),
		nullString(tc.AssignedTesterID), nullString(tc.ProjectID), tc.Notes, tc.ScreenshotURL,
		tc.CreatedBy, tc.CreatedAt, tc.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create test case: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetTestCase(ctx context.Context, id string) (*models.TestCase, error) {
	tc, err := scanTestCase(s.db.QueryRowContext(ctx, `SELECT `+testCaseColumns+` FROM test_cases WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("test case", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get test case: %w", err)
	}
	return tc, nil
}

// ListTestCases returns test cases newest first. An empty projectID lists all.
func (s *SQLiteStore) ListTestCases(ctx context.Context, projectID string) ([]*models.TestCase, error) {
	query := `SELECT ` + testCaseColumns + ` FROM test_cases`
	var args []any
	if projectID != "" {
		query += " WHERE project_id = ?"
		args = append(args, projectID)
	}
	query += " ORDER BY created_at DESC, id DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list test cases: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*models.TestCase
	for rows.Next() {
		tc, err := scanTestCase(rows)
		if err != nil {
			return nil, fmt.Errorf("scan test case: %w", err)
		}
		out = append(out, tc)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) UpdateTestCase(ctx context.Context, tc *models.TestCase) error {
	tc.UpdatedAt = utcNow()
	result, err := s.db.ExecContext(ctx,
		`UPDATE test_cases SET title=?, test_type=?, severity=?, status=?, assigned_tester_id=?, project_id=?, notes=?, screenshot_url=?, updated_at=?
		WHERE id=?`,
		tc.Title, storedTestType(tc), storedSeverity(tc.Severity, tc.SeverityRaw), storedTestStatus(tc),
		nullString(tc.AssignedTesterID), nullString(tc.ProjectID), tc.Notes, tc.ScreenshotURL, tc.UpdatedAt, tc.ID,
	)
	if err != nil {
		return fmt.Errorf("update test case: %w", err)
	}
	return checkAffected(result, "test case", tc.ID)
}

func (s *SQLiteStore) UpdateTestCaseStatus(ctx context.Context, id string, status models.TestStatus) error {
	if models.ParseTestStatus(string(status)) == models.TestStatusUnknown {
		return fmt.Errorf("update test case status: invalid status %q", status)
	}
	result, err := s.db.ExecContext(ctx,
		`UPDATE test_cases SET status=?, updated_at=? WHERE id=?`, string(status), utcNow(), id)
	if err != nil {
		return fmt.Errorf("update test case status: %w", err)
	}
	return checkAffected(result, "test case", id)
}

func (s *SQLiteStore) DeleteTestCase(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM test_cases WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete test case: %w", err)
	}
	return checkAffected(result, "test case", id)
}
