package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/joescharf/pmdash/internal/models"
)

const qaIssueSelect = `SELECT q.id, q.title, q.description, q.severity, q.status,
	COALESCE(q.assigned_tester_id, ''), COALESCE(q.project_id, ''),
	q.expected_result, q.actual_result, q.steps_to_reproduce, q.issue_type, q.screenshot_url,
	q.created_by, q.created_at, q.updated_at, m.name, m.avatar_url
	FROM qa_issues q
	LEFT JOIN team_members m ON m.id = q.assigned_tester_id`

func scanQAIssue(row rowScanner) (*models.QAIssue, error) {
	q := &models.QAIssue{}
	var severity, status string
	var testerName, testerAvatar sql.NullString
	if err := row.Scan(&q.ID, &q.Title, &q.Description, &severity, &status,
		&q.AssignedTesterID, &q.ProjectID,
		&q.ExpectedResult, &q.ActualResult, &q.StepsToReproduce, &q.IssueType, &q.ScreenshotURL,
		&q.CreatedBy, &q.CreatedAt, &q.UpdatedAt, &testerName, &testerAvatar); err != nil {
		return nil, err
	}
	q.Severity = models.Severity(severity)
	q.Status = models.QAStatus(status)
	q.DecodeEnums()
	if q.AssignedTesterID != "" && testerName.Valid {
		q.Tester = &models.MemberRef{ID: q.AssignedTesterID, Name: testerName.String, AvatarURL: testerAvatar.String}
	}
	return q, nil
}

func storedSeverity(sev models.Severity, raw string) string {
	if sev == models.SeverityUnknown && raw != "" {
		return raw
	}
	return string(sev)
}

func storedQAStatus(q *models.QAIssue) string {
	if q.Status == models.QAStatusUnknown && q.StatusRaw != "" {
		return q.StatusRaw
	}
	return string(q.Status)
}

func (s *SQLiteStore) CreateQAIssue(ctx context.Context, q *models.QAIssue) error {
	if q.ID == "" {
		q.ID = newULID()
	}
	ts := utcNow()
	q.CreatedAt = ts
	q.UpdatedAt = ts

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO qa_issues (id, title, description, severity, status, assigned_tester_id, project_id,
			expected_result, actual_result, steps_to_reproduce, issue_type, screenshot_url, created_by, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		q.ID, q.Title, q.Description, storedSeverity(q.Severity, q.SeverityRaw), storedQAStatus(q),
		nullString(q.AssignedTesterID), nullString(q.ProjectID),
		q.ExpectedResult, q.ActualResult, q.StepsToReproduce, q.IssueType, q.ScreenshotURL,
		q.CreatedBy, q.CreatedAt, q.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create qa issue: %w", err)
	}
	return nil
}

// GetQAIssue returns the issue with its attachments and mentions loaded.
func (s *SQLiteStore) GetQAIssue(ctx context.Context, id string) (*models.QAIssue, error) {
	q, err := scanQAIssue(s.db.QueryRowContext(ctx, qaIssueSelect+` WHERE q.id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("qa issue", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get qa issue: %w", err)
	}

	if q.Attachments, err = s.ListQAAttachments(ctx, q.ID); err != nil {
		return nil, err
	}
	if q.Mentions, err = s.ListQAMentions(ctx, q.ID); err != nil {
		return nil, err
	}
	return q, nil
}

// ListQAIssues returns issues newest first. An empty projectID lists all projects.
func (s *SQLiteStore) ListQAIssues(ctx context.Context, projectID string) ([]*models.QAIssue, error) {
	query := qaIssueSelect
	var args []any
	if projectID != "" {
		query += " WHERE q.project_id = ?"
		args = append(args, projectID)
	}
	query += " ORDER BY q.created_at DESC, q.id DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list qa issues: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var issues []*models.QAIssue
	for rows.Next() {
		q, err := scanQAIssue(rows)
		if err != nil {
			return nil, fmt.Errorf("scan qa issue: %w", err)
		}
		issues = append(issues, q)
	}
	return issues, rows.Err()
}

func (s *SQLiteStore) UpdateQAIssue(ctx context.Context, q *models.QAIssue) error {
	q.UpdatedAt = utcNow()
	result, err := s.db.ExecContext(ctx,
		`UPDATE qa_issues SET title=?, description=?, severity=?, status=?, assigned_tester_id=?, project_id=?,
			expected_result=?, actual_result=?, steps_to_reproduce=?, issue_type=?, screenshot_url=?, updated_at=?
		WHERE id=?`,
		q.Title, q.Description, storedSeverity(q.Severity, q.SeverityRaw), storedQAStatus(q),
		nullString(q.AssignedTesterID), nullString(q.ProjectID),
		q.ExpectedResult, q.ActualResult, q.StepsToReproduce, q.IssueType, q.ScreenshotURL, q.UpdatedAt, q.ID,
	)
	if err != nil {
		return fmt.Errorf("update qa issue: %w", err)
	}
	return checkAffected(result, "qa issue", q.ID)
}

func (s *SQLiteStore) DeleteQAIssue(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM qa_issues WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete qa issue: %w", err)
	}
	return checkAffected(result, "qa issue", id)
}

// --- Attachments ---

const attachmentColumns = `id, qa_issue_id, file_name, file_type, file_size, file_url, uploaded_by, created_at`

func scanAttachment(row rowScanner) (*models.QAAttachment, error) {
	a := &models.QAAttachment{}
	if err := row.Scan(&a.ID, &a.QAIssueID, &a.FileName, &a.FileType, &a.FileSize, &a.FileURL, &a.UploadedBy, &a.CreatedAt); err != nil {
		return nil, err
	}
	return a, nil
}

func (s *SQLiteStore) AddQAAttachment(ctx context.Context, a *models.QAAttachment) error {
	if a.ID == "" {
		a.ID = newULID()
	}
	a.CreatedAt = utcNow()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO qa_issue_attachments (`+attachmentColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.QAIssueID, a.FileName, a.FileType, a.FileSize, a.FileURL, a.UploadedBy, a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("add qa attachment: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetQAAttachment(ctx context.Context, id string) (*models.QAAttachment, error) {
	a, err := scanAttachment(s.db.QueryRowContext(ctx,
		`SELECT `+attachmentColumns+` FROM qa_issue_attachments WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("attachment", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get qa attachment: %w", err)
	}
	return a, nil
}

func (s *SQLiteStore) ListQAAttachments(ctx context.Context, issueID string) ([]*models.QAAttachment, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+attachmentColumns+` FROM qa_issue_attachments WHERE qa_issue_id = ? ORDER BY created_at, id`, issueID)
	if err != nil {
		return nil, fmt.Errorf("list qa attachments: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*models.QAAttachment
	for rows.Next() {
		a, err := scanAttachment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan qa attachment: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) DeleteQAAttachment(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM qa_issue_attachments WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete qa attachment: %w", err)
	}
	return checkAffected(result, "attachment", id)
}

// --- Mentions ---

// AddQAMentions records one mention per member in a single transaction.
// Members already mentioned on the issue are skipped.
func (s *SQLiteStore) AddQAMentions(ctx context.Context, issueID, mentionedBy string, memberIDs []string) ([]*models.QAMention, error) {
	if len(memberIDs) == 0 {
		return nil, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var out []*models.QAMention
	for _, memberID := range memberIDs {
		m := &models.QAMention{
			ID:              newULID(),
			QAIssueID:       issueID,
			MentionedUserID: memberID,
			MentionedBy:     mentionedBy,
			CreatedAt:       utcNow(),
		}
		result, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO qa_issue_mentions (id, qa_issue_id, mentioned_user_id, mentioned_by, created_at)
			VALUES (?, ?, ?, ?, ?)`,
			m.ID, m.QAIssueID, m.MentionedUserID, m.MentionedBy, m.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("add qa mention: %w", err)
		}
		if n, _ := result.RowsAffected(); n > 0 {
			out = append(out, m)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit mentions: %w", err)
	}
	return out, nil
}

func (s *SQLiteStore) ListQAMentions(ctx context.Context, issueID string) ([]*models.QAMention, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, qa_issue_id, mentioned_user_id, mentioned_by, created_at
		FROM qa_issue_mentions WHERE qa_issue_id = ? ORDER BY created_at, id`, issueID)
	if err != nil {
		return nil, fmt.Errorf("list qa mentions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*models.QAMention
	for rows.Next() {
		m := &models.QAMention{}
		if err := rows.Scan(&m.ID, &m.QAIssueID, &m.MentionedUserID, &m.MentionedBy, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan qa mention: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
