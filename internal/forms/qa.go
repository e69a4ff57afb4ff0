package forms

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/joescharf/pmdash/internal/auth"
	"github.com/joescharf/pmdash/internal/models"
	"github.com/joescharf/pmdash/internal/notify"
)

// QAIssueInput is the QA issue dialog.
type QAIssueInput struct {
	ID               string `json:"id,omitempty"`
	Title            string `json:"title"`
	Description      string `json:"description,omitempty"`
	Severity         string `json:"severity,omitempty"`
	Status           string `json:"status,omitempty"`
	AssignedTesterID string `json:"assigned_tester_id,omitempty"`
	ProjectID        string `json:"project_id,omitempty"`
	ExpectedResult   string `json:"expected_result,omitempty"`
	ActualResult     string `json:"actual_result,omitempty"`
	StepsToReproduce string `json:"steps_to_reproduce,omitempty"`
	IssueType        string `json:"issue_type,omitempty"`
	ScreenshotURL    string `json:"screenshot_url,omitempty"`
	// Classify fills an empty severity and issue type from the title
	// instead of defaulting severity to medium.
	Classify bool `json:"classify,omitempty"`
}

// SaveQAIssue creates or updates a QA issue and records @mentions of team
// members found in the description. On an update a blank severity or status
// keeps the stored value.
func (s *Submitter) SaveQAIssue(ctx context.Context, id auth.Identity, in QAIssueInput) (*models.QAIssue, error) {
	title := strings.TrimSpace(in.Title)
	var severity models.Severity
	var status models.QAStatus
	issueType := strings.TrimSpace(in.IssueType)

	err := s.guard(ctx, id, "You must be logged in to report QA issues", func() error {
		if title == "" {
			return invalid("title", "Issue title is required")
		}
		if raw := strings.TrimSpace(in.Severity); raw != "" {
			if severity = models.ParseSeverity(raw); severity == models.SeverityUnknown {
				return invalid("severity", fmt.Sprintf("invalid severity %q", raw))
			}
		} else if in.Classify {
			severity = ClassifySeverity(title)
		}
		if raw := strings.TrimSpace(in.Status); raw != "" {
			if status = models.ParseQAStatus(raw); status == models.QAStatusUnknown {
				return invalid("status", fmt.Sprintf("invalid QA status %q", raw))
			}
		}
		if issueType == "" && in.Classify {
			issueType = ClassifyIssueType(title)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	verb := "create"
	q := &models.QAIssue{Severity: models.SeverityMedium, Status: models.QAStatusOpen, CreatedBy: id.UserID}
	if in.ID != "" {
		verb = "update"
		if q, err = s.Store.GetQAIssue(ctx, in.ID); err != nil {
			return nil, s.failed(ctx, "Failed to update QA issue", fmt.Errorf("load qa issue: %w", err))
		}
	}
	q.Title = title
	q.Description = strings.TrimSpace(in.Description)
	if severity != "" {
		q.Severity, q.SeverityRaw = severity, ""
	}
	if status != "" {
		q.Status, q.StatusRaw = status, ""
	}
	q.AssignedTesterID = in.AssignedTesterID
	q.ProjectID = in.ProjectID
	q.ExpectedResult = strings.TrimSpace(in.ExpectedResult)
	q.ActualResult = strings.TrimSpace(in.ActualResult)
	q.StepsToReproduce = strings.TrimSpace(in.StepsToReproduce)
	q.IssueType = issueType
	q.ScreenshotURL = strings.TrimSpace(in.ScreenshotURL)

	if in.ID == "" {
		err = s.Store.CreateQAIssue(ctx, q)
	} else {
		err = s.Store.UpdateQAIssue(ctx, q)
	}
	if err != nil {
		return nil, s.failed(ctx, fmt.Sprintf("Failed to %s QA issue", verb), fmt.Errorf("save qa issue: %w", err))
	}

	if q.Description != "" && strings.Contains(q.Description, "@") {
		s.recordMentions(ctx, id, q)
	}

	s.notify(ctx, notify.Success("Success", fmt.Sprintf("QA issue %sd successfully", verb)))
	return q, nil
}

// recordMentions adds mention rows for roster members named in the
// description. Failures are logged; the issue itself is already saved.
func (s *Submitter) recordMentions(ctx context.Context, id auth.Identity, q *models.QAIssue) {
	roster, err := s.mentionRoster(ctx, q.ProjectID)
	if err != nil {
		s.Logger.Warn("load mention roster failed", "issue", q.ID, "error", err)
		return
	}
	ids := make([]string, 0)
	for _, m := range Mentions(q.Description, roster) {
		ids = append(ids, m.ID)
	}
	if len(ids) == 0 {
		return
	}
	added, err := s.Store.AddQAMentions(ctx, q.ID, id.UserID, ids)
	if err != nil {
		s.Logger.Warn("record mentions failed", "issue", q.ID, "error", err)
		return
	}
	q.Mentions = append(q.Mentions, added...)
}

// mentionRoster is the project's team, or the whole roster when the issue
// has no project.
func (s *Submitter) mentionRoster(ctx context.Context, projectID string) ([]*models.TeamMember, error) {
	if projectID == "" {
		return s.Store.ListTeamMembers(ctx)
	}
	ptms, err := s.Store.ListProjectMembers(ctx, projectID)
	if err != nil {
		return nil, err
	}
	members := make([]*models.TeamMember, 0, len(ptms))
	for _, ptm := range ptms {
		if ptm.Member != nil {
			members = append(members, ptm.Member)
		}
	}
	return members, nil
}

// Mentions returns the members whose "@Name" appears in text, longest name
// first so "@Ann Lee" is not also counted as "@Ann".
func Mentions(text string, members []*models.TeamMember) []*models.TeamMember {
	sorted := append([]*models.TeamMember(nil), members...)
	sort.SliceStable(sorted, func(i, j int) bool { return len(sorted[i].Name) > len(sorted[j].Name) })

	remaining := text
	var found []*models.TeamMember
	seen := map[string]bool{}
	for _, m := range sorted {
		if m.Name == "" || seen[m.ID] {
			continue
		}
		tag := "@" + m.Name
		if strings.Contains(remaining, tag) {
			found = append(found, m)
			seen[m.ID] = true
			remaining = strings.ReplaceAll(remaining, tag, "")
		}
	}
	return found
}

// MentionSuggestions lists members whose name contains the partial word
// after a trailing "@" in text. ok is false when text does not end in a
// mention.
func MentionSuggestions(text string, members []*models.TeamMember) (suggestions []*models.TeamMember, ok bool) {
	at := strings.LastIndex(text, "@")
	if at < 0 {
		return nil, false
	}
	query := text[at+1:]
	for _, r := range query {
		if !isWordRune(r) {
			return nil, false
		}
	}
	query = strings.ToLower(query)
	for _, m := range members {
		if strings.Contains(strings.ToLower(m.Name), query) {
			suggestions = append(suggestions, m)
		}
	}
	return suggestions, true
}

func isWordRune(r rune) bool {
	return r == '_' || ('0' <= r && r <= '9') || ('a' <= r && r <= 'z') || ('A' <= r && r <= 'Z')
}
