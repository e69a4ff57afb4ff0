package forms

import "github.com/joescharf/pmdash/internal/models"

// The Edit* helpers prefill a dialog from a stored record so a partial
// update only has to set the fields it changes. Unrecognised enum values
// are left blank; the submit then keeps the stored raw text.

func dateString(d *models.Date) string {
	if d == nil {
		return ""
	}
	return d.String()
}

func known[T ~string](v, unknown T) string {
	if v == unknown {
		return ""
	}
	return string(v)
}

// EditTask prefills the task dialog from t.
func EditTask(t *models.Task) TaskInput {
	return TaskInput{
		ID:          t.ID,
		Title:       t.Title,
		Description: t.Description,
		Status:      known(t.Status, models.TaskStatusUnknown),
		Priority:    known(t.Priority, models.PriorityUnknown),
		DueDate:     dateString(t.DueDate),
		Tags:        append([]string(nil), t.Tags...),
		ProjectID:   t.ProjectID,
		AssigneeID:  t.AssigneeID,
	}
}

// EditProject prefills the project dialog from p.
func EditProject(p *models.Project) ProjectInput {
	in := ProjectInput{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Status:      known(p.Status, models.ProjectStatusUnknown),
		Deadline:    dateString(p.Deadline),
	}
	if p.Progress != nil {
		v := *p.Progress
		in.Progress = &v
	}
	return in
}

// EditTeamMember prefills the member dialog from m.
func EditTeamMember(m *models.TeamMember) MemberInput {
	return MemberInput{
		ID:          m.ID,
		Name:        m.Name,
		Role:        known(m.Role, models.RoleUnknown),
		AvatarURL:   m.AvatarURL,
		MaxCapacity: m.MaxCapacity,
		Skills:      append([]string(nil), m.Skills...),
		Status:      known(m.Status, models.MemberUnknown),
	}
}

// EditQAIssue prefills the QA issue dialog from q.
func EditQAIssue(q *models.QAIssue) QAIssueInput {
	return QAIssueInput{
		ID:               q.ID,
		Title:            q.Title,
		Description:      q.Description,
		Severity:         known(q.Severity, models.SeverityUnknown),
		Status:           known(q.Status, models.QAStatusUnknown),
		AssignedTesterID: q.AssignedTesterID,
		ProjectID:        q.ProjectID,
		ExpectedResult:   q.ExpectedResult,
		ActualResult:     q.ActualResult,
		StepsToReproduce: q.StepsToReproduce,
		IssueType:        q.IssueType,
		ScreenshotURL:    q.ScreenshotURL,
	}
}

// EditTestCase prefills the test case dialog from tc.
func EditTestCase(tc *models.TestCase) TestCaseInput {
	return TestCaseInput{
		ID:               tc.ID,
		Title:            tc.Title,
		TestType:         known(tc.TestType, models.TestTypeUnknown),
		Severity:         known(tc.Severity, models.SeverityUnknown),
		Status:           known(tc.Status, models.TestStatusUnknown),
		AssignedTesterID: tc.AssignedTesterID,
		ProjectID:        tc.ProjectID,
		Notes:            tc.Notes,
		ScreenshotURL:    tc.ScreenshotURL,
	}
}
