package models

import "time"

// Severity grades QA issues and test cases.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
	SeverityUnknown  Severity = "unknown"
)

var Severities = []Severity{SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow}

func ParseSeverity(raw string) Severity {
	return parseEnum(raw, Severities, SeverityUnknown)
}

// QAStatus tracks a QA issue through triage.
type QAStatus string

const (
	QAStatusOpen          QAStatus = "open"
	QAStatusInProgress    QAStatus = "in-progress"
	QAStatusResolved      QAStatus = "resolved"
	QAStatusCantReproduce QAStatus = "cant-reproduce"
	QAStatusRejected      QAStatus = "rejected"
	QAStatusUnknown       QAStatus = "unknown"
)

var QAStatuses = []QAStatus{
	QAStatusOpen, QAStatusInProgress, QAStatusResolved, QAStatusCantReproduce, QAStatusRejected,
}

// ParseQAStatus decodes a stored QA status. Underscore spellings are accepted.
func ParseQAStatus(raw string) QAStatus {
	switch raw {
	case "in_progress":
		return QAStatusInProgress
	case "cant_reproduce":
		return QAStatusCantReproduce
	}
	return parseEnum(raw, QAStatuses, QAStatusUnknown)
}

// IsOpen reports whether the issue still needs attention.
func (s QAStatus) IsOpen() bool {
	return s == QAStatusOpen || s == QAStatusInProgress
}

// QAIssue is a defect reported against a project.
type QAIssue struct {
	ID               string          `json:"id"`
	Title            string          `json:"title"`
	Description      string          `json:"description,omitempty"`
	Severity         Severity        `json:"severity"`
	SeverityRaw      string          `json:"severity_raw,omitempty"`
	Status           QAStatus        `json:"status"`
	StatusRaw        string          `json:"status_raw,omitempty"`
	AssignedTesterID string          `json:"assigned_tester_id,omitempty"`
	ProjectID        string          `json:"project_id,omitempty"`
	ExpectedResult   string          `json:"expected_result,omitempty"`
	ActualResult     string          `json:"actual_result,omitempty"`
	StepsToReproduce string          `json:"steps_to_reproduce,omitempty"`
	IssueType        string          `json:"issue_type,omitempty"`
	ScreenshotURL    string          `json:"screenshot_url,omitempty"`
	CreatedBy        string          `json:"created_by"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
	Tester           *MemberRef      `json:"assigned_tester,omitempty"`
	Attachments      []*QAAttachment `json:"attachments,omitempty"`
	Mentions         []*QAMention    `json:"mentions,omitempty"`
}

// DecodeEnums normalizes enumerated fields after a read.
func (q *QAIssue) DecodeEnums() {
	rawSev, rawStatus := string(q.Severity), string(q.Status)
	q.Severity = ParseSeverity(rawSev)
	q.SeverityRaw = rawIfUnknown(q.Severity, SeverityUnknown, rawSev)
	q.Status = ParseQAStatus(rawStatus)
	q.StatusRaw = rawIfUnknown(q.Status, QAStatusUnknown, rawStatus)
}

// QAAttachment is a file uploaded against a QA issue.
type QAAttachment struct {
	ID         string    `json:"id"`
	QAIssueID  string    `json:"qa_issue_id"`
	FileName   string    `json:"file_name"`
	FileType   string    `json:"file_type"`
	FileSize   int64     `json:"file_size"`
	FileURL    string    `json:"file_url"`
	UploadedBy string    `json:"uploaded_by"`
	CreatedAt  time.Time `json:"created_at"`
}

// QAMention records that a team member was @-mentioned on a QA issue.
type QAMention struct {
	ID              string    `json:"id"`
	QAIssueID       string    `json:"qa_issue_id"`
	MentionedUserID string    `json:"mentioned_user_id"`
	MentionedBy     string    `json:"mentioned_by"`
	CreatedAt       time.Time `json:"created_at"`
}

// TestType classifies a test case.
type TestType string

const (
	TestFunctional  TestType = "functional"
	TestUI          TestType = "ui"
	TestAPI         TestType = "api"
	TestIntegration TestType = "integration"
	TestPerformance TestType = "performance"
	TestTypeUnknown TestType = "unknown"
)

var TestTypes = []TestType{TestFunctional, TestUI, TestAPI, TestIntegration, TestPerformance}

func ParseTestType(raw string) TestType {
	return parseEnum(raw, TestTypes, TestTypeUnknown)
}

// TestStatus is the last recorded outcome of a test case.
type TestStatus string

const (
	TestPending       TestStatus = "pending"
	TestPass          TestStatus = "pass"
	TestFail          TestStatus = "fail"
	TestRetest        TestStatus = "retest"
	TestStatusUnknown TestStatus = "unknown"
)

var TestStatuses = []TestStatus{TestPending, TestPass, TestFail, TestRetest}

func ParseTestStatus(raw string) TestStatus {
	return parseEnum(raw, TestStatuses, TestStatusUnknown)
}

// TestCase is a scripted check owned by a project.
type TestCase struct {
	ID               string     `json:"id"`
	Title            string     `json:"title"`
	TestType         TestType   `json:"test_type"`
	TestTypeRaw      string     `json:"test_type_raw,omitempty"`
	Severity         Severity   `json:"severity"`
	SeverityRaw      string     `json:"severity_raw,omitempty"`
	Status           TestStatus `json:"status"`
	StatusRaw        string     `json:"status_raw,omitempty"`
	AssignedTesterID string     `json:"assigned_tester_id,omitempty"`
	ProjectID        string     `json:"project_id,omitempty"`
	Notes            string     `json:"notes,omitempty"`
	ScreenshotURL    string     `json:"screenshot_url,omitempty"`
	CreatedBy        string     `json:"created_by"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// DecodeEnums normalizes enumerated fields after a read.
func (tc *TestCase) DecodeEnums() {
	rawType, rawSev, rawStatus := string(tc.TestType), string(tc.Severity), string(tc.Status)
	tc.TestType = ParseTestType(rawType)
	tc.TestTypeRaw = rawIfUnknown(tc.TestType, TestTypeUnknown, rawType)
	tc.Severity = ParseSeverity(rawSev)
	tc.SeverityRaw = rawIfUnknown(tc.Severity, SeverityUnknown, rawSev)
	tc.Status = ParseTestStatus(rawStatus)
	tc.StatusRaw = rawIfUnknown(tc.Status, TestStatusUnknown, rawStatus)
}
