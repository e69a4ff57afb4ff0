package forms

import (
	"context"
	"fmt"
	"strings"

	"github.com/joescharf/pmdash/internal/auth"
	"github.com/joescharf/pmdash/internal/models"
	"github.com/joescharf/pmdash/internal/notify"
)

// TestCaseInput is the test case dialog.
type TestCaseInput struct {
	ID               string `json:"id,omitempty"`
	Title            string `json:"title"`
	TestType         string `json:"test_type,omitempty"`
	Severity         string `json:"severity,omitempty"`
	Status           string `json:"status,omitempty"`
	AssignedTesterID string `json:"assigned_tester_id,omitempty"`
	ProjectID        string `json:"project_id,omitempty"`
	Notes            string `json:"notes,omitempty"`
	ScreenshotURL    string `json:"screenshot_url,omitempty"`
}

// SaveTestCase creates or updates a test case. Type defaults to functional,
// severity to medium and status to pending; on an update a blank field keeps
// the stored value.
func (s *Submitter) SaveTestCase(ctx context.Context, id auth.Identity, in TestCaseInput) (*models.TestCase, error) {
	title := strings.TrimSpace(in.Title)
	var testType models.TestType
	var severity models.Severity
	var status models.TestStatus

	err := s.guard(ctx, id, "You must be logged in to manage test cases", func() error {
		if title == "" {
			return invalid("title", "Test case title is required")
		}
		if raw := strings.TrimSpace(in.TestType); raw != "" {
			if testType = models.ParseTestType(raw); testType == models.TestTypeUnknown {
				return invalid("test_type", fmt.Sprintf("invalid test type %q", raw))
			}
		}
		if raw := strings.TrimSpace(in.Severity); raw != "" {
			if severity = models.ParseSeverity(raw); severity == models.SeverityUnknown {
				return invalid("severity", fmt.Sprintf("invalid severity %q", raw))
			}
		}
		if raw := strings.TrimSpace(in.Status); raw != "" {
			if status = models.ParseTestStatus(raw); status == models.TestStatusUnknown {
				return invalid("status", fmt.Sprintf("invalid test status %q", raw))
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	tc := &models.TestCase{
		TestType:  models.TestFunctional,
		Severity:  models.SeverityMedium,
		Status:    models.TestPending,
		CreatedBy: id.UserID,
	}
	if in.ID != "" {
		if tc, err = s.Store.GetTestCase(ctx, in.ID); err != nil {
			return nil, s.failed(ctx, "Failed to save test case", fmt.Errorf("load test case: %w", err))
		}
	}
	tc.Title = title
	if testType != "" {
		tc.TestType, tc.TestTypeRaw = testType, ""
	}
	if severity != "" {
		tc.Severity, tc.SeverityRaw = severity, ""
	}
	if status != "" {
		tc.Status, tc.StatusRaw = status, ""
	}
	tc.AssignedTesterID = in.AssignedTesterID
	tc.ProjectID = in.ProjectID
	tc.Notes = strings.TrimSpace(in.Notes)
	tc.ScreenshotURL = strings.TrimSpace(in.ScreenshotURL)

	if in.ID == "" {
		err = s.Store.CreateTestCase(ctx, tc)
	} else {
		err = s.Store.UpdateTestCase(ctx, tc)
	}
	if err != nil {
		return nil, s.failed(ctx, "Failed to save test case", fmt.Errorf("save test case: %w", err))
	}
	s.notify(ctx, notify.Success("Success", fmt.Sprintf("Test case \"%s\" saved", tc.Title)))
	return tc, nil
}
