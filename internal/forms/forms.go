// Package forms validates and submits the create/edit dialogs. Each submit
// checks required fields, then the caller's identity, then issues exactly
// one insert or update.
package forms

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/joescharf/pmdash/internal/auth"
	"github.com/joescharf/pmdash/internal/models"
	"github.com/joescharf/pmdash/internal/notify"
)

// ErrUnauthenticated is returned when a form is submitted without a user.
var ErrUnauthenticated = auth.ErrUnauthenticated

// ValidationError names the first field that failed validation.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string {
	return e.Message
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

func invalid(field, msg string) *ValidationError {
	return &ValidationError{Field: field, Message: msg}
}

// Store is the write side the forms need.
type Store interface {
	CreateProject(ctx context.Context, p *models.Project) error
	GetProject(ctx context.Context, id string) (*models.Project, error)
	UpdateProject(ctx context.Context, p *models.Project) error

	CreateTask(ctx context.Context, t *models.Task) error
	GetTask(ctx context.Context, id string) (*models.Task, error)
	UpdateTask(ctx context.Context, t *models.Task) error

	CreateTeamMember(ctx context.Context, m *models.TeamMember) error
	GetTeamMember(ctx context.Context, id string) (*models.TeamMember, error)
	UpdateTeamMember(ctx context.Context, m *models.TeamMember) error

	AddProjectMember(ctx context.Context, projectID, memberID string) (*models.ProjectTeamMember, error)
	ListProjectMembers(ctx context.Context, projectID string) ([]*models.ProjectTeamMember, error)
	ListTeamMembers(ctx context.Context) ([]*models.TeamMember, error)

	CreateQAIssue(ctx context.Context, q *models.QAIssue) error
	GetQAIssue(ctx context.Context, id string) (*models.QAIssue, error)
	UpdateQAIssue(ctx context.Context, q *models.QAIssue) error
	AddQAMentions(ctx context.Context, issueID, mentionedBy string, memberIDs []string) ([]*models.QAMention, error)

	CreateTestCase(ctx context.Context, tc *models.TestCase) error
	GetTestCase(ctx context.Context, id string) (*models.TestCase, error)
	UpdateTestCase(ctx context.Context, tc *models.TestCase) error
}

// Submitter runs form submits against a store.
type Submitter struct {
	Store    Store
	Notifier notify.Notifier
	Logger   *slog.Logger
}

// New creates a Submitter. A nil notifier drops notifications.
func New(s Store, n notify.Notifier, logger *slog.Logger) *Submitter {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Submitter{Store: s, Notifier: n, Logger: logger}
}

func (s *Submitter) notify(ctx context.Context, n notify.Notification) {
	if s.Notifier != nil {
		s.Notifier.Notify(ctx, n)
	}
}

// reject reports a validation or identity failure before any store call.
func (s *Submitter) reject(ctx context.Context, err error) error {
	s.notify(ctx, notify.Failure("Error", capitalize(err.Error())))
	return err
}

// guard runs validation, then the identity check. loginMsg is shown when
// identity is missing.
func (s *Submitter) guard(ctx context.Context, id auth.Identity, loginMsg string, validate func() error) error {
	if err := validate(); err != nil {
		return s.reject(ctx, err)
	}
	if !id.Authenticated() {
		s.notify(ctx, notify.Failure("Error", loginMsg))
		return ErrUnauthenticated
	}
	return nil
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func parseOptionalDate(field, raw string) (*models.Date, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	d, err := models.ParseDate(raw)
	if err != nil {
		return nil, invalid(field, fmt.Sprintf("%s must be a date (YYYY-MM-DD)", strings.ReplaceAll(field, "_", " ")))
	}
	return &d, nil
}

func cleanList(in []string) []string {
	var out []string
	seen := make(map[string]bool, len(in))
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}
