package forms

import (
	"context"
	"fmt"
	"strings"

	"github.com/joescharf/pmdash/internal/auth"
	"github.com/joescharf/pmdash/internal/models"
	"github.com/joescharf/pmdash/internal/notify"
)

// ProjectInput is the project dialog.
type ProjectInput struct {
	ID          string `json:"id,omitempty"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Status      string `json:"status,omitempty"`
	Deadline    string `json:"deadline,omitempty"`
	Progress    *int   `json:"progress,omitempty"`
}

// SaveProject creates or updates a project. An empty status is stored as
// empty and shown as on-track; it leaves an unrecognised stored status alone.
func (s *Submitter) SaveProject(ctx context.Context, id auth.Identity, in ProjectInput) (*models.Project, error) {
	name := strings.TrimSpace(in.Name)
	var status models.ProjectStatus
	var deadline *models.Date

	err := s.guard(ctx, id, "You must be logged in to create projects", func() error {
		if name == "" {
			return invalid("name", "Project name is required")
		}
		if raw := strings.TrimSpace(in.Status); raw != "" {
			status = models.ParseProjectStatus(raw)
			if status == models.ProjectStatusUnknown {
				return invalid("status", fmt.Sprintf("invalid project status %q", raw))
			}
		}
		if in.Progress != nil && (*in.Progress < 0 || *in.Progress > 100) {
			return invalid("progress", "progress must be between 0 and 100")
		}
		var derr error
		deadline, derr = parseOptionalDate("deadline", in.Deadline)
		return derr
	})
	if err != nil {
		return nil, err
	}

	p := &models.Project{CreatedBy: id.UserID}
	if in.ID != "" {
		if p, err = s.Store.GetProject(ctx, in.ID); err != nil {
			return nil, s.failed(ctx, "Failed to save project. Please try again.", fmt.Errorf("load project: %w", err))
		}
	}
	p.Name = name
	p.Description = strings.TrimSpace(in.Description)
	if status != "" || in.ID == "" || p.Status != models.ProjectStatusUnknown {
		p.Status, p.StatusRaw = status, ""
	}
	p.Deadline = deadline
	p.Progress = in.Progress

	if in.ID == "" {
		err = s.Store.CreateProject(ctx, p)
	} else {
		err = s.Store.UpdateProject(ctx, p)
	}
	if err != nil {
		return nil, s.failed(ctx, "Failed to save project. Please try again.", fmt.Errorf("save project: %w", err))
	}
	s.notify(ctx, notify.Success("Project Saved", fmt.Sprintf("Project \"%s\" has been saved successfully.", p.Name)))
	return p, nil
}

// AddProjectMember puts a team member on a project's roster.
func (s *Submitter) AddProjectMember(ctx context.Context, id auth.Identity, projectID, memberID string) (*models.ProjectTeamMember, error) {
	err := s.guard(ctx, id, "You must be logged in to manage project teams", func() error {
		if strings.TrimSpace(projectID) == "" {
			return invalid("project_id", "Project is required")
		}
		if strings.TrimSpace(memberID) == "" {
			return invalid("team_member_id", "Team member is required")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	ptm, err := s.Store.AddProjectMember(ctx, projectID, memberID)
	if err != nil {
		return nil, s.failed(ctx, "Failed to add team member to project", fmt.Errorf("add project member: %w", err))
	}
	s.notify(ctx, notify.Success("Success", "Team member added to project successfully"))
	return ptm, nil
}

func (s *Submitter) failed(ctx context.Context, msg string, err error) error {
	s.Logger.Error("form submit failed", "error", err)
	s.notify(ctx, notify.Failure("Error", msg))
	return err
}
