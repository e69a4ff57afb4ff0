package forms

import (
	"context"
	"fmt"
	"strings"

	"github.com/joescharf/pmdash/internal/auth"
	"github.com/joescharf/pmdash/internal/models"
	"github.com/joescharf/pmdash/internal/notify"
)

// MemberInput is the team member dialog.
type MemberInput struct {
	ID          string   `json:"id,omitempty"`
	Name        string   `json:"name"`
	Role        string   `json:"role,omitempty"`
	AvatarURL   string   `json:"avatar_url,omitempty"`
	MaxCapacity int      `json:"max_capacity,omitempty"`
	Skills      []string `json:"skills,omitempty"`
	Status      string   `json:"status,omitempty"`
}

// SaveTeamMember creates or updates a roster entry. Role defaults to Dev,
// status to available and capacity to the default. On an update a blank role
// or status keeps the stored value.
func (s *Submitter) SaveTeamMember(ctx context.Context, id auth.Identity, in MemberInput) (*models.TeamMember, error) {
	name := strings.TrimSpace(in.Name)
	var role models.TeamRole
	var status models.MemberStatus

	err := s.guard(ctx, id, "You must be logged in to manage the team", func() error {
		if name == "" {
			return invalid("name", "Name is required")
		}
		if raw := strings.TrimSpace(in.Role); raw != "" {
			if role = models.ParseTeamRole(raw); role == models.RoleUnknown {
				return invalid("role", fmt.Sprintf("invalid role %q", raw))
			}
		}
		if raw := strings.TrimSpace(in.Status); raw != "" {
			if status = models.ParseMemberStatus(raw); status == models.MemberUnknown {
				return invalid("status", fmt.Sprintf("invalid member status %q", raw))
			}
		}
		if in.MaxCapacity < 0 {
			return invalid("max_capacity", "max capacity cannot be negative")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	m := &models.TeamMember{Role: models.RoleDev, Status: models.MemberAvailable, CreatedBy: id.UserID}
	if in.ID != "" {
		if m, err = s.Store.GetTeamMember(ctx, in.ID); err != nil {
			return nil, s.failed(ctx, "Failed to save team member", fmt.Errorf("load team member: %w", err))
		}
	}
	m.Name = name
	if role != "" {
		m.Role, m.RoleRaw = role, ""
	}
	if status != "" {
		m.Status, m.StatusRaw = status, ""
	}
	m.AvatarURL = strings.TrimSpace(in.AvatarURL)
	m.Skills = cleanList(in.Skills)
	m.MaxCapacity = in.MaxCapacity
	if m.MaxCapacity == 0 {
		m.MaxCapacity = models.DefaultMaxCapacity
	}

	if in.ID == "" {
		err = s.Store.CreateTeamMember(ctx, m)
	} else {
		err = s.Store.UpdateTeamMember(ctx, m)
	}
	if err != nil {
		return nil, s.failed(ctx, "Failed to save team member", fmt.Errorf("save team member: %w", err))
	}
	s.notify(ctx, notify.Success("Team Member Saved", fmt.Sprintf("%s has been saved successfully.", m.Name)))
	return m, nil
}
