package models

import "time"

// ProjectStatus is the delivery health a project owner reports.
type ProjectStatus string

const (
	ProjectStatusNone    ProjectStatus = ""
	ProjectStatusOnTrack ProjectStatus = "on-track"
	ProjectStatusAtRisk  ProjectStatus = "at-risk"
	ProjectStatusDelayed ProjectStatus = "delayed"
	ProjectStatusUnknown ProjectStatus = "unknown"
)

// ProjectStatuses lists the assignable project statuses.
var ProjectStatuses = []ProjectStatus{ProjectStatusOnTrack, ProjectStatusAtRisk, ProjectStatusDelayed}

// ParseProjectStatus decodes a stored value. Empty stays empty.
func ParseProjectStatus(raw string) ProjectStatus {
	if raw == "" {
		return ProjectStatusNone
	}
	return parseEnum(raw, ProjectStatuses, ProjectStatusUnknown)
}

// Display returns the status shown to users; an unset status reads as on-track.
func (s ProjectStatus) Display() ProjectStatus {
	if s == ProjectStatusNone {
		return ProjectStatusOnTrack
	}
	return s
}

// Project is a unit of delivery that owns tasks, QA issues and test cases.
type Project struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	Description string        `json:"description,omitempty"`
	Status      ProjectStatus `json:"status,omitempty"`
	StatusRaw   string        `json:"status_raw,omitempty"`
	Deadline    *Date         `json:"deadline,omitempty"`
	Progress    *int          `json:"progress,omitempty"` // 0-100
	CreatedBy   string        `json:"created_by,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// DecodeEnums normalizes enumerated fields after a read.
func (p *Project) DecodeEnums() {
	raw := string(p.Status)
	p.Status = ParseProjectStatus(raw)
	p.StatusRaw = rawIfUnknown(p.Status, ProjectStatusUnknown, raw)
}

// ProjectRef is the joined subset of a project carried on tasks.
type ProjectRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ProjectTeamMember links a team member to a project roster.
type ProjectTeamMember struct {
	ID           string      `json:"id"`
	ProjectID    string      `json:"project_id"`
	TeamMemberID string      `json:"team_member_id"`
	CreatedAt    time.Time   `json:"created_at"`
	Member       *TeamMember `json:"team_member,omitempty"`
}
