package models

import "time"

// TeamRole is a member's discipline.
type TeamRole string

const (
	RoleDev     TeamRole = "Dev"
	RoleQA      TeamRole = "QA"
	RoleUIUX    TeamRole = "UI/UX"
	RoleBA      TeamRole = "BA"
	RoleUnknown TeamRole = "unknown"
)

var TeamRoles = []TeamRole{RoleDev, RoleQA, RoleUIUX, RoleBA}

func ParseTeamRole(raw string) TeamRole {
	return parseEnum(raw, TeamRoles, RoleUnknown)
}

// MemberStatus is a member's reported availability.
type MemberStatus string

const (
	MemberAvailable  MemberStatus = "available"
	MemberBusy       MemberStatus = "busy"
	MemberOverloaded MemberStatus = "overloaded"
	MemberUnknown    MemberStatus = "unknown"
)

var MemberStatuses = []MemberStatus{MemberAvailable, MemberBusy, MemberOverloaded}

func ParseMemberStatus(raw string) MemberStatus {
	return parseEnum(raw, MemberStatuses, MemberUnknown)
}

// DefaultMaxCapacity is applied when a member is saved without a capacity.
const DefaultMaxCapacity = 8

// TeamMember is a person on the roster.
type TeamMember struct {
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	Role         TeamRole     `json:"role"`
	RoleRaw      string       `json:"role_raw,omitempty"`
	AvatarURL    string       `json:"avatar_url,omitempty"`
	CurrentTasks int          `json:"current_tasks"`
	MaxCapacity  int          `json:"max_capacity"`
	Skills       []string     `json:"skills,omitempty"`
	Status       MemberStatus `json:"status"`
	StatusRaw    string       `json:"status_raw,omitempty"`
	CreatedBy    string       `json:"created_by,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

// DecodeEnums normalizes enumerated fields after a read.
func (m *TeamMember) DecodeEnums() {
	rawRole, rawStatus := string(m.Role), string(m.Status)
	m.Role = ParseTeamRole(rawRole)
	m.RoleRaw = rawIfUnknown(m.Role, RoleUnknown, rawRole)
	m.Status = ParseMemberStatus(rawStatus)
	m.StatusRaw = rawIfUnknown(m.Status, MemberUnknown, rawStatus)
}

// Ref returns the joined view of the member.
func (m *TeamMember) Ref() *MemberRef {
	return &MemberRef{ID: m.ID, Name: m.Name, AvatarURL: m.AvatarURL}
}
