package health

import (
	"github.com/joescharf/pmdash/internal/models"
)

// Workload is one member's derived load.
type Workload struct {
	MemberID    string              `json:"member_id"`
	Name        string              `json:"name"`
	Role        models.TeamRole     `json:"role"`
	ActiveTasks int                 `json:"active_tasks"`
	Capacity    int                 `json:"capacity"`
	Ratio       float64             `json:"ratio"`
	Status      models.MemberStatus `json:"status"`
	Reported    models.MemberStatus `json:"reported_status"`
}

// WorkloadStatus maps a load ratio to availability.
func WorkloadStatus(ratio float64) models.MemberStatus {
	switch {
	case ratio > OverloadedThreshold:
		return models.MemberOverloaded
	case ratio >= BusyThreshold:
		return models.MemberBusy
	default:
		return models.MemberAvailable
	}
}

// ComputeWorkload counts each member's non-completed tasks against their
// capacity. Members keep their input order.
func ComputeWorkload(members []*models.TeamMember, tasks []*models.Task) []Workload {
	active := make(map[string]int, len(members))
	for _, t := range tasks {
		if t.AssigneeID != "" && t.Status != models.TaskStatusCompleted {
			active[t.AssigneeID]++
		}
	}

	out := make([]Workload, 0, len(members))
	for _, m := range members {
		capacity := m.MaxCapacity
		if capacity <= 0 {
			capacity = models.DefaultMaxCapacity
		}
		ratio := float64(active[m.ID]) / float64(capacity)
		out = append(out, Workload{
			MemberID:    m.ID,
			Name:        m.Name,
			Role:        m.Role,
			ActiveTasks: active[m.ID],
			Capacity:    capacity,
			Ratio:       ratio,
			Status:      WorkloadStatus(ratio),
			Reported:    m.Status,
		})
	}
	return out
}
