// Package realtime fans out row-change notifications to subscribers.
//
// Events are refetch triggers: subscribers never apply an event's payload,
// they reload the collection it concerns. That lets a subscription hold at
// most one pending event without losing information.
package realtime

import (
	"context"
	"fmt"
	"time"
)

// Table names a change stream.
type Table string

const (
	TableProjects           Table = "projects"
	TableTasks              Table = "tasks"
	TableTeamMembers        Table = "team_members"
	TableQAIssues           Table = "qa_issues"
	TableQAAttachments      Table = "qa_issue_attachments"
	TableQAMentions         Table = "qa_issue_mentions"
	TableTestCases          Table = "test_cases"
	TableProjectTeamMembers Table = "project_team_members"
)

// Tables lists every stream a client may subscribe to.
var Tables = []Table{
	TableProjects, TableTasks, TableTeamMembers, TableQAIssues,
	TableQAAttachments, TableQAMentions, TableTestCases, TableProjectTeamMembers,
}

// ParseTable validates a table name from a request.
func ParseTable(raw string) (Table, error) {
	for _, t := range Tables {
		if string(t) == raw {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown table: %q", raw)
}

// Action is the kind of row change.
type Action string

const (
	ActionInsert Action = "insert"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Event describes one committed row change.
type Event struct {
	Table     Table     `json:"table"`
	Action    Action    `json:"action"`
	RecordID  string    `json:"record_id"`
	ProjectID string    `json:"project_id,omitempty"`
	At        time.Time `json:"at"`
}

// Filter selects events of one table, optionally scoped to a project.
type Filter struct {
	Table     Table
	ProjectID string
}

// Matches reports whether e belongs to the stream f describes.
func (f Filter) Matches(e Event) bool {
	if f.Table != e.Table {
		return false
	}
	return f.ProjectID == "" || f.ProjectID == e.ProjectID
}

// Subscription delivers matching events until closed.
type Subscription interface {
	// Events yields pending triggers. It is closed when the subscription ends.
	Events() <-chan Event
	Close()
}

// Source opens subscriptions. The subscription ends when ctx is cancelled.
type Source interface {
	Subscribe(ctx context.Context, f Filter) (Subscription, error)
}

// Publisher accepts committed changes.
type Publisher interface {
	Publish(e Event)
}
