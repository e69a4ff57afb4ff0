package store

import (
	"context"

	"github.com/joescharf/pmdash/internal/models"
	"github.com/joescharf/pmdash/internal/realtime"
)

// Notifying wraps a Store and publishes a realtime event after every
// successful mutation. Reads pass straight through.
type Notifying struct {
	Store
	pub realtime.Publisher
}

// NewNotifying decorates s so that commits are announced on pub.
func NewNotifying(s Store, pub realtime.Publisher) *Notifying {
	return &Notifying{Store: s, pub: pub}
}

func (n *Notifying) emit(table realtime.Table, action realtime.Action, id, projectID string) {
	n.pub.Publish(realtime.Event{Table: table, Action: action, RecordID: id, ProjectID: projectID})
}

// emitMoved announces a row change to the project it now belongs to and,
// when it changed, to the project it left.
func (n *Notifying) emitMoved(table realtime.Table, action realtime.Action, id, before, after string) {
	n.emit(table, action, id, after)
	if before != "" && before != after {
		n.emit(table, action, id, before)
	}
}

// pending holds events worked out before a mutation, published only once it
// commits.
type pending []realtime.Event

func (p *pending) add(table realtime.Table, action realtime.Action, id, projectID string) {
	*p = append(*p, realtime.Event{Table: table, Action: action, RecordID: id, ProjectID: projectID})
}

func (n *Notifying) publish(events pending) {
	for _, e := range events {
		n.pub.Publish(e)
	}
}

// --- Projects ---

func (n *Notifying) CreateProject(ctx context.Context, p *models.Project) error {
	if err := n.Store.CreateProject(ctx, p); err != nil {
		return err
	}
	n.emit(realtime.TableProjects, realtime.ActionInsert, p.ID, p.ID)
	return nil
}

func (n *Notifying) UpdateProject(ctx context.Context, p *models.Project) error {
	if err := n.Store.UpdateProject(ctx, p); err != nil {
		return err
	}
	n.emit(realtime.TableProjects, realtime.ActionUpdate, p.ID, p.ID)
	return nil
}

func (n *Notifying) DeleteProject(ctx context.Context, id string) error {
	cascade := n.projectDependents(ctx, id)
	if err := n.Store.DeleteProject(ctx, id); err != nil {
		return err
	}
	n.emit(realtime.TableProjects, realtime.ActionDelete, id, id)
	n.publish(cascade)
	return nil
}

// projectDependents lists the rows a project delete changes through foreign
// keys: tasks are detached, roster entries and QA records go with it.
func (n *Notifying) projectDependents(ctx context.Context, projectID string) pending {
	var out pending
	if projectID == "" {
		return out
	}
	if tasks, err := n.Store.ListTasks(ctx, TaskListFilter{ProjectID: projectID}); err == nil {
		for _, t := range tasks {
			out.add(realtime.TableTasks, realtime.ActionUpdate, t.ID, projectID)
		}
	}
	if roster, err := n.Store.ListProjectMembers(ctx, projectID); err == nil {
		for _, ptm := range roster {
			out.add(realtime.TableProjectTeamMembers, realtime.ActionDelete, ptm.ID, projectID)
		}
	}
	if issues, err := n.Store.ListQAIssues(ctx, projectID); err == nil {
		for _, q := range issues {
			out.add(realtime.TableQAIssues, realtime.ActionDelete, q.ID, projectID)
			out = append(out, n.issueDependents(ctx, q.ID, projectID)...)
		}
	}
	if cases, err := n.Store.ListTestCases(ctx, projectID); err == nil {
		for _, tc := range cases {
			out.add(realtime.TableTestCases, realtime.ActionDelete, tc.ID, projectID)
		}
	}
	return out
}

// --- Tasks ---

func (n *Notifying) CreateTask(ctx context.Context, t *models.Task) error {
	if err := n.Store.CreateTask(ctx, t); err != nil {
		return err
	}
	n.emit(realtime.TableTasks, realtime.ActionInsert, t.ID, t.ProjectID)
	return nil
}

func (n *Notifying) UpdateTask(ctx context.Context, t *models.Task) error {
	before := n.taskProject(ctx, t.ID)
	if err := n.Store.UpdateTask(ctx, t); err != nil {
		return err
	}
	n.emitMoved(realtime.TableTasks, realtime.ActionUpdate, t.ID, before, t.ProjectID)
	return nil
}

func (n *Notifying) UpdateTaskStatus(ctx context.Context, id string, status models.TaskStatus) error {
	if err := n.Store.UpdateTaskStatus(ctx, id, status); err != nil {
		return err
	}
	n.emit(realtime.TableTasks, realtime.ActionUpdate, id, n.taskProject(ctx, id))
	return nil
}

func (n *Notifying) DeleteTask(ctx context.Context, id string) error {
	projectID := n.taskProject(ctx, id)
	if err := n.Store.DeleteTask(ctx, id); err != nil {
		return err
	}
	n.emit(realtime.TableTasks, realtime.ActionDelete, id, projectID)
	return nil
}

// taskProject looks up the owning project for event scoping. Missing rows yield "".
func (n *Notifying) taskProject(ctx context.Context, id string) string {
	t, err := n.Store.GetTask(ctx, id)
	if err != nil {
		return ""
	}
	return t.ProjectID
}

// --- Team members ---

func (n *Notifying) CreateTeamMember(ctx context.Context, m *models.TeamMember) error {
	if err := n.Store.CreateTeamMember(ctx, m); err != nil {
		return err
	}
	n.emit(realtime.TableTeamMembers, realtime.ActionInsert, m.ID, "")
	return nil
}

func (n *Notifying) UpdateTeamMember(ctx context.Context, m *models.TeamMember) error {
	if err := n.Store.UpdateTeamMember(ctx, m); err != nil {
		return err
	}
	n.emit(realtime.TableTeamMembers, realtime.ActionUpdate, m.ID, "")
	return nil
}

func (n *Notifying) DeleteTeamMember(ctx context.Context, id string) error {
	cascade := n.memberDependents(ctx, id)
	if err := n.Store.DeleteTeamMember(ctx, id); err != nil {
		return err
	}
	n.emit(realtime.TableTeamMembers, realtime.ActionDelete, id, "")
	n.publish(cascade)
	return nil
}

// memberDependents lists the rows a member delete changes: assignments are
// cleared, roster entries and mentions are removed.
func (n *Notifying) memberDependents(ctx context.Context, memberID string) pending {
	var out pending
	if memberID == "" {
		return out
	}
	if tasks, err := n.Store.ListTasks(ctx, TaskListFilter{AssigneeID: memberID}); err == nil {
		for _, t := range tasks {
			out.add(realtime.TableTasks, realtime.ActionUpdate, t.ID, t.ProjectID)
		}
	}
	if issues, err := n.Store.ListQAIssues(ctx, ""); err == nil {
		for _, q := range issues {
			if q.AssignedTesterID == memberID {
				out.add(realtime.TableQAIssues, realtime.ActionUpdate, q.ID, q.ProjectID)
			}
			mentions, err := n.Store.ListQAMentions(ctx, q.ID)
			if err != nil {
				continue
			}
			for _, m := range mentions {
				if m.MentionedUserID == memberID {
					out.add(realtime.TableQAMentions, realtime.ActionDelete, m.ID, q.ProjectID)
				}
			}
		}
	}
	if cases, err := n.Store.ListTestCases(ctx, ""); err == nil {
		for _, tc := range cases {
			if tc.AssignedTesterID == memberID {
				out.add(realtime.TableTestCases, realtime.ActionUpdate, tc.ID, tc.ProjectID)
			}
		}
	}
	if projects, err := n.Store.ListProjects(ctx); err == nil {
		for _, p := range projects {
			roster, err := n.Store.ListProjectMembers(ctx, p.ID)
			if err != nil {
				continue
			}
			for _, ptm := range roster {
				if ptm.TeamMemberID == memberID {
					out.add(realtime.TableProjectTeamMembers, realtime.ActionDelete, ptm.ID, p.ID)
				}
			}
		}
	}
	return out
}

// --- Project rosters ---

func (n *Notifying) AddProjectMember(ctx context.Context, projectID, memberID string) (*models.ProjectTeamMember, error) {
	ptm, err := n.Store.AddProjectMember(ctx, projectID, memberID)
	if err != nil {
		return nil, err
	}
	n.emit(realtime.TableProjectTeamMembers, realtime.ActionInsert, ptm.ID, projectID)
	return ptm, nil
}

func (n *Notifying) RemoveProjectMember(ctx context.Context, projectID, memberID string) error {
	if err := n.Store.RemoveProjectMember(ctx, projectID, memberID); err != nil {
		return err
	}
	n.emit(realtime.TableProjectTeamMembers, realtime.ActionDelete, memberID, projectID)
	return nil
}

// --- QA issues ---

func (n *Notifying) CreateQAIssue(ctx context.Context, q *models.QAIssue) error {
	if err := n.Store.CreateQAIssue(ctx, q); err != nil {
		return err
	}
	n.emit(realtime.TableQAIssues, realtime.ActionInsert, q.ID, q.ProjectID)
	return nil
}

func (n *Notifying) UpdateQAIssue(ctx context.Context, q *models.QAIssue) error {
	before := n.qaProject(ctx, q.ID)
	if err := n.Store.UpdateQAIssue(ctx, q); err != nil {
		return err
	}
	n.emitMoved(realtime.TableQAIssues, realtime.ActionUpdate, q.ID, before, q.ProjectID)
	return nil
}

func (n *Notifying) DeleteQAIssue(ctx context.Context, id string) error {
	projectID := n.qaProject(ctx, id)
	cascade := n.issueDependents(ctx, id, projectID)
	if err := n.Store.DeleteQAIssue(ctx, id); err != nil {
		return err
	}
	n.emit(realtime.TableQAIssues, realtime.ActionDelete, id, projectID)
	n.publish(cascade)
	return nil
}

// issueDependents lists the attachment and mention rows removed with an issue.
func (n *Notifying) issueDependents(ctx context.Context, issueID, projectID string) pending {
	var out pending
	if attachments, err := n.Store.ListQAAttachments(ctx, issueID); err == nil {
		for _, a := range attachments {
			out.add(realtime.TableQAAttachments, realtime.ActionDelete, a.ID, projectID)
		}
	}
	if mentions, err := n.Store.ListQAMentions(ctx, issueID); err == nil {
		for _, m := range mentions {
			out.add(realtime.TableQAMentions, realtime.ActionDelete, m.ID, projectID)
		}
	}
	return out
}

func (n *Notifying) qaProject(ctx context.Context, issueID string) string {
	q, err := n.Store.GetQAIssue(ctx, issueID)
	if err != nil {
		return ""
	}
	return q.ProjectID
}

func (n *Notifying) AddQAAttachment(ctx context.Context, a *models.QAAttachment) error {
	if err := n.Store.AddQAAttachment(ctx, a); err != nil {
		return err
	}
	n.emit(realtime.TableQAAttachments, realtime.ActionInsert, a.ID, n.qaProject(ctx, a.QAIssueID))
	return nil
}

func (n *Notifying) DeleteQAAttachment(ctx context.Context, id string) error {
	var projectID string
	if a, err := n.Store.GetQAAttachment(ctx, id); err == nil {
		projectID = n.qaProject(ctx, a.QAIssueID)
	}
	if err := n.Store.DeleteQAAttachment(ctx, id); err != nil {
		return err
	}
	n.emit(realtime.TableQAAttachments, realtime.ActionDelete, id, projectID)
	return nil
}

func (n *Notifying) AddQAMentions(ctx context.Context, issueID, mentionedBy string, memberIDs []string) ([]*models.QAMention, error) {
	added, err := n.Store.AddQAMentions(ctx, issueID, mentionedBy, memberIDs)
	if err != nil {
		return nil, err
	}
	if len(added) > 0 {
		projectID := n.qaProject(ctx, issueID)
		for _, m := range added {
			n.emit(realtime.TableQAMentions, realtime.ActionInsert, m.ID, projectID)
		}
	}
	return added, nil
}

// --- Test cases ---

func (n *Notifying) CreateTestCase(ctx context.Context, tc *models.TestCase) error {
	if err := n.Store.CreateTestCase(ctx, tc); err != nil {
		return err
	}
	n.emit(realtime.TableTestCases, realtime.ActionInsert, tc.ID, tc.ProjectID)
	return nil
}

func (n *Notifying) UpdateTestCase(ctx context.Context, tc *models.TestCase) error {
	before := n.testCaseProject(ctx, tc.ID)
	if err := n.Store.UpdateTestCase(ctx, tc); err != nil {
		return err
	}
	n.emitMoved(realtime.TableTestCases, realtime.ActionUpdate, tc.ID, before, tc.ProjectID)
	return nil
}

func (n *Notifying) UpdateTestCaseStatus(ctx context.Context, id string, status models.TestStatus) error {
	if err := n.Store.UpdateTestCaseStatus(ctx, id, status); err != nil {
		return err
	}
	n.emit(realtime.TableTestCases, realtime.ActionUpdate, id, n.testCaseProject(ctx, id))
	return nil
}

func (n *Notifying) DeleteTestCase(ctx context.Context, id string) error {
	projectID := n.testCaseProject(ctx, id)
	if err := n.Store.DeleteTestCase(ctx, id); err != nil {
		return err
	}
	n.emit(realtime.TableTestCases, realtime.ActionDelete, id, projectID)
	return nil
}

func (n *Notifying) testCaseProject(ctx context.Context, id string) string {
	tc, err := n.Store.GetTestCase(ctx, id)
	if err != nil {
		return ""
	}
	return tc.ProjectID
}
