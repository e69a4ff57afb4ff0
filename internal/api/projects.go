package api

import (
	"fmt"
	"net/http"

	"golang.org/x/sync/errgroup"

	"github.com/joescharf/pmdash/internal/activity"
	"github.com/joescharf/pmdash/internal/auth"
	"github.com/joescharf/pmdash/internal/forms"
	"github.com/joescharf/pmdash/internal/models"
	"github.com/joescharf/pmdash/internal/store"
)

func (s *Server) listProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := s.store.ListProjects(r.Context())
	if err != nil {
		s.fail(w, err, "Failed to load projects")
		return
	}
	if projects == nil {
		projects = []*models.Project{}
	}
	writeJSON(w, http.StatusOK, projects)
}

func (s *Server) getProject(w http.ResponseWriter, r *http.Request) {
	p, err := s.store.GetProject(r.Context(), r.PathValue("id"))
	if err != nil {
		s.fail(w, err, "Failed to load project")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) createProject(w http.ResponseWriter, r *http.Request) {
	var in forms.ProjectInput
	if !decode(w, r, &in) {
		return
	}
	in.ID = ""
	p, err := s.submitter().SaveProject(r.Context(), auth.FromContext(r.Context()), in)
	if err != nil {
		s.fail(w, err, "Failed to save project")
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (s *Server) updateProject(w http.ResponseWriter, r *http.Request) {
	existing, err := s.store.GetProject(r.Context(), r.PathValue("id"))
	if err != nil {
		s.fail(w, err, "Failed to load project")
		return
	}
	in := forms.EditProject(existing)
	if !decode(w, r, &in) {
		return
	}
	in.ID = existing.ID
	p, err := s.submitter().SaveProject(r.Context(), auth.FromContext(r.Context()), in)
	if err != nil {
		s.fail(w, err, "Failed to save project")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) deleteProject(w http.ResponseWriter, r *http.Request) {
	s.deleteByID(s.store.DeleteProject, "Failed to delete project")(w, r)
}

// projectHealth loads the project with its tasks and issues concurrently.
func (s *Server) projectHealth(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var (
		project *models.Project
		tasks   []*models.Task
		issues  []*models.QAIssue
	)
	g, ctx := errgroup.WithContext(r.Context())
	g.Go(func() (err error) {
		project, err = s.store.GetProject(ctx, id)
		return err
	})
	g.Go(func() (err error) {
		tasks, err = s.store.ListTasks(ctx, store.TaskListFilter{ProjectID: id})
		return err
	})
	g.Go(func() (err error) {
		issues, err = s.store.ListQAIssues(ctx, id)
		return err
	})
	if err := g.Wait(); err != nil {
		s.fail(w, err, "Failed to load project health")
		return
	}
	writeJSON(w, http.StatusOK, s.scorer.Assess(project, tasks, issues))
}

func (s *Server) projectActivity(w http.ResponseWriter, r *http.Request) {
	only, err := activity.ParseType(r.URL.Query().Get("type"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	id := r.PathValue("id")
	ctx := r.Context()
	if _, err := s.store.GetProject(ctx, id); err != nil {
		s.fail(w, err, "Failed to load project")
		return
	}
	tasks, err := s.store.ListTasks(ctx, store.TaskListFilter{ProjectID: id})
	if err != nil {
		s.fail(w, err, "Failed to load activity")
		return
	}
	issues, err := s.store.ListQAIssues(ctx, id)
	if err != nil {
		s.fail(w, err, "Failed to load activity")
		return
	}
	for _, q := range issues {
		if q.Attachments, err = s.store.ListQAAttachments(ctx, q.ID); err != nil {
			s.fail(w, fmt.Errorf("list attachments: %w", err), "Failed to load activity")
			return
		}
	}
	writeJSON(w, http.StatusOK, activity.Build(tasks, issues, only))
}

func (s *Server) listProjectMembers(w http.ResponseWriter, r *http.Request) {
	members, err := s.store.ListProjectMembers(r.Context(), r.PathValue("id"))
	if err != nil {
		s.fail(w, err, "Failed to load project team")
		return
	}
	if members == nil {
		members = []*models.ProjectTeamMember{}
	}
	writeJSON(w, http.StatusOK, members)
}

type addMemberRequest struct {
	TeamMemberID string `json:"team_member_id"`
}

func (s *Server) addProjectMember(w http.ResponseWriter, r *http.Request) {
	var req addMemberRequest
	if !decode(w, r, &req) {
		return
	}
	ptm, err := s.submitter().AddProjectMember(r.Context(), auth.FromContext(r.Context()), r.PathValue("id"), req.TeamMemberID)
	if err != nil {
		s.fail(w, err, "Failed to add team member to project")
		return
	}
	writeJSON(w, http.StatusCreated, ptm)
}

func (s *Server) removeProjectMember(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireIdentity(w, r); !ok {
		return
	}
	if err := s.store.RemoveProjectMember(r.Context(), r.PathValue("id"), r.PathValue("memberID")); err != nil {
		s.fail(w, err, "Failed to remove team member from project")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
