package api

import (
	"net/http"

	"golang.org/x/sync/errgroup"

	"github.com/joescharf/pmdash/internal/auth"
	"github.com/joescharf/pmdash/internal/forms"
	"github.com/joescharf/pmdash/internal/health"
	"github.com/joescharf/pmdash/internal/models"
	"github.com/joescharf/pmdash/internal/store"
)

func (s *Server) listTeam(w http.ResponseWriter, r *http.Request) {
	members, err := s.store.ListTeamMembers(r.Context())
	if err != nil {
		s.fail(w, err, "Failed to load team members")
		return
	}
	if members == nil {
		members = []*models.TeamMember{}
	}
	writeJSON(w, http.StatusOK, members)
}

func (s *Server) getTeamMember(w http.ResponseWriter, r *http.Request) {
	m, err := s.store.GetTeamMember(r.Context(), r.PathValue("id"))
	if err != nil {
		s.fail(w, err, "Failed to load team member")
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (s *Server) createTeamMember(w http.ResponseWriter, r *http.Request) {
	var in forms.MemberInput
	if !decode(w, r, &in) {
		return
	}
	in.ID = ""
	m, err := s.submitter().SaveTeamMember(r.Context(), auth.FromContext(r.Context()), in)
	if err != nil {
		s.fail(w, err, "Failed to save team member")
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

func (s *Server) updateTeamMember(w http.ResponseWriter, r *http.Request) {
	existing, err := s.store.GetTeamMember(r.Context(), r.PathValue("id"))
	if err != nil {
		s.fail(w, err, "Failed to load team member")
		return
	}
	in := forms.EditTeamMember(existing)
	if !decode(w, r, &in) {
		return
	}
	in.ID = existing.ID
	m, err := s.submitter().SaveTeamMember(r.Context(), auth.FromContext(r.Context()), in)
	if err != nil {
		s.fail(w, err, "Failed to save team member")
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (s *Server) deleteTeamMember(w http.ResponseWriter, r *http.Request) {
	s.deleteByID(s.store.DeleteTeamMember, "Failed to delete team member")(w, r)
}

func (s *Server) teamWorkload(w http.ResponseWriter, r *http.Request) {
	var (
		members []*models.TeamMember
		tasks   []*models.Task
	)
	g, ctx := errgroup.WithContext(r.Context())
	g.Go(func() (err error) {
		members, err = s.store.ListTeamMembers(ctx)
		return err
	})
	g.Go(func() (err error) {
		tasks, err = s.store.ListTasks(ctx, store.TaskListFilter{ProjectID: r.URL.Query().Get("project_id")})
		return err
	})
	if err := g.Wait(); err != nil {
		s.fail(w, err, "Failed to load team workload")
		return
	}
	out := health.ComputeWorkload(members, tasks)
	if out == nil {
		out = []health.Workload{}
	}
	writeJSON(w, http.StatusOK, out)
}
