package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/joescharf/pmdash/internal/auth"
	"github.com/joescharf/pmdash/internal/forms"
	"github.com/joescharf/pmdash/internal/llm"
	"github.com/joescharf/pmdash/internal/models"
)

// multipartOverhead is the allowance for multipart framing on top of the
// blob size limit.
const multipartOverhead = 1 << 20

func (s *Server) listQAIssues(w http.ResponseWriter, r *http.Request) {
	issues, err := s.store.ListQAIssues(r.Context(), r.URL.Query().Get("project_id"))
	if err != nil {
		s.fail(w, err, "Failed to load QA issues")
		return
	}
	if issues == nil {
		issues = []*models.QAIssue{}
	}
	writeJSON(w, http.StatusOK, issues)
}

func (s *Server) getQAIssue(w http.ResponseWriter, r *http.Request) {
	q, err := s.store.GetQAIssue(r.Context(), r.PathValue("id"))
	if err != nil {
		s.fail(w, err, "Failed to load QA issue")
		return
	}
	writeJSON(w, http.StatusOK, q)
}

func (s *Server) createQAIssue(w http.ResponseWriter, r *http.Request) {
	var in forms.QAIssueInput
	if !decode(w, r, &in) {
		return
	}
	in.ID = ""
	q, err := s.submitter().SaveQAIssue(r.Context(), auth.FromContext(r.Context()), in)
	if err != nil {
		s.fail(w, err, "Failed to create QA issue")
		return
	}
	writeJSON(w, http.StatusCreated, q)
}

func (s *Server) updateQAIssue(w http.ResponseWriter, r *http.Request) {
	existing, err := s.store.GetQAIssue(r.Context(), r.PathValue("id"))
	if err != nil {
		s.fail(w, err, "Failed to load QA issue")
		return
	}
	in := forms.EditQAIssue(existing)
	if !decode(w, r, &in) {
		return
	}
	in.ID = existing.ID
	q, err := s.submitter().SaveQAIssue(r.Context(), auth.FromContext(r.Context()), in)
	if err != nil {
		s.fail(w, err, "Failed to update QA issue")
		return
	}
	writeJSON(w, http.StatusOK, q)
}

// deleteQAIssue removes the issue and then the files its attachments point at.
func (s *Server) deleteQAIssue(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireIdentity(w, r); !ok {
		return
	}
	ctx := r.Context()
	id := r.PathValue("id")
	attachments, err := s.store.ListQAAttachments(ctx, id)
	if err != nil {
		s.fail(w, err, "Failed to delete QA issue")
		return
	}
	if err := s.store.DeleteQAIssue(ctx, id); err != nil {
		s.fail(w, err, "Failed to delete QA issue")
		return
	}
	for _, a := range attachments {
		s.removeBlob(a)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) uploadQAAttachment(w http.ResponseWriter, r *http.Request) {
	id, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	if s.blobs == nil {
		writeError(w, http.StatusServiceUnavailable, "file uploads are not configured")
		return
	}
	ctx := r.Context()
	issue, err := s.store.GetQAIssue(ctx, r.PathValue("id"))
	if err != nil {
		s.fail(w, err, "Failed to upload attachment")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.blobs.MaxSize()+multipartOverhead)
	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "file exceeds upload limit")
			return
		}
		writeError(w, http.StatusBadRequest, "multipart field \"file\" is required")
		return
	}
	defer file.Close()

	obj, err := s.blobs.Put(ctx, id.UserID, header.Filename, file)
	if err != nil {
		s.fail(w, err, "Failed to upload attachment")
		return
	}
	att := &models.QAAttachment{
		QAIssueID:  issue.ID,
		FileName:   header.Filename,
		FileType:   obj.ContentType,
		FileSize:   obj.Size,
		FileURL:    obj.URL,
		UploadedBy: id.UserID,
	}
	if err := s.store.AddQAAttachment(ctx, att); err != nil {
		if derr := s.blobs.Delete(obj.Path); derr != nil {
			s.logger.Warn("remove orphaned upload failed", "path", obj.Path, "error", derr)
		}
		s.fail(w, err, "Failed to upload attachment")
		return
	}
	writeJSON(w, http.StatusCreated, att)
}

func (s *Server) deleteQAAttachment(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireIdentity(w, r); !ok {
		return
	}
	ctx := r.Context()
	att, err := s.store.GetQAAttachment(ctx, r.PathValue("id"))
	if err != nil {
		s.fail(w, err, "Failed to delete attachment")
		return
	}
	if err := s.store.DeleteQAAttachment(ctx, att.ID); err != nil {
		s.fail(w, err, "Failed to delete attachment")
		return
	}
	s.removeBlob(att)
	w.WriteHeader(http.StatusNoContent)
}

// removeBlob deletes the stored file behind a. The row is already gone, so
// failures are only logged.
func (s *Server) removeBlob(a *models.QAAttachment) {
	if s.blobs == nil {
		return
	}
	rel, ok := s.blobs.PathFromURL(a.FileURL)
	if !ok {
		return
	}
	if err := s.blobs.Delete(rel); err != nil {
		s.logger.Warn("remove attachment file failed", "attachment", a.ID, "error", err)
	}
}

type enrichResponse struct {
	Enriched *llm.EnrichedQAIssue `json:"enriched"`
	Issue    *models.QAIssue      `json:"issue,omitempty"`
}

// enrichQAIssue asks the LLM to fill out a report. With ?apply=true the
// result is saved over the issue's text fields.
func (s *Server) enrichQAIssue(w http.ResponseWriter, r *http.Request) {
	if s.llm == nil {
		writeError(w, http.StatusServiceUnavailable, "LLM is not configured (set anthropic.api_key)")
		return
	}
	id, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	issue, err := s.store.GetQAIssue(ctx, r.PathValue("id"))
	if err != nil {
		s.fail(w, err, "Failed to enrich QA issue")
		return
	}
	enriched, err := s.llm.EnrichQAIssue(ctx, llm.QAIssueDraft{
		Title:            issue.Title,
		Description:      issue.Description,
		StepsToReproduce: issue.StepsToReproduce,
		ExpectedResult:   issue.ExpectedResult,
		ActualResult:     issue.ActualResult,
	})
	if err != nil {
		s.logger.Error("enrich qa issue", "issue", issue.ID, "error", err)
		writeError(w, http.StatusBadGateway, fmt.Sprintf("enrichment failed: %v", err))
		return
	}

	resp := enrichResponse{Enriched: enriched}
	if queryBool(r, "apply", false) {
		in := forms.EditQAIssue(issue)
		in.Description = enriched.Description
		in.StepsToReproduce = enriched.StepsToReproduce
		in.ExpectedResult = enriched.ExpectedResult
		in.ActualResult = enriched.ActualResult
		if resp.Issue, err = s.submitter().SaveQAIssue(ctx, id, in); err != nil {
			s.fail(w, err, "Failed to update QA issue")
			return
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) listTestCases(w http.ResponseWriter, r *http.Request) {
	cases, err := s.store.ListTestCases(r.Context(), r.URL.Query().Get("project_id"))
	if err != nil {
		s.fail(w, err, "Failed to load test cases")
		return
	}
	if cases == nil {
		cases = []*models.TestCase{}
	}
	writeJSON(w, http.StatusOK, cases)
}

func (s *Server) createTestCase(w http.ResponseWriter, r *http.Request) {
	var in forms.TestCaseInput
	if !decode(w, r, &in) {
		return
	}
	in.ID = ""
	tc, err := s.submitter().SaveTestCase(r.Context(), auth.FromContext(r.Context()), in)
	if err != nil {
		s.fail(w, err, "Failed to save test case")
		return
	}
	writeJSON(w, http.StatusCreated, tc)
}

func (s *Server) updateTestCase(w http.ResponseWriter, r *http.Request) {
	existing, err := s.store.GetTestCase(r.Context(), r.PathValue("id"))
	if err != nil {
		s.fail(w, err, "Failed to load test case")
		return
	}
	in := forms.EditTestCase(existing)
	if !decode(w, r, &in) {
		return
	}
	in.ID = existing.ID
	tc, err := s.submitter().SaveTestCase(r.Context(), auth.FromContext(r.Context()), in)
	if err != nil {
		s.fail(w, err, "Failed to save test case")
		return
	}
	writeJSON(w, http.StatusOK, tc)
}

func (s *Server) deleteTestCase(w http.ResponseWriter, r *http.Request) {
	s.deleteByID(s.store.DeleteTestCase, "Failed to delete test case")(w, r)
}

func (s *Server) changeTestCaseStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if !decode(w, r, &req) {
		return
	}
	status := models.ParseTestStatus(req.Status)
	if status == models.TestStatusUnknown {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid test status %q", req.Status))
		return
	}
	if _, ok := requireIdentity(w, r); !ok {
		return
	}
	ctx := r.Context()
	id := r.PathValue("id")
	if err := s.store.UpdateTestCaseStatus(ctx, id, status); err != nil {
		s.fail(w, err, "Failed to update test status")
		return
	}
	tc, err := s.store.GetTestCase(ctx, id)
	if err != nil {
		s.fail(w, err, "Failed to load test case")
		return
	}
	writeJSON(w, http.StatusOK, tc)
}
