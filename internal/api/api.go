package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/joescharf/pmdash/internal/auth"
	"github.com/joescharf/pmdash/internal/blob"
	"github.com/joescharf/pmdash/internal/board"
	"github.com/joescharf/pmdash/internal/forms"
	"github.com/joescharf/pmdash/internal/health"
	"github.com/joescharf/pmdash/internal/llm"
	"github.com/joescharf/pmdash/internal/notify"
	"github.com/joescharf/pmdash/internal/realtime"
	"github.com/joescharf/pmdash/internal/store"
)

// Server provides the REST API handlers.
type Server struct {
	store    store.Store
	events   realtime.Source
	blobs    *blob.Store
	llm      *llm.Client
	verifier *auth.Verifier
	scorer   *health.Scorer
	logger   *slog.Logger
}

// NewServer creates a new API server. s should publish its mutations to
// events so subscribers see them. The blob store and llmClient may be nil,
// which disables uploads and enrichment respectively.
func NewServer(s store.Store, events realtime.Source, blobs *blob.Store, llmClient *llm.Client, verifier *auth.Verifier, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if verifier == nil {
		verifier = auth.NewVerifier("", "")
	}
	return &Server{
		store:    s,
		events:   events,
		blobs:    blobs,
		llm:      llmClient,
		verifier: verifier,
		scorer:   health.NewScorer(),
		logger:   logger,
	}
}

// Router returns an http.Handler for the API routes plus the file server.
// Requests that match no route fall through to next, which may be nil.
func (s *Server) Router(next http.Handler) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/v1/projects", s.listProjects)
	mux.HandleFunc("POST /api/v1/projects", s.createProject)
	mux.HandleFunc("GET /api/v1/projects/{id}", s.getProject)
	mux.HandleFunc("PUT /api/v1/projects/{id}", s.updateProject)
	mux.HandleFunc("DELETE /api/v1/projects/{id}", s.deleteProject)
	mux.HandleFunc("GET /api/v1/projects/{id}/health", s.projectHealth)
	mux.HandleFunc("GET /api/v1/projects/{id}/activity", s.projectActivity)
	mux.HandleFunc("GET /api/v1/projects/{id}/members", s.listProjectMembers)
	mux.HandleFunc("POST /api/v1/projects/{id}/members", s.addProjectMember)
	mux.HandleFunc("DELETE /api/v1/projects/{id}/members/{memberID}", s.removeProjectMember)

	mux.HandleFunc("GET /api/v1/tasks", s.listTasks)
	mux.HandleFunc("POST /api/v1/tasks", s.createTask)
	mux.HandleFunc("GET /api/v1/tasks/{id}", s.getTask)
	mux.HandleFunc("PUT /api/v1/tasks/{id}", s.updateTask)
	mux.HandleFunc("DELETE /api/v1/tasks/{id}", s.deleteTask)
	mux.HandleFunc("POST /api/v1/tasks/{id}/status", s.changeTaskStatus)
	mux.HandleFunc("POST /api/v1/tasks/{id}/archive", s.deleteTask)
	mux.HandleFunc("GET /api/v1/tasks/{id}/moves", s.taskMoves)
	mux.HandleFunc("GET /api/v1/board", s.getBoard)

	mux.HandleFunc("GET /api/v1/team", s.listTeam)
	mux.HandleFunc("POST /api/v1/team", s.createTeamMember)
	mux.HandleFunc("GET /api/v1/team/workload", s.teamWorkload)
	mux.HandleFunc("GET /api/v1/team/{id}", s.getTeamMember)
	mux.HandleFunc("PUT /api/v1/team/{id}", s.updateTeamMember)
	mux.HandleFunc("DELETE /api/v1/team/{id}", s.deleteTeamMember)

	mux.HandleFunc("GET /api/v1/qa/issues", s.listQAIssues)
	mux.HandleFunc("POST /api/v1/qa/issues", s.createQAIssue)
	mux.HandleFunc("GET /api/v1/qa/issues/{id}", s.getQAIssue)
	mux.HandleFunc("PUT /api/v1/qa/issues/{id}", s.updateQAIssue)
	mux.HandleFunc("DELETE /api/v1/qa/issues/{id}", s.deleteQAIssue)
	mux.HandleFunc("POST /api/v1/qa/issues/{id}/attachments", s.uploadQAAttachment)
	mux.HandleFunc("POST /api/v1/qa/issues/{id}/enrich", s.enrichQAIssue)
	mux.HandleFunc("DELETE /api/v1/qa/attachments/{id}", s.deleteQAAttachment)

	mux.HandleFunc("GET /api/v1/qa/tests", s.listTestCases)
	mux.HandleFunc("POST /api/v1/qa/tests", s.createTestCase)
	mux.HandleFunc("PUT /api/v1/qa/tests/{id}", s.updateTestCase)
	mux.HandleFunc("DELETE /api/v1/qa/tests/{id}", s.deleteTestCase)
	mux.HandleFunc("POST /api/v1/qa/tests/{id}/status", s.changeTestCaseStatus)

	mux.HandleFunc("GET /api/v1/search", s.search)
	mux.HandleFunc("GET /api/v1/events", s.streamEvents)

	if s.blobs != nil {
		mux.Handle("GET /files/{path...}", s.blobs.Handler())
	}
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if next != nil {
		mux.Handle("/", next)
	}

	return corsMiddleware(s.verifier.Middleware(mux))
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// errorStatus maps err onto a status code and client message. msg replaces
// the detail of unexpected failures so clients see which action failed.
func errorStatus(err error, msg string) (int, string) {
	switch {
	case errors.Is(err, auth.ErrUnauthenticated):
		return http.StatusUnauthorized, err.Error()
	case store.IsNotFound(err), errors.Is(err, blob.ErrNotFound):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, board.ErrInvalidStatus), errors.Is(err, blob.ErrInvalidPath):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, blob.ErrTooLarge):
		return http.StatusRequestEntityTooLarge, err.Error()
	case errors.Is(err, blob.ErrUnsupportedType):
		return http.StatusUnsupportedMediaType, err.Error()
	default:
		return http.StatusInternalServerError, msg
	}
}

func (s *Server) fail(w http.ResponseWriter, err error, msg string) {
	var ve *forms.ValidationError
	if errors.As(err, &ve) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": ve.Message, "field": ve.Field})
		return
	}
	status, text := errorStatus(err, msg)
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "action", msg, "error", err)
	}
	writeError(w, status, text)
}

// requireIdentity writes 401 and returns false when the request is anonymous.
func requireIdentity(w http.ResponseWriter, r *http.Request) (auth.Identity, bool) {
	id := auth.FromContext(r.Context())
	if !id.Authenticated() {
		writeError(w, http.StatusUnauthorized, auth.ErrUnauthenticated.Error())
		return id, false
	}
	return id, true
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return false
	}
	return true
}

// submitter builds a form submitter whose notifications go to the log.
func (s *Server) submitter() *forms.Submitter {
	return forms.New(s.store, notify.Log{Logger: s.logger}, s.logger)
}

func queryInt(r *http.Request, key string, def int) int {
	if v, err := strconv.Atoi(r.URL.Query().Get(key)); err == nil {
		return v
	}
	return def
}

func queryBool(r *http.Request, key string, def bool) bool {
	if v, err := strconv.ParseBool(r.URL.Query().Get(key)); err == nil {
		return v
	}
	return def
}

// deleter is the shape shared by every Delete* store method.
type deleter func(ctx context.Context, id string) error

func (s *Server) deleteByID(del deleter, action string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := requireIdentity(w, r); !ok {
			return
		}
		if err := del(r.Context(), r.PathValue("id")); err != nil {
			s.fail(w, err, action)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
