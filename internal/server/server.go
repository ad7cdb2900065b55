// Package server exposes the console's local HTTP surface: the issue
// queue, the open conversation, the agent roster, the knowledge-base
// ledger, and operational endpoints.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/gamedesk/helpdesk-console/internal/conversation"
	"github.com/gamedesk/helpdesk-console/internal/core/domain"
	"github.com/gamedesk/helpdesk-console/internal/dispatch"
	"github.com/gamedesk/helpdesk-console/internal/escalation"
	"github.com/gamedesk/helpdesk-console/internal/issues"
	"github.com/gamedesk/helpdesk-console/internal/notify"
	"github.com/gamedesk/helpdesk-console/internal/settings"
)

// maxUploadBytes bounds multipart document uploads.
const maxUploadBytes = 32 << 20

// Deps are the collaborators the HTTP surface exposes.
type Deps struct {
	Queue         *issues.Queue
	Escalations   *escalation.Service
	Conversations *conversation.Manager
	Dispatcher    *dispatch.Dispatcher
	Agents        *settings.Agents
	Documents     *settings.Documents
	Notices       *notify.Center
	Logger        *slog.Logger
}

// Server is the console's local HTTP listener.
type Server struct {
	Router *chi.Mux
	deps   Deps
	logger *slog.Logger
}

// New builds the router with the standard middleware chain.
func New(deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{deps: deps, logger: logger}

	r := chi.NewRouter()
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(logger))
	r.Use(TimeoutMiddleware(30 * time.Second))
	r.Use(middleware.Recoverer)
	r.Use(func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(next, "helpdesk-console")
	})

	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/issues", s.handleListIssues)
		r.Post("/issues/refresh", s.handleRefreshIssues)
		r.Post("/issues/{id}/open", s.handleOpenIssue)
		r.Get("/issues/{id}/timeline", s.handleIssueTimeline)
		r.Get("/issues/{id}/state", s.handleIssueState)

		r.Get("/conversation", s.handleConversation)
		r.Post("/conversation/close", s.handleCloseConversation)
		r.Post("/conversation/draft", s.handleDraft)
		r.Post("/conversation/send", s.handleSend)

		r.Get("/agents", s.handleListAgents)
		r.Post("/agents", s.handleSaveAgent)
		r.Put("/agents/{id}", s.handleUpdateAgent)
		r.Delete("/agents/{id}", s.handleDeleteAgent)

		r.Get("/documents", s.handleListDocuments)
		r.Post("/documents/file", s.handleUploadFile)
		r.Post("/documents/url", s.handleAddURL)
		r.Delete("/documents/{id}", s.handleRemoveDocument)

		r.Get("/notifications", s.handleNotifications)
	})

	s.Router = r
	return s
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleListIssues returns the queue view plus tab counts. The query
// and filter parameters mirror the console's search box and tabs.
func (s *Server) handleListIssues(w http.ResponseWriter, r *http.Request) {
	filter := issues.Filter(r.URL.Query().Get("filter"))
	if filter == "" {
		filter = issues.FilterAll
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"issues": s.deps.Queue.Search(r.URL.Query().Get("q"), filter),
		"counts": s.deps.Queue.Counts(),
	})
}

// handleIssueTimeline returns the message timeline for an issue's
// conversation. Only the open conversation has one; switch with
// /issues/{id}/open first.
func (s *Server) handleIssueTimeline(w http.ResponseWriter, r *http.Request) {
	issue, view, err := s.issueView(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"issue_id":         issue.ID,
		"conversation_id":  view.ID(),
		"history_resolved": view.HistoryResolved(),
		"messages":         view.Messages(),
	})
}

// handleIssueState reports the live-channel connection state for an
// issue's conversation. Issues without an open view report closed.
func (s *Server) handleIssueState(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	issue, ok := s.deps.Queue.Get(id)
	if !ok {
		s.writeError(w, r, domain.NewValidationError("server.issue_state", "no issue with id "+id))
		return
	}

	state := domain.ConnStateClosed
	if view := s.deps.Conversations.Active(); view != nil && view.ID() == issue.ConversationID {
		state = view.State()
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"issue_id":         issue.ID,
		"connection_state": state,
	})
}

// issueView resolves an issue id to the open conversation view bound
// to it.
func (s *Server) issueView(r *http.Request) (domain.Issue, *conversation.View, error) {
	id := chi.URLParam(r, "id")
	issue, ok := s.deps.Queue.Get(id)
	if !ok {
		return domain.Issue{}, nil, domain.NewValidationError("server.issue", "no issue with id "+id)
	}

	view := s.deps.Conversations.Active()
	if view == nil || view.ID() != issue.ConversationID {
		return domain.Issue{}, nil, domain.NewValidationError("server.issue", "conversation for issue "+id+" is not open")
	}
	return issue, view, nil
}

func (s *Server) handleRefreshIssues(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Escalations.RefreshQueue(r.Context()); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"counts": s.deps.Queue.Counts()})
}

// handleOpenIssue switches the console to the issue's conversation.
func (s *Server) handleOpenIssue(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	issue, ok := s.deps.Queue.Get(id)
	if !ok {
		s.writeError(w, r, domain.NewValidationError("server.open_issue", "no issue with id "+id))
		return
	}

	// The view outlives this request; don't bind it to the request
	// context or the timeout middleware would tear it down.
	view, err := s.deps.Conversations.Open(context.WithoutCancel(r.Context()), issue.ConversationID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	AddLogField(r.Context(), "conversation_id", view.ID())
	writeJSON(w, http.StatusOK, map[string]any{
		"issue":           issue,
		"conversation_id": view.ID(),
	})
}

// handleConversation returns the open conversation's timeline and
// connection state.
func (s *Server) handleConversation(w http.ResponseWriter, r *http.Request) {
	view := s.deps.Conversations.Active()
	if view == nil {
		s.writeError(w, r, domain.NewValidationError("server.conversation", "no conversation is open"))
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"conversation_id":  view.ID(),
		"connection_state": view.State(),
		"history_resolved": view.HistoryResolved(),
		"messages":         view.Messages(),
		"draft":            s.deps.Dispatcher.Draft(view.ID()),
	})
}

func (s *Server) handleCloseConversation(w http.ResponseWriter, r *http.Request) {
	s.deps.Conversations.CloseActive()
	writeJSON(w, http.StatusOK, map[string]string{"status": "closed"})
}

func (s *Server) handleDraft(w http.ResponseWriter, r *http.Request) {
	view := s.deps.Conversations.Active()
	if view == nil {
		s.writeError(w, r, domain.NewValidationError("server.draft", "no conversation is open"))
		return
	}

	var body struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, r, domain.NewProtocolError("server.draft", err))
		return
	}

	s.deps.Dispatcher.SetDraft(view.ID(), body.Text)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleSend posts the current draft. An optional text field replaces
// the draft first.
func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	view := s.deps.Conversations.Active()
	if view == nil {
		s.writeError(w, r, domain.NewValidationError("server.send", "no conversation is open"))
		return
	}

	var body struct {
		Text *string `json:"text"`
	}
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			s.writeError(w, r, domain.NewProtocolError("server.send", err))
			return
		}
	}
	if body.Text != nil {
		s.deps.Dispatcher.SetDraft(view.ID(), *body.Text)
	}

	if err := s.deps.Dispatcher.Send(r.Context(), view.ID()); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

func (s *Server) handleListAgents(w http.ResponseWriter, r *http.Request) {
	agents, err := s.deps.Agents.List(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if agents == nil {
		agents = []settings.Agent{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"agents": agents})
}

func (s *Server) handleSaveAgent(w http.ResponseWriter, r *http.Request) {
	var agent settings.Agent
	if err := json.NewDecoder(r.Body).Decode(&agent); err != nil {
		s.writeError(w, r, domain.NewProtocolError("server.save_agent", err))
		return
	}

	saved, err := s.deps.Agents.Save(r.Context(), agent)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

// handleUpdateAgent replaces an existing roster entry. The path id
// wins over any id in the body.
func (s *Server) handleUpdateAgent(w http.ResponseWriter, r *http.Request) {
	var agent settings.Agent
	if err := json.NewDecoder(r.Body).Decode(&agent); err != nil {
		s.writeError(w, r, domain.NewProtocolError("server.update_agent", err))
		return
	}
	agent.ID = chi.URLParam(r, "id")

	saved, err := s.deps.Agents.Save(r.Context(), agent)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

func (s *Server) handleDeleteAgent(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Agents.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := s.deps.Documents.List(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if docs == nil {
		docs = []settings.Document{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"documents": docs})
}

// handleUploadFile accepts a multipart upload: file, collection_name,
// agent_id.
func (s *Server) handleUploadFile(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		s.writeError(w, r, domain.NewProtocolError("server.upload", err))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		s.writeError(w, r, domain.NewValidationError("server.upload", "file part is required"))
		return
	}
	defer file.Close()

	doc, err := s.deps.Documents.UploadFile(r.Context(),
		r.FormValue("collection_name"), r.FormValue("agent_id"),
		header.Filename, header.Size, file)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (s *Server) handleAddURL(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Collection string `json:"collection_name"`
		AgentID    string `json:"agent_id"`
		URL        string `json:"url"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, r, domain.NewProtocolError("server.add_url", err))
		return
	}

	doc, err := s.deps.Documents.AddURL(r.Context(), body.Collection, body.AgentID, body.URL)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (s *Server) handleRemoveDocument(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Documents.Remove(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleNotifications(w http.ResponseWriter, r *http.Request) {
	notices := s.deps.Notices.Recent()
	if notices == nil {
		notices = []notify.Notice{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"notifications": notices})
}

// writeError maps the console error taxonomy onto HTTP statuses.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	AddError(r.Context(), err)

	status := http.StatusBadGateway
	switch domain.KindOf(err) {
	case domain.ErrorKindValidation:
		status = http.StatusBadRequest
	case domain.ErrorKindProtocol:
		status = http.StatusBadRequest
	}
	if errors.Is(err, dispatch.ErrSendInFlight) {
		status = http.StatusConflict
	}

	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
