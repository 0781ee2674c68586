package server

import (
	"net/http"
	"strings"

	"github.com/candelahq/trellis/errors"
	"github.com/candelahq/trellis/logger"
	"github.com/candelahq/trellis/scheduler"
	"github.com/candelahq/trellis/version"
)

type enrollRequest struct {
	ProjectID  string `json:"project_id"`
	Language   string `json:"language,omitempty"`
	ExternalID string `json:"external_id,omitempty"`
}

type enrollResponse struct {
	ID string `json:"id"`
}

type inboundRequest struct {
	Text string `json:"text"`
}

type healthResponse struct {
	Status   string                 `json:"status"`
	Version  string                 `json:"version"`
	Database string                 `json:"database"`
	Memory   *scheduler.MemoryStats `json:"memory,omitempty"`
}

// handleHealth reports liveness: version, a database ping and process
// memory. Degraded database connectivity still answers 200 so the check
// distinguishes "API down" from "database down".
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}

	resp := healthResponse{
		Status:   "ok",
		Version:  version.Get().Version,
		Database: "ok",
	}
	if err := s.db.PingContext(r.Context()); err != nil {
		resp.Status = "degraded"
		resp.Database = err.Error()
	}
	if mem, err := scheduler.GetMemoryStats(); err == nil {
		resp.Memory = mem
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleProjects lists all projects
func (s *Server) handleProjects(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}

	projects, err := s.store.ListProjects(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, projects)
}

// handleProjectByID serves GET /api/projects/{id}
func (s *Server) handleProjectByID(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}

	id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/projects/"), "/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	project, err := s.store.GetProject(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, project)
}

// handleEnrollParticipant serves POST /api/participants
func (s *Server) handleEnrollParticipant(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}

	var req enrollRequest
	if !readJSON(w, r, &req) {
		return
	}
	if req.ProjectID == "" {
		writeError(w, http.StatusBadRequest, "project_id is required")
		return
	}

	id, err := s.engine.EnrollParticipant(r.Context(), req.ProjectID, req.Language, req.ExternalID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	s.logger.Infow("Participant enrolled via API",
		logger.FieldParticipantID, shortID(id),
		logger.FieldProjectID, req.ProjectID)
	writeJSON(w, http.StatusCreated, enrollResponse{ID: id})
}

// handleParticipantSubtree routes /api/participants/{id} and its
// sub-resources: messages, message (inbound), timeline.
func (s *Server) handleParticipantSubtree(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/participants/"), "/"), "/")
	if len(parts) == 0 || parts[0] == "" {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	participantID := parts[0]

	switch {
	case len(parts) == 1:
		s.handleGetParticipant(w, r, participantID)
	case len(parts) == 2 && parts[1] == "messages":
		s.handleListMessages(w, r, participantID)
	case len(parts) == 2 && parts[1] == "message":
		s.handleInboundMessage(w, r, participantID)
	case len(parts) == 2 && parts[1] == "timeline":
		s.handleTimeline(w, r, participantID)
	default:
		writeError(w, http.StatusNotFound, "not found")
	}
}

func (s *Server) handleGetParticipant(w http.ResponseWriter, r *http.Request, participantID string) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}

	p, err := s.store.GetParticipant(r.Context(), participantID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request, participantID string) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}

	messages, err := s.engine.ListMessages(r.Context(), participantID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, messages)
}

// handleInboundMessage accepts one inbound participant text. Empty texts
// are rejected here; the engine assumes they never arrive.
func (s *Server) handleInboundMessage(w http.ResponseWriter, r *http.Request, participantID string) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}

	var req inboundRequest
	if !readJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeDomainError(w, errors.NewInvalidRequestError("message text must not be empty"))
		return
	}

	if err := s.engine.ProcessInbound(r.Context(), participantID, req.Text); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

func (s *Server) handleTimeline(w http.ResponseWriter, r *http.Request, participantID string) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}

	entries, err := s.engine.ListTimeline(r.Context(), participantID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}
