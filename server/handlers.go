package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/hupe1980/assistmesh/core"
	"github.com/hupe1980/assistmesh/orchestrator"
)

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

type createRunRequest struct {
	UserID string `json:"user_id"`
}

type createRunResponse struct {
	RunID string `json:"run_id"`
}

type listRunsResponse struct {
	RunIDs []string `json:"run_ids"`
}

type historyResponse struct {
	RunID string      `json:"run_id"`
	Turns []core.Turn `json:"turns"`
}

type messageRequest struct {
	UserID  string `json:"user_id"`
	Message string `json:"message"`
}

type ingestRequest struct {
	Documents []core.Document `json:"documents"`
	Upsert    *bool           `json:"upsert,omitempty"`
}

type ingestResponse struct {
	Ingested int `json:"ingested"`
}

type countResponse struct {
	Count int `json:"count"`
}

// errBadRequest marks malformed requests.
var errBadRequest = errors.New("bad request")

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) createRun(w http.ResponseWriter, r *http.Request) {
	var req createRunRequest
	if err := decode(r, &req, true); err != nil {
		s.writeError(w, err)
		return
	}

	id, err := s.svc.CreateRun(r.Context(), req.UserID)
	if err != nil {
		s.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, createRunResponse{RunID: id})
}

func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		s.writeError(w, fmt.Errorf("%w: user_id query parameter is required", errBadRequest))
		return
	}

	ids, err := s.svc.ListRuns(r.Context(), userID)
	if err != nil {
		s.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, listRunsResponse{RunIDs: ids})
}

func (s *Server) history(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")

	turns, err := s.svc.History(r.Context(), runID)
	if err != nil {
		s.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, historyResponse{RunID: runID, Turns: turns})
}

func (s *Server) postMessage(w http.ResponseWriter, r *http.Request) {
	var req messageRequest
	if err := decode(r, &req, false); err != nil {
		s.writeError(w, err)
		return
	}

	reply, err := s.svc.Handle(r.Context(), chi.URLParam(r, "runID"), req.UserID, req.Message)
	if err != nil {
		s.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, reply)
}

// chat answers one message on a fresh run.
func (s *Server) chat(w http.ResponseWriter, r *http.Request) {
	var req messageRequest
	if err := decode(r, &req, false); err != nil {
		s.writeError(w, err)
		return
	}

	reply, err := s.svc.Handle(r.Context(), "", req.UserID, req.Message)
	if err != nil {
		s.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, reply)
}

func (s *Server) ingest(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if err := decode(r, &req, false); err != nil {
		s.writeError(w, err)
		return
	}
	if len(req.Documents) == 0 {
		s.writeError(w, fmt.Errorf("%w: documents must not be empty", errBadRequest))
		return
	}

	upsert := true
	if req.Upsert != nil {
		upsert = *req.Upsert
	}

	n, err := s.svc.Ingest(r.Context(), req.Documents, upsert)
	if err != nil {
		s.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, ingestResponse{Ingested: n})
}

func (s *Server) clearKnowledge(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.ClearKnowledge(r.Context()); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) knowledgeCount(w http.ResponseWriter, r *http.Request) {
	n, err := s.svc.KnowledgeCount(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, countResponse{Count: n})
}

// decode reads a JSON body. Empty bodies are accepted when allowEmpty is set.
func decode(r *http.Request, v any, allowEmpty bool) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) && allowEmpty {
			return nil
		}
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return fmt.Errorf("%w: body exceeds %d bytes", errBadRequest, maxErr.Limit)
		}
		return fmt.Errorf("%w: invalid JSON body: %s", errBadRequest, strings.TrimPrefix(err.Error(), "json: "))
	}
	return nil
}

// statusFor maps errors to HTTP status codes and stable error codes.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, errBadRequest):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, orchestrator.ErrEmptyMessage):
		return http.StatusBadRequest, "empty_message"
	case errors.Is(err, core.ErrUnsupportedBackend):
		return http.StatusBadRequest, "unsupported_backend"
	case errors.Is(err, core.ErrDelegationCycle):
		return http.StatusBadRequest, "delegation_cycle"
	case errors.Is(err, orchestrator.ErrNoKnowledgeBase):
		return http.StatusNotFound, "knowledge_base_not_configured"
	case errors.Is(err, core.ErrStorageUnavailable):
		return http.StatusServiceUnavailable, "storage_unavailable"
	case errors.Is(err, core.ErrKnowledgeBaseUnavailable):
		return http.StatusServiceUnavailable, "knowledge_base_unavailable"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status, code := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("server.request.error", "code", code, "error", err.Error())
	}
	writeJSON(w, status, errorResponse{Error: err.Error(), Code: code})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
