package api

import (
	"net/http"
	"time"

	"github.com/openintent-ai/openintent/pkg/model"
)

type assignAgentRequest struct {
	AgentID string                `json:"agent_id"`
	Role    model.AssignmentRole `json:"role"`
}

func (s *Server) handleAssignAgent(w http.ResponseWriter, r *http.Request) {
	var req assignAgentRequest
	if err := decodeBody(r, &req); err != nil {
		WriteBadRequest(w, r, "invalid request body")
		return
	}
	if req.Role == "" {
		req.Role = model.RoleWorker
	}
	if err := s.intents.AssignAgent(r.Context(), pathVar(r, "id"), req.AgentID, req.Role, principalID(r), time.Now()); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleUnassignAgent(w http.ResponseWriter, r *http.Request) {
	if err := s.intents.UnassignAgent(r.Context(), pathVar(r, "id"), pathVar(r, "agent"), principalID(r), time.Now()); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListAgents(w http.ResponseWriter, r *http.Request) {
	agents, err := s.store.ListAgents(r.Context(), pathVar(r, "id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, agents)
}

type acquireLeaseRequest struct {
	Scope  string `json:"scope"`
	TTLSec int    `json:"ttl_seconds"`
}

func (s *Server) handleAcquireLease(w http.ResponseWriter, r *http.Request) {
	var req acquireLeaseRequest
	if err := decodeBody(r, &req); err != nil {
		WriteBadRequest(w, r, "invalid request body")
		return
	}
	if req.TTLSec <= 0 {
		WriteBadRequest(w, r, "ttl_seconds must be positive")
		return
	}
	lease, err := s.leases.Acquire(r.Context(), pathVar(r, "id"), principalID(r), req.Scope, time.Duration(req.TTLSec)*time.Second, time.Now())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, lease)
}

func (s *Server) handleListLeases(w http.ResponseWriter, r *http.Request) {
	leases, err := s.leases.List(r.Context(), pathVar(r, "id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, leases)
}

type renewLeaseRequest struct {
	TTLSec int `json:"ttl_seconds"`
}

func (s *Server) handleRenewLease(w http.ResponseWriter, r *http.Request) {
	var req renewLeaseRequest
	if err := decodeBody(r, &req); err != nil {
		WriteBadRequest(w, r, "invalid request body")
		return
	}
	lease, err := s.leases.Renew(r.Context(), pathVar(r, "lease"), principalID(r), time.Duration(req.TTLSec)*time.Second, time.Now())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, lease)
}

func (s *Server) handleReleaseLease(w http.ResponseWriter, r *http.Request) {
	if err := s.leases.Release(r.Context(), pathVar(r, "lease"), pathVar(r, "id"), principalID(r), time.Now()); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
