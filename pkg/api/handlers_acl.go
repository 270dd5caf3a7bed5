package api

import (
	"net/http"
	"time"

	"github.com/openintent-ai/openintent/pkg/model"
)

func (s *Server) handleGetACL(w http.ResponseWriter, r *http.Request) {
	acl, err := s.authz.GetACL(r.Context(), pathVar(r, "id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, acl)
}

type putACLRequest struct {
	DefaultPolicy model.DefaultPolicy `json:"default_policy"`
	Entries       []model.ACLEntry   `json:"entries"`
}

func (s *Server) handlePutACL(w http.ResponseWriter, r *http.Request) {
	var req putACLRequest
	if err := decodeBody(r, &req); err != nil {
		WriteBadRequest(w, r, "invalid request body")
		return
	}
	if err := s.authz.PutACL(r.Context(), pathVar(r, "id"), req.DefaultPolicy, req.Entries, principalID(r), time.Now()); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type grantACLRequest struct {
	PrincipalID   string          `json:"principal_id"`
	PrincipalType string          `json:"principal_type"`
	Permission    string          `json:"permission"`
	Reason        string          `json:"reason,omitempty"`
	ExpiresAt     *time.Time      `json:"expires_at,omitempty"`
}

func (s *Server) handleGrantACL(w http.ResponseWriter, r *http.Request) {
	var req grantACLRequest
	if err := decodeBody(r, &req); err != nil {
		WriteBadRequest(w, r, "invalid request body")
		return
	}
	entry, err := s.authz.Grant(r.Context(), pathVar(r, "id"), req.PrincipalID, req.PrincipalType,
		model.ParsePermission(req.Permission), principalID(r), req.Reason, req.ExpiresAt, time.Now())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

func (s *Server) handleRevokeACL(w http.ResponseWriter, r *http.Request) {
	if err := s.authz.Revoke(r.Context(), pathVar(r, "id"), pathVar(r, "principal"), principalID(r), time.Now()); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type createAccessRequestRequest struct {
	RequestedPermission string   `json:"requested_permission"`
	Reason              string   `json:"reason"`
	Capabilities        []string `json:"capabilities,omitempty"`
}

func (s *Server) handleCreateAccessRequest(w http.ResponseWriter, r *http.Request) {
	var req createAccessRequestRequest
	if err := decodeBody(r, &req); err != nil {
		WriteBadRequest(w, r, "invalid request body")
		return
	}
	ar, err := s.authz.CreateAccessRequest(r.Context(), pathVar(r, "id"), principalID(r),
		model.ParsePermission(req.RequestedPermission), req.Reason, req.Capabilities, time.Now())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, ar)
}

func (s *Server) handleListAccessRequests(w http.ResponseWriter, r *http.Request) {
	pendingOnly := r.URL.Query().Get("status") == "pending"
	reqs, err := s.store.ListAccessRequests(r.Context(), pathVar(r, "id"), pendingOnly)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reqs)
}

type decideAccessRequestRequest struct {
	Reason string `json:"reason,omitempty"`
}

func (s *Server) handleDecideAccessRequest(approve bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req decideAccessRequestRequest
		_ = decodeBody(r, &req)
		ar, err := s.authz.DecideAccessRequest(r.Context(), pathVar(r, "request"), approve, principalID(r), req.Reason, time.Now())
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, ar)
	}
}
