package api

import (
	"net/http"
	"time"
)

func (s *Server) handleGetGovernance(w http.ResponseWriter, r *http.Request) {
	intent, err := s.intents.Get(r.Context(), pathVar(r, "id"), principalID(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, intent.GovernancePolicy)
}

func (s *Server) handleSetGovernance(w http.ResponseWriter, r *http.Request) {
	version, ok := ifMatchVersion(r)
	if !ok {
		WriteBadRequest(w, r, "If-Match header with the expected version is required")
		return
	}
	var policy map[string]any
	if err := decodeBody(r, &policy); err != nil {
		WriteBadRequest(w, r, "invalid request body")
		return
	}
	if err := s.intents.SetGovernancePolicy(r.Context(), pathVar(r, "id"), version, policy, principalID(r), time.Now()); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, policy)
}

type requestApprovalRequest struct {
	Action  string         `json:"action"`
	Reason  string         `json:"reason"`
	Context map[string]any `json:"context,omitempty"`
}

func (s *Server) handleRequestApproval(w http.ResponseWriter, r *http.Request) {
	var req requestApprovalRequest
	if err := decodeBody(r, &req); err != nil {
		WriteBadRequest(w, r, "invalid request body")
		return
	}
	approval, err := s.governance.RequestApproval(r.Context(), pathVar(r, "id"), principalID(r), req.Action, req.Reason, req.Context, time.Now())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, approval)
}

// handleDecideApproval returns a handler that approves (if approve) or
// denies the named approval; POST /intents/{id}/approvals/{approval}/approve|deny.
func (s *Server) handleDecideApproval(approve bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		approval, err := s.governance.DecideApproval(r.Context(), pathVar(r, "approval"), approve, principalID(r), time.Now())
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, approval)
	}
}
