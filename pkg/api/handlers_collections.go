package api

import (
	"io"
	"net/http"
	"time"

	"github.com/openintent-ai/openintent/pkg/governance"
	"github.com/openintent-ai/openintent/pkg/model"
)

// maxAttachmentBytes bounds an uploaded attachment; spec.md leaves
// attachment size unconstrained, so this is a pragmatic server-side cap.
const maxAttachmentBytes = 25 << 20

func (s *Server) handleAddAttachment(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxAttachmentBytes); err != nil {
		WriteBadRequest(w, r, "expected multipart/form-data with a file field")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		WriteBadRequest(w, r, "missing file field")
		return
	}
	defer file.Close()
	data, err := io.ReadAll(io.LimitReader(file, maxAttachmentBytes))
	if err != nil {
		WriteBadRequest(w, r, "failed reading upload")
		return
	}
	mimeType := header.Header.Get("Content-Type")
	a, err := s.attachments.Add(r.Context(), pathVar(r, "id"), header.Filename, mimeType, data, principalID(r), time.Now())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, a)
}

func (s *Server) handleListAttachments(w http.ResponseWriter, r *http.Request) {
	list, err := s.attachments.List(r.Context(), pathVar(r, "id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

type recordCostRequest struct {
	AgentID  string  `json:"agent_id"`
	CostType string  `json:"cost_type"`
	Amount   float64 `json:"amount"`
	Unit     string  `json:"unit"`
	Provider string  `json:"provider,omitempty"`
}

func (s *Server) handleRecordCost(w http.ResponseWriter, r *http.Request) {
	var req recordCostRequest
	if err := decodeBody(r, &req); err != nil {
		WriteBadRequest(w, r, "invalid request body")
		return
	}
	intent, err := s.intents.Get(r.Context(), pathVar(r, "id"), principalID(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	policy, err := governance.ParsePolicy(intent.GovernancePolicy)
	if err != nil {
		WriteBadRequest(w, r, "invalid governance_policy on intent")
		return
	}
	c, err := s.costs.Record(r.Context(), intent, policy, req.AgentID, req.CostType, req.Amount, req.Unit, req.Provider, principalID(r), time.Now())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (s *Server) handleListCosts(w http.ResponseWriter, r *http.Request) {
	list, err := s.costs.List(r.Context(), pathVar(r, "id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

type recordFailureRequest struct {
	AgentID       string `json:"agent_id"`
	AttemptNumber int    `json:"attempt_number"`
	ErrorCode     string `json:"error_code,omitempty"`
	ErrorMessage  string `json:"error_message,omitempty"`
}

func (s *Server) handleRecordFailure(w http.ResponseWriter, r *http.Request) {
	var req recordFailureRequest
	if err := decodeBody(r, &req); err != nil {
		WriteBadRequest(w, r, "invalid request body")
		return
	}
	outcome, err := s.retries.RecordFailure(r.Context(), pathVar(r, "id"), req.AgentID, req.AttemptNumber, req.ErrorCode, req.ErrorMessage, principalID(r), time.Now())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, outcome)
}

func (s *Server) handleListFailures(w http.ResponseWriter, r *http.Request) {
	list, err := s.retries.List(r.Context(), pathVar(r, "id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleSetRetryPolicy(w http.ResponseWriter, r *http.Request) {
	var p model.RetryPolicy
	if err := decodeBody(r, &p); err != nil {
		WriteBadRequest(w, r, "invalid request body")
		return
	}
	p.IntentID = pathVar(r, "id")
	if err := s.retries.SetPolicy(r.Context(), &p); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleGetRetryPolicy(w http.ResponseWriter, r *http.Request) {
	p, err := s.retries.Policy(r.Context(), pathVar(r, "id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

type subscribeRequest struct {
	EventTypes []string   `json:"event_types,omitempty"`
	WebhookURL string     `json:"webhook_url,omitempty"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
}

func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	var req subscribeRequest
	if err := decodeBody(r, &req); err != nil {
		WriteBadRequest(w, r, "invalid request body")
		return
	}
	sub, err := s.subs.Subscribe(r.Context(), pathVar(r, "id"), principalID(r), req.EventTypes, req.WebhookURL, req.ExpiresAt)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, sub)
}

func (s *Server) handleListSubscriptions(w http.ResponseWriter, r *http.Request) {
	list, err := s.subs.List(r.Context(), pathVar(r, "id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}
