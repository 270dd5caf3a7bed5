package api

import (
	"net/http"

	"github.com/openintent-ai/openintent/pkg/federation"
	"github.com/openintent-ai/openintent/pkg/model"
)

type dispatchRequest struct {
	IntentID          string                   `json:"intent_id"`
	TargetServer      string                   `json:"target_server"`
	AgentID           string                   `json:"agent_id,omitempty"`
	DelegationScope   *model.DelegationScope   `json:"delegation_scope,omitempty"`
	FederationPolicy  *model.FederationPolicy  `json:"federation_policy,omitempty"`
	CallbackURL       string                   `json:"callback_url,omitempty"`
	TraceContext      string                   `json:"trace_context,omitempty"`
}

func (s *Server) handleFederationDispatch(w http.ResponseWriter, r *http.Request) {
	var req dispatchRequest
	if err := decodeBody(r, &req); err != nil {
		WriteBadRequest(w, r, "invalid request body")
		return
	}
	intent, err := s.intents.Get(r.Context(), req.IntentID, principalID(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	dispatch, err := s.dispatcher.Dispatch(r.Context(), federation.Request{
		IntentID:          intent.ID,
		IntentTitle:       intent.Title,
		IntentDescription: intent.Description,
		IntentState:       intent.State,
		IntentConstraints: intent.Constraints,
		TargetServer:      req.TargetServer,
		AgentID:           req.AgentID,
		DelegationScope:   req.DelegationScope,
		FederationPolicy:  req.FederationPolicy,
		CallbackURL:       req.CallbackURL,
		TraceContext:      req.TraceContext,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, dispatch)
}

func (s *Server) handleFederationReceive(w http.ResponseWriter, r *http.Request) {
	var envelope model.FederationEnvelope
	if err := decodeBody(r, &envelope); err != nil {
		WriteBadRequest(w, r, "invalid request body")
		return
	}
	outcome, err := s.receiver.Receive(r.Context(), &envelope)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if outcome.Rejected {
		writeJSON(w, http.StatusForbidden, outcome)
		return
	}
	writeJSON(w, http.StatusAccepted, outcome)
}
