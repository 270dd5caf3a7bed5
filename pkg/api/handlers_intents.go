package api

import (
	"net/http"
	"time"

	"github.com/openintent-ai/openintent/pkg/intentcore"
	"github.com/openintent-ai/openintent/pkg/model"
	"github.com/openintent-ai/openintent/pkg/statetree"
	"github.com/openintent-ai/openintent/pkg/store"
)

type createIntentRequest struct {
	Title            string         `json:"title"`
	Description      string         `json:"description"`
	ParentIntentID   *string        `json:"parent_intent_id,omitempty"`
	DependsOn        []string       `json:"depends_on,omitempty"`
	Constraints      map[string]any `json:"constraints,omitempty"`
	State            map[string]any `json:"state,omitempty"`
	Confidence       float64        `json:"confidence,omitempty"`
	GovernancePolicy map[string]any `json:"governance_policy,omitempty"`
}

func (s *Server) handleCreateIntent(w http.ResponseWriter, r *http.Request) {
	var req createIntentRequest
	if err := decodeBody(r, &req); err != nil {
		WriteBadRequest(w, r, "invalid request body")
		return
	}
	if req.Title == "" {
		WriteBadRequest(w, r, "title is required")
		return
	}
	intent, err := s.intents.Create(r.Context(), intentcore.CreateInput{
		Title:            req.Title,
		Description:      req.Description,
		CreatedBy:        principalID(r),
		ParentIntentID:   req.ParentIntentID,
		DependsOn:        req.DependsOn,
		Constraints:      req.Constraints,
		State:            req.State,
		Confidence:       req.Confidence,
		GovernancePolicy: req.GovernancePolicy,
	}, time.Now())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, intent)
}

// handleCreateChild is POST /intents/{id}/children: a convenience that
// creates a new intent with parent_intent_id already set to {id}.
func (s *Server) handleCreateChild(w http.ResponseWriter, r *http.Request) {
	parentID := pathVar(r, "id")
	var req createIntentRequest
	if err := decodeBody(r, &req); err != nil {
		WriteBadRequest(w, r, "invalid request body")
		return
	}
	req.ParentIntentID = &parentID
	intent, err := s.intents.Create(r.Context(), intentcore.CreateInput{
		Title:            req.Title,
		Description:      req.Description,
		CreatedBy:        principalID(r),
		ParentIntentID:   req.ParentIntentID,
		DependsOn:        req.DependsOn,
		Constraints:      req.Constraints,
		State:            req.State,
		Confidence:       req.Confidence,
		GovernancePolicy: req.GovernancePolicy,
	}, time.Now())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, intent)
}

func (s *Server) handleGetIntent(w http.ResponseWriter, r *http.Request) {
	intent, err := s.intents.Get(r.Context(), pathVar(r, "id"), principalID(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, intent)
}

func (s *Server) handleListIntents(w http.ResponseWriter, r *http.Request) {
	f := store.ListIntentsFilter{
		Limit:  queryInt(r, "limit", 50),
		Offset: queryInt(r, "offset", 0),
	}
	if status := r.URL.Query().Get("status"); status != "" {
		st := model.Status(status)
		f.Status = &st
	}
	intents, err := s.intents.List(r.Context(), f)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, intents)
}

type patchStateRequest struct {
	Patches []statetree.Patch `json:"patches"`
}

func (s *Server) handlePatchState(w http.ResponseWriter, r *http.Request) {
	version, ok := ifMatchVersion(r)
	if !ok {
		WriteBadRequest(w, r, "If-Match header with the expected version is required")
		return
	}
	var req patchStateRequest
	if err := decodeBody(r, &req); err != nil {
		WriteBadRequest(w, r, "invalid request body")
		return
	}
	for _, p := range req.Patches {
		if err := p.Validate(); err != nil {
			WriteBadRequest(w, r, err.Error())
			return
		}
	}
	intent, err := s.intents.PatchState(r.Context(), pathVar(r, "id"), principalID(r), version, req.Patches, time.Now())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, intent)
}

type setStatusRequest struct {
	Status model.Status `json:"status"`
}

func (s *Server) handleSetStatus(w http.ResponseWriter, r *http.Request) {
	version, ok := ifMatchVersion(r)
	if !ok {
		WriteBadRequest(w, r, "If-Match header with the expected version is required")
		return
	}
	var req setStatusRequest
	if err := decodeBody(r, &req); err != nil {
		WriteBadRequest(w, r, "invalid request body")
		return
	}
	if !req.Status.Valid() {
		WriteBadRequest(w, r, "unrecognized status")
		return
	}
	intent, err := s.intents.SetStatus(r.Context(), pathVar(r, "id"), principalID(r), version, req.Status, time.Now())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, intent)
}

type addDependencyRequest struct {
	DependsOn string `json:"depends_on"`
}

func (s *Server) handleAddDependency(w http.ResponseWriter, r *http.Request) {
	version, ok := ifMatchVersion(r)
	if !ok {
		WriteBadRequest(w, r, "If-Match header with the expected version is required")
		return
	}
	var req addDependencyRequest
	if err := decodeBody(r, &req); err != nil {
		WriteBadRequest(w, r, "invalid request body")
		return
	}
	intent, err := s.intents.AddDependency(r.Context(), pathVar(r, "id"), req.DependsOn, principalID(r), version, time.Now())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, intent)
}

func (s *Server) handleRemoveDependency(w http.ResponseWriter, r *http.Request) {
	version, ok := ifMatchVersion(r)
	if !ok {
		WriteBadRequest(w, r, "If-Match header with the expected version is required")
		return
	}
	intent, err := s.intents.RemoveDependency(r.Context(), pathVar(r, "id"), pathVar(r, "dep"), principalID(r), version, time.Now())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, intent)
}

func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	f := store.EventFilter{
		SinceSeq: int64(queryInt(r, "since_sequence", 0)),
		Limit:    queryInt(r, "limit", 100),
	}
	if t := r.URL.Query().Get("event_type"); t != "" {
		et := model.EventType(t)
		f.EventType = &et
	}
	events, err := s.store.ListEvents(r.Context(), pathVar(r, "id"), f)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}
