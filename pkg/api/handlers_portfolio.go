package api

import (
	"net/http"
	"time"

	"github.com/openintent-ai/openintent/pkg/model"
)

type createPortfolioRequest struct {
	Name             string         `json:"name"`
	Description      string         `json:"description,omitempty"`
	GovernancePolicy map[string]any `json:"governance_policy,omitempty"`
}

func (s *Server) handleCreatePortfolio(w http.ResponseWriter, r *http.Request) {
	var req createPortfolioRequest
	if err := decodeBody(r, &req); err != nil {
		WriteBadRequest(w, r, "invalid request body")
		return
	}
	p, err := s.portfolios.Create(r.Context(), req.Name, req.Description, principalID(r), req.GovernancePolicy, time.Now())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (s *Server) handleListPortfolios(w http.ResponseWriter, r *http.Request) {
	list, err := s.portfolios.List(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

type portfolioView struct {
	*model.Portfolio
	Aggregate model.AggregateStatus `json:"aggregate_status"`
}

func (s *Server) handleGetPortfolio(w http.ResponseWriter, r *http.Request) {
	id := pathVar(r, "id")
	p, err := s.portfolios.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	agg, err := s.portfolios.AggregateStatus(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, portfolioView{Portfolio: p, Aggregate: agg})
}

type addPortfolioMemberRequest struct {
	IntentID string                `json:"intent_id"`
	Role     model.MembershipRole `json:"role,omitempty"`
	Priority int                   `json:"priority,omitempty"`
}

func (s *Server) handleAddPortfolioMember(w http.ResponseWriter, r *http.Request) {
	var req addPortfolioMemberRequest
	if err := decodeBody(r, &req); err != nil {
		WriteBadRequest(w, r, "invalid request body")
		return
	}
	if req.Role == "" {
		req.Role = model.MembershipMember
	}
	m, err := s.portfolios.AddMember(r.Context(), pathVar(r, "id"), req.IntentID, req.Role, req.Priority, principalID(r), time.Now())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

func (s *Server) handleListPortfolioMembers(w http.ResponseWriter, r *http.Request) {
	members, err := s.portfolios.Members(r.Context(), pathVar(r, "id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, members)
}
