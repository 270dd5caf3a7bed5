package collections

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/openintent-ai/openintent/pkg/governance"
	"github.com/openintent-ai/openintent/pkg/model"
	"github.com/openintent-ai/openintent/pkg/store"
)

// CostService records cost entries under the intent's max_cost ceiling.
type CostService struct {
	store      *store.Store
	governance *governance.Service
}

// NewCostService builds a CostService.
func NewCostService(st *store.Store, gov *governance.Service) *CostService {
	return &CostService{store: st, governance: gov}
}

// Record enforces governance_policy.max_cost before appending the cost
// entry (spec.md §4.5 "enforced at the point of recording").
func (s *CostService) Record(ctx context.Context, intent *model.Intent, policy model.GovernancePolicy, agentID, costType string, amount float64, unit, provider string, actor string, now time.Time) (*model.IntentCost, error) {
	if err := s.governance.CheckMaxCost(ctx, intent.ID, amount, policy); err != nil {
		return nil, err
	}
	c := &model.IntentCost{
		ID:         uuid.NewString(),
		IntentID:   intent.ID,
		AgentID:    agentID,
		CostType:   costType,
		Amount:     amount,
		Unit:       unit,
		Provider:   provider,
		Metadata:   map[string]any{},
		RecordedAt: now,
	}
	if err := s.store.RecordCost(ctx, c); err != nil {
		return nil, fmt.Errorf("collections: record cost: %w", err)
	}
	if err := s.store.AppendEventAuto(ctx, store.NewEvent(uuid.NewString(), intent.ID, model.EventCostRecorded, actor,
		map[string]any{"cost_id": c.ID, "amount": amount, "unit": unit, "cost_type": costType}, now)); err != nil {
		return nil, fmt.Errorf("collections: record cost event: %w", err)
	}
	return c, nil
}

// List returns every recorded cost for an intent.
func (s *CostService) List(ctx context.Context, intentID string) ([]*model.IntentCost, error) {
	return s.store.ListCosts(ctx, intentID)
}

// Total sums the intent's recorded cost so far.
func (s *CostService) Total(ctx context.Context, intentID string) (float64, error) {
	return s.store.TotalCost(ctx, intentID)
}
