// Package portfolio groups intents under a shared governance policy and
// tracks their aggregate status (spec.md §4.5 Portfolios).
package portfolio

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/openintent-ai/openintent/pkg/governance"
	"github.com/openintent-ai/openintent/pkg/model"
	"github.com/openintent-ai/openintent/pkg/store"
)

// eventScope namespaces portfolio-level events away from per-intent
// event streams; intent_events has no intent row to attach to for
// portfolio_created/member_added/status_changed.
func eventScope(portfolioID string) string {
	return "portfolio:" + portfolioID
}

// Service implements portfolio CRUD, membership and the cascade-status
// supplement (SPEC_FULL §12: a portfolio completes once every member
// intent reaches a terminal status).
type Service struct {
	store *store.Store
}

// New builds a Service.
func New(st *store.Store) *Service {
	return &Service{store: st}
}

// Create inserts a new portfolio.
func (s *Service) Create(ctx context.Context, name, description, createdBy string, policy map[string]any, now time.Time) (*model.Portfolio, error) {
	p := &model.Portfolio{
		ID:               uuid.NewString(),
		Name:             name,
		Description:      description,
		CreatedBy:        createdBy,
		Status:           model.PortfolioActive,
		GovernancePolicy: policy,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.store.CreatePortfolio(ctx, p); err != nil {
		return nil, fmt.Errorf("portfolio: create: %w", err)
	}
	if err := s.store.AppendEventAuto(ctx, store.NewEvent(uuid.NewString(), eventScope(p.ID), model.EventPortfolioCreated, createdBy,
		map[string]any{"portfolio_id": p.ID, "name": name}, now)); err != nil {
		return nil, fmt.Errorf("portfolio: record created event: %w", err)
	}
	return p, nil
}

// Get fetches one portfolio by id.
func (s *Service) Get(ctx context.Context, id string) (*model.Portfolio, error) {
	return s.store.GetPortfolio(ctx, id)
}

// List returns every portfolio.
func (s *Service) List(ctx context.Context) ([]*model.Portfolio, error) {
	return s.store.ListPortfolios(ctx)
}

// AddMember links an intent into a portfolio with a role and priority.
func (s *Service) AddMember(ctx context.Context, portfolioID, intentID string, role model.MembershipRole, priority int, actor string, now time.Time) (*model.PortfolioMembership, error) {
	m := &model.PortfolioMembership{
		ID:          uuid.NewString(),
		PortfolioID: portfolioID,
		IntentID:    intentID,
		Role:        role,
		Priority:    priority,
		AddedAt:     now,
	}
	if err := s.store.AddPortfolioMember(ctx, m); err != nil {
		return nil, fmt.Errorf("portfolio: add member: %w", err)
	}
	if err := s.store.AppendEventAuto(ctx, store.NewEvent(uuid.NewString(), eventScope(portfolioID), model.EventPortfolioMemberAdded, actor,
		map[string]any{"portfolio_id": portfolioID, "intent_id": intentID, "role": string(role)}, now)); err != nil {
		return nil, fmt.Errorf("portfolio: record member event: %w", err)
	}
	return m, nil
}

// Members returns every intent membership in a portfolio.
func (s *Service) Members(ctx context.Context, portfolioID string) ([]*model.PortfolioMembership, error) {
	return s.store.ListMembers(ctx, portfolioID)
}

// AggregateStatus computes the member-status histogram and completion
// percentage for a portfolio's view (spec.md §4.5 "aggregate status").
func (s *Service) AggregateStatus(ctx context.Context, portfolioID string) (model.AggregateStatus, error) {
	statuses, err := s.store.MemberIntentStatuses(ctx, portfolioID)
	if err != nil {
		return model.AggregateStatus{}, fmt.Errorf("portfolio: aggregate status: %w", err)
	}
	histogram := map[string]int{}
	completed := 0
	for _, st := range statuses {
		histogram[string(st)]++
		if st == model.StatusCompleted {
			completed++
		}
	}
	pct := 0.0
	if len(statuses) > 0 {
		pct = float64(completed) / float64(len(statuses))
	}
	return model.AggregateStatus{
		Total:                len(statuses),
		ByStatus:             histogram,
		CompletionPercentage: pct,
	}, nil
}

// EffectivePolicy composes a portfolio's governance_policy with an
// intent's own, taking the strictest of each field (spec.md §4.5).
func (s *Service) EffectivePolicy(ctx context.Context, portfolioID string, intentPolicy model.GovernancePolicy) (model.GovernancePolicy, error) {
	p, err := s.store.GetPortfolio(ctx, portfolioID)
	if err != nil {
		return model.GovernancePolicy{}, fmt.Errorf("portfolio: load policy: %w", err)
	}
	portfolioPolicy, err := governance.ParsePolicy(p.GovernancePolicy)
	if err != nil {
		return model.GovernancePolicy{}, fmt.Errorf("portfolio: parse policy: %w", err)
	}
	return governance.Compose(intentPolicy, portfolioPolicy), nil
}

// CheckCascadeCompletion is called after an intent transitions status;
// it looks up every portfolio the intent belongs to and, for any whose
// members are now all terminal (completed or abandoned), marks the
// portfolio completed (SPEC_FULL §12 cascade-completion supplement).
func (s *Service) CheckCascadeCompletion(ctx context.Context, intentID string, now time.Time) error {
	portfolioIDs, err := s.store.PortfoliosForIntent(ctx, intentID)
	if err != nil {
		return fmt.Errorf("portfolio: cascade lookup: %w", err)
	}
	for _, pid := range portfolioIDs {
		p, err := s.store.GetPortfolio(ctx, pid)
		if err != nil {
			return fmt.Errorf("portfolio: cascade load %s: %w", pid, err)
		}
		if p.Status != model.PortfolioActive {
			continue
		}
		statuses, err := s.store.MemberIntentStatuses(ctx, pid)
		if err != nil {
			return fmt.Errorf("portfolio: cascade statuses %s: %w", pid, err)
		}
		if !allTerminal(statuses) {
			continue
		}
		if err := s.store.SetPortfolioStatus(ctx, pid, model.PortfolioCompleted, now); err != nil {
			return fmt.Errorf("portfolio: cascade complete %s: %w", pid, err)
		}
		if err := s.store.AppendEventAuto(ctx, store.NewEvent(uuid.NewString(), eventScope(pid), model.EventPortfolioStatusChanged, "system",
			map[string]any{"portfolio_id": pid, "status": string(model.PortfolioCompleted), "reason": "all members terminal"}, now)); err != nil {
			return fmt.Errorf("portfolio: record cascade event: %w", err)
		}
	}
	return nil
}

func allTerminal(statuses []model.Status) bool {
	if len(statuses) == 0 {
		return false
	}
	for _, st := range statuses {
		if st != model.StatusCompleted && st != model.StatusAbandoned {
			return false
		}
	}
	return true
}
