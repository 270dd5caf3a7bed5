package governance

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/openintent-ai/openintent/pkg/model"
	"github.com/openintent-ai/openintent/pkg/store"
	"github.com/openintent-ai/openintent/pkg/telemetry"
)

// ErrViolation is returned when a governed operation is rejected; Rule
// names which policy field triggered it, matching the 403 body's
// "rule" field (spec.md §7).
type ErrViolation struct {
	Rule   string
	Detail string
}

func (e *ErrViolation) Error() string {
	return fmt.Sprintf("governance: %s violation: %s", e.Rule, e.Detail)
}

// Service enforces governance_policy rules against mutating operations.
type Service struct {
	store *store.Store
	rules *CustomRuleEvaluator
}

// New builds a Service. rules may be nil if custom_rule is never used.
func New(st *store.Store, rules *CustomRuleEvaluator) *Service {
	return &Service{store: st, rules: rules}
}

// CheckCompletion enforces completion_mode before a set_status(completed)
// transition proceeds. advise mode never blocks but still reports a
// violation so the caller can log it (SPEC_FULL §12).
func (s *Service) CheckCompletion(ctx context.Context, intent *model.Intent, policy model.GovernancePolicy) error {
	var lastPatchedAt time.Time
	if policy.CompletionMode == model.CompletionRequireApprove || policy.CompletionMode == model.CompletionAdvise {
		patched := model.EventStatePatched
		events, err := s.store.ListEvents(ctx, intent.ID, store.EventFilter{EventType: &patched})
		if err != nil {
			return fmt.Errorf("governance: load state_patched events: %w", err)
		}
		if len(events) > 0 {
			lastPatchedAt = events[len(events)-1].CreatedAt
		}
	}

	switch policy.CompletionMode {
	case "", model.CompletionAuto:
		return nil

	case model.CompletionRequireApprove:
		approvals, err := s.store.PendingApprovals(ctx, intent.ID, "complete")
		if err != nil {
			return fmt.Errorf("governance: load approvals: %w", err)
		}
		if !hasCurrentApproval(approvals, lastPatchedAt) {
			return s.violation(ctx, intent.ID, "completion_mode", "no current approved \"complete\" approval", false)
		}
		return nil

	case model.CompletionQuorum:
		approved, err := s.store.CountApproved(ctx, intent.ID, "complete")
		if err != nil {
			return fmt.Errorf("governance: count approvals: %w", err)
		}
		total, err := s.store.PendingApprovals(ctx, intent.ID, "complete")
		if err != nil {
			return fmt.Errorf("governance: load approvals: %w", err)
		}
		if len(total) == 0 || float64(approved)/float64(len(total)) < policy.QuorumThreshold {
			return s.violation(ctx, intent.ID, "completion_mode", "quorum threshold not met", false)
		}
		return nil

	case model.CompletionAdvise:
		approvals, err := s.store.PendingApprovals(ctx, intent.ID, "complete")
		if err != nil {
			return fmt.Errorf("governance: load approvals: %w", err)
		}
		if !hasCurrentApproval(approvals, lastPatchedAt) {
			return s.violation(ctx, intent.ID, "completion_mode", "no current approved \"complete\" approval (advisory only)", true)
		}
		return nil

	default:
		return nil
	}
}

// hasCurrentApproval finds an approved "complete" approval not
// superseded by a later state_patched, per spec.md §4.5's "still
// current" requirement.
func hasCurrentApproval(approvals []*model.Approval, lastPatchedAt time.Time) bool {
	for _, a := range approvals {
		if a.Status == model.RequestApproved && a.DecidedAt != nil && !a.DecidedAt.Before(lastPatchedAt) {
			return true
		}
	}
	return false
}

// CheckWriteScope enforces write_scope = assigned_only for patch_state,
// set_status and dependency edits.
func (s *Service) CheckWriteScope(ctx context.Context, intentID, agentID string, policy model.GovernancePolicy) error {
	if policy.WriteScope != model.WriteScopeAssignedOnly {
		return nil
	}
	assigned, err := s.store.IsAssigned(ctx, intentID, agentID)
	if err != nil {
		return fmt.Errorf("governance: check assignment: %w", err)
	}
	if !assigned {
		return s.violation(ctx, intentID, "write_scope", fmt.Sprintf("agent %s is not assigned to this intent", agentID), false)
	}
	return nil
}

// CheckMaxCost enforces that recording amount would not push the
// intent's running cost sum past policy.MaxCost.
func (s *Service) CheckMaxCost(ctx context.Context, intentID string, amount float64, policy model.GovernancePolicy) error {
	if policy.MaxCost == nil {
		return nil
	}
	running, err := s.store.TotalCost(ctx, intentID)
	if err != nil {
		return fmt.Errorf("governance: total cost: %w", err)
	}
	if running+amount > *policy.MaxCost {
		return s.violation(ctx, intentID, "max_cost", fmt.Sprintf("recording %.4f would exceed max_cost %.4f (current %.4f)", amount, *policy.MaxCost, running), false)
	}
	return nil
}

// CheckCustomRule evaluates policy.CustomRule against intent, if set.
func (s *Service) CheckCustomRule(ctx context.Context, intent *model.Intent, policy model.GovernancePolicy) error {
	if policy.CustomRule == "" || s.rules == nil {
		return nil
	}
	ok, err := s.rules.Evaluate(policy.CustomRule, intent)
	if err != nil {
		return fmt.Errorf("governance: custom rule: %w", err)
	}
	if !ok {
		return s.violation(ctx, intent.ID, "custom_rule", "custom_rule expression evaluated false", false)
	}
	return nil
}

// violation emits a governance.violation event and, unless advisory,
// returns an ErrViolation the caller must propagate as a 403.
func (s *Service) violation(ctx context.Context, intentID, rule, detail string, advisory bool) error {
	telemetry.GovernanceViolations.WithLabelValues(rule).Inc()
	ev := store.NewEvent(uuid.NewString(), intentID, model.EventGovernanceViolation, "system", map[string]any{
		"rule":     rule,
		"detail":   detail,
		"advisory": advisory,
	}, time.Now())
	if err := s.store.AppendEventAuto(ctx, ev); err != nil {
		return fmt.Errorf("governance: record violation event: %w", err)
	}
	if advisory {
		return nil
	}
	return &ErrViolation{Rule: rule, Detail: detail}
}

// RequestApproval creates a pending approval gate for action.
func (s *Service) RequestApproval(ctx context.Context, intentID, requestedBy, action, reason string, context_ map[string]any, now time.Time) (*model.Approval, error) {
	a := &model.Approval{
		ID:          uuid.NewString(),
		IntentID:    intentID,
		RequestedBy: requestedBy,
		Action:      action,
		Reason:      reason,
		Context:     context_,
		Status:      model.RequestPending,
		CreatedAt:   now,
	}
	if err := s.store.CreateApproval(ctx, a); err != nil {
		return nil, fmt.Errorf("governance: request approval: %w", err)
	}
	if err := s.store.AppendEventAuto(ctx, store.NewEvent(uuid.NewString(), intentID, model.EventGovernanceApprReq, requestedBy,
		map[string]any{"approval_id": a.ID, "action": action}, now)); err != nil {
		return nil, err
	}
	return a, nil
}

// DecideApproval approves or denies a pending approval gate.
func (s *Service) DecideApproval(ctx context.Context, id string, approve bool, decidedBy string, now time.Time) (*model.Approval, error) {
	a, err := s.store.DecideApproval(ctx, id, approve, decidedBy, now)
	if err != nil {
		return nil, fmt.Errorf("governance: decide approval: %w", err)
	}
	eventType := model.EventGovernanceApprDeny
	if approve {
		eventType = model.EventGovernanceApprGrant
	}
	if err := s.store.AppendEventAuto(ctx, store.NewEvent(uuid.NewString(), a.IntentID, eventType, decidedBy,
		map[string]any{"approval_id": a.ID, "action": a.Action}, now)); err != nil {
		return nil, err
	}
	return a, nil
}

// EmitPolicySet records governance.policy_set after intentcore.
// SetGovernancePolicy has already written the policy through
// store.SetGovernancePolicy's If-Match/version CAS.
func (s *Service) EmitPolicySet(ctx context.Context, intentID, actor string, policy map[string]any, now time.Time) error {
	return s.store.AppendEventAuto(ctx, store.NewEvent(uuid.NewString(), intentID, model.EventGovernancePolicySet, actor, policy, now))
}
