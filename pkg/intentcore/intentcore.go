// Package intentcore implements the central intent lifecycle
// operations (spec.md §4.1): create, get, list, patch_state, set_status,
// add/remove_dependency, agent assignment and governance_policy edits.
// It composes pkg/store with pkg/governance, pkg/authz and pkg/eventlog.
package intentcore

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/openintent-ai/openintent/pkg/authz"
	"github.com/openintent-ai/openintent/pkg/eventlog"
	"github.com/openintent-ai/openintent/pkg/governance"
	"github.com/openintent-ai/openintent/pkg/model"
	"github.com/openintent-ai/openintent/pkg/portfolio"
	"github.com/openintent-ai/openintent/pkg/statetree"
	"github.com/openintent-ai/openintent/pkg/store"
)

// Service is the intent lifecycle's business-logic layer.
type Service struct {
	store      *store.Store
	governance *governance.Service
	authz      *authz.Service
	hub        *eventlog.Hub
	schemas    *statetree.SchemaValidator
	portfolios *portfolio.Service
}

// New builds a Service. portfolios may be nil, in which case a completed
// intent's cascade-completion check (SPEC_FULL §12) is skipped.
func New(st *store.Store, gov *governance.Service, az *authz.Service, hub *eventlog.Hub, schemas *statetree.SchemaValidator, portfolios *portfolio.Service) *Service {
	return &Service{store: st, governance: gov, authz: az, hub: hub, schemas: schemas, portfolios: portfolios}
}

// CreateInput carries the fields accepted by Create.
type CreateInput struct {
	Title            string
	Description      string
	CreatedBy        string
	ParentIntentID   *string
	DependsOn        []string
	Constraints      map[string]any
	State            map[string]any
	Confidence       float64
	GovernancePolicy map[string]any
}

// Create inserts a new intent at version 1 and emits intent_created.
func (s *Service) Create(ctx context.Context, in CreateInput, now time.Time) (*model.Intent, error) {
	intent := &model.Intent{
		ID:               uuid.NewString(),
		Title:            in.Title,
		Description:      in.Description,
		CreatedBy:        in.CreatedBy,
		ParentIntentID:   in.ParentIntentID,
		DependsOn:        in.DependsOn,
		Constraints:      in.Constraints,
		State:            in.State,
		Status:           model.StatusDraft,
		Confidence:       in.Confidence,
		Version:          1,
		CreatedAt:        now,
		UpdatedAt:        now,
		GovernancePolicy: in.GovernancePolicy,
	}
	if intent.State == nil {
		intent.State = map[string]any{}
	}
	if err := s.store.CreateIntent(ctx, intent); err != nil {
		return nil, fmt.Errorf("intentcore: create: %w", err)
	}
	if err := s.emit(ctx, intent.ID, model.EventIntentCreated, in.CreatedBy,
		map[string]any{"title": in.Title}, now); err != nil {
		return nil, err
	}
	return intent, nil
}

// Get fetches one intent by id, enforcing the caller's read permission.
func (s *Service) Get(ctx context.Context, id, principalID string) (*model.Intent, error) {
	if err := s.authz.RequirePermission(ctx, id, principalID, model.PermissionRead); err != nil {
		return nil, err
	}
	return s.store.GetIntent(ctx, id)
}

// List returns intents matching filter. Listing itself is unauthenticated
// at the filter level; callers filter out intents the principal cannot
// read (spec.md §4.6 scopes enforcement to single-intent operations).
func (s *Service) List(ctx context.Context, f store.ListIntentsFilter) ([]*model.Intent, error) {
	return s.store.ListIntents(ctx, f)
}

// PatchState applies an ordered statetree patch under If-Match CAS,
// enforcing write_scope and the intent's state_schema_ref if set.
func (s *Service) PatchState(ctx context.Context, id, principalID string, expectedVersion int64, patches []statetree.Patch, now time.Time) (*model.Intent, error) {
	if err := s.authz.RequirePermission(ctx, id, principalID, model.PermissionWrite); err != nil {
		return nil, err
	}
	current, err := s.store.GetIntent(ctx, id)
	if err != nil {
		return nil, err
	}
	policy, err := governance.ParsePolicy(current.GovernancePolicy)
	if err != nil {
		return nil, fmt.Errorf("intentcore: parse policy: %w", err)
	}
	if err := s.governance.CheckWriteScope(ctx, id, principalID, policy); err != nil {
		return nil, err
	}

	previousState := current.State
	newState, err := statetree.Apply(current.State, patches)
	if err != nil {
		return nil, fmt.Errorf("intentcore: apply patch: %w", err)
	}
	if policy.StateSchemaRef != "" && s.schemas != nil {
		if err := s.schemas.Validate(policy.StateSchemaRef, newState); err != nil {
			return nil, err
		}
	}

	updated, err := s.store.PatchState(ctx, id, expectedVersion, newState, now)
	if err != nil {
		return nil, err
	}
	if err := s.emit(ctx, id, model.EventStatePatched, principalID,
		map[string]any{"patch_count": len(patches), "version": updated.Version, "previous": previousState, "next": newState}, now); err != nil {
		return nil, err
	}
	return updated, nil
}

// SetStatus transitions an intent's lifecycle status, enforcing
// completion_mode when the target status is completed.
func (s *Service) SetStatus(ctx context.Context, id, principalID string, expectedVersion int64, status model.Status, now time.Time) (*model.Intent, error) {
	if err := s.authz.RequirePermission(ctx, id, principalID, model.PermissionWrite); err != nil {
		return nil, err
	}
	current, err := s.store.GetIntent(ctx, id)
	if err != nil {
		return nil, err
	}
	policy, err := governance.ParsePolicy(current.GovernancePolicy)
	if err != nil {
		return nil, fmt.Errorf("intentcore: parse policy: %w", err)
	}
	if err := s.governance.CheckWriteScope(ctx, id, principalID, policy); err != nil {
		return nil, err
	}
	if status == model.StatusCompleted {
		if err := s.governance.CheckCompletion(ctx, current, policy); err != nil {
			return nil, err
		}
		if policy.CustomRule != "" {
			if err := s.governance.CheckCustomRule(ctx, current, policy); err != nil {
				return nil, err
			}
		}
	}

	updated, err := s.store.SetStatus(ctx, id, expectedVersion, status, now)
	if err != nil {
		return nil, err
	}
	if err := s.emit(ctx, id, model.EventStatusChanged, principalID,
		map[string]any{"status": string(status), "version": updated.Version}, now); err != nil {
		return nil, err
	}
	if status == model.StatusCompleted || status == model.StatusAbandoned {
		if s.portfolios != nil {
			if err := s.portfolios.CheckCascadeCompletion(ctx, id, now); err != nil {
				return nil, fmt.Errorf("intentcore: cascade completion: %w", err)
			}
		}
	}
	return updated, nil
}

// AddDependency records that id depends on dependsID under If-Match CAS,
// rejecting cycles.
func (s *Service) AddDependency(ctx context.Context, id, dependsID, principalID string, expectedVersion int64, now time.Time) (*model.Intent, error) {
	if err := s.authz.RequirePermission(ctx, id, principalID, model.PermissionWrite); err != nil {
		return nil, err
	}
	updated, err := s.store.AddDependency(ctx, id, dependsID, expectedVersion, now)
	if err != nil {
		return nil, err
	}
	if err := s.emit(ctx, id, model.EventDependencyAdded, principalID,
		map[string]any{"depends_on": dependsID, "version": updated.Version}, now); err != nil {
		return nil, err
	}
	return updated, nil
}

// RemoveDependency drops dependsID from id's depends_on list under
// If-Match CAS.
func (s *Service) RemoveDependency(ctx context.Context, id, dependsID, principalID string, expectedVersion int64, now time.Time) (*model.Intent, error) {
	if err := s.authz.RequirePermission(ctx, id, principalID, model.PermissionWrite); err != nil {
		return nil, err
	}
	updated, err := s.store.RemoveDependency(ctx, id, dependsID, expectedVersion, now)
	if err != nil {
		return nil, err
	}
	if err := s.emit(ctx, id, model.EventDependencyRemoved, principalID,
		map[string]any{"depends_on": dependsID, "version": updated.Version}, now); err != nil {
		return nil, err
	}
	return updated, nil
}

// AssignAgent assigns agentID to id with the given role.
func (s *Service) AssignAgent(ctx context.Context, id, agentID string, role model.AssignmentRole, principalID string, now time.Time) error {
	if err := s.authz.RequirePermission(ctx, id, principalID, model.PermissionWrite); err != nil {
		return err
	}
	if err := s.store.AssignAgent(ctx, &model.IntentAgent{
		ID:         uuid.NewString(),
		IntentID:   id,
		AgentID:    agentID,
		Role:       role,
		AssignedAt: now,
	}); err != nil {
		return fmt.Errorf("intentcore: assign agent: %w", err)
	}
	return s.emit(ctx, id, model.EventAgentAssigned, principalID,
		map[string]any{"agent_id": agentID, "role": string(role)}, now)
}

// UnassignAgent removes agentID's assignment to id.
func (s *Service) UnassignAgent(ctx context.Context, id, agentID, principalID string, now time.Time) error {
	if err := s.authz.RequirePermission(ctx, id, principalID, model.PermissionWrite); err != nil {
		return err
	}
	if err := s.store.UnassignAgent(ctx, id, agentID); err != nil {
		return fmt.Errorf("intentcore: unassign agent: %w", err)
	}
	return s.emit(ctx, id, model.EventAgentUnassigned, principalID,
		map[string]any{"agent_id": agentID}, now)
}

// SetGovernancePolicy overwrites id's governance_policy document under
// If-Match CAS (spec.md §4.5).
func (s *Service) SetGovernancePolicy(ctx context.Context, id string, expectedVersion int64, policy map[string]any, principalID string, now time.Time) error {
	if err := s.authz.RequirePermission(ctx, id, principalID, model.PermissionAdmin); err != nil {
		return err
	}
	if _, err := s.store.SetGovernancePolicy(ctx, id, expectedVersion, policy, now); err != nil {
		return fmt.Errorf("intentcore: set governance policy: %w", err)
	}
	return s.governance.EmitPolicySet(ctx, id, principalID, policy, now)
}

// emit appends the event and fans it out over SSE on the "intents" channel.
func (s *Service) emit(ctx context.Context, intentID string, eventType model.EventType, actor string, payload map[string]any, now time.Time) error {
	ev := store.NewEvent(uuid.NewString(), intentID, eventType, actor, payload, now)
	if err := s.store.AppendEventAuto(ctx, ev); err != nil {
		return fmt.Errorf("intentcore: record event: %w", err)
	}
	s.hub.Publish(eventlog.ChannelIntents, ev)
	return nil
}
