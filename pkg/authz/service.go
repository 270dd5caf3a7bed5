package authz

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/openintent-ai/openintent/pkg/model"
	"github.com/openintent-ai/openintent/pkg/store"
)

// ErrForbidden is returned by RequirePermission when the caller's
// effective permission is below what the operation needs.
var ErrForbidden = fmt.Errorf("authz: forbidden")

// Service evaluates and mutates per-intent ACLs, emitting the
// access_* events spec.md §4.6 names for every mutation.
type Service struct {
	store *store.Store
}

// New builds a Service over st.
func New(st *store.Store) *Service {
	return &Service{store: st}
}

// EffectivePermission implements spec.md §4.6's three-step lookup: a
// matching, unexpired ACL entry wins; otherwise default_policy=open
// yields read; otherwise none.
func (s *Service) EffectivePermission(ctx context.Context, intentID, principalID string) (model.Permission, error) {
	acl, err := s.store.GetACL(ctx, intentID)
	if err != nil {
		return model.PermissionNone, err
	}
	now := time.Now()
	for _, e := range acl.Entries {
		if e.PrincipalID == principalID && !e.Expired(now) {
			return e.Permission, nil
		}
	}
	if acl.DefaultPolicy == model.PolicyOpen {
		return model.PermissionRead, nil
	}
	return model.PermissionNone, nil
}

// RequirePermission returns ErrForbidden if the principal's effective
// permission on intentID is below min.
func (s *Service) RequirePermission(ctx context.Context, intentID, principalID string, min model.Permission) error {
	perm, err := s.EffectivePermission(ctx, intentID, principalID)
	if err != nil {
		return err
	}
	if perm < min {
		return fmt.Errorf("%w: have %s, need %s", ErrForbidden, perm, min)
	}
	return nil
}

// GetACL returns an intent's full ACL configuration.
func (s *Service) GetACL(ctx context.Context, intentID string) (*model.IntentACL, error) {
	return s.store.GetACL(ctx, intentID)
}

// PutACL replaces an intent's default policy and grants every entry in
// one call, mirroring the PUT /intents/{id}/acl surface.
func (s *Service) PutACL(ctx context.Context, intentID string, defaultPolicy model.DefaultPolicy, entries []model.ACLEntry, actor string, now time.Time) error {
	if err := s.store.SetDefaultPolicy(ctx, intentID, defaultPolicy); err != nil {
		return fmt.Errorf("authz: put acl default: %w", err)
	}
	for i := range entries {
		e := entries[i]
		e.IntentID = intentID
		if e.ID == "" {
			e.ID = uuid.NewString()
		}
		if e.GrantedAt.IsZero() {
			e.GrantedAt = now
		}
		if err := s.store.GrantACL(ctx, &e); err != nil {
			return fmt.Errorf("authz: put acl entry for %s: %w", e.PrincipalID, err)
		}
	}
	return s.appendEvent(ctx, intentID, model.EventAccessGranted, actor, map[string]any{
		"default_policy": defaultPolicy,
		"entry_count":    len(entries),
	}, now)
}

// Grant adds or replaces one principal's ACL entry.
func (s *Service) Grant(ctx context.Context, intentID, principalID, principalType string, perm model.Permission, grantedBy, reason string, expiresAt *time.Time, now time.Time) (*model.ACLEntry, error) {
	e := &model.ACLEntry{
		ID:            uuid.NewString(),
		IntentID:      intentID,
		PrincipalID:   principalID,
		PrincipalType: principalType,
		Permission:    perm,
		GrantedBy:     grantedBy,
		GrantedAt:     now,
		ExpiresAt:     expiresAt,
		Reason:        reason,
	}
	if err := s.store.GrantACL(ctx, e); err != nil {
		return nil, fmt.Errorf("authz: grant: %w", err)
	}
	if err := s.appendEvent(ctx, intentID, model.EventAccessGranted, grantedBy, map[string]any{
		"principal_id": principalID,
		"permission":   perm.String(),
	}, now); err != nil {
		return nil, err
	}
	return e, nil
}

// Revoke removes a principal's ACL entry.
func (s *Service) Revoke(ctx context.Context, intentID, principalID, actor string, now time.Time) error {
	if err := s.store.RevokeACL(ctx, intentID, principalID); err != nil {
		return fmt.Errorf("authz: revoke: %w", err)
	}
	return s.appendEvent(ctx, intentID, model.EventAccessRevoked, actor, map[string]any{
		"principal_id": principalID,
	}, now)
}

// CreateAccessRequest files a pending bump request.
func (s *Service) CreateAccessRequest(ctx context.Context, intentID, principalID string, requested model.Permission, reason string, capabilities []string, now time.Time) (*model.AccessRequest, error) {
	r := &model.AccessRequest{
		ID:                  uuid.NewString(),
		IntentID:            intentID,
		PrincipalID:         principalID,
		RequestedPermission: requested,
		Reason:              reason,
		Capabilities:        capabilities,
		Status:              model.RequestPending,
	}
	if err := s.store.CreateAccessRequest(ctx, r); err != nil {
		return nil, fmt.Errorf("authz: create access request: %w", err)
	}
	if err := s.appendEvent(ctx, intentID, model.EventAccessRequested, principalID, map[string]any{
		"request_id":           r.ID,
		"requested_permission": requested.String(),
	}, now); err != nil {
		return nil, err
	}
	return r, nil
}

// DecideAccessRequest approves or denies a pending request; approval
// also grants the matching ACL entry (spec.md §4.6).
func (s *Service) DecideAccessRequest(ctx context.Context, id string, approve bool, decidedBy, reason string, now time.Time) (*model.AccessRequest, error) {
	r, err := s.store.DecideAccessRequest(ctx, id, approve, decidedBy, reason, now)
	if err != nil {
		return nil, fmt.Errorf("authz: decide access request: %w", err)
	}

	eventType := model.EventAccessRequestDeny
	if approve {
		eventType = model.EventAccessRequestApprove
		if _, err := s.Grant(ctx, r.IntentID, r.PrincipalID, "agent", r.RequestedPermission, decidedBy, grantReason(reason, r.Capabilities), nil, now); err != nil {
			return nil, fmt.Errorf("authz: grant from approved request: %w", err)
		}
	}
	if err := s.appendEvent(ctx, r.IntentID, eventType, decidedBy, map[string]any{
		"request_id": r.ID,
	}, now); err != nil {
		return nil, err
	}
	return r, nil
}

// grantReason folds a request's capabilities into the decision reason so
// the resulting ACLEntry.Reason documents what was actually requested,
// not just the approver's rationale.
func grantReason(reason string, capabilities []string) string {
	if len(capabilities) == 0 {
		return reason
	}
	caps := strings.Join(capabilities, ", ")
	if reason == "" {
		return fmt.Sprintf("requested capabilities: %s", caps)
	}
	return fmt.Sprintf("%s (requested capabilities: %s)", reason, caps)
}

func (s *Service) appendEvent(ctx context.Context, intentID string, eventType model.EventType, actor string, payload map[string]any, now time.Time) error {
	ev := store.NewEvent(uuid.NewString(), intentID, eventType, actor, payload, now)
	return s.store.AppendEventAuto(ctx, ev)
}
