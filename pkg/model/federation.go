package model

import "time"

// TrustRelationship classifies a peer in the federation layer.
type TrustRelationship string

const (
	TrustOpen       TrustRelationship = "open"
	TrustAllowlist  TrustRelationship = "allowlist"
	TrustTrustless  TrustRelationship = "trustless"
)

// ServerIdentity is this server's federation identity: a did:web or
// did:key identifier plus its Ed25519 keypair.
type ServerIdentity struct {
	DID        string `json:"did"`
	PrivateKey []byte `json:"-"`
	PublicKey  []byte `json:"public_key"`
	// HMACFallback marks a development-only symmetric-key signing mode,
	// per spec.md §9 "Open question — HMAC federation fallback". Never
	// set in a production identity.
	HMACFallback bool   `json:"hmac_fallback,omitempty"`
	HMACSecret   []byte `json:"-"`
}

// PeerInfo describes one federation peer server.
type PeerInfo struct {
	ServerURL    string            `json:"server_url"`
	ServerDID    string            `json:"server_did,omitempty"`
	Relationship TrustRelationship `json:"relationship"`
	TrustPolicy  TrustRelationship `json:"trust_policy"`
	PublicKey    []byte            `json:"public_key,omitempty"`
}

// DelegationScope bounds what a delegated agent may do, attenuating on
// each re-delegation hop (spec.md §4.9).
type DelegationScope struct {
	Permissions        []string   `json:"permissions"`
	DeniedOperations   []string   `json:"denied_operations"`
	MaxDelegationDepth int        `json:"max_delegation_depth"`
	ExpiresAt          *time.Time `json:"expires_at,omitempty"`
}

// Attenuate computes the child scope for a re-delegation: permissions
// intersect, denied operations union, depth decrements, expiry is
// bounded by the parent's.
func (d DelegationScope) Attenuate(requested DelegationScope) DelegationScope {
	child := DelegationScope{
		MaxDelegationDepth: d.MaxDelegationDepth - 1,
	}

	allowed := make(map[string]bool, len(d.Permissions))
	for _, p := range d.Permissions {
		allowed[p] = true
	}
	for _, p := range requested.Permissions {
		if allowed[p] {
			child.Permissions = append(child.Permissions, p)
		}
	}

	denied := make(map[string]bool, len(d.DeniedOperations)+len(requested.DeniedOperations))
	for _, op := range d.DeniedOperations {
		denied[op] = true
	}
	for _, op := range requested.DeniedOperations {
		denied[op] = true
	}
	for op := range denied {
		child.DeniedOperations = append(child.DeniedOperations, op)
	}

	child.ExpiresAt = d.ExpiresAt
	if requested.ExpiresAt != nil && (d.ExpiresAt == nil || requested.ExpiresAt.Before(*d.ExpiresAt)) {
		child.ExpiresAt = requested.ExpiresAt
	}
	return child
}

// FederationPolicy bounds budget and observability for a dispatched
// intent on the receiving side.
type FederationPolicy struct {
	Governance    map[string]any `json:"governance,omitempty"`
	Budget        BudgetPolicy   `json:"budget,omitempty"`
	Observability map[string]any `json:"observability,omitempty"`
}

// BudgetPolicy names the two zero-means-reject caps from spec.md §4.9.
type BudgetPolicy struct {
	MaxLLMTokens   *int64   `json:"max_llm_tokens,omitempty"`
	CostCeilingUSD *float64 `json:"cost_ceiling_usd,omitempty"`
}

// Rejected reports whether the declared budget forbids any work at all.
func (b BudgetPolicy) Rejected() bool {
	if b.MaxLLMTokens != nil && *b.MaxLLMTokens == 0 {
		return true
	}
	if b.CostCeilingUSD != nil && *b.CostCeilingUSD == 0 {
		return true
	}
	return false
}

// DispatchStatus is the lifecycle of a local federation dispatch record.
type DispatchStatus string

const (
	DispatchActive    DispatchStatus = "active"
	DispatchDelivered DispatchStatus = "delivered"
	DispatchFailed    DispatchStatus = "failed"
)

// FederationEnvelope is the signed, idempotency-keyed message carrying
// one intent across federated servers.
type FederationEnvelope struct {
	DispatchID        string           `json:"dispatch_id"`
	SourceServer      string           `json:"source_server"`
	TargetServer      string           `json:"target_server"`
	IntentID          string           `json:"intent_id"`
	IntentTitle       string           `json:"intent_title"`
	IntentDescription string           `json:"intent_description"`
	IntentState       map[string]any   `json:"intent_state,omitempty"`
	IntentConstraints map[string]any   `json:"intent_constraints,omitempty"`
	AgentID           string           `json:"agent_id,omitempty"`
	DelegationScope   *DelegationScope `json:"delegation_scope,omitempty"`
	FederationPolicy  *FederationPolicy `json:"federation_policy,omitempty"`
	TraceContext      string           `json:"trace_context,omitempty"`
	CallbackURL       string           `json:"callback_url,omitempty"`
	IdempotencyKey    string           `json:"idempotency_key,omitempty"`
	CreatedAt         time.Time        `json:"created_at"`
	Signature         string           `json:"signature,omitempty"`
}

// FederationDispatch is the local record of an outbound dispatch.
type FederationDispatch struct {
	DispatchID   string         `json:"dispatch_id"`
	TargetServer string         `json:"target_server"`
	IntentID     string         `json:"intent_id"`
	Status       DispatchStatus `json:"status"`
	Attempts     int            `json:"attempts"`
	LastError    string         `json:"last_error,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// CallbackEventType names what a FederationCallback reports.
type CallbackEventType string

const (
	CallbackStateDelta    CallbackEventType = "state_delta"
	CallbackStatusChanged CallbackEventType = "status_changed"
	CallbackAttestation   CallbackEventType = "attestation"
	CallbackBudgetWarning CallbackEventType = "budget_warning"
	CallbackCompleted     CallbackEventType = "completed"
	CallbackFailed        CallbackEventType = "failed"
)

// FederationCallback is sent by the receiving server back to the
// dispatching server's callback_url.
type FederationCallback struct {
	DispatchID     string            `json:"dispatch_id"`
	EventType      CallbackEventType `json:"event_type"`
	StateDelta     map[string]any    `json:"state_delta,omitempty"`
	Attestation    map[string]any    `json:"attestation,omitempty"`
	TraceID        string            `json:"trace_id,omitempty"`
	IdempotencyKey string            `json:"idempotency_key,omitempty"`
	Timestamp      time.Time         `json:"timestamp"`
	Signature      string            `json:"signature,omitempty"`
}

// ReceivedDispatch is the local record created by accepting an inbound
// envelope, keyed for idempotent replay by (source_server, idempotency_key).
type ReceivedDispatch struct {
	SourceServer   string    `json:"source_server"`
	IdempotencyKey string    `json:"idempotency_key"`
	DispatchID     string    `json:"dispatch_id"`
	LocalIntentID  string    `json:"local_intent_id"`
	CreatedAt      time.Time `json:"created_at"`
}
