// Package model defines the entity types shared across the OpenIntent
// server: intents, events, leases, assignments, portfolios, access
// control, governance, messaging and federation records.
package model

import "time"

// Status is the lifecycle state of an Intent.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusActive    Status = "active"
	StatusBlocked   Status = "blocked"
	StatusCompleted Status = "completed"
	StatusAbandoned Status = "abandoned"
)

// Valid reports whether s is one of the recognized intent statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusActive, StatusBlocked, StatusCompleted, StatusAbandoned:
		return true
	}
	return false
}

// Intent is the central coordination unit: goal text, free-form state,
// lifecycle status and an optimistic-concurrency version.
type Intent struct {
	ID               string         `json:"id"`
	Title            string         `json:"title"`
	Description      string         `json:"description"`
	CreatedBy        string         `json:"created_by"`
	ParentIntentID   *string        `json:"parent_intent_id,omitempty"`
	DependsOn        []string       `json:"depends_on"`
	Constraints      map[string]any `json:"constraints"`
	State            map[string]any `json:"state"`
	Status           Status         `json:"status"`
	Confidence       float64        `json:"confidence"`
	Version          int64          `json:"version"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
	GovernancePolicy map[string]any `json:"governance_policy"`
}

// EventType is an open enum: recognized constants plus an Other fallback
// so federation-sourced event types survive round-tripping without a
// schema change (see spec.md §9, "Event-type enum").
type EventType string

const (
	EventIntentCreated        EventType = "intent_created"
	EventStatePatched         EventType = "state_patched"
	EventStatusChanged        EventType = "status_changed"
	EventDependencyAdded      EventType = "dependency_added"
	EventDependencyRemoved    EventType = "dependency_removed"
	EventAgentAssigned        EventType = "agent_assigned"
	EventAgentUnassigned      EventType = "agent_unassigned"
	EventLeaseAcquired        EventType = "lease_acquired"
	EventLeaseRenewed         EventType = "lease_renewed"
	EventLeaseReleased        EventType = "lease_released"
	EventGovernancePolicySet  EventType = "governance.policy_set"
	EventGovernanceApprReq    EventType = "governance.approval_requested"
	EventGovernanceApprGrant  EventType = "governance.approval_granted"
	EventGovernanceApprDeny   EventType = "governance.approval_denied"
	EventGovernanceViolation  EventType = "governance.violation"
	EventAccessGranted        EventType = "access_granted"
	EventAccessRevoked        EventType = "access_revoked"
	EventAccessRequested      EventType = "access_requested"
	EventAccessRequestApprove EventType = "access_request_approved"
	EventAccessRequestDeny    EventType = "access_request_denied"
	EventPortfolioCreated     EventType = "portfolio_created"
	EventPortfolioMemberAdded EventType = "portfolio_member_added"
	EventPortfolioStatusChanged EventType = "portfolio_status_changed"
	EventAttachmentAdded      EventType = "attachment_added"
	EventCostRecorded         EventType = "cost_recorded"
	EventFailureRecorded      EventType = "failure_recorded"
	EventMessageSent          EventType = "message_sent"
	EventFederationDispatched EventType = "federation.dispatched"
	EventFederationDelivered  EventType = "federation.delivered"
	EventFederationFailed    EventType = "federation.failed"
	EventFederationReceived  EventType = "federation.received"
)

// Other wraps an event type string not in the recognized set above,
// typically received from a federation peer running a newer protocol
// version.
func Other(s string) EventType { return EventType(s) }

// IntentEvent is an immutable, append-only record of a single mutation
// or occurrence on an intent.
type IntentEvent struct {
	ID        string         `json:"id"`
	IntentID  string         `json:"intent_id"`
	EventType EventType      `json:"event_type"`
	Actor     string         `json:"actor"`
	Payload   map[string]any `json:"payload"`
	CreatedAt time.Time      `json:"created_at"`
	Sequence  int64          `json:"sequence"`
}

// LeaseStatus is the read-time computed status of a lease.
type LeaseStatus string

const (
	LeaseActive   LeaseStatus = "active"
	LeaseReleased LeaseStatus = "released"
	LeaseExpired  LeaseStatus = "expired"
)

// IntentLease is a time-bounded exclusive claim on a named scope within
// one intent.
type IntentLease struct {
	ID         string     `json:"id"`
	IntentID   string     `json:"intent_id"`
	AgentID    string     `json:"agent_id"`
	Scope      string     `json:"scope"`
	AcquiredAt time.Time  `json:"acquired_at"`
	ExpiresAt  time.Time  `json:"expires_at"`
	ReleasedAt *time.Time `json:"released_at,omitempty"`
}

// ComputedStatus returns the lease's read-time status relative to now.
func (l *IntentLease) ComputedStatus(now time.Time) LeaseStatus {
	if l.ReleasedAt != nil {
		return LeaseReleased
	}
	if l.ExpiresAt.After(now) {
		return LeaseActive
	}
	return LeaseExpired
}

// AssignmentRole names the role an agent holds on an intent.
type AssignmentRole string

const (
	RolePrimary AssignmentRole = "primary"
	RoleWorker  AssignmentRole = "worker"
)

// IntentAgent records one agent's assignment to an intent.
type IntentAgent struct {
	ID         string         `json:"id"`
	IntentID   string         `json:"intent_id"`
	AgentID    string         `json:"agent_id"`
	Role       AssignmentRole `json:"role"`
	AssignedAt time.Time      `json:"assigned_at"`
}

// PortfolioStatus mirrors Status for the coarser portfolio lifecycle.
type PortfolioStatus string

const (
	PortfolioActive    PortfolioStatus = "active"
	PortfolioCompleted PortfolioStatus = "completed"
	PortfolioAbandoned PortfolioStatus = "abandoned"
)

// Portfolio groups intents under a shared governance policy.
type Portfolio struct {
	ID               string          `json:"id"`
	Name             string          `json:"name"`
	Description      string          `json:"description"`
	CreatedBy        string          `json:"created_by"`
	Status           PortfolioStatus `json:"status"`
	GovernancePolicy map[string]any  `json:"governance_policy"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// MembershipRole names an intent's role inside a portfolio.
type MembershipRole string

const (
	MembershipPrimary    MembershipRole = "primary"
	MembershipMember     MembershipRole = "member"
	MembershipDependency MembershipRole = "dependency"
)

// PortfolioMembership links one intent into one portfolio.
type PortfolioMembership struct {
	ID          string         `json:"id"`
	PortfolioID string         `json:"portfolio_id"`
	IntentID    string         `json:"intent_id"`
	Role        MembershipRole `json:"role"`
	Priority    int            `json:"priority"`
	AddedAt     time.Time      `json:"added_at"`
}

// Permission is a point in the none < read < write < admin lattice.
type Permission int

const (
	PermissionNone Permission = iota
	PermissionRead
	PermissionWrite
	PermissionAdmin
)

func (p Permission) String() string {
	switch p {
	case PermissionRead:
		return "read"
	case PermissionWrite:
		return "write"
	case PermissionAdmin:
		return "admin"
	default:
		return "none"
	}
}

// ParsePermission parses the wire string form of a Permission.
func ParsePermission(s string) Permission {
	switch s {
	case "read":
		return PermissionRead
	case "write":
		return PermissionWrite
	case "admin":
		return PermissionAdmin
	default:
		return PermissionNone
	}
}

// DefaultPolicy governs what a principal with no explicit ACL entry gets.
type DefaultPolicy string

const (
	PolicyOpen   DefaultPolicy = "open"
	PolicyClosed DefaultPolicy = "closed"
)

// ACLEntry grants one principal a permission on an intent.
type ACLEntry struct {
	ID            string     `json:"id"`
	IntentID      string     `json:"intent_id"`
	PrincipalID   string     `json:"principal_id"`
	PrincipalType string     `json:"principal_type"`
	Permission    Permission `json:"permission"`
	GrantedBy     string     `json:"granted_by"`
	GrantedAt     time.Time  `json:"granted_at"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
	Reason        string     `json:"reason,omitempty"`
}

// Expired reports whether the entry should be ignored at time now.
func (e *ACLEntry) Expired(now time.Time) bool {
	return e.ExpiresAt != nil && e.ExpiresAt.Before(now)
}

// IntentACL is the full access-control configuration for one intent.
type IntentACL struct {
	IntentID      string        `json:"intent_id"`
	DefaultPolicy DefaultPolicy `json:"default_policy"`
	Entries       []ACLEntry    `json:"entries"`
}

// RequestStatus is the decision state of an approval or access request.
type RequestStatus string

const (
	RequestPending  RequestStatus = "pending"
	RequestApproved RequestStatus = "approved"
	RequestDenied   RequestStatus = "denied"
)

// AccessRequest is a principal's request for a permission bump.
type AccessRequest struct {
	ID                  string        `json:"id"`
	IntentID            string        `json:"intent_id"`
	PrincipalID         string        `json:"principal_id"`
	RequestedPermission Permission    `json:"requested_permission"`
	Reason              string        `json:"reason"`
	Capabilities        []string      `json:"capabilities"`
	Status              RequestStatus `json:"status"`
	DecidedBy           string        `json:"decided_by,omitempty"`
	DecidedAt           *time.Time    `json:"decided_at,omitempty"`
	DecisionReason      string        `json:"decision_reason,omitempty"`
}

// CompletionMode controls how set_status(completed) is enforced.
type CompletionMode string

const (
	CompletionAuto           CompletionMode = "auto"
	CompletionRequireApprove CompletionMode = "require_approval"
	CompletionQuorum         CompletionMode = "quorum"
	// CompletionAdvise is a supplemented mode (SPEC_FULL §12): it never
	// blocks the transition but still emits governance.violation so
	// dashboards can see near-misses.
	CompletionAdvise CompletionMode = "advise"
)

// WriteScope controls who may patch_state / set_status.
type WriteScope string

const (
	WriteScopeAny          WriteScope = "any"
	WriteScopeAssignedOnly WriteScope = "assigned_only"
)

// GovernancePolicy is the parsed form of an intent's or portfolio's
// governance_policy map.
type GovernancePolicy struct {
	CompletionMode   CompletionMode `json:"completion_mode,omitempty"`
	QuorumThreshold  float64        `json:"quorum_threshold,omitempty"`
	WriteScope       WriteScope     `json:"write_scope,omitempty"`
	MaxCost          *float64       `json:"max_cost,omitempty"`
	CustomRule       string         `json:"custom_rule,omitempty"`
	StateSchemaRef   string         `json:"state_schema_ref,omitempty"`
}

// Approval is a decision gate consumed when its action is performed.
type Approval struct {
	ID         string         `json:"id"`
	IntentID   string         `json:"intent_id"`
	RequestedBy string        `json:"requested_by"`
	Action     string         `json:"action"`
	Reason     string         `json:"reason"`
	Context    map[string]any `json:"context"`
	Status     RequestStatus  `json:"status"`
	DecidedBy  string         `json:"decided_by,omitempty"`
	DecidedAt  *time.Time     `json:"decided_at,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// ChannelStatus is open or closed.
type ChannelStatus string

const (
	ChannelOpen   ChannelStatus = "open"
	ChannelClosed ChannelStatus = "closed"
)

// Channel is an intent-scoped messaging room.
type Channel struct {
	ID            string         `json:"id"`
	IntentID      string         `json:"intent_id"`
	Name          string         `json:"name"`
	Members       []string       `json:"members"`
	Status        ChannelStatus  `json:"status"`
	Options       map[string]any `json:"options"`
	MessageCount  int64          `json:"message_count"`
	LastMessageAt *time.Time     `json:"last_message_at,omitempty"`
	TaskID        *string        `json:"task_id,omitempty"`
}

// MessageType names the kind of a channel message.
type MessageType string

const (
	MessageNotify    MessageType = "notify"
	MessageBroadcast MessageType = "broadcast"
	MessageRequest   MessageType = "request"
	MessageResponse  MessageType = "response"
)

// MessageStatus tracks delivery.
type MessageStatus string

const (
	MessageDelivered MessageStatus = "delivered"
	MessageRead      MessageStatus = "read"
)

// Message is a single entry in a Channel.
type Message struct {
	ID            string         `json:"id"`
	ChannelID     string         `json:"channel_id"`
	Sender        string         `json:"sender"`
	To            string         `json:"to,omitempty"`
	MessageType   MessageType    `json:"message_type"`
	Payload       map[string]any `json:"payload"`
	Status        MessageStatus  `json:"status"`
	CorrelationID string         `json:"correlation_id,omitempty"`
	Metadata      map[string]any `json:"metadata"`
	CreatedAt     time.Time      `json:"created_at"`
}

// IntentAttachment is metadata for an externally stored byte blob.
type IntentAttachment struct {
	ID         string         `json:"id"`
	IntentID   string         `json:"intent_id"`
	Filename   string         `json:"filename"`
	MimeType   string         `json:"mime_type"`
	Size       int64          `json:"size"`
	StorageURL string         `json:"storage_url"`
	Metadata   map[string]any `json:"metadata"`
	CreatedAt  time.Time      `json:"created_at"`
}

// IntentCost is one recorded cost entry for an intent.
type IntentCost struct {
	ID         string         `json:"id"`
	IntentID   string         `json:"intent_id"`
	AgentID    string         `json:"agent_id"`
	CostType   string         `json:"cost_type"`
	Amount     float64        `json:"amount"`
	Unit       string         `json:"unit"`
	Provider   string         `json:"provider,omitempty"`
	Metadata   map[string]any `json:"metadata"`
	RecordedAt time.Time      `json:"recorded_at"`
}

// RetryStrategy names the backoff shape for retries.
type RetryStrategy string

const (
	RetryNone        RetryStrategy = "none"
	RetryFixed       RetryStrategy = "fixed"
	RetryExponential RetryStrategy = "exponential"
	RetryLinear      RetryStrategy = "linear"
)

// RetryPolicy is the upserted retry configuration for one intent.
type RetryPolicy struct {
	IntentID         string        `json:"intent_id"`
	Strategy         RetryStrategy `json:"strategy"`
	MaxRetries       int           `json:"max_retries"`
	BaseDelayMs      int           `json:"base_delay_ms"`
	MaxDelayMs       int           `json:"max_delay_ms"`
	FallbackAgentID  string        `json:"fallback_agent_id,omitempty"`
	FailureThreshold int           `json:"failure_threshold"`
}

// IntentFailure is an append-only record of a failed attempt.
type IntentFailure struct {
	ID               string         `json:"id"`
	IntentID         string         `json:"intent_id"`
	AgentID          string         `json:"agent_id"`
	AttemptNumber    int            `json:"attempt_number"`
	ErrorCode        string         `json:"error_code,omitempty"`
	ErrorMessage     string         `json:"error_message,omitempty"`
	RetryScheduledAt *time.Time     `json:"retry_scheduled_at,omitempty"`
	ResolvedAt       *time.Time     `json:"resolved_at,omitempty"`
	Metadata         map[string]any `json:"metadata"`
	CreatedAt        time.Time      `json:"created_at"`
}

// IntentSubscription is a standing (non-SSE) subscription: webhook and/or
// expiring filter set, swept by the background subscription-timeout
// worker (spec.md §2, Background workers row).
type IntentSubscription struct {
	ID           string     `json:"id"`
	IntentID     string     `json:"intent_id"`
	SubscriberID string     `json:"subscriber_id"`
	EventTypes   []string   `json:"event_types"`
	WebhookURL   string     `json:"webhook_url,omitempty"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
}

// AggregateStatus summarizes a set of intents for graph/portfolio views.
type AggregateStatus struct {
	Total               int            `json:"total"`
	ByStatus            map[string]int `json:"by_status"`
	CompletionPercentage float64       `json:"completion_percentage"`
}
