package api

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"

	"github.com/openintent-ai/openintent/pkg/authz"
	"github.com/openintent-ai/openintent/pkg/collections"
	"github.com/openintent-ai/openintent/pkg/config"
	"github.com/openintent-ai/openintent/pkg/eventlog"
	"github.com/openintent-ai/openintent/pkg/federation"
	"github.com/openintent-ai/openintent/pkg/governance"
	"github.com/openintent-ai/openintent/pkg/graph"
	"github.com/openintent-ai/openintent/pkg/intentcore"
	"github.com/openintent-ai/openintent/pkg/leases"
	"github.com/openintent-ai/openintent/pkg/messaging"
	"github.com/openintent-ai/openintent/pkg/model"
	"github.com/openintent-ai/openintent/pkg/portfolio"
	"github.com/openintent-ai/openintent/pkg/store"
)

// Server wires every business-logic service to the HTTP surface spec.md
// §6 describes. One Server is built at boot and shared by every request.
type Server struct {
	cfg *config.Config

	store       *store.Store
	intents     *intentcore.Service
	graph       *graph.Service
	leases      *leases.Service
	governance  *governance.Service
	authz       *authz.Service
	portfolios  *portfolio.Service
	messaging   *messaging.Service
	attachments *collections.AttachmentService
	costs       *collections.CostService
	retries     *collections.RetryService
	subs        *collections.SubscriptionService
	dispatcher  *federation.Dispatcher
	receiver    *federation.Receiver
	identity    *model.ServerIdentity
	trustPolicy model.TrustRelationship
	hub         *eventlog.Hub

	rateLimiter RateLimiter
	idempotency *MemoryIdempotencyStore
}

// Deps collects every constructed service Server needs; cmd/openintentd
// builds these once at startup and hands them to New.
type Deps struct {
	Config      *config.Config
	Store       *store.Store
	Intents     *intentcore.Service
	Graph       *graph.Service
	Leases      *leases.Service
	Governance  *governance.Service
	Authz       *authz.Service
	Portfolios  *portfolio.Service
	Messaging   *messaging.Service
	Attachments *collections.AttachmentService
	Costs       *collections.CostService
	Retries     *collections.RetryService
	Subs        *collections.SubscriptionService
	Dispatcher  *federation.Dispatcher
	Receiver    *federation.Receiver
	Identity    *model.ServerIdentity
	TrustPolicy model.TrustRelationship
	Hub         *eventlog.Hub

	// Redis backs a cross-instance rate limiter when set; nil falls back
	// to an in-process limiter scoped to this one server.
	Redis *redis.Client
}

// New builds a Server from its dependencies.
func New(d Deps) *Server {
	var limiter RateLimiter
	if d.Redis != nil {
		limiter = NewRedisRateLimiter(d.Redis, d.Config.RateLimitRPS, d.Config.RateLimitBurst)
	} else {
		limiter = NewGlobalRateLimiter(d.Config.RateLimitRPS, d.Config.RateLimitBurst)
	}
	return &Server{
		cfg:         d.Config,
		store:       d.Store,
		intents:     d.Intents,
		graph:       d.Graph,
		leases:      d.Leases,
		governance:  d.Governance,
		authz:       d.Authz,
		portfolios:  d.Portfolios,
		messaging:   d.Messaging,
		attachments: d.Attachments,
		costs:       d.Costs,
		retries:     d.Retries,
		subs:        d.Subs,
		dispatcher:  d.Dispatcher,
		receiver:    d.Receiver,
		identity:    d.Identity,
		trustPolicy: d.TrustPolicy,
		hub:         d.Hub,
		rateLimiter: limiter,
		idempotency: NewIdempotencyStore(10 * time.Minute),
	}
}

// Router builds the full gorilla/mux route table (spec.md §6).
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(metricsMiddleware)
	r.Use(s.rateLimiter.Middleware)
	// Use-middleware only runs on matched routes, so 404s are recorded here.
	r.NotFoundHandler = metricsMiddleware(http.NotFoundHandler())

	r.HandleFunc("/.well-known/openintent.json", s.handleWellKnownOpenIntent).Methods("GET")
	r.HandleFunc("/.well-known/openintent-compat.json", s.handleWellKnownCompat).Methods("GET")
	r.HandleFunc("/.well-known/openintent-federation.json", s.handleWellKnownFederation).Methods("GET")
	r.HandleFunc("/.well-known/did.json", s.handleWellKnownDID).Methods("GET")

	api := r.NewRoute().Subrouter()
	api.Use(AuthMiddleware(s.cfg.APIKeys))
	api.Use(IdempotencyMiddleware(s.idempotency))

	api.HandleFunc("/intents", s.handleCreateIntent).Methods("POST")
	api.HandleFunc("/intents", s.handleListIntents).Methods("GET")
	api.HandleFunc("/intents/{id}", s.handleGetIntent).Methods("GET")
	api.HandleFunc("/intents/{id}/state", s.handlePatchState).Methods("POST")
	api.HandleFunc("/intents/{id}/status", s.handleSetStatus).Methods("POST")
	api.HandleFunc("/intents/{id}/children", s.handleCreateChild).Methods("POST")
	api.HandleFunc("/intents/{id}/children", s.handleChildren).Methods("GET")
	api.HandleFunc("/intents/{id}/descendants", s.handleDescendants).Methods("GET")
	api.HandleFunc("/intents/{id}/ancestors", s.handleAncestors).Methods("GET")
	api.HandleFunc("/intents/{id}/dependencies", s.handleDependencies).Methods("GET")
	api.HandleFunc("/intents/{id}/dependencies", s.handleAddDependency).Methods("POST")
	api.HandleFunc("/intents/{id}/dependencies/{dep}", s.handleRemoveDependency).Methods("DELETE")
	api.HandleFunc("/intents/{id}/dependents", s.handleDependents).Methods("GET")
	api.HandleFunc("/intents/{id}/ready", s.handleReady).Methods("GET")
	api.HandleFunc("/intents/{id}/blocked", s.handleBlocked).Methods("GET")
	api.HandleFunc("/intents/{id}/graph", s.handleGraph).Methods("GET")

	api.HandleFunc("/intents/{id}/events", s.handleListEvents).Methods("GET")

	api.HandleFunc("/intents/{id}/agents", s.handleAssignAgent).Methods("POST")
	api.HandleFunc("/intents/{id}/agents", s.handleListAgents).Methods("GET")
	api.HandleFunc("/intents/{id}/agents/{agent}", s.handleUnassignAgent).Methods("DELETE")

	api.HandleFunc("/intents/{id}/leases", s.handleAcquireLease).Methods("POST")
	api.HandleFunc("/intents/{id}/leases", s.handleListLeases).Methods("GET")
	api.HandleFunc("/intents/{id}/leases/{lease}", s.handleRenewLease).Methods("PATCH")
	api.HandleFunc("/intents/{id}/leases/{lease}", s.handleReleaseLease).Methods("DELETE")

	api.HandleFunc("/intents/{id}/governance", s.handleGetGovernance).Methods("GET")
	api.HandleFunc("/intents/{id}/governance", s.handleSetGovernance).Methods("PUT")
	api.HandleFunc("/intents/{id}/approvals", s.handleRequestApproval).Methods("POST")
	api.HandleFunc("/intents/{id}/approvals/{approval}/approve", s.handleDecideApproval(true)).Methods("POST")
	api.HandleFunc("/intents/{id}/approvals/{approval}/deny", s.handleDecideApproval(false)).Methods("POST")

	api.HandleFunc("/intents/{id}/acl", s.handleGetACL).Methods("GET")
	api.HandleFunc("/intents/{id}/acl", s.handlePutACL).Methods("PUT")
	api.HandleFunc("/intents/{id}/acl/entries", s.handleGrantACL).Methods("POST")
	api.HandleFunc("/intents/{id}/acl/entries/{principal}", s.handleRevokeACL).Methods("DELETE")
	api.HandleFunc("/intents/{id}/access-requests", s.handleCreateAccessRequest).Methods("POST")
	api.HandleFunc("/intents/{id}/access-requests", s.handleListAccessRequests).Methods("GET")
	api.HandleFunc("/intents/{id}/access-requests/{request}/approve", s.handleDecideAccessRequest(true)).Methods("POST")
	api.HandleFunc("/intents/{id}/access-requests/{request}/deny", s.handleDecideAccessRequest(false)).Methods("POST")

	api.HandleFunc("/intents/{id}/attachments", s.handleAddAttachment).Methods("POST")
	api.HandleFunc("/intents/{id}/attachments", s.handleListAttachments).Methods("GET")
	api.HandleFunc("/intents/{id}/costs", s.handleRecordCost).Methods("POST")
	api.HandleFunc("/intents/{id}/costs", s.handleListCosts).Methods("GET")
	api.HandleFunc("/intents/{id}/failures", s.handleRecordFailure).Methods("POST")
	api.HandleFunc("/intents/{id}/failures", s.handleListFailures).Methods("GET")
	api.HandleFunc("/intents/{id}/retry-policy", s.handleSetRetryPolicy).Methods("PUT")
	api.HandleFunc("/intents/{id}/retry-policy", s.handleGetRetryPolicy).Methods("GET")
	api.HandleFunc("/intents/{id}/subscriptions", s.handleSubscribe).Methods("POST")
	api.HandleFunc("/intents/{id}/subscriptions", s.handleListSubscriptions).Methods("GET")

	api.HandleFunc("/portfolios", s.handleCreatePortfolio).Methods("POST")
	api.HandleFunc("/portfolios", s.handleListPortfolios).Methods("GET")
	api.HandleFunc("/portfolios/{id}", s.handleGetPortfolio).Methods("GET")
	api.HandleFunc("/portfolios/{id}/intents", s.handleAddPortfolioMember).Methods("POST")
	api.HandleFunc("/portfolios/{id}/intents", s.handleListPortfolioMembers).Methods("GET")

	api.HandleFunc("/intents/{id}/channels", s.handleOpenChannel).Methods("POST")
	api.HandleFunc("/intents/{id}/channels", s.handleListChannels).Methods("GET")
	api.HandleFunc("/channels/{channel}/messages", s.handlePostMessage).Methods("POST")
	api.HandleFunc("/channels/{channel}/messages", s.handleListMessages).Methods("GET")
	api.HandleFunc("/channels/{channel}/messages/{message}/reply", s.handleReplyMessage).Methods("POST")

	api.HandleFunc("/federation/dispatch", s.handleFederationDispatch).Methods("POST")
	api.HandleFunc("/federation/receive", s.handleFederationReceive).Methods("POST")

	sse := r.NewRoute().Subrouter()
	sse.Use(AuthMiddleware(s.cfg.APIKeys))
	sse.HandleFunc("/subscribe/intents/{id}", s.handleSubscribeIntent).Methods("GET")
	sse.HandleFunc("/subscribe/portfolios/{id}", s.handleSubscribePortfolio).Methods("GET")
	sse.HandleFunc("/subscribe/agents/{id}", s.handleSubscribeAgent).Methods("GET")

	return r
}
