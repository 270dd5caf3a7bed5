package federation

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/openintent-ai/openintent/pkg/model"
	"github.com/openintent-ai/openintent/pkg/store"
)

// PublicKeyResolver fetches (and caches) a peer's published Ed25519
// public key, e.g. from their /.well-known/did.json document.
type PublicKeyResolver interface {
	ResolvePublicKey(ctx context.Context, sourceServer string) ([]byte, error)
}

// Receiver accepts inbound federation envelopes under this server's
// trust policy (spec.md §4.9 "Receive").
type Receiver struct {
	store      *store.Store
	signer     *Signer
	identity   *model.ServerIdentity
	trust      model.TrustRelationship
	directory  PeerDirectory
	keys       PublicKeyResolver
	newIntentID func() string
}

// NewReceiver builds a Receiver enforcing trust policy and signature
// verification for inbound dispatches.
func NewReceiver(st *store.Store, identity *model.ServerIdentity, trust model.TrustRelationship, directory PeerDirectory, keys PublicKeyResolver) *Receiver {
	return &Receiver{
		store:       st,
		signer:      NewSigner(identity),
		identity:    identity,
		trust:       trust,
		directory:   directory,
		keys:        keys,
		newIntentID: uuid.NewString,
	}
}

// Outcome is the accepted/rejected result of processing one envelope.
type Outcome struct {
	Accepted      bool
	Rejected      bool
	RejectReason  string
	LocalIntentID string
}

// Receive implements spec.md §4.9's four receive steps: trust check,
// idempotent replay, budget rejection, and local allocation.
func (r *Receiver) Receive(ctx context.Context, envelope *model.FederationEnvelope) (Outcome, error) {
	decision := EvaluateInbound(r.trust, envelope.SourceServer, r.directory)
	if !decision.Accepted {
		return Outcome{Rejected: true, RejectReason: decision.Reason}, nil
	}

	if r.trust != model.TrustOpen || envelope.Signature != "" {
		if err := r.verifySignature(ctx, envelope, decision.Peer); err != nil {
			return Outcome{Rejected: true, RejectReason: err.Error()}, nil
		}
	}

	if existing, err := r.store.GetReceived(ctx, envelope.SourceServer, envelope.IdempotencyKey); err == nil {
		return Outcome{Accepted: true, LocalIntentID: existing.LocalIntentID}, nil
	} else if err != store.ErrNotFound {
		return Outcome{}, fmt.Errorf("federation: check idempotency: %w", err)
	}

	if envelope.FederationPolicy != nil && envelope.FederationPolicy.Budget.Rejected() {
		return Outcome{Rejected: true, RejectReason: "declared budget forbids any work (max_llm_tokens or cost_ceiling_usd is zero)"}, nil
	}

	localIntentID := r.newIntentID()
	received := &model.ReceivedDispatch{
		SourceServer:   envelope.SourceServer,
		IdempotencyKey: envelope.IdempotencyKey,
		DispatchID:     envelope.DispatchID,
		LocalIntentID:  localIntentID,
		CreatedAt:      time.Now(),
	}
	if err := r.store.RecordReceived(ctx, received); err != nil {
		// A duplicate here means a racing concurrent receive won; replay its result.
		if existing, getErr := r.store.GetReceived(ctx, envelope.SourceServer, envelope.IdempotencyKey); getErr == nil {
			return Outcome{Accepted: true, LocalIntentID: existing.LocalIntentID}, nil
		}
		return Outcome{}, fmt.Errorf("federation: record received dispatch: %w", err)
	}

	return Outcome{Accepted: true, LocalIntentID: localIntentID}, nil
}

func (r *Receiver) verifySignature(ctx context.Context, envelope *model.FederationEnvelope, peer *model.PeerInfo) error {
	if envelope.Signature == "" {
		return fmt.Errorf("unsigned envelope rejected under trust_policy %q", r.trust)
	}

	var pubKey []byte
	switch {
	case peer != nil && len(peer.PublicKey) > 0:
		pubKey = peer.PublicKey
	case r.keys != nil:
		key, err := r.keys.ResolvePublicKey(ctx, envelope.SourceServer)
		if err != nil {
			return fmt.Errorf("resolve public key for %s: %w", envelope.SourceServer, err)
		}
		pubKey = key
	}

	ok, err := r.signer.VerifyEnvelope(envelope, pubKey)
	if err != nil {
		return fmt.Errorf("verify signature: %w", err)
	}
	if !ok {
		return fmt.Errorf("signature verification failed for source %s", envelope.SourceServer)
	}
	return nil
}

// ReceiveCallback processes an inbound FederationCallback destined for a
// dispatch this server originated, deduplicating by idempotency key.
func (r *Receiver) ReceiveCallback(ctx context.Context, cb *model.FederationCallback) (alreadySeen bool, err error) {
	seen, err := r.store.SeenCallback(ctx, cb.DispatchID, cb.IdempotencyKey, time.Now())
	if err != nil {
		return false, fmt.Errorf("federation: check seen callback: %w", err)
	}
	return seen, nil
}
