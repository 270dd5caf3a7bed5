// Package federation implements cross-server intent delegation: signed
// envelopes, trust policy enforcement, idempotent receive, delegation
// scope attenuation and callback delivery (spec.md §4.9).
package federation

import (
	"bytes"
	"crypto/ed25519"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/openintent-ai/openintent/pkg/model"
)

// CanonicalMarshal produces a deterministic JSON encoding suitable for
// signing: sorted map keys (Go's default), no HTML escaping, compact,
// no trailing newline.
func CanonicalMarshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("federation: canonical encode: %w", err)
	}
	out := buf.Bytes()
	if len(out) > 0 && out[len(out)-1] == '\n' {
		out = out[:len(out)-1]
	}
	return out, nil
}

// signingView is the subset of FederationEnvelope that gets signed; the
// Signature field itself is obviously excluded.
type signingView struct {
	DispatchID        string                  `json:"dispatch_id"`
	SourceServer      string                  `json:"source_server"`
	TargetServer      string                  `json:"target_server"`
	IntentID          string                  `json:"intent_id"`
	IntentTitle       string                  `json:"intent_title"`
	IntentDescription string                  `json:"intent_description"`
	IntentState       map[string]any          `json:"intent_state,omitempty"`
	IntentConstraints map[string]any          `json:"intent_constraints,omitempty"`
	AgentID           string                  `json:"agent_id,omitempty"`
	DelegationScope   *model.DelegationScope  `json:"delegation_scope,omitempty"`
	FederationPolicy  *model.FederationPolicy `json:"federation_policy,omitempty"`
	IdempotencyKey    string                  `json:"idempotency_key,omitempty"`
}

func toSigningView(e *model.FederationEnvelope) signingView {
	return signingView{
		DispatchID:        e.DispatchID,
		SourceServer:      e.SourceServer,
		TargetServer:      e.TargetServer,
		IntentID:          e.IntentID,
		IntentTitle:       e.IntentTitle,
		IntentDescription: e.IntentDescription,
		IntentState:       e.IntentState,
		IntentConstraints: e.IntentConstraints,
		AgentID:           e.AgentID,
		DelegationScope:   e.DelegationScope,
		FederationPolicy:  e.FederationPolicy,
		IdempotencyKey:    e.IdempotencyKey,
	}
}

// Signer signs and verifies federation envelopes and callbacks with this
// server's Ed25519 identity, falling back to HMAC when the identity was
// configured in dev-only HMACFallback mode (spec.md §9 open question).
type Signer struct {
	identity *model.ServerIdentity
}

// NewSigner wraps a ServerIdentity for signing/verification.
func NewSigner(identity *model.ServerIdentity) *Signer {
	return &Signer{identity: identity}
}

// SignEnvelope signs e in place, setting its Signature field.
func (s *Signer) SignEnvelope(e *model.FederationEnvelope) error {
	data, err := CanonicalMarshal(toSigningView(e))
	if err != nil {
		return err
	}
	sig, err := s.sign(data)
	if err != nil {
		return err
	}
	e.Signature = sig
	return nil
}

// VerifyEnvelope checks e.Signature against peerPublicKey (or this
// server's own HMAC secret if identity is HMAC-fallback and peerPublicKey
// is nil).
func (s *Signer) VerifyEnvelope(e *model.FederationEnvelope, peerPublicKey []byte) (bool, error) {
	data, err := CanonicalMarshal(toSigningView(e))
	if err != nil {
		return false, err
	}
	return s.verify(data, e.Signature, peerPublicKey)
}

// callbackSigningView mirrors FederationCallback minus its Signature.
type callbackSigningView struct {
	DispatchID     string                   `json:"dispatch_id"`
	EventType      model.CallbackEventType  `json:"event_type"`
	StateDelta     map[string]any           `json:"state_delta,omitempty"`
	Attestation    map[string]any           `json:"attestation,omitempty"`
	IdempotencyKey string                   `json:"idempotency_key,omitempty"`
}

// SignCallback signs a FederationCallback in place.
func (s *Signer) SignCallback(c *model.FederationCallback) error {
	data, err := CanonicalMarshal(callbackSigningView{
		DispatchID:     c.DispatchID,
		EventType:      c.EventType,
		StateDelta:     c.StateDelta,
		Attestation:    c.Attestation,
		IdempotencyKey: c.IdempotencyKey,
	})
	if err != nil {
		return err
	}
	sig, err := s.sign(data)
	if err != nil {
		return err
	}
	c.Signature = sig
	return nil
}

// VerifyCallback checks c.Signature against peerPublicKey.
func (s *Signer) VerifyCallback(c *model.FederationCallback, peerPublicKey []byte) (bool, error) {
	data, err := CanonicalMarshal(callbackSigningView{
		DispatchID:     c.DispatchID,
		EventType:      c.EventType,
		StateDelta:     c.StateDelta,
		Attestation:    c.Attestation,
		IdempotencyKey: c.IdempotencyKey,
	})
	if err != nil {
		return false, err
	}
	return s.verify(data, c.Signature, peerPublicKey)
}

func (s *Signer) sign(data []byte) (string, error) {
	if s.identity.HMACFallback {
		mac := hmac.New(sha256.New, s.identity.HMACSecret)
		mac.Write(data)
		return "hmac:" + hex.EncodeToString(mac.Sum(nil)), nil
	}
	if len(s.identity.PrivateKey) != ed25519.PrivateKeySize {
		return "", fmt.Errorf("federation: identity has no usable private key")
	}
	sig := ed25519.Sign(ed25519.PrivateKey(s.identity.PrivateKey), data)
	return "ed25519:" + hex.EncodeToString(sig), nil
}

func (s *Signer) verify(data []byte, signature string, peerPublicKey []byte) (bool, error) {
	switch {
	case len(signature) > 5 && signature[:5] == "hmac:":
		if !s.identity.HMACFallback {
			return false, fmt.Errorf("federation: received hmac signature but identity is not hmac-fallback")
		}
		raw, err := hex.DecodeString(signature[5:])
		if err != nil {
			return false, fmt.Errorf("federation: decode hmac signature: %w", err)
		}
		mac := hmac.New(sha256.New, s.identity.HMACSecret)
		mac.Write(data)
		return hmac.Equal(raw, mac.Sum(nil)), nil
	case len(signature) > 8 && signature[:8] == "ed25519:":
		if len(peerPublicKey) != ed25519.PublicKeySize {
			return false, fmt.Errorf("federation: peer public key missing or wrong size")
		}
		raw, err := hex.DecodeString(signature[8:])
		if err != nil {
			return false, fmt.Errorf("federation: decode ed25519 signature: %w", err)
		}
		return ed25519.Verify(ed25519.PublicKey(peerPublicKey), data, raw), nil
	default:
		return false, fmt.Errorf("federation: unrecognized signature scheme")
	}
}
