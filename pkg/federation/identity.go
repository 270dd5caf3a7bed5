package federation

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"

	"github.com/openintent-ai/openintent/pkg/model"
)

// NewServerIdentity generates a fresh Ed25519 keypair for did, the
// server's did:web or did:key identifier.
func NewServerIdentity(did string) (*model.ServerIdentity, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("federation: generate identity key: %w", err)
	}
	return &model.ServerIdentity{
		DID:        did,
		PrivateKey: priv,
		PublicKey:  pub,
	}, nil
}

// NewServerIdentityFromKey wraps an existing Ed25519 private key, e.g.
// loaded from a configured secret, as this server's identity.
func NewServerIdentityFromKey(did string, priv ed25519.PrivateKey) *model.ServerIdentity {
	return &model.ServerIdentity{
		DID:        did,
		PrivateKey: priv,
		PublicKey:  priv.Public().(ed25519.PublicKey),
	}
}

// NewHMACFallbackIdentity builds a development-only identity signed with
// a shared secret instead of Ed25519 (spec.md §9 open question). It only
// interoperates with peers configured with the same fallback and secret.
func NewHMACFallbackIdentity(did string, secret []byte) *model.ServerIdentity {
	return &model.ServerIdentity{
		DID:          did,
		HMACFallback: true,
		HMACSecret:   secret,
	}
}

// WellKnownDIDDocument is the shape served at /.well-known/did.json,
// publishing this server's verification key (spec.md §4.9 "Identity").
type WellKnownDIDDocument struct {
	ID                 string                 `json:"id"`
	VerificationMethod []DIDVerificationMethod `json:"verificationMethod"`
}

// DIDVerificationMethod names one published key in a DID document.
type DIDVerificationMethod struct {
	ID                 string `json:"id"`
	Type               string `json:"type"`
	Controller         string `json:"controller"`
	PublicKeyMultibase string `json:"publicKeyMultibase"`
}

// DIDDocument renders identity's public key as a minimal did:key-style
// document for the well-known discovery endpoint.
func DIDDocument(identity *model.ServerIdentity) WellKnownDIDDocument {
	return WellKnownDIDDocument{
		ID: identity.DID,
		VerificationMethod: []DIDVerificationMethod{
			{
				ID:                 identity.DID + "#keys-1",
				Type:               "Ed25519VerificationKey2020",
				Controller:         identity.DID,
				PublicKeyMultibase: "z" + fmt.Sprintf("%x", identity.PublicKey),
			},
		},
	}
}
