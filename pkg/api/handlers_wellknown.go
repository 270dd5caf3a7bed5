package api

import (
	"net/http"

	"github.com/openintent-ai/openintent/pkg/federation"
)

// protocolVersion is the OpenIntent wire-protocol version this server
// implements, reported at /.well-known/openintent.json.
const protocolVersion = "1.0"

type wellKnownManifest struct {
	Protocol     string   `json:"protocol"`
	Version      string   `json:"version"`
	RFCUrls      []string `json:"rfcUrls"`
	Capabilities []string `json:"capabilities"`
	OpenAPIUrl   string   `json:"openApiUrl"`
}

func (s *Server) handleWellKnownOpenIntent(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, wellKnownManifest{
		Protocol: "openintent",
		Version:  protocolVersion,
		RFCUrls:  []string{},
		Capabilities: []string{
			"intents", "leases", "governance", "acl", "portfolios",
			"messaging", "federation", "sse",
		},
		OpenAPIUrl: "/openapi.json",
	})
}

type compatManifest struct {
	ProtocolVersion string          `json:"protocol_version"`
	Conformance     map[string]bool `json:"conformance"`
}

func (s *Server) handleWellKnownCompat(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, compatManifest{
		ProtocolVersion: protocolVersion,
		Conformance: map[string]bool{
			"intent_lifecycle":   true,
			"leases":             true,
			"governance":         true,
			"access_control":     true,
			"portfolios":         true,
			"messaging":          true,
			"federation":         s.dispatcher != nil,
			"sse_subscriptions":  true,
		},
	})
}

type federationManifest struct {
	DID            string   `json:"did"`
	TrustPolicy    string   `json:"trust_policy"`
	DispatchURL    string   `json:"dispatch_url"`
	ReceiveURL     string   `json:"receive_url"`
	SupportedAlgos []string `json:"supported_signature_algorithms"`
}

func (s *Server) handleWellKnownFederation(w http.ResponseWriter, r *http.Request) {
	m := federationManifest{
		TrustPolicy: string(s.trustPolicy),
		DispatchURL: "/federation/dispatch",
		ReceiveURL:  "/federation/receive",
	}
	if s.identity != nil {
		m.DID = s.identity.DID
		if s.identity.HMACFallback {
			m.SupportedAlgos = []string{"hmac-sha256"}
		} else {
			m.SupportedAlgos = []string{"ed25519"}
		}
	}
	writeJSON(w, http.StatusOK, m)
}

func (s *Server) handleWellKnownDID(w http.ResponseWriter, r *http.Request) {
	if s.identity == nil {
		WriteNotFound(w, r, "no federation identity configured")
		return
	}
	writeJSON(w, http.StatusOK, federation.DIDDocument(s.identity))
}
