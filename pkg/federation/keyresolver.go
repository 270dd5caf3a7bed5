package federation

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/openintent-ai/openintent/internal/ssrf"
)

// HTTPPublicKeyResolver fetches a peer's Ed25519 public key from its
// published /.well-known/did.json (spec.md §4.9 "Identity"), the
// counterpart to this server's own DIDDocument.
type HTTPPublicKeyResolver struct {
	client *http.Client
}

// NewHTTPPublicKeyResolver builds a resolver with a bounded-timeout
// client; peer discovery must not hang a dispatch indefinitely.
func NewHTTPPublicKeyResolver() *HTTPPublicKeyResolver {
	return &HTTPPublicKeyResolver{client: &http.Client{Timeout: 5 * time.Second}}
}

// ResolvePublicKey fetches sourceServer's DID document and decodes its
// first verification method's key, matching the "z<hex>" encoding this
// server's own DIDDocument produces.
func (r *HTTPPublicKeyResolver) ResolvePublicKey(ctx context.Context, sourceServer string) ([]byte, error) {
	url := strings.TrimRight(sourceServer, "/") + "/.well-known/did.json"
	if err := ssrf.CheckURL(url); err != nil {
		return nil, fmt.Errorf("federation: resolve public key: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("federation: build did.json request: %w", err)
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("federation: fetch %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("federation: fetch %s: status %d", url, resp.StatusCode)
	}

	var doc WellKnownDIDDocument
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, fmt.Errorf("federation: decode did document: %w", err)
	}
	if len(doc.VerificationMethod) == 0 {
		return nil, fmt.Errorf("federation: %s published no verification method", sourceServer)
	}

	encoded := strings.TrimPrefix(doc.VerificationMethod[0].PublicKeyMultibase, "z")
	key, err := hex.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("federation: decode public key: %w", err)
	}
	return key, nil
}
