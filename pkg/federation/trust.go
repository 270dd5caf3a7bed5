package federation

import (
	"fmt"

	"github.com/openintent-ai/openintent/pkg/model"
)

// PeerDirectory resolves PeerInfo by server URL or DID, backing trust
// policy decisions. A real deployment loads this from the store or a
// config file; tests can supply a map-backed implementation.
type PeerDirectory interface {
	Lookup(serverURLOrDID string) (*model.PeerInfo, bool)
}

// StaticPeerDirectory is a PeerDirectory over a fixed peer list, suitable
// for config-file-driven allowlists.
type StaticPeerDirectory struct {
	peers map[string]*model.PeerInfo
}

// NewStaticPeerDirectory indexes peers by both ServerURL and ServerDID.
func NewStaticPeerDirectory(peers []model.PeerInfo) *StaticPeerDirectory {
	d := &StaticPeerDirectory{peers: make(map[string]*model.PeerInfo, len(peers)*2)}
	for i := range peers {
		p := peers[i]
		d.peers[p.ServerURL] = &p
		if p.ServerDID != "" {
			d.peers[p.ServerDID] = &p
		}
	}
	return d
}

func (d *StaticPeerDirectory) Lookup(key string) (*model.PeerInfo, bool) {
	p, ok := d.peers[key]
	return p, ok
}

// TrustDecision is the outcome of evaluating an inbound source against
// this server's own trust_policy (spec.md §4.9).
type TrustDecision struct {
	Accepted bool
	Peer     *model.PeerInfo
	Reason   string
}

// EvaluateInbound applies this server's trust_policy to an inbound
// source identifier (URL or DID): open accepts anyone, allowlist accepts
// only a known peer, trustless rejects everything inbound.
func EvaluateInbound(policy model.TrustRelationship, source string, directory PeerDirectory) TrustDecision {
	switch policy {
	case model.TrustTrustless:
		return TrustDecision{Accepted: false, Reason: "trustless: inbound dispatches are rejected"}
	case model.TrustAllowlist:
		peer, ok := directory.Lookup(source)
		if !ok {
			return TrustDecision{Accepted: false, Reason: fmt.Sprintf("source %q is not on the allowlist", source)}
		}
		return TrustDecision{Accepted: true, Peer: peer}
	case model.TrustOpen:
		peer, _ := directory.Lookup(source)
		return TrustDecision{Accepted: true, Peer: peer}
	default:
		return TrustDecision{Accepted: false, Reason: fmt.Sprintf("unknown trust policy %q", policy)}
	}
}
