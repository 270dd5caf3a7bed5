// Package governance enforces the per-intent policy engine from spec.md
// §4.5: completion gating, write-scope restriction and cost ceilings.
package governance

import (
	"encoding/json"

	"github.com/openintent-ai/openintent/pkg/model"
)

// ParsePolicy decodes an intent's free-form governance_policy map into
// its typed form. A nil or empty map yields the zero-value policy,
// which enforces nothing (completion_mode defaults to "auto").
func ParsePolicy(raw map[string]any) (model.GovernancePolicy, error) {
	var p model.GovernancePolicy
	if len(raw) == 0 {
		return p, nil
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return p, err
	}
	if err := json.Unmarshal(data, &p); err != nil {
		return p, err
	}
	return p, nil
}

// Compose merges a portfolio's enclosing policy with an intent's own
// policy by taking the strictest value per field, per spec.md §4.5: a
// non-default completion_mode on either side wins (portfolio constrains
// the intent, never loosens it), write_scope prefers assigned_only, and
// max_cost takes the minimum of the two when both are set.
func Compose(intentPolicy, portfolioPolicy model.GovernancePolicy) model.GovernancePolicy {
	out := intentPolicy

	if out.CompletionMode == "" || out.CompletionMode == model.CompletionAuto {
		if portfolioPolicy.CompletionMode != "" {
			out.CompletionMode = portfolioPolicy.CompletionMode
			out.QuorumThreshold = portfolioPolicy.QuorumThreshold
		}
	}
	if out.WriteScope == "" {
		out.WriteScope = portfolioPolicy.WriteScope
	} else if portfolioPolicy.WriteScope == model.WriteScopeAssignedOnly {
		out.WriteScope = model.WriteScopeAssignedOnly
	}
	if portfolioPolicy.MaxCost != nil {
		if out.MaxCost == nil || *portfolioPolicy.MaxCost < *out.MaxCost {
			out.MaxCost = portfolioPolicy.MaxCost
		}
	}
	if out.CustomRule == "" {
		out.CustomRule = portfolioPolicy.CustomRule
	}
	return out
}
