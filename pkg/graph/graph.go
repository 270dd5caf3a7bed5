// Package graph implements the read-side traversal views over the
// parent/child and depends_on edges between intents (spec.md §4.4).
package graph

import (
	"context"
	"fmt"

	"github.com/openintent-ai/openintent/pkg/model"
	"github.com/openintent-ai/openintent/pkg/store"
)

// Service answers graph queries by loading intents from the store.
// Traversals are computed in memory; the corpus this coordinates is
// expected to be small enough per-tree that this is simpler and safer
// than recursive SQL across two dialects.
type Service struct {
	store *store.Store
}

// New builds a Service.
func New(st *store.Store) *Service {
	return &Service{store: st}
}

// Children returns intents whose parent_intent_id is id.
func (s *Service) Children(ctx context.Context, id string) ([]*model.Intent, error) {
	pid := id
	return s.store.ListIntents(ctx, store.ListIntentsFilter{ParentIntentID: &pid})
}

// Descendants returns the transitive closure of Children, depth-first.
func (s *Service) Descendants(ctx context.Context, id string) ([]*model.Intent, error) {
	var out []*model.Intent
	seen := map[string]bool{}
	var walk func(string) error
	walk = func(cur string) error {
		children, err := s.Children(ctx, cur)
		if err != nil {
			return err
		}
		for _, c := range children {
			if seen[c.ID] {
				continue
			}
			seen[c.ID] = true
			out = append(out, c)
			if err := walk(c.ID); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk(id); err != nil {
		return nil, fmt.Errorf("graph: descendants: %w", err)
	}
	return out, nil
}

// Ancestors walks parent_intent_id up to the root.
func (s *Service) Ancestors(ctx context.Context, id string) ([]*model.Intent, error) {
	var out []*model.Intent
	cur := id
	for {
		intent, err := s.store.GetIntent(ctx, cur)
		if err != nil {
			return nil, fmt.Errorf("graph: ancestors: %w", err)
		}
		if intent.ParentIntentID == nil {
			return out, nil
		}
		parent, err := s.store.GetIntent(ctx, *intent.ParentIntentID)
		if err != nil {
			return nil, fmt.Errorf("graph: ancestors: load parent: %w", err)
		}
		out = append(out, parent)
		cur = parent.ID
	}
}

// Dependencies resolves an intent's depends_on ids to rows.
func (s *Service) Dependencies(ctx context.Context, id string) ([]*model.Intent, error) {
	intent, err := s.store.GetIntent(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("graph: dependencies: %w", err)
	}
	out := make([]*model.Intent, 0, len(intent.DependsOn))
	for _, depID := range intent.DependsOn {
		dep, err := s.store.GetIntent(ctx, depID)
		if err != nil {
			return nil, fmt.Errorf("graph: dependencies: load %s: %w", depID, err)
		}
		out = append(out, dep)
	}
	return out, nil
}

// Dependents finds all intents whose depends_on contains id.
func (s *Service) Dependents(ctx context.Context, id string) ([]*model.Intent, error) {
	all, err := s.store.ListIntents(ctx, store.ListIntentsFilter{})
	if err != nil {
		return nil, fmt.Errorf("graph: dependents: %w", err)
	}
	var out []*model.Intent
	for _, candidate := range all {
		for _, dep := range candidate.DependsOn {
			if dep == id {
				out = append(out, candidate)
				break
			}
		}
	}
	return out, nil
}

// Ready returns children of id whose every dependency is completed.
func (s *Service) Ready(ctx context.Context, id string) ([]*model.Intent, error) {
	children, err := s.Children(ctx, id)
	if err != nil {
		return nil, err
	}
	var out []*model.Intent
	for _, c := range children {
		ok, err := s.allDependenciesCompleted(ctx, c)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, c)
		}
	}
	return out, nil
}

// Blocked returns children of id with at least one unmet dependency.
func (s *Service) Blocked(ctx context.Context, id string) ([]*model.Intent, error) {
	children, err := s.Children(ctx, id)
	if err != nil {
		return nil, err
	}
	var out []*model.Intent
	for _, c := range children {
		ok, err := s.allDependenciesCompleted(ctx, c)
		if err != nil {
			return nil, err
		}
		if !ok {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *Service) allDependenciesCompleted(ctx context.Context, intent *model.Intent) (bool, error) {
	for _, depID := range intent.DependsOn {
		dep, err := s.store.GetIntent(ctx, depID)
		if err != nil {
			return false, fmt.Errorf("graph: load dependency %s: %w", depID, err)
		}
		if dep.Status != model.StatusCompleted {
			return false, nil
		}
	}
	return true, nil
}

// Edge is one parent->child or dependency edge in a View.
type Edge struct {
	From string `json:"from"`
	To   string `json:"to"`
	Kind string `json:"kind"` // "parent_child" or "dependency"
}

// View is the full graph(id) response: nodes, edges and an aggregate
// status rollup spanning both edge kinds reachable from id.
type View struct {
	Nodes     []*model.Intent       `json:"nodes"`
	Edges     []Edge                `json:"edges"`
	Aggregate model.AggregateStatus `json:"aggregate_status"`
}

// Graph computes the full (nodes, edges, aggregate_status) view
// reachable from id via parent->child and dependency edges.
func (s *Service) Graph(ctx context.Context, id string) (*View, error) {
	nodes := map[string]*model.Intent{}
	var edges []Edge

	root, err := s.store.GetIntent(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("graph: load root: %w", err)
	}
	nodes[root.ID] = root

	var walk func(*model.Intent) error
	walk = func(cur *model.Intent) error {
		for _, depID := range cur.DependsOn {
			edges = append(edges, Edge{From: cur.ID, To: depID, Kind: "dependency"})
			if _, ok := nodes[depID]; !ok {
				dep, err := s.store.GetIntent(ctx, depID)
				if err != nil {
					return fmt.Errorf("graph: load dependency %s: %w", depID, err)
				}
				nodes[dep.ID] = dep
				if err := walk(dep); err != nil {
					return err
				}
			}
		}
		children, err := s.Children(ctx, cur.ID)
		if err != nil {
			return err
		}
		for _, c := range children {
			edges = append(edges, Edge{From: cur.ID, To: c.ID, Kind: "parent_child"})
			if _, ok := nodes[c.ID]; !ok {
				nodes[c.ID] = c
				if err := walk(c); err != nil {
					return err
				}
			}
		}
		return nil
	}
	if err := walk(root); err != nil {
		return nil, err
	}

	nodeList := make([]*model.Intent, 0, len(nodes))
	histogram := map[string]int{}
	completed := 0
	for _, n := range nodes {
		nodeList = append(nodeList, n)
		histogram[string(n.Status)]++
		if n.Status == model.StatusCompleted {
			completed++
		}
	}
	pct := 0.0
	if len(nodeList) > 0 {
		pct = float64(completed) / float64(len(nodeList))
	}

	return &View{
		Nodes: nodeList,
		Edges: edges,
		Aggregate: model.AggregateStatus{
			Total:                len(nodeList),
			ByStatus:             histogram,
			CompletionPercentage: pct,
		},
	}, nil
}
