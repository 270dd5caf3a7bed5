//go:build property
// +build property

package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/openintent-ai/openintent/pkg/model"
	"github.com/openintent-ai/openintent/pkg/store"
)

// newPropertyStore opens a fresh in-memory SQLite store, migrated the
// same way Open migrates a real deployment's database.
func newPropertyStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(context.Background(), "file::memory:?cache=shared&_pragma=busy_timeout(5000)")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newTestIntent(t *testing.T, s *store.Store, title string) *model.Intent {
	t.Helper()
	in := &model.Intent{
		ID:        uuid.NewString(),
		Title:     title,
		CreatedBy: "property-test",
		Status:    model.StatusDraft,
		Version:   1,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	if err := s.CreateIntent(context.Background(), in); err != nil {
		t.Fatalf("create intent: %v", err)
	}
	return in
}

// TestProperty_MutationsIncrementVersionByExactlyOne covers spec.md §8's
// universal invariant for AddDependency, RemoveDependency,
// SetGovernancePolicy and PatchState: each must raise version by
// exactly 1 on success.
func TestProperty_MutationsIncrementVersionByExactlyOne(t *testing.T) {
	s := newPropertyStore(t)
	ctx := context.Background()
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	properties.Property("add_dependency increments version by 1", prop.ForAll(
		func(label string) bool {
			a := newTestIntent(t, s, "a-"+label)
			b := newTestIntent(t, s, "b-"+label)
			before := a.Version
			updated, err := s.AddDependency(ctx, a.ID, b.ID, before, time.Now())
			if err != nil {
				return false
			}
			return updated.Version == before+1
		},
		gen.AlphaString(),
	))

	properties.Property("remove_dependency increments version by 1", prop.ForAll(
		func(label string) bool {
			a := newTestIntent(t, s, "a-"+label)
			b := newTestIntent(t, s, "b-"+label)
			withDep, err := s.AddDependency(ctx, a.ID, b.ID, a.Version, time.Now())
			if err != nil {
				return false
			}
			updated, err := s.RemoveDependency(ctx, a.ID, b.ID, withDep.Version, time.Now())
			if err != nil {
				return false
			}
			return updated.Version == withDep.Version+1
		},
		gen.AlphaString(),
	))

	properties.Property("set_governance_policy increments version by 1", prop.ForAll(
		func(label string) bool {
			a := newTestIntent(t, s, "gov-"+label)
			updated, err := s.SetGovernancePolicy(ctx, a.ID, a.Version, map[string]any{"completion_mode": "advise"}, time.Now())
			if err != nil {
				return false
			}
			return updated.Version == a.Version+1
		},
		gen.AlphaString(),
	))

	properties.Property("patch_state increments version by 1", prop.ForAll(
		func(label string) bool {
			a := newTestIntent(t, s, "patch-"+label)
			updated, err := s.PatchState(ctx, a.ID, a.Version, map[string]any{"k": label}, time.Now())
			if err != nil {
				return false
			}
			return updated.Version == a.Version+1
		},
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}

// TestProperty_StaleIfMatchAlwaysConflicts is the regression property for
// the lost-update bug: a stale expectedVersion must never be allowed to
// silently land, checked for AddDependency and SetGovernancePolicy.
func TestProperty_StaleIfMatchAlwaysConflicts(t *testing.T) {
	s := newPropertyStore(t)
	ctx := context.Background()
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	properties.Property("add_dependency rejects stale If-Match", prop.ForAll(
		func(staleOffset int64, label string) bool {
			a := newTestIntent(t, s, "a-"+label)
			b := newTestIntent(t, s, "b-"+label)
			stale := a.Version + 1 + staleOffset
			_, err := s.AddDependency(ctx, a.ID, b.ID, stale, time.Now())
			var conflict *store.VersionConflictError
			return err != nil && asVersionConflict(err, &conflict)
		},
		gen.Int64Range(0, 50),
		gen.AlphaString(),
	))

	properties.Property("set_governance_policy rejects stale If-Match", prop.ForAll(
		func(staleOffset int64, label string) bool {
			a := newTestIntent(t, s, "gov-"+label)
			stale := a.Version + 1 + staleOffset
			_, err := s.SetGovernancePolicy(ctx, a.ID, stale, map[string]any{"completion_mode": "strict"}, time.Now())
			var conflict *store.VersionConflictError
			return err != nil && asVersionConflict(err, &conflict)
		},
		gen.Int64Range(0, 50),
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}

// TestProperty_DependencyCyclesAlwaysRejected covers the graph-cycle
// invariant: appending an edge that would close a cycle through any
// chain length must always fail with ErrCycle.
func TestProperty_DependencyCyclesAlwaysRejected(t *testing.T) {
	s := newPropertyStore(t)
	ctx := context.Background()
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 30
	properties := gopter.NewProperties(parameters)

	properties.Property("a chain of add_dependency calls back to the origin is rejected", prop.ForAll(
		func(chainLen int, label string) bool {
			if chainLen < 1 {
				chainLen = 1
			}
			nodes := make([]*model.Intent, chainLen+1)
			for i := range nodes {
				nodes[i] = newTestIntent(t, s, "chain-"+label)
			}
			for i := 0; i < chainLen; i++ {
				updated, err := s.AddDependency(ctx, nodes[i].ID, nodes[i+1].ID, nodes[i].Version, time.Now())
				if err != nil {
					return false
				}
				nodes[i] = updated
			}
			last := nodes[chainLen]
			_, err := s.AddDependency(ctx, last.ID, nodes[0].ID, last.Version, time.Now())
			return err == store.ErrCycle
		},
		gen.IntRange(1, 6),
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}

func asVersionConflict(err error, target **store.VersionConflictError) bool {
	ve, ok := err.(*store.VersionConflictError)
	if ok {
		*target = ve
	}
	return ok
}
