// Package leases manages per-scope exclusive claims on intents (spec.md
// §4.2) and the background sweeper that surfaces expired leases.
package leases

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/openintent-ai/openintent/pkg/model"
	"github.com/openintent-ai/openintent/pkg/store"
	"github.com/openintent-ai/openintent/pkg/telemetry"
)

// Service wraps the store's lease primitives with event emission.
type Service struct {
	store *store.Store
}

// New builds a Service.
func New(st *store.Store) *Service {
	return &Service{store: st}
}

// Acquire takes an exclusive lease on (intentID, scope), failing with
// store.ErrLeaseConflict if another unexpired lease already holds it.
func (s *Service) Acquire(ctx context.Context, intentID, agentID, scope string, ttl time.Duration, now time.Time) (*model.IntentLease, error) {
	l := &model.IntentLease{
		ID:         uuid.NewString(),
		IntentID:   intentID,
		AgentID:    agentID,
		Scope:      scope,
		AcquiredAt: now,
		ExpiresAt:  now.Add(ttl),
	}
	if err := s.store.AcquireLease(ctx, l, now); err != nil {
		return nil, err
	}
	telemetry.ActiveLeases.Inc()
	if err := s.emit(ctx, intentID, model.EventLeaseAcquired, agentID, l, now); err != nil {
		return nil, err
	}
	return l, nil
}

// Renew extends a held lease's expiry.
func (s *Service) Renew(ctx context.Context, leaseID, agentID string, ttl time.Duration, now time.Time) (*model.IntentLease, error) {
	l, err := s.store.RenewLease(ctx, leaseID, agentID, now.Add(ttl), now)
	if err != nil {
		return nil, err
	}
	if err := s.emit(ctx, l.IntentID, model.EventLeaseRenewed, agentID, l, now); err != nil {
		return nil, err
	}
	return l, nil
}

// Release releases a held lease, emitting lease_released with
// reason "released".
func (s *Service) Release(ctx context.Context, leaseID, intentID, agentID string, now time.Time) error {
	if err := s.store.ReleaseLease(ctx, leaseID, agentID, now); err != nil {
		return err
	}
	telemetry.ActiveLeases.Dec()
	return s.emitReason(ctx, intentID, agentID, leaseID, "released", now)
}

// List returns every lease recorded for an intent.
func (s *Service) List(ctx context.Context, intentID string) ([]*model.IntentLease, error) {
	return s.store.ListLeases(ctx, intentID)
}

func (s *Service) emit(ctx context.Context, intentID string, eventType model.EventType, actor string, l *model.IntentLease, now time.Time) error {
	ev := store.NewEvent(uuid.NewString(), intentID, eventType, actor, map[string]any{
		"lease_id":   l.ID,
		"scope":      l.Scope,
		"expires_at": l.ExpiresAt,
	}, now)
	return s.store.AppendEventAuto(ctx, ev)
}

func (s *Service) emitReason(ctx context.Context, intentID, actor, leaseID, reason string, now time.Time) error {
	ev := store.NewEvent(uuid.NewString(), intentID, model.EventLeaseReleased, actor, map[string]any{
		"lease_id": leaseID,
		"reason":   reason,
	}, now)
	return s.store.AppendEventAuto(ctx, ev)
}

// sweepInterval governs how often the background sweeper scans for
// expired leases. spec.md §9 leaves the exact value as an open question,
// recommending "at most half the minimum lease duration"; 5s comfortably
// covers the shortest leases typical agent coordination uses (minutes).
const sweepInterval = 5 * time.Second

// RunSweeper blocks, periodically scanning for leases that crossed into
// expired since the last pass and emitting lease_released(reason=expired)
// for each, until ctx is cancelled.
func (s *Service) RunSweeper(ctx context.Context) error {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := s.sweepOnce(ctx); err != nil {
				return fmt.Errorf("leases: sweep: %w", err)
			}
		}
	}
}

func (s *Service) sweepOnce(ctx context.Context) error {
	now := time.Now()
	expired, err := s.store.SweepExpiredLeases(ctx, now)
	if err != nil {
		return err
	}
	for _, l := range expired {
		telemetry.ActiveLeases.Dec()
		if err := s.emitReason(ctx, l.IntentID, "system", l.ID, "expired", now); err != nil {
			return err
		}
	}
	return nil
}
