package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/openintent-ai/openintent/pkg/model"
)

func scanLease(row interface{ Scan(dest ...any) error }) (*model.IntentLease, error) {
	var l model.IntentLease
	if err := row.Scan(&l.ID, &l.IntentID, &l.AgentID, &l.Scope, &l.AcquiredAt, &l.ExpiresAt, &l.ReleasedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("store: scan lease: %w", err)
	}
	return &l, nil
}

const leaseColumns = `id, intent_id, agent_id, scope, acquired_at, expires_at, released_at`

// AcquireLease takes an exclusive lease on (intent_id, scope) if no
// other active, unexpired lease holds that scope (spec.md §4.2).
func (s *Store) AcquireLease(ctx context.Context, l *model.IntentLease, now time.Time) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		rows, err := s.query(ctx, tx, `SELECT `+leaseColumns+` FROM intent_leases WHERE intent_id = $1 AND scope = $2 AND released_at IS NULL`,
			l.IntentID, l.Scope)
		if err != nil {
			return fmt.Errorf("store: acquire lease lookup: %w", err)
		}
		var holders []*model.IntentLease
		for rows.Next() {
			h, err := scanLease(rows)
			if err != nil {
				rows.Close()
				return err
			}
			holders = append(holders, h)
		}
		rows.Close()
		for _, h := range holders {
			if h.ComputedStatus(now) == model.LeaseActive {
				return ErrLeaseConflict
			}
		}
		_, err = s.exec(ctx, tx, `
			INSERT INTO intent_leases (id, intent_id, agent_id, scope, acquired_at, expires_at, released_at)
			VALUES ($1,$2,$3,$4,$5,$6,NULL)`,
			l.ID, l.IntentID, l.AgentID, l.Scope, l.AcquiredAt, l.ExpiresAt)
		if err != nil {
			return fmt.Errorf("store: acquire lease: %w", err)
		}
		return nil
	})
}

// RenewLease extends expires_at for a lease still held by agentID.
func (s *Store) RenewLease(ctx context.Context, leaseID, agentID string, newExpiry time.Time, now time.Time) (*model.IntentLease, error) {
	var out *model.IntentLease
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		l, err := scanLease(s.queryRow(ctx, tx, `SELECT `+leaseColumns+` FROM intent_leases WHERE id = $1`, leaseID))
		if err != nil {
			return err
		}
		if l.AgentID != agentID || l.ComputedStatus(now) != model.LeaseActive {
			return ErrLeaseConflict
		}
		if _, err := s.exec(ctx, tx, `UPDATE intent_leases SET expires_at = $1 WHERE id = $2`, newExpiry, leaseID); err != nil {
			return fmt.Errorf("store: renew lease: %w", err)
		}
		l.ExpiresAt = newExpiry
		out = l
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ReleaseLease marks a lease released by agentID (no-op if already released).
func (s *Store) ReleaseLease(ctx context.Context, leaseID, agentID string, now time.Time) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		l, err := scanLease(s.queryRow(ctx, tx, `SELECT `+leaseColumns+` FROM intent_leases WHERE id = $1`, leaseID))
		if err != nil {
			return err
		}
		if l.AgentID != agentID {
			return ErrLeaseConflict
		}
		if l.ReleasedAt != nil {
			return nil
		}
		if _, err := s.exec(ctx, tx, `UPDATE intent_leases SET released_at = $1 WHERE id = $2`, now, leaseID); err != nil {
			return fmt.Errorf("store: release lease: %w", err)
		}
		return nil
	})
}

// ListLeases returns every lease recorded for an intent, including
// released and expired ones, for audit views.
func (s *Store) ListLeases(ctx context.Context, intentID string) ([]*model.IntentLease, error) {
	rows, err := s.query(ctx, nil, `SELECT `+leaseColumns+` FROM intent_leases WHERE intent_id = $1 ORDER BY acquired_at ASC`, intentID)
	if err != nil {
		return nil, fmt.Errorf("store: list leases: %w", err)
	}
	defer rows.Close()
	var out []*model.IntentLease
	for rows.Next() {
		l, err := scanLease(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// SweepExpiredLeases is called by the background lease sweeper (spec.md
// §2, Background workers): it marks every lease that crossed into
// expired as released (so the next pass never reports it again) and
// returns exactly the rows it just released, for the caller to emit
// lease_released(reason=expired) events from.
func (s *Store) SweepExpiredLeases(ctx context.Context, now time.Time) ([]*model.IntentLease, error) {
	var out []*model.IntentLease
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		rows, err := s.query(ctx, tx, `SELECT `+leaseColumns+` FROM intent_leases WHERE released_at IS NULL AND expires_at <= $1`, now)
		if err != nil {
			return fmt.Errorf("store: sweep leases select: %w", err)
		}
		var expired []*model.IntentLease
		for rows.Next() {
			l, err := scanLease(rows)
			if err != nil {
				rows.Close()
				return err
			}
			expired = append(expired, l)
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return err
		}
		rows.Close()

		for _, l := range expired {
			if _, err := s.exec(ctx, tx, `UPDATE intent_leases SET released_at = $1 WHERE id = $2`, now, l.ID); err != nil {
				return fmt.Errorf("store: sweep release %s: %w", l.ID, err)
			}
			l.ReleasedAt = &now
		}
		out = expired
		return nil
	})
	return out, err
}
