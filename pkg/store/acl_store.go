package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/openintent-ai/openintent/pkg/model"
)

// GetACL returns an intent's full ACL: default policy plus every entry,
// defaulting to PolicyClosed if no row has ever been written (spec.md
// §4.4, "intents are closed by default").
func (s *Store) GetACL(ctx context.Context, intentID string) (*model.IntentACL, error) {
	acl := &model.IntentACL{IntentID: intentID, DefaultPolicy: model.PolicyClosed}

	row := s.queryRow(ctx, nil, `SELECT default_policy FROM acl_defaults WHERE intent_id = $1`, intentID)
	var policy string
	if err := row.Scan(&policy); err == nil {
		acl.DefaultPolicy = model.DefaultPolicy(policy)
	} else if err != sql.ErrNoRows {
		return nil, fmt.Errorf("store: get acl default: %w", err)
	}

	rows, err := s.query(ctx, nil, `
		SELECT id, intent_id, principal_id, principal_type, permission, granted_by, granted_at, expires_at, reason
		FROM acl_entries WHERE intent_id = $1`, intentID)
	if err != nil {
		return nil, fmt.Errorf("store: list acl entries: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var e model.ACLEntry
		var perm string
		if err := rows.Scan(&e.ID, &e.IntentID, &e.PrincipalID, &e.PrincipalType, &perm,
			&e.GrantedBy, &e.GrantedAt, &e.ExpiresAt, &e.Reason); err != nil {
			return nil, fmt.Errorf("store: scan acl entry: %w", err)
		}
		e.Permission = model.ParsePermission(perm)
		acl.Entries = append(acl.Entries, e)
	}
	return acl, rows.Err()
}

// SetDefaultPolicy upserts an intent's ACL default policy.
func (s *Store) SetDefaultPolicy(ctx context.Context, intentID string, policy model.DefaultPolicy) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := s.exec(ctx, tx, `UPDATE acl_defaults SET default_policy = $1 WHERE intent_id = $2`, string(policy), intentID)
		if err != nil {
			return fmt.Errorf("store: set default policy: %w", err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			return nil
		}
		_, err = s.exec(ctx, tx, `INSERT INTO acl_defaults (intent_id, default_policy) VALUES ($1,$2)`, intentID, string(policy))
		if err != nil {
			return fmt.Errorf("store: insert default policy: %w", err)
		}
		return nil
	})
}

// GrantACL inserts (or replaces) one principal's permission entry.
func (s *Store) GrantACL(ctx context.Context, e *model.ACLEntry) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := s.exec(ctx, tx, `DELETE FROM acl_entries WHERE intent_id = $1 AND principal_id = $2`,
			e.IntentID, e.PrincipalID); err != nil {
			return fmt.Errorf("store: clear prior acl entry: %w", err)
		}
		_, err := s.exec(ctx, tx, `
			INSERT INTO acl_entries (id, intent_id, principal_id, principal_type, permission, granted_by, granted_at, expires_at, reason)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
			e.ID, e.IntentID, e.PrincipalID, e.PrincipalType, e.Permission.String(), e.GrantedBy, e.GrantedAt, e.ExpiresAt, e.Reason)
		if err != nil {
			return fmt.Errorf("store: grant acl: %w", err)
		}
		return nil
	})
}

// RevokeACL removes a principal's ACL entry entirely.
func (s *Store) RevokeACL(ctx context.Context, intentID, principalID string) error {
	res, err := s.exec(ctx, nil, `DELETE FROM acl_entries WHERE intent_id = $1 AND principal_id = $2`, intentID, principalID)
	if err != nil {
		return fmt.Errorf("store: revoke acl: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// CreateAccessRequest inserts a pending access request.
func (s *Store) CreateAccessRequest(ctx context.Context, r *model.AccessRequest) error {
	caps, err := marshalJSON(r.Capabilities)
	if err != nil {
		return err
	}
	_, err = s.exec(ctx, nil, `
		INSERT INTO access_requests (id, intent_id, principal_id, requested_permission, reason, capabilities, status)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		r.ID, r.IntentID, r.PrincipalID, r.RequestedPermission.String(), r.Reason, caps, string(model.RequestPending))
	if err != nil {
		return fmt.Errorf("store: create access request: %w", err)
	}
	return nil
}

func scanAccessRequest(row interface{ Scan(dest ...any) error }) (*model.AccessRequest, error) {
	var r model.AccessRequest
	var perm, status, caps string
	if err := row.Scan(&r.ID, &r.IntentID, &r.PrincipalID, &perm, &r.Reason, &caps, &status,
		&r.DecidedBy, &r.DecidedAt, &r.DecisionReason); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("store: scan access request: %w", err)
	}
	r.RequestedPermission = model.ParsePermission(perm)
	r.Status = model.RequestStatus(status)
	if err := unmarshalJSON(caps, &r.Capabilities); err != nil {
		return nil, fmt.Errorf("store: decode capabilities: %w", err)
	}
	return &r, nil
}

const accessRequestColumns = `id, intent_id, principal_id, requested_permission, reason, capabilities, status, decided_by, decided_at, decision_reason`

// GetAccessRequest fetches one access request by id.
func (s *Store) GetAccessRequest(ctx context.Context, id string) (*model.AccessRequest, error) {
	return scanAccessRequest(s.queryRow(ctx, nil, `SELECT `+accessRequestColumns+` FROM access_requests WHERE id = $1`, id))
}

// ListAccessRequests returns requests for an intent, optionally filtered
// to pending only.
func (s *Store) ListAccessRequests(ctx context.Context, intentID string, pendingOnly bool) ([]*model.AccessRequest, error) {
	query := `SELECT ` + accessRequestColumns + ` FROM access_requests WHERE intent_id = $1`
	if pendingOnly {
		query += ` AND status = '` + string(model.RequestPending) + `'`
	}
	rows, err := s.query(ctx, nil, query, intentID)
	if err != nil {
		return nil, fmt.Errorf("store: list access requests: %w", err)
	}
	defer rows.Close()
	var out []*model.AccessRequest
	for rows.Next() {
		r, err := scanAccessRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// DecideAccessRequest transitions a pending request to approved/denied,
// failing with ErrAlreadyDecided if it was already decided.
func (s *Store) DecideAccessRequest(ctx context.Context, id string, approve bool, decidedBy, reason string, now time.Time) (*model.AccessRequest, error) {
	var out *model.AccessRequest
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		r, err := scanAccessRequest(s.queryRow(ctx, tx, `SELECT `+accessRequestColumns+` FROM access_requests WHERE id = $1`, id))
		if err != nil {
			return err
		}
		if r.Status != model.RequestPending {
			return ErrAlreadyDecided
		}
		status := model.RequestDenied
		if approve {
			status = model.RequestApproved
		}
		if _, err := s.exec(ctx, tx, `
			UPDATE access_requests SET status = $1, decided_by = $2, decided_at = $3, decision_reason = $4
			WHERE id = $5`, string(status), decidedBy, now, reason, id); err != nil {
			return fmt.Errorf("store: decide access request: %w", err)
		}
		r.Status = status
		r.DecidedBy = decidedBy
		r.DecidedAt = &now
		r.DecisionReason = reason
		out = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
