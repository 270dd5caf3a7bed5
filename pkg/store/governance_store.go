package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/openintent-ai/openintent/pkg/model"
)

// CreateApproval inserts a pending approval gate.
func (s *Store) CreateApproval(ctx context.Context, a *model.Approval) error {
	ctxJSON, err := marshalJSON(a.Context)
	if err != nil {
		return err
	}
	_, err = s.exec(ctx, nil, `
		INSERT INTO approvals (id, intent_id, requested_by, action, reason, context, status, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		a.ID, a.IntentID, a.RequestedBy, a.Action, a.Reason, ctxJSON, string(model.RequestPending), a.CreatedAt)
	if err != nil {
		return fmt.Errorf("store: create approval: %w", err)
	}
	return nil
}

func scanApproval(row interface{ Scan(dest ...any) error }) (*model.Approval, error) {
	var a model.Approval
	var ctxJSON, status string
	if err := row.Scan(&a.ID, &a.IntentID, &a.RequestedBy, &a.Action, &a.Reason, &ctxJSON,
		&status, &a.DecidedBy, &a.DecidedAt, &a.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("store: scan approval: %w", err)
	}
	a.Status = model.RequestStatus(status)
	if err := unmarshalJSON(ctxJSON, &a.Context); err != nil {
		return nil, fmt.Errorf("store: decode approval context: %w", err)
	}
	return &a, nil
}

const approvalColumns = `id, intent_id, requested_by, action, reason, context, status, decided_by, decided_at, created_at`

// GetApproval fetches one approval by id.
func (s *Store) GetApproval(ctx context.Context, id string) (*model.Approval, error) {
	return scanApproval(s.queryRow(ctx, nil, `SELECT `+approvalColumns+` FROM approvals WHERE id = $1`, id))
}

// PendingApprovals returns every approval gate for an intent's action,
// whatever its status (used to enforce CompletionRequireApprove / quorum).
func (s *Store) PendingApprovals(ctx context.Context, intentID, action string) ([]*model.Approval, error) {
	rows, err := s.query(ctx, nil, `SELECT `+approvalColumns+` FROM approvals WHERE intent_id = $1 AND action = $2`, intentID, action)
	if err != nil {
		return nil, fmt.Errorf("store: pending approvals: %w", err)
	}
	defer rows.Close()
	var out []*model.Approval
	for rows.Next() {
		a, err := scanApproval(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// DecideApproval records a decision on a pending approval.
func (s *Store) DecideApproval(ctx context.Context, id string, approve bool, decidedBy string, now time.Time) (*model.Approval, error) {
	var out *model.Approval
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		a, err := scanApproval(s.queryRow(ctx, tx, `SELECT `+approvalColumns+` FROM approvals WHERE id = $1`, id))
		if err != nil {
			return err
		}
		if a.Status != model.RequestPending {
			return ErrAlreadyDecided
		}
		status := model.RequestDenied
		if approve {
			status = model.RequestApproved
		}
		if _, err := s.exec(ctx, tx, `UPDATE approvals SET status = $1, decided_by = $2, decided_at = $3 WHERE id = $4`,
			string(status), decidedBy, now, id); err != nil {
			return fmt.Errorf("store: decide approval: %w", err)
		}
		a.Status = status
		a.DecidedBy = decidedBy
		a.DecidedAt = &now
		out = a
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// CountApproved is used by quorum enforcement to count how many
// approvals for an action have been granted.
func (s *Store) CountApproved(ctx context.Context, intentID, action string) (int, error) {
	row := s.queryRow(ctx, nil, `SELECT COUNT(*) FROM approvals WHERE intent_id = $1 AND action = $2 AND status = $3`,
		intentID, action, string(model.RequestApproved))
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, fmt.Errorf("store: count approved: %w", err)
	}
	return n, nil
}
