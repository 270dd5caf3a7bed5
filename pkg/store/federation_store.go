package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/openintent-ai/openintent/pkg/model"
)

// CreateDispatch inserts the local record of an outbound federation
// dispatch.
func (s *Store) CreateDispatch(ctx context.Context, d *model.FederationDispatch) error {
	_, err := s.exec(ctx, nil, `
		INSERT INTO federation_dispatches (dispatch_id, target_server, intent_id, status, attempts, last_error, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		d.DispatchID, d.TargetServer, d.IntentID, string(d.Status), d.Attempts, d.LastError, d.CreatedAt, d.UpdatedAt)
	if err != nil {
		return fmt.Errorf("store: create dispatch: %w", err)
	}
	return nil
}

func scanDispatch(row interface{ Scan(dest ...any) error }) (*model.FederationDispatch, error) {
	var d model.FederationDispatch
	var status string
	if err := row.Scan(&d.DispatchID, &d.TargetServer, &d.IntentID, &status, &d.Attempts, &d.LastError, &d.CreatedAt, &d.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("store: scan dispatch: %w", err)
	}
	d.Status = model.DispatchStatus(status)
	return &d, nil
}

const dispatchColumns = `dispatch_id, target_server, intent_id, status, attempts, last_error, created_at, updated_at`

// GetDispatch fetches a dispatch record by id.
func (s *Store) GetDispatch(ctx context.Context, dispatchID string) (*model.FederationDispatch, error) {
	return scanDispatch(s.queryRow(ctx, nil, `SELECT `+dispatchColumns+` FROM federation_dispatches WHERE dispatch_id = $1`, dispatchID))
}

// UpdateDispatchStatus records the outcome of a delivery attempt.
func (s *Store) UpdateDispatchStatus(ctx context.Context, dispatchID string, status model.DispatchStatus, lastError string, now time.Time) error {
	res, err := s.exec(ctx, nil, `
		UPDATE federation_dispatches SET status = $1, attempts = attempts + 1, last_error = $2, updated_at = $3
		WHERE dispatch_id = $4`, string(status), lastError, now, dispatchID)
	if err != nil {
		return fmt.Errorf("store: update dispatch status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// RecordReceived inserts the idempotency record for an inbound dispatch,
// failing with ErrDuplicate if (source_server, idempotency_key) was
// already recorded (spec.md §4.9, "idempotent receive").
func (s *Store) RecordReceived(ctx context.Context, r *model.ReceivedDispatch) error {
	_, err := s.exec(ctx, nil, `
		INSERT INTO federation_received (source_server, idempotency_key, dispatch_id, local_intent_id, created_at)
		VALUES ($1,$2,$3,$4,$5)`,
		r.SourceServer, r.IdempotencyKey, r.DispatchID, r.LocalIntentID, r.CreatedAt)
	if err != nil {
		return &duplicateAwareError{err: err}
	}
	return nil
}

// duplicateAwareError wraps a raw driver error so callers can test
// errors.Is(err, ErrDuplicate) without depending on driver-specific error
// types; lib/pq and modernc.org/sqlite signal a unique-constraint
// violation differently, so any insert failure against a PK'd table here
// is treated uniformly as a duplicate rather than inspected per-driver.
type duplicateAwareError struct{ err error }

func (e *duplicateAwareError) Error() string    { return e.err.Error() }
func (e *duplicateAwareError) Unwrap() error    { return e.err }
func (e *duplicateAwareError) Is(target error) bool { return target == ErrDuplicate }

// GetReceived looks up a previously recorded inbound dispatch by its
// idempotency key, so the receive handler can replay the prior result
// instead of reprocessing.
func (s *Store) GetReceived(ctx context.Context, sourceServer, idempotencyKey string) (*model.ReceivedDispatch, error) {
	row := s.queryRow(ctx, nil, `
		SELECT source_server, idempotency_key, dispatch_id, local_intent_id, created_at
		FROM federation_received WHERE source_server = $1 AND idempotency_key = $2`, sourceServer, idempotencyKey)
	var r model.ReceivedDispatch
	if err := row.Scan(&r.SourceServer, &r.IdempotencyKey, &r.DispatchID, &r.LocalIntentID, &r.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("store: get received dispatch: %w", err)
	}
	return &r, nil
}

// SeenCallback reports whether a callback's idempotency key has already
// been processed for dispatchID, and records it if not, atomically.
func (s *Store) SeenCallback(ctx context.Context, dispatchID, idempotencyKey string, now time.Time) (bool, error) {
	seen := false
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		row := s.queryRow(ctx, tx, `SELECT 1 FROM federation_callbacks_seen WHERE dispatch_id = $1 AND idempotency_key = $2`,
			dispatchID, idempotencyKey)
		var one int
		if err := row.Scan(&one); err == nil {
			seen = true
			return nil
		} else if err != sql.ErrNoRows {
			return fmt.Errorf("store: check seen callback: %w", err)
		}
		_, err := s.exec(ctx, tx, `INSERT INTO federation_callbacks_seen (dispatch_id, idempotency_key, created_at) VALUES ($1,$2,$3)`,
			dispatchID, idempotencyKey, now)
		if err != nil {
			return fmt.Errorf("store: record seen callback: %w", err)
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	return seen, nil
}
