package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/openintent-ai/openintent/pkg/model"
)

// AddAttachment records metadata for an externally stored blob.
func (s *Store) AddAttachment(ctx context.Context, a *model.IntentAttachment) error {
	metadata, err := marshalJSON(a.Metadata)
	if err != nil {
		return err
	}
	_, err = s.exec(ctx, nil, `
		INSERT INTO intent_attachments (id, intent_id, filename, mime_type, size, storage_url, metadata, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		a.ID, a.IntentID, a.Filename, a.MimeType, a.Size, a.StorageURL, metadata, a.CreatedAt)
	if err != nil {
		return fmt.Errorf("store: add attachment: %w", err)
	}
	return nil
}

// ListAttachments returns attachment metadata for an intent.
func (s *Store) ListAttachments(ctx context.Context, intentID string) ([]*model.IntentAttachment, error) {
	rows, err := s.query(ctx, nil, `
		SELECT id, intent_id, filename, mime_type, size, storage_url, metadata, created_at
		FROM intent_attachments WHERE intent_id = $1 ORDER BY created_at ASC`, intentID)
	if err != nil {
		return nil, fmt.Errorf("store: list attachments: %w", err)
	}
	defer rows.Close()
	var out []*model.IntentAttachment
	for rows.Next() {
		var a model.IntentAttachment
		var metadata string
		if err := rows.Scan(&a.ID, &a.IntentID, &a.Filename, &a.MimeType, &a.Size, &a.StorageURL, &metadata, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("store: scan attachment: %w", err)
		}
		if err := unmarshalJSON(metadata, &a.Metadata); err != nil {
			return nil, fmt.Errorf("store: decode attachment metadata: %w", err)
		}
		out = append(out, &a)
	}
	return out, rows.Err()
}

// RecordCost appends a cost entry for an intent.
func (s *Store) RecordCost(ctx context.Context, c *model.IntentCost) error {
	metadata, err := marshalJSON(c.Metadata)
	if err != nil {
		return err
	}
	_, err = s.exec(ctx, nil, `
		INSERT INTO intent_costs (id, intent_id, agent_id, cost_type, amount, unit, provider, metadata, recorded_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		c.ID, c.IntentID, c.AgentID, c.CostType, c.Amount, c.Unit, c.Provider, metadata, c.RecordedAt)
	if err != nil {
		return fmt.Errorf("store: record cost: %w", err)
	}
	return nil
}

// TotalCost sums the recorded cost amounts for an intent, used to
// enforce GovernancePolicy.MaxCost.
func (s *Store) TotalCost(ctx context.Context, intentID string) (float64, error) {
	row := s.queryRow(ctx, nil, `SELECT COALESCE(SUM(amount), 0) FROM intent_costs WHERE intent_id = $1`, intentID)
	var total float64
	if err := row.Scan(&total); err != nil {
		return 0, fmt.Errorf("store: total cost: %w", err)
	}
	return total, nil
}

// ListCosts returns every recorded cost entry for an intent.
func (s *Store) ListCosts(ctx context.Context, intentID string) ([]*model.IntentCost, error) {
	rows, err := s.query(ctx, nil, `
		SELECT id, intent_id, agent_id, cost_type, amount, unit, provider, metadata, recorded_at
		FROM intent_costs WHERE intent_id = $1 ORDER BY recorded_at ASC`, intentID)
	if err != nil {
		return nil, fmt.Errorf("store: list costs: %w", err)
	}
	defer rows.Close()
	var out []*model.IntentCost
	for rows.Next() {
		var c model.IntentCost
		var metadata string
		if err := rows.Scan(&c.ID, &c.IntentID, &c.AgentID, &c.CostType, &c.Amount, &c.Unit, &c.Provider, &metadata, &c.RecordedAt); err != nil {
			return nil, fmt.Errorf("store: scan cost: %w", err)
		}
		if err := unmarshalJSON(metadata, &c.Metadata); err != nil {
			return nil, fmt.Errorf("store: decode cost metadata: %w", err)
		}
		out = append(out, &c)
	}
	return out, rows.Err()
}

// SetRetryPolicy upserts the retry configuration for an intent.
func (s *Store) SetRetryPolicy(ctx context.Context, p *model.RetryPolicy) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := s.exec(ctx, tx, `
			UPDATE retry_policies SET strategy = $1, max_retries = $2, base_delay_ms = $3,
				max_delay_ms = $4, fallback_agent_id = $5, failure_threshold = $6 WHERE intent_id = $7`,
			string(p.Strategy), p.MaxRetries, p.BaseDelayMs, p.MaxDelayMs, p.FallbackAgentID, p.FailureThreshold, p.IntentID)
		if err != nil {
			return fmt.Errorf("store: update retry policy: %w", err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			return nil
		}
		_, err = s.exec(ctx, tx, `
			INSERT INTO retry_policies (intent_id, strategy, max_retries, base_delay_ms, max_delay_ms, fallback_agent_id, failure_threshold)
			VALUES ($1,$2,$3,$4,$5,$6,$7)`,
			p.IntentID, string(p.Strategy), p.MaxRetries, p.BaseDelayMs, p.MaxDelayMs, p.FallbackAgentID, p.FailureThreshold)
		if err != nil {
			return fmt.Errorf("store: insert retry policy: %w", err)
		}
		return nil
	})
}

// GetRetryPolicy fetches an intent's retry policy, or a zero-value
// RetryNone policy if none was ever set.
func (s *Store) GetRetryPolicy(ctx context.Context, intentID string) (*model.RetryPolicy, error) {
	row := s.queryRow(ctx, nil, `
		SELECT intent_id, strategy, max_retries, base_delay_ms, max_delay_ms, fallback_agent_id, failure_threshold
		FROM retry_policies WHERE intent_id = $1`, intentID)
	var p model.RetryPolicy
	var strategy string
	err := row.Scan(&p.IntentID, &strategy, &p.MaxRetries, &p.BaseDelayMs, &p.MaxDelayMs, &p.FallbackAgentID, &p.FailureThreshold)
	if err == sql.ErrNoRows {
		return &model.RetryPolicy{IntentID: intentID, Strategy: model.RetryNone}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: get retry policy: %w", err)
	}
	p.Strategy = model.RetryStrategy(strategy)
	return &p, nil
}

// RecordFailure appends an immutable failure record.
func (s *Store) RecordFailure(ctx context.Context, f *model.IntentFailure) error {
	metadata, err := marshalJSON(f.Metadata)
	if err != nil {
		return err
	}
	_, err = s.exec(ctx, nil, `
		INSERT INTO intent_failures (id, intent_id, agent_id, attempt_number, error_code, error_message,
			retry_scheduled_at, resolved_at, metadata, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		f.ID, f.IntentID, f.AgentID, f.AttemptNumber, f.ErrorCode, f.ErrorMessage,
		f.RetryScheduledAt, f.ResolvedAt, metadata, f.CreatedAt)
	if err != nil {
		return fmt.Errorf("store: record failure: %w", err)
	}
	return nil
}

// CountFailures returns how many failure records an intent has accrued,
// used to enforce RetryPolicy.FailureThreshold.
func (s *Store) CountFailures(ctx context.Context, intentID string) (int, error) {
	row := s.queryRow(ctx, nil, `SELECT COUNT(*) FROM intent_failures WHERE intent_id = $1`, intentID)
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, fmt.Errorf("store: count failures: %w", err)
	}
	return n, nil
}

// ListFailures returns every failure record for an intent.
func (s *Store) ListFailures(ctx context.Context, intentID string) ([]*model.IntentFailure, error) {
	rows, err := s.query(ctx, nil, `
		SELECT id, intent_id, agent_id, attempt_number, error_code, error_message, retry_scheduled_at, resolved_at, metadata, created_at
		FROM intent_failures WHERE intent_id = $1 ORDER BY created_at ASC`, intentID)
	if err != nil {
		return nil, fmt.Errorf("store: list failures: %w", err)
	}
	defer rows.Close()
	var out []*model.IntentFailure
	for rows.Next() {
		var f model.IntentFailure
		var metadata string
		if err := rows.Scan(&f.ID, &f.IntentID, &f.AgentID, &f.AttemptNumber, &f.ErrorCode, &f.ErrorMessage,
			&f.RetryScheduledAt, &f.ResolvedAt, &metadata, &f.CreatedAt); err != nil {
			return nil, fmt.Errorf("store: scan failure: %w", err)
		}
		if err := unmarshalJSON(metadata, &f.Metadata); err != nil {
			return nil, fmt.Errorf("store: decode failure metadata: %w", err)
		}
		out = append(out, &f)
	}
	return out, rows.Err()
}

// CreateSubscription inserts a standing webhook/filter subscription.
func (s *Store) CreateSubscription(ctx context.Context, sub *model.IntentSubscription) error {
	eventTypes, err := marshalJSON(sub.EventTypes)
	if err != nil {
		return err
	}
	_, err = s.exec(ctx, nil, `
		INSERT INTO intent_subscriptions (id, intent_id, subscriber_id, event_types, webhook_url, expires_at)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		sub.ID, sub.IntentID, sub.SubscriberID, eventTypes, sub.WebhookURL, sub.ExpiresAt)
	if err != nil {
		return fmt.Errorf("store: create subscription: %w", err)
	}
	return nil
}

// ListSubscriptions returns the live (unexpired) subscriptions for an
// intent, used by the event dispatcher to find webhook targets.
func (s *Store) ListSubscriptions(ctx context.Context, intentID string) ([]*model.IntentSubscription, error) {
	rows, err := s.query(ctx, nil, `
		SELECT id, intent_id, subscriber_id, event_types, webhook_url, expires_at
		FROM intent_subscriptions WHERE intent_id = $1 AND (expires_at IS NULL OR expires_at > $2)`, intentID, time.Now())
	if err != nil {
		return nil, fmt.Errorf("store: list subscriptions: %w", err)
	}
	defer rows.Close()
	var out []*model.IntentSubscription
	for rows.Next() {
		var sub model.IntentSubscription
		var eventTypes string
		if err := rows.Scan(&sub.ID, &sub.IntentID, &sub.SubscriberID, &eventTypes, &sub.WebhookURL, &sub.ExpiresAt); err != nil {
			return nil, fmt.Errorf("store: scan subscription: %w", err)
		}
		if err := unmarshalJSON(eventTypes, &sub.EventTypes); err != nil {
			return nil, fmt.Errorf("store: decode subscription event types: %w", err)
		}
		out = append(out, &sub)
	}
	return out, rows.Err()
}

// DeleteExpiredSubscriptions is run by the background subscription
// sweeper (spec.md §2, Background workers).
func (s *Store) DeleteExpiredSubscriptions(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.exec(ctx, nil, `DELETE FROM intent_subscriptions WHERE expires_at IS NOT NULL AND expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("store: sweep subscriptions: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
