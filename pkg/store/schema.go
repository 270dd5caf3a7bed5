package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// migrate creates every table this server needs if it does not already
// exist. Both dialects use TEXT for JSON columns: Postgres could use
// JSONB, but keeping one column type across dialects keeps every query
// in this package dialect-neutral outside of rebind().
func (s *Store) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS intents (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			created_by TEXT NOT NULL,
			parent_intent_id TEXT,
			depends_on TEXT NOT NULL DEFAULT '[]',
			constraints TEXT NOT NULL DEFAULT '{}',
			state TEXT NOT NULL DEFAULT '{}',
			status TEXT NOT NULL,
			confidence REAL NOT NULL DEFAULT 0,
			version BIGINT NOT NULL DEFAULT 1,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL,
			governance_policy TEXT NOT NULL DEFAULT '{}'
		)`,
		`CREATE INDEX IF NOT EXISTS idx_intents_parent ON intents(parent_intent_id)`,
		`CREATE INDEX IF NOT EXISTS idx_intents_status ON intents(status)`,

		`CREATE TABLE IF NOT EXISTS intent_events (
			id TEXT PRIMARY KEY,
			intent_id TEXT NOT NULL,
			sequence BIGINT NOT NULL,
			event_type TEXT NOT NULL,
			actor TEXT NOT NULL,
			payload TEXT NOT NULL DEFAULT '{}',
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_events_intent ON intent_events(intent_id, sequence)`,
		`CREATE INDEX IF NOT EXISTS idx_events_type ON intent_events(intent_id, event_type)`,

		`CREATE TABLE IF NOT EXISTS intent_leases (
			id TEXT PRIMARY KEY,
			intent_id TEXT NOT NULL,
			agent_id TEXT NOT NULL,
			scope TEXT NOT NULL,
			acquired_at TIMESTAMP NOT NULL,
			expires_at TIMESTAMP NOT NULL,
			released_at TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_leases_intent_scope ON intent_leases(intent_id, scope)`,

		`CREATE TABLE IF NOT EXISTS intent_agents (
			id TEXT PRIMARY KEY,
			intent_id TEXT NOT NULL,
			agent_id TEXT NOT NULL,
			role TEXT NOT NULL,
			assigned_at TIMESTAMP NOT NULL,
			UNIQUE(intent_id, agent_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_agents_intent ON intent_agents(intent_id)`,

		`CREATE TABLE IF NOT EXISTS portfolios (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			created_by TEXT NOT NULL,
			status TEXT NOT NULL,
			governance_policy TEXT NOT NULL DEFAULT '{}',
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS portfolio_memberships (
			id TEXT PRIMARY KEY,
			portfolio_id TEXT NOT NULL,
			intent_id TEXT NOT NULL,
			role TEXT NOT NULL,
			priority INTEGER NOT NULL DEFAULT 0,
			added_at TIMESTAMP NOT NULL,
			UNIQUE(portfolio_id, intent_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_membership_portfolio ON portfolio_memberships(portfolio_id)`,
		`CREATE INDEX IF NOT EXISTS idx_membership_intent ON portfolio_memberships(intent_id)`,

		`CREATE TABLE IF NOT EXISTS acl_entries (
			id TEXT PRIMARY KEY,
			intent_id TEXT NOT NULL,
			principal_id TEXT NOT NULL,
			principal_type TEXT NOT NULL,
			permission TEXT NOT NULL,
			granted_by TEXT NOT NULL,
			granted_at TIMESTAMP NOT NULL,
			expires_at TIMESTAMP,
			reason TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS idx_acl_intent ON acl_entries(intent_id)`,
		`CREATE TABLE IF NOT EXISTS acl_defaults (
			intent_id TEXT PRIMARY KEY,
			default_policy TEXT NOT NULL DEFAULT 'closed'
		)`,

		`CREATE TABLE IF NOT EXISTS access_requests (
			id TEXT PRIMARY KEY,
			intent_id TEXT NOT NULL,
			principal_id TEXT NOT NULL,
			requested_permission TEXT NOT NULL,
			reason TEXT NOT NULL DEFAULT '',
			capabilities TEXT NOT NULL DEFAULT '[]',
			status TEXT NOT NULL,
			decided_by TEXT,
			decided_at TIMESTAMP,
			decision_reason TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_access_requests_intent ON access_requests(intent_id)`,

		`CREATE TABLE IF NOT EXISTS approvals (
			id TEXT PRIMARY KEY,
			intent_id TEXT NOT NULL,
			requested_by TEXT NOT NULL,
			action TEXT NOT NULL,
			reason TEXT NOT NULL DEFAULT '',
			context TEXT NOT NULL DEFAULT '{}',
			status TEXT NOT NULL,
			decided_by TEXT,
			decided_at TIMESTAMP,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_approvals_intent ON approvals(intent_id, action)`,

		`CREATE TABLE IF NOT EXISTS channels (
			id TEXT PRIMARY KEY,
			intent_id TEXT NOT NULL,
			name TEXT NOT NULL,
			members TEXT NOT NULL DEFAULT '[]',
			status TEXT NOT NULL,
			options TEXT NOT NULL DEFAULT '{}',
			message_count BIGINT NOT NULL DEFAULT 0,
			last_message_at TIMESTAMP,
			task_id TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_channels_intent ON channels(intent_id)`,
		`CREATE TABLE IF NOT EXISTS messages (
			id TEXT PRIMARY KEY,
			channel_id TEXT NOT NULL,
			sender TEXT NOT NULL,
			recipient TEXT NOT NULL DEFAULT '',
			message_type TEXT NOT NULL,
			payload TEXT NOT NULL DEFAULT '{}',
			status TEXT NOT NULL,
			correlation_id TEXT NOT NULL DEFAULT '',
			metadata TEXT NOT NULL DEFAULT '{}',
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_channel ON messages(channel_id, created_at)`,

		`CREATE TABLE IF NOT EXISTS intent_attachments (
			id TEXT PRIMARY KEY,
			intent_id TEXT NOT NULL,
			filename TEXT NOT NULL,
			mime_type TEXT NOT NULL,
			size BIGINT NOT NULL,
			storage_url TEXT NOT NULL,
			metadata TEXT NOT NULL DEFAULT '{}',
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_attachments_intent ON intent_attachments(intent_id)`,

		`CREATE TABLE IF NOT EXISTS intent_costs (
			id TEXT PRIMARY KEY,
			intent_id TEXT NOT NULL,
			agent_id TEXT NOT NULL,
			cost_type TEXT NOT NULL,
			amount DOUBLE PRECISION NOT NULL,
			unit TEXT NOT NULL,
			provider TEXT NOT NULL DEFAULT '',
			metadata TEXT NOT NULL DEFAULT '{}',
			recorded_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_costs_intent ON intent_costs(intent_id)`,

		`CREATE TABLE IF NOT EXISTS retry_policies (
			intent_id TEXT PRIMARY KEY,
			strategy TEXT NOT NULL,
			max_retries INTEGER NOT NULL DEFAULT 0,
			base_delay_ms INTEGER NOT NULL DEFAULT 0,
			max_delay_ms INTEGER NOT NULL DEFAULT 0,
			fallback_agent_id TEXT NOT NULL DEFAULT '',
			failure_threshold INTEGER NOT NULL DEFAULT 0
		)`,

		`CREATE TABLE IF NOT EXISTS intent_failures (
			id TEXT PRIMARY KEY,
			intent_id TEXT NOT NULL,
			agent_id TEXT NOT NULL,
			attempt_number INTEGER NOT NULL,
			error_code TEXT NOT NULL DEFAULT '',
			error_message TEXT NOT NULL DEFAULT '',
			retry_scheduled_at TIMESTAMP,
			resolved_at TIMESTAMP,
			metadata TEXT NOT NULL DEFAULT '{}',
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_failures_intent ON intent_failures(intent_id)`,

		`CREATE TABLE IF NOT EXISTS intent_subscriptions (
			id TEXT PRIMARY KEY,
			intent_id TEXT NOT NULL,
			subscriber_id TEXT NOT NULL,
			event_types TEXT NOT NULL DEFAULT '[]',
			webhook_url TEXT NOT NULL DEFAULT '',
			expires_at TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_subscriptions_intent ON intent_subscriptions(intent_id)`,

		`CREATE TABLE IF NOT EXISTS federation_dispatches (
			dispatch_id TEXT PRIMARY KEY,
			target_server TEXT NOT NULL,
			intent_id TEXT NOT NULL,
			status TEXT NOT NULL,
			attempts INTEGER NOT NULL DEFAULT 0,
			last_error TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS federation_received (
			source_server TEXT NOT NULL,
			idempotency_key TEXT NOT NULL,
			dispatch_id TEXT NOT NULL,
			local_intent_id TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL,
			PRIMARY KEY (source_server, idempotency_key)
		)`,

		`CREATE TABLE IF NOT EXISTS federation_callbacks_seen (
			dispatch_id TEXT NOT NULL,
			idempotency_key TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL,
			PRIMARY KEY (dispatch_id, idempotency_key)
		)`,
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		for _, stmt := range stmts {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("migrate: %s: %w", firstLine(stmt), err)
			}
		}
		return nil
	})
}

// firstLine trims a DDL statement to its first line for error messages.
func firstLine(stmt string) string {
	if i := strings.IndexByte(stmt, '\n'); i >= 0 {
		return strings.TrimSpace(stmt[:i])
	}
	return stmt
}
