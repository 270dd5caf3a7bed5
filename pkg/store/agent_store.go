package store

import (
	"context"
	"fmt"

	"github.com/openintent-ai/openintent/pkg/model"
)

// AssignAgent records an agent's assignment to an intent, upserting the
// role if the pair already exists.
func (s *Store) AssignAgent(ctx context.Context, a *model.IntentAgent) error {
	existing, err := s.query(ctx, nil, `SELECT id FROM intent_agents WHERE intent_id = $1 AND agent_id = $2`,
		a.IntentID, a.AgentID)
	if err != nil {
		return fmt.Errorf("store: assign agent lookup: %w", err)
	}
	defer existing.Close()
	if existing.Next() {
		var id string
		_ = existing.Scan(&id)
		existing.Close()
		_, err := s.exec(ctx, nil, `UPDATE intent_agents SET role = $1, assigned_at = $2 WHERE id = $3`,
			string(a.Role), a.AssignedAt, id)
		if err != nil {
			return fmt.Errorf("store: update agent assignment: %w", err)
		}
		return nil
	}
	_, err = s.exec(ctx, nil, `
		INSERT INTO intent_agents (id, intent_id, agent_id, role, assigned_at)
		VALUES ($1,$2,$3,$4,$5)`, a.ID, a.IntentID, a.AgentID, string(a.Role), a.AssignedAt)
	if err != nil {
		return fmt.Errorf("store: assign agent: %w", err)
	}
	return nil
}

// UnassignAgent removes an agent's assignment to an intent.
func (s *Store) UnassignAgent(ctx context.Context, intentID, agentID string) error {
	res, err := s.exec(ctx, nil, `DELETE FROM intent_agents WHERE intent_id = $1 AND agent_id = $2`, intentID, agentID)
	if err != nil {
		return fmt.Errorf("store: unassign agent: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListAgents returns all assignments for an intent.
func (s *Store) ListAgents(ctx context.Context, intentID string) ([]*model.IntentAgent, error) {
	rows, err := s.query(ctx, nil, `SELECT id, intent_id, agent_id, role, assigned_at FROM intent_agents WHERE intent_id = $1`, intentID)
	if err != nil {
		return nil, fmt.Errorf("store: list agents: %w", err)
	}
	defer rows.Close()
	var out []*model.IntentAgent
	for rows.Next() {
		var a model.IntentAgent
		var role string
		if err := rows.Scan(&a.ID, &a.IntentID, &a.AgentID, &role, &a.AssignedAt); err != nil {
			return nil, fmt.Errorf("store: scan agent: %w", err)
		}
		a.Role = model.AssignmentRole(role)
		out = append(out, &a)
	}
	return out, rows.Err()
}

// IsAssigned reports whether agentID holds any assignment on intentID,
// used to enforce GovernancePolicy.WriteScope == assigned_only.
func (s *Store) IsAssigned(ctx context.Context, intentID, agentID string) (bool, error) {
	row := s.queryRow(ctx, nil, `SELECT COUNT(*) FROM intent_agents WHERE intent_id = $1 AND agent_id = $2`, intentID, agentID)
	var n int
	if err := row.Scan(&n); err != nil {
		return false, fmt.Errorf("store: is assigned: %w", err)
	}
	return n > 0, nil
}
